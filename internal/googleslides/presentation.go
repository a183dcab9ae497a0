package googleslides

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"google.golang.org/api/slides/v1"

	"github.com/smorand/slides-mirror/internal/host"
	"github.com/smorand/slides-mirror/internal/ratelimit"
	"github.com/smorand/slides-mirror/internal/retry"
)

// Sentinel errors for the Google Slides adapter.
var (
	ErrNoPresentationID = errors.New("presentation ID is required")
	ErrNoService        = errors.New("slides service is required")
	ErrSlideOutOfRange  = errors.New("slide number out of range")
)

const (
	defaultJPEGQuality = 90
	documentURLPrefix  = "https://docs.google.com/presentation/d/"
)

// Config holds configuration for a Google Slides presentation.
type Config struct {
	PresentationID string
	Service        SlidesService
	// HTTPClient downloads thumbnails (default: http.DefaultClient).
	HTTPClient *http.Client
	Retryer    *retry.Retryer
	// Limiter throttles API calls. Nil means unlimited.
	Limiter *ratelimit.Limiter
	// JPEGQuality is used when a thumbnail must be re-encoded (default: 90).
	JPEGQuality int
	Logger      *slog.Logger
}

// Presentation is a Google Slides document seen through the host interfaces.
// The document is loaded once and refreshed by Reload.
type Presentation struct {
	config Config
	logger *slog.Logger

	mu  sync.RWMutex
	doc *slides.Presentation
}

var (
	_ host.Presentation = (*Presentation)(nil)
	_ host.ShapeSource  = (*Presentation)(nil)
)

// Open loads the presentation.
func Open(ctx context.Context, config Config) (*Presentation, error) {
	if config.PresentationID == "" {
		return nil, ErrNoPresentationID
	}
	if config.Service == nil {
		return nil, ErrNoService
	}
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}
	if config.JPEGQuality <= 0 || config.JPEGQuality > 100 {
		config.JPEGQuality = defaultJPEGQuality
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Retryer == nil {
		config.Retryer = retry.New(retry.Config{Logger: config.Logger})
	}

	p := &Presentation{config: config, logger: config.Logger}
	if err := p.Reload(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload fetches the current document.
func (p *Presentation) Reload(ctx context.Context) error {
	doc, err := retry.Do(ctx, p.config.Retryer, func(ctx context.Context) (*slides.Presentation, error) {
		if err := p.config.Limiter.Wait(ctx, ratelimit.ClassRead); err != nil {
			return nil, err
		}
		return p.config.Service.GetPresentation(ctx, p.config.PresentationID)
	})
	if err != nil {
		return fmt.Errorf("failed to load presentation %s: %w", p.config.PresentationID, err)
	}

	p.mu.Lock()
	p.doc = doc
	p.mu.Unlock()

	p.logger.Debug("presentation loaded",
		slog.String("presentation_id", p.config.PresentationID),
		slog.String("revision", doc.RevisionId),
		slog.Int("slides", len(doc.Slides)),
	)
	return nil
}

// ID returns the presentation ID.
func (p *Presentation) ID() string {
	return p.config.PresentationID
}

// Name returns the document title.
func (p *Presentation) Name() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.doc.Title == "" {
		return p.config.PresentationID
	}
	return p.doc.Title
}

// Identity returns the document URL and loaded revision.
func (p *Presentation) Identity() host.Identity {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return host.Identity{
		Path:    documentURLPrefix + p.config.PresentationID,
		Version: p.doc.RevisionId,
	}
}

// Revision returns the revision of the loaded document.
func (p *Presentation) Revision() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.doc.RevisionId
}

// RemoteRevision asks the API for the current revision without reloading.
func (p *Presentation) RemoteRevision(ctx context.Context) (string, error) {
	return retry.Do(ctx, p.config.Retryer, func(ctx context.Context) (string, error) {
		if err := p.config.Limiter.Wait(ctx, ratelimit.ClassRead); err != nil {
			return "", err
		}
		return p.config.Service.GetRevisionID(ctx, p.config.PresentationID)
	})
}

// SlideCount returns the number of slides in the loaded document.
func (p *Presentation) SlideCount(ctx context.Context) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.doc.Slides), nil
}

func (p *Presentation) slide(n int) (*slides.Page, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if n < 1 || n > len(p.doc.Slides) {
		return nil, fmt.Errorf("%w: %d of %d", ErrSlideOutOfRange, n, len(p.doc.Slides))
	}
	return p.doc.Slides[n-1], nil
}

// SlideContent returns the geometry and text of slide n and its notes page.
func (p *Presentation) SlideContent(ctx context.Context, n int) (host.SlideContent, error) {
	page, err := p.slide(n)
	if err != nil {
		return host.SlideContent{}, err
	}
	content := host.SlideContent{Slide: pageShapes(page)}
	if page.SlideProperties != nil {
		content.NotesPage = pageShapes(page.SlideProperties.NotesPage)
	}
	return content, nil
}

// NotesText returns the speaker notes of slide n.
func (p *Presentation) NotesText(ctx context.Context, n int) (string, bool, error) {
	page, err := p.slide(n)
	if err != nil {
		return "", false, err
	}
	text, ok := speakerNotes(page)
	return text, ok, nil
}

// ExportSlideImage renders slide n as JPEG bytes.
func (p *Presentation) ExportSlideImage(ctx context.Context, n int) ([]byte, error) {
	page, err := p.slide(n)
	if err != nil {
		return nil, err
	}

	thumb, err := retry.Do(ctx, p.config.Retryer, func(ctx context.Context) (*slides.Thumbnail, error) {
		if err := p.config.Limiter.Wait(ctx, ratelimit.ClassThumbnail); err != nil {
			return nil, err
		}
		return p.config.Service.GetThumbnail(ctx, p.config.PresentationID, page.ObjectId)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get thumbnail for slide %d: %w", n, err)
	}

	data, err := retry.Do(ctx, p.config.Retryer, func(ctx context.Context) ([]byte, error) {
		return fetch(ctx, p.config.HTTPClient, thumb.ContentUrl)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download slide %d: %w", n, err)
	}

	image, err := toJPEG(data, p.config.JPEGQuality)
	if err != nil {
		return nil, fmt.Errorf("failed to convert slide %d: %w", n, err)
	}
	return image, nil
}
