package googleslides

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/smorand/slides-mirror/internal/host"
)

// Sentinel errors for slideshow control.
var (
	ErrShowRunning    = errors.New("a slide show is already running")
	ErrShowNotRunning = errors.New("no slide show is running")
)

// Show is one run of a slideshow over a Presentation. Google Slides exposes
// no presenter events, so the position is driven through Host.
type Show struct {
	id           string
	presentation *Presentation

	mu       sync.Mutex
	position int
	ended    bool
}

var _ host.SlideShowView = (*Show)(nil)

// ID returns the show's unique id.
func (s *Show) ID() string { return s.id }

// Presentation returns the presentation being shown.
func (s *Show) Presentation() host.Presentation { return s.presentation }

// CurrentPosition returns the current 1-based slide.
func (s *Show) CurrentPosition() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return 0, host.ErrNoSlideShowView
	}
	return s.position, nil
}

// HostConfig holds configuration for a Host.
type HostConfig struct {
	Presentation *Presentation
	Listener     host.Listener
	Logger       *slog.Logger
}

// Host plays the presentation host role for a Google Slides document: it
// owns the running Show and delivers events to the Listener.
type Host struct {
	config HostConfig
	logger *slog.Logger

	mu   sync.Mutex
	show *Show
}

// NewHost creates a new Host.
func NewHost(config HostConfig) *Host {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Host{config: config, logger: config.Logger}
}

// Presentation returns the hosted presentation.
func (h *Host) Presentation() *Presentation {
	return h.config.Presentation
}

// Open announces the presentation to the listener.
func (h *Host) Open() {
	h.config.Listener.PresentationOpened(h.config.Presentation)
}

// Begin starts a show at slide 1. It blocks while the listener caches the
// slides.
func (h *Host) Begin() error {
	h.mu.Lock()
	if h.show != nil {
		h.mu.Unlock()
		return ErrShowRunning
	}
	show := &Show{id: uuid.NewString(), presentation: h.config.Presentation, position: 1}
	h.show = show
	h.mu.Unlock()

	h.config.Listener.SlideShowBegan(show)
	return nil
}

// End stops the running show.
func (h *Host) End() error {
	h.mu.Lock()
	show := h.show
	h.show = nil
	h.mu.Unlock()

	if show == nil {
		return ErrShowNotRunning
	}
	show.mu.Lock()
	show.ended = true
	show.mu.Unlock()

	h.config.Listener.SlideShowEnded(h.config.Presentation)
	return nil
}

// Running returns the current show, if any.
func (h *Host) Running() (*Show, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.show, h.show != nil
}

// Next advances one slide. Moving past the last slide is a no-op.
func (h *Host) Next() error {
	return h.move(func(pos, total int) int { return pos + 1 })
}

// Prev goes back one slide. Moving before the first slide is a no-op.
func (h *Host) Prev() error {
	return h.move(func(pos, total int) int { return pos - 1 })
}

// First jumps to the first slide.
func (h *Host) First() error {
	return h.move(func(pos, total int) int { return 1 })
}

// Last jumps to the last slide.
func (h *Host) Last() error {
	return h.move(func(pos, total int) int { return total })
}

// Goto jumps to slide n.
func (h *Host) Goto(n int) error {
	total, _ := h.config.Presentation.SlideCount(context.Background())
	if n < 1 || n > total {
		return fmt.Errorf("%w: %d of %d", ErrSlideOutOfRange, n, total)
	}
	return h.move(func(pos, total int) int { return n })
}

func (h *Host) move(next func(pos, total int) int) error {
	show, ok := h.Running()
	if !ok {
		return ErrShowNotRunning
	}
	total, _ := h.config.Presentation.SlideCount(context.Background())

	show.mu.Lock()
	pos := next(show.position, total)
	if pos < 1 || pos > total || pos == show.position {
		show.mu.Unlock()
		return nil
	}
	show.position = pos
	show.mu.Unlock()

	h.config.Listener.SlideChanged(show)
	return nil
}
