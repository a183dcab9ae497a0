// Package session owns the active slideshow: it reacts to host events, runs
// cache passes for the show and exposes a read-only view of it to the HTTP
// handlers.
//
// The active show is published through an atomic pointer. Handlers load it
// once per request and must tolerate it disappearing between two requests.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smorand/slides-mirror/internal/cache"
	"github.com/smorand/slides-mirror/internal/fingerprint"
	"github.com/smorand/slides-mirror/internal/host"
)

// ErrNoActiveSlideShow is returned when no slideshow is running.
var ErrNoActiveSlideShow = errors.New("no active slide show")

const maxDisplayNameLength = 40

// Config holds session dependencies.
type Config struct {
	Manager      *cache.Manager
	Orchestrator *cache.Orchestrator
	Logger       *slog.Logger
}

// Show is an immutable view of the running slideshow. A recache that changes
// the presentation fingerprint publishes a new Show sharing the same context.
type Show struct {
	view        host.SlideShowView
	fingerprint fingerprint.Presentation
	store       *cache.Store
	ctx         context.Context
	cancel      context.CancelFunc
	began       time.Time
}

// View returns the host's slideshow view.
func (s *Show) View() host.SlideShowView { return s.view }

// Fingerprint returns the presentation fingerprint the show is cached under.
func (s *Show) Fingerprint() fingerprint.Presentation { return s.fingerprint }

// Store returns the show's cache store, or nil if it could not be opened.
func (s *Show) Store() *cache.Store { return s.store }

// Began returns when the show started.
func (s *Show) Began() time.Time { return s.began }

// Session tracks at most one active slideshow.
type Session struct {
	config Config
	logger *slog.Logger
	active atomic.Pointer[Show]
	mu     sync.Mutex // guards transitions of active
	passMu sync.Mutex // one cache pass at a time
}

// New creates a new Session.
func New(config Config) *Session {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Orchestrator == nil {
		config.Orchestrator = cache.NewOrchestrator(cache.OrchestratorConfig{Logger: config.Logger})
	}
	return &Session{config: config, logger: config.Logger}
}

var _ host.Listener = (*Session)(nil)

// Active returns the running show.
func (s *Session) Active() (*Show, bool) {
	show := s.active.Load()
	return show, show != nil
}

// ActiveStore returns the cache store of the running show.
func (s *Session) ActiveStore() (*cache.Store, bool) {
	show := s.active.Load()
	if show == nil || show.store == nil {
		return nil, false
	}
	return show.store, true
}

// PresentationOpened logs the opened presentation.
func (s *Session) PresentationOpened(p host.Presentation) {
	s.logger.Info("presentation opened",
		slog.String("presentation", s.displayName(context.Background(), p)),
	)
}

// SlideShowBegan publishes view as the active show and caches its slides.
// It blocks until the pass finishes or the show ends. A second show while
// one is active is ignored.
func (s *Session) SlideShowBegan(view host.SlideShowView) {
	s.mu.Lock()
	if s.active.Load() != nil {
		s.mu.Unlock()
		s.logger.Warn("ignoring new slide show as another is already active",
			slog.String("view", view.ID()),
		)
		return
	}

	p := view.Presentation()
	fp := fingerprint.ForPresentation(p.Identity())
	store := s.openStore(p, fp)

	ctx, cancel := context.WithCancel(context.Background())
	show := &Show{
		view:        view,
		fingerprint: fp,
		store:       store,
		ctx:         ctx,
		cancel:      cancel,
		began:       time.Now(),
	}
	s.active.Store(show)
	s.mu.Unlock()

	s.logger.Info("beginning slide show",
		slog.String("presentation", s.displayName(ctx, p)),
		slog.String("fingerprint", fp.Short()),
	)

	if store != nil {
		s.runPass(show)
	}
}

// SlideShowEnded clears the active show and cancels its running pass.
func (s *Session) SlideShowEnded(p host.Presentation) {
	s.mu.Lock()
	show := s.active.Swap(nil)
	s.mu.Unlock()

	if show == nil {
		return
	}
	show.cancel()
	s.logger.Warn("ending slide show",
		slog.String("presentation", p.Name()),
		slog.Duration("elapsed", time.Since(show.began)),
	)
}

// SlideChanged logs the new position of the active show.
func (s *Session) SlideChanged(view host.SlideShowView) {
	show := s.active.Load()
	if show != nil && show.view.ID() != view.ID() {
		return
	}
	pos, err := view.CurrentPosition()
	if err != nil {
		s.logger.Debug("slide changed on ended show", slog.Any("error", err))
		return
	}
	s.logger.Info("current slide", slog.Int("slide", pos))
}

// Recache runs another pass for the active show. The fingerprint is
// recomputed first; a changed presentation gets a new cache directory.
func (s *Session) Recache() (cache.PassResult, error) {
	s.mu.Lock()
	show := s.active.Load()
	if show == nil {
		s.mu.Unlock()
		return cache.PassResult{}, ErrNoActiveSlideShow
	}

	p := show.view.Presentation()
	fp := fingerprint.ForPresentation(p.Identity())
	if fp != show.fingerprint || show.store == nil {
		next := *show
		next.fingerprint = fp
		next.store = s.openStore(p, fp)
		show = &next
		s.active.Store(show)
		s.logger.Info("presentation fingerprint changed",
			slog.String("fingerprint", fp.Short()),
		)
	}
	s.mu.Unlock()

	if show.store == nil {
		return cache.PassResult{}, fmt.Errorf("cache store unavailable for %s", fp.Short())
	}
	return s.runPass(show)
}

// Snapshot reads the live state of the active show. A show that ends during
// the read is reported as ErrNoActiveSlideShow.
func (s *Session) Snapshot(ctx context.Context) (host.Snapshot, error) {
	show := s.active.Load()
	if show == nil {
		return host.Snapshot{}, ErrNoActiveSlideShow
	}

	pos, err := show.view.CurrentPosition()
	if err != nil {
		return host.Snapshot{}, mapHostError(err)
	}
	total, err := show.view.Presentation().SlideCount(ctx)
	if err != nil {
		return host.Snapshot{}, mapHostError(err)
	}

	snap := host.Snapshot{
		NumberOfSlides:     total,
		CurrentSlideNumber: pos,
	}
	if show.store != nil {
		notes, ok, err := show.store.Notes(pos)
		if err != nil {
			return host.Snapshot{}, err
		}
		if ok {
			snap.CurrentSlideNotes = &notes
		}
	}
	return snap, nil
}

func mapHostError(err error) error {
	if errors.Is(err, host.ErrNoSlideShowView) {
		return fmt.Errorf("%w: %v", ErrNoActiveSlideShow, err)
	}
	return err
}

func (s *Session) openStore(p host.Presentation, fp fingerprint.Presentation) *cache.Store {
	_, track := p.(host.ShapeSource)
	store, err := s.config.Manager.Open(fp, track)
	if err != nil {
		s.logger.Error("cannot cache slide show",
			slog.String("presentation", p.Name()),
			slog.Any("error", err),
		)
		return nil
	}
	return store
}

func (s *Session) runPass(show *Show) (cache.PassResult, error) {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	result, err := s.config.Orchestrator.Run(show.ctx, show.store, show.view.Presentation())
	if err != nil {
		s.logger.Error("cache pass failed", slog.Any("error", err))
	}
	return result, err
}

func (s *Session) displayName(ctx context.Context, p host.Presentation) string {
	count, err := p.SlideCount(ctx)
	if err != nil {
		count = -1
	}
	return DisplayName(p.Name(), count)
}

// DisplayName shortens a presentation name for console output and appends
// its slide count.
func DisplayName(name string, slides int) string {
	runes := []rune(name)
	if len(runes) > maxDisplayNameLength {
		name = string(runes[:maxDisplayNameLength]) + "..."
	}
	if slides < 0 {
		return name
	}
	return fmt.Sprintf("%s (%d)", name, slides)
}
