package googleslides

import (
	"context"
	"log/slog"
	"time"
)

// WatcherConfig holds configuration for a revision Watcher.
type WatcherConfig struct {
	Presentation *Presentation
	Interval     time.Duration
	// OnChange runs after the presentation was reloaded at a new revision.
	OnChange func(ctx context.Context)
	Logger   *slog.Logger
}

// Watcher polls the presentation revision and reloads the document when it
// changes.
type Watcher struct {
	config WatcherConfig
	logger *slog.Logger
}

// NewWatcher creates a new Watcher.
func NewWatcher(config WatcherConfig) *Watcher {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Watcher{config: config, logger: config.Logger}
}

// Run polls until ctx is done. A non-positive interval disables polling.
func (w *Watcher) Run(ctx context.Context) {
	if w.config.Interval <= 0 {
		return
	}
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Check(ctx)
		}
	}
}

// Check compares the remote revision with the loaded one and reloads on a
// mismatch. It reports whether the presentation changed.
func (w *Watcher) Check(ctx context.Context) bool {
	p := w.config.Presentation
	remote, err := p.RemoteRevision(ctx)
	if err != nil {
		w.logger.Warn("failed to check presentation revision", slog.Any("error", err))
		return false
	}
	if remote == p.Revision() {
		return false
	}

	if err := p.Reload(ctx); err != nil {
		w.logger.Warn("failed to reload presentation", slog.Any("error", err))
		return false
	}
	w.logger.Info("presentation changed",
		slog.String("presentation", p.Name()),
		slog.String("revision", p.Revision()),
	)
	if w.config.OnChange != nil {
		w.config.OnChange(ctx)
	}
	return true
}
