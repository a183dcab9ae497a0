package cache

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/smorand/slides-mirror/internal/fingerprint"
	"github.com/smorand/slides-mirror/internal/host"
)

const defaultProgressStep = 10

// OrchestratorConfig holds configuration for cache passes.
type OrchestratorConfig struct {
	// ProgressStep is the minimum percentage advance between two progress
	// notifications (default: 10). 100% is always reported.
	ProgressStep int
	// Progress, when set, is called with each reported percentage.
	Progress func(percent int)
	Logger   *slog.Logger
}

// PassResult summarizes one cache pass.
type PassResult struct {
	Total    int
	Exported int
	Skipped  int
	Failed   int
	Aborted  bool
	Duration time.Duration
}

// Orchestrator runs cache passes over a presentation.
type Orchestrator struct {
	config OrchestratorConfig
	logger *slog.Logger
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(config OrchestratorConfig) *Orchestrator {
	if config.ProgressStep <= 0 {
		config.ProgressStep = defaultProgressStep
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Orchestrator{config: config, logger: config.Logger}
}

// Run walks slides 1..N in order and regenerates every slide whose cached
// entry is missing or stale. ctx is the liveness signal: once it is done the
// pass stops before the next slide. The manifest is flushed in every case,
// so slides completed before an abort stay cached.
func (o *Orchestrator) Run(ctx context.Context, store *Store, p host.Presentation) (PassResult, error) {
	start := time.Now()
	var result PassResult

	total, err := p.SlideCount(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to count slides: %w", err)
	}
	result.Total = total

	shapes, _ := p.(host.ShapeSource)
	if !store.TracksFingerprints() {
		shapes = nil
	}

	o.logger.Info("caching slides",
		slog.String("presentation", p.Name()),
		slog.Int("slides", total),
		slog.Bool("fingerprints", shapes != nil),
	)

	previous := 0
	for i := 1; i <= total; i++ {
		if ctx.Err() != nil {
			result.Aborted = true
			o.logger.Warn("aborting cache since slide show has ended",
				slog.Int("slide", i),
				slog.Int("total", total),
			)
			break
		}

		switch o.cacheSlide(ctx, store, p, shapes, i) {
		case slideExported:
			result.Exported++
		case slideSkipped:
			result.Skipped++
		case slideFailed:
			result.Failed++
		}

		percent := int(math.RoundToEven(float64(i) / float64(total) * 100))
		if percent-previous > o.config.ProgressStep || percent == 100 {
			o.reportProgress(percent)
			previous = percent
		}
	}

	if !result.Aborted {
		store.Truncate(total)
	}
	result.Duration = time.Since(start)

	if err := store.Flush(); err != nil {
		return result, err
	}

	o.logger.Info("cache pass finished",
		slog.String("presentation", p.Name()),
		slog.Int("exported", result.Exported),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed),
		slog.Bool("aborted", result.Aborted),
		slog.Duration("duration", result.Duration),
	)
	return result, nil
}

type slideOutcome int

const (
	slideExported slideOutcome = iota
	slideSkipped
	slideFailed
)

func (o *Orchestrator) cacheSlide(ctx context.Context, store *Store, p host.Presentation, shapes host.ShapeSource, n int) slideOutcome {
	var fp fingerprint.Slide
	if shapes != nil {
		content, err := shapes.SlideContent(ctx, n)
		if err != nil {
			o.slideFailed(n, "failed to read slide content", err)
			return slideFailed
		}
		fp = fingerprint.ForSlide(content)
		if store.IsSlideValid(n, fp) {
			return slideSkipped
		}
	} else if store.IsSlideCached(n) {
		return slideSkipped
	}

	image, err := p.ExportSlideImage(ctx, n)
	if err != nil {
		o.slideFailed(n, "failed to export slide image", err)
		return slideFailed
	}
	if err := store.StoreImage(n, image); err != nil {
		o.slideFailed(n, "failed to store slide image", err)
		return slideFailed
	}

	notes, present, err := p.NotesText(ctx, n)
	if err != nil {
		o.slideFailed(n, "failed to read slide notes", err)
		return slideFailed
	}
	if err := store.StoreNotes(n, notes, present); err != nil {
		o.slideFailed(n, "failed to store slide notes", err)
		return slideFailed
	}

	if shapes != nil {
		store.RecordFingerprint(n, fp)
	}
	return slideExported
}

func (o *Orchestrator) slideFailed(n int, msg string, err error) {
	o.logger.Warn(msg,
		slog.Int("slide", n),
		slog.Any("error", err),
	)
}

func (o *Orchestrator) reportProgress(percent int) {
	o.logger.Info("cache progress", slog.Int("percent", percent))
	if o.config.Progress != nil {
		o.config.Progress(percent)
	}
}
