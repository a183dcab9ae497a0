// Package host defines the narrow interfaces through which the mirror consumes a
// presentation host: content enumeration, image export, live slideshow state and
// the event callbacks the host invokes when a slideshow starts or stops.
//
// Nothing in this package depends on a concrete host. Adapters (for example the
// Google Slides adapter) implement these interfaces; the session and cache
// packages only ever see them.
package host

import (
	"context"
	"errors"
)

// ErrNoSlideShowView is returned by a SlideShowView whose slideshow has ended
// between the caller's liveness check and the state read.
var ErrNoSlideShowView = errors.New("there is currently no slide show view for this presentation")

// Shape is a positioned element on a slide or on its notes page.
// Geometry is expressed in whatever unit the host uses; only stability matters.
type Shape struct {
	Left    float64
	Top     float64
	Width   float64
	Height  float64
	Text    string
	HasText bool
}

// SlideContent is the geometry and text of one slide, as enumerated by the host.
// NotesPage is empty when the slide has no notes page.
type SlideContent struct {
	NotesPage []Shape
	Slide     []Shape
}

// Identity is what a PresentationFingerprint is derived from.
// Version is the host's notion of last modification (file mtime, revision id);
// an empty Version selects the lighter path-only fingerprint.
type Identity struct {
	Path    string
	Version string
}

// Presentation is the content side of the host.
// Slide numbers are 1-based.
type Presentation interface {
	Name() string
	Identity() Identity
	SlideCount(ctx context.Context) (int, error)
	ExportSlideImage(ctx context.Context, slideNumber int) ([]byte, error)
	// NotesText returns the slide's notes and whether a notes placeholder with
	// text was found. A false second value is the "absent" state.
	NotesText(ctx context.Context, slideNumber int) (string, bool, error)
}

// ShapeSource is implemented by hosts that can enumerate slide geometry.
// Hosts without it are cached in existence-only mode.
type ShapeSource interface {
	SlideContent(ctx context.Context, slideNumber int) (SlideContent, error)
}

// SlideShowView is a running slideshow of a Presentation.
type SlideShowView interface {
	ID() string
	Presentation() Presentation
	// CurrentPosition returns the 1-based slide shown right now, or
	// ErrNoSlideShowView if the show has ended.
	CurrentPosition() (int, error)
}

// Snapshot is the live state mirrored to viewers.
type Snapshot struct {
	NumberOfSlides     int
	CurrentSlideNumber int
	// CurrentSlideNotes is nil when the current slide has no cached notes.
	CurrentSlideNotes *string
}

// Listener receives host events. The host invokes these on its own event
// goroutine; SlideShowBegan may block for the duration of a cache pass.
type Listener interface {
	PresentationOpened(p Presentation)
	SlideShowBegan(view SlideShowView)
	SlideShowEnded(p Presentation)
	SlideChanged(view SlideShowView)
}
