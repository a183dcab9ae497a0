package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/smorand/slides-mirror/internal/cache"
	"github.com/smorand/slides-mirror/internal/host"
)

const slideNumberParam = "Number"

var contentTypes = map[string]string{
	".js":  "application/javascript",
	".htm": "text/html",
	".jpg": "image/jpeg",
	".png": "image/png",
}

// ContentType returns the content type for path's extension, or "" when the
// extension is unknown.
func ContentType(path string) string {
	return contentTypes[strings.ToLower(filepath.Ext(path))]
}

// SlideShows is the read-only view of the running slideshow the handlers use.
type SlideShows interface {
	ActiveStore() (*cache.Store, bool)
	Snapshot(ctx context.Context) (host.Snapshot, error)
}

// StaticFileHandler serves a single file.
type StaticFileHandler struct {
	path        string
	contentType string
	development bool
	content     []byte
}

// NewStaticFileHandler creates a handler for path. In development mode the
// file is read on every request; otherwise it is read once here and the
// snapshot is served for the handler's lifetime.
func NewStaticFileHandler(path string, development bool) (*StaticFileHandler, error) {
	h := &StaticFileHandler{
		path:        path,
		contentType: ContentType(path),
		development: development,
	}
	if !development {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		h.content = content
	}
	return h, nil
}

// Path returns the served file path.
func (h *StaticFileHandler) Path() string {
	return h.path
}

// ServeRoute writes the file bytes.
func (h *StaticFileHandler) ServeRoute(w http.ResponseWriter, r *http.Request) error {
	content := h.content
	if h.development {
		var err error
		content, err = os.ReadFile(h.path)
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, h.path)
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", h.path, err)
		}
	}

	if h.contentType != "" {
		w.Header().Set("Content-Type", h.contentType)
	} else {
		// Unknown extension: send no Content-Type rather than a sniffed one.
		w.Header()["Content-Type"] = nil
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(content)))
	w.WriteHeader(http.StatusOK)
	_, err := w.Write(content)
	return err
}

// SlideImageHandler serves cached slide images selected by the Number query
// parameter.
type SlideImageHandler struct {
	shows SlideShows
}

// NewSlideImageHandler creates a SlideImageHandler.
func NewSlideImageHandler(shows SlideShows) *SlideImageHandler {
	return &SlideImageHandler{shows: shows}
}

// ServeRoute validates the slide number and serves the cached image.
func (h *SlideImageHandler) ServeRoute(w http.ResponseWriter, r *http.Request) error {
	values, ok := queryValues(r, slideNumberParam)
	if !ok || len(values) == 0 {
		return NewStatusError(http.StatusInternalServerError,
			"Missing parameter '"+slideNumberParam+"'", ErrMissingParameter)
	}

	n, err := strconv.Atoi(strings.TrimSpace(values[0]))
	if err != nil {
		return NewStatusError(http.StatusInternalServerError,
			"Invalid parameter value: '"+slideNumberParam+"'", fmt.Errorf("%w: %v", ErrInvalidParameter, err))
	}

	store, ok := h.shows.ActiveStore()
	if !ok || !store.IsSlideCached(n) {
		return fmt.Errorf("%w: %d", ErrSlideNotCached, n)
	}

	// Slide images change between passes, so they are always read fresh.
	image, err := NewStaticFileHandler(store.ImagePath(n), false)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %d", ErrSlideNotCached, n)
	}
	if err != nil {
		return err
	}
	return image.ServeRoute(w, r)
}

// queryValues looks up a query parameter by case-insensitive name.
func queryValues(r *http.Request, name string) ([]string, bool) {
	query := r.URL.Query()
	if values, ok := query[name]; ok {
		return values, true
	}
	for key, values := range query {
		if strings.EqualFold(key, name) {
			return values, true
		}
	}
	return nil, false
}

// SlideShowData is the JSON state of the running slideshow.
type SlideShowData struct {
	NumberOfSlides     int     `json:"numberOfSlides"`
	CurrentSlideNumber int     `json:"currentSlideNumber"`
	CurrentSlideNotes  *string `json:"currentSlideNotes"`
}

// SlideShowDataHandler serves the live slideshow state.
type SlideShowDataHandler struct {
	shows SlideShows
}

// NewSlideShowDataHandler creates a SlideShowDataHandler.
func NewSlideShowDataHandler(shows SlideShows) *SlideShowDataHandler {
	return &SlideShowDataHandler{shows: shows}
}

// ServeRoute writes the current snapshot as JSON. A show ending during the
// read is reported as no active slide show. Error responses keep the JSON
// content type.
func (h *SlideShowDataHandler) ServeRoute(w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "application/json")

	snap, err := h.shows.Snapshot(r.Context())
	if err != nil {
		return err
	}

	body, err := json.Marshal(SlideShowData{
		NumberOfSlides:     snap.NumberOfSlides,
		CurrentSlideNumber: snap.CurrentSlideNumber,
		CurrentSlideNotes:  snap.CurrentSlideNotes,
	})
	if err != nil {
		return fmt.Errorf("failed to encode slide show data: %w", err)
	}

	w.WriteHeader(http.StatusOK)
	_, err = w.Write(body)
	return err
}

// ErrorHandler answers with a fixed status and "Error: <message>".
type ErrorHandler struct {
	Code    int
	Message string
}

// NewErrorHandler creates an ErrorHandler.
func NewErrorHandler(code int, message string) *ErrorHandler {
	return &ErrorHandler{Code: code, Message: message}
}

// ServeRoute writes the error response. A Content-Type already set by the
// failing handler is kept.
func (h *ErrorHandler) ServeRoute(w http.ResponseWriter, r *http.Request) error {
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	w.WriteHeader(h.Code)
	_, err := w.Write([]byte("Error: " + h.Message))
	return err
}
