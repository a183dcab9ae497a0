package transport

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// Handler serves one route. A returned error is converted into an error
// response by the router.
type Handler interface {
	ServeRoute(w http.ResponseWriter, r *http.Request) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// ServeRoute calls f(w, r).
func (f HandlerFunc) ServeRoute(w http.ResponseWriter, r *http.Request) error {
	return f(w, r)
}

// RouterConfig holds the route tables. Paths are normalized to end with "/".
type RouterConfig struct {
	Routes map[string]Handler
	// ErrorRoutes maps a status code to the handler for every response with
	// that status, including errors returned by route handlers. 404 and 500
	// get defaults for unmatched paths and panics.
	ErrorRoutes map[int]Handler
	Logger      *slog.Logger
}

// Router dispatches requests by exact path. Its tables are fixed at
// construction.
type Router struct {
	routes      map[string]Handler
	errorRoutes map[int]Handler
	// overrides holds the configured ErrorRoutes entries only.
	overrides map[int]Handler
	logger    *slog.Logger
}

// NewRouter creates a Router from config.
func NewRouter(config RouterConfig) *Router {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	rt := &Router{
		routes:      make(map[string]Handler, len(config.Routes)),
		errorRoutes: make(map[int]Handler, len(config.ErrorRoutes)+2),
		overrides:   make(map[int]Handler, len(config.ErrorRoutes)),
		logger:      config.Logger,
	}
	for path, h := range config.Routes {
		rt.routes[NormalizePath(path)] = h
	}
	rt.errorRoutes[http.StatusNotFound] = NewErrorHandler(http.StatusNotFound, "File does not exist")
	rt.errorRoutes[http.StatusInternalServerError] = NewErrorHandler(http.StatusInternalServerError, "Internal server error")
	for code, h := range config.ErrorRoutes {
		rt.errorRoutes[code] = h
		rt.overrides[code] = h
	}
	return rt
}

// NormalizePath appends a trailing "/" when missing.
func NormalizePath(path string) string {
	if !strings.HasSuffix(path, "/") {
		return path + "/"
	}
	return path
}

// Dispatch returns the handler for path, or the 404 handler.
func (rt *Router) Dispatch(path string) Handler {
	if h, ok := rt.routes[NormalizePath(path)]; ok {
		return h
	}
	return rt.errorRoutes[http.StatusNotFound]
}

// Paths returns the registered route paths.
func (rt *Router) Paths() []string {
	paths := make([]string, 0, len(rt.routes))
	for p := range rt.routes {
		paths = append(paths, p)
	}
	return paths
}

// ServeHTTP implements http.Handler. Handler errors and panics become error
// responses; they never escape the router.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			rt.logger.Error("handler panic",
				slog.String("path", r.URL.Path),
				slog.String("panic", fmt.Sprint(rec)),
			)
			rt.errorRoutes[http.StatusInternalServerError].ServeRoute(w, r)
		}
	}()

	h := rt.Dispatch(r.URL.Path)
	if err := h.ServeRoute(w, r); err != nil {
		rt.writeError(w, r, err)
	}
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, msg := statusFor(err)
	if code >= http.StatusInternalServerError {
		rt.logger.Warn("request failed",
			slog.String("path", r.URL.Path),
			slog.Int("status", code),
			slog.Any("error", err),
		)
	} else {
		rt.logger.Debug("request not served",
			slog.String("path", r.URL.Path),
			slog.Int("status", code),
			slog.Any("error", err),
		)
	}
	rt.errorHandler(code, msg).ServeRoute(w, r)
}

// errorHandler returns the configured handler for code, or one answering
// with msg.
func (rt *Router) errorHandler(code int, msg string) Handler {
	if h, ok := rt.overrides[code]; ok {
		return h
	}
	return NewErrorHandler(code, msg)
}
