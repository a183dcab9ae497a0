package transport

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/", "/"},
		{"", "/"},
		{"/slideimage", "/slideimage/"},
		{"/slideimage/", "/slideimage/"},
		{"/a/b", "/a/b/"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePath(tt.path), tt.path)
	}
}

func TestRouterDispatch(t *testing.T) {
	called := ""
	router := NewRouter(RouterConfig{
		Routes: map[string]Handler{
			"/":      HandlerFunc(func(w http.ResponseWriter, r *http.Request) error { called = "root"; return nil }),
			"/hello": HandlerFunc(func(w http.ResponseWriter, r *http.Request) error { called = "hello"; return nil }),
		},
		Logger: discardLogger(),
	})

	tests := []struct {
		target   string
		want     string
		wantCode int
	}{
		{"/", "root", http.StatusOK},
		{"/hello", "hello", http.StatusOK},
		{"/hello/", "hello", http.StatusOK},
		{"/hello/world", "", http.StatusNotFound},
		{"/foo/", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			called = ""
			w := serve(router, tt.target)

			assert.Equal(t, tt.want, called)
			assert.Equal(t, tt.wantCode, w.Code)
		})
	}
}

func TestRouterUnmatchedPath(t *testing.T) {
	router := NewRouter(RouterConfig{Logger: discardLogger()})

	w := serve(router, "/foo/")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Error: File does not exist", w.Body.String())
}

func TestRouterCustomErrorRoute(t *testing.T) {
	router := NewRouter(RouterConfig{
		ErrorRoutes: map[int]Handler{
			http.StatusNotFound: NewErrorHandler(http.StatusNotFound, "Nothing here"),
		},
		Logger: discardLogger(),
	})

	w := serve(router, "/missing")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Error: Nothing here", w.Body.String())
}

func TestRouterCustomErrorRouteForHandlerErrors(t *testing.T) {
	router := NewRouter(RouterConfig{
		Routes: map[string]Handler{
			"/gone/": HandlerFunc(func(w http.ResponseWriter, r *http.Request) error {
				return fmt.Errorf("%w: %d", ErrSlideNotCached, 2)
			}),
			"/broken/": HandlerFunc(func(w http.ResponseWriter, r *http.Request) error {
				return errors.New("disk failure")
			}),
		},
		ErrorRoutes: map[int]Handler{
			http.StatusNotFound: NewErrorHandler(http.StatusNotFound, "Nothing here"),
		},
		Logger: discardLogger(),
	})

	w := serve(router, "/gone")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Error: Nothing here", w.Body.String())

	// Statuses without a configured route keep their own message.
	w = serve(router, "/broken")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Error: Internal server error", w.Body.String())
}

func TestRouterRecoversPanics(t *testing.T) {
	router := NewRouter(RouterConfig{
		Routes: map[string]Handler{
			"/boom/": HandlerFunc(func(w http.ResponseWriter, r *http.Request) error { panic("boom") }),
			"/ok/":   HandlerFunc(func(w http.ResponseWriter, r *http.Request) error { return nil }),
		},
		Logger: discardLogger(),
	})

	w := serve(router, "/boom")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Error: Internal server error", w.Body.String())

	w = serve(router, "/ok")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouterStatusErrors(t *testing.T) {
	router := NewRouter(RouterConfig{
		Routes: map[string]Handler{
			"/teapot/": HandlerFunc(func(w http.ResponseWriter, r *http.Request) error {
				return NewStatusError(http.StatusTeapot, "short and stout", nil)
			}),
		},
		Logger: discardLogger(),
	})

	w := serve(router, "/teapot")

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "Error: short and stout", w.Body.String())
}

func TestErrorHandler(t *testing.T) {
	w := httptest.NewRecorder()

	err := NewErrorHandler(http.StatusServiceUnavailable, "not ready").ServeRoute(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "Error: not ready", w.Body.String())
}

func TestRouterPaths(t *testing.T) {
	router := NewRouter(RouterConfig{
		Routes: map[string]Handler{
			"/a":  NewErrorHandler(http.StatusOK, "a"),
			"/b/": NewErrorHandler(http.StatusOK, "b"),
		},
	})

	assert.ElementsMatch(t, []string{"/a/", "/b/"}, router.Paths())
}
