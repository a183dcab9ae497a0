package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultPort            = 8080
	defaultReadTimeout     = 30 * time.Second
	defaultWriteTimeout    = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second

	// SlideImagePath serves cached slide images.
	SlideImagePath = "/slideimage/"
	// SlideShowDataPath serves the live slideshow state.
	SlideShowDataPath = "/slideshowdata/"

	requestIDHeader = "X-Request-Id"
)

// ErrServerRunning is returned by Start on a server that is already running.
var ErrServerRunning = errors.New("server is already running")

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	// Host is the address to bind. Empty binds every IPv4 interface address
	// except link-local ones.
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// FrontendDir holds the static assets served next to the slide routes.
	FrontendDir string
	// Development re-reads static assets on every request.
	Development bool
	Logger      *slog.Logger
}

// DefaultServerConfig returns configuration with default values.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:            defaultPort,
		ReadTimeout:     defaultReadTimeout,
		WriteTimeout:    defaultWriteTimeout,
		ShutdownTimeout: defaultShutdownTimeout,
		FrontendDir:     "web",
		Logger:          slog.Default(),
	}
}

// Server is the slide mirror HTTP server. Requests are handled one at a time
// over every bound address, one request per connection.
type Server struct {
	config  ServerConfig
	router  *Router
	handler http.Handler
	logger  *slog.Logger

	serveMu sync.Mutex // serializes request handling

	mu        sync.RWMutex
	running   bool
	servers   []*http.Server
	addresses []string
}

// NewServer creates a new Server over shows. A missing frontend directory is
// logged and leaves only the slide routes.
func NewServer(config ServerConfig, shows SlideShows) *Server {
	if config.Port == 0 {
		config.Port = defaultPort
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = defaultReadTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = defaultWriteTimeout
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = defaultShutdownTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	routes := make(map[string]Handler)
	if config.FrontendDir != "" {
		assets, err := DiscoverAssets(config.FrontendDir, config.Development)
		if err != nil {
			config.Logger.Warn("serving without static assets",
				slog.String("dir", config.FrontendDir),
				slog.Any("error", err),
			)
		}
		for path, h := range assets {
			routes[path] = h
		}
	}
	routes[SlideImagePath] = NewSlideImageHandler(shows)
	routes[SlideShowDataPath] = NewSlideShowDataHandler(shows)

	s := &Server{
		config: config,
		router: NewRouter(RouterConfig{Routes: routes, Logger: config.Logger}),
		logger: config.Logger,
	}
	s.handler = s.withMiddleware(s.router)
	return s
}

// Handler returns the server's root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Router returns the route table.
func (s *Server) Router() *Router {
	return s.router
}

// withMiddleware wraps next with request ids, serialization, cache
// suppression headers and request logging.
func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.serveMu.Lock()
		defer s.serveMu.Unlock()

		start := time.Now()
		requestID := uuid.NewString()

		w.Header().Set(requestIDHeader, requestID)
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		s.logger.Info("request completed",
			slog.String("request_id", requestID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rw.statusCode),
			slog.Duration("duration", time.Since(start)),
			slog.String("remote_addr", r.RemoteAddr),
		)
	})
}

// BindAddresses returns the IP addresses the server binds when Host is empty:
// every IPv4 interface address except link-local ones.
func BindAddresses() ([]string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, fmt.Errorf("failed to list interface addresses: %w", err)
	}

	var ips []string
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipNet.IP.To4()
		if ip == nil || ip.IsLinkLocalUnicast() {
			continue
		}
		ips = append(ips, ip.String())
	}
	return ips, nil
}

// ListeningAddresses returns the URLs under which the server is reachable.
func (s *Server) ListeningAddresses() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	urls := make([]string, len(s.addresses))
	for i, addr := range s.addresses {
		urls[i] = "http://" + addr + "/"
	}
	return urls
}

// Start binds every address and serves until ctx is done. Bind failures are
// returned before any request is served.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrServerRunning
	}

	listeners, err := s.listen()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("server failed to start: %w", err)
	}

	s.servers = make([]*http.Server, 0, len(listeners))
	s.addresses = make([]string, 0, len(listeners))
	for _, l := range listeners {
		srv := &http.Server{
			Handler:      s.handler,
			ReadTimeout:  s.config.ReadTimeout,
			WriteTimeout: s.config.WriteTimeout,
		}
		srv.SetKeepAlivesEnabled(false)
		s.servers = append(s.servers, srv)
		s.addresses = append(s.addresses, l.Addr().String())
	}
	s.running = true
	servers := s.servers
	s.mu.Unlock()

	for _, url := range s.ListeningAddresses() {
		s.logger.Info("listening", slog.String("url", url))
	}

	errCh := make(chan error, len(servers))
	for i, srv := range servers {
		go func(srv *http.Server, l net.Listener) {
			if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}(srv, listeners[i])
	}

	select {
	case err := <-errCh:
		s.Shutdown()
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
		return s.Shutdown()
	}
}

func (s *Server) listen() ([]net.Listener, error) {
	hosts := []string{s.config.Host}
	if s.config.Host == "" {
		ips, err := BindAddresses()
		if err != nil {
			return nil, err
		}
		if len(ips) == 0 {
			return nil, errors.New("no IPv4 interface address to bind")
		}
		hosts = ips
	}

	port := strconv.Itoa(s.config.Port)
	listeners := make([]net.Listener, 0, len(hosts))
	for _, h := range hosts {
		l, err := net.Listen("tcp4", net.JoinHostPort(h, port))
		if err != nil {
			for _, open := range listeners {
				open.Close()
			}
			return nil, err
		}
		listeners = append(listeners, l)
	}
	return listeners, nil
}

// Shutdown gracefully stops every listener.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	servers := s.servers
	s.running = false
	s.servers = nil
	s.addresses = nil
	s.mu.Unlock()

	s.logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	var errs []error
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("server shutdown complete")
	return nil
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.config.Port
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before writing.
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
