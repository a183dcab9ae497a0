package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

const (
	stateLength     = 32
	callbackPath    = "/callback"
	shutdownTimeout = 5 * time.Second
)

// ErrLoginFailed is returned when the provider or the code exchange rejects
// the login.
var ErrLoginFailed = errors.New("login failed")

// LoginConfig configures an interactive OAuth2 login.
type LoginConfig struct {
	Credentials Credentials
	// ListenAddr is the loopback address receiving the redirect (default: 127.0.0.1:8085).
	ListenAddr string
	// Endpoint overrides the Google OAuth2 endpoint.
	Endpoint oauth2.Endpoint
	Logger   *slog.Logger
}

type loginResult struct {
	token *oauth2.Token
	err   error
}

// LoginFlow obtains a refresh token through the browser authorization code
// flow with a loopback redirect.
type LoginFlow struct {
	config     *oauth2.Config
	listenAddr string
	logger     *slog.Logger

	mu     sync.Mutex
	states map[string]bool
	result chan loginResult
}

// NewLoginFlow creates a new LoginFlow.
func NewLoginFlow(config LoginConfig) *LoginFlow {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.ListenAddr == "" {
		config.ListenAddr = "127.0.0.1:8085"
	}

	oauthConfig := config.Credentials.OAuth2Config("http://" + config.ListenAddr + callbackPath)
	if config.Endpoint.TokenURL != "" {
		oauthConfig.Endpoint = config.Endpoint
	}

	return &LoginFlow{
		config:     oauthConfig,
		listenAddr: config.ListenAddr,
		logger:     config.Logger,
		states:     make(map[string]bool),
		result:     make(chan loginResult, 1),
	}
}

// AuthURL returns a fresh authorization URL. Offline access with forced
// consent makes Google issue a refresh token every time.
func (f *LoginFlow) AuthURL() (string, error) {
	state, err := generateState()
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}

	f.mu.Lock()
	f.states[state] = true
	f.mu.Unlock()

	return f.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// HandleCallback receives the provider redirect and exchanges the code.
func (f *LoginFlow) HandleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if errParam := q.Get("error"); errParam != "" {
		f.logger.Error("OAuth2 error from provider",
			slog.String("error", errParam),
			slog.String("description", q.Get("error_description")),
		)
		f.finish(nil, fmt.Errorf("%w: %s", ErrLoginFailed, errParam))
		http.Error(w, "Login failed: "+errParam, http.StatusBadRequest)
		return
	}

	state := q.Get("state")
	f.mu.Lock()
	valid := state != "" && f.states[state]
	delete(f.states, state)
	f.mu.Unlock()
	if !valid {
		http.Error(w, "invalid state parameter", http.StatusBadRequest)
		return
	}

	code := q.Get("code")
	if code == "" {
		http.Error(w, "missing authorization code", http.StatusBadRequest)
		return
	}

	token, err := f.config.Exchange(r.Context(), code)
	if err != nil {
		f.logger.Error("failed to exchange code for token", slog.Any("error", err))
		f.finish(nil, fmt.Errorf("%w: %v", ErrLoginFailed, err))
		http.Error(w, "failed to exchange code for token", http.StatusInternalServerError)
		return
	}
	if token.RefreshToken == "" {
		f.finish(nil, fmt.Errorf("%w: no refresh token received", ErrLoginFailed))
		http.Error(w, "no refresh token received", http.StatusInternalServerError)
		return
	}

	f.logger.Info("OAuth2 token obtained", slog.Time("expiry", token.Expiry))
	f.finish(token, nil)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "Login successful. You can close this window.")
}

func (f *LoginFlow) finish(token *oauth2.Token, err error) {
	select {
	case f.result <- loginResult{token: token, err: err}:
	default:
	}
}

// Wait blocks until the callback completed or ctx is done.
func (f *LoginFlow) Wait(ctx context.Context) (*oauth2.Token, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-f.result:
		return res.token, res.err
	}
}

// Run serves the loopback redirect, hands the authorization URL to prompt
// and waits for the login to complete.
func (f *LoginFlow) Run(ctx context.Context, prompt func(authURL string)) (*oauth2.Token, error) {
	l, err := net.Listen("tcp", f.listenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", f.listenAddr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, f.HandleCallback)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go srv.Serve(l)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	authURL, err := f.AuthURL()
	if err != nil {
		return nil, err
	}
	prompt(authURL)
	return f.Wait(ctx)
}

// RedirectURL returns the redirect registered with the provider.
func (f *LoginFlow) RedirectURL() string {
	return f.config.RedirectURL
}

// StateFromURL extracts the state parameter of an authorization URL.
func StateFromURL(authURL string) (string, error) {
	u, err := url.Parse(authURL)
	if err != nil {
		return "", err
	}
	return u.Query().Get("state"), nil
}

func generateState() (string, error) {
	b := make([]byte, stateLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
