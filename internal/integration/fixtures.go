package integration

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/smorand/slides-mirror/internal/auth"
	"github.com/smorand/slides-mirror/internal/cache"
	"github.com/smorand/slides-mirror/internal/googleslides"
	"github.com/smorand/slides-mirror/internal/session"
)

// Environment variable names for integration tests.
const (
	EnvIntegrationTest    = "INTEGRATION_TEST"
	EnvGoogleClientID     = "GOOGLE_CLIENT_ID"
	EnvGoogleClientSecret = "GOOGLE_CLIENT_SECRET"
	EnvGoogleRefreshToken = "GOOGLE_REFRESH_TOKEN"
	EnvTestPresentationID = "TEST_PRESENTATION_ID"
)

const setupTimeout = 2 * time.Minute

// TestConfig holds configuration for integration tests.
type TestConfig struct {
	Credentials        auth.Credentials
	TestPresentationID string
}

// SkipIfNoIntegration skips the test if integration tests are not enabled.
func SkipIfNoIntegration(t *testing.T) {
	t.Helper()
	if os.Getenv(EnvIntegrationTest) != "1" {
		t.Skip("Integration tests are disabled. Set INTEGRATION_TEST=1 to enable.")
	}
}

// LoadConfig loads test configuration from environment variables.
func LoadConfig(t *testing.T) *TestConfig {
	t.Helper()

	creds := auth.Credentials{
		ClientID:     os.Getenv(EnvGoogleClientID),
		ClientSecret: os.Getenv(EnvGoogleClientSecret),
		RefreshToken: os.Getenv(EnvGoogleRefreshToken),
	}
	presentationID := os.Getenv(EnvTestPresentationID)

	if creds.ClientID == "" || creds.ClientSecret == "" || creds.RefreshToken == "" || presentationID == "" {
		t.Skipf("Missing required environment variables (%s, %s, %s, %s)",
			EnvGoogleClientID, EnvGoogleClientSecret, EnvGoogleRefreshToken, EnvTestPresentationID)
	}

	return &TestConfig{Credentials: creds, TestPresentationID: presentationID}
}

// Fixtures wires the mirror components over the test presentation.
type Fixtures struct {
	Presentation *googleslides.Presentation
	Manager      *cache.Manager
	Session      *session.Session
	Host         *googleslides.Host
}

// NewFixtures opens the test presentation and a session caching into a
// temporary directory.
func NewFixtures(t *testing.T, config *TestConfig) *Fixtures {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tokenSource, err := auth.TokenSource(ctx, config.Credentials)
	if err != nil {
		t.Fatalf("failed to create token source: %v", err)
	}
	service, err := googleslides.NewRealSlidesServiceFactory()(ctx, tokenSource)
	if err != nil {
		t.Fatalf("failed to create slides service: %v", err)
	}
	p, err := googleslides.Open(ctx, googleslides.Config{
		PresentationID: config.TestPresentationID,
		Service:        service,
		Logger:         logger,
	})
	if err != nil {
		t.Fatalf("failed to open presentation: %v", err)
	}

	manager := cache.NewManager(cache.ManagerConfig{Root: t.TempDir(), Logger: logger})
	sess := session.New(session.Config{Manager: manager, Logger: logger})
	h := googleslides.NewHost(googleslides.HostConfig{Presentation: p, Listener: sess, Logger: logger})
	t.Cleanup(func() {
		if _, running := h.Running(); running {
			h.End()
		}
	})

	return &Fixtures{Presentation: p, Manager: manager, Session: sess, Host: h}
}
