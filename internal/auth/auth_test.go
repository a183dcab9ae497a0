package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type mockAccessor struct {
	AccessFunc func(ctx context.Context, name string) ([]byte, error)
	closed     bool
}

func (m *mockAccessor) Access(ctx context.Context, name string) ([]byte, error) {
	return m.AccessFunc(ctx, name)
}

func (m *mockAccessor) Close() error {
	m.closed = true
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTokenSource(t *testing.T) {
	_, err := TokenSource(context.Background(), Credentials{RefreshToken: "r"})
	assert.ErrorIs(t, err, ErrIncompleteCredentials)

	ts, err := TokenSource(context.Background(), Credentials{
		ClientID:     "id",
		ClientSecret: "secret",
		RefreshToken: "r",
	})
	require.NoError(t, err)
	assert.NotNil(t, ts)
}

func TestOAuth2Config(t *testing.T) {
	c := Credentials{ClientID: "id", ClientSecret: "secret"}.OAuth2Config("http://127.0.0.1:1/callback")

	assert.Equal(t, "id", c.ClientID)
	assert.Equal(t, "secret", c.ClientSecret)
	assert.Equal(t, "http://127.0.0.1:1/callback", c.RedirectURL)
	assert.Equal(t, DefaultScopes, c.Scopes)
}

func TestSecretLoaderLoadCredentials(t *testing.T) {
	var requested []string
	accessor := &mockAccessor{AccessFunc: func(ctx context.Context, name string) ([]byte, error) {
		requested = append(requested, name)
		switch {
		case strings.Contains(name, DefaultClientSecretSecret):
			return []byte("secret\n"), nil
		case strings.Contains(name, DefaultRefreshTokenSecret):
			return []byte("refresh"), nil
		}
		return nil, errors.New("unexpected secret")
	}}
	loader := NewSecretLoaderWithAccessor(accessor, "my-project")

	creds, err := loader.LoadCredentials(context.Background(), Credentials{ClientID: "from-flag"})
	require.NoError(t, err)

	assert.Equal(t, Credentials{ClientID: "from-flag", ClientSecret: "secret", RefreshToken: "refresh"}, creds)
	assert.Equal(t, []string{
		"projects/my-project/secrets/slides-mirror-client-secret/versions/latest",
		"projects/my-project/secrets/slides-mirror-refresh-token/versions/latest",
	}, requested)

	require.NoError(t, loader.Close())
	assert.True(t, accessor.closed)
}

func TestSecretLoaderError(t *testing.T) {
	denied := errors.New("permission denied")
	loader := NewSecretLoaderWithAccessor(&mockAccessor{AccessFunc: func(ctx context.Context, name string) ([]byte, error) {
		return nil, denied
	}}, "p")

	_, err := loader.LoadCredentials(context.Background(), Credentials{})

	assert.ErrorIs(t, err, denied)
	assert.Contains(t, err.Error(), DefaultClientIDSecret)
}

func newTokenServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestFlow(t *testing.T, tokenBody string) *LoginFlow {
	t.Helper()
	srv := newTokenServer(t, tokenBody)
	return NewLoginFlow(LoginConfig{
		Credentials: Credentials{ClientID: "id", ClientSecret: "secret"},
		ListenAddr:  "127.0.0.1:0",
		Endpoint:    oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"},
		Logger:      discardLogger(),
	})
}

func TestLoginFlowAuthURL(t *testing.T) {
	flow := newTestFlow(t, `{}`)

	authURL, err := flow.AuthURL()
	require.NoError(t, err)

	assert.Contains(t, authURL, "access_type=offline")
	assert.Contains(t, authURL, "prompt=consent")
	state, err := StateFromURL(authURL)
	require.NoError(t, err)
	assert.NotEmpty(t, state)
	assert.Equal(t, "http://127.0.0.1:0/callback", flow.RedirectURL())
}

func TestLoginFlowCallback(t *testing.T) {
	tests := []struct {
		name      string
		tokenBody string
		query     func(state string) string
		wantCode  int
		wantErr   error
	}{
		{
			name:     "provider error",
			query:    func(state string) string { return "?error=access_denied&state=" + state },
			wantCode: http.StatusBadRequest,
			wantErr:  ErrLoginFailed,
		},
		{
			name:     "invalid state",
			query:    func(state string) string { return "?state=forged&code=c" },
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "missing code",
			query:    func(state string) string { return "?state=" + state },
			wantCode: http.StatusBadRequest,
		},
		{
			name:      "no refresh token",
			tokenBody: `{"access_token":"a","token_type":"Bearer","expires_in":3600}`,
			query:     func(state string) string { return "?state=" + state + "&code=c" },
			wantCode:  http.StatusInternalServerError,
			wantErr:   ErrLoginFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := tt.tokenBody
			if body == "" {
				body = `{}`
			}
			flow := newTestFlow(t, body)
			authURL, err := flow.AuthURL()
			require.NoError(t, err)
			state, err := StateFromURL(authURL)
			require.NoError(t, err)

			w := httptest.NewRecorder()
			flow.HandleCallback(w, httptest.NewRequest(http.MethodGet, "/callback"+tt.query(state), nil))

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantErr != nil {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_, err := flow.Wait(ctx)
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestLoginFlowSuccess(t *testing.T) {
	flow := newTestFlow(t, `{"access_token":"a","refresh_token":"r","token_type":"Bearer","expires_in":3600}`)
	authURL, err := flow.AuthURL()
	require.NoError(t, err)
	state, err := StateFromURL(authURL)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	flow.HandleCallback(w, httptest.NewRequest(http.MethodGet, "/callback?state="+state+"&code=c", nil))
	require.Equal(t, http.StatusOK, w.Code)

	token, err := flow.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "r", token.RefreshToken)

	// The state is single use.
	w = httptest.NewRecorder()
	flow.HandleCallback(w, httptest.NewRequest(http.MethodGet, "/callback?state="+state+"&code=c", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginFlowWaitCanceled(t *testing.T) {
	flow := newTestFlow(t, `{}`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := flow.Wait(ctx)

	assert.ErrorIs(t, err, context.Canceled)
}
