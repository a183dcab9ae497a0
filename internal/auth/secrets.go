package auth

import (
	"context"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// Default Secret Manager secret IDs for the OAuth credentials.
const (
	DefaultClientIDSecret     = "slides-mirror-client-id"
	DefaultClientSecretSecret = "slides-mirror-client-secret"
	DefaultRefreshTokenSecret = "slides-mirror-refresh-token"
)

// SecretAccessor reads the payload of a fully qualified secret version.
type SecretAccessor interface {
	Access(ctx context.Context, name string) ([]byte, error)
	Close() error
}

type clientAccessor struct {
	client *secretmanager.Client
}

func (a *clientAccessor) Access(ctx context.Context, name string) ([]byte, error) {
	result, err := a.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: name,
	})
	if err != nil {
		return nil, err
	}
	return result.GetPayload().GetData(), nil
}

func (a *clientAccessor) Close() error {
	return a.client.Close()
}

// SecretLoader loads secrets from Google Secret Manager.
type SecretLoader struct {
	accessor  SecretAccessor
	projectID string
}

// NewSecretLoader creates a SecretLoader backed by a Secret Manager client.
func NewSecretLoader(ctx context.Context, projectID string) (*SecretLoader, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret manager client: %w", err)
	}
	return NewSecretLoaderWithAccessor(&clientAccessor{client: client}, projectID), nil
}

// NewSecretLoaderWithAccessor creates a SecretLoader over accessor.
func NewSecretLoaderWithAccessor(accessor SecretAccessor, projectID string) *SecretLoader {
	return &SecretLoader{accessor: accessor, projectID: projectID}
}

// Close closes the underlying client.
func (l *SecretLoader) Close() error {
	return l.accessor.Close()
}

// GetSecret retrieves the latest version of secretID.
func (l *SecretLoader) GetSecret(ctx context.Context, secretID string) (string, error) {
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", l.projectID, secretID)
	data, err := l.accessor.Access(ctx, name)
	if err != nil {
		return "", fmt.Errorf("failed to access secret %s: %w", secretID, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// LoadCredentials loads the OAuth client and refresh token from the default
// secret IDs. Values already set in base are kept.
func (l *SecretLoader) LoadCredentials(ctx context.Context, base Credentials) (Credentials, error) {
	fields := []struct {
		secretID string
		value    *string
	}{
		{DefaultClientIDSecret, &base.ClientID},
		{DefaultClientSecretSecret, &base.ClientSecret},
		{DefaultRefreshTokenSecret, &base.RefreshToken},
	}
	for _, f := range fields {
		if *f.value != "" {
			continue
		}
		v, err := l.GetSecret(ctx, f.secretID)
		if err != nil {
			return Credentials{}, err
		}
		*f.value = v
	}
	return base, nil
}
