// Package config holds the slides mirror configuration and its loading from
// the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment variable read by FromEnv.
const EnvPrefix = "SLIDES_MIRROR_"

const (
	defaultPort          = 8080
	defaultFrontendDir   = "web"
	defaultWatchInterval = 30 * time.Second
	defaultLogLevel      = "info"
	defaultLogFormat     = "text"
	cacheDirName         = "slides-mirror"
)

// Validation errors.
var (
	ErrInvalidPort      = errors.New("port must be between 1 and 65535")
	ErrNoCacheDir       = errors.New("cache directory is required")
	ErrInvalidLogLevel  = errors.New("log level must be one of debug, info, warn, error")
	ErrInvalidLogFormat = errors.New("log format must be text or json")
	ErrInvalidInterval  = errors.New("watch interval must not be negative")
)

// Config holds the application configuration.
type Config struct {
	Port int
	// Host is the address to bind. Empty binds every IPv4 interface except
	// link-local ones.
	Host        string
	CacheDir    string
	FrontendDir string
	// Development re-reads static assets on every request.
	Development bool

	PresentationID string
	// WatchInterval is how often the presentation revision is polled. Zero
	// disables polling.
	WatchInterval time.Duration

	ClientID     string
	ClientSecret string
	RefreshToken string
	// SecretProject loads missing OAuth values from Secret Manager.
	SecretProject string

	LogLevel  string
	LogFormat string

	ClearOnStart bool
}

// Default returns configuration with default values.
func Default() Config {
	return Config{
		Port:          defaultPort,
		CacheDir:      defaultCacheDir(),
		FrontendDir:   defaultFrontendDir,
		WatchInterval: defaultWatchInterval,
		LogLevel:      defaultLogLevel,
		LogFormat:     defaultLogFormat,
	}
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, cacheDirName)
}

// FromEnv returns the defaults overridden by the SLIDES_MIRROR_* variables
// found through getenv.
func FromEnv(getenv func(string) string) (Config, error) {
	c := Default()

	lookup := func(key string) string {
		return strings.TrimSpace(getenv(EnvPrefix + key))
	}
	setString := func(key string, dest *string) {
		if v := lookup(key); v != "" {
			*dest = v
		}
	}
	setInt := func(key string, dest *int) error {
		v := lookup(key)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s must be an integer", EnvPrefix, key)
		}
		*dest = n
		return nil
	}
	setBool := func(key string, dest *bool) error {
		v := lookup(key)
		if v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s%s must be a boolean", EnvPrefix, key)
		}
		*dest = b
		return nil
	}
	setDuration := func(key string, dest *time.Duration) error {
		v := lookup(key)
		if v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s must be a duration", EnvPrefix, key)
		}
		*dest = d
		return nil
	}

	setString("HOST", &c.Host)
	setString("CACHE_DIR", &c.CacheDir)
	setString("FRONTEND_DIR", &c.FrontendDir)
	setString("PRESENTATION_ID", &c.PresentationID)
	setString("GOOGLE_CLIENT_ID", &c.ClientID)
	setString("GOOGLE_CLIENT_SECRET", &c.ClientSecret)
	setString("GOOGLE_REFRESH_TOKEN", &c.RefreshToken)
	setString("SECRET_PROJECT", &c.SecretProject)
	setString("LOG_LEVEL", &c.LogLevel)
	setString("LOG_FORMAT", &c.LogFormat)

	if err := errors.Join(
		setInt("PORT", &c.Port),
		setBool("DEV", &c.Development),
		setBool("CLEAR_ON_START", &c.ClearOnStart),
		setDuration("WATCH_INTERVAL", &c.WatchInterval),
	); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("%w: %d", ErrInvalidPort, c.Port))
	}
	if strings.TrimSpace(c.CacheDir) == "" {
		errs = append(errs, ErrNoCacheDir)
	}
	if c.WatchInterval < 0 {
		errs = append(errs, ErrInvalidInterval)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.LogFormat))
	}
	return errors.Join(errs...)
}
