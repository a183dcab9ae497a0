package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/smorand/slides-mirror/internal/auth"
	"github.com/smorand/slides-mirror/internal/cache"
	"github.com/smorand/slides-mirror/internal/config"
	"github.com/smorand/slides-mirror/internal/googleslides"
	"github.com/smorand/slides-mirror/internal/ratelimit"
	"github.com/smorand/slides-mirror/internal/session"
	"github.com/smorand/slides-mirror/internal/transport"
)

const thumbnailTimeout = 30 * time.Second

var errNoPresentation = errors.New("presentation ID is required")

func newServeCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a presentation and read console commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), *cfg, cmd)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&cfg.PresentationID, "presentation", "p", cfg.PresentationID, "Google Slides presentation ID")
	flags.IntVar(&cfg.Port, "port", cfg.Port, "HTTP port")
	flags.StringVar(&cfg.Host, "host", cfg.Host, "address to bind (default: every IPv4 interface)")
	flags.StringVar(&cfg.FrontendDir, "frontend-dir", cfg.FrontendDir, "static frontend directory")
	flags.BoolVar(&cfg.Development, "dev", cfg.Development, "re-read static assets on every request")
	flags.DurationVar(&cfg.WatchInterval, "watch-interval", cfg.WatchInterval, "presentation revision poll interval (0 disables)")
	flags.BoolVar(&cfg.ClearOnStart, "clear-on-start", cfg.ClearOnStart, "clear the slide cache before serving")
	addCredentialFlags(cmd, cfg)
	return cmd
}

func newClearCacheCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-cache",
		Short: "Remove every cached presentation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			manager := cache.NewManager(cache.ManagerConfig{Root: cfg.CacheDir})
			if err := manager.Clear(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s\n", cfg.CacheDir)
			return nil
		},
	}
}

func newLoginCommand(cfg *config.Config) *cobra.Command {
	var listenAddr string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authorize with Google and print a refresh token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			creds, err := loadCredentials(ctx, *cfg)
			if err != nil {
				return err
			}
			if creds.ClientID == "" || creds.ClientSecret == "" {
				return auth.ErrIncompleteCredentials
			}

			flow := auth.NewLoginFlow(auth.LoginConfig{
				Credentials: creds,
				ListenAddr:  listenAddr,
			})
			out := cmd.OutOrStdout()
			token, err := flow.Run(ctx, func(authURL string) {
				fmt.Fprintf(out, "Open this URL in your browser:\n\n%s\n\n", authURL)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Refresh token (set %sGOOGLE_REFRESH_TOKEN):\n%s\n", config.EnvPrefix, token.RefreshToken)
			return nil
		},
	}
	cmd.Flags().StringVar(&listenAddr, "listen", "127.0.0.1:8085", "loopback address receiving the OAuth redirect")
	addCredentialFlags(cmd, cfg)
	return cmd
}

func addCredentialFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	flags.StringVar(&cfg.ClientID, "client-id", cfg.ClientID, "OAuth client ID")
	flags.StringVar(&cfg.ClientSecret, "client-secret", cfg.ClientSecret, "OAuth client secret")
	flags.StringVar(&cfg.RefreshToken, "refresh-token", cfg.RefreshToken, "OAuth refresh token")
	flags.StringVar(&cfg.SecretProject, "secret-project", cfg.SecretProject, "load missing OAuth values from Secret Manager in this project")
}

func loadCredentials(ctx context.Context, cfg config.Config) (auth.Credentials, error) {
	creds := auth.Credentials{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RefreshToken: cfg.RefreshToken,
	}
	if cfg.SecretProject == "" {
		return creds, nil
	}

	loader, err := auth.NewSecretLoader(ctx, cfg.SecretProject)
	if err != nil {
		return auth.Credentials{}, err
	}
	defer loader.Close()
	return loader.LoadCredentials(ctx, creds)
}

func serve(ctx context.Context, cfg config.Config, cmd *cobra.Command) error {
	if cfg.PresentationID == "" {
		return errNoPresentation
	}
	logger := slog.Default()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	creds, err := loadCredentials(ctx, cfg)
	if err != nil {
		return err
	}
	tokenSource, err := auth.TokenSource(ctx, creds)
	if err != nil {
		return err
	}
	service, err := googleslides.NewRealSlidesServiceFactory()(ctx, tokenSource)
	if err != nil {
		return fmt.Errorf("failed to create slides service: %w", err)
	}
	limiterConfig := ratelimit.DefaultConfig()
	limiterConfig.Logger = logger
	limiter := ratelimit.New(limiterConfig)
	presentation, err := googleslides.Open(ctx, googleslides.Config{
		PresentationID: cfg.PresentationID,
		Service:        service,
		HTTPClient:     &http.Client{Timeout: thumbnailTimeout},
		Limiter:        limiter,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	manager := cache.NewManager(cache.ManagerConfig{Root: cfg.CacheDir, Logger: logger})
	if cfg.ClearOnStart {
		if err := manager.Clear(); err != nil {
			logger.Warn("failed to clear cache", slog.Any("error", err))
		}
	}

	sess := session.New(session.Config{Manager: manager, Logger: logger})
	slideHost := googleslides.NewHost(googleslides.HostConfig{
		Presentation: presentation,
		Listener:     sess,
		Logger:       logger,
	})

	serverConfig := transport.DefaultServerConfig()
	serverConfig.Host = cfg.Host
	serverConfig.Port = cfg.Port
	serverConfig.FrontendDir = cfg.FrontendDir
	serverConfig.Development = cfg.Development
	serverConfig.Logger = logger
	server := transport.NewServer(serverConfig, sess)

	// The mirror keeps caching without HTTP when binding fails.
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("HTTP server unavailable", slog.Any("error", err))
		}
	}()

	watcher := googleslides.NewWatcher(googleslides.WatcherConfig{
		Presentation: presentation,
		Interval:     cfg.WatchInterval,
		OnChange: func(ctx context.Context) {
			if _, err := sess.Recache(); err != nil && !errors.Is(err, session.ErrNoActiveSlideShow) {
				logger.Warn("recache after revision change failed", slog.Any("error", err))
			}
		},
		Logger: logger,
	})
	go watcher.Run(ctx)

	slideHost.Open()
	c := newConsole(consoleConfig{
		In:      cmd.InOrStdin(),
		Out:     cmd.OutOrStdout(),
		Show:    slideHost,
		Session: sess,
		Cache:   manager,
		Server:  server,
		Logger:  logger,
	})
	err = c.Run(ctx)
	if _, running := slideHost.Running(); running {
		slideHost.End()
	}
	return err
}
