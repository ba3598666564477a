package main

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jesusr-db/sangpt/internal/config"
	"github.com/jesusr-db/sangpt/pkg/chatstore"
	"github.com/jesusr-db/sangpt/pkg/eventbus"
	"github.com/jesusr-db/sangpt/pkg/httpapi"
	"github.com/jesusr-db/sangpt/pkg/provider"
	"github.com/jesusr-db/sangpt/pkg/streamcache"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sangpt",
		Short: "Chat backend with resumable streaming responses",
	}
	rootCmd.AddCommand(newServeCmd())
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	var cfgPath string
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat API with resumable SSE streams",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			setupLogging(cfg.Logging)
			return runServer(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "path to YAML config file")
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides config)")
	return cmd
}

func setupLogging(lc config.LoggingConfig) {
	level, err := zerolog.ParseLevel(lc.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if lc.Console {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func runServer(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var store chatstore.Store
	if path := cfg.Database.Path; path != "" {
		dsn, err := chatstore.DSNForFile(path)
		if err != nil {
			return err
		}
		s, err := chatstore.NewSQLiteStore(dsn)
		if err != nil {
			return errors.Wrap(err, "open chat store")
		}
		store = s
		log.Info().Str("path", path).Msg("opened sqlite chat store")
	} else {
		store = chatstore.NewMemoryStore()
		log.Warn().Msg("database.path is empty, using in-memory chat store")
	}
	defer func() { _ = store.Close() }()

	bus, err := eventbus.Build(eventbus.Settings{
		RedisEnabled: cfg.Redis.Enabled,
		RedisAddr:    cfg.Redis.Addr,
		Group:        cfg.Redis.Group,
		Consumer:     cfg.Redis.Consumer,
	})
	if err != nil {
		return errors.Wrap(err, "build event bus")
	}
	defer func() { _ = bus.Close() }()

	streams, err := streamcache.NewRegistry(streamcache.RegistryOptions{
		BaseCtx:       ctx,
		TTL:           cfg.Streams.TTL,
		SweepInterval: cfg.Streams.SweepInterval,
	})
	if err != nil {
		return errors.Wrap(err, "build stream registry")
	}

	providers := provider.NewRegistry(cfg.Providers.Default)
	if err := providers.Add(&provider.EchoEngine{}); err != nil {
		return err
	}
	if err := providers.Add(&provider.ScriptedEngine{Delay: cfg.Providers.ScriptedDelay}); err != nil {
		return err
	}

	svc, err := httpapi.NewService(httpapi.Options{
		BaseCtx:        ctx,
		Store:          store,
		Providers:      providers,
		Bus:            bus,
		Streams:        streams,
		UploadsDir:     cfg.Uploads.Dir,
		MaxUploadBytes: cfg.Uploads.MaxBytes,
	})
	if err != nil {
		return errors.Wrap(err, "build service")
	}

	srv, err := httpapi.NewServer(svc, streams, httpapi.ServerOptions{
		Addr:            cfg.Server.Addr,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return errors.Wrap(err, "build server")
	}
	return srv.Run(ctx)
}
