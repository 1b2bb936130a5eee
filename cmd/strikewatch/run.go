package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/strikewatch/internal/analyzer"
	"github.com/rewired-gh/strikewatch/internal/config"
	"github.com/rewired-gh/strikewatch/internal/feed"
	"github.com/rewired-gh/strikewatch/internal/logger"
	"github.com/rewired-gh/strikewatch/internal/models"
	"github.com/rewired-gh/strikewatch/internal/monitor"
	"github.com/rewired-gh/strikewatch/internal/publish"
	"github.com/rewired-gh/strikewatch/internal/server"
	"github.com/rewired-gh/strikewatch/internal/storage"
	"github.com/rewired-gh/strikewatch/internal/telegram"
	"github.com/rewired-gh/strikewatch/internal/ws"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Poll the feed and serve the live view",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runService(cmd.Context(), cfg)
		},
	}
}

func runService(ctx context.Context, cfg *config.Config) error {
	store, err := storage.New(cfg.Storage.MaxCycles, cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	feedClient := feed.NewClient(
		cfg.Feed.BaseURL,
		cfg.Feed.Path,
		cfg.Feed.Token,
		cfg.Feed.Timeout,
		feed.ClientConfig{
			MaxRetries:          cfg.Feed.MaxRetries,
			RetryDelayBase:      cfg.Feed.RetryDelayBase,
			RatePerSec:          cfg.Feed.RatePerSec,
			MaxIdleConns:        cfg.Feed.MaxIdleConns,
			MaxIdleConnsPerHost: cfg.Feed.MaxIdleConnsPerHost,
			IdleConnTimeout:     cfg.Feed.IdleConnTimeout,
		},
	)

	controller := monitor.NewController(cfg.Policy(), cfg.SignalRule())
	if cfg.Analyzer.DefaultSort != "" {
		controller.SetDefaultSort(analyzer.SortConfig{Field: models.Field(cfg.Analyzer.DefaultSort), Ascending: true})
	}

	opts := []monitor.Option{monitor.WithRecorder(store)}

	if cfg.Analyzer.Bell {
		opts = append(opts, monitor.WithNotifier(monitor.NewBellNotifier(os.Stderr)))
	}

	if cfg.Telegram.Enabled {
		telegramClient, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			return fmt.Errorf("failed to initialize Telegram client: %w", err)
		}
		telegramClient.ListenForCommands(ctx)
		opts = append(opts, monitor.WithNotifier(telegramClient))
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	if cfg.Redis.Enabled {
		pub, err := publish.NewRedisPublisher(cfg.Redis.URL, cfg.Redis.Key, cfg.Redis.Channel, cfg.Redis.TTL)
		if err != nil {
			return err
		}
		defer pub.Close()
		if err := pub.Ping(ctx); err != nil {
			logger.Warn("Redis is not reachable yet: %v", err)
		}
		opts = append(opts, monitor.WithBroadcaster(pub))
		logger.Info("Publishing views to Redis (key: %s, channel: %s)", cfg.Redis.Key, cfg.Redis.Channel)
	}

	var httpServer *http.Server
	if cfg.Server.Enabled {
		hub := ws.NewHub(logger.Z())
		go hub.Run(ctx)
		opts = append(opts, monitor.WithBroadcaster(hub))

		srv := server.NewServer(controller, store, hub.ServeWS, logger.Z())
		httpServer = &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      server.NewRouter(srv, cfg.Server.CORSOrigins),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}
		go func() {
			logger.Info("Starting HTTP server on %s", httpServer.Addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error: %v", err)
			}
		}()
	}

	mon := monitor.New(feedClient, controller, opts...)

	logger.Info("Starting poll loop (interval: %v, feed: %s%s, incomplete strikes: %s)",
		cfg.Feed.PollInterval,
		cfg.Feed.BaseURL,
		cfg.Feed.Path,
		cfg.Policy(),
	)
	mon.Run(ctx, cfg.Feed.PollInterval)

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP server shutdown: %v", err)
		}
	}

	logger.Info("Service stopped")
	return nil
}
