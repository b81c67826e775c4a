package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MagnunAVF/shortlink/internal/api"
	"github.com/MagnunAVF/shortlink/internal/cache"
	"github.com/MagnunAVF/shortlink/internal/clicks"
	"github.com/MagnunAVF/shortlink/internal/config"
	"github.com/MagnunAVF/shortlink/internal/idgen"
	applog "github.com/MagnunAVF/shortlink/internal/logger"
	"github.com/MagnunAVF/shortlink/internal/redirect"
	"github.com/MagnunAVF/shortlink/internal/shorten"
	"github.com/MagnunAVF/shortlink/internal/store"
)

func main() {
	config.LoadDotEnv()
	applog.Init(config.Logging("api-service"))

	if err := run(); err != nil {
		slog.Error("API Service failed", "err", err)
		os.Exit(1)
	}
	slog.Info("API Service stopped")
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx := context.Background()

	st, err := store.Open(cfg.DBDriver, cfg.DBURL, applog.NewGormLogger(cfg.GormLogLevel))
	if err != nil {
		return fmt.Errorf("unable to connect to database: %w", err)
	}
	defer st.Close()

	slog.Info("Running GORM Auto-Migration...")
	if err := st.Migrate(); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	slog.Info("Migration complete.")

	var urlCache redirect.Cache
	if cfg.RedisAddr != "" {
		c, err := cache.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer c.Close()
		urlCache = c
	} else {
		slog.Warn("REDIS_ADDR not set, resolving without cache")
	}

	var recorder clicks.Recorder
	switch cfg.ClickRecorder {
	case config.RecorderQueue:
		broker, err := clicks.Dial(cfg.RabbitMQURL, cfg.ClickQueue)
		if err != nil {
			return err
		}
		defer broker.Close()
		recorder = clicks.NewQueueRecorder(broker.Channel, broker.Queue.Name)
	default:
		recorder = clicks.NewDirectRecorder(st)
	}

	var ids idgen.Source
	if cfg.IDServiceURL != "" {
		ids = idgen.NewClient(cfg.IDServiceURL, 3*time.Second)
	} else {
		gen, err := idgen.NewGenerator(cfg.NodeID)
		if err != nil {
			return fmt.Errorf("failed to create ID generator: %w", err)
		}
		ids = gen
	}

	visits := redirect.NewService(redirect.NewResolver(st, urlCache, cfg.CacheTTL), recorder, cfg.RecordTimeout)
	// Runs after Listen returns, before the deferred closes above.
	defer visits.Wait()

	app := api.New(api.Deps{
		Redirector:     visits,
		Shortener:      shorten.NewService(st, ids),
		Links:          st,
		AppDomain:      cfg.AppDomain,
		RedirectStatus: cfg.RedirectStatus,
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)
	go func() {
		<-sig
		slog.Info("Shutting down API Service")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			slog.Error("Shutdown failed", "err", err)
		}
	}()

	slog.Info("Starting API Service",
		"port", cfg.APIPort,
		"click_recorder", cfg.ClickRecorder,
		"redirect_status", cfg.RedirectStatus,
	)
	// Listen returns nil after a requested shutdown; any error means the
	// server never started or died.
	if err := app.Listen(cfg.APIPort); err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.APIPort, err)
	}
	return nil
}
