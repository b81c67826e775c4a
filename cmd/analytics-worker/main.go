package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/MagnunAVF/shortlink/internal/clicks"
	"github.com/MagnunAVF/shortlink/internal/config"
	applog "github.com/MagnunAVF/shortlink/internal/logger"
	"github.com/MagnunAVF/shortlink/internal/store"
)

func main() {
	config.LoadDotEnv()
	applog.Init(config.Logging("analytics-worker"))

	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Analytics Worker failed", "err", err)
		os.Exit(1)
	}
	slog.Info("Analytics Worker stopped")
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.DBDriver, cfg.DBURL, applog.NewGormLogger(cfg.GormLogLevel))
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Migrate(); err != nil {
		return err
	}

	broker, err := clicks.Dial(cfg.RabbitMQURL, cfg.ClickQueue)
	if err != nil {
		return err
	}
	defer broker.Close()

	// The worker holds at most this many unacked messages at a time.
	if err := broker.Channel.Qos(cfg.WorkerPrefetch, 0, false); err != nil {
		return err
	}

	msgs, err := broker.Channel.Consume(
		broker.Queue.Name, "", false, false, false, false, nil,
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Analytics Worker started. Waiting for click events...",
		"queue", broker.Queue.Name,
		"batch_size", cfg.WorkerBatchSize,
		"flush_interval", cfg.WorkerFlushInterval.String(),
	)

	return clicks.NewConsumer(st, cfg.WorkerBatchSize, cfg.WorkerFlushInterval).Run(ctx, msgs)
}
