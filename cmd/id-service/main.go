// Command id-service hands out Snowflake IDs over HTTP so several api-service
// replicas can mint short codes without coordinating through the database.
package main

import (
	"log/slog"
	"os"

	"github.com/gofiber/fiber/v2"

	"github.com/MagnunAVF/shortlink/internal/config"
	"github.com/MagnunAVF/shortlink/internal/idgen"
	applog "github.com/MagnunAVF/shortlink/internal/logger"
)

func main() {
	config.LoadDotEnv()
	applog.Init(config.Logging("id-service"))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "err", err)
		os.Exit(1)
	}

	gen, err := idgen.NewGenerator(cfg.NodeID)
	if err != nil {
		slog.Error("Failed to create ID generator", "err", err, "node_id", cfg.NodeID)
		os.Exit(1)
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(applog.FiberMiddleware())
	app.Get("/new-id", idgen.Handler(gen))

	slog.Info("Starting ID Service", "port", cfg.IDServicePort, "node_id", cfg.NodeID)
	if err := app.Listen(cfg.IDServicePort); err != nil {
		slog.Error("ID Service failed", "err", err)
		os.Exit(1)
	}
}
