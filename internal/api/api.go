// Package api is the public HTTP surface of the shortener.
package api

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/MagnunAVF/shortlink/internal"
	"github.com/MagnunAVF/shortlink/internal/logger"
	"github.com/MagnunAVF/shortlink/internal/redirect"
	"github.com/MagnunAVF/shortlink/internal/shorten"
)

const defaultStatsDays = 7

type Redirector interface {
	Visit(ctx context.Context, code string, v redirect.Visitor) (string, error)
}

type Shortener interface {
	Shorten(ctx context.Context, req shorten.Request) (*internal.ShortLink, bool, error)
}

type LinkReader interface {
	FindByCode(ctx context.Context, code string) (*internal.ShortLink, error)
	DailyClicks(ctx context.Context, code string, days int, now time.Time) ([]internal.ClickDaily, error)
	Ping(ctx context.Context) error
}

type Deps struct {
	Redirector Redirector
	Shortener  Shortener
	Links      LinkReader

	AppDomain      string
	RedirectStatus int
	// StatsDays is how many days of rollup GET /stats returns; 7 when zero.
	StatsDays int
}

// New builds the fiber app with every route mounted.
func New(d Deps) *fiber.App {
	if d.RedirectStatus == 0 {
		d.RedirectStatus = fiber.StatusFound
	}
	if d.StatsDays <= 0 {
		d.StatsDays = defaultStatsDays
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		UnescapePath:          true,
		ErrorHandler:          errorHandler,
	})
	app.Use(logger.FiberMiddleware())
	app.Use(recover.New())
	app.Use(cors.New())

	app.Get("/healthz", handleHealth(d))
	app.Post("/shorten", handleShorten(d))
	app.Get("/stats/:short_code", handleGetStats(d))
	app.Get("/:short_code", handleRedirect(d))

	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
}

// writeError maps domain errors onto status codes and JSON bodies.
func writeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, internal.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Short URL not found"})
	case errors.Is(err, internal.ErrLinkExpired):
		return c.Status(fiber.StatusGone).JSON(fiber.Map{"error": "Short URL expired"})
	case errors.Is(err, internal.ErrInvalidURL),
		errors.Is(err, internal.ErrInvalidCode),
		errors.Is(err, internal.ErrInvalidExpiry):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, internal.ErrCodeTaken):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Short code already taken"})
	case errors.Is(err, internal.ErrPersistenceUnavailable):
		logger.FromContext(c.UserContext()).Error("DB error", "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	default:
		logger.FromContext(c.UserContext()).Error("request failed", "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}
}
