package logger

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const HeaderRequestID = "X-Request-ID"

// FiberMiddleware tags every request with an id (taken from X-Request-ID when
// the caller sent one), exposes it to handlers through c.UserContext() and logs
// the request once it completes.
func FiberMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		requestID := c.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(HeaderRequestID, requestID)
		c.SetUserContext(WithRequestID(c.UserContext(), requestID))

		err := c.Next()
		if err != nil {
			// Run the app error handler now so the logged status is the one sent.
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}
		latency := time.Since(start)

		route := ""
		if r := c.Route(); r != nil {
			route = r.Path
		}

		attrs := []any{
			"request_id", requestID,
			"status", c.Response().StatusCode(),
			"method", c.Method(),
			"path", c.OriginalURL(),
			"route", route,
			"ip", c.IP(),
			"user_agent", c.Get(fiber.HeaderUserAgent),
			"latency_ms", millis(latency),
		}

		if err != nil {
			slog.Error("http request", append(attrs, "err", err.Error())...)
			return nil
		}
		slog.Info("http request", attrs...)
		return nil
	}
}
