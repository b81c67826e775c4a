package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/MagnunAVF/shortlink/internal"
	"github.com/MagnunAVF/shortlink/internal/redirect"
	"github.com/MagnunAVF/shortlink/internal/shorten"
)

type shortenResponse struct {
	ShortURL  string     `json:"short_url"`
	Code      string     `json:"code"`
	TargetURL string     `json:"target_url"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type statsResponse struct {
	Code          string                `json:"code"`
	TargetURL     string                `json:"target_url"`
	ClickCount    int64                 `json:"click_count"`
	CreatedAt     time.Time             `json:"created_at"`
	LastClickedAt *time.Time            `json:"last_clicked_at"`
	ExpiresAt     *time.Time            `json:"expires_at,omitempty"`
	Daily         []internal.ClickDaily `json:"daily"`
}

func handleHealth(d Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		if err := d.Links.Ping(ctx); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	}
}

func handleRedirect(d Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Params and headers point into fasthttp buffers that are reused once
		// the handler returns; the click is recorded after that.
		code := utils.CopyString(c.Params("short_code"))
		userAgent := utils.CopyString(c.Get(fiber.HeaderUserAgent))
		if userAgent == "" {
			userAgent = "Unknown"
		}

		target, err := d.Redirector.Visit(c.UserContext(), code, redirect.Visitor{
			UserAgent: userAgent,
			Referer:   utils.CopyString(c.Get(fiber.HeaderReferer)),
			IP:        utils.CopyString(c.IP()),
		})
		if err != nil {
			return writeError(c, err)
		}

		return c.Redirect(target, d.RedirectStatus)
	}
}

func handleShorten(d Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req shorten.Request
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
		}
		if strings.TrimSpace(req.URL) == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "URL cannot be empty"})
		}

		link, created, err := d.Shortener.Shorten(c.UserContext(), req)
		if err != nil {
			return writeError(c, err)
		}

		status := fiber.StatusOK
		if created {
			status = fiber.StatusCreated
		}
		return c.Status(status).JSON(shortenResponse{
			ShortURL:  fmt.Sprintf("%s/%s", d.AppDomain, link.Code),
			Code:      link.Code,
			TargetURL: link.TargetURL,
			ExpiresAt: link.ExpiresAt,
		})
	}
}

func handleGetStats(d Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		code := internal.NormalizeCode(c.Params("short_code"))
		if code == "" {
			return writeError(c, internal.ErrNotFound)
		}
		ctx := c.UserContext()

		link, err := d.Links.FindByCode(ctx, code)
		if err != nil {
			return writeError(c, err)
		}
		daily, err := d.Links.DailyClicks(ctx, code, d.StatsDays, time.Now())
		if err != nil {
			return writeError(c, err)
		}
		if daily == nil {
			daily = []internal.ClickDaily{}
		}

		return c.JSON(statsResponse{
			Code:          link.Code,
			TargetURL:     link.TargetURL,
			ClickCount:    link.ClickCount,
			CreatedAt:     link.CreatedAt,
			LastClickedAt: link.LastClickedAt,
			ExpiresAt:     link.ExpiresAt,
			Daily:         daily,
		})
	}
}
