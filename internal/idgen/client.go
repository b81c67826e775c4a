package idgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
)

const defaultClientTimeout = 3 * time.Second

// Client fetches IDs from a remote id-service.
type Client struct {
	url     string
	timeout time.Duration
}

func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}
	return &Client{url: url, timeout: timeout}
}

type idResponse struct {
	ID uint64 `json:"id"`
}

func (c *Client) NextID(ctx context.Context) (uint64, error) {
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return 0, fmt.Errorf("failed to call ID service: %w", context.DeadlineExceeded)
	}

	code, body, errs := fiber.Get(c.url).Timeout(timeout).Bytes()
	if len(errs) > 0 {
		return 0, fmt.Errorf("failed to call ID service: %w", errors.Join(errs...))
	}
	if code != fiber.StatusOK {
		return 0, fmt.Errorf("ID service returned non-200 status: %d", code)
	}

	var data idResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return 0, fmt.Errorf("failed to decode ID service response: %w", err)
	}
	if data.ID == 0 {
		return 0, errors.New("ID service returned an empty id")
	}

	return data.ID, nil
}
