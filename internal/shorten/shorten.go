// Package shorten creates short links.
package shorten

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/MagnunAVF/shortlink/internal"
	"github.com/MagnunAVF/shortlink/internal/idgen"
)

type Store interface {
	FindByCode(ctx context.Context, code string) (*internal.ShortLink, error)
	FindByTargetURL(ctx context.Context, targetURL string) (*internal.ShortLink, error)
	Create(ctx context.Context, link *internal.ShortLink) error
}

// maxExpiresIn is the longest lifetime, in seconds, that fits a time.Duration.
const maxExpiresIn = math.MaxInt64 / int64(time.Second)

type Request struct {
	URL        string `json:"url"`
	CustomCode string `json:"custom_code,omitempty"`
	// ExpiresIn is a lifetime in seconds; 0 means the link never expires.
	ExpiresIn int64 `json:"expires_in,omitempty"`
}

type Service struct {
	store Store
	ids   idgen.Source
	now   func() time.Time
}

func NewService(store Store, ids idgen.Source) *Service {
	return &Service{store: store, ids: ids, now: time.Now}
}

// Shorten stores a link for req.URL. Plain requests are idempotent: the same
// normalized target returns the link created first, with created=false.
func (s *Service) Shorten(ctx context.Context, req Request) (link *internal.ShortLink, created bool, err error) {
	target, err := internal.NormalizeURL(req.URL)
	if err != nil {
		return nil, false, err
	}
	if req.ExpiresIn < 0 {
		return nil, false, fmt.Errorf("%w: expires_in must not be negative", internal.ErrInvalidExpiry)
	}
	if req.ExpiresIn > maxExpiresIn {
		return nil, false, fmt.Errorf("%w: expires_in must be at most %d seconds", internal.ErrInvalidExpiry, maxExpiresIn)
	}

	custom := internal.NormalizeCode(req.CustomCode)
	if custom == "" && req.ExpiresIn == 0 {
		existing, err := s.store.FindByTargetURL(ctx, target)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, internal.ErrNotFound) {
			return nil, false, err
		}
	}

	if custom != "" {
		if err := internal.ValidateCustomCode(custom); err != nil {
			return nil, false, err
		}
		_, err := s.store.FindByCode(ctx, custom)
		if err == nil {
			return nil, false, fmt.Errorf("%w: %s", internal.ErrCodeTaken, custom)
		}
		if !errors.Is(err, internal.ErrNotFound) {
			return nil, false, err
		}
	}

	id, err := s.ids.NextID(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("generate id: %w", err)
	}

	code := custom
	if code == "" {
		code = internal.EncodeID(id)
	}

	now := s.now().UTC()
	link = &internal.ShortLink{
		// Snowflake IDs keep the top bit clear, so this never goes negative.
		ID:        int64(id),
		Code:      code,
		TargetURL: target,
		CreatedAt: now,
	}
	if req.ExpiresIn > 0 {
		exp := now.Add(time.Duration(req.ExpiresIn) * time.Second)
		link.ExpiresAt = &exp
	}

	if err := s.store.Create(ctx, link); err != nil {
		return nil, false, err
	}
	return link, true, nil
}
