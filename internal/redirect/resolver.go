// Package redirect turns a short code into its target URL and accounts for
// the visit without making the caller wait for the accounting.
package redirect

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MagnunAVF/shortlink/internal"
	"github.com/MagnunAVF/shortlink/internal/logger"
)

type Store interface {
	FindByCode(ctx context.Context, code string) (*internal.ShortLink, error)
}

type Cache interface {
	Get(ctx context.Context, code string) (target string, ok bool, err error)
	Set(ctx context.Context, code, target string, ttl time.Duration) error
}

// Resolver looks codes up cache first, then in the store. It has no side
// effects on the link itself.
type Resolver struct {
	store Store
	cache Cache
	ttl   time.Duration
	now   func() time.Time
}

// NewResolver builds a resolver; cache may be nil.
func NewResolver(store Store, cache Cache, ttl time.Duration) *Resolver {
	return &Resolver{store: store, cache: cache, ttl: ttl, now: time.Now}
}

// Resolve returns the target URL stored for code.
//
// Blank codes are ErrNotFound without touching the store. A store failure is
// returned wrapped in ErrPersistenceUnavailable and must not be redirected on.
// Cache failures only cost latency: they are logged and the store is asked.
func (r *Resolver) Resolve(ctx context.Context, code string) (string, error) {
	code = internal.NormalizeCode(code)
	if code == "" {
		return "", internal.ErrNotFound
	}
	// Scope the context logger so store traces carry the code.
	log := logger.FromContext(ctx).With("short_code", code)
	ctx = logger.IntoContext(ctx, log)

	if r.cache != nil {
		target, ok, err := r.cache.Get(ctx, code)
		switch {
		case err != nil:
			log.Warn("Error reading cache", "err", err)
		case ok:
			return target, nil
		}
	}

	link, err := r.store.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, internal.ErrNotFound) || errors.Is(err, internal.ErrPersistenceUnavailable) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", internal.ErrPersistenceUnavailable, err)
	}

	now := r.now()
	if link.Expired(now) {
		return "", fmt.Errorf("%w: %s", internal.ErrLinkExpired, code)
	}

	if r.cache != nil {
		ttl := r.ttl
		if link.ExpiresAt != nil {
			if left := link.ExpiresAt.Sub(now); left < ttl {
				ttl = left
			}
		}
		if ttl > 0 {
			if err := r.cache.Set(ctx, code, link.TargetURL, ttl); err != nil {
				log.Warn("Error setting cache", "err", err)
			}
		}
	}

	return link.TargetURL, nil
}
