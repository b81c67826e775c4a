package redirect

import (
	"context"
	"sync"
	"time"

	"github.com/MagnunAVF/shortlink/internal"
	"github.com/MagnunAVF/shortlink/internal/clicks"
	"github.com/MagnunAVF/shortlink/internal/logger"
)

// Visitor describes who followed the link.
type Visitor struct {
	UserAgent string
	Referer   string
	IP        string
}

// Service resolves codes and hands each hit to a click recorder on its own
// goroutine. Recording is bounded by a timeout, and a failed or slow recording
// is logged and dropped, never retried.
type Service struct {
	resolver      *Resolver
	recorder      clicks.Recorder
	recordTimeout time.Duration
	now           func() time.Time

	inflight sync.WaitGroup
}

func NewService(resolver *Resolver, recorder clicks.Recorder, recordTimeout time.Duration) *Service {
	return &Service{
		resolver:      resolver,
		recorder:      recorder,
		recordTimeout: recordTimeout,
		now:           time.Now,
	}
}

// Visit resolves code and, on a hit, schedules the click before returning the
// target. It does not wait for the click to be stored.
func (s *Service) Visit(ctx context.Context, code string, v Visitor) (string, error) {
	target, err := s.resolver.Resolve(ctx, code)
	if err != nil {
		return "", err
	}

	s.record(ctx, clicks.Event{
		ShortCode: internal.NormalizeCode(code),
		Timestamp: s.now().UTC(),
		UserAgent: v.UserAgent,
		Referer:   v.Referer,
		IP:        v.IP,
	})

	return target, nil
}

func (s *Service) record(ctx context.Context, ev clicks.Event) {
	// Keep request scoped values such as the request id, drop the cancellation:
	// the request is over long before the click lands.
	log := logger.FromContext(ctx).With("short_code", ev.ShortCode)
	rctx := logger.IntoContext(context.WithoutCancel(ctx), log)

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer func() {
			if p := recover(); p != nil {
				log.Error("click recorder panicked", "panic", p)
			}
		}()

		ctx, cancel := context.WithTimeout(rctx, s.recordTimeout)
		defer cancel()

		if err := s.recorder.Record(ctx, ev); err != nil {
			log.Warn("click not recorded", "err", err)
		}
	}()
}

// Wait blocks until every scheduled recording has finished or timed out.
// Call it after the HTTP server stopped accepting requests.
func (s *Service) Wait() {
	s.inflight.Wait()
}
