package redirect

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MagnunAVF/shortlink/internal"
	"github.com/MagnunAVF/shortlink/internal/clicks"
)

type fakeStore struct {
	mu    sync.Mutex
	links map[string]*internal.ShortLink
	err   error
	calls int
}

func newFakeStore(links ...*internal.ShortLink) *fakeStore {
	s := &fakeStore{links: make(map[string]*internal.ShortLink)}
	for _, l := range links {
		s.links[l.Code] = l
	}
	return s
}

func (s *fakeStore) FindByCode(_ context.Context, code string) (*internal.ShortLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	l, ok := s.links[code]
	if !ok {
		return nil, internal.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (s *fakeStore) lookups() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeCache struct {
	entries map[string]string
	ttls    map[string]time.Duration
	getErr  error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (c *fakeCache) Get(_ context.Context, code string) (string, bool, error) {
	if c.getErr != nil {
		return "", false, c.getErr
	}
	v, ok := c.entries[code]
	return v, ok, nil
}

func (c *fakeCache) Set(_ context.Context, code, target string, ttl time.Duration) error {
	c.entries[code] = target
	c.ttls[code] = ttl
	return nil
}

type recorderFunc func(ctx context.Context, ev clicks.Event) error

func (f recorderFunc) Record(ctx context.Context, ev clicks.Event) error { return f(ctx, ev) }

func link(code, target string) *internal.ShortLink {
	return &internal.ShortLink{ID: 1, Code: code, TargetURL: target, CreatedAt: time.Now()}
}

func TestResolveBlankCodeSkipsLookup(t *testing.T) {
	store := newFakeStore(link("abc", "https://example.com"))
	r := NewResolver(store, nil, time.Hour)

	for _, code := range []string{"", " ", "\t\n"} {
		_, err := r.Resolve(context.Background(), code)
		assert.ErrorIs(t, err, internal.ErrNotFound)
	}
	assert.Equal(t, 0, store.lookups())
}

func TestResolve(t *testing.T) {
	store := newFakeStore(link("abc", "https://example.com/page"))
	r := NewResolver(store, nil, time.Hour)

	target, err := r.Resolve(context.Background(), " abc ")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/page", target)

	_, err = r.Resolve(context.Background(), "missing")
	assert.ErrorIs(t, err, internal.ErrNotFound)
}

func TestResolveStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("connection refused")
	r := NewResolver(store, nil, time.Hour)

	_, err := r.Resolve(context.Background(), "abc")
	assert.ErrorIs(t, err, internal.ErrPersistenceUnavailable)
	assert.NotErrorIs(t, err, internal.ErrNotFound)
}

func TestResolveExpired(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	l := link("old", "https://example.com")
	l.ExpiresAt = &past
	r := NewResolver(newFakeStore(l), nil, time.Hour)

	_, err := r.Resolve(context.Background(), "old")
	assert.ErrorIs(t, err, internal.ErrLinkExpired)
}

func TestResolveCacheAside(t *testing.T) {
	store := newFakeStore(link("abc", "https://example.com"))
	cache := newFakeCache()
	r := NewResolver(store, cache, time.Hour)

	for i := 0; i < 3; i++ {
		target, err := r.Resolve(context.Background(), "abc")
		require.NoError(t, err)
		assert.Equal(t, "https://example.com", target)
	}

	assert.Equal(t, 1, store.lookups())
	assert.Equal(t, time.Hour, cache.ttls["abc"])
}

func TestResolveCacheTTLBoundedByExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	exp := now.Add(10 * time.Minute)
	l := link("soon", "https://example.com")
	l.ExpiresAt = &exp

	cache := newFakeCache()
	r := NewResolver(newFakeStore(l), cache, time.Hour)
	r.now = func() time.Time { return now }

	_, err := r.Resolve(context.Background(), "soon")
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, cache.ttls["soon"])
}

func TestResolveCacheErrorFallsBack(t *testing.T) {
	store := newFakeStore(link("abc", "https://example.com"))
	cache := newFakeCache()
	cache.getErr = errors.New("redis down")
	r := NewResolver(store, cache, time.Hour)

	target, err := r.Resolve(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", target)
	assert.Equal(t, 1, store.lookups())
}

func TestVisitRecordsClick(t *testing.T) {
	var got []clicks.Event
	var mu sync.Mutex
	rec := recorderFunc(func(_ context.Context, ev clicks.Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev)
		return nil
	})

	svc := NewService(NewResolver(newFakeStore(link("abc", "https://example.com")), nil, time.Hour), rec, time.Second)

	target, err := svc.Visit(context.Background(), "abc", Visitor{UserAgent: "curl/8", Referer: "https://ref", IP: "1.2.3.4"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", target)

	svc.Wait()
	require.Len(t, got, 1)
	assert.Equal(t, "abc", got[0].ShortCode)
	assert.Equal(t, "curl/8", got[0].UserAgent)
	assert.Equal(t, "https://ref", got[0].Referer)
	assert.Equal(t, "1.2.3.4", got[0].IP)
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestVisitMissDoesNotRecord(t *testing.T) {
	var calls atomic.Int32
	rec := recorderFunc(func(context.Context, clicks.Event) error {
		calls.Add(1)
		return nil
	})
	svc := NewService(NewResolver(newFakeStore(), nil, time.Hour), rec, time.Second)

	_, err := svc.Visit(context.Background(), "nope", Visitor{})
	assert.ErrorIs(t, err, internal.ErrNotFound)

	svc.Wait()
	assert.Equal(t, int32(0), calls.Load())
}

func TestVisitSurvivesRecorderFailure(t *testing.T) {
	rec := recorderFunc(func(context.Context, clicks.Event) error {
		return internal.ErrPersistenceUnavailable
	})
	svc := NewService(NewResolver(newFakeStore(link("abc", "https://example.com")), nil, time.Hour), rec, time.Second)

	target, err := svc.Visit(context.Background(), "abc", Visitor{})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", target)
	svc.Wait()
}

func TestVisitSurvivesRecorderPanic(t *testing.T) {
	rec := recorderFunc(func(context.Context, clicks.Event) error {
		panic("boom")
	})
	svc := NewService(NewResolver(newFakeStore(link("abc", "https://example.com")), nil, time.Hour), rec, time.Second)

	_, err := svc.Visit(context.Background(), "abc", Visitor{})
	require.NoError(t, err)
	svc.Wait()
}

func TestVisitDoesNotWaitForRecorder(t *testing.T) {
	release := make(chan struct{})
	rec := recorderFunc(func(context.Context, clicks.Event) error {
		<-release
		return nil
	})
	svc := NewService(NewResolver(newFakeStore(link("abc", "https://example.com")), nil, time.Hour), rec, time.Minute)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := svc.Visit(context.Background(), "abc", Visitor{})
		assert.NoError(t, err)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Visit blocked on the click recorder")
	}

	close(release)
	svc.Wait()
}

func TestVisitRecorderTimeout(t *testing.T) {
	var deadlineSet atomic.Bool
	rec := recorderFunc(func(ctx context.Context, _ clicks.Event) error {
		_, ok := ctx.Deadline()
		deadlineSet.Store(ok)
		<-ctx.Done()
		return ctx.Err()
	})
	svc := NewService(NewResolver(newFakeStore(link("abc", "https://example.com")), nil, time.Hour), rec, 20*time.Millisecond)

	_, err := svc.Visit(context.Background(), "abc", Visitor{})
	require.NoError(t, err)

	waited := make(chan struct{})
	go func() {
		svc.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatal("slow recording was not abandoned")
	}
	assert.True(t, deadlineSet.Load())
}

func TestVisitOutlivesRequestContext(t *testing.T) {
	errCh := make(chan error, 1)
	rec := recorderFunc(func(ctx context.Context, _ clicks.Event) error {
		time.Sleep(10 * time.Millisecond)
		errCh <- ctx.Err()
		return nil
	})
	svc := NewService(NewResolver(newFakeStore(link("abc", "https://example.com")), nil, time.Hour), rec, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := svc.Visit(ctx, "abc", Visitor{})
	require.NoError(t, err)
	cancel()

	svc.Wait()
	assert.NoError(t, <-errCh)
}
