package redirect

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MagnunAVF/shortlink/internal"
	"github.com/MagnunAVF/shortlink/internal/clicks"
	"github.com/MagnunAVF/shortlink/internal/logger"
)

// tracingStore logs through the context logger, the way the GORM adapter does.
type tracingStore struct{ *fakeStore }

func (s tracingStore) FindByCode(ctx context.Context, code string) (*internal.ShortLink, error) {
	logger.FromContext(ctx).Info("store lookup")
	return s.fakeStore.FindByCode(ctx, code)
}

func TestVisitScopesLogsToCode(t *testing.T) {
	out := filepath.Join(t.TempDir(), "redirect.log")
	logger.Init(logger.Config{Level: "info", Output: out, Service: "redirect-test"})

	store := tracingStore{newFakeStore(&internal.ShortLink{Code: "abc", TargetURL: "https://example.com/"})}
	rec := recorderFunc(func(ctx context.Context, _ clicks.Event) error {
		logger.FromContext(ctx).Info("recording click")
		return nil
	})
	svc := NewService(NewResolver(store, nil, time.Hour), rec, time.Second)

	ctx := logger.WithRequestID(context.Background(), "req-1")
	_, err := svc.Visit(ctx, " abc ", Visitor{})
	require.NoError(t, err)
	svc.Wait()

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()

	seen := map[string]map[string]any{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var line map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &line))
		seen[line["msg"].(string)] = line["data"].(map[string]any)
	}

	for _, msg := range []string{"store lookup", "recording click"} {
		data, ok := seen[msg]
		require.True(t, ok, "missing %q", msg)
		assert.Equal(t, "abc", data["short_code"], msg)
		assert.Equal(t, "req-1", data["request_id"], msg)
	}
}
