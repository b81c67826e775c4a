// Package clicks records visits to short links, either straight into the
// store or through a RabbitMQ queue drained by the analytics worker.
package clicks

import (
	"context"
	"time"
)

// Event is one successful resolution of a short code.
type Event struct {
	ShortCode string    `json:"short_code"`
	Timestamp time.Time `json:"timestamp"`
	UserAgent string    `json:"user_agent"`
	Referer   string    `json:"referer,omitempty"`
	IP        string    `json:"ip,omitempty"`
}

// Recorder accounts for one click. Implementations must be safe for
// concurrent use.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Incrementer is the store operation behind DirectRecorder.
type Incrementer interface {
	IncrementClickCount(ctx context.Context, code string, n int64, at time.Time) error
}

// DirectRecorder bumps the counter in the database for every click.
type DirectRecorder struct {
	store Incrementer
}

func NewDirectRecorder(store Incrementer) *DirectRecorder {
	return &DirectRecorder{store: store}
}

func (r *DirectRecorder) Record(ctx context.Context, ev Event) error {
	return r.store.IncrementClickCount(ctx, ev.ShortCode, 1, ev.Timestamp)
}
