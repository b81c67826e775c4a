package clicks

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/MagnunAVF/shortlink/internal"
	"github.com/MagnunAVF/shortlink/internal/store"
)

// Applier persists aggregated click counts.
type Applier interface {
	ApplyClickCounts(ctx context.Context, tallies []store.Tally) (skipped int, err error)
}

// Consumer drains click deliveries and writes them in batches: a batch is
// flushed when it reaches BatchSize or FlushInterval passes, whichever is
// first. Deliveries are acked only after their batch committed.
type Consumer struct {
	store         Applier
	batchSize     int
	flushInterval time.Duration
	applyTimeout  time.Duration

	events     []Event
	deliveries []amqp091.Delivery
}

func NewConsumer(store Applier, batchSize int, flushInterval time.Duration) *Consumer {
	return &Consumer{
		store:         store,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		applyTimeout:  10 * time.Second,
	}
}

// Run blocks until ctx is done or msgs is closed, flushing what it holds
// before returning.
func (c *Consumer) Run(ctx context.Context, msgs <-chan amqp091.Delivery) error {
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.flush()
			return ctx.Err()

		case d, ok := <-msgs:
			if !ok {
				slog.Warn("RabbitMQ channel closed")
				c.flush()
				return nil
			}
			var ev Event
			if err := json.Unmarshal(d.Body, &ev); err != nil || internal.NormalizeCode(ev.ShortCode) == "" {
				slog.Error("Error decoding message. Rejecting.", "err", err, "delivery_tag", d.DeliveryTag)
				// 'false' means don't re-queue
				_ = d.Reject(false)
				continue
			}
			c.events = append(c.events, ev)
			c.deliveries = append(c.deliveries, d)

			if len(c.events) >= c.batchSize {
				c.flush()
				ticker.Reset(c.flushInterval)
			}

		case <-ticker.C:
			if len(c.events) > 0 {
				slog.Info("Timer flush: processing queued events", "count", len(c.events))
				c.flush()
			}
		}
	}
}

func (c *Consumer) flush() {
	if len(c.events) == 0 {
		return
	}
	events, deliveries := c.events, c.deliveries
	c.events, c.deliveries = nil, nil

	ctx, cancel := context.WithTimeout(context.Background(), c.applyTimeout)
	defer cancel()

	skipped, err := c.store.ApplyClickCounts(ctx, Aggregate(events))
	if err != nil {
		slog.Error("Failed to process batch transaction. Nacking messages.", "count", len(deliveries), "err", err)
		// Re-queue messages for another try
		for _, d := range deliveries {
			_ = d.Nack(false, true)
		}
		return
	}

	for _, d := range deliveries {
		_ = d.Ack(false)
	}
	if skipped > 0 {
		slog.Warn("Dropped clicks for unknown codes", "tallies", skipped)
	}
	slog.Info("Successfully processed and acked messages", "count", len(deliveries))
}

// Aggregate folds events into one tally per code and day.
func Aggregate(events []Event) []store.Tally {
	type bucket struct{ code, day string }

	index := make(map[bucket]int)
	var tallies []store.Tally
	for _, ev := range events {
		code := internal.NormalizeCode(ev.ShortCode)
		b := bucket{code: code, day: internal.DayKey(ev.Timestamp)}
		i, ok := index[b]
		if !ok {
			index[b] = len(tallies)
			tallies = append(tallies, store.Tally{Code: code, Day: b.day, LastAt: ev.Timestamp})
			i = len(tallies) - 1
		}
		tallies[i].Clicks++
		if ev.Timestamp.After(tallies[i].LastAt) {
			tallies[i].LastAt = ev.Timestamp
		}
	}
	return tallies
}
