package events

import (
	"context"
	"fmt"
	"time"

	"craftbid/internal/repository"
	"craftbid/utils"
)

// Dispatcher drains the outbox into a Publisher. Failed deliveries are
// retried with a linear backoff and parked as failed after MaxAttempts.
type Dispatcher struct {
	store     repository.Store
	publisher Publisher

	BatchSize   int
	Lease       time.Duration
	MaxAttempts int
	Backoff     func(attempts int) time.Duration

	now func() time.Time
}

// NewDispatcher creates a new Dispatcher instance
func NewDispatcher(store repository.Store, publisher Publisher) *Dispatcher {
	return &Dispatcher{
		store:       store,
		publisher:   publisher,
		BatchSize:   50,
		Lease:       30 * time.Second,
		MaxAttempts: 5,
		Backoff: func(attempts int) time.Duration {
			return time.Duration(attempts*10+10) * time.Second
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source; used by tests
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// DispatchOnce publishes one batch of due events and returns how many were delivered
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	now := d.now()
	batch, err := d.store.ClaimEvents(ctx, now, d.Lease, d.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("events: claim batch: %w", err)
	}

	delivered := 0
	for _, e := range batch {
		if err := d.publisher.Publish(ctx, e); err != nil {
			utils.Error("event delivery failed", map[string]any{
				"event_id": e.EventID,
				"type":     e.Type,
				"attempts": e.Attempts,
				"error":    err.Error(),
			})

			if e.Attempts+1 >= d.MaxAttempts {
				if markErr := d.store.MarkEventFailed(ctx, e.EventID); markErr != nil {
					return delivered, fmt.Errorf("events: mark %s failed: %w", e.EventID, markErr)
				}
				utils.Error("event marked as failed, max attempts reached", map[string]any{"event_id": e.EventID})
				continue
			}

			nextRun := now.Add(d.Backoff(e.Attempts))
			if schedErr := d.store.RescheduleEvent(ctx, e.EventID, nextRun); schedErr != nil {
				return delivered, fmt.Errorf("events: reschedule %s: %w", e.EventID, schedErr)
			}
			continue
		}

		if err := d.store.MarkEventDelivered(ctx, e.EventID); err != nil {
			return delivered, fmt.Errorf("events: mark %s delivered: %w", e.EventID, err)
		}
		delivered++
	}
	return delivered, nil
}
