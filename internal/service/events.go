package service

import (
	"context"
	"log"
	"time"

	"github.com/transborda/cargo-booking/internal/model"
	"github.com/transborda/cargo-booking/internal/queue"
)

// Notifier receives the domain events the engine emits.  Implementations
// must be safe for concurrent use.  *queue.Publisher satisfies this.
type Notifier interface {
	SpaceUpdate(ctx context.Context, ev queue.SpaceUpdateEvent) error
	Reservation(ctx context.Context, ev queue.ReservationEvent) error
}

// NopNotifier discards all events.  Used in tests and when no broker is
// configured.
type NopNotifier struct{}

func (NopNotifier) SpaceUpdate(context.Context, queue.SpaceUpdateEvent) error { return nil }
func (NopNotifier) Reservation(context.Context, queue.ReservationEvent) error { return nil }

// eventBuffer collects events during a transaction and flushes them after a
// successful commit, preserving order.  A rolled-back transaction simply
// drops its buffer, so each transition notifies exactly once.  Publish
// failures are logged and swallowed: downstream notification must never
// undo or block a committed state change.
type eventBuffer struct {
	pending []func(ctx context.Context, n Notifier) error
}

func (b *eventBuffer) spaceUpdate(s model.Space, status model.SpaceStatus) {
	ev := queue.SpaceUpdateEvent{
		SpaceID:     s.ID.String(),
		SpaceNumber: s.SpaceNumber,
		Status:      string(status),
		TripID:      s.TripID.String(),
	}
	b.pending = append(b.pending, func(ctx context.Context, n Notifier) error {
		return n.SpaceUpdate(ctx, ev)
	})
}

func (b *eventBuffer) reservation(kind queue.ReservationEventKind, r *model.Reservation) {
	ev := queue.ReservationEvent{
		Kind:          kind,
		ReservationID: r.ID.String(),
		ClientID:      r.ClientID.String(),
		TripID:        r.TripID.String(),
		Amount:        r.TotalAmount.String(),
		OccurredAt:    time.Now().UTC().Format(time.RFC3339),
	}
	b.pending = append(b.pending, func(ctx context.Context, n Notifier) error {
		return n.Reservation(ctx, ev)
	})
}

// flush publishes the buffered events in order.  Call only after commit.
func (b *eventBuffer) flush(ctx context.Context, n Notifier) {
	for _, publish := range b.pending {
		if err := publish(ctx, n); err != nil {
			log.Printf("notifier: event publish failed: %v", err)
		}
	}
	b.pending = nil
}
