package sweeper

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/transborda/cargo-booking/internal/model"
	"github.com/transborda/cargo-booking/internal/queue"
	"github.com/transborda/cargo-booking/internal/repository"
	"github.com/transborda/cargo-booking/internal/service"
)

// Holds converted into reservations carry no expiry and are never selected,
// so the sweep only ever touches abandoned holds.
const expiredHoldsBatch = 100

func spaceEvent(sp model.Space, status model.SpaceStatus) queue.SpaceUpdateEvent {
	return queue.SpaceUpdateEvent{
		SpaceID:     sp.ID.String(),
		SpaceNumber: sp.SpaceNumber,
		Status:      string(status),
		TripID:      sp.TripID.String(),
	}
}

// HoldExpiration releases temporary holds whose expiry has passed.
type HoldExpiration struct {
	db       *sql.DB
	spaces   *repository.SpaceRepo
	notifier service.Notifier
}

func NewHoldExpiration(db *sql.DB, spaces *repository.SpaceRepo, notifier service.Notifier) *HoldExpiration {
	return &HoldExpiration{db: db, spaces: spaces, notifier: notifier}
}

// Runner wraps the sweep in a loop with the given interval.
func (h *HoldExpiration) Runner(interval time.Duration) *Runner {
	return &Runner{Name: "hold-expiration", Interval: interval, Sweep: h.Sweep}
}

// Sweep releases one batch of expired holds per call.  Expiry is judged
// against the database server's UTC clock, the same clock that stamped the
// hold, so replicas with skewed clocks cannot release early.  Selection
// locks the rows, so a concurrent conversion either commits first and drops
// the expiry, or waits and finds the space released.
func (h *HoldExpiration) Sweep(ctx context.Context) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	expired, err := h.spaces.ExpiredHoldsTx(ctx, tx, expiredHoldsBatch)
	if err != nil {
		return err
	}
	if len(expired) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, 0, len(expired))
	for _, sp := range expired {
		ids = append(ids, sp.ID)
	}
	if err := h.spaces.ReleaseHeldTx(ctx, tx, ids); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true

	log.Printf("released %d expired holds", len(expired))
	for _, sp := range expired {
		if err := h.notifier.SpaceUpdate(ctx, spaceEvent(sp, model.SpaceAvailable)); err != nil {
			log.Printf("publish space update for %s: %v", sp.ID, err)
		}
	}
	return nil
}
