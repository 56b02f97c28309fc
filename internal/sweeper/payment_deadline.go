package sweeper

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/transborda/cargo-booking/internal/model"
	"github.com/transborda/cargo-booking/internal/queue"
	"github.com/transborda/cargo-booking/internal/repository"
	"github.com/transborda/cargo-booking/internal/service"
)

var deadlineCancelReason = "payment deadline expired"

// PaymentDeadline cancels reservations that stayed unpaid past their trip's
// payment deadline and returns their spaces to sale.
type PaymentDeadline struct {
	db           *sql.DB
	spaces       *repository.SpaceRepo
	reservations *repository.ReservationRepo
	notifier     service.Notifier
}

func NewPaymentDeadline(db *sql.DB, spaces *repository.SpaceRepo,
	reservations *repository.ReservationRepo, notifier service.Notifier) *PaymentDeadline {
	return &PaymentDeadline{db: db, spaces: spaces, reservations: reservations, notifier: notifier}
}

// Runner wraps the sweep in a loop with the given interval.
func (p *PaymentDeadline) Runner(interval time.Duration) *Runner {
	return &Runner{Name: "payment-deadline", Interval: interval, Sweep: p.Sweep}
}

// Sweep finds candidates in one unlocked read, then handles each in its own
// transaction with a row lock and a re-check.  The re-check makes the
// unlocked read safe: a payment confirmed between the two reads is seen and
// the cancellation skipped.  One bad row does not stop the rest.
func (p *PaymentDeadline) Sweep(ctx context.Context) error {
	candidates, err := p.reservations.PastDeadline(ctx)
	if err != nil {
		return err
	}
	var failed int
	for _, c := range candidates {
		if err := p.cancelOne(ctx, c.ReservationID); err != nil {
			log.Printf("cancel overdue reservation %s: %v", c.ReservationID, err)
			failed++
		}
	}
	if n := len(candidates); n > 0 {
		log.Printf("payment deadline sweep: %d candidates, %d failed", n, failed)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d overdue reservations could not be cancelled", failed, len(candidates))
	}
	return nil
}

func (p *PaymentDeadline) cancelOne(ctx context.Context, id uuid.UUID) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := p.reservations.GetTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if !res.AwaitingPayment() {
		// Paid or cancelled since the candidate read.
		return nil
	}

	now := time.Now().UTC()
	if err := p.reservations.MarkCancelledTx(ctx, tx, id, &deadlineCancelReason, res.ClientID, now); err != nil {
		return err
	}
	spaceIDs, err := p.reservations.SpaceIDsTx(ctx, tx, id)
	if err != nil {
		return err
	}
	locked, err := p.spaces.LockAnyByIDsTx(ctx, tx, spaceIDs)
	if err != nil {
		return err
	}
	if err := p.spaces.ReleaseClaimedTx(ctx, tx, spaceIDs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true

	res.Status = model.ReservationCancelled
	ev := queue.ReservationEvent{
		Kind:          queue.DeadlineExpired,
		ReservationID: res.ID.String(),
		ClientID:      res.ClientID.String(),
		TripID:        res.TripID.String(),
		Amount:        res.TotalAmount.String(),
		OccurredAt:    now.Format(time.RFC3339),
	}
	if err := p.notifier.Reservation(ctx, ev); err != nil {
		log.Printf("publish deadline event for %s: %v", res.ID, err)
	}
	for _, sp := range locked {
		if sp.Status != model.SpaceOnHold && sp.Status != model.SpaceReserved {
			continue
		}
		if err := p.notifier.SpaceUpdate(ctx, spaceEvent(sp, model.SpaceAvailable)); err != nil {
			log.Printf("publish space update for %s: %v", sp.ID, err)
		}
	}
	return nil
}
