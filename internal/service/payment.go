package service

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/transborda/cargo-booking/internal/model"
	"github.com/transborda/cargo-booking/internal/permission"
	"github.com/transborda/cargo-booking/internal/queue"
	"github.com/transborda/cargo-booking/internal/repository"
	"github.com/transborda/cargo-booking/internal/storage"
)

// TicketIssuer produces a travel document for a paid reservation and
// returns a reference to it.  Issuing is best effort; a failure never rolls
// back a payment confirmation.
type TicketIssuer interface {
	Issue(ctx context.Context, res *model.Reservation) (string, error)
}

// PaymentService drives the payment side of a reservation: proof upload,
// staff review, cancellation and hard deletion.
type PaymentService struct {
	db           *sql.DB
	spaces       *repository.SpaceRepo
	reservations *repository.ReservationRepo
	files        storage.FileStore
	tickets      TicketIssuer
	notifier     Notifier
}

func NewPaymentService(db *sql.DB, spaces *repository.SpaceRepo, reservations *repository.ReservationRepo,
	files storage.FileStore, tickets TicketIssuer, notifier Notifier) *PaymentService {
	return &PaymentService{
		db:           db,
		spaces:       spaces,
		reservations: reservations,
		files:        files,
		tickets:      tickets,
		notifier:     notifier,
	}
}

// UploadPaymentProof stores a proof-of-payment document for the
// reservation and moves its payment status to pending_review.  Re-uploads
// replace the previous document.  Only the owner may upload, and only while
// the reservation is pending and not yet paid.
func (s *PaymentService) UploadPaymentProof(ctx context.Context, user model.User, id uuid.UUID, filename string, content io.Reader) (*model.Reservation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := s.reservations.GetTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if res.ClientID != user.ID {
		return nil, fmt.Errorf("%w: not your reservation", repository.ErrForbidden)
	}
	if res.Status != model.ReservationPending {
		return nil, fmt.Errorf("%w: reservation is %s", repository.ErrConflict, res.Status)
	}
	if res.PaymentStatus != model.PaymentUnpaid && res.PaymentStatus != model.PaymentPendingReview {
		return nil, fmt.Errorf("%w: payment already settled", repository.ErrConflict)
	}

	oldRef := res.PaymentProofRef
	ref, err := s.files.Save(ctx, "payment_proofs", filename, content)
	if err != nil {
		return nil, fmt.Errorf("store payment proof: %w", err)
	}
	if err := s.reservations.SetPaymentProofTx(ctx, tx, id, ref); err != nil {
		return nil, err
	}

	res.PaymentProofRef = &ref
	res.PaymentStatus = model.PaymentPendingReview

	var events eventBuffer
	events.reservation(queue.PaymentPending, res)

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	events.flush(ctx, s.notifier)

	if oldRef != nil && *oldRef != ref {
		if err := s.files.Delete(ctx, *oldRef); err != nil {
			log.Printf("delete replaced payment proof %s: %v", *oldRef, err)
		}
	}
	return res, nil
}

// ConfirmPayment records a staff decision on a submitted payment.
// Approving marks the reservation confirmed and paid and issues a ticket;
// rejecting returns it to unpaid with the reviewer's note so the client can
// retry before the deadline.
func (s *PaymentService) ConfirmPayment(ctx context.Context, actor model.User, id uuid.UUID, approve bool, note *string) (*model.Reservation, error) {
	if !permission.ForRole(actor.Role).ConfirmPayments {
		return nil, fmt.Errorf("%w: role %s cannot confirm payments", repository.ErrForbidden, actor.Role)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := s.reservations.GetTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if res.Status == model.ReservationCancelled {
		return nil, fmt.Errorf("%w: reservation was cancelled", repository.ErrConflict)
	}
	if res.PaymentStatus == model.PaymentPaid {
		return nil, fmt.Errorf("%w: payment already confirmed", repository.ErrConflict)
	}

	now := time.Now().UTC()
	var events eventBuffer
	if approve {
		if err := s.reservations.MarkPaidTx(ctx, tx, id, actor.ID, now); err != nil {
			return nil, err
		}
		res.Status = model.ReservationConfirmed
		res.PaymentStatus = model.PaymentPaid
		res.PaymentConfirmedAt = &now
		res.PaymentConfirmedBy = &actor.ID
		events.reservation(queue.PaymentApproved, res)
	} else {
		if err := s.reservations.MarkRejectedTx(ctx, tx, id, note); err != nil {
			return nil, err
		}
		res.PaymentStatus = model.PaymentUnpaid
		res.ReviewNote = note
		events.reservation(queue.PaymentRejected, res)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	events.flush(ctx, s.notifier)

	if approve && s.tickets != nil {
		ref, err := s.tickets.Issue(ctx, res)
		if err != nil {
			log.Printf("issue ticket for reservation %s: %v", res.ID, err)
		} else if err := s.reservations.SetTicketRef(ctx, res.ID, ref); err != nil {
			log.Printf("store ticket ref for reservation %s: %v", res.ID, err)
		} else {
			res.TicketRef = &ref
		}
	}
	return res, nil
}

// CancelReservation cancels a reservation and frees its spaces.  The owner
// may cancel while the reservation is pending; staff with the cancel-any
// permission may cancel regardless of state.
func (s *PaymentService) CancelReservation(ctx context.Context, actor model.User, id uuid.UUID, reason *string) (*model.Reservation, error) {
	perms := permission.ForRole(actor.Role)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := s.reservations.GetTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if res.ClientID != actor.ID && !perms.CancelAnyReservation {
		return nil, fmt.Errorf("%w: not your reservation", repository.ErrForbidden)
	}
	if res.Status == model.ReservationCancelled {
		return nil, fmt.Errorf("%w: already cancelled", repository.ErrConflict)
	}
	if !perms.CancelAnyReservation && res.Status != model.ReservationPending {
		return nil, fmt.Errorf("%w: confirmed reservations are cancelled by staff", repository.ErrConflict)
	}

	now := time.Now().UTC()
	if err := s.reservations.MarkCancelledTx(ctx, tx, id, reason, actor.ID, now); err != nil {
		return nil, err
	}

	spaceIDs, err := s.reservations.SpaceIDsTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	locked, err := s.spaces.LockAnyByIDsTx(ctx, tx, spaceIDs)
	if err != nil {
		return nil, err
	}
	if err := s.spaces.ReleaseClaimedTx(ctx, tx, spaceIDs); err != nil {
		return nil, err
	}

	res.Status = model.ReservationCancelled
	res.CancellationReason = reason
	res.CancelledAt = &now
	res.CancelledBy = &actor.ID

	var events eventBuffer
	events.reservation(queue.ReservationCancel, res)
	for _, sp := range locked {
		if sp.Status == model.SpaceOnHold || sp.Status == model.SpaceReserved {
			events.spaceUpdate(sp, model.SpaceAvailable)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	events.flush(ctx, s.notifier)
	return res, nil
}

// DeleteReservation removes a reservation and its rows entirely.  Spaces
// still claimed by it are released first.  Stored documents are cleaned up
// best effort after the delete commits.
func (s *PaymentService) DeleteReservation(ctx context.Context, actor model.User, id uuid.UUID) error {
	if !permission.ForRole(actor.Role).HardDeleteReservations {
		return fmt.Errorf("%w: role %s cannot delete reservations", repository.ErrForbidden, actor.Role)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := s.reservations.GetTx(ctx, tx, id)
	if err != nil {
		return err
	}

	var events eventBuffer
	if res.Status != model.ReservationCancelled {
		spaceIDs, err := s.reservations.SpaceIDsTx(ctx, tx, id)
		if err != nil {
			return err
		}
		locked, err := s.spaces.LockAnyByIDsTx(ctx, tx, spaceIDs)
		if err != nil {
			return err
		}
		if err := s.spaces.ReleaseClaimedTx(ctx, tx, spaceIDs); err != nil {
			return err
		}
		for _, sp := range locked {
			if sp.Status == model.SpaceOnHold || sp.Status == model.SpaceReserved {
				events.spaceUpdate(sp, model.SpaceAvailable)
			}
		}
	}
	if err := s.reservations.DeleteTx(ctx, tx, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	events.flush(ctx, s.notifier)

	for _, ref := range []*string{res.PaymentProofRef, res.BondFileRef, res.TicketRef} {
		if ref == nil {
			continue
		}
		if err := s.files.Delete(ctx, *ref); err != nil {
			log.Printf("delete document %s of reservation %s: %v", *ref, res.ID, err)
		}
	}
	return nil
}
