package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/transborda/cargo-booking/internal/queue"
	"github.com/transborda/cargo-booking/internal/repository"
)

type recordingNotifier struct {
	spaces       []queue.SpaceUpdateEvent
	reservations []queue.ReservationEvent
}

func (r *recordingNotifier) SpaceUpdate(_ context.Context, ev queue.SpaceUpdateEvent) error {
	r.spaces = append(r.spaces, ev)
	return nil
}

func (r *recordingNotifier) Reservation(_ context.Context, ev queue.ReservationEvent) error {
	r.reservations = append(r.reservations, ev)
	return nil
}

var spaceCols = []string{"id", "trip_id", "space_number", "status", "price",
	"held_by", "hold_expires_at", "created_at", "updated_at"}

func TestHoldExpirationSweepReleasesBatch(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	tripID := uuid.New()
	holder := uuid.New()
	expired := time.Now().UTC().Add(-5 * time.Minute)
	s1, s2 := uuid.New(), uuid.New()

	mock.ExpectBegin()
	rows := sqlmock.NewRows(spaceCols).
		AddRow(s1.String(), tripID.String(), 1, "on_hold", "100.00",
			holder.String(), expired, time.Now(), time.Now()).
		AddRow(s2.String(), tripID.String(), 2, "on_hold", "100.00",
			holder.String(), expired, time.Now(), time.Now())
	mock.ExpectQuery(`(?s)SELECT (.+) FROM spaces(.+)hold_expires_at < UTC_TIMESTAMP\(\)`).
		WillReturnRows(rows)
	mock.ExpectExec(`UPDATE spaces SET status = \?, held_by = NULL, hold_expires_at = NULL`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	notifier := &recordingNotifier{}
	sweep := NewHoldExpiration(db, repository.NewSpaceRepo(db), notifier)

	if err := sweep.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(notifier.spaces) != 2 {
		t.Fatalf("published %d space events, want 2", len(notifier.spaces))
	}
	for _, ev := range notifier.spaces {
		if ev.Status != "available" {
			t.Errorf("event status = %s, want available", ev.Status)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestHoldExpirationSweepNothingToDo(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)SELECT (.+) FROM spaces`).
		WillReturnRows(sqlmock.NewRows(spaceCols))
	mock.ExpectRollback()

	notifier := &recordingNotifier{}
	sweep := NewHoldExpiration(db, repository.NewSpaceRepo(db), notifier)

	if err := sweep.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(notifier.spaces) != 0 {
		t.Errorf("published %d events on an empty sweep", len(notifier.spaces))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

var reservationCols = []string{"id", "client_id", "trip_id", "status", "payment_method",
	"payment_status", "subtotal", "tax_amount", "discount_amount", "total_amount",
	"discount_reason", "is_international", "use_own_bond", "bond_file_ref",
	"request_pickup", "pickup_details", "requires_invoice", "payment_proof_ref",
	"ticket_ref", "review_note", "payment_confirmed_at", "payment_confirmed_by",
	"cancellation_reason", "cancelled_at", "cancelled_by", "created_at", "updated_at"}

func pendingReservationRow(id, clientID, tripID uuid.UUID) *sqlmock.Rows {
	return sqlmock.NewRows(reservationCols).AddRow(
		id.String(), clientID.String(), tripID.String(), "pending", "bank_transfer",
		"unpaid", "100.00", "16.00", "0", "116.00",
		nil, false, false, nil,
		false, nil, false, nil,
		nil, nil, nil, nil,
		nil, nil, nil, time.Now(), time.Now())
}

func TestPaymentDeadlineSweepCancelsOverdue(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	resID, clientID, tripID := uuid.New(), uuid.New(), uuid.New()
	spaceID := uuid.New()

	mock.ExpectQuery(`SELECT r\.id, r\.client_id, r\.trip_id, r\.total_amount`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "client_id", "trip_id", "total_amount"}).
			AddRow(resID.String(), clientID.String(), tripID.String(), "116.00"))

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)SELECT (.+) FROM reservations WHERE id = \?(.+)FOR UPDATE`).
		WillReturnRows(pendingReservationRow(resID, clientID, tripID))
	mock.ExpectExec(`(?s)UPDATE reservations(.+)SET status = \?, cancellation_reason = \?`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT space_id FROM reservation_spaces`).
		WillReturnRows(sqlmock.NewRows([]string{"space_id"}).AddRow(spaceID.String()))
	rows := sqlmock.NewRows(spaceCols).
		AddRow(spaceID.String(), tripID.String(), 1, "on_hold", "100.00",
			clientID.String(), nil, time.Now(), time.Now())
	mock.ExpectQuery(`(?s)SELECT (.+) FROM spaces(.+)FOR UPDATE`).
		WillReturnRows(rows)
	mock.ExpectExec(`UPDATE spaces SET status = \?, held_by = NULL`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	notifier := &recordingNotifier{}
	sweep := NewPaymentDeadline(db, repository.NewSpaceRepo(db), repository.NewReservationRepo(db), notifier)

	if err := sweep.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(notifier.reservations) != 1 || notifier.reservations[0].Kind != queue.DeadlineExpired {
		t.Fatalf("reservation events = %+v, want one deadline_expired", notifier.reservations)
	}
	if len(notifier.spaces) != 1 || notifier.spaces[0].Status != "available" {
		t.Fatalf("space events = %+v, want one release", notifier.spaces)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPaymentDeadlineSweepSkipsPaidSinceRead(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	resID, clientID, tripID := uuid.New(), uuid.New(), uuid.New()

	mock.ExpectQuery(`SELECT r\.id, r\.client_id, r\.trip_id, r\.total_amount`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "client_id", "trip_id", "total_amount"}).
			AddRow(resID.String(), clientID.String(), tripID.String(), "116.00"))

	// The re-check under lock sees the payment that landed between the
	// candidate read and this transaction.
	paid := sqlmock.NewRows(reservationCols).AddRow(
		resID.String(), clientID.String(), tripID.String(), "confirmed", "bank_transfer",
		"paid", "100.00", "16.00", "0", "116.00",
		nil, false, false, nil,
		false, nil, false, nil,
		nil, nil, time.Now(), clientID.String(),
		nil, nil, nil, time.Now(), time.Now())
	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)SELECT (.+) FROM reservations WHERE id = \?(.+)FOR UPDATE`).
		WillReturnRows(paid)
	mock.ExpectRollback()

	notifier := &recordingNotifier{}
	sweep := NewPaymentDeadline(db, repository.NewSpaceRepo(db), repository.NewReservationRepo(db), notifier)

	if err := sweep.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(notifier.reservations) != 0 || len(notifier.spaces) != 0 {
		t.Error("a paid reservation must not be cancelled or produce events")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
