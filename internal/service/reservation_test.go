package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/transborda/cargo-booking/internal/model"
	"github.com/transborda/cargo-booking/internal/queue"
	"github.com/transborda/cargo-booking/internal/repository"
)

func newReservationService(t *testing.T) (*ReservationService, sqlmock.Sqlmock, *recordingNotifier) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	notifier := &recordingNotifier{}
	svc := NewReservationService(db,
		repository.NewTripRepo(db), repository.NewSpaceRepo(db),
		repository.NewReservationRepo(db),
		NewPriceStore(repository.NewSystemConfigRepo(db), nil, 0), notifier)
	return svc, mock, notifier
}

func TestCreateReservationFromHold(t *testing.T) {
	svc, mock, notifier := newReservationService(t)

	tripID := uuid.New()
	user := model.User{ID: uuid.New(), Role: model.RoleClient}
	spaceID := uuid.New()
	expiry := time.Now().UTC().Add(10 * time.Minute)

	mock.ExpectQuery(`(?s)SELECT (.+) FROM trips WHERE id = \?`).
		WillReturnRows(tripRow(tripID, nil))
	mock.ExpectBegin()
	rows := sqlmock.NewRows(spaceCols)
	spaceRow(rows, spaceID, tripID, 1, model.SpaceOnHold, user.ID.String(), expiry)
	mock.ExpectQuery(`(?s)SELECT (.+) FROM spaces(.+)FOR UPDATE`).
		WillReturnRows(rows)
	mock.ExpectExec(`(?s)INSERT INTO reservations`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`(?s)INSERT INTO load_items`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO reservation_spaces`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`(?s)UPDATE spaces SET hold_expires_at = NULL`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	in := CreateReservationInput{
		TripID:        tripID,
		SpaceIDs:      []uuid.UUID{spaceID},
		PaymentMethod: model.PayBankTransfer,
		Items: []LoadItemInput{{
			ProductName: "machine parts",
			BoxCount:    4,
			TotalWeight: dec("120.5"),
			WeightUnit:  "kg",
		}},
	}
	res, err := svc.CreateReservation(context.Background(), user, in)
	if err != nil {
		t.Fatalf("CreateReservation: %v", err)
	}
	if res.Status != model.ReservationPending || res.PaymentStatus != model.PaymentUnpaid {
		t.Errorf("new reservation is %s/%s, want pending/unpaid", res.Status, res.PaymentStatus)
	}
	// 100.00 with 16% on top.
	if !res.TotalAmount.Equal(dec("116.00")) {
		t.Errorf("total = %s, want 116.00", res.TotalAmount)
	}
	if len(notifier.reservations) != 1 || notifier.reservations[0].Kind != queue.ReservationCreated {
		t.Fatalf("events = %+v, want one created event", notifier.reservations)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCreateReservationHoldExpired(t *testing.T) {
	svc, mock, notifier := newReservationService(t)

	tripID := uuid.New()
	user := model.User{ID: uuid.New(), Role: model.RoleClient}
	spaceID := uuid.New()
	stale := time.Now().UTC().Add(-1 * time.Minute)

	mock.ExpectQuery(`(?s)SELECT (.+) FROM trips WHERE id = \?`).
		WillReturnRows(tripRow(tripID, nil))
	mock.ExpectBegin()
	rows := sqlmock.NewRows(spaceCols)
	spaceRow(rows, spaceID, tripID, 1, model.SpaceOnHold, user.ID.String(), stale)
	mock.ExpectQuery(`(?s)SELECT (.+) FROM spaces(.+)FOR UPDATE`).
		WillReturnRows(rows)
	mock.ExpectRollback()

	in := CreateReservationInput{
		TripID:        tripID,
		SpaceIDs:      []uuid.UUID{spaceID},
		PaymentMethod: model.PayCash,
	}
	_, err := svc.CreateReservation(context.Background(), user, in)
	if !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("err = %v, want conflict for expired hold", err)
	}
	if len(notifier.reservations) != 0 {
		t.Error("no event must fire on a failed conversion")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCreateReservationHeldByAnother(t *testing.T) {
	svc, mock, _ := newReservationService(t)

	tripID := uuid.New()
	user := model.User{ID: uuid.New(), Role: model.RoleClient}
	other := uuid.New()
	spaceID := uuid.New()
	expiry := time.Now().UTC().Add(10 * time.Minute)

	mock.ExpectQuery(`(?s)SELECT (.+) FROM trips WHERE id = \?`).
		WillReturnRows(tripRow(tripID, nil))
	mock.ExpectBegin()
	rows := sqlmock.NewRows(spaceCols)
	spaceRow(rows, spaceID, tripID, 1, model.SpaceOnHold, other.String(), expiry)
	mock.ExpectQuery(`(?s)SELECT (.+) FROM spaces(.+)FOR UPDATE`).
		WillReturnRows(rows)
	mock.ExpectRollback()

	in := CreateReservationInput{
		TripID:        tripID,
		SpaceIDs:      []uuid.UUID{spaceID},
		PaymentMethod: model.PayCash,
	}
	_, err := svc.CreateReservation(context.Background(), user, in)
	if !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("err = %v, want conflict for someone else's hold", err)
	}
}

func TestCreateReservationBadPaymentMethod(t *testing.T) {
	svc, _, _ := newReservationService(t)

	in := CreateReservationInput{
		TripID:        uuid.New(),
		SpaceIDs:      []uuid.UUID{uuid.New()},
		PaymentMethod: model.PaymentMethod("crypto"),
	}
	_, err := svc.CreateReservation(context.Background(), model.User{ID: uuid.New()}, in)
	if !errors.Is(err, repository.ErrValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestCreateAdminReservationNeedsPermission(t *testing.T) {
	svc, _, _ := newReservationService(t)

	client := model.User{ID: uuid.New(), Role: model.RoleClient}
	_, err := svc.CreateAdminReservation(context.Background(), client, AdminReservationInput{
		TripID:   uuid.New(),
		ClientID: uuid.New(),
		SpaceIDs: []uuid.UUID{uuid.New()},
	})
	if !errors.Is(err, repository.ErrForbidden) {
		t.Fatalf("err = %v, want forbidden for client role", err)
	}
}
