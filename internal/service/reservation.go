package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/transborda/cargo-booking/internal/model"
	"github.com/transborda/cargo-booking/internal/permission"
	"github.com/transborda/cargo-booking/internal/queue"
	"github.com/transborda/cargo-booking/internal/repository"
)

// ReservationService converts holds into reservations, creates internal
// reservations for managers, and exposes reads and early edits.  Conversion
// runs under the same row locks as the hold path, so a hold that expired a
// moment ago can never be converted.
type ReservationService struct {
	db           *sql.DB
	trips        *repository.TripRepo
	spaces       *repository.SpaceRepo
	reservations *repository.ReservationRepo
	prices       *PriceStore
	notifier     Notifier
}

func NewReservationService(db *sql.DB, trips *repository.TripRepo, spaces *repository.SpaceRepo,
	reservations *repository.ReservationRepo, prices *PriceStore, notifier Notifier) *ReservationService {
	return &ReservationService{
		db:           db,
		trips:        trips,
		spaces:       spaces,
		reservations: reservations,
		prices:       prices,
		notifier:     notifier,
	}
}

// CreateReservationInput is everything a client submits to convert their
// hold into a reservation.
type CreateReservationInput struct {
	TripID        uuid.UUID
	SpaceIDs      []uuid.UUID
	PaymentMethod model.PaymentMethod
	Items         []LoadItemInput
	Flags         ServiceFlags
}

func buildItems(reservationID uuid.UUID, inputs []LoadItemInput) ([]model.LoadItem, error) {
	items := make([]model.LoadItem, 0, len(inputs))
	for _, in := range inputs {
		if in.ProductName == "" {
			return nil, fmt.Errorf("%w: cargo item needs a product name", repository.ErrValidation)
		}
		it := model.LoadItem{
			ID:               uuid.New(),
			ReservationID:    reservationID,
			ProductName:      in.ProductName,
			BoxCount:         in.BoxCount,
			TotalWeight:      in.TotalWeight,
			WeightUnit:       in.WeightUnit,
			PackagingType:    in.PackagingType,
			LabelingRequired: in.LabelingRequired,
			LabelQuantity:    in.LabelQuantity,
			LabelDimensions:  in.LabelDimensions,
		}
		if in.SpaceID != nil {
			sid, err := uuid.Parse(*in.SpaceID)
			if err != nil {
				return nil, fmt.Errorf("%w: bad space id on cargo item", repository.ErrValidation)
			}
			it.SpaceID = &sid
		}
		items = append(items, it)
	}
	return items, nil
}

// CreateReservation converts the user's active hold on the given spaces
// into a pending reservation.  Every space must currently be on hold by
// this user with an unexpired temporary hold; otherwise the call fails with
// a conflict and the client has to hold again.  The converted spaces keep
// their on_hold status but lose their expiry, which removes them from the
// expiration sweep while the reservation awaits payment.
func (s *ReservationService) CreateReservation(ctx context.Context, user model.User, in CreateReservationInput) (*model.Reservation, error) {
	if len(in.SpaceIDs) == 0 {
		return nil, fmt.Errorf("%w: no spaces in reservation", repository.ErrValidation)
	}
	if !in.PaymentMethod.Valid() {
		return nil, fmt.Errorf("%w: unknown payment method %q", repository.ErrValidation, in.PaymentMethod)
	}
	unique, hadDuplicates := dedupeIDs(in.SpaceIDs)
	if hadDuplicates {
		return nil, fmt.Errorf("%w: duplicate spaces in selection", repository.ErrConflict)
	}

	trip, err := s.trips.GetByID(ctx, in.TripID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if trip.Departed(now) {
		return nil, fmt.Errorf("%w: trip already departed", repository.ErrValidation)
	}

	reservationID := uuid.New()
	items, err := buildItems(reservationID, in.Items)
	if err != nil {
		return nil, err
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

	locked, err := s.spaces.LockByIDsTx(ctx, tx, in.TripID, unique)
	if err != nil {
		return nil, err
	}
	if len(locked) != len(unique) {
		return nil, fmt.Errorf("%w: some spaces do not exist on this trip", repository.ErrNotFound)
	}
	for _, sp := range locked {
		ok := sp.Status == model.SpaceOnHold && sp.HeldByUser(user.ID) &&
			sp.HoldExpiresAt != nil && sp.HoldExpiresAt.After(now)
		if !ok {
			return nil, fmt.Errorf("%w: hold on space %d is missing or expired",
				repository.ErrConflict, sp.SpaceNumber)
		}
	}

	extras := ExtraServiceCosts(ctx, s.prices, trip, in.Items, in.Flags)
	price := CalculatePrice(trip, locked, decimal.Zero, extras)

	res := &model.Reservation{
		ID:              reservationID,
		ClientID:        user.ID,
		TripID:          in.TripID,
		Status:          model.ReservationPending,
		PaymentMethod:   in.PaymentMethod,
		PaymentStatus:   model.PaymentUnpaid,
		Subtotal:        price.Subtotal,
		TaxAmount:       price.TaxAmount,
		DiscountAmount:  price.DiscountAmount,
		TotalAmount:     price.TotalAmount,
		IsInternational: in.Flags.IsInternational,
		UseOwnBond:      in.Flags.UseOwnBond,
		BondFileRef:     in.Flags.BondFileRef,
		RequestPickup:   in.Flags.RequestPickup,
		PickupDetails:   in.Flags.PickupDetails,
		RequiresInvoice: in.Flags.RequiresInvoice,
		CreatedAt:       now,
	}
	if err := s.reservations.CreateTx(ctx, tx, res); err != nil {
		return nil, err
	}
	if err := s.reservations.InsertItemsTx(ctx, tx, items); err != nil {
		return nil, err
	}
	if err := s.reservations.LinkSpacesTx(ctx, tx, reservationID, unique); err != nil {
		return nil, err
	}
	// Converted spaces stay on_hold without an expiry until payment settles
	// the reservation one way or the other.
	if err := s.spaces.ClearHoldExpiryTx(ctx, tx, unique); err != nil {
		return nil, err
	}

	var events eventBuffer
	events.reservation(queue.ReservationCreated, res)

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	events.flush(ctx, s.notifier)
	return res, nil
}

// AdminReservationInput creates a confirmed internal reservation without a
// prior hold.
type AdminReservationInput struct {
	TripID   uuid.UUID
	ClientID uuid.UUID
	SpaceIDs []uuid.UUID
	Items    []LoadItemInput
	Flags    ServiceFlags
	Discount decimal.Decimal
	Reason   *string
}

// CreateAdminReservation books spaces directly as confirmed and paid,
// skipping the hold step.  Used for walk-in and phone bookings by staff.
// The spaces must be available at lock time.
func (s *ReservationService) CreateAdminReservation(ctx context.Context, actor model.User, in AdminReservationInput) (*model.Reservation, error) {
	if !permission.ForRole(actor.Role).CreateInternalReservations {
		return nil, fmt.Errorf("%w: role %s cannot create internal reservations",
			repository.ErrForbidden, actor.Role)
	}
	if len(in.SpaceIDs) == 0 {
		return nil, fmt.Errorf("%w: no spaces in reservation", repository.ErrValidation)
	}
	unique, hadDuplicates := dedupeIDs(in.SpaceIDs)
	if hadDuplicates {
		return nil, fmt.Errorf("%w: duplicate spaces in selection", repository.ErrConflict)
	}

	trip, err := s.trips.GetByID(ctx, in.TripID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	reservationID := uuid.New()
	inputs := in.Items
	if len(inputs) == 0 {
		// Staff bookings often arrive without a cargo manifest.
		inputs = []LoadItemInput{{
			ProductName: "internal booking",
			BoxCount:    1,
			TotalWeight: decimal.Zero,
			WeightUnit:  "kg",
		}}
	}
	items, err := buildItems(reservationID, inputs)
	if err != nil {
		return nil, err
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

	locked, err := s.spaces.LockByIDsTx(ctx, tx, in.TripID, unique)
	if err != nil {
		return nil, err
	}
	if len(locked) != len(unique) {
		return nil, fmt.Errorf("%w: some spaces do not exist on this trip", repository.ErrNotFound)
	}
	var blocking []int
	for _, sp := range locked {
		if sp.Status != model.SpaceAvailable {
			blocking = append(blocking, sp.SpaceNumber)
		}
	}
	if len(blocking) > 0 {
		return nil, fmt.Errorf("%w: spaces not available: %s",
			repository.ErrConflict, joinNumbers(blocking))
	}

	extras := ExtraServiceCosts(ctx, s.prices, trip, inputs, in.Flags)
	price := CalculatePrice(trip, locked, in.Discount, extras)

	res := &model.Reservation{
		ID:                 reservationID,
		ClientID:           in.ClientID,
		TripID:             in.TripID,
		Status:             model.ReservationConfirmed,
		PaymentMethod:      model.PayCash,
		PaymentStatus:      model.PaymentPaid,
		Subtotal:           price.Subtotal,
		TaxAmount:          price.TaxAmount,
		DiscountAmount:     price.DiscountAmount,
		TotalAmount:        price.TotalAmount,
		DiscountReason:     in.Reason,
		IsInternational:    in.Flags.IsInternational,
		UseOwnBond:         in.Flags.UseOwnBond,
		BondFileRef:        in.Flags.BondFileRef,
		RequestPickup:      in.Flags.RequestPickup,
		PickupDetails:      in.Flags.PickupDetails,
		RequiresInvoice:    in.Flags.RequiresInvoice,
		PaymentConfirmedAt: &now,
		PaymentConfirmedBy: &actor.ID,
		CreatedAt:          now,
	}
	if err := s.reservations.CreateTx(ctx, tx, res); err != nil {
		return nil, err
	}
	if err := s.reservations.InsertItemsTx(ctx, tx, items); err != nil {
		return nil, err
	}
	if err := s.reservations.LinkSpacesTx(ctx, tx, reservationID, unique); err != nil {
		return nil, err
	}
	if err := s.spaces.ReserveTx(ctx, tx, unique); err != nil {
		return nil, err
	}

	var events eventBuffer
	events.reservation(queue.ReservationCreated, res)
	for _, sp := range locked {
		events.spaceUpdate(sp, model.SpaceReserved)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	events.flush(ctx, s.notifier)
	return res, nil
}

// Update applies a client edit to a reservation.  Only the owner may edit,
// only while the reservation is pending, and the payment method may only
// change while nothing has been paid or submitted for review.
func (s *ReservationService) Update(ctx context.Context, user model.User, id uuid.UUID, patch model.ReservationPatch) (*model.Reservation, error) {
	if patch.PaymentMethod != nil && !patch.PaymentMethod.Valid() {
		return nil, fmt.Errorf("%w: unknown payment method %q", repository.ErrValidation, *patch.PaymentMethod)
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
	if res.ClientID != user.ID {
		return nil, fmt.Errorf("%w: not your reservation", repository.ErrForbidden)
	}
	if res.Status != model.ReservationPending {
		return nil, fmt.Errorf("%w: only pending reservations can be edited", repository.ErrConflict)
	}
	if patch.PaymentMethod != nil && res.PaymentStatus != model.PaymentUnpaid {
		return nil, fmt.Errorf("%w: payment method is locked once payment is underway", repository.ErrConflict)
	}

	patch.Apply(res)
	if err := s.reservations.UpdateMutableTx(ctx, tx, res); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return res, nil
}

// Get returns one reservation with its cargo items.  Clients see only their
// own; staff with the view-all permission see any.
func (s *ReservationService) Get(ctx context.Context, user model.User, id uuid.UUID) (*model.Reservation, []model.LoadItem, error) {
	res, err := s.reservations.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if res.ClientID != user.ID && !permission.ForRole(user.Role).ViewAllReservations {
		return nil, nil, fmt.Errorf("%w: not your reservation", repository.ErrForbidden)
	}
	items, err := s.reservations.ListItems(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return res, items, nil
}

// List returns reservations matching the filter.  Without the view-all
// permission the filter is forced to the caller's own reservations.
func (s *ReservationService) List(ctx context.Context, user model.User, f repository.Filter) ([]model.Reservation, int, error) {
	if !permission.ForRole(user.Role).ViewAllReservations {
		f.ClientID = &user.ID
	}
	out, err := s.reservations.List(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.reservations.Count(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
