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
	"github.com/transborda/cargo-booking/internal/repository"
)

// TripService manages trips and their space inventory: creation, edits that
// grow or shrink the inventory, and administrative space status changes.
type TripService struct {
	db       *sql.DB
	trips    *repository.TripRepo
	spaces   *repository.SpaceRepo
	notifier Notifier
}

func NewTripService(db *sql.DB, trips *repository.TripRepo, spaces *repository.SpaceRepo, notifier Notifier) *TripService {
	return &TripService{db: db, trips: trips, spaces: spaces, notifier: notifier}
}

// CreateTripInput carries the fields of a new trip.
type CreateTripInput struct {
	Origin               string
	Destination          string
	DepartureDate        time.Time
	IsInternational      bool
	TotalSpaces          int
	PricePerSpace        decimal.Decimal
	IndividualPricing    bool
	PickupCost           *decimal.Decimal
	Currency             string
	TaxIncluded          bool
	TaxRate              decimal.Decimal
	PaymentDeadlineHours int
	MaxSpacesPerClient   *int
}

func newSpaces(tripID uuid.UUID, from, to int, price decimal.Decimal) []model.Space {
	out := make([]model.Space, 0, to-from+1)
	for n := from; n <= to; n++ {
		out = append(out, model.Space{
			ID:          uuid.New(),
			TripID:      tripID,
			SpaceNumber: n,
			Status:      model.SpaceAvailable,
			Price:       price,
		})
	}
	return out
}

// CreateTrip creates a trip together with its numbered spaces, all
// available, in one transaction.
func (s *TripService) CreateTrip(ctx context.Context, actor model.User, in CreateTripInput) (*model.Trip, error) {
	if !permission.ForRole(actor.Role).ManageSpaces {
		return nil, fmt.Errorf("%w: role %s cannot manage trips", repository.ErrForbidden, actor.Role)
	}
	if in.TotalSpaces <= 0 {
		return nil, fmt.Errorf("%w: a trip needs at least one space", repository.ErrValidation)
	}
	if in.PaymentDeadlineHours <= 0 {
		return nil, fmt.Errorf("%w: payment deadline must be positive", repository.ErrValidation)
	}

	trip := &model.Trip{
		ID:                   uuid.New(),
		Origin:               in.Origin,
		Destination:          in.Destination,
		DepartureDate:        in.DepartureDate.UTC().Truncate(24 * time.Hour),
		Status:               model.TripScheduled,
		IsInternational:      in.IsInternational,
		TotalSpaces:          in.TotalSpaces,
		PricePerSpace:        in.PricePerSpace,
		IndividualPricing:    in.IndividualPricing,
		PickupCost:           in.PickupCost,
		Currency:             in.Currency,
		TaxIncluded:          in.TaxIncluded,
		TaxRate:              in.TaxRate,
		PaymentDeadlineHours: in.PaymentDeadlineHours,
		MaxSpacesPerClient:   in.MaxSpacesPerClient,
		CreatedBy:            &actor.ID,
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

	if err := s.trips.CreateTx(ctx, tx, trip); err != nil {
		return nil, err
	}
	if err := s.spaces.InsertBulkTx(ctx, tx, newSpaces(trip.ID, 1, in.TotalSpaces, in.PricePerSpace)); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return trip, nil
}

// UpdateTrip applies an admin edit.  Growing TotalSpaces appends new
// available spaces after the current highest number; shrinking removes
// available spaces from the top and fails with a conflict when a space that
// would be removed is held or reserved.
func (s *TripService) UpdateTrip(ctx context.Context, actor model.User, id uuid.UUID, patch model.TripPatch) (*model.Trip, error) {
	if !permission.ForRole(actor.Role).ManageSpaces {
		return nil, fmt.Errorf("%w: role %s cannot manage trips", repository.ErrForbidden, actor.Role)
	}
	if patch.TotalSpaces != nil && *patch.TotalSpaces <= 0 {
		return nil, fmt.Errorf("%w: a trip needs at least one space", repository.ErrValidation)
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

	trip, err := s.trips.GetTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	before := trip.TotalSpaces
	patch.Apply(trip)

	if trip.TotalSpaces > before {
		high, err := s.spaces.MaxSpaceNumberTx(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		added := newSpaces(id, high+1, high+trip.TotalSpaces-before, trip.PricePerSpace)
		if err := s.spaces.InsertBulkTx(ctx, tx, added); err != nil {
			return nil, err
		}
	} else if trip.TotalSpaces < before {
		if _, err := s.spaces.DeleteAvailableAboveTx(ctx, tx, id, trip.TotalSpaces); err != nil {
			return nil, err
		}
		left, err := s.spaces.CountAboveTx(ctx, tx, id, trip.TotalSpaces)
		if err != nil {
			return nil, err
		}
		if left > 0 {
			return nil, fmt.Errorf("%w: %d spaces above %d are held or reserved",
				repository.ErrConflict, left, trip.TotalSpaces)
		}
	}

	if err := s.trips.UpdateTx(ctx, tx, trip); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return trip, nil
}

// setSpaceStatus moves one space into an administrative status.  A space on
// a temporary hold is taken over and its hold cleared; a reserved space is
// never touched, the reservation has to be cancelled first.
func (s *TripService) setSpaceStatus(ctx context.Context, actor model.User, spaceID uuid.UUID, target model.SpaceStatus) (*model.Space, error) {
	if !permission.ForRole(actor.Role).ManageSpaces {
		return nil, fmt.Errorf("%w: role %s cannot manage spaces", repository.ErrForbidden, actor.Role)
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

	sp, err := s.spaces.GetTx(ctx, tx, spaceID)
	if err != nil {
		return nil, err
	}
	if sp.Status == target {
		return nil, fmt.Errorf("%w: space is already %s", repository.ErrConflict, target)
	}
	if sp.Status == model.SpaceReserved {
		return nil, fmt.Errorf("%w: space %d is reserved; cancel the reservation first",
			repository.ErrConflict, sp.SpaceNumber)
	}
	// Hold fields are cleared only when the space actually carries a hold,
	// so a stale held_by can never survive a status change.
	clearHold := sp.Status == model.SpaceOnHold
	if err := s.spaces.SetStatusTx(ctx, tx, spaceID, target, clearHold); err != nil {
		return nil, err
	}

	var events eventBuffer
	events.spaceUpdate(*sp, target)

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	events.flush(ctx, s.notifier)

	sp.Status = target
	if clearHold {
		sp.HeldBy = nil
		sp.HoldExpiresAt = nil
	}
	return sp, nil
}

// BlockSpace takes a space out of sale for maintenance or damage.
func (s *TripService) BlockSpace(ctx context.Context, actor model.User, spaceID uuid.UUID) (*model.Space, error) {
	return s.setSpaceStatus(ctx, actor, spaceID, model.SpaceBlocked)
}

// MarkInternal reserves a space for company cargo outside the sale flow.
func (s *TripService) MarkInternal(ctx context.Context, actor model.User, spaceID uuid.UUID) (*model.Space, error) {
	return s.setSpaceStatus(ctx, actor, spaceID, model.SpaceInternal)
}

// UnblockSpace returns a blocked or internal space to sale.
func (s *TripService) UnblockSpace(ctx context.Context, actor model.User, spaceID uuid.UUID) (*model.Space, error) {
	if !permission.ForRole(actor.Role).ManageSpaces {
		return nil, fmt.Errorf("%w: role %s cannot manage spaces", repository.ErrForbidden, actor.Role)
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

	sp, err := s.spaces.GetTx(ctx, tx, spaceID)
	if err != nil {
		return nil, err
	}
	if sp.Status != model.SpaceBlocked && sp.Status != model.SpaceInternal {
		return nil, fmt.Errorf("%w: space %d is %s, not blocked",
			repository.ErrConflict, sp.SpaceNumber, sp.Status)
	}
	if err := s.spaces.SetStatusTx(ctx, tx, spaceID, model.SpaceAvailable, false); err != nil {
		return nil, err
	}

	var events eventBuffer
	events.spaceUpdate(*sp, model.SpaceAvailable)

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	events.flush(ctx, s.notifier)

	sp.Status = model.SpaceAvailable
	return sp, nil
}

// Get returns one trip.
func (s *TripService) Get(ctx context.Context, id uuid.UUID) (*model.Trip, error) {
	return s.trips.GetByID(ctx, id)
}

// List returns trips, optionally filtered by status.
func (s *TripService) List(ctx context.Context, status *model.TripStatus) ([]model.Trip, error) {
	return s.trips.List(ctx, status)
}

// ListSpaces returns a trip's spaces in number order plus a per-status
// summary.
func (s *TripService) ListSpaces(ctx context.Context, tripID uuid.UUID) ([]model.Space, model.SpaceSummary, error) {
	if _, err := s.trips.GetByID(ctx, tripID); err != nil {
		return nil, model.SpaceSummary{}, err
	}
	spaces, err := s.spaces.ListByTrip(ctx, tripID)
	if err != nil {
		return nil, model.SpaceSummary{}, err
	}
	var sum model.SpaceSummary
	for _, sp := range spaces {
		sum.Add(sp.Status)
	}
	return spaces, sum, nil
}
