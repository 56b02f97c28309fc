package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/transborda/cargo-booking/internal/model"
	"github.com/transborda/cargo-booking/internal/repository"
)

// HoldService creates, renews and releases short-lived exclusive holds on
// spaces.  Every hold attempt runs inside one database transaction with row
// locks on exactly the target spaces; the database is the only
// serialization point, so the service stays correct when several replicas
// run concurrently.
type HoldService struct {
	db       *sql.DB
	trips    *repository.TripRepo
	spaces   *repository.SpaceRepo
	notifier Notifier
	holdTTL  time.Duration
}

// NewHoldService constructs a HoldService.  holdTTL is the lifetime of a
// temporary hold.
func NewHoldService(db *sql.DB, trips *repository.TripRepo, spaces *repository.SpaceRepo, notifier Notifier, holdTTL time.Duration) *HoldService {
	if db == nil || trips == nil || spaces == nil || notifier == nil {
		panic("nil dependency passed to NewHoldService")
	}
	return &HoldService{db: db, trips: trips, spaces: spaces, notifier: notifier, holdTTL: holdTTL}
}

// HoldResult reports a successful hold.
type HoldResult struct {
	TripID      uuid.UUID
	SpaceIDs    []uuid.UUID
	SpacesCount int
	ExpiresAt   time.Time
}

// dedupeIDs returns the unique IDs in order and whether any duplicates were
// present.
func dedupeIDs(ids []uuid.UUID) ([]uuid.UUID, bool) {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	unique := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	return unique, len(unique) != len(ids)
}

func joinNumbers(nums []int) string {
	sort.Ints(nums)
	parts := make([]string, 0, len(nums))
	for _, n := range nums {
		parts = append(parts, fmt.Sprintf("%d", n))
	}
	return strings.Join(parts, ", ")
}

// CreateHold places a temporary exclusive hold on the given spaces for the
// user.  The batch is all-or-nothing: if any space is unavailable the whole
// attempt fails with a conflict naming the blocking space numbers.  A space
// already held by the same user with an unexpired hold is accepted and its
// expiry extended, making re-holds idempotent.
func (s *HoldService) CreateHold(ctx context.Context, user model.User, tripID uuid.UUID, spaceIDs []uuid.UUID) (*HoldResult, error) {
	if len(spaceIDs) == 0 {
		return nil, fmt.Errorf("%w: no spaces requested", repository.ErrValidation)
	}
	unique, hadDuplicates := dedupeIDs(spaceIDs)
	if hadDuplicates {
		return nil, fmt.Errorf("%w: duplicate spaces in selection", repository.ErrConflict)
	}

	trip, err := s.trips.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if trip.Departed(now) {
		return nil, fmt.Errorf("%w: trip already departed", repository.ErrValidation)
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

	// Per-client cap, counted under the same transaction that takes the
	// row locks so two racing holds by one user cannot both pass.
	if trip.MaxSpacesPerClient != nil {
		existing, err := s.spaces.CountClaimedByClientTx(ctx, tx, tripID, user.ID)
		if err != nil {
			return nil, err
		}
		if existing+len(unique) > *trip.MaxSpacesPerClient {
			return nil, fmt.Errorf("%w: per-client space limit is %d and you already have %d on this trip",
				repository.ErrConflict, *trip.MaxSpacesPerClient, existing)
		}
	}

	locked, err := s.spaces.LockByIDsTx(ctx, tx, tripID, unique)
	if err != nil {
		return nil, err
	}
	if len(locked) != len(unique) {
		return nil, fmt.Errorf("%w: some spaces do not exist on this trip", repository.ErrNotFound)
	}

	// Re-check availability under the locks.  A space is holdable when it
	// is available, or when the same user already holds it with an
	// unexpired temporary hold (idempotent re-hold).
	var blocking []int
	for _, sp := range locked {
		if sp.Status == model.SpaceAvailable {
			continue
		}
		rehold := sp.HeldByUser(user.ID) && sp.HoldExpiresAt != nil && sp.HoldExpiresAt.After(now)
		if !rehold {
			blocking = append(blocking, sp.SpaceNumber)
		}
	}
	if len(blocking) > 0 {
		return nil, fmt.Errorf("%w: spaces no longer available: %s",
			repository.ErrConflict, joinNumbers(blocking))
	}

	expiresAt := now.Add(s.holdTTL)
	if err := s.spaces.HoldTx(ctx, tx, unique, user.ID, expiresAt); err != nil {
		return nil, err
	}

	var events eventBuffer
	for _, sp := range locked {
		if sp.Status != model.SpaceOnHold { // renewal is not a status change
			events.spaceUpdate(sp, model.SpaceOnHold)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	events.flush(ctx, s.notifier)

	return &HoldResult{
		TripID:      tripID,
		SpaceIDs:    unique,
		SpacesCount: len(unique),
		ExpiresAt:   expiresAt,
	}, nil
}

// ReleaseHold resets the given spaces to available when they are currently
// on hold.  Spaces in any other status are left untouched; releasing an
// already-released space is a no-op rather than an error.
func (s *HoldService) ReleaseHold(ctx context.Context, spaceIDs []uuid.UUID) error {
	if len(spaceIDs) == 0 {
		return nil
	}
	unique, _ := dedupeIDs(spaceIDs)

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

	locked, err := s.spaces.LockAnyByIDsTx(ctx, tx, unique)
	if err != nil {
		return err
	}
	var held []uuid.UUID
	var events eventBuffer
	for _, sp := range locked {
		if sp.Status == model.SpaceOnHold {
			held = append(held, sp.ID)
			events.spaceUpdate(sp, model.SpaceAvailable)
		}
	}
	if err := s.spaces.ReleaseHeldTx(ctx, tx, held); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	events.flush(ctx, s.notifier)
	return nil
}
