package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SpaceStatus enumerates the states a cargo space can be in.  The booking
// flow moves a space available -> on_hold -> reserved -> available; the
// blocked and internal states are administrative dead-ends set outside the
// booking flow.
type SpaceStatus string

const (
	SpaceAvailable SpaceStatus = "available"
	SpaceOnHold    SpaceStatus = "on_hold"
	SpaceReserved  SpaceStatus = "reserved"
	SpaceBlocked   SpaceStatus = "blocked"
	SpaceInternal  SpaceStatus = "internal"
)

// Valid reports whether s is one of the known space statuses.
func (s SpaceStatus) Valid() bool {
	switch s {
	case SpaceAvailable, SpaceOnHold, SpaceReserved, SpaceBlocked, SpaceInternal:
		return true
	}
	return false
}

// spaceTransitions lists the legal status transitions.  Any attempt outside
// this table must be rejected with a conflict.
var spaceTransitions = map[SpaceStatus][]SpaceStatus{
	SpaceAvailable: {SpaceOnHold, SpaceBlocked, SpaceInternal},
	SpaceOnHold:    {SpaceAvailable, SpaceReserved},
	SpaceReserved:  {SpaceAvailable},
	SpaceBlocked:   {SpaceAvailable},
	SpaceInternal:  {SpaceAvailable},
}

// CanTransition reports whether a space may move from s to next.
func (s SpaceStatus) CanTransition(next SpaceStatus) bool {
	for _, t := range spaceTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Space is one sellable cargo slot of a trip.  Invariant: HeldBy is non-nil
// exactly when Status is on_hold.  A hold with a nil HoldExpiresAt belongs to
// a reservation that has not been paid yet; only holds with a non-nil expiry
// are temporary and subject to the expiration sweep.
type Space struct {
	ID            uuid.UUID
	TripID        uuid.UUID
	SpaceNumber   int
	Status        SpaceStatus
	Price         decimal.Decimal
	HeldBy        *uuid.UUID
	HoldExpiresAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HeldByUser reports whether the space is currently on hold for the given
// user.  It does not consider expiry; callers decide whether an expired
// temporary hold still counts.
func (s *Space) HeldByUser(userID uuid.UUID) bool {
	return s.Status == SpaceOnHold && s.HeldBy != nil && *s.HeldBy == userID
}

// SpaceSummary counts the spaces of a trip per status.
type SpaceSummary struct {
	Available int `json:"available"`
	OnHold    int `json:"on_hold"`
	Reserved  int `json:"reserved"`
	Blocked   int `json:"blocked"`
	Internal  int `json:"internal"`
}

// Add increments the counter matching the given status.
func (sum *SpaceSummary) Add(s SpaceStatus) {
	switch s {
	case SpaceAvailable:
		sum.Available++
	case SpaceOnHold:
		sum.OnHold++
	case SpaceReserved:
		sum.Reserved++
	case SpaceBlocked:
		sum.Blocked++
	case SpaceInternal:
		sum.Internal++
	}
}
