package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TripStatus enumerates the lifecycle of a scheduled trip.
type TripStatus string

const (
	TripScheduled TripStatus = "scheduled"
	TripInTransit TripStatus = "in_transit"
	TripCompleted TripStatus = "completed"
	TripCancelled TripStatus = "cancelled"
)

// Trip is a scheduled transport run with a fixed inventory of spaces.  The
// monetary fields are fixed-point decimals; TaxRate is a fraction such as
// 0.16.  MaxSpacesPerClient and PickupCost are nil when the trip has no
// per-client cap or no pickup-cost override.
type Trip struct {
	ID                   uuid.UUID
	Origin               string
	Destination          string
	DepartureDate        time.Time // date component only, UTC
	Status               TripStatus
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
	CreatedBy            *uuid.UUID
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Departed reports whether the trip's departure date lies before the given
// day.  Both sides are truncated to the date in UTC, so a trip leaving later
// today still accepts holds.
func (t *Trip) Departed(now time.Time) bool {
	today := now.UTC().Truncate(24 * time.Hour)
	return t.DepartureDate.UTC().Truncate(24 * time.Hour).Before(today)
}

// TripPatch lists the trip fields an admin edit may change.  Nil fields are
// left untouched.  Applying a patch through Apply is the only supported way
// to mutate a trip after creation, so illegal fields can never be set.
type TripPatch struct {
	Origin               *string
	Destination          *string
	DepartureDate        *time.Time
	Status               *TripStatus
	IsInternational      *bool
	TotalSpaces          *int
	PricePerSpace        *decimal.Decimal
	IndividualPricing    *bool
	PickupCost           *decimal.Decimal
	Currency             *string
	TaxIncluded          *bool
	TaxRate              *decimal.Decimal
	PaymentDeadlineHours *int
	MaxSpacesPerClient   *int
}

// Apply merges the patch into the trip field by field.
func (p TripPatch) Apply(t *Trip) {
	if p.Origin != nil {
		t.Origin = *p.Origin
	}
	if p.Destination != nil {
		t.Destination = *p.Destination
	}
	if p.DepartureDate != nil {
		t.DepartureDate = *p.DepartureDate
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.IsInternational != nil {
		t.IsInternational = *p.IsInternational
	}
	if p.TotalSpaces != nil {
		t.TotalSpaces = *p.TotalSpaces
	}
	if p.PricePerSpace != nil {
		t.PricePerSpace = *p.PricePerSpace
	}
	if p.IndividualPricing != nil {
		t.IndividualPricing = *p.IndividualPricing
	}
	if p.PickupCost != nil {
		c := *p.PickupCost
		t.PickupCost = &c
	}
	if p.Currency != nil {
		t.Currency = *p.Currency
	}
	if p.TaxIncluded != nil {
		t.TaxIncluded = *p.TaxIncluded
	}
	if p.TaxRate != nil {
		t.TaxRate = *p.TaxRate
	}
	if p.PaymentDeadlineHours != nil {
		t.PaymentDeadlineHours = *p.PaymentDeadlineHours
	}
	if p.MaxSpacesPerClient != nil {
		c := *p.MaxSpacesPerClient
		t.MaxSpacesPerClient = &c
	}
}
