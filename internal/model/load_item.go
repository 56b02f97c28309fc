package model

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LoadItem is one cargo line of a reservation: a product, how many boxes of
// it, the total weight and the per-item service flags.  SpaceID optionally
// pins the item to a specific space of the reservation.
type LoadItem struct {
	ID            uuid.UUID
	ReservationID uuid.UUID
	SpaceID       *uuid.UUID

	ProductName   string
	BoxCount      int
	TotalWeight   decimal.Decimal
	WeightUnit    string
	PackagingType *string

	LabelingRequired bool
	LabelQuantity    int
	LabelDimensions  *string
}
