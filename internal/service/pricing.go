package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/transborda/cargo-booking/internal/model"
)

// Monetary amounts are rounded to two decimal places; rates keep their full
// precision until the final rounding.
const moneyScale = 2

// PriceBreakdown is the computed price of a reservation.
type PriceBreakdown struct {
	Subtotal       decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	TotalAmount    decimal.Decimal
	SpacesCount    int
	PricePerSpace  decimal.Decimal
	TaxRate        decimal.Decimal
	TaxIncluded    bool
}

// CalculatePrice computes the price of booking the given spaces on a trip.
//
// The subtotal is price-per-space times count, or the sum of the individual
// space prices when the trip uses individual pricing.  Extra service costs
// are added to the subtotal before tax.  The discount is subtracted first,
// then tax is backed out of the discounted subtotal when the trip price is
// tax-inclusive, or added on top otherwise.  Everything is fixed-point
// decimal; no float ever touches an amount.
func CalculatePrice(trip *model.Trip, spaces []model.Space, discount, extraCosts decimal.Decimal) PriceBreakdown {
	var subtotal decimal.Decimal
	if trip.IndividualPricing {
		for _, s := range spaces {
			subtotal = subtotal.Add(s.Price)
		}
	} else {
		subtotal = trip.PricePerSpace.Mul(decimal.NewFromInt(int64(len(spaces))))
	}
	subtotal = subtotal.Add(extraCosts)

	base := subtotal.Sub(discount)
	var tax decimal.Decimal
	if trip.TaxIncluded {
		// Back the tax out: base * rate / (1 + rate).
		one := decimal.NewFromInt(1)
		tax = base.Mul(trip.TaxRate).DivRound(one.Add(trip.TaxRate), moneyScale+2)
	} else {
		tax = base.Mul(trip.TaxRate)
	}
	tax = tax.Round(moneyScale)

	total := base
	if !trip.TaxIncluded {
		total = base.Add(tax)
	}

	return PriceBreakdown{
		Subtotal:       subtotal.Round(moneyScale),
		TaxAmount:      tax,
		DiscountAmount: discount.Round(moneyScale),
		TotalAmount:    total.Round(moneyScale),
		SpacesCount:    len(spaces),
		PricePerSpace:  trip.PricePerSpace,
		TaxRate:        trip.TaxRate,
		TaxIncluded:    trip.TaxIncluded,
	}
}

// LoadItemInput is one cargo line submitted with a reservation request.
type LoadItemInput struct {
	SpaceID          *string
	ProductName      string
	BoxCount         int
	TotalWeight      decimal.Decimal
	WeightUnit       string
	PackagingType    *string
	LabelingRequired bool
	LabelQuantity    int
	LabelDimensions  *string
}

// ServiceFlags are the extra-service switches of a reservation request.
type ServiceFlags struct {
	IsInternational bool
	UseOwnBond      bool
	BondFileRef     *string
	RequestPickup   bool
	PickupDetails   *string
	RequiresInvoice bool
}

// ExtraServiceCosts sums the cost of the requested extra services using the
// externally configured prices:
//
//   - labeling: the per-label price for the item's label dimension times the
//     requested quantity, per item;
//   - bond service: a flat fee on international cargo, skipped when the
//     client supplies their own bond;
//   - pickup: the trip-specific override when set, otherwise the configured
//     default.
func ExtraServiceCosts(ctx context.Context, prices *PriceStore, trip *model.Trip, items []LoadItemInput, flags ServiceFlags) decimal.Decimal {
	extra := decimal.Zero

	for _, it := range items {
		if it.LabelingRequired && it.LabelQuantity > 0 {
			perLabel := prices.LabelPrice(ctx, it.LabelDimensions)
			extra = extra.Add(perLabel.Mul(decimal.NewFromInt(int64(it.LabelQuantity))))
		}
	}

	if flags.IsInternational && !flags.UseOwnBond {
		extra = extra.Add(prices.BondFee(ctx))
	}

	if flags.RequestPickup {
		if trip.PickupCost != nil {
			extra = extra.Add(*trip.PickupCost)
		} else {
			extra = extra.Add(prices.PickupFee(ctx))
		}
	}

	return extra
}
