package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReservationStatus enumerates the lifecycle of a reservation.
type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationCancelled ReservationStatus = "cancelled"
)

// PaymentStatus tracks the payment side of a reservation independently of
// its lifecycle status.
type PaymentStatus string

const (
	PaymentUnpaid        PaymentStatus = "unpaid"
	PaymentPendingReview PaymentStatus = "pending_review"
	PaymentPaid          PaymentStatus = "paid"
	PaymentRefunded      PaymentStatus = "refunded"
)

// PaymentMethod names how the client intends to pay.
type PaymentMethod string

const (
	PayCash         PaymentMethod = "cash"
	PayBankTransfer PaymentMethod = "bank_transfer"
	PayMercadoPago  PaymentMethod = "mercadopago"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PayCash, PayBankTransfer, PayMercadoPago:
		return true
	}
	return false
}

// Reservation is a client's claim over one or more spaces of a trip, plus
// the cargo carried and the payment state.  All amounts are fixed-point
// decimals in the trip currency.
type Reservation struct {
	ID             uuid.UUID
	ClientID       uuid.UUID
	TripID         uuid.UUID
	Status         ReservationStatus
	PaymentMethod  PaymentMethod
	PaymentStatus  PaymentStatus
	Subtotal       decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	TotalAmount    decimal.Decimal
	DiscountReason *string

	IsInternational bool
	UseOwnBond      bool
	BondFileRef     *string
	RequestPickup   bool
	PickupDetails   *string
	RequiresInvoice bool

	PaymentProofRef    *string
	TicketRef          *string
	ReviewNote         *string
	PaymentConfirmedAt *time.Time
	PaymentConfirmedBy *uuid.UUID

	CancellationReason *string
	CancelledAt        *time.Time
	CancelledBy        *uuid.UUID

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AwaitingPayment reports whether the reservation still counts against the
// payment deadline: pending and neither paid nor refunded.
func (r *Reservation) AwaitingPayment() bool {
	return r.Status == ReservationPending &&
		(r.PaymentStatus == PaymentUnpaid || r.PaymentStatus == PaymentPendingReview)
}

// ReservationPatch lists the reservation fields a client may change before
// payment.  Nil fields are left untouched.
type ReservationPatch struct {
	RequiresInvoice *bool
	PaymentMethod   *PaymentMethod
}

// Apply merges the patch into the reservation field by field.  Guards on
// when each field may change (pending only, payment method only while
// unpaid) live in the service layer.
func (p ReservationPatch) Apply(r *Reservation) {
	if p.RequiresInvoice != nil {
		r.RequiresInvoice = *p.RequiresInvoice
	}
	if p.PaymentMethod != nil {
		r.PaymentMethod = *p.PaymentMethod
	}
}
