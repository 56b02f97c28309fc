package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestTripDeparted(t *testing.T) {
	trip := Trip{DepartureDate: day(2026, 3, 10)}

	if trip.Departed(day(2026, 3, 9)) {
		t.Error("trip should not be departed the day before")
	}
	// Same day counts as not departed, even late in the evening.
	if trip.Departed(time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)) {
		t.Error("trip should not be departed on departure day")
	}
	if !trip.Departed(day(2026, 3, 11)) {
		t.Error("trip should be departed the day after")
	}
}

func TestTripPatchApplyPartial(t *testing.T) {
	trip := Trip{
		Origin:               "CDMX",
		Destination:          "Guadalajara",
		TotalSpaces:          20,
		PricePerSpace:        decimal.NewFromInt(100),
		PaymentDeadlineHours: 48,
	}

	newDest := "Monterrey"
	newPrice := decimal.NewFromInt(150)
	patch := TripPatch{Destination: &newDest, PricePerSpace: &newPrice}
	patch.Apply(&trip)

	if trip.Destination != "Monterrey" {
		t.Errorf("destination = %s, want Monterrey", trip.Destination)
	}
	if !trip.PricePerSpace.Equal(decimal.NewFromInt(150)) {
		t.Errorf("price = %s, want 150", trip.PricePerSpace)
	}
	// Untouched fields survive.
	if trip.Origin != "CDMX" || trip.TotalSpaces != 20 || trip.PaymentDeadlineHours != 48 {
		t.Errorf("unpatched fields changed: %+v", trip)
	}
}

func TestTripPatchApplyCap(t *testing.T) {
	trip := Trip{}
	limit := 5
	TripPatch{MaxSpacesPerClient: &limit}.Apply(&trip)
	if trip.MaxSpacesPerClient == nil || *trip.MaxSpacesPerClient != 5 {
		t.Errorf("cap not applied: %+v", trip.MaxSpacesPerClient)
	}
	// The patch owns its value; mutating the source must not leak in.
	limit = 9
	if *trip.MaxSpacesPerClient != 5 {
		t.Error("patch aliased the caller's pointer")
	}
}

func TestReservationAwaitingPayment(t *testing.T) {
	cases := []struct {
		status  ReservationStatus
		payment PaymentStatus
		want    bool
	}{
		{ReservationPending, PaymentUnpaid, true},
		{ReservationPending, PaymentPendingReview, true},
		{ReservationPending, PaymentPaid, false},
		{ReservationConfirmed, PaymentPaid, false},
		{ReservationCancelled, PaymentUnpaid, false},
	}
	for _, c := range cases {
		r := Reservation{Status: c.status, PaymentStatus: c.payment}
		if got := r.AwaitingPayment(); got != c.want {
			t.Errorf("%s/%s: awaiting = %v, want %v", c.status, c.payment, got, c.want)
		}
	}
}
