package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"

	"github.com/transborda/cargo-booking/internal/model"
	"github.com/transborda/cargo-booking/internal/repository"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func flatTrip(price string, taxIncluded bool, taxRate string) *model.Trip {
	return &model.Trip{
		PricePerSpace: dec(price),
		Currency:      "MXN",
		TaxIncluded:   taxIncluded,
		TaxRate:       dec(taxRate),
	}
}

func nSpaces(n int) []model.Space {
	out := make([]model.Space, n)
	return out
}

func TestCalculatePriceTaxIncluded(t *testing.T) {
	// 200.00 with 16% included: the tax component is backed out of the
	// price, the total stays 200.00.
	trip := flatTrip("200.00", true, "0.16")
	got := CalculatePrice(trip, nSpaces(1), decimal.Zero, decimal.Zero)

	if !got.Subtotal.Equal(dec("200.00")) {
		t.Errorf("subtotal = %s, want 200.00", got.Subtotal)
	}
	if !got.TaxAmount.Equal(dec("27.59")) {
		t.Errorf("tax = %s, want 27.59", got.TaxAmount)
	}
	if !got.TotalAmount.Equal(dec("200.00")) {
		t.Errorf("total = %s, want 200.00", got.TotalAmount)
	}
}

func TestCalculatePriceTaxExcluded(t *testing.T) {
	trip := flatTrip("100.00", false, "0.16")
	got := CalculatePrice(trip, nSpaces(1), decimal.Zero, decimal.Zero)

	if !got.TaxAmount.Equal(dec("16.00")) {
		t.Errorf("tax = %s, want 16.00", got.TaxAmount)
	}
	if !got.TotalAmount.Equal(dec("116.00")) {
		t.Errorf("total = %s, want 116.00", got.TotalAmount)
	}
}

func TestCalculatePriceMultipleSpaces(t *testing.T) {
	trip := flatTrip("150.00", false, "0.08")
	got := CalculatePrice(trip, nSpaces(3), decimal.Zero, decimal.Zero)

	if !got.Subtotal.Equal(dec("450.00")) {
		t.Errorf("subtotal = %s, want 450.00", got.Subtotal)
	}
	if !got.TaxAmount.Equal(dec("36.00")) {
		t.Errorf("tax = %s, want 36.00", got.TaxAmount)
	}
	if !got.TotalAmount.Equal(dec("486.00")) {
		t.Errorf("total = %s, want 486.00", got.TotalAmount)
	}
	if got.SpacesCount != 3 {
		t.Errorf("spaces count = %d, want 3", got.SpacesCount)
	}
}

func TestCalculatePriceIndividualPricing(t *testing.T) {
	trip := flatTrip("0", false, "0")
	trip.IndividualPricing = true
	spaces := []model.Space{
		{Price: dec("120.00")},
		{Price: dec("80.50")},
	}
	got := CalculatePrice(trip, spaces, decimal.Zero, decimal.Zero)

	if !got.Subtotal.Equal(dec("200.50")) {
		t.Errorf("subtotal = %s, want 200.50", got.Subtotal)
	}
	if !got.TotalAmount.Equal(dec("200.50")) {
		t.Errorf("total = %s, want 200.50", got.TotalAmount)
	}
}

func TestCalculatePriceDiscountBeforeTax(t *testing.T) {
	trip := flatTrip("100.00", false, "0.10")
	got := CalculatePrice(trip, nSpaces(1), dec("20.00"), decimal.Zero)

	// Tax applies to the discounted base: (100 - 20) * 0.10 = 8.
	if !got.TaxAmount.Equal(dec("8.00")) {
		t.Errorf("tax = %s, want 8.00", got.TaxAmount)
	}
	if !got.TotalAmount.Equal(dec("88.00")) {
		t.Errorf("total = %s, want 88.00", got.TotalAmount)
	}
}

func TestCalculatePriceExtrasTaxed(t *testing.T) {
	trip := flatTrip("100.00", false, "0.16")
	got := CalculatePrice(trip, nSpaces(1), decimal.Zero, dec("300.00"))

	// Extras join the subtotal before tax.
	if !got.Subtotal.Equal(dec("400.00")) {
		t.Errorf("subtotal = %s, want 400.00", got.Subtotal)
	}
	if !got.TaxAmount.Equal(dec("64.00")) {
		t.Errorf("tax = %s, want 64.00", got.TaxAmount)
	}
	if !got.TotalAmount.Equal(dec("464.00")) {
		t.Errorf("total = %s, want 464.00", got.TotalAmount)
	}
}

func newPriceStore(t *testing.T) (*PriceStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPriceStore(repository.NewSystemConfigRepo(db), nil, 0), mock
}

func TestExtraServiceCostsLabeling(t *testing.T) {
	prices, mock := newPriceStore(t)
	dims := "2x2"
	mock.ExpectQuery(`SELECT cfg_value FROM system_config`).
		WithArgs("price_label_2x2").
		WillReturnRows(sqlmock.NewRows([]string{"cfg_value"}).AddRow("2.50"))

	items := []LoadItemInput{{
		ProductName:      "boxes",
		LabelingRequired: true,
		LabelQuantity:    10,
		LabelDimensions:  &dims,
	}}
	got := ExtraServiceCosts(context.Background(), prices, &model.Trip{}, items, ServiceFlags{})
	if !got.Equal(dec("25.00")) {
		t.Errorf("extras = %s, want 25.00", got)
	}
}

func TestExtraServiceCostsBondFallback(t *testing.T) {
	prices, mock := newPriceStore(t)
	mock.ExpectQuery(`SELECT cfg_value FROM system_config`).
		WithArgs("price_bond_service").
		WillReturnError(sql.ErrNoRows)

	flags := ServiceFlags{IsInternational: true}
	got := ExtraServiceCosts(context.Background(), prices, &model.Trip{}, nil, flags)
	if !got.Equal(dec("500")) {
		t.Errorf("extras = %s, want default bond fee 500", got)
	}
}

func TestExtraServiceCostsOwnBondSkipsFee(t *testing.T) {
	prices, _ := newPriceStore(t)
	flags := ServiceFlags{IsInternational: true, UseOwnBond: true}
	got := ExtraServiceCosts(context.Background(), prices, &model.Trip{}, nil, flags)
	if !got.IsZero() {
		t.Errorf("extras = %s, want 0 with own bond", got)
	}
}

func TestExtraServiceCostsPickupOverride(t *testing.T) {
	prices, _ := newPriceStore(t)
	override := dec("450.00")
	trip := &model.Trip{PickupCost: &override}
	got := ExtraServiceCosts(context.Background(), prices, trip, nil, ServiceFlags{RequestPickup: true})
	if !got.Equal(override) {
		t.Errorf("extras = %s, want trip override 450.00", got)
	}
}
