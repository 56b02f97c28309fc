package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/transborda/cargo-booking/internal/model"
)

// TripRepo provides read and write access to the trips table.  Trip rows are
// written on creation and through explicit admin edits only; the booking flow
// never mutates them.  All timestamps are stored in UTC.
type TripRepo struct {
	db *sql.DB
}

// NewTripRepo returns a TripRepo bound to the given database.
func NewTripRepo(db *sql.DB) *TripRepo { return &TripRepo{db: db} }

// DB exposes the underlying handle so services can open transactions that
// span multiple repositories.
func (r *TripRepo) DB() *sql.DB { return r.db }

const tripColumns = `id, origin, destination, departure_date, status, is_international,
	   total_spaces, price_per_space, individual_pricing, pickup_cost, currency,
	   tax_included, tax_rate, payment_deadline_hours, max_spaces_per_client,
	   created_by, created_at, updated_at`

func scanTrip(row interface {
	Scan(dest ...interface{}) error
}) (*model.Trip, error) {
	var (
		t             model.Trip
		id            string
		status        string
		price         sql.NullString
		pickup        sql.NullString
		taxRate       sql.NullString
		maxPerClient  sql.NullInt64
		createdBy     sql.NullString
	)
	err := row.Scan(&id, &t.Origin, &t.Destination, &t.DepartureDate, &status,
		&t.IsInternational, &t.TotalSpaces, &price, &t.IndividualPricing, &pickup,
		&t.Currency, &t.TaxIncluded, &taxRate, &t.PaymentDeadlineHours,
		&maxPerClient, &createdBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if t.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	t.Status = model.TripStatus(status)
	if t.PricePerSpace, err = scanDecimal(price); err != nil {
		return nil, err
	}
	if pickup.Valid {
		d, err := scanDecimal(pickup)
		if err != nil {
			return nil, err
		}
		t.PickupCost = &d
	}
	if t.TaxRate, err = scanDecimal(taxRate); err != nil {
		return nil, err
	}
	t.MaxSpacesPerClient = intPtr(maxPerClient)
	if t.CreatedBy, err = scanUUIDPtr(createdBy); err != nil {
		return nil, err
	}
	return &t, nil
}

// GetByID loads one trip.  It returns ErrNotFound when no trip with the
// given ID exists.
func (r *TripRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Trip, error) {
	const q = `SELECT ` + tripColumns + ` FROM trips WHERE id = ?`
	t, err := scanTrip(r.db.QueryRowContext(ctx, q, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// GetTx is GetByID inside an existing transaction.
func (r *TripRepo) GetTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*model.Trip, error) {
	const q = `SELECT ` + tripColumns + ` FROM trips WHERE id = ?`
	t, err := scanTrip(tx.QueryRowContext(ctx, q, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// List returns trips ordered by departure date, optionally filtered by
// status.
func (r *TripRepo) List(ctx context.Context, status *model.TripStatus) ([]model.Trip, error) {
	q := `SELECT ` + tripColumns + ` FROM trips`
	args := []interface{}{}
	if status != nil {
		q += ` WHERE status = ?`
		args = append(args, string(*status))
	}
	q += ` ORDER BY departure_date`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	trips := make([]model.Trip, 0)
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		trips = append(trips, *t)
	}
	return trips, rows.Err()
}

// CreateTx inserts a new trip within the given transaction.  The caller
// provides the generated ID on the model.
func (r *TripRepo) CreateTx(ctx context.Context, tx *sql.Tx, t *model.Trip) error {
	const q = `INSERT INTO trips (id, origin, destination, departure_date, status,
			   is_international, total_spaces, price_per_space, individual_pricing,
			   pickup_cost, currency, tax_included, tax_rate, payment_deadline_hours,
			   max_spaces_per_client, created_by)
			   VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	var pickup interface{}
	if t.PickupCost != nil {
		pickup = t.PickupCost.String()
	}
	var maxPerClient interface{}
	if t.MaxSpacesPerClient != nil {
		maxPerClient = *t.MaxSpacesPerClient
	}
	var createdBy interface{}
	if t.CreatedBy != nil {
		createdBy = t.CreatedBy.String()
	}
	_, err := tx.ExecContext(ctx, q,
		t.ID.String(), t.Origin, t.Destination,
		t.DepartureDate.UTC().Format("2006-01-02"), string(t.Status),
		t.IsInternational, t.TotalSpaces, t.PricePerSpace.String(),
		t.IndividualPricing, pickup, t.Currency, t.TaxIncluded,
		t.TaxRate.String(), t.PaymentDeadlineHours, maxPerClient, createdBy)
	return err
}

// UpdateTx writes back every mutable trip field within the transaction.  The
// service layer applies a typed patch to the loaded trip first, so this is a
// full write of the merged row.
func (r *TripRepo) UpdateTx(ctx context.Context, tx *sql.Tx, t *model.Trip) error {
	const q = `UPDATE trips SET origin = ?, destination = ?, departure_date = ?,
			   status = ?, is_international = ?, total_spaces = ?,
			   price_per_space = ?, individual_pricing = ?, pickup_cost = ?,
			   currency = ?, tax_included = ?, tax_rate = ?,
			   payment_deadline_hours = ?, max_spaces_per_client = ?
			   WHERE id = ?`
	var pickup interface{}
	if t.PickupCost != nil {
		pickup = t.PickupCost.String()
	}
	var maxPerClient interface{}
	if t.MaxSpacesPerClient != nil {
		maxPerClient = *t.MaxSpacesPerClient
	}
	// RowsAffected is not checked: MySQL reports zero affected rows for a
	// no-op write, and the service layer has already loaded the trip.
	_, err := tx.ExecContext(ctx, q,
		t.Origin, t.Destination, t.DepartureDate.UTC().Format("2006-01-02"),
		string(t.Status), t.IsInternational, t.TotalSpaces,
		t.PricePerSpace.String(), t.IndividualPricing, pickup, t.Currency,
		t.TaxIncluded, t.TaxRate.String(), t.PaymentDeadlineHours, maxPerClient,
		t.ID.String())
	return err
}

// DeadlineFor computes the payment deadline for a reservation created at the
// given time on this trip.
func DeadlineFor(t *model.Trip, createdAt time.Time) time.Time {
	return createdAt.Add(time.Duration(t.PaymentDeadlineHours) * time.Hour)
}
