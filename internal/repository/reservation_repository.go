package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/transborda/cargo-booking/internal/model"
)

// ReservationRepo provides data access to reservations, their cargo items
// and their space links.  Reservations are created only by the reservation
// builder from an already-held set of spaces and mutated by the payment
// lifecycle and the deadline sweeper.  All timestamps are stored in UTC.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationColumns = `id, client_id, trip_id, status, payment_method, payment_status,
	   subtotal, tax_amount, discount_amount, total_amount, discount_reason,
	   is_international, use_own_bond, bond_file_ref, request_pickup, pickup_details,
	   requires_invoice, payment_proof_ref, ticket_ref, review_note,
	   payment_confirmed_at, payment_confirmed_by,
	   cancellation_reason, cancelled_at, cancelled_by, created_at, updated_at`

func scanReservation(row interface {
	Scan(dest ...interface{}) error
}) (*model.Reservation, error) {
	var (
		res                model.Reservation
		id, clientID, trip string
		status, method     string
		payStatus          string
		subtotal, tax      sql.NullString
		discount, total    sql.NullString
		discountReason     sql.NullString
		bondRef, pickupDet sql.NullString
		proofRef, ticket   sql.NullString
		reviewNote         sql.NullString
		confirmedAt        sql.NullTime
		confirmedBy        sql.NullString
		cancelReason       sql.NullString
		cancelledAt        sql.NullTime
		cancelledBy        sql.NullString
	)
	err := row.Scan(&id, &clientID, &trip, &status, &method, &payStatus,
		&subtotal, &tax, &discount, &total, &discountReason,
		&res.IsInternational, &res.UseOwnBond, &bondRef, &res.RequestPickup,
		&pickupDet, &res.RequiresInvoice, &proofRef, &ticket, &reviewNote,
		&confirmedAt, &confirmedBy, &cancelReason, &cancelledAt, &cancelledBy,
		&res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if res.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if res.ClientID, err = uuid.Parse(clientID); err != nil {
		return nil, err
	}
	if res.TripID, err = uuid.Parse(trip); err != nil {
		return nil, err
	}
	res.Status = model.ReservationStatus(status)
	res.PaymentMethod = model.PaymentMethod(method)
	res.PaymentStatus = model.PaymentStatus(payStatus)
	for _, f := range []struct {
		src sql.NullString
		dst *decimal.Decimal
	}{{subtotal, &res.Subtotal}, {tax, &res.TaxAmount},
		{discount, &res.DiscountAmount}, {total, &res.TotalAmount}} {
		if *f.dst, err = scanDecimal(f.src); err != nil {
			return nil, err
		}
	}
	res.DiscountReason = strPtr(discountReason)
	res.BondFileRef = strPtr(bondRef)
	res.PickupDetails = strPtr(pickupDet)
	res.PaymentProofRef = strPtr(proofRef)
	res.TicketRef = strPtr(ticket)
	res.ReviewNote = strPtr(reviewNote)
	if confirmedAt.Valid {
		t := confirmedAt.Time.UTC()
		res.PaymentConfirmedAt = &t
	}
	if res.PaymentConfirmedBy, err = scanUUIDPtr(confirmedBy); err != nil {
		return nil, err
	}
	res.CancellationReason = strPtr(cancelReason)
	if cancelledAt.Valid {
		t := cancelledAt.Time.UTC()
		res.CancelledAt = &t
	}
	if res.CancelledBy, err = scanUUIDPtr(cancelledBy); err != nil {
		return nil, err
	}
	return &res, nil
}

// CreateTx inserts a new reservation within the given transaction.  The
// caller provides the generated ID and all computed amounts.
func (r *ReservationRepo) CreateTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
	const q = `INSERT INTO reservations (id, client_id, trip_id, status, payment_method,
			   payment_status, subtotal, tax_amount, discount_amount, total_amount,
			   discount_reason, is_international, use_own_bond, bond_file_ref,
			   request_pickup, pickup_details, requires_invoice,
			   payment_confirmed_at, payment_confirmed_by)
			   VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	var confirmedAt interface{}
	if res.PaymentConfirmedAt != nil {
		confirmedAt = res.PaymentConfirmedAt.UTC()
	}
	var confirmedBy interface{}
	if res.PaymentConfirmedBy != nil {
		confirmedBy = res.PaymentConfirmedBy.String()
	}
	var bondRef, pickupDetails, discountReason interface{}
	if res.BondFileRef != nil {
		bondRef = *res.BondFileRef
	}
	if res.PickupDetails != nil {
		pickupDetails = *res.PickupDetails
	}
	if res.DiscountReason != nil {
		discountReason = *res.DiscountReason
	}
	_, err := tx.ExecContext(ctx, q,
		res.ID.String(), res.ClientID.String(), res.TripID.String(),
		string(res.Status), string(res.PaymentMethod), string(res.PaymentStatus),
		res.Subtotal.String(), res.TaxAmount.String(),
		res.DiscountAmount.String(), res.TotalAmount.String(), discountReason,
		res.IsInternational, res.UseOwnBond, bondRef, res.RequestPickup,
		pickupDetails, res.RequiresInvoice, confirmedAt, confirmedBy)
	return err
}

// InsertItemsTx inserts the cargo items of a reservation in one statement.
func (r *ReservationRepo) InsertItemsTx(ctx context.Context, tx *sql.Tx, items []model.LoadItem) error {
	if len(items) == 0 {
		return nil
	}
	query := `INSERT INTO load_items (id, reservation_id, space_id, product_name,
			  box_count, total_weight, weight_unit, packaging_type,
			  labeling_required, label_quantity, label_dimensions) VALUES `
	args := make([]interface{}, 0, len(items)*11)
	for i, it := range items {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
		var spaceID, packaging, dims interface{}
		if it.SpaceID != nil {
			spaceID = it.SpaceID.String()
		}
		if it.PackagingType != nil {
			packaging = *it.PackagingType
		}
		if it.LabelDimensions != nil {
			dims = *it.LabelDimensions
		}
		args = append(args, it.ID.String(), it.ReservationID.String(), spaceID,
			it.ProductName, it.BoxCount, it.TotalWeight.String(), it.WeightUnit,
			packaging, it.LabelingRequired, it.LabelQuantity, dims)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// LinkSpacesTx inserts one reservation_spaces row per space.  The table has
// a unique key on (reservation_id, space_id), so double links fail loudly.
func (r *ReservationRepo) LinkSpacesTx(ctx context.Context, tx *sql.Tx, reservationID uuid.UUID, spaceIDs []uuid.UUID) error {
	if len(spaceIDs) == 0 {
		return nil
	}
	query := `INSERT INTO reservation_spaces (reservation_id, space_id) VALUES `
	args := make([]interface{}, 0, len(spaceIDs)*2)
	for i, sid := range spaceIDs {
		if i > 0 {
			query += ","
		}
		query += "(?, ?)"
		args = append(args, reservationID.String(), sid.String())
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// GetByID loads one reservation.  It returns ErrNotFound when absent.
func (r *ReservationRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Reservation, error) {
	const q = `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`
	res, err := scanReservation(r.db.QueryRowContext(ctx, q, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return res, err
}

// GetTx loads one reservation with a row lock inside the transaction.
func (r *ReservationRepo) GetTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*model.Reservation, error) {
	const q = `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ? FOR UPDATE`
	res, err := scanReservation(tx.QueryRowContext(ctx, q, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return res, err
}

// SpaceIDsTx returns the IDs of the spaces linked to a reservation.
func (r *ReservationRepo) SpaceIDsTx(ctx context.Context, tx *sql.Tx, reservationID uuid.UUID) ([]uuid.UUID, error) {
	const q = `SELECT space_id FROM reservation_spaces WHERE reservation_id = ?`
	rows, err := tx.QueryContext(ctx, q, reservationID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListItems returns the cargo items of a reservation.
func (r *ReservationRepo) ListItems(ctx context.Context, reservationID uuid.UUID) ([]model.LoadItem, error) {
	const q = `SELECT id, reservation_id, space_id, product_name, box_count,
			   total_weight, weight_unit, packaging_type, labeling_required,
			   label_quantity, label_dimensions
			   FROM load_items WHERE reservation_id = ?`
	rows, err := r.db.QueryContext(ctx, q, reservationID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]model.LoadItem, 0)
	for rows.Next() {
		var (
			it          model.LoadItem
			id, resID   string
			spaceID     sql.NullString
			weight      sql.NullString
			packaging   sql.NullString
			labelQty    sql.NullInt64
			dims        sql.NullString
		)
		if err := rows.Scan(&id, &resID, &spaceID, &it.ProductName, &it.BoxCount,
			&weight, &it.WeightUnit, &packaging, &it.LabelingRequired,
			&labelQty, &dims); err != nil {
			return nil, err
		}
		if it.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		if it.ReservationID, err = uuid.Parse(resID); err != nil {
			return nil, err
		}
		if it.SpaceID, err = scanUUIDPtr(spaceID); err != nil {
			return nil, err
		}
		if it.TotalWeight, err = scanDecimal(weight); err != nil {
			return nil, err
		}
		it.PackagingType = strPtr(packaging)
		if labelQty.Valid {
			it.LabelQuantity = int(labelQty.Int64)
		}
		it.LabelDimensions = strPtr(dims)
		items = append(items, it)
	}
	return items, rows.Err()
}

// MarkCancelledTx records a cancellation: status, reason, actor and time.
func (r *ReservationRepo) MarkCancelledTx(ctx context.Context, tx *sql.Tx, id uuid.UUID, reason *string, by uuid.UUID, at time.Time) error {
	const q = `UPDATE reservations
			   SET status = ?, cancellation_reason = ?, cancelled_by = ?, cancelled_at = ?
			   WHERE id = ?`
	var reasonArg interface{}
	if reason != nil {
		reasonArg = *reason
	}
	_, err := tx.ExecContext(ctx, q, string(model.ReservationCancelled),
		reasonArg, by.String(), at.UTC(), id.String())
	return err
}

// MarkPaidTx records an approved payment: paid, confirmed, stamped with the
// confirming user and time.
func (r *ReservationRepo) MarkPaidTx(ctx context.Context, tx *sql.Tx, id uuid.UUID, by uuid.UUID, at time.Time) error {
	const q = `UPDATE reservations
			   SET payment_status = ?, status = ?, payment_confirmed_by = ?, payment_confirmed_at = ?
			   WHERE id = ?`
	_, err := tx.ExecContext(ctx, q, string(model.PaymentPaid),
		string(model.ReservationConfirmed), by.String(), at.UTC(), id.String())
	return err
}

// MarkRejectedTx reverts an uploaded proof to unpaid, keeping the
// reservation pending and storing the reviewer's note so the client can fix
// and re-upload.
func (r *ReservationRepo) MarkRejectedTx(ctx context.Context, tx *sql.Tx, id uuid.UUID, note *string) error {
	const q = `UPDATE reservations SET payment_status = ?, review_note = ? WHERE id = ?`
	var noteArg interface{}
	if note != nil {
		noteArg = *note
	}
	_, err := tx.ExecContext(ctx, q, string(model.PaymentUnpaid), noteArg, id.String())
	return err
}

// SetPaymentProofTx stores the proof reference and moves the payment into
// review.
func (r *ReservationRepo) SetPaymentProofTx(ctx context.Context, tx *sql.Tx, id uuid.UUID, ref string) error {
	const q = `UPDATE reservations SET payment_proof_ref = ?, payment_status = ? WHERE id = ?`
	_, err := tx.ExecContext(ctx, q, ref, string(model.PaymentPendingReview), id.String())
	return err
}

// SetTicketRef stores the generated ticket reference.
func (r *ReservationRepo) SetTicketRef(ctx context.Context, id uuid.UUID, ref string) error {
	const q = `UPDATE reservations SET ticket_ref = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, q, ref, id.String())
	return err
}

// UpdateMutableTx writes back the client-mutable fields after a typed patch
// has been applied.
func (r *ReservationRepo) UpdateMutableTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
	const q = `UPDATE reservations SET requires_invoice = ?, payment_method = ? WHERE id = ?`
	_, err := tx.ExecContext(ctx, q, res.RequiresInvoice,
		string(res.PaymentMethod), res.ID.String())
	return err
}

// DeleteTx removes a reservation together with its items and space links.
func (r *ReservationRepo) DeleteTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) error {
	for _, q := range []string{
		`DELETE FROM load_items WHERE reservation_id = ?`,
		`DELETE FROM reservation_spaces WHERE reservation_id = ?`,
		`DELETE FROM reservations WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id.String()); err != nil {
			return err
		}
	}
	return nil
}

// Filter narrows reservation listings.  Nil fields are ignored.
type Filter struct {
	ClientID      *uuid.UUID
	TripID        *uuid.UUID
	Status        *model.ReservationStatus
	PaymentStatus *model.PaymentStatus
	Offset        int
	Limit         int
}

func (f Filter) where() (string, []interface{}) {
	clause := ""
	args := []interface{}{}
	add := func(cond string, arg interface{}) {
		if clause == "" {
			clause = " WHERE " + cond
		} else {
			clause += " AND " + cond
		}
		args = append(args, arg)
	}
	if f.ClientID != nil {
		add("client_id = ?", f.ClientID.String())
	}
	if f.TripID != nil {
		add("trip_id = ?", f.TripID.String())
	}
	if f.Status != nil {
		add("status = ?", string(*f.Status))
	}
	if f.PaymentStatus != nil {
		add("payment_status = ?", string(*f.PaymentStatus))
	}
	return clause, args
}

// List returns reservations matching the filter, newest first.
func (r *ReservationRepo) List(ctx context.Context, f Filter) ([]model.Reservation, error) {
	clause, args := f.where()
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT ` + reservationColumns + ` FROM reservations` + clause +
		` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, f.Offset)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Reservation, 0)
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

// Count returns the number of reservations matching the filter.
func (r *ReservationRepo) Count(ctx context.Context, f Filter) (int, error) {
	clause, args := f.where()
	q := `SELECT COUNT(*) FROM reservations` + clause
	var n int
	err := r.db.QueryRowContext(ctx, q, args...).Scan(&n)
	return n, err
}

// DeadlineCandidate is a pending, unpaid reservation whose trip payment
// deadline has elapsed, as selected by PastDeadline.
type DeadlineCandidate struct {
	ReservationID uuid.UUID
	ClientID      uuid.UUID
	TripID        uuid.UUID
	TotalAmount   decimal.Decimal
}

// PastDeadline selects reservations still awaiting payment whose creation
// time plus the trip's payment_deadline_hours lies in the past, using the
// database server's UTC clock.  The sweeper re-checks each candidate under a
// row lock before cancelling, so this read takes no locks.
func (r *ReservationRepo) PastDeadline(ctx context.Context) ([]DeadlineCandidate, error) {
	const q = `SELECT r.id, r.client_id, r.trip_id, r.total_amount
			   FROM reservations r
			   JOIN trips t ON t.id = r.trip_id
			   WHERE r.status = ? AND r.payment_status IN (?, ?)
				 AND DATE_ADD(r.created_at, INTERVAL t.payment_deadline_hours HOUR) < UTC_TIMESTAMP()`
	rows, err := r.db.QueryContext(ctx, q, string(model.ReservationPending),
		string(model.PaymentUnpaid), string(model.PaymentPendingReview))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DeadlineCandidate
	for rows.Next() {
		var (
			c           DeadlineCandidate
			id, cl, tr  string
			total       sql.NullString
		)
		if err := rows.Scan(&id, &cl, &tr, &total); err != nil {
			return nil, err
		}
		if c.ReservationID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		if c.ClientID, err = uuid.Parse(cl); err != nil {
			return nil, err
		}
		if c.TripID, err = uuid.Parse(tr); err != nil {
			return nil, err
		}
		if c.TotalAmount, err = scanDecimal(total); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
