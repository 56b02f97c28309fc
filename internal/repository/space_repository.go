package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/transborda/cargo-booking/internal/model"
)

// SpaceRepo provides data access to the spaces table.  The spaces table is
// the single shared mutable resource of the booking engine; every multi-row
// mutation runs inside a caller-owned transaction, and the ...Tx methods
// below take row locks scoped to exactly the rows touched.  All expiry
// comparisons happen against the database server's UTC clock, never a
// client-supplied one.
type SpaceRepo struct {
	db *sql.DB
}

// NewSpaceRepo returns a SpaceRepo bound to the given database.
func NewSpaceRepo(db *sql.DB) *SpaceRepo { return &SpaceRepo{db: db} }

const spaceColumns = `id, trip_id, space_number, status, price, held_by,
	   hold_expires_at, created_at, updated_at`

func scanSpace(row interface {
	Scan(dest ...interface{}) error
}) (*model.Space, error) {
	var (
		s       model.Space
		id      string
		tripID  string
		status  string
		price   sql.NullString
		heldBy  sql.NullString
		expires sql.NullTime
	)
	err := row.Scan(&id, &tripID, &s.SpaceNumber, &status, &price, &heldBy,
		&expires, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if s.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if s.TripID, err = uuid.Parse(tripID); err != nil {
		return nil, err
	}
	s.Status = model.SpaceStatus(status)
	if s.Price, err = scanDecimal(price); err != nil {
		return nil, err
	}
	if s.HeldBy, err = scanUUIDPtr(heldBy); err != nil {
		return nil, err
	}
	if expires.Valid {
		t := expires.Time.UTC()
		s.HoldExpiresAt = &t
	}
	return &s, nil
}

func collectSpaces(rows *sql.Rows) ([]model.Space, error) {
	defer rows.Close()
	spaces := make([]model.Space, 0)
	for rows.Next() {
		s, err := scanSpace(rows)
		if err != nil {
			return nil, err
		}
		spaces = append(spaces, *s)
	}
	return spaces, rows.Err()
}

// LockByIDsTx loads the given spaces of a trip with FOR UPDATE row locks,
// serializing concurrent hold and release attempts on the same rows.  The
// result is ordered by space number.  Callers must compare the result length
// against len(ids) to detect missing spaces.
func (r *SpaceRepo) LockByIDsTx(ctx context.Context, tx *sql.Tx, tripID uuid.UUID, ids []uuid.UUID) ([]model.Space, error) {
	if len(ids) == 0 {
		return []model.Space{}, nil
	}
	q := `SELECT ` + spaceColumns + ` FROM spaces
		  WHERE trip_id = ? AND id IN (` + placeholders(len(ids)) + `)
		  ORDER BY space_number
		  FOR UPDATE`
	args := append([]interface{}{tripID.String()}, idArgs(ids)...)
	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return collectSpaces(rows)
}

// LockAnyByIDsTx is LockByIDsTx without the trip filter, for flows that
// operate on a reservation's spaces regardless of trip.
func (r *SpaceRepo) LockAnyByIDsTx(ctx context.Context, tx *sql.Tx, ids []uuid.UUID) ([]model.Space, error) {
	if len(ids) == 0 {
		return []model.Space{}, nil
	}
	q := `SELECT ` + spaceColumns + ` FROM spaces
		  WHERE id IN (` + placeholders(len(ids)) + `)
		  ORDER BY space_number
		  FOR UPDATE`
	rows, err := tx.QueryContext(ctx, q, idArgs(ids)...)
	if err != nil {
		return nil, err
	}
	return collectSpaces(rows)
}

// GetTx loads one space with a row lock.
func (r *SpaceRepo) GetTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*model.Space, error) {
	const q = `SELECT ` + spaceColumns + ` FROM spaces WHERE id = ? FOR UPDATE`
	s, err := scanSpace(tx.QueryRowContext(ctx, q, id.String()))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return s, err
}

// ListByTrip returns every space of a trip ordered by space number.
func (r *SpaceRepo) ListByTrip(ctx context.Context, tripID uuid.UUID) ([]model.Space, error) {
	const q = `SELECT ` + spaceColumns + ` FROM spaces WHERE trip_id = ? ORDER BY space_number`
	rows, err := r.db.QueryContext(ctx, q, tripID.String())
	if err != nil {
		return nil, err
	}
	return collectSpaces(rows)
}

// InsertBulkTx creates the given spaces in one statement.  Used when a trip
// is created or its capacity grows.
func (r *SpaceRepo) InsertBulkTx(ctx context.Context, tx *sql.Tx, spaces []model.Space) error {
	if len(spaces) == 0 {
		return nil
	}
	query := `INSERT INTO spaces (id, trip_id, space_number, status, price) VALUES `
	args := make([]interface{}, 0, len(spaces)*5)
	for i, s := range spaces {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?)"
		args = append(args, s.ID.String(), s.TripID.String(), s.SpaceNumber,
			string(s.Status), s.Price.String())
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// HoldTx places or renews a hold on the given spaces: status on_hold, holder
// set, expiry set.  Eligibility has already been verified under the row
// locks taken by LockByIDsTx in the same transaction.
func (r *SpaceRepo) HoldTx(ctx context.Context, tx *sql.Tx, ids []uuid.UUID, userID uuid.UUID, expiresAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	q := `UPDATE spaces SET status = ?, held_by = ?, hold_expires_at = ?
		  WHERE id IN (` + placeholders(len(ids)) + `)`
	args := append([]interface{}{string(model.SpaceOnHold), userID.String(),
		expiresAt.UTC()}, idArgs(ids)...)
	_, err := tx.ExecContext(ctx, q, args...)
	return err
}

// ReleaseHeldTx resets the given spaces to available when they are currently
// on hold, clearing holder and expiry.  Spaces in any other status are left
// untouched, making release a guarded no-op.
func (r *SpaceRepo) ReleaseHeldTx(ctx context.Context, tx *sql.Tx, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	q := `UPDATE spaces SET status = ?, held_by = NULL, hold_expires_at = NULL
		  WHERE id IN (` + placeholders(len(ids)) + `) AND status = ?`
	args := append([]interface{}{string(model.SpaceAvailable)}, idArgs(ids)...)
	args = append(args, string(model.SpaceOnHold))
	_, err := tx.ExecContext(ctx, q, args...)
	return err
}

// ReleaseClaimedTx resets the given spaces to available whether they are
// on_hold or reserved.  Used by cancellation and hard deletion, which must
// release every linked space regardless of how far it got.
func (r *SpaceRepo) ReleaseClaimedTx(ctx context.Context, tx *sql.Tx, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	q := `UPDATE spaces SET status = ?, held_by = NULL, hold_expires_at = NULL
		  WHERE id IN (` + placeholders(len(ids)) + `) AND status IN (?, ?)`
	args := append([]interface{}{string(model.SpaceAvailable)}, idArgs(ids)...)
	args = append(args, string(model.SpaceOnHold), string(model.SpaceReserved))
	_, err := tx.ExecContext(ctx, q, args...)
	return err
}

// ClearHoldExpiryTx nulls the hold expiry of the given spaces while keeping
// them on hold.  This converts a temporary hold into a reservation hold: the
// space stays excluded from other holds but is no longer subject to the
// expiration sweep.
func (r *SpaceRepo) ClearHoldExpiryTx(ctx context.Context, tx *sql.Tx, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	q := `UPDATE spaces SET hold_expires_at = NULL
		  WHERE id IN (` + placeholders(len(ids)) + `) AND status = ?`
	args := append(idArgs(ids), string(model.SpaceOnHold))
	_, err := tx.ExecContext(ctx, q, args...)
	return err
}

// ReserveTx transitions the given spaces to reserved, clearing holder and
// expiry.  Only payment approval and the admin reservation path call this.
func (r *SpaceRepo) ReserveTx(ctx context.Context, tx *sql.Tx, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	q := `UPDATE spaces SET status = ?, held_by = NULL, hold_expires_at = NULL
		  WHERE id IN (` + placeholders(len(ids)) + `)`
	args := append([]interface{}{string(model.SpaceReserved)}, idArgs(ids)...)
	_, err := tx.ExecContext(ctx, q, args...)
	return err
}

// SetStatusTx writes an administrative status (blocked or internal) on one
// space, optionally clearing the hold fields.  The service layer decides
// whether clearing is legal for the space's current status.
func (r *SpaceRepo) SetStatusTx(ctx context.Context, tx *sql.Tx, id uuid.UUID, status model.SpaceStatus, clearHold bool) error {
	if clearHold {
		const q = `UPDATE spaces SET status = ?, held_by = NULL, hold_expires_at = NULL WHERE id = ?`
		_, err := tx.ExecContext(ctx, q, string(status), id.String())
		return err
	}
	const q = `UPDATE spaces SET status = ? WHERE id = ?`
	_, err := tx.ExecContext(ctx, q, string(status), id.String())
	return err
}

// CountClaimedByClientTx counts the spaces of a trip the user already holds
// or has reserved through a non-cancelled reservation.  Used to enforce the
// per-client cap inside the hold transaction.
func (r *SpaceRepo) CountClaimedByClientTx(ctx context.Context, tx *sql.Tx, tripID, userID uuid.UUID) (int, error) {
	const q = `SELECT COUNT(*) FROM spaces s
			   WHERE s.trip_id = ?
				 AND ((s.status = ? AND s.held_by = ?)
				   OR (s.status = ? AND s.id IN (
						SELECT rs.space_id FROM reservation_spaces rs
						JOIN reservations r ON r.id = rs.reservation_id
						WHERE r.client_id = ? AND r.status <> ?)))`
	var n int
	err := tx.QueryRowContext(ctx, q, tripID.String(),
		string(model.SpaceOnHold), userID.String(),
		string(model.SpaceReserved), userID.String(),
		string(model.ReservationCancelled)).Scan(&n)
	return n, err
}

// ExpiredHoldsTx loads, with row locks, up to limit spaces whose temporary
// hold has expired.  Reservation-converted holds are excluded automatically
// because their hold_expires_at is NULL.
func (r *SpaceRepo) ExpiredHoldsTx(ctx context.Context, tx *sql.Tx, limit int) ([]model.Space, error) {
	const q = `SELECT ` + spaceColumns + ` FROM spaces
			   WHERE status = ? AND hold_expires_at IS NOT NULL
				 AND hold_expires_at < UTC_TIMESTAMP()
			   ORDER BY hold_expires_at
			   LIMIT ?
			   FOR UPDATE`
	rows, err := tx.QueryContext(ctx, q, string(model.SpaceOnHold), limit)
	if err != nil {
		return nil, err
	}
	return collectSpaces(rows)
}

// DeleteAvailableAboveTx removes spaces of a trip numbered above keep, but
// only those currently available.  It returns the number of rows removed so
// the caller can detect spaces that could not be shrunk away.
func (r *SpaceRepo) DeleteAvailableAboveTx(ctx context.Context, tx *sql.Tx, tripID uuid.UUID, keep int) (int64, error) {
	const q = `DELETE FROM spaces WHERE trip_id = ? AND space_number > ? AND status = ?`
	res, err := tx.ExecContext(ctx, q, tripID.String(), keep, string(model.SpaceAvailable))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountAboveTx counts all spaces of a trip numbered above keep, regardless
// of status.  Compared with DeleteAvailableAboveTx's result to detect a
// shrink blocked by claimed spaces.
func (r *SpaceRepo) CountAboveTx(ctx context.Context, tx *sql.Tx, tripID uuid.UUID, keep int) (int64, error) {
	const q = `SELECT COUNT(*) FROM spaces WHERE trip_id = ? AND space_number > ?`
	var n int64
	err := tx.QueryRowContext(ctx, q, tripID.String(), keep).Scan(&n)
	return n, err
}

// MaxSpaceNumberTx returns the highest space number currently provisioned
// for a trip, or zero when the trip has no spaces.
func (r *SpaceRepo) MaxSpaceNumberTx(ctx context.Context, tx *sql.Tx, tripID uuid.UUID) (int, error) {
	const q = `SELECT COALESCE(MAX(space_number), 0) FROM spaces WHERE trip_id = ?`
	var n int
	err := tx.QueryRowContext(ctx, q, tripID.String()).Scan(&n)
	return n, err
}
