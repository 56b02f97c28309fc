package repository

import (
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Helpers shared by the repositories.  MySQL DECIMAL columns are scanned as
// strings and parsed into fixed-point decimals; CHAR(36) ID columns are
// parsed into uuid.UUID.  Floating point never touches monetary values.

func scanDecimal(s sql.NullString) (decimal.Decimal, error) {
	if !s.Valid || strings.TrimSpace(s.String) == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s.String)
}

func scanUUIDPtr(s sql.NullString) (*uuid.UUID, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s.String)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func strPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

// placeholders returns "?, ?, ..." with n markers, for IN clauses.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func idArgs(ids []uuid.UUID) []interface{} {
	args := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		args = append(args, id.String())
	}
	return args
}
