package repository

import (
	"context"
	"database/sql"
	"errors"
)

// SystemConfigRepo reads the key/value system configuration store.  Values
// are stored as strings; pricing keys hold decimal strings and are parsed by
// the consumer.
type SystemConfigRepo struct {
	db *sql.DB
}

// NewSystemConfigRepo returns a SystemConfigRepo bound to the given database.
func NewSystemConfigRepo(db *sql.DB) *SystemConfigRepo { return &SystemConfigRepo{db: db} }

// Get returns the raw value for a key.  It returns ErrNotFound when the key
// is absent.
func (r *SystemConfigRepo) Get(ctx context.Context, key string) (string, error) {
	const q = `SELECT cfg_value FROM system_config WHERE cfg_key = ?`
	var v string
	err := r.db.QueryRowContext(ctx, q, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return v, err
}

// Set upserts a configuration value.
func (r *SystemConfigRepo) Set(ctx context.Context, key, value string) error {
	const q = `INSERT INTO system_config (cfg_key, cfg_value) VALUES (?, ?)
			   ON DUPLICATE KEY UPDATE cfg_value = VALUES(cfg_value)`
	_, err := r.db.ExecContext(ctx, q, key, value)
	return err
}
