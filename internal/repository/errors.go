// Package repository implements data access over MySQL.  It also defines the
// error taxonomy shared with the service layer.  The four sentinels below
// classify every business-rule rejection; callers attach a human-readable
// reason with fmt.Errorf("%w: ...") and classify with errors.Is.
package repository

import "errors"

// ErrNotFound is returned when a trip, space or reservation does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when the requested state change collides with the
// current state: a space is unavailable, a hold is missing or expired, a
// selection overlaps itself, or a per-client cap would be exceeded.
var ErrConflict = errors.New("conflict")

// ErrForbidden is returned on role or ownership mismatches, such as a client
// acting on another client's reservation.
var ErrForbidden = errors.New("forbidden")

// ErrValidation is returned for malformed input, such as an empty space-id
// set or booking on a trip that has already departed.
var ErrValidation = errors.New("validation failed")
