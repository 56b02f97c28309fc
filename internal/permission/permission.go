// Package permission centralizes the capability checks that were previously
// scattered as role comparisons across call sites.  Every privileged
// operation asks ForRole for the caller's capabilities instead of matching
// role strings itself.
package permission

import "github.com/transborda/cargo-booking/internal/model"

// Permissions is the set of privileged actions a role may perform.
type Permissions struct {
	ConfirmPayments            bool // approve or reject uploaded payment proofs
	CancelAnyReservation       bool // cancel reservations regardless of owner and status
	HardDeleteReservations     bool // permanently delete a reservation and its documents
	CreateInternalReservations bool // create pre-confirmed reservations bypassing holds
	ManageSpaces               bool // block, unblock and reprovision spaces
	ViewAllReservations        bool // list reservations across all clients
}

// ForRole maps a role to its capabilities.  Unknown roles get no
// capabilities at all.
func ForRole(r model.Role) Permissions {
	switch r {
	case model.RoleSuperadmin:
		return Permissions{
			ConfirmPayments:            true,
			CancelAnyReservation:       true,
			HardDeleteReservations:     true,
			CreateInternalReservations: true,
			ManageSpaces:               true,
			ViewAllReservations:        true,
		}
	case model.RoleManager:
		return Permissions{
			ConfirmPayments:            true,
			CancelAnyReservation:       true,
			CreateInternalReservations: true,
			ManageSpaces:               true,
			ViewAllReservations:        true,
		}
	default:
		return Permissions{}
	}
}
