package model

import "github.com/google/uuid"

// Role is the access level of an authenticated user.  Identity and role
// arrive from the authentication collaborator; this package only names them.
type Role string

const (
	RoleClient     Role = "client"
	RoleManager    Role = "manager"
	RoleSuperadmin Role = "superadmin"
)

// User is the authenticated identity acting on the booking engine.
type User struct {
	ID       uuid.UUID
	Role     Role
	FullName string
	Email    string
}
