package domain

import "time"

// Role is the privilege level of an identity.
type Role string

const (
	RoleRegular Role = "regular"
	RoleAdmin   Role = "admin"
)

// Identity is a registered user. Admins act as operators.
type Identity struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	IsAdmin      bool
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Role derives the role from the admin flag.
func (i *Identity) Role() Role {
	if i != nil && i.IsAdmin {
		return RoleAdmin
	}
	return RoleRegular
}
