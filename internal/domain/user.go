package domain

import "time"

// Role classifies what a user may administer.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleDomainAdmin Role = "domainadmin"
	RoleUser        Role = "user"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDomainAdmin, RoleUser:
		return true
	}
	return false
}

// ParseRole normalises s into a Role. Empty input yields RoleUser.
func ParseRole(s string) (Role, bool) {
	if s == "" {
		return RoleUser, true
	}
	r := Role(s)
	return r, r.Valid()
}

// User represents an authenticated user of the system.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u *User) IsAdmin() bool       { return u.Role == RoleAdmin }
func (u *User) IsDomainAdmin() bool { return u.Role == RoleDomainAdmin }
func (u *User) IsMailboxUser() bool { return u.Role == RoleUser }
