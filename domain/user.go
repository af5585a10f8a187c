package domain

import (
	"strings"
	"time"
)

// Role is the access level of a user.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleManager Role = "MANAGER"
	RoleMember  Role = "MEMBER"
	RoleViewer  Role = "VIEWER"
)

// ParseRole accepts a role name in any letter case.
func ParseRole(raw string) (Role, bool) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(raw))); r {
	case RoleAdmin, RoleManager, RoleMember, RoleViewer:
		return r, true
	}
	return "", false
}

// User mirrors the user record served by the users API.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// Actor is the authenticated user performing an operation.
type Actor struct {
	ID    int64  `json:"id"`
	Role  Role   `json:"role"`
	Email string `json:"email"`
}

// Actor projects the user onto the fields the core needs.
func (u User) Actor() Actor {
	return Actor{ID: u.ID, Role: u.Role, Email: u.Email}
}
