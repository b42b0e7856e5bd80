package models

import (
	"slices"
	"time"
)

// Roles known to the dashboard.
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// User is the identity issued tokens are bound to. LastLogin is the only field
// that changes after creation; it is stamped on every successful authentication.
type User struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	Role        string     `json:"role"`
	Permissions []string   `json:"permissions"`
	LastLogin   *time.Time `json:"lastLogin,omitempty"`
}

// HasPermission reports whether the user was granted permission.
func (u *User) HasPermission(permission string) bool {
	if u == nil {
		return false
	}
	return slices.Contains(u.Permissions, permission)
}

// HasRole reports whether the user holds exactly role.
func (u *User) HasRole(role string) bool {
	if u == nil {
		return false
	}
	return u.Role == role
}

// Clone returns a deep copy so callers cannot mutate registry entries.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Permissions = slices.Clone(u.Permissions)
	if u.LastLogin != nil {
		t := *u.LastLogin
		c.LastLogin = &t
	}
	return &c
}
