// Package identity manages user accounts, credentials and the signed
// tokens that carry a request's organization binding.
package identity

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a user doesn't exist.
	ErrNotFound = errors.New("identity: user not found")
	// ErrEmailTaken is returned when the email is already registered.
	ErrEmailTaken = errors.New("identity: email already in use")
	// ErrInvalidCredentials is returned on a failed login.
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	// ErrNotVerified is returned when a user logs in before confirming
	// their email address.
	ErrNotVerified = errors.New("identity: email not verified")
)

// UserStatus is the lifecycle state of a user account.
type UserStatus string

const (
	UserPending  UserStatus = "PENDING"
	UserActive   UserStatus = "ACTIVE"
	UserDisabled UserStatus = "DISABLED"
)

// User is a member of exactly one organization. PasswordHash never
// leaves the store layer in API responses.
type User struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organizationId"`
	Email          string     `json:"email"`
	PasswordHash   string     `json:"-"`
	FirstName      string     `json:"firstName"`
	LastName       string     `json:"lastName"`
	DisplayID      string     `json:"displayUserId"`
	Roles          []string   `json:"roles"`
	Status         UserStatus `json:"status"`
	EmailVerified  bool       `json:"emailVerified"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// FullName returns the user's display name.
func (u *User) FullName() string {
	if u.FirstName == "" {
		return u.LastName
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// HasRole reports whether the user holds the named role.
func (u *User) HasRole(name string) bool {
	for _, r := range u.Roles {
		if r == name {
			return true
		}
	}
	return false
}
