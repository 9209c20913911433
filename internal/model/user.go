package model

import (
	"fmt"
	"time"
)

// User is an operator account used to authenticate against the API. It is
// separate from the session identity that tags the audit trail.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// Roles.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
)

// MinPasswordLength is the shortest password accepted for operator accounts.
const MinPasswordLength = 8

var roleLevels = map[string]int{
	RoleAdmin:    2,
	RoleOperator: 1,
}

// RoleAtLeast checks if role meets or exceeds the minimum required role.
// Unknown roles on either side never match.
func RoleAtLeast(role, minimum string) bool {
	have, ok := roleLevels[role]
	want, known := roleLevels[minimum]
	return ok && known && have >= want
}

// ValidRole reports whether role is a known role.
func ValidRole(role string) bool {
	_, ok := roleLevels[role]
	return ok
}

// ValidatePassword checks password requirements.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}
