package identity

import (
	"errors"
	"strings"
)

var (
	ErrNotFound      = errors.New("identity: not found")
	ErrMisconfigured = errors.New("identity: elevated key not configured")
)

type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
	RoleUnknown Role = "unknown"
)

// ParseRole maps a stored role column to a Role; anything else is RoleUnknown.
func ParseRole(value string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case RoleTeacher:
		return RoleTeacher
	case RoleStudent:
		return RoleStudent
	default:
		return RoleUnknown
	}
}

// User is the single normalized shape every auth admin and profile response
// is converted to.
type User struct {
	ID    string
	Email string
	Role  Role
}
