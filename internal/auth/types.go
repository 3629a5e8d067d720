package auth

import "errors"

// Role represents an authorisation tier.
type Role string

const (
	// RoleReader may read state and subscribe to changes.
	RoleReader Role = "reader"

	// RoleOperator may additionally update state.
	RoleOperator Role = "operator"
)

// ValidRoles is the set of roles a token may carry.
var ValidRoles = []Role{RoleReader, RoleOperator}

// IsValidRole returns true if r is one of ValidRoles.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Domain errors.
var (
	ErrTokenInvalid = errors.New("auth: invalid token")
	ErrForbidden    = errors.New("auth: insufficient permissions")
	ErrRoomDenied   = errors.New("auth: token not valid for this room")
)
