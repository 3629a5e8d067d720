package auth

// Permission represents a named capability in the system.
type Permission string

// Permission constants.
const (
	PermStateRead  Permission = "state:read"
	PermStateWrite Permission = "state:write"
)

// rolePermissions maps each role to its granted permissions.
var rolePermissions = map[Role][]Permission{
	RoleReader:   {PermStateRead},
	RoleOperator: {PermStateRead, PermStateWrite},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	perms, ok := rolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == perm {
			return true
		}
	}
	return false
}
