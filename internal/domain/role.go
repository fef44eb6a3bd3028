package domain

// Role is a capability checked before privileged operations.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleOracle     Role = "oracle"
	RoleMaintainer Role = "maintainer"
)

// ParseRole maps a role name to a Role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleOracle, RoleMaintainer:
		return Role(s), nil
	}
	return "", ErrUnknownRole
}
