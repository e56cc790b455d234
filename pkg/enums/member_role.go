package enums

import "fmt"

// MemberRole maps to the member_role enum in Postgres.
type MemberRole string

const (
	RoleCustomer MemberRole = "customer"
	RoleAdmin    MemberRole = "admin"
)

var validMemberRoles = []MemberRole{
	RoleCustomer,
	RoleAdmin,
}

func (r MemberRole) IsValid() bool {
	for _, candidate := range validMemberRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

func ParseMemberRole(value string) (MemberRole, error) {
	for _, candidate := range validMemberRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid member role %q", value)
}
