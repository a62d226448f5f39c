package enums

import "fmt"

// MemberRole represents the dashboard permissions role carried in access tokens.
type MemberRole string

const (
	MemberRoleAdmin    MemberRole = "admin"
	MemberRoleOperator MemberRole = "operator"
	MemberRoleCreator  MemberRole = "creator"
)

var validMemberRoles = []MemberRole{
	MemberRoleAdmin,
	MemberRoleOperator,
	MemberRoleCreator,
}

// String implements fmt.Stringer.
func (m MemberRole) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MemberRole.
func (m MemberRole) IsValid() bool {
	for _, candidate := range validMemberRoles {
		if candidate == m {
			return true
		}
	}
	return false
}

// CanMoveFunds reports whether the role may release payouts or record deposits.
func (m MemberRole) CanMoveFunds() bool {
	return m == MemberRoleAdmin || m == MemberRoleOperator
}

// ParseMemberRole converts raw input into a MemberRole.
func ParseMemberRole(value string) (MemberRole, error) {
	for _, candidate := range validMemberRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid member role %q", value)
}
