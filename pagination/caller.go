package pagination

import "strings"

// Role is the elevation level of a caller.
type Role string

const (
	RoleAnonymous Role = ""
	RoleMember    Role = "member"
	RoleAdmin     Role = "admin"
)

// ParseRole maps a role name to a Role. Unknown names are treated as members.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return RoleAnonymous
	case string(RoleAdmin):
		return RoleAdmin
	default:
		return RoleMember
	}
}

// Caller identifies who asks for a page.
type Caller struct {
	ID   int64
	Role Role
}

// Anonymous is the unauthenticated caller.
var Anonymous = Caller{}

// Privileged reports whether the caller may request pages above the public limit.
func (c Caller) Privileged() bool {
	return c.Role == RoleAdmin
}
