package domain

import "strings"

// Role is an ordered privilege level. Comparisons use the natural order of the constants.
type Role int

const (
	RoleGuest Role = iota
	RoleVoice
	RoleOperator
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleVoice:
		return "voice"
	case RoleOperator:
		return "operator"
	case RoleAdmin:
		return "admin"
	default:
		return "guest"
	}
}

// Prefix is the display prefix shown before a nickname.
// admin and operator "@", voice "+", guest none.
func (r Role) Prefix() string {
	switch r {
	case RoleAdmin, RoleOperator:
		return "@"
	case RoleVoice:
		return "+"
	default:
		return ""
	}
}

// AtLeast reports whether r satisfies the minimum role min.
func (r Role) AtLeast(min Role) bool { return r >= min }

// StripPrefix removes any role prefix characters from a display name.
func StripPrefix(displayName string) string {
	return strings.TrimLeft(displayName, "@+")
}
