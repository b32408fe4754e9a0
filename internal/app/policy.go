package app

import "github.com/dkeye/Chat/internal/core"

// BackpressureAction is the room's response to a peer that refused a frame.
type BackpressureAction int

const (
	// NoAction leaves the member alone.
	NoAction BackpressureAction = iota
	// KickMember deregisters the member and closes its link.
	KickMember
	// DropFrame loses the frame for that member only; the member stays registered.
	DropFrame
)

func (a BackpressureAction) String() string {
	switch a {
	case KickMember:
		return "kick"
	case DropFrame:
		return "drop_frame"
	default:
		return "none"
	}
}

// Policy decides what happens to a member whose send failed during a broadcast.
type Policy interface {
	OnBackPressure(member core.MemberSession, err error) BackpressureAction
}

// SimplePolicy deregisters every peer that could not take a frame, whether its queue was full
// or its link already closed.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(core.MemberSession, error) BackpressureAction {
	return KickMember
}
