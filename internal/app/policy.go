package app

import "github.com/beamchat/relay/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

// Policy decides what happens to a receiver whose outbound queue rejected a
// frame during a broadcast.
type Policy interface {
	OnBackpressure(class core.EventClass) BackpressureAction
}

// ClassPolicy accepts the loss of ephemeral frames and kicks receivers that
// cannot keep up with message frames.
type ClassPolicy struct{}

func (ClassPolicy) OnBackpressure(class core.EventClass) BackpressureAction {
	if class == core.ClassMessage {
		return KickMember
	}
	return DropFrame
}
