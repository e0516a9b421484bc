package core

import (
	"errors"

	"github.com/beamchat/relay/internal/domain"
)

var (
	// ErrBackpressure means the receiver's bounded outbound queue could not
	// take the frame. The router decides what happens to the receiver.
	ErrBackpressure = errors.New("backpressure")
	// ErrClosed means the endpoint is already gone. Expected during the
	// window between a membership snapshot and the send; never an error
	// worth surfacing.
	ErrClosed = errors.New("connection closed")
)

// Frame is an encoded outbound event ready for the wire.
type Frame []byte

// EventClass tells the transport how a frame may be treated under
// backpressure.
type EventClass int

const (
	// ClassEphemeral frames (typing, presence) may be dropped for a slow
	// receiver; the next one carries the same information.
	ClassEphemeral EventClass = iota
	// ClassMessage frames must be queued or the receiver disconnected.
	// Dropping one silently would desync that client until a reload.
	ClassMessage
)

// SignalConnection abstracts the outbound half of a transport endpoint.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(f Frame, class EventClass) error
	Close()
}

// MemberSession binds a verified identity to its transport endpoint.
// This is what the registry stores and the router fans out to.
type MemberSession interface {
	Identity() domain.Identity
	Signal() SignalConnection
}

// PublishResult reports delivery stats/backpressure for one broadcast.
type PublishResult struct {
	SentTo  int
	Dropped []domain.ConnID
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	ID   domain.UserID `json:"id"`
	Name string        `json:"name"`
}
