package app

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/beamchat/relay/internal/core"
	"github.com/beamchat/relay/internal/domain"
)

// Router validates inbound events against membership and fans out the
// resulting frames. One Router per process; its dependencies are passed in
// explicitly at construction, there is no hidden global state.
//
// State machine per connection: Connected -> (joined rooms)* -> Disconnected.
// Authentication is fully resolved before a connection is admitted, so the
// router never sees an unauthenticated event.
type Router struct {
	Registry *Registry
	Rooms    *Membership
	Policy   Policy
	// Typing is set right after construction; the coordinator needs the
	// router's broadcast primitive to synthesize stop_typing.
	Typing *TypingCoordinator
	// PresenceBroadcast makes join/leave visible to the other members.
	PresenceBroadcast bool
}

// OnJoin adds the connection to the room. Joining is silent to other
// members unless presence broadcasts are enabled.
func (rt *Router) OnJoin(cid domain.ConnID, room domain.RoomID) {
	if _, ok := rt.Registry.Session(cid); !ok {
		return
	}
	rt.Rooms.Join(room, cid)
	if rt.PresenceBroadcast {
		rt.notifyPresence(core.EventUserJoined, cid, room)
	}
}

// OnLeave removes the connection from the room. Silent, same as OnJoin,
// except that a still-armed typing indicator is cleared for the remaining
// members.
func (rt *Router) OnLeave(cid domain.ConnID, room domain.RoomID) {
	wasTyping := rt.Typing.Cancel(cid, room)
	if wasTyping {
		rt.emitStopTyping(cid, room)
	}
	rt.Rooms.Leave(room, cid)
	if rt.PresenceBroadcast {
		rt.notifyPresence(core.EventUserLeft, cid, room)
	}
}

// OnTyping notifies every member of the room except the originator and arms
// the stop-typing debounce. Repeated typing events are idempotent for the
// receiver, so no de-duplication happens here.
func (rt *Router) OnTyping(cid domain.ConnID, room domain.RoomID) {
	identity, ok := rt.Registry.IdentityOf(cid)
	if !ok || !rt.Rooms.Contains(room, cid) {
		return
	}
	f, err := core.EncodeEvent(core.EventUserTyping, core.TypingNotice{
		UserID:         identity.UserID,
		ConversationID: room,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Msg("encode user_typing")
		return
	}
	rt.broadcast(room, cid, f, core.ClassEphemeral)
	rt.Typing.Touch(cid, room)
}

// OnStopTyping cancels any pending debounce and notifies the room once.
func (rt *Router) OnStopTyping(cid domain.ConnID, room domain.RoomID) {
	if !rt.Rooms.Contains(room, cid) {
		return
	}
	rt.Typing.Stop(cid, room)
}

// OnRelayMessage fans the already-persisted message out to every member of
// the room, including the sender. Echoing the sender lets all of its open
// tabs converge through the same code path.
func (rt *Router) OnRelayMessage(cid domain.ConnID, room domain.RoomID, message json.RawMessage) {
	if !rt.Rooms.Contains(room, cid) {
		log.Warn().Str("module", "app.router").Str("cid", string(cid)).Str("room", string(room)).Msg("message for room the sender is not in")
		return
	}
	f, err := core.EncodeEvent(core.EventReceiveMessage, message)
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Msg("encode receive_message")
		return
	}
	// The sender was typing and just sent the message; clear the indicator
	// for everyone without waiting out the debounce.
	rt.Typing.Cancel(cid, room)
	rt.broadcast(room, "", f, core.ClassMessage)
}

// OnDisconnect removes the connection from all shared state. Safe to call
// more than once; every step is idempotent.
func (rt *Router) OnDisconnect(cid domain.ConnID) {
	// Flush pending typing indicators first, while membership still routes
	// the stop_typing to the rooms the connection was in.
	rt.Typing.FlushConn(cid)
	rooms := rt.Rooms.RemoveConnectionEverywhere(cid)
	if rt.PresenceBroadcast {
		for _, room := range rooms {
			rt.notifyPresence(core.EventUserLeft, cid, room)
		}
	}
	rt.Registry.Remove(cid)
}

// MembersSnapshot resolves the room's member set to identities for the ops
// API. Connections that vanished between snapshot and lookup are skipped.
func (rt *Router) MembersSnapshot(room domain.RoomID) []core.MemberDTO {
	members := rt.Rooms.MembersOf(room)
	out := make([]core.MemberDTO, 0, len(members))
	for _, cid := range members {
		identity, ok := rt.Registry.IdentityOf(cid)
		if !ok {
			continue
		}
		out = append(out, core.MemberDTO{ID: identity.UserID, Name: identity.Name})
	}
	return out
}

// emitStopTyping is the coordinator's callback for both the explicit and
// the synthesized stop_typing path.
func (rt *Router) emitStopTyping(cid domain.ConnID, room domain.RoomID) {
	identity, ok := rt.Registry.IdentityOf(cid)
	if !ok {
		return
	}
	f, err := core.EncodeEvent(core.EventUserStopTyping, core.TypingNotice{
		UserID:         identity.UserID,
		ConversationID: room,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Msg("encode user_stop_typing")
		return
	}
	rt.broadcast(room, cid, f, core.ClassEphemeral)
}

func (rt *Router) notifyPresence(event string, cid domain.ConnID, room domain.RoomID) {
	identity, ok := rt.Registry.IdentityOf(cid)
	if !ok {
		return
	}
	f, err := core.EncodeEvent(event, core.PresenceNotice{
		UserID:         identity.UserID,
		ConversationID: room,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Str("event", event).Msg("encode presence")
		return
	}
	rt.broadcast(room, cid, f, core.ClassEphemeral)
}

// broadcast fans a frame out to the room. The member snapshot is taken under
// the membership lock and iterated outside it, so a slow receiver never
// blocks delivery to the others. A target that vanished between snapshot and
// send is skipped; that race is expected, not an error. Pass except == "" to
// include every member.
func (rt *Router) broadcast(room domain.RoomID, except domain.ConnID, f core.Frame, class core.EventClass) {
	res := core.PublishResult{}
	for _, cid := range rt.Rooms.MembersOf(room) {
		if cid == except {
			continue
		}
		sess, ok := rt.Registry.Session(cid)
		if !ok {
			continue
		}
		if err := sess.Signal().TrySend(f, class); err != nil {
			if errors.Is(err, core.ErrClosed) {
				// Target vanished between snapshot and send. Expected race.
				continue
			}
			res.Dropped = append(res.Dropped, cid)
			continue
		}
		res.SentTo++
	}
	for _, cid := range res.Dropped {
		switch rt.Policy.OnBackpressure(class) {
		case KickMember:
			log.Warn().Str("module", "app.router").Str("cid", string(cid)).Str("room", string(room)).Msg("receiver overflowed on message frame, kicking")
			rt.Registry.Cancel(cid)
		case DropFrame, NoAction:
		}
	}
	log.Debug().Str("module", "app.router").Str("room", string(room)).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
}
