package ws

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/beamchat/relay/internal/core"
	"github.com/beamchat/relay/internal/domain"
)

// dispatch decodes one inbound envelope and routes it. Returns false when
// the event is malformed; the read pump counts strikes and eventually
// disconnects a client that keeps sending garbage.
func (ctl *Controller) dispatch(cid domain.ConnID, data []byte) bool {
	var env core.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Debug().Err(err).Str("module", "ws").Str("cid", string(cid)).Msg("bad envelope")
		return false
	}

	switch env.Event {
	case core.EventJoinConversation:
		room, ok := decodeRoom(env.Data)
		if !ok {
			return false
		}
		ctl.Router.OnJoin(cid, room)
	case core.EventLeaveConversation:
		room, ok := decodeRoom(env.Data)
		if !ok {
			return false
		}
		ctl.Router.OnLeave(cid, room)
	case core.EventTyping:
		room, ok := decodeRoom(env.Data)
		if !ok {
			return false
		}
		ctl.Router.OnTyping(cid, room)
	case core.EventStopTyping:
		room, ok := decodeRoom(env.Data)
		if !ok {
			return false
		}
		ctl.Router.OnStopTyping(cid, room)
	case core.EventNewMessage:
		p, ok := ctl.decodeNewMessage(env.Data)
		if !ok {
			return false
		}
		room, err := domain.ParseRoomID(p.ConversationID)
		if err != nil {
			return false
		}
		ctl.Router.OnRelayMessage(cid, room, p.Message)
	default:
		// Not a strike: an unknown name may just be a newer client.
		log.Warn().Str("module", "ws").Str("event", env.Event).Msg("unknown event")
	}
	return true
}

func decodeRoom(data json.RawMessage) (domain.RoomID, bool) {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return "", false
	}
	room, err := domain.ParseRoomID(raw)
	if err != nil {
		return "", false
	}
	return room, true
}

// newMessagePayload is what the client sends with new_message. The message
// is relayed verbatim, but only after its shape has been checked: the relay
// refuses to forward arbitrary scalars or arrays to other room members.
type newMessagePayload struct {
	ConversationID string          `json:"conversationId" validate:"required,max=64"`
	Message        json.RawMessage `json:"message" validate:"required"`
}

func (ctl *Controller) decodeNewMessage(data json.RawMessage) (newMessagePayload, bool) {
	var p newMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return p, false
	}
	if err := ctl.validate.Struct(&p); err != nil {
		return p, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(p.Message, &obj); err != nil || obj == nil {
		return p, false
	}
	return p, true
}
