package core

import (
	"encoding/json"

	"github.com/beamchat/relay/internal/domain"
)

// Wire vocabulary shared with the web client. The names and payload field
// names are a compatibility contract; changing them breaks deployed clients.
const (
	// client -> relay
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventTyping            = "typing"
	EventStopTyping        = "stop_typing"
	EventNewMessage        = "new_message"

	// relay -> client
	EventReceiveMessage = "receive_message"
	EventUserTyping     = "user_typing"
	EventUserStopTyping = "user_stop_typing"
	EventUserJoined     = "user_joined"
	EventUserLeft       = "user_left"
)

// Envelope frames every event in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// TypingNotice is the payload of user_typing / user_stop_typing.
type TypingNotice struct {
	UserID         domain.UserID `json:"userId"`
	ConversationID domain.RoomID `json:"conversationId"`
}

// PresenceNotice is the payload of user_joined / user_left.
type PresenceNotice struct {
	UserID         domain.UserID `json:"userId"`
	ConversationID domain.RoomID `json:"conversationId"`
}

// EncodeEvent marshals an outbound event into a wire frame.
func EncodeEvent(event string, data any) (Frame, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: payload})
}
