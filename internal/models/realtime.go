package models

import "encoding/json"

// Realtime event types. Inbound types are sent by clients, the rest are
// pushed by the server.
const (
	EventMatchingJoin   = "matching:join"
	EventMatchingLeave  = "matching:leave"
	EventMatchingJoined = "matching:joined"
	EventMatchingLeft   = "matching:left"
	EventMatchingFound  = "matching:found"
	EventMatchingUpdate = "matching:update"
	EventMatchingError  = "matching:error"

	EventSessionReady               = "session:ready"
	EventSessionMessage             = "session:message"
	EventSessionTyping              = "session:typing"
	EventSessionGift                = "session:gift"
	EventSessionGiftSent            = "session:gift-sent"
	EventSessionGiftError           = "session:gift-error"
	EventSessionBalanceUpdated      = "session:balance-updated"
	EventSessionSkip                = "session:skip"
	EventSessionSkipped             = "session:skipped"
	EventSessionEnd                 = "session:end"
	EventSessionEnded               = "session:ended"
	EventSessionPartnerDisconnected = "session:partner-disconnected"
	EventSessionError               = "session:error"
)

// Event is a single realtime frame exchanged over the bidirectional channel.
type Event struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	From      string          `json:"from,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewEvent builds an Event whose Data is the JSON encoding of data.
func NewEvent(eventType, sessionID string, data any) Event {
	ev := Event{Type: eventType, SessionID: sessionID}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			ev.Data = raw
		}
	}
	return ev
}

// Envelope addresses an Event to a single user or to a session room.
// Except suppresses delivery to one member of the room (usually the sender).
//
// Join adds users to Room before the event is delivered and CloseRoom drops
// the room afterwards, so membership changes travel with the events that
// need them. An envelope with an empty Event.Type only changes membership.
type Envelope struct {
	UserID    string   `json:"user_id,omitempty"`
	Room      string   `json:"room,omitempty"`
	Except    string   `json:"except,omitempty"`
	Join      []string `json:"join,omitempty"`
	CloseRoom bool     `json:"close_room,omitempty"`
	Event     Event    `json:"event"`
}

// SessionRoom returns the room name for a session.
func SessionRoom(sessionID string) string {
	return "session:" + sessionID
}
