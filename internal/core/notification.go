package core

import (
	"encoding/json"

	"github.com/dkeye/Rendezvous/internal/domain"
)

type NotificationType string

const (
	TypeUserJoined NotificationType = "user-joined"
	TypeReady      NotificationType = "ready"
	TypeSignal     NotificationType = "signal"
	TypeUserLeft   NotificationType = "user-left"
	TypeError      NotificationType = "error"
)

// Error codes carried by TypeError notifications.
const (
	CodeBadPayload    = "bad_payload"
	CodeInvalidRoom   = "invalid_room"
	CodeUnknownEvent  = "unknown_event"
	CodeRoomFull      = "room_full"
	CodeAlreadyJoined = "already_joined"
	CodeRateLimited   = "rate_limited"
	CodeEvicted       = "evicted"
)

// Notification is an outbound server event. Its JSON form is the wire format.
type Notification struct {
	Type    NotificationType `json:"type"`
	UserID  domain.ConnID    `json:"userId,omitempty"`
	RoomID  domain.RoomID    `json:"roomId,omitempty"`
	Data    json.RawMessage  `json:"data,omitempty"`
	Code    string           `json:"code,omitempty"`
	Message string           `json:"message,omitempty"`
}

func UserJoined(id domain.ConnID) Notification {
	return Notification{Type: TypeUserJoined, UserID: id}
}

func Ready(room domain.RoomID) Notification {
	return Notification{Type: TypeReady, RoomID: room}
}

func SignalFrom(sender domain.ConnID, data json.RawMessage) Notification {
	return Notification{Type: TypeSignal, UserID: sender, Data: data}
}

func UserLeft(id domain.ConnID) Notification {
	return Notification{Type: TypeUserLeft, UserID: id}
}

func Error(code, msg string) Notification {
	return Notification{Type: TypeError, Code: code, Message: msg}
}
