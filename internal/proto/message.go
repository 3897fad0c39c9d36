package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeJoin        = "join"
	InboundTypeSendMessage = "sendMessage"
	InboundTypeMarkSeen    = "markSeen"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventReceiveMessage = "receiveMessage"
	EventUpdateSeen     = "updateSeen"
	EventOnlineUsers    = "onlineUsers"
)

// SendMessageData is a live fan-out request. It does not persist anything;
// durable sends go through the REST endpoint, which fans out on its own.
type SendMessageData struct {
	Message Message `json:"message"`
}

// MarkSeenData acknowledges every unseen message from_user sent to to_user.
type MarkSeenData struct {
	FromUserID string `json:"from_user_id"`
	ToUserID   string `json:"to_user_id"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Message is the wire form of a direct message.
type Message struct {
	ID          int64     `json:"id"`
	FromUserID  string    `json:"from_user_id"`
	ToUserID    string    `json:"to_user_id"`
	Text        string    `json:"text,omitempty"`
	MediaURL    string    `json:"media_url,omitempty"`
	MessageType string    `json:"message_type"`
	Seen        bool      `json:"seen"`
	CreatedAt   time.Time `json:"created_at"`
}

// UpdateSeenData carries the ids flipped by a markSeen batch back to the
// original sender.
type UpdateSeenData struct {
	MessageIDs []int64 `json:"messageIds"`
}

// OnlineUsersData is the presence snapshot broadcast after every join/leave.
type OnlineUsersData struct {
	Users []string `json:"users"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
