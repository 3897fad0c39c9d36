package core

import "github.com/avelichko/circlechat-server/internal/store"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventReceiveMessage delivers a direct message to a participant's channel.
	EventReceiveMessage EventKind = iota
	// EventUpdateSeen tells the original sender which messages were just seen.
	EventUpdateSeen
	// EventOnlineUsers carries the current presence snapshot to all connections.
	EventOnlineUsers
	// EventError notifies a client about a protocol error.
	EventError
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind       EventKind
	Message    *store.Message // for EventReceiveMessage
	MessageIDs []int64        // for EventUpdateSeen
	Users      []string       // for EventOnlineUsers
	Error      *CoreError
}
