package core

import "github.com/avelichko/circlechat-server/internal/store"

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoin subscribes the connection to its identity channel.
	CommandJoin CommandKind = iota
	// CommandSendMessage fans a message out to both participants' channels.
	// It does not persist; durable sends go through the REST endpoint first.
	CommandSendMessage
	// CommandMarkSeen batch-flips unseen messages and notifies the sender.
	CommandMarkSeen
)

// Command represents an action requested by a client.
type Command struct {
	Kind    CommandKind
	Message *store.Message // for CommandSendMessage
	From    string         // for CommandMarkSeen: original sender
	To      string         // for CommandMarkSeen: acknowledging recipient
}
