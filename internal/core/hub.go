package core

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/avelichko/circlechat-server/internal/store"
)

// SeenMarker is the slice of the message store the seen-state synchronizer
// needs: the atomic batch flip of unseen messages.
type SeenMarker interface {
	MarkSeen(ctx context.Context, from, to string) ([]int64, error)
}

// Hub owns the presence registry and the per-user delivery channels. All
// registry mutations and channel publishes happen on the single Run loop
// goroutine, mirroring the event-loop model of the original system; the
// exported methods are the thread-safe entry points that post into it.
//
// Delivery is fire-and-forget: publishing to an identity with no live
// connection drops the event. Durability is the message store's job.
type Hub struct {
	seen SeenMarker
	log  *zerolog.Logger

	registry *Registry
	clients  map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	commands   chan clientCommand
	publishes  chan *store.Message
	onlineReqs chan chan []string

	done chan struct{}
}

type clientCommand struct {
	client *Client
	cmd    Command
}

// NewHub creates a hub. seen may be nil in tests that never issue markSeen.
func NewHub(seen SeenMarker, logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		seen:       seen,
		log:        logger,
		registry:   NewRegistry(),
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		commands:   make(chan clientCommand, 32),
		publishes:  make(chan *store.Message, 32),
		onlineReqs: make(chan chan []string),
		done:       make(chan struct{}),
	}
}

// Run processes hub traffic until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}

		case c := <-h.unregister:
			delete(h.clients, c)
			if h.registry.Leave(c) {
				h.log.Debug().Str("user_id", c.UserID).Str("conn_id", c.ConnID).Msg("user went offline")
				h.broadcastOnline()
			}

		case cc := <-h.commands:
			h.handleCommand(ctx, cc.client, cc.cmd)

		case msg := <-h.publishes:
			h.fanOut(msg)

		case reply := <-h.onlineReqs:
			reply <- h.registry.Online()

		case <-ctx.Done():
			return
		}
	}
}

// Attach registers a live connection with the hub. The connection receives
// broadcast events but does not own an identity channel until it joins.
func (h *Hub) Attach(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// Detach removes a connection, releasing its presence entry if it holds one.
func (h *Hub) Detach(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Dispatch submits a client command for processing on the run loop.
func (h *Hub) Dispatch(c *Client, cmd Command) {
	select {
	case h.commands <- clientCommand{client: c, cmd: cmd}:
	case <-h.done:
	}
}

// BroadcastMessage publishes a persisted message to both participants'
// channels. Used by the send endpoint after the store write succeeds.
func (h *Hub) BroadcastMessage(msg *store.Message) {
	select {
	case h.publishes <- msg:
	case <-h.done:
	}
}

// Online returns the current presence snapshot.
func (h *Hub) Online(ctx context.Context) ([]string, error) {
	reply := make(chan []string, 1)
	select {
	case h.onlineReqs <- reply:
	case <-h.done:
		return nil, context.Canceled
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case users := <-reply:
		return users, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) handleCommand(ctx context.Context, c *Client, cmd Command) {
	switch cmd.Kind {
	case CommandJoin:
		if replaced := h.registry.Join(c); replaced != nil {
			// Single-slot presence: the newest connection wins the channel.
			h.log.Debug().Str("user_id", c.UserID).Str("conn_id", replaced.ConnID).Msg("presence slot replaced")
		}
		h.log.Debug().Str("user_id", c.UserID).Str("conn_id", c.ConnID).Msg("user joined")
		h.broadcastOnline()

	case CommandSendMessage:
		msg := cmd.Message
		if msg == nil || msg.FromUser == "" || msg.ToUser == "" {
			// Malformed channel payloads are logged and dropped, never fatal.
			h.log.Warn().Str("conn_id", c.ConnID).Msg("dropping malformed sendMessage payload")
			return
		}
		h.fanOut(msg)

	case CommandMarkSeen:
		if cmd.From == "" || cmd.To == "" {
			h.log.Warn().Str("conn_id", c.ConnID).Msg("dropping malformed markSeen payload")
			return
		}
		if h.seen == nil {
			return
		}
		ids, err := h.seen.MarkSeen(ctx, cmd.From, cmd.To)
		if err != nil {
			h.log.Error().Err(err).Str("from", cmd.From).Str("to", cmd.To).Msg("mark seen failed")
			return
		}
		if len(ids) == 0 {
			// Already acknowledged; nothing to rebroadcast.
			return
		}
		h.deliver(cmd.From, &Event{Kind: EventUpdateSeen, MessageIDs: ids})
	}
}

// fanOut delivers a receiveMessage event to both participants' channels, so
// the sender's other open sessions converge without a second history fetch.
func (h *Hub) fanOut(msg *store.Message) {
	ev := &Event{Kind: EventReceiveMessage, Message: msg}
	h.deliver(msg.ToUser, ev)
	if msg.FromUser != msg.ToUser {
		h.deliver(msg.FromUser, ev)
	}
}

func (h *Hub) deliver(userID string, ev *Event) {
	c, ok := h.registry.Get(userID)
	if !ok {
		h.log.Debug().Str("user_id", userID).Msg("no subscriber, event dropped")
		return
	}
	select {
	case c.Events <- ev:
	default:
		h.log.Warn().Str("user_id", userID).Str("conn_id", c.ConnID).Msg("slow consumer, event dropped")
	}
}

func (h *Hub) broadcastOnline() {
	users := h.registry.Online()
	for c := range h.clients {
		select {
		case c.Events <- &Event{Kind: EventOnlineUsers, Users: users}:
		default:
			// Drop if slow consumer.
		}
	}
}
