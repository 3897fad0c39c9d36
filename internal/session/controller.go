package session

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/avelichko/circlechat-server/internal/proto"
)

// State tracks the lifecycle of an open conversation view.
type State int

const (
	// StateInitializing means the view is up but history has not arrived.
	StateInitializing State = iota
	// StateLoaded means the history fetch has been merged.
	StateLoaded
	// StateLive means history is merged and seen-acks are flowing.
	StateLive
	// StateClosed is terminal; late results are discarded.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateLoaded:
		return "loaded"
	case StateLive:
		return "live"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Fetcher is the history side of the conversation: the request/response
// retrieval of persisted messages, as distinct from live-pushed events.
type Fetcher interface {
	History(ctx context.Context, partnerID string) ([]proto.Message, error)
}

// Acker emits a markSeen acknowledgement over the live channel.
type Acker interface {
	MarkSeen(ctx context.Context, fromUserID, toUserID string) error
}

// Controller merges one conversation's history fetch and live events into a
// single ordered, id-deduplicated view, and acknowledges unseen partner
// messages as they appear.
//
// History and live events race freely: a message may arrive over the channel
// before the fetch that also contains it resolves, or after. Both sources
// feed the same id-keyed sink, and the view re-sorts by (created_at, id) on
// every insert instead of trusting arrival order. The original ran this on a
// single-threaded UI loop; this port guards the same logic with a mutex.
type Controller struct {
	self    string
	partner string
	fetch   Fetcher
	ack     Acker
	log     *zerolog.Logger

	// OnChange, if set before Open, is called with a fresh snapshot after
	// every mutation of the view. Called without the lock held.
	OnChange func([]proto.Message)

	mu     sync.Mutex
	state  State
	msgs   []proto.Message
	known  map[int64]struct{}
	acked  map[int64]struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a controller for a conversation between self and partner.
func New(self, partner string, fetch Fetcher, ack Acker, logger *zerolog.Logger) *Controller {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Controller{
		self:    self,
		partner: partner,
		fetch:   fetch,
		ack:     ack,
		log:     logger,
		state:   StateInitializing,
		known:   make(map[int64]struct{}),
		acked:   make(map[int64]struct{}),
	}
}

// Open schedules the history fetch without blocking the initial render.
// Live events may be fed through HandleMessage at any time, including before
// the fetch resolves.
func (c *Controller) Open(ctx context.Context) {
	c.mu.Lock()
	if c.state == StateClosed || c.cancel != nil {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.ctx = ctx
	c.cancel = cancel
	c.mu.Unlock()

	go c.runFetch(ctx)
}

func (c *Controller) runFetch(ctx context.Context) {
	history, err := c.fetch.History(ctx, c.partner)

	c.mu.Lock()
	if c.state == StateClosed {
		// The view closed while the fetch was in flight; discard the result.
		c.mu.Unlock()
		return
	}
	if err != nil {
		c.mu.Unlock()
		c.log.Error().Err(err).Str("partner", c.partner).Msg("history fetch failed")
		return
	}

	for _, msg := range history {
		c.insertLocked(msg)
	}
	if c.state == StateInitializing {
		c.state = StateLoaded
	}
	pending := c.collectUnseenLocked()
	if c.state == StateLoaded {
		c.state = StateLive
	}
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	c.emitSeen(ctx, pending)
	c.notify(snapshot)
}

// HandleMessage merges a live receiveMessage event into the view. Events for
// other conversations are ignored.
func (c *Controller) HandleMessage(msg proto.Message) {
	if !c.owns(msg) {
		return
	}

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.insertLocked(msg)
	snapshot := c.snapshotLocked()
	ctx := c.ctx
	var pending []int64
	if ctx != nil {
		// Acks start once the view is open; collection marks ids
		// acknowledged so a batch is never re-sent.
		pending = c.collectUnseenLocked()
	}
	c.mu.Unlock()

	c.emitSeen(ctx, pending)
	c.notify(snapshot)
}

// HandleSeen flips local seen flags for ids owned by this conversation,
// without a round trip. These events reach the original sender after the
// partner acknowledged.
func (c *Controller) HandleSeen(ids []int64) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	changed := false
	for _, id := range ids {
		if _, ok := c.known[id]; !ok {
			continue
		}
		for i := range c.msgs {
			if c.msgs[i].ID == id && !c.msgs[i].Seen {
				c.msgs[i].Seen = true
				changed = true
			}
		}
	}
	var snapshot []proto.Message
	if changed {
		snapshot = c.snapshotLocked()
	}
	c.mu.Unlock()

	if changed {
		c.notify(snapshot)
	}
}

// Close tears the view down. It must run on every exit path; afterwards the
// controller ignores all events and discards any in-flight fetch result.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	cancel := c.cancel
	c.cancel = nil
	c.OnChange = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// State reports the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Messages returns an ordered snapshot of the merged conversation.
func (c *Controller) Messages() []proto.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) owns(msg proto.Message) bool {
	return (msg.FromUserID == c.self && msg.ToUserID == c.partner) ||
		(msg.FromUserID == c.partner && msg.ToUserID == c.self)
}

// insertLocked adds a message unless its id is already present, then
// restores (created_at, id) order.
func (c *Controller) insertLocked(msg proto.Message) {
	if _, dup := c.known[msg.ID]; dup {
		return
	}
	c.known[msg.ID] = struct{}{}
	c.msgs = append(c.msgs, msg)
	sort.SliceStable(c.msgs, func(i, j int) bool {
		if c.msgs[i].CreatedAt.Equal(c.msgs[j].CreatedAt) {
			return c.msgs[i].ID < c.msgs[j].ID
		}
		return c.msgs[i].CreatedAt.Before(c.msgs[j].CreatedAt)
	})
}

// collectUnseenLocked gathers partner-authored unseen ids that have not been
// acknowledged yet and marks them acknowledged, so a batch is emitted at most
// once per id.
func (c *Controller) collectUnseenLocked() []int64 {
	var pending []int64
	for _, m := range c.msgs {
		if m.FromUserID != c.partner || m.Seen {
			continue
		}
		if _, done := c.acked[m.ID]; done {
			continue
		}
		c.acked[m.ID] = struct{}{}
		pending = append(pending, m.ID)
	}
	return pending
}

func (c *Controller) snapshotLocked() []proto.Message {
	out := make([]proto.Message, len(c.msgs))
	copy(out, c.msgs)
	return out
}

// emitSeen acknowledges a pending batch. The server batches by user pair, so
// one markSeen covers every id collected here.
func (c *Controller) emitSeen(ctx context.Context, pending []int64) {
	if len(pending) == 0 || c.ack == nil {
		return
	}
	if err := c.ack.MarkSeen(ctx, c.partner, c.self); err != nil {
		c.log.Warn().Err(err).Str("partner", c.partner).Msg("seen acknowledgement failed")
	}
}

func (c *Controller) notify(snapshot []proto.Message) {
	c.mu.Lock()
	cb := c.OnChange
	c.mu.Unlock()
	if cb != nil {
		cb(snapshot)
	}
}
