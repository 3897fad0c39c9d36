package core

import "sort"

// Registry is the ephemeral online-user map: user identity -> live
// connection. It keeps a single slot per user, so a second join for the
// same identity silently replaces the first (a known limitation; multi-device
// presence would key entries by (user, connection) instead).
//
// The registry is not safe for concurrent use. It is owned exclusively by
// the hub run loop and must only be touched from there.
type Registry struct {
	entries map[string]*Client
}

// NewRegistry constructs an empty registry. Presence is never persisted;
// after a restart everyone is offline until they rejoin.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Client)}
}

// Join registers the connection under its user identity, returning the
// connection it displaced, if any.
func (r *Registry) Join(c *Client) (replaced *Client) {
	prev := r.entries[c.UserID]
	if prev == c {
		return nil
	}
	r.entries[c.UserID] = c
	return prev
}

// Leave removes the entry whose connection matches. A connection that was
// displaced by a later join no longer owns the slot, so its leave is a no-op.
// Returns true if an entry was removed.
func (r *Registry) Leave(c *Client) bool {
	if cur, ok := r.entries[c.UserID]; ok && cur == c {
		delete(r.entries, c.UserID)
		return true
	}
	return false
}

// Get returns the connection currently subscribed to the user's channel.
func (r *Registry) Get(userID string) (*Client, bool) {
	c, ok := r.entries[userID]
	return c, ok
}

// Online returns a sorted snapshot of the currently online identities.
func (r *Registry) Online() []string {
	users := make([]string, 0, len(r.entries))
	for id := range r.entries {
		users = append(users, id)
	}
	sort.Strings(users)
	return users
}
