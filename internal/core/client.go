package core

// Client is a live connection as seen by the core layer. ConnID is the
// connection handle; UserID is the authenticated identity the connection
// subscribes under once it joins.
type Client struct {
	ConnID string
	UserID string
	Events chan *Event
}

// NewClient constructs a client with an initialized event channel.
func NewClient(connID, userID string) *Client {
	return &Client{
		ConnID: connID,
		UserID: userID,
		Events: make(chan *Event, 16),
	}
}
