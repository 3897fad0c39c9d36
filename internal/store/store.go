package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// User represents a registered account. Its ID is the opaque identity
// string the messaging subsystem keys everything on.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// MessageType distinguishes plain text from image messages.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
)

// Message represents a persisted direct message between two users.
// Everything except Seen is immutable after creation; Seen transitions
// false->true exactly once.
type Message struct {
	ID        int64
	FromUser  string
	ToUser    string
	Text      string
	MediaURL  string
	Type      MessageType
	Seen      bool
	CreatedAt time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser persists a new user. The caller assigns the ID.
	CreateUser(ctx context.Context, user *User) error

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

// MessageStore handles message persistence. A conversation is not a stored
// entity; it is derived at query time from the unordered user pair.
type MessageStore interface {
	// CreateMessage persists a message with seen=false and assigns its ID.
	CreateMessage(ctx context.Context, msg *Message) error

	// ListBetween returns all messages exchanged between the two users in
	// either direction, ordered by (created_at, id) ascending.
	ListBetween(ctx context.Context, userA, userB string) ([]*Message, error)

	// MarkSeen flips every unseen message sent from -> to to seen in one
	// atomic batch and returns the affected ids. Overlapping calls never
	// report the same id twice.
	MarkSeen(ctx context.Context, from, to string) ([]int64, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
