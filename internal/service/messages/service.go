package messages

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avelichko/circlechat-server/internal/media"
	"github.com/avelichko/circlechat-server/internal/store"
)

// Common errors for message operations.
var (
	ErrCannotMessageSelf = errors.New("cannot message yourself")
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrEmptyMessage      = errors.New("text message requires non-empty text")
	ErrMissingMedia      = errors.New("image message requires an attachment")
	ErrBadMessageType    = errors.New("unknown message type")
)

// Broadcaster is the live fan-out half of the send protocol. Implemented by
// the core hub; delivery is best-effort and failure-free by design.
type Broadcaster interface {
	BroadcastMessage(msg *store.Message)
}

// Service implements the durable half of direct messaging: validated writes
// through the store followed by live fan-out, and the idempotent history
// fetch. The identity of the caller is supplied by the transport layer and
// has already been verified.
type Service struct {
	store    store.Store
	uploader media.Uploader
	hub      Broadcaster
	now      func() time.Time
}

// New creates the message service. uploader may be nil when media is
// disabled; image sends then fail with ErrMissingMedia.
func New(st store.Store, uploader media.Uploader, hub Broadcaster) *Service {
	return &Service{
		store:    st,
		uploader: uploader,
		hub:      hub,
		now:      time.Now,
	}
}

// SendInput carries a validated send request. Image holds the raw attachment
// bytes when Type is image.
type SendInput struct {
	From      string
	To        string
	Text      string
	Type      store.MessageType
	Image     []byte
	ImageName string
}

// Send persists a new message and fans it out to both participants'
// channels. The message is durable once Send returns, whether or not anyone
// was online to receive the live event.
func (s *Service) Send(ctx context.Context, in SendInput) (*store.Message, error) {
	if in.From == in.To {
		return nil, ErrCannotMessageSelf
	}
	if _, err := s.store.GetUserByID(ctx, in.To); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, fmt.Errorf("lookup recipient: %w", err)
	}

	msg := &store.Message{
		FromUser:  in.From,
		ToUser:    in.To,
		Text:      in.Text,
		Type:      in.Type,
		CreatedAt: s.now().UTC(),
	}

	switch in.Type {
	case store.MessageTypeText:
		if in.Text == "" {
			return nil, ErrEmptyMessage
		}
	case store.MessageTypeImage:
		if len(in.Image) == 0 || s.uploader == nil {
			return nil, ErrMissingMedia
		}
		url, err := s.uploader.Upload(ctx, in.ImageName, in.Image)
		if err != nil {
			return nil, fmt.Errorf("upload media: %w", err)
		}
		msg.MediaURL = url
	default:
		return nil, ErrBadMessageType
	}

	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	if s.hub != nil {
		s.hub.BroadcastMessage(msg)
	}

	return msg, nil
}

// History returns every message between the caller and the partner, ordered
// by (created_at, id). Callers may re-request freely; no cursor state is kept.
func (s *Service) History(ctx context.Context, self, partner string) ([]*store.Message, error) {
	msgs, err := s.store.ListBetween(ctx, self, partner)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}
