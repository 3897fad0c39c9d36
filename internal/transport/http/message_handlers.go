package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/avelichko/circlechat-server/internal/core"
	"github.com/avelichko/circlechat-server/internal/proto"
	"github.com/avelichko/circlechat-server/internal/service/messages"
	"github.com/avelichko/circlechat-server/internal/store"
)

// maxImageBytes caps the size of an uploaded chat image.
const maxImageBytes = 8 << 20

// MessageHandlers provides HTTP handlers for the messaging endpoints.
type MessageHandlers struct {
	svc *messages.Service
	hub *core.Hub
	log *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(svc *messages.Service, hub *core.Hub, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{
		svc: svc,
		hub: hub,
		log: logger,
	}
}

// HistoryRequest represents the history fetch request body.
type HistoryRequest struct {
	ToUserID string `json:"to_user_id" binding:"required"`
}

// HistoryResponse represents the history fetch response body.
type HistoryResponse struct {
	Messages []proto.Message `json:"messages"`
}

// SendResponse represents the send response body.
type SendResponse struct {
	Message proto.Message `json:"message"`
}

// OnlineResponse represents the online users response body.
type OnlineResponse struct {
	Users []string `json:"users"`
}

// History returns all messages between the caller and to_user_id.
// POST /api/messages/get
func (h *MessageHandlers) History(c *gin.Context) {
	var req HistoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	self := c.GetString(ContextKeyUserID)
	msgs, err := h.svc.History(c.Request.Context(), self, req.ToUserID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", self).Msg("failed to fetch history")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to fetch messages"})
		return
	}

	c.JSON(http.StatusOK, HistoryResponse{Messages: messagesToProto(msgs)})
}

// Send persists a message (uploading the attachment, if any) and fans it out
// to both participants' live channels.
// POST /api/messages/send (multipart form)
func (h *MessageHandlers) Send(c *gin.Context) {
	self := c.GetString(ContextKeyUserID)

	toUserID := c.PostForm("to_user_id")
	if toUserID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "to_user_id is required"})
		return
	}

	// The authenticated caller is always the sender. A from_user_id field
	// that disagrees with the token is an authorization mismatch.
	if from := c.PostForm("from_user_id"); from != "" && from != self {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "cannot send as another user"})
		return
	}

	msgType := store.MessageType(c.DefaultPostForm("message_type", string(store.MessageTypeText)))

	in := messages.SendInput{
		From: self,
		To:   toUserID,
		Text: c.PostForm("text"),
		Type: msgType,
	}

	if file, err := c.FormFile("image"); err == nil {
		if file.Size > maxImageBytes {
			c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "image too large"})
			return
		}
		f, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unreadable attachment"})
			return
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unreadable attachment"})
			return
		}
		in.Image = data
		in.ImageName = file.Filename
	}

	msg, err := h.svc.Send(c.Request.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, messages.ErrCannotMessageSelf),
			errors.Is(err, messages.ErrEmptyMessage),
			errors.Is(err, messages.ErrMissingMedia),
			errors.Is(err, messages.ErrBadMessageType):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		case errors.Is(err, messages.ErrRecipientNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "recipient not found"})
		default:
			h.log.Error().Err(err).Str("user_id", self).Msg("failed to send message")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to send"})
		}
		return
	}

	c.JSON(http.StatusOK, SendResponse{Message: messageToProto(msg)})
}

// Online returns the current presence snapshot.
// GET /api/users/online
func (h *MessageHandlers) Online(c *gin.Context) {
	users, err := h.hub.Online(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to fetch presence"})
		return
	}
	c.JSON(http.StatusOK, OnlineResponse{Users: users})
}
