package http

import (
	"encoding/json"

	"github.com/samber/lo"

	"github.com/avelichko/circlechat-server/internal/core"
	"github.com/avelichko/circlechat-server/internal/proto"
	"github.com/avelichko/circlechat-server/internal/store"
)

// inboundToCommand maps a wire envelope onto a core command. A nil command
// with a non-nil proto error means "reply and keep the connection"; a non-nil
// error tears the connection down.
func inboundToCommand(client *core.Client, inbound proto.Inbound) (*core.Command, *proto.Error, error) {
	switch inbound.Type {
	case proto.InboundTypeJoin:
		// The subscription identity is the authenticated one; the payload
		// carries nothing worth trusting.
		return &core.Command{Kind: core.CommandJoin}, nil, nil

	case proto.InboundTypeSendMessage:
		var data proto.SendMessageData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		if data.Message.FromUserID == "" || data.Message.ToUserID == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "from_user_id and to_user_id are required"}, nil
		}
		if data.Message.FromUserID != client.UserID {
			return nil, &proto.Error{Code: core.ErrCodeUnauthorized, Msg: "cannot send as another user"}, nil
		}
		msg := messageFromProto(data.Message)
		return &core.Command{Kind: core.CommandSendMessage, Message: msg}, nil, nil

	case proto.InboundTypeMarkSeen:
		var data proto.MarkSeenData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		if data.FromUserID == "" || data.ToUserID == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "from_user_id and to_user_id are required"}, nil
		}
		if data.ToUserID != client.UserID {
			return nil, &proto.Error{Code: core.ErrCodeUnauthorized, Msg: "cannot acknowledge for another user"}, nil
		}
		return &core.Command{Kind: core.CommandMarkSeen, From: data.FromUserID, To: data.ToUserID}, nil, nil

	default:
		return nil, &proto.Error{Code: "invalid_message", Msg: "unknown message type"}, nil
	}
}

func outboundFromEvent(ev *core.Event) proto.Outbound {
	switch ev.Kind {
	case core.EventReceiveMessage:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventReceiveMessage,
			Data:  messageToProto(ev.Message),
		}
	case core.EventUpdateSeen:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventUpdateSeen,
			Data:  proto.UpdateSeenData{MessageIDs: ev.MessageIDs},
		}
	case core.EventOnlineUsers:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventOnlineUsers,
			Data:  proto.OnlineUsersData{Users: ev.Users},
		}
	default:
		return proto.Outbound{
			Type: proto.OutboundTypeError,
			Error: &proto.Error{
				Code: errCode(ev),
				Msg:  errMsg(ev),
			},
		}
	}
}

func errCode(ev *core.Event) string {
	if ev.Error != nil {
		return ev.Error.Code
	}
	return "internal"
}

func errMsg(ev *core.Event) string {
	if ev.Error != nil {
		return ev.Error.Message
	}
	return "internal error"
}

func messageToProto(msg *store.Message) proto.Message {
	return proto.Message{
		ID:          msg.ID,
		FromUserID:  msg.FromUser,
		ToUserID:    msg.ToUser,
		Text:        msg.Text,
		MediaURL:    msg.MediaURL,
		MessageType: string(msg.Type),
		Seen:        msg.Seen,
		CreatedAt:   msg.CreatedAt,
	}
}

func messagesToProto(msgs []*store.Message) []proto.Message {
	return lo.Map(msgs, func(m *store.Message, _ int) proto.Message {
		return messageToProto(m)
	})
}

func messageFromProto(m proto.Message) *store.Message {
	return &store.Message{
		ID:        m.ID,
		FromUser:  m.FromUserID,
		ToUser:    m.ToUserID,
		Text:      m.Text,
		MediaURL:  m.MediaURL,
		Type:      store.MessageType(m.MessageType),
		Seen:      m.Seen,
		CreatedAt: m.CreatedAt,
	}
}
