package ws

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"messaging-service/internal/access"
	"messaging-service/internal/errs"
	"messaging-service/internal/models"
)

type command func(ctx context.Context, s *Session, in Inbound) (any, error)

func (l *Lifecycle) commandTable() map[string]command {
	return map[string]command{
		EventJoinChatRooms:  l.joinChatRooms,
		EventSendMessage:    l.sendMessage,
		EventEditMessage:    l.editMessage,
		EventDeleteMessage:  l.deleteMessage,
		EventSendTyping:     l.typing(EventTyping),
		EventSendStopTyping: l.typing(EventStopTyping),
		EventReadChat:       l.readChat,
		EventGetStatus:      l.getStatus,
	}
}

type joinChatRoomsRequest struct {
	ChatIDs []string `json:"chatIds" validate:"required,min=1,max=500,dive,uuid"`
}

type sendMessageRequest struct {
	ChatID  string `json:"chatId" validate:"required,uuid"`
	Message string `json:"message" validate:"required"`
}

type editMessageRequest struct {
	MessageID  string `json:"messageId" validate:"required,uuid"`
	NewMessage string `json:"newMessage" validate:"required"`
}

type deleteMessageRequest struct {
	MessageID string `json:"messageId" validate:"required,uuid"`
}

type chatRequest struct {
	ChatID string `json:"chatId" validate:"required,uuid"`
}

func (l *Lifecycle) joinChatRooms(ctx context.Context, s *Session, in Inbound) (any, error) {
	var req joinChatRoomsRequest
	if err := l.decode(in, &req); err != nil {
		return nil, err
	}
	ids := lo.Uniq(lo.Map(req.ChatIDs, func(id string, _ int) string {
		canonical, _ := models.ParseID(id)
		return canonical
	}))
	if err := l.Dispatcher.JoinRooms(ctx, s.conn.ID(), s.info.UserID, ids); err != nil {
		return nil, err
	}
	return JoinedPayload{ChatIDs: ids}, nil
}

func (l *Lifecycle) sendMessage(ctx context.Context, s *Session, in Inbound) (any, error) {
	var req sendMessageRequest
	if err := l.decode(in, &req); err != nil {
		return nil, err
	}
	userID := s.info.UserID

	msg, chat, err := l.Store.SendMessage(ctx, req.ChatID, userID, req.Message)
	if err != nil {
		return nil, err
	}

	peerID := chat.PeerOf(userID)
	l.Dispatcher.EnsureSubscribed(chat.ID, peerID)
	l.Dispatcher.EnsureSubscribed(chat.ID, userID)

	dto := msg.DTO()
	own := NewMessagePayload{Message: dto, ChatInbox: l.inboxRow(ctx, userID, chat.ID)}
	l.Dispatcher.DeliverToChatByUser(chat.ID, map[string]Outbound{
		userID: push(EventNewMessage, own),
		peerID: push(EventNewMessage, NewMessagePayload{Message: dto, ChatInbox: l.inboxRow(ctx, peerID, chat.ID)}),
	}, s.conn.ID())
	return own, nil
}

func (l *Lifecycle) editMessage(ctx context.Context, s *Session, in Inbound) (any, error) {
	var req editMessageRequest
	if err := l.decode(in, &req); err != nil {
		return nil, err
	}

	msg, err := l.Store.EditMessage(ctx, req.MessageID, s.info.UserID, req.NewMessage)
	if err != nil {
		return nil, err
	}

	payload := EditMessagePayload{ChatID: msg.ChatID, MessageID: msg.ID, NewMessage: msg.Content, EditedAt: msg.EditedAt}
	l.Dispatcher.DeliverToChat(msg.ChatID, push(EventEditMessage, payload), s.conn.ID())
	return payload, nil
}

func (l *Lifecycle) deleteMessage(ctx context.Context, s *Session, in Inbound) (any, error) {
	var req deleteMessageRequest
	if err := l.decode(in, &req); err != nil {
		return nil, err
	}

	msg, err := l.Store.DeleteMessage(ctx, req.MessageID, s.info.UserID)
	if err != nil {
		return nil, err
	}

	payload := DeleteMessagePayload{ChatID: msg.ChatID, MessageID: msg.ID, DeletedAt: msg.DeletedAt}
	l.Dispatcher.DeliverToChat(msg.ChatID, push(EventDeleteMessage, payload), s.conn.ID())
	return payload, nil
}

// typing relays a transient indicator. Nothing is persisted and a frame
// overtaken by a later typing frame is dropped.
func (l *Lifecycle) typing(event string) command {
	return func(ctx context.Context, s *Session, in Inbound) (any, error) {
		var req chatRequest
		if err := l.decode(in, &req); err != nil {
			return nil, err
		}
		chat, err := l.chatFor(ctx, s.info.UserID, req.ChatID)
		if err != nil {
			return nil, err
		}
		s.relayTyping(in.seq, func() {
			l.Dispatcher.DeliverToChat(chat.ID, push(event, TypingPayload{ChatID: chat.ID, UserID: s.info.UserID}), s.conn.ID())
		})
		return nil, nil
	}
}

func (l *Lifecycle) readChat(ctx context.Context, s *Session, in Inbound) (any, error) {
	var req chatRequest
	if err := l.decode(in, &req); err != nil {
		return nil, err
	}

	msgs, chat, err := l.Store.MarkRead(ctx, req.ChatID, s.info.UserID)
	if err != nil {
		return nil, err
	}

	payload := ReadReceiptPayload{
		ChatID: chat.ID,
		Messages: lo.Map(msgs, func(m models.Message, _ int) models.ReadReceipt {
			return models.ReadReceipt{MessageID: m.ID, ReadAt: m.ReadAt}
		}),
	}
	if len(msgs) > 0 {
		l.Dispatcher.EnsureSubscribed(chat.ID, chat.PeerOf(s.info.UserID))
		l.Dispatcher.DeliverToChat(chat.ID, push(EventReadReceipt, payload), s.conn.ID())
	}
	return payload, nil
}

func (l *Lifecycle) getStatus(ctx context.Context, s *Session, in Inbound) (any, error) {
	var req chatRequest
	if err := l.decode(in, &req); err != nil {
		return nil, err
	}
	chat, err := l.chatFor(ctx, s.info.UserID, req.ChatID)
	if err != nil {
		return nil, err
	}

	peerID := chat.PeerOf(s.info.UserID)
	status := StatusOffline
	if l.Presence.IsOnline(peerID) {
		status = StatusOnline
	}
	return StatusPayload{ChatID: chat.ID, UserID: peerID, Status: status}, nil
}

func (l *Lifecycle) chatFor(ctx context.Context, userID, rawChatID string) (models.Chat, error) {
	chatID, _ := models.ParseID(rawChatID)
	chat, denial, err := l.Access.CanAccessChat(ctx, userID, chatID)
	if err != nil {
		return models.Chat{}, errs.Internal("check chat access", err)
	}
	if denial != access.Allowed {
		return models.Chat{}, denial.Err("chat")
	}
	return chat, nil
}

// inboxRow builds an event's inbox row. A failure only drops the row from
// the event.
func (l *Lifecycle) inboxRow(ctx context.Context, userID, chatID string) *models.InboxRow {
	if userID == "" {
		return nil
	}
	row, err := l.Store.InboxRow(ctx, userID, chatID)
	if err != nil {
		l.Logger.Warn("inbox row unavailable", zap.String("user_id", userID), zap.String("chat_id", chatID), zap.Error(err))
		return nil
	}
	return &row
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode unmarshals and validates a command payload.
func (l *Lifecycle) decode(in Inbound, dst any) error {
	if len(in.Data) == 0 || string(in.Data) == "null" {
		return errs.Invalid("missing payload")
	}
	if err := json.Unmarshal(in.Data, dst); err != nil {
		return errs.Invalid("malformed payload")
	}
	if err := l.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return errs.Invalid("invalid payload")
		}
		fields := make([]errs.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, errs.FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
		}
		return errs.InvalidFields("Validation failed", fields)
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "uuid":
		return fe.Field() + " must be a valid UUID"
	case "min":
		return fe.Field() + " must have at least " + fe.Param() + " items"
	case "max":
		return fe.Field() + " must have at most " + fe.Param() + " items"
	}
	return fe.Field() + " is invalid"
}
