// Package service holds the message lifecycle: opening chats and sending,
// editing, deleting and reading messages.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"messaging-service/internal/access"
	"messaging-service/internal/errs"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
)

const DefaultMaxContentLength = 4096

type Options struct {
	MaxContentLength int
}

// MessageStore enforces the message invariants on top of the repositories.
type MessageStore struct {
	chats            repositories.ChatRepository
	messages         repositories.MessageRepository
	users            repositories.UserRepository
	access           *access.Checker
	audit            *telemetry.AuditEmitter
	maxContentLength int
	logger           *zap.Logger
}

func NewMessageStore(
	chats repositories.ChatRepository,
	messages repositories.MessageRepository,
	users repositories.UserRepository,
	checker *access.Checker,
	audit *telemetry.AuditEmitter,
	opts Options,
	logger *zap.Logger,
) *MessageStore {
	if opts.MaxContentLength <= 0 {
		opts.MaxContentLength = DefaultMaxContentLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageStore{
		chats:            chats,
		messages:         messages,
		users:            users,
		access:           checker,
		audit:            audit,
		maxContentLength: opts.MaxContentLength,
		logger:           logger.Named("message_store"),
	}
}

// OpenChat returns the caller's inbox row for the chat with peerID, creating
// the chat on first contact. Both argument orders resolve to the same chat.
func (s *MessageStore) OpenChat(ctx context.Context, userID, peerID string) (models.InboxRow, error) {
	peer, err := ParseID("userId", peerID)
	if err != nil {
		return models.InboxRow{}, err
	}
	if peer == userID {
		return models.InboxRow{}, errs.InvalidFields("Validation failed", []errs.FieldError{{Field: "userId", Message: "cannot start a chat with yourself"}})
	}
	if _, err := s.users.GetUser(ctx, peer); err != nil {
		return models.InboxRow{}, s.translate("load peer", err)
	}

	a, b := models.CanonicalPair(userID, peer)
	chat, err := s.chats.CreateOrGetChat(ctx, a, b)
	if err != nil {
		return models.InboxRow{}, s.translate("open chat", err)
	}

	row, err := s.chats.GetInboxRow(ctx, userID, chat.ID)
	if err != nil {
		return models.InboxRow{}, s.translate("load inbox row", err)
	}
	s.audit.EmitEvent(ctx, telemetry.EventChatOpened, userID, map[string]any{"chatId": chat.ID, "peerId": peer})
	return row, nil
}

// SendMessage persists a message from a chat participant.
func (s *MessageStore) SendMessage(ctx context.Context, chatID, senderID, content string) (models.Message, models.Chat, error) {
	id, err := ParseID("chatId", chatID)
	if err != nil {
		return models.Message{}, models.Chat{}, err
	}
	if err := s.validateContent("message", content); err != nil {
		return models.Message{}, models.Chat{}, err
	}

	chat, denial, err := s.access.CanAccessChat(ctx, senderID, id)
	if err != nil {
		return models.Message{}, models.Chat{}, s.translate("check chat access", err)
	}
	if denial != access.Allowed {
		return models.Message{}, models.Chat{}, denial.Err("chat")
	}

	msg, err := s.messages.CreateMessage(ctx, chat.ID, senderID, content)
	if err != nil {
		return models.Message{}, models.Chat{}, s.translate("create message", err)
	}
	s.audit.EmitEvent(ctx, telemetry.EventMessageSent, senderID, map[string]any{"chatId": chat.ID, "messageId": msg.ID})
	return msg, chat, nil
}

// EditMessage replaces the content of the sender's own live message.
func (s *MessageStore) EditMessage(ctx context.Context, messageID, senderID, content string) (models.Message, error) {
	id, err := ParseID("messageId", messageID)
	if err != nil {
		return models.Message{}, err
	}
	if err := s.validateContent("newMessage", content); err != nil {
		return models.Message{}, err
	}
	if err := s.canMutate(ctx, senderID, id); err != nil {
		return models.Message{}, err
	}

	// a delete may land between the check and the write; the guarded
	// update reports it as a conflict
	msg, err := s.messages.UpdateContent(ctx, id, senderID, content)
	if err != nil {
		return models.Message{}, s.translate("edit message", err)
	}
	s.audit.EmitEvent(ctx, telemetry.EventMessageEdited, senderID, map[string]any{"chatId": msg.ChatID, "messageId": msg.ID})
	return msg, nil
}

// DeleteMessage tombstones the sender's own live message.
func (s *MessageStore) DeleteMessage(ctx context.Context, messageID, senderID string) (models.Message, error) {
	id, err := ParseID("messageId", messageID)
	if err != nil {
		return models.Message{}, err
	}
	if err := s.canMutate(ctx, senderID, id); err != nil {
		return models.Message{}, err
	}

	msg, err := s.messages.SoftDelete(ctx, id, senderID)
	if err != nil {
		return models.Message{}, s.translate("delete message", err)
	}
	s.audit.EmitEvent(ctx, telemetry.EventMessageDeleted, senderID, map[string]any{"chatId": msg.ChatID, "messageId": msg.ID})
	return msg, nil
}

// MarkRead marks every unread message from the peer as read and returns
// exactly the messages that changed, oldest first.
func (s *MessageStore) MarkRead(ctx context.Context, chatID, readerID string) ([]models.Message, models.Chat, error) {
	id, err := ParseID("chatId", chatID)
	if err != nil {
		return nil, models.Chat{}, err
	}
	chat, denial, err := s.access.CanReadChat(ctx, readerID, id)
	if err != nil {
		return nil, models.Chat{}, s.translate("check chat access", err)
	}
	if denial != access.Allowed {
		return nil, models.Chat{}, denial.Err("chat")
	}

	msgs, err := s.messages.MarkRead(ctx, chat.ID, readerID)
	if err != nil {
		return nil, models.Chat{}, s.translate("mark read", err)
	}
	if len(msgs) > 0 {
		s.audit.EmitEvent(ctx, telemetry.EventChatRead, readerID, map[string]any{"chatId": chat.ID, "count": len(msgs)})
	}
	return msgs, chat, nil
}

// InboxRow returns the inbox row of chatID as seen by userID.
func (s *MessageStore) InboxRow(ctx context.Context, userID, chatID string) (models.InboxRow, error) {
	row, err := s.chats.GetInboxRow(ctx, userID, chatID)
	if err != nil {
		return models.InboxRow{}, s.translate("load inbox row", err)
	}
	return row, nil
}

// ChatIDsOf lists every chat the user participates in.
func (s *MessageStore) ChatIDsOf(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.chats.ListChatIDs(ctx, userID)
	if err != nil {
		return nil, s.translate("list chats", err)
	}
	return ids, nil
}

func (s *MessageStore) canMutate(ctx context.Context, userID, messageID string) error {
	_, _, denial, err := s.access.CanMutateMessage(ctx, userID, messageID)
	if err != nil {
		return s.translate("check message access", err)
	}
	return denial.Err("message")
}

func (s *MessageStore) validateContent(field, content string) error {
	if strings.TrimSpace(content) == "" {
		return errs.InvalidFields("Validation failed", []errs.FieldError{{Field: field, Message: field + " must not be empty"}})
	}
	if utf8.RuneCountInString(content) > s.maxContentLength {
		return errs.InvalidFields("Validation failed", []errs.FieldError{{
			Field:   field,
			Message: fmt.Sprintf("%s must be at most %d characters", field, s.maxContentLength),
		}})
	}
	return nil
}

// translate maps repository sentinels onto client-facing errors. Anything
// else is logged and reported as internal.
func (s *MessageStore) translate(op string, err error) error {
	switch {
	case errors.Is(err, repositories.ErrMessageDeleted):
		return errs.Conflict("message has been deleted")
	case errors.Is(err, repositories.ErrNotMessageSender):
		return errs.Forbidden("only the sender can modify this message")
	case errors.Is(err, repositories.ErrMessageNotFound):
		return errs.NotFound("message not found")
	case errors.Is(err, repositories.ErrChatNotFound):
		return errs.NotFound("chat not found")
	case errors.Is(err, repositories.ErrUserNotFound):
		return errs.NotFound("user not found")
	}
	var typed *errs.Error
	if errors.As(err, &typed) {
		return err
	}
	s.logger.Error("storage failure", zap.String("op", op), zap.Error(err))
	return errs.Internal(op, err)
}

// ParseID validates a UUID argument and returns its canonical form.
func ParseID(field, raw string) (string, error) {
	id, ok := models.ParseID(raw)
	if !ok {
		return "", errs.InvalidFields("Validation failed", []errs.FieldError{{Field: field, Message: field + " must be a valid UUID"}})
	}
	return id, nil
}
