// Package access decides whether a user may touch a chat or a message.
// Every decision is derived from persisted ownership; nothing is cached.
package access

import (
	"context"
	"errors"

	"github.com/samber/lo"

	"messaging-service/internal/errs"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

// Denial explains a refused access. The zero value means allowed.
type Denial int

const (
	Allowed Denial = iota
	DeniedNotFound
	DeniedNotParticipant
	DeniedNotSender
	DeniedDeleted
)

func (d Denial) String() string {
	switch d {
	case Allowed:
		return "allowed"
	case DeniedNotFound:
		return "not found"
	case DeniedNotParticipant:
		return "not a chat participant"
	case DeniedNotSender:
		return "not the message sender"
	case DeniedDeleted:
		return "message deleted"
	}
	return "unknown"
}

// Err maps the denial onto the client-facing error taxonomy. It returns nil
// for Allowed.
func (d Denial) Err(subject string) error {
	switch d {
	case Allowed:
		return nil
	case DeniedNotFound:
		return errs.NotFound(subject + " not found")
	case DeniedNotParticipant:
		return errs.Forbidden("you are not a participant of this chat")
	case DeniedNotSender:
		return errs.Forbidden("only the sender can modify this message")
	case DeniedDeleted:
		return errs.Conflict("message has been deleted")
	}
	return errs.Forbidden("access denied")
}

// ChatReader is the chat lookup the checker needs.
type ChatReader interface {
	GetChat(ctx context.Context, chatID string) (models.Chat, error)
	GetChats(ctx context.Context, chatIDs []string) ([]models.Chat, error)
}

// MessageReader is the message lookup the checker needs.
type MessageReader interface {
	GetMessage(ctx context.Context, messageID string) (models.Message, error)
}

func IsParticipant(chat models.Chat, userID string) bool {
	return chat.HasParticipant(userID)
}

func IsSender(msg models.Message, userID string) bool {
	return msg.SenderID == userID
}

func NotSender(msg models.Message, userID string) bool {
	return !IsSender(msg, userID)
}

func NotDeleted(msg models.Message) bool {
	return !msg.IsDeleted()
}

// Checker composes the predicates over the stores.
type Checker struct {
	chats    ChatReader
	messages MessageReader
}

func NewChecker(chats ChatReader, messages MessageReader) *Checker {
	return &Checker{chats: chats, messages: messages}
}

// CanAccessChat allows userID when the chat exists and contains them.
func (c *Checker) CanAccessChat(ctx context.Context, userID, chatID string) (models.Chat, Denial, error) {
	chat, err := c.chats.GetChat(ctx, chatID)
	if errors.Is(err, repositories.ErrChatNotFound) {
		return models.Chat{}, DeniedNotFound, nil
	}
	if err != nil {
		return models.Chat{}, Allowed, err
	}
	if !IsParticipant(chat, userID) {
		return models.Chat{}, DeniedNotParticipant, nil
	}
	return chat, Allowed, nil
}

// CanReadChat is chat membership. Per-message read rules are applied by the
// read receipt update itself.
func (c *Checker) CanReadChat(ctx context.Context, userID, chatID string) (models.Chat, Denial, error) {
	return c.CanAccessChat(ctx, userID, chatID)
}

// CanAccessChats allows the batch only when every distinct id names an
// existing chat containing userID. Duplicates are collapsed first.
func (c *Checker) CanAccessChats(ctx context.Context, userID string, chatIDs []string) (bool, []models.Chat, error) {
	ids := lo.Uniq(chatIDs)
	if len(ids) == 0 {
		return true, []models.Chat{}, nil
	}
	chats, err := c.chats.GetChats(ctx, ids)
	if err != nil {
		return false, nil, err
	}
	if len(chats) != len(ids) {
		return false, nil, nil
	}
	if !lo.EveryBy(chats, func(chat models.Chat) bool { return IsParticipant(chat, userID) }) {
		return false, nil, nil
	}
	return true, chats, nil
}

// CanMutateMessage allows edits and deletes by the sender of a live message
// in a chat they still belong to.
func (c *Checker) CanMutateMessage(ctx context.Context, userID, messageID string) (models.Message, models.Chat, Denial, error) {
	msg, err := c.messages.GetMessage(ctx, messageID)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return models.Message{}, models.Chat{}, DeniedNotFound, nil
	}
	if err != nil {
		return models.Message{}, models.Chat{}, Allowed, err
	}

	chat, denial, err := c.CanAccessChat(ctx, userID, msg.ChatID)
	if err != nil || denial != Allowed {
		return models.Message{}, models.Chat{}, denial, err
	}
	if NotSender(msg, userID) {
		return models.Message{}, models.Chat{}, DeniedNotSender, nil
	}
	if !NotDeleted(msg) {
		return models.Message{}, models.Chat{}, DeniedDeleted, nil
	}
	return msg, chat, Allowed, nil
}
