package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

var (
	ErrMessageNotFound  = errors.New("message not found")
	ErrMessageDeleted   = errors.New("message already deleted")
	ErrNotMessageSender = errors.New("user is not the message sender")
)

// MessageRepository defines interactions for private chat messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, chatID string, senderID string, content string) (models.Message, error)
	GetMessage(ctx context.Context, messageID string) (models.Message, error)
	UpdateContent(ctx context.Context, messageID string, senderID string, content string) (models.Message, error)
	SoftDelete(ctx context.Context, messageID string, senderID string) (models.Message, error)
	MarkRead(ctx context.Context, chatID string, readerID string) ([]models.Message, error)
	HistoryPage(ctx context.Context, chatID string, cursor string, fetch int) ([]models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, private_chat_id, sender_id, content, created_at, edited_at, read_at, deleted_at`

// CreateMessage stores a message in a private chat.
func (r *MessageRepo) CreateMessage(ctx context.Context, chatID string, senderID string, content string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `INSERT INTO private_messages (private_chat_id, sender_id, content)
        VALUES ($1, $2, $3)
        RETURNING `+messageColumns, chatID, senderID, content)
	return msg, err
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM private_messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// UpdateContent replaces the content of a live message owned by senderID.
func (r *MessageRepo) UpdateContent(ctx context.Context, messageID string, senderID string, content string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `UPDATE private_messages
        SET content=$3, edited_at=clock_timestamp()
        WHERE id=$1 AND sender_id=$2 AND deleted_at IS NULL
        RETURNING `+messageColumns, messageID, senderID, content)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, r.classifyMiss(ctx, messageID, senderID)
	}
	return msg, err
}

// SoftDelete tombstones a live message owned by senderID. The row is kept.
func (r *MessageRepo) SoftDelete(ctx context.Context, messageID string, senderID string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `UPDATE private_messages
        SET deleted_at=clock_timestamp()
        WHERE id=$1 AND sender_id=$2 AND deleted_at IS NULL
        RETURNING `+messageColumns, messageID, senderID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, r.classifyMiss(ctx, messageID, senderID)
	}
	return msg, err
}

// classifyMiss explains why a guarded update touched no row.
func (r *MessageRepo) classifyMiss(ctx context.Context, messageID string, senderID string) error {
	msg, err := r.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != senderID {
		return ErrNotMessageSender
	}
	if msg.IsDeleted() {
		return ErrMessageDeleted
	}
	return ErrMessageNotFound
}

// MarkRead stamps read_at on every unread message the peer of readerID sent
// in the chat and returns the stamped rows ordered by (created_at, id).
// Already read rows are never touched again.
func (r *MessageRepo) MarkRead(ctx context.Context, chatID string, readerID string) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `UPDATE private_messages
        SET read_at=clock_timestamp()
        WHERE private_chat_id=$1 AND sender_id<>$2 AND read_at IS NULL
        RETURNING `+messageColumns, chatID, readerID)
	if err != nil {
		return nil, err
	}
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	return msgs, nil
}

// HistoryPage returns up to fetch messages of the chat, newest first, starting
// at the rank of the cursor message.
func (r *MessageRepo) HistoryPage(ctx context.Context, chatID string, cursor string, fetch int) ([]models.Message, error) {
	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs, historyQuery, chatID, nullable(cursor), fetch)
	return msgs, err
}
