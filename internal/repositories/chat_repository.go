package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"messaging-service/internal/models"
)

var ErrChatNotFound = errors.New("chat not found")

// ChatRepository abstracts chat persistence.
type ChatRepository interface {
	CreateOrGetChat(ctx context.Context, userAID string, userBID string) (models.Chat, error)
	GetChat(ctx context.Context, chatID string) (models.Chat, error)
	GetChats(ctx context.Context, chatIDs []string) ([]models.Chat, error)
	ListChatIDs(ctx context.Context, userID string) ([]string, error)
	GetInboxRow(ctx context.Context, userID string, chatID string) (models.InboxRow, error)
	InboxPage(ctx context.Context, userID string, title string, cursor string, fetch int) ([]models.InboxRow, error)
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

const chatColumns = `id, user1_id, user2_id, created_at`

// CreateOrGetChat returns the chat for the already ordered pair, inserting it
// on first contact. Concurrent callers for the same pair get the same row.
func (r *ChatRepo) CreateOrGetChat(ctx context.Context, userAID string, userBID string) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `INSERT INTO private_chats (user1_id, user2_id) VALUES ($1, $2)
        ON CONFLICT (user1_id, user2_id) DO NOTHING
        RETURNING `+chatColumns, userAID, userBID)
	if err == nil {
		return chat, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, err
	}

	err = r.db.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM private_chats WHERE user1_id=$1 AND user2_id=$2`, userAID, userBID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

// GetChat fetches a chat by id.
func (r *ChatRepo) GetChat(ctx context.Context, chatID string) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM private_chats WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

// GetChats fetches every existing chat among chatIDs. Missing ids are simply
// absent from the result.
func (r *ChatRepo) GetChats(ctx context.Context, chatIDs []string) ([]models.Chat, error) {
	if len(chatIDs) == 0 {
		return []models.Chat{}, nil
	}
	var chats []models.Chat
	err := r.db.SelectContext(ctx, &chats, `SELECT `+chatColumns+` FROM private_chats WHERE id = ANY($1::uuid[])`, pq.Array(chatIDs))
	return chats, err
}

// ListChatIDs returns the ids of every chat the user participates in.
func (r *ChatRepo) ListChatIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `SELECT id FROM private_chats WHERE user1_id=$1 OR user2_id=$1`, userID)
	return ids, err
}

// GetInboxRow builds the inbox row of a single chat as seen by userID.
func (r *ChatRepo) GetInboxRow(ctx context.Context, userID string, chatID string) (models.InboxRow, error) {
	var rec inboxRecord
	err := r.db.GetContext(ctx, &rec, inboxRowQuery, userID, nil, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.InboxRow{}, ErrChatNotFound
	}
	if err != nil {
		return models.InboxRow{}, err
	}
	return rec.toModel(), nil
}

// InboxPage returns up to fetch inbox rows starting at the rank of the cursor
// chat (or the first row when the cursor is empty or unknown).
func (r *ChatRepo) InboxPage(ctx context.Context, userID string, title string, cursor string, fetch int) ([]models.InboxRow, error) {
	var recs []inboxRecord
	if err := r.db.SelectContext(ctx, &recs, inboxPageQuery, userID, likePattern(title), nullable(cursor), fetch); err != nil {
		return nil, err
	}
	rows := make([]models.InboxRow, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, rec.toModel())
	}
	return rows, nil
}

type inboxRecord struct {
	ChatID          string     `db:"chat_id"`
	PeerID          string     `db:"peer_id"`
	Title           string     `db:"title"`
	AvatarURL       *string    `db:"avatar_url"`
	UnreadCount     int        `db:"unread_count"`
	LatestID        *string    `db:"latest_id"`
	LatestSenderID  *string    `db:"latest_sender_id"`
	LatestContent   *string    `db:"latest_content"`
	LatestCreatedAt *time.Time `db:"latest_created_at"`
	LatestDeletedAt *time.Time `db:"latest_deleted_at"`
}

func (rec inboxRecord) toModel() models.InboxRow {
	row := models.InboxRow{
		ChatID:      rec.ChatID,
		PeerID:      rec.PeerID,
		Title:       rec.Title,
		AvatarURL:   rec.AvatarURL,
		UnreadCount: rec.UnreadCount,
	}
	if rec.LatestID == nil || rec.LatestCreatedAt == nil {
		return row
	}
	latest := &models.LatestMessage{
		MessageID: *rec.LatestID,
		CreatedAt: *rec.LatestCreatedAt,
		DeletedAt: rec.LatestDeletedAt,
	}
	if rec.LatestSenderID != nil {
		latest.SenderID = *rec.LatestSenderID
	}
	if rec.LatestDeletedAt == nil {
		latest.Content = rec.LatestContent
	}
	row.LatestMessage = latest
	return row
}
