package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Chat represents a private chat between exactly two users.
// UserAID is always lexically smaller than UserBID.
type Chat struct {
	ID        string    `db:"id" json:"chatId"`
	UserAID   string    `db:"user1_id" json:"user1Id"`
	UserBID   string    `db:"user2_id" json:"user2Id"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// HasParticipant reports whether userID is one of the two chat members.
func (c Chat) HasParticipant(userID string) bool {
	return userID != "" && (c.UserAID == userID || c.UserBID == userID)
}

// PeerOf returns the other participant. It returns an empty string when
// userID is not a member of the chat.
func (c Chat) PeerOf(userID string) string {
	switch userID {
	case c.UserAID:
		return c.UserBID
	case c.UserBID:
		return c.UserAID
	}
	return ""
}

// CanonicalPair orders two participant ids so that the first is the smaller.
func CanonicalPair(a, b string) (string, string) {
	if strings.Compare(a, b) <= 0 {
		return a, b
	}
	return b, a
}

// ParseID validates a UUID and returns its canonical lowercase form.
func ParseID(raw string) (string, bool) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	return id.String(), true
}

// InboxRow is the per-user summary of a chat shown in the inbox.
type InboxRow struct {
	ChatID        string         `json:"chatId"`
	PeerID        string         `json:"peerId"`
	Title         string         `json:"title"`
	AvatarURL     *string        `json:"avatarUrl"`
	UnreadCount   int            `json:"unreadCount"`
	LatestMessage *LatestMessage `json:"latestMessage"`
}

// LatestMessage is the newest message of a chat as embedded in an inbox row.
type LatestMessage struct {
	MessageID string     `json:"messageId"`
	SenderID  string     `json:"senderId"`
	Content   *string    `json:"content"`
	CreatedAt time.Time  `json:"createdAt"`
	DeletedAt *time.Time `json:"deletedAt"`
}
