package models

import "time"

// Message represents a private chat message as stored.
type Message struct {
	ID        string     `db:"id" json:"id"`
	ChatID    string     `db:"private_chat_id" json:"chatId"`
	SenderID  string     `db:"sender_id" json:"senderId"`
	Content   string     `db:"content" json:"-"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	EditedAt  *time.Time `db:"edited_at" json:"editedAt"`
	ReadAt    *time.Time `db:"read_at" json:"readAt"`
	DeletedAt *time.Time `db:"deleted_at" json:"deletedAt"`
}

// IsDeleted reports whether the message carries a tombstone.
func (m Message) IsDeleted() bool {
	return m.DeletedAt != nil
}

// MessageDTO is the client-facing view of a message. Content is null once
// the message has been deleted.
type MessageDTO struct {
	MessageID string     `json:"messageId"`
	ChatID    string     `json:"chatId"`
	SenderID  string     `json:"senderId"`
	Content   *string    `json:"content"`
	CreatedAt time.Time  `json:"createdAt"`
	EditedAt  *time.Time `json:"editedAt"`
	ReadAt    *time.Time `json:"readAt"`
	DeletedAt *time.Time `json:"deletedAt"`
}

// DTO converts the stored message into its client-facing form.
func (m Message) DTO() MessageDTO {
	dto := MessageDTO{
		MessageID: m.ID,
		ChatID:    m.ChatID,
		SenderID:  m.SenderID,
		CreatedAt: m.CreatedAt,
		EditedAt:  m.EditedAt,
		ReadAt:    m.ReadAt,
		DeletedAt: m.DeletedAt,
	}
	if !m.IsDeleted() {
		content := m.Content
		dto.Content = &content
	}
	return dto
}

// ReadReceipt identifies one message that has just been marked read.
type ReadReceipt struct {
	MessageID string     `json:"messageId"`
	ReadAt    *time.Time `json:"readAt"`
}
