package models

import (
	"time"
)

type Message struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `gorm:"not null;index:idx_messages_thread_created,priority:2" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ThreadID uint `gorm:"not null;index:idx_messages_thread_created,priority:1" json:"thread_id"`

	// Client-side idempotency key for replies
	ClientID string `gorm:"type:varchar(36);uniqueIndex:idx_client_author;not null" json:"client_id"`
	AuthorID uint   `gorm:"not null;uniqueIndex:idx_client_author;index" json:"author_id"`

	Content string `gorm:"type:text;not null" json:"content"`

	// Edit tracking
	Version  int        `gorm:"default:1" json:"version"`
	EditedAt *time.Time `json:"edited_at"`
}

type MessageResponse struct {
	ID        uint       `json:"id"`
	ThreadID  uint       `json:"thread_id"`
	ClientID  string     `json:"client_id"`
	AuthorID  uint       `json:"author_id"`
	Content   string     `json:"content"`
	Version   int        `json:"version"`
	EditedAt  *time.Time `json:"edited_at"`
	CreatedAt time.Time  `json:"created_at"`
	Locked    bool       `json:"locked"`
}

func (m *Message) ToResponse() MessageResponse {
	return MessageResponse{
		ID:        m.ID,
		ThreadID:  m.ThreadID,
		ClientID:  m.ClientID,
		AuthorID:  m.AuthorID,
		Content:   m.Content,
		Version:   m.Version,
		EditedAt:  m.EditedAt,
		CreatedAt: m.CreatedAt,
	}
}
