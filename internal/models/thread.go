package models

import (
	"time"
)

// Thread is a conversation scoped to one group. LastActivityAt always mirrors
// the CreatedAt of the newest surviving message, or the thread's own CreatedAt
// when no messages remain.
type Thread struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	GroupID         uint    `gorm:"not null;index:idx_threads_group_activity,priority:1" json:"group_id"`
	CreatedByUserID uint    `gorm:"not null;index" json:"created_by_user_id"`
	Subject         *string `gorm:"size:200" json:"subject"`

	LastActivityAt time.Time `gorm:"not null;index:idx_threads_group_activity,priority:2" json:"last_activity_at"`

	Messages []Message `gorm:"foreignKey:ThreadID;constraint:OnDelete:CASCADE" json:"-"`
}

type ThreadResponse struct {
	ID              uint      `json:"id"`
	GroupID         uint      `json:"group_id"`
	CreatedByUserID uint      `json:"created_by_user_id"`
	Subject         *string   `json:"subject"`
	LastActivityAt  time.Time `json:"last_activity_at"`
	CreatedAt       time.Time `json:"created_at"`
}

func (t *Thread) ToResponse() ThreadResponse {
	return ThreadResponse{
		ID:              t.ID,
		GroupID:         t.GroupID,
		CreatedByUserID: t.CreatedByUserID,
		Subject:         t.Subject,
		LastActivityAt:  t.LastActivityAt,
		CreatedAt:       t.CreatedAt,
	}
}
