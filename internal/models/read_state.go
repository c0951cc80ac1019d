package models

import (
	"time"
)

// ThreadReadState tracks when a user last viewed a thread.
// last_read_at is monotonic per (thread, user).
type ThreadReadState struct {
	ThreadID   uint      `gorm:"primaryKey" json:"thread_id"`
	UserID     uint      `gorm:"primaryKey" json:"user_id"`
	LastReadAt time.Time `gorm:"not null" json:"last_read_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
