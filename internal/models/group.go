package models

import (
	"time"

	"gorm.io/gorm"
)

type MembershipStatus string

const (
	MembershipApproved MembershipStatus = "approved"
	MembershipPending  MembershipStatus = "pending"
	// MembershipNone is never stored; it reports the absence of a row.
	MembershipNone MembershipStatus = ""
)

// Group and GroupMember are owned by the groups module. The inbox only reads them.
type Group struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name    string `gorm:"size:100;not null" json:"name"`
	OwnerID uint   `gorm:"not null" json:"owner_id"`
}

type GroupMember struct {
	GroupID  uint             `gorm:"primaryKey" json:"group_id"`
	UserID   uint             `gorm:"primaryKey" json:"user_id"`
	Status   MembershipStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	JoinedAt time.Time        `gorm:"autoCreateTime" json:"joined_at"`
}
