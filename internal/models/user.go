package models

import (
	"time"

	"gorm.io/gorm"
)

const RolePlatformAdmin = "admin"

// User is owned by the accounts module; the inbox reads it for the admin check.
type User struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Username string `gorm:"uniqueIndex;not null" json:"username"`
	Role     string `gorm:"not null;default:user" json:"role"`
}

func (u *User) IsPlatformAdmin() bool {
	return u.Role == RolePlatformAdmin
}
