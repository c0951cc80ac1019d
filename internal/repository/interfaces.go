package repository

import (
	"time"

	"github.com/noteduco342/OMInbox-backend/internal/models"
)

// ThreadRepositoryInterface defines the contract for thread and message persistence.
// Multi-step writes are atomic: each method runs in one transaction.
type ThreadRepositoryInterface interface {
	CreateWithFirstMessage(thread *models.Thread, first *models.Message) error
	FindByID(id uint) (*models.Thread, error)
	AppendMessage(threadID uint, message *models.Message, now time.Time) error
	FindMessage(threadID, messageID uint) (*models.Message, error)
	FindMessageByClientID(authorID uint, clientID string) (*models.Message, error)
	ListMessages(threadID uint) ([]models.Message, error)
	UpdateMessageContent(threadID, messageID uint, content string, editedAt time.Time) (*models.Message, error)
	DeleteMessage(threadID, messageID uint) (*models.Thread, error)
	ListThreadSummaries(userID uint) ([]ThreadSummaryRow, error)
	RepairLastActivity() (int64, error)
}

// ReadStateRepositoryInterface defines the contract for per-user thread read states
type ReadStateRepositoryInterface interface {
	UpsertMonotonic(threadID, userID uint, readAt time.Time) error
	Get(threadID, userID uint) (*models.ThreadReadState, error)
	ListByThread(threadID uint) ([]models.ThreadReadState, error)
	HasReadAfter(threadID, excludeUserID uint, after time.Time) (bool, error)
}

// GroupRepositoryInterface is the read-only view of group membership the inbox needs
type GroupRepositoryInterface interface {
	FindByID(id uint) (*models.Group, error)
	GetMemberStatus(groupID, userID uint) (models.MembershipStatus, error)
	GetApprovedMemberIDs(groupID uint) ([]uint, error)
}

// UserRepositoryInterface is the read-only view of user accounts the inbox needs
type UserRepositoryInterface interface {
	FindByID(id uint) (*models.User, error)
}
