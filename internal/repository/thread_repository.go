package repository

import (
	"time"

	"github.com/noteduco342/OMInbox-backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ThreadRepository struct {
	db *gorm.DB
}

func NewThreadRepository(db *gorm.DB) *ThreadRepository {
	return &ThreadRepository{db: db}
}

// CreateWithFirstMessage inserts the thread, its opening message and the
// author's read state together. Timestamps are taken from the arguments.
func (r *ThreadRepository) CreateWithFirstMessage(thread *models.Thread, first *models.Message) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(thread).Error; err != nil {
			return err
		}
		first.ThreadID = thread.ID
		if err := tx.Create(first).Error; err != nil {
			return err
		}
		return upsertReadState(tx, thread.ID, first.AuthorID, first.CreatedAt)
	})
}

func (r *ThreadRepository) FindByID(id uint) (*models.Thread, error) {
	var thread models.Thread
	if err := r.db.First(&thread, id).Error; err != nil {
		return nil, err
	}
	return &thread, nil
}

// lockThread takes a row lock so appends and deletes in the same thread
// commit one after another.
func lockThread(tx *gorm.DB, threadID uint) (*models.Thread, error) {
	var thread models.Thread
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&thread, threadID).Error
	if err != nil {
		return nil, err
	}
	return &thread, nil
}

// AppendMessage stores a reply. Its created_at never precedes the thread's
// current last_activity_at, keeping in-thread order consistent with commit order.
func (r *ThreadRepository) AppendMessage(threadID uint, message *models.Message, now time.Time) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		thread, err := lockThread(tx, threadID)
		if err != nil {
			return err
		}

		createdAt := now
		if thread.LastActivityAt.After(createdAt) {
			createdAt = thread.LastActivityAt
		}
		message.ThreadID = threadID
		message.CreatedAt = createdAt
		if err := tx.Create(message).Error; err != nil {
			return err
		}

		if err := tx.Model(thread).Update("last_activity_at", createdAt).Error; err != nil {
			return err
		}
		return upsertReadState(tx, threadID, message.AuthorID, createdAt)
	})
}

func (r *ThreadRepository) FindMessage(threadID, messageID uint) (*models.Message, error) {
	var message models.Message
	err := r.db.Where("id = ? AND thread_id = ?", messageID, threadID).First(&message).Error
	if err != nil {
		return nil, err
	}
	return &message, nil
}

func (r *ThreadRepository) FindMessageByClientID(authorID uint, clientID string) (*models.Message, error) {
	var message models.Message
	err := r.db.Where("author_id = ? AND client_id = ?", authorID, clientID).First(&message).Error
	if err != nil {
		return nil, err
	}
	return &message, nil
}

func (r *ThreadRepository) ListMessages(threadID uint) ([]models.Message, error) {
	var messages []models.Message
	err := r.db.Where("thread_id = ?", threadID).
		Order("created_at ASC, id ASC").
		Find(&messages).Error
	return messages, err
}

// UpdateMessageContent rewrites content in place. created_at and the
// thread's last_activity_at are left untouched.
func (r *ThreadRepository) UpdateMessageContent(threadID, messageID uint, content string, editedAt time.Time) (*models.Message, error) {
	result := r.db.Model(&models.Message{}).
		Where("id = ? AND thread_id = ?", messageID, threadID).
		Updates(map[string]interface{}{
			"content":   content,
			"edited_at": editedAt,
			"version":   gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return r.FindMessage(threadID, messageID)
}

// DeleteMessage removes the message and recomputes last_activity_at from the
// newest message still present when the transaction commits.
func (r *ThreadRepository) DeleteMessage(threadID, messageID uint) (*models.Thread, error) {
	var updated *models.Thread
	err := r.db.Transaction(func(tx *gorm.DB) error {
		thread, err := lockThread(tx, threadID)
		if err != nil {
			return err
		}

		result := tx.Where("id = ? AND thread_id = ?", messageID, threadID).Delete(&models.Message{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		lastActivity := thread.CreatedAt
		var latest models.Message
		err = tx.Where("thread_id = ?", threadID).
			Order("created_at DESC, id DESC").
			Limit(1).
			Find(&latest).Error
		if err != nil {
			return err
		}
		if latest.ID != 0 {
			lastActivity = latest.CreatedAt
		}

		if err := tx.Model(thread).Update("last_activity_at", lastActivity).Error; err != nil {
			return err
		}
		thread.LastActivityAt = lastActivity
		updated = thread
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RepairLastActivity realigns last_activity_at with the newest surviving
// message for threads that drifted, returning how many were fixed.
func (r *ThreadRepository) RepairLastActivity() (int64, error) {
	result := r.db.Exec(`
		UPDATE threads t
		SET last_activity_at = expected.at, updated_at = NOW()
		FROM (
			SELECT th.id, COALESCE(MAX(m.created_at), th.created_at) AS at
			FROM threads th
			LEFT JOIN messages m ON m.thread_id = th.id
			GROUP BY th.id, th.created_at
		) expected
		WHERE expected.id = t.id AND t.last_activity_at IS DISTINCT FROM expected.at
	`)
	return result.RowsAffected, result.Error
}
