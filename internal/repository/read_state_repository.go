package repository

import (
	"time"

	"github.com/noteduco342/OMInbox-backend/internal/models"
	"gorm.io/gorm"
)

type ReadStateRepository struct {
	db *gorm.DB
}

func NewReadStateRepository(db *gorm.DB) *ReadStateRepository {
	return &ReadStateRepository{db: db}
}

func (r *ReadStateRepository) UpsertMonotonic(threadID, userID uint, readAt time.Time) error {
	return upsertReadState(r.db, threadID, userID, readAt)
}

// upsertReadState never moves last_read_at backward, so late or replayed
// read events cannot unlock a message.
func upsertReadState(db *gorm.DB, threadID, userID uint, readAt time.Time) error {
	return db.Exec(`
		INSERT INTO thread_read_states (thread_id, user_id, last_read_at, updated_at)
		VALUES (?, ?, ?, NOW())
		ON CONFLICT (thread_id, user_id) DO UPDATE
		SET last_read_at = GREATEST(thread_read_states.last_read_at, EXCLUDED.last_read_at),
			updated_at = NOW()
	`, threadID, userID, readAt).Error
}

func (r *ReadStateRepository) Get(threadID, userID uint) (*models.ThreadReadState, error) {
	var state models.ThreadReadState
	err := r.db.Where("thread_id = ? AND user_id = ?", threadID, userID).First(&state).Error
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (r *ReadStateRepository) ListByThread(threadID uint) ([]models.ThreadReadState, error) {
	var states []models.ThreadReadState
	err := r.db.Where("thread_id = ?", threadID).Order("user_id ASC").Find(&states).Error
	return states, err
}

// HasReadAfter reports whether anyone other than excludeUserID viewed the
// thread strictly after the given instant.
func (r *ReadStateRepository) HasReadAfter(threadID, excludeUserID uint, after time.Time) (bool, error) {
	var exists bool
	err := r.db.Raw(`
		SELECT EXISTS (
			SELECT 1 FROM thread_read_states
			WHERE thread_id = ? AND user_id <> ? AND last_read_at > ?
		)
	`, threadID, excludeUserID, after).Scan(&exists).Error
	return exists, err
}
