package repository

import (
	"strings"
	"time"

	"github.com/noteduco342/OMInbox-backend/internal/models"
)

// ThreadSummaryRow is a denormalized row representing a visible thread with
// its latest message and the requesting user's read state.
// Latest-message columns are nil when the thread has no messages.
type ThreadSummaryRow struct {
	ThreadID        uint      `gorm:"column:thread_id"`
	GroupID         uint      `gorm:"column:group_id"`
	CreatedByUserID uint      `gorm:"column:created_by_user_id"`
	Subject         *string   `gorm:"column:subject"`
	LastActivityAt  time.Time `gorm:"column:last_activity_at"`
	ThreadCreatedAt time.Time `gorm:"column:thread_created_at"`

	MessageID        *uint      `gorm:"column:message_id"`
	MessageAuthorID  *uint      `gorm:"column:message_author_id"`
	MessageContent   *string    `gorm:"column:message_content"`
	MessageCreatedAt *time.Time `gorm:"column:message_created_at"`

	LastReadAt *time.Time `gorm:"column:last_read_at"`
}

// ListThreadSummaries returns every thread the user may see: threads they
// created plus threads in groups where their membership is approved.
// Only the single latest message per thread is loaded.
func (r *ThreadRepository) ListThreadSummaries(userID uint) ([]ThreadSummaryRow, error) {
	query := strings.TrimSpace(`
WITH visible AS (
	SELECT t.id, t.group_id, t.created_by_user_id, t.subject, t.last_activity_at, t.created_at
	FROM threads t
	WHERE t.created_by_user_id = ?
		OR EXISTS (
			SELECT 1 FROM group_members gm
			WHERE gm.group_id = t.group_id AND gm.user_id = ? AND gm.status = ?
		)
),
latest AS (
	SELECT
		m.thread_id,
		m.id,
		m.author_id,
		m.content,
		m.created_at,
		ROW_NUMBER() OVER (
			PARTITION BY m.thread_id
			ORDER BY m.created_at DESC, m.id DESC
		) AS rn
	FROM messages m
	JOIN visible v ON v.id = m.thread_id
)
SELECT
	v.id AS thread_id,
	v.group_id,
	v.created_by_user_id,
	v.subject,
	v.last_activity_at,
	v.created_at AS thread_created_at,
	l.id AS message_id,
	l.author_id AS message_author_id,
	l.content AS message_content,
	l.created_at AS message_created_at,
	rs.last_read_at
FROM visible v
LEFT JOIN latest l ON l.thread_id = v.id AND l.rn = 1
LEFT JOIN thread_read_states rs ON rs.thread_id = v.id AND rs.user_id = ?
ORDER BY v.last_activity_at DESC, v.id DESC
`)

	var rows []ThreadSummaryRow
	if err := r.db.Raw(query, userID, userID, models.MembershipApproved, userID).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
