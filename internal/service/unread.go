package service

import (
	"fmt"
	"log"
	"time"

	"github.com/noteduco342/OMInbox-backend/internal/models"
	"github.com/noteduco342/OMInbox-backend/internal/repository"
	"github.com/noteduco342/OMInbox-backend/internal/validation"
)

const previewLength = 140

type MessagePreview struct {
	ID        uint      `json:"id"`
	AuthorID  uint      `json:"author_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type ThreadSummary struct {
	Thread             models.ThreadResponse `json:"thread"`
	LastMessagePreview *MessagePreview       `json:"last_message_preview"`
	Unread             bool                  `json:"unread"`
}

// isUnread: the latest message is someone else's and the user has not
// viewed the thread since it was written. Threads without messages never count.
func isUnread(row repository.ThreadSummaryRow, userID uint) bool {
	if row.MessageID == nil || row.MessageAuthorID == nil || row.MessageCreatedAt == nil {
		return false
	}
	if *row.MessageAuthorID == userID {
		return false
	}
	if row.LastReadAt == nil {
		return true
	}
	return row.LastReadAt.Before(*row.MessageCreatedAt)
}

func toSummary(row repository.ThreadSummaryRow, userID uint) ThreadSummary {
	summary := ThreadSummary{
		Thread: models.ThreadResponse{
			ID:              row.ThreadID,
			GroupID:         row.GroupID,
			CreatedByUserID: row.CreatedByUserID,
			Subject:         row.Subject,
			LastActivityAt:  row.LastActivityAt,
			CreatedAt:       row.ThreadCreatedAt,
		},
		Unread: isUnread(row, userID),
	}
	if row.MessageID != nil && row.MessageAuthorID != nil && row.MessageCreatedAt != nil {
		content := ""
		if row.MessageContent != nil {
			content = validation.Truncate(*row.MessageContent, previewLength)
		}
		summary.LastMessagePreview = &MessagePreview{
			ID:        *row.MessageID,
			AuthorID:  *row.MessageAuthorID,
			Content:   content,
			CreatedAt: *row.MessageCreatedAt,
		}
	}
	return summary
}

// ListThreads returns visible threads, most recent activity first.
func (s *InboxService) ListThreads(userID uint) ([]ThreadSummary, error) {
	rows, err := s.threadRepo.ListThreadSummaries(userID)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	summaries := make([]ThreadSummary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, toSummary(row, userID))
	}
	return summaries, nil
}

// UnreadCount returns how many visible threads have unseen activity. A thread
// with many unseen messages counts once.
func (s *InboxService) UnreadCount(userID uint) (int, error) {
	if s.cache != nil {
		if count, ok := s.cache.GetUnreadCount(userID); ok {
			return count, nil
		}
	}

	rows, err := s.threadRepo.ListThreadSummaries(userID)
	if err != nil {
		return 0, fmt.Errorf("count unread threads: %w", err)
	}
	count := 0
	for _, row := range rows {
		if isUnread(row, userID) {
			count++
		}
	}

	if s.cache != nil {
		if err := s.cache.SetUnreadCount(userID, count); err != nil {
			log.Printf("Failed to cache unread count for user %d: %v", userID, err)
		}
	}
	return count, nil
}

func (s *InboxService) invalidateUnread(userIDs ...uint) {
	if s.cache == nil || len(userIDs) == 0 {
		return
	}
	if err := s.cache.InvalidateUnreadCounts(userIDs...); err != nil {
		log.Printf("Failed to invalidate unread counts for %d users: %v", len(userIDs), err)
	}
}
