package service

import (
	"fmt"
	"time"

	"github.com/noteduco342/OMInbox-backend/internal/models"
)

// IsLocked reports whether a message written by authorID at createdAt can no
// longer be edited or deleted: some other participant has viewed the thread
// strictly after the message existed. It always reads current state.
func (s *InboxService) IsLocked(threadID, authorID uint, createdAt time.Time) (bool, error) {
	locked, err := s.readStateRepo.HasReadAfter(threadID, authorID, createdAt)
	if err != nil {
		return false, fmt.Errorf("evaluate lock: %w", err)
	}
	return locked, nil
}

// LockedBy applies the same rule as IsLocked to read states already in memory.
func LockedBy(states []models.ThreadReadState, authorID uint, createdAt time.Time) bool {
	for _, st := range states {
		if st.UserID != authorID && st.LastReadAt.After(createdAt) {
			return true
		}
	}
	return false
}

// authorizeMutation runs the checks shared by edit and delete, in order:
// access, message belongs to thread, actor is author, message still unlocked.
func (s *InboxService) authorizeMutation(threadID, messageID, actorID uint) (*models.Thread, *models.Message, error) {
	thread, err := s.CanAccess(actorID, threadID)
	if err != nil {
		return nil, nil, err
	}

	message, err := s.threadRepo.FindMessage(threadID, messageID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil, ErrMessageNotFound
		}
		return nil, nil, fmt.Errorf("load message %d: %w", messageID, err)
	}
	if message.AuthorID != actorID {
		return nil, nil, ErrNotAuthor
	}

	locked, err := s.IsLocked(threadID, message.AuthorID, message.CreatedAt)
	if err != nil {
		return nil, nil, err
	}
	if locked {
		return nil, nil, ErrMessageLocked
	}
	return thread, message, nil
}
