package service

import (
	"log"
	"time"

	"github.com/noteduco342/OMInbox-backend/internal/models"
)

type EventType string

const (
	EventThreadCreated  EventType = "thread_created"
	EventMessageCreated EventType = "message_created"
	EventMessageEdited  EventType = "message_edited"
	EventMessageDeleted EventType = "message_deleted"
)

// ThreadEvent is pushed to participants after a committed change.
type ThreadEvent struct {
	Type           EventType `json:"type"`
	ThreadID       uint      `json:"thread_id"`
	GroupID        uint      `json:"group_id"`
	MessageID      uint      `json:"message_id,omitempty"`
	ActorID        uint      `json:"actor_id"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// Notifier delivers events on a best-effort basis.
type Notifier interface {
	NotifyUsers(userIDs []uint, event ThreadEvent) error
}

// UnreadCache stores per-user unread thread counts.
type UnreadCache interface {
	GetUnreadCount(userID uint) (int, bool)
	SetUnreadCount(userID uint, count int) error
	InvalidateUnreadCounts(userIDs ...uint) error
}

// fanOut runs after commit and never reports back to the caller: failures are
// logged and the mutation stands.
func (s *InboxService) fanOut(thread *models.Thread, event ThreadEvent) {
	s.fanOutWG.Add(1)
	go func() {
		defer s.fanOutWG.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Printf("Fan-out for thread %d recovered from panic: %v", thread.ID, r)
			}
		}()

		recipients, err := s.participants(thread, event.ActorID)
		if err != nil {
			log.Printf("Fan-out for thread %d: failed to resolve recipients: %v", thread.ID, err)
			return
		}
		if len(recipients) == 0 {
			return
		}

		s.invalidateUnread(recipients...)

		if s.notifier == nil {
			return
		}
		if err := s.notifier.NotifyUsers(recipients, event); err != nil {
			log.Printf("Fan-out for thread %d (%s) failed: %v", thread.ID, event.Type, err)
		}
	}()
}

// participants are approved group members plus the thread creator, minus the actor.
func (s *InboxService) participants(thread *models.Thread, actorID uint) ([]uint, error) {
	memberIDs, err := s.groupRepo.GetApprovedMemberIDs(thread.GroupID)
	if err != nil {
		return nil, err
	}

	seen := make(map[uint]struct{}, len(memberIDs)+1)
	out := make([]uint, 0, len(memberIDs)+1)
	for _, id := range append(memberIDs, thread.CreatedByUserID) {
		if id == actorID {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// WaitForFanOut blocks until in-flight notifications finish. Used at shutdown.
func (s *InboxService) WaitForFanOut() {
	s.fanOutWG.Wait()
}
