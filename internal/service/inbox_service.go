package service

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/noteduco342/OMInbox-backend/internal/models"
	"github.com/noteduco342/OMInbox-backend/internal/repository"
	"github.com/noteduco342/OMInbox-backend/internal/validation"
)

type InboxService struct {
	threadRepo    repository.ThreadRepositoryInterface
	readStateRepo repository.ReadStateRepositoryInterface
	groupRepo     repository.GroupRepositoryInterface
	userRepo      repository.UserRepositoryInterface

	clock    Clock
	cache    UnreadCache
	notifier Notifier
	limits   Limits

	fanOutWG sync.WaitGroup
}

type Limits struct {
	MaxMessageLength int
	MaxSubjectLength int
}

func NewInboxService(
	threadRepo repository.ThreadRepositoryInterface,
	readStateRepo repository.ReadStateRepositoryInterface,
	groupRepo repository.GroupRepositoryInterface,
	userRepo repository.UserRepositoryInterface,
) *InboxService {
	return &InboxService{
		threadRepo:    threadRepo,
		readStateRepo: readStateRepo,
		groupRepo:     groupRepo,
		userRepo:      userRepo,
		clock:         SystemClock{},
		limits: Limits{
			MaxMessageLength: validation.MaxMessageLength(),
			MaxSubjectLength: validation.DefaultMaxSubjectLength,
		},
	}
}

func (s *InboxService) WithClock(clock Clock) *InboxService {
	s.clock = clock
	return s
}

func (s *InboxService) WithCache(cache UnreadCache) *InboxService {
	s.cache = cache
	return s
}

func (s *InboxService) WithNotifier(notifier Notifier) *InboxService {
	s.notifier = notifier
	return s
}

func (s *InboxService) WithLimits(limits Limits) *InboxService {
	if limits.MaxMessageLength > 0 {
		s.limits.MaxMessageLength = limits.MaxMessageLength
	}
	if limits.MaxSubjectLength > 0 {
		s.limits.MaxSubjectLength = limits.MaxSubjectLength
	}
	return s
}

type ThreadView struct {
	Thread   models.ThreadResponse    `json:"thread"`
	Messages []models.MessageResponse `json:"messages"`
}

func (s *InboxService) normalizeContent(content string) (string, error) {
	content = validation.TrimAndLimit(content, s.limits.MaxMessageLength)
	if content == "" {
		return "", ErrEmptyContent
	}
	return content, nil
}

func (s *InboxService) normalizeSubject(subject *string) *string {
	if subject == nil {
		return nil
	}
	trimmed := validation.TrimAndLimit(*subject, s.limits.MaxSubjectLength)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// CreateThread starts a conversation in a group together with its first message.
func (s *InboxService) CreateThread(groupID, authorID uint, subject *string, content string) (*models.Thread, error) {
	content, err := s.normalizeContent(content)
	if err != nil {
		return nil, err
	}
	if err := s.CanCreateThread(authorID, groupID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	thread := &models.Thread{
		GroupID:         groupID,
		CreatedByUserID: authorID,
		Subject:         s.normalizeSubject(subject),
		CreatedAt:       now,
		LastActivityAt:  now,
	}
	first := &models.Message{
		ClientID:  uuid.NewString(),
		AuthorID:  authorID,
		Content:   content,
		CreatedAt: now,
		Version:   1,
	}

	if err := s.threadRepo.CreateWithFirstMessage(thread, first); err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}

	s.invalidateUnread(authorID)
	s.fanOut(thread, ThreadEvent{
		Type:           EventThreadCreated,
		ThreadID:       thread.ID,
		GroupID:        thread.GroupID,
		MessageID:      first.ID,
		ActorID:        authorID,
		LastActivityAt: thread.LastActivityAt,
	})
	return thread, nil
}

// Reply appends a message. A non-empty clientID makes the call idempotent
// per author: a retry returns the message stored by the first attempt.
func (s *InboxService) Reply(threadID, authorID uint, content, clientID string) (*models.Message, error) {
	thread, err := s.CanAccess(authorID, threadID)
	if err != nil {
		return nil, err
	}
	content, err = s.normalizeContent(content)
	if err != nil {
		return nil, err
	}

	clientID = strings.TrimSpace(clientID)
	if clientID != "" {
		existing, err := s.threadRepo.FindMessageByClientID(authorID, clientID)
		switch {
		case err == nil && existing.ThreadID == threadID:
			return existing, nil
		case err == nil:
			return nil, ErrClientIDReused
		case !isNotFound(err):
			return nil, fmt.Errorf("lookup client id: %w", err)
		}
	} else {
		clientID = uuid.NewString()
	}

	message := &models.Message{
		ClientID: clientID,
		AuthorID: authorID,
		Content:  content,
		Version:  1,
	}
	if err := s.threadRepo.AppendMessage(threadID, message, s.clock.Now()); err != nil {
		if isNotFound(err) {
			return nil, ErrThreadNotFound
		}
		return nil, fmt.Errorf("append reply: %w", err)
	}

	s.invalidateUnread(authorID)
	s.fanOut(thread, ThreadEvent{
		Type:           EventMessageCreated,
		ThreadID:       threadID,
		GroupID:        thread.GroupID,
		MessageID:      message.ID,
		ActorID:        authorID,
		LastActivityAt: message.CreatedAt,
	})
	return message, nil
}

// GetThread opens a thread: it records the view, then returns all messages
// oldest first with their current lock status.
func (s *InboxService) GetThread(threadID, userID uint) (*ThreadView, error) {
	thread, err := s.CanAccess(userID, threadID)
	if err != nil {
		return nil, err
	}

	if err := s.readStateRepo.UpsertMonotonic(threadID, userID, s.clock.Now()); err != nil {
		return nil, fmt.Errorf("record view: %w", err)
	}
	s.invalidateUnread(userID)

	messages, err := s.threadRepo.ListMessages(threadID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	states, err := s.readStateRepo.ListByThread(threadID)
	if err != nil {
		return nil, fmt.Errorf("list read states: %w", err)
	}

	view := &ThreadView{
		Thread:   thread.ToResponse(),
		Messages: make([]models.MessageResponse, 0, len(messages)),
	}
	for i := range messages {
		resp := messages[i].ToResponse()
		resp.Locked = LockedBy(states, messages[i].AuthorID, messages[i].CreatedAt)
		view.Messages = append(view.Messages, resp)
	}
	return view, nil
}

// MarkRead records a view without loading the thread's messages.
func (s *InboxService) MarkRead(threadID, userID uint) error {
	if _, err := s.CanAccess(userID, threadID); err != nil {
		return err
	}
	if err := s.readStateRepo.UpsertMonotonic(threadID, userID, s.clock.Now()); err != nil {
		return fmt.Errorf("record view: %w", err)
	}
	s.invalidateUnread(userID)
	return nil
}

func (s *InboxService) ListReadStates(threadID, userID uint) ([]models.ThreadReadState, error) {
	if _, err := s.CanAccess(userID, threadID); err != nil {
		return nil, err
	}
	states, err := s.readStateRepo.ListByThread(threadID)
	if err != nil {
		return nil, fmt.Errorf("list read states: %w", err)
	}
	return states, nil
}

// EditMessage replaces content of an unlocked message. An edit is not new
// activity: created_at and last_activity_at stay as they were.
func (s *InboxService) EditMessage(threadID, messageID, actorID uint, content string) (*models.Message, error) {
	thread, _, err := s.authorizeMutation(threadID, messageID, actorID)
	if err != nil {
		return nil, err
	}
	content, err = s.normalizeContent(content)
	if err != nil {
		return nil, err
	}

	updated, err := s.threadRepo.UpdateMessageContent(threadID, messageID, content, s.clock.Now())
	if err != nil {
		if isNotFound(err) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("edit message: %w", err)
	}

	s.fanOut(thread, ThreadEvent{
		Type:           EventMessageEdited,
		ThreadID:       threadID,
		GroupID:        thread.GroupID,
		MessageID:      messageID,
		ActorID:        actorID,
		LastActivityAt: thread.LastActivityAt,
	})
	return updated, nil
}

// DeleteMessage removes an unlocked message and rewinds last_activity_at when
// the removed message was the newest one.
func (s *InboxService) DeleteMessage(threadID, messageID, actorID uint) error {
	thread, _, err := s.authorizeMutation(threadID, messageID, actorID)
	if err != nil {
		return err
	}

	updated, err := s.threadRepo.DeleteMessage(threadID, messageID)
	if err != nil {
		if isNotFound(err) {
			return ErrMessageNotFound
		}
		return fmt.Errorf("delete message: %w", err)
	}

	s.fanOut(thread, ThreadEvent{
		Type:           EventMessageDeleted,
		ThreadID:       threadID,
		GroupID:        thread.GroupID,
		MessageID:      messageID,
		ActorID:        actorID,
		LastActivityAt: updated.LastActivityAt,
	})
	return nil
}
