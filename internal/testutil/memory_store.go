package testutil

import (
	"sort"
	"sync"
	"time"

	"github.com/noteduco342/OMInbox-backend/internal/models"
	"github.com/noteduco342/OMInbox-backend/internal/repository"
	"gorm.io/gorm"
)

type pairKey struct {
	a, b uint
}

// memoryDB is the shared state behind the in-memory repositories. One mutex
// guards everything, which makes each repository call atomic.
type memoryDB struct {
	mu sync.Mutex

	threads    map[uint]*models.Thread
	messages   map[uint]*models.Message
	readStates map[pairKey]*models.ThreadReadState // (thread, user)
	groups     map[uint]*models.Group
	members    map[pairKey]models.MembershipStatus // (group, user)
	users      map[uint]*models.User

	nextThreadID  uint
	nextMessageID uint
}

// MemoryStore bundles in-memory implementations of the repository interfaces.
type MemoryStore struct {
	db *memoryDB

	Threads    *MemoryThreadRepository
	ReadStates *MemoryReadStateRepository
	Groups     *MemoryGroupRepository
	Users      *MemoryUserRepository
}

func NewMemoryStore() *MemoryStore {
	db := &memoryDB{
		threads:       make(map[uint]*models.Thread),
		messages:      make(map[uint]*models.Message),
		readStates:    make(map[pairKey]*models.ThreadReadState),
		groups:        make(map[uint]*models.Group),
		members:       make(map[pairKey]models.MembershipStatus),
		users:         make(map[uint]*models.User),
		nextThreadID:  1,
		nextMessageID: 1,
	}
	return &MemoryStore{
		db:         db,
		Threads:    &MemoryThreadRepository{db: db},
		ReadStates: &MemoryReadStateRepository{db: db},
		Groups:     &MemoryGroupRepository{db: db},
		Users:      &MemoryUserRepository{db: db},
	}
}

// Seeding helpers

func (s *MemoryStore) AddGroup(id, ownerID uint) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.groups[id] = &models.Group{ID: id, Name: "group", OwnerID: ownerID}
}

func (s *MemoryStore) SetMembership(groupID, userID uint, status models.MembershipStatus) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if status == models.MembershipNone {
		delete(s.db.members, pairKey{groupID, userID})
		return
	}
	s.db.members[pairKey{groupID, userID}] = status
}

func (s *MemoryStore) AddUser(id uint, role string) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.users[id] = &models.User{ID: id, Username: "user", Role: role}
}

// SetReadState overwrites a read state without the monotonic guard.
func (s *MemoryStore) SetReadState(threadID, userID uint, at time.Time) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.readStates[pairKey{threadID, userID}] = &models.ThreadReadState{ThreadID: threadID, UserID: userID, LastReadAt: at}
}

// InsertEmptyThread stores a thread with no messages, a state normal
// creation never produces.
func (s *MemoryStore) InsertEmptyThread(groupID, creatorID uint, at time.Time) *models.Thread {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	t := &models.Thread{
		ID:              s.db.nextThreadID,
		GroupID:         groupID,
		CreatedByUserID: creatorID,
		CreatedAt:       at,
		UpdatedAt:       at,
		LastActivityAt:  at,
	}
	s.db.nextThreadID++
	s.db.threads[t.ID] = t
	cp := *t
	return &cp
}

// SetLastActivity overwrites last_activity_at, simulating drift.
func (s *MemoryStore) SetLastActivity(threadID uint, at time.Time) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if t, ok := s.db.threads[threadID]; ok {
		t.LastActivityAt = at
	}
}

// ExpectedLastActivity computes what last_activity_at must be from the messages present.
func (s *MemoryStore) ExpectedLastActivity(threadID uint) (time.Time, bool) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	t, ok := s.db.threads[threadID]
	if !ok {
		return time.Time{}, false
	}
	if latest := s.db.latestMessage(threadID); latest != nil {
		return latest.CreatedAt, true
	}
	return t.CreatedAt, true
}

func (db *memoryDB) latestMessage(threadID uint) *models.Message {
	var latest *models.Message
	for _, m := range db.messages {
		if m.ThreadID != threadID {
			continue
		}
		if latest == nil || m.CreatedAt.After(latest.CreatedAt) ||
			(m.CreatedAt.Equal(latest.CreatedAt) && m.ID > latest.ID) {
			latest = m
		}
	}
	return latest
}

func (db *memoryDB) upsertReadState(threadID, userID uint, at time.Time) {
	key := pairKey{threadID, userID}
	if st, ok := db.readStates[key]; ok {
		if at.After(st.LastReadAt) {
			st.LastReadAt = at
		}
		st.UpdatedAt = time.Now()
		return
	}
	db.readStates[key] = &models.ThreadReadState{ThreadID: threadID, UserID: userID, LastReadAt: at, UpdatedAt: time.Now()}
}

// MemoryThreadRepository implements repository.ThreadRepositoryInterface.
type MemoryThreadRepository struct {
	db *memoryDB
}

func (r *MemoryThreadRepository) CreateWithFirstMessage(thread *models.Thread, first *models.Message) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	thread.ID = r.db.nextThreadID
	r.db.nextThreadID++
	stored := *thread
	r.db.threads[thread.ID] = &stored

	first.ID = r.db.nextMessageID
	first.ThreadID = thread.ID
	r.db.nextMessageID++
	msg := *first
	r.db.messages[first.ID] = &msg

	r.db.upsertReadState(thread.ID, first.AuthorID, first.CreatedAt)
	return nil
}

func (r *MemoryThreadRepository) FindByID(id uint) (*models.Thread, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t, ok := r.db.threads[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *MemoryThreadRepository) AppendMessage(threadID uint, message *models.Message, now time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	t, ok := r.db.threads[threadID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	createdAt := now
	if t.LastActivityAt.After(createdAt) {
		createdAt = t.LastActivityAt
	}

	message.ID = r.db.nextMessageID
	r.db.nextMessageID++
	message.ThreadID = threadID
	message.CreatedAt = createdAt
	cp := *message
	r.db.messages[message.ID] = &cp

	t.LastActivityAt = createdAt
	r.db.upsertReadState(threadID, message.AuthorID, createdAt)
	return nil
}

func (r *MemoryThreadRepository) FindMessage(threadID, messageID uint) (*models.Message, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	m, ok := r.db.messages[messageID]
	if !ok || m.ThreadID != threadID {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *MemoryThreadRepository) FindMessageByClientID(authorID uint, clientID string) (*models.Message, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, m := range r.db.messages {
		if m.AuthorID == authorID && m.ClientID == clientID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *MemoryThreadRepository) ListMessages(threadID uint) ([]models.Message, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]models.Message, 0)
	for _, m := range r.db.messages {
		if m.ThreadID == threadID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryThreadRepository) UpdateMessageContent(threadID, messageID uint, content string, editedAt time.Time) (*models.Message, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	m, ok := r.db.messages[messageID]
	if !ok || m.ThreadID != threadID {
		return nil, gorm.ErrRecordNotFound
	}
	m.Content = content
	edited := editedAt
	m.EditedAt = &edited
	m.Version++
	cp := *m
	return &cp, nil
}

func (r *MemoryThreadRepository) DeleteMessage(threadID, messageID uint) (*models.Thread, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t, ok := r.db.threads[threadID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	m, ok := r.db.messages[messageID]
	if !ok || m.ThreadID != threadID {
		return nil, gorm.ErrRecordNotFound
	}
	delete(r.db.messages, messageID)

	t.LastActivityAt = t.CreatedAt
	if latest := r.db.latestMessage(threadID); latest != nil {
		t.LastActivityAt = latest.CreatedAt
	}
	cp := *t
	return &cp, nil
}

func (r *MemoryThreadRepository) ListThreadSummaries(userID uint) ([]repository.ThreadSummaryRow, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	rows := make([]repository.ThreadSummaryRow, 0)
	for _, t := range r.db.threads {
		visible := t.CreatedByUserID == userID ||
			r.db.members[pairKey{t.GroupID, userID}] == models.MembershipApproved
		if !visible {
			continue
		}
		row := repository.ThreadSummaryRow{
			ThreadID:        t.ID,
			GroupID:         t.GroupID,
			CreatedByUserID: t.CreatedByUserID,
			Subject:         t.Subject,
			LastActivityAt:  t.LastActivityAt,
			ThreadCreatedAt: t.CreatedAt,
		}
		if latest := r.db.latestMessage(t.ID); latest != nil {
			id, author, content, created := latest.ID, latest.AuthorID, latest.Content, latest.CreatedAt
			row.MessageID = &id
			row.MessageAuthorID = &author
			row.MessageContent = &content
			row.MessageCreatedAt = &created
		}
		if st, ok := r.db.readStates[pairKey{t.ID, userID}]; ok {
			at := st.LastReadAt
			row.LastReadAt = &at
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].LastActivityAt.Equal(rows[j].LastActivityAt) {
			return rows[i].ThreadID > rows[j].ThreadID
		}
		return rows[i].LastActivityAt.After(rows[j].LastActivityAt)
	})
	return rows, nil
}

func (r *MemoryThreadRepository) RepairLastActivity() (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var fixed int64
	for id, t := range r.db.threads {
		expected := t.CreatedAt
		if latest := r.db.latestMessage(id); latest != nil {
			expected = latest.CreatedAt
		}
		if !t.LastActivityAt.Equal(expected) {
			t.LastActivityAt = expected
			fixed++
		}
	}
	return fixed, nil
}

// MemoryReadStateRepository implements repository.ReadStateRepositoryInterface.
type MemoryReadStateRepository struct {
	db *memoryDB
}

func (r *MemoryReadStateRepository) UpsertMonotonic(threadID, userID uint, readAt time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.upsertReadState(threadID, userID, readAt)
	return nil
}

func (r *MemoryReadStateRepository) Get(threadID, userID uint) (*models.ThreadReadState, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	st, ok := r.db.readStates[pairKey{threadID, userID}]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *st
	return &cp, nil
}

func (r *MemoryReadStateRepository) ListByThread(threadID uint) ([]models.ThreadReadState, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]models.ThreadReadState, 0)
	for _, st := range r.db.readStates {
		if st.ThreadID == threadID {
			out = append(out, *st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (r *MemoryReadStateRepository) HasReadAfter(threadID, excludeUserID uint, after time.Time) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, st := range r.db.readStates {
		if st.ThreadID == threadID && st.UserID != excludeUserID && st.LastReadAt.After(after) {
			return true, nil
		}
	}
	return false, nil
}

// MemoryGroupRepository implements repository.GroupRepositoryInterface.
type MemoryGroupRepository struct {
	db *memoryDB
}

func (r *MemoryGroupRepository) FindByID(id uint) (*models.Group, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	g, ok := r.db.groups[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *g
	return &cp, nil
}

func (r *MemoryGroupRepository) GetMemberStatus(groupID, userID uint) (models.MembershipStatus, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.db.members[pairKey{groupID, userID}], nil
}

func (r *MemoryGroupRepository) GetApprovedMemberIDs(groupID uint) ([]uint, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	ids := make([]uint, 0)
	for k, status := range r.db.members {
		if k.a == groupID && status == models.MembershipApproved {
			ids = append(ids, k.b)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// MemoryUserRepository implements repository.UserRepositoryInterface.
type MemoryUserRepository struct {
	db *memoryDB
}

func (r *MemoryUserRepository) FindByID(id uint) (*models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *u
	return &cp, nil
}

var (
	_ repository.ThreadRepositoryInterface    = (*MemoryThreadRepository)(nil)
	_ repository.ReadStateRepositoryInterface = (*MemoryReadStateRepository)(nil)
	_ repository.GroupRepositoryInterface     = (*MemoryGroupRepository)(nil)
	_ repository.UserRepositoryInterface      = (*MemoryUserRepository)(nil)
)
