package service

import (
	"errors"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/noteduco342/OMInbox-backend/internal/models"
	"github.com/noteduco342/OMInbox-backend/internal/testutil"
)

const (
	groupID  uint = 10
	ownerID  uint = 1
	userA    uint = 2
	userB    uint = 3
	outsider uint = 4
	adminID  uint = 5
	pendingU uint = 6
)

type fixture struct {
	store *testutil.MemoryStore
	clock *testutil.StepClock
	svc   *InboxService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := testutil.NewMemoryStore()
	store.AddGroup(groupID, ownerID)
	store.SetMembership(groupID, userA, models.MembershipApproved)
	store.SetMembership(groupID, userB, models.MembershipApproved)
	store.SetMembership(groupID, pendingU, models.MembershipPending)
	store.AddUser(adminID, models.RolePlatformAdmin)
	store.AddUser(outsider, "user")

	clock := testutil.NewStepClock(testutil.At(0))
	svc := NewInboxService(store.Threads, store.ReadStates, store.Groups, store.Users).WithClock(clock)
	t.Cleanup(svc.WaitForFanOut)
	return &fixture{store: store, clock: clock, svc: svc}
}

func (f *fixture) createThread(t *testing.T, author uint, content string) *models.Thread {
	t.Helper()
	thread, err := f.svc.CreateThread(groupID, author, nil, content)
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	return thread
}

func (f *fixture) firstMessage(t *testing.T, threadID uint) models.Message {
	t.Helper()
	msgs, err := f.store.Threads.ListMessages(threadID)
	if err != nil || len(msgs) == 0 {
		t.Fatalf("ListMessages: %v (len %d)", err, len(msgs))
	}
	return msgs[0]
}

func (f *fixture) assertLastActivity(t *testing.T, threadID uint) {
	t.Helper()
	thread, err := f.store.Threads.FindByID(threadID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	want, _ := f.store.ExpectedLastActivity(threadID)
	if !thread.LastActivityAt.Equal(want) {
		t.Fatalf("LastActivityAt = %v, want %v", thread.LastActivityAt, want)
	}
}

// Access control

func TestCanAccess(t *testing.T) {
	f := newFixture(t)
	thread := f.createThread(t, userA, "hello")

	// A leaves the group afterwards; creator access survives.
	f.store.SetMembership(groupID, userA, models.MembershipNone)

	tests := []struct {
		name    string
		userID  uint
		thread  uint
		wantErr error
	}{
		{"creator after leaving group", userA, thread.ID, nil},
		{"approved member", userB, thread.ID, nil},
		{"pending member", pendingU, thread.ID, ErrForbidden},
		{"non member", outsider, thread.ID, ErrForbidden},
		{"group owner without membership row", ownerID, thread.ID, ErrForbidden},
		{"unknown thread", userB, 999, ErrThreadNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.CanAccess(tt.userID, tt.thread)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("CanAccess error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && got.ID != tt.thread {
				t.Errorf("CanAccess thread = %d, want %d", got.ID, tt.thread)
			}
		})
	}
}

func TestCanCreateThread(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name    string
		userID  uint
		groupID uint
		wantErr error
	}{
		{"platform admin", adminID, groupID, nil},
		{"group owner", ownerID, groupID, nil},
		{"approved member", userA, groupID, nil},
		{"pending member", pendingU, groupID, ErrForbidden},
		{"non member", outsider, groupID, ErrForbidden},
		{"unknown user", 777, groupID, ErrForbidden},
		{"missing group", userA, 404, ErrGroupNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.svc.CanCreateThread(tt.userID, tt.groupID)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CanCreateThread error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreatorKeepsAccessButCannotCreateAfterRemoval(t *testing.T) {
	f := newFixture(t)
	thread := f.createThread(t, userA, "started by A")
	f.store.SetMembership(groupID, userA, models.MembershipNone)

	f.clock.Advance(time.Second)
	if _, err := f.svc.GetThread(thread.ID, userA); err != nil {
		t.Errorf("GetThread by removed creator: %v", err)
	}
	if _, err := f.svc.Reply(thread.ID, userA, "follow-up", ""); err != nil {
		t.Errorf("Reply by removed creator: %v", err)
	}
	if _, err := f.svc.CreateThread(groupID, userA, nil, "another"); !errors.Is(err, ErrForbidden) {
		t.Errorf("CreateThread by removed creator error = %v, want ErrForbidden", err)
	}
}

// Thread creation and replies

func TestCreateThread(t *testing.T) {
	f := newFixture(t)
	subject := "  Weekly sync  "

	thread, err := f.svc.CreateThread(groupID, userA, &subject, "  first message  ")
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	if thread.Subject == nil || *thread.Subject != "Weekly sync" {
		t.Errorf("Subject = %v, want trimmed subject", thread.Subject)
	}
	if !thread.LastActivityAt.Equal(testutil.At(0)) || !thread.CreatedAt.Equal(testutil.At(0)) {
		t.Errorf("timestamps = (%v, %v), want both %v", thread.CreatedAt, thread.LastActivityAt, testutil.At(0))
	}

	first := f.firstMessage(t, thread.ID)
	if first.Content != "first message" || first.AuthorID != userA {
		t.Errorf("first message = %+v", first)
	}
	if first.ClientID == "" {
		t.Error("first message should get a generated client id")
	}

	state, err := f.store.ReadStates.Get(thread.ID, userA)
	if err != nil {
		t.Fatalf("author read state missing: %v", err)
	}
	if !state.LastReadAt.Equal(testutil.At(0)) {
		t.Errorf("author LastReadAt = %v, want %v", state.LastReadAt, testutil.At(0))
	}
}

func TestCreateThreadValidation(t *testing.T) {
	f := newFixture(t)
	blank := "   "

	tests := []struct {
		name    string
		group   uint
		author  uint
		content string
		wantErr error
	}{
		{"empty content", groupID, userA, "", ErrEmptyContent},
		{"whitespace content", groupID, userA, " \n\t ", ErrEmptyContent},
		{"forbidden", groupID, outsider, "hi", ErrForbidden},
		{"missing group", 404, userA, "hi", ErrGroupNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateThread(tt.group, tt.author, &blank, tt.content)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CreateThread error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	thread, err := f.svc.CreateThread(groupID, userA, &blank, "content")
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	if thread.Subject != nil {
		t.Errorf("blank subject should be stored as nil, got %q", *thread.Subject)
	}
}

func TestCreateThreadCapsLengths(t *testing.T) {
	f := newFixture(t)
	f.svc.WithLimits(Limits{MaxMessageLength: 5, MaxSubjectLength: 3})
	subject := "abcdef"

	thread, err := f.svc.CreateThread(groupID, userA, &subject, "0123456789")
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	if *thread.Subject != "abc" {
		t.Errorf("Subject = %q, want abc", *thread.Subject)
	}
	if got := f.firstMessage(t, thread.ID).Content; got != "01234" {
		t.Errorf("Content = %q, want 01234", got)
	}
}

func TestReply(t *testing.T) {
	f := newFixture(t)
	thread := f.createThread(t, userA, "question")

	f.clock.Set(testutil.At(4))
	msg, err := f.svc.Reply(thread.ID, userB, "answer", "")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if !msg.CreatedAt.Equal(testutil.At(4)) {
		t.Errorf("CreatedAt = %v, want %v", msg.CreatedAt, testutil.At(4))
	}
	f.assertLastActivity(t, thread.ID)

	state, err := f.store.ReadStates.Get(thread.ID, userB)
	if err != nil || !state.LastReadAt.Equal(testutil.At(4)) {
		t.Errorf("replier read state = %v, %v", state, err)
	}

	if _, err := f.svc.Reply(thread.ID, userB, "   ", ""); !errors.Is(err, ErrEmptyContent) {
		t.Errorf("empty reply error = %v, want ErrEmptyContent", err)
	}
	if _, err := f.svc.Reply(thread.ID, outsider, "hi", ""); !errors.Is(err, ErrForbidden) {
		t.Errorf("outsider reply error = %v, want ErrForbidden", err)
	}
	if _, err := f.svc.Reply(999, userB, "hi", ""); !errors.Is(err, ErrThreadNotFound) {
		t.Errorf("reply to missing thread error = %v, want ErrThreadNotFound", err)
	}
}

func TestReplyClientIDIsIdempotent(t *testing.T) {
	f := newFixture(t)
	thread := f.createThread(t, userA, "one")
	other := f.createThread(t, userA, "two")
	clientID := "5b0c8f0e-0c5e-4a3c-9a77-8f3f2f6b1d10"

	first, err := f.svc.Reply(thread.ID, userB, "retry me", clientID)
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	f.clock.Advance(time.Second)
	second, err := f.svc.Reply(thread.ID, userB, "retry me", clientID)
	if err != nil {
		t.Fatalf("Reply retry: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("retry created message %d, want existing %d", second.ID, first.ID)
	}

	msgs, _ := f.store.Threads.ListMessages(thread.ID)
	if len(msgs) != 2 {
		t.Errorf("thread has %d messages, want 2", len(msgs))
	}

	if _, err := f.svc.Reply(other.ID, userB, "elsewhere", clientID); !errors.Is(err, ErrClientIDReused) {
		t.Errorf("reuse in another thread error = %v, want ErrClientIDReused", err)
	}
}

func TestReplyTimestampsNeverGoBackward(t *testing.T) {
	f := newFixture(t)
	f.clock.Set(testutil.At(10))
	thread := f.createThread(t, userA, "start")

	// Clock skew: "now" is earlier than the thread's last activity.
	f.clock.Set(testutil.At(7))
	msg, err := f.svc.Reply(thread.ID, userB, "late clock", "")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if !msg.CreatedAt.Equal(testutil.At(10)) {
		t.Errorf("CreatedAt = %v, want clamped to %v", msg.CreatedAt, testutil.At(10))
	}

	view, err := f.svc.GetThread(thread.ID, userA)
	if err != nil {
		t.Fatalf("GetThread: %v", err)
	}
	if view.Messages[0].Content != "start" || view.Messages[1].Content != "late clock" {
		t.Errorf("tie should be broken by insertion order, got %q then %q", view.Messages[0].Content, view.Messages[1].Content)
	}
}

func TestConcurrentRepliesKeepLastActivityConsistent(t *testing.T) {
	f := newFixture(t)
	thread := f.createThread(t, userA, "start")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			author := userA
			if i%2 == 0 {
				author = userB
			}
			f.clock.Advance(time.Millisecond)
			if _, err := f.svc.Reply(thread.ID, author, "concurrent", ""); err != nil {
				t.Errorf("Reply: %v", err)
			}
		}(i)
	}
	wg.Wait()

	f.assertLastActivity(t, thread.ID)
	msgs, _ := f.store.Threads.ListMessages(thread.ID)
	if len(msgs) != 21 {
		t.Fatalf("got %d messages, want 21", len(msgs))
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt) {
			t.Fatalf("messages out of order at %d", i)
		}
	}
}

// Lock evaluator

func TestScenarioViewByOtherLocksMessage(t *testing.T) {
	f := newFixture(t)
	thread := f.createThread(t, userA, "M1")
	m1 := f.firstMessage(t, thread.ID)

	f.clock.Set(testutil.At(1))
	if _, err := f.svc.GetThread(thread.ID, userB); err != nil {
		t.Fatalf("GetThread by B: %v", err)
	}

	locked, err := f.svc.IsLocked(thread.ID, userA, m1.CreatedAt)
	if err != nil || !locked {
		t.Fatalf("IsLocked = (%v, %v), want (true, nil)", locked, err)
	}

	if _, err := f.svc.EditMessage(thread.ID, m1.ID, userA, "rewrite"); !errors.Is(err, ErrMessageLocked) {
		t.Errorf("EditMessage error = %v, want ErrMessageLocked", err)
	}
	if err := f.svc.DeleteMessage(thread.ID, m1.ID, userA); !errors.Is(err, ErrMessageLocked) {
		t.Errorf("DeleteMessage error = %v, want ErrMessageLocked", err)
	}
	if errors.Is(ErrMessageLocked, ErrForbidden) {
		t.Error("a locked message must be distinguishable from Forbidden")
	}
}

func TestScenarioUnreadByOthersStaysUnlocked(t *testing.T) {
	f := newFixture(t)
	thread := f.createThread(t, userA, "M1")
	m1 := f.firstMessage(t, thread.ID)

	f.clock.Set(testutil.At(1000))
	locked, err := f.svc.IsLocked(thread.ID, userA, m1.CreatedAt)
	if err != nil || locked {
		t.Fatalf("IsLocked = (%v, %v), want (false, nil)", locked, err)
	}

	// The author's own later views never lock their message.
	if _, err := f.svc.GetThread(thread.ID, userA); err != nil {
		t.Fatalf("GetThread: %v", err)
	}
	if _, err := f.svc.EditMessage(thread.ID, m1.ID, userA, "edited"); err != nil {
		t.Fatalf("EditMessage at t=1000: %v", err)
	}
	if err := f.svc.DeleteMessage(thread.ID, m1.ID, userA); err != nil {
		t.Fatalf("DeleteMessage at t=1000: %v", err)
	}
}

func TestScenarioViewBetweenMessages(t *testing.T) {
	f := newFixture(t)
	thread := f.createThread(t, userA, "M1")
	m1 := f.firstMessage(t, thread.ID)

	f.clock.Set(testutil.At(3))
	if _, err := f.svc.GetThread(thread.ID, userB); err != nil {
		t.Fatalf("GetThread by B: %v", err)
	}

	f.clock.Set(testutil.At(5))
	m2, err := f.svc.Reply(thread.ID, userA, "M2", "")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}

	if locked, _ := f.svc.IsLocked(thread.ID, userA, m1.CreatedAt); !locked {
		t.Error("M1 should be locked (3 > 0)")
	}
	if locked, _ := f.svc.IsLocked(thread.ID, userA, m2.CreatedAt); locked {
		t.Error("M2 should be unlocked (3 is not > 5)")
	}

	view, err := f.svc.GetThread(thread.ID, userA)
	if err != nil {
		t.Fatalf("GetThread by A: %v", err)
	}
	if !view.Messages[0].Locked || view.Messages[1].Locked {
		t.Errorf("Locked flags = [%v %v], want [true false]", view.Messages[0].Locked, view.Messages[1].Locked)
	}

	// Deleting M2 rewinds last activity to M1.
	f.clock.Set(testutil.At(6))
	if err := f.svc.DeleteMessage(thread.ID, m2.ID, userA); err != nil {
		t.Fatalf("DeleteMessage M2: %v", err)
	}
	got, _ := f.store.Threads.FindByID(thread.ID)
	if !got.LastActivityAt.Equal(m1.CreatedAt) {
		t.Errorf("LastActivityAt = %v, want %v", got.LastActivityAt, m1.CreatedAt)
	}
}

func TestReadAtSameInstantDoesNotLock(t *testing.T) {
	f := newFixture(t)
	thread := f.createThread(t, userA, "M1")
	m1 := f.firstMessage(t, thread.ID)

	f.store.SetReadState(thread.ID, userB, m1.CreatedAt)
	if locked, _ := f.svc.IsLocked(thread.ID, userA, m1.CreatedAt); locked {
		t.Error("a read at exactly createdAt must not lock")
	}
}

func TestLockIsReevaluatedOnEveryEdit(t *testing.T) {
	f := newFixture(t)
	thread := f.createThread(t, userA, "v1")
	m1 := f.firstMessage(t, thread.ID)

	f.clock.Set(testutil.At(1))
	if _, err := f.svc.EditMessage(thread.ID, m1.ID, userA, "v2"); err != nil {
		t.Fatalf("first edit: %v", err)
	}
	f.clock.Set(testutil.At(2))
	edited, err := f.svc.EditMessage(thread.ID, m1.ID, userA, "v3")
	if err != nil {
		t.Fatalf("second edit: %v", err)
	}
	if edited.Version != 3 || edited.Content != "v3" {
		t.Errorf("edited = %+v, want version 3 with content v3", edited)
	}

	f.clock.Set(testutil.At(3))
	if err := f.svc.MarkRead(thread.ID, userB); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	f.clock.Set(testutil.At(4))
	if _, err := f.svc.EditMessage(thread.ID, m1.ID, userA, "v4"); !errors.Is(err, ErrMessageLocked) {
		t.Errorf("edit after B read error = %v, want ErrMessageLocked", err)
	}
}

func TestLockMonotonicity(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	const author uint = 1

	for iter := 0; iter < 500; iter++ {
		createdAt := testutil.At(rng.Intn(20))
		var states []models.ThreadReadState
		for u := uint(1); u <= 4; u++ {
			if rng.Intn(2) == 0 {
				states = append(states, models.ThreadReadState{ThreadID: 1, UserID: u, LastReadAt: testutil.At(rng.Intn(40))})
			}
		}
		if !LockedBy(states, author, createdAt) {
			continue
		}

		// Superset with later-or-equal timestamps: move existing rows forward, add new ones.
		grown := make([]models.ThreadReadState, 0, len(states)+2)
		for _, st := range states {
			st.LastReadAt = st.LastReadAt.Add(time.Duration(rng.Intn(5)) * time.Second)
			grown = append(grown, st)
		}
		grown = append(grown, models.ThreadReadState{ThreadID: 1, UserID: 9, LastReadAt: testutil.At(rng.Intn(40))})

		if !LockedBy(grown, author, createdAt) {
			t.Fatalf("iteration %d: lock reversed for states %+v -> %+v", iter, states, grown)
		}
	}
}

func TestLockedByMatchesIsLocked(t *testing.T) {
	f := newFixture(t)
	thread := f.createThread(t, userA, "M1")
	m1 := f.firstMessage(t, thread.ID)

	for i, at := range []int{0, 1, -1, 5} {
		f.store.SetReadState(thread.ID, userB, testutil.At(at))
		states, _ := f.store.ReadStates.ListByThread(thread.ID)
		locked, err := f.svc.IsLocked(thread.ID, userA, m1.CreatedAt)
		if err != nil {
			t.Fatalf("IsLocked: %v", err)
		}
		if inMemory := LockedBy(states, userA, m1.CreatedAt); inMemory != locked {
			t.Errorf("case %d: LockedBy = %v, IsLocked = %v", i, inMemory, locked)
		}
	}
}

// Edit and delete

func TestEditAndDeleteAuthorization(t *testing.T) {
	f := newFixture(t)
	thread := f.createThread(t, userA, "M1")
	other := f.createThread(t, userB, "elsewhere")
	m1 := f.firstMessage(t, thread.ID)
	otherMsg := f.firstMessage(t, other.ID)

	tests := []struct {
		name      string
		threadID  uint
		messageID uint
		actor     uint
		wantErr   error
	}{
		{"not author", thread.ID, m1.ID, userB, ErrNotAuthor},
		{"no access", thread.ID, m1.ID, outsider, ErrForbidden},
		{"missing thread", 999, m1.ID, userA, ErrThreadNotFound},
		{"missing message", thread.ID, 999, userA, ErrMessageNotFound},
		{"message from another thread", thread.ID, otherMsg.ID, userB, ErrMessageNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.EditMessage(tt.threadID, tt.messageID, tt.actor, "x"); !errors.Is(err, tt.wantErr) {
				t.Errorf("EditMessage error = %v, want %v", err, tt.wantErr)
			}
			if err := f.svc.DeleteMessage(tt.threadID, tt.messageID, tt.actor); !errors.Is(err, tt.wantErr) {
				t.Errorf("DeleteMessage error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if !errors.Is(ErrNotAuthor, ErrForbidden) {
		t.Error("ErrNotAuthor should classify as Forbidden")
	}
}

func TestEditDoesNotCountAsActivity(t *testing.T) {
	f := newFixture(t)
	thread := f.createThread(t, userA, "M1")
	m1 := f.firstMessage(t, thread.ID)

	f.clock.Set(testutil.At(30))
	if _, err := f.svc.EditMessage(thread.ID, m1.ID, userA, "  "); !errors.Is(err, ErrEmptyContent) {
		t.Errorf("empty edit error = %v, want ErrEmptyContent", err)
	}
	edited, err := f.svc.EditMessage(thread.ID, m1.ID, userA, "fixed typo")
	if err != nil {
		t.Fatalf("EditMessage: %v", err)
	}
	if !edited.CreatedAt.Equal(m1.CreatedAt) {
		t.Errorf("CreatedAt changed to %v", edited.CreatedAt)
	}
	if edited.EditedAt == nil || !edited.EditedAt.Equal(testutil.At(30)) {
		t.Errorf("EditedAt = %v, want %v", edited.EditedAt, testutil.At(30))
	}
	got, _ := f.store.Threads.FindByID(thread.ID)
	if !got.LastActivityAt.Equal(testutil.At(0)) {
		t.Errorf("LastActivityAt = %v, want unchanged %v", got.LastActivityAt, testutil.At(0))
	}

	count, _ := f.svc.UnreadCount(userB)
	if count != 1 {
		t.Errorf("B unread = %d, want 1 (edit is not new activity, thread unseen)", count)
	}
}

func TestDeleteOnlyMessageFallsBackToThreadCreation(t *testing.T) {
	f := newFixture(t)
	f.clock.Set(testutil.At(2))
	thread := f.createThread(t, userA, "only")
	m1 := f.firstMessage(t, thread.ID)

	f.clock.Set(testutil.At(9))
	if err := f.svc.DeleteMessage(thread.ID, m1.ID, userA); err != nil {
		t.Fatalf("DeleteMessage: %v", err)
	}
	got, err := f.store.Threads.FindByID(thread.ID)
	if err != nil {
		t.Fatalf("thread should survive deletion of its messages: %v", err)
	}
	if !got.LastActivityAt.Equal(got.CreatedAt) {
		t.Errorf("LastActivityAt = %v, want thread CreatedAt %v", got.LastActivityAt, got.CreatedAt)
	}

	count, err := f.svc.UnreadCount(userB)
	if err != nil || count != 0 {
		t.Errorf("UnreadCount = (%d, %v), want (0, nil) for thread without messages", count, err)
	}
}

func TestLastActivityInvariantUnderRandomOperations(t *testing.T) {
	f := newFixture(t)
	thread := f.createThread(t, userA, "seed")
	rng := rand.New(rand.NewSource(7))
	authors := []uint{userA, userB}

	for step := 0; step < 300; step++ {
		f.clock.Advance(time.Duration(rng.Intn(3)) * time.Second)

		switch rng.Intn(4) {
		case 0, 1:
			if _, err := f.svc.Reply(thread.ID, authors[rng.Intn(2)], "r", ""); err != nil {
				t.Fatalf("step %d reply: %v", step, err)
			}
		case 2:
			msgs, _ := f.store.Threads.ListMessages(thread.ID)
			if len(msgs) == 0 {
				continue
			}
			m := msgs[rng.Intn(len(msgs))]
			err := f.svc.DeleteMessage(thread.ID, m.ID, m.AuthorID)
			if err != nil && !errors.Is(err, ErrMessageLocked) {
				t.Fatalf("step %d delete: %v", step, err)
			}
		case 3:
			if _, err := f.svc.GetThread(thread.ID, authors[rng.Intn(2)]); err != nil {
				t.Fatalf("step %d view: %v", step, err)
			}
		}
		f.assertLastActivity(t, thread.ID)
	}
}

// Unread aggregation

func TestUnreadCountCountsThreadsNotMessages(t *testing.T) {
	f := newFixture(t)
	t1 := f.createThread(t, userA, "t1")
	f.createThread(t, userA, "t2")
	for i := 0; i < 50; i++ {
		f.clock.Advance(time.Second)
		if _, err := f.svc.Reply(t1.ID, userA, "more", ""); err != nil {
			t.Fatalf("Reply: %v", err)
		}
	}

	count, err := f.svc.UnreadCount(userB)
	if err != nil {
		t.Fatalf("UnreadCount: %v", err)
	}
	if count != 2 {
		t.Errorf("B unread = %d, want 2", count)
	}

	// A authored every latest message.
	if count, _ := f.svc.UnreadCount(userA); count != 0 {
		t.Errorf("A unread = %d, want 0", count)
	}
	// Threads of a group the user cannot see are excluded.
	if count, _ := f.svc.UnreadCount(outsider); count != 0 {
		t.Errorf("outsider unread = %d, want 0", count)
	}
	if count, _ := f.svc.UnreadCount(pendingU); count != 0 {
		t.Errorf("pending member unread = %d, want 0", count)
	}
}

func TestUnreadIdempotence(t *testing.T) {
	f := newFixture(t)
	thread := f.createThread(t, userA, "ping")
	f.createThread(t, userA, "other")

	f.clock.Advance(time.Second)
	before, _ := f.svc.UnreadCount(userB)
	if before != 2 {
		t.Fatalf("unread before = %d, want 2", before)
	}

	if _, err := f.svc.GetThread(thread.ID, userB); err != nil {
		t.Fatalf("GetThread: %v", err)
	}
	after, _ := f.svc.UnreadCount(userB)
	if after != 1 {
		t.Errorf("unread after opening = %d, want 1", after)
	}
	again, _ := f.svc.UnreadCount(userB)
	if again != after {
		t.Errorf("unread changed without activity: %d -> %d", after, again)
	}

	// New activity by someone else makes it unread again.
	f.clock.Advance(time.Second)
	if _, err := f.svc.Reply(thread.ID, userA, "pong?", ""); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if got, _ := f.svc.UnreadCount(userB); got != 2 {
		t.Errorf("unread after new reply = %d, want 2", got)
	}
}

func TestUnreadIncludesCreatorAfterLeavingGroup(t *testing.T) {
	f := newFixture(t)
	thread := f.createThread(t, userA, "mine")
	f.store.SetMembership(groupID, userA, models.MembershipNone)

	f.clock.Advance(time.Second)
	if _, err := f.svc.Reply(thread.ID, userB, "reply", ""); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if count, _ := f.svc.UnreadCount(userA); count != 1 {
		t.Errorf("creator unread = %d, want 1", count)
	}
}

func TestUnreadIgnoresEmptyThreads(t *testing.T) {
	f := newFixture(t)
	f.store.InsertEmptyThread(groupID, userA, testutil.At(0))

	count, err := f.svc.UnreadCount(userB)
	if err != nil {
		t.Fatalf("UnreadCount: %v", err)
	}
	if count != 0 {
		t.Errorf("unread = %d, want 0", count)
	}

	summaries, err := f.svc.ListThreads(userB)
	if err != nil {
		t.Fatalf("ListThreads: %v", err)
	}
	if len(summaries) != 1 || summaries[0].LastMessagePreview != nil || summaries[0].Unread {
		t.Errorf("summaries = %+v, want one empty read thread", summaries)
	}
}

func TestListThreadsOrderAndPreview(t *testing.T) {
	f := newFixture(t)
	older := f.createThread(t, userA, "older")
	f.clock.Set(testutil.At(5))
	newer := f.createThread(t, userB, "newer")

	f.clock.Set(testutil.At(10))
	long := strings.Repeat("x", 300)
	if _, err := f.svc.Reply(older.ID, userB, long, ""); err != nil {
		t.Fatalf("Reply: %v", err)
	}

	summaries, err := f.svc.ListThreads(userA)
	if err != nil {
		t.Fatalf("ListThreads: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("got %d summaries, want 2", len(summaries))
	}
	if summaries[0].Thread.ID != older.ID || summaries[1].Thread.ID != newer.ID {
		t.Errorf("order = [%d %d], want [%d %d]", summaries[0].Thread.ID, summaries[1].Thread.ID, older.ID, newer.ID)
	}
	if n := len(summaries[0].LastMessagePreview.Content); n != previewLength {
		t.Errorf("preview length = %d, want %d", n, previewLength)
	}
	if !summaries[0].Unread || !summaries[1].Unread {
		t.Errorf("both threads should be unread for A: %+v", summaries)
	}
}

// Fan-out and cache

type notifyCall struct {
	userIDs []uint
	event   ThreadEvent
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
	err   error
}

func (n *recordingNotifier) NotifyUsers(userIDs []uint, event ThreadEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notifyCall{userIDs: append([]uint(nil), userIDs...), event: event})
	return n.err
}

type mapCache struct {
	mu          sync.Mutex
	counts      map[uint]int
	invalidated map[uint]int
}

func newMapCache() *mapCache {
	return &mapCache{counts: map[uint]int{}, invalidated: map[uint]int{}}
}

func (c *mapCache) GetUnreadCount(userID uint) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.counts[userID]
	return v, ok
}

func (c *mapCache) SetUnreadCount(userID uint, count int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[userID] = count
	return nil
}

func (c *mapCache) InvalidateUnreadCounts(userIDs ...uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range userIDs {
		delete(c.counts, id)
		c.invalidated[id]++
	}
	return nil
}

func TestFanOutNotifiesParticipantsExceptActor(t *testing.T) {
	f := newFixture(t)
	notifier := &recordingNotifier{}
	f.svc.WithNotifier(notifier)

	thread := f.createThread(t, userA, "hi all")
	f.svc.WaitForFanOut()
	f.clock.Advance(time.Second)
	msg, err := f.svc.Reply(thread.ID, userB, "hey", "")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	f.svc.WaitForFanOut()

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.calls) != 2 {
		t.Fatalf("got %d notifications, want 2", len(notifier.calls))
	}

	created := notifier.calls[0]
	if created.event.Type != EventThreadCreated || !sameIDs(created.userIDs, []uint{userB}) {
		t.Errorf("thread_created call = %+v", created)
	}
	reply := notifier.calls[1]
	if reply.event.Type != EventMessageCreated || reply.event.MessageID != msg.ID {
		t.Errorf("message_created event = %+v", reply.event)
	}
	if !sameIDs(reply.userIDs, []uint{userA}) {
		t.Errorf("reply recipients = %v, want [%d]", reply.userIDs, userA)
	}
}

func TestFanOutFailureDoesNotAffectMutation(t *testing.T) {
	f := newFixture(t)
	f.svc.WithNotifier(&recordingNotifier{err: errors.New("push gateway down")})

	thread, err := f.svc.CreateThread(groupID, userA, nil, "still saved")
	if err != nil {
		t.Fatalf("CreateThread should succeed despite notifier failure: %v", err)
	}
	f.svc.WaitForFanOut()
	if _, err := f.store.Threads.FindByID(thread.ID); err != nil {
		t.Errorf("thread missing after notifier failure: %v", err)
	}
}

func TestUnreadCountUsesAndInvalidatesCache(t *testing.T) {
	f := newFixture(t)
	c := newMapCache()
	f.svc.WithCache(c)

	thread := f.createThread(t, userA, "cached")
	f.svc.WaitForFanOut()

	if got, _ := f.svc.UnreadCount(userB); got != 1 {
		t.Fatalf("UnreadCount = %d, want 1", got)
	}
	if v, ok := c.GetUnreadCount(userB); !ok || v != 1 {
		t.Fatalf("cache = (%d, %v), want (1, true)", v, ok)
	}

	// A stale cached value is served until invalidated.
	c.SetUnreadCount(userB, 42)
	if got, _ := f.svc.UnreadCount(userB); got != 42 {
		t.Errorf("UnreadCount = %d, want cached 42", got)
	}

	f.clock.Advance(time.Second)
	if err := f.svc.MarkRead(thread.ID, userB); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if got, _ := f.svc.UnreadCount(userB); got != 0 {
		t.Errorf("UnreadCount after MarkRead = %d, want 0", got)
	}

	f.clock.Advance(time.Second)
	if _, err := f.svc.Reply(thread.ID, userA, "new", ""); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	f.svc.WaitForFanOut()
	c.mu.Lock()
	invalidations := c.invalidated[userB]
	c.mu.Unlock()
	if invalidations < 2 {
		t.Errorf("B invalidated %d times, want at least 2", invalidations)
	}
	if got, _ := f.svc.UnreadCount(userB); got != 1 {
		t.Errorf("UnreadCount after reply = %d, want 1", got)
	}
}

func TestListReadStates(t *testing.T) {
	f := newFixture(t)
	thread := f.createThread(t, userA, "hi")
	f.clock.Set(testutil.At(2))
	if err := f.svc.MarkRead(thread.ID, userB); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}

	states, err := f.svc.ListReadStates(thread.ID, userB)
	if err != nil {
		t.Fatalf("ListReadStates: %v", err)
	}
	if len(states) != 2 {
		t.Fatalf("got %d states, want 2", len(states))
	}
	if _, err := f.svc.ListReadStates(thread.ID, outsider); !errors.Is(err, ErrForbidden) {
		t.Errorf("outsider error = %v, want ErrForbidden", err)
	}
	if err := f.svc.MarkRead(thread.ID, outsider); !errors.Is(err, ErrForbidden) {
		t.Errorf("outsider MarkRead error = %v, want ErrForbidden", err)
	}
}

func sameIDs(got, want []uint) bool {
	if len(got) != len(want) {
		return false
	}
	seen := make(map[uint]int, len(got))
	for _, id := range got {
		seen[id]++
	}
	for _, id := range want {
		if seen[id] == 0 {
			return false
		}
		seen[id]--
	}
	return true
}
