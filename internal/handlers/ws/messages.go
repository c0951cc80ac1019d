package ws

import "errors"

var errMissingThreadID = errors.New("thread_id is required")

// UnreadCountFrame reports the user's number of unread threads.
type UnreadCountFrame struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

func (ctx *MessageContext) replyUnreadCount() error {
	count, err := ctx.Inbox.UnreadCount(ctx.UserID)
	if err != nil {
		return err
	}
	return ctx.Reply(UnreadCountFrame{Type: "unread_count", Count: count})
}

// MessageThreadRead marks a thread as viewed, e.g. while it is open on screen
// and new replies arrive. The server answers with the fresh unread count.
type MessageThreadRead struct {
	ThreadID uint `json:"thread_id"`
}

func (msg *MessageThreadRead) GetType() string {
	return "thread_read"
}

func (msg *MessageThreadRead) Process(ctx *MessageContext) error {
	if msg.ThreadID == 0 {
		return errMissingThreadID
	}
	if err := ctx.Inbox.MarkRead(msg.ThreadID, ctx.UserID); err != nil {
		return err
	}
	return ctx.replyUnreadCount()
}

// MessageUnreadCount asks for the current unread thread count.
type MessageUnreadCount struct {
}

func (msg *MessageUnreadCount) GetType() string {
	return "unread_count"
}

func (msg *MessageUnreadCount) Process(ctx *MessageContext) error {
	return ctx.replyUnreadCount()
}
