package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/noteduco342/OMInbox-backend/internal/httpx"
	"github.com/noteduco342/OMInbox-backend/internal/service"
	"github.com/noteduco342/OMInbox-backend/internal/validation"
)

type InboxHandler struct {
	inbox *service.InboxService
}

func NewInboxHandler(inbox *service.InboxService) *InboxHandler {
	return &InboxHandler{inbox: inbox}
}

type CreateThreadRequest struct {
	Subject *string `json:"subject"`
	Content string  `json:"content"`
}

type ReplyRequest struct {
	Content  string `json:"content"`
	ClientID string `json:"client_id" validate:"omitempty,uuid"`
}

type EditMessageRequest struct {
	Content string `json:"content"`
}

// RegisterRoutes mounts the inbox API on an authenticated router.
func (h *InboxHandler) RegisterRoutes(r fiber.Router) {
	r.Post("/groups/:id/threads", h.CreateThread)
	r.Get("/threads", h.ListThreads)
	r.Get("/threads/unread-count", h.UnreadCount)
	r.Get("/threads/:id", h.GetThread)
	r.Post("/threads/:id/read", h.MarkRead)
	r.Get("/threads/:id/read-states", h.ListReadStates)
	r.Post("/threads/:id/messages", h.Reply)
	r.Put("/threads/:id/messages/:messageId", h.EditMessage)
	r.Delete("/threads/:id/messages/:messageId", h.DeleteMessage)
}

func (h *InboxHandler) CreateThread(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	groupID, err := httpx.ParamUint(c, "id")
	if err != nil {
		return httpx.BadRequest(c, "invalid_group_id", "Invalid group id")
	}

	var req CreateThreadRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadRequest(c, "invalid_request_body", "Invalid request body")
	}

	thread, err := h.inbox.CreateThread(groupID, userID, req.Subject, req.Content)
	if err != nil {
		return writeServiceError(c, "create thread", err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"thread_id": thread.ID,
		"thread":    thread.ToResponse(),
	})
}

func (h *InboxHandler) ListThreads(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}

	summaries, err := h.inbox.ListThreads(userID)
	if err != nil {
		return writeServiceError(c, "list threads", err)
	}
	return c.JSON(fiber.Map{
		"threads": summaries,
		"count":   len(summaries),
	})
}

func (h *InboxHandler) UnreadCount(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}

	count, err := h.inbox.UnreadCount(userID)
	if err != nil {
		return writeServiceError(c, "unread count", err)
	}
	return c.JSON(fiber.Map{"count": count})
}

func (h *InboxHandler) GetThread(c *fiber.Ctx) error {
	userID, threadID, ok, resp := h.threadRequest(c)
	if !ok {
		return resp
	}

	view, err := h.inbox.GetThread(threadID, userID)
	if err != nil {
		return writeServiceError(c, "get thread", err)
	}
	return c.JSON(view)
}

func (h *InboxHandler) MarkRead(c *fiber.Ctx) error {
	userID, threadID, ok, resp := h.threadRequest(c)
	if !ok {
		return resp
	}

	if err := h.inbox.MarkRead(threadID, userID); err != nil {
		return writeServiceError(c, "mark read", err)
	}
	return httpx.NoContent(c)
}

func (h *InboxHandler) ListReadStates(c *fiber.Ctx) error {
	userID, threadID, ok, resp := h.threadRequest(c)
	if !ok {
		return resp
	}

	states, err := h.inbox.ListReadStates(threadID, userID)
	if err != nil {
		return writeServiceError(c, "list read states", err)
	}
	return c.JSON(fiber.Map{"read_states": states})
}

func (h *InboxHandler) Reply(c *fiber.Ctx) error {
	userID, threadID, ok, resp := h.threadRequest(c)
	if !ok {
		return resp
	}

	var req ReplyRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadRequest(c, "invalid_request_body", "Invalid request body")
	}
	if err := validation.Struct(req); err != nil {
		return httpx.BadRequest(c, "invalid_"+validation.FirstFieldError(err), "Invalid request body")
	}

	message, err := h.inbox.Reply(threadID, userID, req.Content, req.ClientID)
	if err != nil {
		return writeServiceError(c, "reply", err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message_id": message.ID,
		"message":    message.ToResponse(),
	})
}

func (h *InboxHandler) EditMessage(c *fiber.Ctx) error {
	userID, threadID, ok, resp := h.threadRequest(c)
	if !ok {
		return resp
	}
	messageID, err := httpx.ParamUint(c, "messageId")
	if err != nil {
		return httpx.BadRequest(c, "invalid_message_id", "Invalid message id")
	}

	var req EditMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadRequest(c, "invalid_request_body", "Invalid request body")
	}

	message, err := h.inbox.EditMessage(threadID, messageID, userID, req.Content)
	if err != nil {
		return writeServiceError(c, "edit message", err)
	}
	return c.JSON(message.ToResponse())
}

func (h *InboxHandler) DeleteMessage(c *fiber.Ctx) error {
	userID, threadID, ok, resp := h.threadRequest(c)
	if !ok {
		return resp
	}
	messageID, err := httpx.ParamUint(c, "messageId")
	if err != nil {
		return httpx.BadRequest(c, "invalid_message_id", "Invalid message id")
	}

	if err := h.inbox.DeleteMessage(threadID, messageID, userID); err != nil {
		return writeServiceError(c, "delete message", err)
	}
	return httpx.NoContent(c)
}

// threadRequest resolves the caller and :id. When ok is false the error
// response is already written and resp is what the handler should return.
func (h *InboxHandler) threadRequest(c *fiber.Ctx) (userID, threadID uint, ok bool, resp error) {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return 0, 0, false, httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	threadID, err = httpx.ParamUint(c, "id")
	if err != nil {
		return 0, 0, false, httpx.BadRequest(c, "invalid_thread_id", "Invalid thread id")
	}
	return userID, threadID, true, nil
}
