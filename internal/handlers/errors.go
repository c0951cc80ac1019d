package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/noteduco342/OMInbox-backend/internal/httpx"
	"github.com/noteduco342/OMInbox-backend/internal/service"
)

// writeServiceError maps service errors to HTTP responses. Unknown errors are
// logged and hidden behind internal_error.
func writeServiceError(c *fiber.Ctx, op string, err error) error {
	switch {
	case errors.Is(err, service.ErrThreadNotFound):
		return httpx.NotFound(c, "thread_not_found", "Thread not found")
	case errors.Is(err, service.ErrMessageNotFound):
		return httpx.NotFound(c, "message_not_found", "Message not found")
	case errors.Is(err, service.ErrGroupNotFound):
		return httpx.NotFound(c, "group_not_found", "Group not found")
	case errors.Is(err, service.ErrNotAuthor):
		return httpx.Forbidden(c, "not_message_author", "Only the author can modify this message")
	case errors.Is(err, service.ErrForbidden):
		return httpx.Forbidden(c, "forbidden", "You do not have access to this thread")
	case errors.Is(err, service.ErrEmptyContent):
		return httpx.BadRequest(c, "missing_content", "Content is required")
	case errors.Is(err, service.ErrClientIDReused):
		return httpx.BadRequest(c, "client_id_reused", "client_id was already used in another thread")
	case errors.Is(err, service.ErrMessageLocked):
		return httpx.Conflict(c, "message_locked", "Message was already seen and can no longer be changed")
	default:
		log.Printf("%s failed: %v", op, err)
		return httpx.Internal(c, "internal_error")
	}
}
