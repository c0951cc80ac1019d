package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/noteduco342/OMInbox-backend/internal/httpx"
)

// ActivityRepairer runs one consistency sweep.
type ActivityRepairer interface {
	Run() (int64, error)
}

type AdminHandler struct {
	repair ActivityRepairer
}

func NewAdminHandler(repair ActivityRepairer) *AdminHandler {
	return &AdminHandler{repair: repair}
}

// RepairActivity runs the last-activity sweep immediately.
func (h *AdminHandler) RepairActivity(c *fiber.Ctx) error {
	repaired, err := h.repair.Run()
	if err != nil {
		log.Printf("Manual activity repair failed: %v", err)
		return httpx.Internal(c, "internal_error")
	}
	return c.JSON(fiber.Map{"repaired": repaired})
}
