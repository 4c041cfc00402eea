package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/slotbook/clinic_booking/services"
)

type SlotHandler struct {
	catalog *services.CatalogService
}

func NewSlotHandler(catalog *services.CatalogService) *SlotHandler {
	return &SlotHandler{catalog: catalog}
}

// ListSlots handles GET /slots.
func (h *SlotHandler) ListSlots(c *fiber.Ctx) error {
	slots, err := h.catalog.ListActiveSlots(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(slots)
}

// GetSlot handles GET /slots/:id.
func (h *SlotHandler) GetSlot(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return services.ErrSlotNotFound
	}
	slot, err := h.catalog.GetSlot(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(slot)
}
