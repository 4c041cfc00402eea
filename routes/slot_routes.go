package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/slotbook/clinic_booking/handlers"
)

func SlotRoutes(app *fiber.App, h *handlers.SlotHandler) {
	slots := app.Group("/slots")
	slots.Get("", h.ListSlots)
	slots.Get("/:id", h.GetSlot)
}
