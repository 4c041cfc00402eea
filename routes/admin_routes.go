package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/slotbook/clinic_booking/handlers"
)

func AdminRoutes(app *fiber.App, h *handlers.AdminHandler) {
	admin := app.Group("/admin")

	doctors := admin.Group("/doctors")
	doctors.Post("", h.CreateDoctor)
	doctors.Get("", h.ListDoctors)
	doctors.Delete("/:id", h.DeleteDoctor)

	slots := admin.Group("/slots")
	slots.Post("", h.CreateSlot)
	slots.Patch("/:id", h.UpdateSlotCapacity)
	slots.Patch("/:id/soft-delete", h.SoftDeleteSlot)
	slots.Delete("/:id", h.HardDeleteSlot)
}
