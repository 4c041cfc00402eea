package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/slotbook/clinic_booking/handlers"
)

func BookingRoutes(app *fiber.App, h *handlers.BookingHandler, limiter fiber.Handler) {
	booking := app.Group("/bookings")
	booking.Post("", limiter, h.CreateBooking)
	booking.Get("/:id", h.GetBooking)
}
