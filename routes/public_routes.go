package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/slotbook/clinic_booking/handlers"
	"github.com/slotbook/clinic_booking/websocket"
)

func PublicRoutes(app *fiber.App, health *handlers.HealthHandler, hub *websocket.Hub) {
	app.Get("/health", health.Health)

	app.Use("/ws", websocket.Upgrade)
	app.Get("/ws/slots", hub.Handler())
}
