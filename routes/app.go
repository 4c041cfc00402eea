package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/slotbook/clinic_booking/handlers"
	"github.com/slotbook/clinic_booking/middleware"
	"github.com/slotbook/clinic_booking/websocket"
)

type AppOptions struct {
	AppName          string
	CORSAllowOrigins string
	RateLimitPerMin  int
	RateLimitBurst   int
}

type Handlers struct {
	Slots    *handlers.SlotHandler
	Bookings *handlers.BookingHandler
	Admin    *handlers.AdminHandler
	Health   *handlers.HealthHandler
	Hub      *websocket.Hub
}

// NewApp builds the fiber app with the shared middleware and every route.
func NewApp(opts AppOptions, h Handlers, log *zap.Logger) *fiber.App {
	origins := opts.CORSAllowOrigins
	if origins == "" {
		origins = "*"
	}

	app := fiber.New(fiber.Config{
		AppName:       opts.AppName,
		CaseSensitive: true,
		ReadTimeout:   15 * time.Second,
		WriteTimeout:  15 * time.Second,
		IdleTimeout:   60 * time.Second,
		ErrorHandler:  handlers.ErrorHandler(log),
	})

	app.Use(middleware.RequestLogger(log))
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowHeaders: "Origin, Content-Type, Accept, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowMethods: "GET, POST, PATCH, DELETE, OPTIONS",
		MaxAge:       86400,
	}))

	limiter := middleware.RateLimiter(opts.RateLimitPerMin, opts.RateLimitBurst, log)

	PublicRoutes(app, h.Health, h.Hub)
	SlotRoutes(app, h.Slots)
	BookingRoutes(app, h.Bookings, limiter)
	AdminRoutes(app, h.Admin)

	return app
}
