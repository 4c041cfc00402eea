package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/slotbook/clinic_booking/services"
)

type CreateBookingRequest struct {
	SlotID   string `json:"slotId" validate:"required"`
	UserName string `json:"userName" validate:"required,max=255"`
}

type BookingHandler struct {
	bookings *services.BookingService
}

func NewBookingHandler(bookings *services.BookingService) *BookingHandler {
	return &BookingHandler{bookings: bookings}
}

// CreateBooking handles POST /bookings.
func (h *BookingHandler) CreateBooking(c *fiber.Ctx) error {
	var req CreateBookingRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("cannot parse JSON")
	}
	if err := validate.Struct(req); err != nil {
		return validationError(err)
	}

	// An id that cannot exist is answered like one that does not.
	slotID, err := uuid.Parse(req.SlotID)
	if err != nil {
		return services.ErrSlotNotFound
	}

	booking, err := h.bookings.CreateBooking(c.UserContext(), slotID, req.UserName)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(booking)
}

// GetBooking handles GET /bookings/:id.
func (h *BookingHandler) GetBooking(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return services.ErrBookingNotFound
	}
	booking, err := h.bookings.GetBooking(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(booking)
}
