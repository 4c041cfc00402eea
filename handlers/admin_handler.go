package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/slotbook/clinic_booking/services"
)

type CreateDoctorRequest struct {
	Name           string `json:"name" validate:"required,max=255"`
	Specialization string `json:"specialization" validate:"required,max=255"`
}

type CreateSlotRequest struct {
	DoctorID  string `json:"doctorId" validate:"required,uuid"`
	StartTime string `json:"startTime" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	EndTime   string `json:"endTime" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	Capacity  int    `json:"capacity" validate:"gt=0"`
}

type UpdateCapacityRequest struct {
	Capacity *int `json:"capacity" validate:"required,gte=0"`
}

type AdminHandler struct {
	catalog   *services.CatalogService
	lifecycle *services.LifecycleService
}

func NewAdminHandler(catalog *services.CatalogService, lifecycle *services.LifecycleService) *AdminHandler {
	return &AdminHandler{catalog: catalog, lifecycle: lifecycle}
}

// CreateDoctor handles POST /admin/doctors.
func (h *AdminHandler) CreateDoctor(c *fiber.Ctx) error {
	var req CreateDoctorRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("cannot parse JSON")
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Specialization = strings.TrimSpace(req.Specialization)
	if err := validate.Struct(req); err != nil {
		return validationError(err)
	}

	doctor, err := h.catalog.CreateDoctor(c.UserContext(), req.Name, req.Specialization)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(doctor)
}

// ListDoctors handles GET /admin/doctors.
func (h *AdminHandler) ListDoctors(c *fiber.Ctx) error {
	doctors, err := h.catalog.ListDoctors(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(doctors)
}

// DeleteDoctor handles DELETE /admin/doctors/:id.
func (h *AdminHandler) DeleteDoctor(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return services.ErrDoctorNotFound
	}
	if err := h.lifecycle.DeleteDoctor(c.UserContext(), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "doctor deleted", "id": id})
}

// CreateSlot handles POST /admin/slots.
func (h *AdminHandler) CreateSlot(c *fiber.Ctx) error {
	var req CreateSlotRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("cannot parse JSON")
	}
	if err := validate.Struct(req); err != nil {
		return validationError(err)
	}

	in, err := req.input()
	if err != nil {
		return err
	}

	slot, err := h.catalog.CreateSlot(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(slot)
}

func (r CreateSlotRequest) input() (services.CreateSlotInput, error) {
	doctorID, err := uuid.Parse(r.DoctorID)
	if err != nil {
		return services.CreateSlotInput{}, badRequest("doctorId must be a uuid")
	}
	startTime, err := time.Parse(time.RFC3339, r.StartTime)
	if err != nil {
		return services.CreateSlotInput{}, badRequest("startTime must be an RFC3339 timestamp")
	}
	endTime, err := time.Parse(time.RFC3339, r.EndTime)
	if err != nil {
		return services.CreateSlotInput{}, badRequest("endTime must be an RFC3339 timestamp")
	}
	return services.CreateSlotInput{
		DoctorID:  doctorID,
		StartTime: startTime,
		EndTime:   endTime,
		Capacity:  r.Capacity,
	}, nil
}

// UpdateSlotCapacity handles PATCH /admin/slots/:id.
func (h *AdminHandler) UpdateSlotCapacity(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return services.ErrSlotNotFound
	}

	var req UpdateCapacityRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("cannot parse JSON")
	}
	if err := validate.Struct(req); err != nil {
		return validationError(err)
	}

	slot, err := h.lifecycle.UpdateSlotCapacity(c.UserContext(), id, *req.Capacity)
	if err != nil {
		return err
	}
	return c.JSON(slot)
}

// SoftDeleteSlot handles PATCH /admin/slots/:id/soft-delete.
func (h *AdminHandler) SoftDeleteSlot(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return services.ErrSlotNotFound
	}
	if err := h.lifecycle.SoftDeleteSlot(c.UserContext(), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "slot deactivated", "id": id})
}

// HardDeleteSlot handles DELETE /admin/slots/:id.
func (h *AdminHandler) HardDeleteSlot(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return services.ErrSlotNotFound
	}
	if err := h.lifecycle.HardDeleteSlot(c.UserContext(), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "slot deleted", "id": id})
}
