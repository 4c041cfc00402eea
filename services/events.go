package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/slotbook/clinic_booking/models"
)

type EventType string

const (
	EventBookingConfirmed EventType = "booking.confirmed"
	EventSlotCreated      EventType = "slot.created"
	EventCapacityUpdated  EventType = "slot.capacity_updated"
	EventSlotDeactivated  EventType = "slot.deactivated"
	EventSlotDeleted      EventType = "slot.deleted"
	EventDoctorDeleted    EventType = "doctor.deleted"
)

// SlotEvent describes a committed change to a slot's availability. Slot is
// nil when the slot no longer exists.
type SlotEvent struct {
	Type       EventType                    `json:"type"`
	SlotID     uuid.UUID                    `json:"slotId"`
	DoctorID   uuid.UUID                    `json:"doctorId"`
	Slot       *models.SlotWithAvailability `json:"slot,omitempty"`
	OccurredAt time.Time                    `json:"occurredAt"`
}

type EventPublisher interface {
	Publish(ctx context.Context, event SlotEvent) error
}

type MultiPublisher []EventPublisher

func (m MultiPublisher) Publish(ctx context.Context, event SlotEvent) error {
	var first error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, SlotEvent) error { return nil }

// notifier runs after commit. Failures are logged and swallowed: the write
// already happened.
type notifier struct {
	publisher EventPublisher
	log       *zap.Logger
}

func newNotifier(p EventPublisher, log *zap.Logger) notifier {
	if p == nil {
		p = noopPublisher{}
	}
	return notifier{publisher: p, log: log}
}

func (n notifier) publish(ctx context.Context, event SlotEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if event.DoctorID == uuid.Nil && event.Slot != nil {
		event.DoctorID = event.Slot.DoctorID
	}
	if err := n.publisher.Publish(ctx, event); err != nil {
		n.log.Warn("publish slot event",
			zap.String("type", string(event.Type)),
			zap.String("slot_id", event.SlotID.String()),
			zap.Error(err),
		)
	}
}
