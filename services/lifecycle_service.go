package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/slotbook/clinic_booking/database/repository"
	"github.com/slotbook/clinic_booking/models"
)

// HardDeletePolicy decides what a hard delete does to confirmed bookings.
type HardDeletePolicy string

const (
	// PolicyCascade deletes the slot or doctor and every booking under it.
	PolicyCascade HardDeletePolicy = "cascade"
	// PolicyBlock refuses while any CONFIRMED booking remains.
	PolicyBlock HardDeletePolicy = "block"
)

func ParseHardDeletePolicy(s string) (HardDeletePolicy, error) {
	switch p := HardDeletePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyCascade, nil
	case PolicyCascade, PolicyBlock:
		return p, nil
	}
	return "", fmt.Errorf("unknown hard delete policy %q", s)
}

// LifecycleService applies structural changes to slots and doctors. Each
// change locks the rows it touches, the same locks CreateBooking takes, so a
// change never interleaves with an in-flight allocation on the same slot.
type LifecycleService struct {
	store  repository.Store
	events notifier
	log    *zap.Logger
	policy HardDeletePolicy
}

func NewLifecycleService(store repository.Store, events EventPublisher, log *zap.Logger, policy HardDeletePolicy) *LifecycleService {
	if policy == "" {
		policy = PolicyCascade
	}
	return &LifecycleService{
		store:  store,
		events: newNotifier(events, log),
		log:    log,
		policy: policy,
	}
}

func (s *LifecycleService) Policy() HardDeletePolicy { return s.policy }

// UpdateSlotCapacity overwrites the capacity. It is not checked against the
// confirmed count: lowering it below that count is allowed and shows up as
// negative available seats.
func (s *LifecycleService) UpdateSlotCapacity(ctx context.Context, slotID uuid.UUID, capacity int) (*models.SlotWithAvailability, error) {
	if capacity < 0 {
		return nil, ErrInvalidCapacity
	}

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		slot, err := tx.LockSlot(ctx, slotID)
		if err != nil {
			return err
		}
		return tx.SetCapacity(ctx, slot, capacity)
	})
	if err != nil {
		return nil, translate(s.log, "update slot capacity", err, ErrSlotNotFound)
	}

	// The update is committed from here on: a failed read-back is an
	// internal error, only a slot deleted since then is not found.
	view, readErr := readView(ctx, s.store, slotID)
	s.events.publish(ctx, SlotEvent{Type: EventCapacityUpdated, SlotID: slotID, Slot: view})
	if readErr != nil {
		return nil, translate(s.log, "read updated slot", readErr, ErrSlotNotFound)
	}
	if view == nil {
		return nil, ErrSlotNotFound
	}
	if view.Overbooked() {
		s.log.Info("capacity lowered below confirmed bookings",
			zap.String("slot_id", slotID.String()),
			zap.Int("capacity", view.Capacity),
			zap.Int64("confirmed", view.ConfirmedCount),
		)
	}
	return view, nil
}

// SoftDeleteSlot hides the slot from active listings. Its bookings stay.
func (s *LifecycleService) SoftDeleteSlot(ctx context.Context, slotID uuid.UUID) error {
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		slot, err := tx.LockSlot(ctx, slotID)
		if err != nil {
			return err
		}
		return tx.Deactivate(ctx, slot)
	})
	if err != nil {
		return translate(s.log, "soft delete slot", err, ErrSlotNotFound)
	}

	s.events.publish(ctx, SlotEvent{
		Type:   EventSlotDeactivated,
		SlotID: slotID,
		Slot:   loadView(ctx, s.store, s.log, slotID),
	})
	return nil
}

// HardDeleteSlot removes the slot and its bookings, subject to the policy.
func (s *LifecycleService) HardDeleteSlot(ctx context.Context, slotID uuid.UUID) error {
	var (
		doctorID  uuid.UUID
		destroyed int64
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		slot, err := tx.LockSlot(ctx, slotID)
		if err != nil {
			return err
		}
		doctorID = slot.Slot().DoctorID

		confirmed, err := tx.CountConfirmed(ctx, slot)
		if err != nil {
			return err
		}
		if confirmed > 0 && s.policy == PolicyBlock {
			return ErrSlotHasBookings
		}
		destroyed = confirmed
		return tx.DeleteSlot(ctx, slot)
	})
	if err != nil {
		return translate(s.log, "hard delete slot", err, ErrSlotNotFound)
	}

	if destroyed > 0 {
		s.log.Info("hard delete removed confirmed bookings",
			zap.String("slot_id", slotID.String()),
			zap.Int64("bookings", destroyed),
		)
	}
	s.events.publish(ctx, SlotEvent{Type: EventSlotDeleted, SlotID: slotID, DoctorID: doctorID})
	return nil
}

// DeleteDoctor removes the doctor, all of its slots and all bookings on them,
// subject to the policy. Every slot row is locked before anything is counted.
func (s *LifecycleService) DeleteDoctor(ctx context.Context, doctorID uuid.UUID) error {
	var (
		slotIDs   []uuid.UUID
		destroyed int64
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		doctor, err := tx.LockDoctor(ctx, doctorID)
		if err != nil {
			return err
		}

		slotIDs = slotIDs[:0]
		destroyed = 0
		for _, slot := range doctor.Slots() {
			confirmed, err := tx.CountConfirmed(ctx, slot)
			if err != nil {
				return err
			}
			destroyed += confirmed
			slotIDs = append(slotIDs, slot.ID())
		}
		if destroyed > 0 && s.policy == PolicyBlock {
			return ErrDoctorHasBookings
		}
		return tx.DeleteDoctor(ctx, doctor)
	})
	if err != nil {
		return translate(s.log, "delete doctor", err, ErrDoctorNotFound)
	}

	if destroyed > 0 {
		s.log.Info("doctor delete removed confirmed bookings",
			zap.String("doctor_id", doctorID.String()),
			zap.Int("slots", len(slotIDs)),
			zap.Int64("bookings", destroyed),
		)
	}
	for _, id := range slotIDs {
		s.events.publish(ctx, SlotEvent{Type: EventDoctorDeleted, SlotID: id, DoctorID: doctorID})
	}
	return nil
}
