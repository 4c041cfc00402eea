package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/slotbook/clinic_booking/database/repository"
	"github.com/slotbook/clinic_booking/models"
)

const maxUserNameLen = 255

// BookingService allocates seats on slots. It is the only code path that
// creates bookings.
type BookingService struct {
	store  repository.Store
	events notifier
	log    *zap.Logger
	now    func() time.Time

	rejectInactive bool
}

type BookingOption func(*BookingService)

// RejectInactiveSlots makes CreateBooking treat soft-deleted slots as missing.
func RejectInactiveSlots(reject bool) BookingOption {
	return func(s *BookingService) { s.rejectInactive = reject }
}

func WithBookingClock(now func() time.Time) BookingOption {
	return func(s *BookingService) { s.now = now }
}

func NewBookingService(store repository.Store, events EventPublisher, log *zap.Logger, opts ...BookingOption) *BookingService {
	s := &BookingService{
		store:  store,
		events: newNotifier(events, log),
		log:    log,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateBooking reserves one seat on the slot for userName. The slot row is
// locked before the confirmed count is read, and the booking is inserted
// under the same lock, so concurrent calls on one slot are serialized and at
// most capacity of them succeed.
func (s *BookingService) CreateBooking(ctx context.Context, slotID uuid.UUID, userName string) (*models.Booking, error) {
	userName = strings.TrimSpace(userName)
	if userName == "" || utf8.RuneCountInString(userName) > maxUserNameLen {
		return nil, ErrInvalidUserName
	}

	var booking *models.Booking
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		slot, err := tx.LockSlot(ctx, slotID)
		if err != nil {
			return err
		}
		if s.rejectInactive && !slot.Slot().IsActive {
			return ErrSlotNotFound
		}

		confirmed, err := tx.CountConfirmed(ctx, slot)
		if err != nil {
			return err
		}
		if confirmed >= int64(slot.Slot().Capacity) {
			return ErrSlotFull
		}

		now := s.now().UTC()
		b := &models.Booking{
			ID:        uuid.New(),
			UserName:  userName,
			Status:    models.BookingConfirmed,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.InsertBooking(ctx, slot, b); err != nil {
			return err
		}
		booking = b
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSlotFull) {
			s.log.Debug("slot full", zap.String("slot_id", slotID.String()))
		}
		return nil, translate(s.log, "create booking", err, ErrSlotNotFound)
	}

	s.events.publish(ctx, SlotEvent{
		Type:   EventBookingConfirmed,
		SlotID: slotID,
		Slot:   loadView(ctx, s.store, s.log, slotID),
	})
	return booking, nil
}

func (s *BookingService) GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	booking, err := s.store.FindBooking(ctx, id)
	if err != nil {
		return nil, translate(s.log, "get booking", err, ErrBookingNotFound)
	}
	return booking, nil
}

// readView reads the committed projection of one slot, active or not. A
// missing slot is (nil, nil).
func readView(ctx context.Context, store repository.Store, slotID uuid.UUID) (*models.SlotWithAvailability, error) {
	views, err := store.ListSlotAvailability(ctx, repository.SlotFilter{ID: &slotID, IncludeInactive: true})
	if err != nil {
		return nil, err
	}
	if len(views) == 0 {
		return nil, nil
	}
	return &views[0], nil
}

// loadView reads the projection for an event payload. A failed read only
// costs the payload.
func loadView(ctx context.Context, store repository.Store, log *zap.Logger, slotID uuid.UUID) *models.SlotWithAvailability {
	view, err := readView(ctx, store, slotID)
	if err != nil {
		log.Warn("load slot view", zap.String("slot_id", slotID.String()), zap.Error(err))
	}
	return view
}
