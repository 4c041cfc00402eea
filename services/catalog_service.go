package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/slotbook/clinic_booking/database/repository"
	"github.com/slotbook/clinic_booking/models"
)

// DoctorListLimit caps ListDoctors.
const DoctorListLimit = 100

// SlotListCache holds the active-slot listing between writes. Implementations
// report a miss with ok == false; errors are treated as misses. gen is read
// before the store is and handed back to SetActiveSlots, which must drop the
// listing if the cache was invalidated in between.
type SlotListCache interface {
	GetActiveSlots(ctx context.Context) (views []models.SlotWithAvailability, gen int64, ok bool, err error)
	SetActiveSlots(ctx context.Context, gen int64, views []models.SlotWithAvailability) error
}

// CatalogService covers doctor and slot records and the availability
// projection. Reads here are advisory; CreateBooking re-checks under lock.
type CatalogService struct {
	store  repository.Store
	cache  SlotListCache
	events notifier
	log    *zap.Logger
	now    func() time.Time
}

func NewCatalogService(store repository.Store, cache SlotListCache, events EventPublisher, log *zap.Logger) *CatalogService {
	return &CatalogService{
		store:  store,
		cache:  cache,
		events: newNotifier(events, log),
		log:    log,
		now:    time.Now,
	}
}

func (s *CatalogService) CreateDoctor(ctx context.Context, name, specialization string) (*models.Doctor, error) {
	doctor := &models.Doctor{
		ID:             uuid.New(),
		Name:           strings.TrimSpace(name),
		Specialization: strings.TrimSpace(specialization),
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.CreateDoctor(ctx, doctor); err != nil {
		return nil, translate(s.log, "create doctor", err, ErrDoctorNotFound)
	}
	return doctor, nil
}

// ListDoctors returns the newest DoctorListLimit doctors.
func (s *CatalogService) ListDoctors(ctx context.Context) ([]models.Doctor, error) {
	doctors, err := s.store.ListDoctors(ctx, DoctorListLimit)
	if err != nil {
		return nil, translate(s.log, "list doctors", err, ErrDoctorNotFound)
	}
	if doctors == nil {
		doctors = []models.Doctor{}
	}
	return doctors, nil
}

type CreateSlotInput struct {
	DoctorID  uuid.UUID
	StartTime time.Time
	EndTime   time.Time
	Capacity  int
}

func (s *CatalogService) CreateSlot(ctx context.Context, in CreateSlotInput) (*models.Slot, error) {
	if in.Capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	if !in.EndTime.After(in.StartTime) {
		return nil, ErrInvalidTimeRange
	}

	slot := &models.Slot{
		ID:        uuid.New(),
		DoctorID:  in.DoctorID,
		StartTime: in.StartTime.UTC(),
		EndTime:   in.EndTime.UTC(),
		Capacity:  in.Capacity,
		IsActive:  true,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateSlot(ctx, slot); err != nil {
		return nil, translate(s.log, "create slot", err, ErrUnknownDoctor)
	}

	s.events.publish(ctx, SlotEvent{
		Type:     EventSlotCreated,
		SlotID:   slot.ID,
		DoctorID: slot.DoctorID,
		Slot:     loadView(ctx, s.store, s.log, slot.ID),
	})
	return slot, nil
}

// ListActiveSlots returns every active slot with its availability, ordered by
// start time. The result may be served from cache and can be stale.
func (s *CatalogService) ListActiveSlots(ctx context.Context) ([]models.SlotWithAvailability, error) {
	var gen int64
	if s.cache != nil {
		views, g, ok, err := s.cache.GetActiveSlots(ctx)
		if err != nil {
			s.log.Warn("read slot cache", zap.Error(err))
		}
		if ok {
			return views, nil
		}
		gen = g
	}

	views, err := s.store.ListSlotAvailability(ctx, repository.SlotFilter{})
	if err != nil {
		return nil, translate(s.log, "list slots", err, ErrSlotNotFound)
	}
	if views == nil {
		views = []models.SlotWithAvailability{}
	}

	if s.cache != nil {
		if err := s.cache.SetActiveSlots(ctx, gen, views); err != nil {
			s.log.Warn("write slot cache", zap.Error(err))
		}
	}
	return views, nil
}

// GetSlot returns the availability of one active slot. Inactive and missing
// slots are both ErrSlotNotFound.
func (s *CatalogService) GetSlot(ctx context.Context, id uuid.UUID) (*models.SlotWithAvailability, error) {
	views, err := s.store.ListSlotAvailability(ctx, repository.SlotFilter{ID: &id})
	if err != nil {
		return nil, translate(s.log, "get slot", err, ErrSlotNotFound)
	}
	if len(views) == 0 {
		return nil, ErrSlotNotFound
	}
	return &views[0], nil
}

// ListOverbookedSlots returns slots, active or not, holding more confirmed
// bookings than their capacity.
func (s *CatalogService) ListOverbookedSlots(ctx context.Context) ([]models.SlotWithAvailability, error) {
	views, err := s.store.ListSlotAvailability(ctx, repository.SlotFilter{IncludeInactive: true, OverbookedOnly: true})
	if err != nil {
		return nil, translate(s.log, "list overbooked slots", err, ErrSlotNotFound)
	}
	return views, nil
}
