package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/slotbook/clinic_booking/database/repository"
	"github.com/slotbook/clinic_booking/models"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []SlotEvent
}

func (r *recordingPublisher) Publish(_ context.Context, e SlotEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingPublisher) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type testEnv struct {
	store     *repository.MemoryStore
	events    *recordingPublisher
	bookings  *BookingService
	catalog   *CatalogService
	lifecycle *LifecycleService
}

func newTestEnv(t *testing.T, policy HardDeletePolicy, opts ...BookingOption) *testEnv {
	t.Helper()
	store := repository.NewMemoryStore()
	events := &recordingPublisher{}
	log := zap.NewNop()
	return &testEnv{
		store:     store,
		events:    events,
		bookings:  NewBookingService(store, events, log, opts...),
		catalog:   NewCatalogService(store, nil, events, log),
		lifecycle: NewLifecycleService(store, events, log, policy),
	}
}

func (e *testEnv) doctor(t *testing.T) *models.Doctor {
	t.Helper()
	d, err := e.catalog.CreateDoctor(context.Background(), "Dr. Rao", "Cardiology")
	require.NoError(t, err)
	return d
}

func (e *testEnv) slot(t *testing.T, doctorID uuid.UUID, capacity int) *models.Slot {
	t.Helper()
	start := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	s, err := e.catalog.CreateSlot(context.Background(), CreateSlotInput{
		DoctorID:  doctorID,
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		Capacity:  capacity,
	})
	require.NoError(t, err)
	return s
}
