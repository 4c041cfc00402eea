package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/slotbook/clinic_booking/database/repository"
	"github.com/slotbook/clinic_booking/models"
)

func TestParseHardDeletePolicy(t *testing.T) {
	for in, want := range map[string]HardDeletePolicy{
		"":        PolicyCascade,
		"cascade": PolicyCascade,
		" Block ": PolicyBlock,
		"CASCADE": PolicyCascade,
	} {
		got, err := ParseHardDeletePolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseHardDeletePolicy("archive")
	assert.Error(t, err)
}

func TestUpdateSlotCapacity_BelowConfirmedGoesNegative(t *testing.T) {
	env := newTestEnv(t, PolicyCascade)
	slot := env.slot(t, env.doctor(t).ID, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := env.bookings.CreateBooking(ctx, slot.ID, fmt.Sprintf("p%d", i))
		require.NoError(t, err)
	}

	view, err := env.lifecycle.UpdateSlotCapacity(ctx, slot.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Capacity)
	assert.EqualValues(t, 3, view.ConfirmedCount)
	assert.EqualValues(t, -2, view.AvailableSeats)
	assert.True(t, view.Overbooked())

	listed, err := env.catalog.ListActiveSlots(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.EqualValues(t, -2, listed[0].AvailableSeats)

	overbooked, err := env.catalog.ListOverbookedSlots(ctx)
	require.NoError(t, err)
	require.Len(t, overbooked, 1)
	assert.Equal(t, slot.ID, overbooked[0].ID)
}

func TestUpdateSlotCapacity_Errors(t *testing.T) {
	env := newTestEnv(t, PolicyCascade)
	slot := env.slot(t, env.doctor(t).ID, 3)
	ctx := context.Background()

	_, err := env.lifecycle.UpdateSlotCapacity(ctx, slot.ID, -1)
	assert.ErrorIs(t, err, ErrInvalidCapacity)

	_, err = env.lifecycle.UpdateSlotCapacity(ctx, uuid.New(), 4)
	assert.ErrorIs(t, err, ErrSlotNotFound)
}

// unreadableStore fails availability reads while failReads is set.
type unreadableStore struct {
	*repository.MemoryStore
	failReads atomic.Bool
}

func (s *unreadableStore) ListSlotAvailability(ctx context.Context, f repository.SlotFilter) ([]models.SlotWithAvailability, error) {
	if s.failReads.Load() {
		return nil, errors.New("read replica unavailable")
	}
	return s.MemoryStore.ListSlotAvailability(ctx, f)
}

func TestUpdateSlotCapacity_ReadBackFailureIsInternal(t *testing.T) {
	env := newTestEnv(t, PolicyCascade)
	slot := env.slot(t, env.doctor(t).ID, 3)

	store := &unreadableStore{MemoryStore: env.store}
	lifecycle := NewLifecycleService(store, env.events, zap.NewNop(), PolicyCascade)

	store.failReads.Store(true)
	view, err := lifecycle.UpdateSlotCapacity(context.Background(), slot.ID, 7)
	require.Error(t, err)
	assert.Nil(t, view)
	assert.Equal(t, KindInternal, KindOf(err))
	assert.NotErrorIs(t, err, ErrSlotNotFound)

	store.failReads.Store(false)
	got, err := env.catalog.GetSlot(context.Background(), slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, got.Capacity)
	assert.Contains(t, env.events.types(), EventCapacityUpdated)
}

func TestUpdateSlotCapacity_InactiveSlotStillUpdates(t *testing.T) {
	env := newTestEnv(t, PolicyCascade)
	slot := env.slot(t, env.doctor(t).ID, 3)
	ctx := context.Background()

	require.NoError(t, env.lifecycle.SoftDeleteSlot(ctx, slot.ID))

	view, err := env.lifecycle.UpdateSlotCapacity(ctx, slot.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, view.Capacity)
	assert.False(t, view.IsActive)
}

// Capacity changes take the slot lock, so racing them against bookings never
// lets the confirmed count pass whichever capacity was in force when each
// booking was checked.
func TestUpdateSlotCapacity_RacesWithBookings(t *testing.T) {
	env := newTestEnv(t, PolicyCascade)
	slot := env.slot(t, env.doctor(t).ID, 5)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = env.bookings.CreateBooking(ctx, slot.ID, fmt.Sprintf("p%d", i))
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := env.lifecycle.UpdateSlotCapacity(ctx, slot.ID, 2)
		assert.NoError(t, err)
	}()
	wg.Wait()

	view, err := env.catalog.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, view.Capacity)
	assert.LessOrEqual(t, view.ConfirmedCount, int64(5))
	assert.Equal(t, view.ConfirmedCount, int64(len(view.Bookings)))
}

func TestSoftDeleteSlot_KeepsBookingsRetrievable(t *testing.T) {
	env := newTestEnv(t, PolicyCascade)
	slot := env.slot(t, env.doctor(t).ID, 2)
	ctx := context.Background()

	booking, err := env.bookings.CreateBooking(ctx, slot.ID, "Alice")
	require.NoError(t, err)

	require.NoError(t, env.lifecycle.SoftDeleteSlot(ctx, slot.ID))

	listed, err := env.catalog.ListActiveSlots(ctx)
	require.NoError(t, err)
	assert.Empty(t, listed)

	_, err = env.catalog.GetSlot(ctx, slot.ID)
	assert.ErrorIs(t, err, ErrSlotNotFound)

	got, err := env.bookings.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.ID, got.ID)

	assert.ErrorIs(t, env.lifecycle.SoftDeleteSlot(ctx, uuid.New()), ErrSlotNotFound)
}

func TestHardDeleteSlot_Cascade(t *testing.T) {
	env := newTestEnv(t, PolicyCascade)
	slot := env.slot(t, env.doctor(t).ID, 2)
	ctx := context.Background()

	booking, err := env.bookings.CreateBooking(ctx, slot.ID, "Alice")
	require.NoError(t, err)

	require.NoError(t, env.lifecycle.HardDeleteSlot(ctx, slot.ID))

	_, err = env.catalog.GetSlot(ctx, slot.ID)
	assert.ErrorIs(t, err, ErrSlotNotFound)
	_, err = env.bookings.GetBooking(ctx, booking.ID)
	assert.ErrorIs(t, err, ErrBookingNotFound)

	assert.ErrorIs(t, env.lifecycle.HardDeleteSlot(ctx, slot.ID), ErrSlotNotFound)
	assert.Contains(t, env.events.types(), EventSlotDeleted)
}

func TestHardDeleteSlot_BlockPolicy(t *testing.T) {
	env := newTestEnv(t, PolicyBlock)
	ctx := context.Background()
	doctorID := env.doctor(t).ID

	busy := env.slot(t, doctorID, 2)
	_, err := env.bookings.CreateBooking(ctx, busy.ID, "Alice")
	require.NoError(t, err)

	err = env.lifecycle.HardDeleteSlot(ctx, busy.ID)
	require.ErrorIs(t, err, ErrSlotHasBookings)
	assert.Equal(t, KindConflict, KindOf(err))

	view, err := env.catalog.GetSlot(ctx, busy.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, view.ConfirmedCount)

	empty := env.slot(t, doctorID, 2)
	assert.NoError(t, env.lifecycle.HardDeleteSlot(ctx, empty.ID))
}

func TestDeleteDoctor_CascadeCompleteness(t *testing.T) {
	env := newTestEnv(t, PolicyCascade)
	ctx := context.Background()
	doctor := env.doctor(t)
	other := env.doctor(t)

	var slotIDs, bookingIDs []uuid.UUID
	for i := 0; i < 3; i++ {
		s := env.slot(t, doctor.ID, 2)
		slotIDs = append(slotIDs, s.ID)
		b, err := env.bookings.CreateBooking(ctx, s.ID, fmt.Sprintf("p%d", i))
		require.NoError(t, err)
		bookingIDs = append(bookingIDs, b.ID)
	}
	kept := env.slot(t, other.ID, 1)

	require.NoError(t, env.lifecycle.DeleteDoctor(ctx, doctor.ID))

	for _, id := range slotIDs {
		_, err := env.catalog.GetSlot(ctx, id)
		assert.ErrorIs(t, err, ErrSlotNotFound)
	}
	for _, id := range bookingIDs {
		_, err := env.bookings.GetBooking(ctx, id)
		assert.ErrorIs(t, err, ErrBookingNotFound)
	}

	doctors, err := env.catalog.ListDoctors(ctx)
	require.NoError(t, err)
	require.Len(t, doctors, 1)
	assert.Equal(t, other.ID, doctors[0].ID)

	_, err = env.catalog.GetSlot(ctx, kept.ID)
	assert.NoError(t, err)

	assert.ErrorIs(t, env.lifecycle.DeleteDoctor(ctx, doctor.ID), ErrDoctorNotFound)
}

func TestDeleteDoctor_BlockPolicy(t *testing.T) {
	env := newTestEnv(t, PolicyBlock)
	ctx := context.Background()
	doctor := env.doctor(t)
	slot := env.slot(t, doctor.ID, 1)
	_, err := env.bookings.CreateBooking(ctx, slot.ID, "Alice")
	require.NoError(t, err)

	assert.ErrorIs(t, env.lifecycle.DeleteDoctor(ctx, doctor.ID), ErrDoctorHasBookings)

	_, err = env.catalog.GetSlot(ctx, slot.ID)
	assert.NoError(t, err)
}

func TestDeleteDoctor_RacesWithBookings(t *testing.T) {
	env := newTestEnv(t, PolicyCascade)
	ctx := context.Background()
	doctor := env.doctor(t)
	slot := env.slot(t, doctor.ID, 10)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.bookings.CreateBooking(ctx, slot.ID, fmt.Sprintf("p%d", i))
			if err != nil {
				assert.True(t, KindOf(err) == KindNotFound || KindOf(err) == KindConflict, err.Error())
			}
		}(i)
	}
	require.NoError(t, env.lifecycle.DeleteDoctor(ctx, doctor.ID))
	wg.Wait()

	// Bookings that won the lock before the delete were cascaded with it;
	// later ones found no slot. Nothing is left behind either way.
	views, err := env.store.ListSlotAvailability(ctx, repository.SlotFilter{IncludeInactive: true})
	require.NoError(t, err)
	assert.Empty(t, views)
}
