package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/slotbook/clinic_booking/models"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process Store for tests and throwaway runs. Row locks
// are one-slot channels held until the owning transaction ends; writes made
// inside a transaction stay staged until commit, so readers only ever see
// committed state.
type MemoryStore struct {
	mu       sync.RWMutex
	doctors  map[uuid.UUID]models.Doctor
	slots    map[uuid.UUID]models.Slot
	bookings map[uuid.UUID]models.Booking

	locksMu sync.Mutex
	locks   map[rowKey]*rowLock

	txTimeout time.Duration
}

type rowKey struct {
	table string
	id    uuid.UUID
}

// rowLock is dropped from the map once no transaction holds or waits on it.
type rowLock struct {
	ch   chan struct{}
	refs int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		doctors:  make(map[uuid.UUID]models.Doctor),
		slots:    make(map[uuid.UUID]models.Slot),
		bookings: make(map[uuid.UUID]models.Booking),
		locks:    make(map[rowKey]*rowLock),
	}
}

// SetTxTimeout bounds transactions the same way WithTxTimeout does for GormStore.
func (s *MemoryStore) SetTxTimeout(d time.Duration) {
	s.txTimeout = d
}

func (s *MemoryStore) ref(key rowKey) *rowLock {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &rowLock{ch: make(chan struct{}, 1)}
		s.locks[key] = l
	}
	l.refs++
	return l
}

func (s *MemoryStore) unref(key rowKey, l *rowLock) {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, key)
	}
}

// acquire blocks until the row lock is held or ctx is done. The returned
// func releases it.
func (s *MemoryStore) acquire(ctx context.Context, key rowKey) (func(), error) {
	l := s.ref(key)
	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			s.unref(key, l)
		}, nil
	case <-ctx.Done():
		s.unref(key, l)
		return nil, ErrLockTimeout
	}
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if s.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.txTimeout)
		defer cancel()
	}

	tx := &memTx{
		store:   s,
		handles: make(map[uuid.UUID]*LockedSlot),
		staged:  make(map[uuid.UUID]int64),
	}
	defer tx.release()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *MemoryStore) CreateDoctor(_ context.Context, doctor *models.Doctor) error {
	if doctor.ID == uuid.Nil {
		doctor.ID = uuid.New()
	}
	if doctor.CreatedAt.IsZero() {
		doctor.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doctors[doctor.ID] = *doctor
	return nil
}

func (s *MemoryStore) ListDoctors(_ context.Context, limit int) ([]models.Doctor, error) {
	s.mu.RLock()
	doctors := make([]models.Doctor, 0, len(s.doctors))
	for _, d := range s.doctors {
		doctors = append(doctors, d)
	}
	s.mu.RUnlock()

	sort.Slice(doctors, func(i, j int) bool {
		if doctors[i].CreatedAt.Equal(doctors[j].CreatedAt) {
			return doctors[i].ID.String() > doctors[j].ID.String()
		}
		return doctors[i].CreatedAt.After(doctors[j].CreatedAt)
	})
	if limit > 0 && len(doctors) > limit {
		doctors = doctors[:limit]
	}
	return doctors, nil
}

// CreateSlot briefly takes the doctor row lock, standing in for the key
// share lock postgres takes when checking the foreign key.
func (s *MemoryStore) CreateSlot(ctx context.Context, slot *models.Slot) error {
	release, err := s.acquire(ctx, rowKey{"doctors", slot.DoctorID})
	if err != nil {
		return err
	}
	defer release()

	if slot.ID == uuid.Nil {
		slot.ID = uuid.New()
	}
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.doctors[slot.DoctorID]; !ok {
		return ErrForeignKey
	}
	s.slots[slot.ID] = *slot
	return nil
}

func (s *MemoryStore) FindBooking(_ context.Context, id uuid.UUID) (*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (s *MemoryStore) ListSlotAvailability(_ context.Context, filter SlotFilter) ([]models.SlotWithAvailability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bySlot := make(map[uuid.UUID][]models.Booking)
	for _, b := range s.bookings {
		if b.Status == models.BookingConfirmed {
			bySlot[b.SlotID] = append(bySlot[b.SlotID], b)
		}
	}

	views := make([]models.SlotWithAvailability, 0)
	for _, slot := range s.slots {
		if filter.ID != nil && slot.ID != *filter.ID {
			continue
		}
		if !filter.IncludeInactive && !slot.IsActive {
			continue
		}
		doctor, ok := s.doctors[slot.DoctorID]
		if !ok {
			continue
		}

		attached := append([]models.Booking{}, bySlot[slot.ID]...)
		sort.Slice(attached, func(i, j int) bool {
			if attached[i].CreatedAt.Equal(attached[j].CreatedAt) {
				return attached[i].ID.String() < attached[j].ID.String()
			}
			return attached[i].CreatedAt.Before(attached[j].CreatedAt)
		})

		confirmed := int64(len(attached))
		if filter.OverbookedOnly && confirmed <= int64(slot.Capacity) {
			continue
		}
		views = append(views, models.SlotWithAvailability{
			ID:       slot.ID,
			DoctorID: slot.DoctorID,
			Doctor: models.DoctorSummary{
				Name:           doctor.Name,
				Specialization: doctor.Specialization,
			},
			StartTime:      slot.StartTime,
			EndTime:        slot.EndTime,
			Capacity:       slot.Capacity,
			IsActive:       slot.IsActive,
			CreatedAt:      slot.CreatedAt,
			ConfirmedCount: confirmed,
			AvailableSeats: models.AvailableSeats(slot.Capacity, confirmed),
			Bookings:       attached,
		})
	}

	sort.Slice(views, func(i, j int) bool {
		if views[i].StartTime.Equal(views[j].StartTime) {
			return views[i].ID.String() < views[j].ID.String()
		}
		return views[i].StartTime.Before(views[j].StartTime)
	})
	return views, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

type memTx struct {
	store   *MemoryStore
	held    []func()
	handles map[uuid.UUID]*LockedSlot
	// staged holds confirmed bookings inserted by this transaction, per slot.
	staged map[uuid.UUID]int64
	ops    []func(s *MemoryStore)
}

func (t *memTx) lock(ctx context.Context, key rowKey) error {
	release, err := t.store.acquire(ctx, key)
	if err != nil {
		return err
	}
	t.held = append(t.held, release)
	return nil
}

func (t *memTx) release() {
	for _, release := range t.held {
		release()
	}
	t.held = nil
}

func (t *memTx) commit() {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, op := range t.ops {
		op(t.store)
	}
	t.ops = nil
}

func (t *memTx) LockSlot(ctx context.Context, slotID uuid.UUID) (*LockedSlot, error) {
	if h, ok := t.handles[slotID]; ok {
		return h, nil
	}
	if err := t.lock(ctx, rowKey{"slots", slotID}); err != nil {
		return nil, err
	}

	t.store.mu.RLock()
	slot, ok := t.store.slots[slotID]
	t.store.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	h := &LockedSlot{slot: slot, owner: t}
	t.handles[slotID] = h
	return h, nil
}

func (t *memTx) LockDoctor(ctx context.Context, doctorID uuid.UUID) (*LockedDoctor, error) {
	if err := t.lock(ctx, rowKey{"doctors", doctorID}); err != nil {
		return nil, err
	}

	t.store.mu.RLock()
	doctor, ok := t.store.doctors[doctorID]
	var ids []uuid.UUID
	for _, slot := range t.store.slots {
		if slot.DoctorID == doctorID {
			ids = append(ids, slot.ID)
		}
	}
	t.store.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	locked := &LockedDoctor{doctor: doctor, owner: t}
	for _, id := range ids {
		h, err := t.LockSlot(ctx, id)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		locked.slots = append(locked.slots, h)
	}
	return locked, nil
}

func (t *memTx) CountConfirmed(_ context.Context, slot *LockedSlot) (int64, error) {
	if err := checkOwner(t, slot); err != nil {
		return 0, err
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	var n int64
	for _, b := range t.store.bookings {
		if b.SlotID == slot.ID() && b.Status == models.BookingConfirmed {
			n++
		}
	}
	return n + t.staged[slot.ID()], nil
}

func (t *memTx) InsertBooking(_ context.Context, slot *LockedSlot, booking *models.Booking) error {
	if err := checkOwner(t, slot); err != nil {
		return err
	}
	booking.SlotID = slot.ID()
	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}
	if booking.Status == "" {
		booking.Status = models.BookingPending
	}
	if booking.Status == models.BookingConfirmed {
		t.staged[slot.ID()]++
	}

	row := *booking
	t.ops = append(t.ops, func(s *MemoryStore) {
		s.bookings[row.ID] = row
	})
	return nil
}

func (t *memTx) SetCapacity(_ context.Context, slot *LockedSlot, capacity int) error {
	if err := checkOwner(t, slot); err != nil {
		return err
	}
	id := slot.ID()
	t.ops = append(t.ops, func(s *MemoryStore) {
		if row, ok := s.slots[id]; ok {
			row.Capacity = capacity
			s.slots[id] = row
		}
	})
	slot.slot.Capacity = capacity
	return nil
}

func (t *memTx) Deactivate(_ context.Context, slot *LockedSlot) error {
	if err := checkOwner(t, slot); err != nil {
		return err
	}
	id := slot.ID()
	t.ops = append(t.ops, func(s *MemoryStore) {
		if row, ok := s.slots[id]; ok {
			row.IsActive = false
			s.slots[id] = row
		}
	})
	slot.slot.IsActive = false
	return nil
}

func (t *memTx) DeleteSlot(_ context.Context, slot *LockedSlot) error {
	if err := checkOwner(t, slot); err != nil {
		return err
	}
	id := slot.ID()
	t.ops = append(t.ops, func(s *MemoryStore) {
		deleteSlotRows(s, id)
	})
	return nil
}

func (t *memTx) DeleteDoctor(_ context.Context, doctor *LockedDoctor) error {
	if err := checkDoctorOwner(t, doctor); err != nil {
		return err
	}
	doctorID := doctor.ID()
	ids := make([]uuid.UUID, 0, len(doctor.slots))
	for _, h := range doctor.slots {
		ids = append(ids, h.ID())
	}
	t.ops = append(t.ops, func(s *MemoryStore) {
		for _, id := range ids {
			deleteSlotRows(s, id)
		}
		delete(s.doctors, doctorID)
	})
	return nil
}

// deleteSlotRows removes a slot and its bookings; s.mu must be held.
func deleteSlotRows(s *MemoryStore, slotID uuid.UUID) {
	for id, b := range s.bookings {
		if b.SlotID == slotID {
			delete(s.bookings, id)
		}
	}
	delete(s.slots, slotID)
}
