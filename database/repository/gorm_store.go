package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/slotbook/clinic_booking/models"
)

// Postgres SQLSTATE codes the gateway classifies.
const (
	pgForeignKeyViolation = "23503"
	pgLockNotAvailable    = "55P03"
	pgQueryCanceled       = "57014"
	pgDeadlockDetected    = "40P01"
)

var _ Store = (*GormStore)(nil)

type GormStore struct {
	db          *gorm.DB
	txTimeout   time.Duration
	lockTimeout time.Duration
}

type GormOption func(*GormStore)

// WithTxTimeout bounds every write transaction, lock waits included.
func WithTxTimeout(d time.Duration) GormOption {
	return func(s *GormStore) { s.txTimeout = d }
}

// WithLockTimeout sets postgres lock_timeout for the statements of each write transaction.
func WithLockTimeout(d time.Duration) GormOption {
	return func(s *GormStore) { s.lockTimeout = d }
}

func NewGormStore(db *gorm.DB, opts ...GormOption) *GormStore {
	s := &GormStore{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *GormStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if s.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.txTimeout)
		defer cancel()
	}

	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		if s.lockTimeout > 0 {
			// SET does not take bind parameters.
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = %d", s.lockTimeout.Milliseconds())
			if err := db.Exec(stmt).Error; err != nil {
				return err
			}
		}
		return fn(ctx, &gormTx{db: db})
	})
	return classify(err)
}

func (s *GormStore) CreateDoctor(ctx context.Context, doctor *models.Doctor) error {
	return classify(s.db.WithContext(ctx).Create(doctor).Error)
}

func (s *GormStore) ListDoctors(ctx context.Context, limit int) ([]models.Doctor, error) {
	var doctors []models.Doctor
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&doctors).Error
	if err != nil {
		return nil, classify(err)
	}
	return doctors, nil
}

func (s *GormStore) CreateSlot(ctx context.Context, slot *models.Slot) error {
	return classify(s.db.WithContext(ctx).Create(slot).Error)
}

func (s *GormStore) FindBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	if err := s.db.WithContext(ctx).First(&booking, "id = ?", id).Error; err != nil {
		return nil, classify(err)
	}
	return &booking, nil
}

type slotRow struct {
	ID                   uuid.UUID
	DoctorID             uuid.UUID
	StartTime            time.Time
	EndTime              time.Time
	Capacity             int
	IsActive             bool
	CreatedAt            time.Time
	DoctorName           string
	DoctorSpecialization string
	ConfirmedCount       int64
}

// ListSlotAvailability reads the projection from a single read-only
// snapshot so counts and booking lists agree. No row locks are taken.
func (s *GormStore) ListSlotAvailability(ctx context.Context, filter SlotFilter) ([]models.SlotWithAvailability, error) {
	var views []models.SlotWithAvailability

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Table("slots").
			Select(`slots.id, slots.doctor_id, slots.start_time, slots.end_time, slots.capacity,
				COALESCE(slots.is_active, TRUE) AS is_active, slots.created_at,
				doctors.name AS doctor_name, doctors.specialization AS doctor_specialization,
				COUNT(bookings.id) AS confirmed_count`).
			Joins("JOIN doctors ON doctors.id = slots.doctor_id").
			Joins("LEFT JOIN bookings ON bookings.slot_id = slots.id AND bookings.status = ?", models.BookingConfirmed).
			Group("slots.id, doctors.id").
			Order("slots.start_time ASC, slots.id ASC")

		if filter.ID != nil {
			q = q.Where("slots.id = ?", *filter.ID)
		}
		if !filter.IncludeInactive {
			q = q.Where("COALESCE(slots.is_active, TRUE) = TRUE")
		}
		if filter.OverbookedOnly {
			q = q.Having("COUNT(bookings.id) > slots.capacity")
		}

		var rows []slotRow
		if err := q.Scan(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, 0, len(rows))
		for _, r := range rows {
			ids = append(ids, r.ID)
		}

		var bookings []models.Booking
		err := tx.Where("slot_id IN ? AND status = ?", ids, models.BookingConfirmed).
			Order("created_at ASC, id ASC").
			Find(&bookings).Error
		if err != nil {
			return err
		}

		bySlot := make(map[uuid.UUID][]models.Booking, len(rows))
		for _, b := range bookings {
			bySlot[b.SlotID] = append(bySlot[b.SlotID], b)
		}

		views = make([]models.SlotWithAvailability, 0, len(rows))
		for _, r := range rows {
			attached := bySlot[r.ID]
			if attached == nil {
				attached = []models.Booking{}
			}
			views = append(views, models.SlotWithAvailability{
				ID:       r.ID,
				DoctorID: r.DoctorID,
				Doctor: models.DoctorSummary{
					Name:           r.DoctorName,
					Specialization: r.DoctorSpecialization,
				},
				StartTime:      r.StartTime,
				EndTime:        r.EndTime,
				Capacity:       r.Capacity,
				IsActive:       r.IsActive,
				CreatedAt:      r.CreatedAt,
				ConfirmedCount: r.ConfirmedCount,
				AvailableSeats: models.AvailableSeats(r.Capacity, r.ConfirmedCount),
				Bookings:       attached,
			})
		}
		return nil
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, classify(err)
	}
	return views, nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) LockSlot(ctx context.Context, slotID uuid.UUID) (*LockedSlot, error) {
	var slot models.Slot
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&slot, "id = ?", slotID).Error
	if err != nil {
		return nil, classify(err)
	}
	return &LockedSlot{slot: slot, owner: t}, nil
}

func (t *gormTx) LockDoctor(ctx context.Context, doctorID uuid.UUID) (*LockedDoctor, error) {
	db := t.db.WithContext(ctx)

	var doctor models.Doctor
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&doctor, "id = ?", doctorID).Error
	if err != nil {
		return nil, classify(err)
	}

	var slots []models.Slot
	err = db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("doctor_id = ?", doctorID).
		Order("id ASC").
		Find(&slots).Error
	if err != nil {
		return nil, classify(err)
	}

	locked := &LockedDoctor{doctor: doctor, owner: t}
	for _, slot := range slots {
		locked.slots = append(locked.slots, &LockedSlot{slot: slot, owner: t})
	}
	return locked, nil
}

func (t *gormTx) CountConfirmed(ctx context.Context, slot *LockedSlot) (int64, error) {
	if err := checkOwner(t, slot); err != nil {
		return 0, err
	}
	var n int64
	err := t.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("slot_id = ? AND status = ?", slot.ID(), models.BookingConfirmed).
		Count(&n).Error
	return n, classify(err)
}

func (t *gormTx) InsertBooking(ctx context.Context, slot *LockedSlot, booking *models.Booking) error {
	if err := checkOwner(t, slot); err != nil {
		return err
	}
	booking.SlotID = slot.ID()
	return classify(t.db.WithContext(ctx).Create(booking).Error)
}

func (t *gormTx) SetCapacity(ctx context.Context, slot *LockedSlot, capacity int) error {
	if err := checkOwner(t, slot); err != nil {
		return err
	}
	res := t.db.WithContext(ctx).
		Model(&models.Slot{}).
		Where("id = ?", slot.ID()).
		Update("capacity", capacity)
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	slot.slot.Capacity = capacity
	return nil
}

func (t *gormTx) Deactivate(ctx context.Context, slot *LockedSlot) error {
	if err := checkOwner(t, slot); err != nil {
		return err
	}
	res := t.db.WithContext(ctx).
		Model(&models.Slot{}).
		Where("id = ?", slot.ID()).
		Update("is_active", false)
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	slot.slot.IsActive = false
	return nil
}

func (t *gormTx) DeleteSlot(ctx context.Context, slot *LockedSlot) error {
	if err := checkOwner(t, slot); err != nil {
		return err
	}
	db := t.db.WithContext(ctx)
	if err := db.Where("slot_id = ?", slot.ID()).Delete(&models.Booking{}).Error; err != nil {
		return classify(err)
	}
	res := db.Where("id = ?", slot.ID()).Delete(&models.Slot{})
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *gormTx) DeleteDoctor(ctx context.Context, doctor *LockedDoctor) error {
	if err := checkDoctorOwner(t, doctor); err != nil {
		return err
	}
	db := t.db.WithContext(ctx)

	if len(doctor.slots) > 0 {
		ids := make([]uuid.UUID, 0, len(doctor.slots))
		for _, s := range doctor.slots {
			ids = append(ids, s.ID())
		}
		if err := db.Where("slot_id IN ?", ids).Delete(&models.Booking{}).Error; err != nil {
			return classify(err)
		}
		if err := db.Where("id IN ?", ids).Delete(&models.Slot{}).Error; err != nil {
			return classify(err)
		}
	}

	res := db.Where("id = ?", doctor.ID()).Delete(&models.Doctor{})
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// classify maps driver and gorm errors onto the repository sentinels and
// passes everything else through untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgForeignKeyViolation:
			return ErrForeignKey
		case pgLockNotAvailable, pgQueryCanceled, pgDeadlockDetected:
			return ErrLockTimeout
		}
		return err
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return ErrLockTimeout
	}
	return err
}
