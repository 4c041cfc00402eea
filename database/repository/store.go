// Package repository is the persistence gateway for doctors, slots and
// bookings. Every mutation that can affect the number of confirmed bookings
// on a slot runs inside Store.WithinTx and takes a lock handle that can only
// be obtained from the transaction's Tx.
package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/slotbook/clinic_booking/models"
)

var (
	ErrNotFound      = errors.New("repository: record not found")
	ErrForeignKey    = errors.New("repository: referenced record does not exist")
	ErrLockTimeout   = errors.New("repository: timed out waiting for row lock")
	ErrSlotNotLocked = errors.New("repository: slot handle does not belong to this transaction")
)

// SlotFilter narrows ListSlotAvailability. The zero value lists active slots.
type SlotFilter struct {
	ID              *uuid.UUID
	IncludeInactive bool
	OverbookedOnly  bool
}

type Store interface {
	// WithinTx runs fn in one transaction. A nil return commits; any error
	// or panic rolls back. fn must use the context it is handed, which
	// carries the transaction deadline.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	CreateDoctor(ctx context.Context, doctor *models.Doctor) error
	ListDoctors(ctx context.Context, limit int) ([]models.Doctor, error)
	CreateSlot(ctx context.Context, slot *models.Slot) error
	ListSlotAvailability(ctx context.Context, filter SlotFilter) ([]models.SlotWithAvailability, error)
	FindBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	Ping(ctx context.Context) error
}

// Tx is the set of operations available while a transaction is open.
type Tx interface {
	// LockSlot takes an exclusive row lock on the slot and blocks while
	// another transaction holds it. ErrNotFound when the row is absent.
	LockSlot(ctx context.Context, slotID uuid.UUID) (*LockedSlot, error)
	// LockDoctor locks the doctor row and then each of its slot rows in id order.
	LockDoctor(ctx context.Context, doctorID uuid.UUID) (*LockedDoctor, error)

	CountConfirmed(ctx context.Context, slot *LockedSlot) (int64, error)
	InsertBooking(ctx context.Context, slot *LockedSlot, booking *models.Booking) error
	SetCapacity(ctx context.Context, slot *LockedSlot, capacity int) error
	Deactivate(ctx context.Context, slot *LockedSlot) error
	DeleteSlot(ctx context.Context, slot *LockedSlot) error
	DeleteDoctor(ctx context.Context, doctor *LockedDoctor) error
}

// LockedSlot is proof that the current transaction holds the row lock on a
// slot. Values are only created by Tx.LockSlot and Tx.LockDoctor.
type LockedSlot struct {
	slot  models.Slot
	owner Tx
}

func (l *LockedSlot) ID() uuid.UUID     { return l.slot.ID }
func (l *LockedSlot) Slot() models.Slot { return l.slot }

type LockedDoctor struct {
	doctor models.Doctor
	slots  []*LockedSlot
	owner  Tx
}

func (l *LockedDoctor) ID() uuid.UUID         { return l.doctor.ID }
func (l *LockedDoctor) Doctor() models.Doctor { return l.doctor }
func (l *LockedDoctor) Slots() []*LockedSlot  { return l.slots }

func checkOwner(owner Tx, slot *LockedSlot) error {
	if slot == nil || slot.owner != owner {
		return ErrSlotNotLocked
	}
	return nil
}

func checkDoctorOwner(owner Tx, doctor *LockedDoctor) error {
	if doctor == nil || doctor.owner != owner {
		return ErrSlotNotLocked
	}
	return nil
}
