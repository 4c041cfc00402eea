package models

import (
	"time"

	"github.com/google/uuid"
)

// BookingStatus keeps all three schema states. The allocator only ever
// writes BookingConfirmed; a rejected attempt leaves no row at all.
// Pending and Failed stay for schema compatibility.
type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingFailed    BookingStatus = "FAILED"
)

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingFailed:
		return true
	}
	return false
}

func (s BookingStatus) String() string { return string(s) }

type Booking struct {
	ID        uuid.UUID     `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	SlotID    uuid.UUID     `gorm:"type:uuid;not null;index:idx_bookings_slot_status,priority:1" json:"slotId"`
	UserName  string        `gorm:"size:255;not null" json:"userName"`
	Status    BookingStatus `gorm:"size:16;not null;default:'PENDING';index:idx_bookings_slot_status,priority:2;check:chk_bookings_status,status IN ('PENDING','CONFIRMED','FAILED')" json:"status"`
	CreatedAt time.Time     `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time     `gorm:"not null" json:"updatedAt"`
}
