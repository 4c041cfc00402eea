package models

import (
	"time"

	"github.com/google/uuid"
)

type Slot struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	DoctorID  uuid.UUID `gorm:"type:uuid;not null;index" json:"doctorId"`
	StartTime time.Time `gorm:"not null;index" json:"startTime"`
	EndTime   time.Time `gorm:"not null" json:"endTime"`
	Capacity  int       `gorm:"not null;check:chk_slots_capacity,capacity >= 0" json:"capacity"`
	IsActive  bool      `gorm:"default:true" json:"isActive"`
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`

	Bookings []Booking `gorm:"foreignKey:SlotID;constraint:OnDelete:CASCADE" json:"-"`
}

// SlotWithAvailability is the read projection of a slot: the stored row, its
// doctor, and the seats derived from CONFIRMED bookings. AvailableSeats is
// capacity minus ConfirmedCount and goes negative when capacity was lowered
// below the number of confirmed bookings.
type SlotWithAvailability struct {
	ID             uuid.UUID     `json:"id"`
	DoctorID       uuid.UUID     `json:"doctorId"`
	Doctor         DoctorSummary `json:"doctor"`
	StartTime      time.Time     `json:"startTime"`
	EndTime        time.Time     `json:"endTime"`
	Capacity       int           `json:"capacity"`
	IsActive       bool          `json:"isActive"`
	CreatedAt      time.Time     `json:"createdAt"`
	ConfirmedCount int64         `json:"confirmedCount"`
	AvailableSeats int64         `json:"availableSeats"`
	Bookings       []Booking     `json:"bookings"`
}

func (s SlotWithAvailability) Overbooked() bool {
	return s.ConfirmedCount > int64(s.Capacity)
}

func AvailableSeats(capacity int, confirmed int64) int64 {
	return int64(capacity) - confirmed
}
