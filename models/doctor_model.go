package models

import (
	"time"

	"github.com/google/uuid"
)

type Doctor struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Name           string    `gorm:"size:255;not null" json:"name"`
	Specialization string    `gorm:"size:255;not null" json:"specialization"`
	CreatedAt      time.Time `gorm:"not null;index" json:"createdAt"`

	Slots []Slot `gorm:"foreignKey:DoctorID;constraint:OnDelete:CASCADE" json:"-"`
}

// DoctorSummary is the part of a Doctor embedded in availability views.
type DoctorSummary struct {
	Name           string `json:"name"`
	Specialization string `json:"specialization"`
}
