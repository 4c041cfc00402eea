package services

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/slotbook/clinic_booking/database/repository"
)

type Kind string

const (
	KindNotFound     Kind = "NOT_FOUND"
	KindConflict     Kind = "CONFLICT"
	KindInvalidInput Kind = "INVALID_INPUT"
	KindUnavailable  Kind = "UNAVAILABLE"
	KindInternal     Kind = "INTERNAL"
)

// Error is the typed failure every service returns. Callers branch on Kind;
// Code is stable and safe to show a client, Err is the cause and is not.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code so wrapped copies of a sentinel still compare equal.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

var (
	ErrSlotNotFound      = &Error{Kind: KindNotFound, Code: "SLOT_NOT_FOUND", Message: "slot not found"}
	ErrDoctorNotFound    = &Error{Kind: KindNotFound, Code: "DOCTOR_NOT_FOUND", Message: "doctor not found"}
	ErrBookingNotFound   = &Error{Kind: KindNotFound, Code: "BOOKING_NOT_FOUND", Message: "booking not found"}
	ErrSlotFull          = &Error{Kind: KindConflict, Code: "SLOT_FULL", Message: "slot is fully booked"}
	ErrSlotHasBookings   = &Error{Kind: KindConflict, Code: "SLOT_HAS_CONFIRMED_BOOKINGS", Message: "slot has confirmed bookings"}
	ErrDoctorHasBookings = &Error{Kind: KindConflict, Code: "DOCTOR_HAS_CONFIRMED_BOOKINGS", Message: "doctor has slots with confirmed bookings"}
	ErrUnknownDoctor     = &Error{Kind: KindInvalidInput, Code: "UNKNOWN_DOCTOR", Message: "doctorId does not reference an existing doctor"}
	ErrInvalidCapacity   = &Error{Kind: KindInvalidInput, Code: "INVALID_CAPACITY", Message: "capacity is out of range"}
	ErrInvalidUserName   = &Error{Kind: KindInvalidInput, Code: "INVALID_USER_NAME", Message: "userName is required"}
	ErrInvalidTimeRange  = &Error{Kind: KindInvalidInput, Code: "INVALID_TIME_RANGE", Message: "endTime must be after startTime"}
	ErrSlotBusy          = &Error{Kind: KindUnavailable, Code: "SLOT_BUSY", Message: "slot is busy, try again"}
)

func internal(op string, err error) error {
	return &Error{Kind: KindInternal, Code: "INTERNAL", Message: op + " failed", Err: err}
}

// KindOf reports the Kind of err, KindInternal for anything untyped.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// translate turns a repository error into a service error. notFound is what
// repository.ErrNotFound means for the operation at hand.
func translate(log *zap.Logger, op string, err error, notFound error) error {
	var svcErr *Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &svcErr):
		return err
	case errors.Is(err, repository.ErrNotFound):
		return notFound
	case errors.Is(err, repository.ErrLockTimeout):
		log.Debug("row lock wait timed out", zap.String("op", op))
		return ErrSlotBusy
	case errors.Is(err, repository.ErrForeignKey):
		return ErrUnknownDoctor
	}
	log.Error(op+" failed", zap.Error(err))
	return internal(op, err)
}
