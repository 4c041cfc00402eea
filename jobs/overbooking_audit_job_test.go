package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/slotbook/clinic_booking/models"
)

type stubLister struct {
	slots []models.SlotWithAvailability
	err   error
}

func (s stubLister) ListOverbookedSlots(context.Context) ([]models.SlotWithAvailability, error) {
	return s.slots, s.err
}

func TestOverbookingAudit_LogsEachSlot(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	slot := models.SlotWithAvailability{ID: uuid.New(), DoctorID: uuid.New(), Capacity: 1, ConfirmedCount: 3, AvailableSeats: -2}

	a := NewOverbookingAudit(stubLister{slots: []models.SlotWithAvailability{slot}}, zap.New(core))
	assert.Equal(t, 1, a.Run(context.Background()))

	warns := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warns, 1)
	fields := warns[0].ContextMap()
	assert.Equal(t, slot.ID.String(), fields["slot_id"])
	assert.EqualValues(t, 3, fields["confirmed"])
	assert.EqualValues(t, 1, fields["capacity"])
}

func TestOverbookingAudit_NothingToReport(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	a := NewOverbookingAudit(stubLister{}, zap.New(core))

	assert.Zero(t, a.Run(context.Background()))
	assert.Zero(t, logs.FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestOverbookingAudit_ListError(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	a := NewOverbookingAudit(stubLister{err: errors.New("db down")}, zap.New(core))

	assert.Zero(t, a.Run(context.Background()))
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestOverbookingAudit_Schedule(t *testing.T) {
	a := NewOverbookingAudit(stubLister{}, zap.NewNop())

	c := cron.New()
	require.NoError(t, a.Schedule(c, ""))
	assert.Empty(t, c.Entries())

	require.NoError(t, a.Schedule(c, "*/10 * * * *"))
	assert.Len(t, c.Entries(), 1)

	assert.Error(t, a.Schedule(c, "not a schedule"))
}
