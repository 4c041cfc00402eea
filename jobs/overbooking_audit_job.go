package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/slotbook/clinic_booking/models"
)

const auditTimeout = 30 * time.Second

type overbookedLister interface {
	ListOverbookedSlots(ctx context.Context) ([]models.SlotWithAvailability, error)
}

// OverbookingAudit reports slots whose confirmed bookings exceed capacity.
// That state is legal after an admin lowers capacity, so the job only logs.
type OverbookingAudit struct {
	slots overbookedLister
	log   *zap.Logger
}

func NewOverbookingAudit(slots overbookedLister, log *zap.Logger) *OverbookingAudit {
	return &OverbookingAudit{slots: slots, log: log.Named("overbooking_audit")}
}

// Run performs one sweep and returns how many overbooked slots it found.
func (a *OverbookingAudit) Run(ctx context.Context) int {
	a.log.Debug("running overbooking audit")

	slots, err := a.slots.ListOverbookedSlots(ctx)
	if err != nil {
		a.log.Error("overbooking audit failed", zap.Error(err))
		return 0
	}
	if len(slots) == 0 {
		a.log.Debug("no overbooked slots found")
		return 0
	}

	for _, s := range slots {
		a.log.Warn("slot is overbooked",
			zap.String("slot_id", s.ID.String()),
			zap.String("doctor_id", s.DoctorID.String()),
			zap.Int("capacity", s.Capacity),
			zap.Int64("confirmed", s.ConfirmedCount),
			zap.Bool("active", s.IsActive),
		)
	}
	a.log.Info("overbooking audit finished", zap.Int("overbooked", len(slots)))
	return len(slots)
}

// Schedule registers the audit on c. An empty spec leaves it unscheduled.
func (a *OverbookingAudit) Schedule(c *cron.Cron, spec string) error {
	if spec == "" {
		a.log.Info("overbooking audit disabled")
		return nil
	}
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
		defer cancel()
		a.Run(ctx)
	})
	return err
}
