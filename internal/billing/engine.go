package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	chargedomain "github.com/smallbiznis/cobranza/internal/charge/domain"
	clientdomain "github.com/smallbiznis/cobranza/internal/client/domain"
	"github.com/smallbiznis/cobranza/internal/clock"
	"github.com/smallbiznis/cobranza/internal/config"
	obsmetrics "github.com/smallbiznis/cobranza/internal/observability/metrics"
	"github.com/smallbiznis/cobranza/internal/providers/email"
	"github.com/smallbiznis/cobranza/internal/recurrence"
	"github.com/smallbiznis/cobranza/internal/systemconfig"
	"github.com/smallbiznis/cobranza/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("billing engine missing required dependency")

const (
	skipReasonClientCanceled   = "client_canceled"
	skipReasonAlreadyProcessed = "already_processed"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	BillingCfg *config.BillingConfigHolder
	ChargeRepo chargedomain.Repository
	SysCfg     systemconfig.Service
	Notifier   email.Notifier
	Metrics    *obsmetrics.BillingMetrics `optional:"true"`
}

// Engine is the recurring billing core: it scans for due charges, sends
// reminders, and rolls each client forward to the next billing cycle. The
// daily sweep and the onboarding immediate path both funnel into
// processCharge, so the duplicate-prevention and reminder-flag semantics can
// never diverge between entry points.
type Engine struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	billingCfg *config.BillingConfigHolder
	chargeRepo chargedomain.Repository
	sysCfg     systemconfig.Service
	notifier   email.Notifier
	metrics    *obsmetrics.BillingMetrics
}

func New(p Params) (*Engine, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.BillingCfg == nil || p.ChargeRepo == nil || p.SysCfg == nil || p.Notifier == nil {
		return nil, ErrInvalidConfig
	}
	return &Engine{
		db:         p.DB,
		log:        p.Log.Named("billing.engine"),
		genID:      p.GenID,
		clock:      p.Clock,
		billingCfg: p.BillingCfg,
		chargeRepo: p.ChargeRepo,
		sysCfg:     p.SysCfg,
		notifier:   p.Notifier,
		metrics:    p.Metrics,
	}, nil
}

// Sweep processes every charge due on the current billing-timezone day.
// Re-running it for the same day is safe: charges already reminded are
// excluded from the scan, and next-charge creation is guarded by the
// per-client per-day uniqueness constraint. Per-charge failures are logged
// and never abort the rest of the batch.
func (e *Engine) Sweep(ctx context.Context) error {
	start := time.Now()
	e.metrics.IncSweepRun()
	defer func() {
		e.metrics.ObserveSweepDuration(time.Since(start))
	}()

	cfg := e.billingCfg.Get()
	now := e.nowIn(cfg.Timezone)
	today := chargedomain.DayOf(now)

	log := e.log.With(zap.String("day", today))
	log.Info("sweep started")

	var (
		sweepErr  error
		processed int
		afterID   snowflake.ID
	)
	for {
		if ctx.Err() != nil {
			return errors.Join(sweepErr, ctx.Err())
		}

		charges, err := e.fetchDueCharges(ctx, today, afterID, cfg.BatchSize)
		if err != nil {
			return errors.Join(sweepErr, err)
		}
		if len(charges) == 0 {
			break
		}
		e.metrics.AddChargesDue(len(charges))

		for _, work := range charges {
			afterID = work.ChargeID
			if err := e.processCharge(ctx, work); err != nil {
				sweepErr = errors.Join(sweepErr, err)
				log.Error("charge processing failed",
					zap.String("charge_id", work.ChargeID.String()),
					zap.String("client_id", work.ClientID.String()),
					zap.Error(err),
				)
				continue
			}
			processed++
		}
	}

	log.Info("sweep finished", zap.Int("processed", processed))
	return sweepErr
}

// ProcessChargeByID advances a single charge through the same path the sweep
// uses. This is the onboarding immediate-processing entry point.
func (e *Engine) ProcessChargeByID(ctx context.Context, chargeID snowflake.ID) error {
	work, err := e.fetchWorkCharge(ctx, chargeID)
	if err != nil {
		return err
	}
	if work == nil {
		return chargedomain.ErrNotFound
	}
	return e.processCharge(ctx, *work)
}

func (e *Engine) processCharge(ctx context.Context, work WorkCharge) error {
	log := e.log.With(
		zap.String("charge_id", work.ChargeID.String()),
		zap.String("client_id", work.ClientID.String()),
	)

	if work.ClientStatus == clientdomain.StatusCanceled {
		log.Info("skipping charge, client canceled")
		e.metrics.IncChargeSkipped(skipReasonClientCanceled)
		return nil
	}
	if work.ChargeStatus != chargedomain.StatusPending || work.ReminderSent {
		// Already paid, canceled, or reminded; another trigger got here first.
		e.metrics.IncChargeSkipped(skipReasonAlreadyProcessed)
		return nil
	}

	paymentKey, err := e.sysCfg.PaymentKey(ctx)
	if err != nil {
		e.metrics.IncChargeError(obsmetrics.ChargeErrorReasonConfig)
		return fmt.Errorf("charge %s: %w", work.ChargeID, err)
	}

	if err := e.notifier.SendChargeReminder(ctx, email.ReminderData{
		To:         work.ClientEmail,
		ClientName: work.ClientName,
		PlanName:   work.PlanName,
		Amount:     work.Amount,
		DueDate:    work.DueDate,
		PaymentKey: paymentKey,
		ChargeID:   work.ChargeID.String(),
	}); err != nil {
		// The flag stays false, so the next sweep retries this charge.
		e.metrics.IncChargeError(obsmetrics.ChargeErrorReasonTransport)
		return fmt.Errorf("charge %s: %w", work.ChargeID, err)
	}

	rows, err := e.chargeRepo.SetReminderSent(ctx, e.db, work.ChargeID)
	if err != nil {
		e.metrics.IncChargeError(obsmetrics.ChargeErrorReasonDB)
		return fmt.Errorf("charge %s: mark reminder sent: %w", work.ChargeID, err)
	}
	if rows == 0 {
		// A concurrent trigger flipped the flag between our scan and the
		// update; it owns the advancement too.
		e.metrics.IncChargeSkipped(skipReasonAlreadyProcessed)
		return nil
	}
	e.metrics.IncReminderSent()
	log.Info("reminder sent", zap.String("due_day", work.DueDay))

	return e.spawnNextCharge(ctx, work, log)
}

// spawnNextCharge creates the following cycle's charge, anchored on the due
// date of the charge being advanced rather than on the wall clock, so late
// sweeps never drift the billing cadence.
func (e *Engine) spawnNextCharge(ctx context.Context, work WorkCharge, log *zap.Logger) error {
	nextDue := recurrence.Next(work.DueDate, work.Recur)
	nextDay := chargedomain.DayOf(nextDue)

	exists, err := e.chargeRepo.ExistsForDay(ctx, e.db, work.ClientID, nextDay)
	if err != nil {
		e.metrics.IncChargeError(obsmetrics.ChargeErrorReasonDB)
		return fmt.Errorf("charge %s: existence check: %w", work.ChargeID, err)
	}
	if exists {
		e.metrics.IncDuplicateSpawn()
		log.Info("next charge already exists", zap.String("next_due_day", nextDay))
		return nil
	}

	now := time.Now().UTC()
	next := chargedomain.Charge{
		ID:           e.genID.Generate(),
		ClientID:     work.ClientID,
		Amount:       work.PlanPrice, // plan price at creation time, not the old charge amount
		DueDate:      nextDue,
		DueDay:       nextDay,
		Status:       chargedomain.StatusPending,
		ReminderSent: false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.chargeRepo.Insert(ctx, e.db, &next); err != nil {
		if db.IsDuplicateKeyErr(err) {
			// Lost the race to a concurrent trigger; the unique index on
			// (client_id, due_day) kept the ledger consistent.
			e.metrics.IncDuplicateSpawn()
			log.Info("next charge created concurrently", zap.String("next_due_day", nextDay))
			return nil
		}
		e.metrics.IncChargeError(obsmetrics.ChargeErrorReasonDB)
		return fmt.Errorf("charge %s: create next charge: %w", work.ChargeID, err)
	}

	e.metrics.IncChargeCreated()
	log.Info("next charge created",
		zap.String("next_charge_id", next.ID.String()),
		zap.String("next_due_day", nextDay),
	)
	return nil
}

func (e *Engine) nowIn(timezone string) time.Time {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		e.log.Warn("invalid billing timezone, falling back to UTC", zap.String("timezone", timezone))
		loc = time.UTC
	}
	return e.clock.Now().In(loc)
}
