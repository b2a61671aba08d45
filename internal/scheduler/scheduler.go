package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/cobranza/internal/billing"
	"github.com/smallbiznis/cobranza/internal/clock"
	"github.com/smallbiznis/cobranza/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler missing required dependency")

// pollInterval bounds how late after the configured hour the daily sweep can
// start. A minute of slack is irrelevant against a calendar-day cadence.
const pollInterval = time.Minute

type Params struct {
	fx.In

	Log        *zap.Logger
	Engine     *billing.Engine
	Clock      clock.Clock
	BillingCfg *config.BillingConfigHolder
}

// Scheduler fires the billing sweep once per calendar day, at the configured
// hour in the configured billing timezone. The sweep itself is idempotent, so
// a restart mid-day at worst re-runs it harmlessly.
type Scheduler struct {
	log        *zap.Logger
	engine     *billing.Engine
	clock      clock.Clock
	billingCfg *config.BillingConfigHolder

	lastRunDay string
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Engine == nil || p.Clock == nil || p.BillingCfg == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		engine:     p.Engine,
		clock:      p.Clock,
		billingCfg: p.BillingCfg,
	}, nil
}

// RunOnce executes a single sweep regardless of the time of day.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.engine.Sweep(ctx)
}

// Tick runs the sweep if the configured hour has been reached and no sweep
// has run yet for the current billing-timezone day. It returns whether a
// sweep was attempted.
func (s *Scheduler) Tick(ctx context.Context) (bool, error) {
	cfg := s.billingCfg.Get()
	now := s.nowIn(cfg.Timezone)
	today := now.Format("2006-01-02")

	if now.Hour() < cfg.Hour || s.lastRunDay == today {
		return false, nil
	}

	s.lastRunDay = today
	s.log.Info("daily sweep triggered",
		zap.String("day", today),
		zap.Int("hour", cfg.Hour),
		zap.String("timezone", cfg.Timezone),
	)
	return true, s.RunOnce(ctx)
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if ran, err := s.Tick(ctx); ran && err != nil {
			s.log.Warn("daily sweep finished with errors", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) nowIn(timezone string) time.Time {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		s.log.Warn("invalid billing timezone, falling back to UTC", zap.String("timezone", timezone))
		loc = time.UTC
	}
	return s.clock.Now().In(loc)
}
