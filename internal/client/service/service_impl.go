package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	chargedomain "github.com/smallbiznis/cobranza/internal/charge/domain"
	"github.com/smallbiznis/cobranza/internal/client/domain"
	"github.com/smallbiznis/cobranza/internal/clock"
	"github.com/smallbiznis/cobranza/internal/config"
	plandomain "github.com/smallbiznis/cobranza/internal/plan/domain"
	"github.com/smallbiznis/cobranza/internal/providers/email"
	"github.com/smallbiznis/cobranza/internal/systemconfig"
	"github.com/smallbiznis/cobranza/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	ChargeRepo chargedomain.Repository
	PlanSvc    plandomain.Service
	SysCfg     systemconfig.Service
	Notifier   email.Notifier
	Clock      clock.Clock
	BillingCfg *config.BillingConfigHolder
	Advancer   domain.ChargeAdvancer `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	chargeRepo chargedomain.Repository
	planSvc    plandomain.Service
	sysCfg     systemconfig.Service
	notifier   email.Notifier
	clock      clock.Clock
	billingCfg *config.BillingConfigHolder
	advancer   domain.ChargeAdvancer
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("client.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		chargeRepo: p.ChargeRepo,
		planSvc:    p.PlanSvc,
		sysCfg:     p.SysCfg,
		notifier:   p.Notifier,
		clock:      p.Clock,
		billingCfg: p.BillingCfg,
		advancer:   p.Advancer,
	}
}

func (s *Service) Onboard(ctx context.Context, req domain.OnboardClientRequest) (domain.OnboardClientResponse, error) {
	// Precondition order matters: payment key, then plan, then date.
	paymentKey, err := s.sysCfg.PaymentKey(ctx)
	if err != nil {
		return domain.OnboardClientResponse{}, err
	}

	plan, err := s.planSvc.GetByID(ctx, req.PlanID)
	if err != nil {
		return domain.OnboardClientResponse{}, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.OnboardClientResponse{}, domain.ErrInvalidName
	}
	emailAddr := strings.TrimSpace(req.Email)
	if emailAddr == "" || !strings.Contains(emailAddr, "@") {
		return domain.OnboardClientResponse{}, domain.ErrInvalidEmail
	}

	startDate, err := time.Parse(chargedomain.DayFormat, strings.TrimSpace(req.BillingStartDate))
	if err != nil {
		return domain.OnboardClientResponse{}, domain.ErrInvalidStartDate
	}
	startDay := chargedomain.DayOf(startDate)

	billingCfg := s.billingCfg.Get()
	now := s.nowIn(billingCfg.Timezone)
	today := chargedomain.DayOf(now)
	if startDay < today {
		return domain.OnboardClientResponse{}, domain.ErrPastStartDate
	}

	existing, err := s.repo.FindByEmail(ctx, s.db, emailAddr)
	if err != nil {
		return domain.OnboardClientResponse{}, err
	}
	if existing != nil {
		return domain.OnboardClientResponse{}, domain.ErrEmailTaken
	}

	created := time.Now().UTC()
	client := domain.Client{
		ID:               s.genID.Generate(),
		Name:             name,
		Email:            emailAddr,
		PlanID:           plan.ID,
		PaymentStatus:    domain.StatusActive,
		BillingStartDate: startDate,
		CreatedAt:        created,
		UpdatedAt:        created,
	}
	firstCharge := chargedomain.Charge{
		ID:           s.genID.Generate(),
		ClientID:     client.ID,
		Amount:       plan.Price,
		DueDate:      startDate,
		DueDay:       startDay,
		Status:       chargedomain.StatusPending,
		ReminderSent: false,
		CreatedAt:    created,
		UpdatedAt:    created,
	}

	// A client must never exist without its first charge: both rows commit or
	// neither does.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &client); err != nil {
			return err
		}
		return s.chargeRepo.Insert(ctx, tx, &firstCharge)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.OnboardClientResponse{}, domain.ErrEmailTaken
		}
		return domain.OnboardClientResponse{}, err
	}

	// Post-commit, best-effort. A failed welcome email never rolls back the
	// client.
	if err := s.notifier.SendWelcome(ctx, email.WelcomeData{
		To:               client.Email,
		ClientName:       client.Name,
		PlanName:         plan.Name,
		PlanPrice:        plan.Price,
		Recurrence:       string(plan.Recurrence),
		PaymentKey:       paymentKey,
		BillingStartDate: client.BillingStartDate,
	}); err != nil {
		s.log.Warn("welcome email failed",
			zap.String("client_id", client.ID.String()),
			zap.Error(err),
		)
	}

	// Same-day signups after the daily cutoff hour would otherwise wait until
	// tomorrow's sweep; push the first charge through the shared engine path.
	if startDay == today && now.Hour() >= billingCfg.Hour && s.advancer != nil {
		if err := s.advancer.ProcessChargeByID(ctx, firstCharge.ID); err != nil {
			s.log.Warn("immediate charge processing failed",
				zap.String("client_id", client.ID.String()),
				zap.String("charge_id", firstCharge.ID.String()),
				zap.Error(err),
			)
		}
	}

	return domain.OnboardClientResponse{Client: client, FirstChargeID: firstCharge.ID}, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (domain.Client, error) {
	client, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Client{}, err
	}
	if client == nil {
		return domain.Client{}, domain.ErrNotFound
	}
	return *client, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Client, error) {
	return s.repo.List(ctx, s.db)
}

func (s *Service) ListByPlan(ctx context.Context, planID snowflake.ID) ([]domain.Client, error) {
	return s.repo.ListByPlan(ctx, s.db, planID)
}

func (s *Service) ListByStatus(ctx context.Context, status domain.Status) ([]domain.Client, error) {
	if status != domain.StatusActive && status != domain.StatusCanceled {
		return nil, domain.ErrInvalidStatus
	}
	return s.repo.ListByStatus(ctx, s.db, status)
}

func (s *Service) Update(ctx context.Context, req domain.UpdateClientRequest) (domain.Client, error) {
	client, err := s.GetByID(ctx, req.ID)
	if err != nil {
		return domain.Client{}, err
	}

	if name := strings.TrimSpace(req.Name); name != "" {
		client.Name = name
	}
	if emailAddr := strings.TrimSpace(req.Email); emailAddr != "" {
		if !strings.Contains(emailAddr, "@") {
			return domain.Client{}, domain.ErrInvalidEmail
		}
		client.Email = emailAddr
	}
	if req.PlanID != 0 {
		if _, err := s.planSvc.GetByID(ctx, req.PlanID); err != nil {
			return domain.Client{}, err
		}
		client.PlanID = req.PlanID
	}
	if req.PaymentStatus != "" {
		if req.PaymentStatus != domain.StatusActive && req.PaymentStatus != domain.StatusCanceled {
			return domain.Client{}, domain.ErrInvalidStatus
		}
		client.PaymentStatus = req.PaymentStatus
	}
	client.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, s.db, &client); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Client{}, domain.ErrEmailTaken
		}
		return domain.Client{}, err
	}
	return client, nil
}

func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	if _, err := s.GetByID(ctx, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, s.db, id)
}

func (s *Service) nowIn(timezone string) time.Time {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		s.log.Warn("invalid billing timezone, falling back to UTC", zap.String("timezone", timezone))
		loc = time.UTC
	}
	return s.clock.Now().In(loc)
}
