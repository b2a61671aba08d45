package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cobranza/internal/charge/domain"
	"github.com/smallbiznis/cobranza/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("charge.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateChargeRequest) (domain.Charge, error) {
	if req.Amount <= 0 {
		return domain.Charge{}, domain.ErrInvalidAmount
	}

	now := time.Now().UTC()
	charge := domain.Charge{
		ID:           s.genID.Generate(),
		ClientID:     req.ClientID,
		Amount:       req.Amount,
		DueDate:      req.DueDate,
		DueDay:       domain.DayOf(req.DueDate),
		Status:       domain.StatusPending,
		ReminderSent: false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Insert(ctx, s.db, &charge); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Charge{}, domain.ErrDuplicateDay
		}
		return domain.Charge{}, err
	}
	return charge, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (domain.Charge, error) {
	charge, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Charge{}, err
	}
	if charge == nil {
		return domain.Charge{}, domain.ErrNotFound
	}
	return *charge, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Charge, error) {
	return s.repo.List(ctx, s.db)
}

func (s *Service) ListByClient(ctx context.Context, clientID snowflake.ID) ([]domain.Charge, error) {
	return s.repo.ListByClient(ctx, s.db, clientID)
}

func (s *Service) ListByStatus(ctx context.Context, status domain.Status) ([]domain.Charge, error) {
	if !status.Valid() {
		return nil, domain.ErrInvalidStatus
	}
	return s.repo.FindByStatus(ctx, s.db, status)
}

func (s *Service) ListOverdue(ctx context.Context, asOf time.Time) ([]domain.Charge, error) {
	return s.repo.FindOverdue(ctx, s.db, domain.DayOf(asOf))
}

// MarkReminderSent flips the reminder flag. Allowed regardless of status; the
// flag is monotonic and never reset.
func (s *Service) MarkReminderSent(ctx context.Context, id snowflake.ID) error {
	if _, err := s.GetByID(ctx, id); err != nil {
		return err
	}
	_, err := s.repo.SetReminderSent(ctx, s.db, id)
	return err
}

func (s *Service) MarkPaid(ctx context.Context, id snowflake.ID) error {
	return s.transition(ctx, id, domain.StatusPaid)
}

func (s *Service) MarkCanceled(ctx context.Context, id snowflake.ID) error {
	return s.transition(ctx, id, domain.StatusCanceled)
}

func (s *Service) transition(ctx context.Context, id snowflake.ID, status domain.Status) error {
	charge, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if charge.Status.Terminal() {
		// Terminal transitions are idempotent.
		return nil
	}
	_, err = s.repo.SetStatus(ctx, s.db, id, status)
	return err
}

func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	if _, err := s.GetByID(ctx, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, s.db, id)
}
