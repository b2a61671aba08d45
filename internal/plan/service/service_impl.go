package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cobranza/internal/plan/domain"
	"github.com/smallbiznis/cobranza/internal/recurrence"
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
		log:   p.Log.Named("plan.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreatePlanRequest) (domain.Plan, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Plan{}, domain.ErrInvalidName
	}
	if req.Price <= 0 {
		return domain.Plan{}, domain.ErrInvalidPrice
	}
	period, err := recurrence.Parse(req.Recurrence)
	if err != nil {
		return domain.Plan{}, domain.ErrInvalidRecurrence
	}

	existing, err := s.repo.FindByName(ctx, s.db, name)
	if err != nil {
		return domain.Plan{}, err
	}
	if existing != nil {
		return domain.Plan{}, domain.ErrNameTaken
	}

	now := time.Now().UTC()
	plan := domain.Plan{
		ID:         s.genID.Generate(),
		Name:       name,
		Price:      req.Price,
		Recurrence: period,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.repo.Insert(ctx, s.db, &plan); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Plan{}, domain.ErrNameTaken
		}
		return domain.Plan{}, err
	}

	return plan, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Plan, error) {
	return s.repo.List(ctx, s.db)
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (domain.Plan, error) {
	plan, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Plan{}, err
	}
	if plan == nil {
		return domain.Plan{}, domain.ErrNotFound
	}
	return *plan, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdatePlanRequest) (domain.Plan, error) {
	plan, err := s.GetByID(ctx, req.ID)
	if err != nil {
		return domain.Plan{}, err
	}

	if name := strings.TrimSpace(req.Name); name != "" && name != plan.Name {
		existing, err := s.repo.FindByName(ctx, s.db, name)
		if err != nil {
			return domain.Plan{}, err
		}
		if existing != nil {
			return domain.Plan{}, domain.ErrNameTaken
		}
		plan.Name = name
	}
	if req.Price != 0 {
		if req.Price < 0 {
			return domain.Plan{}, domain.ErrInvalidPrice
		}
		plan.Price = req.Price
	}
	if req.Recurrence != "" {
		period, err := recurrence.Parse(req.Recurrence)
		if err != nil {
			return domain.Plan{}, domain.ErrInvalidRecurrence
		}
		plan.Recurrence = period
	}
	plan.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, s.db, &plan); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Plan{}, domain.ErrNameTaken
		}
		return domain.Plan{}, err
	}
	return plan, nil
}

func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	if _, err := s.GetByID(ctx, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, s.db, id)
}

func (s *Service) ClientCount(ctx context.Context, id snowflake.ID) (int64, error) {
	if _, err := s.GetByID(ctx, id); err != nil {
		return 0, err
	}
	return s.repo.CountClients(ctx, s.db, id)
}
