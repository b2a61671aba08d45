package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cobranza/internal/plan/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, plan *domain.Plan) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO plans (id, name, price, recurrence, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		plan.ID,
		plan.Name,
		plan.Price,
		string(plan.Recurrence),
		plan.CreatedAt,
		plan.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, plan *domain.Plan) error {
	return db.WithContext(ctx).Exec(
		`UPDATE plans
		 SET name = ?, price = ?, recurrence = ?, updated_at = ?
		 WHERE id = ?`,
		plan.Name,
		plan.Price,
		string(plan.Recurrence),
		plan.UpdatedAt,
		plan.ID,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM plans WHERE id = ?`, id).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Plan, error) {
	var plan domain.Plan
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, price, recurrence, created_at, updated_at
		 FROM plans WHERE id = ?`,
		id,
	).Scan(&plan).Error
	if err != nil {
		return nil, err
	}
	if plan.ID == 0 {
		return nil, nil
	}
	return &plan, nil
}

func (r *repo) FindByName(ctx context.Context, db *gorm.DB, name string) (*domain.Plan, error) {
	var plan domain.Plan
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, price, recurrence, created_at, updated_at
		 FROM plans WHERE name = ?`,
		name,
	).Scan(&plan).Error
	if err != nil {
		return nil, err
	}
	if plan.ID == 0 {
		return nil, nil
	}
	return &plan, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]domain.Plan, error) {
	var plans []domain.Plan
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, price, recurrence, created_at, updated_at
		 FROM plans
		 ORDER BY created_at DESC, id DESC`,
	).Scan(&plans).Error
	if err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *repo) CountClients(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM clients WHERE plan_id = ?`,
		id,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
