package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cobranza/internal/client/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const clientColumns = `id, name, email, plan_id, payment_status, billing_start_date, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, client *domain.Client) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO clients (id, name, email, plan_id, payment_status, billing_start_date, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		client.ID,
		client.Name,
		client.Email,
		client.PlanID,
		string(client.PaymentStatus),
		client.BillingStartDate,
		client.CreatedAt,
		client.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, client *domain.Client) error {
	return db.WithContext(ctx).Exec(
		`UPDATE clients
		 SET name = ?, email = ?, plan_id = ?, payment_status = ?, updated_at = ?
		 WHERE id = ?`,
		client.Name,
		client.Email,
		client.PlanID,
		string(client.PaymentStatus),
		client.UpdatedAt,
		client.ID,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM clients WHERE id = ?`, id).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Client, error) {
	var client domain.Client
	err := db.WithContext(ctx).Raw(
		`SELECT `+clientColumns+` FROM clients WHERE id = ?`,
		id,
	).Scan(&client).Error
	if err != nil {
		return nil, err
	}
	if client.ID == 0 {
		return nil, nil
	}
	return &client, nil
}

func (r *repo) FindByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.Client, error) {
	var client domain.Client
	err := db.WithContext(ctx).Raw(
		`SELECT `+clientColumns+` FROM clients WHERE email = ?`,
		email,
	).Scan(&client).Error
	if err != nil {
		return nil, err
	}
	if client.ID == 0 {
		return nil, nil
	}
	return &client, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]domain.Client, error) {
	var clients []domain.Client
	err := db.WithContext(ctx).Raw(
		`SELECT ` + clientColumns + ` FROM clients ORDER BY created_at DESC, id DESC`,
	).Scan(&clients).Error
	if err != nil {
		return nil, err
	}
	return clients, nil
}

func (r *repo) ListByPlan(ctx context.Context, db *gorm.DB, planID snowflake.ID) ([]domain.Client, error) {
	var clients []domain.Client
	err := db.WithContext(ctx).Raw(
		`SELECT `+clientColumns+` FROM clients WHERE plan_id = ? ORDER BY created_at DESC, id DESC`,
		planID,
	).Scan(&clients).Error
	if err != nil {
		return nil, err
	}
	return clients, nil
}

func (r *repo) ListByStatus(ctx context.Context, db *gorm.DB, status domain.Status) ([]domain.Client, error) {
	var clients []domain.Client
	err := db.WithContext(ctx).Raw(
		`SELECT `+clientColumns+` FROM clients WHERE payment_status = ? ORDER BY created_at DESC, id DESC`,
		string(status),
	).Scan(&clients).Error
	if err != nil {
		return nil, err
	}
	return clients, nil
}
