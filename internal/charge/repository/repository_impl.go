package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cobranza/internal/charge/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const chargeColumns = `id, client_id, amount, due_date, due_day, status, reminder_sent, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, charge *domain.Charge) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO charges (id, client_id, amount, due_date, due_day, status, reminder_sent, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		charge.ID,
		charge.ClientID,
		charge.Amount,
		charge.DueDate,
		charge.DueDay,
		string(charge.Status),
		charge.ReminderSent,
		charge.CreatedAt,
		charge.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Charge, error) {
	var charge domain.Charge
	err := db.WithContext(ctx).Raw(
		`SELECT `+chargeColumns+` FROM charges WHERE id = ?`,
		id,
	).Scan(&charge).Error
	if err != nil {
		return nil, err
	}
	if charge.ID == 0 {
		return nil, nil
	}
	return &charge, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]domain.Charge, error) {
	var charges []domain.Charge
	err := db.WithContext(ctx).Raw(
		`SELECT ` + chargeColumns + ` FROM charges ORDER BY due_date DESC, id DESC`,
	).Scan(&charges).Error
	if err != nil {
		return nil, err
	}
	return charges, nil
}

func (r *repo) ListByClient(ctx context.Context, db *gorm.DB, clientID snowflake.ID) ([]domain.Charge, error) {
	var charges []domain.Charge
	err := db.WithContext(ctx).Raw(
		`SELECT `+chargeColumns+` FROM charges WHERE client_id = ? ORDER BY due_date DESC, id DESC`,
		clientID,
	).Scan(&charges).Error
	if err != nil {
		return nil, err
	}
	return charges, nil
}

func (r *repo) FindByStatus(ctx context.Context, db *gorm.DB, status domain.Status) ([]domain.Charge, error) {
	var charges []domain.Charge
	err := db.WithContext(ctx).Raw(
		`SELECT `+chargeColumns+` FROM charges WHERE status = ? ORDER BY due_date DESC, id DESC`,
		string(status),
	).Scan(&charges).Error
	if err != nil {
		return nil, err
	}
	return charges, nil
}

func (r *repo) FindOverdue(ctx context.Context, db *gorm.DB, day string) ([]domain.Charge, error) {
	var charges []domain.Charge
	err := db.WithContext(ctx).Raw(
		`SELECT `+chargeColumns+`
		 FROM charges
		 WHERE status = ? AND due_day < ?
		 ORDER BY due_date, id`,
		string(domain.StatusPending),
		day,
	).Scan(&charges).Error
	if err != nil {
		return nil, err
	}
	return charges, nil
}

func (r *repo) ExistsForDay(ctx context.Context, db *gorm.DB, clientID snowflake.ID, day string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM charges WHERE client_id = ? AND due_day = ?`,
		clientID,
		day,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) SetReminderSent(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error) {
	// The reminder_sent guard makes concurrent triggers race on this update:
	// exactly one caller observes a row affected and proceeds to spawn the
	// next charge.
	result := db.WithContext(ctx).Exec(
		`UPDATE charges SET reminder_sent = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND reminder_sent = ?`,
		true,
		id,
		false,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) SetStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.Status) (int64, error) {
	// Only PENDING charges transition; re-applying a terminal status is a no-op
	// handled by the service layer.
	result := db.WithContext(ctx).Exec(
		`UPDATE charges SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status = ?`,
		string(status),
		id,
		string(domain.StatusPending),
	)
	return result.RowsAffected, result.Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM charges WHERE id = ?`, id).Error
}
