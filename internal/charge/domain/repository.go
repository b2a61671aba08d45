package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, charge *Charge) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Charge, error)
	List(ctx context.Context, db *gorm.DB) ([]Charge, error)
	ListByClient(ctx context.Context, db *gorm.DB, clientID snowflake.ID) ([]Charge, error)

	FindByStatus(ctx context.Context, db *gorm.DB, status Status) ([]Charge, error)

	// FindOverdue returns PENDING charges whose due day fell strictly before
	// the given calendar day. Terminal charges are never overdue.
	FindOverdue(ctx context.Context, db *gorm.DB, day string) ([]Charge, error)

	// ExistsForDay reports whether any charge, regardless of status, exists
	// for the client on the given calendar day.
	ExistsForDay(ctx context.Context, db *gorm.DB, clientID snowflake.ID, day string) (bool, error)

	SetReminderSent(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error)
	SetStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status) (int64, error)
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
}
