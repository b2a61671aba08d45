package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, client *Client) error
	Update(ctx context.Context, db *gorm.DB, client *Client) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Client, error)
	FindByEmail(ctx context.Context, db *gorm.DB, email string) (*Client, error)
	List(ctx context.Context, db *gorm.DB) ([]Client, error)
	ListByPlan(ctx context.Context, db *gorm.DB, planID snowflake.ID) ([]Client, error)
	ListByStatus(ctx context.Context, db *gorm.DB, status Status) ([]Client, error)
}
