package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CreatePlanRequest struct {
	Name       string
	Price      int64
	Recurrence string
}

type UpdatePlanRequest struct {
	ID         snowflake.ID
	Name       string
	Price      int64
	Recurrence string
}

type Service interface {
	Create(context.Context, CreatePlanRequest) (Plan, error)
	List(context.Context) ([]Plan, error)
	GetByID(context.Context, snowflake.ID) (Plan, error)
	Update(context.Context, UpdatePlanRequest) (Plan, error)
	Delete(context.Context, snowflake.ID) error
	ClientCount(context.Context, snowflake.ID) (int64, error)
}

var (
	ErrInvalidName       = errors.New("invalid_name")
	ErrInvalidPrice      = errors.New("invalid_price")
	ErrInvalidRecurrence = errors.New("invalid_recurrence")
	ErrNameTaken         = errors.New("plan_name_taken")
	ErrNotFound          = errors.New("plan_not_found")
)
