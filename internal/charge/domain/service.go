package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type CreateChargeRequest struct {
	ClientID snowflake.ID
	DueDate  time.Time
	Amount   int64
}

// Service is the charge ledger: it owns creation and one-way status
// transitions. Terminal transitions are idempotent no-ops when the charge is
// already in that terminal state.
type Service interface {
	Create(context.Context, CreateChargeRequest) (Charge, error)
	GetByID(context.Context, snowflake.ID) (Charge, error)
	List(context.Context) ([]Charge, error)
	ListByClient(context.Context, snowflake.ID) ([]Charge, error)
	ListByStatus(context.Context, Status) ([]Charge, error)

	// ListOverdue returns PENDING charges whose due date fell strictly before
	// the calendar day of asOf.
	ListOverdue(ctx context.Context, asOf time.Time) ([]Charge, error)
	MarkReminderSent(context.Context, snowflake.ID) error
	MarkPaid(context.Context, snowflake.ID) error
	MarkCanceled(context.Context, snowflake.ID) error
	Delete(context.Context, snowflake.ID) error
}

var (
	ErrNotFound      = errors.New("charge_not_found")
	ErrInvalidAmount = errors.New("invalid_amount")
	ErrInvalidStatus = errors.New("invalid_status")
	ErrDuplicateDay  = errors.New("charge_exists_for_day")
)
