package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type OnboardClientRequest struct {
	Name             string
	Email            string
	PlanID           snowflake.ID
	BillingStartDate string // calendar day, "2006-01-02"
}

type UpdateClientRequest struct {
	ID            snowflake.ID
	Name          string
	Email         string
	PlanID        snowflake.ID
	PaymentStatus Status
}

type OnboardClientResponse struct {
	Client        Client
	FirstChargeID snowflake.ID
}

type Service interface {
	// Onboard creates a client and its first charge in one transaction, then
	// best-effort sends a welcome notification and, when the start date is
	// today and the billing cutoff hour has passed, advances the first charge
	// through the billing engine immediately.
	Onboard(context.Context, OnboardClientRequest) (OnboardClientResponse, error)

	GetByID(context.Context, snowflake.ID) (Client, error)
	List(context.Context) ([]Client, error)
	ListByPlan(context.Context, snowflake.ID) ([]Client, error)
	ListByStatus(context.Context, Status) ([]Client, error)
	Update(context.Context, UpdateClientRequest) (Client, error)
	Delete(context.Context, snowflake.ID) error
}

// ChargeAdvancer is the billing engine entry point the onboarding immediate
// path reuses. It must be the same code path as the daily sweep.
type ChargeAdvancer interface {
	ProcessChargeByID(ctx context.Context, chargeID snowflake.ID) error
}

var (
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidEmail     = errors.New("invalid_email")
	ErrInvalidStartDate = errors.New("invalid_billing_start_date")
	ErrPastStartDate    = errors.New("billing_start_date_in_past")
	ErrInvalidStatus    = errors.New("invalid_payment_status")
	ErrEmailTaken       = errors.New("email_taken")
	ErrNotFound         = errors.New("client_not_found")
)
