package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Status is the client payment-status tag. A CANCELED client never has a new
// charge generated for it.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusCanceled Status = "CANCELED"
)

// Client is a billed subscriber. BillingStartDate anchors the very first
// charge; it is stored as midnight UTC of the intended calendar day.
type Client struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	Name             string       `gorm:"not null" json:"name"`
	Email            string       `gorm:"not null;uniqueIndex" json:"email"`
	PlanID           snowflake.ID `gorm:"not null;index" json:"plan_id"`
	PaymentStatus    Status       `gorm:"type:text;not null;default:'ACTIVE'" json:"payment_status"`
	BillingStartDate time.Time    `gorm:"not null" json:"billing_start_date"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Client) TableName() string { return "clients" }
