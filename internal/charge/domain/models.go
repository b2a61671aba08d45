package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Status is the charge payment state. PAID and CANCELED are terminal.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusPaid     Status = "PAID"
	StatusCanceled Status = "CANCELED"
)

// DayFormat renders a calendar day key. Charges carry a derived due_day column
// in this format; the unique index on (client_id, due_day) is what enforces
// at most one charge per client per calendar day.
const DayFormat = "2006-01-02"

// DayOf returns the calendar-day key of t as stored alongside each charge.
func DayOf(t time.Time) string { return t.Format(DayFormat) }

// Charge is a single billing obligation for one client on one due date.
// Amount is copied from the plan price at creation time, in minor units.
type Charge struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	ClientID     snowflake.ID `gorm:"not null;index" json:"client_id"`
	Amount       int64        `gorm:"not null" json:"amount"`
	DueDate      time.Time    `gorm:"not null" json:"due_date"`
	DueDay       string       `gorm:"type:text;not null;uniqueIndex:ux_charges_client_due_day,priority:2" json:"due_day"`
	Status       Status       `gorm:"type:text;not null;default:'PENDING'" json:"status"`
	ReminderSent bool         `gorm:"not null;default:false" json:"reminder_sent"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Charge) TableName() string { return "charges" }

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusCanceled
}

// Valid reports whether s is one of the known payment states.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusPaid || s == StatusCanceled
}
