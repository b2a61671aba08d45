package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cobranza/internal/recurrence"
)

// Plan is a pricing plan. Price is in minor units (cents); charges copy it at
// creation time, so later edits never alter issued charges.
type Plan struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	Name       string            `gorm:"not null;uniqueIndex" json:"name"`
	Price      int64             `gorm:"not null" json:"price"`
	Recurrence recurrence.Period `gorm:"type:text;not null" json:"recurrence"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Plan) TableName() string { return "plans" }
