package billing

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	chargedomain "github.com/smallbiznis/cobranza/internal/charge/domain"
	clientdomain "github.com/smallbiznis/cobranza/internal/client/domain"
	"github.com/smallbiznis/cobranza/internal/recurrence"
)

// WorkCharge is a due charge joined with the owning client and its plan, the
// unit the engine advances.
type WorkCharge struct {
	ChargeID     snowflake.ID
	ClientID     snowflake.ID
	Amount       int64
	DueDate      time.Time
	DueDay       string
	ChargeStatus chargedomain.Status
	ReminderSent bool

	ClientName   string
	ClientEmail  string
	ClientStatus clientdomain.Status

	PlanID    snowflake.ID
	PlanName  string
	PlanPrice int64
	Recur     recurrence.Period
}

const workChargeColumns = `
	c.id AS charge_id, c.client_id, c.amount, c.due_date, c.due_day,
	c.status AS charge_status, c.reminder_sent,
	cl.name AS client_name, cl.email AS client_email, cl.payment_status AS client_status,
	p.id AS plan_id, p.name AS plan_name, p.price AS plan_price, p.recurrence AS recur`

func (e *Engine) fetchDueCharges(ctx context.Context, day string, afterID snowflake.ID, limit int) ([]WorkCharge, error) {
	var charges []WorkCharge
	err := e.db.WithContext(ctx).Raw(
		`SELECT `+workChargeColumns+`
		 FROM charges c
		 JOIN clients cl ON cl.id = c.client_id
		 JOIN plans p ON p.id = cl.plan_id
		 WHERE c.due_day = ? AND c.status = ? AND c.reminder_sent = ? AND c.id > ?
		 ORDER BY c.id
		 LIMIT ?`,
		day,
		string(chargedomain.StatusPending),
		false,
		afterID,
		limit,
	).Scan(&charges).Error
	if err != nil {
		return nil, err
	}
	return charges, nil
}

func (e *Engine) fetchWorkCharge(ctx context.Context, chargeID snowflake.ID) (*WorkCharge, error) {
	var charge WorkCharge
	err := e.db.WithContext(ctx).Raw(
		`SELECT `+workChargeColumns+`
		 FROM charges c
		 JOIN clients cl ON cl.id = c.client_id
		 JOIN plans p ON p.id = cl.plan_id
		 WHERE c.id = ?`,
		chargeID,
	).Scan(&charge).Error
	if err != nil {
		return nil, err
	}
	if charge.ChargeID == 0 {
		return nil, nil
	}
	return &charge, nil
}
