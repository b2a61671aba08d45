package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	chargedomain "github.com/smallbiznis/cobranza/internal/charge/domain"
	chargerepo "github.com/smallbiznis/cobranza/internal/charge/repository"
	"github.com/smallbiznis/cobranza/internal/client/domain"
	clientrepo "github.com/smallbiznis/cobranza/internal/client/repository"
	"github.com/smallbiznis/cobranza/internal/clock"
	"github.com/smallbiznis/cobranza/internal/config"
	plandomain "github.com/smallbiznis/cobranza/internal/plan/domain"
	planrepo "github.com/smallbiznis/cobranza/internal/plan/repository"
	planservice "github.com/smallbiznis/cobranza/internal/plan/service"
	"github.com/smallbiznis/cobranza/internal/providers/email"
	"github.com/smallbiznis/cobranza/internal/systemconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recordingNotifier struct {
	welcomes  []email.WelcomeData
	reminders []email.ReminderData
}

func (n *recordingNotifier) SendChargeReminder(ctx context.Context, data email.ReminderData) error {
	n.reminders = append(n.reminders, data)
	return nil
}

func (n *recordingNotifier) SendWelcome(ctx context.Context, data email.WelcomeData) error {
	n.welcomes = append(n.welcomes, data)
	return nil
}

type recordingAdvancer struct {
	processed []snowflake.ID
}

func (a *recordingAdvancer) ProcessChargeByID(ctx context.Context, chargeID snowflake.ID) error {
	a.processed = append(a.processed, chargeID)
	return nil
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	stmts := []string{
		`CREATE TABLE plans (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			price INTEGER NOT NULL,
			recurrence TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE clients (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			plan_id INTEGER NOT NULL,
			payment_status TEXT NOT NULL DEFAULT 'ACTIVE',
			billing_start_date DATETIME NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE charges (
			id INTEGER PRIMARY KEY,
			client_id INTEGER NOT NULL,
			amount INTEGER NOT NULL,
			due_date DATETIME NOT NULL,
			due_day TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'PENDING',
			reminder_sent BOOLEAN NOT NULL DEFAULT FALSE,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_charges_client_due_day ON charges (client_id, due_day)`,
		`CREATE TABLE system_config (
			id TEXT PRIMARY KEY,
			payment_key TEXT NOT NULL DEFAULT '',
			updated_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

type fixture struct {
	db       *gorm.DB
	svc      domain.Service
	planSvc  plandomain.Service
	sysCfg   systemconfig.Service
	notifier *recordingNotifier
	advancer *recordingAdvancer
	fakeNow  *clock.FakeClock
	node     *snowflake.Node
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()

	db := openTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fakeNow := clock.NewFakeClock(now)
	notifier := &recordingNotifier{}
	advancer := &recordingAdvancer{}
	sysCfg := systemconfig.New(systemconfig.Params{DB: db, Log: zap.NewNop()})
	planSvc := planservice.New(planservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  planrepo.Provide(),
	})

	svc := New(Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Repo:       clientrepo.Provide(),
		ChargeRepo: chargerepo.Provide(),
		PlanSvc:    planSvc,
		SysCfg:     sysCfg,
		Notifier:   notifier,
		Clock:      fakeNow,
		BillingCfg: config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
		Advancer:   advancer,
	})

	return &fixture{
		db:       db,
		svc:      svc,
		planSvc:  planSvc,
		sysCfg:   sysCfg,
		notifier: notifier,
		advancer: advancer,
		fakeNow:  fakeNow,
		node:     node,
	}
}

func (f *fixture) configurePaymentKey(t *testing.T) {
	t.Helper()
	_, err := f.sysCfg.UpdatePaymentKey(context.Background(), "pix-key-123")
	require.NoError(t, err)
}

func (f *fixture) createPlan(t *testing.T) plandomain.Plan {
	t.Helper()
	plan, err := f.planSvc.Create(context.Background(), plandomain.CreatePlanRequest{
		Name:       "Premium",
		Price:      10000,
		Recurrence: "MONTHLY",
	})
	require.NoError(t, err)
	return plan
}

func (f *fixture) countRows(t *testing.T, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(1) FROM `+table).Scan(&n).Error)
	return n
}

// 11:00 America/Sao_Paulo on 2024-01-15, after the 10:00 cutoff.
var afterCutoff = time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC)

// 09:00 America/Sao_Paulo on 2024-01-15, before the cutoff.
var beforeCutoff = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

func TestOnboardCreatesClientAndFirstCharge(t *testing.T) {
	f := newFixture(t, afterCutoff)
	f.configurePaymentKey(t)
	plan := f.createPlan(t)

	resp, err := f.svc.Onboard(context.Background(), domain.OnboardClientRequest{
		Name:             "Maria",
		Email:            "maria@example.com",
		PlanID:           plan.ID,
		BillingStartDate: "2024-02-01",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusActive, resp.Client.PaymentStatus)
	assert.NotZero(t, resp.FirstChargeID)

	var charge chargedomain.Charge
	require.NoError(t, f.db.Raw(
		`SELECT id, client_id, amount, due_date, due_day, status, reminder_sent FROM charges WHERE id = ?`,
		resp.FirstChargeID,
	).Scan(&charge).Error)
	assert.Equal(t, resp.Client.ID, charge.ClientID)
	assert.Equal(t, int64(10000), charge.Amount)
	assert.Equal(t, "2024-02-01", charge.DueDay)
	assert.Equal(t, chargedomain.StatusPending, charge.Status)

	require.Len(t, f.notifier.welcomes, 1)
	assert.Equal(t, "maria@example.com", f.notifier.welcomes[0].To)

	// Start date is in the future, the immediate path must stay quiet.
	assert.Empty(t, f.advancer.processed)
}

func TestOnboardSameDayAfterCutoffProcessesImmediately(t *testing.T) {
	f := newFixture(t, afterCutoff)
	f.configurePaymentKey(t)
	plan := f.createPlan(t)

	resp, err := f.svc.Onboard(context.Background(), domain.OnboardClientRequest{
		Name:             "Maria",
		Email:            "maria@example.com",
		PlanID:           plan.ID,
		BillingStartDate: "2024-01-15",
	})
	require.NoError(t, err)

	require.Len(t, f.advancer.processed, 1)
	assert.Equal(t, resp.FirstChargeID, f.advancer.processed[0])
}

func TestOnboardSameDayBeforeCutoffWaitsForSweep(t *testing.T) {
	f := newFixture(t, beforeCutoff)
	f.configurePaymentKey(t)
	plan := f.createPlan(t)

	_, err := f.svc.Onboard(context.Background(), domain.OnboardClientRequest{
		Name:             "Maria",
		Email:            "maria@example.com",
		PlanID:           plan.ID,
		BillingStartDate: "2024-01-15",
	})
	require.NoError(t, err)

	assert.Empty(t, f.advancer.processed)
}

func TestOnboardValidation(t *testing.T) {
	f := newFixture(t, afterCutoff)
	f.configurePaymentKey(t)
	plan := f.createPlan(t)

	cases := []struct {
		name    string
		req     domain.OnboardClientRequest
		wantErr error
	}{
		{
			name:    "empty name",
			req:     domain.OnboardClientRequest{Name: "  ", Email: "a@b.com", PlanID: plan.ID, BillingStartDate: "2024-02-01"},
			wantErr: domain.ErrInvalidName,
		},
		{
			name:    "bad email",
			req:     domain.OnboardClientRequest{Name: "Maria", Email: "not-an-email", PlanID: plan.ID, BillingStartDate: "2024-02-01"},
			wantErr: domain.ErrInvalidEmail,
		},
		{
			name:    "bad date",
			req:     domain.OnboardClientRequest{Name: "Maria", Email: "a@b.com", PlanID: plan.ID, BillingStartDate: "15/01/2024"},
			wantErr: domain.ErrInvalidStartDate,
		},
		{
			name:    "past date",
			req:     domain.OnboardClientRequest{Name: "Maria", Email: "a@b.com", PlanID: plan.ID, BillingStartDate: "2024-01-14"},
			wantErr: domain.ErrPastStartDate,
		},
		{
			name:    "unknown plan",
			req:     domain.OnboardClientRequest{Name: "Maria", Email: "a@b.com", PlanID: f.node.Generate(), BillingStartDate: "2024-02-01"},
			wantErr: plandomain.ErrNotFound,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Onboard(context.Background(), tc.req)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	// Nothing got persisted along the way.
	assert.EqualValues(t, 0, f.countRows(t, "clients"))
	assert.EqualValues(t, 0, f.countRows(t, "charges"))
}

func TestOnboardRequiresPaymentKey(t *testing.T) {
	f := newFixture(t, afterCutoff)
	plan := f.createPlan(t)

	_, err := f.svc.Onboard(context.Background(), domain.OnboardClientRequest{
		Name:             "Maria",
		Email:            "maria@example.com",
		PlanID:           plan.ID,
		BillingStartDate: "2024-02-01",
	})
	assert.ErrorIs(t, err, systemconfig.ErrPaymentKeyNotConfigured)
	assert.EqualValues(t, 0, f.countRows(t, "clients"))
}

func TestOnboardRejectsDuplicateEmail(t *testing.T) {
	f := newFixture(t, afterCutoff)
	f.configurePaymentKey(t)
	plan := f.createPlan(t)

	req := domain.OnboardClientRequest{
		Name:             "Maria",
		Email:            "maria@example.com",
		PlanID:           plan.ID,
		BillingStartDate: "2024-02-01",
	}
	_, err := f.svc.Onboard(context.Background(), req)
	require.NoError(t, err)

	req.BillingStartDate = "2024-03-01"
	_, err = f.svc.Onboard(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrEmailTaken)

	assert.EqualValues(t, 1, f.countRows(t, "clients"))
	assert.EqualValues(t, 1, f.countRows(t, "charges"))
}

func TestOnboardTodayIsNotPast(t *testing.T) {
	f := newFixture(t, beforeCutoff)
	f.configurePaymentKey(t)
	plan := f.createPlan(t)

	_, err := f.svc.Onboard(context.Background(), domain.OnboardClientRequest{
		Name:             "Maria",
		Email:            "maria@example.com",
		PlanID:           plan.ID,
		BillingStartDate: "2024-01-15",
	})
	assert.NoError(t, err)
}

func TestUpdateClientStatus(t *testing.T) {
	f := newFixture(t, afterCutoff)
	f.configurePaymentKey(t)
	plan := f.createPlan(t)

	resp, err := f.svc.Onboard(context.Background(), domain.OnboardClientRequest{
		Name:             "Maria",
		Email:            "maria@example.com",
		PlanID:           plan.ID,
		BillingStartDate: "2024-02-01",
	})
	require.NoError(t, err)

	updated, err := f.svc.Update(context.Background(), domain.UpdateClientRequest{
		ID:            resp.Client.ID,
		PaymentStatus: domain.StatusCanceled,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCanceled, updated.PaymentStatus)

	_, err = f.svc.Update(context.Background(), domain.UpdateClientRequest{
		ID:            resp.Client.ID,
		PaymentStatus: domain.Status("SUSPENDED"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestGetByIDNotFound(t *testing.T) {
	f := newFixture(t, afterCutoff)

	_, err := f.svc.GetByID(context.Background(), f.node.Generate())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
