package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	chargedomain "github.com/smallbiznis/cobranza/internal/charge/domain"
	chargerepo "github.com/smallbiznis/cobranza/internal/charge/repository"
	clientdomain "github.com/smallbiznis/cobranza/internal/client/domain"
	"github.com/smallbiznis/cobranza/internal/clock"
	"github.com/smallbiznis/cobranza/internal/config"
	"github.com/smallbiznis/cobranza/internal/providers/email"
	"github.com/smallbiznis/cobranza/internal/systemconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recordingNotifier struct {
	reminders []email.ReminderData
	welcomes  []email.WelcomeData
	failSend  error
}

func (n *recordingNotifier) SendChargeReminder(ctx context.Context, data email.ReminderData) error {
	if n.failSend != nil {
		return n.failSend
	}
	n.reminders = append(n.reminders, data)
	return nil
}

func (n *recordingNotifier) SendWelcome(ctx context.Context, data email.WelcomeData) error {
	n.welcomes = append(n.welcomes, data)
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

type engineFixture struct {
	db       *gorm.DB
	engine   *Engine
	node     *snowflake.Node
	fakeNow  *clock.FakeClock
	notifier *recordingNotifier
	sysCfg   systemconfig.Service
	repo     chargedomain.Repository
}

func newEngineFixture(t *testing.T, now time.Time) *engineFixture {
	t.Helper()

	db := openTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fakeNow := clock.NewFakeClock(now)
	notifier := &recordingNotifier{}
	sysCfg := systemconfig.New(systemconfig.Params{DB: db, Log: zap.NewNop()})
	repo := chargerepo.Provide()

	engine, err := New(Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      fakeNow,
		BillingCfg: config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
		ChargeRepo: repo,
		SysCfg:     sysCfg,
		Notifier:   notifier,
	})
	require.NoError(t, err)

	return &engineFixture{
		db:       db,
		engine:   engine,
		node:     node,
		fakeNow:  fakeNow,
		notifier: notifier,
		sysCfg:   sysCfg,
		repo:     repo,
	}
}

func (f *engineFixture) configurePaymentKey(t *testing.T, key string) {
	t.Helper()
	_, err := f.sysCfg.UpdatePaymentKey(context.Background(), key)
	require.NoError(t, err)
}

func (f *engineFixture) seedPlan(t *testing.T, name string, price int64, recur string) snowflake.ID {
	t.Helper()
	id := f.node.Generate()
	now := f.fakeNow.Now()
	require.NoError(t, f.db.Exec(
		`INSERT INTO plans (id, name, price, recurrence, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, name, price, recur, now, now,
	).Error)
	return id
}

func (f *engineFixture) seedClient(t *testing.T, name, emailAddr string, planID snowflake.ID, status clientdomain.Status, start time.Time) snowflake.ID {
	t.Helper()
	id := f.node.Generate()
	now := f.fakeNow.Now()
	require.NoError(t, f.db.Exec(
		`INSERT INTO clients (id, name, email, plan_id, payment_status, billing_start_date, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, name, emailAddr, planID, string(status), start, now, now,
	).Error)
	return id
}

func (f *engineFixture) seedCharge(t *testing.T, clientID snowflake.ID, amount int64, due time.Time) snowflake.ID {
	t.Helper()
	return f.seedChargeWithStatus(t, clientID, amount, due, chargedomain.StatusPending)
}

func (f *engineFixture) seedChargeWithStatus(t *testing.T, clientID snowflake.ID, amount int64, due time.Time, status chargedomain.Status) snowflake.ID {
	t.Helper()
	id := f.node.Generate()
	now := f.fakeNow.Now()
	require.NoError(t, f.db.Exec(
		`INSERT INTO charges (id, client_id, amount, due_date, due_day, status, reminder_sent, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, FALSE, ?, ?)`,
		id, clientID, amount, due, chargedomain.DayOf(due), string(status), now, now,
	).Error)
	return id
}

func (f *engineFixture) loadCharges(t *testing.T, clientID snowflake.ID) []chargedomain.Charge {
	t.Helper()
	charges, err := f.repo.ListByClient(context.Background(), f.db, clientID)
	require.NoError(t, err)
	return charges
}

// The canonical lifecycle: a monthly client due today gets a reminder, the
// current charge is flagged, and the next cycle's charge lands one month out
// at the plan's current price.
func TestSweepRemindsAndSpawnsNextCharge(t *testing.T) {
	dueDate := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	// 11:00 in America/Sao_Paulo, past the 10:00 cutoff.
	f := newEngineFixture(t, time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC))
	f.configurePaymentKey(t, "pix-key-123")

	planID := f.seedPlan(t, "Premium", 10000, "MONTHLY")
	clientID := f.seedClient(t, "Maria", "maria@example.com", planID, clientdomain.StatusActive, dueDate)
	chargeID := f.seedCharge(t, clientID, 10000, dueDate)

	require.NoError(t, f.engine.Sweep(context.Background()))

	require.Len(t, f.notifier.reminders, 1)
	sent := f.notifier.reminders[0]
	assert.Equal(t, "maria@example.com", sent.To)
	assert.Equal(t, "Premium", sent.PlanName)
	assert.Equal(t, int64(10000), sent.Amount)
	assert.Equal(t, "pix-key-123", sent.PaymentKey)

	charges := f.loadCharges(t, clientID)
	require.Len(t, charges, 2)

	var current, next chargedomain.Charge
	for _, c := range charges {
		if c.ID == chargeID {
			current = c
		} else {
			next = c
		}
	}
	assert.True(t, current.ReminderSent)
	assert.Equal(t, chargedomain.StatusPending, current.Status)

	assert.Equal(t, "2024-02-15", next.DueDay)
	assert.Equal(t, int64(10000), next.Amount)
	assert.Equal(t, chargedomain.StatusPending, next.Status)
	assert.False(t, next.ReminderSent)
}

func TestSweepIsIdempotent(t *testing.T) {
	dueDate := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	f := newEngineFixture(t, time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC))
	f.configurePaymentKey(t, "pix-key-123")

	planID := f.seedPlan(t, "Premium", 10000, "MONTHLY")
	clientID := f.seedClient(t, "Maria", "maria@example.com", planID, clientdomain.StatusActive, dueDate)
	f.seedCharge(t, clientID, 10000, dueDate)

	require.NoError(t, f.engine.Sweep(context.Background()))
	require.NoError(t, f.engine.Sweep(context.Background()))
	require.NoError(t, f.engine.Sweep(context.Background()))

	assert.Len(t, f.notifier.reminders, 1)
	assert.Len(t, f.loadCharges(t, clientID), 2)
}

func TestSweepSkipsCanceledClient(t *testing.T) {
	dueDate := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	f := newEngineFixture(t, time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC))
	f.configurePaymentKey(t, "pix-key-123")

	planID := f.seedPlan(t, "Premium", 10000, "MONTHLY")
	clientID := f.seedClient(t, "Maria", "maria@example.com", planID, clientdomain.StatusCanceled, dueDate)
	chargeID := f.seedCharge(t, clientID, 10000, dueDate)

	require.NoError(t, f.engine.Sweep(context.Background()))

	assert.Empty(t, f.notifier.reminders)
	charges := f.loadCharges(t, clientID)
	require.Len(t, charges, 1)
	assert.Equal(t, chargeID, charges[0].ID)
	assert.False(t, charges[0].ReminderSent)
}

func TestSweepMissingPaymentKeyFailsAndRetries(t *testing.T) {
	dueDate := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	f := newEngineFixture(t, time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC))

	planID := f.seedPlan(t, "Premium", 10000, "MONTHLY")
	clientID := f.seedClient(t, "Maria", "maria@example.com", planID, clientdomain.StatusActive, dueDate)
	f.seedCharge(t, clientID, 10000, dueDate)

	err := f.engine.Sweep(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, systemconfig.ErrPaymentKeyNotConfigured)
	assert.Empty(t, f.notifier.reminders)
	require.Len(t, f.loadCharges(t, clientID), 1)

	// Operator fixes the key; the next sweep picks the charge back up.
	f.configurePaymentKey(t, "pix-key-123")
	require.NoError(t, f.engine.Sweep(context.Background()))
	assert.Len(t, f.notifier.reminders, 1)
	assert.Len(t, f.loadCharges(t, clientID), 2)
}

func TestSweepNotifierFailureLeavesChargeRetryable(t *testing.T) {
	dueDate := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	f := newEngineFixture(t, time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC))
	f.configurePaymentKey(t, "pix-key-123")

	planID := f.seedPlan(t, "Premium", 10000, "MONTHLY")
	clientID := f.seedClient(t, "Maria", "maria@example.com", planID, clientdomain.StatusActive, dueDate)
	f.seedCharge(t, clientID, 10000, dueDate)

	f.notifier.failSend = errors.New("smtp unavailable")
	require.Error(t, f.engine.Sweep(context.Background()))

	charges := f.loadCharges(t, clientID)
	require.Len(t, charges, 1)
	assert.False(t, charges[0].ReminderSent)

	f.notifier.failSend = nil
	require.NoError(t, f.engine.Sweep(context.Background()))
	assert.Len(t, f.notifier.reminders, 1)
	assert.Len(t, f.loadCharges(t, clientID), 2)
}

func TestSweepFailureIsolation(t *testing.T) {
	dueDate := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	f := newEngineFixture(t, time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC))
	f.configurePaymentKey(t, "pix-key-123")

	planID := f.seedPlan(t, "Premium", 10000, "MONTHLY")
	okClient := f.seedClient(t, "Maria", "maria@example.com", planID, clientdomain.StatusActive, dueDate)
	f.seedCharge(t, okClient, 10000, dueDate)

	// A charge whose client row is gone: the join drops it, it must not block
	// the healthy one.
	orphanClient := f.node.Generate()
	f.seedCharge(t, orphanClient, 10000, dueDate)

	require.NoError(t, f.engine.Sweep(context.Background()))

	assert.Len(t, f.notifier.reminders, 1)
	assert.Len(t, f.loadCharges(t, okClient), 2)
}

func TestSweepNextChargeUsesCurrentPlanPrice(t *testing.T) {
	dueDate := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	f := newEngineFixture(t, time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC))
	f.configurePaymentKey(t, "pix-key-123")

	// Plan price was raised after the current charge was created.
	planID := f.seedPlan(t, "Premium", 15000, "MONTHLY")
	clientID := f.seedClient(t, "Maria", "maria@example.com", planID, clientdomain.StatusActive, dueDate)
	f.seedCharge(t, clientID, 10000, dueDate)

	require.NoError(t, f.engine.Sweep(context.Background()))

	charges := f.loadCharges(t, clientID)
	require.Len(t, charges, 2)
	for _, c := range charges {
		if c.DueDay == "2024-02-15" {
			assert.Equal(t, int64(15000), c.Amount)
		}
	}
}

func TestSweepSuppressesExistingNextCharge(t *testing.T) {
	dueDate := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	f := newEngineFixture(t, time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC))
	f.configurePaymentKey(t, "pix-key-123")

	planID := f.seedPlan(t, "Premium", 10000, "MONTHLY")
	clientID := f.seedClient(t, "Maria", "maria@example.com", planID, clientdomain.StatusActive, dueDate)
	f.seedCharge(t, clientID, 10000, dueDate)
	// The next cycle's charge is already on the ledger.
	f.seedCharge(t, clientID, 10000, time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC))

	require.NoError(t, f.engine.Sweep(context.Background()))

	assert.Len(t, f.notifier.reminders, 1)
	assert.Len(t, f.loadCharges(t, clientID), 2)
}

func TestSweepAdvancesWeeklyCharge(t *testing.T) {
	dueDate := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	f := newEngineFixture(t, time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC))
	f.configurePaymentKey(t, "pix-key-123")

	planID := f.seedPlan(t, "Weekly", 2500, "WEEKLY")
	clientID := f.seedClient(t, "Joao", "joao@example.com", planID, clientdomain.StatusActive, dueDate)
	f.seedCharge(t, clientID, 2500, dueDate)

	require.NoError(t, f.engine.Sweep(context.Background()))

	charges := f.loadCharges(t, clientID)
	require.Len(t, charges, 2)
	days := []string{charges[0].DueDay, charges[1].DueDay}
	assert.Contains(t, days, "2024-01-22")
}

func TestSweepIgnoresChargesDueOtherDays(t *testing.T) {
	f := newEngineFixture(t, time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC))
	f.configurePaymentKey(t, "pix-key-123")

	planID := f.seedPlan(t, "Premium", 10000, "MONTHLY")
	clientID := f.seedClient(t, "Maria", "maria@example.com", planID, clientdomain.StatusActive,
		time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC))
	f.seedCharge(t, clientID, 10000, time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC))

	require.NoError(t, f.engine.Sweep(context.Background()))

	assert.Empty(t, f.notifier.reminders)
	assert.Len(t, f.loadCharges(t, clientID), 1)
}

// A settled charge due today never re-enters the cycle: no reminder goes out
// and no next charge is spawned, regardless of the reminder flag.
func TestSweepSkipsSettledCharges(t *testing.T) {
	dueDate := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	f := newEngineFixture(t, time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC))
	f.configurePaymentKey(t, "pix-key-123")

	planID := f.seedPlan(t, "Premium", 10000, "MONTHLY")

	paidClient := f.seedClient(t, "Maria", "maria@example.com", planID, clientdomain.StatusActive, dueDate)
	paidID := f.seedChargeWithStatus(t, paidClient, 10000, dueDate, chargedomain.StatusPaid)

	canceledClient := f.seedClient(t, "Joao", "joao@example.com", planID, clientdomain.StatusActive, dueDate)
	f.seedChargeWithStatus(t, canceledClient, 10000, dueDate, chargedomain.StatusCanceled)

	require.NoError(t, f.engine.Sweep(context.Background()))

	assert.Empty(t, f.notifier.reminders)

	charges := f.loadCharges(t, paidClient)
	require.Len(t, charges, 1)
	assert.Equal(t, paidID, charges[0].ID)
	assert.False(t, charges[0].ReminderSent)
	assert.Len(t, f.loadCharges(t, canceledClient), 1)
}

func TestProcessChargeByIDNotFound(t *testing.T) {
	f := newEngineFixture(t, time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC))

	err := f.engine.ProcessChargeByID(context.Background(), f.node.Generate())
	assert.ErrorIs(t, err, chargedomain.ErrNotFound)
}

func TestProcessChargeByIDAdvancesSingleCharge(t *testing.T) {
	dueDate := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	f := newEngineFixture(t, time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC))
	f.configurePaymentKey(t, "pix-key-123")

	planID := f.seedPlan(t, "Premium", 10000, "MONTHLY")
	clientID := f.seedClient(t, "Maria", "maria@example.com", planID, clientdomain.StatusActive, dueDate)
	chargeID := f.seedCharge(t, clientID, 10000, dueDate)

	require.NoError(t, f.engine.ProcessChargeByID(context.Background(), chargeID))

	assert.Len(t, f.notifier.reminders, 1)
	assert.Len(t, f.loadCharges(t, clientID), 2)

	// Running it again is a no-op, same as a sweep re-run.
	require.NoError(t, f.engine.ProcessChargeByID(context.Background(), chargeID))
	assert.Len(t, f.notifier.reminders, 1)
	assert.Len(t, f.loadCharges(t, clientID), 2)
}

func TestProcessChargeByIDSkipsSettledCharge(t *testing.T) {
	dueDate := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	f := newEngineFixture(t, time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC))
	f.configurePaymentKey(t, "pix-key-123")

	planID := f.seedPlan(t, "Premium", 10000, "MONTHLY")
	clientID := f.seedClient(t, "Maria", "maria@example.com", planID, clientdomain.StatusActive, dueDate)
	chargeID := f.seedChargeWithStatus(t, clientID, 10000, dueDate, chargedomain.StatusPaid)

	require.NoError(t, f.engine.ProcessChargeByID(context.Background(), chargeID))

	assert.Empty(t, f.notifier.reminders)
	charges := f.loadCharges(t, clientID)
	require.Len(t, charges, 1)
	assert.False(t, charges[0].ReminderSent)
}
