package systemconfig

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SingletonID is the well-known key of the single configuration row.
const SingletonID = "singleton"

// ErrPaymentKeyNotConfigured blocks client onboarding and per-charge
// processing until an operator sets the payment key.
var ErrPaymentKeyNotConfigured = errors.New("payment_key_not_configured")

// SystemConfig is the process-wide configuration row. An empty PaymentKey is a
// valid but unconfigured state.
type SystemConfig struct {
	ID         string    `gorm:"primaryKey;type:text" json:"id"`
	PaymentKey string    `gorm:"not null;default:''" json:"payment_key"`
	UpdatedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (SystemConfig) TableName() string { return "system_config" }

type Service interface {
	// Get returns the configuration row, creating it empty on first read.
	Get(ctx context.Context) (SystemConfig, error)

	// PaymentKey returns the configured payment key or
	// ErrPaymentKeyNotConfigured when it is unset.
	PaymentKey(ctx context.Context) (string, error)

	UpdatePaymentKey(ctx context.Context, key string) (SystemConfig, error)
}

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type service struct {
	db  *gorm.DB
	log *zap.Logger
}

func New(p Params) Service {
	return &service{
		db:  p.DB,
		log: p.Log.Named("systemconfig.service"),
	}
}

func (s *service) Get(ctx context.Context) (SystemConfig, error) {
	var cfg SystemConfig
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, payment_key, updated_at FROM system_config WHERE id = ?`,
		SingletonID,
	).Scan(&cfg).Error
	if err != nil {
		return SystemConfig{}, err
	}
	if cfg.ID != "" {
		return cfg, nil
	}

	// Init-on-first-read. A concurrent initializer winning the race is fine;
	// both sides converge on the same empty row.
	cfg = SystemConfig{ID: SingletonID, PaymentKey: "", UpdatedAt: time.Now().UTC()}
	insertErr := s.db.WithContext(ctx).Exec(
		`INSERT INTO system_config (id, payment_key, updated_at) VALUES (?, ?, ?)`,
		cfg.ID,
		cfg.PaymentKey,
		cfg.UpdatedAt,
	).Error
	if insertErr != nil {
		var existing SystemConfig
		if readErr := s.db.WithContext(ctx).Raw(
			`SELECT id, payment_key, updated_at FROM system_config WHERE id = ?`,
			SingletonID,
		).Scan(&existing).Error; readErr == nil && existing.ID != "" {
			return existing, nil
		}
		return SystemConfig{}, insertErr
	}
	return cfg, nil
}

func (s *service) PaymentKey(ctx context.Context) (string, error) {
	cfg, err := s.Get(ctx)
	if err != nil {
		return "", err
	}
	key := strings.TrimSpace(cfg.PaymentKey)
	if key == "" {
		return "", ErrPaymentKeyNotConfigured
	}
	return key, nil
}

func (s *service) UpdatePaymentKey(ctx context.Context, key string) (SystemConfig, error) {
	if _, err := s.Get(ctx); err != nil {
		return SystemConfig{}, err
	}

	now := time.Now().UTC()
	if err := s.db.WithContext(ctx).Exec(
		`UPDATE system_config SET payment_key = ?, updated_at = ? WHERE id = ?`,
		strings.TrimSpace(key),
		now,
		SingletonID,
	).Error; err != nil {
		return SystemConfig{}, err
	}
	return s.Get(ctx)
}

var Module = fx.Module("systemconfig.service",
	fx.Provide(New),
)
