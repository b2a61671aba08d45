package db

import (
	"time"

	"github.com/smallbiznis/cobranza/internal/config"
	"github.com/smallbiznis/cobranza/internal/observability/logger"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("db",
	fx.Provide(Open),
)

func Open(cfg config.Config) (*gorm.DB, error) {
	dialector, err := Dialect(cfg)
	if err != nil {
		return nil, err
	}

	gormLog := logger.DefaultGormLoggerConfig()
	gormLog.Level = logger.ParseGormLogLevel(cfg.DBLogLevel)
	if cfg.DBSlowQueryMs > 0 {
		gormLog.SlowThreshold = time.Duration(cfg.DBSlowQueryMs) * time.Millisecond
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.NewGormLogger(gormLog),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConn)
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConn)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetime) * time.Second)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.DBConnMaxIdleTime) * time.Second)

	return conn, nil
}
