package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// BillingConfig carries the operational billing knobs. Timezone and hour anchor
// every calendar-day comparison and the daily sweep cutoff.
type BillingConfig struct {
	Timezone  string `mapstructure:"timezone"`
	Hour      int    `mapstructure:"hour"`
	BatchSize int    `mapstructure:"batchSize"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		Timezone:  "America/Sao_Paulo",
		Hour:      10,
		BatchSize: 100,
	}
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

func NewBillingConfigHolder() (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/cobranza/config") // Volume-mounted config
	v.AddConfigPath("/etc/cobranza")            // System config
	v.AddConfigPath(".")                        // Current directory (dev mode)

	v.SetEnvPrefix("COBRANZA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.timezone", defaults.Timezone)
	v.SetDefault("billing.hour", defaults.Hour)
	v.SetDefault("billing.batchSize", defaults.BatchSize)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// no config file, defaults apply
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Printf("[billing-config] reload failed: %v", err)
			return
		}
		if err := validateBillingConfig(updated); err != nil {
			log.Printf("[billing-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[billing-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func validateBillingConfig(cfg BillingConfig) error {
	if strings.TrimSpace(cfg.Timezone) == "" {
		return errors.New("billing.timezone cannot be empty")
	}
	if cfg.Hour < 0 || cfg.Hour > 23 {
		return errors.New("billing.hour must be between 0 and 23")
	}
	if cfg.BatchSize <= 0 {
		return errors.New("billing.batchSize must be positive")
	}
	return nil
}
