package email

import (
	"github.com/smallbiznis/cobranza/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
	fx.Provide(func(n *TemplateNotifier) Notifier { return n }),
)

func NewFromConfig(cfg config.Config) (*TemplateNotifier, error) {
	provider := NewSMTP(Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
	return NewTemplateNotifier(provider)
}
