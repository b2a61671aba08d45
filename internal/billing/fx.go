package billing

import (
	clientdomain "github.com/smallbiznis/cobranza/internal/client/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("billing.engine",
	fx.Provide(New),
	fx.Provide(func(e *Engine) clientdomain.ChargeAdvancer { return e }),
)
