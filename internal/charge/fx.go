package charge

import (
	"github.com/smallbiznis/cobranza/internal/charge/repository"
	"github.com/smallbiznis/cobranza/internal/charge/service"
	"go.uber.org/fx"
)

var Module = fx.Module("charge.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
