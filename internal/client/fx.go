package client

import (
	"github.com/smallbiznis/cobranza/internal/client/repository"
	"github.com/smallbiznis/cobranza/internal/client/service"
	"go.uber.org/fx"
)

var Module = fx.Module("client.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
