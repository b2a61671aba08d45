package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cobranza/internal/billing"
	"github.com/smallbiznis/cobranza/internal/charge"
	"github.com/smallbiznis/cobranza/internal/client"
	"github.com/smallbiznis/cobranza/internal/clock"
	"github.com/smallbiznis/cobranza/internal/config"
	"github.com/smallbiznis/cobranza/internal/migration"
	"github.com/smallbiznis/cobranza/internal/observability"
	"github.com/smallbiznis/cobranza/internal/plan"
	"github.com/smallbiznis/cobranza/internal/providers/email"
	"github.com/smallbiznis/cobranza/internal/scheduler"
	"github.com/smallbiznis/cobranza/internal/server"
	"github.com/smallbiznis/cobranza/internal/systemconfig"
	"github.com/smallbiznis/cobranza/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Functional domains
		systemconfig.Module,
		email.Module,
		plan.Module,
		charge.Module,
		billing.Module,
		client.Module,
		scheduler.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
