package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/digiurban/billing/internal/audit"
	"github.com/digiurban/billing/internal/auth"
	"github.com/digiurban/billing/internal/authorization"
	"github.com/digiurban/billing/internal/billingevent"
	"github.com/digiurban/billing/internal/clock"
	"github.com/digiurban/billing/internal/config"
	"github.com/digiurban/billing/internal/invoice"
	"github.com/digiurban/billing/internal/migration"
	"github.com/digiurban/billing/internal/observability"
	"github.com/digiurban/billing/internal/providers"
	"github.com/digiurban/billing/internal/ratelimit"
	"github.com/digiurban/billing/internal/server"
	"github.com/digiurban/billing/internal/tenant"
	"github.com/digiurban/billing/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		ratelimit.Module,

		// Billing domains served over HTTP
		tenant.Module,
		audit.Module,
		billingevent.Module,
		providers.Module,
		invoice.Module,

		authorization.Module,
		auth.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
