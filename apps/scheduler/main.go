package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/digiurban/billing/internal/audit"
	"github.com/digiurban/billing/internal/billingevent"
	"github.com/digiurban/billing/internal/clock"
	"github.com/digiurban/billing/internal/config"
	"github.com/digiurban/billing/internal/invoice"
	"github.com/digiurban/billing/internal/observability"
	"github.com/digiurban/billing/internal/providers"
	"github.com/digiurban/billing/internal/ratelimit"
	"github.com/digiurban/billing/internal/scheduler"
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
		ratelimit.Module,

		// Domain services required by scheduler
		tenant.Module,
		audit.Module,
		billingevent.Module,
		providers.Module,
		invoice.Module,

		// No server module!
		scheduler.Module,
	)
	app.Run()
}

// RegisterSnowflake reads SNOWFLAKE_NODE; the scheduler deployment sets a
// node distinct from every API replica.
func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
