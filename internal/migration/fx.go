package migration

import (
	"github.com/digiurban/billing/internal/config"
	"github.com/digiurban/billing/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !cfg.DBAutoMigrate {
			log.Info("schema migrations disabled")
		} else if err := Apply(conn, cfg.DBType); err != nil {
			return err
		}

		if cfg.DBSeed {
			if err := seed.EnsureDemoData(conn); err != nil {
				return err
			}
			log.Info("demo billing data ensured")
		}
		return nil
	}),
)
