package migration

import (
	"github.com/edgepulse/edgepulse/internal/config"
	"github.com/edgepulse/edgepulse/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			if err := seed.AutoMigrate(conn); err != nil {
				return err
			}
		}

		if !cfg.IsProduction() && cfg.SeedTenantName != "" {
			return seed.EnsureTenantWithKey(conn, cfg)
		}
		return nil
	}),
)
