package migration

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/trustmark/internal/config"
	"github.com/smallbiznis/trustmark/internal/seed"
	"github.com/smallbiznis/trustmark/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, node *snowflake.Node, log *zap.Logger) error {
		if db.ConfigFrom(cfg).Type == db.TypePostgres {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else if err := AutoMigrate(conn); err != nil {
			return err
		}

		if cfg.BootstrapAdminAPIKey == "" {
			return nil
		}
		created, err := seed.EnsureBootstrapAdminKey(conn, node, cfg.BootstrapAdminKeyName, cfg.BootstrapAdminAPIKey)
		if err != nil {
			return err
		}
		if created {
			log.Info("bootstrap admin api key registered", zap.String("name", cfg.BootstrapAdminKeyName))
		}
		return nil
	}),
)
