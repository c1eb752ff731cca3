package migration

import (
	"context"

	"github.com/smallbiznis/donara/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(lc fx.Lifecycle, conn *gorm.DB, cfg db.Config, log *zap.Logger) error {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}

		switch cfg.Type {
		case db.TypeSQLite:
			err = ApplySQLite(context.Background(), sqlDB)
		default:
			err = RunMigrations(sqlDB)
		}
		if err != nil {
			return err
		}
		log.Info("ledger schema up to date", zap.String("type", cfg.Type))
		return nil
	}),
)
