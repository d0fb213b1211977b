package migration

import (
	"github.com/smallbiznis/kasira/internal/config"
	"github.com/smallbiznis/kasira/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}

		if err := RunMigrations(sqlDB); err != nil {
			return err
		}

		if cfg.DefaultTenantID != 0 {
			return seed.EnsureDefaultTenantWithID(conn, cfg.DefaultTenantID)
		}
		return seed.EnsureDefaultTenant(conn)
	}),
)
