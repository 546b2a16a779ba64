package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// MaybeRunDev brings the schema up to date on startup when running in dev with
// the auto-migrate flag set. Postgres runs the embedded goose migrations; sqlite
// gets the flat schema.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if cfg == nil || client == nil {
		return fmt.Errorf("config and db client are required")
	}
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "driver": cfg.DB.Driver})

	if cfg.DB.Driver == db.DriverSQLite {
		if err := ApplySQLiteSchema(ctx, client.DB()); err != nil {
			return err
		}
		logg.Info(ctx, "dev auto-migrate applied sqlite schema")
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("open sql handle: %w", err)
	}
	if err := (Runner{DB: sqlDB, Logger: logg}).Run(ctx, "up"); err != nil {
		return fmt.Errorf("dev auto-migrate: %w", err)
	}
	logg.Info(ctx, "dev auto-migrate finished")
	return nil
}
