package migrate

import (
	"context"
	"fmt"

	"github.com/molimor/molimor-backend/pkg/config"
	"github.com/molimor/molimor-backend/pkg/db"
	"github.com/molimor/molimor-backend/pkg/logger"
)

func autoRunEnabled(cfg *config.Config) bool {
	return cfg.App.IsDev() && cfg.FeatureFlags.AutoMigrate
}

// MaybeRunDev brings the schema up to date at boot. It only acts in dev with
// the auto-migrate flag on.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !autoRunEnabled(cfg) {
		return nil
	}
	pool, err := client.SQL()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}

	ctx = logg.WithField(ctx, "dialect", client.Dialect())
	ran, err := Up(ctx, pool, client.Dialect())
	for _, m := range ran {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"version":     m.Version,
			"file":        m.File,
			"duration_ms": m.Duration.Milliseconds(),
		}), "migration applied")
	}
	if err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "applied", len(ran)), "dev schema up to date")
	return nil
}
