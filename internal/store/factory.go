package store

import (
	"context"
	"fmt"

	"feedlog/backend/internal/config"
	"feedlog/backend/internal/db"
	"feedlog/backend/internal/logging"
)

// Open builds the store selected by cfg.StorageDriver and makes sure its
// schema is in place.
func Open(ctx context.Context, cfg config.Config, logger logging.Logger) (Store, error) {
	switch cfg.StorageDriver {
	case config.StorageDriverSQLite:
		logger.Infof("using sqlite store at %s", cfg.SQLitePath)
		return NewSQLite(cfg.SQLitePath, logger)
	case config.StorageDriverPostgres, "":
		pool, err := db.Connect(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
		if err != nil {
			return nil, err
		}
		s := NewPostgres(pool, logger)
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		if err := ValidateSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Infof("using postgres store")
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}
