package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/chapel-client/internal/config"
	"github.com/iliyamo/chapel-client/internal/database"
	"github.com/iliyamo/chapel-client/internal/logging"
)

// Open builds the Storage selected by cfg.StorageDriver.  An unreachable
// redis or an unusable SQL database degrades to memory storage with a
// warning; only an unknown driver is an error.
func Open(ctx context.Context, cfg config.Config, log *zap.Logger) (Storage, error) {
	log = logging.OrNop(log)
	switch cfg.StorageDriver {
	case "memory":
		return NewMemory(), nil
	case "redis":
		rdb := config.NewRedisClient(ctx)
		if rdb == nil {
			log.Warn("redis unreachable, credential will not survive restarts")
			return NewMemory(), nil
		}
		return NewRedis(rdb, cfg.StoragePrefix), nil
	case "sqlite", "mysql":
		db, err := database.Open(ctx, cfg.StorageDriver, cfg.StorageDSN)
		if err != nil {
			log.Warn("sql storage unavailable, credential will not survive restarts",
				zap.String("driver", cfg.StorageDriver), zap.Error(err))
			return NewMemory(), nil
		}
		s, err := NewSQL(ctx, db, cfg.StorageDriver)
		if err != nil {
			_ = db.Close()
			log.Warn("sql storage unavailable, credential will not survive restarts",
				zap.String("driver", cfg.StorageDriver), zap.Error(err))
			return NewMemory(), nil
		}
		return s, nil
	}
	return nil, fmt.Errorf("storage: unknown driver %q", cfg.StorageDriver)
}
