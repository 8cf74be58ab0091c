package auditlog

import (
	"context"
	"fmt"

	"github.com/suPer8Hu/ai-relay/internal/config"
	"github.com/suPer8Hu/ai-relay/internal/db"
)

// Open builds the store selected by LOG_STORE. The database store is
// migrated before it is returned.
func Open(ctx context.Context, cfg config.Config) (Store, error) {
	switch cfg.LogStore {
	case "object":
		store, err := NewObjectStore(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "database":
		gdb, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
		if err != nil {
			return nil, fmt.Errorf("auditlog: connect db: %w", err)
		}
		repo := NewRepo(gdb)
		if err := repo.Migrate(); err != nil {
			return nil, fmt.Errorf("auditlog: migrate: %w", err)
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("auditlog: unsupported log store %q", cfg.LogStore)
	}
}
