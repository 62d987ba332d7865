package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-tracker/internal/config"
	"github.com/kozaktomas/face-tracker/internal/registry/postgres"
)

// openStore connects to PostgreSQL, runs pending migrations and returns
// the identity store. The returned cleanup closes the pool.
func openStore(ctx context.Context, cfg *config.Config) (*postgres.Store, func(), error) {
	if cfg.Database.URL == "" {
		return nil, nil, errors.New("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.NewPool(postgres.PoolConfig{
		URL:          cfg.Database.URL,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to PostgreSQL: %w", err)
	}
	if err := pool.Migrate(ctx, cfg.Embedding.Dim); err != nil {
		_ = pool.Close()
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	store := postgres.NewStore(pool, cfg.Embedding.Dim)
	cleanup := func() { _ = pool.Close() }
	return store, cleanup, nil
}

// initIndex builds or loads the identity HNSW index for fast matching.
func initIndex(ctx context.Context, store *postgres.Store, indexPath string) {
	if indexPath != "" {
		fmt.Printf("Loading identity HNSW index from %s...\n", indexPath)
	} else {
		fmt.Println("Building in-memory HNSW index for identity matching...")
	}
	if err := store.EnableIndex(ctx, indexPath); err != nil {
		fmt.Printf("Warning: Failed to build identity HNSW index: %v\n", err)
		fmt.Println("Identity matching will use PostgreSQL queries (slower)")
	}
}
