package checkpoint

import (
	"context"
	"os"

	"github.com/jupyter-naas/abi-sub005/logging"
)

// PostgresURLEnv names the environment variable selecting the Postgres
// backend.
const PostgresURLEnv = "POSTGRES_URL"

// NewFromEnv builds a Store from the environment: Postgres when
// POSTGRES_URL is set, in-memory otherwise. A configured but unreachable
// database degrades to the in-memory store with a warning, so the
// conversation still completes, only durability is lost.
func NewFromEnv(ctx context.Context, logger logging.Logger) Store {
	logger = logging.OrNoOp(logger)

	url := os.Getenv(PostgresURLEnv)
	if url == "" {
		logger.Debug("checkpoint.store", "backend", "memory")
		return NewMemoryStore()
	}

	store, err := NewPostgresStore(ctx, url)
	if err != nil {
		logger.Warn("checkpoint.postgres_unavailable",
			"error", err.Error(),
			"fallback", "memory",
		)
		return NewMemoryStore()
	}
	if err := store.Setup(ctx); err != nil {
		logger.Warn("checkpoint.postgres_setup_failed",
			"error", err.Error(),
			"fallback", "memory",
		)
		store.Close()
		return NewMemoryStore()
	}

	logger.Info("checkpoint.store", "backend", "postgres")
	return store
}
