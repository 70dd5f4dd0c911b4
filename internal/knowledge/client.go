// File: internal/knowledge/client.go
package knowledge

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dowser-cli/api/schemas"
	"github.com/xkilldash9x/dowser-cli/internal/config"
)

// NewClient constructs the configured knowledge backend. The returned
// cleanup releases backend resources and is safe to call exactly once.
func NewClient(ctx context.Context, cfg config.KnowledgeConfig, logger *zap.Logger) (schemas.KnowledgeClient, func(), error) {
	switch cfg.Backend {
	case "", "memory":
		return NewInMemoryClient(logger), func() {}, nil

	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create knowledge pool: %w", err)
		}
		client, err := NewPostgresClient(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return client, pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, cfg.Backend)
	}
}
