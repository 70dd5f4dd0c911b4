// File: internal/knowledge/postgres.go
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dowser-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DBPool abstracts the pgxpool.Pool so the client can be tested against a
// mock.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresClient persists knowledge items across runs in a single
// knowledge_items table.
type PostgresClient struct {
	pool DBPool
	log  *zap.Logger
}

var _ schemas.KnowledgeClient = (*PostgresClient)(nil)

// NewPostgresClient wraps the pool and verifies the connection.
func NewPostgresClient(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresClient, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping knowledge database: %w", err)
	}
	return &PostgresClient{
		pool: pool,
		log:  logger.Named("knowledge.postgres"),
	}, nil
}

const sqlSearchItems = `
	SELECT id, type, content, solution, confidence, metadata, error_signature, created_at
	FROM knowledge_items
	WHERE ($1 = '' OR content ILIKE '%' || $1 || '%'
	       OR solution ILIKE '%' || $1 || '%'
	       OR error_signature ILIKE '%' || $1 || '%')
	  AND ($2 = '' OR type = $2)
	ORDER BY confidence DESC, id ASC
	LIMIT $3;
`

// Search retrieves the highest-confidence items matching the query.
func (c *PostgresClient) Search(ctx context.Context, query string, opts schemas.SearchOptions) ([]schemas.KnowledgeItem, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	rows, err := c.pool.Query(ctx, sqlSearchItems, query, string(opts.Type), topK)
	if err != nil {
		return nil, fmt.Errorf("knowledge search failed: %w", err)
	}
	defer rows.Close()

	var items []schemas.KnowledgeItem
	for rows.Next() {
		var (
			item schemas.KnowledgeItem
			meta []byte
		)
		if err := rows.Scan(&item.ID, &item.Type, &item.Content, &item.Solution,
			&item.Confidence, &meta, &item.ErrorSignature, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan knowledge item: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &item.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata for item %q: %w", item.ID, err)
			}
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

const sqlUpsertItem = `
	INSERT INTO knowledge_items (id, type, content, solution, confidence, metadata, error_signature, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (id) DO UPDATE SET
		type = EXCLUDED.type,
		content = EXCLUDED.content,
		solution = EXCLUDED.solution,
		confidence = EXCLUDED.confidence,
		metadata = EXCLUDED.metadata,
		error_signature = EXCLUDED.error_signature;
`

// Store inserts or updates the item, assigning an ID and timestamp when
// missing.
func (c *PostgresClient) Store(ctx context.Context, item schemas.KnowledgeItem) (string, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}

	meta, err := json.Marshal(item.Metadata)
	if err != nil {
		return "", fmt.Errorf("failed to marshal item metadata: %w", err)
	}

	if _, err := c.pool.Exec(ctx, sqlUpsertItem,
		item.ID, string(item.Type), item.Content, item.Solution,
		item.Confidence, meta, item.ErrorSignature, item.CreatedAt); err != nil {
		return "", fmt.Errorf("failed to store knowledge item: %w", err)
	}
	return item.ID, nil
}

const sqlUpdateConfidence = `
	UPDATE knowledge_items
	SET confidence = LEAST(1.0, GREATEST(0.0, confidence + $2))
	WHERE id = $1;
`

// UpdateConfidence nudges the stored confidence, clamped to [0,1] in SQL so
// concurrent runs cannot race it out of range.
func (c *PostgresClient) UpdateConfidence(ctx context.Context, id string, success bool, step float64) error {
	delta := step
	if !success {
		delta = -step
	}

	tag, err := c.pool.Exec(ctx, sqlUpdateConfidence, id, delta)
	if err != nil {
		return fmt.Errorf("failed to update confidence for %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("knowledge item %q not found", id)
	}
	return nil
}

// ErrUnsupportedBackend is returned for knowledge backends the binary does
// not know how to construct.
var ErrUnsupportedBackend = errors.New("unsupported knowledge backend")
