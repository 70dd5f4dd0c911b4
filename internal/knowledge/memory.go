// File: internal/knowledge/memory.go

// Package knowledge implements the agent's knowledge collaborator: a ranked,
// confidence-scored store of fixes, patterns and outcome records. Two
// backends exist; the in-memory client is the default, the postgres client
// persists knowledge across runs. Both degrade gracefully: callers treat
// every failure as "no knowledge" and fall back to exploration.
package knowledge

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dowser-cli/api/schemas"
)

// defaultTopK caps search results when the caller does not.
const defaultTopK = 5

// InMemoryClient is a fast, ephemeral knowledge store. Knowledge learned
// during a run is lost when the process exits.
type InMemoryClient struct {
	mu    sync.RWMutex
	items map[string]schemas.KnowledgeItem
	log   *zap.Logger
}

// Compile-time interface check.
var _ schemas.KnowledgeClient = (*InMemoryClient)(nil)

// NewInMemoryClient creates a new, empty in-memory knowledge store.
func NewInMemoryClient(logger *zap.Logger) *InMemoryClient {
	return &InMemoryClient{
		items: make(map[string]schemas.KnowledgeItem),
		log:   logger.Named("knowledge.memory"),
	}
}

// Search returns items whose content, solution or error signature contains
// the query (case-insensitive), ranked by descending confidence. Ties break
// by ID for determinism.
func (c *InMemoryClient) Search(_ context.Context, query string, opts schemas.SearchOptions) ([]schemas.KnowledgeItem, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(query))
	topK := opts.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	matches := make([]schemas.KnowledgeItem, 0, len(c.items))
	for _, item := range c.items {
		if opts.Type != "" && item.Type != opts.Type {
			continue
		}
		if needle != "" && !itemMatches(item, needle) {
			continue
		}
		matches = append(matches, item)
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Confidence != matches[j].Confidence {
			return matches[i].Confidence > matches[j].Confidence
		}
		return matches[i].ID < matches[j].ID
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Store persists the item, assigning an ID and timestamp when missing.
func (c *InMemoryClient) Store(_ context.Context, item schemas.KnowledgeItem) (string, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}

	c.mu.Lock()
	c.items[item.ID] = item
	c.mu.Unlock()

	c.log.Debug("Knowledge item stored",
		zap.String("id", item.ID),
		zap.String("type", string(item.Type)))
	return item.ID, nil
}

// UpdateConfidence nudges the item's confidence by step, up on success and
// down on failure, clamped to [0,1].
func (c *InMemoryClient) UpdateConfidence(_ context.Context, id string, success bool, step float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[id]
	if !ok {
		return fmt.Errorf("knowledge item %q not found", id)
	}

	if success {
		item.Confidence += step
	} else {
		item.Confidence -= step
	}
	if item.Confidence < 0 {
		item.Confidence = 0
	}
	if item.Confidence > 1 {
		item.Confidence = 1
	}

	c.items[id] = item
	return nil
}

// Len reports how many items the store holds.
func (c *InMemoryClient) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func itemMatches(item schemas.KnowledgeItem, needle string) bool {
	return strings.Contains(strings.ToLower(item.Content), needle) ||
		strings.Contains(strings.ToLower(item.Solution), needle) ||
		strings.Contains(strings.ToLower(item.ErrorSignature), needle)
}
