// File: internal/knowledge/memory_test.go
package knowledge

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/dowser-cli/api/schemas"
)

func seedClient(t *testing.T) *InMemoryClient {
	t.Helper()
	c := NewInMemoryClient(zaptest.NewLogger(t))
	ctx := context.Background()

	items := []schemas.KnowledgeItem{
		{ID: "fix-low", Type: schemas.KnowledgeFix, Content: "retry after timeout", Solution: "click_retry", Confidence: 0.4},
		{ID: "fix-high", Type: schemas.KnowledgeFix, Content: "retry after timeout error", Solution: "click_retry", Confidence: 0.9},
		{ID: "pattern-1", Type: schemas.KnowledgePattern, Content: "timeout on slow pages", Solution: "wait_for_load", Confidence: 0.7},
		{ID: "error-1", Type: schemas.KnowledgeError, Content: "submit failed", ErrorSignature: "timeout", Confidence: 0.6},
	}
	for _, item := range items {
		_, err := c.Store(ctx, item)
		require.NoError(t, err)
	}
	return c
}

func TestInMemorySearch(t *testing.T) {
	c := seedClient(t)
	ctx := context.Background()

	t.Run("ranked by confidence", func(t *testing.T) {
		got, err := c.Search(ctx, "timeout", schemas.SearchOptions{})
		require.NoError(t, err)
		require.NotEmpty(t, got)
		assert.Equal(t, "fix-high", got[0].ID)
		for i := 1; i < len(got); i++ {
			assert.GreaterOrEqual(t, got[i-1].Confidence, got[i].Confidence)
		}
	})

	t.Run("type filter", func(t *testing.T) {
		got, err := c.Search(ctx, "timeout", schemas.SearchOptions{Type: schemas.KnowledgePattern})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "pattern-1", got[0].ID)
	})

	t.Run("top-k cap", func(t *testing.T) {
		got, err := c.Search(ctx, "timeout", schemas.SearchOptions{TopK: 2})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("matches error signature", func(t *testing.T) {
		got, err := c.Search(ctx, "timeout", schemas.SearchOptions{Type: schemas.KnowledgeError})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "error-1", got[0].ID)
	})

	t.Run("no match", func(t *testing.T) {
		got, err := c.Search(ctx, "nonexistent-gibberish", schemas.SearchOptions{})
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestInMemoryStore_AssignsID(t *testing.T) {
	c := NewInMemoryClient(zaptest.NewLogger(t))

	id, err := c.Store(context.Background(), schemas.KnowledgeItem{
		Type:    schemas.KnowledgeObservation,
		Content: "something happened",
	})

	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, c.Len())
}

func TestInMemoryUpdateConfidence(t *testing.T) {
	ctx := context.Background()

	t.Run("success raises, failure lowers", func(t *testing.T) {
		c := seedClient(t)

		require.NoError(t, c.UpdateConfidence(ctx, "pattern-1", true, 0.15))
		got, err := c.Search(ctx, "slow pages", schemas.SearchOptions{})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.InDelta(t, 0.85, got[0].Confidence, 1e-9)

		require.NoError(t, c.UpdateConfidence(ctx, "pattern-1", false, 0.15))
		got, err = c.Search(ctx, "slow pages", schemas.SearchOptions{})
		require.NoError(t, err)
		assert.InDelta(t, 0.7, got[0].Confidence, 1e-9)
	})

	t.Run("clamped to range", func(t *testing.T) {
		c := seedClient(t)

		for i := 0; i < 10; i++ {
			require.NoError(t, c.UpdateConfidence(ctx, "fix-high", true, 0.15))
		}
		got, err := c.Search(ctx, "retry after timeout error", schemas.SearchOptions{})
		require.NoError(t, err)
		require.NotEmpty(t, got)
		assert.LessOrEqual(t, got[0].Confidence, 1.0)
	})

	t.Run("unknown id errors", func(t *testing.T) {
		c := seedClient(t)
		assert.Error(t, c.UpdateConfidence(ctx, "no-such-item", true, 0.15))
	})
}

func TestInMemoryClient_ConcurrentAccess(t *testing.T) {
	c := NewInMemoryClient(zaptest.NewLogger(t))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := c.Store(ctx, schemas.KnowledgeItem{
				ID:      fmt.Sprintf("item-%d", n),
				Type:    schemas.KnowledgeObservation,
				Content: "concurrent write",
			})
			assert.NoError(t, err)
			_, err = c.Search(ctx, "concurrent", schemas.SearchOptions{})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, c.Len())
}
