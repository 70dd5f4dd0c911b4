// File: internal/knowledge/postgres_test.go
package knowledge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dowser-cli/api/schemas"
)

func newMockClient(t *testing.T) (*PostgresClient, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing()
	client, err := NewPostgresClient(context.Background(), mockPool, zap.NewNop())
	require.NoError(t, err)
	return client, mockPool
}

func TestNewPostgresClient_PingFailure(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	pingErr := errors.New("database unavailable")
	mockPool.ExpectPing().WillReturnError(pingErr)

	_, err = NewPostgresClient(context.Background(), mockPool, zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, pingErr)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgresSearch(t *testing.T) {
	client, mockPool := newMockClient(t)
	created := time.Now().UTC()

	rows := pgxmock.NewRows([]string{
		"id", "type", "content", "solution", "confidence", "metadata", "error_signature", "created_at",
	}).AddRow(
		"kb-1", "fix", "retry after timeout", "click_retry", 0.9,
		[]byte(`{"route":"/home"}`), "", created,
	).AddRow(
		"kb-2", "fix", "reload the page", "navigate_reload", 0.7,
		[]byte(nil), "", created,
	)

	mockPool.ExpectQuery("SELECT id, type, content, solution, confidence").
		WithArgs("timeout", "fix", 5).
		WillReturnRows(rows)

	got, err := client.Search(context.Background(), "timeout", schemas.SearchOptions{
		Type: schemas.KnowledgeFix,
		TopK: 5,
	})

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "kb-1", got[0].ID)
	assert.Equal(t, schemas.KnowledgeFix, got[0].Type)
	assert.Equal(t, "/home", got[0].Metadata["route"])
	assert.Nil(t, got[1].Metadata)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgresSearch_QueryError(t *testing.T) {
	client, mockPool := newMockClient(t)

	mockPool.ExpectQuery("SELECT id, type, content, solution, confidence").
		WithArgs("timeout", "", 5).
		WillReturnError(errors.New("connection reset"))

	_, err := client.Search(context.Background(), "timeout", schemas.SearchOptions{})
	assert.Error(t, err)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgresStore(t *testing.T) {
	client, mockPool := newMockClient(t)

	mockPool.ExpectExec("INSERT INTO knowledge_items").
		WithArgs("kb-1", "fix", "retry after timeout", "click_retry", 0.9,
			pgxmock.AnyArg(), "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := client.Store(context.Background(), schemas.KnowledgeItem{
		ID:         "kb-1",
		Type:       schemas.KnowledgeFix,
		Content:    "retry after timeout",
		Solution:   "click_retry",
		Confidence: 0.9,
		Metadata:   map[string]any{"route": "/home"},
	})

	require.NoError(t, err)
	assert.Equal(t, "kb-1", id)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgresStore_AssignsID(t *testing.T) {
	client, mockPool := newMockClient(t)

	mockPool.ExpectExec("INSERT INTO knowledge_items").
		WithArgs(pgxmock.AnyArg(), "observation", "something happened", "", 0.5,
			pgxmock.AnyArg(), "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := client.Store(context.Background(), schemas.KnowledgeItem{
		Type:       schemas.KnowledgeObservation,
		Content:    "something happened",
		Confidence: 0.5,
	})

	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgresUpdateConfidence(t *testing.T) {
	t.Run("success adds the step", func(t *testing.T) {
		client, mockPool := newMockClient(t)

		mockPool.ExpectExec("UPDATE knowledge_items").
			WithArgs("kb-1", 0.15).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, client.UpdateConfidence(context.Background(), "kb-1", true, 0.15))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("failure subtracts the step", func(t *testing.T) {
		client, mockPool := newMockClient(t)

		mockPool.ExpectExec("UPDATE knowledge_items").
			WithArgs("kb-1", -0.15).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, client.UpdateConfidence(context.Background(), "kb-1", false, 0.15))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("missing item is an error", func(t *testing.T) {
		client, mockPool := newMockClient(t)

		mockPool.ExpectExec("UPDATE knowledge_items").
			WithArgs("ghost", 0.15).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := client.UpdateConfidence(context.Background(), "ghost", true, 0.15)
		assert.ErrorContains(t, err, "not found")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}
