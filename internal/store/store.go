// Package store persists completed run artifacts. Every run writes a JSON
// trace file; when a database is configured the step records are copied
// there as well so traces can be queried across runs.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"github.com/xkilldash9x/dowser-cli/api/schemas"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FileStore writes one pretty-printed JSON file per run under a base
// directory. The file is named after the run ID.
type FileStore struct {
	dir string
	log *zap.Logger
}

var _ schemas.ArtifactStore = (*FileStore)(nil)

// NewFileStore creates the artifact directory if needed.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("artifact directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir, log: logger.Named("filestore")}, nil
}

// SaveRun writes the artifact to <dir>/<run_id>.json. The write goes through
// a temporary file and a rename, so a crash never leaves a truncated trace.
func (s *FileStore) SaveRun(ctx context.Context, artifact *schemas.RunArtifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run artifact: %w", err)
	}

	final := filepath.Join(s.dir, artifact.RunID+".json")
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write run artifact: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("failed to finalize run artifact: %w", err)
	}

	s.log.Info("Run artifact written",
		zap.String("run_id", artifact.RunID),
		zap.String("path", final),
		zap.Int("steps", len(artifact.Steps)))
	return nil
}

// Path returns the file a given run would be written to.
func (s *FileStore) Path(runID string) string {
	return filepath.Join(s.dir, runID+".json")
}

// DBPool abstracts pgxpool.Pool for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// PostgresStore persists run metadata to the runs table and the full step
// trace to run_steps. Both writes happen in one transaction.
type PostgresStore struct {
	pool DBPool
	log  *zap.Logger
}

var _ schemas.ArtifactStore = (*PostgresStore)(nil)

// NewPostgresStore verifies the connection before returning a store.
func NewPostgresStore(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{pool: pool, log: logger.Named("pgstore")}, nil
}

const sqlUpsertRun = `
	INSERT INTO runs (run_id, target, started_at, finished_at, final_control, stop_reason, anomalies, baselines, risk_scores)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (run_id) DO UPDATE SET
		finished_at = EXCLUDED.finished_at,
		final_control = EXCLUDED.final_control,
		stop_reason = EXCLUDED.stop_reason,
		anomalies = EXCLUDED.anomalies,
		baselines = EXCLUDED.baselines,
		risk_scores = EXCLUDED.risk_scores;`

// SaveRun writes the run row and bulk-copies the step records.
func (s *PostgresStore) SaveRun(ctx context.Context, artifact *schemas.RunArtifact) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
	}()

	anomalies, err := marshalJSONB(artifact.Anomalies)
	if err != nil {
		return err
	}
	baselines, err := marshalJSONB(artifact.Baselines)
	if err != nil {
		return err
	}
	risks, err := marshalJSONB(artifact.RiskScores)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, sqlUpsertRun,
		artifact.RunID, artifact.Target,
		artifact.StartedAt.UTC(), artifact.FinishedAt.UTC(),
		string(artifact.FinalControl), artifact.StopReason,
		anomalies, baselines, risks,
	); err != nil {
		return fmt.Errorf("failed to upsert run row: %w", err)
	}

	if len(artifact.Steps) > 0 {
		if err := s.copySteps(ctx, tx, artifact.RunID, artifact.Steps); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) copySteps(ctx context.Context, tx pgx.Tx, runID string, steps []schemas.StepRecord) error {
	rows := make([][]any, len(steps))
	for i, rec := range steps {
		observation, err := marshalJSONB(rec.Observation)
		if err != nil {
			return err
		}
		decision, err := marshalJSONB(rec.Decision)
		if err != nil {
			return err
		}
		result, err := marshalJSONB(rec.Result)
		if err != nil {
			return err
		}
		rows[i] = []any{
			runID, rec.Step, rec.Action,
			observation, decision, result,
			rec.RecordedAt.UTC(),
		}
	}

	copied, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"run_steps"},
		[]string{"run_id", "step", "action", "observation", "decision", "result", "recorded_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to copy step records: %w", err)
	}
	if int(copied) != len(steps) {
		return fmt.Errorf("mismatch in copied step count: expected %d, got %d", len(steps), copied)
	}
	return nil
}

// marshalJSONB renders a value for a jsonb column, mapping Go nil and empty
// values to the empty object so the column never holds SQL-visible "null".
func marshalJSONB(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal jsonb value: %w", err)
	}
	if len(data) == 0 || string(data) == "null" {
		return []byte("{}"), nil
	}
	return data, nil
}

// MultiStore fans a SaveRun out to every backing store concurrently. A
// failure in one backend does not stop the others; the first error is
// returned after all attempts complete.
type MultiStore struct {
	stores []schemas.ArtifactStore
}

var _ schemas.ArtifactStore = (*MultiStore)(nil)

// Combine wraps the given stores. A single store is returned unwrapped.
func Combine(stores ...schemas.ArtifactStore) schemas.ArtifactStore {
	if len(stores) == 1 {
		return stores[0]
	}
	return &MultiStore{stores: stores}
}

// SaveRun writes the artifact to all backends in parallel.
func (m *MultiStore) SaveRun(ctx context.Context, artifact *schemas.RunArtifact) error {
	var g errgroup.Group
	for _, st := range m.stores {
		g.Go(func() error {
			return st.SaveRun(ctx, artifact)
		})
	}
	return g.Wait()
}

// stamp is injectable for tests that assert on written timestamps.
var stamp = time.Now

// FinishArtifact builds the durable record from the final agent state.
func FinishArtifact(state *schemas.AgentState, startedAt time.Time, stopReason string) *schemas.RunArtifact {
	return &schemas.RunArtifact{
		RunID:        state.RunID,
		Target:       state.Target,
		StartedAt:    startedAt,
		FinishedAt:   stamp(),
		FinalControl: state.Decision.Control,
		StopReason:   stopReason,
		Steps:        state.Steps,
		Anomalies:    state.Anomalies,
		Baselines:    state.Knowledge.Baselines,
		RiskScores:   state.Knowledge.RiskScores,
	}
}
