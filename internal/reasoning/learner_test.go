// File: internal/reasoning/learner_test.go
package reasoning

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/dowser-cli/api/schemas"
)

type confidenceCall struct {
	id      string
	success bool
	step    float64
}

// fakeKB is a scripted KnowledgeClient for engine and learner tests.
type fakeKB struct {
	searchItems     []schemas.KnowledgeItem
	searchErr       error
	searchQueries   []string
	stored          []schemas.KnowledgeItem
	storeErr        error
	confidenceCalls []confidenceCall
	confidenceErr   error
}

func (f *fakeKB) Search(_ context.Context, query string, _ schemas.SearchOptions) ([]schemas.KnowledgeItem, error) {
	f.searchQueries = append(f.searchQueries, query)
	return f.searchItems, f.searchErr
}

func (f *fakeKB) Store(_ context.Context, item schemas.KnowledgeItem) (string, error) {
	if f.storeErr != nil {
		return "", f.storeErr
	}
	f.stored = append(f.stored, item)
	return "stored-id", nil
}

func (f *fakeKB) UpdateConfidence(_ context.Context, id string, success bool, step float64) error {
	f.confidenceCalls = append(f.confidenceCalls, confidenceCall{id, success, step})
	return f.confidenceErr
}

func newLearnState(lastAction string, success bool) *schemas.AgentState {
	state := schemas.NewAgentState("run-1", "http://target", 100)
	state.UI = schemas.UIState{
		AvailableActions: []string{lastAction},
		Observation:      map[string]any{},
		Route:            "/home",
	}
	state.Exec.ActionHistory = []string{lastAction}
	state.Exec.StepCount = 1
	state.Exec.LastResult = &schemas.ExecutionResult{ActionID: lastAction, Success: success}
	return state
}

func TestLearn_AdjustsKnowledgeConfidence(t *testing.T) {
	tests := []struct {
		name    string
		success bool
	}{
		{name: "success nudges up", success: true},
		{name: "failure nudges down", success: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			kb := &fakeKB{}
			l := NewLearner(kb, zaptest.NewLogger(t))
			state := newLearnState("click_retry", tc.success)
			state.Decision = schemas.Decision{
				Source:      schemas.SourceKnowledgeBase,
				KnowledgeID: "kb-7",
				Control:     schemas.ControlContinue,
			}

			l.Learn(context.Background(), state, "click_retry", Signals{}, nil)

			require.Len(t, kb.confidenceCalls, 1)
			assert.Equal(t, "kb-7", kb.confidenceCalls[0].id)
			assert.Equal(t, tc.success, kb.confidenceCalls[0].success)
			assert.InDelta(t, 0.15, kb.confidenceCalls[0].step, 1e-9)
		})
	}
}

func TestLearn_ExplorationDecisionSkipsConfidenceUpdate(t *testing.T) {
	kb := &fakeKB{}
	l := NewLearner(kb, zaptest.NewLogger(t))
	state := newLearnState("click_next", true)
	state.Decision = schemas.Decision{Source: schemas.SourceExploration, Control: schemas.ControlContinue}

	l.Learn(context.Background(), state, "click_next", Signals{}, nil)

	assert.Empty(t, kb.confidenceCalls)
}

func TestLearn_StreamsBaselines(t *testing.T) {
	l := NewLearner(&fakeKB{}, zaptest.NewLogger(t))
	state := newLearnState("click_next", true)

	for _, v := range []float64{100, 200, 300} {
		l.Learn(context.Background(), state, "click_next", Signals{Metrics: map[string]float64{"response_time_ms": v}}, nil)
	}

	b := state.Knowledge.Baselines["response_time_ms"]
	assert.Equal(t, 3, b.SampleCount)
	assert.InDelta(t, 200, b.Mean, 1e-9)
	assert.Greater(t, b.StdDev, 0.0)
}

func TestLearn_UpdatesRiskScores(t *testing.T) {
	t.Run("anomalous action gets riskier", func(t *testing.T) {
		l := NewLearner(&fakeKB{}, zaptest.NewLogger(t))
		state := newLearnState("click_save", true)
		anomalies := []schemas.AnomalyReport{
			{ActionID: "click_save", Severity: schemas.SeverityHigh},
		}

		l.Learn(context.Background(), state, "click_save", Signals{}, anomalies)

		assert.Greater(t, state.Knowledge.RiskScores["click_save"], schemas.DefaultRiskScore)
	})

	t.Run("clean action decays", func(t *testing.T) {
		l := NewLearner(&fakeKB{}, zaptest.NewLogger(t))
		state := newLearnState("click_save", true)
		state.Knowledge.RiskScores["click_save"] = 0.5

		l.Learn(context.Background(), state, "click_save", Signals{}, nil)

		assert.Less(t, state.Knowledge.RiskScores["click_save"], 0.5)
	})
}

func TestLearn_TracksSuccessRate(t *testing.T) {
	l := NewLearner(&fakeKB{}, zaptest.NewLogger(t))
	state := newLearnState("click_save", true)

	l.Learn(context.Background(), state, "click_save", Signals{}, nil)
	l.Learn(context.Background(), state, "click_save", Signals{}, []schemas.AnomalyReport{
		{ActionID: "click_save", Severity: schemas.SeverityHigh},
	})

	b := state.Knowledge.Baselines["click_save_success_rate"]
	assert.Equal(t, 2, b.SampleCount)
	assert.InDelta(t, 0.5, b.Mean, 1e-9)
}

// After one step the cycle's anomalies always describe the action executed on
// the step before, never the one that just ran. Risk and success-rate updates
// must follow that attribution.
func TestLearn_AttributesOutcomeToEvaluatedAction(t *testing.T) {
	l := NewLearner(&fakeKB{}, zaptest.NewLogger(t))
	state := schemas.NewAgentState("run-1", "http://target", 100)
	state.UI = schemas.UIState{
		AvailableActions: []string{"click_y"},
		Observation:      map[string]any{},
		Route:            "/home",
	}
	// click_y just executed; the anomalies were detected against click_x.
	state.Exec.ActionHistory = []string{"click_x", "click_y"}
	state.Exec.StepCount = 2
	state.Exec.LastResult = &schemas.ExecutionResult{ActionID: "click_y", Success: true}
	anomalies := []schemas.AnomalyReport{
		{ActionID: "click_x", Severity: schemas.SeverityHigh,
			Category: schemas.CategoryInvariantViolation, Description: "entities disappeared"},
	}

	l.Learn(context.Background(), state, "click_x", Signals{}, anomalies)

	b := state.Knowledge.Baselines["click_x_success_rate"]
	require.Equal(t, 1, b.SampleCount)
	assert.InDelta(t, 0.0, b.Mean, 1e-9)
	assert.Greater(t, state.Knowledge.RiskScores["click_x"], schemas.DefaultRiskScore)

	// The just-executed action has not been evaluated yet; it gets neither a
	// success-rate sample nor a risk decay.
	_, tracked := state.Knowledge.Baselines["click_y_success_rate"]
	assert.False(t, tracked)
	_, scored := state.Knowledge.RiskScores["click_y"]
	assert.False(t, scored)
}

func TestLearn_PersistsOutcomeRecord(t *testing.T) {
	kb := &fakeKB{}
	l := NewLearner(kb, zaptest.NewLogger(t))
	state := newLearnState("click_save", true)
	anomalies := []schemas.AnomalyReport{
		{ActionID: "click_save", Severity: schemas.SeverityMedium,
			Category: schemas.CategoryInvariantViolation, Description: "boom"},
	}

	l.Learn(context.Background(), state, "click_save", Signals{}, anomalies)

	require.Len(t, kb.stored, 1)
	item := kb.stored[0]
	assert.Equal(t, schemas.KnowledgeError, item.Type)
	assert.Equal(t, "click_save", item.Solution)
	assert.Equal(t, "run-1", item.Metadata["run_id"])
	assert.NotEmpty(t, item.ErrorSignature)
}

func TestLearn_SwallowsKnowledgeStoreFailures(t *testing.T) {
	kb := &fakeKB{
		storeErr:      errors.New("store unreachable"),
		confidenceErr: errors.New("store unreachable"),
	}
	l := NewLearner(kb, zaptest.NewLogger(t))
	state := newLearnState("click_save", true)
	state.Decision = schemas.Decision{
		Source:      schemas.SourceKnowledgeBase,
		KnowledgeID: "kb-1",
	}

	assert.NotPanics(t, func() {
		l.Learn(context.Background(), state, "click_save", Signals{}, nil)
	})
}
