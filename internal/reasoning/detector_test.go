// File: internal/reasoning/detector_test.go
package reasoning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/dowser-cli/api/schemas"
	"github.com/xkilldash9x/dowser-cli/internal/obscompare"
)

func newTestDetector(t *testing.T) (*Detector, *Interpreter) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	cmp := obscompare.New(logger)
	return NewDetector(cmp, logger), NewInterpreter(cmp)
}

func detect(t *testing.T, state *schemas.AgentState) []schemas.AnomalyReport {
	t.Helper()
	det, interp := newTestDetector(t)
	view := state.View()
	return det.Detect(view, interp.Interpret(view))
}

func TestDetect_CauseEffect_UnchangedObservation(t *testing.T) {
	state := schemas.NewAgentState("run-1", "http://target", 100)
	state.UI = schemas.UIState{
		AvailableActions: []string{"click_submit"},
		Observation:      map[string]any{"button_enabled": true},
	}
	state.Exec.ActionHistory = []string{"click_submit"}
	state.Exec.PreviousObservation = map[string]any{"button_enabled": true}
	state.Exec.LastResult = &schemas.ExecutionResult{ActionID: "click_submit", Success: true}

	reports := detect(t, state)

	require.Len(t, reports, 1, "identical observation after a successful action must yield exactly one report")
	assert.Equal(t, schemas.SeverityMedium, reports[0].Severity)
	assert.Equal(t, schemas.CategoryInvariantViolation, reports[0].Category)
	assert.Equal(t, "click_submit", reports[0].ActionID)
}

func TestDetect_CauseEffect_ChangedObservationIsClean(t *testing.T) {
	state := schemas.NewAgentState("run-1", "http://target", 100)
	state.UI = schemas.UIState{
		AvailableActions: []string{"click_submit"},
		Observation:      map[string]any{"button_enabled": false},
	}
	state.Exec.ActionHistory = []string{"click_submit"}
	state.Exec.PreviousObservation = map[string]any{"button_enabled": true}
	state.Exec.LastResult = &schemas.ExecutionResult{ActionID: "click_submit", Success: true}

	assert.Empty(t, detect(t, state))
}

func TestDetect_CauseEffect_FailedActionIsNotChecked(t *testing.T) {
	state := schemas.NewAgentState("run-1", "http://target", 100)
	state.UI = schemas.UIState{
		AvailableActions: []string{"click_submit"},
		Observation:      map[string]any{"button_enabled": true},
	}
	state.Exec.ActionHistory = []string{"click_submit"}
	state.Exec.PreviousObservation = map[string]any{"button_enabled": true}
	state.Exec.LastResult = &schemas.ExecutionResult{ActionID: "click_submit", Success: false}

	assert.Empty(t, detect(t, state))
}

func TestDetect_APIUIConsistency(t *testing.T) {
	state := schemas.NewAgentState("run-1", "http://target", 100)
	state.UI = schemas.UIState{
		AvailableActions: []string{"click_save"},
		Observation: map[string]any{
			"error": "save failed: validation error",
			"saved": false,
		},
	}
	state.Exec.ActionHistory = []string{"click_save"}
	state.Exec.PreviousObservation = map[string]any{"saved": false}
	state.Exec.LastResult = &schemas.ExecutionResult{ActionID: "click_save", Success: true}

	reports := detect(t, state)

	require.Len(t, reports, 1)
	assert.Equal(t, schemas.SeverityHigh, reports[0].Severity)
	assert.Equal(t, schemas.CategoryInvariantViolation, reports[0].Category)
	assert.Contains(t, reports[0].Evidence.Observed, "save failed")
}

func TestDetect_EntityContinuity(t *testing.T) {
	tests := []struct {
		name     string
		action   string
		expected int
	}{
		{name: "non-delete action losing entities", action: "click_refresh", expected: 1},
		{name: "delete action may remove entities", action: "delete_item_42", expected: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			state := schemas.NewAgentState("run-1", "http://target", 100)
			state.UI = schemas.UIState{
				AvailableActions: []string{tc.action},
				Observation: map[string]any{
					"entities": map[string]any{"item-1": "a"},
					"step":     2,
				},
			}
			state.Exec.ActionHistory = []string{tc.action}
			state.Exec.PreviousObservation = map[string]any{
				"entities": map[string]any{"item-1": "a", "item-42": "b"},
				"step":     1,
			}
			state.Exec.LastResult = &schemas.ExecutionResult{ActionID: tc.action, Success: true}

			reports := detect(t, state)

			require.Len(t, reports, tc.expected)
			if tc.expected > 0 {
				assert.Equal(t, schemas.SeverityHigh, reports[0].Severity)
				assert.Equal(t, schemas.CategoryInvariantViolation, reports[0].Category)
				assert.Contains(t, reports[0].Evidence.Observed, "item-42")
			}
		})
	}
}

func TestDetect_EntityContinuity_ReportsEveryLostEntitySorted(t *testing.T) {
	state := schemas.NewAgentState("run-1", "http://target", 100)
	state.UI = schemas.UIState{
		AvailableActions: []string{"click_refresh"},
		Observation: map[string]any{
			"entities": map[string]any{"item-1": "a"},
		},
	}
	state.Exec.ActionHistory = []string{"click_refresh"}
	state.Exec.PreviousObservation = map[string]any{
		"entities": map[string]any{"item-1": "a", "item-9": "b", "item-3": "c"},
	}
	state.Exec.LastResult = &schemas.ExecutionResult{ActionID: "click_refresh", Success: true}

	reports := detect(t, state)

	require.Len(t, reports, 1)
	assert.Contains(t, reports[0].Evidence.Observed, "item-3, item-9")
	assert.Contains(t, reports[0].Description, "2 entities disappeared")
}

func TestDetect_ForwardProgress_Stall(t *testing.T) {
	stalled := map[string]any{"form_empty": true}
	state := schemas.NewAgentState("run-1", "http://target", 100)
	state.UI = schemas.UIState{
		AvailableActions: []string{"fill_username", "fill_password", "click_submit"},
		Observation:      stalled,
	}
	for i, action := range []string{"fill_username", "fill_password", "click_submit"} {
		state.RecordStep(schemas.StepRecord{Step: i + 1, Action: action, Observation: stalled})
	}
	state.Exec.ActionHistory = []string{"fill_username", "fill_password", "click_submit"}

	reports := detect(t, state)

	require.Len(t, reports, 1, "a three-step stall must yield exactly one report")
	assert.Equal(t, schemas.SeverityMedium, reports[0].Severity)
	assert.Equal(t, schemas.CategoryInstability, reports[0].Category)
}

func TestDetect_ForwardProgress_FiresOnlyOncePerStall(t *testing.T) {
	stalled := map[string]any{"form_empty": true}
	state := schemas.NewAgentState("run-1", "http://target", 100)
	state.UI = schemas.UIState{
		AvailableActions: []string{"click_reset"},
		Observation:      stalled,
	}
	for i, action := range []string{"fill_username", "fill_password", "click_submit", "click_reset"} {
		state.RecordStep(schemas.StepRecord{Step: i + 1, Action: action, Observation: stalled})
	}
	state.Exec.ActionHistory = []string{"fill_username", "fill_password", "click_submit", "click_reset"}

	assert.Empty(t, detect(t, state), "an ongoing stall must not report again each cycle")
}

func TestDetect_ForwardProgress_RepeatedSameActionNotAStall(t *testing.T) {
	stalled := map[string]any{"page": "home"}
	state := schemas.NewAgentState("run-1", "http://target", 100)
	state.UI = schemas.UIState{
		AvailableActions: []string{"click_refresh"},
		Observation:      stalled,
	}
	for i := 0; i < 3; i++ {
		state.RecordStep(schemas.StepRecord{Step: i + 1, Action: "click_refresh", Observation: stalled})
	}
	state.Exec.ActionHistory = []string{"click_refresh", "click_refresh", "click_refresh"}

	assert.Empty(t, detect(t, state))
}

func TestDetect_Stability(t *testing.T) {
	tests := []struct {
		name         string
		value        float64
		wantReports  int
		wantSeverity schemas.AnomalySeverity
	}{
		{name: "6 sigma deviation is HIGH", value: 500, wantReports: 1, wantSeverity: schemas.SeverityHigh},
		{name: "3 sigma deviation is MEDIUM", value: 350, wantReports: 1, wantSeverity: schemas.SeverityMedium},
		{name: "within 2 sigma is clean", value: 220, wantReports: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			state := schemas.NewAgentState("run-1", "http://target", 100)
			state.UI = schemas.UIState{
				AvailableActions: []string{"click_next"},
				Observation:      map[string]any{"response_time_ms": tc.value},
			}
			state.Knowledge.Baselines["response_time_ms"] = schemas.Baseline{
				Mean: 200, StdDev: 50, SampleCount: 10,
			}

			reports := detect(t, state)

			require.Len(t, reports, tc.wantReports)
			if tc.wantReports > 0 {
				assert.Equal(t, tc.wantSeverity, reports[0].Severity)
				assert.Equal(t, schemas.CategoryRegression, reports[0].Category)
			}
		})
	}
}

func TestDetect_Stability_ColdStartSkipsMetric(t *testing.T) {
	state := schemas.NewAgentState("run-1", "http://target", 100)
	state.UI = schemas.UIState{
		AvailableActions: []string{"click_next"},
		Observation:      map[string]any{"response_time_ms": 99999.0},
	}
	// Baseline exists but has too few samples to be trusted.
	state.Knowledge.Baselines["response_time_ms"] = schemas.Baseline{
		Mean: 200, StdDev: 50, SampleCount: 2,
	}

	assert.Empty(t, detect(t, state))
}

func TestDetect_Deterministic(t *testing.T) {
	state := schemas.NewAgentState("run-1", "http://target", 100)
	state.UI = schemas.UIState{
		AvailableActions: []string{"click_submit"},
		Observation: map[string]any{
			"error":            "boom",
			"response_time_ms": 500.0,
			"element_count":    80.0,
		},
	}
	state.Exec.ActionHistory = []string{"click_submit"}
	state.Exec.PreviousObservation = map[string]any{
		"error":            "boom",
		"response_time_ms": 500.0,
		"element_count":    80.0,
	}
	state.Exec.LastResult = &schemas.ExecutionResult{ActionID: "click_submit", Success: true}
	state.Knowledge.Baselines["response_time_ms"] = schemas.Baseline{Mean: 200, StdDev: 50, SampleCount: 10}
	state.Knowledge.Baselines["element_count"] = schemas.Baseline{Mean: 40, StdDev: 5, SampleCount: 10}

	first := detect(t, state)
	second := detect(t, state)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Severity, second[i].Severity)
		assert.Equal(t, first[i].Category, second[i].Category)
		assert.Equal(t, first[i].Description, second[i].Description)
	}
}
