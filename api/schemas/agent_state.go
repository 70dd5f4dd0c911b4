package schemas

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
	"time"
)

// ControlDecision is the routing verdict for a single reasoning cycle.
type ControlDecision string

const (
	ControlContinue  ControlDecision = "CONTINUE"  // Proceed with normal exploration.
	ControlDeepTest  ControlDecision = "DEEP_TEST" // Something looks off; investigate more aggressively.
	ControlTerminate ControlDecision = "TERMINATE" // Stop the run.
)

// DecisionSource records which tier produced a decision.
type DecisionSource string

const (
	SourceKnowledgeBase DecisionSource = "knowledge_base"
	SourceExploration   DecisionSource = "exploration"
)

// AnomalySeverity grades how serious a coherence violation is.
type AnomalySeverity string

const (
	SeverityLow    AnomalySeverity = "LOW"
	SeverityMedium AnomalySeverity = "MEDIUM"
	SeverityHigh   AnomalySeverity = "HIGH"
)

// AnomalyCategory classifies what kind of incoherence was observed.
type AnomalyCategory string

const (
	CategoryInvariantViolation AnomalyCategory = "INVARIANT_VIOLATION"
	CategoryRegression         AnomalyCategory = "REGRESSION"
	CategoryInstability        AnomalyCategory = "INSTABILITY"
)

// DefaultRiskScore is the neutral starting risk for a never-seen action.
const DefaultRiskScore = 0.5

// AnomalyEvidence captures the expected-vs-observed pair backing a report.
type AnomalyEvidence struct {
	Expected string         `json:"expected"`
	Observed string         `json:"observed"`
	Context  map[string]any `json:"context,omitempty"`
}

// AnomalyReport is an immutable record of a single coherence violation.
// Reports are append-only: once created they are never edited.
type AnomalyReport struct {
	Severity    AnomalySeverity `json:"severity"`
	Category    AnomalyCategory `json:"category"`
	ActionID    string          `json:"action_id,omitempty"`
	Description string          `json:"description"`
	Evidence    AnomalyEvidence `json:"evidence"`
	DetectedAt  time.Time       `json:"detected_at"`
}

// forbiddenParameterKeys are parameter names that would leak rendering
// internals into the reasoning layer. The core only speaks action IDs.
var forbiddenParameterKeys = map[string]struct{}{
	"selector":     {},
	"css_selector": {},
	"xpath":        {},
	"dom":          {},
}

// ActionContract is the only shape of action the reasoning core may emit.
// The ActionID must be a member of the most recent UIState.AvailableActions;
// the core never invents actions.
type ActionContract struct {
	ActionID   string         `json:"action_id"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Validate checks the structural constraints on the contract. It does NOT
// check membership in the available action set; that requires the current
// UIState and is enforced by ValidateAgainst.
func (a ActionContract) Validate() error {
	if strings.TrimSpace(a.ActionID) == "" {
		return fmt.Errorf("action_id cannot be empty")
	}
	for key := range a.Parameters {
		if _, forbidden := forbiddenParameterKeys[strings.ToLower(key)]; forbidden {
			return fmt.Errorf("forbidden parameter %q: action parameters cannot carry selectors or DOM references", key)
		}
	}
	return nil
}

// ValidateAgainst enforces the full contract: structurally valid AND a member
// of the supplied available action set. A violation here is a defect in the
// planner, not a legitimate decision.
func (a ActionContract) ValidateAgainst(availableActions []string) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if !slices.Contains(availableActions, a.ActionID) {
		return fmt.Errorf("action %q is not in the available action set", a.ActionID)
	}
	return nil
}

// UIState is the structured snapshot of the target produced by discovery.
// READ-ONLY for the reasoning core; only the orchestrator replaces it
// between cycles.
type UIState struct {
	// AvailableActions is the ordered, de-duplicated set of action IDs that
	// can currently be executed against the target.
	AvailableActions []string `json:"available_actions"`
	// Observation is an opaque structured snapshot. No raw markup; the core
	// interprets only declared metric names and well-known signal keys.
	Observation map[string]any `json:"observation"`
	PageURL     string         `json:"page_url,omitempty"`
	Route       string         `json:"route,omitempty"`
	Title       string         `json:"title,omitempty"`
}

// HasAction reports whether the given action ID is currently executable.
func (u UIState) HasAction(actionID string) bool {
	return slices.Contains(u.AvailableActions, actionID)
}

// ExecutionResult is the outcome reported by the UI collaborator after an
// action has been physically executed.
type ExecutionResult struct {
	ActionID      string        `json:"action_id"`
	Success       bool          `json:"success"`
	Skipped       bool          `json:"skipped"`
	NetworkCalls  int           `json:"network_calls"`
	ConsoleErrors []string      `json:"console_errors,omitempty"`
	ScreenshotRef string        `json:"screenshot_ref,omitempty"`
	Duration      time.Duration `json:"duration_ns"`
}

// ExecutionContext tracks run progress. READ-ONLY for the reasoning core.
type ExecutionContext struct {
	StepCount int `json:"step_count"`
	MaxSteps  int `json:"max_steps"`
	// ActionHistory lists the action IDs executed so far, oldest first.
	ActionHistory []string `json:"action_history"`
	// PreviousObservation is the observation snapshot from before the last
	// executed action, used for delta and cause-effect checks.
	PreviousObservation map[string]any `json:"previous_observation,omitempty"`
	// LastResult is the execution result of the most recent action, nil on
	// the first cycle.
	LastResult *ExecutionResult `json:"last_result,omitempty"`
}

// LastAction returns the most recently executed action ID, or "" before the
// first execution.
func (e ExecutionContext) LastAction() string {
	if len(e.ActionHistory) == 0 {
		return ""
	}
	return e.ActionHistory[len(e.ActionHistory)-1]
}

// Baseline holds the learned statistics for one numeric metric.
type Baseline struct {
	Mean        float64 `json:"mean"`
	StdDev      float64 `json:"std_dev"`
	SampleCount int     `json:"sample_count"`
}

// Observe folds a new sample into the baseline using Welford's online
// algorithm, returning the updated baseline. The receiver is unchanged.
func (b Baseline) Observe(value float64) Baseline {
	count := b.SampleCount + 1
	delta := value - b.Mean
	mean := b.Mean + delta/float64(count)
	delta2 := value - mean
	variance := (float64(b.SampleCount)*(b.StdDev*b.StdDev) + delta*delta2) / float64(count)
	if variance < 0 {
		variance = 0
	}
	return Baseline{
		Mean:        mean,
		StdDev:      math.Sqrt(variance),
		SampleCount: count,
	}
}

// Knowledge is the learned portion of agent state. Baselines and risk scores
// are WRITABLE by the reasoning core (planner/learner only).
type Knowledge struct {
	// Baselines maps metric name to its learned statistics.
	Baselines map[string]Baseline `json:"baselines"`
	// RiskScores maps action ID to a risk value in [0,1].
	RiskScores map[string]float64 `json:"risk_scores"`
	// Suggestions are the ranked, untrusted knowledge items retrieved for
	// this cycle, cleared after planning.
	Suggestions []KnowledgeItem `json:"suggestions,omitempty"`
}

// Decision is the output of one reasoning cycle. Always recomputed, never
// carried over.
type Decision struct {
	NextAction *ActionContract `json:"next_action,omitempty"`
	Control    ControlDecision `json:"control"`
	Confidence float64         `json:"confidence"`
	Source     DecisionSource  `json:"source,omitempty"`
	// KnowledgeID is set when Source is knowledge_base and names the item
	// whose confidence the learner later adjusts.
	KnowledgeID string `json:"knowledge_id,omitempty"`
	Reasoning   string `json:"reasoning,omitempty"`
}

// StepRecord is one entry in the append-only run trace.
type StepRecord struct {
	Step        int              `json:"step"`
	Action      string           `json:"action"`
	Observation map[string]any   `json:"observation"`
	Anomalies   []AnomalyReport  `json:"anomalies,omitempty"`
	Result      *ExecutionResult `json:"result,omitempty"`
	Decision    Decision         `json:"decision"`
	RecordedAt  time.Time        `json:"recorded_at"`
}

// AgentState is the root record for one run, threaded by reference through
// every cycle. Partitions carry distinct mutability:
//
//	UI, Exec              read-only to the reasoning core
//	Decision              writable (planner)
//	Knowledge             baselines/risk scores writable (planner/learner)
//	Anomalies, Steps      append-only
//
// Read-only access is enforced structurally: interpreter, detector and
// router receive a ReadView, which cannot mutate anything. Only the planner
// and learner receive the *AgentState write handle.
type AgentState struct {
	RunID     string           `json:"run_id"`
	Target    string           `json:"target"`
	UI        UIState          `json:"ui_state"`
	Exec      ExecutionContext `json:"execution_context"`
	Knowledge Knowledge        `json:"knowledge"`
	Decision  Decision         `json:"decision"`
	Anomalies []AnomalyReport  `json:"anomalies"`
	Steps     []StepRecord     `json:"steps"`
}

// NewAgentState creates the state record for a fresh run.
func NewAgentState(runID, target string, maxSteps int) *AgentState {
	return &AgentState{
		RunID:  runID,
		Target: target,
		Exec:   ExecutionContext{MaxSteps: maxSteps},
		Knowledge: Knowledge{
			Baselines:  make(map[string]Baseline),
			RiskScores: make(map[string]float64),
		},
	}
}

// View returns a read-only window over the state for the interpret, detect
// and route phases.
func (s *AgentState) View() ReadView {
	return ReadView{state: s}
}

// AppendAnomalies adds newly detected reports to the append-only log.
func (s *AgentState) AppendAnomalies(reports ...AnomalyReport) {
	s.Anomalies = append(s.Anomalies, reports...)
}

// RecordStep appends one entry to the run trace.
func (s *AgentState) RecordStep(rec StepRecord) {
	s.Steps = append(s.Steps, rec)
}

// ReadView exposes the state to read-only phases. All map and slice values
// returned are defensive copies, so an illegal write is structurally
// impossible rather than merely forbidden by convention.
type ReadView struct {
	state *AgentState
}

// RunID returns the run identifier.
func (v ReadView) RunID() string { return v.state.RunID }

// AvailableActions returns a copy of the current action set.
func (v ReadView) AvailableActions() []string {
	return slices.Clone(v.state.UI.AvailableActions)
}

// Observation returns a copy of the current structured observation.
func (v ReadView) Observation() map[string]any {
	return maps.Clone(v.state.UI.Observation)
}

// PageURL returns the current page URL.
func (v ReadView) PageURL() string { return v.state.UI.PageURL }

// Route returns the current route.
func (v ReadView) Route() string { return v.state.UI.Route }

// Exec returns a copy of the execution context.
func (v ReadView) Exec() ExecutionContext {
	ec := v.state.Exec
	ec.ActionHistory = slices.Clone(ec.ActionHistory)
	ec.PreviousObservation = maps.Clone(ec.PreviousObservation)
	if ec.LastResult != nil {
		res := *ec.LastResult
		ec.LastResult = &res
	}
	return ec
}

// Baseline returns the learned statistics for a metric, if any.
func (v ReadView) Baseline(metric string) (Baseline, bool) {
	b, ok := v.state.Knowledge.Baselines[metric]
	return b, ok
}

// RiskScore returns the learned risk for an action, defaulting to the
// neutral 0.5 for never-seen actions.
func (v ReadView) RiskScore(actionID string) float64 {
	if r, ok := v.state.Knowledge.RiskScores[actionID]; ok {
		return r
	}
	return DefaultRiskScore
}

// Anomalies returns a copy of the full anomaly log, oldest first.
func (v ReadView) Anomalies() []AnomalyReport {
	return slices.Clone(v.state.Anomalies)
}

// Steps returns a copy of the run trace.
func (v ReadView) Steps() []StepRecord {
	return slices.Clone(v.state.Steps)
}
