// File: internal/reasoning/engine.go

// Package reasoning implements the decision core: interpret the structured
// UI state, detect coherence anomalies, route to a control decision, plan
// the next action and learn from its outcome. The cycle is strictly
// sequential; routing always runs before planning so termination never pays
// for a planning pass.
package reasoning

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/dowser-cli/api/schemas"
	"github.com/xkilldash9x/dowser-cli/internal/obscompare"
)

// EngineOptions tunes the knowledge lookup the engine performs between
// routing and planning.
type EngineOptions struct {
	// SearchTopK caps how many suggestions one lookup retrieves.
	SearchTopK int
	// SearchTimeout bounds a single knowledge lookup. The lookup degrades to
	// pure exploration on expiry rather than stalling the cycle.
	SearchTimeout time.Duration
	// CoverageSteps sets the planner's initial untried-in-order window. Zero
	// keeps the default.
	CoverageSteps int
}

func (o *EngineOptions) fill() {
	if o.SearchTopK <= 0 {
		o.SearchTopK = 5
	}
	if o.SearchTimeout <= 0 {
		o.SearchTimeout = 3 * time.Second
	}
	if o.CoverageSteps <= 0 {
		o.CoverageSteps = coverageSteps
	}
}

// CycleResult is everything one reasoning cycle produced.
type CycleResult struct {
	Signals   Signals
	Anomalies []schemas.AnomalyReport
	Control   schemas.ControlDecision
	Reason    string
	Decision  schemas.Decision
}

// Engine runs one full reasoning cycle over the agent state. It owns the
// interpreter, detector, planner and learner, plus the knowledge client used
// to fetch suggestions for anomalous cycles.
type Engine struct {
	interp  *Interpreter
	det     *Detector
	planner *Planner
	learner *Learner
	kb      schemas.KnowledgeClient
	opts    EngineOptions
	logger  *zap.Logger
}

// NewEngine wires the reasoning components. kb may be nil; the engine then
// plans purely by exploration.
func NewEngine(kb schemas.KnowledgeClient, opts EngineOptions, logger *zap.Logger) *Engine {
	opts.fill()
	cmp := obscompare.New(logger)
	planner := NewPlanner(logger)
	planner.coverageWindow = opts.CoverageSteps
	return &Engine{
		interp:  NewInterpreter(cmp),
		det:     NewDetector(cmp, logger),
		planner: planner,
		learner: NewLearner(kb, logger),
		kb:      kb,
		opts:    opts,
		logger:  logger.Named("engine"),
	}
}

// Cycle executes Interpret -> Detect -> Route -> Plan over the state. The
// router's verdict is final for the cycle: a TERMINATE never reaches the
// planner, and a DEEP_TEST is carried through onto the planned decision.
func (e *Engine) Cycle(ctx context.Context, state *schemas.AgentState) CycleResult {
	view := state.View()

	sig := e.interp.Interpret(view)
	reports := e.det.Detect(view, sig)
	state.AppendAnomalies(reports...)

	exec := state.Exec
	control, reason := Route(RouteContext{
		AvailableActions: len(state.UI.AvailableActions),
		StepCount:        exec.StepCount,
		MaxSteps:         exec.MaxSteps,
		Log:              state.Anomalies,
		Cycle:            reports,
		LastActionRisk:   view.RiskScore(exec.LastAction()),
	})

	if control == schemas.ControlTerminate {
		state.Decision = schemas.Decision{
			Control:   schemas.ControlTerminate,
			Source:    schemas.SourceExploration,
			Reasoning: reason,
		}
		e.logger.Info("routing terminated cycle",
			zap.Int("step", exec.StepCount),
			zap.String("reason", reason))
		return CycleResult{Signals: sig, Anomalies: reports, Control: control, Reason: reason, Decision: state.Decision}
	}

	if len(reports) > 0 {
		e.fetchSuggestions(ctx, state, reports)
	}

	decision := e.planner.Plan(state)
	if decision.NextAction != nil && control == schemas.ControlDeepTest {
		decision.Control = schemas.ControlDeepTest
		state.Decision = decision
	}

	e.logger.Debug("cycle complete",
		zap.Int("step", exec.StepCount),
		zap.String("control", string(decision.Control)),
		zap.String("source", string(decision.Source)),
		zap.Int("anomalies", len(reports)),
		zap.Strings("safest_actions", SafestActions(state.UI.AvailableActions, state.Knowledge.RiskScores, 3)))

	return CycleResult{Signals: sig, Anomalies: reports, Control: control, Reason: reason, Decision: decision}
}

// Learn feeds the executed outcome back into the knowledge partitions. It is
// the second engine entry point, called by the orchestrator after execution
// and re-discovery. evaluated is the action this cycle's detection pass
// judged, not the one just executed.
func (e *Engine) Learn(ctx context.Context, state *schemas.AgentState, evaluated string, sig Signals, cycleAnomalies []schemas.AnomalyReport) {
	e.learner.Learn(ctx, state, evaluated, sig, cycleAnomalies)
}

// fetchSuggestions asks the knowledge store for fixes matching this cycle's
// first anomaly. The store is eventually consistent and optional: lookup
// failures log and leave the suggestion list empty.
func (e *Engine) fetchSuggestions(ctx context.Context, state *schemas.AgentState, reports []schemas.AnomalyReport) {
	if e.kb == nil {
		return
	}
	lookupCtx, cancel := context.WithTimeout(ctx, e.opts.SearchTimeout)
	defer cancel()

	query := reports[0].Description
	items, err := e.kb.Search(lookupCtx, query, schemas.SearchOptions{TopK: e.opts.SearchTopK})
	if err != nil {
		e.logger.Warn("knowledge lookup failed, planning by exploration",
			zap.String("query", query),
			zap.Error(err))
		state.Knowledge.Suggestions = nil
		return
	}
	state.Knowledge.Suggestions = items
}
