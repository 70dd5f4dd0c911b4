// File: internal/reasoning/learner.go
package reasoning

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/dowser-cli/api/schemas"
)

// confidenceStep is the fixed adjustment applied to a knowledge item after
// its suggested action has been executed.
const confidenceStep = 0.15

// Learner folds the outcome of one executed action back into the writable
// knowledge partitions and the external knowledge store. It makes no
// decisions; a learner failure never fails the cycle.
type Learner struct {
	kb     schemas.KnowledgeClient
	logger *zap.Logger
}

func NewLearner(kb schemas.KnowledgeClient, logger *zap.Logger) *Learner {
	return &Learner{kb: kb, logger: logger.Named("learner")}
}

// Learn processes the outcome of the most recent cycle: knowledge item
// confidence, metric baselines, per-action risk and success-rate tracking,
// and a persisted outcome record. evaluated is the action this cycle's
// anomalies were detected against (the one executed on the previous step);
// risk, success-rate and outcome records attach to it, while knowledge
// confidence follows the decision whose action was just executed. Knowledge
// store failures are logged and swallowed; they must never stall or abort
// the run.
func (l *Learner) Learn(ctx context.Context, state *schemas.AgentState, evaluated string, sig Signals, cycleAnomalies []schemas.AnomalyReport) {
	succeeded := executionSucceeded(state.Exec.LastResult)

	l.adjustKnowledgeConfidence(ctx, state, succeeded)
	l.updateBaselines(state, sig)
	l.updateRisks(state, evaluated, cycleAnomalies)
	l.trackSuccessRate(state, evaluated, cycleAnomalies)
	l.persistOutcome(ctx, state, evaluated, cycleAnomalies)
}

// adjustKnowledgeConfidence nudges the used knowledge item up or down
// depending on whether its suggestion actually worked.
func (l *Learner) adjustKnowledgeConfidence(ctx context.Context, state *schemas.AgentState, succeeded bool) {
	if l.kb == nil {
		return
	}
	d := state.Decision
	if d.Source != schemas.SourceKnowledgeBase || d.KnowledgeID == "" {
		return
	}
	if err := l.kb.UpdateConfidence(ctx, d.KnowledgeID, succeeded, confidenceStep); err != nil {
		l.logger.Warn("confidence update failed",
			zap.String("knowledge_id", d.KnowledgeID),
			zap.Bool("success", succeeded),
			zap.Error(err))
	}
}

// updateBaselines streams each metric observed this cycle into its Welford
// baseline.
func (l *Learner) updateBaselines(state *schemas.AgentState, sig Signals) {
	if state.Knowledge.Baselines == nil {
		state.Knowledge.Baselines = make(map[string]schemas.Baseline)
	}
	for name, value := range sig.Metrics {
		state.Knowledge.Baselines[name] = state.Knowledge.Baselines[name].Observe(value)
	}
}

// updateRisks attributes this cycle's anomalies to their actions, then decays
// the risk of the evaluated action when it came through clean.
func (l *Learner) updateRisks(state *schemas.AgentState, evaluated string, cycleAnomalies []schemas.AnomalyReport) {
	if state.Knowledge.RiskScores == nil {
		state.Knowledge.RiskScores = make(map[string]float64)
	}
	UpdateRisksFromAnomalies(state.Knowledge.RiskScores, cycleAnomalies)

	if evaluated == "" {
		return
	}
	triggered := false
	for _, a := range cycleAnomalies {
		if a.ActionID == evaluated {
			triggered = true
			break
		}
	}
	if !triggered {
		current, ok := state.Knowledge.RiskScores[evaluated]
		if !ok {
			current = schemas.DefaultRiskScore
		}
		state.Knowledge.RiskScores[evaluated] = UpdateRiskScore(current, false, schemas.SeverityLow)
	}
}

// trackSuccessRate maintains a streaming success-rate baseline per action. An
// execution counts as successful when it triggered no high-severity anomaly.
func (l *Learner) trackSuccessRate(state *schemas.AgentState, evaluated string, cycleAnomalies []schemas.AnomalyReport) {
	if evaluated == "" {
		return
	}
	value := 1.0
	if highAnomalyFor(evaluated, cycleAnomalies) {
		value = 0.0
	}
	key := evaluated + "_success_rate"
	state.Knowledge.Baselines[key] = state.Knowledge.Baselines[key].Observe(value)
}

// highAnomalyFor reports whether the action triggered a high-severity anomaly
// this cycle.
func highAnomalyFor(action string, anomalies []schemas.AnomalyReport) bool {
	for _, a := range anomalies {
		if a.ActionID == action && a.Severity == schemas.SeverityHigh {
			return true
		}
	}
	return false
}

// persistOutcome writes a record of what the evaluated action did to the
// knowledge store for future runs.
func (l *Learner) persistOutcome(ctx context.Context, state *schemas.AgentState, evaluated string, cycleAnomalies []schemas.AnomalyReport) {
	if l.kb == nil || evaluated == "" {
		return
	}

	typ := schemas.KnowledgeObservation
	content := fmt.Sprintf("action %q completed on %s", evaluated, state.UI.Route)
	if len(cycleAnomalies) > 0 {
		typ = schemas.KnowledgeError
		content = fmt.Sprintf("action %q triggered %d anomalies on %s", evaluated, len(cycleAnomalies), state.UI.Route)
	}

	item := schemas.KnowledgeItem{
		Type:       typ,
		Content:    content,
		Solution:   evaluated,
		Confidence: schemas.DefaultRiskScore,
		Metadata: map[string]any{
			"run_id":    state.RunID,
			"action_id": evaluated,
			"route":     state.UI.Route,
			"success":   !highAnomalyFor(evaluated, cycleAnomalies),
			"anomalies": len(cycleAnomalies),
			"step":      state.Exec.StepCount,
		},
		CreatedAt: time.Now().UTC(),
	}
	if typ == schemas.KnowledgeError && len(cycleAnomalies) > 0 {
		item.ErrorSignature = string(cycleAnomalies[0].Category) + ":" + cycleAnomalies[0].Description
	}

	if _, err := l.kb.Store(ctx, item); err != nil {
		l.logger.Warn("outcome persistence failed",
			zap.String("action", evaluated),
			zap.Error(err))
	}
}

// executionSucceeded treats a missing result as success so that first-cycle
// learning does not punish anything.
func executionSucceeded(res *schemas.ExecutionResult) bool {
	return res == nil || (res.Success && !res.Skipped)
}
