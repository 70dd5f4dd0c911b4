// File: internal/reasoning/planner.go
package reasoning

import (
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/xkilldash9x/dowser-cli/api/schemas"
)

const (
	// fixConfidenceFloor gates knowledge items of type fix.
	fixConfidenceFloor = 0.6
	// patternConfidenceFloor gates knowledge items of type pattern.
	patternConfidenceFloor = 0.5
	// coverageSteps is how many steps the exploration fallback keeps picking
	// untried actions before an exhausted action set means termination.
	coverageSteps = 5
	// explorationConfidence is the fixed confidence of fallback decisions.
	explorationConfidence = 0.8
	// defaultPatternAction is used for pattern suggestions that carry no
	// solution, and only when the target actually offers it.
	defaultPatternAction = "investigate"
)

// Planner selects the next action. It is the only component besides the
// learner that holds the mutable state handle, and it writes exclusively to
// the decision and knowledge partitions.
type Planner struct {
	logger *zap.Logger
	// coverageWindow is how many steps the exploration fallback keeps picking
	// untried actions in presentation order before switching to risk-aware
	// coverage selection.
	coverageWindow int
}

func NewPlanner(logger *zap.Logger) *Planner {
	return &Planner{logger: logger.Named("planner"), coverageWindow: coverageSteps}
}

// Plan resolves the next decision in two tiers: knowledge suggestions first,
// coverage-driven exploration second. The chosen action is always a member of
// the current available set; any degenerate input degrades to a terminate
// decision instead of an error.
func (p *Planner) Plan(state *schemas.AgentState) schemas.Decision {
	available := state.UI.AvailableActions
	if len(available) == 0 {
		return terminateDecision("no available actions to plan against")
	}

	if len(state.Knowledge.Suggestions) > 0 {
		decision, ok := p.planFromKnowledge(state.Knowledge.Suggestions, available)
		// Suggestions are per-cycle context; stale ones must not leak into
		// the next cycle's planning.
		state.Knowledge.Suggestions = nil
		if !ok {
			return terminateDecision("knowledge suggestions present but none actionable")
		}
		state.Decision = decision
		return decision
	}

	decision := p.planByCoverage(state, available)
	state.Decision = decision
	return decision
}

// planFromKnowledge tries fixes above the confidence floor first, then
// patterns. Suggestions whose solution is not currently executable are
// skipped rather than trusted.
func (p *Planner) planFromKnowledge(suggestions []schemas.KnowledgeItem, available []string) (schemas.Decision, bool) {
	fixes := filterSuggestions(suggestions, schemas.KnowledgeFix, fixConfidenceFloor)
	for _, item := range fixes {
		if item.Solution == "" {
			continue
		}
		contract := schemas.ActionContract{ActionID: item.Solution}
		if err := contract.ValidateAgainst(available); err != nil {
			p.logger.Debug("skipping knowledge fix", zap.String("id", item.ID), zap.Error(err))
			continue
		}
		return schemas.Decision{
			NextAction:  &contract,
			Control:     schemas.ControlContinue,
			Confidence:  item.Confidence,
			Source:      schemas.SourceKnowledgeBase,
			KnowledgeID: item.ID,
			Reasoning:   fmt.Sprintf("applying known fix %s (confidence %.2f)", item.ID, item.Confidence),
		}, true
	}

	patterns := filterSuggestions(suggestions, schemas.KnowledgePattern, patternConfidenceFloor)
	for _, item := range patterns {
		actionID := item.Solution
		if actionID == "" {
			actionID = defaultPatternAction
		}
		contract := schemas.ActionContract{ActionID: actionID}
		if err := contract.ValidateAgainst(available); err != nil {
			p.logger.Debug("skipping knowledge pattern", zap.String("id", item.ID), zap.Error(err))
			continue
		}
		return schemas.Decision{
			NextAction:  &contract,
			Control:     schemas.ControlContinue,
			Confidence:  item.Confidence,
			Source:      schemas.SourceKnowledgeBase,
			KnowledgeID: item.ID,
			Reasoning:   fmt.Sprintf("following known pattern %s (confidence %.2f)", item.ID, item.Confidence),
		}, true
	}

	return schemas.Decision{}, false
}

// planByCoverage is the exploration fallback. During the coverage window the
// pick is the first never-executed action in presentation order; after the
// window it is the lowest-risk untried action. With nothing untried left, the
// run has nothing productive to do and terminates.
func (p *Planner) planByCoverage(state *schemas.AgentState, available []string) schemas.Decision {
	executed := make(map[string]struct{}, len(state.Exec.ActionHistory))
	for _, a := range state.Exec.ActionHistory {
		executed[a] = struct{}{}
	}
	untried := make([]string, 0, len(available))
	for _, id := range available {
		if _, done := executed[id]; !done {
			untried = append(untried, id)
		}
	}

	if len(untried) > 0 {
		id := untried[0]
		if state.Exec.StepCount >= p.coverageWindow {
			id = SelectByCoverage(untried, state.Exec.ActionHistory, state.Knowledge.RiskScores)
		}
		contract := schemas.ActionContract{ActionID: id}
		return schemas.Decision{
			NextAction: &contract,
			Control:    schemas.ControlContinue,
			Confidence: explorationConfidence,
			Source:     schemas.SourceExploration,
			Reasoning: fmt.Sprintf("coverage-first exploration: %q untried among %d available (risk %.2f)",
				id, len(available), state.View().RiskScore(id)),
		}
	}

	return terminateDecision(fmt.Sprintf("all %d available actions already tried after %d steps",
		len(available), state.Exec.StepCount))
}

// filterSuggestions keeps items of the given type strictly above the
// confidence floor, sorted by descending confidence. Items with confidence
// outside [0,1] are malformed and dropped.
func filterSuggestions(items []schemas.KnowledgeItem, typ schemas.KnowledgeType, floor float64) []schemas.KnowledgeItem {
	out := make([]schemas.KnowledgeItem, 0, len(items))
	for _, item := range items {
		if item.Type != typ {
			continue
		}
		if math.IsNaN(item.Confidence) || item.Confidence <= floor || item.Confidence > 1 {
			continue
		}
		out = append(out, item)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

func terminateDecision(reason string) schemas.Decision {
	return schemas.Decision{
		NextAction: nil,
		Control:    schemas.ControlTerminate,
		Source:     schemas.SourceExploration,
		Reasoning:  reason,
	}
}
