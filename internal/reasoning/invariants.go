// File: internal/reasoning/invariants.go
package reasoning

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/xkilldash9x/dowser-cli/api/schemas"
	"github.com/xkilldash9x/dowser-cli/internal/obscompare"
)

// The invariants validate COHERENCE, not correctness: the target must behave
// consistently and predictably, whatever its business logic does.

// violation is the outcome of a single invariant check.
type violation struct {
	violated    bool
	evidence    schemas.AnomalyEvidence
	description string
}

const (
	// stallWindow is how many consecutive identical observations count as a
	// forward-progress stall.
	stallWindow = 3
	// sigmaThreshold is the z-score beyond which a metric is anomalous.
	sigmaThreshold = 2.0
	// sigmaCritical is the z-score beyond which a deviation is HIGH severity.
	sigmaCritical = 4.0
	// minBaselineSamples is the cold-start guard: baselines with fewer
	// samples are never checked against.
	minBaselineSamples = 3
)

// checkCauseEffect: a successfully executed action must change at least one
// observation key. An identical snapshot means the action silently did
// nothing.
func checkCauseEffect(cmp *obscompare.Comparator, actionID string, previous, current map[string]any, succeeded bool) violation {
	if !succeeded {
		return violation{}
	}
	if !cmp.Equal(previous, current) {
		return violation{}
	}
	return violation{
		violated: true,
		evidence: schemas.AnomalyEvidence{
			Expected: fmt.Sprintf("action %q should cause an observable state change", actionID),
			Observed: "observation unchanged after action execution",
		},
		description: fmt.Sprintf("cause-effect violation: action %q executed but no observable change detected", actionID),
	}
}

// checkAPIUIConsistency: an execution reported as successful must not leave
// an error indicator in the observation.
func checkAPIUIConsistency(result *schemas.ExecutionResult, sig Signals) violation {
	if result == nil || !result.Success || result.Skipped {
		return violation{}
	}
	if !sig.ErrorPresent {
		return violation{}
	}
	return violation{
		violated: true,
		evidence: schemas.AnomalyEvidence{
			Expected: fmt.Sprintf("successful execution of %q should not surface an error indicator", result.ActionID),
			Observed: fmt.Sprintf("error indicator present: %s", sig.ErrorDetails),
		},
		description: "api-ui consistency violation: execution reported success but the observation carries an error",
	}
}

// checkEntityContinuity: tracked entity IDs present before a non-delete
// action must still be present after it.
func checkEntityContinuity(actionID string, previous, current map[string]any) violation {
	prevEntities := entityIDs(previous)
	if len(prevEntities) == 0 || isDeleteLike(actionID) {
		return violation{}
	}
	currEntities := entityIDs(current)

	var disappeared []string
	for id := range prevEntities {
		if _, ok := currEntities[id]; !ok {
			disappeared = append(disappeared, id)
		}
	}
	if len(disappeared) == 0 {
		return violation{}
	}
	sort.Strings(disappeared)
	return violation{
		violated: true,
		evidence: schemas.AnomalyEvidence{
			Expected: "entity IDs persist unless explicitly deleted",
			Observed: fmt.Sprintf("entities disappeared: %s", strings.Join(disappeared, ", ")),
			Context:  map[string]any{"action_id": actionID},
		},
		description: fmt.Sprintf("entity continuity violation: %d entities disappeared after non-delete action %q", len(disappeared), actionID),
	}
}

// entityIDs extracts the tracked entity identifier set from an observation.
// Only the declared "entities" key is interpreted.
func entityIDs(obs map[string]any) map[string]struct{} {
	raw, ok := obs["entities"].(map[string]any)
	if !ok {
		return nil
	}
	ids := make(map[string]struct{}, len(raw))
	for id := range raw {
		ids[id] = struct{}{}
	}
	return ids
}

// checkForwardProgress: the same observation recurring for stallWindow
// consecutive steps despite distinct actions means the run is stalled.
func checkForwardProgress(cmp *obscompare.Comparator, steps []schemas.StepRecord) violation {
	if len(steps) < stallWindow {
		return violation{}
	}
	recent := steps[len(steps)-stallWindow:]

	first := recent[0].Observation
	actions := make(map[string]struct{}, stallWindow)
	actionList := make([]string, 0, stallWindow)
	for _, rec := range recent {
		if !cmp.Equal(first, rec.Observation) {
			return violation{}
		}
		actions[rec.Action] = struct{}{}
		actionList = append(actionList, rec.Action)
	}
	// Repeating the same single action is covered by cause-effect; a stall
	// requires distinct actions all bouncing off the same state.
	if len(actions) < stallWindow {
		return violation{}
	}

	// Only fire at the step that completes the window, so one stall yields
	// one report instead of one per subsequent cycle.
	if len(steps) > stallWindow {
		prior := steps[len(steps)-stallWindow-1]
		if cmp.Equal(first, prior.Observation) {
			return violation{}
		}
	}

	return violation{
		violated: true,
		evidence: schemas.AnomalyEvidence{
			Expected: "the target should make forward progress",
			Observed: fmt.Sprintf("observation unchanged across %d steps despite actions: %s", stallWindow, strings.Join(actionList, ", ")),
			Context:  map[string]any{"stalled_actions": actionList},
		},
		description: fmt.Sprintf("forward progress violation: identical observation for %d consecutive steps", stallWindow),
	}
}

// stabilityFinding couples a baseline deviation with its severity.
type stabilityFinding struct {
	violation
	severity schemas.AnomalySeverity
}

// checkStability compares each extracted metric against its learned
// baseline. Metrics without an established baseline are skipped (cold
// start), never flagged.
func checkStability(view schemas.ReadView, metrics map[string]float64) []stabilityFinding {
	// Deterministic metric order for testability.
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	var findings []stabilityFinding
	for _, name := range names {
		baseline, ok := view.Baseline(name)
		if !ok || baseline.SampleCount < minBaselineSamples {
			continue
		}

		value := metrics[name]
		var z float64
		if baseline.StdDev == 0 {
			// A perfectly stable metric: any deviation beyond 1% is notable.
			if baseline.Mean == 0 || math.Abs(value-baseline.Mean) <= 0.01*math.Abs(baseline.Mean) {
				continue
			}
			// Finite sentinel; the evidence must stay JSON-serializable.
			z = sigmaCritical + 1
		} else {
			z = math.Abs(value-baseline.Mean) / baseline.StdDev
		}
		if z <= sigmaThreshold {
			continue
		}

		severity := schemas.SeverityMedium
		if z > sigmaCritical {
			severity = schemas.SeverityHigh
		}
		findings = append(findings, stabilityFinding{
			severity: severity,
			violation: violation{
				violated: true,
				evidence: schemas.AnomalyEvidence{
					Expected: fmt.Sprintf("%s within %.0fσ of baseline (μ=%.2f, σ=%.2f)", name, sigmaThreshold, baseline.Mean, baseline.StdDev),
					Observed: fmt.Sprintf("%s = %.2f (z=%.2f)", name, value, z),
					Context: map[string]any{
						"metric":  name,
						"value":   value,
						"mean":    baseline.Mean,
						"std_dev": baseline.StdDev,
						"z_score": z,
						"samples": baseline.SampleCount,
					},
				},
				description: fmt.Sprintf("stability violation: %s deviated %.1fσ from baseline", name, z),
			},
		})
	}
	return findings
}

// AvailabilityInconsistency reports a state-changing action that left the
// available action set untouched. Informational only; the exploration driver
// logs it, it never joins the anomaly log.
func AvailabilityInconsistency(actionID string, previous, current []string) (string, bool) {
	if actionID == "" || !IsStateChanging(actionID) {
		return "", false
	}
	if !sameActionSet(previous, current) {
		return "", false
	}
	return fmt.Sprintf("state-changing action %q left the action set identical", actionID), true
}

func sameActionSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}
