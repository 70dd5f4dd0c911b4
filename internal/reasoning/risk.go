// File: internal/reasoning/risk.go
package reasoning

import (
	"sort"

	"github.com/xkilldash9x/dowser-cli/api/schemas"
)

const (
	// riskLearningRate controls how quickly risk scores move.
	riskLearningRate = 0.2
	// riskAvoidThreshold marks actions the coverage selector skips. If every
	// candidate is above it, the threshold relaxes to 1.0.
	riskAvoidThreshold = 0.8
	// riskUpdateWindow bounds how far back the learner reads the anomaly log
	// when attributing risk.
	riskUpdateWindow = 5
)

// severityWeight maps anomaly severity to its impact on risk.
func severityWeight(sev schemas.AnomalySeverity) float64 {
	switch sev {
	case schemas.SeverityLow:
		return 0.2
	case schemas.SeverityHigh:
		return 0.9
	default:
		return 0.5
	}
}

// UpdateRiskScore moves an action's risk after one execution. A clean run
// decays risk; an anomaly pushes it toward 1.0 proportionally to severity.
// The result is always clamped to [0, 1].
func UpdateRiskScore(current float64, triggeredAnomaly bool, sev schemas.AnomalySeverity) float64 {
	var next float64
	if !triggeredAnomaly {
		next = current * (1 - riskLearningRate*0.5)
	} else {
		next = current + (1.0-current)*riskLearningRate*severityWeight(sev)
	}
	return clamp01(next)
}

// UpdateRisksFromAnomalies attributes each recent anomaly to its action and
// raises that action's risk in place. Reports without an action id are
// ignored.
func UpdateRisksFromAnomalies(risks map[string]float64, anomalies []schemas.AnomalyReport) {
	recent := anomalies
	if len(recent) > riskUpdateWindow {
		recent = recent[len(recent)-riskUpdateWindow:]
	}
	for _, a := range recent {
		if a.ActionID == "" {
			continue
		}
		current, ok := risks[a.ActionID]
		if !ok {
			current = schemas.DefaultRiskScore
		}
		risks[a.ActionID] = UpdateRiskScore(current, true, a.Severity)
	}
}

// coverageScore ranks an action for exploration: unexplored actions first,
// once-executed next, then inverse frequency.
func coverageScore(actionID string, history []string) float64 {
	count := 0
	for _, h := range history {
		if h == actionID {
			count++
		}
	}
	switch count {
	case 0:
		return 1.0
	case 1:
		return 0.5
	default:
		return 1.0 / float64(count+1)
	}
}

// SelectByCoverage picks the available action with the best combined
// coverage/safety score, skipping actions above the risk threshold. When
// everything is too risky the threshold relaxes and the safest of the risky
// options wins. Ties break toward the earlier action in the available order,
// keeping selection deterministic.
func SelectByCoverage(available []string, history []string, risks map[string]float64) string {
	return selectByCoverage(available, history, risks, riskAvoidThreshold)
}

func selectByCoverage(available, history []string, risks map[string]float64, maxRisk float64) string {
	if len(available) == 0 {
		return ""
	}

	best := ""
	bestScore := -1.0
	for _, id := range available {
		risk, ok := risks[id]
		if !ok {
			risk = schemas.DefaultRiskScore
		}
		if risk > maxRisk {
			continue
		}
		score := coverageScore(id, history)*0.7 + (1.0-risk)*0.3
		if score > bestScore {
			best = id
			bestScore = score
		}
	}

	if best == "" && maxRisk < 1.0 {
		return selectByCoverage(available, history, risks, 1.0)
	}
	return best
}

// SafestActions returns up to n available actions ordered by ascending risk.
// Unknown actions score the neutral default. The sort is stable over the
// available order.
func SafestActions(available []string, risks map[string]float64, n int) []string {
	type pair struct {
		id   string
		risk float64
	}
	pairs := make([]pair, 0, len(available))
	for _, id := range available {
		risk, ok := risks[id]
		if !ok {
			risk = schemas.DefaultRiskScore
		}
		pairs = append(pairs, pair{id, risk})
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].risk < pairs[j].risk })

	if n > len(pairs) {
		n = len(pairs)
	}
	out := make([]string, 0, n)
	for _, p := range pairs[:n] {
		out = append(out, p.id)
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
