// File: internal/reasoning/router.go
package reasoning

import (
	"fmt"

	"github.com/xkilldash9x/dowser-cli/api/schemas"
)

// Routing runs strictly BEFORE planning: termination must never pay the cost
// or take the risk of a planning pass.

const (
	// consecutiveHighLimit terminates the run after this many HIGH reports
	// in a row at the tail of the anomaly log.
	consecutiveHighLimit = 3
	// rateWindow is how many recent anomaly reports the severity-rate check
	// looks at.
	rateWindow = 5
	// rateMinReports is the minimum number of reports in the window before
	// the rate check is meaningful.
	rateMinReports = 4
	// highRiskThreshold marks an action as high-risk for routing purposes.
	highRiskThreshold = 0.75
)

// RouteContext is everything the router is allowed to see. It is a plain
// value: identical contexts always produce identical decisions.
type RouteContext struct {
	// AvailableActions is the size of the current action set.
	AvailableActions int
	// StepCount and MaxSteps come from the execution context.
	StepCount int
	MaxSteps  int
	// Log is the full anomaly log, oldest first.
	Log []schemas.AnomalyReport
	// Cycle is the set of anomalies detected this cycle.
	Cycle []schemas.AnomalyReport
	// LastActionRisk is the learned risk of the most recently executed
	// action (0.5 when unknown).
	LastActionRisk float64
}

// Route maps the context to exactly one control decision, first match wins:
//
//	no actions available                     TERMINATE
//	step budget exhausted                    TERMINATE
//	3+ consecutive HIGH anomalies            TERMINATE
//	>50% HIGH in the recent anomaly window   TERMINATE
//	HIGH or REGRESSION anomaly this cycle    DEEP_TEST
//	MEDIUM this cycle, or high-risk action   DEEP_TEST
//	otherwise                                CONTINUE
//
// Route is pure and total; it never leaves control unset.
func Route(ctx RouteContext) (schemas.ControlDecision, string) {
	if ctx.AvailableActions == 0 {
		return schemas.ControlTerminate, "no available actions remaining"
	}
	if ctx.StepCount >= ctx.MaxSteps {
		return schemas.ControlTerminate, fmt.Sprintf("maximum steps reached (%d)", ctx.MaxSteps)
	}
	if n := trailingHighCount(ctx.Log); n >= consecutiveHighLimit {
		return schemas.ControlTerminate, fmt.Sprintf("%d consecutive high-severity anomalies", n)
	}
	if windowRateExceeded(ctx.Log) {
		return schemas.ControlTerminate, "excessive anomaly rate (>50% high severity in recent window)"
	}

	var hasHigh, hasRegression, hasMedium bool
	for _, a := range ctx.Cycle {
		switch {
		case a.Severity == schemas.SeverityHigh:
			hasHigh = true
		case a.Severity == schemas.SeverityMedium:
			hasMedium = true
		}
		if a.Category == schemas.CategoryRegression {
			hasRegression = true
		}
	}
	if hasHigh {
		return schemas.ControlDeepTest, "high-severity anomaly detected this cycle"
	}
	if hasRegression {
		return schemas.ControlDeepTest, "baseline regression detected this cycle"
	}
	if hasMedium {
		return schemas.ControlDeepTest, "medium-severity anomaly detected this cycle"
	}
	if ctx.LastActionRisk > highRiskThreshold {
		return schemas.ControlDeepTest, fmt.Sprintf("executed action flagged high-risk (%.2f)", ctx.LastActionRisk)
	}

	return schemas.ControlContinue, "no anomalies or termination conditions"
}

// trailingHighCount counts the unbroken run of HIGH reports at the tail of
// the log.
func trailingHighCount(log []schemas.AnomalyReport) int {
	count := 0
	for i := len(log) - 1; i >= 0; i-- {
		if log[i].Severity != schemas.SeverityHigh {
			break
		}
		count++
	}
	return count
}

// windowRateExceeded reports whether more than half of the recent anomaly
// window is HIGH severity. Short windows are ignored: a run needs a minimum
// of evidence before it is declared unstable.
func windowRateExceeded(log []schemas.AnomalyReport) bool {
	window := log
	if len(window) > rateWindow {
		window = window[len(window)-rateWindow:]
	}
	if len(window) < rateMinReports {
		return false
	}
	high := 0
	for _, a := range window {
		if a.Severity == schemas.SeverityHigh {
			high++
		}
	}
	return high*2 > len(window)
}
