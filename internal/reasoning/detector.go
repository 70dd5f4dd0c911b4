// File: internal/reasoning/detector.go
package reasoning

import (
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/dowser-cli/api/schemas"
	"github.com/xkilldash9x/dowser-cli/internal/obscompare"
)

// Detector runs the coherence invariants against the current state. It
// reads only through the ReadView and produces AnomalyReports; appending
// them to the state is the engine's job, keeping this component free of
// writes entirely.
type Detector struct {
	cmp    *obscompare.Comparator
	logger *zap.Logger
	now    func() time.Time
}

// NewDetector creates a Detector sharing the given comparator.
func NewDetector(cmp *obscompare.Comparator, logger *zap.Logger) *Detector {
	return &Detector{
		cmp:    cmp,
		logger: logger.Named("detector"),
		now:    time.Now,
	}
}

// Detect evaluates the five invariants in fixed order: cause-effect, api-ui
// consistency, entity continuity, forward progress, baseline stability.
// The order is load-bearing for determinism, not for correctness; the checks
// are independent.
func (d *Detector) Detect(view schemas.ReadView, sig Signals) []schemas.AnomalyReport {
	exec := view.Exec()
	current := view.Observation()
	lastAction := exec.LastAction()

	var reports []schemas.AnomalyReport
	add := func(v violation, severity schemas.AnomalySeverity, category schemas.AnomalyCategory) {
		if !v.violated {
			return
		}
		reports = append(reports, schemas.AnomalyReport{
			Severity:    severity,
			Category:    category,
			ActionID:    lastAction,
			Description: v.description,
			Evidence:    v.evidence,
			DetectedAt:  d.now(),
		})
	}

	// 1. Cause-Effect.
	if lastAction != "" && exec.PreviousObservation != nil {
		succeeded := exec.LastResult == nil || (exec.LastResult.Success && !exec.LastResult.Skipped)
		add(checkCauseEffect(d.cmp, lastAction, exec.PreviousObservation, current, succeeded),
			schemas.SeverityMedium, schemas.CategoryInvariantViolation)
	}

	// 2. API-UI Consistency.
	add(checkAPIUIConsistency(exec.LastResult, sig),
		schemas.SeverityHigh, schemas.CategoryInvariantViolation)

	// 3. Entity Continuity.
	if lastAction != "" && exec.PreviousObservation != nil {
		add(checkEntityContinuity(lastAction, exec.PreviousObservation, current),
			schemas.SeverityHigh, schemas.CategoryInvariantViolation)
	}

	// 4. Forward Progress.
	add(checkForwardProgress(d.cmp, view.Steps()),
		schemas.SeverityMedium, schemas.CategoryInstability)

	// 5. Baseline Stability.
	for _, finding := range checkStability(view, sig.Metrics) {
		add(finding.violation, finding.severity, schemas.CategoryRegression)
	}

	if len(reports) > 0 {
		d.logger.Debug("Coherence anomalies detected",
			zap.Int("count", len(reports)),
			zap.String("last_action", lastAction),
		)
	}
	return reports
}
