// File: internal/reasoning/signals.go
package reasoning

import (
	"strings"

	"github.com/xkilldash9x/dowser-cli/api/schemas"
	"github.com/xkilldash9x/dowser-cli/internal/obscompare"
)

// Signals is the lightweight summary the interpreter extracts from state.
// It carries no decisions, only observations about the observation.
type Signals struct {
	// ActionCount is the size of the current available action set.
	ActionCount int
	// LastAction is the most recently executed action ID, "" on first cycle.
	LastAction string
	// Delta describes the semantic difference between the previous and
	// current observation. Zero-valued (Unchanged=false, no keys) when no
	// previous observation exists.
	Delta obscompare.Delta
	// HasPrevious reports whether a previous observation exists at all.
	HasPrevious bool
	// ModalActions lists available actions that look like modal dismissals.
	ModalActions []string
	// ErrorPresent indicates the observation carries an error indicator.
	ErrorPresent bool
	// ErrorDetails holds the error indicator's value when present.
	ErrorDetails string
	// SuccessPresent indicates the observation carries a success indicator.
	SuccessPresent bool
	// SystemBusy indicates a loading or busy flag in the observation.
	SystemBusy bool
	// Metrics are the numeric metrics extracted for baseline checks.
	Metrics map[string]float64
}

// Interpreter extracts Signals from a read view. It is stateless and pure:
// it never mutates any state partition and repeated calls with the same view
// yield identical results.
type Interpreter struct {
	cmp *obscompare.Comparator
}

// NewInterpreter creates an Interpreter sharing the given comparator.
func NewInterpreter(cmp *obscompare.Comparator) *Interpreter {
	return &Interpreter{cmp: cmp}
}

// Interpret produces the per-cycle signal summary.
func (i *Interpreter) Interpret(view schemas.ReadView) Signals {
	obs := view.Observation()
	exec := view.Exec()
	actions := view.AvailableActions()

	sig := Signals{
		ActionCount: len(actions),
		LastAction:  exec.LastAction(),
		Metrics:     extractMetrics(obs, exec.LastAction()),
	}

	if exec.PreviousObservation != nil {
		sig.HasPrevious = true
		sig.Delta = i.cmp.Delta(exec.PreviousObservation, obs)
	}

	for _, action := range actions {
		if IsModalDismissal(action) {
			sig.ModalActions = append(sig.ModalActions, action)
		}
	}

	if v, ok := firstPresent(obs, "error", "error_message"); ok && indicates(v) {
		sig.ErrorPresent = true
		sig.ErrorDetails = stringify(v)
	}
	if v, ok := firstPresent(obs, "success", "success_message"); ok && indicates(v) {
		sig.SuccessPresent = true
	}
	sig.SystemBusy = truthy(obs["loading"]) || truthy(obs["is_busy"])

	return sig
}

// declaredMetricKeys are the observation keys the core is allowed to
// interpret as numeric metrics. Everything else stays opaque.
var declaredMetricKeys = []string{"response_time_ms", "element_count", "error_count"}

// extractMetrics pulls the measurable metrics out of an observation for
// baseline comparison. Unknown keys are never interpreted, with one declared
// exception: numeric keys ending in "_count" are treated as counters.
func extractMetrics(obs map[string]any, lastAction string) map[string]float64 {
	metrics := make(map[string]float64)

	for _, key := range declaredMetricKeys {
		if v, ok := asFloat(obs[key]); ok {
			metrics[key] = v
		}
	}

	if lastAction != "" {
		durationKey := lastAction + "_duration_ms"
		if v, ok := asFloat(obs[durationKey]); ok {
			metrics[durationKey] = v
		}
	}

	for key, raw := range obs {
		if !strings.HasSuffix(key, "_count") {
			continue
		}
		if v, ok := asFloat(raw); ok {
			metrics[key] = v
		}
	}

	return metrics
}

func firstPresent(obs map[string]any, keys ...string) (any, bool) {
	for _, key := range keys {
		if v, ok := obs[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	}
	return 0, false
}

func truthy(v any) bool {
	b, ok := v.(bool)
	return ok && b
}

// indicates reports whether a signal key's value actually signals something:
// a true bool, a non-empty string, or a nonzero number.
func indicates(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.TrimSpace(t) != ""
	default:
		if n, ok := asFloat(v); ok {
			return n != 0
		}
	}
	return true
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
