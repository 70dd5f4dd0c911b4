// File: internal/explorer/driver.go
package explorer

import (
	"slices"

	"go.uber.org/zap"

	"github.com/xkilldash9x/dowser-cli/api/schemas"
	"github.com/xkilldash9x/dowser-cli/internal/config"
	"github.com/xkilldash9x/dowser-cli/internal/reasoning"
)

// Selection is the driver's final word on what happens this step.
type Selection struct {
	// Action is the contract to execute; nil when Terminate is set.
	Action *schemas.ActionContract
	// Backtrack marks the action as the synthetic backtrack.
	Backtrack bool
	// Terminate ends the run (loop guard tripped).
	Terminate bool
	Reason    string
}

// Driver wraps the reasoning engine's per-cycle decision with run-level DFS
// bookkeeping. It may override the engine: modal dismissals always go first,
// tried actions are never repeated at an unchanged state key, and exhausted
// states backtrack instead of stopping.
type Driver struct {
	sess   *session
	cfg    config.ExplorerConfig
	logger *zap.Logger
}

func NewDriver(cfg config.ExplorerConfig, logger *zap.Logger) *Driver {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 100
	}
	if cfg.MaxConsecutiveBacktracks <= 0 {
		cfg.MaxConsecutiveBacktracks = 3
	}
	return &Driver{
		sess:   newSession(),
		cfg:    cfg,
		logger: logger.Named("driver"),
	}
}

// AllowStep enforces the hard step ceiling, independent of any router
// decision.
func (d *Driver) AllowStep(stepCount int) bool {
	return stepCount < d.cfg.MaxSteps
}

// Select resolves the engine's decision into the action actually executed
// this step. Resolution order:
//
//  1. an untried modal-dismissal action, overriding the engine entirely
//  2. the engine's chosen action, if untried at the current state key
//  3. DFS fallback among untried actions, navigation first
//  4. synthetic backtrack, bounded by the consecutive-backtrack cap
//
// The returned action is recorded as tried; callers execute exactly what
// Select returns.
func (d *Driver) Select(ui schemas.UIState, decision schemas.Decision) Selection {
	key := StateKey(ui)
	untried := d.sess.untriedAt(key, ui.AvailableActions)

	// Blocking UI first: nothing else is reliable while a modal is up.
	for _, id := range untried {
		if reasoning.IsModalDismissal(id) {
			d.sess.markTried(key, id)
			d.logger.Info("Dismissing blocking UI",
				zap.String("action", id),
				zap.String("state_key", key))
			return Selection{
				Action: &schemas.ActionContract{ActionID: id},
				Reason: "modal dismissal priority",
			}
		}
	}

	if decision.NextAction != nil {
		id := decision.NextAction.ActionID
		if slices.Contains(untried, id) {
			d.sess.markTried(key, id)
			return Selection{Action: decision.NextAction, Reason: decision.Reasoning}
		}
		d.logger.Debug("Engine chose an already-tried action, falling back to DFS",
			zap.String("action", id),
			zap.String("state_key", key))
	}

	if len(untried) > 0 {
		id := pickPreferringNavigation(untried)
		d.sess.markTried(key, id)
		return Selection{
			Action: &schemas.ActionContract{ActionID: id},
			Reason: "depth-first exploration fallback",
		}
	}

	// Exhausted state: back out, unless backing out is all we do anymore.
	if d.sess.consecutiveBacktracks >= d.cfg.MaxConsecutiveBacktracks {
		return Selection{
			Terminate: true,
			Reason:    "consecutive backtrack cap exceeded",
		}
	}
	d.sess.consecutiveBacktracks++
	d.logger.Info("State exhausted, backtracking",
		zap.String("state_key", key),
		zap.Int("consecutive", d.sess.consecutiveBacktracks))
	return Selection{
		Action:    &schemas.ActionContract{ActionID: BacktrackActionID},
		Backtrack: true,
		Reason:    "all actions tried at state key",
	}
}

// LogTransition records the structural difference between the states before
// and after an action. Informational only; it never feeds control flow.
func (d *Driver) LogTransition(actionID string, before, after schemas.UIState) {
	added, removed := diffActionSets(before.AvailableActions, after.AvailableActions)

	fields := []zap.Field{
		zap.String("action", actionID),
		zap.String("from", StateKey(before)),
		zap.String("to", StateKey(after)),
	}
	if len(added) > 0 {
		fields = append(fields, zap.Strings("actions_appeared", added))
	}
	if len(removed) > 0 {
		fields = append(fields, zap.Strings("actions_disappeared", removed))
	}
	if b, a := modalCount(before), modalCount(after); b != a {
		fields = append(fields, zap.Int("modal_count_before", b), zap.Int("modal_count_after", a))
	}
	if desc, ok := reasoning.AvailabilityInconsistency(actionID, before.AvailableActions, after.AvailableActions); ok {
		fields = append(fields, zap.String("availability_note", desc))
	}

	if len(fields) > 3 {
		d.logger.Info("State transition", fields...)
	} else {
		d.logger.Debug("State transition", fields...)
	}
}

// pickPreferringNavigation returns the first navigation-type action, or the
// first action when none navigate.
func pickPreferringNavigation(untried []string) string {
	for _, id := range untried {
		if reasoning.Categorize(id) == reasoning.CategoryNavigation {
			return id
		}
	}
	return untried[0]
}

func diffActionSets(before, after []string) (added, removed []string) {
	beforeSet := make(map[string]struct{}, len(before))
	for _, id := range before {
		beforeSet[id] = struct{}{}
	}
	afterSet := make(map[string]struct{}, len(after))
	for _, id := range after {
		afterSet[id] = struct{}{}
		if _, ok := beforeSet[id]; !ok {
			added = append(added, id)
		}
	}
	for _, id := range before {
		if _, ok := afterSet[id]; !ok {
			removed = append(removed, id)
		}
	}
	return added, removed
}

func modalCount(ui schemas.UIState) int {
	if v, ok := ui.Observation["modal_count"]; ok {
		switch n := v.(type) {
		case int:
			return n
		case float64:
			return int(n)
		}
	}
	return 0
}
