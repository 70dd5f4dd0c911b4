// File: internal/explorer/session.go

// Package explorer owns the outer exploration loop: depth-first traversal
// over discovered states, modal-dismissal prioritization, backtracking and
// the loop guards that bound a run regardless of what the reasoning engine
// decides.
package explorer

import (
	"fmt"

	"github.com/xkilldash9x/dowser-cli/api/schemas"
)

// BacktrackActionID is the synthetic action the driver emits when every real
// action at the current state key has been tried. It is never part of a
// discovered action set; the executor maps it to a history-back navigation.
const BacktrackActionID = "__backtrack__"

// session is the DFS bookkeeping for one run: which actions have been tried
// at which state keys, and how many backtracks happened in a row.
type session struct {
	tried                 map[string]map[string]struct{}
	consecutiveBacktracks int
}

func newSession() *session {
	return &session{tried: make(map[string]map[string]struct{})}
}

// StateKey derives the identity of a discovered state from its route and the
// cardinality of its action set. Two visits to the same route offering the
// same number of actions count as the same state for DFS purposes.
func StateKey(ui schemas.UIState) string {
	route := ui.Route
	if route == "" {
		route = ui.PageURL
	}
	return fmt.Sprintf("%s#%d", route, len(ui.AvailableActions))
}

// untriedAt returns the available actions not yet tried at the key, in
// presentation order.
func (s *session) untriedAt(key string, available []string) []string {
	tried := s.tried[key]
	out := make([]string, 0, len(available))
	for _, id := range available {
		if _, done := tried[id]; !done {
			out = append(out, id)
		}
	}
	return out
}

// markTried records a real action selection at the key and resets the
// backtrack streak.
func (s *session) markTried(key, actionID string) {
	if s.tried[key] == nil {
		s.tried[key] = make(map[string]struct{})
	}
	s.tried[key][actionID] = struct{}{}
	s.consecutiveBacktracks = 0
}
