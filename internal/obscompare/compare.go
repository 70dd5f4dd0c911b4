// File: internal/obscompare/compare.go
package obscompare

import (
	"sort"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.uber.org/zap"
)

// Comparator performs semantic comparison of structured observations. Two
// snapshots are equivalent when they differ only in volatile data (session
// identifiers, timestamps, request IDs).
type Comparator struct {
	logger *zap.Logger
	norm   normalizer
}

// Delta summarizes the semantic difference between two observations.
type Delta struct {
	AddedKeys   []string `json:"added_keys,omitempty"`
	RemovedKeys []string `json:"removed_keys,omitempty"`
	ChangedKeys []string `json:"changed_keys,omitempty"`
	Unchanged   bool     `json:"unchanged"`
}

// New creates a Comparator with the default heuristic rules.
func New(logger *zap.Logger) *Comparator {
	return NewWithRules(logger, DefaultRules())
}

// NewWithRules creates a Comparator with custom heuristic rules.
func NewWithRules(logger *zap.Logger, rules HeuristicRules) *Comparator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Comparator{
		logger: logger.Named("obscompare"),
		norm:   normalizer{rules: rules},
	}
}

// Equal reports whether two observation snapshots are semantically
// equivalent after masking volatile data.
func (c *Comparator) Equal(a, b map[string]any) bool {
	na := c.norm.normalize(a)
	nb := c.norm.normalize(b)
	return cmp.Equal(na, nb, cmpopts.EquateEmpty())
}

// Diff returns a human-readable description of the semantic difference, or
// "" when the snapshots are equivalent. Intended for anomaly evidence and
// debug logging, never for programmatic branching.
func (c *Comparator) Diff(a, b map[string]any) string {
	na := c.norm.normalize(a)
	nb := c.norm.normalize(b)
	return cmp.Diff(na, nb, cmpopts.EquateEmpty())
}

// Delta computes the per-key semantic difference between a previous and a
// current observation.
func (c *Comparator) Delta(previous, current map[string]any) Delta {
	prev, _ := c.norm.normalize(previous).(map[string]any)
	curr, _ := c.norm.normalize(current).(map[string]any)

	var d Delta
	for key := range curr {
		if _, ok := prev[key]; !ok {
			d.AddedKeys = append(d.AddedKeys, key)
		}
	}
	for key, prevVal := range prev {
		currVal, ok := curr[key]
		if !ok {
			d.RemovedKeys = append(d.RemovedKeys, key)
			continue
		}
		if !cmp.Equal(prevVal, currVal, cmpopts.EquateEmpty()) {
			d.ChangedKeys = append(d.ChangedKeys, key)
		}
	}

	sort.Strings(d.AddedKeys)
	sort.Strings(d.RemovedKeys)
	sort.Strings(d.ChangedKeys)
	d.Unchanged = len(d.AddedKeys) == 0 && len(d.RemovedKeys) == 0 && len(d.ChangedKeys) == 0
	return d
}
