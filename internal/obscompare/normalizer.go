// File: internal/obscompare/normalizer.go
package obscompare

import (
	"time"

	"github.com/google/uuid"
)

// normalizer applies the heuristic rules to an observation structure.
type normalizer struct {
	rules HeuristicRules
}

// normalize recursively traverses an observation value, replacing volatile
// keys and values with static placeholders so that semantically identical
// snapshots compare equal.
func (n *normalizer) normalize(data any) any {
	if n.isValueVolatile(data) {
		return PlaceholderVolatileValue
	}

	switch v := data.(type) {
	case map[string]any:
		return n.normalizeMap(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = n.normalize(item)
		}
		return out
	default:
		return data
	}
}

func (n *normalizer) normalizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	volatileCount := 0

	for key, val := range m {
		newVal := n.normalize(val)
		if n.isKeyVolatile(key) {
			// Values under volatile keys collapse to a count, so the key's
			// presence still matters but its churn does not.
			volatileCount++
			continue
		}
		// An absent value and an empty collection state the same fact about
		// the page; dropping both keeps them comparing equal.
		if isEmptyCollection(newVal) {
			continue
		}
		out[key] = newVal
	}

	if volatileCount > 0 {
		out[PlaceholderVolatileKey] = volatileCount
	}
	return out
}

func isEmptyCollection(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	}
	return false
}

func (n *normalizer) isKeyVolatile(key string) bool {
	for _, pattern := range n.rules.KeyPatterns {
		if pattern.MatchString(key) {
			return true
		}
	}
	return false
}

func (n *normalizer) isValueVolatile(val any) bool {
	s, ok := val.(string)
	if !ok {
		return false
	}
	// Short strings are never identifiers worth masking.
	if len(s) < 10 {
		return false
	}

	if n.rules.CheckValueForUUID {
		if _, err := uuid.Parse(s); err == nil {
			return true
		}
	}

	if n.rules.CheckValueForTimestamp {
		for _, format := range n.rules.TimestampFormats {
			if _, err := time.Parse(format, s); err == nil {
				return true
			}
		}
	}

	return false
}
