// File: internal/obscompare/heuristics.go
package obscompare

import (
	"regexp"
	"time"
)

// Placeholders substituted for volatile data during normalization.
const (
	PlaceholderVolatileKey   = "__VOLATILE_KEY__"
	PlaceholderVolatileValue = "__VOLATILE_VALUE__"
)

// HeuristicRules configures which parts of an observation count as volatile.
// Volatile data (session tokens, request IDs, timestamps) changes on every
// snapshot even when the target's state is semantically identical, so it must
// be masked before two observations are compared.
type HeuristicRules struct {
	// KeyPatterns identifies observation keys whose values are volatile.
	KeyPatterns []*regexp.Regexp
	// CheckValueForUUID enables detection of UUIDs in string values.
	CheckValueForUUID bool
	// CheckValueForTimestamp enables detection of timestamps in string values.
	CheckValueForTimestamp bool
	// TimestampFormats are the layouts tried when parsing string timestamps.
	TimestampFormats []string
}

// DefaultRules masks the volatile data a web target typically leaks into its
// structured observations.
func DefaultRules() HeuristicRules {
	keyPatterns := []*regexp.Regexp{
		regexp.MustCompile(`(?i)sess(ion)?_?(id|key|token)?$`),
		regexp.MustCompile(`(?i)(api|access|refresh|auth)_?token$`),
		regexp.MustCompile(`(?i)^(csrf|xsrf)`),
		regexp.MustCompile(`(?i)nonce`),
		regexp.MustCompile(`(?i)(correlation|request|trace|tracking)_?id$`),
		regexp.MustCompile(`(?i)(rendered|captured|observed)_at$`),
	}

	return HeuristicRules{
		KeyPatterns:            keyPatterns,
		CheckValueForUUID:      true,
		CheckValueForTimestamp: true,
		TimestampFormats:       []string{time.RFC3339, time.RFC3339Nano, "2006-01-02T15:04:05.000Z"},
	}
}
