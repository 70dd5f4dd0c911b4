package schemas

import (
	"time"
)

// KnowledgeType categorizes a persisted knowledge record.
type KnowledgeType string

const (
	KnowledgeFix         KnowledgeType = "fix"         // A remedy that resolved a prior anomaly.
	KnowledgePattern     KnowledgeType = "pattern"     // A recurring behavior worth investigating.
	KnowledgeFlow        KnowledgeType = "flow"        // A multi-step interaction sequence.
	KnowledgeError       KnowledgeType = "error"       // A recorded failure and its signature.
	KnowledgeObservation KnowledgeType = "observation" // A neutral recorded fact.
)

// KnowledgeItem is a confidence-scored record retrieved from or written to
// the knowledge collaborator. The reasoning core treats retrieved items as
// ranked, untrusted suggestions, never as ground-truth actions: any action
// extracted from an item is still validated against the live action set.
type KnowledgeItem struct {
	ID      string        `json:"id"`
	Type    KnowledgeType `json:"type"`
	Content string        `json:"content"`
	// Solution is the action ID the item recommends, when it carries one.
	Solution       string         `json:"solution,omitempty"`
	Confidence     float64        `json:"confidence"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	ErrorSignature string         `json:"error_signature,omitempty"`
	CreatedAt      time.Time      `json:"created_at,omitempty"`
}

// SearchOptions narrows a knowledge search.
type SearchOptions struct {
	// Type restricts results to one knowledge type; empty matches all.
	Type KnowledgeType
	// TopK caps the number of results. Zero means the client default.
	TopK int
}
