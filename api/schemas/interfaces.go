package schemas

import (
	"context"
)

// UICollaborator abstracts the live target: structured discovery of the
// current UI state and physical execution of chosen actions. The reasoning
// core calls these as opaque operations and never inspects their internals.
// Implementations must be safe to call sequentially from a single goroutine;
// the core never calls them concurrently.
type UICollaborator interface {
	// Discover extracts the structured UI state of the target. It is called
	// once at run start and again after every executed action.
	Discover(ctx context.Context, target string) (UIState, error)

	// Execute performs the action against the target and reports what
	// happened. A failed or unreachable target yields an ExecutionResult
	// with Skipped set rather than an error, unless the session itself is
	// unusable.
	Execute(ctx context.Context, action ActionContract) (ExecutionResult, error)
}

// KnowledgeClient abstracts the external knowledge store. The core treats it
// as eventually consistent and must keep functioning (degraded to pure
// exploration) when it is unreachable.
type KnowledgeClient interface {
	// Search returns ranked knowledge items matching the query.
	Search(ctx context.Context, query string, opts SearchOptions) ([]KnowledgeItem, error)

	// Store persists a knowledge item and returns its assigned ID.
	Store(ctx context.Context, item KnowledgeItem) (string, error)

	// UpdateConfidence nudges an item's confidence up (success) or down
	// (failure) by the given step, clamped to [0,1].
	UpdateConfidence(ctx context.Context, id string, success bool, step float64) error
}

// ArtifactStore persists the durable run trace at the end of a run.
type ArtifactStore interface {
	SaveRun(ctx context.Context, artifact *RunArtifact) error
}
