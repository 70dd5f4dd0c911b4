// File: internal/reasoning/lexicon.go
package reasoning

import (
	"strings"
)

// ActionCategory groups actions by naming convention. Used by the
// exploration driver to diversify DFS selection, never by invariant logic.
type ActionCategory string

const (
	CategoryNavigation ActionCategory = "navigation"
	CategoryForm       ActionCategory = "form"
	CategoryClick      ActionCategory = "click"
	CategoryAssertion  ActionCategory = "assertion"
	CategoryWait       ActionCategory = "wait"
	CategoryOther      ActionCategory = "other"
)

// modalDismissalWords are action-ID fragments that indicate a blocking
// overlay can be cleared by the action. Dismissing blocking UI takes
// priority over all other reasoning.
var modalDismissalWords = []string{
	"close", "cancel", "dismiss", "accept", "continue", "agree", "confirm",
	"got_it", "gotit", "no_thanks",
}

// modalDismissalSegments are bare affirmatives that only count as whole ID
// segments, otherwise IDs like "click_eyes", "click_book" or
// "navigate_lookup" would match.
var modalDismissalSegments = []string{"ok", "okay", "yes"}

// IsModalDismissal reports whether an action ID looks like it dismisses a
// modal or blocking overlay.
func IsModalDismissal(actionID string) bool {
	id := strings.ToLower(actionID)
	for _, word := range modalDismissalWords {
		if strings.Contains(id, word) {
			return true
		}
	}
	for _, segment := range strings.FieldsFunc(id, func(r rune) bool { return r == '_' || r == '-' }) {
		for _, word := range modalDismissalSegments {
			if segment == word {
				return true
			}
		}
	}
	return false
}

// Categorize buckets an action ID by its naming pattern.
func Categorize(actionID string) ActionCategory {
	id := strings.ToLower(actionID)
	switch {
	case containsAny(id, "navigate", "goto", "back", "forward", "open_page"):
		return CategoryNavigation
	case containsAny(id, "fill", "input", "type", "select"):
		return CategoryForm
	case containsAny(id, "click", "press", "submit"):
		return CategoryClick
	case containsAny(id, "assert", "verify", "check", "expect"):
		return CategoryAssertion
	case containsAny(id, "wait", "sleep", "pause"):
		return CategoryWait
	default:
		return CategoryOther
	}
}

// stateChangingWords mark actions expected to alter the available action
// set. Used only for informational transition logging.
var stateChangingWords = []string{"submit", "navigate", "create", "delete", "update", "login", "logout"}

// IsStateChanging reports whether an action is expected to change the
// target's available action set.
func IsStateChanging(actionID string) bool {
	return containsAny(strings.ToLower(actionID), stateChangingWords...)
}

// isDeleteLike reports whether an action legitimately removes entities.
func isDeleteLike(actionID string) bool {
	return containsAny(strings.ToLower(actionID), "delete", "remove")
}

func containsAny(s string, words ...string) bool {
	for _, word := range words {
		if strings.Contains(s, word) {
			return true
		}
	}
	return false
}
