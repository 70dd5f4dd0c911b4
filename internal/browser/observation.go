// File: internal/browser/observation.go
package browser

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// BuildObservation distills a parsed page into the structured observation
// map the reasoning core consumes. Only aggregate structure and declared
// signal keys are exposed; raw markup never leaves this package.
func BuildObservation(root *html.Node, title, pageURL string, consoleErrors int) map[string]any {
	var (
		elementCount int
		linkCount    int
		buttonCount  int
		formCount    int
		inputCount   int
		modalCount   int
		entities     = make(map[string]any)
		errorTexts   []string
		successTexts []string
	)

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			elementCount++
			switch n.Data {
			case "a":
				linkCount++
			case "button":
				buttonCount++
			case "form":
				formCount++
			case "input", "textarea", "select":
				inputCount++
			}

			if isModal(n) {
				modalCount++
			}
			if id := attr(n, "data-entity-id"); id != "" {
				entities[id] = strings.TrimSpace(nodeText(n))
			}
			if isErrorIndicator(n) {
				if text := strings.TrimSpace(nodeText(n)); text != "" {
					errorTexts = append(errorTexts, text)
				}
			} else if isSuccessIndicator(n) {
				if text := strings.TrimSpace(nodeText(n)); text != "" {
					successTexts = append(successTexts, text)
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)

	obs := map[string]any{
		"title":         title,
		"route":         Route(pageURL),
		"element_count": elementCount,
		"link_count":    linkCount,
		"button_count":  buttonCount,
		"form_count":    formCount,
		"input_count":   inputCount,
		"modal_count":   modalCount,
		"error_count":   consoleErrors + len(errorTexts),
	}
	if len(entities) > 0 {
		obs["entities"] = entities
	}
	if len(errorTexts) > 0 {
		obs["error"] = strings.Join(errorTexts, "; ")
	}
	if len(successTexts) > 0 {
		obs["success"] = strings.Join(successTexts, "; ")
	}
	return obs
}

// Route reduces a page URL to its path, the part of the address that
// identifies the state.
func Route(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}

// isModal detects dialog-like overlays by role or class convention.
func isModal(n *html.Node) bool {
	if attr(n, "role") == "dialog" || attr(n, "aria-modal") == "true" {
		return true
	}
	return hasClassWord(n, "modal")
}

// isErrorIndicator matches error banners by role or class convention.
func isErrorIndicator(n *html.Node) bool {
	if attr(n, "role") == "alert" {
		return !hasAnyClassWord(n, successClasses)
	}
	return hasAnyClassWord(n, errorClasses)
}

func isSuccessIndicator(n *html.Node) bool {
	return hasAnyClassWord(n, successClasses)
}

var (
	errorClasses   = []string{"error", "alert-danger", "alert-error"}
	successClasses = []string{"success", "alert-success"}
)

func hasClassWord(n *html.Node, word string) bool {
	for _, class := range strings.Fields(attr(n, "class")) {
		if strings.EqualFold(class, word) {
			return true
		}
	}
	return false
}

func hasAnyClassWord(n *html.Node, words []string) bool {
	for _, word := range words {
		if hasClassWord(n, word) {
			return true
		}
	}
	return false
}
