// File: internal/browser/actions.go

// Package browser implements the UI collaborator against a live Chromium
// session: structured discovery of the current page and physical execution
// of action contracts. The reasoning core never sees markup or selectors;
// everything it receives is derived here into opaque action IDs and a
// structured observation map.
package browser

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// targetKind says how an action is physically executed.
type targetKind int

const (
	kindNavigate targetKind = iota
	kindClick
	kindFill
	kindSubmit
	kindSelect
)

// actionTarget is the executable backing of one derived action ID. It stays
// inside this package; action contracts never carry selectors.
type actionTarget struct {
	Kind targetKind
	// Tag and Index locate the element as the Index-th occurrence of Tag in
	// document order, mirroring document.querySelectorAll(tag)[index].
	Tag   string
	Index int
	// Href is the resolved destination for navigation actions.
	Href string
}

// fillableInputTypes are the input types an agent can meaningfully type
// into.
var fillableInputTypes = map[string]struct{}{
	"": {}, "text": {}, "email": {}, "password": {}, "search": {},
	"tel": {}, "url": {}, "number": {},
}

// DeriveActions walks a parsed HTML document and produces the ordered,
// de-duplicated action set plus the execution target for each action. It is
// a pure function over the parse tree, so it is testable without a browser.
func DeriveActions(root *html.Node) ([]string, map[string]actionTarget) {
	var (
		order   []string
		targets = make(map[string]actionTarget)
		counts  = make(map[string]int)
	)

	add := func(id string, target actionTarget) {
		if id == "" {
			return
		}
		if _, dup := targets[id]; dup {
			// Same slug, different element: disambiguate by occurrence.
			id = fmt.Sprintf("%s_%d", id, target.Index+1)
			if _, stillDup := targets[id]; stillDup {
				return
			}
		}
		order = append(order, id)
		targets[id] = target
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			tag := n.Data
			index := counts[tag]
			counts[tag]++

			switch tag {
			case "a":
				if href := attr(n, "href"); navigable(href) {
					add("navigate_"+slugify(firstNonEmpty(nodeText(n), attr(n, "id"), href)),
						actionTarget{Kind: kindNavigate, Tag: tag, Index: index, Href: href})
				}
			case "button":
				if attr(n, "type") == "submit" {
					add("submit_"+slugify(firstNonEmpty(nodeText(n), attr(n, "id"), attr(n, "name"))),
						actionTarget{Kind: kindClick, Tag: tag, Index: index})
				} else {
					add("click_"+slugify(firstNonEmpty(nodeText(n), attr(n, "id"), attr(n, "name"))),
						actionTarget{Kind: kindClick, Tag: tag, Index: index})
				}
			case "input":
				typ := strings.ToLower(attr(n, "type"))
				name := firstNonEmpty(attr(n, "name"), attr(n, "id"), attr(n, "placeholder"))
				switch {
				case typ == "submit" || typ == "button":
					add("click_"+slugify(firstNonEmpty(attr(n, "value"), name)),
						actionTarget{Kind: kindClick, Tag: tag, Index: index})
				case isFillable(typ):
					add("fill_"+slugify(name),
						actionTarget{Kind: kindFill, Tag: tag, Index: index})
				}
			case "textarea":
				add("fill_"+slugify(firstNonEmpty(attr(n, "name"), attr(n, "id"), attr(n, "placeholder"))),
					actionTarget{Kind: kindFill, Tag: tag, Index: index})
			case "select":
				add("select_"+slugify(firstNonEmpty(attr(n, "name"), attr(n, "id"))),
					actionTarget{Kind: kindSelect, Tag: tag, Index: index})
			case "form":
				add("submit_"+slugify(firstNonEmpty(attr(n, "id"), attr(n, "name"), attr(n, "action"))),
					actionTarget{Kind: kindSubmit, Tag: tag, Index: index})
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)

	return order, targets
}

// navigable filters out hrefs that do not lead anywhere new.
func navigable(href string) bool {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return false
	}
	lower := strings.ToLower(href)
	return !strings.HasPrefix(lower, "javascript:") && !strings.HasPrefix(lower, "mailto:")
}

func isFillable(typ string) bool {
	_, ok := fillableInputTypes[typ]
	return ok
}

const maxSlugLen = 40

// slugify turns arbitrary labels into stable action-ID fragments.
func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastUnderscore := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
		if b.Len() >= maxSlugLen {
			break
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		return "unnamed"
	}
	return out
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// nodeText collects the visible text directly inside a node.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
