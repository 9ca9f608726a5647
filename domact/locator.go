// Package domact locates and manipulates page elements from backend action
// descriptions.
//
// Locating is a strategy ladder: explicit attributes, then a CSS selector if
// the target looks like one, then exact text (case-sensitive, then folded),
// then substring text as a last resort. The first strategy with at least one
// match wins and ties resolve to the first match in document order. All
// matching runs over a parsed DOM snapshot; only the final mutation touches
// the live page.
package domact

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Strategy identifies which rung of the locate ladder produced a match.
type Strategy int

const (
	StrategyAttribute Strategy = iota
	StrategySelector
	StrategyTextExact
	StrategyTextFold
	StrategyTextSubstring
)

// String returns a short name for logging.
func (s Strategy) String() string {
	switch s {
	case StrategyAttribute:
		return "attribute"
	case StrategySelector:
		return "selector"
	case StrategyTextExact:
		return "text_exact"
	case StrategyTextFold:
		return "text_fold"
	case StrategyTextSubstring:
		return "text_substring"
	}
	return "unknown"
}

// Descriptor describes the element an action targets.
type Descriptor struct {
	Target      string            // free text, selector, or label
	ElementType string            // "button", "link", "input", ... scopes text search
	Attributes  map[string]string // explicit attributes; "text"/"label" are hints, not attrs
}

// Match is a located element with the selector path usable on the live page.
type Match struct {
	Node     *html.Node
	Strategy Strategy
	Path     string // querySelector-compatible path to the node
}

// Locate resolves a descriptor against a parsed document. Returns
// ErrElementNotFound when every strategy comes up empty.
func Locate(doc *html.Node, d Descriptor) (*Match, error) {
	if m := locateByAttributes(doc, d); m != nil {
		return m, nil
	}
	if looksLikeSelector(d.Target) {
		if nodes := querySelectorAll(doc, d.Target); len(nodes) > 0 {
			return newMatch(nodes[0], StrategySelector), nil
		}
	}
	if m := locateByText(doc, d); m != nil {
		return m, nil
	}
	return nil, &ErrElementNotFound{Target: d.Target, ElementType: d.ElementType}
}

func newMatch(n *html.Node, s Strategy) *Match {
	return &Match{Node: n, Strategy: s, Path: buildPath(n)}
}

func locateByAttributes(doc *html.Node, d Descriptor) *Match {
	if len(d.Attributes) == 0 {
		return nil
	}

	// id alone is authoritative.
	if id, ok := d.Attributes["id"]; ok && id != "" {
		if nodes := querySelectorAll(doc, "#"+id); len(nodes) > 0 {
			return newMatch(nodes[0], StrategyAttribute)
		}
	}

	// Remaining attributes must all match. "text" and "label" are hints for
	// the text strategies, not DOM attributes.
	want := make(map[string]string)
	for k, v := range d.Attributes {
		if k == "id" || k == "text" || k == "label" {
			continue
		}
		want[k] = v
	}
	if len(want) == 0 {
		return nil
	}

	var found *html.Node
	walkElements(doc, func(n *html.Node) bool {
		for k, v := range want {
			if getAttr(n, k) != v {
				return false
			}
		}
		found = n
		return true
	})
	if found == nil {
		return nil
	}
	return newMatch(found, StrategyAttribute)
}

func locateByText(doc *html.Node, d Descriptor) *Match {
	target := strings.TrimSpace(d.Target)
	if target == "" {
		// Fall back to the text hint from attributes.
		target = strings.TrimSpace(d.Attributes["text"])
	}
	if target == "" {
		return nil
	}

	candidates := interactiveElements(doc, d.ElementType)

	for _, c := range candidates {
		if c.text == target {
			return newMatch(c.node, StrategyTextExact)
		}
	}
	for _, c := range candidates {
		if strings.EqualFold(c.text, target) {
			return newMatch(c.node, StrategyTextFold)
		}
	}
	lower := strings.ToLower(target)
	for _, c := range candidates {
		if strings.Contains(strings.ToLower(c.text), lower) {
			return newMatch(c.node, StrategyTextSubstring)
		}
	}
	return nil
}

type candidate struct {
	node *html.Node
	text string
}

// interactiveElements returns clickable/fillable elements in document order,
// scoped by the requested element kind, each with its visible label text.
func interactiveElements(doc *html.Node, elementType string) []candidate {
	accept := acceptFunc(elementType)

	var out []candidate
	walkElements(doc, func(n *html.Node) bool {
		if !accept(n) {
			return false
		}
		out = append(out, candidate{node: n, text: labelText(n)})
		return false // keep walking; we want all of them
	})
	return out
}

func acceptFunc(elementType string) func(*html.Node) bool {
	switch strings.ToLower(elementType) {
	case "button", "tab", "icon":
		return func(n *html.Node) bool {
			return n.DataAtom == atom.Button ||
				getAttr(n, "role") == "button" ||
				(n.DataAtom == atom.Input && isButtonInput(n))
		}
	case "link":
		return func(n *html.Node) bool { return n.DataAtom == atom.A }
	case "input", "field", "box", "textbox", "textarea":
		return func(n *html.Node) bool {
			return n.DataAtom == atom.Input || n.DataAtom == atom.Textarea || n.DataAtom == atom.Select
		}
	default:
		return func(n *html.Node) bool {
			switch n.DataAtom {
			case atom.A, atom.Button, atom.Input, atom.Textarea, atom.Select:
				return true
			}
			return getAttr(n, "role") == "button"
		}
	}
}

func isButtonInput(n *html.Node) bool {
	switch getAttr(n, "type") {
	case "button", "submit", "reset":
		return true
	}
	return false
}

// labelText derives the user-visible label of an element: inner text for
// most, value/placeholder/aria-label for inputs.
func labelText(n *html.Node) string {
	if n.DataAtom == atom.Input {
		for _, key := range []string{"value", "placeholder", "aria-label", "name"} {
			if v := strings.TrimSpace(getAttr(n, key)); v != "" {
				return v
			}
		}
		return ""
	}
	if v := strings.TrimSpace(getAttr(n, "aria-label")); v != "" {
		return v
	}
	return collapseSpace(collectText(n))
}

// looksLikeSelector reports whether a target string is plausibly a CSS
// selector rather than visible text.
func looksLikeSelector(target string) bool {
	target = strings.TrimSpace(target)
	if target == "" {
		return false
	}
	if strings.HasPrefix(target, "#") || strings.HasPrefix(target, ".") {
		return true
	}
	return strings.ContainsAny(target, "[>") && !strings.ContainsAny(target, " \t")
}

// buildPath computes a querySelector-compatible path (html > body > ... >
// tag:nth-of-type(k)) for a node, resolvable on the live page.
func buildPath(n *html.Node) string {
	var segs []string
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		seg := cur.Data
		if cur.Data != "html" {
			seg += ":nth-of-type(" + itoa(nthOfType(cur)) + ")"
		}
		segs = append(segs, seg)
		if cur.Data == "html" {
			break
		}
	}
	// Reverse into document order.
	for i, j := 0, len(segs)-1; i < j; i, j = i+1, j-1 {
		segs[i], segs[j] = segs[j], segs[i]
	}
	return strings.Join(segs, " > ")
}

// nthOfType returns the 1-based index of n among same-tag element siblings.
func nthOfType(n *html.Node) int {
	idx := 1
	for sib := n.PrevSibling; sib != nil; sib = sib.PrevSibling {
		if sib.Type == html.ElementNode && sib.Data == n.Data {
			idx++
		}
	}
	return idx
}

func itoa(i int) string {
	// Small positive numbers only; avoids strconv in the hot walk.
	if i < 10 {
		return string(rune('0' + i))
	}
	return itoa(i/10) + string(rune('0'+i%10))
}

// walkElements visits element nodes in document order. visit returning true
// stops the walk.
func walkElements(root *html.Node, visit func(*html.Node) bool) {
	var stopped bool
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if stopped {
			return
		}
		if n.Type == html.ElementNode {
			if visit(n) {
				stopped = true
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
}

// collectText extracts all visible text from a node subtree.
func collectText(n *html.Node) string {
	var sb strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(text)
			}
		}
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style:
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return sb.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
