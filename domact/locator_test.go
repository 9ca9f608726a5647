package domact

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
)

const fixture = `<!DOCTYPE html>
<html><head><title>Shop</title></head><body>
<nav>
  <a href="/home">Home</a>
  <a href="/about">About Us</a>
</nav>
<form id="checkout">
  <input type="text" name="email" placeholder="Email address">
  <input type="text" name="promo" aria-label="Promo code">
  <button type="submit">Submit</button>
  <button type="button" class="alt">submit</button>
</form>
<div role="button" id="fancy">Open Cart</div>
</body></html>`

func parseFixture(t *testing.T) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(fixture))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return doc
}

func TestLocate_ByID(t *testing.T) {
	doc := parseFixture(t)
	m, err := Locate(doc, Descriptor{
		Target:     "whatever",
		Attributes: map[string]string{"id": "fancy"},
	})
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	if m.Strategy != StrategyAttribute {
		t.Errorf("strategy: got %v, want attribute", m.Strategy)
	}
	if getAttr(m.Node, "id") != "fancy" {
		t.Errorf("wrong node: %v", m.Node.Data)
	}
}

func TestLocate_ByAttributes(t *testing.T) {
	doc := parseFixture(t)
	m, err := Locate(doc, Descriptor{
		Attributes: map[string]string{"name": "promo", "text": "ignored hint"},
	})
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	if getAttr(m.Node, "name") != "promo" {
		t.Errorf("wrong node: %s", m.Node.Data)
	}
}

func TestLocate_BySelector(t *testing.T) {
	doc := parseFixture(t)
	m, err := Locate(doc, Descriptor{Target: "button.alt"})
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	if m.Strategy != StrategySelector {
		t.Errorf("strategy: got %v, want selector", m.Strategy)
	}
	if getAttr(m.Node, "class") != "alt" {
		t.Errorf("wrong node")
	}
}

func TestLocate_TextExact_CaseSensitiveFirst(t *testing.T) {
	doc := parseFixture(t)

	// "Submit" exactly matches the first button; "submit" exactly matches
	// the second. Case-sensitive match must win for each.
	m, err := Locate(doc, Descriptor{Target: "Submit", ElementType: "button"})
	if err != nil {
		t.Fatalf("locate Submit: %v", err)
	}
	if m.Strategy != StrategyTextExact {
		t.Errorf("strategy: got %v, want text_exact", m.Strategy)
	}
	if getAttr(m.Node, "type") != "submit" {
		t.Errorf("matched the wrong button")
	}

	m, err = Locate(doc, Descriptor{Target: "submit", ElementType: "button"})
	if err != nil {
		t.Fatalf("locate submit: %v", err)
	}
	if getAttr(m.Node, "class") != "alt" {
		t.Errorf("matched the wrong button for lowercase target")
	}
}

func TestLocate_TextFold(t *testing.T) {
	doc := parseFixture(t)
	m, err := Locate(doc, Descriptor{Target: "SUBMIT", ElementType: "button"})
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	if m.Strategy != StrategyTextFold {
		t.Errorf("strategy: got %v, want text_fold", m.Strategy)
	}
	// Ties break to the first in document order.
	if getAttr(m.Node, "type") != "submit" {
		t.Errorf("tie must resolve to first button in document order")
	}
}

func TestLocate_Substring(t *testing.T) {
	doc := parseFixture(t)
	m, err := Locate(doc, Descriptor{Target: "about", ElementType: "link"})
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	if m.Strategy != StrategyTextSubstring {
		t.Errorf("strategy: got %v, want text_substring", m.Strategy)
	}
	if getAttr(m.Node, "href") != "/about" {
		t.Errorf("wrong link matched")
	}
}

func TestLocate_RoleButton(t *testing.T) {
	doc := parseFixture(t)
	m, err := Locate(doc, Descriptor{Target: "Open Cart", ElementType: "button"})
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	if getAttr(m.Node, "id") != "fancy" {
		t.Errorf("role=button element not matched")
	}
}

func TestLocate_InputByPlaceholder(t *testing.T) {
	doc := parseFixture(t)
	m, err := Locate(doc, Descriptor{Target: "Email address", ElementType: "input"})
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	if getAttr(m.Node, "name") != "email" {
		t.Errorf("wrong input matched")
	}
}

func TestLocate_NotFound(t *testing.T) {
	doc := parseFixture(t)
	_, err := Locate(doc, Descriptor{Target: "Nonexistent Thing", ElementType: "button"})
	if _, ok := err.(*ErrElementNotFound); !ok {
		t.Fatalf("got %v, want ErrElementNotFound", err)
	}
}

func TestBuildPath_ResolvesBackToSameNode(t *testing.T) {
	doc := parseFixture(t)
	m, err := Locate(doc, Descriptor{Target: "Submit", ElementType: "button"})
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	if !strings.Contains(m.Path, "button:nth-of-type(1)") {
		t.Errorf("path: got %q, want it to end at the first button", m.Path)
	}
	if !strings.HasPrefix(m.Path, "html > body") {
		t.Errorf("path: got %q, want rooted at html > body", m.Path)
	}
}

func TestLooksLikeSelector(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"#checkout", true},
		{".alt", true},
		{"input[name=email]", true},
		{"Submit", false},
		{"Open Cart", false},
		{"About Us", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := looksLikeSelector(tt.in); got != tt.want {
			t.Errorf("looksLikeSelector(%q): got %v, want %v", tt.in, got, tt.want)
		}
	}
}
