// Package snapshot serializes the current page into a bounded payload
// suitable for backend analysis.
package snapshot

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

const (
	// MaxHTMLBytes is the ceiling for the html field of a snapshot.
	MaxHTMLBytes = 5 << 20
	// MaxTextChars caps the text field when the html field was truncated.
	MaxTextChars = 10000
)

// Snapshot is one serialized page state.
type Snapshot struct {
	HTML      string
	Text      string
	Title     string
	URL       string
	Truncated bool
}

// Extractor builds snapshots from raw page HTML. Safe for reuse across
// pages; the sanitizer policy and markdown converter are stateless.
type Extractor struct {
	policy *bluemonday.Policy
	conv   *converter.Converter
	logger *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) { e.logger = l }
}

// NewExtractor creates an Extractor with a UGC sanitizer policy and a
// commonmark converter for readable-text derivation.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		policy: bluemonday.UGCPolicy(),
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract sanitizes the raw HTML, derives a readable text rendition and
// the document title, and applies the payload bounds.
func (e *Extractor) Extract(rawHTML []byte, pageURL string) (Snapshot, error) {
	doc, err := html.Parse(strings.NewReader(string(rawHTML)))
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: parse page: %w", err)
	}

	clean := e.policy.Sanitize(string(rawHTML))

	text := e.readableText(clean, pageURL)
	if text == "" {
		text = visibleText(doc)
	}

	s := Snapshot{
		HTML:  clean,
		Text:  text,
		Title: documentTitle(doc),
		URL:   pageURL,
	}
	return Bound(s), nil
}

// readableText converts sanitized HTML to markdown. Empty on failure;
// the caller falls back to a plain text walk.
func (e *Extractor) readableText(cleanHTML, pageURL string) string {
	if cleanHTML == "" {
		return ""
	}
	result, err := e.conv.ConvertString(cleanHTML, converter.WithDomain(pageURL))
	if err != nil {
		e.logger.Debug("snapshot: markdown conversion failed", "url", pageURL, "error", err)
		return ""
	}
	return strings.TrimSpace(result)
}

// Bound enforces the payload size limits. A snapshot whose html fits
// under MaxHTMLBytes passes through unmodified. Beyond the ceiling the
// html is cut to exactly MaxHTMLBytes and the text to MaxTextChars.
func Bound(s Snapshot) Snapshot {
	if len(s.HTML) <= MaxHTMLBytes {
		return s
	}
	s.HTML = s.HTML[:MaxHTMLBytes]
	if runes := []rune(s.Text); len(runes) > MaxTextChars {
		s.Text = string(runes[:MaxTextChars])
	}
	s.Truncated = true
	return s
}

// documentTitle returns the contents of the first <title> element.
func documentTitle(doc *html.Node) string {
	var title string
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "title" {
			if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				title = strings.TrimSpace(n.FirstChild.Data)
			}
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(doc)
	return title
}

// visibleText walks the document collecting rendered text, skipping
// script, style and head content.
func visibleText(doc *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "head", "template":
				return
			}
		}
		if n.Type == html.TextNode {
			t := strings.TrimSpace(n.Data)
			if t != "" {
				if b.Len() > 0 {
					b.WriteByte(' ')
				}
				b.WriteString(t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return b.String()
}
