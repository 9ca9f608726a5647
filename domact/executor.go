package domact

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/voxpilot/wire"
)

// Page is the executor's view of the driven page. The browser package
// provides the live implementation; tests use fakes.
type Page interface {
	// DOM returns the current document as HTML.
	DOM(ctx context.Context) ([]byte, error)
	// Eval runs a JS function expression with the given arguments and
	// returns the JSON-encoded result.
	Eval(ctx context.Context, js string, args ...any) ([]byte, error)
	// Navigate loads an absolute URL.
	Navigate(ctx context.Context, url string) error
	// Back and Forward move through session history.
	Back(ctx context.Context) error
	Forward(ctx context.Context) error
}

const (
	clickJS = `(sel) => {
		const el = document.querySelector(sel);
		if (!el) return false;
		el.scrollIntoView({block: 'center', behavior: 'instant'});
		el.click();
		return true;
	}`

	// Set the value and fire input+change so framework listeners observe it.
	inputJS = `(sel, value) => {
		const el = document.querySelector(sel);
		if (!el) return false;
		el.focus();
		el.value = '';
		el.value = value;
		el.dispatchEvent(new Event('input', {bubbles: true}));
		el.dispatchEvent(new Event('change', {bubbles: true}));
		return true;
	}`

	scrollJS = `(amount) => { window.scrollBy({top: amount, behavior: 'smooth'}); return true; }`
)

// defaultScrollAmount is the pixel distance for direction-only scrolls.
const defaultScrollAmount = 500

// Executor performs backend-described actions against a Page.
type Executor struct {
	page   Page
	logger *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

// NewExecutor creates an Executor bound to a page.
func NewExecutor(page Page, opts ...ExecutorOption) *Executor {
	e := &Executor{page: page, logger: slog.Default()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Execute performs one action. ErrElementNotFound and ErrUnknownAction are
// descriptive failures the caller reports without aborting the session.
func (e *Executor) Execute(ctx context.Context, act wire.Action) error {
	switch normalizeKind(act.Type) {
	case "click":
		return e.click(ctx, act)
	case "input":
		return e.input(ctx, act)
	case "scroll":
		return e.scroll(ctx, act)
	case "navigate":
		return e.navigate(ctx, act)
	default:
		return &ErrUnknownAction{Kind: act.Type}
	}
}

// normalizeKind folds the spoken-verb synonyms the backend produces into
// the four executable kinds.
func normalizeKind(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "click", "tap", "press", "select", "choose":
		return "click"
	case "input", "type", "enter", "fill":
		return "input"
	case "scroll":
		return "scroll"
	case "navigate", "open", "go":
		return "navigate"
	}
	return strings.ToLower(kind)
}

func (e *Executor) locate(ctx context.Context, act wire.Action) (*Match, error) {
	dom, err := e.page.DOM(ctx)
	if err != nil {
		return nil, fmt.Errorf("domact: read DOM: %w", err)
	}
	doc, err := html.Parse(bytes.NewReader(dom))
	if err != nil {
		return nil, fmt.Errorf("domact: parse DOM: %w", err)
	}
	m, err := Locate(doc, Descriptor{
		Target:      act.Target,
		ElementType: act.ElementType,
		Attributes:  act.Attributes,
	})
	if err != nil {
		return nil, err
	}
	e.logger.Debug("domact: located element",
		"target", act.Target, "strategy", m.Strategy, "path", m.Path)
	return m, nil
}

func (e *Executor) click(ctx context.Context, act wire.Action) error {
	m, err := e.locate(ctx, act)
	if err != nil {
		return err
	}
	res, err := e.page.Eval(ctx, clickJS, m.Path)
	if err != nil {
		return fmt.Errorf("domact: click %q: %w", act.Target, err)
	}
	if string(res) == "false" {
		// The DOM changed between snapshot and click.
		return &ErrElementNotFound{Target: act.Target, ElementType: act.ElementType}
	}
	return nil
}

func (e *Executor) input(ctx context.Context, act wire.Action) error {
	m, err := e.locate(ctx, act)
	if err != nil {
		return err
	}
	res, err := e.page.Eval(ctx, inputJS, m.Path, act.Value)
	if err != nil {
		return fmt.Errorf("domact: input %q: %w", act.Target, err)
	}
	if string(res) == "false" {
		return &ErrElementNotFound{Target: act.Target, ElementType: act.ElementType}
	}
	return nil
}

func (e *Executor) scroll(ctx context.Context, act wire.Action) error {
	amount := defaultScrollAmount
	if v := strings.TrimSpace(act.Value); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			amount = n
		}
	}
	if strings.EqualFold(strings.TrimSpace(act.Target), "up") && amount > 0 {
		amount = -amount
	}
	if _, err := e.page.Eval(ctx, scrollJS, amount); err != nil {
		return fmt.Errorf("domact: scroll: %w", err)
	}
	return nil
}

func (e *Executor) navigate(ctx context.Context, act wire.Action) error {
	dest := strings.TrimSpace(act.Value)
	if dest == "" {
		dest = strings.TrimSpace(act.Target)
	}
	switch strings.ToLower(dest) {
	case "back":
		return e.page.Back(ctx)
	case "forward":
		return e.page.Forward(ctx)
	case "":
		return &ErrUnknownAction{Kind: "navigate (empty destination)"}
	}
	return e.page.Navigate(ctx, dest)
}
