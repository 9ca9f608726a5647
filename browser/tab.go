package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/voxpilot/snapshot"
)

// Tab wraps a Rod page with the assistant's setup: stealth applied, a
// snapshot extractor attached, and the CDP eval surface the executor
// and feedback speaker run on.
type Tab struct {
	Page      *rod.Page
	manager   *Manager
	extractor *snapshot.Extractor
	timeout   func(ctx context.Context) (context.Context, context.CancelFunc)
}

// OpenTab creates a stealth page and navigates it to the URL.
func OpenTab(ctx context.Context, mgr *Manager, pageURL string) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	t := &Tab{
		Page:      page,
		manager:   mgr,
		extractor: snapshot.NewExtractor(snapshot.WithLogger(mgr.cfg.Logger)),
		timeout: func(ctx context.Context) (context.Context, context.CancelFunc) {
			return context.WithTimeout(ctx, mgr.cfg.NavigationTimeout)
		},
	}

	if pageURL != "" {
		if err := t.Navigate(ctx, pageURL); err != nil {
			page.Close()
			return nil, err
		}
	}
	return t, nil
}

// DOM serialises the complete document as outer HTML.
func (t *Tab) DOM(ctx context.Context) ([]byte, error) {
	res, err := t.Page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return nil, fmt.Errorf("browser: get DOM: %w", err)
	}
	return []byte(res.Value.Str()), nil
}

// Eval runs a JS function expression with arguments and returns the
// JSON-encoded result.
func (t *Tab) Eval(ctx context.Context, js string, args ...any) ([]byte, error) {
	res, err := t.Page.Context(ctx).Eval(js, args...)
	if err != nil {
		return nil, fmt.Errorf("browser: eval: %w", err)
	}
	data, err := json.Marshal(res.Value.Val())
	if err != nil {
		return nil, fmt.Errorf("browser: encode eval result: %w", err)
	}
	return data, nil
}

// Navigate loads an absolute URL and waits for the load event.
func (t *Tab) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := t.timeout(ctx)
	defer cancel()

	if err := t.Page.Context(navCtx).Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := t.Page.Context(navCtx).WaitLoad(); err != nil {
		t.manager.cfg.Logger.Warn("browser: wait load timeout", "url", url, "error", err)
	}
	return nil
}

// Back moves one entry back in session history.
func (t *Tab) Back(ctx context.Context) error {
	if err := t.Page.Context(ctx).NavigateBack(); err != nil {
		return fmt.Errorf("browser: history back: %w", err)
	}
	return nil
}

// Forward moves one entry forward in session history.
func (t *Tab) Forward(ctx context.Context) error {
	if err := t.Page.Context(ctx).NavigateForward(); err != nil {
		return fmt.Errorf("browser: history forward: %w", err)
	}
	return nil
}

// URL returns the page's current address.
func (t *Tab) URL(ctx context.Context) (string, error) {
	info, err := t.Page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("browser: page info: %w", err)
	}
	return info.URL, nil
}

// Snapshot captures the page as a bounded analysis payload.
func (t *Tab) Snapshot(ctx context.Context) (snapshot.Snapshot, error) {
	dom, err := t.DOM(ctx)
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	url, err := t.URL(ctx)
	if err != nil {
		url = ""
	}
	return t.extractor.Extract(dom, url)
}

// Close closes the tab.
func (t *Tab) Close() error {
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}
