package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-rod/rod/lib/proto"
)

const bindingName = "__voxpilot_binding"

// bindingJS wires the page side of the event feed: key edges for the
// activation gesture and history hooks for SPA navigation. Events are
// pushed to Go through the runtime binding.
const bindingJS = `(keyCode) => {
	if (window.__voxpilot_installed) return;
	window.__voxpilot_installed = true;

	const emit = (ev) => window.__voxpilot_binding(JSON.stringify(ev));

	const editable = () => {
		const el = document.activeElement;
		if (!el) return false;
		const tag = el.tagName;
		return tag === 'INPUT' || tag === 'TEXTAREA' || el.isContentEditable;
	};

	document.addEventListener('keydown', (e) => {
		if (e.code !== keyCode) return;
		emit({kind: 'keydown', editable: editable(), repeat: e.repeat});
	}, true);
	document.addEventListener('keyup', (e) => {
		if (e.code !== keyCode) return;
		emit({kind: 'keyup'});
	}, true);

	const nav = () => emit({kind: 'navigate', url: location.href});
	const push = history.pushState;
	history.pushState = function() { push.apply(this, arguments); nav(); };
	const replace = history.replaceState;
	history.replaceState = function() { replace.apply(this, arguments); nav(); };
	window.addEventListener('popstate', nav);
}`

// EventHandlers receives page events on the binding listener goroutine.
// Handlers must be quick; hand off long work.
type EventHandlers struct {
	OnKeyDown  func(editable, repeat bool)
	OnKeyUp    func()
	OnNavigate func(url string)
}

// pageEvent is the JSON shape the injected JS emits.
type pageEvent struct {
	Kind     string `json:"kind"`
	Editable bool   `json:"editable"`
	Repeat   bool   `json:"repeat"`
	URL      string `json:"url"`
}

// InstallBindings injects the key and navigation hooks and starts the
// listener goroutine. keyCode is a KeyboardEvent.code value, e.g.
// "ControlRight". The listener stops when ctx is cancelled.
func (t *Tab) InstallBindings(ctx context.Context, keyCode string, h EventHandlers) error {
	err := proto.RuntimeAddBinding{Name: bindingName}.Call(t.Page)
	if err != nil {
		t.manager.cfg.Logger.Warn("browser: addBinding failed (may already exist)", "error", err)
	}

	go t.listenBinding(ctx, h, t.manager.cfg.Logger)

	if _, err := t.Page.Context(ctx).Eval(bindingJS, keyCode); err != nil {
		return fmt.Errorf("browser: inject bindings: %w", err)
	}

	// Reinstall on full page loads; history hooks don't survive them.
	script := fmt.Sprintf("(%s)(%q)", bindingJS, keyCode)
	if _, err := t.Page.EvalOnNewDocument(script); err != nil {
		t.manager.cfg.Logger.Warn("browser: persist bindings failed", "error", err)
	}
	return nil
}

func (t *Tab) listenBinding(ctx context.Context, h EventHandlers, log *slog.Logger) {
	t.Page.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != bindingName {
			return
		}
		var ev pageEvent
		if err := json.Unmarshal([]byte(e.Payload), &ev); err != nil {
			log.Warn("browser: parse binding payload", "error", err)
			return
		}
		switch ev.Kind {
		case "keydown":
			if h.OnKeyDown != nil {
				h.OnKeyDown(ev.Editable, ev.Repeat)
			}
		case "keyup":
			if h.OnKeyUp != nil {
				h.OnKeyUp()
			}
		case "navigate":
			if h.OnNavigate != nil {
				h.OnNavigate(ev.URL)
			}
		}
	})()
}
