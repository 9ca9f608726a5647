package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/voxpilot/activation"
	"github.com/hazyhaar/voxpilot/capture"
	"github.com/hazyhaar/voxpilot/realtime"
	"github.com/hazyhaar/voxpilot/snapshot"
	"github.com/hazyhaar/voxpilot/wire"
)

// Channel is the dispatcher's view of the realtime connection.
type Channel interface {
	Connect(ctx context.Context) error
	Send(data []byte) error
	State() realtime.State
}

// Recorder is the dispatcher's view of speech capture.
type Recorder interface {
	Start(ctx context.Context) error
	Stop() (capture.Segment, bool)
	Discard()
	Recording() bool
}

// Actor executes backend-described page actions.
type Actor interface {
	Execute(ctx context.Context, act wire.Action) error
}

// Pages produces snapshots of the driven page.
type Pages interface {
	Snapshot(ctx context.Context) (snapshot.Snapshot, error)
}

// Feedback surfaces results to the user: spoken output plus a short
// status line.
type Feedback interface {
	Speak(ctx context.Context, text string)
	Status(text string)
}

// Tracer records session events for later inspection. Implementations
// must not block.
type Tracer interface {
	Record(ctx context.Context, kind, detail string)
}

// Fallback delivers analysis requests over HTTP when the realtime
// channel is exhausted.
type Fallback interface {
	AnalyzePage(ctx context.Context, html, text, url string) ([]byte, error)
}

// State is the dispatcher's coarse mode.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateListening
	StateAwaiting
	StateConversation
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateListening:
		return "listening"
	case StateAwaiting:
		return "awaiting_response"
	case StateConversation:
		return "conversation"
	}
	return "unknown"
}

// DefaultSettleDelay is how long after a navigation the page is left to
// render before an automatic analysis request.
const DefaultSettleDelay = time.Second

// Config carries dispatcher tunables.
type Config struct {
	// AutoAnalyze requests a page analysis after each navigation.
	AutoAnalyze bool
	// SettleDelay is the post-navigation render grace period.
	SettleDelay time.Duration
	Logger      *slog.Logger
}

func (c *Config) defaults() {
	if c.SettleDelay <= 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Dispatcher is the session coordinator. All handlers are serialized on
// one mutex, so each event is processed fully before the next; callers
// may invoke them from any goroutine.
type Dispatcher struct {
	cfg      Config
	ch       Channel
	rec      Recorder
	actor    Actor
	pages    Pages
	fb       Feedback
	tracer   Tracer
	fallback Fallback
	logger   *slog.Logger

	mu    sync.Mutex
	state State
	sess  Session
	// pendingRetry holds the one payload eligible for a single
	// reconnect-and-retry after a failed send.
	pendingRetry []byte
	settle       *time.Timer
}

// DispatcherOption configures optional collaborators.
type DispatcherOption func(*Dispatcher)

// WithTracer attaches a session event recorder.
func WithTracer(t Tracer) DispatcherOption {
	return func(d *Dispatcher) { d.tracer = t }
}

// WithPages attaches a snapshot source for page analysis. Without one,
// analysis requests fall back to URL-only messages.
func WithPages(p Pages) DispatcherOption {
	return func(d *Dispatcher) { d.pages = p }
}

// WithFallback attaches an HTTP path for analysis requests when the
// channel is exhausted.
func WithFallback(f Fallback) DispatcherOption {
	return func(d *Dispatcher) { d.fallback = f }
}

// NewDispatcher wires a dispatcher. ch, rec, actor and fb are required.
func NewDispatcher(cfg Config, ch Channel, rec Recorder, actor Actor, fb Feedback, opts ...DispatcherOption) *Dispatcher {
	cfg.defaults()
	d := &Dispatcher{
		cfg:    cfg,
		ch:     ch,
		rec:    rec,
		actor:  actor,
		fb:     fb,
		logger: cfg.Logger,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// State returns the current dispatcher state.
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Info returns a status snapshot for admin and tool surfaces.
func (d *Dispatcher) Info() Info {
	d.mu.Lock()
	defer d.mu.Unlock()
	labels := make([]string, 0, len(d.sess.Options))
	for l := range d.sess.Options {
		labels = append(labels, l)
	}
	return Info{
		URL:          d.sess.URL,
		State:        d.state.String(),
		Activated:    d.sess.Activated,
		Recording:    d.rec.Recording(),
		Conversation: d.sess.Conversation,
		Analyzed:     d.sess.Analyzed,
		OptionLabels: labels,
	}
}

// HandleEdge consumes an activation edge.
func (d *Dispatcher) HandleEdge(ctx context.Context, e activation.Edge) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch e {
	case activation.Activate:
		if d.state == StateAwaiting {
			// One request in flight per session; the press is ignored
			// until the response settles.
			d.logger.Debug("session: activation ignored while awaiting response")
			return
		}
		d.sess.Activated = true
		d.record(ctx, "activate", d.sess.URL)
		if d.ch.State() == realtime.StateOpen {
			d.startListening(ctx)
			return
		}
		d.state = StateConnecting
		if err := d.ch.Connect(ctx); err != nil {
			d.fail(ctx, "connection unavailable")
		}
	case activation.Deactivate:
		d.sess.Activated = false
		d.record(ctx, "deactivate", "")
		switch d.state {
		case StateListening:
			// Release ends the utterance: flush and send what was said.
			seg, ok := d.rec.Stop()
			if ok && len(seg.Data) > 0 {
				d.sendSegment(ctx, seg)
				return
			}
			d.toIdle()
		case StateIdle:
			// no-op
		default:
			// Forced deactivation also ends conversation mode, so the
			// pending options cannot linger into the next session.
			d.sess.Conversation = false
			d.sess.Options = nil
			d.rec.Discard()
			d.toIdle()
		}
	}
}

// HandleSegment consumes a hard-cap flushed audio segment from the
// recorder's segment channel.
func (d *Dispatcher) HandleSegment(ctx context.Context, seg capture.Segment) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != StateListening && d.state != StateConversation {
		d.logger.Debug("session: dropping segment outside listening", "state", d.state.String())
		return
	}
	d.sendSegment(ctx, seg)
}

// HandleTranscript consumes a recognition result. Interim transcripts
// update the status line only; final ones go to the backend.
func (d *Dispatcher) HandleTranscript(ctx context.Context, tr capture.Transcript) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !tr.Final {
		d.fb.Status(tr.Text)
		return
	}
	switch d.state {
	case StateConversation:
		d.handleUtterance(ctx, tr.Text)
	case StateListening:
		// A final transcript supersedes the buffered audio.
		d.rec.Discard()
		payload, err := wire.EncodeText(tr.Text)
		if err != nil {
			d.logger.Error("session: encode transcript", "error", err)
			return
		}
		d.record(ctx, "transcript", tr.Text)
		d.send(ctx, payload)
	default:
		d.logger.Debug("session: dropping transcript outside listening", "state", d.state.String())
	}
}

// HandleChannelEvent consumes realtime channel lifecycle and traffic.
func (d *Dispatcher) HandleChannelEvent(ctx context.Context, ev realtime.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch ev.Kind {
	case realtime.EventOpen:
		d.onOpen(ctx)
	case realtime.EventMessage:
		cmd, err := wire.Decode(ev.Payload)
		if err != nil {
			d.logger.Warn("session: unclassifiable message", "error", err)
			d.fb.Status("unrecognized response")
			return
		}
		d.dispatchCommand(ctx, cmd)
	case realtime.EventParseError:
		d.logger.Warn("session: channel parse error", "error", ev.Err)
		d.fb.Status("unrecognized response")
	case realtime.EventDisconnected:
		d.fb.Status("connection lost, retrying")
		if d.state == StateAwaiting {
			// The correlated reply died with the connection.
			d.toIdle()
		}
	case realtime.EventExhausted:
		d.fail(ctx, "backend unreachable")
	case realtime.EventClosed:
		d.rec.Discard()
		d.toIdle()
	}
}

// HandleNavigation consumes a URL change on the driven page.
func (d *Dispatcher) HandleNavigation(ctx context.Context, url string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.settle != nil {
		d.settle.Stop()
		d.settle = nil
	}
	d.rec.Discard()
	d.sess.Reset(url)
	d.state = StateIdle
	d.record(ctx, "navigation", url)

	if !d.cfg.AutoAnalyze {
		return
	}
	d.settle = time.AfterFunc(d.cfg.SettleDelay, func() {
		d.autoAnalyze(url)
	})
}

// Analyze requests a backend analysis of the current page. Used by the
// tool surface; auto-analysis goes through the same path.
func (d *Dispatcher) Analyze(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.analyzeLocked(ctx)
}

// Execute runs one backend-shaped action against the page. Exposed for
// the tool surface.
func (d *Dispatcher) Execute(ctx context.Context, act wire.Action) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(ctx, "action", act.Type)
	return d.actor.Execute(ctx, act)
}

// Close stops timers and discards buffered audio.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.settle != nil {
		d.settle.Stop()
		d.settle = nil
	}
	d.rec.Discard()
	d.state = StateIdle
}

func (d *Dispatcher) autoAnalyze(url string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	// Only the newest navigation's timer may analyze, and only once
	// per URL.
	if d.sess.URL != url || d.sess.Analyzed {
		return
	}
	if err := d.analyzeLocked(context.Background()); err != nil {
		d.logger.Warn("session: auto analysis failed", "url", url, "error", err)
	}
}

func (d *Dispatcher) analyzeLocked(ctx context.Context) error {
	if d.state == StateAwaiting {
		return ErrBusy
	}
	if d.sess.Analyzed {
		return ErrAlreadyAnalyzed
	}

	var snap snapshot.Snapshot
	if d.pages != nil {
		var err error
		snap, err = d.pages.Snapshot(ctx)
		if err != nil {
			return fmt.Errorf("session: snapshot page: %w", err)
		}
	}
	if snap.URL == "" {
		snap.URL = d.sess.URL
	}

	if d.fallback != nil && d.ch.State() == realtime.StateExhausted {
		d.sess.Analyzed = true
		d.state = StateAwaiting
		d.record(ctx, "analyze", snap.URL)
		go d.analyzeFallback(ctx, snap)
		return nil
	}

	var payload []byte
	var err error
	if d.pages != nil {
		payload, err = wire.EncodePageContent(snap.HTML, snap.Text, snap.URL)
	} else {
		payload, err = wire.EncodeURLRequest(d.sess.URL)
	}
	if err != nil {
		return fmt.Errorf("session: encode analysis request: %w", err)
	}
	d.sess.Analyzed = true
	d.record(ctx, "analyze", d.sess.URL)
	d.send(ctx, payload)
	return nil
}

// analyzeFallback runs the HTTP analysis path off the dispatcher lock
// and feeds the response back through the normal message flow.
func (d *Dispatcher) analyzeFallback(ctx context.Context, snap snapshot.Snapshot) {
	resp, err := d.fallback.AnalyzePage(ctx, snap.HTML, snap.Text, snap.URL)
	if err != nil {
		d.logger.Warn("session: fallback analysis failed", "url", snap.URL, "error", err)
		d.mu.Lock()
		d.fb.Status("analysis unavailable")
		d.toIdle()
		d.mu.Unlock()
		return
	}
	d.HandleChannelEvent(ctx, realtime.Event{Kind: realtime.EventMessage, Payload: resp})
}

// onOpen handles a fresh connection: resend the one retry-eligible
// payload, or begin listening if an activation is pending.
func (d *Dispatcher) onOpen(ctx context.Context) {
	if d.pendingRetry != nil {
		payload := d.pendingRetry
		d.pendingRetry = nil
		if err := d.ch.Send(payload); err != nil {
			d.fail(ctx, "request could not be delivered")
			return
		}
		d.state = StateAwaiting
		return
	}
	if d.state == StateConnecting && d.sess.Activated {
		d.startListening(ctx)
	}
}

func (d *Dispatcher) startListening(ctx context.Context) {
	if err := d.rec.Start(ctx); err != nil {
		switch {
		case errors.Is(err, capture.ErrPermissionDenied):
			d.fail(ctx, "microphone access was denied")
		case errors.Is(err, capture.ErrDeviceNotFound):
			d.fail(ctx, "no microphone was found")
		default:
			d.fail(ctx, "could not start listening")
		}
		return
	}
	d.state = StateListening
	d.fb.Status("listening")
}

func (d *Dispatcher) sendSegment(ctx context.Context, seg capture.Segment) {
	payload, err := wire.EncodeAudio(seg.Data)
	if err != nil {
		d.logger.Error("session: encode audio", "error", err)
		return
	}
	d.record(ctx, "audio", seg.Duration().String())
	d.send(ctx, payload)
}

// send delivers a payload with the single reconnect-and-retry the
// failure semantics allow. On first failure the payload is parked and a
// reconnect starts; onOpen resends it exactly once.
func (d *Dispatcher) send(ctx context.Context, payload []byte) {
	if err := d.ch.Send(payload); err != nil {
		if d.pendingRetry != nil {
			d.fail(ctx, "request could not be delivered")
			return
		}
		d.logger.Warn("session: send failed, reconnecting once", "error", err)
		d.pendingRetry = payload
		d.state = StateConnecting
		if cerr := d.ch.Connect(ctx); cerr != nil {
			d.fail(ctx, "connection unavailable")
		}
		return
	}
	d.state = StateAwaiting
}

func (d *Dispatcher) dispatchCommand(ctx context.Context, cmd wire.Command) {
	d.record(ctx, "command", cmd.Kind.String())

	switch cmd.Kind {
	case wire.KindError:
		d.fail(ctx, cmd.Text)
	case wire.KindWakeWord:
		d.sess.Activated = true
		d.startListening(ctx)
	case wire.KindStopWord:
		d.sess.Activated = false
		d.sess.Conversation = false
		d.sess.Options = nil
		d.rec.Discard()
		d.toIdle()
	case wire.KindExecuteAction:
		if d.droppedLate(cmd) {
			return
		}
		if cmd.Action == nil {
			d.logger.Warn("session: execute command without action")
			return
		}
		if err := d.actor.Execute(ctx, *cmd.Action); err != nil {
			// Unknown kinds and unmatched targets are descriptive
			// failures, not session faults.
			d.fb.Speak(ctx, err.Error())
		}
		d.afterAction(ctx)
	case wire.KindURLCommand:
		if d.droppedLate(cmd) {
			return
		}
		if err := d.actor.Execute(ctx, wire.Action{Type: "navigate", Value: cmd.URL}); err != nil {
			d.fb.Speak(ctx, err.Error())
		}
		d.afterAction(ctx)
	case wire.KindPageAnalysis:
		if d.droppedLate(cmd) {
			return
		}
		if cmd.Analysis != nil && cmd.Analysis.Summary != "" {
			d.fb.Speak(ctx, cmd.Analysis.Summary)
		}
		if cmd.Analysis != nil && len(cmd.Analysis.Options) > 0 {
			d.sess.Options = cmd.Analysis.Options
			d.sess.Conversation = true
			d.state = StateConversation
			if err := d.rec.Start(ctx); err != nil {
				d.logger.Warn("session: conversation capture failed", "error", err)
			}
			return
		}
		d.afterAction(ctx)
	case wire.KindText:
		d.fb.Speak(ctx, cmd.Text)
		d.afterAction(ctx)
	}
}

// droppedLate reports whether a response arrived after deactivation
// returned the session to Idle. Late responses are accepted but must
// not reactivate anything.
func (d *Dispatcher) droppedLate(cmd wire.Command) bool {
	if d.state == StateIdle && !d.sess.Activated {
		d.logger.Debug("session: dropping late response", "kind", cmd.Kind.String())
		return true
	}
	return false
}

// handleUtterance resolves a conversation-mode follow-up: an utterance
// matching a pending option label navigates there, anything else goes
// to the backend as a plain command.
func (d *Dispatcher) handleUtterance(ctx context.Context, text string) {
	if url, ok := d.matchOption(text); ok {
		d.record(ctx, "option", text)
		if err := d.actor.Execute(ctx, wire.Action{Type: "navigate", Value: url}); err != nil {
			d.fb.Speak(ctx, err.Error())
		}
		d.sess.Conversation = false
		d.sess.Options = nil
		d.toIdle()
		return
	}
	payload, err := wire.EncodeText(text)
	if err != nil {
		d.logger.Error("session: encode utterance", "error", err)
		return
	}
	d.record(ctx, "utterance", text)
	d.send(ctx, payload)
}

func (d *Dispatcher) matchOption(text string) (string, bool) {
	needle := strings.TrimSpace(strings.ToLower(text))
	if needle == "" {
		return "", false
	}
	for label, url := range d.sess.Options {
		if strings.ToLower(strings.TrimSpace(label)) == needle {
			return url, true
		}
	}
	for label, url := range d.sess.Options {
		if strings.Contains(needle, strings.ToLower(strings.TrimSpace(label))) {
			return url, true
		}
	}
	return "", false
}

// afterAction returns to Listening when the user still holds an active
// session, Idle otherwise.
func (d *Dispatcher) afterAction(ctx context.Context) {
	if d.sess.Activated {
		d.startListening(ctx)
		return
	}
	d.toIdle()
}

func (d *Dispatcher) fail(ctx context.Context, msg string) {
	d.fb.Speak(ctx, msg)
	d.fb.Status(msg)
	d.record(ctx, "error", msg)
	d.pendingRetry = nil
	d.rec.Discard()
	d.toIdle()
}

func (d *Dispatcher) toIdle() {
	d.state = StateIdle
}

func (d *Dispatcher) record(ctx context.Context, kind, detail string) {
	if d.tracer == nil {
		return
	}
	d.tracer.Record(ctx, kind, detail)
}
