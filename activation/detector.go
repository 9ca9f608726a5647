// Package activation implements long-press detection over a key edge stream.
//
// The detector consumes raw key-down/key-up events (delivered from the page
// through a runtime binding) and emits Activate/Deactivate edges. A press
// shorter than the threshold is a tap and emits nothing. Events that arrive
// while focus is inside a text-entry field are ignored so dictation into a
// form never toggles the assistant.
package activation

import (
	"sync"
	"time"
)

// Edge is an activation transition.
type Edge int

const (
	Activate Edge = iota
	Deactivate
)

// String returns "activate" or "deactivate".
func (e Edge) String() string {
	if e == Activate {
		return "activate"
	}
	return "deactivate"
}

// DefaultThreshold is the hold duration that turns a press into an
// activation.
const DefaultThreshold = 500 * time.Millisecond

// Detector is a two-state machine: idle, or armed waiting for the threshold
// timer, combined with the session activation flag. All methods are safe for
// concurrent use; edges are emitted synchronously from the timer goroutine
// or the key-up call.
type Detector struct {
	threshold time.Duration
	emit      func(Edge)

	mu      sync.Mutex
	pressed bool
	active  bool
	timer   *time.Timer
}

// Option configures a Detector.
type Option func(*Detector)

// WithThreshold overrides the long-press threshold.
func WithThreshold(d time.Duration) Option {
	return func(det *Detector) {
		if d > 0 {
			det.threshold = d
		}
	}
}

// New creates a Detector that calls emit for every edge.
func New(emit func(Edge), opts ...Option) *Detector {
	d := &Detector{
		threshold: DefaultThreshold,
		emit:      emit,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// KeyDown handles a trigger key press. editable reports whether focus is in
// a text-entry field; such presses are ignored entirely. Repeated key-down
// events while a press is in progress (OS auto-repeat) are ignored.
func (d *Detector) KeyDown(editable bool) {
	if editable {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pressed {
		return
	}
	d.pressed = true
	d.timer = time.AfterFunc(d.threshold, d.thresholdFired)
}

// KeyUp handles the trigger key release. A release before the threshold is
// a tap; a release after activation emits Deactivate unconditionally.
func (d *Detector) KeyUp() {
	d.mu.Lock()

	if !d.pressed {
		d.mu.Unlock()
		return
	}
	d.pressed = false

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}

	wasActive := d.active
	d.active = false
	d.mu.Unlock()

	if wasActive {
		d.emit(Deactivate)
	}
}

// Active reports whether a long press is currently held past the threshold.
func (d *Detector) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// Close cancels any pending threshold timer. No edges are emitted.
func (d *Detector) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pressed = false
	d.active = false
}

func (d *Detector) thresholdFired() {
	d.mu.Lock()
	// The key may have been released between the timer firing and this
	// goroutine acquiring the lock. Stop() losing that race is expected;
	// pressed is the source of truth.
	if !d.pressed || d.active {
		d.mu.Unlock()
		return
	}
	d.active = true
	d.mu.Unlock()

	d.emit(Activate)
}
