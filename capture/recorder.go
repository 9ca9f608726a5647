package capture

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultMaxSegment is the hard cap on a single segment's duration.
const DefaultMaxSegment = 10 * time.Second

// Recorder buffers frames from a Source into duration-bounded segments.
// Segments cut by the hard cap are delivered on Segments(); the tail is
// returned by Stop. Start while already capturing is a no-op.
type Recorder struct {
	src        Source
	maxSegment time.Duration
	logger     *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	buf     []byte
	format  Format
	started time.Time

	segCh chan Segment
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithMaxSegment overrides the segment duration cap.
func WithMaxSegment(d time.Duration) RecorderOption {
	return func(r *Recorder) {
		if d > 0 {
			r.maxSegment = d
		}
	}
}

// WithRecorderLogger sets a custom logger.
func WithRecorderLogger(l *slog.Logger) RecorderOption {
	return func(r *Recorder) { r.logger = l }
}

// NewRecorder creates a Recorder over the given source.
func NewRecorder(src Source, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		src:        src,
		maxSegment: DefaultMaxSegment,
		logger:     slog.Default(),
		segCh:      make(chan Segment, 4),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Segments returns the channel of hard-cap flushed segments.
func (r *Recorder) Segments() <-chan Segment {
	return r.segCh
}

// Recording reports whether a capture is in progress.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Start begins capturing. Calling Start while already capturing is a no-op
// returning nil. Source failures (ErrPermissionDenied, ErrDeviceNotFound)
// propagate unchanged.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	frames, err := r.src.Start(runCtx)
	if err != nil {
		cancel()
		return err
	}

	r.mu.Lock()
	r.running = true
	r.cancel = cancel
	r.done = make(chan struct{})
	r.buf = r.buf[:0]
	r.started = time.Now()
	r.mu.Unlock()

	go r.pump(frames)
	return nil
}

// Stop ends the capture and flushes the current buffer. It returns the tail
// segment and true if any audio was buffered. Stop when not capturing
// returns a zero segment and false.
func (r *Recorder) Stop() (Segment, bool) {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return Segment{}, false
	}
	cancel := r.cancel
	done := r.done
	r.mu.Unlock()

	cancel()
	<-done

	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = false
	r.cancel = nil

	if len(r.buf) == 0 {
		return Segment{}, false
	}
	seg := Segment{
		Data:   append([]byte(nil), r.buf...),
		Format: r.format,
		Start:  r.started,
		End:    time.Now(),
	}
	r.buf = r.buf[:0]
	return seg, true
}

// Discard ends the capture and drops any unflushed audio. Used on
// deactivation, where in-progress speech must not be sent.
func (r *Recorder) Discard() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	done := r.done
	r.mu.Unlock()

	cancel()
	<-done

	r.mu.Lock()
	r.running = false
	r.cancel = nil
	r.buf = r.buf[:0]
	r.mu.Unlock()
}

func (r *Recorder) pump(frames <-chan Frame) {
	defer func() {
		r.mu.Lock()
		done := r.done
		r.mu.Unlock()
		close(done)
	}()

	for f := range frames {
		r.mu.Lock()
		if len(r.buf) == 0 {
			r.started = f.At
			if r.started.IsZero() {
				r.started = time.Now()
			}
			r.format = f.Format
		}
		r.buf = append(r.buf, f.Data...)

		elapsed := f.At.Sub(r.started)
		if f.At.IsZero() {
			elapsed = time.Since(r.started)
		}
		if elapsed < r.maxSegment {
			r.mu.Unlock()
			continue
		}

		seg := Segment{
			Data:   append([]byte(nil), r.buf...),
			Format: r.format,
			Start:  r.started,
			End:    time.Now(),
		}
		r.buf = r.buf[:0]
		r.mu.Unlock()

		select {
		case r.segCh <- seg:
		default:
			// Consumer stalled; dropping beats blocking the mic pump.
			r.logger.Warn("capture: segment buffer full, dropping",
				"bytes", len(seg.Data), "duration", seg.Duration())
		}
	}
}
