package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/voxpilot/capture"
)

const audioBindingName = "__voxpilot_audio"

// micStartJS asks for the microphone and streams MediaRecorder chunks
// through the audio binding as base64. Returns 'ok' or the DOMException
// name so the Go side can map the two permission failure modes.
const micStartJS = `async (timesliceMs) => {
	if (window.__voxpilot_mic) return 'ok';
	let stream;
	try {
		stream = await navigator.mediaDevices.getUserMedia({audio: true});
	} catch (e) {
		return e.name;
	}
	const rec = new MediaRecorder(stream, {mimeType: 'audio/webm;codecs=opus'});
	rec.ondataavailable = (e) => {
		if (!e.data || e.data.size === 0) return;
		const reader = new FileReader();
		reader.onloadend = () => {
			const b64 = reader.result.split(',')[1];
			window.__voxpilot_audio(JSON.stringify({data: b64}));
		};
		reader.readAsDataURL(e.data);
	};
	rec.start(timesliceMs);
	window.__voxpilot_mic = {rec, stream};
	return 'ok';
}`

const micStopJS = `() => {
	const m = window.__voxpilot_mic;
	if (!m) return true;
	m.rec.stop();
	m.stream.getTracks().forEach((t) => t.stop());
	delete window.__voxpilot_mic;
	return true;
}`

// MicSource captures microphone audio through the driven page's
// MediaRecorder. It satisfies the capture Source contract.
type MicSource struct {
	tab       *Tab
	timeslice time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

// NewMicSource creates a microphone source over a tab. timeslice is the
// MediaRecorder chunk interval; 250ms default.
func NewMicSource(tab *Tab, timeslice time.Duration) *MicSource {
	if timeslice <= 0 {
		timeslice = 250 * time.Millisecond
	}
	return &MicSource{tab: tab, timeslice: timeslice}
}

// Name identifies the source.
func (m *MicSource) Name() string { return "page-media-recorder" }

// Start requests microphone access and begins streaming frames. The
// two permission failure modes map to the capture sentinels.
func (m *MicSource) Start(ctx context.Context) (<-chan capture.Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil, fmt.Errorf("browser: mic already started")
	}

	err := proto.RuntimeAddBinding{Name: audioBindingName}.Call(m.tab.Page)
	if err != nil {
		m.tab.manager.cfg.Logger.Warn("browser: audio binding failed (may already exist)", "error", err)
	}

	res, err := m.tab.Page.Context(ctx).Eval(micStartJS, m.timeslice.Milliseconds())
	if err != nil {
		return nil, fmt.Errorf("browser: start microphone: %w", err)
	}
	switch res.Value.Str() {
	case "ok":
	case "NotAllowedError", "SecurityError":
		return nil, capture.ErrPermissionDenied
	case "NotFoundError", "DevicesNotFoundError", "OverconstrainedError":
		return nil, capture.ErrDeviceNotFound
	default:
		return nil, fmt.Errorf("browser: start microphone: %s", res.Value.Str())
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	frames := make(chan capture.Frame, 16)
	go m.pump(runCtx, frames)
	return frames, nil
}

// Close stops the frame pump; the pump releases the microphone on its
// way out. Safe to call repeatedly, and the source can be started
// again afterwards.
func (m *MicSource) Close() error {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

func (m *MicSource) pump(ctx context.Context, frames chan<- capture.Frame) {
	defer func() {
		// Release the mic and clear running before closing the frame
		// channel: Stop waits on that close, and may Start again right
		// after.
		if _, err := m.tab.Page.Eval(micStopJS); err != nil {
			m.tab.manager.cfg.Logger.Warn("browser: stop microphone", "error", err)
		}
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		close(frames)
	}()
	log := m.tab.manager.cfg.Logger
	format := capture.Format{SampleRate: 48000, Channels: 1, Encoding: "webm_opus"}

	m.tab.Page.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != audioBindingName {
			return
		}
		var chunk struct {
			Data string `json:"data"`
		}
		if err := json.Unmarshal([]byte(e.Payload), &chunk); err != nil {
			log.Warn("browser: parse audio chunk", "error", err)
			return
		}
		data, err := base64.StdEncoding.DecodeString(chunk.Data)
		if err != nil {
			log.Warn("browser: decode audio chunk", "error", err)
			return
		}
		select {
		case frames <- capture.Frame{Data: data, Format: format, At: time.Now()}:
		case <-ctx.Done():
		}
	})()
}
