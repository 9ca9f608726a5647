// Package capture acquires microphone audio and cuts it into bounded
// segments for transcription.
//
// A Source produces raw PCM frames; the Recorder buffers them into segments
// with a hard duration cap so memory stays bounded and a request goes out
// even if the user never stops talking. Platforms that offer incremental
// transcription plug in through the Recognizer interface; interim results
// are for UI feedback only and must never reach the backend.
package capture

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors a Source must return so the caller can surface distinct
// user-facing messages.
var (
	// ErrPermissionDenied means the user refused microphone access.
	ErrPermissionDenied = errors.New("capture: microphone permission denied")
	// ErrDeviceNotFound means no usable input device exists.
	ErrDeviceNotFound = errors.New("capture: no audio input device")
)

// Format describes the PCM encoding of a frame stream.
type Format struct {
	SampleRate int
	Channels   int
	Encoding   string // e.g. "pcm_s16le"
}

// Frame is one chunk of captured audio.
type Frame struct {
	Data   []byte
	Format Format
	At     time.Time
}

// Segment is a finalized, bounded run of audio ready to send.
type Segment struct {
	Data   []byte
	Format Format
	Start  time.Time
	End    time.Time
}

// Duration returns the wall-clock span of the segment.
func (s Segment) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Source is a microphone-backed frame producer. Start returns
// ErrPermissionDenied or ErrDeviceNotFound on the two distinct failure
// modes; the returned channel closes when ctx is cancelled or Close is
// called.
type Source interface {
	Name() string
	Start(ctx context.Context) (<-chan Frame, error)
	Close() error
}

// Transcript is one recognition result. Final results may be sent to the
// backend; interim ones are display-only.
type Transcript struct {
	Text       string
	Final      bool
	Confidence float32
}

// Recognizer converts a frame stream into transcripts, when the platform
// offers continuous recognition. The returned channel closes when the input
// closes or ctx is cancelled.
type Recognizer interface {
	Name() string
	Recognize(ctx context.Context, in <-chan Frame) (<-chan Transcript, error)
}
