// Package feedback surfaces assistant output to the user: spoken
// responses through the driven page's speech synthesis, plus a short
// status line for interim state.
package feedback

import (
	"context"
	"log/slog"
)

// Evaluator runs JS on the driven page. The browser Tab satisfies it.
type Evaluator interface {
	Eval(ctx context.Context, js string, args ...any) ([]byte, error)
}

const speakJS = `(text) => {
	if (!window.speechSynthesis) return false;
	window.speechSynthesis.cancel();
	const u = new SpeechSynthesisUtterance(text);
	window.speechSynthesis.speak(u);
	return true;
}`

// Speaker voices text on the page and keeps a status line.
type Speaker struct {
	eval   Evaluator
	logger *slog.Logger
	status func(text string)
}

// Option configures a Speaker.
type Option func(*Speaker)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Speaker) { s.logger = l }
}

// WithStatusSink routes status-line updates somewhere visible (a UI,
// a log, a trace store). Default: debug log.
func WithStatusSink(sink func(text string)) Option {
	return func(s *Speaker) { s.status = sink }
}

// NewSpeaker creates a Speaker over a page evaluator.
func NewSpeaker(eval Evaluator, opts ...Option) *Speaker {
	s := &Speaker{eval: eval, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	if s.status == nil {
		s.status = func(text string) {
			s.logger.Debug("feedback: status", "text", text)
		}
	}
	return s
}

// Speak voices the text. Failures are logged, never fatal: losing a
// spoken response must not take the session down.
func (s *Speaker) Speak(ctx context.Context, text string) {
	if text == "" {
		return
	}
	res, err := s.eval.Eval(ctx, speakJS, text)
	if err != nil {
		s.logger.Warn("feedback: speak failed", "error", err)
		return
	}
	if string(res) == "false" {
		s.logger.Debug("feedback: speech synthesis unavailable")
	}
}

// Status updates the status line.
func (s *Speaker) Status(text string) {
	s.status(text)
}

// Null is a Speaker substitute that swallows all output. Used when no
// page is attached yet.
type Null struct{}

func (Null) Speak(ctx context.Context, text string) {}
func (Null) Status(text string)                     {}
