package feedback

import (
	"context"
	"strings"
	"testing"
)

type fakeEval struct {
	calls []string
	args  []any
	res   string
	err   error
}

func (f *fakeEval) Eval(ctx context.Context, js string, args ...any) ([]byte, error) {
	f.calls = append(f.calls, js)
	f.args = append(f.args, args...)
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.res), nil
}

func TestSpeak_InvokesSpeechSynthesis(t *testing.T) {
	eval := &fakeEval{res: "true"}
	s := NewSpeaker(eval)

	s.Speak(context.Background(), "two results found")

	if len(eval.calls) != 1 {
		t.Fatalf("eval calls: got %d", len(eval.calls))
	}
	if !strings.Contains(eval.calls[0], "speechSynthesis") {
		t.Errorf("js: got %s", eval.calls[0])
	}
	if eval.args[0] != "two results found" {
		t.Errorf("text arg: got %v", eval.args[0])
	}
}

func TestSpeak_EmptyTextIsNoop(t *testing.T) {
	eval := &fakeEval{res: "true"}
	s := NewSpeaker(eval)
	s.Speak(context.Background(), "")
	if len(eval.calls) != 0 {
		t.Errorf("empty text must not touch the page")
	}
}

func TestStatus_ReachesSink(t *testing.T) {
	var got []string
	s := NewSpeaker(&fakeEval{res: "true"}, WithStatusSink(func(text string) {
		got = append(got, text)
	}))

	s.Status("listening")
	if len(got) != 1 || got[0] != "listening" {
		t.Errorf("sink: got %v", got)
	}
}
