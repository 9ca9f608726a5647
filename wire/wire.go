// Package wire defines the canonical JSON protocol between the assistant
// and the analysis backend.
//
// Outbound messages are one JSON object per frame: a handshake on connect,
// finalized transcripts, base64 audio segments, bounded page snapshots, and
// lightweight URL-only analysis requests.
//
// Inbound payloads are classified into a tagged Command variant before any
// dispatch happens. The backend historically answered with several loosely
// related shapes (a "command" envelope, a bare "type" tag, a summary/options
// object, a plain error object); Decode normalizes all of them. Anything
// that fits none of the known shapes becomes an ErrMalformed, never a silent
// fall-through.
package wire

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Command kinds produced by Decode.
type Kind int

const (
	KindWakeWord      Kind = iota // backend detected the wake word
	KindStopWord                  // backend detected the stop word
	KindExecuteAction             // backend wants a DOM action performed
	KindPageAnalysis              // page analysis result, possibly with options
	KindURLCommand                // backend wants a navigation to a URL
	KindText                      // plain text for the user
	KindError                     // explicit backend error payload
)

// String returns a short name for logging.
func (k Kind) String() string {
	switch k {
	case KindWakeWord:
		return "wake_word"
	case KindStopWord:
		return "stop_word"
	case KindExecuteAction:
		return "execute_action"
	case KindPageAnalysis:
		return "page_analysis"
	case KindURLCommand:
		return "url_command"
	case KindText:
		return "text"
	case KindError:
		return "error"
	}
	return "unknown"
}

// Action describes a DOM operation requested by the backend.
type Action struct {
	Type        string            `json:"action_type"`
	Target      string            `json:"target"`
	Value       string            `json:"value,omitempty"`
	ElementType string            `json:"element_type,omitempty"`
	Attributes  map[string]string `json:"element_attributes,omitempty"`
}

// AnalysisAction is one suggested follow-up action in an analysis result.
type AnalysisAction struct {
	Description string            `json:"description"`
	Type        string            `json:"action_type"`
	Target      string            `json:"target_element"`
	Attributes  map[string]string `json:"element_attributes,omitempty"`
}

// Analysis is the payload of a page analysis result. Options maps a spoken
// label to a URL; a non-empty Options set puts the session into conversation
// mode.
type Analysis struct {
	Summary string            `json:"summary"`
	Actions []AnalysisAction  `json:"actions,omitempty"`
	Options map[string]string `json:"options,omitempty"`
}

// Command is a single inbound backend message after classification.
// Immutable once parsed; consumed exactly once by the dispatcher.
type Command struct {
	Kind     Kind
	Text     string    // KindText, KindError
	URL      string    // KindURLCommand
	Action   *Action   // KindExecuteAction
	Analysis *Analysis // KindPageAnalysis
}

// ErrMalformed reports an inbound payload that fits no known shape.
type ErrMalformed struct {
	Reason string
}

func (e *ErrMalformed) Error() string {
	return fmt.Sprintf("wire: malformed payload: %s", e.Reason)
}

// commandEnvelope is the {command:{...}} inbound shape.
type commandEnvelope struct {
	Type string `json:"type"`
	Text string `json:"text"`
	URL  string `json:"url"`
}

// Decode classifies an inbound payload into a Command.
//
// Classification order: explicit error key, command envelope, top-level type
// tag, bare summary/options object. The order matters: error payloads may
// carry other keys and must win.
func Decode(data []byte) (Command, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return Command{}, &ErrMalformed{Reason: "not a JSON object"}
	}

	if raw, ok := probe["error"]; ok {
		var msg string
		if err := json.Unmarshal(raw, &msg); err != nil {
			return Command{}, &ErrMalformed{Reason: "error field is not a string"}
		}
		return Command{Kind: KindError, Text: msg}, nil
	}

	if raw, ok := probe["command"]; ok {
		return decodeCommandEnvelope(raw)
	}

	if raw, ok := probe["type"]; ok {
		var tag string
		if err := json.Unmarshal(raw, &tag); err != nil {
			return Command{}, &ErrMalformed{Reason: "type tag is not a string"}
		}
		return decodeTyped(tag, data)
	}

	if _, ok := probe["summary"]; ok {
		return decodeSummary(data)
	}

	return Command{}, &ErrMalformed{Reason: "no recognized shape"}
}

func decodeCommandEnvelope(raw json.RawMessage) (Command, error) {
	var env commandEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Command{}, &ErrMalformed{Reason: "command envelope is not an object"}
	}

	switch env.Type {
	case "WAKE_WORD_DETECTED":
		return Command{Kind: KindWakeWord}, nil
	case "STOP_WORD_DETECTED":
		return Command{Kind: KindStopWord}, nil
	case "GENERAL_COMMAND":
		return Command{Kind: KindText, Text: env.Text}, nil
	case "URL_COMMAND":
		if env.URL == "" {
			return Command{}, &ErrMalformed{Reason: "URL_COMMAND without url"}
		}
		return Command{Kind: KindURLCommand, URL: env.URL}, nil
	case "EXECUTE_ACTION":
		var act Action
		if err := json.Unmarshal(raw, &act); err != nil {
			return Command{}, &ErrMalformed{Reason: "EXECUTE_ACTION envelope"}
		}
		return Command{Kind: KindExecuteAction, Action: &act}, nil
	}
	return Command{}, &ErrMalformed{Reason: fmt.Sprintf("unknown command type %q", env.Type)}
}

func decodeTyped(tag string, data []byte) (Command, error) {
	switch tag {
	case "EXECUTE_ACTION":
		var act Action
		if err := json.Unmarshal(data, &act); err != nil {
			return Command{}, &ErrMalformed{Reason: "EXECUTE_ACTION payload"}
		}
		if act.Type == "" {
			return Command{}, &ErrMalformed{Reason: "EXECUTE_ACTION without action_type"}
		}
		return Command{Kind: KindExecuteAction, Action: &act}, nil

	case "PAGE_ANALYSIS_RESULT", "analysis_result":
		// Two historical field names for the summary text.
		var body struct {
			MainContent string            `json:"main_content"`
			Result      string            `json:"result"`
			Actions     []AnalysisAction  `json:"actions"`
			Options     map[string]string `json:"options"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return Command{}, &ErrMalformed{Reason: "analysis payload"}
		}
		summary := body.MainContent
		if summary == "" {
			summary = body.Result
		}
		return Command{Kind: KindPageAnalysis, Analysis: &Analysis{
			Summary: summary,
			Actions: body.Actions,
			Options: body.Options,
		}}, nil
	}
	return Command{}, &ErrMalformed{Reason: fmt.Sprintf("unknown type tag %q", tag)}
}

func decodeSummary(data []byte) (Command, error) {
	var body struct {
		Summary string            `json:"summary"`
		Options map[string]string `json:"options"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return Command{}, &ErrMalformed{Reason: "summary payload"}
	}
	return Command{Kind: KindPageAnalysis, Analysis: &Analysis{
		Summary: body.Summary,
		Options: body.Options,
	}}, nil
}

// EncodeInit builds the handshake sent after every successful open.
func EncodeInit(client, url string) ([]byte, error) {
	return json.Marshal(map[string]string{
		"type":   "init",
		"client": client,
		"url":    url,
	})
}

// EncodeText builds a finalized-transcript message.
func EncodeText(text string) ([]byte, error) {
	return json.Marshal(map[string]string{
		"type": "text_data",
		"text": text,
	})
}

// EncodeAudio builds a base64 audio-segment message.
func EncodeAudio(data []byte) ([]byte, error) {
	return json.Marshal(map[string]string{
		"type": "audio_data",
		"data": base64.StdEncoding.EncodeToString(data),
	})
}

// EncodePageContent builds a page snapshot message. The caller is
// responsible for bounding the payload first (snapshot.Bound).
func EncodePageContent(html, text, url string) ([]byte, error) {
	return json.Marshal(map[string]string{
		"type": "page_content",
		"html": html,
		"text": text,
		"url":  url,
	})
}

// EncodeURLRequest builds the lightweight URL-only analysis request.
func EncodeURLRequest(url string) ([]byte, error) {
	return json.Marshal(map[string]string{"URL": url})
}
