package wire

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
)

func TestDecode_CommandEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		kind    Kind
	}{
		{"wake word", `{"command":{"type":"WAKE_WORD_DETECTED"}}`, KindWakeWord},
		{"stop word", `{"command":{"type":"STOP_WORD_DETECTED"}}`, KindStopWord},
		{"general", `{"command":{"type":"GENERAL_COMMAND","text":"hello"}}`, KindText},
		{"url", `{"command":{"type":"URL_COMMAND","url":"https://example.com"}}`, KindURLCommand},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := Decode([]byte(tt.payload))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cmd.Kind != tt.kind {
				t.Errorf("Kind: got %v, want %v", cmd.Kind, tt.kind)
			}
		})
	}
}

func TestDecode_GeneralCommandText(t *testing.T) {
	cmd, err := Decode([]byte(`{"command":{"type":"GENERAL_COMMAND","text":"scroll down"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.Text != "scroll down" {
		t.Errorf("Text: got %q, want %q", cmd.Text, "scroll down")
	}
}

func TestDecode_ExecuteAction(t *testing.T) {
	payload := `{"type":"EXECUTE_ACTION","action_type":"click","target":"Submit","element_type":"button","element_attributes":{"text":"Submit"}}`
	cmd, err := Decode([]byte(payload))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.Kind != KindExecuteAction {
		t.Fatalf("Kind: got %v, want execute_action", cmd.Kind)
	}
	if cmd.Action.Type != "click" || cmd.Action.Target != "Submit" {
		t.Errorf("Action: got %+v", cmd.Action)
	}
	if cmd.Action.Attributes["text"] != "Submit" {
		t.Errorf("Attributes: got %v", cmd.Action.Attributes)
	}
}

func TestDecode_AnalysisResult_BothTags(t *testing.T) {
	for _, tag := range []string{"PAGE_ANALYSIS_RESULT", "analysis_result"} {
		payload := `{"type":"` + tag + `","main_content":"a shop page","actions":[{"description":"open cart","action_type":"click","target_element":"Cart"}]}`
		cmd, err := Decode([]byte(payload))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tag, err)
		}
		if cmd.Kind != KindPageAnalysis {
			t.Fatalf("%s: Kind: got %v", tag, cmd.Kind)
		}
		if cmd.Analysis.Summary != "a shop page" {
			t.Errorf("%s: Summary: got %q", tag, cmd.Analysis.Summary)
		}
		if len(cmd.Analysis.Actions) != 1 || cmd.Analysis.Actions[0].Target != "Cart" {
			t.Errorf("%s: Actions: got %+v", tag, cmd.Analysis.Actions)
		}
	}
}

func TestDecode_AnalysisResult_ResultField(t *testing.T) {
	cmd, err := Decode([]byte(`{"type":"analysis_result","result":"summary text"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.Analysis.Summary != "summary text" {
		t.Errorf("Summary: got %q", cmd.Analysis.Summary)
	}
}

func TestDecode_SummaryWithOptions(t *testing.T) {
	payload := `{"summary":"two choices","options":{"Home":"https://a.test/","Docs":"https://a.test/docs"}}`
	cmd, err := Decode([]byte(payload))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.Kind != KindPageAnalysis {
		t.Fatalf("Kind: got %v", cmd.Kind)
	}
	if cmd.Analysis.Options["Docs"] != "https://a.test/docs" {
		t.Errorf("Options: got %v", cmd.Analysis.Options)
	}
}

func TestDecode_Error(t *testing.T) {
	cmd, err := Decode([]byte(`{"error":"model unavailable"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.Kind != KindError || cmd.Text != "model unavailable" {
		t.Errorf("got %+v", cmd)
	}
}

func TestDecode_ErrorWinsOverOtherKeys(t *testing.T) {
	cmd, err := Decode([]byte(`{"error":"boom","summary":"ignored"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.Kind != KindError {
		t.Errorf("Kind: got %v, want error", cmd.Kind)
	}
}

func TestDecode_Malformed(t *testing.T) {
	cases := []string{
		`not json`,
		`[]`,
		`"bare string"`,
		`{}`,
		`{"unknown_key":1}`,
		`{"type":"SOMETHING_ELSE"}`,
		`{"command":{"type":"NOPE"}}`,
		`{"command":{"type":"URL_COMMAND"}}`,
	}
	for _, c := range cases {
		_, err := Decode([]byte(c))
		var malformed *ErrMalformed
		if !errors.As(err, &malformed) {
			t.Errorf("Decode(%q): got err=%v, want ErrMalformed", c, err)
		}
	}
}

func TestEncodeInit(t *testing.T) {
	data, err := EncodeInit("chrome-extension", "https://a.test/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("not valid JSON: %v", err)
	}
	if got["type"] != "init" || got["client"] != "chrome-extension" {
		t.Errorf("got %v", got)
	}
}

func TestEncodeAudio_Base64(t *testing.T) {
	raw := []byte{0x01, 0x02, 0xff}
	data, err := EncodeAudio(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("not valid JSON: %v", err)
	}
	decoded, err := base64.StdEncoding.DecodeString(got["data"])
	if err != nil {
		t.Fatalf("data not base64: %v", err)
	}
	if string(decoded) != string(raw) {
		t.Errorf("round trip: got %v, want %v", decoded, raw)
	}
}

func TestEncodeURLRequest(t *testing.T) {
	data, err := EncodeURLRequest("https://b.test/page")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("not valid JSON: %v", err)
	}
	if got["URL"] != "https://b.test/page" {
		t.Errorf("got %v", got)
	}
}
