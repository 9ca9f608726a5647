package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/voxpilot/realtime"
	"github.com/hazyhaar/voxpilot/snapshot"
)

var testImpl = &mcp.Implementation{Name: "voxpilot-test", Version: "0.1.0"}

// mcpSession builds a dispatcher on the test fakes, registers its tools,
// and returns a connected client session that can call them end-to-end.
func mcpSession(t *testing.T, opts ...DispatcherOption) (*harness, *mcp.ClientSession) {
	t.Helper()
	h := newHarness(t, Config{}, opts...)

	srv := mcp.NewServer(testImpl, nil)
	h.d.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()

	go func() {
		_ = srv.Run(ctx, serverT)
	}()

	client := mcp.NewClient(testImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })

	return h, session
}

// callTool invokes a tool and returns the JSON text from the first
// TextContent, failing the test on transport or tool errors.
func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	// CallToolResult.GetError always returns nil on clients; only IsError
	// crosses the wire.
	if result.IsError {
		t.Fatalf("CallTool(%s) tool error: %v", name, result.Content)
	}
	if len(result.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent, got %T", name, result.Content[0])
	}
	return tc.Text
}

// callToolErr invokes a tool and returns its tool-level error, failing
// the test if the call succeeded.
func callToolErr(t *testing.T, session *mcp.ClientSession, name string, args any) error {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	// CallToolResult.GetError always returns nil on clients; the error
	// arrives as IsError plus the error text in the content block.
	if !result.IsError {
		t.Fatalf("CallTool(%s): expected tool error", name)
	}
	if len(result.Content) == 0 {
		t.Fatalf("CallTool(%s): tool error with empty content", name)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent, got %T", name, result.Content[0])
	}
	return errors.New(tc.Text)
}

// --- voxpilot_status ---

func TestMCP_Status(t *testing.T) {
	h, session := mcpSession(t)
	h.d.HandleNavigation(context.Background(), "https://shop.test/cart")

	text := callTool(t, session, "voxpilot_status", map[string]any{})

	var info Info
	if err := json.Unmarshal([]byte(text), &info); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if info.State != "idle" {
		t.Errorf("State = %q, want %q", info.State, "idle")
	}
	if info.URL != "https://shop.test/cart" {
		t.Errorf("URL = %q, want the navigated page", info.URL)
	}
	if info.Activated || info.Recording || info.Conversation || info.Analyzed {
		t.Errorf("expected all flags clear, got %+v", info)
	}
}

// --- voxpilot_analyze_page ---

func TestMCP_AnalyzePage(t *testing.T) {
	pages := &fakePages{snap: snapshot.Snapshot{
		HTML: "<main>cart</main>",
		Text: "cart",
		URL:  "https://shop.test/cart",
	}}
	h, session := mcpSession(t, WithPages(pages))
	h.d.HandleNavigation(context.Background(), "https://shop.test/cart")

	text := callTool(t, session, "voxpilot_analyze_page", map[string]any{})

	var resp map[string]string
	json.Unmarshal([]byte(text), &resp)
	if resp["status"] != "requested" {
		t.Errorf("status = %q, want %q", resp["status"], "requested")
	}
	if h.ch.sentCount() != 1 {
		t.Fatalf("sent %d payloads, want 1", h.ch.sentCount())
	}
	if !strings.Contains(h.ch.lastSent(), "page_content") {
		t.Errorf("payload missing page content: %s", h.ch.lastSent())
	}
}

func TestMCP_AnalyzePage_AlreadyAnalyzed(t *testing.T) {
	h, session := mcpSession(t, WithPages(&fakePages{}))
	h.d.HandleNavigation(context.Background(), "https://shop.test/")

	callTool(t, session, "voxpilot_analyze_page", map[string]any{})
	// Let the backend reply so the session leaves AwaitingResponse.
	h.d.HandleChannelEvent(context.Background(), realtime.Event{
		Kind:    realtime.EventMessage,
		Payload: []byte(`{"command":{"type":"GENERAL_COMMAND","text":"summary read"}}`),
	})
	toolErr := callToolErr(t, session, "voxpilot_analyze_page", map[string]any{})

	if !strings.Contains(toolErr.Error(), ErrAlreadyAnalyzed.Error()) {
		t.Errorf("error = %v, want already-analyzed", toolErr)
	}
}

// --- voxpilot_execute_action ---

func TestMCP_ExecuteAction(t *testing.T) {
	h, session := mcpSession(t)

	text := callTool(t, session, "voxpilot_execute_action", map[string]any{
		"action_type":  "click",
		"target":       "Add to cart",
		"element_type": "button",
	})

	var resp map[string]string
	json.Unmarshal([]byte(text), &resp)
	if resp["status"] != "done" {
		t.Errorf("status = %q, want %q", resp["status"], "done")
	}
	if len(h.act.actions) != 1 {
		t.Fatalf("executed %d actions, want 1", len(h.act.actions))
	}
	got := h.act.actions[0]
	if got.Type != "click" || got.Target != "Add to cart" || got.ElementType != "button" {
		t.Errorf("action = %+v", got)
	}
}

func TestMCP_ExecuteAction_Failure(t *testing.T) {
	h, session := mcpSession(t)
	h.act.err = errors.New("no element matching description")

	toolErr := callToolErr(t, session, "voxpilot_execute_action", map[string]any{
		"action_type": "click",
		"target":      "Ghost button",
	})

	if !strings.Contains(toolErr.Error(), "no element matching") {
		t.Errorf("error = %v, want executor failure", toolErr)
	}
}
