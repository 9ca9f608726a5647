package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/voxpilot/session"
	"github.com/hazyhaar/voxpilot/trace"
)

type fakeStatus struct{ info session.Info }

func (f *fakeStatus) Info() session.Info { return f.info }

type fakeRetrier struct {
	retries int
	err     error
	lastErr error
}

func (f *fakeRetrier) Retry(ctx context.Context) error { f.retries++; return f.err }
func (f *fakeRetrier) LastError() error                { return f.lastErr }

type fakeEvents struct {
	events []trace.Event
	err    error
}

func (f *fakeEvents) Recent(ctx context.Context, limit int) ([]trace.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.events) {
		return f.events[:limit], nil
	}
	return f.events, nil
}

func hashToken(t *testing.T, token string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash token: %v", err)
	}
	return string(h)
}

func newServer(t *testing.T, cfg Config, st *fakeStatus, rt *fakeRetrier, ev *fakeEvents) *httptest.Server {
	t.Helper()
	var src EventSource
	if ev != nil {
		src = ev
	}
	srv := httptest.NewServer(NewRouter(cfg, st, rt, src))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url, token string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, url, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestStatus_RequiresToken(t *testing.T) {
	cfg := Config{TokenHash: hashToken(t, "s3cret")}
	srv := newServer(t, cfg, &fakeStatus{}, &fakeRetrier{}, nil)

	if resp := get(t, srv.URL+"/status", ""); resp.StatusCode != 401 {
		t.Errorf("no token: got %d, want 401", resp.StatusCode)
	}
	if resp := get(t, srv.URL+"/status", "wrong"); resp.StatusCode != 401 {
		t.Errorf("bad token: got %d, want 401", resp.StatusCode)
	}
	if resp := get(t, srv.URL+"/status", "s3cret"); resp.StatusCode != 200 {
		t.Errorf("good token: got %d, want 200", resp.StatusCode)
	}
}

func TestHealth_NoAuth(t *testing.T) {
	cfg := Config{TokenHash: hashToken(t, "s3cret")}
	srv := newServer(t, cfg, &fakeStatus{}, &fakeRetrier{}, nil)

	if resp := get(t, srv.URL+"/health", ""); resp.StatusCode != 200 {
		t.Errorf("health: got %d, want 200", resp.StatusCode)
	}
}

func TestStatus_ReportsDispatcherInfo(t *testing.T) {
	st := &fakeStatus{info: session.Info{
		URL:       "https://x.test/a",
		State:     "listening",
		Activated: true,
	}}
	rt := &fakeRetrier{lastErr: errors.New("dial refused")}
	srv := newServer(t, Config{}, st, rt, nil)

	resp := get(t, srv.URL+"/status", "")
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["state"] != "listening" || body["url"] != "https://x.test/a" {
		t.Errorf("body: %v", body)
	}
	if body["activated"] != true {
		t.Errorf("activated: %v", body["activated"])
	}
	if body["last_connection_error"] != "dial refused" {
		t.Errorf("last error: %v", body["last_connection_error"])
	}
}

func TestConnectionRetry(t *testing.T) {
	rt := &fakeRetrier{}
	srv := newServer(t, Config{}, &fakeStatus{}, rt, nil)

	resp, err := http.Post(srv.URL+"/connection/retry", "", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 202 {
		t.Errorf("status: got %d, want 202", resp.StatusCode)
	}
	if rt.retries != 1 {
		t.Errorf("retries: got %d", rt.retries)
	}
}

func TestConnectionRetry_ConflictOnError(t *testing.T) {
	rt := &fakeRetrier{err: errors.New("channel is closed")}
	srv := newServer(t, Config{}, &fakeStatus{}, rt, nil)

	resp, err := http.Post(srv.URL+"/connection/retry", "", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 409 {
		t.Errorf("status: got %d, want 409", resp.StatusCode)
	}
}

func TestEvents_LimitAndEmpty(t *testing.T) {
	ev := &fakeEvents{events: []trace.Event{
		{ID: 3, Kind: "error"},
		{ID: 2, Kind: "command"},
		{ID: 1, Kind: "activate"},
	}}
	srv := newServer(t, Config{}, &fakeStatus{}, &fakeRetrier{}, ev)

	resp := get(t, srv.URL+"/events?limit=2", "")
	var list []trace.Event
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 2 || list[0].Kind != "error" {
		t.Errorf("list: %v", list)
	}

	// No trace store configured: empty list, not an error.
	srv2 := newServer(t, Config{}, &fakeStatus{}, &fakeRetrier{}, nil)
	resp2 := get(t, srv2.URL+"/events", "")
	if resp2.StatusCode != 200 {
		t.Errorf("nil source: got %d, want 200", resp2.StatusCode)
	}
}
