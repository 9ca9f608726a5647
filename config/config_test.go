package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFile_AppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "voxpilot.yaml")
	doc := `
backend:
  websocket_url: ws://backend.test/ws
browser:
  start_url: https://shop.test/
session:
  auto_analyze: true
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Backend.WebSocketURL != "ws://backend.test/ws" {
		t.Errorf("websocket url: got %q", cfg.Backend.WebSocketURL)
	}
	if cfg.Browser.StartURL != "https://shop.test/" {
		t.Errorf("start url: got %q", cfg.Browser.StartURL)
	}
	if !cfg.Session.AutoAnalyze {
		t.Errorf("auto analyze lost")
	}
	if cfg.Backend.MaxReconnectAttempts != 5 {
		t.Errorf("reconnect attempts default: got %d", cfg.Backend.MaxReconnectAttempts)
	}
	if cfg.Activation.LongPressThreshold != 500*time.Millisecond {
		t.Errorf("threshold default: got %v", cfg.Activation.LongPressThreshold)
	}
	if cfg.Capture.MaxSegment != 10*time.Second {
		t.Errorf("segment default: got %v", cfg.Capture.MaxSegment)
	}
	if cfg.Session.SettleDelay != time.Second {
		t.Errorf("settle default: got %v", cfg.Session.SettleDelay)
	}
	if cfg.Admin.Listen == "" {
		t.Errorf("admin listen default missing")
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadFile_Malformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("backend: ["), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Backend.WebSocketURL == "" || cfg.Activation.KeyCode == "" {
		t.Errorf("defaults incomplete: %+v", cfg)
	}
}
