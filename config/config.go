// Package config loads the assistant's YAML configuration with
// defaults applied.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level voxpilot configuration.
type Config struct {
	Backend    BackendConfig    `yaml:"backend"`
	Browser    BrowserConfig    `yaml:"browser"`
	Activation ActivationConfig `yaml:"activation"`
	Capture    CaptureConfig    `yaml:"capture"`
	Session    SessionConfig    `yaml:"session"`
	Admin      AdminConfig      `yaml:"admin"`
	Trace      TraceConfig      `yaml:"trace"`
}

// BackendConfig points at the assistant backend.
type BackendConfig struct {
	// WebSocketURL is the realtime endpoint, e.g. ws://localhost:8765/ws.
	WebSocketURL string `yaml:"websocket_url"`
	// AudioURL and AnalyzeURL are the HTTP fallback endpoints.
	AudioURL   string `yaml:"audio_url"`
	AnalyzeURL string `yaml:"analyze_url"`

	BaseDelay            time.Duration `yaml:"base_delay"`
	MaxDelay             time.Duration `yaml:"max_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
}

// BrowserConfig controls the driven Chrome instance.
type BrowserConfig struct {
	// Remote is the WebSocket URL of an external Chrome. Empty = launch.
	Remote  string `yaml:"remote"`
	Headful bool   `yaml:"headful"`
	// StartURL is the page opened at boot.
	StartURL          string        `yaml:"start_url"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
}

// ActivationConfig controls the long-press gesture.
type ActivationConfig struct {
	// KeyCode is the KeyboardEvent.code of the trigger key.
	KeyCode            string        `yaml:"key_code"`
	LongPressThreshold time.Duration `yaml:"long_press_threshold"`
}

// CaptureConfig controls audio segmentation.
type CaptureConfig struct {
	MaxSegment time.Duration `yaml:"max_segment"`
}

// SessionConfig controls the dispatcher.
type SessionConfig struct {
	AutoAnalyze bool          `yaml:"auto_analyze"`
	SettleDelay time.Duration `yaml:"settle_delay"`
}

// AdminConfig controls the local HTTP surface.
type AdminConfig struct {
	Listen string `yaml:"listen"`
	// TokenHash is a bcrypt hash of the admin bearer token. Empty
	// disables auth.
	TokenHash string `yaml:"token_hash"`
}

// TraceConfig controls session event persistence.
type TraceConfig struct {
	// Path is the SQLite file. Empty disables tracing.
	Path string `yaml:"path"`
}

// LoadFile reads a YAML configuration file and applies defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// Default returns the built-in configuration, used when no file is
// given.
func Default() *Config {
	var cfg Config
	cfg.ApplyDefaults()
	return &cfg
}

// ApplyDefaults fills zero fields with working values.
func (c *Config) ApplyDefaults() {
	if c.Backend.WebSocketURL == "" {
		c.Backend.WebSocketURL = "ws://localhost:8765/ws"
	}
	if c.Backend.BaseDelay <= 0 {
		c.Backend.BaseDelay = 500 * time.Millisecond
	}
	if c.Backend.MaxDelay <= 0 {
		c.Backend.MaxDelay = 30 * time.Second
	}
	if c.Backend.MaxReconnectAttempts <= 0 {
		c.Backend.MaxReconnectAttempts = 5
	}
	if c.Browser.NavigationTimeout <= 0 {
		c.Browser.NavigationTimeout = 30 * time.Second
	}
	if c.Activation.KeyCode == "" {
		c.Activation.KeyCode = "ControlRight"
	}
	if c.Activation.LongPressThreshold <= 0 {
		c.Activation.LongPressThreshold = 500 * time.Millisecond
	}
	if c.Capture.MaxSegment <= 0 {
		c.Capture.MaxSegment = 10 * time.Second
	}
	if c.Session.SettleDelay <= 0 {
		c.Session.SettleDelay = time.Second
	}
	if c.Admin.Listen == "" {
		c.Admin.Listen = "127.0.0.1:7821"
	}
}
