// Package config holds all recorder configuration.
//
// Configuration is resolved in three layers: struct defaults, environment
// variables (envconfig), and an optional config file. The file is applied
// last, so explicit file values win over the environment. TOML and YAML
// files are both accepted, selected by extension.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all recorder configuration.
type Config struct {
	Server    ServerConfig     `toml:"server" yaml:"server"`
	Recorder  RecorderConfig   `toml:"recorder" yaml:"recorder"`
	Hotkeys   HotkeyConfig     `toml:"hotkeys" yaml:"hotkeys"`
	Capture   CaptureConfig    `toml:"capture" yaml:"capture"`
	Storage   StorageConfig    `toml:"storage" yaml:"storage"`
	Report    ReportConfig     `toml:"report" yaml:"report"`
	Points    PointsConfig     `toml:"starting_points" yaml:"starting_points"`
	Logging   LogConfig        `toml:"logging" yaml:"logging"`
	RateLimit RateLimitConfig  `toml:"rate_limit" yaml:"rate_limit"`
}

// ServerConfig holds control API configuration.
type ServerConfig struct {
	Host string `envconfig:"HOST" default:"127.0.0.1" toml:"host" yaml:"host"`
	Port string `envconfig:"PORT" default:"8400" toml:"port" yaml:"port"`
}

// RecorderConfig holds event normalization and session tuning.
type RecorderConfig struct {
	// MoveThresholdPx is the minimum pointer displacement, in pixels,
	// between two recorded move actions. Moves below it are coalesced.
	MoveThresholdPx int `envconfig:"MOVE_THRESHOLD_PX" default:"24" toml:"move_threshold_px" yaml:"move_threshold_px"`

	// EventBuffer bounds the ordered channel between the hook pump and
	// the session's single-reader loop.
	EventBuffer int `envconfig:"EVENT_BUFFER" default:"256" toml:"event_buffer" yaml:"event_buffer"`

	// StopTimeoutMS bounds how long stop/abort waits for the listener
	// thread to exit before proceeding with forced teardown.
	StopTimeoutMS int `envconfig:"STOP_TIMEOUT_MS" default:"3000" toml:"stop_timeout_ms" yaml:"stop_timeout_ms"`
}

// StopTimeout returns the bounded listener join timeout.
func (c RecorderConfig) StopTimeout() time.Duration {
	return time.Duration(c.StopTimeoutMS) * time.Millisecond
}

// HotkeyConfig maps reserved global keys to session controls. Key names
// follow the hook library's key naming (lowercase, e.g. "f7", "escape").
type HotkeyConfig struct {
	Pause  string `envconfig:"HOTKEY_PAUSE" default:"f7" toml:"pause" yaml:"pause"`
	Resume string `envconfig:"HOTKEY_RESUME" default:"f8" toml:"resume" yaml:"resume"`
	Stop   string `envconfig:"HOTKEY_STOP" default:"f9" toml:"stop" yaml:"stop"`
	Cancel string `envconfig:"HOTKEY_CANCEL" default:"f10" toml:"cancel" yaml:"cancel"`
}

// CaptureConfig holds screenshot capture configuration.
type CaptureConfig struct {
	Enabled bool `envconfig:"CAPTURE_ENABLED" default:"true" toml:"enabled" yaml:"enabled"`
	Display int  `envconfig:"CAPTURE_DISPLAY" default:"0" toml:"display" yaml:"display"`

	// Region limits capture to a sub-rectangle of the display.
	// Zero width/height captures the whole display.
	X      int `envconfig:"CAPTURE_X" default:"0" toml:"x" yaml:"x"`
	Y      int `envconfig:"CAPTURE_Y" default:"0" toml:"y" yaml:"y"`
	Width  int `envconfig:"CAPTURE_WIDTH" default:"0" toml:"width" yaml:"width"`
	Height int `envconfig:"CAPTURE_HEIGHT" default:"0" toml:"height" yaml:"height"`

	// Workers bounds concurrent captures so a slow grab never stalls
	// the input pump.
	Workers int `envconfig:"CAPTURE_WORKERS" default:"4" toml:"workers" yaml:"workers"`
}

// StorageConfig holds test case store configuration.
type StorageConfig struct {
	Root     string `envconfig:"STORAGE_ROOT" default:"data" toml:"root" yaml:"root"`
	LockFile string `envconfig:"LOCK_FILE" default:"" toml:"lock_file" yaml:"lock_file"`
}

// LockPath returns the lock marker path, defaulting to the system temp dir.
func (c StorageConfig) LockPath() string {
	if c.LockFile != "" {
		return c.LockFile
	}
	return filepath.Join(os.TempDir(), "recorderd.lock")
}

// ReportConfig holds report collaborator configuration. An empty URL
// disables report submission.
type ReportConfig struct {
	URL        string `envconfig:"REPORT_URL" default:"" toml:"url" yaml:"url"`
	RetryCount int    `envconfig:"REPORT_RETRIES" default:"3" toml:"retry_count" yaml:"retry_count"`
	TimeoutMS  int    `envconfig:"REPORT_TIMEOUT_MS" default:"10000" toml:"timeout_ms" yaml:"timeout_ms"`
}

// Timeout returns the report request timeout.
func (c ReportConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// PointsConfig holds starting point navigation targets.
type PointsConfig struct {
	// DesktopCommand minimizes all windows (e.g. "wmctrl -k on").
	DesktopCommand string `envconfig:"POINT_DESKTOP_CMD" default:"" toml:"desktop_command" yaml:"desktop_command"`
	BrowserURL     string `envconfig:"POINT_BROWSER_URL" default:"" toml:"browser_url" yaml:"browser_url"`
	MapURL         string `envconfig:"POINT_MAP_URL" default:"" toml:"map_url" yaml:"map_url"`

	// SettleMS is how long navigation waits for windows to settle.
	SettleMS int `envconfig:"POINT_SETTLE_MS" default:"500" toml:"settle_ms" yaml:"settle_ms"`
}

// Settle returns the post-navigation settle delay.
func (c PointsConfig) Settle() time.Duration {
	return time.Duration(c.SettleMS) * time.Millisecond
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" toml:"level" yaml:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" toml:"development" yaml:"development"`
}

// RateLimitConfig holds control API rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"50" toml:"requests_per_second" yaml:"requests_per_second"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"100" toml:"burst" yaml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true" toml:"enabled" yaml:"enabled"`
}

// Load resolves configuration from defaults, environment, and the optional
// file at path (empty path skips the file layer).
func Load(path string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process("recorderd", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	if path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from the environment or returns defaults.
func LoadOrDefault() *Config {
	cfg, err := Load("")
	if err != nil {
		def := Default()
		return def
	}
	return cfg
}

// Default returns configuration with only the struct defaults applied.
func Default() *Config {
	var cfg Config
	// envconfig fills defaults even when no variables are set; ignoring
	// the error here keeps Default infallible for callers.
	_ = envconfig.Process("recorderd-defaults-unset", &cfg)
	return &cfg
}

// ApplyFile overlays values from a TOML or YAML config file.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse TOML config %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse YAML config %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config format %q (want .toml, .yaml or .yml)", filepath.Ext(path))
	}
	return nil
}

// Validate rejects configurations the recorder cannot run with.
func (c *Config) Validate() error {
	if c.Recorder.MoveThresholdPx < 0 {
		return fmt.Errorf("move threshold must be >= 0, got %d", c.Recorder.MoveThresholdPx)
	}
	if c.Recorder.EventBuffer < 1 {
		return fmt.Errorf("event buffer must be >= 1, got %d", c.Recorder.EventBuffer)
	}
	if c.Capture.Workers < 1 {
		return fmt.Errorf("capture workers must be >= 1, got %d", c.Capture.Workers)
	}
	hk := map[string]string{
		"pause":  c.Hotkeys.Pause,
		"resume": c.Hotkeys.Resume,
		"stop":   c.Hotkeys.Stop,
		"cancel": c.Hotkeys.Cancel,
	}
	seen := make(map[string]string, len(hk))
	for control, key := range hk {
		if key == "" {
			return fmt.Errorf("hotkey for %s must not be empty", control)
		}
		k := strings.ToLower(key)
		if prev, dup := seen[k]; dup {
			return fmt.Errorf("hotkey %q bound to both %s and %s", key, prev, control)
		}
		seen[k] = control
	}
	return nil
}
