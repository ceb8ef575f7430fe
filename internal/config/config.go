package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ShadowCorrection selects whether client-side shadows are compensated when
// placing windows.
type ShadowCorrection string

const (
	ShadowAuto ShadowCorrection = "auto" // On when a compositor is running.
	ShadowOn   ShadowCorrection = "on"
	ShadowOff  ShadowCorrection = "off"
)

// Coalesce selects how drag notifications are batched.
type Coalesce string

const (
	CoalesceNative Coalesce = "native" // Coalesce for windows we do not own.
	CoalesceAlways Coalesce = "always"
	CoalesceNever  Coalesce = "never"
)

// Placement configures native placement.
type Placement struct {
	// Atomic groups member placement under one X server grab.
	Atomic           bool             `yaml:"atomic"`
	ShadowCorrection ShadowCorrection `yaml:"shadow_correction"`
}

// Drag configures interactive gestures.
type Drag struct {
	PollIntervalMs int      `yaml:"poll_interval_ms"`
	QuietPeriodMs  int      `yaml:"quiet_period_ms"`
	Coalesce       Coalesce `yaml:"coalesce"`
}

// Peer is another wingroup daemon reachable over its IPC socket.
type Peer struct {
	ID     string `yaml:"id"`
	Socket string `yaml:"socket"`
}

// Mesh configures cross-process groups.
type Mesh struct {
	// RPCTimeoutMs bounds each peer call. 0 = no timeout.
	RPCTimeoutMs int    `yaml:"rpc_timeout_ms"`
	Fanout       int    `yaml:"fanout"`
	Peers        []Peer `yaml:"peers,omitempty"`
}

// Hotkeys binds keyboard shortcuts to group actions. Empty disables a binding.
type Hotkeys struct {
	// Join arms the active window on first press and joins the window active
	// on the second press to its group.
	Join  string `yaml:"join,omitempty"`
	Leave string `yaml:"leave,omitempty"`
}

// Telemetry configures OTLP metric export.
type Telemetry struct {
	OTLPEndpoint string            `yaml:"otlp_endpoint,omitempty"`
	Headers      map[string]string `yaml:"headers,omitempty"`
	// ExportIntervalSeconds defaults to 30.
	ExportIntervalSeconds int `yaml:"export_interval_seconds,omitempty"`
}

// Config is the effective daemon configuration.
type Config struct {
	LogLevel                 string    `yaml:"log_level"`
	RuntimeID                string    `yaml:"runtime_id,omitempty"`
	Socket                   string    `yaml:"socket,omitempty"`
	Display                  string    `yaml:"display,omitempty"`
	Placement                Placement `yaml:"placement"`
	Drag                     Drag      `yaml:"drag"`
	Mesh                     Mesh      `yaml:"mesh"`
	ReconcileIntervalSeconds int       `yaml:"reconcile_interval_seconds"`
	Hotkeys                  Hotkeys   `yaml:"hotkeys"`
	Telemetry                Telemetry `yaml:"telemetry,omitempty"`
}

const (
	DefaultPollIntervalMs    = 33
	DefaultQuietPeriodMs     = 250
	DefaultFanout            = 4
	DefaultReconcileInterval = 10
)

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Placement: Placement{
			Atomic:           true,
			ShadowCorrection: ShadowAuto,
		},
		Drag: Drag{
			PollIntervalMs: DefaultPollIntervalMs,
			QuietPeriodMs:  DefaultQuietPeriodMs,
			Coalesce:       CoalesceNative,
		},
		Mesh: Mesh{
			Fanout: DefaultFanout,
		},
		ReconcileIntervalSeconds: DefaultReconcileInterval,
		Hotkeys: Hotkeys{
			Join:  "Mod4-Mod1-g",
			Leave: "Mod4-Mod1-u",
		},
	}
}

// PollInterval returns the drag coalescing poll as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Drag.PollIntervalMs) * time.Millisecond
}

// QuietPeriod returns how long a window must stay still for a gesture to end.
func (c *Config) QuietPeriod() time.Duration {
	return time.Duration(c.Drag.QuietPeriodMs) * time.Millisecond
}

// RPCTimeout returns the per-call peer timeout, 0 for none.
func (c *Config) RPCTimeout() time.Duration {
	return time.Duration(c.Mesh.RPCTimeoutMs) * time.Millisecond
}

// ReconcileInterval returns the reconciler period.
func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.ReconcileIntervalSeconds) * time.Second
}

// SlogLevel maps log_level onto a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Save writes the config to the default location.
func (c *Config) Save() error {
	if err := c.Validate(); err != nil {
		return err
	}

	path, err := DefaultConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks the effective config.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warning", "error":
	default:
		return &ValidationError{Path: "log_level", Err: fmt.Errorf("log_level must be one of: debug, info, warning, error")}
	}
	if strings.ContainsAny(c.RuntimeID, "/ \t") {
		return &ValidationError{Path: "runtime_id", Err: fmt.Errorf("runtime_id must not contain slashes or whitespace")}
	}
	switch c.Placement.ShadowCorrection {
	case ShadowAuto, ShadowOn, ShadowOff:
	default:
		return &ValidationError{Path: "placement.shadow_correction", Err: fmt.Errorf("shadow_correction must be one of: auto, on, off")}
	}
	if c.Drag.PollIntervalMs <= 0 {
		return &ValidationError{Path: "drag.poll_interval_ms", Err: fmt.Errorf("poll_interval_ms must be > 0")}
	}
	if c.Drag.QuietPeriodMs <= 0 {
		return &ValidationError{Path: "drag.quiet_period_ms", Err: fmt.Errorf("quiet_period_ms must be > 0")}
	}
	switch c.Drag.Coalesce {
	case CoalesceNative, CoalesceAlways, CoalesceNever:
	default:
		return &ValidationError{Path: "drag.coalesce", Err: fmt.Errorf("coalesce must be one of: native, always, never")}
	}
	if c.Mesh.RPCTimeoutMs < 0 {
		return &ValidationError{Path: "mesh.rpc_timeout_ms", Err: fmt.Errorf("rpc_timeout_ms must be >= 0")}
	}
	if c.Mesh.Fanout <= 0 {
		return &ValidationError{Path: "mesh.fanout", Err: fmt.Errorf("fanout must be > 0")}
	}
	seen := make(map[string]bool, len(c.Mesh.Peers))
	for _, p := range c.Mesh.Peers {
		if strings.TrimSpace(p.ID) == "" {
			return &ValidationError{Path: "mesh.peers", Err: fmt.Errorf("peer id is required")}
		}
		if p.ID == c.RuntimeID {
			return &ValidationError{Path: "mesh.peers", Err: fmt.Errorf("peer %q has this daemon's runtime_id", p.ID)}
		}
		if seen[p.ID] {
			return &ValidationError{Path: "mesh.peers", Err: fmt.Errorf("duplicate peer %q", p.ID)}
		}
		seen[p.ID] = true
	}
	if len(c.Mesh.Peers) > 0 && c.RuntimeID == "" {
		return &ValidationError{Path: "runtime_id", Err: fmt.Errorf("runtime_id is required when mesh.peers is set")}
	}
	if c.ReconcileIntervalSeconds <= 0 {
		return &ValidationError{Path: "reconcile_interval_seconds", Err: fmt.Errorf("reconcile_interval_seconds must be > 0")}
	}
	if c.Telemetry.ExportIntervalSeconds < 0 {
		return &ValidationError{Path: "telemetry.export_interval_seconds", Err: fmt.Errorf("export_interval_seconds must be >= 0")}
	}
	return nil
}
