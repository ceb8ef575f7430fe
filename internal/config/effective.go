package config

import (
	"fmt"
	"strings"

	"github.com/1broseidon/wingroup/internal/runtimepath"
)

type ValidationError struct {
	Path   string
	Source Source
	Err    error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Source.located() {
		return fmt.Sprintf("%s:%d:%d: %s: %v", e.Source.File, e.Source.Line, e.Source.Column, e.Path, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// BuildEffectiveConfig applies a merged raw config over the defaults.
func BuildEffectiveConfig(raw RawConfig) (*Config, error) {
	cfg := DefaultConfig()

	if raw.LogLevel != nil {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(*raw.LogLevel))
		if cfg.LogLevel == "warn" {
			cfg.LogLevel = "warning"
		}
	}
	if raw.RuntimeID != nil {
		cfg.RuntimeID = strings.TrimSpace(*raw.RuntimeID)
	}
	if raw.Socket != nil {
		cfg.Socket = *raw.Socket
	}
	if raw.Display != nil {
		cfg.Display = *raw.Display
	}
	cfg.ReconcileIntervalSeconds = derefInt(raw.ReconcileIntervalSeconds, cfg.ReconcileIntervalSeconds)

	if p := raw.Placement; p != nil {
		if p.Atomic != nil {
			cfg.Placement.Atomic = *p.Atomic
		}
		if p.ShadowCorrection != nil {
			cfg.Placement.ShadowCorrection = *p.ShadowCorrection
		}
	}

	if d := raw.Drag; d != nil {
		cfg.Drag.PollIntervalMs = derefInt(d.PollIntervalMs, cfg.Drag.PollIntervalMs)
		cfg.Drag.QuietPeriodMs = derefInt(d.QuietPeriodMs, cfg.Drag.QuietPeriodMs)
		if d.Coalesce != nil {
			cfg.Drag.Coalesce = *d.Coalesce
		}
	}

	if m := raw.Mesh; m != nil {
		cfg.Mesh.RPCTimeoutMs = derefInt(m.RPCTimeoutMs, cfg.Mesh.RPCTimeoutMs)
		cfg.Mesh.Fanout = derefInt(m.Fanout, cfg.Mesh.Fanout)
		if m.Peers != nil {
			peers := make([]Peer, 0, len(m.Peers))
			for i, p := range m.Peers {
				p.ID = strings.TrimSpace(p.ID)
				if p.ID == "" {
					return nil, &ValidationError{Path: "mesh.peers", Err: fmt.Errorf("peer %d: id is required", i)}
				}
				peers = append(peers, p)
			}
			cfg.Mesh.Peers = peers
		}
	}

	if h := raw.Hotkeys; h != nil {
		if h.Join != nil {
			cfg.Hotkeys.Join = *h.Join
		}
		if h.Leave != nil {
			cfg.Hotkeys.Leave = *h.Leave
		}
	}

	if t := raw.Telemetry; t != nil {
		if t.OTLPEndpoint != nil {
			cfg.Telemetry.OTLPEndpoint = strings.TrimSpace(*t.OTLPEndpoint)
		}
		if t.Headers != nil {
			cfg.Telemetry.Headers = t.Headers
		}
		cfg.Telemetry.ExportIntervalSeconds = derefInt(t.ExportIntervalSeconds, cfg.Telemetry.ExportIntervalSeconds)
	}

	return cfg, nil
}

// SocketPath returns the IPC socket this daemon listens on.
func (c *Config) SocketPath() (string, error) {
	if c.Socket != "" {
		return c.Socket, nil
	}
	return runtimepath.SocketPath(c.RuntimeID)
}

// ResolvedPeers returns the mesh peers with default sockets filled in for
// peers that did not name one.
func (c *Config) ResolvedPeers() ([]Peer, error) {
	out := make([]Peer, 0, len(c.Mesh.Peers))
	for _, p := range c.Mesh.Peers {
		if p.Socket == "" {
			path, err := runtimepath.SocketPath(p.ID)
			if err != nil {
				return nil, fmt.Errorf("peer %s: %w", p.ID, err)
			}
			p.Socket = path
		}
		out = append(out, p)
	}
	return out, nil
}

func derefInt(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}
