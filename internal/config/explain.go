package config

import (
	"fmt"
	"strings"
)

// Explain returns the effective value at the given YAML-like path and its source.
//
// Supported paths include:
//
//	log_level
//	runtime_id
//	socket
//	display
//	placement.atomic
//	placement.shadow_correction
//	drag.poll_interval_ms
//	drag.quiet_period_ms
//	drag.coalesce
//	mesh.rpc_timeout_ms
//	mesh.fanout
//	mesh.peers
//	reconcile_interval_seconds
//	hotkeys.join
//	hotkeys.leave
//	telemetry.otlp_endpoint
//	telemetry.export_interval_seconds
func Explain(res *LoadResult, path string) (any, Source, error) {
	if res == nil || res.Config == nil {
		return nil, Source{}, fmt.Errorf("no config loaded")
	}
	if path == "" {
		return nil, Source{}, fmt.Errorf("path is empty")
	}

	value, err := lookupValue(res.Config, path)
	if err != nil {
		return nil, Source{}, err
	}

	if src, ok := res.Sources[path]; ok {
		return value, src, nil
	}
	return value, Source{Kind: SourceDefault}, nil
}

func lookupValue(cfg *Config, path string) (any, error) {
	section, key, nested := strings.Cut(path, ".")
	if !nested {
		switch section {
		case "log_level":
			return cfg.LogLevel, nil
		case "runtime_id":
			return cfg.RuntimeID, nil
		case "socket":
			return cfg.Socket, nil
		case "display":
			return cfg.Display, nil
		case "reconcile_interval_seconds":
			return cfg.ReconcileIntervalSeconds, nil
		case "placement":
			return cfg.Placement, nil
		case "drag":
			return cfg.Drag, nil
		case "mesh":
			return cfg.Mesh, nil
		case "hotkeys":
			return cfg.Hotkeys, nil
		case "telemetry":
			return cfg.Telemetry, nil
		}
		return nil, fmt.Errorf("unknown path: %s", path)
	}

	switch section + "." + key {
	case "placement.atomic":
		return cfg.Placement.Atomic, nil
	case "placement.shadow_correction":
		return cfg.Placement.ShadowCorrection, nil
	case "drag.poll_interval_ms":
		return cfg.Drag.PollIntervalMs, nil
	case "drag.quiet_period_ms":
		return cfg.Drag.QuietPeriodMs, nil
	case "drag.coalesce":
		return cfg.Drag.Coalesce, nil
	case "mesh.rpc_timeout_ms":
		return cfg.Mesh.RPCTimeoutMs, nil
	case "mesh.fanout":
		return cfg.Mesh.Fanout, nil
	case "mesh.peers":
		return cfg.Mesh.Peers, nil
	case "hotkeys.join":
		return cfg.Hotkeys.Join, nil
	case "hotkeys.leave":
		return cfg.Hotkeys.Leave, nil
	case "telemetry.otlp_endpoint":
		return cfg.Telemetry.OTLPEndpoint, nil
	case "telemetry.export_interval_seconds":
		return cfg.Telemetry.ExportIntervalSeconds, nil
	case "telemetry.headers":
		return cfg.Telemetry.Headers, nil
	}
	return nil, fmt.Errorf("unknown path: %s", path)
}
