package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// IncludeList supports either:
//
//	include: "/path/to/file.yaml"
//
// or:
//
//	include:
//	  - "/path/to/file.yaml"
//	  - "/path/to/dir"
type IncludeList []string

func (l *IncludeList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case 0:
		// Not present.
		*l = nil
		return nil
	case yaml.ScalarNode:
		if value.Tag != "!!str" {
			return fmt.Errorf("include must be a string or list of strings")
		}
		*l = []string{value.Value}
		return nil
	case yaml.SequenceNode:
		out := make([]string, 0, len(value.Content))
		for _, item := range value.Content {
			if item.Kind != yaml.ScalarNode || item.Tag != "!!str" {
				return fmt.Errorf("include entries must be strings")
			}
			out = append(out, item.Value)
		}
		*l = out
		return nil
	default:
		return fmt.Errorf("include must be a string or list of strings")
	}
}

type RawPlacement struct {
	Atomic           *bool             `yaml:"atomic"`
	ShadowCorrection *ShadowCorrection `yaml:"shadow_correction"`
}

type RawDrag struct {
	PollIntervalMs *int      `yaml:"poll_interval_ms"`
	QuietPeriodMs  *int      `yaml:"quiet_period_ms"`
	Coalesce       *Coalesce `yaml:"coalesce"`
}

// RawMesh keeps peers as a whole list: a later file replaces the peer set
// instead of appending to it.
type RawMesh struct {
	RPCTimeoutMs *int   `yaml:"rpc_timeout_ms"`
	Fanout       *int   `yaml:"fanout"`
	Peers        []Peer `yaml:"peers"`
}

type RawHotkeys struct {
	Join  *string `yaml:"join"`
	Leave *string `yaml:"leave"`
}

type RawTelemetry struct {
	OTLPEndpoint          *string           `yaml:"otlp_endpoint"`
	Headers               map[string]string `yaml:"headers"`
	ExportIntervalSeconds *int              `yaml:"export_interval_seconds"`
}

type RawConfig struct {
	Include                  IncludeList   `yaml:"include"`
	LogLevel                 *string       `yaml:"log_level"`
	RuntimeID                *string       `yaml:"runtime_id"`
	Socket                   *string       `yaml:"socket"`
	Display                  *string       `yaml:"display"`
	Placement                *RawPlacement `yaml:"placement"`
	Drag                     *RawDrag      `yaml:"drag"`
	Mesh                     *RawMesh      `yaml:"mesh"`
	ReconcileIntervalSeconds *int          `yaml:"reconcile_interval_seconds"`
	Hotkeys                  *RawHotkeys   `yaml:"hotkeys"`
	Telemetry                *RawTelemetry `yaml:"telemetry"`
}

func (c RawConfig) merge(overlay RawConfig) RawConfig {
	out := c

	if overlay.LogLevel != nil {
		out.LogLevel = overlay.LogLevel
	}
	if overlay.RuntimeID != nil {
		out.RuntimeID = overlay.RuntimeID
	}
	if overlay.Socket != nil {
		out.Socket = overlay.Socket
	}
	if overlay.Display != nil {
		out.Display = overlay.Display
	}
	if overlay.ReconcileIntervalSeconds != nil {
		out.ReconcileIntervalSeconds = overlay.ReconcileIntervalSeconds
	}

	if overlay.Placement != nil {
		merged := RawPlacement{}
		if out.Placement != nil {
			merged = *out.Placement
		}
		if overlay.Placement.Atomic != nil {
			merged.Atomic = overlay.Placement.Atomic
		}
		if overlay.Placement.ShadowCorrection != nil {
			merged.ShadowCorrection = overlay.Placement.ShadowCorrection
		}
		out.Placement = &merged
	}

	if overlay.Drag != nil {
		merged := RawDrag{}
		if out.Drag != nil {
			merged = *out.Drag
		}
		if overlay.Drag.PollIntervalMs != nil {
			merged.PollIntervalMs = overlay.Drag.PollIntervalMs
		}
		if overlay.Drag.QuietPeriodMs != nil {
			merged.QuietPeriodMs = overlay.Drag.QuietPeriodMs
		}
		if overlay.Drag.Coalesce != nil {
			merged.Coalesce = overlay.Drag.Coalesce
		}
		out.Drag = &merged
	}

	if overlay.Mesh != nil {
		merged := RawMesh{}
		if out.Mesh != nil {
			merged = *out.Mesh
		}
		if overlay.Mesh.RPCTimeoutMs != nil {
			merged.RPCTimeoutMs = overlay.Mesh.RPCTimeoutMs
		}
		if overlay.Mesh.Fanout != nil {
			merged.Fanout = overlay.Mesh.Fanout
		}
		if overlay.Mesh.Peers != nil {
			merged.Peers = append([]Peer(nil), overlay.Mesh.Peers...)
		}
		out.Mesh = &merged
	}

	if overlay.Hotkeys != nil {
		merged := RawHotkeys{}
		if out.Hotkeys != nil {
			merged = *out.Hotkeys
		}
		if overlay.Hotkeys.Join != nil {
			merged.Join = overlay.Hotkeys.Join
		}
		if overlay.Hotkeys.Leave != nil {
			merged.Leave = overlay.Hotkeys.Leave
		}
		out.Hotkeys = &merged
	}

	if overlay.Telemetry != nil {
		merged := RawTelemetry{}
		if out.Telemetry != nil {
			merged = *out.Telemetry
		}
		if overlay.Telemetry.OTLPEndpoint != nil {
			merged.OTLPEndpoint = overlay.Telemetry.OTLPEndpoint
		}
		if overlay.Telemetry.ExportIntervalSeconds != nil {
			merged.ExportIntervalSeconds = overlay.Telemetry.ExportIntervalSeconds
		}
		if overlay.Telemetry.Headers != nil {
			headers := make(map[string]string, len(merged.Headers)+len(overlay.Telemetry.Headers))
			for k, v := range merged.Headers {
				headers[k] = v
			}
			for k, v := range overlay.Telemetry.Headers {
				headers[k] = v
			}
			merged.Headers = headers
		}
		out.Telemetry = &merged
	}

	return out
}
