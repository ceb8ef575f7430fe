package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/1broseidon/wingroup/internal/event"
	"github.com/1broseidon/wingroup/internal/placement"
)

// Metrics holds the instruments. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Placements          metric.Int64Counter
	PlacementFailures   metric.Int64Counter
	GroupChanges        metric.Int64Counter
	ConstraintRejects   metric.Int64Counter
	Gestures            metric.Int64Counter
	PeerRequests        metric.Int64Counter
	PropagationDuration metric.Float64Histogram
}

var _ placement.Observer = (*Metrics)(nil)

// NewMetrics creates every instrument on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.Placements, err = meter.Int64Counter("wingroup.placements",
		metric.WithDescription("Windows placed, partitioned by mode (atomic, sequential, remote)"),
		metric.WithUnit("{window}"))
	if err != nil {
		return nil, err
	}

	m.PlacementFailures, err = meter.Int64Counter("wingroup.placement.failures",
		metric.WithDescription("Windows the platform refused to place"),
		metric.WithUnit("{window}"))
	if err != nil {
		return nil, err
	}

	m.GroupChanges, err = meter.Int64Counter("wingroup.group.changes",
		metric.WithDescription("group-changed events partitioned by reason"))
	if err != nil {
		return nil, err
	}

	m.ConstraintRejects, err = meter.Int64Counter("wingroup.constraint.violations",
		metric.WithDescription("Bounds requests rejected because a member's size limits could not absorb them"))
	if err != nil {
		return nil, err
	}

	m.Gestures, err = meter.Int64Counter("wingroup.drag.gestures",
		metric.WithDescription("Completed interactive gestures"))
	if err != nil {
		return nil, err
	}

	m.PeerRequests, err = meter.Int64Counter("wingroup.peer.requests",
		metric.WithDescription("Requests received from mesh peers, partitioned by command"))
	if err != nil {
		return nil, err
	}

	m.PropagationDuration, err = meter.Float64Histogram("wingroup.propagation.duration",
		metric.WithDescription("Time spent computing and placing one bounds change"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) Placed(mode string, windows int) {
	if m == nil {
		return
	}
	m.Placements.Add(context.Background(), int64(windows),
		metric.WithAttributes(attribute.String("placement.mode", mode)))
}

func (m *Metrics) PlacementFailed(windows int) {
	if m == nil {
		return
	}
	m.PlacementFailures.Add(context.Background(), int64(windows))
}

// ObserveEvents counts group changes and completed gestures published on
// sink.
func (m *Metrics) ObserveEvents(sink event.Sink) {
	if m == nil {
		return
	}
	sink.Subscribe(event.TypeGroupChanged, func(e event.Event) {
		if gc, ok := e.(event.GroupChanged); ok {
			m.GroupChanges.Add(context.Background(), 1,
				metric.WithAttributes(attribute.String("group.reason", string(gc.Reason))))
		}
	})
	sink.Subscribe(event.TypeBoundsChanged, func(e event.Event) {
		if bc, ok := e.(event.BoundsChanged); ok && bc.Deferred && bc.Reason == event.ReasonSelf {
			m.Gestures.Add(context.Background(), 1)
		}
	})
}

// RecordConstraintViolation counts a rejected bounds request.
func (m *Metrics) RecordConstraintViolation(ctx context.Context) {
	if m == nil {
		return
	}
	m.ConstraintRejects.Add(ctx, 1)
}

// RecordPeerRequest counts a request from a peer daemon.
func (m *Metrics) RecordPeerRequest(ctx context.Context, command string) {
	if m == nil {
		return
	}
	m.PeerRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("peer.command", command)))
}

// RecordPropagation records how long one bounds change took.
func (m *Metrics) RecordPropagation(ctx context.Context, ms float64, members int) {
	if m == nil {
		return
	}
	m.PropagationDuration.Record(ctx, ms, metric.WithAttributes(attribute.Int("group.members", members)))
}
