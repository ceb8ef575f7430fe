package telemetry

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/1broseidon/wingroup/internal/event"
	"github.com/1broseidon/wingroup/internal/platform"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(provider.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func sum(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != name {
				continue
			}
			data, ok := md.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s is not an int64 sum", name)
			}
			for _, dp := range data.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestPlacementObserver(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.Placed("atomic", 3)
	m.Placed("remote", 1)
	m.PlacementFailed(2)

	if got := sum(t, reader, "wingroup.placements"); got != 4 {
		t.Errorf("placements = %d, want 4", got)
	}
	if got := sum(t, reader, "wingroup.placement.failures"); got != 2 {
		t.Errorf("failures = %d, want 2", got)
	}
}

func TestObserveEvents(t *testing.T) {
	m, reader := newTestMetrics(t)
	bus := event.NewBus(nil)
	m.ObserveEvents(bus)

	bus.Publish(event.NewGroupChanged("g", event.ReasonJoin, event.Member{Name: "a"}, event.Member{Name: "b"}, nil, nil))
	bus.Publish(event.NewGroupChanged("g", event.ReasonDisband, event.Member{Name: "a"}, event.Member{}, nil, nil))
	bus.Publish(event.NewBoundsChanged(event.Member{Name: "a"}, platform.Rect{}, platform.ChangePosition, event.ReasonSelf, true))
	bus.Publish(event.NewBoundsChanged(event.Member{Name: "b"}, platform.Rect{}, platform.ChangePosition, event.ReasonGroup, true))
	bus.Publish(event.NewBoundsChanged(event.Member{Name: "a"}, platform.Rect{}, platform.ChangePosition, event.ReasonSelf, false))

	if got := sum(t, reader, "wingroup.group.changes"); got != 2 {
		t.Errorf("group changes = %d, want 2", got)
	}
	if got := sum(t, reader, "wingroup.drag.gestures"); got != 1 {
		t.Errorf("gestures = %d, want 1", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.Placed("atomic", 1)
	m.PlacementFailed(1)
	m.RecordConstraintViolation(context.Background())
	m.RecordPeerRequest(context.Background(), "REMOTE_LEAVE")
	m.RecordPropagation(context.Background(), 1, 2)
	m.ObserveEvents(event.NewBus(nil))
}

func TestInitWithoutEndpoint(t *testing.T) {
	tel, err := Init(context.Background(), Config{})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer tel.Shutdown(context.Background())
	if tel.Tracer == nil || tel.Metrics == nil {
		t.Fatal("instruments should exist without an endpoint")
	}
}

func TestInitRejectsBadEndpoint(t *testing.T) {
	if _, err := Init(context.Background(), Config{Endpoint: "::nope"}); err == nil {
		t.Fatal("expected invalid endpoint error")
	}
}
