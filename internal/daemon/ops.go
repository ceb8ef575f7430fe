package daemon

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/1broseidon/wingroup/internal/bounds"
	"github.com/1broseidon/wingroup/internal/group"
	"github.com/1broseidon/wingroup/internal/ipc"
	"github.com/1broseidon/wingroup/internal/platform"
)

func (s *Service) startSpan(ctx context.Context, name string, ids ...group.Identity) (context.Context, trace.Span) {
	attrs := make([]attribute.KeyValue, 0, len(ids))
	for i, id := range ids {
		key := "window"
		if i > 0 {
			key = "target"
		}
		attrs = append(attrs, attribute.String(key, id.String()))
	}
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// JoinGroup adds source to target's group.
func (s *Service) JoinGroup(ctx context.Context, source, target group.Identity) (err error) {
	ctx, span := s.startSpan(ctx, "group.join", source, target)
	defer func() { endSpan(span, err) }()

	src, dst, err := s.resolvePair(ctx, source, target)
	if err != nil {
		return err
	}
	return s.loop.Call(ctx, func() error {
		s.registry.Join(src, dst)
		return nil
	})
}

// LeaveGroup removes a window from its group.
func (s *Service) LeaveGroup(ctx context.Context, id group.Identity) (err error) {
	ctx, span := s.startSpan(ctx, "group.leave", id)
	defer func() { endSpan(span, err) }()

	w, err := s.resolve(ctx, id)
	if err != nil {
		return err
	}
	return s.loop.Call(ctx, func() error {
		s.registry.Leave(w)
		return nil
	})
}

// MergeGroups moves every member of source's group into target's group.
func (s *Service) MergeGroups(ctx context.Context, source, target group.Identity) (err error) {
	ctx, span := s.startSpan(ctx, "group.merge", source, target)
	defer func() { endSpan(span, err) }()

	src, dst, err := s.resolvePair(ctx, source, target)
	if err != nil {
		return err
	}
	return s.loop.Call(ctx, func() error {
		s.registry.Merge(src, dst)
		return nil
	})
}

// resolvePair resolves both ends of a join or merge. Proxy targets get their
// owner-side group refreshed so the join flattens into it.
func (s *Service) resolvePair(ctx context.Context, source, target group.Identity) (*group.Window, *group.Window, error) {
	src, err := s.resolve(ctx, source)
	if err != nil {
		return nil, nil, err
	}
	dst, err := s.resolve(ctx, target)
	if err != nil {
		return nil, nil, err
	}
	if s.mesh != nil {
		for _, w := range []*group.Window{dst, src} {
			if !w.IsProxy() {
				continue
			}
			if p, ok := s.mesh.Lookup(w.Identity); ok {
				if err := s.mesh.RefreshUpstream(ctx, p); err != nil {
					s.logger.Warn("failed to refresh remote group", "window", w.Identity, "error", err)
				}
			}
		}
	}
	return src, dst, nil
}

// SetBounds places a window and propagates the change to its group.
func (s *Service) SetBounds(ctx context.Context, id group.Identity, r platform.Rect) (ipc.BoundsData, error) {
	return s.applyBounds(ctx, "bounds.set", id, func(platform.Rect) platform.Rect { return r })
}

// MoveTo moves a window's origin; its group is translated by the same
// amount.
func (s *Service) MoveTo(ctx context.Context, id group.Identity, x, y int) (ipc.BoundsData, error) {
	return s.applyBounds(ctx, "bounds.move_to", id, func(cur platform.Rect) platform.Rect {
		cur.X, cur.Y = x, y
		return cur
	})
}

// MoveBy translates a window, and its group, by a delta.
func (s *Service) MoveBy(ctx context.Context, id group.Identity, dx, dy int) (ipc.BoundsData, error) {
	return s.applyBounds(ctx, "bounds.move", id, func(cur platform.Rect) platform.Rect {
		return cur.Translate(dx, dy)
	})
}

// ResizeTo resizes a window, keeping its origin.
func (s *Service) ResizeTo(ctx context.Context, id group.Identity, width, height int) (ipc.BoundsData, error) {
	return s.applyBounds(ctx, "bounds.resize", id, func(cur platform.Rect) platform.Rect {
		cur.Width, cur.Height = width, height
		return cur
	})
}

func (s *Service) applyBounds(ctx context.Context, name string, id group.Identity, target func(platform.Rect) platform.Rect) (data ipc.BoundsData, err error) {
	ctx, span := s.startSpan(ctx, name, id)
	defer func() { endSpan(span, err) }()

	w, err := s.resolve(ctx, id)
	if err != nil {
		return ipc.BoundsData{}, err
	}

	err = s.loop.Call(ctx, func() error {
		s.refresh(w)
		requested := target(w.Bounds)
		started := time.Now()

		moves, err := s.engine.ComputeMoves(w, requested)
		if err != nil {
			if errors.Is(err, bounds.ErrConstraintViolation) {
				s.metrics.RecordConstraintViolation(ctx)
			}
			return err
		}
		applied := s.batcher.Apply(w, moves, platform.Classify(w.Bounds, requested))
		s.metrics.RecordPropagation(ctx, float64(time.Since(started).Microseconds())/1000, len(s.registry.GroupOf(w)))

		data = ipc.BoundsData{Window: w.Identity, Bounds: w.Bounds}
		for _, m := range applied {
			data.Moved = append(data.Moved, windowInfo(m.Window))
		}
		return nil
	})
	if err != nil {
		return ipc.BoundsData{}, err
	}
	span.SetAttributes(attribute.Int("moved", len(data.Moved)))
	return data, nil
}

// refresh re-reads a local window's geometry before computing a new target,
// in case a notification is still in flight. Loop only.
func (s *Service) refresh(w *group.Window) {
	if w.IsProxy() || s.coord.Active(w) {
		return
	}
	r, err := s.backend.Geometry(w.Native)
	if err != nil {
		return
	}
	w.Bounds = r
}

// BeginDrag starts an interactive gesture led by a window.
func (s *Service) BeginDrag(ctx context.Context, id group.Identity) error {
	w, err := s.resolve(ctx, id)
	if err != nil {
		return err
	}
	return s.loop.Call(ctx, func() error {
		s.coord.Begin(w)
		return nil
	})
}

// DragTo reports an intermediate rect of a gesture.
func (s *Service) DragTo(ctx context.Context, id group.Identity, r platform.Rect) error {
	w, err := s.resolve(ctx, id)
	if err != nil {
		return err
	}
	return s.loop.Call(ctx, func() error {
		if !s.coord.Changing(w, r) {
			s.batcher.Place([]bounds.Move{{Window: w, Target: r}})
		}
		return nil
	})
}

// EndDrag finishes a gesture and emits the deferred bounds-changed events.
func (s *Service) EndDrag(ctx context.Context, id group.Identity) error {
	w, err := s.resolve(ctx, id)
	if err != nil {
		return err
	}
	return s.loop.Call(ctx, func() error {
		s.coord.End(w)
		return nil
	})
}
