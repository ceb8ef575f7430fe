package daemon

import (
	"context"
	"fmt"

	"github.com/1broseidon/wingroup/internal/bounds"
	"github.com/1broseidon/wingroup/internal/event"
	"github.com/1broseidon/wingroup/internal/group"
	"github.com/1broseidon/wingroup/internal/ipc"
	"github.com/1broseidon/wingroup/internal/platform"
	"github.com/1broseidon/wingroup/internal/remote"
)

// resolveOwned resolves a window a peer claims this runtime owns.
func (s *Service) resolveOwned(ctx context.Context, id group.Identity) (*group.Window, error) {
	id = s.normalize(id)
	if !s.isLocal(id) {
		return nil, fmt.Errorf("%s is not owned by %s: %w", id, s.self, platform.ErrWindowNotFound)
	}
	return s.resolve(ctx, id)
}

// ResolveWindow answers a peer's RESOLVE_WINDOW for a window we own.
func (s *Service) ResolveWindow(ctx context.Context, id group.Identity) (remote.Resolution, error) {
	s.metrics.RecordPeerRequest(ctx, string(ipc.CommandResolveWindow))
	w, err := s.resolveOwned(ctx, id)
	if err != nil {
		return remote.Resolution{}, err
	}
	var res remote.Resolution
	err = s.loop.Call(ctx, func() error {
		res = remote.Resolution{Handle: w.Name, Bounds: w.Bounds, Constraints: w.Constraints}
		return nil
	})
	return res, err
}

// GroupMembers reports our view of the group of one of our windows, in
// membership order. An ungrouped window is reported alone.
func (s *Service) GroupMembers(ctx context.Context, req remote.MembersRequest) (remote.MembersReply, error) {
	s.metrics.RecordPeerRequest(ctx, remote.ActionMembers)
	w, err := s.resolveOwned(ctx, req.Window)
	if err != nil {
		return remote.MembersReply{}, err
	}
	var reply remote.MembersReply
	err = s.loop.Call(ctx, func() error {
		members := s.registry.GroupOf(w)
		if len(members) == 0 {
			members = []*group.Window{w}
		}
		reply.GroupID = w.GroupID
		for _, m := range members {
			reply.Members = append(reply.Members, remote.RemoteWindow{
				Window:      m.Identity,
				Bounds:      m.Bounds,
				Constraints: m.Constraints,
			})
		}
		return nil
	})
	return reply, err
}

// RemoteLeave applies a leave forwarded by the owner of the window.
func (s *Service) RemoteLeave(ctx context.Context, req remote.LeaveRequest) error {
	s.metrics.RecordPeerRequest(ctx, remote.ActionLeave)
	if s.mesh == nil {
		return nil
	}
	return s.mesh.HandleRemoteLeave(ctx, req.Window)
}

// WatchWindow subscribes a peer to group changes of one of our windows.
func (s *Service) WatchWindow(ctx context.Context, req remote.WatchRequest) error {
	s.metrics.RecordPeerRequest(ctx, remote.ActionWatch)
	w, err := s.resolveOwned(ctx, req.Window)
	if err != nil {
		return err
	}
	if s.mesh != nil {
		s.mesh.Watch(w.Identity, req.Subscriber)
	}
	return nil
}

// RemoteGroupChanged mirrors a peer's group change into our registry.
func (s *Service) RemoteGroupChanged(ctx context.Context, notice remote.GroupChangedNotice) error {
	s.metrics.RecordPeerRequest(ctx, remote.ActionGroupChanged)
	if s.mesh == nil {
		return nil
	}
	return s.mesh.HandleRemoteGroupChanged(ctx, notice)
}

// RemoteSetBounds places one of our windows on behalf of a peer that already
// propagated the change to the whole group.
func (s *Service) RemoteSetBounds(ctx context.Context, req remote.SetBoundsRequest) error {
	s.metrics.RecordPeerRequest(ctx, remote.ActionSetBounds)
	w, err := s.resolveOwned(ctx, req.Window)
	if err != nil {
		return err
	}
	return s.loop.Call(ctx, func() error {
		from := w.Bounds
		applied := s.batcher.Place([]bounds.Move{{Window: w, Target: req.Bounds}})
		if len(applied) == 0 {
			if from == req.Bounds {
				return nil
			}
			return fmt.Errorf("placement of %s failed", w.Identity)
		}
		s.bus.Publish(event.NewBoundsChanged(w.Member(), w.Bounds, platform.Classify(from, w.Bounds), event.ReasonGroup, false))
		return nil
	})
}
