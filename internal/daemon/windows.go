package daemon

import (
	"context"
	"fmt"

	"github.com/1broseidon/wingroup/internal/group"
	"github.com/1broseidon/wingroup/internal/platform"
)

// normalize fills in this runtime as the owner of unqualified identities.
func (s *Service) normalize(id group.Identity) group.Identity {
	if id.Owner == "" {
		id.Owner = s.self
	}
	return id
}

func (s *Service) isLocal(id group.Identity) bool {
	return id.Owner == "" || id.Owner == s.self
}

// resolve returns the registry window for id, tracking local windows on first
// use and creating proxies for peer-owned ones. Must not be called from the
// loop.
func (s *Service) resolve(ctx context.Context, id group.Identity) (*group.Window, error) {
	id = s.normalize(id)
	if !s.isLocal(id) {
		if s.mesh == nil {
			return nil, fmt.Errorf("%s: %w", id, platform.ErrWindowNotFound)
		}
		p, err := s.mesh.GetOrCreate(ctx, id)
		if err != nil {
			return nil, err
		}
		return p.StandIn, nil
	}

	var w *group.Window
	err := s.loop.Call(ctx, func() error {
		var err error
		w, err = s.trackLocal(id)
		return err
	})
	return w, err
}

// trackLocal looks a local window up in the registry, falling back to the
// backend. Loop only.
func (s *Service) trackLocal(id group.Identity) (*group.Window, error) {
	if w, ok := s.registry.Lookup(id); ok {
		return w, nil
	}
	native, err := s.backend.Lookup(id.Name)
	if err != nil {
		return nil, err
	}
	w := s.registry.Track(group.Window{
		Identity:    group.Identity{Owner: s.self, Name: native.Name},
		Native:      native.ID,
		Bounds:      native.Bounds,
		Constraints: native.Constraints,
		Kind:        native.Kind,
	})
	s.watch(w)
	s.logger.Debug("tracking window", "window", w.Identity, "kind", w.Kind.String(), "bounds", w.Bounds)
	return w, nil
}

// trackNative tracks a window known only by its native id, as reported by
// ActiveWindow. Loop only.
func (s *Service) trackNative(id platform.WindowID) (*group.Window, error) {
	for _, w := range s.registry.Windows() {
		if !w.IsProxy() && w.Native == id {
			return w, nil
		}
	}
	name, err := s.nativeName(id)
	if err != nil {
		return nil, err
	}
	return s.trackLocal(group.Identity{Owner: s.self, Name: name})
}

// nativeName maps a native id back to the backend's window name.
func (s *Service) nativeName(id platform.WindowID) (string, error) {
	if namer, ok := s.backend.(interface{ Names() []string }); ok {
		for _, name := range namer.Names() {
			if w, err := s.backend.Lookup(name); err == nil && w.ID == id {
				return name, nil
			}
		}
		return "", fmt.Errorf("window %d: %w", id, platform.ErrWindowNotFound)
	}
	return fmt.Sprintf("0x%x", uint32(id)), nil
}

// watch subscribes to geometry notifications for a local window. Loop only.
func (s *Service) watch(w *group.Window) {
	if s.geometry == nil || s.watched[w] {
		return
	}
	err := s.geometry.Watch(w.Native,
		func(r platform.Rect) {
			s.loop.Post(func() {
				if s.watched[w] {
					s.dragWatch.Observe(w, r)
				}
			})
		},
		func() {
			s.loop.Post(func() { s.forget(w) })
		},
	)
	if err != nil {
		s.logger.Warn("failed to watch window", "window", w.Identity, "error", err)
		return
	}
	s.watched[w] = true
}

// forget drops a destroyed window from every group. Loop only.
func (s *Service) forget(w *group.Window) {
	if s.watched[w] {
		delete(s.watched, w)
		s.geometry.Unwatch(w.Native)
	}
	s.dragWatch.Forget(w)
	if s.armed == w {
		s.armed = nil
	}
	s.registry.Forget(w)
	s.logger.Debug("window forgotten", "window", w.Identity)
}

// sweep forgets tracked local windows the backend no longer knows. Loop only.
func (s *Service) sweep() int {
	gone := 0
	for _, w := range s.registry.Windows() {
		if w.IsProxy() {
			continue
		}
		if _, err := s.backend.Geometry(w.Native); err != nil {
			s.logger.Debug("window vanished", "window", w.Identity, "error", err)
			s.forget(w)
			gone++
		}
	}
	return gone
}
