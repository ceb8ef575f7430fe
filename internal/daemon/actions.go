package daemon

import (
	"context"
	"fmt"
)

// ArmOrJoinActive drives the two-press join hotkey: the first press arms the
// focused window, the second joins the armed window into the focused
// window's group. Pressing twice on the same window disarms it.
func (s *Service) ArmOrJoinActive(ctx context.Context) error {
	return s.loop.Call(ctx, func() error {
		active, err := s.backend.ActiveWindow()
		if err != nil {
			return fmt.Errorf("active window: %w", err)
		}
		w, err := s.trackNative(active)
		if err != nil {
			return err
		}

		switch {
		case s.armed == nil:
			s.armed = w
			s.logger.Info("window armed for join", "window", w.Identity)
		case s.armed == w:
			s.armed = nil
			s.logger.Info("join cancelled", "window", w.Identity)
		default:
			source := s.armed
			s.armed = nil
			s.registry.Join(source, w)
			s.logger.Info("window joined", "source", source.Identity, "target", w.Identity)
		}
		return nil
	})
}

// LeaveActive removes the focused window from its group.
func (s *Service) LeaveActive(ctx context.Context) error {
	return s.loop.Call(ctx, func() error {
		active, err := s.backend.ActiveWindow()
		if err != nil {
			return fmt.Errorf("active window: %w", err)
		}
		w, err := s.trackNative(active)
		if err != nil {
			return err
		}
		s.registry.Leave(w)
		return nil
	})
}
