// Package placement applies computed group moves to native windows.
package placement

import (
	"log/slog"

	"github.com/1broseidon/wingroup/internal/bounds"
	"github.com/1broseidon/wingroup/internal/event"
	"github.com/1broseidon/wingroup/internal/group"
	"github.com/1broseidon/wingroup/internal/platform"
)

// RemotePlacer places proxy members through their owning peer. It must not
// block; the placement is fire-and-forget from the batcher's point of view.
type RemotePlacer interface {
	PlaceRemote(w *group.Window, bounds platform.Rect)
}

// Observer receives placement counts, for metrics.
type Observer interface {
	Placed(mode string, windows int)
	PlacementFailed(windows int)
}

// Placement modes reported to the Observer.
const (
	ModeAtomic     = "atomic"
	ModeSequential = "sequential"
	ModeRemote     = "remote"
)

// Options configures a Batcher.
type Options struct {
	Backend  platform.Backend
	Sink     event.Sink
	Remote   RemotePlacer
	Observer Observer
	Logger   *slog.Logger
}

// Batcher turns a move set into native placement calls.
type Batcher struct {
	backend  platform.Backend
	sink     event.Sink
	remote   RemotePlacer
	observer Observer
	logger   *slog.Logger
}

// NewBatcher creates a Batcher.
func NewBatcher(opts Options) *Batcher {
	b := &Batcher{
		backend:  opts.Backend,
		sink:     opts.Sink,
		remote:   opts.Remote,
		observer: opts.Observer,
		logger:   opts.Logger,
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// SetRemote installs the remote placer after construction.
func (b *Batcher) SetRemote(r RemotePlacer) {
	b.remote = r
}

// Apply places every move and emits bounds-changed for each window that was
// placed: reason self for the leader, group for the others.
func (b *Batcher) Apply(leader *group.Window, moves []bounds.Move, change platform.ChangeType) []bounds.Move {
	applied := b.Place(moves)
	if b.sink == nil {
		return applied
	}
	for _, m := range applied {
		reason := event.ReasonGroup
		if m.Window == leader {
			reason = event.ReasonSelf
		}
		b.sink.Publish(event.NewBoundsChanged(m.Window.Member(), m.Target, change, reason, false))
	}
	return applied
}

// Place applies the moves without emitting events and returns the ones that
// succeeded. Window bounds are updated for successful moves only.
//
// Windows whose kind supports atomic placement are submitted as one
// transaction; the rest are placed one by one. A failure for one window is
// logged and does not affect the others.
func (b *Batcher) Place(moves []bounds.Move) []bounds.Move {
	if len(moves) == 0 {
		return nil
	}

	var (
		atomic     []bounds.Move
		sequential []bounds.Move
		remote     []bounds.Move
	)
	for _, m := range moves {
		switch {
		case m.Window.IsProxy():
			remote = append(remote, m)
		case b.backend != nil && b.backend.SupportsAtomicPlacement(m.Window.Kind):
			atomic = append(atomic, m)
		default:
			sequential = append(sequential, m)
		}
	}

	applied := make([]bounds.Move, 0, len(moves))
	failed := 0

	if len(atomic) > 0 {
		placements := make([]platform.Placement, 0, len(atomic))
		for _, m := range atomic {
			placements = append(placements, platform.Placement{ID: m.Window.Native, Bounds: b.native(m)})
		}
		rejected := make(map[platform.WindowID]bool)
		for _, f := range b.backend.PlaceBatch(placements) {
			rejected[f.ID] = true
			b.logger.Warn("placement failed", "window", f.ID, "error", f.Err)
		}
		ok := 0
		for _, m := range atomic {
			if rejected[m.Window.Native] {
				failed++
				continue
			}
			applied = append(applied, b.commit(m))
			ok++
		}
		b.observe(ModeAtomic, ok)
	}

	if len(sequential) > 0 {
		ok := 0
		for _, m := range sequential {
			if b.backend == nil {
				failed++
				continue
			}
			if err := b.backend.MoveResize(m.Window.Native, b.native(m)); err != nil {
				b.logger.Warn("placement failed", "window", m.Window.Identity, "error", err)
				failed++
				continue
			}
			applied = append(applied, b.commit(m))
			ok++
		}
		b.observe(ModeSequential, ok)
	}

	if len(remote) > 0 {
		if b.remote == nil {
			b.logger.Warn("no remote placer, skipping proxies", "count", len(remote))
			failed += len(remote)
		} else {
			for _, m := range remote {
				b.remote.PlaceRemote(m.Window, m.Target)
				applied = append(applied, b.commit(m))
			}
			b.observe(ModeRemote, len(remote))
		}
	}

	if failed > 0 && b.observer != nil {
		b.observer.PlacementFailed(failed)
	}
	return applied
}

// native returns the rectangle to submit for a move, grown by the window's
// invisible shadow extents when the platform needs it.
func (b *Batcher) native(m bounds.Move) platform.Rect {
	if !b.backend.NeedsShadowCorrection(m.Window.Kind) {
		return m.Target
	}
	insets, err := b.backend.FrameInsets(m.Window.Native)
	if err != nil {
		b.logger.Debug("frame insets unavailable", "window", m.Window.Identity, "error", err)
		return m.Target
	}
	return insets.Expand(m.Target)
}

func (b *Batcher) commit(m bounds.Move) bounds.Move {
	m.Window.Bounds = m.Target
	return m
}

func (b *Batcher) observe(mode string, n int) {
	if b.observer != nil && n > 0 {
		b.observer.Placed(mode, n)
	}
}
