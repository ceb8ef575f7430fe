// Package bounds computes the rectangles a whole group takes when its leader
// is moved or resized.
package bounds

import (
	"fmt"

	"github.com/1broseidon/wingroup/internal/group"
	"github.com/1broseidon/wingroup/internal/platform"
)

// Membership resolves the ordered member list of a window's group.
// *group.Registry satisfies it.
type Membership interface {
	GroupOf(w *group.Window) []*group.Window
}

// Move is one member's computed target rectangle.
type Move struct {
	Window *group.Window
	Target platform.Rect
}

// Engine computes group moves. It never mutates windows.
type Engine struct {
	members Membership
}

// NewEngine creates an engine over the given membership source.
func NewEngine(members Membership) *Engine {
	return &Engine{members: members}
}

// ComputeMoves returns the moves that bring leader to requested while keeping
// the group consistent. Only members whose rectangle changes are returned,
// leader first. When a member's size limits force the leader to a different
// rectangle than requested, a *ConstraintViolation is returned instead.
//
// Each axis is handled independently:
//   - Pure translation shifts every member by the same amount.
//   - A resize that moves one edge of the leader resizes every member sharing
//     that edge by the same amount, and pushes members lying entirely beyond
//     it. Limits are applied in membership order starting at the leader; each
//     member reduces the propagated amount to what it can absorb.
//   - A resize that moves both edges resizes with the near edge held, then
//     translates the whole group.
func (e *Engine) ComputeMoves(leader *group.Window, requested platform.Rect) ([]Move, error) {
	if leader == nil {
		return nil, fmt.Errorf("compute moves: nil leader")
	}
	if requested.Width <= 0 || requested.Height <= 0 {
		return nil, fmt.Errorf("compute moves for %s: invalid rectangle %s", leader.Identity, requested)
	}

	members := e.ordered(leader)
	targets := make([]platform.Rect, len(members))
	for i, m := range members {
		targets[i] = m.Bounds
	}

	blocker := -1
	for _, ax := range []axis{horizontal, vertical} {
		if b := propagate(ax, members, targets, requested); b >= 0 && blocker < 0 {
			blocker = b
		}
	}

	if targets[0] != requested {
		if blocker < 0 {
			blocker = 0
		}
		return nil, &ConstraintViolation{
			Leader:     leader.Identity,
			Requested:  requested,
			Achievable: targets[0],
			Blocker:    members[blocker].Identity,
		}
	}

	var moves []Move
	for i, m := range members {
		if m.Bounds.Moved(targets[i]) {
			moves = append(moves, Move{Window: m, Target: targets[i]})
		}
	}
	return moves, nil
}

// ordered returns the leader's group rotated so the leader comes first.
func (e *Engine) ordered(leader *group.Window) []*group.Window {
	var members []*group.Window
	if e.members != nil {
		members = e.members.GroupOf(leader)
	}
	for i, m := range members {
		if m == leader {
			out := make([]*group.Window, 0, len(members))
			out = append(out, members[i:]...)
			return append(out, members[:i]...)
		}
	}
	return append([]*group.Window{leader}, members...)
}

type axis struct {
	span  func(platform.Rect) (pos, size int)
	with  func(r platform.Rect, pos, size int) platform.Rect
	clamp func(c platform.Constraints, size int) int
}

var horizontal = axis{
	span: func(r platform.Rect) (int, int) { return r.X, r.Width },
	with: func(r platform.Rect, pos, size int) platform.Rect {
		r.X, r.Width = pos, size
		return r
	},
	clamp: platform.Constraints.ClampWidth,
}

var vertical = axis{
	span: func(r platform.Rect) (int, int) { return r.Y, r.Height },
	with: func(r platform.Rect, pos, size int) platform.Rect {
		r.Y, r.Height = pos, size
		return r
	},
	clamp: platform.Constraints.ClampHeight,
}

// propagate updates targets along one axis and returns the index of the
// member that limited the resize, or -1.
func propagate(ax axis, members []*group.Window, targets []platform.Rect, requested platform.Rect) int {
	near, size := ax.span(targets[0])
	far := near + size
	reqPos, reqSize := ax.span(requested)
	dPos, dSize := reqPos-near, reqSize-size

	switch {
	case dSize == 0:
		translate(ax, targets, dPos)
		return -1

	case dPos == -dSize:
		// Far edge held, near edge moves.
		aligned := func(i int) bool {
			pos, _ := ax.span(targets[i])
			return i == 0 || pos == near
		}
		realized, blocker := absorb(ax, members, targets, dSize, aligned)
		for i := range targets {
			pos, sz := ax.span(targets[i])
			switch {
			case aligned(i):
				targets[i] = ax.with(targets[i], pos-realized, sz+realized)
			case pos+sz <= near:
				targets[i] = ax.with(targets[i], pos-realized, sz)
			}
		}
		return blocker

	default:
		// Near edge held, far edge moves; then shift by any origin change.
		aligned := func(i int) bool {
			pos, sz := ax.span(targets[i])
			return i == 0 || pos+sz == far
		}
		realized, blocker := absorb(ax, members, targets, dSize, aligned)
		for i := range targets {
			pos, sz := ax.span(targets[i])
			switch {
			case aligned(i):
				targets[i] = ax.with(targets[i], pos, sz+realized)
			case pos >= far:
				targets[i] = ax.with(targets[i], pos+realized, sz)
			}
		}
		translate(ax, targets, dPos)
		return blocker
	}
}

// absorb walks the aligned members in order and shrinks the size change to
// what every one of them can take.
func absorb(ax axis, members []*group.Window, targets []platform.Rect, delta int, aligned func(int) bool) (int, int) {
	realized, blocker := delta, -1
	for i, m := range members {
		if !aligned(i) {
			continue
		}
		_, size := ax.span(targets[i])
		allowed := ax.clamp(m.Constraints, size+realized) - size
		switch {
		case delta > 0 && allowed < realized:
			realized = max(allowed, 0)
			blocker = i
		case delta < 0 && allowed > realized:
			realized = min(allowed, 0)
			blocker = i
		}
	}
	return realized, blocker
}

func translate(ax axis, targets []platform.Rect, d int) {
	if d == 0 {
		return
	}
	for i := range targets {
		pos, size := ax.span(targets[i])
		targets[i] = ax.with(targets[i], pos+d, size)
	}
}
