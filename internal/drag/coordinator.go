// Package drag keeps a group together while the user drags or resizes one of
// its members.
package drag

import (
	"log/slog"
	"time"

	"github.com/1broseidon/wingroup/internal/bounds"
	"github.com/1broseidon/wingroup/internal/event"
	"github.com/1broseidon/wingroup/internal/group"
	"github.com/1broseidon/wingroup/internal/platform"
)

// DefaultPollInterval is the coalescing period for noisy notification sources.
const DefaultPollInterval = 33 * time.Millisecond

// CoalesceMode selects which gestures go through the coalescing poll.
type CoalesceMode string

const (
	// CoalesceNative coalesces gestures whose leader is not a local window,
	// since those notifications arrive from outside the process at whatever
	// rate the window system produces them.
	CoalesceNative CoalesceMode = "native"
	CoalesceAlways CoalesceMode = "always"
	CoalesceNever  CoalesceMode = "never"
)

// Planner computes group moves.
type Planner interface {
	ComputeMoves(leader *group.Window, requested platform.Rect) ([]bounds.Move, error)
}

// Placer applies moves without emitting events.
type Placer interface {
	Place(moves []bounds.Move) []bounds.Move
}

// InputControl toggles user-driven move/resize per window.
type InputControl interface {
	SupportsSelectiveInteractiveDisable(kind platform.Kind) bool
	SetInteractive(id platform.WindowID, enabled bool) error
}

// GeometryReader reads the current native bounds of a window.
type GeometryReader interface {
	Geometry(id platform.WindowID) (platform.Rect, error)
}

// Scheduler runs callbacks on the daemon loop.
type Scheduler interface {
	Every(d time.Duration, fn func()) (stop func())
	After(d time.Duration, fn func()) (cancel func())
}

// Options configures a Coordinator.
type Options struct {
	Planner      Planner
	Placer       Placer
	Members      bounds.Membership
	Input        InputControl
	Geometry     GeometryReader
	Sink         event.Sink
	Scheduler    Scheduler
	PollInterval time.Duration
	Coalesce     CoalesceMode
	// Settle is how long followers keep ignoring their own geometry
	// notifications after a gesture ends. Defaults to 4 poll intervals.
	Settle time.Duration
	Logger *slog.Logger
	Now    func() time.Time
}

// Coordinator tracks in-flight gestures, one per leader. All methods must be
// called from the daemon loop.
type Coordinator struct {
	opts      Options
	gestures  map[*group.Window]*gesture
	following map[*group.Window]*gesture
	settle    map[*group.Window]time.Time
	logger    *slog.Logger
}

type gesture struct {
	leader   *group.Window
	starts   map[*group.Window]platform.Rect
	moved    []*group.Window
	disabled []*group.Window
	pending  *platform.Rect
	stopPoll func()
	// applied is set when the window system already moved the leader before
	// we were told, so a rejected step has to be undone by hand.
	applied bool
}

// NewCoordinator creates an idle coordinator.
func NewCoordinator(opts Options) *Coordinator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Coalesce == "" {
		opts.Coalesce = CoalesceNative
	}
	if opts.Settle <= 0 {
		opts.Settle = 4 * opts.PollInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		opts:      opts,
		gestures:  make(map[*group.Window]*gesture),
		following: make(map[*group.Window]*gesture),
		settle:    make(map[*group.Window]time.Time),
		logger:    logger,
	}
}

// Active reports whether w leads an in-flight gesture.
func (c *Coordinator) Active(w *group.Window) bool {
	_, ok := c.gestures[w]
	return ok
}

// Suppressed reports whether geometry notifications for w should be ignored:
// w follows an in-flight gesture, or one that ended very recently.
func (c *Coordinator) Suppressed(w *group.Window) bool {
	if _, ok := c.following[w]; ok {
		return true
	}
	until, ok := c.settle[w]
	if !ok {
		return false
	}
	if c.opts.Now().Before(until) {
		return true
	}
	delete(c.settle, w)
	return false
}

// Begin starts a gesture for leader. Followers that support it have their
// interactive handling disabled; the others are intercepted in Changing.
func (c *Coordinator) Begin(leader *group.Window) {
	if leader == nil || c.Active(leader) {
		return
	}
	if _, ok := c.following[leader]; ok {
		return
	}

	g := &gesture{
		leader: leader,
		starts: map[*group.Window]platform.Rect{leader: leader.Bounds},
	}
	for _, m := range c.members(leader) {
		if m == leader {
			continue
		}
		g.starts[m] = m.Bounds
		c.following[m] = g
		if c.opts.Input != nil && c.opts.Input.SupportsSelectiveInteractiveDisable(m.Kind) {
			if err := c.opts.Input.SetInteractive(m.Native, false); err != nil {
				c.logger.Warn("failed to disable interactive handling", "window", m.Identity, "error", err)
				continue
			}
			g.disabled = append(g.disabled, m)
		}
	}
	c.gestures[leader] = g
	c.logger.Debug("gesture started", "leader", leader.Identity, "followers", len(g.starts)-1)
}

// Changing handles an intermediate bounds notification for w. It returns true
// when the window system's default handling must be prevented: always for a
// gesture leader, and for followers of a gesture, which are cancelled.
// Ungrouped windows outside any gesture are left alone.
func (c *Coordinator) Changing(w *group.Window, rect platform.Rect) bool {
	return c.changing(w, rect, false)
}

// Changed handles a notification for a change the window system has already
// made to w. A step the group cannot follow puts the leader back at its last
// accepted bounds.
func (c *Coordinator) Changed(w *group.Window, rect platform.Rect) {
	c.changing(w, rect, true)
}

func (c *Coordinator) changing(w *group.Window, rect platform.Rect, applied bool) bool {
	if w == nil {
		return false
	}
	if _, ok := c.following[w]; ok {
		return true
	}
	g, ok := c.gestures[w]
	if !ok {
		if !w.Grouped() {
			return false
		}
		c.Begin(w)
		g = c.gestures[w]
	}
	if applied {
		g.applied = true
	}

	if c.coalesce(w) {
		r := rect
		g.pending = &r
		if g.stopPoll == nil && c.opts.Scheduler != nil {
			g.stopPoll = c.opts.Scheduler.Every(c.opts.PollInterval, func() { c.flush(g) })
		}
		return true
	}

	c.step(g, rect)
	return true
}

// End finishes the gesture led by leader: the latest pending rectangle is
// applied, interactive handling is restored and one deferred bounds-changed
// is emitted per moved member.
func (c *Coordinator) End(leader *group.Window) {
	g, ok := c.gestures[leader]
	if !ok {
		return
	}
	if g.stopPoll != nil {
		g.stopPoll()
		g.stopPoll = nil
	}
	c.flush(g)
	c.reconcile(g)

	for _, m := range g.disabled {
		if err := c.opts.Input.SetInteractive(m.Native, true); err != nil {
			c.logger.Warn("failed to re-enable interactive handling", "window", m.Identity, "error", err)
		}
	}

	settleUntil := c.opts.Now().Add(c.opts.Settle)
	for m, owner := range c.following {
		if owner == g {
			delete(c.following, m)
			c.settle[m] = settleUntil
		}
	}
	delete(c.gestures, leader)

	if c.opts.Sink != nil {
		for _, m := range g.moved {
			reason := event.ReasonGroup
			if m == leader {
				reason = event.ReasonSelf
			}
			change := platform.Classify(g.starts[m], m.Bounds)
			c.opts.Sink.Publish(event.NewBoundsChanged(m.Member(), m.Bounds, change, reason, true))
		}
	}
	c.logger.Debug("gesture ended", "leader", leader.Identity, "moved", len(g.moved))
}

func (c *Coordinator) flush(g *gesture) {
	if g.pending == nil {
		return
	}
	rect := *g.pending
	g.pending = nil
	c.step(g, rect)
}

// reconcile compares the leader's native bounds with the last accepted ones
// once the gesture is over. A notification lost along the way would otherwise
// leave the leader somewhere the group never followed.
func (c *Coordinator) reconcile(g *gesture) {
	if !g.applied || c.opts.Geometry == nil || g.leader.IsProxy() {
		return
	}
	native, err := c.opts.Geometry.Geometry(g.leader.Native)
	if err != nil || native == g.leader.Bounds {
		return
	}
	c.step(g, native)
}

func (c *Coordinator) step(g *gesture, rect platform.Rect) {
	moves, err := c.opts.Planner.ComputeMoves(g.leader, rect)
	if err != nil {
		c.logger.Debug("drag step rejected", "leader", g.leader.Identity, "error", err)
		if g.applied {
			c.revert(g)
		}
		return
	}
	applied := c.opts.Placer.Place(moves)
	for _, m := range applied {
		g.touch(m.Window)
	}

	if c.opts.Sink != nil {
		change := platform.Classify(g.starts[g.leader], rect)
		c.opts.Sink.Publish(event.NewBoundsChanging(g.leader.Member(), rect, change, event.ReasonSelf))
	}
}

// revert puts the leader back where the group last agreed it was.
func (c *Coordinator) revert(g *gesture) {
	back := []bounds.Move{{Window: g.leader, Target: g.leader.Bounds}}
	if len(c.opts.Placer.Place(back)) == 0 {
		c.logger.Warn("failed to restore leader after rejected step", "leader", g.leader.Identity)
	}
}

func (c *Coordinator) coalesce(leader *group.Window) bool {
	switch c.opts.Coalesce {
	case CoalesceAlways:
		return true
	case CoalesceNever:
		return false
	default:
		return leader.Kind != platform.KindLocal
	}
}

func (c *Coordinator) members(leader *group.Window) []*group.Window {
	if c.opts.Members == nil {
		return nil
	}
	return c.opts.Members.GroupOf(leader)
}

func (g *gesture) touch(w *group.Window) {
	for _, m := range g.moved {
		if m == w {
			return
		}
	}
	g.moved = append(g.moved, w)
	if _, ok := g.starts[w]; !ok {
		g.starts[w] = w.Bounds
	}
}
