package drag

import (
	"time"

	"github.com/1broseidon/wingroup/internal/group"
	"github.com/1broseidon/wingroup/internal/platform"
)

// DefaultQuietPeriod ends a gesture when no geometry notification arrived
// for this long. Window systems like X11 have no explicit drag-end signal.
const DefaultQuietPeriod = 250 * time.Millisecond

// Watcher turns a raw stream of geometry notifications into gesture
// begin/changing/end calls. Calls must come from the daemon loop.
type Watcher struct {
	coord     *Coordinator
	scheduler Scheduler
	quiet     time.Duration
	timers    map[*group.Window]func()
}

// NewWatcher creates a watcher driving coord.
func NewWatcher(coord *Coordinator, scheduler Scheduler, quiet time.Duration) *Watcher {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	return &Watcher{
		coord:     coord,
		scheduler: scheduler,
		quiet:     quiet,
		timers:    make(map[*group.Window]func()),
	}
}

// Observe handles a geometry notification for w. Echoes of our own
// placements (rect equal to the last placed bounds) and notifications for
// followers of a gesture are dropped.
func (w *Watcher) Observe(win *group.Window, rect platform.Rect) {
	if win == nil {
		return
	}
	if !win.Grouped() && !w.coord.Active(win) {
		win.Bounds = rect
		return
	}
	if rect == win.Bounds || w.coord.Suppressed(win) {
		return
	}

	w.coord.Changed(win, rect)

	if cancel, ok := w.timers[win]; ok {
		cancel()
	}
	w.timers[win] = w.scheduler.After(w.quiet, func() {
		delete(w.timers, win)
		w.coord.End(win)
	})
}

// Forget drops any pending gesture timer for win and ends its gesture.
func (w *Watcher) Forget(win *group.Window) {
	if cancel, ok := w.timers[win]; ok {
		cancel()
		delete(w.timers, win)
	}
	w.coord.End(win)
}
