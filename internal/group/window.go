package group

import (
	"github.com/1broseidon/wingroup/internal/event"
	"github.com/1broseidon/wingroup/internal/platform"
)

// Identity names a window across the mesh. Owner is the runtime id of the
// process that owns the native window; Name is unique within that owner.
type Identity struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

func (id Identity) String() string {
	return id.Owner + "/" + id.Name
}

// Window is a group member. The registry keeps one *Window per identity and
// all mutation happens on the daemon loop.
type Window struct {
	Identity
	Native      platform.WindowID
	Bounds      platform.Rect
	Constraints platform.Constraints
	Kind        platform.Kind
	// GroupID is empty for ungrouped windows.
	GroupID string
}

// IsProxy reports whether the window is a stand-in for a peer-owned window.
func (w *Window) IsProxy() bool {
	return w.Kind == platform.KindRemoteProxy
}

// Grouped reports whether the window currently belongs to a group.
func (w *Window) Grouped() bool {
	return w.GroupID != ""
}

// Member returns the snapshot entry for the window.
func (w *Window) Member() event.Member {
	if w == nil {
		return event.Member{}
	}
	return event.Member{Owner: w.Owner, Name: w.Name}
}

// Snapshot returns the ordered snapshot of a member list.
func Snapshot(members []*Window) []event.Member {
	out := make([]event.Member, 0, len(members))
	for _, m := range members {
		out = append(out, m.Member())
	}
	return out
}
