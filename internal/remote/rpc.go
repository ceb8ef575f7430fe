// Package remote mirrors windows owned by peer runtimes as local proxies and
// keeps group membership consistent across the mesh.
package remote

import (
	"context"
	"errors"

	"github.com/1broseidon/wingroup/internal/event"
	"github.com/1broseidon/wingroup/internal/group"
	"github.com/1broseidon/wingroup/internal/platform"
)

// ErrResolution is returned when an identity cannot be resolved on the mesh.
// Callers treat it as "not part of a cross-process group".
var ErrResolution = errors.New("remote resolution failed")

// Peer actions invoked through RPC.Invoke.
const (
	ActionMembers      = "GROUP_MEMBERS"
	ActionLeave        = "REMOTE_LEAVE"
	ActionWatch        = "WATCH_WINDOW"
	ActionGroupChanged = "REMOTE_GROUP_CHANGED"
	ActionSetBounds    = "REMOTE_SET_BOUNDS"
)

// PeerHandle addresses a peer runtime.
type PeerHandle struct {
	ID     string `json:"id"`
	Socket string `json:"socket"`
}

// Resolution describes a window on its owning peer.
type Resolution struct {
	Peer PeerHandle `json:"peer"`
	// Handle is the owner's native handle for the window.
	Handle      string               `json:"handle"`
	Bounds      platform.Rect        `json:"bounds"`
	Constraints platform.Constraints `json:"constraints"`
}

// RPC is the transport to peer runtimes.
type RPC interface {
	Resolve(ctx context.Context, id group.Identity) (Resolution, error)
	Invoke(ctx context.Context, peer PeerHandle, action string, payload, out any) error
	Peer(id string) (PeerHandle, bool)
}

// RemoteWindow is a window as reported by its owner.
type RemoteWindow struct {
	Window      group.Identity       `json:"window"`
	Bounds      platform.Rect        `json:"bounds"`
	Constraints platform.Constraints `json:"constraints"`
}

// MembersRequest asks the owner for the group of one of its windows.
type MembersRequest struct {
	Window group.Identity `json:"window"`
}

// MembersReply lists the owner's view of the group, in membership order.
type MembersReply struct {
	GroupID string         `json:"group_id,omitempty"`
	Members []RemoteWindow `json:"members"`
}

// LeaveRequest tells a peer that Window left every group it shared with the
// peer's windows.
type LeaveRequest struct {
	Window group.Identity `json:"window"`
}

// WatchRequest subscribes Subscriber to group changes involving Window.
type WatchRequest struct {
	Window     group.Identity `json:"window"`
	Subscriber string         `json:"subscriber"`
}

// GroupChangedNotice carries a group-changed event to a watching peer.
type GroupChangedNotice struct {
	From  string             `json:"from"`
	Event event.GroupChanged `json:"event"`
}

// SetBoundsRequest asks the owner to place one window, without propagating
// to its group.
type SetBoundsRequest struct {
	Window group.Identity `json:"window"`
	Bounds platform.Rect  `json:"bounds"`
}
