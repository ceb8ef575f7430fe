package mcp

import (
	"github.com/1broseidon/wingroup/internal/group"
	"github.com/1broseidon/wingroup/internal/ipc"
)

// WindowRef names a window. Owner defaults to the daemon's own runtime.
type WindowRef struct {
	Owner string `json:"owner,omitempty" jsonschema:"Runtime id owning the window (default: the daemon this server talks to)"`
	Name  string `json:"name" jsonschema:"required,Window name: an X11 window id such as 0x3a00007 or a title substring"`
}

func (r WindowRef) identity() group.Identity {
	return group.Identity{Owner: r.Owner, Name: r.Name}
}

// GetStatusInput is the input for the get_status tool.
type GetStatusInput struct{}

// ListGroupsInput is the input for the list_groups tool.
type ListGroupsInput struct{}

// PairInput is the input for the join_group and merge_groups tools.
type PairInput struct {
	Source WindowRef `json:"source" jsonschema:"required,Window that joins or whose group is merged"`
	Target WindowRef `json:"target" jsonschema:"required,Window whose group receives the source"`
}

// LeaveGroupInput is the input for the leave_group tool.
type LeaveGroupInput struct {
	Window WindowRef `json:"window" jsonschema:"required,Window to remove from its group"`
}

// GroupChangeOutput is returned by the membership tools.
type GroupChangeOutput struct {
	Groups []ipc.GroupInfo `json:"groups"`
}

// SetWindowBoundsInput is the input for the set_window_bounds tool.
type SetWindowBoundsInput struct {
	Window WindowRef `json:"window" jsonschema:"required,Window to place; its group follows"`
	X      int       `json:"x" jsonschema:"required,Left edge in pixels"`
	Y      int       `json:"y" jsonschema:"required,Top edge in pixels"`
	Width  int       `json:"width" jsonschema:"required,Width in pixels"`
	Height int       `json:"height" jsonschema:"required,Height in pixels"`
}

// MoveWindowInput is the input for the move_window tool.
type MoveWindowInput struct {
	Window WindowRef `json:"window" jsonschema:"required,Window to move; its group follows"`
	DX     int       `json:"dx,omitempty" jsonschema:"Horizontal offset in pixels"`
	DY     int       `json:"dy,omitempty" jsonschema:"Vertical offset in pixels"`
}
