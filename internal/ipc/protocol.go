package ipc

import (
	"encoding/json"
	"fmt"

	"github.com/1broseidon/wingroup/internal/group"
	"github.com/1broseidon/wingroup/internal/platform"
	"github.com/1broseidon/wingroup/internal/remote"
)

// CommandType represents different IPC command types
type CommandType string

// Client commands, used by the CLI, hotkeys and the MCP server.
const (
	CommandReload      CommandType = "RELOAD"
	CommandGetStatus   CommandType = "GET_STATUS"
	CommandListGroups  CommandType = "LIST_GROUPS"
	CommandJoinGroup   CommandType = "JOIN_GROUP"
	CommandLeaveGroup  CommandType = "LEAVE_GROUP"
	CommandMergeGroups CommandType = "MERGE_GROUPS"
	CommandSetBounds   CommandType = "SET_BOUNDS"
	CommandMoveTo      CommandType = "MOVE_TO"
	CommandMoveBy      CommandType = "MOVE_BY"
	CommandResizeTo    CommandType = "RESIZE_TO"
	CommandBeginDrag   CommandType = "BEGIN_DRAG"
	CommandDragTo      CommandType = "DRAG_TO"
	CommandEndDrag     CommandType = "END_DRAG"
)

// Peer commands, exchanged between daemons of the same mesh.
const (
	CommandResolveWindow      CommandType = "RESOLVE_WINDOW"
	CommandGroupMembers       CommandType = remote.ActionMembers
	CommandRemoteLeave        CommandType = remote.ActionLeave
	CommandWatchWindow        CommandType = remote.ActionWatch
	CommandRemoteGroupChanged CommandType = remote.ActionGroupChanged
	CommandRemoteSetBounds    CommandType = remote.ActionSetBounds
)

// Request represents an IPC request from client to server
type Request struct {
	Command CommandType     `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response represents an IPC response from server to client
type Response struct {
	Status string          `json:"status"` // "OK" or "ERROR"
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
	// Code classifies errors the caller may want to match on.
	Code string `json:"code,omitempty"`
}

// Error codes carried by error responses.
const (
	CodeConstraintViolation = "CONSTRAINT_VIOLATION"
	CodeNotFound            = "NOT_FOUND"
	CodeResolution          = "RESOLUTION_FAILED"
)

// StatusData represents the data returned by GET_STATUS
type StatusData struct {
	RuntimeID     string   `json:"runtime_id"`
	Backend       string   `json:"backend"`
	Windows       int      `json:"windows"`
	Groups        int      `json:"groups"`
	Proxies       int      `json:"proxies"`
	Peers         []string `json:"peers,omitempty"`
	UptimeSeconds int64    `json:"uptime_seconds"`
	DaemonRunning bool     `json:"daemon_running"`
}

// WindowInfo describes one tracked window.
type WindowInfo struct {
	Window group.Identity `json:"window"`
	Kind   string         `json:"kind"`
	Bounds platform.Rect  `json:"bounds"`
}

// GroupInfo describes one group with members in membership order.
type GroupInfo struct {
	ID      string       `json:"group_uuid"`
	Members []WindowInfo `json:"members"`
}

// GroupsData represents the data returned by LIST_GROUPS
type GroupsData struct {
	Groups    []GroupInfo  `json:"groups"`
	Ungrouped []WindowInfo `json:"ungrouped,omitempty"`
}

// WindowPayload names a single window (LEAVE_GROUP, BEGIN_DRAG, END_DRAG).
type WindowPayload struct {
	Window group.Identity `json:"window"`
}

// PairPayload is the payload for JOIN_GROUP and MERGE_GROUPS.
type PairPayload struct {
	Source group.Identity `json:"source"`
	Target group.Identity `json:"target"`
}

// BoundsPayload is the payload for SET_BOUNDS and DRAG_TO.
type BoundsPayload struct {
	Window group.Identity `json:"window"`
	Bounds platform.Rect  `json:"bounds"`
}

// MoveToPayload is the payload for MOVE_TO.
type MoveToPayload struct {
	Window group.Identity `json:"window"`
	X      int            `json:"x"`
	Y      int            `json:"y"`
}

// MoveByPayload is the payload for MOVE_BY.
type MoveByPayload struct {
	Window group.Identity `json:"window"`
	DX     int            `json:"dx"`
	DY     int            `json:"dy"`
}

// ResizeToPayload is the payload for RESIZE_TO.
type ResizeToPayload struct {
	Window group.Identity `json:"window"`
	Width  int            `json:"width"`
	Height int            `json:"height"`
}

// BoundsData is returned by the bounds commands: the leader's new rect and
// every member that moved.
type BoundsData struct {
	Window group.Identity `json:"window"`
	Bounds platform.Rect  `json:"bounds"`
	Moved  []WindowInfo   `json:"moved,omitempty"`
}

// ResolvePayload is the payload for RESOLVE_WINDOW.
type ResolvePayload struct {
	Window group.Identity `json:"window"`
}

// NewOKResponse creates a successful response with optional data
func NewOKResponse(data interface{}) (*Response, error) {
	var dataBytes json.RawMessage
	if data != nil {
		bytes, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response data: %w", err)
		}
		dataBytes = bytes
	}

	return &Response{
		Status: "OK",
		Data:   dataBytes,
	}, nil
}

// NewErrorResponse creates an error response with a message
func NewErrorResponse(errMsg string) *Response {
	return &Response{
		Status: "ERROR",
		Error:  errMsg,
	}
}

// ParseRequest parses a request from JSON bytes
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return &req, nil
}

// Marshal converts a response to JSON bytes
func (r *Response) Marshal() ([]byte, error) {
	return json.Marshal(r)
}
