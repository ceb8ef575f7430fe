// Package mcp exposes window-group operations as MCP tools over stdio, backed
// by a running daemon.
package mcp

import (
	"context"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/wingroup/internal/group"
	"github.com/1broseidon/wingroup/internal/ipc"
	"github.com/1broseidon/wingroup/internal/platform"
)

const (
	ServerName    = "wingroup"
	ServerVersion = "0.1.0"
)

// Daemon is the subset of the IPC client the tools use.
type Daemon interface {
	GetStatus() (*ipc.StatusData, error)
	ListGroups() (*ipc.GroupsData, error)
	JoinGroup(source, target group.Identity) error
	LeaveGroup(w group.Identity) error
	MergeGroups(source, target group.Identity) error
	SetBounds(w group.Identity, r platform.Rect) (*ipc.BoundsData, error)
	MoveBy(w group.Identity, dx, dy int) (*ipc.BoundsData, error)
}

// Server is the MCP server for window groups.
type Server struct {
	mcpServer *mcpsdk.Server
	daemon    Daemon
	logger    *slog.Logger
}

// NewServer creates a server forwarding every tool call to daemon.
func NewServer(daemon Daemon, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{daemon: daemon, logger: logger}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    ServerName,
			Version: ServerVersion,
		},
		nil,
	)

	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport, blocking until done.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "get_status",
		Description: "Report the wingroup daemon's runtime id, backend, tracked window and group counts and configured peers.",
	}, s.handleGetStatus)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_groups",
		Description: "List every window group with its members in membership order, plus tracked windows that are not grouped.",
	}, s.handleListGroups)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "join_group",
		Description: "Add the source window to the target window's group. A grouped source leaves its current group first. Windows owned by peer runtimes are addressed with owner.",
	}, s.handleJoinGroup)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "leave_group",
		Description: "Remove a window from its group. The group disbands when fewer than two members remain.",
	}, s.handleLeaveGroup)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "merge_groups",
		Description: "Move every member of the source window's group into the target window's group.",
	}, s.handleMergeGroups)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "set_window_bounds",
		Description: "Place a window at an exact rectangle. Grouped members move or resize with it; the request fails without moving anything when a member's size limits cannot absorb it.",
	}, s.handleSetWindowBounds)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "move_window",
		Description: "Translate a window, and its whole group, by an offset.",
	}, s.handleMoveWindow)
}
