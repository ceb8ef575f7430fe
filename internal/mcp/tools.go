package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/wingroup/internal/ipc"
	"github.com/1broseidon/wingroup/internal/platform"
)

func (s *Server) handleGetStatus(_ context.Context, _ *mcpsdk.CallToolRequest, _ GetStatusInput) (*mcpsdk.CallToolResult, ipc.StatusData, error) {
	status, err := s.daemon.GetStatus()
	if err != nil {
		return nil, ipc.StatusData{}, fmt.Errorf("get_status: %w", err)
	}
	return nil, *status, nil
}

func (s *Server) handleListGroups(_ context.Context, _ *mcpsdk.CallToolRequest, _ ListGroupsInput) (*mcpsdk.CallToolResult, ipc.GroupsData, error) {
	data, err := s.daemon.ListGroups()
	if err != nil {
		return nil, ipc.GroupsData{}, fmt.Errorf("list_groups: %w", err)
	}
	if data.Groups == nil {
		data.Groups = []ipc.GroupInfo{}
	}
	return nil, *data, nil
}

func (s *Server) handleJoinGroup(_ context.Context, _ *mcpsdk.CallToolRequest, args PairInput) (*mcpsdk.CallToolResult, GroupChangeOutput, error) {
	if err := validatePair(args); err != nil {
		return nil, GroupChangeOutput{}, fmt.Errorf("join_group: %w", err)
	}
	if err := s.daemon.JoinGroup(args.Source.identity(), args.Target.identity()); err != nil {
		return nil, GroupChangeOutput{}, fmt.Errorf("join_group: %w", err)
	}
	s.logger.Info("mcp join", "source", args.Source.identity(), "target", args.Target.identity())
	return s.groupsAfter("join_group")
}

func (s *Server) handleLeaveGroup(_ context.Context, _ *mcpsdk.CallToolRequest, args LeaveGroupInput) (*mcpsdk.CallToolResult, GroupChangeOutput, error) {
	if args.Window.Name == "" {
		return nil, GroupChangeOutput{}, fmt.Errorf("leave_group: window name is required")
	}
	if err := s.daemon.LeaveGroup(args.Window.identity()); err != nil {
		return nil, GroupChangeOutput{}, fmt.Errorf("leave_group: %w", err)
	}
	return s.groupsAfter("leave_group")
}

func (s *Server) handleMergeGroups(_ context.Context, _ *mcpsdk.CallToolRequest, args PairInput) (*mcpsdk.CallToolResult, GroupChangeOutput, error) {
	if err := validatePair(args); err != nil {
		return nil, GroupChangeOutput{}, fmt.Errorf("merge_groups: %w", err)
	}
	if err := s.daemon.MergeGroups(args.Source.identity(), args.Target.identity()); err != nil {
		return nil, GroupChangeOutput{}, fmt.Errorf("merge_groups: %w", err)
	}
	return s.groupsAfter("merge_groups")
}

func (s *Server) handleSetWindowBounds(_ context.Context, _ *mcpsdk.CallToolRequest, args SetWindowBoundsInput) (*mcpsdk.CallToolResult, ipc.BoundsData, error) {
	if args.Window.Name == "" {
		return nil, ipc.BoundsData{}, fmt.Errorf("set_window_bounds: window name is required")
	}
	if args.Width <= 0 || args.Height <= 0 {
		return nil, ipc.BoundsData{}, fmt.Errorf("set_window_bounds: width and height must be positive")
	}
	r := platform.Rect{X: args.X, Y: args.Y, Width: args.Width, Height: args.Height}
	data, err := s.daemon.SetBounds(args.Window.identity(), r)
	if err != nil {
		return nil, ipc.BoundsData{}, fmt.Errorf("set_window_bounds: %w", err)
	}
	return nil, *data, nil
}

func (s *Server) handleMoveWindow(_ context.Context, _ *mcpsdk.CallToolRequest, args MoveWindowInput) (*mcpsdk.CallToolResult, ipc.BoundsData, error) {
	if args.Window.Name == "" {
		return nil, ipc.BoundsData{}, fmt.Errorf("move_window: window name is required")
	}
	data, err := s.daemon.MoveBy(args.Window.identity(), args.DX, args.DY)
	if err != nil {
		return nil, ipc.BoundsData{}, fmt.Errorf("move_window: %w", err)
	}
	return nil, *data, nil
}

func (s *Server) groupsAfter(tool string) (*mcpsdk.CallToolResult, GroupChangeOutput, error) {
	data, err := s.daemon.ListGroups()
	if err != nil {
		return nil, GroupChangeOutput{}, fmt.Errorf("%s: list groups: %w", tool, err)
	}
	out := GroupChangeOutput{Groups: data.Groups}
	if out.Groups == nil {
		out.Groups = []ipc.GroupInfo{}
	}
	return nil, out, nil
}

func validatePair(args PairInput) error {
	if args.Source.Name == "" || args.Target.Name == "" {
		return fmt.Errorf("source and target names are required")
	}
	return nil
}
