package mcp

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/1broseidon/wingroup/internal/bounds"
	"github.com/1broseidon/wingroup/internal/group"
	"github.com/1broseidon/wingroup/internal/ipc"
	"github.com/1broseidon/wingroup/internal/platform"
)

type fakeDaemon struct {
	joins  [][2]group.Identity
	merges [][2]group.Identity
	leaves []group.Identity
	placed map[group.Identity]platform.Rect
	err    error
}

func (f *fakeDaemon) GetStatus() (*ipc.StatusData, error) {
	return &ipc.StatusData{RuntimeID: "alpha", Backend: "memory", DaemonRunning: true}, f.err
}

func (f *fakeDaemon) ListGroups() (*ipc.GroupsData, error) {
	if len(f.joins) == 0 {
		return &ipc.GroupsData{}, nil
	}
	j := f.joins[len(f.joins)-1]
	return &ipc.GroupsData{Groups: []ipc.GroupInfo{{
		ID:      "g1",
		Members: []ipc.WindowInfo{{Window: j[1]}, {Window: j[0]}},
	}}}, nil
}

func (f *fakeDaemon) JoinGroup(source, target group.Identity) error {
	if f.err != nil {
		return f.err
	}
	f.joins = append(f.joins, [2]group.Identity{source, target})
	return nil
}

func (f *fakeDaemon) LeaveGroup(w group.Identity) error {
	f.leaves = append(f.leaves, w)
	return f.err
}

func (f *fakeDaemon) MergeGroups(source, target group.Identity) error {
	f.merges = append(f.merges, [2]group.Identity{source, target})
	return f.err
}

func (f *fakeDaemon) SetBounds(w group.Identity, r platform.Rect) (*ipc.BoundsData, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.placed == nil {
		f.placed = make(map[group.Identity]platform.Rect)
	}
	f.placed[w] = r
	return &ipc.BoundsData{Window: w, Bounds: r}, nil
}

func (f *fakeDaemon) MoveBy(w group.Identity, dx, dy int) (*ipc.BoundsData, error) {
	return f.SetBounds(w, platform.Rect{X: dx, Y: dy, Width: 100, Height: 100})
}

func newTestServer(d *fakeDaemon) *Server {
	return NewServer(d, slog.New(slog.DiscardHandler))
}

func TestJoinGroupTool(t *testing.T) {
	d := &fakeDaemon{}
	s := newTestServer(d)
	ctx := context.Background()

	_, out, err := s.handleJoinGroup(ctx, nil, PairInput{
		Source: WindowRef{Name: "0x2"},
		Target: WindowRef{Owner: "beta", Name: "0x9"},
	})
	if err != nil {
		t.Fatalf("join_group: %v", err)
	}
	if len(d.joins) != 1 || d.joins[0][1] != (group.Identity{Owner: "beta", Name: "0x9"}) {
		t.Errorf("unexpected join %+v", d.joins)
	}
	if len(out.Groups) != 1 || len(out.Groups[0].Members) != 2 {
		t.Errorf("expected the resulting group, got %+v", out.Groups)
	}
}

func TestToolValidation(t *testing.T) {
	d := &fakeDaemon{}
	s := newTestServer(d)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{"join without target", func() error {
			_, _, err := s.handleJoinGroup(ctx, nil, PairInput{Source: WindowRef{Name: "a"}})
			return err
		}},
		{"merge without source", func() error {
			_, _, err := s.handleMergeGroups(ctx, nil, PairInput{Target: WindowRef{Name: "a"}})
			return err
		}},
		{"leave without name", func() error {
			_, _, err := s.handleLeaveGroup(ctx, nil, LeaveGroupInput{})
			return err
		}},
		{"bounds with zero width", func() error {
			_, _, err := s.handleSetWindowBounds(ctx, nil, SetWindowBoundsInput{Window: WindowRef{Name: "a"}, Height: 10})
			return err
		}},
		{"move without name", func() error {
			_, _, err := s.handleMoveWindow(ctx, nil, MoveWindowInput{DX: 1})
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
	if len(d.joins)+len(d.merges)+len(d.leaves)+len(d.placed) != 0 {
		t.Error("invalid input must not reach the daemon")
	}
}

func TestSetWindowBoundsTool(t *testing.T) {
	d := &fakeDaemon{}
	s := newTestServer(d)

	_, out, err := s.handleSetWindowBounds(context.Background(), nil, SetWindowBoundsInput{
		Window: WindowRef{Name: "a"}, X: 10, Y: 20, Width: 300, Height: 200,
	})
	if err != nil {
		t.Fatal(err)
	}
	want := platform.Rect{X: 10, Y: 20, Width: 300, Height: 200}
	if out.Bounds != want || d.placed[group.Identity{Name: "a"}] != want {
		t.Errorf("bounds = %v, want %v", out.Bounds, want)
	}
}

func TestDaemonErrorsSurface(t *testing.T) {
	d := &fakeDaemon{err: &ipc.DaemonError{Code: ipc.CodeConstraintViolation, Message: "limited by b"}}
	s := newTestServer(d)

	_, _, err := s.handleSetWindowBounds(context.Background(), nil, SetWindowBoundsInput{
		Window: WindowRef{Name: "a"}, Width: 10, Height: 10,
	})
	if !errors.Is(err, bounds.ErrConstraintViolation) {
		t.Errorf("expected constraint violation, got %v", err)
	}
	if err == nil || !strings.HasPrefix(err.Error(), "set_window_bounds:") {
		t.Errorf("errors should name the tool, got %v", err)
	}
}

func TestStatusAndEmptyGroups(t *testing.T) {
	s := newTestServer(&fakeDaemon{})
	ctx := context.Background()

	_, status, err := s.handleGetStatus(ctx, nil, GetStatusInput{})
	if err != nil || status.RuntimeID != "alpha" {
		t.Errorf("status = %+v, %v", status, err)
	}
	_, groups, err := s.handleListGroups(ctx, nil, ListGroupsInput{})
	if err != nil {
		t.Fatal(err)
	}
	if groups.Groups == nil {
		t.Error("groups should serialize as an empty list, not null")
	}
}
