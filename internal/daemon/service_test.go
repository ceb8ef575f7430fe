package daemon

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/1broseidon/wingroup/internal/bounds"
	"github.com/1broseidon/wingroup/internal/config"
	"github.com/1broseidon/wingroup/internal/event"
	"github.com/1broseidon/wingroup/internal/group"
	"github.com/1broseidon/wingroup/internal/ipc"
	"github.com/1broseidon/wingroup/internal/loop"
	"github.com/1broseidon/wingroup/internal/platform"
	"github.com/1broseidon/wingroup/internal/remote"
)

type harness struct {
	t       *testing.T
	backend *platform.MemoryBackend
	svc     *Service
	ctx     context.Context

	mu     sync.Mutex
	events []event.Event
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Drag.QuietPeriodMs = 20
	if mutate != nil {
		mutate(cfg)
	}
	h := &harness{t: t, backend: platform.NewMemoryBackend(platform.MemoryOptions{Atomic: true})}

	svc, err := New(Options{
		Config:      cfg,
		Backend:     h.backend,
		BackendName: "memory",
		Logger:      slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.svc = svc
	svc.Events().Subscribe(event.TypeBoundsChanged, h.record)
	svc.Events().Subscribe(event.TypeGroupChanged, h.record)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	h.ctx = ctx
	return h
}

func (h *harness) record(e event.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, e)
}

func (h *harness) boundsChanged() []event.BoundsChanged {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []event.BoundsChanged
	for _, e := range h.events {
		if bc, ok := e.(event.BoundsChanged); ok {
			out = append(out, bc)
		}
	}
	return out
}

func (h *harness) add(name string, r platform.Rect, c platform.Constraints) platform.WindowID {
	return h.backend.AddWindow(name, r, c)
}

// flush waits until every task posted so far has run.
func (h *harness) flush() {
	h.t.Helper()
	if err := h.svc.loop.Call(h.ctx, func() error { return nil }); err != nil {
		h.t.Fatalf("flush: %v", err)
	}
}

func (h *harness) geometry(id platform.WindowID) platform.Rect {
	h.t.Helper()
	r, err := h.backend.Geometry(id)
	if err != nil {
		h.t.Fatalf("geometry: %v", err)
	}
	return r
}

func (h *harness) listGroups() ipc.GroupsData {
	h.t.Helper()
	data, err := h.svc.ListGroups(h.ctx)
	if err != nil {
		h.t.Fatalf("ListGroups: %v", err)
	}
	return data
}

func (h *harness) status() ipc.StatusData {
	h.t.Helper()
	status, err := h.svc.Status(h.ctx)
	if err != nil {
		h.t.Fatalf("Status: %v", err)
	}
	return status
}

func local(name string) group.Identity {
	return group.Identity{Name: name}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestJoinAndListGroups(t *testing.T) {
	h := newHarness(t, nil)
	h.add("a", platform.Rect{Width: 100, Height: 100}, platform.Constraints{})
	h.add("b", platform.Rect{X: 100, Width: 100, Height: 100}, platform.Constraints{})
	h.add("c", platform.Rect{X: 200, Width: 100, Height: 100}, platform.Constraints{})

	if err := h.svc.JoinGroup(h.ctx, local("b"), local("a")); err != nil {
		t.Fatalf("JoinGroup: %v", err)
	}
	if err := h.svc.LeaveGroup(h.ctx, local("c")); err != nil {
		t.Fatal(err)
	}

	data := h.listGroups()
	if len(data.Groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(data.Groups))
	}
	members := data.Groups[0].Members
	if len(members) != 2 || members[0].Window.Name != "a" || members[1].Window.Name != "b" {
		t.Fatalf("unexpected members %+v", members)
	}
	if members[0].Window.Owner != DefaultRuntimeID {
		t.Errorf("owner = %q, want %q", members[0].Window.Owner, DefaultRuntimeID)
	}
	if len(data.Ungrouped) != 1 || data.Ungrouped[0].Window.Name != "c" {
		t.Errorf("expected c ungrouped, got %+v", data.Ungrouped)
	}

	status := h.status()
	if status.Windows != 3 || status.Groups != 1 || status.Proxies != 0 {
		t.Errorf("unexpected status %+v", status)
	}

	if err := h.svc.LeaveGroup(h.ctx, local("a")); err != nil {
		t.Fatalf("LeaveGroup: %v", err)
	}
	if got := len(h.listGroups().Groups); got != 0 {
		t.Errorf("a group of one should disband, got %d groups", got)
	}
}

func TestMergeGroups(t *testing.T) {
	h := newHarness(t, nil)
	for _, name := range []string{"a", "b", "c", "d"} {
		h.add(name, platform.Rect{Width: 100, Height: 100}, platform.Constraints{})
	}
	if err := h.svc.JoinGroup(h.ctx, local("b"), local("a")); err != nil {
		t.Fatal(err)
	}
	if err := h.svc.JoinGroup(h.ctx, local("d"), local("c")); err != nil {
		t.Fatal(err)
	}
	if err := h.svc.MergeGroups(h.ctx, local("c"), local("a")); err != nil {
		t.Fatalf("MergeGroups: %v", err)
	}

	groups := h.listGroups().Groups
	if len(groups) != 1 || len(groups[0].Members) != 4 {
		t.Fatalf("expected one group of 4, got %+v", groups)
	}
}

func TestUnknownWindow(t *testing.T) {
	h := newHarness(t, nil)
	h.add("a", platform.Rect{Width: 100, Height: 100}, platform.Constraints{})

	err := h.svc.JoinGroup(h.ctx, local("missing"), local("a"))
	if !errors.Is(err, platform.ErrWindowNotFound) {
		t.Errorf("expected ErrWindowNotFound, got %v", err)
	}
	err = h.svc.JoinGroup(h.ctx, group.Identity{Owner: "elsewhere", Name: "x"}, local("a"))
	if !errors.Is(err, platform.ErrWindowNotFound) {
		t.Errorf("remote windows without a mesh should not resolve, got %v", err)
	}
}

func TestMoveByPropagates(t *testing.T) {
	h := newHarness(t, nil)
	a := h.add("a", platform.Rect{Width: 100, Height: 100}, platform.Constraints{})
	b := h.add("b", platform.Rect{X: 100, Width: 100, Height: 100}, platform.Constraints{})
	if err := h.svc.JoinGroup(h.ctx, local("b"), local("a")); err != nil {
		t.Fatal(err)
	}

	data, err := h.svc.MoveBy(h.ctx, local("a"), 10, 5)
	if err != nil {
		t.Fatalf("MoveBy: %v", err)
	}
	if data.Bounds != (platform.Rect{X: 10, Y: 5, Width: 100, Height: 100}) {
		t.Errorf("leader bounds = %v", data.Bounds)
	}
	if len(data.Moved) != 2 {
		t.Errorf("expected 2 moved windows, got %d", len(data.Moved))
	}
	if got := h.geometry(a); got.X != 10 || got.Y != 5 {
		t.Errorf("a native geometry = %v", got)
	}
	if got := h.geometry(b); got.X != 110 || got.Y != 5 {
		t.Errorf("b native geometry = %v", got)
	}
	if txs := h.backend.Transactions(); len(txs) != 1 || len(txs[0]) != 2 {
		t.Errorf("expected one atomic transaction of 2, got %v", txs)
	}

	changed := h.boundsChanged()
	if len(changed) != 2 {
		t.Fatalf("expected 2 bounds-changed events, got %d", len(changed))
	}
	for _, e := range changed {
		want := event.ReasonGroup
		if e.Window.Name == "a" {
			want = event.ReasonSelf
		}
		if e.Reason != want || e.Deferred {
			t.Errorf("%s: reason %s deferred %v", e.Window.Name, e.Reason, e.Deferred)
		}
	}
}

func TestMoveToTranslatesGroup(t *testing.T) {
	h := newHarness(t, nil)
	h.add("a", platform.Rect{X: 10, Y: 10, Width: 100, Height: 100}, platform.Constraints{})
	b := h.add("b", platform.Rect{X: 110, Y: 10, Width: 100, Height: 100}, platform.Constraints{})
	if err := h.svc.JoinGroup(h.ctx, local("b"), local("a")); err != nil {
		t.Fatal(err)
	}

	data, err := h.svc.MoveTo(h.ctx, local("a"), 0, 0)
	if err != nil {
		t.Fatalf("MoveTo: %v", err)
	}
	if data.Bounds.X != 0 || data.Bounds.Y != 0 || data.Bounds.Width != 100 {
		t.Errorf("leader bounds = %v", data.Bounds)
	}
	if got := h.geometry(b); got != (platform.Rect{X: 100, Width: 100, Height: 100}) {
		t.Errorf("b = %v, want translated by (-10,-10)", got)
	}
}

func TestResizeRejectedByConstraint(t *testing.T) {
	h := newHarness(t, nil)
	h.add("a", platform.Rect{Width: 100, Height: 100}, platform.Constraints{})
	b := h.add("b", platform.Rect{Y: 100, Width: 100, Height: 100}, platform.Constraints{MinWidth: 90})
	if err := h.svc.JoinGroup(h.ctx, local("b"), local("a")); err != nil {
		t.Fatal(err)
	}

	_, err := h.svc.ResizeTo(h.ctx, local("a"), 50, 100)
	if !errors.Is(err, bounds.ErrConstraintViolation) {
		t.Fatalf("expected constraint violation, got %v", err)
	}
	var cv *bounds.ConstraintViolation
	if errors.As(err, &cv) && cv.Blocker.Name != "b" {
		t.Errorf("blocker = %s, want b", cv.Blocker)
	}
	if got := h.geometry(b); got.Width != 100 {
		t.Errorf("nothing should be placed, b = %v", got)
	}
	if len(h.backend.Transactions()) != 0 {
		t.Error("rejected request must not place anything")
	}
}

func TestSetBoundsUngrouped(t *testing.T) {
	h := newHarness(t, nil)
	a := h.add("a", platform.Rect{Width: 100, Height: 100}, platform.Constraints{})

	want := platform.Rect{X: 40, Y: 40, Width: 300, Height: 200}
	data, err := h.svc.SetBounds(h.ctx, local("a"), want)
	if err != nil {
		t.Fatalf("SetBounds: %v", err)
	}
	if data.Bounds != want || h.geometry(a) != want {
		t.Errorf("bounds = %v, native = %v", data.Bounds, h.geometry(a))
	}
}

func TestUserMoveDrivesGroup(t *testing.T) {
	h := newHarness(t, nil)
	a := h.add("a", platform.Rect{Width: 100, Height: 100}, platform.Constraints{})
	b := h.add("b", platform.Rect{X: 100, Width: 100, Height: 100}, platform.Constraints{})
	if err := h.svc.JoinGroup(h.ctx, local("b"), local("a")); err != nil {
		t.Fatal(err)
	}

	if err := h.backend.UserMove(a, platform.Rect{X: 30, Width: 100, Height: 100}); err != nil {
		t.Fatal(err)
	}
	h.flush()
	if got := h.geometry(b); got.X != 130 {
		t.Errorf("follower should track the user move, got %v", got)
	}

	waitFor(t, func() bool { return len(h.boundsChanged()) == 2 })
	for _, e := range h.boundsChanged() {
		if !e.Deferred {
			t.Errorf("%s: gesture events should be deferred", e.Window.Name)
		}
	}
}

func TestRejectedUserResizeRestoresLeader(t *testing.T) {
	h := newHarness(t, nil)
	a := h.add("a", platform.Rect{Width: 100, Height: 100}, platform.Constraints{})
	b := h.add("b", platform.Rect{Y: 100, Width: 100, Height: 100}, platform.Constraints{MinWidth: 90})
	if err := h.svc.JoinGroup(h.ctx, local("b"), local("a")); err != nil {
		t.Fatal(err)
	}

	// b shares a's right edge and cannot shrink below 90.
	if err := h.backend.UserMove(a, platform.Rect{Width: 50, Height: 100}); err != nil {
		t.Fatal(err)
	}
	h.flush()
	time.Sleep(60 * time.Millisecond)
	h.flush()

	want := platform.Rect{Width: 100, Height: 100}
	if got := h.geometry(a); got != want {
		t.Errorf("leader should be put back, native a = %v", got)
	}
	if got := h.geometry(b); got != (platform.Rect{Y: 100, Width: 100, Height: 100}) {
		t.Errorf("follower should not move, native b = %v", got)
	}
	for _, m := range h.listGroups().Groups[0].Members {
		if m.Window.Name == "a" && m.Bounds != want {
			t.Errorf("registry a = %v, want %v", m.Bounds, want)
		}
	}
	if n := len(h.boundsChanged()); n != 0 {
		t.Errorf("nothing moved, got %d bounds-changed events", n)
	}
}

func TestStatusAfterStop(t *testing.T) {
	cfg := config.DefaultConfig()
	svc, err := New(Options{
		Config:  cfg,
		Backend: platform.NewMemoryBackend(platform.MemoryOptions{}),
		Logger:  slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	if _, err := svc.Status(context.Background()); !errors.Is(err, loop.ErrStopped) {
		t.Errorf("Status error = %v, want %v", err, loop.ErrStopped)
	}
	if _, err := svc.ListGroups(context.Background()); !errors.Is(err, loop.ErrStopped) {
		t.Errorf("ListGroups error = %v, want %v", err, loop.ErrStopped)
	}
}

func TestDragCommands(t *testing.T) {
	h := newHarness(t, nil)
	h.add("a", platform.Rect{Width: 100, Height: 100}, platform.Constraints{})
	b := h.add("b", platform.Rect{X: 100, Width: 100, Height: 100}, platform.Constraints{})
	if err := h.svc.JoinGroup(h.ctx, local("b"), local("a")); err != nil {
		t.Fatal(err)
	}

	if err := h.svc.BeginDrag(h.ctx, local("a")); err != nil {
		t.Fatal(err)
	}
	for _, x := range []int{10, 20, 30} {
		if err := h.svc.DragTo(h.ctx, local("a"), platform.Rect{X: x, Width: 100, Height: 100}); err != nil {
			t.Fatal(err)
		}
	}
	if len(h.boundsChanged()) != 0 {
		t.Error("bounds-changed must wait for the end of the drag")
	}
	if err := h.svc.EndDrag(h.ctx, local("a")); err != nil {
		t.Fatal(err)
	}

	if got := h.geometry(b); got.X != 130 {
		t.Errorf("b = %v, want x=130", got)
	}
	if got := len(h.boundsChanged()); got != 2 {
		t.Errorf("expected one deferred event per member, got %d", got)
	}
}

func TestDestroyedWindowLeavesGroup(t *testing.T) {
	h := newHarness(t, nil)
	a := h.add("a", platform.Rect{Width: 100, Height: 100}, platform.Constraints{})
	h.add("b", platform.Rect{X: 100, Width: 100, Height: 100}, platform.Constraints{})
	if err := h.svc.JoinGroup(h.ctx, local("b"), local("a")); err != nil {
		t.Fatal(err)
	}

	h.backend.Destroy(a)
	h.flush()

	data := h.listGroups()
	if len(data.Groups) != 0 {
		t.Errorf("group should disband when a member is destroyed, got %+v", data.Groups)
	}
	if len(data.Ungrouped) != 1 || data.Ungrouped[0].Window.Name != "b" {
		t.Errorf("only b should remain tracked, got %+v", data.Ungrouped)
	}
}

func TestSweepForgetsVanishedWindows(t *testing.T) {
	h := newHarness(t, nil)
	a := h.add("a", platform.Rect{Width: 100, Height: 100}, platform.Constraints{})
	h.add("b", platform.Rect{X: 100, Width: 100, Height: 100}, platform.Constraints{})
	if err := h.svc.JoinGroup(h.ctx, local("b"), local("a")); err != nil {
		t.Fatal(err)
	}

	// Lose the destroy notification.
	h.backend.Unwatch(a)
	h.backend.Destroy(a)

	r := NewReconciler(ReconcilerConfig{Logger: slog.New(slog.DiscardHandler)}, h.svc)
	r.ReconcileNow(h.ctx)

	if got := h.status().Windows; got != 1 {
		t.Errorf("expected 1 tracked window after sweep, got %d", got)
	}
	if n, err := h.svc.Sweep(h.ctx); err != nil || n != 0 {
		t.Errorf("second sweep = %d, %v", n, err)
	}
}

func TestArmOrJoinActive(t *testing.T) {
	h := newHarness(t, nil)
	a := h.add("a", platform.Rect{Width: 100, Height: 100}, platform.Constraints{})
	b := h.add("b", platform.Rect{X: 100, Width: 100, Height: 100}, platform.Constraints{})

	h.backend.SetActive(a)
	if err := h.svc.ArmOrJoinActive(h.ctx); err != nil {
		t.Fatal(err)
	}
	if len(h.listGroups().Groups) != 0 {
		t.Fatal("first press should only arm")
	}

	h.backend.SetActive(b)
	if err := h.svc.ArmOrJoinActive(h.ctx); err != nil {
		t.Fatal(err)
	}
	groups := h.listGroups().Groups
	if len(groups) != 1 || groups[0].Members[0].Window.Name != "b" {
		t.Fatalf("armed window should join the focused window's group, got %+v", groups)
	}

	if err := h.svc.LeaveActive(h.ctx); err != nil {
		t.Fatal(err)
	}
	if len(h.listGroups().Groups) != 0 {
		t.Error("leave hotkey should disband the pair")
	}
}

func TestPeerHandlers(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.RuntimeID = "alpha" })
	h.add("a", platform.Rect{Width: 100, Height: 100}, platform.Constraints{MinWidth: 10})
	b := h.add("b", platform.Rect{X: 100, Width: 100, Height: 100}, platform.Constraints{})

	res, err := h.svc.ResolveWindow(h.ctx, group.Identity{Owner: "alpha", Name: "a"})
	if err != nil {
		t.Fatalf("ResolveWindow: %v", err)
	}
	if res.Handle != "a" || res.Constraints.MinWidth != 10 {
		t.Errorf("unexpected resolution %+v", res)
	}
	if _, err := h.svc.ResolveWindow(h.ctx, group.Identity{Owner: "beta", Name: "a"}); !errors.Is(err, platform.ErrWindowNotFound) {
		t.Errorf("windows of other owners must not resolve, got %v", err)
	}

	reply, err := h.svc.GroupMembers(h.ctx, remote.MembersRequest{Window: group.Identity{Owner: "alpha", Name: "a"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(reply.Members) != 1 || reply.GroupID != "" {
		t.Errorf("ungrouped window should be reported alone, got %+v", reply)
	}

	if err := h.svc.JoinGroup(h.ctx, local("b"), local("a")); err != nil {
		t.Fatal(err)
	}
	reply, err = h.svc.GroupMembers(h.ctx, remote.MembersRequest{Window: group.Identity{Owner: "alpha", Name: "b"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(reply.Members) != 2 || reply.Members[0].Window.Name != "a" {
		t.Errorf("unexpected members %+v", reply.Members)
	}

	target := platform.Rect{X: 500, Y: 500, Width: 100, Height: 100}
	if err := h.svc.RemoteSetBounds(h.ctx, remote.SetBoundsRequest{Window: group.Identity{Owner: "alpha", Name: "b"}, Bounds: target}); err != nil {
		t.Fatalf("RemoteSetBounds: %v", err)
	}
	if h.geometry(b) != target {
		t.Errorf("b = %v, want %v", h.geometry(b), target)
	}
	changed := h.boundsChanged()
	if len(changed) != 1 || changed[0].Window.Name != "b" || changed[0].Reason != event.ReasonGroup {
		t.Errorf("remote placement must not propagate, got %+v", changed)
	}

	// Without a mesh, remote notifications are no-ops.
	if err := h.svc.RemoteLeave(h.ctx, remote.LeaveRequest{Window: group.Identity{Owner: "beta", Name: "x"}}); err != nil {
		t.Error(err)
	}
}

func TestReload(t *testing.T) {
	var level slog.LevelVar
	cfg := config.DefaultConfig()
	backend := platform.NewMemoryBackend(platform.MemoryOptions{})
	svc, err := New(Options{
		Config:   cfg,
		Backend:  backend,
		Logger:   slog.New(slog.DiscardHandler),
		LogLevel: &level,
		LoadConfig: func() (*config.Config, error) {
			next := config.DefaultConfig()
			next.LogLevel = "debug"
			return next, nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if level.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", level.Level())
	}
	if svc.Config().LogLevel != "debug" {
		t.Error("reloaded config should be current")
	}

	svc.loadConfig = func() (*config.Config, error) { return nil, errors.New("broken") }
	if err := svc.Reload(); err == nil {
		t.Error("expected reload error")
	}
	if svc.Config().LogLevel != "debug" {
		t.Error("a failed reload must keep the previous config")
	}
}
