package remote

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/1broseidon/wingroup/internal/event"
	"github.com/1broseidon/wingroup/internal/group"
	"github.com/1broseidon/wingroup/internal/platform"
)

type invocation struct {
	peer    string
	action  string
	payload any
}

type fakeRPC struct {
	mu       sync.Mutex
	windows  map[group.Identity]Resolution
	members  map[group.Identity]MembersReply
	peers    map[string]PeerHandle
	calls    []invocation
	resolves int
	fail     error
}

func newFakeRPC() *fakeRPC {
	return &fakeRPC{
		windows: map[group.Identity]Resolution{},
		members: map[group.Identity]MembersReply{},
		peers: map[string]PeerHandle{
			"peer":  {ID: "peer", Socket: "/tmp/peer.sock"},
			"other": {ID: "other", Socket: "/tmp/other.sock"},
		},
	}
}

func (f *fakeRPC) Resolve(_ context.Context, id group.Identity) (Resolution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolves++
	res, ok := f.windows[id]
	if !ok {
		return Resolution{}, errors.New("unknown window")
	}
	return res, nil
}

func (f *fakeRPC) Invoke(_ context.Context, peer PeerHandle, action string, payload, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, invocation{peer: peer.ID, action: action, payload: payload})
	if f.fail != nil {
		return f.fail
	}
	if action == ActionMembers {
		req := payload.(MembersRequest)
		if reply, ok := out.(*MembersReply); ok {
			*reply = f.members[req.Window]
		}
	}
	return nil
}

func (f *fakeRPC) Peer(id string) (PeerHandle, bool) {
	p, ok := f.peers[id]
	return p, ok
}

func (f *fakeRPC) callsFor(action string) []invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []invocation
	for _, c := range f.calls {
		if c.action == action {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeRPC) waitFor(t *testing.T, action string, n int) []invocation {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if calls := f.callsFor(action); len(calls) >= n {
			return calls
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d %s calls, got %d", n, action, len(f.callsFor(action)))
	return nil
}

// directLoop runs calls inline, serialized by a mutex, standing in for the
// daemon loop.
type directLoop struct {
	mu sync.Mutex
}

func (l *directLoop) Call(_ context.Context, fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn()
}

type fixture struct {
	rpc      *fakeRPC
	loop     *directLoop
	registry *group.Registry
	rec      *event.Recorder
	mesh     *Mesh
}

func newFixture() *fixture {
	f := &fixture{rpc: newFakeRPC(), loop: &directLoop{}, rec: event.NewRecorder()}
	f.registry = group.NewRegistry(group.Options{Sink: f.rec})
	f.mesh = NewMesh(Options{
		Self:     "local",
		RPC:      f.rpc,
		Registry: f.registry,
		Loop:     f.loop,
		Sink:     f.rec,
	})
	f.registry.SetPeers(f.mesh)
	return f
}

func (f *fixture) local(name string) *group.Window {
	return f.registry.Track(group.Window{Identity: group.Identity{Owner: "local", Name: name}})
}

func (f *fixture) remoteWindow(owner, name string) group.Identity {
	id := group.Identity{Owner: owner, Name: name}
	f.rpc.windows[id] = Resolution{
		Peer:   f.rpc.peers[owner],
		Handle: "0x" + name,
		Bounds: platform.Rect{Width: 100, Height: 100},
	}
	return id
}

func TestGetOrCreateCachesProxy(t *testing.T) {
	f := newFixture()
	id := f.remoteWindow("peer", "r1")

	p, err := f.mesh.GetOrCreate(context.Background(), id)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if !p.StandIn.IsProxy() {
		t.Error("stand-in should be a remote proxy")
	}
	if p.Peer.ID != "peer" || p.Handle != "0xr1" {
		t.Errorf("unexpected proxy %+v", p)
	}
	if tracked, ok := f.registry.Lookup(id); !ok || tracked != p.StandIn {
		t.Error("stand-in should be tracked by the registry")
	}

	again, err := f.mesh.GetOrCreate(context.Background(), id)
	if err != nil || again != p {
		t.Error("second GetOrCreate should return the cached proxy")
	}
	if f.rpc.resolves != 1 {
		t.Errorf("expected a single resolution, got %d", f.rpc.resolves)
	}
	if len(f.rpc.callsFor(ActionWatch)) != 1 {
		t.Error("a new proxy should subscribe to the owner's group changes")
	}
}

func TestGetOrCreateResolutionFailure(t *testing.T) {
	f := newFixture()

	_, err := f.mesh.GetOrCreate(context.Background(), group.Identity{Owner: "peer", Name: "missing"})
	if !errors.Is(err, ErrResolution) {
		t.Errorf("expected ErrResolution, got %v", err)
	}
	if _, err := f.mesh.GetOrCreate(context.Background(), group.Identity{Owner: "local", Name: "a"}); err == nil {
		t.Error("local identities cannot be proxied")
	}
}

func TestJoinFlattensUpstreamGroup(t *testing.T) {
	f := newFixture()
	r1 := f.remoteWindow("peer", "r1")
	p, _ := f.mesh.GetOrCreate(context.Background(), r1)

	r2 := group.Identity{Owner: "peer", Name: "r2"}
	r3 := group.Identity{Owner: "other", Name: "r3"}
	f.rpc.members[r1] = MembersReply{Members: []RemoteWindow{
		{Window: r1},
		{Window: r2},
		{Window: r3},
		{Window: group.Identity{Owner: "local", Name: "a"}},
	}}
	if err := f.mesh.RefreshUpstream(context.Background(), p); err != nil {
		t.Fatalf("RefreshUpstream: %v", err)
	}

	a := f.local("a")
	f.registry.Join(a, p.StandIn)

	members := f.registry.GroupOf(a)
	if len(members) != 4 {
		t.Fatalf("expected flattened group of 4, got %d", len(members))
	}
	p3, ok := f.mesh.Lookup(r3)
	if !ok || p3.Peer.ID != "other" {
		t.Error("member owned by a third runtime should be proxied through its own peer")
	}
}

func TestLocalLeaveForwardedToOwners(t *testing.T) {
	f := newFixture()
	p1, _ := f.mesh.GetOrCreate(context.Background(), f.remoteWindow("peer", "r1"))
	p2, _ := f.mesh.GetOrCreate(context.Background(), f.remoteWindow("peer", "r2"))
	p3, _ := f.mesh.GetOrCreate(context.Background(), f.remoteWindow("other", "r3"))

	a := f.local("a")
	f.registry.Join(a, p1.StandIn)
	f.registry.Join(p2.StandIn, a)
	f.registry.Join(p3.StandIn, a)

	f.registry.Leave(a)

	calls := f.rpc.waitFor(t, ActionLeave, 2)
	peers := map[string]bool{}
	for _, c := range calls {
		peers[c.peer] = true
		if req := c.payload.(LeaveRequest); req.Window != a.Identity {
			t.Errorf("forwarded leave for %s, want %s", req.Window, a.Identity)
		}
	}
	if !peers["peer"] || !peers["other"] {
		t.Errorf("expected one leave per owning peer, got %v", peers)
	}
	if p1.StandIn.Grouped() {
		t.Error("a proxy-only group should disband locally")
	}
}

func TestLeaveForwardingFailureIsIgnored(t *testing.T) {
	f := newFixture()
	p1, _ := f.mesh.GetOrCreate(context.Background(), f.remoteWindow("peer", "r1"))
	f.rpc.fail = errors.New("connection refused")

	a, b := f.local("a"), f.local("b")
	f.registry.Join(a, p1.StandIn)
	f.registry.Join(b, a)
	f.registry.Leave(a)

	f.rpc.waitFor(t, ActionLeave, 1)
	if a.Grouped() {
		t.Error("local leave should stand regardless of forwarding errors")
	}
	if !b.Grouped() {
		t.Error("b and the proxy should still form a group")
	}
}

func TestRemoteLeaveDoesNotEcho(t *testing.T) {
	f := newFixture()
	p1, _ := f.mesh.GetOrCreate(context.Background(), f.remoteWindow("peer", "r1"))
	a, b := f.local("a"), f.local("b")
	f.registry.Join(a, b)
	f.registry.Join(p1.StandIn, a)

	err := f.mesh.HandleRemoteGroupChanged(context.Background(), GroupChangedNotice{
		From: "peer",
		Event: event.NewGroupChanged("remote-g", event.ReasonLeave,
			event.Member{Owner: "peer", Name: "r1"}, event.Member{}, nil, nil),
	})
	if err != nil {
		t.Fatalf("HandleRemoteGroupChanged: %v", err)
	}

	if p1.StandIn.Grouped() {
		t.Error("remote leave should remove the stand-in")
	}
	if !a.Grouped() || a.GroupID != b.GroupID {
		t.Error("local members should stay grouped")
	}
	time.Sleep(20 * time.Millisecond)
	if n := len(f.rpc.callsFor(ActionLeave)); n != 0 {
		t.Errorf("a mirrored leave must not be forwarded back, got %d calls", n)
	}
}

func TestRemoteJoinAddsStandIn(t *testing.T) {
	f := newFixture()
	p1, _ := f.mesh.GetOrCreate(context.Background(), f.remoteWindow("peer", "r1"))
	r2 := f.remoteWindow("peer", "r2")
	a := f.local("a")
	f.registry.Join(a, p1.StandIn)

	err := f.mesh.HandleRemoteGroupChanged(context.Background(), GroupChangedNotice{
		From: "peer",
		Event: event.NewGroupChanged("remote-g", event.ReasonJoin,
			event.Member{Owner: "peer", Name: "r2"}, event.Member{Owner: "peer", Name: "r1"}, nil, nil),
	})
	if err != nil {
		t.Fatalf("HandleRemoteGroupChanged: %v", err)
	}

	p2, ok := f.mesh.Lookup(r2)
	if !ok {
		t.Fatal("joining window should get a proxy")
	}
	if p2.StandIn.GroupID != a.GroupID {
		t.Error("stand-in should join the target's local group")
	}
}

func TestRemoteMergeBringsSourceGroup(t *testing.T) {
	f := newFixture()
	r1 := f.remoteWindow("peer", "r1")
	r2 := f.remoteWindow("peer", "r2")
	r3 := group.Identity{Owner: "peer", Name: "r3"}
	p1, _ := f.mesh.GetOrCreate(context.Background(), r1)
	a := f.local("a")
	f.registry.Join(a, p1.StandIn)

	// On the owner, {r2, r3} was merged into r1's group.
	merged := []RemoteWindow{{Window: r1}, {Window: r2}, {Window: r3}, {Window: group.Identity{Owner: "local", Name: "a"}}}
	f.rpc.members[r1] = MembersReply{GroupID: "remote-g", Members: merged}
	f.rpc.members[r2] = MembersReply{GroupID: "remote-g", Members: merged}

	err := f.mesh.HandleRemoteGroupChanged(context.Background(), GroupChangedNotice{
		From: "peer",
		Event: event.NewGroupChanged("remote-g", event.ReasonMerge,
			event.Member{Owner: "peer", Name: "r2"}, event.Member{Owner: "peer", Name: "r1"}, nil, nil),
	})
	if err != nil {
		t.Fatalf("HandleRemoteGroupChanged: %v", err)
	}

	for _, id := range []group.Identity{r2, r3} {
		p, ok := f.mesh.Lookup(id)
		if !ok {
			t.Fatalf("%s should get a proxy", id)
		}
		if p.StandIn.GroupID != a.GroupID {
			t.Errorf("%s should be in a's group", id)
		}
	}
	if got := len(f.registry.GroupOf(a)); got != 4 {
		t.Errorf("a's group has %d members, want 4", got)
	}
}

func TestRemoteMergeIntoUnknownTargetIgnored(t *testing.T) {
	f := newFixture()
	f.remoteWindow("peer", "r2")

	err := f.mesh.HandleRemoteGroupChanged(context.Background(), GroupChangedNotice{
		From: "peer",
		Event: event.NewGroupChanged("remote-g", event.ReasonMerge,
			event.Member{Owner: "peer", Name: "r2"}, event.Member{Owner: "peer", Name: "r9"}, nil, nil),
	})
	if err != nil {
		t.Fatalf("HandleRemoteGroupChanged: %v", err)
	}
	if f.rpc.resolves != 0 {
		t.Error("merges into windows we do not mirror should not resolve anything")
	}
}

func TestRemoteEventsIgnored(t *testing.T) {
	f := newFixture()
	p1, _ := f.mesh.GetOrCreate(context.Background(), f.remoteWindow("peer", "r1"))
	a := f.local("a")
	f.registry.Join(a, p1.StandIn)
	resolves := f.rpc.resolves

	// Caused by our own window.
	_ = f.mesh.HandleRemoteGroupChanged(context.Background(), GroupChangedNotice{
		Event: event.NewGroupChanged("g", event.ReasonLeave, event.Member{Owner: "local", Name: "a"}, event.Member{}, nil, nil),
	})
	// Join into a group we do not mirror.
	_ = f.mesh.HandleRemoteGroupChanged(context.Background(), GroupChangedNotice{
		Event: event.NewGroupChanged("g", event.ReasonJoin, event.Member{Owner: "peer", Name: "x"}, event.Member{Owner: "peer", Name: "y"}, nil, nil),
	})

	if !a.Grouped() {
		t.Error("self-caused remote events must be ignored")
	}
	if f.rpc.resolves != resolves {
		t.Error("unrelated joins should not resolve anything")
	}
}

func TestWatchersNotified(t *testing.T) {
	f := newFixture()
	a, b := f.local("a"), f.local("b")
	f.mesh.Watch(a.Identity, "peer")
	f.mesh.Watch(a.Identity, "local")

	f.registry.Join(b, a)

	calls := f.rpc.waitFor(t, ActionGroupChanged, 1)
	notice := calls[0].payload.(GroupChangedNotice)
	if calls[0].peer != "peer" || notice.From != "local" || notice.Event.Reason != event.ReasonJoin {
		t.Errorf("unexpected notification %+v", calls[0])
	}
}

func TestPlaceRemote(t *testing.T) {
	f := newFixture()
	p1, _ := f.mesh.GetOrCreate(context.Background(), f.remoteWindow("peer", "r1"))

	f.mesh.PlaceRemote(p1.StandIn, platform.Rect{X: 5, Width: 10, Height: 10})

	calls := f.rpc.waitFor(t, ActionSetBounds, 1)
	req := calls[0].payload.(SetBoundsRequest)
	if req.Window != p1.StandIn.Identity || req.Bounds.X != 5 {
		t.Errorf("unexpected request %+v", req)
	}
}
