package group

import (
	"fmt"
	"testing"

	"github.com/1broseidon/wingroup/internal/event"
	"github.com/1broseidon/wingroup/internal/platform"
)

type fakePeers map[Identity][]*Window

func (f fakePeers) UpstreamPeers(standIn *Window) []*Window {
	return f[standIn.Identity]
}

func newTestRegistry(peers PeerSource) (*Registry, *event.Recorder) {
	rec := event.NewRecorder()
	n := 0
	r := NewRegistry(Options{
		Sink:  rec,
		Peers: peers,
		NewID: func() string {
			n++
			return fmt.Sprintf("g%d", n)
		},
	})
	return r, rec
}

func track(r *Registry, name string) *Window {
	return r.Track(Window{
		Identity: Identity{Owner: "local", Name: name},
		Bounds:   platform.Rect{Width: 100, Height: 100},
	})
}

func trackProxy(r *Registry, owner, name string) *Window {
	return r.Track(Window{
		Identity: Identity{Owner: owner, Name: name},
		Kind:     platform.KindRemoteProxy,
	})
}

func assertGroup(t *testing.T, r *Registry, members ...*Window) {
	t.Helper()
	gid := members[0].GroupID
	if gid == "" {
		t.Fatalf("%s is ungrouped", members[0].Identity)
	}
	for _, m := range members {
		if m.GroupID != gid {
			t.Errorf("%s has group %q, want %q", m.Identity, m.GroupID, gid)
		}
	}
	got := r.Members(gid)
	if len(got) != len(members) {
		t.Fatalf("group %s has %d members, want %d", gid, len(got), len(members))
	}
	for _, m := range members {
		found := false
		for _, g := range got {
			if g == m {
				found = true
			}
		}
		if !found {
			t.Errorf("%s missing from group %s", m.Identity, gid)
		}
	}
}

func reasons(events []event.GroupChanged) []event.GroupReason {
	out := make([]event.GroupReason, 0, len(events))
	for _, e := range events {
		out = append(out, e.Reason)
	}
	return out
}

func TestTrackReturnsCanonicalWindow(t *testing.T) {
	r, _ := newTestRegistry(nil)

	a := track(r, "a")
	again := r.Track(Window{Identity: a.Identity, Bounds: platform.Rect{X: 50}})
	if a != again {
		t.Fatal("Track should return the existing window for a known identity")
	}
	if again.Bounds.X != 0 {
		t.Error("Track should not overwrite existing state")
	}
}

func TestJoinCreatesGroup(t *testing.T) {
	r, rec := newTestRegistry(nil)
	a, b := track(r, "a"), track(r, "b")

	r.Join(a, b)

	assertGroup(t, r, b, a)
	events := rec.GroupEvents()
	if len(events) != 1 || events[0].Reason != event.ReasonJoin {
		t.Fatalf("expected one join event, got %v", reasons(events))
	}
	if events[0].SourceWindow.Name != "a" || events[0].TargetWindow.Name != "b" {
		t.Errorf("unexpected windows in event: %+v", events[0])
	}
	if len(events[0].TargetGroup) != 2 || events[0].TargetGroup[0].Name != "b" {
		t.Errorf("target snapshot should list b first, got %+v", events[0].TargetGroup)
	}
}

func TestJoinNoOps(t *testing.T) {
	r, rec := newTestRegistry(nil)
	a, b := track(r, "a"), track(r, "b")

	r.Join(a, a)
	if a.Grouped() || len(rec.Events()) != 0 {
		t.Fatal("joining a window to itself should do nothing")
	}

	r.Join(a, b)
	rec.Reset()
	r.Join(b, a)
	if len(rec.Events()) != 0 {
		t.Errorf("joining windows already sharing a group should emit nothing, got %v", reasons(rec.GroupEvents()))
	}
}

func TestJoinSharedGroupForMany(t *testing.T) {
	r, _ := newTestRegistry(nil)
	a, b, c, d := track(r, "a"), track(r, "b"), track(r, "c"), track(r, "d")

	r.Join(b, a)
	r.Join(c, a)
	r.Join(d, c)

	assertGroup(t, r, a, b, c, d)
	if len(r.Groups()) != 1 {
		t.Errorf("expected exactly one group, got %d", len(r.Groups()))
	}
}

func TestJoinMovesSourceOutOfOldGroup(t *testing.T) {
	r, rec := newTestRegistry(nil)
	a, b, c := track(r, "a"), track(r, "b"), track(r, "c")

	r.Join(a, b)
	oldGroup := a.GroupID
	rec.Reset()

	r.Join(a, c)

	if b.Grouped() {
		t.Error("b should be ungrouped after its group dropped to one member")
	}
	if _, ok := r.groups[oldGroup]; ok {
		t.Error("old group should no longer exist")
	}
	assertGroup(t, r, c, a)

	got := reasons(rec.GroupEvents())
	want := []event.GroupReason{event.ReasonLeave, event.ReasonDisband, event.ReasonJoin}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestLeaveDisbandsPair(t *testing.T) {
	r, rec := newTestRegistry(nil)
	a, b := track(r, "a"), track(r, "b")
	r.Join(a, b)
	gid := a.GroupID
	rec.Reset()

	r.Leave(a)

	events := rec.GroupEvents()
	if len(events) != 2 {
		t.Fatalf("expected leave and disband, got %v", reasons(events))
	}
	leave, disband := events[0], events[1]
	if leave.Reason != event.ReasonLeave || disband.Reason != event.ReasonDisband {
		t.Fatalf("unexpected order %v", reasons(events))
	}
	if len(leave.SourceGroup) != 2 {
		t.Errorf("leave should carry the pre-removal snapshot, got %+v", leave.SourceGroup)
	}
	if len(disband.SourceGroup) != 1 || disband.SourceGroup[0].Name != "b" {
		t.Errorf("disband should reference b, got %+v", disband.SourceGroup)
	}
	if leave.GroupID != gid || disband.GroupID != gid {
		t.Error("both events should carry the vacated group id")
	}
	if a.Grouped() || b.Grouped() {
		t.Error("both windows should be ungrouped")
	}
	if len(r.Groups()) != 0 {
		t.Error("group should be absent after disband")
	}
}

func TestLeaveKeepsLargerGroup(t *testing.T) {
	r, rec := newTestRegistry(nil)
	a, b, c := track(r, "a"), track(r, "b"), track(r, "c")
	r.Join(b, a)
	r.Join(c, a)
	rec.Reset()

	r.Leave(b)

	assertGroup(t, r, a, c)
	if b.Grouped() {
		t.Error("b should be ungrouped")
	}
	if got := reasons(rec.GroupEvents()); len(got) != 1 || got[0] != event.ReasonLeave {
		t.Errorf("expected a single leave event, got %v", got)
	}
}

func TestLeaveUngroupedIsNoOp(t *testing.T) {
	r, rec := newTestRegistry(nil)
	a := track(r, "a")

	r.Leave(a)
	r.Leave(nil)

	if len(rec.Events()) != 0 {
		t.Error("leaving while ungrouped should emit nothing")
	}
}

func TestLeaveDisbandsProxyOnlyGroup(t *testing.T) {
	r, rec := newTestRegistry(nil)
	a := track(r, "a")
	p1, p2 := trackProxy(r, "peer", "p1"), trackProxy(r, "peer", "p2")

	r.Join(p1, a)
	r.Join(p2, a)
	rec.Reset()

	r.Leave(a)

	if p1.Grouped() || p2.Grouped() {
		t.Error("a group of only proxies should disband")
	}
	if got := reasons(rec.GroupEvents()); fmt.Sprint(got) != fmt.Sprint([]event.GroupReason{event.ReasonLeave, event.ReasonDisband}) {
		t.Errorf("unexpected events %v", got)
	}
}

func TestMergeTwoGroups(t *testing.T) {
	r, rec := newTestRegistry(nil)
	c, d, e, f := track(r, "c"), track(r, "d"), track(r, "e"), track(r, "f")
	r.Join(d, c)
	r.Join(f, e)
	srcID, dstID := c.GroupID, e.GroupID
	rec.Reset()

	r.Merge(c, e)

	assertGroup(t, r, c, d, e, f)
	if c.GroupID != dstID {
		t.Errorf("merged group should keep the target id %q, got %q", dstID, c.GroupID)
	}
	if _, ok := r.groups[srcID]; ok {
		t.Error("source group id should be discarded")
	}

	events := rec.GroupEvents()
	if len(events) != 2 {
		t.Fatalf("expected two merge events, got %v", reasons(events))
	}
	seen := map[string]bool{}
	for _, ev := range events {
		if ev.Reason != event.ReasonMerge {
			t.Errorf("unexpected reason %s", ev.Reason)
		}
		seen[ev.GroupID] = true
		if len(ev.TargetGroup) != 4 {
			t.Errorf("merge event should carry the merged snapshot, got %+v", ev.TargetGroup)
		}
	}
	if !seen[srcID] || !seen[dstID] {
		t.Errorf("expected one event per original group, got %v", seen)
	}
}

func TestMergeUngroupedSides(t *testing.T) {
	r, rec := newTestRegistry(nil)
	a, b := track(r, "a"), track(r, "b")

	r.Merge(a, b)

	assertGroup(t, r, a, b)
	if len(r.Groups()) != 1 {
		t.Errorf("expected one group, got %d", len(r.Groups()))
	}
	if got := len(rec.GroupEvents()); got != 2 {
		t.Errorf("expected two merge events, got %d", got)
	}
}

func TestJoinProxyPullsUpstreamPeers(t *testing.T) {
	peers := fakePeers{}
	r, _ := newTestRegistry(peers)

	local := track(r, "a")
	standIn := trackProxy(r, "peer", "r1")
	peers[standIn.Identity] = []*Window{
		{Identity: Identity{Owner: "peer", Name: "r2"}, Kind: platform.KindRemoteProxy},
		{Identity: Identity{Owner: "peer", Name: "r3"}, Kind: platform.KindRemoteProxy},
	}

	r.Join(local, standIn)

	r2, ok := r.Lookup(Identity{Owner: "peer", Name: "r2"})
	if !ok {
		t.Fatal("upstream peer r2 should be tracked")
	}
	r3, _ := r.Lookup(Identity{Owner: "peer", Name: "r3"})
	assertGroup(t, r, standIn, local, r2, r3)
}

func TestMergeIntoProxyPullsUpstreamPeers(t *testing.T) {
	peers := fakePeers{}
	r, _ := newTestRegistry(peers)

	a, b := track(r, "a"), track(r, "b")
	r.Join(b, a)
	standIn := trackProxy(r, "peer", "r1")
	upstream := &Window{Identity: Identity{Owner: "peer", Name: "r2"}, Kind: platform.KindRemoteProxy}
	peers[standIn.Identity] = []*Window{upstream}

	r.Merge(a, standIn)

	assertGroup(t, r, standIn, a, b, upstream)
}

func TestForget(t *testing.T) {
	r, _ := newTestRegistry(nil)
	a, b, c := track(r, "a"), track(r, "b"), track(r, "c")
	r.Join(b, a)
	r.Join(c, a)

	r.Forget(b)

	if _, ok := r.Lookup(b.Identity); ok {
		t.Error("forgotten window should not be tracked")
	}
	assertGroup(t, r, a, c)
	if len(r.Windows()) != 2 {
		t.Errorf("expected 2 tracked windows, got %d", len(r.Windows()))
	}
}

func TestDefaultIDsAreUUIDs(t *testing.T) {
	r := NewRegistry(Options{})
	a := r.Track(Window{Identity: Identity{Owner: "o", Name: "a"}})
	b := r.Track(Window{Identity: Identity{Owner: "o", Name: "b"}})

	r.Join(a, b)

	if len(a.GroupID) != 36 {
		t.Errorf("expected a uuid group id, got %q", a.GroupID)
	}
}
