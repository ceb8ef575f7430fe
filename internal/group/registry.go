// Package group owns window-group membership: join, leave, merge and the
// disband rule.
package group

import (
	"log/slog"
	"sort"

	"github.com/1broseidon/wingroup/internal/event"
	"github.com/google/uuid"
)

// PeerSource returns the windows grouped with a proxy on its owning peer, as
// local stand-ins. Implementations must answer from a cache; the registry
// calls it synchronously during join and merge.
type PeerSource interface {
	UpstreamPeers(standIn *Window) []*Window
}

// Options configures a Registry.
type Options struct {
	Sink   event.Sink
	Peers  PeerSource
	Logger *slog.Logger
	// NewID generates group ids. Defaults to uuid.NewString.
	NewID func() string
}

// Registry maps group ids to ordered member lists.
//
// Registry is not safe for concurrent use. The daemon serializes every call
// through its loop, so registry state is only ever touched from one goroutine.
type Registry struct {
	sink    event.Sink
	peers   PeerSource
	logger  *slog.Logger
	newID   func() string
	windows map[Identity]*Window
	groups  map[string][]*Window
}

// Info describes one group for listings.
type Info struct {
	ID      string
	Members []*Window
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) *Registry {
	r := &Registry{
		sink:    opts.Sink,
		peers:   opts.Peers,
		logger:  opts.Logger,
		newID:   opts.NewID,
		windows: make(map[Identity]*Window),
		groups:  make(map[string][]*Window),
	}
	if r.sink == nil {
		r.sink = event.NewBus(nil)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.newID == nil {
		r.newID = uuid.NewString
	}
	return r
}

// SetPeers installs the peer source after construction, for wiring cycles
// between the registry and the remote mesh.
func (r *Registry) SetPeers(p PeerSource) {
	r.peers = p
}

// Track returns the window registered for w.Identity, registering a copy of
// w when the identity is new. Existing entries keep their state.
func (r *Registry) Track(w Window) *Window {
	if existing, ok := r.windows[w.Identity]; ok {
		return existing
	}
	tracked := w
	tracked.GroupID = ""
	r.windows[w.Identity] = &tracked
	return &tracked
}

// Lookup returns the tracked window for an identity.
func (r *Registry) Lookup(id Identity) (*Window, bool) {
	w, ok := r.windows[id]
	return w, ok
}

// Windows returns every tracked window, ordered by identity.
func (r *Registry) Windows() []*Window {
	out := make([]*Window, 0, len(r.windows))
	for _, w := range r.windows {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Owner != out[j].Owner {
			return out[i].Owner < out[j].Owner
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Members returns a copy of a group's ordered member list.
func (r *Registry) Members(groupID string) []*Window {
	return append([]*Window(nil), r.groups[groupID]...)
}

// GroupOf returns the members of w's group, or nil when w is ungrouped.
func (r *Registry) GroupOf(w *Window) []*Window {
	if w == nil || !w.Grouped() {
		return nil
	}
	return r.Members(w.GroupID)
}

// Groups lists every live group ordered by id.
func (r *Registry) Groups() []Info {
	out := make([]Info, 0, len(r.groups))
	for id, members := range r.groups {
		out = append(out, Info{ID: id, Members: append([]*Window(nil), members...)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Join adds source to target's group, allocating one when target is
// ungrouped. A grouped source leaves its current group first.
func (r *Registry) Join(source, target *Window) {
	if source == nil || target == nil {
		return
	}
	source = r.adopt(source)
	target = r.adopt(target)
	if source == target || (source.Grouped() && source.GroupID == target.GroupID) {
		return
	}

	before := r.GroupOf(source)
	if len(before) == 0 {
		before = []*Window{source}
	}
	if source.Grouped() {
		r.leave(source)
	}

	gid := target.GroupID
	if gid == "" {
		gid = r.allocate(target)
	}
	r.add(gid, source)
	if target.IsProxy() {
		r.pullUpstream(gid, target)
	}

	r.logger.Debug("window joined group", "group", gid, "source", source.Identity, "target", target.Identity)
	r.publish(event.NewGroupChanged(gid, event.ReasonJoin, source.Member(), target.Member(),
		Snapshot(before), Snapshot(r.groups[gid])))
	r.disbandIfInvalid(gid, source)
}

// Leave removes w from its group. The group disbands when fewer than two
// members remain or only proxies remain.
func (r *Registry) Leave(w *Window) {
	if w == nil || !w.Grouped() {
		return
	}
	r.leave(w)
}

// Merge moves every member of source's group into target's group. Either
// side is given a group first when ungrouped.
func (r *Registry) Merge(source, target *Window) {
	if source == nil || target == nil {
		return
	}
	source = r.adopt(source)
	target = r.adopt(target)
	if source == target || (source.Grouped() && source.GroupID == target.GroupID) {
		return
	}

	srcID := source.GroupID
	if srcID == "" {
		srcID = r.allocate(source)
	}
	dstID := target.GroupID
	if dstID == "" {
		dstID = r.allocate(target)
	}

	srcBefore := Snapshot(r.groups[srcID])
	dstBefore := Snapshot(r.groups[dstID])

	for _, m := range r.groups[srcID] {
		r.add(dstID, m)
	}
	delete(r.groups, srcID)

	if target.IsProxy() {
		r.pullUpstream(dstID, target)
	}

	after := Snapshot(r.groups[dstID])
	r.logger.Debug("groups merged", "from", srcID, "into", dstID, "members", len(after))
	r.publish(event.NewGroupChanged(srcID, event.ReasonMerge, source.Member(), target.Member(), srcBefore, after))
	r.publish(event.NewGroupChanged(dstID, event.ReasonMerge, source.Member(), target.Member(), dstBefore, after))
	r.disbandIfInvalid(dstID, source)
}

// Forget removes w from its group and stops tracking it.
func (r *Registry) Forget(w *Window) {
	if w == nil {
		return
	}
	if w.Grouped() {
		r.leave(w)
	}
	if r.windows[w.Identity] == w {
		delete(r.windows, w.Identity)
	}
}

// adopt makes sure callers passing untracked windows end up with the
// canonical pointer for the identity.
func (r *Registry) adopt(w *Window) *Window {
	if existing, ok := r.windows[w.Identity]; ok {
		return existing
	}
	r.windows[w.Identity] = w
	return w
}

func (r *Registry) allocate(first *Window) string {
	gid := r.newID()
	first.GroupID = gid
	r.groups[gid] = []*Window{first}
	return gid
}

func (r *Registry) add(gid string, w *Window) {
	w.GroupID = gid
	for _, m := range r.groups[gid] {
		if m == w {
			return
		}
	}
	r.groups[gid] = append(r.groups[gid], w)
}

func (r *Registry) remove(gid string, w *Window) {
	members := r.groups[gid]
	for i, m := range members {
		if m == w {
			r.groups[gid] = append(members[:i:i], members[i+1:]...)
			return
		}
	}
}

func (r *Registry) leave(w *Window) {
	gid := w.GroupID
	before := Snapshot(r.groups[gid])

	r.remove(gid, w)
	w.GroupID = ""

	r.logger.Debug("window left group", "group", gid, "window", w.Identity)
	r.publish(event.NewGroupChanged(gid, event.ReasonLeave, w.Member(), event.Member{}, before, Snapshot(r.groups[gid])))
	r.disbandIfInvalid(gid, w)
}

// pullUpstream flattens a proxy's remote group into the local one.
func (r *Registry) pullUpstream(gid string, standIn *Window) {
	if r.peers == nil {
		return
	}
	for _, p := range r.peers.UpstreamPeers(standIn) {
		if p == nil {
			continue
		}
		p = r.adopt(p)
		if p.GroupID == gid {
			continue
		}
		if p.Grouped() {
			r.leave(p)
		}
		r.add(gid, p)
	}
}

func (r *Registry) disbandIfInvalid(gid string, cause *Window) {
	members, ok := r.groups[gid]
	if !ok || valid(members) {
		return
	}

	for _, m := range members {
		m.GroupID = ""
	}
	delete(r.groups, gid)

	r.logger.Debug("group disbanded", "group", gid, "remaining", len(members))
	r.publish(event.NewGroupChanged(gid, event.ReasonDisband, cause.Member(), event.Member{}, Snapshot(members), nil))
}

// valid reports whether a member list may persist as a group: at least two
// members, at least one of them not a proxy.
func valid(members []*Window) bool {
	if len(members) < 2 {
		return false
	}
	for _, m := range members {
		if !m.IsProxy() {
			return true
		}
	}
	return false
}

func (r *Registry) publish(e event.Event) {
	r.sink.Publish(e)
}
