package remote

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/1broseidon/wingroup/internal/event"
	"github.com/1broseidon/wingroup/internal/group"
	"github.com/1broseidon/wingroup/internal/platform"
	"github.com/sourcegraph/conc/pool"
)

// Executor runs registry work on the daemon loop.
type Executor interface {
	Call(ctx context.Context, fn func() error) error
}

// Proxy is the local stand-in record for a peer-owned window.
type Proxy struct {
	StandIn *group.Window
	Peer    PeerHandle
	Handle  string
}

// Options configures a Mesh.
type Options struct {
	// Self is the runtime id of this process.
	Self     string
	RPC      RPC
	Registry *group.Registry
	Loop     Executor
	Sink     event.Sink
	// Timeout bounds each RPC call. Zero means no timeout.
	Timeout time.Duration
	// Fanout limits concurrent peer notifications.
	Fanout int
	Logger *slog.Logger
}

// Mesh owns every proxy of this runtime. Methods documented as blocking do
// RPC and must not be called from the daemon loop; UpstreamPeers and the event
// handlers are loop-safe.
type Mesh struct {
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	proxies  map[group.Identity]*Proxy
	upstream map[group.Identity][]group.Identity
	watchers map[group.Identity]map[string]bool
}

var _ group.PeerSource = (*Mesh)(nil)

// NewMesh creates a mesh and subscribes it to group-changed events on the
// sink.
func NewMesh(opts Options) *Mesh {
	if opts.Fanout <= 0 {
		opts.Fanout = 4
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := &Mesh{
		opts:     opts,
		logger:   logger,
		proxies:  make(map[group.Identity]*Proxy),
		upstream: make(map[group.Identity][]group.Identity),
		watchers: make(map[group.Identity]map[string]bool),
	}
	if opts.Sink != nil {
		opts.Sink.Subscribe(event.TypeGroupChanged, m.onGroupChanged)
	}
	return m
}

// Self returns the local runtime id.
func (m *Mesh) Self() string {
	return m.opts.Self
}

// IsLocal reports whether id names a window owned by this runtime.
func (m *Mesh) IsLocal(id group.Identity) bool {
	return id.Owner == "" || id.Owner == m.opts.Self
}

// Lookup returns the cached proxy for id.
func (m *Mesh) Lookup(id group.Identity) (*Proxy, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.proxies[id]
	return p, ok
}

// GetOrCreate returns the proxy for a peer-owned window, resolving it on the
// mesh the first time. Blocking.
func (m *Mesh) GetOrCreate(ctx context.Context, id group.Identity) (*Proxy, error) {
	if p, ok := m.Lookup(id); ok {
		return p, nil
	}
	if m.IsLocal(id) {
		return nil, fmt.Errorf("%s is owned by this runtime", id)
	}

	rctx, cancel := m.rpcContext(ctx)
	res, err := m.opts.RPC.Resolve(rctx, id)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w: %v", id, ErrResolution, err)
	}

	p, err := m.install(ctx, res.Peer, res.Handle, RemoteWindow{Window: id, Bounds: res.Bounds, Constraints: res.Constraints})
	if err != nil {
		return nil, err
	}

	wctx, wcancel := m.rpcContext(ctx)
	defer wcancel()
	if err := m.opts.RPC.Invoke(wctx, p.Peer, ActionWatch, WatchRequest{Window: id, Subscriber: m.opts.Self}, nil); err != nil {
		m.logger.Warn("failed to watch remote window", "window", id, "peer", p.Peer.ID, "error", err)
	}
	return p, nil
}

// install creates the stand-in on the loop and caches the proxy.
func (m *Mesh) install(ctx context.Context, peer PeerHandle, handle string, rw RemoteWindow) (*Proxy, error) {
	if p, ok := m.Lookup(rw.Window); ok {
		return p, nil
	}

	var standIn *group.Window
	err := m.opts.Loop.Call(ctx, func() error {
		standIn = m.opts.Registry.Track(group.Window{
			Identity:    rw.Window,
			Bounds:      rw.Bounds,
			Constraints: rw.Constraints,
			Kind:        platform.KindRemoteProxy,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.proxies[rw.Window]; ok {
		return p, nil
	}
	p := &Proxy{StandIn: standIn, Peer: peer, Handle: handle}
	m.proxies[rw.Window] = p
	m.logger.Debug("proxy created", "window", rw.Window, "peer", peer.ID)
	return p, nil
}

// RefreshUpstream fetches the owner's group for p and caches stand-ins for
// every peer-owned member, so that a later join or merge into p flattens the
// remote group locally. Blocking. Failures leave the previous cache in place.
func (m *Mesh) RefreshUpstream(ctx context.Context, p *Proxy) error {
	var reply MembersReply
	rctx, cancel := m.rpcContext(ctx)
	err := m.opts.RPC.Invoke(rctx, p.Peer, ActionMembers, MembersRequest{Window: p.StandIn.Identity}, &reply)
	cancel()
	if err != nil {
		return fmt.Errorf("fetch group of %s: %w", p.StandIn.Identity, err)
	}

	ids := make([]group.Identity, 0, len(reply.Members))
	for _, rw := range reply.Members {
		if rw.Window == p.StandIn.Identity || m.IsLocal(rw.Window) {
			continue
		}
		peer := p.Peer
		if rw.Window.Owner != p.Peer.ID {
			other, ok := m.opts.RPC.Peer(rw.Window.Owner)
			if !ok {
				m.logger.Debug("skipping member owned by unknown peer", "window", rw.Window)
				continue
			}
			peer = other
		}
		if _, err := m.install(ctx, peer, "", rw); err != nil {
			return err
		}
		ids = append(ids, rw.Window)
	}

	m.mu.Lock()
	m.upstream[p.StandIn.Identity] = ids
	m.mu.Unlock()
	return nil
}

// UpstreamPeers returns the cached stand-ins grouped with standIn on its
// owner. Loop-safe; never does RPC.
func (m *Mesh) UpstreamPeers(standIn *group.Window) []*group.Window {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.upstream[standIn.Identity]
	out := make([]*group.Window, 0, len(ids))
	for _, id := range ids {
		if p, ok := m.proxies[id]; ok {
			out = append(out, p.StandIn)
		}
	}
	return out
}

// Watch records that subscriber wants group changes involving a local window.
func (m *Mesh) Watch(id group.Identity, subscriber string) {
	if subscriber == "" || subscriber == m.opts.Self {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.watchers[id] == nil {
		m.watchers[id] = make(map[string]bool)
	}
	m.watchers[id][subscriber] = true
}

// HandleRemoteLeave applies a leave forwarded by the peer owning id. Blocking.
func (m *Mesh) HandleRemoteLeave(ctx context.Context, id group.Identity) error {
	p, ok := m.Lookup(id)
	if !ok {
		return nil
	}
	return m.opts.Loop.Call(ctx, func() error {
		m.opts.Registry.Leave(p.StandIn)
		return nil
	})
}

// HandleRemoteGroupChanged mirrors a peer's group-changed event into the local
// registry: leave removes the source's stand-in from its group, join adds the
// source next to the target and merge brings the source's whole remote group
// over. Events caused by this runtime's own windows are ignored, since the
// local registry already applied them. Blocking.
func (m *Mesh) HandleRemoteGroupChanged(ctx context.Context, notice GroupChangedNotice) error {
	ev := notice.Event
	source := identity(ev.SourceWindow)
	if m.IsLocal(source) {
		return nil
	}

	switch ev.Reason {
	case event.ReasonLeave:
		return m.HandleRemoteLeave(ctx, source)

	case event.ReasonJoin:
		target := identity(ev.TargetWindow)
		if !m.known(target) {
			return nil
		}
		src, err := m.GetOrCreate(ctx, source)
		if err != nil {
			return err
		}
		return m.opts.Loop.Call(ctx, func() error {
			tw, ok := m.opts.Registry.Lookup(target)
			if !ok {
				return nil
			}
			m.opts.Registry.Join(src.StandIn, tw)
			return nil
		})

	case event.ReasonMerge:
		target := identity(ev.TargetWindow)
		if !m.known(target) {
			return nil
		}
		src, err := m.GetOrCreate(ctx, source)
		if err != nil {
			return err
		}
		if err := m.RefreshUpstream(ctx, src); err != nil {
			m.logger.Warn("failed to fetch merged group", "window", source, "error", err)
		}
		if tp, ok := m.Lookup(target); ok {
			if err := m.RefreshUpstream(ctx, tp); err != nil {
				m.logger.Warn("failed to fetch merged group", "window", target, "error", err)
			}
		}
		return m.opts.Loop.Call(ctx, func() error {
			tw, ok := m.opts.Registry.Lookup(target)
			if !ok {
				return nil
			}
			m.opts.Registry.Merge(src.StandIn, tw)
			for _, up := range m.UpstreamPeers(src.StandIn) {
				if up.GroupID != tw.GroupID {
					m.opts.Registry.Join(up, tw)
				}
			}
			return nil
		})
	}
	return nil
}

// known reports whether id is a local window or one we already mirror.
func (m *Mesh) known(id group.Identity) bool {
	if m.IsLocal(id) {
		return true
	}
	_, ok := m.Lookup(id)
	return ok
}

// PlaceRemote asks the owner of a proxy to place it. Never blocks.
func (m *Mesh) PlaceRemote(w *group.Window, bounds platform.Rect) {
	p, ok := m.Lookup(w.Identity)
	if !ok {
		m.logger.Warn("no proxy for remote placement", "window", w.Identity)
		return
	}
	go func() {
		ctx, cancel := m.rpcContext(context.Background())
		defer cancel()
		if err := m.opts.RPC.Invoke(ctx, p.Peer, ActionSetBounds, SetBoundsRequest{Window: w.Identity, Bounds: bounds}, nil); err != nil {
			m.logger.Warn("remote placement failed", "window", w.Identity, "peer", p.Peer.ID, "error", err)
		}
	}()
}

// onGroupChanged runs on the loop for every local group-changed event.
func (m *Mesh) onGroupChanged(e event.Event) {
	ev, ok := e.(event.GroupChanged)
	if !ok {
		return
	}
	source := identity(ev.SourceWindow)

	var calls []peerCall
	if ev.Reason == event.ReasonLeave && m.IsLocal(source) {
		calls = append(calls, m.leaveCalls(ev, source)...)
	}
	calls = append(calls, m.watchCalls(ev)...)
	if len(calls) == 0 {
		return
	}
	go m.fanout(calls)
}

type peerCall struct {
	peer    PeerHandle
	action  string
	payload any
}

// leaveCalls builds one best-effort leave per peer owning a proxy in the
// vacated group.
func (m *Mesh) leaveCalls(ev event.GroupChanged, source group.Identity) []peerCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool)
	var calls []peerCall
	for _, member := range ev.SourceGroup {
		p, ok := m.proxies[identity(member)]
		if !ok || seen[p.Peer.ID] {
			continue
		}
		seen[p.Peer.ID] = true
		calls = append(calls, peerCall{peer: p.Peer, action: ActionLeave, payload: LeaveRequest{Window: source}})
	}
	return calls
}

// watchCalls notifies peers watching any window named by the event.
func (m *Mesh) watchCalls(ev event.GroupChanged) []peerCall {
	m.mu.Lock()
	subscribers := make(map[string]bool)
	involved := append([]event.Member{ev.SourceWindow, ev.TargetWindow}, ev.SourceGroup...)
	involved = append(involved, ev.TargetGroup...)
	for _, member := range involved {
		for sub := range m.watchers[identity(member)] {
			subscribers[sub] = true
		}
	}
	m.mu.Unlock()

	var calls []peerCall
	for sub := range subscribers {
		// The originating peer already knows about changes it caused.
		if sub == ev.SourceWindow.Owner {
			continue
		}
		peer, ok := m.opts.RPC.Peer(sub)
		if !ok {
			continue
		}
		calls = append(calls, peerCall{
			peer:    peer,
			action:  ActionGroupChanged,
			payload: GroupChangedNotice{From: m.opts.Self, Event: ev},
		})
	}
	return calls
}

// fanout sends every call concurrently. Failures are logged and not retried;
// a peer that cannot be reached is treated as having already applied it.
func (m *Mesh) fanout(calls []peerCall) {
	p := pool.New().WithErrors().WithMaxGoroutines(m.opts.Fanout)
	for _, c := range calls {
		p.Go(func() error {
			ctx, cancel := m.rpcContext(context.Background())
			defer cancel()
			if err := m.opts.RPC.Invoke(ctx, c.peer, c.action, c.payload, nil); err != nil {
				return fmt.Errorf("%s to %s: %w", c.action, c.peer.ID, err)
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		m.logger.Debug("peer notification failed", "error", err)
	}
}

func (m *Mesh) rpcContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.opts.Timeout > 0 {
		return context.WithTimeout(ctx, m.opts.Timeout)
	}
	return context.WithCancel(ctx)
}

func identity(member event.Member) group.Identity {
	return group.Identity{Owner: member.Owner, Name: member.Name}
}
