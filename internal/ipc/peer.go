package ipc

import (
	"context"
	"fmt"
	"sync"

	"github.com/1broseidon/wingroup/internal/group"
	"github.com/1broseidon/wingroup/internal/remote"
)

// PeerClient is the mesh transport: it reaches peer daemons over their IPC
// sockets. It implements remote.RPC.
type PeerClient struct {
	mu    sync.RWMutex
	peers map[string]remote.PeerHandle
}

var _ remote.RPC = (*PeerClient)(nil)

// NewPeerClient creates a transport for the given peers.
func NewPeerClient(peers []remote.PeerHandle) *PeerClient {
	p := &PeerClient{}
	p.SetPeers(peers)
	return p
}

// SetPeers replaces the known peers, on config reload.
func (p *PeerClient) SetPeers(peers []remote.PeerHandle) {
	m := make(map[string]remote.PeerHandle, len(peers))
	for _, peer := range peers {
		m[peer.ID] = peer
	}
	p.mu.Lock()
	p.peers = m
	p.mu.Unlock()
}

// Peers returns the ids of every known peer.
func (p *PeerClient) Peers() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.peers))
	for id := range p.peers {
		ids = append(ids, id)
	}
	return ids
}

func (p *PeerClient) Peer(id string) (remote.PeerHandle, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	peer, ok := p.peers[id]
	return peer, ok
}

// Resolve asks the owner of id for the window's handle and geometry.
func (p *PeerClient) Resolve(ctx context.Context, id group.Identity) (remote.Resolution, error) {
	peer, ok := p.Peer(id.Owner)
	if !ok {
		return remote.Resolution{}, fmt.Errorf("unknown peer %q", id.Owner)
	}

	var res remote.Resolution
	if err := p.Invoke(ctx, peer, string(CommandResolveWindow), ResolvePayload{Window: id}, &res); err != nil {
		return remote.Resolution{}, err
	}
	res.Peer = peer
	return res, nil
}

// Invoke sends one peer command. Deadlines come from ctx only.
func (p *PeerClient) Invoke(ctx context.Context, peer remote.PeerHandle, action string, payload, out any) error {
	c := NewSocketClient(peer.Socket, 0)
	if err := c.call(ctx, CommandType(action), payload, out); err != nil {
		return fmt.Errorf("peer %s: %w", peer.ID, err)
	}
	return nil
}
