// Package daemon wires the group engine to a window-system backend, the
// mesh and the IPC surface.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/1broseidon/wingroup/internal/bounds"
	"github.com/1broseidon/wingroup/internal/config"
	"github.com/1broseidon/wingroup/internal/drag"
	"github.com/1broseidon/wingroup/internal/event"
	"github.com/1broseidon/wingroup/internal/group"
	"github.com/1broseidon/wingroup/internal/ipc"
	"github.com/1broseidon/wingroup/internal/loop"
	"github.com/1broseidon/wingroup/internal/placement"
	"github.com/1broseidon/wingroup/internal/platform"
	"github.com/1broseidon/wingroup/internal/remote"
	"github.com/1broseidon/wingroup/internal/telemetry"
)

// DefaultRuntimeID names this daemon's windows when no runtime_id is
// configured.
const DefaultRuntimeID = "local"

// PeerUpdater receives the peer list after a config reload.
type PeerUpdater interface {
	SetPeers(peers []remote.PeerHandle)
}

// Options configures a Service.
type Options struct {
	Config  *config.Config
	Backend platform.Backend
	// BackendName is reported by status ("x11", "memory").
	BackendName string
	// RPC reaches peer daemons. Nil disables the mesh.
	RPC     remote.RPC
	Metrics *telemetry.Metrics
	Tracer  trace.Tracer
	Logger  *slog.Logger
	// LogLevel is adjusted on reload when set.
	LogLevel *slog.LevelVar
	// LoadConfig reloads the configuration. Defaults to config.Load.
	LoadConfig func() (*config.Config, error)
	// Now is used for drag settling; tests override it.
	Now func() time.Time
}

// Service is the daemon: every registry, propagation and drag operation runs
// on its loop, RPC runs on the calling goroutine.
type Service struct {
	self        string
	backend     platform.Backend
	backendName string
	geometry    platform.GeometryWatcher
	logger      *slog.Logger
	logLevel    *slog.LevelVar
	tracer      trace.Tracer
	metrics     *telemetry.Metrics
	loadConfig  func() (*config.Config, error)
	started     time.Time

	cfgMu sync.RWMutex
	cfg   *config.Config

	loop      *loop.Loop
	bus       *event.Bus
	registry  *group.Registry
	engine    *bounds.Engine
	batcher   *placement.Batcher
	coord     *drag.Coordinator
	dragWatch *drag.Watcher
	mesh      *remote.Mesh
	rpc       remote.RPC

	// loop-owned
	watched map[*group.Window]bool
	armed   *group.Window
}

var _ ipc.Service = (*Service)(nil)

// New assembles a service. Call Run to start processing.
func New(opts Options) (*Service, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("daemon: backend is required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("wingroup")
	}
	loadConfig := opts.LoadConfig
	if loadConfig == nil {
		loadConfig = config.Load
	}
	self := cfg.RuntimeID
	if self == "" {
		self = DefaultRuntimeID
	}

	s := &Service{
		self:        self,
		backend:     opts.Backend,
		backendName: opts.BackendName,
		logger:      logger,
		logLevel:    opts.LogLevel,
		tracer:      tracer,
		metrics:     opts.Metrics,
		loadConfig:  loadConfig,
		started:     time.Now(),
		cfg:         cfg,
		rpc:         opts.RPC,
		watched:     make(map[*group.Window]bool),
	}
	if gw, ok := opts.Backend.(platform.GeometryWatcher); ok {
		s.geometry = gw
	}

	s.loop = loop.New(0, logger.With("component", "loop"))
	s.bus = event.NewBus(logger.With("component", "events"))
	s.bus.SubscribeAll(func(e event.Event) {
		logger.Debug("event", "type", e.EventType(), "event", e)
	})
	s.metrics.ObserveEvents(s.bus)

	s.registry = group.NewRegistry(group.Options{
		Sink:   s.bus,
		Logger: logger.With("component", "registry"),
	})
	s.engine = bounds.NewEngine(s.registry)

	var observer placement.Observer
	if s.metrics != nil {
		observer = s.metrics
	}
	s.batcher = placement.NewBatcher(placement.Options{
		Backend:  opts.Backend,
		Sink:     s.bus,
		Observer: observer,
		Logger:   logger.With("component", "placement"),
	})

	s.coord = drag.NewCoordinator(drag.Options{
		Planner:      s.engine,
		Placer:       s.batcher,
		Members:      s.registry,
		Input:        opts.Backend,
		Geometry:     opts.Backend,
		Sink:         s.bus,
		Scheduler:    s.loop,
		PollInterval: cfg.PollInterval(),
		Coalesce:     drag.CoalesceMode(cfg.Drag.Coalesce),
		Logger:       logger.With("component", "drag"),
		Now:          opts.Now,
	})
	s.dragWatch = drag.NewWatcher(s.coord, s.loop, cfg.QuietPeriod())

	if opts.RPC != nil {
		s.mesh = remote.NewMesh(remote.Options{
			Self:     self,
			RPC:      opts.RPC,
			Registry: s.registry,
			Loop:     s.loop,
			Sink:     s.bus,
			Timeout:  cfg.RPCTimeout(),
			Fanout:   cfg.Mesh.Fanout,
			Logger:   logger.With("component", "mesh"),
		})
		s.registry.SetPeers(s.mesh)
		s.batcher.SetRemote(s.mesh)
	}

	return s, nil
}

// Run processes loop tasks until ctx is cancelled. Blocks.
func (s *Service) Run(ctx context.Context) {
	s.logger.Info("daemon started", "runtime_id", s.self, "backend", s.backendName, "mesh", s.mesh != nil)
	s.loop.Run(ctx)
	s.logger.Info("daemon stopped")
}

// Self returns this daemon's runtime id.
func (s *Service) Self() string {
	return s.self
}

// Events returns the bus every group and bounds event is published on.
func (s *Service) Events() event.Sink {
	return s.bus
}

// Config returns the current configuration.
func (s *Service) Config() *config.Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// Reload re-reads the configuration. Log level and mesh peers apply
// immediately; placement and drag settings apply on restart.
func (s *Service) Reload() error {
	cfg, err := s.loadConfig()
	if err != nil {
		return err
	}

	s.cfgMu.Lock()
	old := s.cfg
	s.cfg = cfg
	s.cfgMu.Unlock()

	if s.logLevel != nil {
		s.logLevel.Set(cfg.SlogLevel())
	}
	if updater, ok := s.rpc.(PeerUpdater); ok {
		peers, err := cfg.ResolvedPeers()
		if err != nil {
			return err
		}
		updater.SetPeers(peerHandles(peers))
	}
	if old != nil && (old.Drag != cfg.Drag || old.Placement != cfg.Placement || old.RuntimeID != cfg.RuntimeID) {
		s.logger.Warn("placement, drag and runtime_id changes take effect after restart")
	}
	s.logger.Info("config reloaded")
	return nil
}

// Status summarizes the daemon.
func (s *Service) Status(ctx context.Context) (ipc.StatusData, error) {
	status := ipc.StatusData{
		RuntimeID:     s.self,
		Backend:       s.backendName,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		DaemonRunning: true,
	}
	err := s.loop.Call(ctx, func() error {
		for _, w := range s.registry.Windows() {
			if w.IsProxy() {
				status.Proxies++
			} else {
				status.Windows++
			}
		}
		status.Groups = len(s.registry.Groups())
		return nil
	})
	if err != nil {
		return ipc.StatusData{}, fmt.Errorf("status: %w", err)
	}
	if lister, ok := s.rpc.(interface{ Peers() []string }); ok {
		status.Peers = lister.Peers()
		sort.Strings(status.Peers)
	}
	return status, nil
}

// ListGroups lists every group in membership order plus ungrouped windows.
func (s *Service) ListGroups(ctx context.Context) (ipc.GroupsData, error) {
	var data ipc.GroupsData
	err := s.loop.Call(ctx, func() error {
		for _, g := range s.registry.Groups() {
			info := ipc.GroupInfo{ID: g.ID}
			for _, m := range g.Members {
				info.Members = append(info.Members, windowInfo(m))
			}
			data.Groups = append(data.Groups, info)
		}
		for _, w := range s.registry.Windows() {
			if !w.Grouped() {
				data.Ungrouped = append(data.Ungrouped, windowInfo(w))
			}
		}
		return nil
	})
	if err != nil {
		return ipc.GroupsData{}, fmt.Errorf("list groups: %w", err)
	}
	return data, nil
}

func windowInfo(w *group.Window) ipc.WindowInfo {
	return ipc.WindowInfo{Window: w.Identity, Kind: w.Kind.String(), Bounds: w.Bounds}
}

func peerHandles(peers []config.Peer) []remote.PeerHandle {
	out := make([]remote.PeerHandle, 0, len(peers))
	for _, p := range peers {
		out = append(out, remote.PeerHandle{ID: p.ID, Socket: p.Socket})
	}
	return out
}

// PeerHandles converts configured peers for the mesh transport.
func PeerHandles(cfg *config.Config) ([]remote.PeerHandle, error) {
	peers, err := cfg.ResolvedPeers()
	if err != nil {
		return nil, err
	}
	return peerHandles(peers), nil
}
