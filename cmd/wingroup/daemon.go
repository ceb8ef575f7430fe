package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/1broseidon/wingroup/internal/config"
	"github.com/1broseidon/wingroup/internal/daemon"
	"github.com/1broseidon/wingroup/internal/hotkeys"
	"github.com/1broseidon/wingroup/internal/ipc"
	"github.com/1broseidon/wingroup/internal/platform"
	"github.com/1broseidon/wingroup/internal/remote"
	"github.com/1broseidon/wingroup/internal/telemetry"
)

func runDaemon(args []string) int {
	fs := flag.NewFlagSet("daemon", flag.ContinueOnError)
	path := fs.String("path", "", "Config file path (default: ~/.config/wingroup/config.yaml)")
	headless := fs.Bool("headless", false, "Use the in-memory window backend instead of X11")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: wingroup daemon [--path PATH] [--headless]")
	}
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "daemon takes no arguments")
		fs.Usage()
		return 2
	}

	res, err := loadConfig(*path)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg := res.Config

	level := new(slog.LevelVar)
	level.Set(cfg.SlogLevel())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Init(ctx, telemetry.Config{
		Endpoint:  cfg.Telemetry.OTLPEndpoint,
		Headers:   cfg.Telemetry.Headers,
		Interval:  time.Duration(cfg.Telemetry.ExportIntervalSeconds) * time.Second,
		RuntimeID: cfg.RuntimeID,
	})
	if err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		tel.Shutdown(shutdownCtx)
	}()

	var (
		backend     platform.Backend
		linux       *platform.LinuxBackend
		backendName string
	)
	if *headless {
		backend = platform.NewMemoryBackend(platform.MemoryOptions{Atomic: cfg.Placement.Atomic})
		backendName = "memory"
	} else {
		linux, err = platform.NewLinuxBackendFromDisplay(platform.LinuxOptions{
			Atomic: cfg.Placement.Atomic,
			Shadow: shadowMode(cfg.Placement.ShadowCorrection),
		})
		if err != nil {
			log.Fatalf("Failed to connect to display: %v", err)
		}
		defer linux.Disconnect()
		backend = linux
		backendName = "x11"
	}

	peers, err := daemon.PeerHandles(cfg)
	if err != nil {
		log.Fatalf("Failed to resolve peers: %v", err)
	}
	var rpc remote.RPC
	if cfg.RuntimeID != "" {
		rpc = ipc.NewPeerClient(peers)
	}

	svc, err := daemon.New(daemon.Options{
		Config:      cfg,
		Backend:     backend,
		BackendName: backendName,
		RPC:         rpc,
		Metrics:     tel.Metrics,
		Tracer:      tel.Tracer,
		Logger:      logger,
		LogLevel:    level,
		LoadConfig: func() (*config.Config, error) {
			res, err := loadConfig(*path)
			if err != nil {
				return nil, err
			}
			return res.Config, nil
		},
	})
	if err != nil {
		log.Fatalf("Failed to create daemon: %v", err)
	}
	go svc.Run(ctx)

	socketPath, err := cfg.SocketPath()
	if err != nil {
		log.Fatalf("Failed to resolve socket path: %v", err)
	}
	ipcServer, err := ipc.NewServer(socketPath, svc, logger.With("component", "ipc"))
	if err != nil {
		log.Fatalf("Failed to create IPC server: %v", err)
	}
	if err := ipcServer.Start(); err != nil {
		log.Fatalf("Failed to start IPC server: %v", err)
	}
	defer ipcServer.Stop()

	reconciler := daemon.NewReconciler(daemon.ReconcilerConfig{
		Interval: cfg.ReconcileInterval(),
		Logger:   logger.With("component", "reconciler"),
	}, svc)
	go reconciler.Run(ctx)

	if linux != nil {
		handler, err := hotkeys.NewHandler(linux, svc, logger.With("component", "hotkeys"))
		if err != nil {
			log.Fatalf("Failed to set up hotkeys: %v", err)
		}
		if err := handler.Register(cfg.Hotkeys.Join, cfg.Hotkeys.Leave); err != nil {
			logger.Warn("hotkeys unavailable", "error", err)
		}
	}

	reload := func() {
		if err := svc.Reload(); err != nil {
			logger.Warn("config reload failed", "error", err)
		}
	}
	watchFiles := res.Files
	if len(watchFiles) == 0 && res.Path != "" {
		watchFiles = []string{res.Path}
	}
	if len(watchFiles) > 0 {
		watcher, err := config.NewWatcher(watchFiles, config.DefaultWatchDebounce, reload, logger.With("component", "config"))
		if err != nil {
			logger.Warn("config watching disabled", "error", err)
		} else {
			defer watcher.Close()
			go watcher.Run(ctx)
		}
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				logger.Info("received SIGHUP, reloading config")
				reload()
			}
		}
	}()

	logger.Info("wingroup daemon ready", "socket", socketPath, "backend", backendName)
	if linux != nil {
		go func() {
			<-ctx.Done()
			linux.StopEventLoop()
		}()
		linux.EventLoop()
	} else {
		<-ctx.Done()
	}
	logger.Info("shutting down wingroup daemon")
	return 0
}

func shadowMode(s config.ShadowCorrection) platform.ShadowMode {
	switch s {
	case config.ShadowOn:
		return platform.ShadowOn
	case config.ShadowOff:
		return platform.ShadowOff
	default:
		return platform.ShadowAuto
	}
}
