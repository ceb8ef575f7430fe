package daemon

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper removes state for windows that vanished without a destroy
// notification.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// ReconcilerConfig holds configuration for the reconciler.
type ReconcilerConfig struct {
	Interval time.Duration
	Logger   *slog.Logger
}

// Reconciler periodically checks for state drift and corrects it.
type Reconciler struct {
	interval time.Duration
	sweeper  Sweeper
	logger   *slog.Logger
}

// NewReconciler creates a new reconciler with the given configuration.
func NewReconciler(cfg ReconcilerConfig, sweeper Sweeper) *Reconciler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Reconciler{
		interval: interval,
		sweeper:  sweeper,
		logger:   logger,
	}
}

// Run starts the reconciliation loop. Blocks until context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reconciler started", "interval", r.interval)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return
		case <-ticker.C:
			r.reconcile(ctx)
		}
	}
}

// reconcile performs a single reconciliation pass.
func (r *Reconciler) reconcile(ctx context.Context) {
	// Recover from panics to prevent crashing the daemon
	defer func() {
		if err := recover(); err != nil {
			r.logger.Error("reconciler panic recovered", "error", err)
		}
	}()

	gone, err := r.sweeper.Sweep(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Error("reconciler: sweep failed", "error", err)
		}
		return
	}
	if gone > 0 {
		r.logger.Info("reconciler: forgot vanished windows", "count", gone)
	}
}

// ReconcileNow triggers an immediate reconciliation.
func (r *Reconciler) ReconcileNow(ctx context.Context) {
	r.reconcile(ctx)
}

// Sweep forgets tracked windows the backend no longer knows.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	var gone int
	err := s.loop.Call(ctx, func() error {
		gone = s.sweep()
		return nil
	})
	return gone, err
}
