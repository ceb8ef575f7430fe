package hotkeys

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/1broseidon/wingroup/internal/platform"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/keybind"
	"github.com/BurntSushi/xgbutil/xevent"
)

// Actions are the group operations bound to hotkeys.
type Actions interface {
	ArmOrJoinActive(ctx context.Context) error
	LeaveActive(ctx context.Context) error
}

// x11Accessor is an optional interface for backends that expose X11 internals.
type x11Accessor interface {
	XUtil() *xgbutil.XUtil
	RootWindow() xproto.Window
}

// Handler manages global keyboard shortcuts
type Handler struct {
	xu      *xgbutil.XUtil
	root    xproto.Window
	actions Actions
	logger  *slog.Logger
	timeout time.Duration
}

var ignoreModsOnce sync.Once

// NewHandler creates a new hotkey handler.
func NewHandler(backend platform.Backend, actions Actions, logger *slog.Logger) (*Handler, error) {
	var xu *xgbutil.XUtil
	var root xproto.Window
	if accessor, ok := backend.(x11Accessor); ok {
		xu = accessor.XUtil()
		root = accessor.RootWindow()
	}
	if xu == nil {
		return nil, fmt.Errorf("hotkeys require an X11 backend")
	}
	if logger == nil {
		logger = slog.Default()
	}

	ignoreModsOnce.Do(func() {
		configureIgnoreMods(xu)
	})

	return &Handler{
		xu:      xu,
		root:    root,
		actions: actions,
		logger:  logger,
		timeout: 5 * time.Second,
	}, nil
}

// Register binds the join and leave hotkeys. An empty sequence leaves the
// action unbound.
func (h *Handler) Register(join, leave string) error {
	if join != "" {
		if err := h.RegisterFunc(join, h.run("join", h.actions.ArmOrJoinActive)); err != nil {
			return fmt.Errorf("failed to register join hotkey %q: %w", join, err)
		}
	}
	if leave != "" {
		if err := h.RegisterFunc(leave, h.run("leave", h.actions.LeaveActive)); err != nil {
			return fmt.Errorf("failed to register leave hotkey %q: %w", leave, err)
		}
	}
	return nil
}

// run adapts an action to a hotkey callback. Callbacks fire on the X event
// goroutine, so actions are bounded by a timeout.
func (h *Handler) run(name string, action func(context.Context) error) func() {
	return func() {
		h.logger.Debug("hotkey triggered", "action", name)
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()
		if err := action(ctx); err != nil {
			h.logger.Warn("hotkey action failed", "action", name, "error", err)
		}
	}
}

// RegisterFunc registers an arbitrary hotkey callback.
func (h *Handler) RegisterFunc(keySequence string, callback func()) error {
	return keybind.KeyPressFun(func(xu *xgbutil.XUtil, ev xevent.KeyPressEvent) {
		callback()
	}).Connect(h.xu, h.root, keySequence, true)
}

func configureIgnoreMods(xu *xgbutil.XUtil) {
	// Always ignore CapsLock.
	caps := uint16(xproto.ModMaskLock)

	numLock := modMaskForKeysym(xu, "Num_Lock")
	scrollLock := modMaskForKeysym(xu, "Scroll_Lock")

	unique := make(map[uint16]struct{})
	add := func(mask uint16) {
		unique[mask] = struct{}{}
	}

	add(0)
	base := []uint16{caps}
	if numLock != 0 && numLock != caps {
		base = append(base, numLock)
	}
	if scrollLock != 0 && scrollLock != caps && scrollLock != numLock {
		base = append(base, scrollLock)
	}

	for subset := 1; subset < (1 << len(base)); subset++ {
		var mask uint16
		for bit := range base {
			if subset&(1<<bit) != 0 {
				mask |= base[bit]
			}
		}
		add(mask)
	}

	ignore := make([]uint16, 0, len(unique))
	for mask := range unique {
		ignore = append(ignore, mask)
	}

	xevent.IgnoreMods = ignore
}

func modMaskForKeysym(xu *xgbutil.XUtil, keysym string) uint16 {
	for _, keycode := range keybind.StrToKeycodes(xu, keysym) {
		if mask := keybind.ModGet(xu, keycode); mask != 0 {
			return mask
		}
	}
	return 0
}
