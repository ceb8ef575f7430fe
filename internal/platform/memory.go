package platform

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrWindowNotFound is returned when a window name or id is unknown.
var ErrWindowNotFound = errors.New("window not found")

// MemoryOptions selects the capabilities reported by a MemoryBackend.
type MemoryOptions struct {
	Atomic            bool
	SelectiveDisable  bool
	ShadowCorrection  bool
	AtomicKinds       []Kind // nil means every native kind
	DefaultFrameInset Insets
}

// MemoryBackend is an in-process window system. It backs the headless daemon
// and the tests of every package above platform.
type MemoryBackend struct {
	mu           sync.Mutex
	opts         MemoryOptions
	nextID       WindowID
	windows      map[WindowID]*memoryWindow
	byName       map[string]WindowID
	active       WindowID
	transactions [][]Placement
	singles      []Placement
	watchers     map[WindowID]memoryWatch
}

type memoryWatch struct {
	onGeometry func(Rect)
	onDestroy  func()
}

type memoryWindow struct {
	win         Window
	insets      Insets
	interactive bool
	destroyed   bool
}

var (
	_ Backend         = (*MemoryBackend)(nil)
	_ GeometryWatcher = (*MemoryBackend)(nil)
)

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend(opts MemoryOptions) *MemoryBackend {
	return &MemoryBackend{
		opts:     opts,
		nextID:   1,
		windows:  make(map[WindowID]*memoryWindow),
		byName:   make(map[string]WindowID),
		watchers: make(map[WindowID]memoryWatch),
	}
}

// AddWindow registers a window and returns its id. Kind defaults to local.
func (b *MemoryBackend) AddWindow(name string, bounds Rect, c Constraints) WindowID {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.windows[id] = &memoryWindow{
		win: Window{
			ID:          id,
			Name:        name,
			Title:       name,
			Kind:        KindLocal,
			Bounds:      bounds,
			Constraints: c,
		},
		insets:      b.opts.DefaultFrameInset,
		interactive: true,
	}
	b.byName[name] = id
	if b.active == 0 {
		b.active = id
	}
	return id
}

// SetKind overrides the kind reported for a window.
func (b *MemoryBackend) SetKind(id WindowID, kind Kind) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if w, ok := b.windows[id]; ok {
		w.win.Kind = kind
	}
}

// SetFrameInsets overrides the frame insets of a window.
func (b *MemoryBackend) SetFrameInsets(id WindowID, insets Insets) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if w, ok := b.windows[id]; ok {
		w.insets = insets
	}
}

// Destroy marks a window as gone; later placements on it fail.
func (b *MemoryBackend) Destroy(id WindowID) {
	b.mu.Lock()
	w, ok := b.windows[id]
	if ok {
		w.destroyed = true
	}
	watch, watched := b.watchers[id]
	delete(b.watchers, id)
	b.mu.Unlock()

	if watched && watch.onDestroy != nil {
		watch.onDestroy()
	}
}

// UserMove simulates the user dragging or resizing a window. Watchers are
// notified outside the backend lock.
func (b *MemoryBackend) UserMove(id WindowID, bounds Rect) error {
	b.mu.Lock()
	w, err := b.liveLocked(id)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	w.win.Bounds = bounds
	watch, watched := b.watchers[id]
	b.mu.Unlock()

	if watched && watch.onGeometry != nil {
		watch.onGeometry(bounds)
	}
	return nil
}

func (b *MemoryBackend) Watch(id WindowID, onGeometry func(Rect), onDestroy func()) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.liveLocked(id); err != nil {
		return err
	}
	b.watchers[id] = memoryWatch{onGeometry: onGeometry, onDestroy: onDestroy}
	return nil
}

func (b *MemoryBackend) Unwatch(id WindowID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.watchers, id)
}

// SetActive changes the focused window.
func (b *MemoryBackend) SetActive(id WindowID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active = id
}

// Transactions returns a copy of every batch placed so far.
func (b *MemoryBackend) Transactions() [][]Placement {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]Placement, len(b.transactions))
	for i, tx := range b.transactions {
		out[i] = append([]Placement(nil), tx...)
	}
	return out
}

// SinglePlacements returns every MoveResize call made so far.
func (b *MemoryBackend) SinglePlacements() []Placement {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Placement(nil), b.singles...)
}

// Interactive reports whether user move/resize is enabled for a window.
func (b *MemoryBackend) Interactive(id WindowID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.windows[id]
	return ok && w.interactive
}

// Names returns all live window names, sorted.
func (b *MemoryBackend) Names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.byName))
	for name, id := range b.byName {
		if !b.windows[id].destroyed {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (b *MemoryBackend) SupportsAtomicPlacement(kind Kind) bool {
	if !b.opts.Atomic || kind == KindRemoteProxy {
		return false
	}
	if b.opts.AtomicKinds == nil {
		return true
	}
	for _, k := range b.opts.AtomicKinds {
		if k == kind {
			return true
		}
	}
	return false
}

func (b *MemoryBackend) SupportsSelectiveInteractiveDisable(kind Kind) bool {
	return b.opts.SelectiveDisable && kind != KindRemoteProxy
}

func (b *MemoryBackend) NeedsShadowCorrection(kind Kind) bool {
	return b.opts.ShadowCorrection && kind != KindRemoteProxy
}

func (b *MemoryBackend) Lookup(name string) (Window, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.byName[name]
	if !ok || b.windows[id].destroyed {
		return Window{}, fmt.Errorf("%q: %w", name, ErrWindowNotFound)
	}
	return b.windows[id].win, nil
}

func (b *MemoryBackend) Geometry(id WindowID) (Rect, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, err := b.liveLocked(id)
	if err != nil {
		return Rect{}, err
	}
	return w.win.Bounds, nil
}

func (b *MemoryBackend) ActiveWindow() (WindowID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active == 0 {
		return 0, fmt.Errorf("no active window")
	}
	return b.active, nil
}

func (b *MemoryBackend) MoveResize(id WindowID, bounds Rect) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, err := b.liveLocked(id)
	if err != nil {
		return err
	}
	w.win.Bounds = bounds
	b.singles = append(b.singles, Placement{ID: id, Bounds: bounds})
	return nil
}

func (b *MemoryBackend) PlaceBatch(placements []Placement) []PlacementError {
	b.mu.Lock()
	defer b.mu.Unlock()

	var failures []PlacementError
	applied := make([]Placement, 0, len(placements))
	for _, p := range placements {
		w, err := b.liveLocked(p.ID)
		if err != nil {
			failures = append(failures, PlacementError{ID: p.ID, Err: err})
			continue
		}
		w.win.Bounds = p.Bounds
		applied = append(applied, p)
	}
	b.transactions = append(b.transactions, applied)
	return failures
}

func (b *MemoryBackend) FrameInsets(id WindowID) (Insets, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, err := b.liveLocked(id)
	if err != nil {
		return Insets{}, err
	}
	return w.insets, nil
}

func (b *MemoryBackend) SetInteractive(id WindowID, enabled bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, err := b.liveLocked(id)
	if err != nil {
		return err
	}
	w.interactive = enabled
	return nil
}

func (b *MemoryBackend) liveLocked(id WindowID) (*memoryWindow, error) {
	w, ok := b.windows[id]
	if !ok || w.destroyed {
		return nil, fmt.Errorf("window %d: %w", id, ErrWindowNotFound)
	}
	return w, nil
}
