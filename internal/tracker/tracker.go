// Package tracker reduces a stream of normalized key-down/key-up events to
// logical keystrokes.
//
// The Tracker owns the press state: the insertion-ordered set of keys that
// are currently considered held. A down event for a key that is not held
// starts a keystroke; a down event for a held key is an OS auto-repeat and is
// ignored. Combos are emitted on down events only, for non-modifier keys.
//
// Up events without a matching down are expected. They happen when shift is
// released before the symbol it modified (the shifted symbol's release is
// never reported) and when the OS enters or leaves secure input. Such keys
// stay "locked in" the press state. Locked-in keys only matter when they
// are modifiers, so the tracker clears them lazily: once the state holds at
// least GCThreshold keys and none of them is a modifier, an orphan release
// empties it.
package tracker

import (
	"log/slog"
	"slices"
	"sync"

	"keytally/internal/keysym"
)

// DefaultGCThreshold is the press-state size at which an orphan release
// clears locked-in keys.
const DefaultGCThreshold = 5

// Config configures a Tracker.
type Config struct {
	// GCThreshold is the minimum number of held keys before an orphan
	// release may clear the press state. Values below 1 use the default.
	GCThreshold int

	// Logger receives orphan and collection diagnostics.
	Logger *slog.Logger
}

// UpResult describes what a key-up did to the press state.
type UpResult struct {
	// Released is true when the key was held and has been removed.
	Released bool
	// Orphan is true when the key was not held.
	Orphan bool
	// Collected holds the keys cleared by garbage collection, if any.
	Collected []keysym.Symbol
}

// Tracker is the press-state machine. It is safe for concurrent use; all
// transitions are serialized by a single mutex.
type Tracker struct {
	mu        sync.Mutex
	held      []keysym.Symbol
	threshold int
	log       *slog.Logger
}

// New creates a Tracker with an empty press state.
func New(cfg Config) *Tracker {
	if cfg.GCThreshold < 1 {
		cfg.GCThreshold = DefaultGCThreshold
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Tracker{
		held:      make([]keysym.Symbol, 0, 8),
		threshold: cfg.GCThreshold,
		log:       cfg.Logger,
	}
}

// Down records k as held. It returns the combo to log and true when k
// starts a new keystroke of a non-modifier key. Repeats of a held key and
// modifier presses return false.
func (t *Tracker) Down(k keysym.Symbol) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.isHeld(k) {
		return "", false
	}
	t.held = append(t.held, k)
	t.log.Debug("key down", "key", k.String(), "held", keysym.Strings(t.held))

	if keysym.IsModifier(k) {
		return "", false
	}
	return FormatCombo(t.held, k), true
}

// Up records k as released.
func (t *Tracker) Up(k keysym.Symbol) UpResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	if i := slices.Index(t.held, k); i >= 0 {
		t.held = slices.Delete(t.held, i, i+1)
		t.log.Debug("key up", "key", k.String(), "held", keysym.Strings(t.held))
		return UpResult{Released: true}
	}

	t.log.Warn("up event without a paired down event", "key", k.String())
	res := UpResult{Orphan: true}
	if len(t.held) >= t.threshold && !t.modifierHeld() {
		t.log.Debug("clearing locked-in keys", "held", keysym.Strings(t.held))
		res.Collected = t.held
		t.held = make([]keysym.Symbol, 0, 8)
	}
	return res
}

// Held returns a copy of the press state in insertion order.
func (t *Tracker) Held() []keysym.Symbol {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.held)
}

// Len returns the number of held keys.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.held)
}

// Threshold returns the garbage-collection threshold in effect.
func (t *Tracker) Threshold() int {
	return t.threshold
}

func (t *Tracker) isHeld(k keysym.Symbol) bool {
	return slices.Contains(t.held, k)
}

func (t *Tracker) modifierHeld() bool {
	return slices.ContainsFunc(t.held, keysym.IsModifier)
}
