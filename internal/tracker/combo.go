package tracker

import (
	"sort"
	"strings"

	"keytally/internal/keysym"
)

// Joiner separates the parts of a combo. A combo containing it is a
// multi-key combo.
const Joiner = " + "

// FormatCombo renders the canonical combo for trigger given the keys held
// at the moment it went down.
//
// Only modifiers from held contribute. A lone <shift> is dropped when the
// trigger is a printable symbol since the symbol already encodes it
// (shift+a arrives as A); shift with a named key is kept. Modifiers are
// sorted by their rendered form and the trigger always comes last.
func FormatCombo(held []keysym.Symbol, trigger keysym.Symbol) string {
	mods := make([]string, 0, 4)
	shiftOnly := true
	for _, k := range held {
		if k == trigger || !keysym.IsModifier(k) {
			continue
		}
		if k != keysym.Shift {
			shiftOnly = false
		}
		mods = append(mods, k.String())
	}

	if len(mods) == 1 && shiftOnly && trigger.IsChar() {
		mods = mods[:0]
	}

	sort.Strings(mods)
	return strings.Join(append(mods, trigger.String()), Joiner)
}

// IsMultiKey reports whether combo has more than one part.
func IsMultiKey(combo string) bool {
	return strings.Contains(combo, Joiner)
}
