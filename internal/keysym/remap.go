package keysym

import "fmt"

// RemapTable substitutes raw symbols with canonical ones. It is built once
// at startup and only read afterwards.
type RemapTable map[Symbol]Symbol

// DefaultRemap collapses left/right modifier variants onto their canonical
// modifier.
func DefaultRemap() RemapTable {
	return RemapTable{
		AltL:   Alt,
		AltR:   Alt,
		CtrlL:  Ctrl,
		CtrlR:  Ctrl,
		CmdL:   Cmd,
		CmdR:   Cmd,
		ShiftL: Shift,
		ShiftR: Shift,
	}
}

// Normalize returns the canonical symbol for raw. Unmapped symbols are
// already canonical and are returned unchanged.
func (t RemapTable) Normalize(raw Symbol) Symbol {
	if k, ok := t[raw]; ok {
		return k
	}
	return raw
}

// With returns a copy of t with extra entries layered on top.
func (t RemapTable) With(extra RemapTable) RemapTable {
	out := make(RemapTable, len(t)+len(extra))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// ParseRemap builds a table from textual raw -> canonical pairs.
func ParseRemap(pairs map[string]string) (RemapTable, error) {
	out := make(RemapTable, len(pairs))
	for from, to := range pairs {
		f, err := Parse(from)
		if err != nil {
			return nil, fmt.Errorf("remap key %q: %w", from, err)
		}
		t, err := Parse(to)
		if err != nil {
			return nil, fmt.Errorf("remap value for %q: %w", from, err)
		}
		out[f] = t
	}
	return out, nil
}

// IgnoreSet holds canonical symbols that are dropped before tracking.
type IgnoreSet map[Symbol]struct{}

// NewIgnoreSet returns a set containing syms.
func NewIgnoreSet(syms ...Symbol) IgnoreSet {
	s := make(IgnoreSet, len(syms))
	for _, k := range syms {
		s[k] = struct{}{}
	}
	return s
}

// Contains reports whether k is ignored. k must already be normalized.
func (s IgnoreSet) Contains(k Symbol) bool {
	_, ok := s[k]
	return ok
}
