// Package keysym defines the canonical key identities that flow through
// keytally and the tables that normalize raw identities into them.
//
// A Symbol is a closed variant: either a printable character ('a', '!', '3')
// or a named key (<shift>, <right>, <f5>). The category of a symbol depends
// only on the raw key that produced it, never on surrounding state.
package keysym

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Kind discriminates the two symbol categories.
type Kind uint8

const (
	// KindInvalid is the zero Kind; a Symbol with this kind is unset.
	KindInvalid Kind = iota
	// KindChar is a printable symbol rendered as its literal character.
	KindChar
	// KindNamed is a non-printing key rendered as <name>.
	KindNamed
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindChar:
		return "char"
	case KindNamed:
		return "named"
	default:
		return "invalid"
	}
}

// Symbol identifies a physical or logical key.
// Symbols are comparable and may be used as map keys.
type Symbol struct {
	Kind Kind
	Char rune
	Name string
}

// ErrEmpty is returned by Parse for an empty key identity.
var ErrEmpty = errors.New("keysym: empty key identity")

// Char returns the printable symbol for r.
func Char(r rune) Symbol {
	return Symbol{Kind: KindChar, Char: r}
}

// Named returns the named-key symbol for name. Names are case-insensitive
// and stored lowercase.
func Named(name string) Symbol {
	return Symbol{Kind: KindNamed, Name: strings.ToLower(name)}
}

// IsZero reports whether s is the unset symbol.
func (s Symbol) IsZero() bool {
	return s.Kind == KindInvalid
}

// IsChar reports whether s is a printable symbol.
func (s Symbol) IsChar() bool {
	return s.Kind == KindChar
}

// IsNamed reports whether s is a named key.
func (s Symbol) IsNamed() bool {
	return s.Kind == KindNamed
}

// String renders the symbol: printable symbols as the literal character,
// named keys as <name>. Backslashes and quotes render as themselves.
func (s Symbol) String() string {
	switch s.Kind {
	case KindChar:
		return string(s.Char)
	case KindNamed:
		return "<" + s.Name + ">"
	default:
		return ""
	}
}

// GoString is used by %#v in test failures.
func (s Symbol) GoString() string {
	switch s.Kind {
	case KindChar:
		return fmt.Sprintf("keysym.Char(%q)", s.Char)
	case KindNamed:
		return fmt.Sprintf("keysym.Named(%q)", s.Name)
	default:
		return "keysym.Symbol{}"
	}
}

// Parse converts a textual key identity into a Symbol.
//
// A single character is a printable symbol. "<name>" and bare multi-character
// names such as "shift_l" or "right" are named keys. Unknown names are not an
// error; they pass through as named keys.
func Parse(s string) (Symbol, error) {
	if s == "" {
		return Symbol{}, ErrEmpty
	}
	if utf8.RuneCountInString(s) == 1 {
		r, _ := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError {
			return Symbol{}, fmt.Errorf("keysym: invalid utf-8 in %q", s)
		}
		return Char(r), nil
	}
	name := s
	if strings.HasPrefix(s, "<") && strings.HasSuffix(s, ">") {
		name = s[1 : len(s)-1]
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Symbol{}, fmt.Errorf("keysym: empty key name in %q", s)
	}
	return Named(name), nil
}

// ParseList parses each entry of names.
func ParseList(names []string) ([]Symbol, error) {
	out := make([]Symbol, 0, len(names))
	for _, n := range names {
		sym, err := Parse(n)
		if err != nil {
			return nil, err
		}
		out = append(out, sym)
	}
	return out, nil
}

// Strings renders each symbol; handy for log attributes.
func Strings(syms []Symbol) []string {
	out := make([]string, len(syms))
	for i, s := range syms {
		out[i] = s.String()
	}
	return out
}
