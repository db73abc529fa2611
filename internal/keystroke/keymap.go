package keystroke

import (
	"fmt"
	"sync"
	"unicode"

	"keytally/internal/keysym"
)

// evdev key codes (linux/input-event-codes.h).
const (
	keyEsc        = 1
	keyBackspace  = 14
	keyTab        = 15
	keyEnter      = 28
	keyLeftCtrl   = 29
	keyLeftShift  = 42
	keyRightShift = 54
	keyLeftAlt    = 56
	keySpace      = 57
	keyCapsLock   = 58
	keyNumLock    = 69
	keyKPEnter    = 96
	keyRightCtrl  = 97
	keyRightAlt   = 100
	keyHome       = 102
	keyUp         = 103
	keyPageUp     = 104
	keyLeft       = 105
	keyRight      = 106
	keyEnd        = 107
	keyDown       = 108
	keyPageDown   = 109
	keyInsert     = 110
	keyDelete     = 111
	keyLeftMeta   = 125
	keyRightMeta  = 126
	keyCompose    = 127
)

// printable maps key codes to their unshifted and shifted output on a US
// layout.
var printable = map[uint16][2]rune{
	2: {'1', '!'}, 3: {'2', '@'}, 4: {'3', '#'}, 5: {'4', '$'}, 6: {'5', '%'},
	7: {'6', '^'}, 8: {'7', '&'}, 9: {'8', '*'}, 10: {'9', '('}, 11: {'0', ')'},
	12: {'-', '_'}, 13: {'=', '+'},
	16: {'q', 'Q'}, 17: {'w', 'W'}, 18: {'e', 'E'}, 19: {'r', 'R'}, 20: {'t', 'T'},
	21: {'y', 'Y'}, 22: {'u', 'U'}, 23: {'i', 'I'}, 24: {'o', 'O'}, 25: {'p', 'P'},
	26: {'[', '{'}, 27: {']', '}'},
	30: {'a', 'A'}, 31: {'s', 'S'}, 32: {'d', 'D'}, 33: {'f', 'F'}, 34: {'g', 'G'},
	35: {'h', 'H'}, 36: {'j', 'J'}, 37: {'k', 'K'}, 38: {'l', 'L'},
	39: {';', ':'}, 40: {'\'', '"'}, 41: {'`', '~'}, 43: {'\\', '|'},
	44: {'z', 'Z'}, 45: {'x', 'X'}, 46: {'c', 'C'}, 47: {'v', 'V'}, 48: {'b', 'B'},
	49: {'n', 'N'}, 50: {'m', 'M'},
	51: {',', '<'}, 52: {'.', '>'}, 53: {'/', '?'},
}

// keypad output does not depend on shift.
var keypad = map[uint16]rune{
	55: '*', 71: '7', 72: '8', 73: '9', 74: '-', 75: '4', 76: '5', 77: '6',
	78: '+', 79: '1', 80: '2', 81: '3', 82: '0', 83: '.', 98: '/',
}

var named = map[uint16]keysym.Symbol{
	keyEsc:        keysym.Esc,
	keyBackspace:  keysym.Backspace,
	keyTab:        keysym.Tab,
	keyEnter:      keysym.Enter,
	keyKPEnter:    keysym.Enter,
	keySpace:      keysym.Space,
	keyCapsLock:   keysym.CapsLock,
	keyNumLock:    keysym.NumLock,
	keyHome:       keysym.Home,
	keyUp:         keysym.Up,
	keyPageUp:     keysym.PageUp,
	keyLeft:       keysym.Left,
	keyRight:      keysym.Right,
	keyEnd:        keysym.End,
	keyDown:       keysym.Down,
	keyPageDown:   keysym.PageDown,
	keyInsert:     keysym.Insert,
	keyDelete:     keysym.Delete,
	keyCompose:    keysym.Menu,
	keyLeftCtrl:   keysym.CtrlL,
	keyRightCtrl:  keysym.CtrlR,
	keyLeftShift:  keysym.ShiftL,
	keyRightShift: keysym.ShiftR,
	keyLeftAlt:    keysym.AltL,
	keyRightAlt:   keysym.AltR,
	keyLeftMeta:   keysym.CmdL,
	keyRightMeta:  keysym.CmdR,
}

// function key codes: F1-F10 are contiguous, F11 and F12 are not.
func functionKey(code uint16) (int, bool) {
	switch {
	case code >= 59 && code <= 68:
		return int(code-59) + 1, true
	case code == 87:
		return 11, true
	case code == 88:
		return 12, true
	}
	return 0, false
}

// Layout translates evdev key codes into raw symbols. It tracks shift and
// caps lock so printable keys report what they produce. A Layout is safe
// for concurrent use; Evdev shares one between its device readers so
// shift held on one keyboard applies to keys typed on another.
type Layout struct {
	mu             sync.Mutex
	shiftL, shiftR bool
	capsLock       bool
}

// evdev EV_KEY values.
const (
	valueUp     = 0
	valueDown   = 1
	valueRepeat = 2
)

// Translate returns the symbol and direction for an EV_KEY event in the
// current modifier state, then applies the transition to that state.
// Autorepeat is reported as another down. ok is false for unknown values.
func (l *Layout) Translate(code uint16, value int32) (sym keysym.Symbol, dir Direction, ok bool) {
	switch value {
	case valueUp:
		dir = Up
	case valueDown, valueRepeat:
		dir = Down
	default:
		return keysym.Symbol{}, 0, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	sym = l.symbol(code)
	if value != valueRepeat {
		l.update(code, dir)
	}
	return sym, dir, true
}

func (l *Layout) symbol(code uint16) keysym.Symbol {
	if pair, ok := printable[code]; ok {
		r := pair[0]
		shifted := l.shiftL || l.shiftR
		if unicode.IsLetter(r) {
			if shifted != l.capsLock {
				r = pair[1]
			}
		} else if shifted {
			r = pair[1]
		}
		return keysym.Char(r)
	}
	if r, ok := keypad[code]; ok {
		return keysym.Char(r)
	}
	if s, ok := named[code]; ok {
		return s
	}
	if n, ok := functionKey(code); ok {
		return keysym.Function(n)
	}
	return keysym.Named(fmt.Sprintf("key_%d", code))
}

func (l *Layout) update(code uint16, dir Direction) {
	switch code {
	case keyLeftShift:
		l.shiftL = dir == Down
	case keyRightShift:
		l.shiftR = dir == Down
	case keyCapsLock:
		if dir == Down {
			l.capsLock = !l.capsLock
		}
	}
}
