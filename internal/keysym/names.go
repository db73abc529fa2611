package keysym

import "strconv"

// Canonical modifiers. These are the only symbols treated as modifiers.
var (
	Alt   = Named("alt")
	Ctrl  = Named("ctrl")
	Cmd   = Named("cmd")
	Shift = Named("shift")
)

// Raw left/right modifier variants as delivered by event sources.
var (
	AltL   = Named("alt_l")
	AltR   = Named("alt_r")
	AltGr  = Named("alt_gr")
	CtrlL  = Named("ctrl_l")
	CtrlR  = Named("ctrl_r")
	CmdL   = Named("cmd_l")
	CmdR   = Named("cmd_r")
	ShiftL = Named("shift_l")
	ShiftR = Named("shift_r")
)

// Common named keys.
var (
	Enter     = Named("enter")
	Tab       = Named("tab")
	Space     = Named("space")
	Backspace = Named("backspace")
	Delete    = Named("delete")
	Esc       = Named("esc")
	Up        = Named("up")
	Down      = Named("down")
	Left      = Named("left")
	Right     = Named("right")
	Home      = Named("home")
	End       = Named("end")
	PageUp    = Named("page_up")
	PageDown  = Named("page_down")
	Insert    = Named("insert")
	CapsLock  = Named("caps_lock")
	NumLock   = Named("num_lock")
	Menu      = Named("menu")
)

// Function returns the symbol for function key Fn.
func Function(n int) Symbol {
	return Named("f" + strconv.Itoa(n))
}

var modifiers = func() map[Symbol]struct{} {
	m := make(map[Symbol]struct{})
	for _, s := range Modifiers() {
		m[s] = struct{}{}
	}
	return m
}()

// IsModifier reports whether s is one of the canonical modifiers.
// Raw variants such as ctrl_r are not modifiers until remapped.
func IsModifier(s Symbol) bool {
	_, ok := modifiers[s]
	return ok
}

// Modifiers returns the canonical modifier set in alphabetical order.
func Modifiers() []Symbol {
	return []Symbol{Alt, Cmd, Ctrl, Shift}
}
