package keysym

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSymbolString(t *testing.T) {
	tests := []struct {
		name string
		sym  Symbol
		want string
	}{
		{"letter", Char('a'), "a"},
		{"upper", Char('A'), "A"},
		{"digit", Char('3'), "3"},
		{"bang", Char('!'), "!"},
		{"backslash", Char('\\'), `\`},
		{"single quote", Char('\''), "'"},
		{"double quote", Char('"'), `"`},
		{"shift", Shift, "<shift>"},
		{"right", Right, "<right>"},
		{"function", Function(12), "<f12>"},
		{"zero", Symbol{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sym.String())
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Symbol
	}{
		{"a", Char('a')},
		{"<", Char('<')},
		{">", Char('>')},
		{`\`, Char('\\')},
		{"é", Char('é')},
		{"<shift>", Shift},
		{"shift_l", ShiftL},
		{"<SHIFT_R>", ShiftR},
		{"page_down", PageDown},
		{"<media_next>", Named("media_next")},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseErrors(t *testing.T) {
	_, err := Parse("")
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = Parse("<>")
	assert.Error(t, err)

	_, err = Parse("\xff")
	assert.Error(t, err)
}

func TestParseRoundTrip(t *testing.T) {
	for _, s := range []Symbol{Char('x'), Char('<'), Shift, Enter, Function(1)} {
		got, err := Parse(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
}

func TestCategoryFromIdentityOnly(t *testing.T) {
	assert.True(t, Char('a').IsChar())
	assert.False(t, Char('a').IsNamed())
	assert.True(t, Right.IsNamed())
	assert.True(t, Space.IsNamed())
	assert.True(t, Symbol{}.IsZero())
}

func TestIsModifier(t *testing.T) {
	for _, m := range Modifiers() {
		assert.True(t, IsModifier(m), m.String())
	}
	assert.False(t, IsModifier(CtrlR), "raw variants are not modifiers until remapped")
	assert.False(t, IsModifier(AltGr))
	assert.False(t, IsModifier(Char('a')))
	assert.False(t, IsModifier(Right))
}

func TestDefaultRemap(t *testing.T) {
	r := DefaultRemap()

	assert.Equal(t, Ctrl, r.Normalize(CtrlL))
	assert.Equal(t, Ctrl, r.Normalize(CtrlR))
	assert.Equal(t, Shift, r.Normalize(ShiftL))
	assert.Equal(t, Shift, r.Normalize(ShiftR))
	assert.Equal(t, Alt, r.Normalize(AltR))
	assert.Equal(t, Cmd, r.Normalize(CmdL))

	// unmapped keys pass through
	assert.Equal(t, Char('a'), r.Normalize(Char('a')))
	assert.Equal(t, AltGr, r.Normalize(AltGr))
	assert.Equal(t, Named("whatever"), r.Normalize(Named("whatever")))
}

func TestRemapWith(t *testing.T) {
	base := DefaultRemap()
	extra, err := ParseRemap(map[string]string{"alt_gr": "<alt>", "caps_lock": "esc"})
	require.NoError(t, err)

	r := base.With(extra)
	assert.Equal(t, Alt, r.Normalize(AltGr))
	assert.Equal(t, Esc, r.Normalize(CapsLock))
	assert.Equal(t, Ctrl, r.Normalize(CtrlR))

	// base is not mutated
	assert.Equal(t, AltGr, base.Normalize(AltGr))
}

func TestParseRemapError(t *testing.T) {
	_, err := ParseRemap(map[string]string{"": "<alt>"})
	assert.Error(t, err)
	_, err = ParseRemap(map[string]string{"a": ""})
	assert.Error(t, err)
}

func TestIgnoreSet(t *testing.T) {
	s := NewIgnoreSet(Shift, Char('q'))
	assert.True(t, s.Contains(Shift))
	assert.True(t, s.Contains(Char('q')))
	assert.False(t, s.Contains(ShiftL))
	assert.False(t, s.Contains(Ctrl))

	var empty IgnoreSet
	assert.False(t, empty.Contains(Shift))
}

func TestParseList(t *testing.T) {
	got, err := ParseList([]string{"a", "<shift>", "right"})
	require.NoError(t, err)
	assert.Equal(t, []Symbol{Char('a'), Shift, Right}, got)
	assert.Equal(t, []string{"a", "<shift>", "<right>"}, Strings(got))

	_, err = ParseList([]string{"a", ""})
	assert.Error(t, err)
}
