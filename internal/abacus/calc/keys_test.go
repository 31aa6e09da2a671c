package calc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/abacus/internal/abacus/calc"
)

func TestParseKey(t *testing.T) {
	tests := []struct {
		in     string
		expect calc.Key
		ok     bool
	}{
		{"7", calc.Digit('7'), true},
		{" 7 ", calc.Digit('7'), true},
		{"７", calc.Digit('7'), true},
		{".", calc.Decimal(), true},
		{"+", calc.Operator(calc.OpAdd), true},
		{"＋", calc.Operator(calc.OpAdd), true},
		{"-", calc.Operator(calc.OpSub), true},
		{"*", calc.Operator(calc.OpMul), true},
		{"×", calc.Operator(calc.OpMul), true},
		{"/", calc.Operator(calc.OpDiv), true},
		{"÷", calc.Operator(calc.OpDiv), true},
		{"=", calc.Equals(), true},
		{"Enter", calc.Equals(), true},
		{"AC", calc.Clear(), true},
		{"c", calc.Clear(), true},
		{"%", calc.Key{Kind: calc.KeyUnknown}, false},
		{"12", calc.Key{}, false},
		{"", calc.Key{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := calc.ParseKey(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expect, got)
		})
	}
}

func TestParseKeys(t *testing.T) {
	keys := calc.ParseKeys("12+3 = AC")
	assert.Equal(t, []calc.Key{
		calc.Digit('1'),
		calc.Digit('2'),
		calc.Operator(calc.OpAdd),
		calc.Digit('3'),
		calc.Equals(),
		calc.Clear(),
	}, keys)
}

func TestParseKeys_KeepsUnknownRunes(t *testing.T) {
	keys := calc.ParseKeys("1%")
	assert.Len(t, keys, 2)
	assert.Equal(t, calc.KeyUnknown, keys[1].Kind)
}

func TestParseKeys_ClearOnlyAsWholeWord(t *testing.T) {
	keys := calc.ParseKeys("abc5+3= C")
	for _, k := range keys[:3] {
		assert.Equal(t, calc.KeyUnknown, k.Kind)
	}
	assert.Equal(t, calc.Clear(), keys[len(keys)-1])

	m := calc.NewMachine(0)
	press(m, "9 +")
	commits := m.PressAll(calc.ParseKeys("abc5="))
	require.Len(t, commits, 1)
	assert.Equal(t, "9 + 5", commits[0].Expression)
}

func TestKey_String(t *testing.T) {
	assert.Equal(t, "5", calc.Digit('5').String())
	assert.Equal(t, "÷", calc.Operator(calc.OpDiv).String())
	assert.Equal(t, "=", calc.Equals().String())
	assert.Equal(t, "C", calc.Clear().String())
	assert.Equal(t, "?", calc.Key{}.String())
}
