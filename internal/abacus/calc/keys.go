package calc

import (
	"strings"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

type KeyKind int

const (
	KeyUnknown KeyKind = iota
	KeyDigit
	KeyDecimal
	KeyOperator
	KeyEquals
	KeyClear
)

// Key is a single keypad event.
type Key struct {
	Kind  KeyKind
	Digit byte // '0'..'9' when Kind == KeyDigit
	Op    Op   // when Kind == KeyOperator
}

func Digit(d byte) Key   { return Key{Kind: KeyDigit, Digit: d} }
func Operator(op Op) Key { return Key{Kind: KeyOperator, Op: op} }
func Decimal() Key       { return Key{Kind: KeyDecimal} }
func Equals() Key        { return Key{Kind: KeyEquals} }
func Clear() Key         { return Key{Kind: KeyClear} }

func (k Key) String() string {
	switch k.Kind {
	case KeyDigit:
		return string(k.Digit)
	case KeyDecimal:
		return "."
	case KeyOperator:
		return k.Op.String()
	case KeyEquals:
		return "="
	case KeyClear:
		return "C"
	default:
		return "?"
	}
}

var wordKeys = map[string]Key{
	"c":     Clear(),
	"ac":    Clear(),
	"clear": Clear(),
	"enter": Equals(),
}

// ParseKey parses one key token such as "7", "×", "=" or "AC".
// Full-width forms are folded to their narrow equivalents first.
// Unrecognised tokens yield a KeyUnknown key and false.
func ParseKey(tok string) (Key, bool) {
	tok = normalize(strings.TrimSpace(tok))
	if k, ok := wordKeys[strings.ToLower(tok)]; ok {
		return k, true
	}
	r := []rune(tok)
	if len(r) != 1 {
		return Key{}, false
	}
	return parseRune(r[0])
}

// ParseKeys splits a line of keypad input into keys. Whitespace separates
// words ("AC", "enter"); any other token is read one rune at a time, so
// "12+3=" yields five keys. Clear is only recognised as a whole word, so a
// stray letter inside other text cannot reset the machine. Unknown runes are
// kept as KeyUnknown so the machine can ignore them.
func ParseKeys(line string) []Key {
	var keys []Key
	for _, field := range strings.Fields(normalize(line)) {
		if k, ok := wordKeys[strings.ToLower(field)]; ok {
			keys = append(keys, k)
			continue
		}
		for _, r := range field {
			k, _ := parseRune(r)
			keys = append(keys, k)
		}
	}
	return keys
}

func parseRune(r rune) (Key, bool) {
	switch {
	case r >= '0' && r <= '9':
		return Digit(byte(r)), true
	case r == '.' || r == ',':
		return Decimal(), true
	case r == '+':
		return Operator(OpAdd), true
	case r == '-' || r == '−':
		return Operator(OpSub), true
	case r == '*' || r == '×' || r == 'x':
		return Operator(OpMul), true
	case r == '/' || r == '÷':
		return Operator(OpDiv), true
	case r == '=':
		return Equals(), true
	}
	return Key{Kind: KeyUnknown}, false
}

func normalize(s string) string {
	return width.Narrow.String(norm.NFC.String(s))
}
