package calc

import (
	"fmt"
	"strconv"
	"strings"
)

// ErrorDisplay is shown after a failed evaluation.
const ErrorDisplay = "Error"

type State int

const (
	StateIdle State = iota
	StateEntering
	StateOperatorSet
)

func (s State) String() string {
	switch s {
	case StateEntering:
		return "entering"
	case StateOperatorSet:
		return "operator_set"
	default:
		return "idle"
	}
}

// Commit is a completed calculation ready to be logged.
type Commit struct {
	Expression string
	Result     string
}

// Snapshot is a read-only view of the machine for rendering.
type Snapshot struct {
	Display string
	Pending Op
	State   State
}

// Machine accumulates key presses into calculations.
//
// It is not safe for concurrent use; each screen owns one machine and feeds
// it events from a single goroutine.
type Machine struct {
	eval Evaluator

	display  string
	pending  Op
	operand  float64
	awaiting bool
}

// NewMachine returns a machine in the Idle state. precision <= 0 selects
// DefaultPrecision.
func NewMachine(precision int) *Machine {
	m := &Machine{eval: Evaluator{Precision: precision}}
	m.reset()
	return m
}

func (m *Machine) reset() {
	m.display = "0"
	m.pending = OpNone
	m.operand = 0
	m.awaiting = true
}

func (m *Machine) Display() string { return m.display }

// State is derived from the pending operator and the awaiting flag: an
// operator in flight means OperatorSet, otherwise a fresh buffer is Idle.
func (m *Machine) State() State {
	switch {
	case m.pending != OpNone:
		return StateOperatorSet
	case m.awaiting:
		return StateIdle
	default:
		return StateEntering
	}
}

func (m *Machine) Snapshot() Snapshot {
	return Snapshot{Display: m.display, Pending: m.pending, State: m.State()}
}

// Press applies one key. It returns a Commit and true only when an equals
// press produced a result that must be appended to the history log. Keys
// that do not apply in the current state are ignored.
func (m *Machine) Press(k Key) (Commit, bool) {
	switch k.Kind {
	case KeyDigit:
		m.pressDigit(k.Digit)
	case KeyDecimal:
		m.pressDecimal()
	case KeyOperator:
		m.pressOperator(k.Op)
	case KeyEquals:
		return m.pressEquals()
	case KeyClear:
		m.reset()
	}
	return Commit{}, false
}

// PressAll applies keys in order and returns every commit produced.
func (m *Machine) PressAll(keys []Key) []Commit {
	var out []Commit
	for _, k := range keys {
		if c, ok := m.Press(k); ok {
			out = append(out, c)
		}
	}
	return out
}

func (m *Machine) pressDigit(d byte) {
	if d < '0' || d > '9' {
		return
	}
	switch {
	case m.awaiting:
		m.display = string(d)
		m.awaiting = false
	case m.display == "0":
		m.display = string(d)
	default:
		m.display += string(d)
	}
}

func (m *Machine) pressDecimal() {
	if m.awaiting {
		m.display = "0."
		m.awaiting = false
		return
	}
	if strings.Contains(m.display, ".") {
		return
	}
	m.display += "."
}

func (m *Machine) pressOperator(op Op) {
	if op == OpNone {
		return
	}

	switch {
	case m.pending != OpNone && !m.awaiting:
		// Chained operation: fold the pending operation into the operand
		// without logging it.
		second, ok := m.buffer()
		if !ok {
			return
		}
		r, err := m.eval.Evaluate(m.operand, m.pending, second)
		if err != nil {
			m.fail()
			return
		}
		m.operand = r
		m.display = FormatNumber(r)
	case m.pending != OpNone:
		// Operator pressed twice: the latest one wins.
	default:
		first, ok := m.buffer()
		if !ok {
			return
		}
		m.operand = first
	}

	m.pending = op
	m.awaiting = true
}

func (m *Machine) pressEquals() (Commit, bool) {
	if m.pending == OpNone {
		return Commit{}, false
	}
	second, ok := m.buffer()
	if !ok {
		return Commit{}, false
	}

	r, err := m.eval.Evaluate(m.operand, m.pending, second)
	if err != nil {
		m.fail()
		return Commit{}, false
	}

	result := FormatNumber(r)
	c := Commit{
		Expression: fmt.Sprintf("%s %s %s", FormatNumber(m.operand), m.pending.Glyph(), FormatNumber(second)),
		Result:     result,
	}

	m.display = result
	m.pending = OpNone
	m.operand = r
	m.awaiting = true
	return c, true
}

func (m *Machine) fail() {
	m.reset()
	m.display = ErrorDisplay
}

// buffer parses the display. It refuses the error sentinel, and an operand
// beyond float64 range fails the machine the way an overflowing result does.
func (m *Machine) buffer() (float64, bool) {
	if m.display == ErrorDisplay {
		return 0, false
	}
	v, err := strconv.ParseFloat(m.display, 64)
	if err != nil {
		m.fail()
		return 0, false
	}
	return v, true
}
