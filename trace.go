package pinisim

import (
	"strconv"
	"strings"

	"github.com/masktrace/pinisim/symbit"
)

// Config holds the options the engine recognises, per 6.
type Config struct {
	// Shares is d, the number of secret shares. Must be >= 2.
	Shares int
	// MaxCycles optionally bounds the number of cycles simulated. If zero,
	// the run stops at the last cycle present in the InputTrace.
	MaxCycles int
	// TopModule names the top-level gadget module.
	TopModule string
	// DUTPath is the dot-separated scope path of the top instance within
	// the input trace (e.g. "tb.dut").
	DUTPath string
	// InValid names the signal marking cycle 0 (the first simulation
	// cycle begins on its first 1).
	InValid string
}

// InputTrace supplies (cycle, wire path) -> 0|1 for the externally recorded
// value-change record of the top-level input pins. It is read-only from the
// engine's perspective.
type InputTrace interface {
	// Value returns the value of wire at the given cycle. ok is false if
	// the trace has no recorded value (MissingInputError) and unknown is
	// true if the value is present but is x/z (UnknownValueError).
	Value(cycle int, wire string) (value bool, unknown bool, ok bool)
	// LastCycle returns the last cycle index present in the trace.
	LastCycle() int
}

// MapTrace is a simple in-memory InputTrace, keyed by "wire\x00cycle".
type MapTrace struct {
	values map[string]bool
	xz     map[string]bool
	last   int
}

// NewMapTrace returns an empty MapTrace.
func NewMapTrace() *MapTrace {
	return &MapTrace{values: make(map[string]bool), xz: make(map[string]bool)}
}

func traceKey(cycle int, wire string) string {
	var b strings.Builder
	b.WriteString(wire)
	b.WriteByte(0)
	b.WriteString(strconv.Itoa(cycle))
	return b.String()
}

// Set records a concrete 0/1 value for wire at cycle.
func (t *MapTrace) Set(cycle int, wire string, value bool) *MapTrace {
	t.values[traceKey(cycle, wire)] = value
	if cycle > t.last {
		t.last = cycle
	}
	return t
}

// SetUnknown records an x/z value for wire at cycle.
func (t *MapTrace) SetUnknown(cycle int, wire string) *MapTrace {
	t.xz[traceKey(cycle, wire)] = true
	if cycle > t.last {
		t.last = cycle
	}
	return t
}

// Value implements InputTrace.
func (t *MapTrace) Value(cycle int, wire string) (value, unknown, ok bool) {
	key := traceKey(cycle, wire)
	if t.xz[key] {
		return false, true, true
	}
	v, ok := t.values[key]
	return v, false, ok
}

// LastCycle implements InputTrace.
func (t *MapTrace) LastCycle() int { return t.last }

// AttributeEntry is one wire's recorded SymbolicBit attributes at one
// cycle, flattened for emission (share indices become separate share_i
// booleans, per 6).
type AttributeEntry struct {
	Scope         string
	Wire          string
	Cycle         int
	Value         bool
	Deterministic bool
	RandomID      *symbit.RandomID
	Shares        []bool // Shares[i] = true iff sensitivity_glitch contains i
	StableShares  []bool // StableShares[i] = true iff sensitivity_stable contains i
}

// AttributeLog is the per-scope, per-wire, per-cycle attribute trace the
// engine produces.
type AttributeLog struct {
	Entries []AttributeEntry
}

// VerdictReport is the final output: every violation observed, plus the
// overall pass/fail verdict (true iff no violation was ever recorded).
type VerdictReport struct {
	Violations []Violation
}

// Secure reports whether the run produced no violations.
func (r *VerdictReport) Secure() bool { return len(r.Violations) == 0 }
