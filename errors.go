package pinisim

import "fmt"

// Elaboration errors are fatal: no simulation is attempted while any of
// these stand. Each carries enough of a wire/module path for a caller to
// locate the offending netlist fragment.

// MultiDriverError reports a wire driven by more than one instance output
// or module input port.
type MultiDriverError struct {
	Module string
	Wire   string
}

func (e *MultiDriverError) Error() string {
	return fmt.Sprintf("%s: wire %q has more than one driver", e.Module, e.Wire)
}

// NoDriverError reports a wire (an instance pin or a module output port)
// that is not driven by any instance output or module input port.
type NoDriverError struct {
	Module string
	Wire   string
}

func (e *NoDriverError) Error() string {
	return fmt.Sprintf("%s: wire %q is not connected to any output", e.Module, e.Wire)
}

// ClockAmbiguousError reports a module with more than one wire carrying the
// clock attribute. Elaboration accepts a module with no clock wire; the
// single clock port of the top-level gadget is checked by BuildGadget.
type ClockAmbiguousError struct {
	Module string
	Count  int
}

func (e *ClockAmbiguousError) Error() string {
	return fmt.Sprintf("%s: expected exactly one clock wire, found %d", e.Module, e.Count)
}

// CombinationalLoopError reports a cycle in a module's combinational
// dependency graph, with the instance names forming the cycle in order.
type CombinationalLoopError struct {
	Module string
	Cycle  []string
}

func (e *CombinationalLoopError) Error() string {
	return fmt.Sprintf("%s: combinational loop through %v", e.Module, e.Cycle)
}

// UnsupportedCellError reports an instance referencing a cell name outside
// the fixed library and outside the set of known submodules.
type UnsupportedCellError struct {
	Module   string
	Instance string
	Cell     string
}

func (e *UnsupportedCellError) Error() string {
	return fmt.Sprintf("%s.%s: unsupported cell %q", e.Module, e.Instance, e.Cell)
}

// BadAnnotationError reports a gadget-layer annotation that is absent,
// malformed, or inconsistent (e.g. a latency missing on a pipeline gadget
// port, or an rnd_count mismatch against the declared random ports).
type BadAnnotationError struct {
	Module string
	Detail string
}

func (e *BadAnnotationError) Error() string {
	return fmt.Sprintf("%s: bad gadget annotation: %s", e.Module, e.Detail)
}

// Input-trace errors are fatal before the offending cycle, but do not
// invalidate cycles already simulated.

// MissingInputError reports that the input trace has no value for a wire
// the core needs at the given cycle.
type MissingInputError struct {
	Wire  string
	Cycle int
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("cycle %d: no input trace value for wire %q", e.Cycle, e.Wire)
}

// UnknownValueError reports an x/z value encountered where a 0/1 is
// required.
type UnknownValueError struct {
	Wire  string
	Cycle int
}

func (e *UnknownValueError) Error() string {
	return fmt.Sprintf("cycle %d: wire %q has an unknown (x/z) value", e.Cycle, e.Wire)
}

// Violation is a recoverable security or assumption-violation finding.
// Violations never abort the run: they are collected into a VerdictReport
// while the trace keeps being produced.
type Violation struct {
	Kind    ViolationKind
	Cycle   int
	Wire    string
	Detail  string
	Extra   []int // e.g. the leaked share indices for ShareLeakage/GlitchLeakage
}

func (v Violation) String() string {
	if len(v.Extra) > 0 {
		return fmt.Sprintf("cycle %d: %s on %q: %s %v", v.Cycle, v.Kind, v.Wire, v.Detail, v.Extra)
	}
	return fmt.Sprintf("cycle %d: %s on %q: %s", v.Cycle, v.Kind, v.Wire, v.Detail)
}

// ViolationKind enumerates the security and assumption violations the
// engine can report.
type ViolationKind int

const (
	ShareLeakage ViolationKind = iota
	GlitchLeakage
	RandomReused
	GadgetInputNotFresh
	GadgetRandomnessReuse
	InconsistentActivity
	ActivityNotDeterministic
	TransitionLeakage
)

var violationNames = [...]string{
	"ShareLeakage",
	"GlitchLeakage",
	"RandomReused",
	"GadgetInputNotFresh",
	"GadgetRandomnessReuse",
	"InconsistentActivity",
	"ActivityNotDeterministic",
	"TransitionLeakage",
}

func (k ViolationKind) String() string {
	if int(k) < 0 || int(k) >= len(violationNames) {
		return "UnknownViolation"
	}
	return violationNames[k]
}
