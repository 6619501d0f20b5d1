// Package cells provides the fixed library-cell transfer functions that the
// netlist elaborator and the simulation engine use to evaluate LibCell
// instances: BUF, NOT, AND, NAND, OR, NOR, XOR, XNOR, MUX and DFF.
//
// Every combinational cell is evaluated by Eval, which dispatches to the
// matching symbit algebra function. DFF is sequential and is evaluated
// separately by the engine on the clock edge via symbit.ClockEdge; it is
// listed here only so that elaboration can recognise it and so that it does
// not contribute a combinational input-to-output arc to the dependency
// graph.
package cells

import (
	"fmt"

	"github.com/masktrace/pinisim/symbit"
)

// Kind identifies one of the fixed library cells a netlist instance may
// reference.
type Kind int

const (
	BUF Kind = iota
	NOT
	AND
	NAND
	OR
	NOR
	XOR
	XNOR
	MUX
	DFF
)

var names = [...]string{"BUF", "NOT", "AND", "NAND", "OR", "NOR", "XOR", "XNOR", "MUX", "DFF"}

// String returns the cell's canonical name, as it appears in a netlist.
func (k Kind) String() string {
	if int(k) < 0 || int(k) >= len(names) {
		return "UNKNOWN"
	}
	return names[k]
}

// ParseKind resolves a cell name to its Kind. ok is false for any name
// outside the fixed library, which elaboration reports as UnsupportedCell.
func ParseKind(name string) (k Kind, ok bool) {
	for i, n := range names {
		if n == name {
			return Kind(i), true
		}
	}
	return 0, false
}

// inputPins lists each kind's input port names, in the order Eval expects
// its ins argument.
var inputPins = [...][]string{
	BUF:  {"in"},
	NOT:  {"in"},
	AND:  {"a", "b"},
	NAND: {"a", "b"},
	OR:   {"a", "b"},
	NOR:  {"a", "b"},
	XOR:  {"a", "b"},
	XNOR: {"a", "b"},
	MUX:  {"sel", "a", "b"},
	DFF:  {"in"},
}

// InputPins returns the ordered input port names of k.
func (k Kind) InputPins() []string { return inputPins[k] }

// OutputPins returns the ordered output port names of k. Every fixed cell
// has exactly one output, named "out".
func (k Kind) OutputPins() []string { return []string{"out"} }

// Sequential reports whether k is a state-holding cell (DFF) rather than a
// combinational one. Sequential cells do not add a combinational
// input-to-output arc to the dependency graph: their output this cycle was
// fixed at the previous clock edge.
func (k Kind) Sequential() bool { return k == DFF }

// Eval evaluates a combinational cell given its inputs in the order
// returned by InputPins. It returns an error if called on a sequential cell; callers
// must route DFF through the engine's clock-edge handling instead.
func Eval(k Kind, ins []symbit.SymbolicBit) (symbit.SymbolicBit, error) {
	switch k {
	case BUF:
		return symbit.Buf(ins[0]), nil
	case NOT:
		return symbit.Not(ins[0]), nil
	case AND:
		return symbit.And(ins[0], ins[1]), nil
	case NAND:
		return symbit.Nand(ins[0], ins[1]), nil
	case OR:
		return symbit.Or(ins[0], ins[1]), nil
	case NOR:
		return symbit.Nor(ins[0], ins[1]), nil
	case XOR:
		return symbit.Xor(ins[0], ins[1]), nil
	case XNOR:
		return symbit.Xnor(ins[0], ins[1]), nil
	case MUX:
		return symbit.Mux(ins[0], ins[1], ins[2]), nil
	case DFF:
		return symbit.SymbolicBit{}, fmt.Errorf("cells: DFF has no combinational transfer function")
	default:
		return symbit.SymbolicBit{}, fmt.Errorf("cells: unknown cell kind %d", k)
	}
}
