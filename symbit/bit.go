package symbit

// RandomID names a specific fresh random bit by the coordinates at which it
// was drawn: the cycle it was produced in, the wire (port) it was produced
// on, and, for multi-bit random ports, the bit offset within that port.
type RandomID struct {
	Cycle int
	Wire  int
	Bit   int
}

// SymbolicBit is the value carried by a wire at a given cycle: a concrete
// logical value plus the three attributes needed to decide non-interference.
//
// Invariants (see Validate): RandomID != nil implies Deterministic == false
// and both sensitivity sets are empty. Deterministic == true iff both
// sensitivity sets are empty and RandomID == nil. Stable is always a subset
// of Glitch.
type SymbolicBit struct {
	Value         bool
	Deterministic bool
	RandomID      *RandomID
	Stable        ShareSet
	Glitch        ShareSet
}

// Det returns a deterministic, non-sensitive bit with the given value. It is
// the value of a constant tie and of any wire with no secret or random
// influence.
func Det(value bool) SymbolicBit {
	return SymbolicBit{Value: value, Deterministic: true}
}

// FreshRandom returns the bit produced by drawing fresh random id for the
// given concrete value. Its sensitivity sets are empty: a fresh random bit
// is, by assumption, independent of every secret share.
func FreshRandom(id RandomID, value bool) SymbolicBit {
	return SymbolicBit{Value: value, RandomID: &id}
}

// Sensitive returns a bit that depends on the given shares, with equal
// stable and glitch sensitivity. This is how the gadget layer materialises
// share and sharing input ports.
func Sensitive(value bool, shares ShareSet) SymbolicBit {
	return SymbolicBit{Value: value, Stable: shares, Glitch: shares}
}

// Validate checks the structural invariants that must hold for every
// SymbolicBit at every cycle; it never mutates b and is intended for tests
// and for defensive checks at trust boundaries (gadget port materialisation),
// not for the hot evaluation loop.
func (b SymbolicBit) Validate() error {
	if b.RandomID != nil {
		if b.Deterministic {
			return errInvariant("random_id set but deterministic=true")
		}
		if !b.Stable.Empty() || !b.Glitch.Empty() {
			return errInvariant("random_id set but sensitivity non-empty")
		}
	}
	if b.Deterministic {
		if !b.Stable.Empty() || !b.Glitch.Empty() {
			return errInvariant("deterministic=true but sensitivity non-empty")
		}
	} else if b.RandomID == nil && b.Stable.Empty() && b.Glitch.Empty() {
		return errInvariant("non-deterministic bit with no random_id and no sensitivity")
	}
	if !b.Stable.IsSubsetOf(b.Glitch) {
		return errInvariant("sensitivity_stable is not a subset of sensitivity_glitch")
	}
	return nil
}

type invariantError string

func (e invariantError) Error() string { return "symbit: " + string(e) }

func errInvariant(s string) error { return invariantError(s) }

// isConst reports whether b is the deterministic constant value.
func isConst(b SymbolicBit, value bool) bool {
	return b.Deterministic && b.Value == value
}

func detAll(bs ...SymbolicBit) bool {
	for _, b := range bs {
		if !b.Deterministic {
			return false
		}
	}
	return true
}

func glitchAll(bs ...SymbolicBit) ShareSet {
	sets := make([]ShareSet, len(bs))
	for i, b := range bs {
		sets[i] = b.Glitch
	}
	return UnionAll(sets...)
}

// Buf is the identity transfer function: a pure wire relabeling. It
// preserves every attribute, including RandomID.
func Buf(in SymbolicBit) SymbolicBit {
	return in
}

// Not inverts the value and otherwise preserves every attribute: masking is
// mod 2, so complementing a masked value does not change which shares or
// which random bit it depends on.
func Not(in SymbolicBit) SymbolicBit {
	out := in
	out.Value = !in.Value
	return out
}

// And computes the two-input AND gate's transfer function.
func And(a, b SymbolicBit) SymbolicBit {
	out := SymbolicBit{
		Value:         a.Value && b.Value,
		Deterministic: detAll(a, b),
		Glitch:        glitchAll(a, b),
	}
	switch {
	case isConst(a, false) || isConst(b, false):
		// short-circuit: a constant-0 operand fixes the output regardless
		// of the other operand's stable sensitivity.
	default:
		out.Stable = Union(a.Stable, b.Stable)
	}
	return out
}

// Nand computes the two-input NAND gate's transfer function.
func Nand(a, b SymbolicBit) SymbolicBit {
	out := And(a, b)
	out.Value = !out.Value
	return out
}

// Or computes the two-input OR gate's transfer function.
func Or(a, b SymbolicBit) SymbolicBit {
	out := SymbolicBit{
		Value:         a.Value || b.Value,
		Deterministic: detAll(a, b),
		Glitch:        glitchAll(a, b),
	}
	switch {
	case isConst(a, true) || isConst(b, true):
		// short-circuit: a constant-1 operand fixes the output.
	default:
		out.Stable = Union(a.Stable, b.Stable)
	}
	return out
}

// Nor computes the two-input NOR gate's transfer function.
func Nor(a, b SymbolicBit) SymbolicBit {
	out := Or(a, b)
	out.Value = !out.Value
	return out
}

// Xor computes the two-input XOR gate's transfer function. It is the only
// gate (besides Buf/Not) that can preserve a RandomID, and only in the
// linear-XOR pattern: one deterministic operand and one operand carrying a
// RandomID.
func Xor(a, b SymbolicBit) SymbolicBit {
	out := SymbolicBit{
		Value:         a.Value != b.Value,
		Deterministic: detAll(a, b),
		Stable:        Union(a.Stable, b.Stable),
		Glitch:        glitchAll(a, b),
	}
	switch {
	case a.Deterministic && b.RandomID != nil:
		out.RandomID = b.RandomID
	case b.Deterministic && a.RandomID != nil:
		out.RandomID = a.RandomID
	}
	return out
}

// Xnor computes the two-input XNOR gate's transfer function. Unlike Not∘Xor,
// XNOR is a distinct primitive cell: it never carries a RandomID, matching
// the "only in the specific linear-XOR pattern" rule, which names XOR and
// not its inverted sibling.
func Xnor(a, b SymbolicBit) SymbolicBit {
	out := Xor(a, b)
	out.Value = !out.Value
	out.RandomID = nil
	return out
}

// Mux computes the multiplexer transfer function: out = a when sel is 0,
// out = b when sel is 1. Glitch sensitivity always unions all three inputs;
// stable sensitivity short-circuits to the selected input alone when sel is
// a concrete, deterministic value.
func Mux(sel, a, b SymbolicBit) SymbolicBit {
	out := SymbolicBit{
		Deterministic: detAll(sel, a, b),
		Glitch:        glitchAll(sel, a, b),
	}
	if sel.Value {
		out.Value = b.Value
	} else {
		out.Value = a.Value
	}
	if sel.Deterministic {
		if sel.Value {
			out.Stable = b.Stable
		} else {
			out.Stable = a.Stable
		}
	} else {
		out.Stable = Union(a.Stable, b.Stable)
	}
	return out
}

// ClockEdge narrows d (the stable view of a flip-flop's D input just before
// the clock edge) into the value latched into Q. It is the only transfer
// function that can shrink a glitch sensitivity set: the flip-flop forgets
// any glitch that occurred before the edge and stores only the settled,
// stable value. RandomID and Deterministic are preserved.
func ClockEdge(d SymbolicBit) SymbolicBit {
	out := d
	out.Glitch = d.Stable
	return out
}

// InputIDs returns the RandomIDs carried by any of bs, used by callers that
// need to track which fresh random bits were read by a gate evaluation
// regardless of whether the gate's output preserves them.
func InputIDs(bs ...SymbolicBit) []RandomID {
	var ids []RandomID
	for _, b := range bs {
		if b.RandomID != nil {
			ids = append(ids, *b.RandomID)
		}
	}
	return ids
}
