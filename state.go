package pinisim

import "github.com/masktrace/pinisim/symbit"

// ModuleState mirrors an elaborated Module for one simulation run. It is
// allocated once, before the first cycle, and mutated in place on every
// subsequent cycle: Wire holds each wire's current-cycle value, DFFState
// holds the sequential state carried across cycles, and Children/Pipelines
// hold the recursively-allocated state of sub-module instances.
type ModuleState struct {
	Module    *Module
	Wire      []symbit.SymbolicBit
	DFFState  map[InstID]symbit.SymbolicBit
	Children  map[InstID]*ModuleState
	Pipelines map[InstID]*PipelineState
}

// PipelineState is the per-cycle state of a pipeline-gadget instance: the
// ring buffer of past input snapshots the abstract transfer function reads
// from, plus the bookkeeping needed for bubble tracking.
type PipelineState struct {
	Gadget *Gadget
	// Inner is the gadget's own concretely-simulated internal state, used
	// only to produce a concrete Value for its outputs; its symbolic
	// attributes are discarded in favour of the abstract transfer
	// function's result.
	Inner *ModuleState
	// Ring holds one entry per cycle, depth maxLatency+1; Ring[i][port] is
	// the SymbolicBit the gadget read on port at the cycle (head-i) mod
	// depth cycles ago.
	Ring []map[string]symbit.SymbolicBit
	Head int
	// wasSensitiveLastCycle records whether the previous cycle's execution
	// of this gadget was sensitive, so two sensitive executions with no
	// intervening bubble cycle can be detected as GadgetInputNotFresh.
	wasSensitiveLastCycle bool
}

func newPipelineState(g *Gadget, inner *ModuleState) *PipelineState {
	depth := 1
	for _, info := range g.Ports {
		if info.HasLatency && info.Latency+1 > depth {
			depth = info.Latency + 1
		}
	}
	ring := make([]map[string]symbit.SymbolicBit, depth)
	for i := range ring {
		ring[i] = make(map[string]symbit.SymbolicBit)
	}
	return &PipelineState{Gadget: g, Inner: inner, Ring: ring}
}

// snapshot returns the input values captured cyclesAgo cycles before the
// current head, or nil (no values) if cyclesAgo is negative or not less
// than the ring's depth.
func (p *PipelineState) snapshot(cyclesAgo int) map[string]symbit.SymbolicBit {
	if cyclesAgo < 0 || cyclesAgo >= len(p.Ring) {
		return nil
	}
	idx := p.Head - cyclesAgo
	idx %= len(p.Ring)
	if idx < 0 {
		idx += len(p.Ring)
	}
	return p.Ring[idx]
}

func (p *PipelineState) advance(inputs map[string]symbit.SymbolicBit) {
	p.Head = (p.Head + 1) % len(p.Ring)
	p.Ring[p.Head] = inputs
}

// GlobalState is the engine-wide bookkeeping that does not belong to any
// single module: the cycle counter, per-cycle random-id usage counts (for
// RandomReused detection), the set of random ids observed in a sensitive
// context (leaked), and the accumulated violation log.
type GlobalState struct {
	Cycle      int
	randomUses map[symbit.RandomID]int
	leaked     map[symbit.RandomID]bool
	Violations []Violation
}

func newGlobalState() *GlobalState {
	return &GlobalState{randomUses: make(map[symbit.RandomID]int), leaked: make(map[symbit.RandomID]bool)}
}

func (g *GlobalState) beginCycle(cycle int) {
	g.Cycle = cycle
	g.randomUses = make(map[symbit.RandomID]int)
}

func (g *GlobalState) report(v Violation) {
	g.Violations = append(g.Violations, v)
}

// useRandom records that a multi-input gate (the one driving wire) read id
// as an operand this cycle; a second such read of the same id within the
// cycle is a RandomReused violation (see trackGateRandomUse).
func (g *GlobalState) useRandom(id symbit.RandomID, wire string) {
	g.randomUses[id]++
	if g.randomUses[id] > 1 {
		g.report(Violation{Kind: RandomReused, Cycle: g.Cycle, Wire: wire, Detail: "random id reused within the same cycle"})
	}
}

// consumeRandom records that a gate dropped id's identity (it was an
// operand but the gate's output does not preserve it). If sensitive is
// true (the gate's other operand carried non-empty sensitivity), id is
// marked leaked.
func (g *GlobalState) consumeRandom(id symbit.RandomID, sensitive bool) {
	if sensitive {
		g.leaked[id] = true
	}
}

func newModuleState(m *Module) *ModuleState {
	return &ModuleState{
		Module:   m,
		Wire:     make([]symbit.SymbolicBit, len(m.Wires)),
		DFFState: make(map[InstID]symbit.SymbolicBit),
	}
}
