package pinisim

import (
	"sort"

	"github.com/masktrace/pinisim/cells"
	"github.com/masktrace/pinisim/symbit"
	"github.com/pkg/errors"
)

// Engine is the recursive simulation engine (component 5), built once from
// an elaborated Netlist and Config (component 4's job) and then stepped
// once per cycle. It owns the only mutable state in a run: the simulator
// tree's per-instance SimulationState and the GlobalSimulationState.
type Engine struct {
	Net     *Netlist
	Gadgets map[string]*Gadget
	Top     *ModuleState
	Trace   InputTrace
	Config  Config
	Global  *GlobalState

	topGadget *Gadget
	prevWire  []symbit.SymbolicBit
	log       AttributeLog
}

// NewEngine elaborates the gadget overlay of every module, allocates the
// simulator tree (the builder step), and returns a ready-to-run Engine.
func NewEngine(net *Netlist, trace InputTrace, cfg Config) (*Engine, error) {
	if cfg.Shares < 2 {
		return nil, errors.New("pinisim: Config.Shares must be >= 2")
	}
	if cfg.TopModule != "" && cfg.TopModule != net.Top {
		return nil, errors.Errorf("pinisim: Config.TopModule %q does not match the elaborated top module %q", cfg.TopModule, net.Top)
	}
	gadgets := make(map[string]*Gadget)
	for name, m := range net.Modules {
		if _, ok := m.Attrs["matchi_strat"]; !ok {
			continue
		}
		g, err := BuildGadget(m)
		if err != nil {
			return nil, err
		}
		gadgets[name] = g
	}
	topGadget, ok := gadgets[net.Top]
	if !ok || topGadget.Strat != StratCompositeTop {
		return nil, &BadAnnotationError{Module: net.Top, Detail: "top module must be a composite_top gadget"}
	}

	top := allocState(net, gadgets, net.Modules[net.Top])

	return &Engine{
		Net:       net,
		Gadgets:   gadgets,
		Top:       top,
		Trace:     trace,
		Config:    cfg,
		Global:    newGlobalState(),
		topGadget: topGadget,
	}, nil
}

// allocState recursively allocates the simulator tree: one ModuleState per
// flat (sub)module, and one PipelineState (wrapping its own inner
// ModuleState, used only to derive a concrete value) per pipeline-gadget
// instance.
func allocState(net *Netlist, gadgets map[string]*Gadget, m *Module) *ModuleState {
	st := newModuleState(m)
	st.Children = make(map[InstID]*ModuleState)
	st.Pipelines = make(map[InstID]*PipelineState)
	for idx, inst := range m.Instances {
		if inst.Kind != InstSubModule {
			continue
		}
		instID := InstID(idx)
		sub := net.Modules[inst.SubModule]
		subState := allocState(net, gadgets, sub)
		if g, ok := gadgets[inst.SubModule]; ok && g.Strat == StratAssumed && g.Arch == ArchPipeline {
			st.Pipelines[instID] = newPipelineState(g, subState)
		} else {
			st.Children[instID] = subState
		}
	}
	return st
}

// Run simulates every cycle of the trace and returns the accumulated
// attribute log and verdict. If Config.InValid names a signal, the first
// simulation cycle (logged as cycle 0) is the first trace cycle at which
// that signal reads 1, per 6's "the first simulation cycle begins on its
// first 1"; otherwise the first simulation cycle is trace cycle 0.
// Config.MaxCycles, if set, bounds the number of cycles simulated from
// that starting point rather than the raw trace length.
func (e *Engine) Run() (*AttributeLog, *VerdictReport, error) {
	start := 0
	if e.Config.InValid != "" {
		var err error
		start, err = e.findInValidCycle()
		if err != nil {
			return &e.log, &VerdictReport{Violations: e.Global.Violations}, err
		}
	}
	last := e.Trace.LastCycle()
	if e.Config.MaxCycles > 0 && start+e.Config.MaxCycles-1 < last {
		last = start + e.Config.MaxCycles - 1
	}
	for traceCycle := start; traceCycle <= last; traceCycle++ {
		if err := e.Step(traceCycle, traceCycle-start); err != nil {
			return &e.log, &VerdictReport{Violations: e.Global.Violations}, err
		}
	}
	return &e.log, &VerdictReport{Violations: e.Global.Violations}, nil
}

// findInValidCycle scans the trace for the first cycle at which
// Config.InValid reads 1.
func (e *Engine) findInValidCycle() (int, error) {
	name := e.traceWire(e.Config.InValid)
	for c := 0; c <= e.Trace.LastCycle(); c++ {
		v, unknown, ok := e.Trace.Value(c, name)
		if ok && !unknown && v {
			return c, nil
		}
	}
	return 0, errors.Errorf("pinisim: in-valid signal %q is never asserted in the trace", e.Config.InValid)
}

// traceWire resolves a module-local wire name to the name it is recorded
// under in the InputTrace, prefixed by Config.DUTPath when the trace scopes
// the design under test under its own instance path (e.g. "tb.dut").
func (e *Engine) traceWire(name string) string {
	if e.Config.DUTPath == "" {
		return name
	}
	return e.Config.DUTPath + "." + name
}

// Step runs one full cycle of the recursive simulation engine, per 4.5:
// materialise top-level inputs, evaluate the instance tree in its
// precomputed order, check for violations, apply the clock edge, and emit
// the attribute log entries for this cycle. traceCycle indexes the
// InputTrace; cycle is the logical simulation cycle number (0-based from
// Config.InValid's assertion, or equal to traceCycle if unset) used for
// violation reporting and the attribute log.
func (e *Engine) Step(traceCycle, cycle int) error {
	e.Global.beginCycle(cycle)

	if err := e.materializeTopInputs(traceCycle, cycle); err != nil {
		return err
	}

	evaluateModule(e.Top, e.Net, e.Gadgets, e.Global)

	e.checkTopLevelViolations()

	clockEdge(e.Top)

	e.emitLog(cycle)

	e.prevWire = append(e.prevWire[:0], e.Top.Wire...)
	return nil
}

func (e *Engine) materializeTopInputs(traceCycle, cycle int) error {
	m := e.Top.Module
	for _, name := range m.Inputs {
		info := e.topGadget.Ports[name]
		concrete, unknown, ok := e.Trace.Value(traceCycle, e.traceWire(name))
		if !ok {
			return &MissingInputError{Wire: name, Cycle: cycle}
		}
		if unknown {
			return &UnknownValueError{Wire: name, Cycle: cycle}
		}
		active := true
		if info.Activity != "" {
			av, aUnknown, aOk := e.Trace.Value(traceCycle, e.traceWire(info.Activity))
			if !aOk {
				return &MissingInputError{Wire: info.Activity, Cycle: cycle}
			}
			if aUnknown {
				return &UnknownValueError{Wire: info.Activity, Cycle: cycle}
			}
			active = av
		}
		wid := m.WireID(name)
		id := symbit.RandomID{Cycle: cycle, Wire: int(wid), Bit: 0}
		e.Top.Wire[wid] = PortSymbolicValue(info, concrete, active, id)
	}
	return nil
}

// evaluateModule evaluates ms's instances in their precomputed order,
// recursing into flat sub-modules and delegating pipeline-gadget instances
// to their opaque abstract transfer function.
func evaluateModule(ms *ModuleState, net *Netlist, gadgets map[string]*Gadget, g *GlobalState) {
	for _, instID := range ms.Module.Order {
		inst := ms.Module.Instances[instID]
		switch inst.Kind {
		case InstLibCell:
			evaluateLibCell(ms, instID, inst, g)
		case InstTieLow:
			for _, wid := range inst.Ports {
				ms.Wire[wid] = symbit.Det(false)
			}
		case InstTieHigh:
			for _, wid := range inst.Ports {
				ms.Wire[wid] = symbit.Det(true)
			}
		case InstSubModule:
			if pstate, ok := ms.Pipelines[instID]; ok {
				evaluatePipelineGadget(ms, inst, pstate, net, gadgets, g)
			} else {
				evaluateFlatSubModule(ms, instID, inst, net, gadgets, g)
			}
		}
	}
}

func evaluateLibCell(ms *ModuleState, instID InstID, inst Instance, g *GlobalState) {
	outWire := ms.Module.Wires[inst.Ports["out"]].Name
	if inst.Cell == cells.DFF {
		q, ok := ms.DFFState[instID]
		if !ok {
			q = symbit.Det(false)
		}
		ms.Wire[inst.Ports["out"]] = q
		return
	}
	pins := inst.Cell.InputPins()
	ins := make([]symbit.SymbolicBit, len(pins))
	for i, p := range pins {
		ins[i] = ms.Wire[inst.Ports[p]]
	}
	out, err := cells.Eval(inst.Cell, ins)
	if err != nil {
		// unreachable for the fixed library once DFF is handled above.
		panic(err)
	}
	trackConsumedRandom(ins, out, g)
	trackGateRandomUse(ins, g, outWire)
	ms.Wire[inst.Ports["out"]] = out
}

// trackConsumedRandom implements the second paragraph of 4.1: whenever an
// input's RandomID does not survive into the gate's output, that id is
// consumed for this cycle, and leaked if some other operand of the same
// gate is sensitive.
func trackConsumedRandom(ins []symbit.SymbolicBit, out symbit.SymbolicBit, g *GlobalState) {
	for i, b := range ins {
		if b.RandomID == nil {
			continue
		}
		if out.RandomID != nil && *out.RandomID == *b.RandomID {
			continue
		}
		sensitive := false
		for j, other := range ins {
			if j == i {
				continue
			}
			if !other.Glitch.Empty() {
				sensitive = true
				break
			}
		}
		g.consumeRandom(*b.RandomID, sensitive)
	}
}

// trackGateRandomUse implements the RandomReused check: a random id is
// reused when it is read as an operand of two or more distinct multi-input
// gates within the same cycle. Single-input relabeling (BUF/NOT) never
// counts, so a pure fanout-free relabeling chain is never flagged.
func trackGateRandomUse(ins []symbit.SymbolicBit, g *GlobalState, wireName string) {
	if len(ins) < 2 {
		return
	}
	seen := make(map[symbit.RandomID]bool, len(ins))
	for _, b := range ins {
		if b.RandomID == nil || seen[*b.RandomID] {
			continue
		}
		seen[*b.RandomID] = true
		g.useRandom(*b.RandomID, wireName)
	}
}

func evaluateFlatSubModule(ms *ModuleState, instID InstID, inst Instance, net *Netlist, gadgets map[string]*Gadget, g *GlobalState) {
	child := ms.Children[instID]
	sub := child.Module
	for _, name := range sub.Inputs {
		child.Wire[sub.WireID(name)] = ms.Wire[inst.Ports[name]]
	}
	evaluateModule(child, net, gadgets, g)
	for _, name := range sub.Outputs {
		ms.Wire[inst.Ports[name]] = child.Wire[sub.WireID(name)]
	}
}

// evaluatePipelineGadget implements the pipeline-gadget abstract transfer
// function of 4.4, refined per the SUPPLEMENTED FEATURES of SPEC_FULL.md:
// the concrete output Value still comes from a throwaway concrete
// simulation of the gadget's own internals (needed to drive downstream
// combinational logic and the attribute log), but every symbolic attribute
// is replaced by the abstract rule, and the gadget's internals never
// contribute to the enclosing run's violation log or randomness
// bookkeeping.
func evaluatePipelineGadget(parent *ModuleState, inst Instance, pstate *PipelineState, net *Netlist, gadgets map[string]*Gadget, g *GlobalState) {
	gd := pstate.Gadget
	sub := gd.Module

	inputs := make(map[string]symbit.SymbolicBit, len(sub.Inputs))
	for _, name := range sub.Inputs {
		b := parent.Wire[inst.Ports[name]]
		inputs[name] = b
		pstate.Inner.Wire[sub.WireID(name)] = b
	}

	sensitiveNow := pipelineSensitive(inputs, gd)
	for name, info := range gd.Ports {
		if info.Type != PortRandom {
			continue
		}
		if b, ok := inputs[name]; ok && sensitiveNow && b.RandomID == nil {
			g.report(Violation{Kind: GadgetRandomnessReuse, Cycle: g.Cycle, Wire: inst.Name + "." + name,
				Detail: "pipeline gadget random input was not fresh at activation time"})
		}
	}
	if sensitiveNow && pstate.wasSensitiveLastCycle {
		g.report(Violation{Kind: GadgetInputNotFresh, Cycle: g.Cycle, Wire: inst.Name,
			Detail: "pipeline gadget executed sensitively with no intervening bubble"})
	}
	pstate.wasSensitiveLastCycle = sensitiveNow
	pstate.advance(inputs)

	// concrete internal simulation, value only: its own GlobalState is
	// discarded, so nothing it finds leaks into the enclosing run.
	evaluateModule(pstate.Inner, net, gadgets, newGlobalState())

	for _, name := range sub.Outputs {
		info := gd.Ports[name]
		abstract := pipelineOutputAttributes(pstate, name, info)
		abstract.Value = pstate.Inner.Wire[sub.WireID(name)].Value
		parent.Wire[inst.Ports[name]] = abstract
	}
}

func pipelineSensitive(inputs map[string]symbit.SymbolicBit, gd *Gadget) bool {
	for name, info := range gd.Ports {
		if info.Type != PortShare && info.Type != PortSharingsDense && info.Type != PortSharingsStrided {
			continue
		}
		if b, ok := inputs[name]; ok && !b.Glitch.Empty() {
			return true
		}
	}
	return false
}

func pipelineOutputAttributes(pstate *PipelineState, outName string, outInfo PortInfo) symbit.SymbolicBit {
	gd := pstate.Gadget
	outLat := outInfo.Latency
	det := true
	var glitchUnion, stableUnion symbit.ShareSet
	anySensitive := false
	for _, inName := range gd.Module.Inputs {
		inInfo := gd.Ports[inName]
		if !inInfo.HasLatency || inInfo.Latency > outLat {
			continue
		}
		snap := pstate.snapshot(outLat - inInfo.Latency)
		b, ok := snap[inName]
		if !ok {
			continue
		}
		if !b.Deterministic {
			det = false
		}
		if inInfo.Type == PortShare || inInfo.Type == PortSharingsDense || inInfo.Type == PortSharingsStrided {
			glitchUnion = symbit.Union(glitchUnion, b.Glitch)
			stableUnion = symbit.Union(stableUnion, b.Stable)
			if !b.Glitch.Empty() {
				anySensitive = true
			}
		}
	}
	out := symbit.SymbolicBit{Deterministic: det}
	switch gd.Prop {
	case PropPINI:
		if anySensitive {
			s := symbit.Singleton(outInfo.ShareIndex)
			out.Stable, out.Glitch = s, s
			out.Deterministic = false
		}
	case PropOPINI:
		out.Stable, out.Glitch = stableUnion, glitchUnion
		if !out.Glitch.Empty() {
			out.Deterministic = false
		}
	}
	return out
}

// checkTopLevelViolations implements the output-facing checks of 4.5:
// share/glitch leakage, cross-cycle transition leakage, activity
// consistency, and the activity-determinism assumption.
func (e *Engine) checkTopLevelViolations() {
	m := e.Top.Module
	for _, name := range m.Outputs {
		info := e.topGadget.Ports[name]
		if info.Type != PortShare && info.Type != PortSharingsDense && info.Type != PortSharingsStrided {
			continue
		}
		wid := m.WireID(name)
		bit := e.Top.Wire[wid]
		activityWID := m.WireID(info.Activity)
		activityBit := e.Top.Wire[activityWID]
		active := activityBit.Value
		if !activityBit.Deterministic {
			e.Global.report(Violation{Kind: ActivityNotDeterministic, Cycle: e.Global.Cycle, Wire: info.Activity,
				Detail: "activity wire for " + name + " was not deterministic; degrading to worst case"})
			active = true
			full := symbit.Full(e.topGadget.Shares)
			bit.Stable, bit.Glitch = full, full
		}
		allowed := symbit.Singleton(info.ShareIndex)
		if !active {
			if !bit.Glitch.Empty() {
				e.Global.report(Violation{Kind: InconsistentActivity, Cycle: e.Global.Cycle, Wire: name,
					Detail: "output is sensitive while its activity is 0"})
			}
			continue
		}
		if !bit.Stable.IsSubsetOf(allowed) {
			e.Global.report(Violation{Kind: ShareLeakage, Cycle: e.Global.Cycle, Wire: name,
				Detail: "stable sensitivity exceeds the declared share", Extra: bit.Stable.Extra(allowed)})
		}
		if !bit.Glitch.IsSubsetOf(allowed) {
			e.Global.report(Violation{Kind: GlitchLeakage, Cycle: e.Global.Cycle, Wire: name,
				Detail: "glitch sensitivity exceeds the declared share", Extra: bit.Glitch.Extra(allowed)})
		}
		if e.prevWire != nil {
			transition := symbit.Union(bit.Glitch, e.prevWire[wid].Glitch)
			if !transition.IsSubsetOf(allowed) {
				e.Global.report(Violation{Kind: TransitionLeakage, Cycle: e.Global.Cycle, Wire: name,
					Detail: "sensitivity across the clock edge exceeds the declared share", Extra: transition.Extra(allowed)})
			}
		}
	}
}

// clockEdge applies the flip-flop narrowing rule of 4.1 to every
// sequential cell reachable from ms, recursing into flat sub-modules and
// into pipeline gadgets' own internal (concretely simulated) state.
func clockEdge(ms *ModuleState) {
	for _, instID := range ms.Module.SeqCells {
		inst := ms.Module.Instances[instID]
		d := ms.Wire[inst.Ports["in"]]
		ms.DFFState[instID] = symbit.ClockEdge(d)
	}
	for _, child := range ms.Children {
		clockEdge(child)
	}
	for _, p := range ms.Pipelines {
		clockEdge(p.Inner)
	}
}

func (e *Engine) emitLog(cycle int) {
	e.walkLog("", e.Top, cycle)
}

func (e *Engine) walkLog(scope string, ms *ModuleState, cycle int) {
	prefix := scope
	if prefix != "" {
		prefix += "."
	}
	for i, w := range ms.Module.Wires {
		bit := ms.Wire[i]
		entry := AttributeEntry{
			Scope:         scope,
			Wire:          w.Name,
			Cycle:         cycle,
			Value:         bit.Value,
			Deterministic: bit.Deterministic,
			RandomID:      bit.RandomID,
			Shares:        sharesToBools(bit.Glitch, e.Config.Shares),
			StableShares:  sharesToBools(bit.Stable, e.Config.Shares),
		}
		e.log.Entries = append(e.log.Entries, entry)
	}
	ids := make([]InstID, 0, len(ms.Children))
	for idx := range ms.Children {
		ids = append(ids, idx)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, idx := range ids {
		e.walkLog(prefix+ms.Module.Instances[idx].Name, ms.Children[idx], cycle)
	}
}

func sharesToBools(s symbit.ShareSet, d int) []bool {
	out := make([]bool, d)
	for i := 0; i < d; i++ {
		out[i] = s.Contains(i)
	}
	return out
}
