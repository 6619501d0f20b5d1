// Package pinisim implements a field-specific symbolic simulator for
// synchronous masked hardware circuits. It lowers a structural netlist plus
// gadget annotations into an evaluation-ordered simulator tree, then runs a
// cycle-by-cycle symbolic simulation that decides whether the circuit
// satisfies a PINI/OPINI non-interference property in the glitch-and-
// transition probing model.
//
// The package never parses netlist files or value-change records: callers
// build a RawNetlist programmatically (the way hardware description
// languages embedded in a host language usually work) and hand it to
// Elaborate.
package pinisim

import (
	"sort"
	"strconv"

	"github.com/masktrace/pinisim/cells"
	"github.com/pkg/errors"
)

// RawNetlist is the builder-facing, pre-elaboration form of a netlist: a
// set of named modules, connected by wire names rather than resolved wire
// indices. It is the Go-native substitute for whatever hierarchical
// netlist format (e.g. synthesized JSON) a real front end would parse.
type RawNetlist struct {
	Modules map[string]*RawModule
}

// NewRawNetlist returns an empty netlist builder.
func NewRawNetlist() *RawNetlist {
	return &RawNetlist{Modules: make(map[string]*RawModule)}
}

// Module returns the named module, creating it if it does not yet exist.
func (n *RawNetlist) Module(name string) *RawModule {
	if m, ok := n.Modules[name]; ok {
		return m
	}
	m := &RawModule{
		Name:      name,
		Attrs:     make(map[string]string),
		WireAttrs: make(map[string]map[string]string),
	}
	n.Modules[name] = m
	return m
}

// RawModule is a module under construction: ordered ports, attributes, and
// instances, all addressed by name.
type RawModule struct {
	Name      string
	Inputs    []string
	Outputs   []string
	Attrs     map[string]string
	WireAttrs map[string]map[string]string
	Insts     []RawInstance
}

// RawInstance is a single instance under construction: a cell or submodule
// reference with a port-name to wire-name map.
type RawInstance struct {
	Name  string
	Cell  string
	Ports map[string]string
}

// In declares ordered input ports on m and returns m for chaining.
func (m *RawModule) In(names ...string) *RawModule {
	m.Inputs = append(m.Inputs, names...)
	return m
}

// Out declares ordered output ports on m and returns m for chaining.
func (m *RawModule) Out(names ...string) *RawModule {
	m.Outputs = append(m.Outputs, names...)
	return m
}

// SetAttr attaches a module-level matchi_* attribute (gadget strategy,
// architecture, share count, property) and returns m for chaining.
func (m *RawModule) SetAttr(key, value string) *RawModule {
	m.Attrs[key] = value
	return m
}

// SetWireAttr attaches a wire-level matchi_* attribute (type, share index,
// latency, activity net, clock) and returns m for chaining.
func (m *RawModule) SetWireAttr(wire, key, value string) *RawModule {
	wa, ok := m.WireAttrs[wire]
	if !ok {
		wa = make(map[string]string)
		m.WireAttrs[wire] = wa
	}
	wa[key] = value
	return m
}

// Inst adds an instance named name, referencing either a fixed library cell
// (by its cells.Kind name), a tie ("TIE0", "TIE1"), or another module of
// this netlist, wired per ports (port name -> wire name). It returns m for
// chaining.
func (m *RawModule) Inst(name, cell string, ports map[string]string) *RawModule {
	m.Insts = append(m.Insts, RawInstance{Name: name, Cell: cell, Ports: ports})
	return m
}

// WireID identifies a wire within its owning Module by a small integer, per
// the arena-and-index representation used throughout the core.
type WireID int

// InstID identifies an instance within its owning Module by a small
// integer.
type InstID int

type driverKind uint8

const (
	driverNone driverKind = iota
	driverInstance
	driverModuleInput
)

type driver struct {
	kind     driverKind
	inst     InstID
	port     string
	inputIdx int
}

// Wire is an elaborated, deduplicated wire: a name and its unique driver.
type Wire struct {
	Name   string
	driver driver
}

// InstKind classifies an elaborated instance.
type InstKind uint8

const (
	InstSubModule InstKind = iota
	InstLibCell
	InstTieLow
	InstTieHigh
)

// Instance is an elaborated instance: a reference to a sub-module or
// library cell, with its ports resolved to WireIDs.
type Instance struct {
	Name      string
	Kind      InstKind
	Cell      cells.Kind
	SubModule string
	Ports     map[string]WireID
}

// Module is a fully elaborated module: deduplicated wires, resolved
// instances, and a topological evaluation order. Once built by Elaborate it
// is never mutated again; it is shared, read-only structure for every
// simulation run built on top of it.
type Module struct {
	Name      string
	Inputs    []string
	Outputs   []string
	Wires     []Wire
	wireIndex map[string]WireID
	Instances []Instance
	// Order lists instance ids in a valid evaluation order: for any pair
	// (A before B) in Order, no combinational output of B feeds a
	// combinational input of A through wires inside this module.
	Order []InstID
	// SeqCells lists, in declaration order, the instances that hold
	// sequential state (DFF), matching the module's "ordered
	// sequential-state cells".
	SeqCells []InstID
	// ClockWire is the wire carrying this module's single clock, or -1 if
	// the module declares none (true of every module except the top
	// gadget and any gadget with its own clock port).
	ClockWire WireID
	// portDeps[o][i] reports whether output port o combinationally depends
	// on input port i; used by an enclosing module when this module is
	// instantiated as a flat sub-module.
	portDeps  [][]bool
	Attrs     map[string]string
	WireAttrs map[string]map[string]string
}

// WireID resolves a wire name to its id, or -1 if the module has no such
// wire.
func (m *Module) WireID(name string) WireID {
	if id, ok := m.wireIndex[name]; ok {
		return id
	}
	return -1
}

// Netlist is the top-level elaborated result: every module reachable from
// the top gadget, elaborated leaves-first so that a flat sub-module's
// portDeps are available when its parent's own portDeps are computed.
type Netlist struct {
	Modules map[string]*Module
	Top     string
}

// Elaborate elaborates every module of raw reachable from top, and returns
// the resulting Netlist. Elaboration performs wire deduplication, driver
// uniqueness and clock-identification checks, dependency-graph
// construction, and deterministic topological sorting, per module.
func Elaborate(raw *RawNetlist, top string) (*Netlist, error) {
	if _, ok := raw.Modules[top]; !ok {
		return nil, errors.Errorf("top module %q not found in netlist", top)
	}
	net := &Netlist{Modules: make(map[string]*Module), Top: top}
	visiting := make(map[string]bool)
	var elab func(name string) (*Module, error)
	elab = func(name string) (*Module, error) {
		if m, ok := net.Modules[name]; ok {
			return m, nil
		}
		if visiting[name] {
			return nil, errors.Errorf("module %q instantiates itself through its own hierarchy", name)
		}
		visiting[name] = true
		defer delete(visiting, name)

		raw, ok := raw.Modules[name]
		if !ok {
			return nil, errors.Errorf("module %q not found in netlist", name)
		}
		m, err := elaborateModule(raw, func(sub string) (*Module, error) { return elab(sub) })
		if err != nil {
			return nil, errors.Wrapf(err, "elaborating module %q", name)
		}
		net.Modules[name] = m
		return m, nil
	}
	if _, err := elab(top); err != nil {
		return nil, err
	}
	return net, nil
}

func elaborateModule(raw *RawModule, resolveSub func(string) (*Module, error)) (*Module, error) {
	m := &Module{
		Name:      raw.Name,
		Inputs:    raw.Inputs,
		Outputs:   raw.Outputs,
		wireIndex: make(map[string]WireID),
		Attrs:     raw.Attrs,
		WireAttrs: raw.WireAttrs,
		ClockWire: -1,
	}

	wireID := func(name string) WireID {
		if id, ok := m.wireIndex[name]; ok {
			return id
		}
		id := WireID(len(m.Wires))
		m.wireIndex[name] = id
		m.Wires = append(m.Wires, Wire{Name: name})
		return id
	}

	for i, name := range raw.Inputs {
		id := wireID(name)
		m.Wires[id].driver = driver{kind: driverModuleInput, inputIdx: i}
	}
	for _, name := range raw.Outputs {
		wireID(name)
	}

	m.Instances = make([]Instance, len(raw.Insts))
	subModules := make(map[InstID]*Module)
	for idx, ri := range raw.Insts {
		instID := InstID(idx)
		ports := make(map[string]WireID, len(ri.Ports))
		for port, wire := range ri.Ports {
			ports[port] = wireID(wire)
		}
		inst := Instance{Name: ri.Name, Ports: ports}

		if kind, ok := cells.ParseKind(ri.Cell); ok {
			inst.Kind = InstLibCell
			inst.Cell = kind
			for _, out := range kind.OutputPins() {
				wid, ok := ports[out]
				if !ok {
					continue
				}
				if err := setDriver(m, wid, driver{kind: driverInstance, inst: instID, port: out}); err != nil {
					return nil, err
				}
			}
			if kind == cells.DFF {
				m.SeqCells = append(m.SeqCells, instID)
			}
		} else if ri.Cell == "TIE0" || ri.Cell == "TIE1" {
			if ri.Cell == "TIE0" {
				inst.Kind = InstTieLow
			} else {
				inst.Kind = InstTieHigh
			}
			for port, wid := range ports {
				if err := setDriver(m, wid, driver{kind: driverInstance, inst: instID, port: port}); err != nil {
					return nil, err
				}
			}
		} else {
			sub, err := resolveSub(ri.Cell)
			if err != nil {
				return nil, &UnsupportedCellError{Module: m.Name, Instance: ri.Name, Cell: ri.Cell}
			}
			inst.Kind = InstSubModule
			inst.SubModule = ri.Cell
			subModules[instID] = sub
			for _, out := range sub.Outputs {
				wid, ok := ports[out]
				if !ok {
					continue
				}
				if err := setDriver(m, wid, driver{kind: driverInstance, inst: instID, port: out}); err != nil {
					return nil, err
				}
			}
		}
		m.Instances[idx] = inst
	}

	// clock identification: a module's clock is the wire whose attributes
	// name it matchi_type=clock.
	var clockWires []WireID
	for name, attrs := range m.WireAttrs {
		if attrs["matchi_type"] == "clock" {
			if id, ok := m.wireIndex[name]; ok {
				clockWires = append(clockWires, id)
			}
		}
	}
	if len(clockWires) == 1 {
		m.ClockWire = clockWires[0]
	} else if len(clockWires) > 1 {
		return nil, &ClockAmbiguousError{Module: m.Name, Count: len(clockWires)}
	}

	// driver-uniqueness / no-driver check: every wire must have exactly
	// one driver, except module inputs (already assigned above) and
	// module outputs, which are legal without an internal driver only if
	// they're wired straight through from an input (handled generically:
	// a module output wire is just another wire name, and it must still
	// be driven by something, per "Wire ... exactly one driver").
	for id := range m.Wires {
		w := &m.Wires[WireID(id)]
		if w.driver.kind == driverNone {
			return nil, &NoDriverError{Module: m.Name, Wire: w.Name}
		}
	}

	if err := buildOrder(m, subModules); err != nil {
		return nil, err
	}

	m.portDeps = computePortDeps(m, subModules)

	return m, nil
}

func setDriver(m *Module, wid WireID, d driver) error {
	w := &m.Wires[wid]
	if w.driver.kind != driverNone {
		return &MultiDriverError{Module: m.Name, Wire: w.Name}
	}
	w.driver = d
	return nil
}

// buildOrder constructs the combinational dependency graph over instances
// and computes a deterministic topological order by repeatedly extracting
// the minimum-id zero-indegree node (Kahn's algorithm with a
// deterministic tie-break, per the module's evaluation-ordering design).
func buildOrder(m *Module, subModules map[InstID]*Module) error {
	n := len(m.Instances)
	adj := make([][]InstID, n) // adj[a] = instances that depend on a (a must come before them)
	indeg := make([]int, n)
	edge := make(map[[2]InstID]bool)
	addEdge := func(from, to InstID) {
		if from == to {
			return
		}
		key := [2]InstID{from, to}
		if edge[key] {
			return
		}
		edge[key] = true
		adj[from] = append(adj[from], to)
		indeg[to]++
	}

	// map: wire id -> instances that read it as an input this instance.
	readers := make(map[WireID][]InstID)
	for idx, inst := range m.Instances {
		instID := InstID(idx)
		inPins := instInputPins(instID, inst, subModules)
		for _, pin := range inPins {
			if wid, ok := inst.Ports[pin]; ok {
				readers[wid] = append(readers[wid], instID)
			}
		}
	}

	for idx, inst := range m.Instances {
		instID := InstID(idx)
		switch inst.Kind {
		case InstLibCell:
			if inst.Cell.Sequential() {
				continue // DFF: no intra-cycle combinational arc
			}
			for _, out := range inst.Cell.OutputPins() {
				wid, ok := inst.Ports[out]
				if !ok {
					continue
				}
				for _, reader := range readers[wid] {
					addEdge(instID, reader)
				}
			}
		case InstTieLow, InstTieHigh:
			for _, wid := range inst.Ports {
				for _, reader := range readers[wid] {
					addEdge(instID, reader)
				}
			}
		case InstSubModule:
			sub := subModules[instID]
			for _, out := range sub.Outputs {
				owid, ok := inst.Ports[out]
				if !ok {
					continue
				}
				for _, reader := range readers[owid] {
					addEdge(instID, reader)
				}
			}
		}
	}

	// Kahn's algorithm, deterministic: always extract the lowest-id
	// zero-indegree instance.
	ready := make([]InstID, 0, n)
	for i := 0; i < n; i++ {
		if indeg[i] == 0 {
			ready = append(ready, InstID(i))
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })

	order := make([]InstID, 0, n)
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)
		for _, to := range adj[next] {
			indeg[to]--
			if indeg[to] == 0 {
				insertSorted(&ready, to)
			}
		}
	}

	if len(order) != n {
		cycle := findCycle(adj, n)
		names := make([]string, len(cycle))
		for i, id := range cycle {
			names[i] = m.Instances[id].Name
		}
		return &CombinationalLoopError{Module: m.Name, Cycle: names}
	}

	m.Order = order
	return nil
}

func insertSorted(s *[]InstID, v InstID) {
	i := sort.Search(len(*s), func(i int) bool { return (*s)[i] >= v })
	*s = append(*s, 0)
	copy((*s)[i+1:], (*s)[i:])
	(*s)[i] = v
}

// instInputPins lists the input pins of an instance, regardless of kind.
// Sub-module instances report every one of the sub-module's declared
// inputs: ordering operates at instance granularity, so it is enough to
// know that some output may depend on an input, not which one.
func instInputPins(id InstID, inst Instance, subModules map[InstID]*Module) []string {
	switch inst.Kind {
	case InstLibCell:
		return inst.Cell.InputPins()
	case InstTieLow, InstTieHigh:
		return nil
	case InstSubModule:
		if sub := subModules[id]; sub != nil {
			return sub.Inputs
		}
	}
	return nil
}

// findCycle performs a DFS over the remaining graph to recover one cycle
// for diagnostics, after Kahn's algorithm fails to order every node.
func findCycle(adj [][]InstID, n int) []InstID {
	const (white, gray, black = 0, 1, 2)
	color := make([]int, n)
	var path, cycle []InstID
	var visit func(u InstID) bool
	visit = func(u InstID) bool {
		color[u] = gray
		path = append(path, u)
		for _, v := range adj[u] {
			switch color[v] {
			case gray:
				// found the back edge; extract the cycle from path.
				for i := len(path) - 1; i >= 0; i-- {
					cycle = append(cycle, path[i])
					if path[i] == v {
						break
					}
				}
				return true
			case white:
				if visit(v) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		color[u] = black
		return false
	}
	for i := 0; i < n; i++ {
		if color[i] == white && visit(InstID(i)) {
			return cycle
		}
	}
	return nil
}

// computePortDeps computes, for a module used as a sub-module, which
// output ports combinationally depend on which input ports. Pipeline
// gadgets are opaque: per 4.2, an input port at latency k conservatively
// reaches every output port at the same latency k, and the gadget's own
// internal instances are never inspected. Every other (flat) module gets a
// boolean reachability matrix over its own instance dependency graph,
// already captured by m.Order. Either way, the result is read only by an
// enclosing module's computePortDeps. An enclosing module's buildOrder does
// not use it: it orders every sub-module instance as a single node, after
// each instance that drives one of its inputs and before each instance
// that reads one of its outputs.
func computePortDeps(m *Module, subModules map[InstID]*Module) [][]bool {
	if m.Attrs["matchi_strat"] == "assumed" && m.Attrs["matchi_arch"] == "pipeline" {
		return pipelinePortDeps(m)
	}
	deps := make([][]bool, len(m.Outputs))
	for i := range deps {
		deps[i] = make([]bool, len(m.Inputs))
	}
	inputWire := make(map[WireID]int, len(m.Inputs))
	for i, name := range m.Inputs {
		inputWire[m.wireIndex[name]] = i
	}

	// reach[w] = set of input indices that combinationally reach wire w,
	// computed by walking instances in evaluation order (each instance's
	// outputs reach whatever its relevant inputs reach).
	reach := make(map[WireID]map[int]bool)
	for wid, ii := range inputWire {
		reach[wid] = map[int]bool{ii: true}
	}
	for _, instID := range m.Order {
		inst := m.Instances[instID]
		switch inst.Kind {
		case InstLibCell:
			if inst.Cell.Sequential() {
				continue
			}
			union := map[int]bool{}
			for _, in := range inst.Cell.InputPins() {
				if wid, ok := inst.Ports[in]; ok {
					for ii := range reach[wid] {
						union[ii] = true
					}
				}
			}
			for _, out := range inst.Cell.OutputPins() {
				if wid, ok := inst.Ports[out]; ok {
					reach[wid] = union
				}
			}
		case InstSubModule:
			sub := subModules[instID]
			for oi, out := range sub.Outputs {
				owid, ok := inst.Ports[out]
				if !ok {
					continue
				}
				union := map[int]bool{}
				for ii, in := range sub.Inputs {
					if !sub.portDeps[oi][ii] {
						continue
					}
					if iwid, ok := inst.Ports[in]; ok {
						for k := range reach[iwid] {
							union[k] = true
						}
					}
				}
				reach[owid] = union
			}
		}
	}
	for oi, name := range m.Outputs {
		wid := m.wireIndex[name]
		for ii := range reach[wid] {
			deps[oi][ii] = true
		}
	}
	return deps
}

// pipelinePortDeps implements the conservative pipeline-gadget dependency
// rule: input port in reaches output port out iff both declare the same
// matchi_latency. Ports with no latency attribute reach nothing and are
// unreachable from anything; gadget validation (see gadget.go) is what
// catches that as a BadAnnotation before simulation relies on it.
func pipelinePortDeps(m *Module) [][]bool {
	deps := make([][]bool, len(m.Outputs))
	for i := range deps {
		deps[i] = make([]bool, len(m.Inputs))
	}
	latencyOf := func(port string) (int, bool) {
		attrs := m.WireAttrs[port]
		if attrs == nil {
			return 0, false
		}
		v, ok := attrs["matchi_latency"]
		if !ok {
			return 0, false
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	for oi, out := range m.Outputs {
		ol, ok := latencyOf(out)
		if !ok {
			continue
		}
		for ii, in := range m.Inputs {
			if il, ok := latencyOf(in); ok && il == ol {
				deps[oi][ii] = true
			}
		}
	}
	return deps
}
