package pinisim

import (
	"strconv"
	"strings"

	"github.com/masktrace/pinisim/symbit"
	"github.com/pkg/errors"
)

// GadgetStrat is a module's matchi_strat attribute: whether it is the
// concretely-simulated top-level gadget or an abstractly-evaluated
// sub-gadget whose internal security is assumed rather than checked.
type GadgetStrat int

const (
	StratCompositeTop GadgetStrat = iota
	StratAssumed
)

// GadgetArch is a module's matchi_arch attribute.
type GadgetArch int

const (
	ArchLoopy GadgetArch = iota
	ArchPipeline
)

// GadgetProp is a module's matchi_prop attribute: the non-interference
// notion the gadget claims to satisfy.
type GadgetProp int

const (
	PropPINI GadgetProp = iota
	PropOPINI
)

// PortType classifies a gadget port's symbolic role.
type PortType int

const (
	PortClock PortType = iota
	PortControl
	PortRandom
	PortShare
	PortSharingsDense
	PortSharingsStrided
)

// PortInfo is a single gadget port's annotation.
type PortInfo struct {
	Type       PortType
	ShareIndex int  // valid for PortShare
	HasLatency bool // pipeline gadgets only
	Latency    int
	Activity   string // name of the control wire gating this port
}

// Gadget is the validated overlay of an elaborated Module: its strategy,
// architecture, declared property, share count, and per-port annotations.
type Gadget struct {
	Module *Module
	Strat  GadgetStrat
	Arch   GadgetArch
	Prop   GadgetProp
	Shares int
	Ports  map[string]PortInfo
}

func parsePortType(s string) (PortType, bool) {
	switch s {
	case "clock":
		return PortClock, true
	case "control":
		return PortControl, true
	case "random":
		return PortRandom, true
	case "share":
		return PortShare, true
	case "sharings_dense":
		return PortSharingsDense, true
	case "sharings_strided":
		return PortSharingsStrided, true
	}
	return 0, false
}

// BuildGadget reads m's matchi_* attributes and produces its validated
// gadget overlay. It returns a BadAnnotationError for any malformed or
// missing annotation described by 4.3.
func BuildGadget(m *Module) (*Gadget, error) {
	strat, ok := m.Attrs["matchi_strat"]
	if !ok {
		return nil, &BadAnnotationError{Module: m.Name, Detail: "missing matchi_strat"}
	}
	arch, ok := m.Attrs["matchi_arch"]
	if !ok {
		return nil, &BadAnnotationError{Module: m.Name, Detail: "missing matchi_arch"}
	}
	shares, err := strconv.Atoi(m.Attrs["matchi_shares"])
	if err != nil || shares < 2 || shares > symbit.MaxShares {
		return nil, &BadAnnotationError{Module: m.Name, Detail: "matchi_shares must be an integer between 2 and " + strconv.Itoa(symbit.MaxShares)}
	}

	g := &Gadget{Module: m, Shares: shares, Ports: make(map[string]PortInfo)}
	switch strat {
	case "composite_top":
		g.Strat = StratCompositeTop
	case "assumed":
		g.Strat = StratAssumed
	default:
		return nil, &BadAnnotationError{Module: m.Name, Detail: "matchi_strat must be composite_top or assumed"}
	}
	switch arch {
	case "loopy":
		g.Arch = ArchLoopy
	case "pipeline":
		g.Arch = ArchPipeline
	default:
		return nil, &BadAnnotationError{Module: m.Name, Detail: "matchi_arch must be loopy or pipeline"}
	}
	switch m.Attrs["matchi_prop"] {
	case "", "PINI":
		g.Prop = PropPINI
	case "OPINI":
		g.Prop = PropOPINI
	default:
		return nil, &BadAnnotationError{Module: m.Name, Detail: "matchi_prop must be PINI or OPINI"}
	}

	allPorts := append(append([]string{}, m.Inputs...), m.Outputs...)
	for _, port := range allPorts {
		attrs := m.WireAttrs[port]
		typ, ok := parsePortType(attrs["matchi_type"])
		if !ok {
			return nil, &BadAnnotationError{Module: m.Name, Detail: "port " + port + ": missing or invalid matchi_type"}
		}
		info := PortInfo{Type: typ}
		if typ == PortShare || typ == PortSharingsDense || typ == PortSharingsStrided {
			idx, err := strconv.Atoi(attrs["matchi_share"])
			if err != nil || idx < 0 || idx >= shares {
				return nil, &BadAnnotationError{Module: m.Name, Detail: "port " + port + ": matchi_share out of range"}
			}
			info.ShareIndex = idx
		}
		if g.Strat == StratAssumed && g.Arch == ArchPipeline {
			lat, err := strconv.Atoi(attrs["matchi_latency"])
			if err != nil || lat < 0 {
				return nil, &BadAnnotationError{Module: m.Name, Detail: "port " + port + ": pipeline gadget requires a non-negative matchi_latency"}
			}
			info.HasLatency = true
			info.Latency = lat
		}
		if typ == PortShare || typ == PortSharingsDense || typ == PortSharingsStrided || typ == PortRandom {
			act := attrs["matchi_active"]
			if act == "" {
				return nil, &BadAnnotationError{Module: m.Name, Detail: "port " + port + ": missing matchi_active"}
			}
			actAttrs := m.WireAttrs[act]
			if g.Strat == StratCompositeTop && actAttrs["matchi_type"] != "control" {
				return nil, &BadAnnotationError{Module: m.Name, Detail: "port " + port + ": activity wire " + act + " is not control-typed"}
			}
			info.Activity = act
		}
		g.Ports[port] = info
	}

	if g.Strat == StratCompositeTop {
		clocks := 0
		for _, info := range g.Ports {
			if info.Type == PortClock {
				clocks++
			}
		}
		if clocks != 1 {
			return nil, &BadAnnotationError{Module: m.Name, Detail: "top-level gadget must have exactly one clock port"}
		}
	}

	if err := checkRandomCounts(m, g); err != nil {
		return nil, err
	}

	return g, nil
}

// checkRandomCounts cross-checks the module's declared rnd_count/rnd_lat_*
// attributes against the actual random-typed ports, both in aggregate
// (matchi_rnd_count against every random port in the gadget) and per
// declared latency (matchi_rnd_lat_<N> against the random ports whose own
// matchi_latency is N), restoring the original tool's static port-count
// validation.
func checkRandomCounts(m *Module, g *Gadget) error {
	if rndCount, ok := m.Attrs["matchi_rnd_count"]; ok {
		want, err := strconv.Atoi(rndCount)
		if err != nil {
			return &BadAnnotationError{Module: m.Name, Detail: "matchi_rnd_count is not an integer"}
		}
		got := 0
		for _, info := range g.Ports {
			if info.Type == PortRandom {
				got++
			}
		}
		if got != want {
			return &BadAnnotationError{Module: m.Name, Detail: errors.Errorf("matchi_rnd_count declares %d random ports, found %d", want, got).Error()}
		}
	}

	gotByLat := make(map[int]int)
	for _, info := range g.Ports {
		if info.Type == PortRandom && info.HasLatency {
			gotByLat[info.Latency]++
		}
	}
	for attr, val := range m.Attrs {
		lat, ok := parseRndLatAttr(attr)
		if !ok {
			continue
		}
		want, err := strconv.Atoi(val)
		if err != nil {
			return &BadAnnotationError{Module: m.Name, Detail: attr + " is not an integer"}
		}
		if got := gotByLat[lat]; got != want {
			return &BadAnnotationError{Module: m.Name, Detail: errors.Errorf("%s declares %d random ports at latency %d, found %d", attr, want, lat, got).Error()}
		}
	}
	return nil
}

// parseRndLatAttr reports whether attr is a matchi_rnd_lat_<N> attribute
// name and, if so, its declared latency N.
func parseRndLatAttr(attr string) (int, bool) {
	const prefix = "matchi_rnd_lat_"
	if !strings.HasPrefix(attr, prefix) {
		return 0, false
	}
	lat, err := strconv.Atoi(attr[len(prefix):])
	if err != nil || lat < 0 {
		return 0, false
	}
	return lat, true
}

// PortSymbolicValue materialises a gadget port's SymbolicBit for one cycle,
// per 4.3: the semantics depend on the port's type and on whether its
// activity wire is asserted this cycle. id supplies the fresh RandomID to
// use when the port is of type random and active.
func PortSymbolicValue(info PortInfo, concrete bool, active bool, id symbit.RandomID) symbit.SymbolicBit {
	if !active {
		// Conservative degradation: an inactive share or random port
		// carries no secret or randomness this cycle.
		return symbit.Det(concrete)
	}
	switch info.Type {
	case PortClock, PortControl:
		return symbit.Det(concrete)
	case PortRandom:
		return symbit.FreshRandom(id, concrete)
	case PortShare, PortSharingsDense, PortSharingsStrided:
		return symbit.Sensitive(concrete, symbit.Singleton(info.ShareIndex))
	}
	return symbit.Det(concrete)
}
