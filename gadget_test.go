package pinisim

import "testing"

func maskedBufferRaw() *RawNetlist {
	raw := NewRawNetlist()
	raw.Module("top").
		In("clk", "a0", "a1", "r", "en").
		Out("z0", "z1").
		SetAttr("matchi_strat", "composite_top").
		SetAttr("matchi_arch", "loopy").
		SetAttr("matchi_shares", "2").
		SetWireAttr("clk", "matchi_type", "clock").
		SetWireAttr("en", "matchi_type", "control").
		SetWireAttr("a0", "matchi_type", "share").
		SetWireAttr("a0", "matchi_share", "0").
		SetWireAttr("a0", "matchi_active", "en").
		SetWireAttr("a1", "matchi_type", "share").
		SetWireAttr("a1", "matchi_share", "1").
		SetWireAttr("a1", "matchi_active", "en").
		SetWireAttr("r", "matchi_type", "random").
		SetWireAttr("r", "matchi_active", "en").
		SetWireAttr("z0", "matchi_type", "share").
		SetWireAttr("z0", "matchi_share", "0").
		SetWireAttr("z0", "matchi_active", "en").
		SetWireAttr("z1", "matchi_type", "share").
		SetWireAttr("z1", "matchi_share", "1").
		SetWireAttr("z1", "matchi_active", "en").
		Inst("mask", "XOR", map[string]string{"a": "a0", "b": "r", "out": "m0"}).
		Inst("unmask", "XOR", map[string]string{"a": "m0", "b": "r", "out": "z0"}).
		Inst("pass1", "BUF", map[string]string{"in": "a1", "out": "z1"})
	return raw
}

func TestBuildGadgetValidTop(t *testing.T) {
	net, err := Elaborate(maskedBufferRaw(), "top")
	if err != nil {
		t.Fatalf("Elaborate: %v", err)
	}
	g, err := BuildGadget(net.Modules["top"])
	if err != nil {
		t.Fatalf("BuildGadget: %v", err)
	}
	if g.Strat != StratCompositeTop || g.Arch != ArchLoopy || g.Shares != 2 {
		t.Fatalf("unexpected gadget overlay: %+v", g)
	}
	if g.Ports["a0"].Type != PortShare || g.Ports["a0"].ShareIndex != 0 {
		t.Fatalf("unexpected port info for a0: %+v", g.Ports["a0"])
	}
	if g.Ports["en"].Activity != "" {
		t.Fatalf("control port should not require its own activity gate, got %q", g.Ports["en"].Activity)
	}
}

func TestBuildGadgetMissingStrat(t *testing.T) {
	raw := NewRawNetlist()
	raw.Module("top").In("a").Out("a").SetAttr("matchi_arch", "loopy").SetAttr("matchi_shares", "2")
	if _, err := BuildGadget(raw.Module("top").toElaborated(t)); err == nil {
		t.Fatal("expected a BadAnnotationError for missing matchi_strat")
	}
}

func TestBuildGadgetBadShareIndex(t *testing.T) {
	raw := NewRawNetlist()
	raw.Module("top").
		In("a0").Out("z0").
		SetAttr("matchi_strat", "composite_top").
		SetAttr("matchi_arch", "loopy").
		SetAttr("matchi_shares", "2").
		SetWireAttr("a0", "matchi_type", "share").
		SetWireAttr("a0", "matchi_share", "5").
		SetWireAttr("a0", "matchi_active", "a0").
		SetWireAttr("z0", "matchi_type", "share").
		SetWireAttr("z0", "matchi_share", "0").
		SetWireAttr("z0", "matchi_active", "a0").
		Inst("g0", "BUF", map[string]string{"in": "a0", "out": "z0"})
	m := raw.Module("top").toElaborated(t)
	if _, err := BuildGadget(m); err == nil {
		t.Fatal("expected a BadAnnotationError for an out-of-range matchi_share")
	}
}

func TestBuildGadgetRndCountMismatch(t *testing.T) {
	raw := NewRawNetlist()
	raw.Module("top").
		In("clk", "r", "en").Out("z").
		SetAttr("matchi_strat", "composite_top").
		SetAttr("matchi_arch", "loopy").
		SetAttr("matchi_shares", "2").
		SetAttr("matchi_rnd_count", "2").
		SetWireAttr("clk", "matchi_type", "clock").
		SetWireAttr("en", "matchi_type", "control").
		SetWireAttr("r", "matchi_type", "random").
		SetWireAttr("r", "matchi_active", "en").
		SetWireAttr("z", "matchi_type", "share").
		SetWireAttr("z", "matchi_share", "0").
		SetWireAttr("z", "matchi_active", "en").
		Inst("g0", "BUF", map[string]string{"in": "r", "out": "z"})
	m := raw.Module("top").toElaborated(t)
	if _, err := BuildGadget(m); err == nil {
		t.Fatal("expected a BadAnnotationError for an rnd_count mismatch")
	}
}

func TestBuildGadgetRndLatCountMismatch(t *testing.T) {
	// Two random ports declared, matching matchi_rnd_count, but both at
	// latency 0 while matchi_rnd_lat_1 claims one should land at latency 1.
	raw := NewRawNetlist()
	raw.Module("dly").
		In("r0", "r1").Out("z0").
		SetAttr("matchi_strat", "assumed").
		SetAttr("matchi_arch", "pipeline").
		SetAttr("matchi_prop", "PINI").
		SetAttr("matchi_shares", "2").
		SetAttr("matchi_rnd_count", "2").
		SetAttr("matchi_rnd_lat_0", "1").
		SetAttr("matchi_rnd_lat_1", "1").
		SetWireAttr("r0", "matchi_type", "random").
		SetWireAttr("r0", "matchi_active", "r0").
		SetWireAttr("r0", "matchi_latency", "0").
		SetWireAttr("r1", "matchi_type", "random").
		SetWireAttr("r1", "matchi_active", "r1").
		SetWireAttr("r1", "matchi_latency", "0").
		SetWireAttr("z0", "matchi_type", "share").
		SetWireAttr("z0", "matchi_share", "0").
		SetWireAttr("z0", "matchi_active", "r0").
		SetWireAttr("z0", "matchi_latency", "0").
		Inst("g0", "XOR", map[string]string{"a": "r0", "b": "r1", "out": "z0"})
	m := raw.Module("dly").toElaborated(t)
	if _, err := BuildGadget(m); err == nil {
		t.Fatal("expected a BadAnnotationError for an rnd_lat count mismatch")
	}
}

// toElaborated is a test-only helper: elaborate a single-module raw
// netlist rooted at itself.
func (rm *RawModule) toElaborated(t *testing.T) *Module {
	t.Helper()
	raw := NewRawNetlist()
	raw.Modules[rm.Name] = rm
	net, err := Elaborate(raw, rm.Name)
	if err != nil {
		t.Fatalf("Elaborate: %v", err)
	}
	return net.Modules[rm.Name]
}
