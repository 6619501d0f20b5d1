// Command pinisim runs the symbolic non-interference simulator against a
// netlist built in Go and prints the resulting verdict.
//
// There is no netlist or value-change-dump file format in scope: callers
// that need one write a small adapter that populates a pinisim.RawNetlist
// and a pinisim.InputTrace from whatever front end they have, the same way
// this command's demo() function does for a toy two-share XOR gadget.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/masktrace/pinisim"
)

func main() {
	shares := flag.Int("shares", 2, "number of secret shares")
	maxCycles := flag.Int("max-cycles", 0, "stop after this many cycles (0: run to the end of the trace)")
	top := flag.String("top", "top", "name of the top-level gadget module")
	dutPath := flag.String("dut-path", "", "scope path of the top instance within the input trace")
	inValid := flag.String("in-valid", "", "name of the signal marking cycle 0")
	flag.Parse()

	cfg := pinisim.Config{
		Shares:    *shares,
		MaxCycles: *maxCycles,
		TopModule: *top,
		DUTPath:   *dutPath,
		InValid:   *inValid,
	}

	net, trace := demo(cfg)

	engine, err := pinisim.NewEngine(net, trace, cfg)
	if err != nil {
		log.Fatalf("pinisim: %v", err)
	}

	_, report, err := engine.Run()
	if err != nil {
		log.Fatalf("pinisim: %v", err)
	}

	if report.Secure() {
		fmt.Println("verdict: secure")
		return
	}
	fmt.Println("verdict: INSECURE")
	for _, v := range report.Violations {
		fmt.Println(" ", v.String())
	}
	os.Exit(1)
}

// demo builds a two-share masked buffer gadget (z0 = a0 XORed with a fresh
// random bit r and then with r again, z1 = a1 through a buffer) and a
// one-cycle trace
// that exercises it, standing in for whatever real netlist and trace a
// caller would supply.
func demo(cfg pinisim.Config) (*pinisim.Netlist, pinisim.InputTrace) {
	raw := pinisim.NewRawNetlist()

	top := raw.Module(cfg.TopModule).
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
		SetWireAttr("z1", "matchi_active", "en")

	top.Inst("mask", "XOR", map[string]string{"a": "a0", "b": "r", "out": "m0"})
	top.Inst("unmask", "XOR", map[string]string{"a": "m0", "b": "r", "out": "z0"})
	top.Inst("pass1", "BUF", map[string]string{"in": "a1", "out": "z1"})

	net, err := pinisim.Elaborate(raw, cfg.TopModule)
	if err != nil {
		log.Fatalf("elaborate: %v", err)
	}

	trace := pinisim.NewMapTrace().
		Set(0, "clk", true).
		Set(0, "en", true).
		Set(0, "a0", true).
		Set(0, "a1", false).
		Set(0, "r", true)

	return net, trace
}
