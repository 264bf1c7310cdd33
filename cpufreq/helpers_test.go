package cpufreq

import (
	"errors"
	"io"
	"log"
	"time"

	"github.com/Jon-Bright/cpufreqctl/socfpga"
)

var discard = log.New(io.Discard, "", 0)

// scriptRegs plays back a fixed sequence of values per register. Once a
// sequence runs out, its last value repeats.
type scriptRegs struct {
	script map[uint32][]uint32
	reads  map[uint32]int
	fail   error
}

func newScriptRegs(script map[uint32][]uint32) *scriptRegs {
	return &scriptRegs{script: script, reads: map[uint32]int{}}
}

func (r *scriptRegs) Read32(offset uint32) (uint32, error) {
	if r.fail != nil {
		return 0, r.fail
	}
	s, ok := r.script[offset]
	if !ok || len(s) == 0 {
		return 0, errors.New("unscripted register")
	}
	n := r.reads[offset]
	r.reads[offset]++
	if n >= len(s) {
		n = len(s) - 1
	}
	return s[n], nil
}

func (r *scriptRegs) Write32(offset, value uint32) error {
	return r.fail
}

// fakeClock moves forward by step every time it's asked the time.
type fakeClock struct {
	t    time.Time
	step time.Duration
}

func (c *fakeClock) now() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}

func repeat(v uint32, n int) []uint32 {
	s := make([]uint32, n)
	for i := range s {
		s[i] = v
	}
	return s
}

// load puts a Sim into the state of op, bypassing the access log.
func load(sim *socfpga.Sim, op OperatingPoint) {
	sim.Set(socfpga.MAINPLL_VCO, EncodeVCO(op.Config.VCONumer, op.Config.VCODenom)|VCOEnable)
	sim.Set(socfpga.MAINPLL_MPUCLK, 0)
	sim.Set(socfpga.ALTR_MPUCLK, op.Config.MPUDiv)
	sim.Set(socfpga.ALTR_MAINCLK, op.Config.MainDiv)
	sim.Set(socfpga.ALTR_DBGATCLK, op.Config.DbgDiv)
	sim.Set(socfpga.MAINPLL_CFGS2FUSER0CLK, op.Config.PeriphDiv)
	sim.ClearLog()
}
