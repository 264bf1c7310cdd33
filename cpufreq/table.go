package cpufreq

import (
	"fmt"
	"time"
)

// PLLConfig is a full main PLL configuration. Every field is a register value
// meaning "divide (or multiply) by value+1".
type PLLConfig struct {
	VCONumer  uint32 // multiplies OSC1 by value+1
	VCODenom  uint32 // divides OSC1 by value+1
	MPUDiv    uint32 // alteragrp.mpuclk
	MainDiv   uint32 // alteragrp.mainclk
	DbgDiv    uint32 // alteragrp.dbgatclk
	PeriphDiv uint32 // mainpll.cfgs2fuser0clk
}

// VCOHz is the VCO frequency this configuration produces from OSC1.
func (c PLLConfig) VCOHz() uint64 {
	return VCOFrequencyHz(c.VCONumer, c.VCODenom)
}

// OperatingPoint is one selectable CPU frequency.
type OperatingPoint struct {
	KHz    uint32
	Config PLLConfig
	// Boost marks overclock steps. Policies shouldn't pick them as a
	// default maximum; the driver itself doesn't care.
	Boost bool
}

func (op OperatingPoint) String() string {
	if op.Boost {
		return fmt.Sprintf("%d kHz (boost)", op.KHz)
	}
	return fmt.Sprintf("%d kHz", op.KHz)
}

// Table is an ordered list of operating points, fastest first.
type Table []OperatingPoint

// TableEnd terminates the list returned by Terminated.
const TableEnd = ^uint32(0) - 1

// TransitionLatency is the worst case time a transition takes.
const TransitionLatency = 300 * time.Microsecond

// DefaultTable is the DE10-Nano table. Every step keeps the main, debug and
// peripheral clocks at 400, 400 and 100 MHz.
var DefaultTable = Table{
	// 1200 MHz overclock
	{KHz: 1200000, Boost: true, Config: PLLConfig{
		VCONumer:  95, // 25 MHz * (95 + 1) / (0 + 1) = 2400 MHz
		VCODenom:  0,
		MPUDiv:    1,  // 2400 MHz / (1 + 1) = 1200 MHz
		MainDiv:   5,  // 2400 MHz / (5 + 1) = 400 MHz
		DbgDiv:    5,  // 2400 MHz / (5 + 1) = 400 MHz
		PeriphDiv: 23, // 2400 MHz / (23 + 1) = 100 MHz
	}},
	// 1000 MHz overclock
	{KHz: 1000000, Boost: true, Config: PLLConfig{
		VCONumer:  79, // 25 MHz * (79 + 1) / (0 + 1) = 2000 MHz
		VCODenom:  0,
		MPUDiv:    1,
		MainDiv:   4,
		DbgDiv:    4,
		PeriphDiv: 19,
	}},
	// 800 MHz, the default for -I7 and -C7 speed grades
	{KHz: 800000, Config: PLLConfig{
		VCONumer:  63, // 1600 MHz
		VCODenom:  0,
		MPUDiv:    1,
		MainDiv:   3,
		DbgDiv:    3,
		PeriphDiv: 15,
	}},
	// 400 MHz underclock
	{KHz: 400000, Config: PLLConfig{
		VCONumer:  63,
		VCODenom:  0,
		MPUDiv:    3,
		MainDiv:   3,
		DbgDiv:    3,
		PeriphDiv: 15,
	}},
	// 266.66 MHz underclock
	{KHz: 266666, Config: PLLConfig{
		VCONumer:  63,
		VCODenom:  0,
		MPUDiv:    5,
		MainDiv:   3,
		DbgDiv:    3,
		PeriphDiv: 15,
	}},
}

// Lookup returns the operating point at index.
func (t Table) Lookup(index int) (OperatingPoint, error) {
	if index < 0 || index >= len(t) {
		return OperatingPoint{}, fmt.Errorf("%w: %d, table has %d entries", ErrInvalidIndex, index, len(t))
	}
	return t[index], nil
}

// Verify returns the index of the operating point running at exactly khz.
func (t Table) Verify(khz uint32) (int, error) {
	for i, op := range t {
		if op.KHz == khz {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%d kHz is not an operating point", khz)
}

// Frequencies lists every step's frequency in table order.
func (t Table) Frequencies() []uint32 {
	f := make([]uint32, 0, len(t))
	for _, op := range t {
		f = append(f, op.KHz)
	}
	return f
}

// BoostFrequencies lists the boost steps' frequencies in table order.
func (t Table) BoostFrequencies() []uint32 {
	var f []uint32
	for _, op := range t {
		if op.Boost {
			f = append(f, op.KHz)
		}
	}
	return f
}

// Limits returns the lowest and highest non-boost frequencies.
func (t Table) Limits() (min, max uint32) {
	for _, op := range t {
		if op.Boost {
			continue
		}
		if min == 0 || op.KHz < min {
			min = op.KHz
		}
		if op.KHz > max {
			max = op.KHz
		}
	}
	return min, max
}

// Terminated returns the frequencies followed by TableEnd.
func (t Table) Terminated() []uint32 {
	return append(t.Frequencies(), TableEnd)
}
