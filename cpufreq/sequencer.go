package cpufreq

import (
	"fmt"

	"github.com/Jon-Bright/cpufreqctl/socfpga"
	"github.com/rs/xid"
)

// State is a step of the bypass/lock sequence.
type State int

const (
	StateIdle State = iota
	StateEnterBypass
	StateAwaitIdle1
	StateProgramRegisters
	StateAwaitLock
	StateExitBypass
	StateAwaitIdle2
)

var stateNames = map[State]string{
	StateIdle:             "Idle",
	StateEnterBypass:      "EnterBypass",
	StateAwaitIdle1:       "AwaitIdle1",
	StateProgramRegisters: "ProgramRegisters",
	StateAwaitLock:        "AwaitLock",
	StateExitBypass:       "ExitBypass",
	StateAwaitIdle2:       "AwaitIdle2",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// TransitionTo moves the CPU clock to the operating point at index.
func (d *Driver) TransitionTo(index int) error {
	op, err := d.table.Lookup(index)
	if err != nil {
		return err
	}
	return d.transition(index, op)
}

// Transition moves the CPU clock to op, which needn't be in the table.
func (d *Driver) Transition(op OperatingPoint) error {
	return d.transition(-1, op)
}

// transition changes whichever of VCO and dividers makes the clocks slower
// first, so no clock ever runs faster than either the old or the new
// operating point allows it to. A VCO change always goes through bypass.
func (d *Driver) transition(index int, op OperatingPoint) error {
	t := &Transition{
		ID:      xid.New().String(),
		Index:   index,
		ToKHz:   op.KHz,
		ToVCOHz: vcoHz(d.refHz, op.Config.VCONumer, op.Config.VCODenom),
		Start:   d.now(),
	}
	var err error
	t.FromKHz, t.FromVCOHz, err = d.current()
	if err != nil {
		return fmt.Errorf("couldn't get current frequency: %w", err)
	}
	switch {
	case t.ToVCOHz > t.FromVCOHz:
		t.Path = PathRaise
	case t.ToVCOHz < t.FromVCOHz:
		t.Path = PathLower
	default:
		t.Path = PathDividers
	}
	d.log.Printf("Transition %s: %d kHz -> %d kHz, VCO %d Hz -> %d Hz (%v)", t.ID, t.FromKHz, t.ToKHz, t.FromVCOHz, t.ToVCOHz, t.Path)
	if d.tracer != nil {
		d.tracer.StartTransition(t)
	}

	switch t.Path {
	case PathDividers:
		d.enter(t, StateProgramRegisters)
		err = d.writeDividers(op.Config)
	case PathRaise:
		d.enter(t, StateProgramRegisters)
		err = d.writeDividers(op.Config)
		if err == nil {
			err = d.reprogramVCO(t, op.Config)
		}
	case PathLower:
		err = d.reprogramVCO(t, op.Config)
		if err == nil {
			d.enter(t, StateProgramRegisters)
			err = d.writeDividers(op.Config)
		}
	}
	d.enter(t, StateIdle)

	t.End = d.now()
	t.Err = err
	if err != nil {
		d.log.Printf("Transition %s failed after %v: %v", t.ID, t.End.Sub(t.Start), err)
	} else {
		d.log.Printf("Transition %s done in %v", t.ID, t.End.Sub(t.Start))
	}
	if d.tracer != nil {
		d.tracer.EndTransition(t)
	}
	return err
}

func (d *Driver) enter(t *Transition, s State) {
	t.States = append(t.States, s)
	if d.tracer != nil {
		d.tracer.EnterState(t, s)
	}
}

func (d *Driver) writeDividers(c PLLConfig) error {
	divs := []struct {
		offset uint32
		value  uint32
	}{
		{socfpga.ALTR_MPUCLK, c.MPUDiv},
		{socfpga.ALTR_MAINCLK, c.MainDiv},
		{socfpga.ALTR_DBGATCLK, c.DbgDiv},
		{socfpga.MAINPLL_CFGS2FUSER0CLK, c.PeriphDiv},
	}
	for _, div := range divs {
		err := d.write(div.offset, div.value)
		if err != nil {
			return err
		}
	}
	return nil
}

// reprogramVCO puts the main PLL into bypass, writes the new VCO settings,
// waits for lock and takes the PLL out of bypass again. If anything fails
// once bypass may have been asserted, bypass is released before returning.
// Only the main PLL bypass bit is changed; the peripheral and SDRAM PLL bits
// are written back as they were read.
func (d *Driver) reprogramVCO(t *Transition, c PLLConfig) error {
	d.enter(t, StateEnterBypass)
	bypass, err := d.read(socfpga.BYPASS)
	if err != nil {
		return err
	}
	others := bypass &^ socfpga.BYPASS_MAINPLL
	err = d.write(socfpga.BYPASS, others|socfpga.BYPASS_MAINPLL)
	if err != nil {
		return d.abort(t, others, err)
	}
	d.enter(t, StateAwaitIdle1)
	err = d.waitIdle()
	if err != nil {
		return d.abort(t, others, err)
	}
	d.enter(t, StateProgramRegisters)
	err = d.write(socfpga.MAINPLL_VCO, EncodeVCO(c.VCONumer, c.VCODenom)|d.force)
	if err != nil {
		return d.abort(t, others, err)
	}
	d.enter(t, StateAwaitLock)
	err = d.waitLock()
	if err != nil {
		return d.abort(t, others, err)
	}
	d.enter(t, StateExitBypass)
	err = d.write(socfpga.BYPASS, others)
	if err != nil {
		return err
	}
	d.enter(t, StateAwaitIdle2)
	return d.waitIdle()
}

// abort releases the main PLL bypass after a failed step, restoring the
// other bypass bits, and returns the step's error. The PLL may still be
// unlocked; bypass is released anyway so the clock tree isn't left running
// from the oscillator indefinitely.
func (d *Driver) abort(t *Transition, others uint32, cause error) error {
	d.log.Printf("Transition %s failed, leaving bypass: %v", t.ID, cause)
	d.enter(t, StateExitBypass)
	err := d.write(socfpga.BYPASS, others)
	if err != nil {
		d.log.Printf("Couldn't leave bypass: %v", err)
		return cause
	}
	d.enter(t, StateAwaitIdle2)
	err = d.waitIdle()
	if err != nil {
		d.log.Printf("Clock manager didn't go idle after leaving bypass: %v", err)
	}
	return cause
}
