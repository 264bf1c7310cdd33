// Package cpufreq changes the CPU clock of a Cyclone V HPS between the
// operating points of a fixed table.
//
// The driver owns no state besides its configuration: the current operating
// point is always derived from the clock manager registers. Callers must not
// run a transition concurrently with another transition or with a frequency
// query; see package policy.
package cpufreq

import (
	"fmt"
	"log"
	"time"

	"github.com/Jon-Bright/cpufreqctl/socfpga"
)

// Regs is the clock manager register block, addressed by byte offset.
// socfpga.MMIO and socfpga.Sim implement it.
type Regs interface {
	Read32(offset uint32) (uint32, error)
	Write32(offset, value uint32) error
}

type Config struct {
	// Table defaults to DefaultTable.
	Table Table
	// RefHz is the OSC1 frequency, default OSC1Hz.
	RefHz uint64
	// Wait defaults to DefaultWaitPolicy.
	Wait *WaitPolicy
	// VCOForceBits are ORed into every VCO register write, e.g. VCOEnable.
	VCOForceBits uint32
	Tracer       Tracer
	// Logger defaults to the standard logger.
	Logger *log.Logger
}

type Driver struct {
	regs   Regs
	table  Table
	refHz  uint64
	wait   WaitPolicy
	force  uint32
	tracer Tracer
	log    *log.Logger

	now   func() time.Time
	sleep func(time.Duration)
}

func New(regs Regs, cfg Config) (*Driver, error) {
	if regs == nil {
		return nil, fmt.Errorf("%w: no register block", ErrRegisterAccess)
	}
	d := &Driver{
		regs:   regs,
		table:  cfg.Table,
		refHz:  cfg.RefHz,
		wait:   DefaultWaitPolicy,
		force:  cfg.VCOForceBits,
		tracer: cfg.Tracer,
		log:    cfg.Logger,
		now:    time.Now,
		sleep:  time.Sleep,
	}
	if d.table == nil {
		d.table = DefaultTable
	}
	if len(d.table) == 0 {
		return nil, fmt.Errorf("empty operating point table")
	}
	if d.refHz == 0 {
		d.refHz = OSC1Hz
	}
	if cfg.Wait != nil {
		d.wait = *cfg.Wait
	}
	if d.wait.StableReads < 1 {
		return nil, fmt.Errorf("wait policy needs at least one stable read, got %d", d.wait.StableReads)
	}
	if d.log == nil {
		d.log = log.Default()
	}
	return d, nil
}

func (d *Driver) Table() Table {
	return d.table
}

func (d *Driver) read(offset uint32) (uint32, error) {
	v, err := d.regs.Read32(offset)
	if err != nil {
		return 0, readErr(offset, err)
	}
	return v, nil
}

func (d *Driver) write(offset, value uint32) error {
	err := d.regs.Write32(offset, value)
	if err != nil {
		return writeErr(offset, err)
	}
	return nil
}

var _ Regs = (*socfpga.MMIO)(nil)
var _ Regs = (*socfpga.Sim)(nil)
