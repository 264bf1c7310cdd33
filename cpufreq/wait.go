package cpufreq

import (
	"fmt"
	"time"

	"github.com/Jon-Bright/cpufreqctl/socfpga"
)

// WaitPolicy bounds the clock manager hand-shakes.
type WaitPolicy struct {
	// Timeout is the longest a single wait may take. Zero waits forever,
	// which is what the hardware reference code does.
	Timeout time.Duration
	// Interval is slept between polls. Zero spins.
	Interval time.Duration
	// StableReads is how many consecutive reads must show all PLLs locked.
	StableReads int
}

// DefaultWaitPolicy allows a single wait far longer than the 300us a whole
// transition is documented to take.
var DefaultWaitPolicy = WaitPolicy{
	Timeout:     50 * time.Millisecond,
	Interval:    10 * time.Microsecond,
	StableReads: 10,
}

func (d *Driver) deadline() time.Time {
	if d.wait.Timeout <= 0 {
		return time.Time{}
	}
	return d.now().Add(d.wait.Timeout)
}

func (d *Driver) expired(deadline time.Time) bool {
	return !deadline.IsZero() && d.now().After(deadline)
}

func (d *Driver) pause() {
	if d.wait.Interval > 0 {
		d.sleep(d.wait.Interval)
	}
}

// waitIdle polls the status register until the clock manager state machine
// isn't busy.
func (d *Driver) waitIdle() error {
	deadline := d.deadline()
	i := 0
	for {
		stat, err := d.read(socfpga.STAT)
		if err != nil {
			return err
		}
		i++
		if stat&socfpga.STAT_BUSY == 0 {
			d.log.Printf("Clock manager idle after %d reads", i)
			return nil
		}
		if d.expired(deadline) {
			return fmt.Errorf("%w: clock manager still busy after %d reads, stat %08X", ErrHardwareTimeout, i, stat)
		}
		d.pause()
	}
}

// waitLock polls the interrupt register until all three PLLs have shown as
// locked for StableReads reads in a row. A single unlocked read starts the
// count again.
func (d *Driver) waitLock() error {
	deadline := d.deadline()
	stable := 0
	i := 0
	for stable < d.wait.StableReads {
		inter, err := d.read(socfpga.INTER)
		if err != nil {
			return err
		}
		i++
		if inter&socfpga.INTER_ALL_LOCKED == socfpga.INTER_ALL_LOCKED {
			stable++
		} else {
			stable = 0
			if d.expired(deadline) {
				return fmt.Errorf("%w: PLLs not locked after %d reads, inter %08X", ErrHardwareTimeout, i, inter)
			}
		}
		if stable < d.wait.StableReads {
			d.pause()
		}
	}
	d.log.Printf("PLLs locked after %d reads", i)
	return nil
}
