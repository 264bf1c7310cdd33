package cpufreq

import (
	"github.com/Jon-Bright/cpufreqctl/socfpga"
)

// CurrentVCOHz reads the main PLL VCO register and returns its frequency.
func (d *Driver) CurrentVCOHz() (uint64, error) {
	vco, err := d.read(socfpga.MAINPLL_VCO)
	if err != nil {
		return 0, err
	}
	numer, denom := DecodeVCO(vco)
	return vcoHz(d.refHz, numer, denom), nil
}

// CurrentFrequencyKHz derives the MPU clock from the live registers. The
// divisions are done in the same order, and truncate in the same places, as
// the clock tree does.
func (d *Driver) CurrentFrequencyKHz() (uint32, error) {
	khz, _, err := d.current()
	return khz, err
}

func (d *Driver) current() (uint32, uint64, error) {
	mpu, err := d.read(socfpga.ALTR_MPUCLK)
	if err != nil {
		return 0, 0, err
	}
	cnt, err := d.read(socfpga.MAINPLL_MPUCLK)
	if err != nil {
		return 0, 0, err
	}
	vco, err := d.CurrentVCOHz()
	if err != nil {
		return 0, 0, err
	}
	f := vco / (uint64(mpu) + 1)
	f /= uint64(cnt) + 1
	f /= 1000
	return uint32(f), vco, nil
}

// CurrentIndex returns the table index of the live frequency, or -1 if the
// clock isn't at any operating point.
func (d *Driver) CurrentIndex() (int, uint32, error) {
	khz, err := d.CurrentFrequencyKHz()
	if err != nil {
		return -1, 0, err
	}
	if i, err := d.table.Verify(khz); err == nil {
		return i, khz, nil
	}
	return -1, khz, nil
}
