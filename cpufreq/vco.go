package cpufreq

import (
	"github.com/Jon-Bright/cpufreqctl/socfpga"
)

// OSC1Hz is the reference oscillator feeding the main PLL.
const OSC1Hz = socfpga.OSC1_HZ

// VCOEnable is forced into every VCO register write on revisions that
// clear the PLL enable bit otherwise. See Config.VCOForceBits.
const VCOEnable = socfpga.VCO_EN

// VCOFrequencyHz calculates the VCO clock in hertz from a numerator (divf)
// and denominator (divq), truncating like the PLL does.
func VCOFrequencyHz(numer, denom uint32) uint64 {
	return vcoHz(OSC1Hz, numer, denom)
}

func vcoHz(ref uint64, numer, denom uint32) uint64 {
	return ref * (uint64(numer) + 1) / (uint64(denom) + 1)
}

// EncodeVCO calculates the value of the VCO register from a numerator and
// denominator.
func EncodeVCO(numer, denom uint32) uint32 {
	return denom<<socfpga.VCO_DENOM_OFFSET | numer<<socfpga.VCO_NUMER_OFFSET
}

// DecodeVCO splits a VCO register value into numerator and denominator.
//
// Neither field is masked before or after shifting, so the numerator carries
// the denominator (shifted down by 13) and anything above it, and the
// denominator carries everything above bit 16. This matches what the clock
// code has always read back; it is only an inverse of EncodeVCO while the
// denominator is zero and the numerator stays below 1<<13.
func DecodeVCO(raw uint32) (numer, denom uint32) {
	return raw >> socfpga.VCO_NUMER_OFFSET, raw >> socfpga.VCO_DENOM_OFFSET
}
