package socfpga

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"strings"
)

// SoC is a detected SoCFPGA with its clock manager mapped.
type SoC struct {
	hw     *hw
	ClkMgr *MMIO
}

// NewSoC detects the SoC variant and maps its clock manager. A non-zero base
// overrides the variant's clock manager address.
func NewSoC(base uintptr) (*SoC, error) {
	h, err := detectHardware()
	if err != nil {
		if base == 0 {
			return nil, fmt.Errorf("couldn't detect SoCFPGA hardware: %v", err)
		}
		log.Printf("No known SoC found (%v), using base %08X", err, base)
		h = &hw{name: "unknown", clkMgrBase: base, oscHz: OSC1_HZ}
	}
	if base != 0 {
		h.clkMgrBase = base
	}
	m, err := MapMMIO(h.clkMgrBase, CLKMGR_SIZE)
	if err != nil {
		return nil, fmt.Errorf("couldn't map clock manager at %08X: %v", h.clkMgrBase, err)
	}
	log.Printf("Mapped %s clock manager at %08X", h.name, h.clkMgrBase)
	return &SoC{hw: h, ClkMgr: m}, nil
}

func (s *SoC) Name() string {
	return s.hw.name
}

// OscHz is the reference oscillator (OSC1) frequency feeding the main PLL.
func (s *SoC) OscHz() uint64 {
	return s.hw.oscHz
}

func (s *SoC) Close() error {
	return s.ClkMgr.Close()
}

type hw struct {
	name       string
	clkMgrBase uintptr
	oscHz      uint64
}

const (
	CLKMGR_BASE_CV = 0xffd04000 // Cyclone V and Arria V HPS
	CLKMGR_SIZE    = 0x200

	OSC1_HZ = 25000000

	DT_COMPATIBLE_FILE = "/proc/device-tree/compatible"
)

// Detect which SoC we're running on. The device tree's root compatible
// property is a NUL-separated list, most specific first.
func detectHardware() (*hw, error) {
	return detectFrom(DT_COMPATIBLE_FILE)
}

func detectFrom(file string) (*hw, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("couldn't read compatible: %v", err)
	}
	for _, c := range bytes.Split(b, []byte{0}) {
		if v, ok := socVariants[string(c)]; ok {
			return &v, nil
		}
	}
	return nil, fmt.Errorf("couldn't identify compatible %q", strings.ReplaceAll(string(b), "\x00", " "))
}

var socVariants = map[string]hw{
	"terasic,de10-nano": {
		name:       "DE10-Nano (MiSTer)",
		clkMgrBase: CLKMGR_BASE_CV,
		oscHz:      OSC1_HZ,
	},
	"terasic,de0-cyclone5": {
		name:       "DE0-Nano-SoC",
		clkMgrBase: CLKMGR_BASE_CV,
		oscHz:      OSC1_HZ,
	},
	"altr,socfpga-cyclone5": {
		name:       "Cyclone V",
		clkMgrBase: CLKMGR_BASE_CV,
		oscHz:      OSC1_HZ,
	},
	"altr,socfpga-arria5": {
		name:       "Arria V",
		clkMgrBase: CLKMGR_BASE_CV,
		oscHz:      OSC1_HZ,
	},
}
