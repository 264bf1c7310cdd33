package socfpga

import (
	"fmt"
	"io"
	"sort"
)

// Clock manager register offsets. See the Cyclone V HPS Technical Reference
// Manual, "Clock Manager Address Map and Register Definitions".
const (
	CTRL                   = 0x00
	BYPASS                 = 0x04
	INTER                  = 0x08
	INTREN                 = 0x0c
	DBCTRL                 = 0x10
	STAT                   = 0x14
	MAINPLL_VCO            = 0x40
	MAINPLL_MISC           = 0x44
	MAINPLL_MPUCLK         = 0x48
	MAINPLL_MAINCLK        = 0x4c
	MAINPLL_DBGATCLK       = 0x50
	MAINPLL_MAINQSPICLK    = 0x54
	MAINPLL_MAINNANDSDMMC  = 0x58
	MAINPLL_CFGS2FUSER0CLK = 0x5c
	MAINPLL_EN             = 0x60
	MAINPLL_MAINDIV        = 0x64
	MAINPLL_DBGDIV         = 0x68
	MAINPLL_TRACEDIV       = 0x6c
	MAINPLL_L4SRC          = 0x70
	PERPLL_VCO             = 0x80
	SDRPLL_VCO             = 0xc0
	ALTR_MPUCLK            = 0xe0
	ALTR_MAINCLK           = 0xe4
	ALTR_DBGATCLK          = 0xe8
)

const (
	BYPASS_MAINPLL = 1 << 0
	BYPASS_SDRPLL  = 1 << 1
	BYPASS_PERPLL  = 1 << 3

	STAT_BUSY = 1 << 0

	INTER_MAINPLL_LOCKED = 1 << 6
	INTER_PERPLL_LOCKED  = 1 << 7
	INTER_SDRPLL_LOCKED  = 1 << 8
	INTER_ALL_LOCKED     = INTER_MAINPLL_LOCKED | INTER_PERPLL_LOCKED | INTER_SDRPLL_LOCKED

	VCO_NUMER_OFFSET = 3
	VCO_DENOM_OFFSET = 16

	// Bit 1 of the VCO register enables the PLL. Some revisions clear it on
	// any VCO write that doesn't carry it, so it has to be forced on.
	VCO_EN = 1 << 1
)

var regNames = map[uint32]string{
	CTRL:                   "ctrl",
	BYPASS:                 "bypass",
	INTER:                  "inter",
	INTREN:                 "intren",
	DBCTRL:                 "dbctrl",
	STAT:                   "stat",
	MAINPLL_VCO:            "mainpll.vco",
	MAINPLL_MISC:           "mainpll.misc",
	MAINPLL_MPUCLK:         "mainpll.mpuclk",
	MAINPLL_MAINCLK:        "mainpll.mainclk",
	MAINPLL_DBGATCLK:       "mainpll.dbgatclk",
	MAINPLL_MAINQSPICLK:    "mainpll.mainqspiclk",
	MAINPLL_MAINNANDSDMMC:  "mainpll.mainnandsdmmcclk",
	MAINPLL_CFGS2FUSER0CLK: "mainpll.cfgs2fuser0clk",
	MAINPLL_EN:             "mainpll.en",
	MAINPLL_MAINDIV:        "mainpll.maindiv",
	MAINPLL_DBGDIV:         "mainpll.dbgdiv",
	MAINPLL_TRACEDIV:       "mainpll.tracediv",
	MAINPLL_L4SRC:          "mainpll.l4src",
	PERPLL_VCO:             "perpll.vco",
	SDRPLL_VCO:             "sdrpll.vco",
	ALTR_MPUCLK:            "alteragrp.mpuclk",
	ALTR_MAINCLK:           "alteragrp.mainclk",
	ALTR_DBGATCLK:          "alteragrp.dbgatclk",
}

// RegName returns the clock manager's name for a register offset.
func RegName(offset uint32) string {
	if n, ok := regNames[offset]; ok {
		return n
	}
	return fmt.Sprintf("reg_0x%03x", offset)
}

// RegReader is satisfied by MMIO and Sim.
type RegReader interface {
	Read32(offset uint32) (uint32, error)
}

// Dump writes every named register in offset order.
func Dump(w io.Writer, r RegReader) error {
	offs := make([]uint32, 0, len(regNames))
	for o := range regNames {
		offs = append(offs, o)
	}
	sort.Slice(offs, func(i, j int) bool { return offs[i] < offs[j] })
	for _, o := range offs {
		v, err := r.Read32(o)
		if err != nil {
			return fmt.Errorf("couldn't read %s: %v", RegName(o), err)
		}
		_, err = fmt.Fprintf(w, "0x%03x %-26s %08X\n", o, RegName(o), v)
		if err != nil {
			return err
		}
	}
	return nil
}
