package cpufreq

import (
	"errors"
	"fmt"

	"github.com/Jon-Bright/cpufreqctl/socfpga"
)

var (
	// ErrInvalidIndex is returned for an operating point index outside the
	// table. No register is touched.
	ErrInvalidIndex = errors.New("invalid operating point index")

	// ErrHardwareTimeout is returned when the clock manager doesn't go idle,
	// or the PLLs don't lock, within the wait deadline. The transition is
	// abandoned and must not be assumed to have happened.
	ErrHardwareTimeout = errors.New("hardware timeout")

	// ErrRegisterAccess wraps any failure of the register access layer.
	ErrRegisterAccess = errors.New("register access failure")
)

func readErr(offset uint32, err error) error {
	return fmt.Errorf("%w: couldn't read %s: %v", ErrRegisterAccess, socfpga.RegName(offset), err)
}

func writeErr(offset uint32, err error) error {
	return fmt.Errorf("%w: couldn't write %s: %v", ErrRegisterAccess, socfpga.RegName(offset), err)
}
