package socfpga

import (
	"fmt"
	"sync"
)

// Access is one register read or write seen by a Sim.
type Access struct {
	Write  bool
	Offset uint32
	Value  uint32
}

func (a Access) String() string {
	op := "R"
	if a.Write {
		op = "W"
	}
	return fmt.Sprintf("%s %s %08X", op, RegName(a.Offset), a.Value)
}

// Sim is an in-memory clock manager. It models the two hand-shakes the
// frequency driver depends on: asserting or releasing bypass makes the state
// machine busy for BusyReads reads of STAT, and rewriting the main PLL VCO
// drops the main PLL lock bit for UnlockReads reads of INTER. A negative
// count means the condition never clears.
type Sim struct {
	BusyReads   int
	UnlockReads int

	mu       sync.Mutex
	regs     map[uint32]uint32
	busy     int
	unlocked int
	fail     map[uint32]error
	log      []Access
}

// NewSim returns a Sim in the 800 MHz power-on configuration of a DE10-Nano.
func NewSim() *Sim {
	return &Sim{
		BusyReads:   3,
		UnlockReads: 5,
		regs: map[uint32]uint32{
			MAINPLL_VCO:            63<<VCO_NUMER_OFFSET | VCO_EN,
			MAINPLL_MPUCLK:         0,
			MAINPLL_CFGS2FUSER0CLK: 15,
			ALTR_MPUCLK:            1,
			ALTR_MAINCLK:           3,
			ALTR_DBGATCLK:          3,
			INTER:                  INTER_ALL_LOCKED,
		},
		fail: map[uint32]error{},
	}
}

// Set stores a register value without logging it or triggering any side effect.
func (s *Sim) Set(offset, value uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regs[offset] = value
}

// Peek returns a register value without logging the access.
func (s *Sim) Peek(offset uint32) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regs[offset]
}

// Fail makes every later access to offset return err. A nil err clears it.
func (s *Sim) Fail(offset uint32, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, offset)
		return
	}
	s.fail[offset] = err
}

func (s *Sim) Read32(offset uint32) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.fail[offset]; ok {
		return 0, err
	}
	v := s.regs[offset]
	switch offset {
	case STAT:
		if s.busy != 0 {
			v |= STAT_BUSY
			if s.busy > 0 {
				s.busy--
			}
		}
	case INTER:
		if s.unlocked != 0 {
			v &^= INTER_MAINPLL_LOCKED
			if s.unlocked > 0 {
				s.unlocked--
			}
		}
	}
	s.log = append(s.log, Access{Offset: offset, Value: v})
	return v, nil
}

func (s *Sim) Write32(offset, value uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.fail[offset]; ok {
		return err
	}
	s.log = append(s.log, Access{Write: true, Offset: offset, Value: value})
	switch offset {
	case BYPASS:
		s.busy = s.BusyReads
	case MAINPLL_VCO:
		if s.regs[offset] != value {
			s.unlocked = s.UnlockReads
		}
	}
	s.regs[offset] = value
	return nil
}

// Accesses returns the access log.
func (s *Sim) Accesses() []Access {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Access(nil), s.log...)
}

// Writes returns only the logged writes.
func (s *Sim) Writes() []Access {
	s.mu.Lock()
	defer s.mu.Unlock()
	var w []Access
	for _, a := range s.log {
		if a.Write {
			w = append(w, a)
		}
	}
	return w
}

func (s *Sim) ClearLog() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = nil
}
