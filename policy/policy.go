// Package policy decides which operating point the CPU should run at and
// hands the decision to the frequency driver. It is the only place
// transitions are started from, and it serialises them.
package policy

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Jon-Bright/cpufreqctl/cpufreq"
)

// Relation says which way to round a frequency that isn't in the table.
type Relation int

const (
	// RelationL picks the lowest frequency at or above the target.
	RelationL Relation = iota
	// RelationH picks the highest frequency at or below the target.
	RelationH
)

// ParseRelation accepts "L" or "H".
func ParseRelation(s string) (Relation, error) {
	switch s {
	case "L", "l":
		return RelationL, nil
	case "H", "h":
		return RelationH, nil
	}
	return 0, fmt.Errorf("unknown relation %q, want L or H", s)
}

var ErrBoostDisabled = errors.New("boost frequencies are disabled")

type Policy struct {
	mu     sync.Mutex
	drv    *cpufreq.Driver
	table  cpufreq.Table
	cur    uint32
	min    uint32
	max    uint32
	cpuMin uint32
	cpuMax uint32
	boost  bool
}

// Info is what the policy exposes about itself.
type Info struct {
	Cur       uint32        `json:"cur_khz"`
	Min       uint32        `json:"min_khz"`
	Max       uint32        `json:"max_khz"`
	CPUMin    uint32        `json:"cpuinfo_min_khz"`
	CPUMax    uint32        `json:"cpuinfo_max_khz"`
	Boost     bool          `json:"boost"`
	Latency   time.Duration `json:"transition_latency_ns"`
	Available []uint32      `json:"available_khz"`
	BoostKHz  []uint32      `json:"boost_khz"`
}

func New(drv *cpufreq.Driver) *Policy {
	return &Policy{drv: drv, table: drv.Table()}
}

// Init reads the current frequency and sets the limits to the non-boost
// range of the table.
func (p *Policy) Init() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	cur, err := p.drv.CurrentFrequencyKHz()
	if err != nil {
		return fmt.Errorf("couldn't get current frequency: %w", err)
	}
	p.cur = cur
	p.cpuMin, p.cpuMax = p.table.Limits()
	p.min, p.max = p.cpuMin, p.cpuMax
	log.Printf("Policy: cur %d kHz, limits %d-%d kHz, boost %v", p.cur, p.min, p.max, p.table.BoostFrequencies())
	return nil
}

func (p *Policy) Info() Info {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Info{
		Cur:       p.cur,
		Min:       p.min,
		Max:       p.max,
		CPUMin:    p.cpuMin,
		CPUMax:    p.cpuMax,
		Boost:     p.boost,
		Latency:   cpufreq.TransitionLatency,
		Available: p.table.Frequencies(),
		BoostKHz:  p.table.BoostFrequencies(),
	}
}

// Current reads the frequency back from the hardware.
func (p *Policy) Current() (uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cur, err := p.drv.CurrentFrequencyKHz()
	if err != nil {
		return 0, err
	}
	p.cur = cur
	return cur, nil
}

// Status is the live clock as read from the registers.
type Status struct {
	KHz   uint32 `json:"khz"`
	VCOHz uint64 `json:"vco_hz"`
	Index int    `json:"index"`
}

// Status reads the frequency, VCO and matching table index. Index is -1
// between operating points.
func (p *Policy) Status() (Status, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i, khz, err := p.drv.CurrentIndex()
	if err != nil {
		return Status{}, err
	}
	vco, err := p.drv.CurrentVCOHz()
	if err != nil {
		return Status{}, err
	}
	p.cur = khz
	return Status{KHz: khz, VCOHz: vco, Index: i}, nil
}

// Verify checks khz is an operating point the policy may select.
func (p *Policy) Verify(khz uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	i, err := p.table.Verify(khz)
	if err != nil {
		return err
	}
	return p.allowed(i)
}

func (p *Policy) allowed(i int) error {
	op := p.table[i]
	if op.Boost && !p.boost {
		return fmt.Errorf("%v: %w", op, ErrBoostDisabled)
	}
	if op.KHz < p.min || op.KHz > p.max {
		return fmt.Errorf("%v outside limits %d-%d kHz", op, p.min, p.max)
	}
	return nil
}

// pick returns the table index for khz rounded according to rel, clamped to
// the steps the policy allows.
func (p *Policy) pick(khz uint32, rel Relation) (int, error) {
	best := -1
	lo, hi := -1, -1
	for i, op := range p.table {
		if p.allowed(i) != nil {
			continue
		}
		if lo < 0 || op.KHz < p.table[lo].KHz {
			lo = i
		}
		if hi < 0 || op.KHz > p.table[hi].KHz {
			hi = i
		}
		switch rel {
		case RelationL:
			if op.KHz >= khz && (best < 0 || op.KHz < p.table[best].KHz) {
				best = i
			}
		case RelationH:
			if op.KHz <= khz && (best < 0 || op.KHz > p.table[best].KHz) {
				best = i
			}
		}
	}
	if lo < 0 {
		return -1, fmt.Errorf("no operating point within %d-%d kHz", p.min, p.max)
	}
	if best >= 0 {
		return best, nil
	}
	if rel == RelationL {
		return hi, nil
	}
	return lo, nil
}

// Target moves to the operating point nearest khz. It returns the frequency
// selected.
func (p *Policy) Target(khz uint32, rel Relation) (uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i, err := p.pick(khz, rel)
	if err != nil {
		return 0, err
	}
	if p.table[i].KHz == p.cur {
		return p.cur, nil
	}
	return p.table[i].KHz, p.transition(i)
}

// TargetIndex moves to the operating point at index i.
func (p *Policy) TargetIndex(i int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.table.Lookup(i); err != nil {
		return err
	}
	if err := p.allowed(i); err != nil {
		return err
	}
	return p.transition(i)
}

func (p *Policy) transition(i int) error {
	err := p.drv.TransitionTo(i)
	cur, qerr := p.drv.CurrentFrequencyKHz()
	if qerr == nil {
		p.cur = cur
	}
	if err != nil {
		return fmt.Errorf("couldn't switch to %v: %w", p.table[i], err)
	}
	return qerr
}

// SetBoost enables or disables the boost steps. Enabling raises the maximum
// to the fastest step; disabling lowers it back to the fastest non-boost step
// and moves the CPU off a boost step if it is running at one.
func (p *Policy) SetBoost(on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if on == p.boost {
		return nil
	}
	p.boost = on
	if on {
		for _, op := range p.table {
			if op.KHz > p.max {
				p.max = op.KHz
			}
		}
		log.Printf("Policy: boost on, max %d kHz", p.max)
		return nil
	}
	if p.max > p.cpuMax {
		p.max = p.cpuMax
	}
	// A minimum set while boost was on may be above the new maximum.
	if p.min > p.max {
		p.min = p.cpuMin
	}
	log.Printf("Policy: boost off, limits %d-%d kHz", p.min, p.max)
	return p.enforce()
}

// SetLimits changes the policy range and moves the CPU into it if needed.
func (p *Policy) SetLimits(min, max uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if min > max {
		return fmt.Errorf("min %d kHz above max %d kHz", min, max)
	}
	top := p.cpuMax
	if p.boost {
		for _, op := range p.table {
			if op.KHz > top {
				top = op.KHz
			}
		}
	}
	if min < p.cpuMin {
		min = p.cpuMin
	}
	if max > top {
		max = top
	}
	oldMin, oldMax := p.min, p.max
	p.min, p.max = min, max
	if _, err := p.pick(min, RelationL); err != nil {
		p.min, p.max = oldMin, oldMax
		return err
	}
	log.Printf("Policy: limits %d-%d kHz", p.min, p.max)
	return p.enforce()
}

// enforce moves the CPU back inside the limits.
func (p *Policy) enforce() error {
	var rel Relation
	switch {
	case p.cur > p.max:
		rel = RelationH
	case p.cur < p.min:
		rel = RelationL
	default:
		if i, err := p.table.Verify(p.cur); err == nil && p.allowed(i) == nil {
			return nil
		}
		rel = RelationH
	}
	i, err := p.pick(p.cur, rel)
	if err != nil {
		return err
	}
	return p.transition(i)
}
