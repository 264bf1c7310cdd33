package cpufreq

import (
	"time"
)

// Path is the register write order a transition took.
type Path int

const (
	// PathDividers rewrites the dividers only, the VCO is unchanged.
	PathDividers Path = iota
	// PathRaise writes the dividers, then raises the VCO.
	PathRaise
	// PathLower lowers the VCO, then writes the dividers.
	PathLower
)

func (p Path) String() string {
	switch p {
	case PathDividers:
		return "dividers"
	case PathRaise:
		return "raise"
	case PathLower:
		return "lower"
	}
	return "unknown"
}

// Transition records one pass through the sequencer.
type Transition struct {
	ID        string
	Index     int // -1 if the operating point didn't come from the table
	FromKHz   uint32
	ToKHz     uint32
	FromVCOHz uint64
	ToVCOHz   uint64
	Path      Path
	States    []State
	Start     time.Time
	End       time.Time
	Err       error
}

// Tracer is told about every transition the driver runs.
type Tracer interface {
	StartTransition(t *Transition)
	EnterState(t *Transition, s State)
	EndTransition(t *Transition)
}

// MultiTracer fans out to several tracers in order.
type MultiTracer []Tracer

func (m MultiTracer) StartTransition(t *Transition) {
	for _, tr := range m {
		tr.StartTransition(t)
	}
}

func (m MultiTracer) EnterState(t *Transition, s State) {
	for _, tr := range m {
		tr.EnterState(t, s)
	}
}

func (m MultiTracer) EndTransition(t *Transition) {
	for _, tr := range m {
		tr.EndTransition(t)
	}
}
