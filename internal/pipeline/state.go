package pipeline

import (
	"fmt"
)

// State is a step of the per-image state machine.
type State int

const (
	StateLoad State = iota
	StateSegment
	StateFilterROI
	StateCompose
	StateAnalyzeVIS
	StateAlign
	StateAnalyzeNIR
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateLoad:       "Load",
	StateSegment:    "Segment",
	StateFilterROI:  "FilterROI",
	StateCompose:    "Compose",
	StateAnalyzeVIS: "AnalyzeVIS",
	StateAlign:      "Align",
	StateAnalyzeNIR: "AnalyzeNIR",
	StateDone:       "Done",
	StateFailed:     "Failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// StageError records which state an image run failed in.
type StageError struct {
	State State
	Image string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: stage %s: %v", e.Image, e.State, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
