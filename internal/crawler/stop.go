package crawler

import "time"

// StopEvaluator tracks budget consumption and the plateau signal for one run.
// It is a three-state machine: Running, halted by budget, halted by plateau;
// both halted states are terminal.
//
// The plateau signal per step is the count of new facts plus newly accepted
// frontier links produced by that step. Many sites exhaust useful content
// long before they exhaust links (pagination, footers); once the windowed
// average of the signal drops to the threshold, the run stops independent of
// the hard budget.
type StopEvaluator struct {
	budget  StopBudget
	clock   Clock
	started time.Time
	actions int
	window  []int
	reason  StopReason
}

// NewStopEvaluator starts the clock for a run. The budget must already be
// validated.
func NewStopEvaluator(budget StopBudget, clock Clock) *StopEvaluator {
	return &StopEvaluator{
		budget:  budget,
		clock:   clock,
		started: clock.Now(),
		window:  make([]int, 0, budget.PlateauWindow),
		reason:  ReasonRunning,
	}
}

// Record feeds one completed step's information signal into the evaluator
// and applies the transition rules. Terminal states are sticky.
func (e *StopEvaluator) Record(signal int) {
	if e.reason != ReasonRunning {
		return
	}
	e.actions++

	e.window = append(e.window, signal)
	if len(e.window) > e.budget.PlateauWindow {
		e.window = e.window[1:]
	}

	if e.actions >= e.budget.MaxActions || e.elapsed() >= e.budget.MaxWallClock {
		e.reason = ReasonBudget
		return
	}
	if len(e.window) == e.budget.PlateauWindow && e.windowAverage() <= e.budget.PlateauThreshold {
		e.reason = ReasonPlateau
	}
}

// ShouldStop reports whether the run must halt. The wall clock is also
// checked here so a run stalls out even when steps stop completing.
func (e *StopEvaluator) ShouldStop() bool {
	if e.reason != ReasonRunning {
		return true
	}
	if e.elapsed() >= e.budget.MaxWallClock {
		e.reason = ReasonBudget
		return true
	}
	return false
}

// Reason returns the current state for post-run diagnostics.
func (e *StopEvaluator) Reason() StopReason {
	return e.reason
}

// Actions returns the number of recorded steps.
func (e *StopEvaluator) Actions() int {
	return e.actions
}

func (e *StopEvaluator) elapsed() time.Duration {
	return e.clock.Now().Sub(e.started)
}

func (e *StopEvaluator) windowAverage() float64 {
	if len(e.window) == 0 {
		return 0
	}
	sum := 0
	for _, v := range e.window {
		sum += v
	}
	return float64(sum) / float64(len(e.window))
}
