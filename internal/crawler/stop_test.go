package crawler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStopBudgetValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, testBudget().Validate())

	invalid := []StopBudget{
		{MaxActions: 0, MaxWallClock: time.Minute, PlateauWindow: 2, PlateauThreshold: 0.1},
		{MaxActions: 10, MaxWallClock: 0, PlateauWindow: 2, PlateauThreshold: 0.1},
		{MaxActions: 10, MaxWallClock: time.Minute, PlateauWindow: 0, PlateauThreshold: 0.1},
		{MaxActions: 10, MaxWallClock: time.Minute, PlateauWindow: 10, PlateauThreshold: 0.1},
		{MaxActions: 10, MaxWallClock: time.Minute, PlateauWindow: 12, PlateauThreshold: 0.1},
		{MaxActions: 10, MaxWallClock: time.Minute, PlateauWindow: 2, PlateauThreshold: -0.5},
	}
	for _, b := range invalid {
		require.Error(t, b.Validate(), "%+v", b)
	}
}

func TestStopEvaluatorActionBudget(t *testing.T) {
	t.Parallel()

	budget := testBudget()
	budget.MaxActions = 5
	budget.PlateauWindow = 2
	eval := NewStopEvaluator(budget, newTestClock())

	for i := 0; i < 4; i++ {
		eval.Record(10) // rich signal keeps the plateau away
		require.False(t, eval.ShouldStop(), "after action %d", i+1)
	}
	eval.Record(10)
	require.True(t, eval.ShouldStop())
	require.Equal(t, ReasonBudget, eval.Reason())
	require.Equal(t, 5, eval.Actions())
}

func TestStopEvaluatorWallClock(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	eval := NewStopEvaluator(testBudget(), clock)

	eval.Record(10)
	require.False(t, eval.ShouldStop())

	// The wall clock check fires even when no further steps complete.
	clock.Advance(121 * time.Second)
	require.True(t, eval.ShouldStop())
	require.Equal(t, ReasonBudget, eval.Reason())
}

func TestStopEvaluatorPlateau(t *testing.T) {
	t.Parallel()

	eval := NewStopEvaluator(testBudget(), newTestClock())

	// Rich first step, then nothing. The rich step must slide out of the
	// window before the plateau can fire.
	eval.Record(20)
	for i := 0; i < 3; i++ {
		eval.Record(0)
		require.False(t, eval.ShouldStop(), "window still holds the rich step")
	}
	eval.Record(0)
	require.True(t, eval.ShouldStop())
	require.Equal(t, ReasonPlateau, eval.Reason())
	require.Equal(t, 5, eval.Actions())
}

func TestStopEvaluatorNoPlateauBeforeWindowFills(t *testing.T) {
	t.Parallel()

	eval := NewStopEvaluator(testBudget(), newTestClock())

	// Three zero steps with window 4: not enough evidence yet.
	for i := 0; i < 3; i++ {
		eval.Record(0)
	}
	require.False(t, eval.ShouldStop())
	require.Equal(t, ReasonRunning, eval.Reason())
}

func TestStopEvaluatorThresholdBoundary(t *testing.T) {
	t.Parallel()

	budget := testBudget()
	budget.PlateauThreshold = 1.0
	eval := NewStopEvaluator(budget, newTestClock())

	// Average exactly at the threshold plateaus (<=, not <).
	for i := 0; i < 4; i++ {
		eval.Record(1)
	}
	require.True(t, eval.ShouldStop())
	require.Equal(t, ReasonPlateau, eval.Reason())
}

func TestStopEvaluatorTerminalStatesSticky(t *testing.T) {
	t.Parallel()

	budget := testBudget()
	budget.MaxActions = 3
	budget.PlateauWindow = 2
	eval := NewStopEvaluator(budget, newTestClock())

	for i := 0; i < 3; i++ {
		eval.Record(10)
	}
	require.Equal(t, ReasonBudget, eval.Reason())

	// Further records are ignored once halted.
	eval.Record(0)
	eval.Record(0)
	require.Equal(t, ReasonBudget, eval.Reason())
	require.Equal(t, 3, eval.Actions())
}
