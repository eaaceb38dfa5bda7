package scenarios_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gitrdm/godejafu/scenarios"
	"github.com/gitrdm/godejafu/schedtest"
)

func TestRegistry_ListsAllSixScenarios(t *testing.T) {
	reg := scenarios.NewRegistry()
	names := reg.Names()
	require.Len(t, names, 6)

	want := []string{
		"2-deadlock", "dining-philosophers-3", "forgotten-unlock",
		"sc-ref-race", "tso-reordering", "masked-kill-is-safe",
	}
	require.ElementsMatch(t, want, names)
}

func TestRegistry_GetUnknownScenario(t *testing.T) {
	reg := scenarios.NewRegistry()
	_, ok := reg.Get("does-not-exist")
	require.False(t, ok)
}

func TestDiningPhilosophers_DeadlocksInAtLeastOneSchedule(t *testing.T) {
	reg := scenarios.NewRegistry()
	s, ok := reg.Get("dining-philosophers-3")
	require.True(t, ok)

	rs := schedtest.RunTest(s.Config, s.Build)
	require.Greater(t, rs.ExecutionCount(), 0)

	sawDeadlock, sawCompletion := false, false
	for _, r := range rs.Results {
		if r.Outcome.Failed {
			require.Equal(t, schedtest.Deadlock, r.Outcome.Failure)
			sawDeadlock = true
		} else {
			sawCompletion = true
		}
	}
	require.True(t, sawDeadlock, "expected at least one schedule of the naive dining philosophers to deadlock")
	require.True(t, sawCompletion, "expected at least one schedule to complete")
}
