package schedtest_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gitrdm/godejafu/internal/conc/mem"
	"github.com/gitrdm/godejafu/scenarios"
	"github.com/gitrdm/godejafu/schedtest"
)

func TestTwoDeadlock_AlwaysFindsDeadlock(t *testing.T) {
	reg := scenarios.NewRegistry()
	s, ok := reg.Get("2-deadlock")
	require.True(t, ok)

	rs := schedtest.RunTest(s.Config, s.Build)
	require.Greater(t, rs.ExecutionCount(), 0)
	for _, r := range rs.Results {
		require.True(t, r.Outcome.Failed, "expected every schedule of the 2-deadlock scenario to deadlock")
		require.Equal(t, schedtest.Deadlock, r.Outcome.Failure)
	}
}

func TestForgottenUnlock_AlwaysDeadlocks(t *testing.T) {
	reg := scenarios.NewRegistry()
	s, ok := reg.Get("forgotten-unlock")
	require.True(t, ok)

	rs := schedtest.RunTest(s.Config, s.Build)
	require.Greater(t, rs.ExecutionCount(), 0)
	for _, r := range rs.Results {
		require.True(t, r.Outcome.Failed)
		require.Equal(t, schedtest.Deadlock, r.Outcome.Failure)
	}
}

func TestSCRefRace_ObservesAllThreeValues(t *testing.T) {
	reg := scenarios.NewRegistry()
	s, ok := reg.Get("sc-ref-race")
	require.True(t, ok)

	rs := schedtest.RunTest(s.Config, s.Build)
	seen := map[int]bool{}
	for _, r := range rs.Results {
		require.False(t, r.Outcome.Failed, "sc-ref-race should never deadlock")
		seen[r.Outcome.Value.(int)] = true
	}
	require.ElementsMatch(t, []int{0, 1, 2}, keysOf(seen))
}

func TestTSOReordering_BothReadsCanObserveZero(t *testing.T) {
	reg := scenarios.NewRegistry()
	s, ok := reg.Get("tso-reordering")
	require.True(t, ok)
	require.Equal(t, mem.TotalStoreOrder, s.Config.Model)

	rs := schedtest.RunTest(s.Config, s.Build)
	foundBothZero := false
	for _, r := range rs.Results {
		require.False(t, r.Outcome.Failed)
		pair := r.Outcome.Value.([2]any)
		if pair[0] == 0 && pair[1] == 0 {
			foundBothZero = true
		}
	}
	require.Greater(t, rs.ExecutionCount(), 0)
	require.True(t, foundBothZero, "expected at least one execution where both reads observe the pre-write value under TSO")
}

func TestMaskedKillIsSafe_NeverDeadlocksAlwaysReturnsUnit(t *testing.T) {
	reg := scenarios.NewRegistry()
	s, ok := reg.Get("masked-kill-is-safe")
	require.True(t, ok)

	rs := schedtest.RunTest(s.Config, s.Build)
	require.Greater(t, rs.ExecutionCount(), 0)
	for _, r := range rs.Results {
		require.False(t, r.Outcome.Failed, "expected masked-kill-is-safe to never deadlock")
		require.Equal(t, struct{}{}, r.Outcome.Value)
	}
}

func TestResultSet_DistinctCountNeverExceedsExecutionCount(t *testing.T) {
	reg := scenarios.NewRegistry()
	s, ok := reg.Get("dining-philosophers-3")
	require.True(t, ok)

	rs := schedtest.RunTest(s.Config, s.Build)
	require.LessOrEqual(t, rs.DistinctCount(), rs.ExecutionCount())
}

func keysOf(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
