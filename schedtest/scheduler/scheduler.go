// Package scheduler defines the pluggable Scheduler contract (spec.md §6)
// and ships the one reference implementation the BPOR driver needs as a
// fallback once it has forced its chosen prefix: a deterministic
// round-robin (spec.md §4.7, "delegates residual decisions to a fallback,
// typically round-robin"). A pseudo-random scheduler is an explicit
// non-goal (spec.md §1) and is not provided.
package scheduler

import (
	"github.com/gitrdm/godejafu/internal/conc/trace"
	"github.com/gitrdm/godejafu/internal/ids"
)

// Scheduler is the extension point spec.md §6 describes: given the prior
// decision (absent on the very first call) and the non-empty set of
// currently runnable threads (each with its lookahead), choose the next
// thread to run. Picking a thread not present in runnable is a contract
// violation the caller reports as step.InternalError.
//
// Implementations are stateful Go values (a struct with fields) rather
// than threading an opaque state value through each call — more idiomatic
// than reifying "schedulerState" as a separate return, and matches the
// teacher's habit of carrying search state on the strategy struct itself
// (pkg/minikanren/labeling.go).
type Scheduler interface {
	Pick(prior trace.Decision, hasPrior bool, runnable []ids.ThreadID, lookahead map[ids.ThreadID]trace.Lookahead) ids.ThreadID
}

// RoundRobin cycles through runnable threads in ascending ThreadID order
// (spec.md §4.7's minimal in-scope fallback): each pick is the lowest
// runnable ID above its previous pick, wrapping to the lowest runnable ID.
// It switches threads even when its previous pick is still runnable.
type RoundRobin struct {
	last  ids.ThreadID
	first bool
}

// NewRoundRobin creates a fresh RoundRobin scheduler.
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{first: true}
}

// Pick implements Scheduler.
func (r *RoundRobin) Pick(prior trace.Decision, hasPrior bool, runnable []ids.ThreadID, lookahead map[ids.ThreadID]trace.Lookahead) ids.ThreadID {
	if !hasPrior || r.first {
		r.first = false
		t := minThread(runnable)
		r.last = t
		return t
	}
	for _, t := range sortedThreads(runnable) {
		if t > r.last {
			r.last = t
			return t
		}
	}
	t := minThread(runnable)
	r.last = t
	return t
}

func minThread(xs []ids.ThreadID) ids.ThreadID {
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

func sortedThreads(xs []ids.ThreadID) []ids.ThreadID {
	out := append([]ids.ThreadID(nil), xs...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
