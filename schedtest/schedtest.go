// Package schedtest is the public entry point: given a Program, it runs a
// bounded-preemption exploration of its schedule space and reports every
// distinct outcome (spec.md §2, §4.7, §7). A single execution is cheap;
// RunTest drives the BPOR tree until it has no remaining todo or the
// configured execution cap is reached.
package schedtest

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/gitrdm/godejafu/internal/bpor"
	"github.com/gitrdm/godejafu/internal/conc/action"
	"github.com/gitrdm/godejafu/internal/conc/mem"
	"github.com/gitrdm/godejafu/internal/conc/step"
	"github.com/gitrdm/godejafu/internal/conc/stm"
	"github.com/gitrdm/godejafu/schedtest/scheduler"
)

// Failure re-exports the three-class taxonomy of spec.md §7 so callers
// never need to import internal/conc/step directly.
type Failure = step.Failure

const (
	NoFailure         = step.NoFailure
	Deadlock          = step.Deadlock
	StmDeadlock       = step.StmDeadlock
	UncaughtException = step.UncaughtException
	InternalError     = step.InternalError
)

// Config is the campaign's configuration, passed by value the same way the
// teacher threads a DynamicConfig/labeling-strategy struct into its search
// engine rather than reading from globals.
type Config struct {
	// Model selects SC, TSO, or PSO memory-visibility semantics.
	Model mem.Model
	// PreemptionBound caps how many scheduler switches a prefix may make
	// before the BPOR tree marks further exploration conservative
	// (spec.md §4.7; 2 is the spec's suggested default).
	PreemptionBound int
	// MaxExecutions caps how many times the program is run; 0 means run
	// until the BPOR tree is exhausted.
	MaxExecutions int
	// NewSTM builds a fresh stm.Interpreter for each execution. Defaults
	// to a fresh stm.MapInterpreter if nil.
	NewSTM func() stm.Interpreter
	// Log receives the driver's structured events: each replayed prefix at
	// Debug, and a campaign aborted by InternalError at Warn. The zero value
	// logs nothing.
	Log zerolog.Logger
}

func (c Config) withDefaults() Config {
	if c.NewSTM == nil {
		c.NewSTM = func() stm.Interpreter { return stm.NewMapInterpreter(nil) }
	}
	return c
}

// Outcome is one distinct result a completed execution can settle on —
// either a terminal Failure, or the value the program under test returned.
type Outcome struct {
	Failed  bool
	Failure Failure
	Value   action.Value
}

// Result pairs one execution's Outcome with the trace that produced it.
type Result struct {
	Outcome Outcome
	Trace   bpor.ExecutionResult
}

// ResultSet is every execution RunTest performed for one program.
type ResultSet struct {
	Results []Result
}

// ExecutionCount is the number of executions actually run — may be less
// than requested if the BPOR tree exhausted its schedule space first.
func (rs ResultSet) ExecutionCount() int {
	return len(rs.Results)
}

// DistinctCount reports the number of *distinct* (failure-or-value)
// outcomes observed, not the raw execution count (spec.md §9's explicit
// warning against the alwaysTrue2-style counting bug: a predicate-adjacent
// helper must count distinct results, never conflate "ran N times" with
// "found N different behaviours"). Always <= ExecutionCount.
func (rs ResultSet) DistinctCount() int {
	seen := map[string]bool{}
	for _, r := range rs.Results {
		seen[outcomeKey(r.Outcome)] = true
	}
	return len(seen)
}

// outcomeKey gives Outcome a comparable identity even when Value holds a
// non-comparable Go type (slice, map, func) — %#v renders a stable,
// structurally-distinguishing representation for counting purposes.
func outcomeKey(o Outcome) string {
	return fmt.Sprintf("%v|%#v", o.Failure, o.Value)
}

// Failures returns only the executions that ended in a program-level or
// scheduler-contract failure (spec.md §7 classes 1 and 2 — class 3,
// implementation invariant violations, are never surfaced as a Result;
// they panic instead, per spec.md §7).
func (rs ResultSet) Failures() []Result {
	var out []Result
	for _, r := range rs.Results {
		if r.Outcome.Failed {
			out = append(out, r)
		}
	}
	return out
}

// RunTest explores program's schedule space under cfg, returning every
// execution performed.
func RunTest(cfg Config, program bpor.Program) ResultSet {
	cfg = cfg.withDefaults()
	driver := bpor.NewDriver(
		cfg.Model,
		cfg.PreemptionBound,
		program,
		cfg.NewSTM,
		func() scheduler.Scheduler { return scheduler.NewRoundRobin() },
		cfg.MaxExecutions,
		cfg.Log,
	)
	execs := driver.RunCampaign()

	rs := ResultSet{Results: make([]Result, 0, len(execs))}
	for _, e := range execs {
		rs.Results = append(rs.Results, Result{
			Outcome: Outcome{Failed: e.Failed, Failure: e.Failure, Value: e.Value},
			Trace:   e,
		})
	}
	return rs
}
