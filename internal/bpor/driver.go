package bpor

import (
	"github.com/rs/zerolog"

	"github.com/gitrdm/godejafu/internal/conc/action"
	"github.com/gitrdm/godejafu/internal/conc/dep"
	"github.com/gitrdm/godejafu/internal/conc/mem"
	"github.com/gitrdm/godejafu/internal/conc/step"
	"github.com/gitrdm/godejafu/internal/conc/stm"
	"github.com/gitrdm/godejafu/internal/conc/trace"
	"github.com/gitrdm/godejafu/internal/ids"
	"github.com/gitrdm/godejafu/schedtest/scheduler"
)

// Program constructs the entry action for a fresh execution. It must be a
// pure factory — called once per execution, since a World is discarded
// after its run (spec.md §5).
type Program func() action.Action

// ExecutionResult is one completed (or failed) run, as the driver reports
// it to the campaign layer.
type ExecutionResult struct {
	Trace   trace.Trace
	Failed  bool
	Failure step.Failure
	Value   action.Value
}

// Driver ties a Tree to a Program and the facilities needed to run one
// execution: the memory model, a fresh STM interpreter and fallback
// scheduler per run, and an execution cap (spec.md §4.7 control flow:
// "driver selects a prefix → interpreter replays it deterministically...
// → driver ingests the trace and updates the tree → repeat").
type Driver struct {
	Tree          *Tree
	Model         mem.Model
	Program       Program
	NewSTM        func() stm.Interpreter
	NewFallback   func() scheduler.Scheduler
	MaxExecutions int
	Log           zerolog.Logger

	// bindMem points the Tree's buffered-write check at the *mem.Memory of
	// the World currently executing — a fresh one each run.
	bindMem func(*mem.Memory)
}

// memToDepModel adapts mem.Model to the dependency oracle's own enum —
// kept separate so internal/conc/dep does not need to import internal/conc/mem.
func memToDepModel(m mem.Model) dep.MemModel {
	switch m {
	case mem.TotalStoreOrder:
		return dep.TotalStoreOrder
	case mem.PartialStoreOrder:
		return dep.PartialStoreOrder
	default:
		return dep.SequentialConsistency
	}
}

// NewDriver builds a Driver and its Tree, deriving the dependency oracle's
// buffered-write check from a fresh World's memory model each run.
func NewDriver(model mem.Model, preemptionBound int, program Program, newSTM func() stm.Interpreter, newFallback func() scheduler.Scheduler, maxExecutions int, log zerolog.Logger) *Driver {
	var currentMem *mem.Memory
	buffered := func(r ids.RefID) bool {
		if currentMem == nil {
			return false
		}
		return currentMem.HasBufferedWrite(r)
	}
	d := &Driver{
		Tree:          NewTree(preemptionBound, memToDepModel(model), buffered),
		Model:         model,
		Program:       program,
		NewSTM:        newSTM,
		NewFallback:   newFallback,
		MaxExecutions: maxExecutions,
		Log:           log,
	}
	d.bindMem = func(m *mem.Memory) { currentMem = m }
	return d
}

// RunCampaign repeatedly asks the Tree for the next prefix, replays it,
// and feeds the resulting trace back into the Tree, until the Tree has no
// remaining todo or MaxExecutions is reached (spec.md §4.7). It stops
// early, without consuming further executions, on InternalError (spec.md
// §7 class 2 — continuing would be unsound).
func (d *Driver) RunCampaign() []ExecutionResult {
	var results []ExecutionResult
	for count := 0; d.MaxExecutions <= 0 || count < d.MaxExecutions; count++ {
		prefix, conservative, ok := d.Tree.Next()
		if !ok {
			break
		}
		d.Log.Debug().Ints64("prefix", threadIDsToInt64(prefix)).Bool("conservative", conservative).Msg("replaying prefix")

		res := d.runOne(prefix)
		results = append(results, res)

		if res.Failed && res.Failure == step.InternalError {
			d.Log.Warn().Msg("internal error: aborting campaign")
			break
		}
		d.Tree.ProcessTrace(res.Trace)
	}
	return results
}

func threadIDsToInt64(xs []ids.ThreadID) []int64 {
	out := make([]int64, len(xs))
	for i, x := range xs {
		out[i] = int64(x)
	}
	return out
}

func (d *Driver) runOne(prefix []ids.ThreadID) ExecutionResult {
	w := step.New(d.Model, d.NewSTM(), d.Program(), d.Log)
	if d.bindMem != nil {
		d.bindMem(w.Mem)
	}

	sched := &prefixForcing{prefix: prefix, fallback: d.NewFallback()}

	var tr trace.Trace
	var prior trace.Decision
	hasPrior := false

	for {
		if f, isDead := w.CheckDeadlock(); isDead {
			return ExecutionResult{Trace: tr, Failed: true, Failure: f}
		}
		if f, isDead := w.CheckLocalDeadlock(); isDead {
			return ExecutionResult{Trace: tr, Failed: true, Failure: f}
		}

		runnable := w.Runnable()
		if len(runnable) == 0 {
			return ExecutionResult{Trace: tr, Failed: true, Failure: step.Deadlock}
		}

		lookaheads := map[ids.ThreadID]trace.Lookahead{}
		for _, t := range runnable {
			if la, ok := w.Lookahead(t); ok {
				lookaheads[t] = la
			}
		}

		chosen := sched.Pick(prior, hasPrior, runnable, lookaheads)
		if !containsThread(runnable, chosen) {
			return ExecutionResult{Trace: tr, Failed: true, Failure: step.InternalError}
		}

		decision := classify(tr, hasPrior, chosen)

		result := w.Step(chosen)
		entry := trace.Entry{
			Decision: decision,
			Runnable: otherLookaheads(lookaheads, chosen),
			Action:   result.Action,
		}
		tr = append(tr, entry)

		if result.Failed {
			return ExecutionResult{Trace: tr, Failed: true, Failure: result.Failure}
		}
		prior = decision
		hasPrior = true
		if result.Terminated {
			return ExecutionResult{Trace: tr, Value: result.Value}
		}
	}
}

// classify decides the trace.Decision for choosing `chosen` (spec.md §6):
// Start for the very first entry, Commit for a commit pseudo-thread,
// Continue when re-selecting the previously-run thread, SwitchTo
// otherwise. Every thread switch is treated as a preemption candidate by
// the Tree regardless of whether the previous thread was still runnable —
// a deliberately conservative simplification of spec.md §4.7's exact
// preemption-count definition: it can only make the bound bite slightly
// earlier than the precise definition would, never unsoundly admit more
// schedules than the bound allows.
func classify(tr trace.Trace, hasPrior bool, chosen ids.ThreadID) trace.Decision {
	if !hasPrior {
		return trace.StartOf(chosen)
	}
	if ids.IsCommitPseudoThread(chosen) {
		return trace.Commit
	}
	prevThread := tr[len(tr)-1].Action.Thread
	if chosen == prevThread {
		return trace.ContinueDecision
	}
	return trace.SwitchToOf(chosen)
}

func containsThread(xs []ids.ThreadID, t ids.ThreadID) bool {
	for _, x := range xs {
		if x == t {
			return true
		}
	}
	return false
}

func otherLookaheads(m map[ids.ThreadID]trace.Lookahead, chosen ids.ThreadID) []trace.Lookahead {
	out := make([]trace.Lookahead, 0, len(m))
	for t, la := range m {
		if t != chosen {
			out = append(out, la)
		}
	}
	return out
}

// prefixForcing forces a fixed sequence of decisions, then delegates to a
// fallback scheduler — the scheduler the BPOR driver installs per spec.md
// §6 ("forces the chosen prefix and then delegates residual decisions to
// a fallback").
type prefixForcing struct {
	prefix   []ids.ThreadID
	idx      int
	fallback scheduler.Scheduler
}

func (p *prefixForcing) Pick(prior trace.Decision, hasPrior bool, runnable []ids.ThreadID, lookahead map[ids.ThreadID]trace.Lookahead) ids.ThreadID {
	if p.idx < len(p.prefix) {
		want := p.prefix[p.idx]
		p.idx++
		return want
	}
	return p.fallback.Pick(prior, hasPrior, runnable, lookahead)
}
