// Package step implements the single-stepper (spec.md §4.8): given a chosen
// thread, executes exactly one primitive action against the World,
// returning the next World (mutated in place, per spec.md §5 — "the World
// is owned and mutated in place") plus a trace entry or a terminal Failure.
package step

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/gitrdm/godejafu/internal/conc/action"
	"github.com/gitrdm/godejafu/internal/conc/block"
	"github.com/gitrdm/godejafu/internal/conc/mem"
	"github.com/gitrdm/godejafu/internal/conc/stm"
	"github.com/gitrdm/godejafu/internal/conc/svar"
	"github.com/gitrdm/godejafu/internal/conc/thread"
	"github.com/gitrdm/godejafu/internal/conc/trace"
	"github.com/gitrdm/godejafu/internal/ids"
)

// World is the tuple spec.md §3/§5 describes: threads, write-buffers, and
// the id-source, fully describing one in-progress execution. Exactly one
// World exists per execution; it is discarded once runTest returns
// (spec.md §5).
type World struct {
	IDs     *ids.Source
	Threads *thread.Table
	Vars    map[ids.VarID]*svar.SVar
	Mem     *mem.Memory
	STM     stm.Interpreter
	Log     zerolog.Logger

	commitIDs   map[mem.PendingCommit]ids.ThreadID
	commitByID  map[ids.ThreadID]mem.PendingCommit
}

// New creates a fresh World with a single main thread (ids.MainThread)
// whose body is entry.
func New(model mem.Model, stmInterp stm.Interpreter, entry action.Action, logger zerolog.Logger) *World {
	idSource := ids.NewSource()
	table := thread.NewTable()
	table.Add(thread.New(ids.MainThread, entry))
	return &World{
		IDs:        idSource,
		Threads:    table,
		Vars:       map[ids.VarID]*svar.SVar{},
		Mem:        mem.New(model),
		STM:        stmInterp,
		Log:        logger,
		commitIDs:  map[mem.PendingCommit]ids.ThreadID{},
		commitByID: map[ids.ThreadID]mem.PendingCommit{},
	}
}

// RunnableCommits lists the commit-pseudo-thread IDs for every currently
// outstanding buffered write (spec.md §4.3, §9 "Commit as pseudo-thread").
// IDs are assigned lazily and stay stable for the lifetime of the pending
// write so repeated queries within one World are consistent.
func (w *World) RunnableCommits() []ids.ThreadID {
	pending := w.Mem.PendingCommits()
	out := make([]ids.ThreadID, 0, len(pending))
	for _, pc := range pending {
		id, ok := w.commitIDs[pc]
		if !ok {
			id = w.IDs.NextCommitPseudoThread()
			w.commitIDs[pc] = id
			w.commitByID[id] = pc
		}
		out = append(out, id)
	}
	return out
}

// Runnable lists every ID the scheduler may currently choose: ordinary
// runnable threads plus commit pseudo-threads.
func (w *World) Runnable() []ids.ThreadID {
	out := append([]ids.ThreadID(nil), w.Threads.Runnable()...)
	out = append(out, w.RunnableCommits()...)
	return out
}

// CheckDeadlock reports whether the World is currently globally deadlocked
// (spec.md §4.4): no thread runnable and no buffered write pending. STM
// deadlock is distinguished when the main thread is specifically blocked
// OnStm.
func (w *World) CheckDeadlock() (Failure, bool) {
	if len(w.Threads.Runnable()) > 0 || len(w.Mem.PendingCommits()) > 0 {
		return NoFailure, false
	}
	main := w.Threads.Get(ids.MainThread)
	if main != nil && main.Done {
		// main already finished; nothing left to deadlock on.
		return NoFailure, false
	}
	if main != nil && main.Blocked != nil && main.Blocked.Kind == block.OnStm {
		return StmDeadlock, true
	}
	return Deadlock, true
}

// CheckLocalDeadlock implements the refinement of spec.md §4.4: thread 0 is
// blocked and every thread that "knows about" the variable it is blocked
// on is also blocked, enabled only once every thread has raised AllKnown.
// This is a one-hop check (threads directly referencing thread 0's block
// variable), matching the spec's literal wording rather than a full
// transitive closure: a thread that does not know the variable is ignored
// even if it is runnable and could unblock a thread that does, so the check
// can report a deadlock that a transitive check would not.
func (w *World) CheckLocalDeadlock() (Failure, bool) {
	main := w.Threads.Get(ids.MainThread)
	if main == nil || main.Blocked == nil {
		return NoFailure, false
	}
	for _, th := range w.Threads.All() {
		if !th.Done && !th.FullyKnown {
			return NoFailure, false
		}
	}
	reason := *main.Blocked
	for _, th := range w.Threads.All() {
		if th.ID == ids.MainThread || th.Done || ids.IsCommitPseudoThread(th.ID) {
			continue
		}
		if referencesBlockVar(th, reason) && th.Blocked == nil {
			return NoFailure, false
		}
	}
	if reason.Kind == block.OnStm {
		return StmDeadlock, true
	}
	return Deadlock, true
}

func referencesBlockVar(th *thread.Thread, reason block.Reason) bool {
	switch reason.Kind {
	case block.OnSVarFull, block.OnSVarEmpty:
		return th.Known[reason.Var]
	case block.OnStm:
		for _, v := range reason.Touched {
			if th.KnownStm[v] {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// ResolveCommit reverse-looks-up the pending (thread, ref) a commit
// pseudo-thread ID stands for.
func (w *World) ResolveCommit(id ids.ThreadID) (mem.PendingCommit, bool) {
	pc, ok := w.commitByID[id]
	return pc, ok
}

func (w *World) forgetCommit(id ids.ThreadID) {
	if pc, ok := w.commitByID[id]; ok {
		delete(w.commitByID, id)
		delete(w.commitIDs, pc)
	}
}

// wake clears Blocked on every listed thread, making it runnable again.
func (w *World) wake(tids []ids.ThreadID) {
	for _, t := range tids {
		if th := w.Threads.Get(t); th != nil {
			th.Blocked = nil
		}
	}
}

// wakeStm clears Blocked on every thread retrying OnStm against a touched
// set intersecting written — the effect of a successful STM commit
// (spec.md §4.2, "STM commit wakes every thread whose OnStm(touched)
// intersects the transaction's write-set").
func (w *World) wakeStm(written []ids.StmVarID) {
	for _, th := range w.Threads.All() {
		if th.Blocked != nil && th.Blocked.MatchesStm(written) {
			th.Blocked = nil
		}
	}
}

// wakeMask clears Blocked on every thread parked OnMask(target) — waiting
// to deliver a ThrowTo that target's masking level refused — once target
// becomes interruptible again: its masking level dropped to Unmasked, it is
// MaskedInterruptible and now blocked on something else, or it finished
// (spec.md §4.5's masking rules, mirrored by the nonInterruptible predicate
// in stepThrowTo). Woken senders simply retry the ThrowTo step and
// re-evaluate that predicate from scratch; this only ever widens who is
// runnable, it never delivers an exception itself.
func (w *World) wakeMask(target ids.ThreadID) {
	th := w.Threads.Get(target)
	if th == nil {
		return
	}
	interruptible := th.Done || th.Masking == action.Unmasked ||
		(th.Masking == action.MaskedInterruptible && th.Blocked != nil)
	if !interruptible {
		return
	}
	for _, waiter := range w.Threads.All() {
		if waiter.Blocked != nil && waiter.Blocked.Kind == block.OnMask && waiter.Blocked.Target == target {
			waiter.Blocked = nil
		}
	}
}

// interrupt clears target's wait-queue registration and Blocked state when
// an asynchronous exception is delivered to a blocked thread.
func (w *World) interrupt(target *thread.Thread) {
	if target.Blocked == nil {
		return
	}
	switch target.Blocked.Kind {
	case block.OnSVarFull, block.OnSVarEmpty:
		if v := w.Vars[target.Blocked.Var]; v != nil {
			v.RemoveWaiter(target.ID)
		}
	}
	target.Blocked = nil
}

func summarize(t trace.ActionTypeKind, ref ids.RefID, v ids.VarID) string {
	return fmt.Sprintf("%v ref=%d var=%d", t, ref, v)
}
