// Package thread implements the thread table (spec.md §3, §4.2): the
// World's map from ThreadID to each thread's suspended continuation,
// blocking status, exception-handler stack, masking level, and known-set
// bookkeeping for the global-deadlock refinement.
package thread

import (
	"github.com/gitrdm/godejafu/internal/conc/action"
	"github.com/gitrdm/godejafu/internal/conc/block"
	"github.com/gitrdm/godejafu/internal/ids"
)

// Handler is one entry of a thread's exception-handler stack, installed by
// action.Catching.
type Handler struct {
	Catch func(err any) (handled bool, resume action.Action)
}

// Thread is the per-thread state the World owns (spec.md §3). A thread
// with a non-nil Blocked is never chosen by the scheduler (spec.md §4.2,
// §9's stated Table invariant).
type Thread struct {
	ID           ids.ThreadID
	Continuation action.Action
	Blocked      *block.Reason
	Handlers     []Handler
	Masking      action.MaskingLevel
	Done         bool

	// Known is the superset of (SVar, StmVar) IDs this thread is considered
	// reachable from, updated only by KnowsAbout/Forgets (spec.md §4.4). A
	// thread is "fully known" once it has executed AllKnown, after which
	// Known is treated as exact rather than a may-over-approximation —
	// needed to distinguish genuine global deadlock from a thread merely
	// having not yet announced every var it can reach.
	Known      map[ids.VarID]bool
	KnownStm   map[ids.StmVarID]bool
	FullyKnown bool
}

// New creates a runnable thread starting from continuation, unmasked, with
// no handlers and an empty known-set.
func New(id ids.ThreadID, continuation action.Action) *Thread {
	return &Thread{
		ID:           id,
		Continuation: continuation,
		Masking:      action.Unmasked,
		Known:        map[ids.VarID]bool{},
		KnownStm:     map[ids.StmVarID]bool{},
	}
}

// Runnable reports whether the scheduler may choose this thread: not
// blocked and not finished.
func (t *Thread) Runnable() bool {
	return !t.Done && t.Blocked == nil
}

// PushHandler installs h for the duration of a Catching body.
func (t *Thread) PushHandler(h Handler) {
	t.Handlers = append(t.Handlers, h)
}

// PopHandler removes the innermost handler, if any.
func (t *Thread) PopHandler() {
	if len(t.Handlers) > 0 {
		t.Handlers = t.Handlers[:len(t.Handlers)-1]
	}
}

// FindHandler searches the handler stack innermost-first for one willing to
// catch err, removing it and every handler installed after it (they are
// unwound along with the body that threw). Returns ok=false if none catch,
// leaving the stack untouched so the caller can propagate to ThrowTo's
// target or terminate the thread.
func (t *Thread) FindHandler(err any) (resume action.Action, ok bool) {
	for i := len(t.Handlers) - 1; i >= 0; i-- {
		handled, r := t.Handlers[i].Catch(err)
		if handled {
			t.Handlers = t.Handlers[:i]
			return r, true
		}
	}
	return nil, false
}

// KnowsAbout records that t is now considered reachable from v (spec.md
// §4.1, the KnowsAbout action).
func (t *Thread) KnowsAbout(v action.KnownVar) {
	if v.HasVar {
		t.Known[v.Var] = true
	}
	if v.HasStm {
		t.KnownStm[v.Stm] = true
	}
}

// Forgets removes v from t's known-set (spec.md §4.1, the Forgets action).
func (t *Thread) Forgets(v action.KnownVar) {
	if v.HasVar {
		delete(t.Known, v.Var)
	}
	if v.HasStm {
		delete(t.KnownStm, v.Stm)
	}
}

// Table is the World's thread map, keyed by ids.ThreadID (ordinary threads
// use non-negative IDs; commit pseudo-threads use the reserved negative
// range from ids.Source.NextCommitPseudoThread).
type Table struct {
	threads map[ids.ThreadID]*Thread
	order   []ids.ThreadID // insertion order, for deterministic iteration
}

// NewTable creates an empty Table.
func NewTable() *Table {
	return &Table{threads: map[ids.ThreadID]*Thread{}}
}

// Add inserts t into the table.
func (tb *Table) Add(t *Thread) {
	if _, exists := tb.threads[t.ID]; !exists {
		tb.order = append(tb.order, t.ID)
	}
	tb.threads[t.ID] = t
}

// Get returns the thread with the given ID, or nil if absent.
func (tb *Table) Get(id ids.ThreadID) *Thread {
	return tb.threads[id]
}

// Runnable lists every thread ID the scheduler may currently choose, in
// insertion order (spec.md §4.2 Table invariant).
func (tb *Table) Runnable() []ids.ThreadID {
	var out []ids.ThreadID
	for _, id := range tb.order {
		if th := tb.threads[id]; th != nil && th.Runnable() {
			out = append(out, id)
		}
	}
	return out
}

// AllDone reports whether every ordinary thread (ID >= ids.MainThread) has
// finished — one of the conditions for successful World termination.
func (tb *Table) AllDone() bool {
	for _, id := range tb.order {
		if ids.IsCommitPseudoThread(id) {
			continue
		}
		if th := tb.threads[id]; th != nil && !th.Done {
			return false
		}
	}
	return true
}

// All returns every thread in insertion order, including finished ones and
// commit pseudo-threads — used to scan for STM wakeups.
func (tb *Table) All() []*Thread {
	out := make([]*Thread, 0, len(tb.order))
	for _, id := range tb.order {
		if th := tb.threads[id]; th != nil {
			out = append(out, th)
		}
	}
	return out
}

// Blocked lists every non-finished, blocked ordinary thread — used by
// deadlock classification (spec.md §4.4).
func (tb *Table) Blocked() []*Thread {
	var out []*Thread
	for _, id := range tb.order {
		if ids.IsCommitPseudoThread(id) {
			continue
		}
		th := tb.threads[id]
		if th != nil && !th.Done && th.Blocked != nil {
			out = append(out, th)
		}
	}
	return out
}
