// Package svar implements the single-slot blocking channel (spec.md §3,
// §4.2): at most one value present at a time, with FIFO-ish wait queues for
// put/take/read that the single-stepper wakes according to the "wake all
// waiters of a matching reason, let the scheduler pick which runs" policy.
//
// This is adapted from the teacher's channel-backed ResultStream
// (pkg/minikanren/stream.go) — the same "closeable, mutex-guarded, single
// producer/consumer primitive" shape, generalised from a lazily-consumed
// result stream to a single-value rendezvous cell with explicit waiter
// bookkeeping so the scheduler (not a goroutine runtime) decides who wakes.
package svar

import (
	"github.com/gitrdm/godejafu/internal/conc/action"
	"github.com/gitrdm/godejafu/internal/ids"
)

// SVar is a single-slot blocking channel. It is owned by the World and
// mutated only by the single-stepper — no internal locking, per spec.md §5
// ("No locks are needed internally; the World is owned and mutated in
// place").
type SVar struct {
	ID   ids.VarID
	slot *action.Value // nil means empty

	// waiters tracked separately per reason so the stepper can report
	// "who became runnable" without scanning the whole thread table.
	fullWaiters  []ids.ThreadID // blocked taking/reading, waiting for a value
	emptyWaiters []ids.ThreadID // blocked putting, waiting for the slot to empty
}

// New creates an empty SVar with the given ID.
func New(id ids.VarID) *SVar {
	return &SVar{ID: id}
}

// IsFull reports whether the slot currently holds a value.
func (s *SVar) IsFull() bool { return s.slot != nil }

// Peek returns the current value and whether the slot is full, without
// mutating any state. Used by ReadVar.
func (s *SVar) Peek() (action.Value, bool) {
	if s.slot == nil {
		return nil, false
	}
	return *s.slot, true
}

// Put fills the slot (must currently be empty) and returns the set of
// threads to wake (every thread blocked OnSVarFull on this SVar — spec.md
// §4.2, "wakes all OnSVarFull waiters").
func (s *SVar) Put(v action.Value) (woken []ids.ThreadID) {
	cp := v
	s.slot = &cp
	woken = s.fullWaiters
	s.fullWaiters = nil
	return woken
}

// Take empties the slot (must currently be full) and returns the value plus
// the set of threads to wake (every OnSVarEmpty waiter).
func (s *SVar) Take() (v action.Value, woken []ids.ThreadID) {
	v = *s.slot
	s.slot = nil
	woken = s.emptyWaiters
	s.emptyWaiters = nil
	return v, woken
}

// AddFullWaiter registers t as blocked waiting for the slot to become full
// (a pending TakeVar/ReadVar).
func (s *SVar) AddFullWaiter(t ids.ThreadID) {
	s.fullWaiters = append(s.fullWaiters, t)
}

// AddEmptyWaiter registers t as blocked waiting for the slot to become
// empty (a pending PutVar).
func (s *SVar) AddEmptyWaiter(t ids.ThreadID) {
	s.emptyWaiters = append(s.emptyWaiters, t)
}

// RemoveWaiter drops t from both waiter lists, used when a thread that was
// blocked on this SVar is killed.
func (s *SVar) RemoveWaiter(t ids.ThreadID) {
	s.fullWaiters = removeThread(s.fullWaiters, t)
	s.emptyWaiters = removeThread(s.emptyWaiters, t)
}

func removeThread(xs []ids.ThreadID, t ids.ThreadID) []ids.ThreadID {
	out := xs[:0]
	for _, x := range xs {
		if x != t {
			out = append(out, x)
		}
	}
	return out
}
