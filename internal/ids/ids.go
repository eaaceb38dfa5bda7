// Package ids issues the process-unique integer identifiers used throughout
// the interpreter: thread, blocking-variable, reference, and STM-variable
// IDs. Equality and hashing of these entities always goes through the
// integer, never pointer identity, so traces stay serialisable and
// reproducible across runs (spec.md §3, §9 "Unique IDs instead of pointer
// equality").
package ids

import "sync/atomic"

// ThreadID identifies a thread. 0 is always the initial ("main") thread.
// Commit pseudo-threads (spec.md §4.3, §9) use negative IDs, so they sort
// before user threads; code that defers them (bpor's PickTodo) does so
// explicitly.
type ThreadID int64

// MainThread is the ID of the thread the program begins executing on.
const MainThread ThreadID = 0

// IsCommitPseudoThread reports whether id names a commit pseudo-thread
// rather than a thread the program under test forked.
func (id ThreadID) IsCommitPseudoThread() bool { return id < 0 }

// IsCommitPseudoThread is the package-level form callers outside this file
// use; equivalent to id.IsCommitPseudoThread().
func IsCommitPseudoThread(id ThreadID) bool { return id < 0 }

// VarID identifies an SVar (single-slot blocking channel).
type VarID int64

// RefID identifies a mutable Ref.
type RefID int64

// StmVarID identifies a variable read or written inside an STM transaction.
type StmVarID int64

// Source issues monotonically increasing IDs. It is not safe for use from
// multiple goroutines concurrently mutating the same World — the
// single-stepper owns the World and calls Source methods from one goroutine
// at a time (spec.md §5) — but the counters are atomic so a Source may
// safely be shared read-only (e.g. for logging) from other goroutines, and
// so that campaign fan-out (schedtest.Campaign.RunMany) can give each
// parallel World its own Source without risk of cross-contamination.
type Source struct {
	nextThread  int64
	nextCommit  int64
	nextVar     int64
	nextRef     int64
	nextStmVar  int64
}

// NewSource returns a Source whose first user thread is MainThread (0).
func NewSource() *Source {
	return &Source{nextThread: 1}
}

// NextThread issues the next user (Fork-created) ThreadID. MainThread (0)
// is implicit and never reissued by this method.
func (s *Source) NextThread() ThreadID {
	return ThreadID(atomic.AddInt64(&s.nextThread, 1) - 1)
}

// NextCommitPseudoThread issues the next negative commit pseudo-thread ID
// (spec.md §4.3). Each outstanding buffered write gets its own pseudo-thread
// so DPOR can explore commit orderings as first-class scheduling choices.
func (s *Source) NextCommitPseudoThread() ThreadID {
	return ThreadID(-atomic.AddInt64(&s.nextCommit, 1))
}

// NextVar issues the next SVar ID.
func (s *Source) NextVar() VarID {
	return VarID(atomic.AddInt64(&s.nextVar, 1) - 1)
}

// NextRef issues the next Ref ID.
func (s *Source) NextRef() RefID {
	return RefID(atomic.AddInt64(&s.nextRef, 1) - 1)
}

// NextStmVar issues the next STM variable ID.
func (s *Source) NextStmVar() StmVarID {
	return StmVarID(atomic.AddInt64(&s.nextStmVar, 1) - 1)
}
