// Package dep implements the dependency oracle (spec.md §4.6): decides
// whether two (thread, action) pairs — executed or merely looked-ahead —
// commute. The BPOR tree (internal/bpor) consults this to find
// backtracking points and to seed sleep sets.
package dep

import (
	"github.com/gitrdm/godejafu/internal/conc/trace"
	"github.com/gitrdm/godejafu/internal/ids"
)

// MemModel selects which memory model's extra dependency rule (spec.md
// §4.6 rule 4, last bullet) applies.
type MemModel int

const (
	SequentialConsistency MemModel = iota
	TotalStoreOrder
	PartialStoreOrder
)

// Action is the oracle's view of one (thread, action): enough detail to
// apply every rule in spec.md §4.6 without re-executing anything. Built
// from either a real trace.ThreadAction or a trace.Lookahead.
type Action struct {
	Thread    ids.ThreadID
	Opaque    bool // Lift or Prim (rule 1)
	STM       bool // Atomic transaction (rule 2)
	ThrowTo   *ids.ThreadID
	IsBarrier bool // StoreLoad/Write/LoadLoad barrier (rule 4, TSO/PSO bullet)
	Type      trace.ActionType
}

// BufferCheck reports whether ref currently has a pending buffered write —
// needed for the TSO/PSO barrier rule, which depends on world state the
// oracle itself does not own.
type BufferCheck func(ids.RefID) bool

// FromThreadAction builds the oracle's view of an action that actually
// executed, carrying the extra opaque/STM/ThrowTo/barrier flags the
// stepper recorded alongside its simplified ActionType.
func FromThreadAction(ta trace.ThreadAction) Action {
	return Action{
		Thread:    ta.Thread,
		Opaque:    ta.Opaque,
		STM:       ta.Stm,
		ThrowTo:   ta.ThrowTo,
		IsBarrier: ta.IsBarrier,
		Type:      ta.Type,
	}
}

// FromLookahead builds the oracle's view of a thread's previewed next
// action, using the same simplification as FromThreadAction (spec.md §4.6,
// "must also be computable from lookahead").
func FromLookahead(la trace.Lookahead) Action {
	return Action{
		Thread:    la.Thread,
		Opaque:    la.Opaque,
		STM:       la.Stm,
		ThrowTo:   la.ThrowTo,
		IsBarrier: la.IsBarrier,
		Type:      la.Type,
	}
}

// Dependent decides whether a1 and a2 commute under model, applying
// spec.md §4.6's rules in order. It is reflexive on same-variable pairs by
// construction (rule checks use "==" on the variable/ref) and symmetric:
// callers may pass (a1, a2) or (a2, a1) and get the same answer.
func Dependent(model MemModel, a1, a2 Action, buffered BufferCheck) bool {
	return dependentOneWay(model, a1, a2, buffered) || dependentOneWay(model, a2, a1, buffered)
}

func dependentOneWay(model MemModel, a1, a2 Action, buffered BufferCheck) bool {
	// Rule 1: two opaque Lift/Prim actions are always dependent.
	if a1.Opaque && a2.Opaque {
		return true
	}

	// Rule 2: an STM transaction is dependent on any other STM transaction
	// (over-approximation — the STM backend does not export its read/write
	// sets at this layer).
	if a1.STM && a2.STM {
		return true
	}

	// Rule 3: ThrowTo t is dependent on every action of thread t.
	if a1.ThrowTo != nil && *a1.ThrowTo == a2.Thread {
		return true
	}

	// Rule 4: simplify and apply the variable/ref rules.
	t1, t2 := a1.Type, a2.Type

	// Two ops on the same SVar where at least one is a write are dependent.
	if isSVarOp(t1.Kind) && isSVarOp(t2.Kind) && t1.Var == t2.Var {
		if isWriteSVarOp(t1.Kind) || isWriteSVarOp(t2.Kind) {
			return true
		}
	}

	// Two ops on the same Ref where at least one is synchronised are
	// dependent.
	if isRefOp(t1.Kind) && isRefOp(t2.Kind) && t1.Ref == t2.Ref {
		if isSynchronisedRefOp(t1.Kind) || isSynchronisedRefOp(t2.Kind) {
			return true
		}
		// Under SC, two unsynchronised accesses (at least one write) to
		// the same ref are dependent.
		if model == SequentialConsistency {
			if t1.Kind == trace.UnsynchronisedWrite || t2.Kind == trace.UnsynchronisedWrite {
				return true
			}
		}
	}

	// Under TSO/PSO, an unsynchronised read of ref r is dependent on any
	// barrier iff r currently has a buffered write (the barrier would flush
	// a value the read could observe).
	if model != SequentialConsistency && buffered != nil {
		if t1.Kind == trace.UnsynchronisedRead && a2.IsBarrier && buffered(t1.Ref) {
			return true
		}
	}

	return false
}

func isSVarOp(k trace.ActionTypeKind) bool {
	return k == trace.SynchronisedRead || k == trace.SynchronisedWrite
}

func isWriteSVarOp(k trace.ActionTypeKind) bool {
	return k == trace.SynchronisedWrite
}

func isRefOp(k trace.ActionTypeKind) bool {
	switch k {
	case trace.UnsynchronisedRead, trace.UnsynchronisedWrite, trace.SynchronisedModify, trace.SynchronisedCommit:
		return true
	default:
		return false
	}
}

func isSynchronisedRefOp(k trace.ActionTypeKind) bool {
	return k == trace.SynchronisedModify || k == trace.SynchronisedCommit
}
