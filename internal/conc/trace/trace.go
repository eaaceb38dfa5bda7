// Package trace defines the record of what happened during one execution:
// the Decision the scheduler made at each step, the ThreadAction actually
// taken, and the simplified ActionType used by the dependency oracle
// (spec.md §3, §4.6, §6).
package trace

import "github.com/gitrdm/godejafu/internal/ids"

// DecisionKind tags a scheduler decision.
type DecisionKind int

const (
	// Start begins the trace; the first entry is always Start(MainThread).
	Start DecisionKind = iota
	// Continue re-selects the thread that ran last step.
	Continue
	// SwitchTo selects a different thread than the one that ran last step —
	// a preemption if that thread was still runnable.
	SwitchTo
	// CommitDecision selects a commit pseudo-thread.
	CommitDecision
)

// Decision is one of Start(tid) | Continue | SwitchTo(tid) | Commit
// (spec.md §6).
type Decision struct {
	Kind   DecisionKind
	Thread ids.ThreadID // meaningful for Start and SwitchTo
}

func StartOf(t ids.ThreadID) Decision    { return Decision{Kind: Start, Thread: t} }
func SwitchToOf(t ids.ThreadID) Decision { return Decision{Kind: SwitchTo, Thread: t} }

var ContinueDecision = Decision{Kind: Continue}
var Commit = Decision{Kind: CommitDecision}

// ActionTypeKind enumerates the simplified action shapes the dependency
// oracle reasons about (spec.md §4.6 rule 4).
type ActionTypeKind int

const (
	UnsynchronisedRead ActionTypeKind = iota
	UnsynchronisedWrite
	SynchronisedModify
	SynchronisedCommit
	SynchronisedRead
	SynchronisedWrite
	SynchronisedOther
	UnsynchronisedOther
)

var actionTypeKindNames = [...]string{
	"UnsynchronisedRead", "UnsynchronisedWrite", "SynchronisedModify",
	"SynchronisedCommit", "SynchronisedRead", "SynchronisedWrite",
	"SynchronisedOther", "UnsynchronisedOther",
}

func (k ActionTypeKind) String() string {
	if int(k) >= 0 && int(k) < len(actionTypeKindNames) {
		return actionTypeKindNames[k]
	}
	return "UnknownActionType"
}

// ActionType is the simplified form of a real or looked-ahead action,
// enough for the dependency oracle to decide commutativity without
// re-executing anything.
type ActionType struct {
	Kind ActionTypeKind
	Ref  ids.RefID // meaningful for the Ref-shaped kinds
	Var  ids.VarID // meaningful for the SVar-shaped kinds
}

// Lookahead is a one-step preview of a thread's next action — enough detail
// for the dependency oracle, without executing the thread (spec.md §9,
// "Dependency relation via lookahead").
type Lookahead struct {
	Thread ids.ThreadID
	Type   ActionType

	// Opaque, Stm, ThrowTo, and IsBarrier mirror the same-named
	// ThreadAction fields, since the dependency oracle needs them for an
	// unexecuted preview exactly as much as for a recorded step.
	Opaque    bool
	Stm       bool
	ThrowTo   *ids.ThreadID
	IsBarrier bool
}

// ThreadAction names what actually happened when a thread was stepped —
// the recorded counterpart of trace.ActionType, extended with enough detail
// for deadlock/termination bookkeeping and human-readable traces.
type ThreadAction struct {
	Thread ids.ThreadID
	Type   ActionType

	// Opaque, Stm, ThrowTo, and IsBarrier carry the extra detail the
	// dependency oracle's rules 1–3 and the TSO/PSO barrier rule need
	// (spec.md §4.6) that ActionType's simplification alone cannot express.
	Opaque    bool
	Stm       bool
	ThrowTo   *ids.ThreadID
	IsBarrier bool

	// Summary is a short, human-oriented description (e.g.
	// "SynchronisedRead ref=0 var=3"),
	// filled in by the stepper for debugging output; never consulted by
	// the dependency oracle or the BPOR tree.
	Summary string
}

// Entry is one step of a recorded execution: the decision that selected
// Thread, the lookahead available for every other runnable thread at that
// point (used later to seed backtracking candidates), and what actually ran.
type Entry struct {
	Decision  Decision
	Runnable  []Lookahead
	Action    ThreadAction
}

// Trace is the ordered sequence of steps recorded by one execution
// (spec.md §6).
type Trace []Entry
