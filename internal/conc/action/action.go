// Package action defines the closed algebra of primitives a program under
// test may suspend on (spec.md §4.1). Each variant is a concrete Go struct
// carrying its operands plus a continuation — a function from the
// operation's result back to the next Action — which encodes the program as
// a tree of actions walked one step at a time, the same "goal is a function
// from a store to its successors" shape the teacher's miniKanren goals use
// (pkg/minikanren/core.go), generalised from relational goals to concurrent
// primitives.
package action

import (
	"github.com/gitrdm/godejafu/internal/conc/stm"
	"github.com/gitrdm/godejafu/internal/ids"
)

// Value is an opaque value carried by the program under test — the payload
// of an SVar, a Ref, or an exception. The interpreter never inspects it.
type Value = any

// Kind tags which Action variant a value holds, used by the dependency
// oracle (internal/conc/dep) and the single-stepper's dispatch.
type Kind int

const (
	KFork Kind = iota
	KMyThreadID
	KYield
	KStop
	KReturn
	KNewVar
	KPutVar
	KTryPutVar
	KReadVar
	KTakeVar
	KTryTakeVar
	KNewRef
	KReadRef
	KWriteRef
	KModifyRef
	KCommit
	KReadForCas
	KCasRef
	KCasRef2
	KAtomicModifyRefCas
	KStoreLoadBarrier
	KLoadLoadBarrier
	KWriteBarrier
	KAtomic
	KThrow
	KThrowTo
	KCatching
	KPopCatching
	KMasking
	KResetMask
	KKnowsAbout
	KForgets
	KAllKnown
	KLift
	KPrim
)

var kindNames = map[Kind]string{
	KFork: "Fork", KMyThreadID: "MyThreadID", KYield: "Yield", KStop: "Stop",
	KReturn: "Return", KNewVar: "NewVar", KPutVar: "PutVar", KTryPutVar: "TryPutVar",
	KReadVar: "ReadVar", KTakeVar: "TakeVar", KTryTakeVar: "TryTakeVar", KNewRef: "NewRef",
	KReadRef: "ReadRef", KWriteRef: "WriteRef", KModifyRef: "ModifyRef", KCommit: "Commit",
	KReadForCas: "ReadForCas", KCasRef: "CasRef", KCasRef2: "CasRef2",
	KAtomicModifyRefCas: "AtomicModifyRefCas", KStoreLoadBarrier: "StoreLoadBarrier",
	KLoadLoadBarrier: "LoadLoadBarrier", KWriteBarrier: "WriteBarrier", KAtomic: "Atomic",
	KThrow: "Throw", KThrowTo: "ThrowTo", KCatching: "Catching", KPopCatching: "PopCatching",
	KMasking: "Masking", KResetMask: "ResetMask", KKnowsAbout: "KnowsAbout", KForgets: "Forgets",
	KAllKnown: "AllKnown", KLift: "Lift", KPrim: "Prim",
}

// String renders a Kind for trace summaries and log lines.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "UnknownKind"
}

// Action is the closed sum of primitives the stepper must accept. Adding a
// variant requires extending the dependency oracle, lookahead, and stepper
// simultaneously (spec.md §6).
type Action interface {
	Kind() Kind
}

// MaskingLevel is the thread's current exception-masking state (spec.md §4.5).
type MaskingLevel int

const (
	Unmasked MaskingLevel = iota
	MaskedInterruptible
	MaskedUninterruptible
)

// --- Scheduling ---

type Fork struct {
	Body Action
	Next func(ids.ThreadID) Action
}

func (Fork) Kind() Kind { return KFork }

type MyThreadID struct {
	Next func(ids.ThreadID) Action
}

func (MyThreadID) Kind() Kind { return KMyThreadID }

type Yield struct {
	Next func() Action
}

func (Yield) Kind() Kind { return KYield }

// Stop terminates the executing thread without a result. Terminal: no
// continuation.
type Stop struct{}

func (Stop) Kind() Kind { return KStop }

// Return marks the program's final value. Terminal: when executed by the
// main thread it ends the World successfully with Value as the campaign
// result.
type Return struct {
	Value Value
}

func (Return) Kind() Kind { return KReturn }

// --- Blocking vars (SVar) ---

type NewVar struct {
	Next func(ids.VarID) Action
}

func (NewVar) Kind() Kind { return KNewVar }

type PutVar struct {
	Var   ids.VarID
	Value Value
	Next  func() Action
}

func (PutVar) Kind() Kind { return KPutVar }

type TryPutVar struct {
	Var   ids.VarID
	Value Value
	Next  func(ok bool) Action
}

func (TryPutVar) Kind() Kind { return KTryPutVar }

type ReadVar struct {
	Var  ids.VarID
	Next func(Value) Action
}

func (ReadVar) Kind() Kind { return KReadVar }

type TakeVar struct {
	Var  ids.VarID
	Next func(Value) Action
}

func (TakeVar) Kind() Kind { return KTakeVar }

type TryTakeVar struct {
	Var  ids.VarID
	Next func(v Value, ok bool) Action
}

func (TryTakeVar) Kind() Kind { return KTryTakeVar }

// --- Refs ---

type NewRef struct {
	Init Value
	Next func(ids.RefID) Action
}

func (NewRef) Kind() Kind { return KNewRef }

type ReadRef struct {
	Ref  ids.RefID
	Next func(Value) Action
}

func (ReadRef) Kind() Kind { return KReadRef }

type WriteRef struct {
	Ref   ids.RefID
	Value Value
	Next  func() Action
}

func (WriteRef) Kind() Kind { return KWriteRef }

type ModifyRef struct {
	Ref  ids.RefID
	Fn   func(Value) Value
	Next func(newValue Value) Action
}

func (ModifyRef) Kind() Kind { return KModifyRef }

// Commit is never issued by the program under test: the driver injects one
// commit pseudo-thread action per outstanding buffered write (spec.md §4.3).
type Commit struct {
	Ref ids.RefID
}

func (Commit) Kind() Kind { return KCommit }

// CasTicket is obtained from ReadForCas and redeemed by CasRef/CasRef2; it
// is valid iff the ref's commit count has not advanced since the read
// (spec.md §9, the recommended CAS resolution).
type CasTicket struct {
	Ref         ids.RefID
	Value       Value
	CommitCount int64
}

type ReadForCas struct {
	Ref  ids.RefID
	Next func(CasTicket) Action
}

func (ReadForCas) Kind() Kind { return KReadForCas }

type CasRef struct {
	Ticket   CasTicket
	NewValue Value
	Next     func(ok bool, current CasTicket) Action
}

func (CasRef) Kind() Kind { return KCasRef }

type CasRef2 struct {
	Ticket1   CasTicket
	NewValue1 Value
	Ticket2   CasTicket
	NewValue2 Value
	Next      func(ok bool) Action
}

func (CasRef2) Kind() Kind { return KCasRef2 }

type AtomicModifyRefCas struct {
	Ref  ids.RefID
	Fn   func(Value) Value
	Next func(newValue Value) Action
}

func (AtomicModifyRefCas) Kind() Kind { return KAtomicModifyRefCas }

// --- Barriers ---

// StoreLoadBarrier and WriteBarrier commit every pending buffered write of
// the calling thread; LoadLoadBarrier is a no-op under all three supported
// memory models (spec.md §4.1).

type StoreLoadBarrier struct {
	Next func() Action
}

func (StoreLoadBarrier) Kind() Kind { return KStoreLoadBarrier }

type LoadLoadBarrier struct {
	Next func() Action
}

func (LoadLoadBarrier) Kind() Kind { return KLoadLoadBarrier }

type WriteBarrier struct {
	Next func() Action
}

func (WriteBarrier) Kind() Kind { return KWriteBarrier }

// --- STM ---

type Atomic struct {
	Tx   stm.Transaction
	Next func(stm.Result) Action
}

func (Atomic) Kind() Kind { return KAtomic }

// --- Exceptions ---

type Throw struct {
	Err any
}

func (Throw) Kind() Kind { return KThrow }

type ThrowTo struct {
	Target ids.ThreadID
	Err    any
	Next   func() Action
}

func (ThrowTo) Kind() Kind { return KThrowTo }

// Catching installs Handler on the thread's handler stack for the duration
// of Body. Handler receives the thrown error and returns the recovery
// Action, or (false, nil) to decline (let the exception keep unwinding).
type Catching struct {
	Handler func(err any) (handled bool, resume Action)
	Body    Action
}

func (Catching) Kind() Kind { return KCatching }

type PopCatching struct {
	Next func() Action
}

func (PopCatching) Kind() Kind { return KPopCatching }

// Masking sets the thread's masking level to Level and continues with Body,
// which receives the caller's previous level (spec.md §4.5). The level
// stays in force until the program issues a ResetMask; the stepper does
// not restore it on its own.
type Masking struct {
	Level MaskingLevel
	Body  func(prev MaskingLevel) Action
}

func (Masking) Kind() Kind { return KMasking }

// ResetMask restores the mask level a Masking block captured. The program
// issues it (prog.Unmask builds one); the interpreter never synthesizes it.
type ResetMask struct {
	OrigLevel MaskingLevel
	Next      func() Action
}

func (ResetMask) Kind() Kind { return KResetMask }

// --- Knowledge annotations (global-deadlock refinement, spec.md §4.4) ---

type KnownVar struct {
	Var    ids.VarID
	HasVar bool
	Stm    ids.StmVarID
	HasStm bool
}

type KnowsAbout struct {
	Var  KnownVar
	Next func() Action
}

func (KnowsAbout) Kind() Kind { return KKnowsAbout }

type Forgets struct {
	Var  KnownVar
	Next func() Action
}

func (Forgets) Kind() Kind { return KForgets }

type AllKnown struct {
	Next func() Action
}

func (AllKnown) Kind() Kind { return KAllKnown }

// --- External ---

// Lift executes an opaque side-effecting callback synchronously. The
// interpreter records a trace entry but may not introspect what ran — if
// IO genuinely blocks on an OS resource, the whole campaign hangs
// (spec.md §5, a documented limitation, not a bug to paper over).
type Lift struct {
	IO   func() Value
	Next func(Value) Action
}

func (Lift) Kind() Kind { return KLift }

// Prim is handled exactly like Lift: the stepper runs IO opaquely, and the
// dependency oracle marks both as opaque, so any two Prim/Lift actions are
// dependent (spec.md §4.6 rule 1).
type Prim struct {
	IO   func() Value
	Next func(Value) Action
}

func (Prim) Kind() Kind { return KPrim }
