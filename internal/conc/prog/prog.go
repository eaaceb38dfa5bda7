// Package prog is a small builder layer over internal/conc/action: plain
// Go functions instead of hand-written continuation closures at every call
// site, for writing programs under test (scenarios, tests) the way spec.md
// §4.1's action algebra is meant to be driven, without the CPS boilerplate
// leaking into every scenario.
package prog

import (
	"github.com/gitrdm/godejafu/internal/conc/action"
	"github.com/gitrdm/godejafu/internal/conc/stm"
	"github.com/gitrdm/godejafu/internal/ids"
)

// Stop ends the calling thread without a result.
func Stop() action.Action { return action.Stop{} }

// Return ends the calling thread with Value; when run by the main thread
// this becomes the program's result.
func Return(v action.Value) action.Action { return action.Return{Value: v} }

// Fork starts body as a new thread and continues with its ThreadID.
func Fork(body action.Action, next func(ids.ThreadID) action.Action) action.Action {
	return action.Fork{Body: body, Next: next}
}

// Seq runs a zero-argument step for its effect, then continues with next.
func Seq(step func(next func() action.Action) action.Action, next action.Action) action.Action {
	return step(func() action.Action { return next })
}

// NewVar allocates a blocking single-slot SVar and continues with its ID.
func NewVar(next func(ids.VarID) action.Action) action.Action {
	return action.NewVar{Next: next}
}

// Put blocks until var is empty, then fills it with v.
func Put(v ids.VarID, val action.Value, next action.Action) action.Action {
	return action.PutVar{Var: v, Value: val, Next: func() action.Action { return next }}
}

// Take blocks until var is full, then empties it and continues with the
// value taken.
func Take(v ids.VarID, next func(action.Value) action.Action) action.Action {
	return action.TakeVar{Var: v, Next: next}
}

// Read peeks the current value of var without emptying it, blocking until
// it is full.
func Read(v ids.VarID, next func(action.Value) action.Action) action.Action {
	return action.ReadVar{Var: v, Next: next}
}

// NewRef allocates a mutable Ref initialised to init and continues with
// its ID.
func NewRef(init action.Value, next func(ids.RefID) action.Action) action.Action {
	return action.NewRef{Init: init, Next: next}
}

// ReadRef reads r under the World's memory model and continues with the
// value observed.
func ReadRef(r ids.RefID, next func(action.Value) action.Action) action.Action {
	return action.ReadRef{Ref: r, Next: next}
}

// WriteRef writes v to r (buffered under TSO/PSO, immediate under SC) and
// continues.
func WriteRef(r ids.RefID, v action.Value, next action.Action) action.Action {
	return action.WriteRef{Ref: r, Value: v, Next: func() action.Action { return next }}
}

// ModifyRef flushes r, applies fn, and continues with the new value.
func ModifyRef(r ids.RefID, fn func(action.Value) action.Value, next func(action.Value) action.Action) action.Action {
	return action.ModifyRef{Ref: r, Fn: fn, Next: next}
}

// Atomic runs an STM transaction to completion (or retry/exception) and
// continues with its Result.
func Atomic(tx stm.Transaction, next func(stm.Result) action.Action) action.Action {
	return action.Atomic{Tx: tx, Next: next}
}

// Throw raises err on the calling thread, unwinding its handler stack.
func Throw(err any) action.Action { return action.Throw{Err: err} }

// ThrowToThread asynchronously raises err on target, subject to target's
// masking state (spec.md §4.5), then continues.
func ThrowToThread(target ids.ThreadID, err any, next action.Action) action.Action {
	return action.ThrowTo{Target: target, Err: err, Next: func() action.Action { return next }}
}

// Catch installs handler around body: handler runs on any error thrown
// within body (or propagated from a nested thread via ThrowTo), and may
// either recover with a resuming Action or decline by returning false.
func Catch(handler func(err any) (bool, action.Action), body action.Action) action.Action {
	return action.Catching{Handler: handler, Body: body}
}

// Mask sets the masking level to level and continues with body; body
// receives the caller's previous level, typically to pass to Unmask. The
// level stays in force until an Unmask runs.
func Mask(level action.MaskingLevel, body func(prev action.MaskingLevel) action.Action) action.Action {
	return action.Masking{Level: level, Body: body}
}

// Unmask restores origLevel (the value Mask's body callback received) and
// continues.
func Unmask(origLevel action.MaskingLevel, next action.Action) action.Action {
	return action.ResetMask{OrigLevel: origLevel, Next: func() action.Action { return next }}
}

// KnowsAboutVar records that the calling thread knows about var v, feeding
// the global-deadlock refinement (spec.md §4.4).
func KnowsAboutVar(v ids.VarID, next action.Action) action.Action {
	kv := action.KnownVar{Var: v, HasVar: true}
	return action.KnowsAbout{Var: kv, Next: func() action.Action { return next }}
}

// ForgetsVar records that the calling thread no longer holds var v.
func ForgetsVar(v ids.VarID, next action.Action) action.Action {
	kv := action.KnownVar{Var: v, HasVar: true}
	return action.Forgets{Var: kv, Next: func() action.Action { return next }}
}

// AllKnown marks that the calling thread has announced every variable it
// will ever know about, enabling the local-deadlock refinement to consider
// it (spec.md §4.4).
func AllKnown(next action.Action) action.Action {
	return action.AllKnown{Next: func() action.Action { return next }}
}

// Lift runs io synchronously as an opaque external effect and continues
// with its result.
func Lift(io func() action.Value, next func(action.Value) action.Action) action.Action {
	return action.Lift{IO: io, Next: next}
}
