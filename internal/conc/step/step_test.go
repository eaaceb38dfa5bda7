package step

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/gitrdm/godejafu/internal/conc/action"
	"github.com/gitrdm/godejafu/internal/conc/block"
	"github.com/gitrdm/godejafu/internal/conc/mem"
	"github.com/gitrdm/godejafu/internal/conc/stm"
	"github.com/gitrdm/godejafu/internal/ids"
)

func newTestWorld(entry action.Action) *World {
	return New(mem.SequentialConsistency, stm.NewMapInterpreter(nil), entry, zerolog.Nop())
}

func TestStep_ReturnTerminatesMainThread(t *testing.T) {
	w := newTestWorld(action.Return{Value: 42})
	res := w.Step(ids.MainThread)
	if !res.Terminated || res.Value != 42 {
		t.Fatalf("expected main thread Return to terminate with value 42, got %+v", res)
	}
}

func TestStep_TakeVarBlocksOnEmpty(t *testing.T) {
	entry := action.NewVar{Next: func(v ids.VarID) action.Action {
		return action.TakeVar{Var: v, Next: func(action.Value) action.Action { return action.Stop{} }}
	}}
	w := newTestWorld(entry)
	w.Step(ids.MainThread) // NewVar
	res := w.Step(ids.MainThread) // TakeVar, should block
	if res.Failed {
		t.Fatalf("unexpected failure: %+v", res)
	}
	th := w.Threads.Get(ids.MainThread)
	if th.Blocked == nil {
		t.Fatalf("expected main thread to be blocked taking an empty SVar")
	}
	if len(w.Runnable()) != 0 {
		t.Fatalf("expected nothing runnable once the sole thread blocks")
	}
}

func TestStep_GlobalDeadlockDetected(t *testing.T) {
	entry := action.NewVar{Next: func(v ids.VarID) action.Action {
		return action.TakeVar{Var: v, Next: func(action.Value) action.Action { return action.Stop{} }}
	}}
	w := newTestWorld(entry)
	w.Step(ids.MainThread)
	w.Step(ids.MainThread)
	f, deadlocked := w.CheckDeadlock()
	if !deadlocked || f != Deadlock {
		t.Fatalf("expected Deadlock, got failure=%v deadlocked=%v", f, deadlocked)
	}
}

func TestStep_PutThenTakeWakesWaiter(t *testing.T) {
	entry := action.NewVar{Next: func(v ids.VarID) action.Action {
		return action.Fork{
			Body: action.TakeVar{Var: v, Next: func(action.Value) action.Action { return action.Stop{} }},
			Next: func(ids.ThreadID) action.Action {
				return action.PutVar{Var: v, Value: 7, Next: func() action.Action { return action.Stop{} }}
			},
		}
	}}
	w := newTestWorld(entry)
	w.Step(ids.MainThread) // NewVar
	w.Step(ids.MainThread) // Fork
	// forked thread blocks on TakeVar
	w.Step(ids.ThreadID(1))
	taker := w.Threads.Get(1)
	if taker.Blocked == nil {
		t.Fatalf("expected forked thread blocked on TakeVar before the put")
	}
	// main puts, which should wake the taker
	w.Step(ids.MainThread)
	if taker.Blocked != nil {
		t.Fatalf("expected PutVar to wake the blocked taker")
	}
}

func TestStep_UncaughtExceptionOnMainThread(t *testing.T) {
	w := newTestWorld(action.Throw{Err: "boom"})
	res := w.Step(ids.MainThread)
	if !res.Failed || res.Failure != UncaughtException {
		t.Fatalf("expected UncaughtException, got %+v", res)
	}
}

func TestStep_CatchingRecoversFromThrow(t *testing.T) {
	entry := action.Catching{
		Handler: func(err any) (bool, action.Action) {
			return true, action.Return{Value: "recovered"}
		},
		Body: action.Throw{Err: "boom"},
	}
	w := newTestWorld(entry)
	res := w.Step(ids.MainThread) // enters Catching, installs handler
	if res.Failed {
		t.Fatalf("unexpected failure entering Catching: %+v", res)
	}
	res = w.Step(ids.MainThread) // Throw, should be caught
	if res.Failed {
		t.Fatalf("expected the handler to recover, got %+v", res)
	}
	res = w.Step(ids.MainThread) // Return{"recovered"}
	if !res.Terminated || res.Value != "recovered" {
		t.Fatalf("expected termination with recovered value, got %+v", res)
	}
}

func TestStep_CasRefSucceedsOnUntouchedTicket(t *testing.T) {
	entry := action.NewRef{Init: 1, Next: func(r ids.RefID) action.Action {
		return action.ReadForCas{Ref: r, Next: func(ticket action.CasTicket) action.Action {
			return action.CasRef{Ticket: ticket, NewValue: 2, Next: func(ok bool, cur action.CasTicket) action.Action {
				return action.Return{Value: ok}
			}}
		}}
	}}
	w := newTestWorld(entry)
	w.Step(ids.MainThread) // NewRef
	w.Step(ids.MainThread) // ReadForCas
	res := w.Step(ids.MainThread) // CasRef
	if res.Failed {
		t.Fatalf("unexpected failure: %+v", res)
	}
	res = w.Step(ids.MainThread) // Return(ok)
	if !res.Terminated || res.Value != true {
		t.Fatalf("expected the untouched CAS to succeed, got %+v", res)
	}
}

// TestStep_ThrowToWakesOnUnmask pins down the wake-on-unmask path: a
// ThrowTo against a MaskedInterruptible, non-blocked target parks the
// sender OnMask, and the sender is only made runnable again once the
// target's masking level actually drops (here via ResetMask), not before.
func TestStep_ThrowToWakesOnUnmask(t *testing.T) {
	maskedBody := action.Masking{Level: action.MaskedInterruptible, Body: func(prev action.MaskingLevel) action.Action {
		return action.ResetMask{OrigLevel: prev, Next: func() action.Action { return action.Stop{} }}
	}}
	entry := action.Fork{Body: maskedBody, Next: func(target ids.ThreadID) action.Action {
		return action.ThrowTo{Target: target, Err: "boom", Next: func() action.Action { return action.Return{Value: "ok"} }}
	}}
	w := newTestWorld(entry)

	w.Step(ids.MainThread) // Fork: spawns thread 1 (Masking pending)
	w.Step(ids.ThreadID(1)) // thread 1 enters MaskedInterruptible

	res := w.Step(ids.MainThread) // ThrowTo: target is masked and not blocked
	if res.Failed {
		t.Fatalf("unexpected failure: %+v", res)
	}
	main := w.Threads.Get(ids.MainThread)
	if main.Blocked == nil || main.Blocked.Kind != block.OnMask {
		t.Fatalf("expected the sender parked OnMask while the target is masked, got %+v", main.Blocked)
	}

	w.Step(ids.ThreadID(1)) // ResetMask: thread 1 unmasks, should wake the sender
	if main.Blocked != nil {
		t.Fatalf("expected ResetMask on the target to wake the sender parked OnMask")
	}

	res = w.Step(ids.MainThread) // ThrowTo retried: now delivers since target is Unmasked
	if res.Failed {
		t.Fatalf("unexpected failure delivering to the now-unmasked target: %+v", res)
	}
	res = w.Step(ids.MainThread) // Return("ok")
	if !res.Terminated || res.Value != "ok" {
		t.Fatalf("expected termination with value \"ok\", got %+v", res)
	}
}

// TestStep_ThrowToWakesWhenTargetFinishes covers the other wake trigger:
// the sender is parked OnMask a MaskedInterruptible target, and the target
// finishes (Stop) without ever explicitly unmasking — delivery to an
// already-finished thread is a safe no-op, not a permanent block.
func TestStep_ThrowToWakesWhenTargetFinishes(t *testing.T) {
	maskedBody := action.Masking{Level: action.MaskedInterruptible, Body: func(action.MaskingLevel) action.Action {
		return action.Stop{}
	}}
	entry := action.Fork{Body: maskedBody, Next: func(target ids.ThreadID) action.Action {
		return action.ThrowTo{Target: target, Err: "boom", Next: func() action.Action { return action.Return{Value: "ok"} }}
	}}
	w := newTestWorld(entry)

	w.Step(ids.MainThread)   // Fork
	w.Step(ids.ThreadID(1))  // thread 1 enters MaskedInterruptible, continuation is Stop

	w.Step(ids.MainThread) // ThrowTo: target masked and not blocked, sender parks OnMask
	main := w.Threads.Get(ids.MainThread)
	if main.Blocked == nil {
		t.Fatalf("expected the sender parked OnMask")
	}

	w.Step(ids.ThreadID(1)) // Stop: thread 1 finishes without ever unmasking
	if main.Blocked != nil {
		t.Fatalf("expected the target finishing to wake the sender parked OnMask")
	}

	res := w.Step(ids.MainThread) // ThrowTo retried: delivering to a finished thread is a no-op
	if res.Failed {
		t.Fatalf("unexpected failure delivering to a finished target: %+v", res)
	}
	res = w.Step(ids.MainThread) // Return("ok")
	if !res.Terminated || res.Value != "ok" {
		t.Fatalf("expected termination with value \"ok\", got %+v", res)
	}
}
