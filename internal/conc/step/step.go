package step

import (
	"github.com/gitrdm/godejafu/internal/conc/action"
	"github.com/gitrdm/godejafu/internal/conc/block"
	"github.com/gitrdm/godejafu/internal/conc/stm"
	"github.com/gitrdm/godejafu/internal/conc/svar"
	"github.com/gitrdm/godejafu/internal/conc/thread"
	"github.com/gitrdm/godejafu/internal/conc/trace"
	"github.com/gitrdm/godejafu/internal/ids"
)

// Result is what one Step call produces: either a terminal Failure, a
// successful World termination (the main thread returned or stopped), or a
// plain trace.ThreadAction describing the step taken (spec.md §4.8).
type Result struct {
	Action     trace.ThreadAction
	Terminated bool
	Value      action.Value
	Failed     bool
	Failure    Failure
}

// recordResult builds the Result for a successfully-stepped ordinary
// action: a is the action as it stood before execution (the stepper calls
// this before or alongside mutating th.Continuation), so toDepAction sees
// exactly what ran.
func recordResult(tid ids.ThreadID, a action.Action) Result {
	t, opaque, isStm, throwTo, isBarrier := toDepAction(tid, a)
	return Result{Action: trace.ThreadAction{
		Thread:    tid,
		Type:      t,
		Opaque:    opaque,
		Stm:       isStm,
		ThrowTo:   throwTo,
		IsBarrier: isBarrier,
		Summary:   summarize(t.Kind, t.Ref, t.Var),
	}}
}

func internalError() Result {
	return Result{Failed: true, Failure: InternalError}
}

// Step executes exactly one primitive action on behalf of chosen, mutating
// w in place, per spec.md §4.8's single-stepper contract:
//
//   - chosen not present, or present but blocked/finished → InternalError
//     (the scheduler violated its contract).
//   - chosen names a pending commit pseudo-thread → drains that buffered
//     write (spec.md §4.3).
//   - otherwise → executes chosen's next Action and returns a trace entry.
func (w *World) Step(chosen ids.ThreadID) Result {
	if pc, ok := w.ResolveCommit(chosen); ok {
		if !w.Mem.Commit(pc.Thread, pc.Ref) {
			return internalError()
		}
		w.forgetCommit(chosen)
		return recordResult(chosen, action.Commit{Ref: pc.Ref})
	}

	th := w.Threads.Get(chosen)
	if th == nil || !th.Runnable() {
		return internalError()
	}

	switch act := th.Continuation.(type) {
	case action.Fork:
		id := w.IDs.NextThread()
		w.Threads.Add(thread.New(id, act.Body))
		th.Continuation = act.Next(id)
		return recordResult(chosen, act)

	case action.MyThreadID:
		th.Continuation = act.Next(chosen)
		return recordResult(chosen, act)

	case action.Yield:
		th.Continuation = act.Next()
		return recordResult(chosen, act)

	case action.Stop:
		th.Done = true
		th.Continuation = nil
		w.wakeMask(chosen)
		r := recordResult(chosen, act)
		if chosen == ids.MainThread {
			r.Terminated = true
		}
		return r

	case action.Return:
		th.Done = true
		th.Continuation = nil
		w.wakeMask(chosen)
		r := recordResult(chosen, act)
		if chosen == ids.MainThread {
			r.Terminated = true
			r.Value = act.Value
		}
		return r

	case action.NewVar:
		id := w.IDs.NextVar()
		w.Vars[id] = svar.New(id)
		th.Continuation = act.Next(id)
		return recordResult(chosen, act)

	case action.PutVar:
		return w.stepPutVar(chosen, th, act)

	case action.TryPutVar:
		return w.stepTryPutVar(chosen, th, act)

	case action.ReadVar:
		return w.stepReadVar(chosen, th, act)

	case action.TakeVar:
		return w.stepTakeVar(chosen, th, act)

	case action.TryTakeVar:
		return w.stepTryTakeVar(chosen, th, act)

	case action.NewRef:
		id := w.IDs.NextRef()
		w.Mem.NewRef(id, act.Init)
		th.Continuation = act.Next(id)
		return recordResult(chosen, act)

	case action.ReadRef:
		v := w.Mem.ReadRef(chosen, act.Ref)
		th.Continuation = act.Next(v)
		return recordResult(chosen, act)

	case action.WriteRef:
		w.Mem.WriteRef(chosen, act.Ref, act.Value)
		th.Continuation = act.Next()
		return recordResult(chosen, act)

	case action.ModifyRef:
		newVal := w.Mem.ModifyRef(act.Ref, act.Fn)
		th.Continuation = act.Next(newVal)
		return recordResult(chosen, act)

	case action.Commit:
		// Never issued by the program under test; only the driver injects
		// Commit via a pseudo-thread (spec.md §4.1). Seeing one attached to
		// an ordinary thread's continuation means something upstream built
		// an illegal Action tree.
		return internalError()

	case action.ReadForCas:
		ticket := w.Mem.ReadForCas(act.Ref)
		th.Continuation = act.Next(ticket)
		return recordResult(chosen, act)

	case action.CasRef:
		ok, cur := w.Mem.Cas(act.Ticket, act.NewValue)
		th.Continuation = act.Next(ok, cur)
		return recordResult(chosen, act)

	case action.CasRef2:
		ok := w.Mem.Cas2(act.Ticket1, act.NewValue1, act.Ticket2, act.NewValue2)
		th.Continuation = act.Next(ok)
		return recordResult(chosen, act)

	case action.AtomicModifyRefCas:
		// Equivalent to ModifyRef from the single-stepper's point of view:
		// the whole step is already atomic (one World, one stepper), so
		// there is nothing a CAS loop would observe that a direct apply
		// would not.
		newVal := w.Mem.ModifyRef(act.Ref, act.Fn)
		th.Continuation = act.Next(newVal)
		return recordResult(chosen, act)

	case action.StoreLoadBarrier:
		w.Mem.FlushThread(chosen)
		th.Continuation = act.Next()
		return recordResult(chosen, act)

	case action.WriteBarrier:
		w.Mem.FlushThread(chosen)
		th.Continuation = act.Next()
		return recordResult(chosen, act)

	case action.LoadLoadBarrier:
		th.Continuation = act.Next()
		return recordResult(chosen, act)

	case action.Atomic:
		return w.stepAtomic(chosen, th, act)

	case action.Throw:
		return w.stepThrow(chosen, th, act.Err)

	case action.ThrowTo:
		return w.stepThrowTo(chosen, th, act)

	case action.Catching:
		th.PushHandler(thread.Handler{Catch: act.Handler})
		th.Continuation = act.Body
		return recordResult(chosen, act)

	case action.PopCatching:
		th.PopHandler()
		th.Continuation = act.Next()
		return recordResult(chosen, act)

	case action.Masking:
		prev := th.Masking
		th.Masking = act.Level
		th.Continuation = act.Body(prev)
		w.wakeMask(chosen)
		return recordResult(chosen, act)

	case action.ResetMask:
		th.Masking = act.OrigLevel
		th.Continuation = act.Next()
		w.wakeMask(chosen)
		return recordResult(chosen, act)

	case action.KnowsAbout:
		th.KnowsAbout(act.Var)
		th.Continuation = act.Next()
		return recordResult(chosen, act)

	case action.Forgets:
		th.Forgets(act.Var)
		th.Continuation = act.Next()
		return recordResult(chosen, act)

	case action.AllKnown:
		th.FullyKnown = true
		th.Continuation = act.Next()
		return recordResult(chosen, act)

	case action.Lift:
		v := act.IO()
		th.Continuation = act.Next(v)
		return recordResult(chosen, act)

	case action.Prim:
		v := act.IO()
		th.Continuation = act.Next(v)
		return recordResult(chosen, act)

	default:
		return internalError()
	}
}

func (w *World) stepPutVar(chosen ids.ThreadID, th *thread.Thread, act action.PutVar) Result {
	v := w.Vars[act.Var]
	if v.IsFull() {
		reason := block.SVarEmpty(act.Var)
		th.Blocked = &reason
		v.AddEmptyWaiter(chosen)
		w.wakeMask(chosen)
		return recordResult(chosen, act)
	}
	woken := v.Put(act.Value)
	w.wake(woken)
	th.Continuation = act.Next()
	return recordResult(chosen, act)
}

func (w *World) stepTryPutVar(chosen ids.ThreadID, th *thread.Thread, act action.TryPutVar) Result {
	v := w.Vars[act.Var]
	if v.IsFull() {
		th.Continuation = act.Next(false)
		return recordResult(chosen, act)
	}
	woken := v.Put(act.Value)
	w.wake(woken)
	th.Continuation = act.Next(true)
	return recordResult(chosen, act)
}

func (w *World) stepReadVar(chosen ids.ThreadID, th *thread.Thread, act action.ReadVar) Result {
	v := w.Vars[act.Var]
	val, ok := v.Peek()
	if !ok {
		reason := block.SVarFull(act.Var)
		th.Blocked = &reason
		v.AddFullWaiter(chosen)
		w.wakeMask(chosen)
		return recordResult(chosen, act)
	}
	th.Continuation = act.Next(val)
	return recordResult(chosen, act)
}

func (w *World) stepTakeVar(chosen ids.ThreadID, th *thread.Thread, act action.TakeVar) Result {
	v := w.Vars[act.Var]
	if !v.IsFull() {
		reason := block.SVarFull(act.Var)
		th.Blocked = &reason
		v.AddFullWaiter(chosen)
		w.wakeMask(chosen)
		return recordResult(chosen, act)
	}
	val, woken := v.Take()
	w.wake(woken)
	th.Continuation = act.Next(val)
	return recordResult(chosen, act)
}

func (w *World) stepTryTakeVar(chosen ids.ThreadID, th *thread.Thread, act action.TryTakeVar) Result {
	v := w.Vars[act.Var]
	if !v.IsFull() {
		th.Continuation = act.Next(nil, false)
		return recordResult(chosen, act)
	}
	val, woken := v.Take()
	w.wake(woken)
	th.Continuation = act.Next(val, true)
	return recordResult(chosen, act)
}

func (w *World) stepAtomic(chosen ids.ThreadID, th *thread.Thread, act action.Atomic) Result {
	result := w.STM.Run(act.Tx)
	if result.Outcome == stm.Retry {
		reason := block.Stm(result.Touched)
		th.Blocked = &reason
		w.wakeMask(chosen)
		return recordResult(chosen, act)
	}
	th.Continuation = act.Next(result)
	if result.Outcome == stm.Success {
		w.wakeStm(result.Write)
	}
	return recordResult(chosen, act)
}

func (w *World) stepThrow(chosen ids.ThreadID, th *thread.Thread, err any) Result {
	resume, ok := th.FindHandler(err)
	if ok {
		th.Continuation = resume
		return recordResult(chosen, action.Throw{Err: err})
	}
	th.Done = true
	th.Continuation = nil
	w.wakeMask(chosen)
	r := recordResult(chosen, action.Throw{Err: err})
	if chosen == ids.MainThread {
		r.Failed = true
		r.Failure = UncaughtException
	}
	return r
}

func (w *World) stepThrowTo(chosen ids.ThreadID, th *thread.Thread, act action.ThrowTo) Result {
	target := w.Threads.Get(act.Target)
	if target == nil {
		return internalError()
	}
	// A finished target can no longer observe an exception; delivering one
	// is a safe no-op rather than something masking should ever block, so
	// Done bypasses the masking check entirely (mirrors wakeMask's own
	// Done-is-always-interruptible rule in world.go).
	nonInterruptible := !target.Done &&
		(target.Masking == action.MaskedUninterruptible ||
			(target.Masking == action.MaskedInterruptible && target.Blocked == nil))
	if nonInterruptible {
		reason := block.Mask(act.Target)
		th.Blocked = &reason
		return recordResult(chosen, act)
	}

	w.interrupt(target)
	resume, ok := target.FindHandler(act.Err)
	if ok {
		target.Continuation = resume
	} else {
		target.Done = true
		target.Continuation = nil
		w.wakeMask(act.Target)
		if act.Target == ids.MainThread {
			r := recordResult(chosen, act)
			r.Failed = true
			r.Failure = UncaughtException
			return r
		}
	}
	th.Continuation = act.Next()
	return recordResult(chosen, act)
}

// toDepAction builds the dependency oracle's view of the action a thread is
// about to execute (or has just executed), per spec.md §4.6/§9
// ("lookahead ... using the same simplification").
func toDepAction(tid ids.ThreadID, a action.Action) (t trace.ActionType, opaque, isStm bool, throwTo *ids.ThreadID, isBarrier bool) {
	switch act := a.(type) {
	case action.ReadRef:
		return trace.ActionType{Kind: trace.UnsynchronisedRead, Ref: act.Ref}, false, false, nil, false
	case action.WriteRef:
		return trace.ActionType{Kind: trace.UnsynchronisedWrite, Ref: act.Ref}, false, false, nil, false
	case action.ModifyRef:
		return trace.ActionType{Kind: trace.SynchronisedModify, Ref: act.Ref}, false, false, nil, false
	case action.ReadForCas:
		return trace.ActionType{Kind: trace.SynchronisedModify, Ref: act.Ref}, false, false, nil, false
	case action.CasRef:
		return trace.ActionType{Kind: trace.SynchronisedModify, Ref: act.Ticket.Ref}, false, false, nil, false
	case action.CasRef2:
		return trace.ActionType{Kind: trace.SynchronisedModify, Ref: act.Ticket1.Ref}, false, false, nil, false
	case action.AtomicModifyRefCas:
		return trace.ActionType{Kind: trace.SynchronisedModify, Ref: act.Ref}, false, false, nil, false
	case action.Commit:
		return trace.ActionType{Kind: trace.SynchronisedCommit, Ref: act.Ref}, false, false, nil, false
	case action.PutVar:
		return trace.ActionType{Kind: trace.SynchronisedWrite, Var: act.Var}, false, false, nil, false
	case action.TryPutVar:
		return trace.ActionType{Kind: trace.SynchronisedWrite, Var: act.Var}, false, false, nil, false
	case action.ReadVar:
		return trace.ActionType{Kind: trace.SynchronisedRead, Var: act.Var}, false, false, nil, false
	case action.TakeVar:
		return trace.ActionType{Kind: trace.SynchronisedRead, Var: act.Var}, false, false, nil, false
	case action.TryTakeVar:
		return trace.ActionType{Kind: trace.SynchronisedRead, Var: act.Var}, false, false, nil, false
	case action.StoreLoadBarrier:
		return trace.ActionType{Kind: trace.SynchronisedOther}, false, false, nil, true
	case action.WriteBarrier:
		return trace.ActionType{Kind: trace.SynchronisedOther}, false, false, nil, true
	case action.LoadLoadBarrier:
		return trace.ActionType{Kind: trace.UnsynchronisedOther}, false, false, nil, true
	case action.Atomic:
		return trace.ActionType{Kind: trace.SynchronisedOther}, false, true, nil, false
	case action.Lift:
		return trace.ActionType{Kind: trace.UnsynchronisedOther}, true, false, nil, false
	case action.Prim:
		return trace.ActionType{Kind: trace.UnsynchronisedOther}, true, false, nil, false
	case action.ThrowTo:
		target := act.Target
		return trace.ActionType{Kind: trace.UnsynchronisedOther}, false, false, &target, false
	default:
		return trace.ActionType{Kind: trace.UnsynchronisedOther}, false, false, nil, false
	}
}

// Lookahead previews thread tid's next action without executing it
// (spec.md §9, "the stepper therefore exposes a lookahead(thread)").
// Commit pseudo-threads preview as a SynchronisedCommit.
func (w *World) Lookahead(tid ids.ThreadID) (trace.Lookahead, bool) {
	if pc, ok := w.ResolveCommit(tid); ok {
		return trace.Lookahead{Thread: tid, Type: trace.ActionType{Kind: trace.SynchronisedCommit, Ref: pc.Ref}}, true
	}
	th := w.Threads.Get(tid)
	if th == nil || !th.Runnable() {
		return trace.Lookahead{}, false
	}
	t, opaque, isStm, throwTo, isBarrier := toDepAction(tid, th.Continuation)
	return trace.Lookahead{
		Thread: tid, Type: t, Opaque: opaque, Stm: isStm, ThrowTo: throwTo, IsBarrier: isBarrier,
	}, true
}
