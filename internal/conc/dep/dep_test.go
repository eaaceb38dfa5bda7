package dep

import (
	"testing"

	"github.com/gitrdm/godejafu/internal/conc/trace"
	"github.com/gitrdm/godejafu/internal/ids"
)

func TestDependent_SameSVarWriteIsDependent(t *testing.T) {
	a1 := Action{Thread: 1, Type: trace.ActionType{Kind: trace.SynchronisedWrite, Var: 0}}
	a2 := Action{Thread: 2, Type: trace.ActionType{Kind: trace.SynchronisedRead, Var: 0}}
	if !Dependent(SequentialConsistency, a1, a2, nil) {
		t.Fatalf("expected write/read on the same SVar to be dependent")
	}
}

func TestDependent_DifferentSVarsAreIndependent(t *testing.T) {
	a1 := Action{Thread: 1, Type: trace.ActionType{Kind: trace.SynchronisedWrite, Var: 0}}
	a2 := Action{Thread: 2, Type: trace.ActionType{Kind: trace.SynchronisedWrite, Var: 1}}
	if Dependent(SequentialConsistency, a1, a2, nil) {
		t.Fatalf("expected writes to distinct SVars to be independent")
	}
}

func TestDependent_TwoReadsAreIndependent(t *testing.T) {
	a1 := Action{Thread: 1, Type: trace.ActionType{Kind: trace.SynchronisedRead, Var: 0}}
	a2 := Action{Thread: 2, Type: trace.ActionType{Kind: trace.SynchronisedRead, Var: 0}}
	if Dependent(SequentialConsistency, a1, a2, nil) {
		t.Fatalf("expected two reads of the same SVar to be independent")
	}
}

func TestDependent_OpaqueActionsAlwaysDependent(t *testing.T) {
	a1 := Action{Thread: 1, Opaque: true, Type: trace.ActionType{Kind: trace.UnsynchronisedOther}}
	a2 := Action{Thread: 2, Opaque: true, Type: trace.ActionType{Kind: trace.UnsynchronisedOther}}
	if !Dependent(SequentialConsistency, a1, a2, nil) {
		t.Fatalf("expected two opaque (Lift/Prim) actions to always be dependent")
	}
}

func TestDependent_STMActionsAlwaysDependent(t *testing.T) {
	a1 := Action{Thread: 1, STM: true, Type: trace.ActionType{Kind: trace.SynchronisedOther}}
	a2 := Action{Thread: 2, STM: true, Type: trace.ActionType{Kind: trace.SynchronisedOther}}
	if !Dependent(SequentialConsistency, a1, a2, nil) {
		t.Fatalf("expected two STM transactions to always be dependent")
	}
}

func TestDependent_ThrowToTargetIsDependent(t *testing.T) {
	target := ids.ThreadID(2)
	a1 := Action{Thread: 1, ThrowTo: &target, Type: trace.ActionType{Kind: trace.UnsynchronisedOther}}
	a2 := Action{Thread: 2, Type: trace.ActionType{Kind: trace.UnsynchronisedOther}}
	if !Dependent(SequentialConsistency, a1, a2, nil) {
		t.Fatalf("expected ThrowTo(2) and any action of thread 2 to be dependent")
	}
	if !Dependent(SequentialConsistency, a2, a1, nil) {
		t.Fatalf("expected Dependent to be symmetric")
	}
}

func TestDependent_SCUnsynchronisedWriteRaces(t *testing.T) {
	a1 := Action{Thread: 1, Type: trace.ActionType{Kind: trace.UnsynchronisedWrite, Ref: 5}}
	a2 := Action{Thread: 2, Type: trace.ActionType{Kind: trace.UnsynchronisedRead, Ref: 5}}
	if !Dependent(SequentialConsistency, a1, a2, nil) {
		t.Fatalf("expected SC write/read on the same ref to be dependent")
	}
}

func TestDependent_TSOUnsynchronisedReadsOfSameRefIndependent(t *testing.T) {
	a1 := Action{Thread: 1, Type: trace.ActionType{Kind: trace.UnsynchronisedRead, Ref: 5}}
	a2 := Action{Thread: 2, Type: trace.ActionType{Kind: trace.UnsynchronisedRead, Ref: 5}}
	if Dependent(TotalStoreOrder, a1, a2, nil) {
		t.Fatalf("expected two reads to stay independent under TSO")
	}
}

func TestDependent_TSOBarrierDependsOnBufferedRead(t *testing.T) {
	buffered := func(r ids.RefID) bool { return r == 7 }
	read := Action{Thread: 1, Type: trace.ActionType{Kind: trace.UnsynchronisedRead, Ref: 7}}
	barrier := Action{Thread: 2, IsBarrier: true, Type: trace.ActionType{Kind: trace.SynchronisedOther}}
	if !Dependent(TotalStoreOrder, read, barrier, buffered) {
		t.Fatalf("expected an unsynchronised read of a ref with a pending buffered write to be dependent on a barrier")
	}
}

func TestDependent_TSOBarrierIndependentWithoutBufferedWrite(t *testing.T) {
	buffered := func(ids.RefID) bool { return false }
	read := Action{Thread: 1, Type: trace.ActionType{Kind: trace.UnsynchronisedRead, Ref: 7}}
	barrier := Action{Thread: 2, IsBarrier: true, Type: trace.ActionType{Kind: trace.SynchronisedOther}}
	if Dependent(TotalStoreOrder, read, barrier, buffered) {
		t.Fatalf("expected no dependency when the ref has no pending buffered write")
	}
}

func TestFromThreadActionAndFromLookaheadAgree(t *testing.T) {
	target := ids.ThreadID(3)
	ta := trace.ThreadAction{
		Thread: 1, Opaque: true, Stm: true, ThrowTo: &target, IsBarrier: true,
		Type: trace.ActionType{Kind: trace.UnsynchronisedOther},
	}
	la := trace.Lookahead{
		Thread: 1, Opaque: true, Stm: true, ThrowTo: &target, IsBarrier: true,
		Type: trace.ActionType{Kind: trace.UnsynchronisedOther},
	}
	a1 := FromThreadAction(ta)
	a2 := FromLookahead(la)
	if a1.Opaque != a2.Opaque || a1.STM != a2.STM || a1.IsBarrier != a2.IsBarrier || *a1.ThrowTo != *a2.ThrowTo {
		t.Fatalf("expected FromThreadAction and FromLookahead to build equivalent views: %+v vs %+v", a1, a2)
	}
}
