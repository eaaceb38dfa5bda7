// Package block defines BlockReason, the shared vocabulary the thread
// table and the single-stepper use to describe why a thread is not
// runnable (spec.md §3).
package block

import "github.com/gitrdm/godejafu/internal/ids"

// Kind tags which BlockReason case is populated.
type Kind int

const (
	OnSVarFull Kind = iota
	OnSVarEmpty
	OnStm
	OnMask
)

// Reason is one of OnSVarFull(id) | OnSVarEmpty(id) | OnStm(touched) |
// OnMask(target) (spec.md §3).
type Reason struct {
	Kind    Kind
	Var     ids.VarID
	Touched []ids.StmVarID
	Target  ids.ThreadID
}

func SVarFull(v ids.VarID) Reason  { return Reason{Kind: OnSVarFull, Var: v} }
func SVarEmpty(v ids.VarID) Reason { return Reason{Kind: OnSVarEmpty, Var: v} }
func Stm(touched []ids.StmVarID) Reason {
	return Reason{Kind: OnStm, Touched: touched}
}
func Mask(target ids.ThreadID) Reason { return Reason{Kind: OnMask, Target: target} }

// MatchesSVar reports whether this Reason is a block of the given kind on
// SVar v (spec.md §4.2 wakeup policy).
func (r Reason) MatchesSVar(kind Kind, v ids.VarID) bool {
	return r.Kind == kind && r.Var == v
}

// MatchesStm reports whether an STM commit that wrote `written` should
// wake a thread retrying with this Reason: STM commit wakes every thread
// whose OnStm(touched) intersects the transaction's write-set.
func (r Reason) MatchesStm(written []ids.StmVarID) bool {
	if r.Kind != OnStm {
		return false
	}
	for _, t := range r.Touched {
		for _, w := range written {
			if t == w {
				return true
			}
		}
	}
	return false
}
