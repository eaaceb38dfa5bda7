// Package stm treats software transactional memory as an external black
// box, per spec.md §1 ("the STM sub-interpreter ... treated as a black box
// exposing run-transaction → Result") and §F of SPEC_FULL.md. The core
// interpreter only needs to know which StmVarIDs a transaction touched and
// whether it committed, retried, or raised — never how it evaluated.
package stm

import "github.com/gitrdm/godejafu/internal/ids"

// Transaction is an opaque computation supplied by the program under test.
// Interpreter implementations decide how to run it; the core interpreter
// never inspects a Transaction directly.
type Transaction interface {
	// isTransaction is unexported so Transaction values can only originate from an
	// Interpreter implementation in this package or a caller-supplied one
	// that embeds Base.
	isTransaction()
}

// Base may be embedded by Transaction implementations outside this package.
type Base struct{}

func (Base) isTransaction() {}

// Outcome tags which case of Result is populated.
type Outcome int

const (
	// Success: the transaction committed. Read and Write name every
	// StmVarID it touched; Value is the transaction's result.
	Success Outcome = iota
	// Retry: the transaction blocked; Touched names every StmVarID whose
	// future write should wake the retrying thread (spec.md §4.2).
	Retry
	// Exception: the transaction raised Err without committing.
	Exception
)

// Result is the outcome of running one Transaction (spec.md §2, STM bridge
// row: "Result { Success(read,write,val) | Retry(touched) | Exception }").
type Result struct {
	Outcome Outcome
	Read    []ids.StmVarID
	Write   []ids.StmVarID
	Value   any
	Touched []ids.StmVarID
	Err     any
}

// Interpreter runs a Transaction to completion (or to a retry/exception)
// against the current committed state of the STM variable space.
type Interpreter interface {
	Run(tx Transaction) Result
}

// MapTransaction is the one concrete Transaction this module ships: a plain
// Go closure operating against a MapInterpreter's variable map. It is
// enough to exercise every STM-touching scenario and stepper code path
// without building a transactional language (SPEC_FULL.md §F).
type MapTransaction struct {
	Base
	Run func(read func(ids.StmVarID) any, write func(ids.StmVarID, any)) (any, error)
}

// MapInterpreter is the concrete Interpreter backing MapTransaction: a
// single committed map of StmVarID → value, with read/write sets recorded
// per run so the bridge can report Success/Retry/Exception faithfully.
type MapInterpreter struct {
	vars map[ids.StmVarID]any
}

// NewMapInterpreter creates an STM variable space seeded with initial.
func NewMapInterpreter(initial map[ids.StmVarID]any) *MapInterpreter {
	vars := make(map[ids.StmVarID]any, len(initial))
	for k, v := range initial {
		vars[k] = v
	}
	return &MapInterpreter{vars: vars}
}

// retrySignal is the panic value RetryTx raises to signal "block until one
// of the variables I've read so far changes" — the
// MapTransaction equivalent of miniKanren's constraint-propagation failure
// used to short-circuit a goal (pkg/minikanren/constraint_store.go's
// ConstraintViolated), generalised here to "not yet, retry".
type retrySignal struct{}

// RetryTx aborts the in-progress transaction and requests a retry once any
// variable read so far changes. Call it from within a MapTransaction.Run.
func RetryTx() { panic(retrySignal{}) }

// Run implements Interpreter for MapInterpreter.
func (m *MapInterpreter) Run(tx Transaction) Result {
	mt, ok := tx.(MapTransaction)
	if !ok {
		return Result{Outcome: Exception, Err: errUnsupportedTransaction{tx}}
	}

	var reads, writes []ids.StmVarID
	seen := map[ids.StmVarID]bool{}
	pending := map[ids.StmVarID]any{}

	read := func(id ids.StmVarID) any {
		if !seen[id] {
			seen[id] = true
			reads = append(reads, id)
		}
		if v, ok := pending[id]; ok {
			return v
		}
		return m.vars[id]
	}
	write := func(id ids.StmVarID, v any) {
		if !seen[id] {
			seen[id] = true
			writes = append(writes, id)
		} else if !containsStmVar(writes, id) {
			writes = append(writes, id)
		}
		pending[id] = v
	}

	result, err := func() (val any, err error) {
		defer func() {
			if r := recover(); r != nil {
				if _, isRetry := r.(retrySignal); isRetry {
					err = errRetried{}
					return
				}
				panic(r)
			}
		}()
		return mt.Run(read, write)
	}()

	if _, isRetry := err.(errRetried); isRetry {
		return Result{Outcome: Retry, Touched: append([]ids.StmVarID(nil), reads...)}
	}
	if err != nil {
		return Result{Outcome: Exception, Err: err}
	}

	for id, v := range pending {
		m.vars[id] = v
	}
	return Result{Outcome: Success, Read: reads, Write: writes, Value: result}
}

func containsStmVar(xs []ids.StmVarID, x ids.StmVarID) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

type errRetried struct{}

func (errRetried) Error() string { return "stm: transaction retried" }

type errUnsupportedTransaction struct{ tx Transaction }

func (e errUnsupportedTransaction) Error() string {
	return "stm: MapInterpreter cannot run this Transaction implementation"
}
