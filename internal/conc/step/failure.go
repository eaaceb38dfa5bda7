package step

// Failure tags the three-class error taxonomy of spec.md §7. Program-level
// failures (Deadlock, StmDeadlock, UncaughtException) are expected outcomes
// of a single execution; InternalError means the scheduler violated its
// contract and the campaign must abort. Mirrors the
// iota-enum-with-String() idiom the teacher uses for
// pkg/minikanren/constraint_store.go's ConstraintResult.
type Failure int

const (
	NoFailure Failure = iota
	Deadlock
	StmDeadlock
	UncaughtException
	InternalError
)

func (f Failure) String() string {
	switch f {
	case NoFailure:
		return "NoFailure"
	case Deadlock:
		return "Deadlock"
	case StmDeadlock:
		return "StmDeadlock"
	case UncaughtException:
		return "UncaughtException"
	case InternalError:
		return "InternalError"
	default:
		return "UnknownFailure"
	}
}
