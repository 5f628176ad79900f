package symex

import "context"

// Solver is the constraint solver this module depends on but does not
// implement: every query the interpreter needs is expressed as one of
// these methods, each taking a context.Context so the caller can bound
// solver time per call (the idiomatic Go replacement for KLEE's explicit
// time.Span timeout parameter threaded through TimingSolver).
//
// Implementations live outside this module (see solver/naive for a
// minimal one used by this module's own tests).
type Solver interface {
	// Evaluate returns Result according to whether expr is provably
	// true, provably false, or neither, under the given state's path
	// constraints.
	Evaluate(ctx context.Context, state *ExecutionState, expr Expr) (Result, error)

	// MustBeTrue reports whether expr is true in every model satisfying
	// state's constraints.
	MustBeTrue(ctx context.Context, state *ExecutionState, expr Expr) (bool, error)

	// MayBeTrue reports whether expr is true in at least one model
	// satisfying state's constraints.
	MayBeTrue(ctx context.Context, state *ExecutionState, expr Expr) (bool, error)

	// GetValue returns one satisfying value for expr.
	GetValue(ctx context.Context, state *ExecutionState, expr Expr) (*ConstantExpr, error)

	// GetRange returns the tightest [min, max] bounds on expr that the
	// solver could establish given a configured effort budget (not
	// necessarily the true tightest bounds).
	GetRange(ctx context.Context, state *ExecutionState, expr Expr) (min, max *ConstantExpr, err error)

	// GetInitialValues returns one concrete byte assignment per array in
	// arrays, consistent with state's constraints.
	GetInitialValues(ctx context.Context, state *ExecutionState, arrays []*Array) ([][]byte, error)

	// GetConstraintLog returns a textual dump of state's constraints in
	// whatever format the backend finds convenient (e.g. SMT-LIB2),
	// purely for diagnostics.
	GetConstraintLog(state *ExecutionState) (string, error)
}

// Result is the three-valued outcome of Solver.Evaluate.
type Result int

const (
	ResultUnknown Result = iota
	ResultTrue
	ResultFalse
)

// String returns the string representation of the result.
func (r Result) String() string {
	switch r {
	case ResultTrue:
		return "true"
	case ResultFalse:
		return "false"
	default:
		return "unknown"
	}
}

// solverContext bundles the three arguments (solver, context, state) that
// every AddressSpace resolution helper needs, so callers don't have to
// thread them through one parameter at a time.
type solverContext struct {
	solver Solver
	ctx    context.Context
	state  *ExecutionState
}
