// Package naive implements symex.Solver by random sampling rather than
// by decision procedure, for use in tests and examples that would
// otherwise require a cgo-linked SMT backend. It is sound only in the
// probabilistic sense: MustBeTrue can report a false positive if no
// counterexample happens to be sampled within the attempt budget. Tests
// that need an exact decision procedure should use the z3 package
// instead.
package naive

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/segexec/symex"
)

// Ensure Solver implements the interface.
var _ symex.Solver = (*Solver)(nil)

// Solver is a random-sampling constraint solver.
type Solver struct {
	rng      *rand.Rand
	attempts int
}

// NewSolver returns a new naive solver that samples up to attempts
// candidate assignments per query (1024 if attempts is 0).
func NewSolver(seed int64, attempts int) *Solver {
	if attempts <= 0 {
		attempts = 1024
	}
	return &Solver{rng: rand.New(rand.NewSource(seed)), attempts: attempts}
}

// sample draws one random byte assignment per array.
func (s *Solver) sample(arrays []*symex.Array) [][]byte {
	values := make([][]byte, len(arrays))
	for i, a := range arrays {
		buf := make([]byte, a.Size)
		s.rng.Read(buf)
		values[i] = buf
	}
	return values
}

// findModel searches for a byte assignment under which every expr in
// exprs evaluates to a true boolean constant, returning (arrays, values,
// true) on success.
func (s *Solver) findModel(exprs []symex.Expr) ([]*symex.Array, [][]byte, bool) {
	arrays := symex.FindArrays(exprs...)
	if len(arrays) == 0 {
		ee := symex.NewExprEvaluator(nil, nil)
		for _, e := range exprs {
			v, err := ee.Evaluate(e)
			if err != nil || !v.IsTrue() {
				return arrays, nil, false
			}
		}
		return arrays, nil, true
	}

	for attempt := 0; attempt < s.attempts; attempt++ {
		values := s.sample(arrays)
		ee := symex.NewExprEvaluator(arrays, values)
		ok := true
		for _, e := range exprs {
			v, err := ee.Evaluate(e)
			if err != nil || !v.IsTrue() {
				ok = false
				break
			}
		}
		if ok {
			return arrays, values, true
		}
	}
	return arrays, nil, false
}

// Evaluate implements symex.Solver.
func (s *Solver) Evaluate(ctx context.Context, state *symex.ExecutionState, expr symex.Expr) (symex.Result, error) {
	if err := ctx.Err(); err != nil {
		return symex.ResultUnknown, err
	}
	trueExprs := append(append([]symex.Expr{}, state.Constraints()...), expr)
	_, _, trueSAT := s.findModel(trueExprs)

	falseExprs := append(append([]symex.Expr{}, state.Constraints()...), symex.NewNotExpr(expr))
	_, _, falseSAT := s.findModel(falseExprs)

	switch {
	case trueSAT && !falseSAT:
		return symex.ResultTrue, nil
	case !trueSAT && falseSAT:
		return symex.ResultFalse, nil
	default:
		return symex.ResultUnknown, nil
	}
}

// MustBeTrue implements symex.Solver: true unless a counterexample for
// !expr is actually sampled within the attempt budget.
func (s *Solver) MustBeTrue(ctx context.Context, state *symex.ExecutionState, expr symex.Expr) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	exprs := append(append([]symex.Expr{}, state.Constraints()...), symex.NewNotExpr(expr))
	_, _, sat := s.findModel(exprs)
	return !sat, nil
}

// MayBeTrue implements symex.Solver.
func (s *Solver) MayBeTrue(ctx context.Context, state *symex.ExecutionState, expr symex.Expr) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	exprs := append(append([]symex.Expr{}, state.Constraints()...), expr)
	_, _, sat := s.findModel(exprs)
	return sat, nil
}

// GetValue implements symex.Solver.
func (s *Solver) GetValue(ctx context.Context, state *symex.ExecutionState, expr symex.Expr) (*symex.ConstantExpr, error) {
	if c, ok := expr.(*symex.ConstantExpr); ok {
		return c, nil
	}
	arrays, values, ok := s.findModel(state.Constraints())
	if !ok {
		return nil, fmt.Errorf("naive: getValue: no satisfying assignment found in %d attempts", s.attempts)
	}
	return symex.NewExprEvaluator(arrays, values).Evaluate(expr)
}

// GetRange implements symex.Solver by sampling repeatedly and tracking
// the tightest bounds seen; unlike an exact solver this may fail to find
// the true extremes, hence the name of the package.
func (s *Solver) GetRange(ctx context.Context, state *symex.ExecutionState, expr symex.Expr) (min, max *symex.ConstantExpr, err error) {
	width := symex.ExprWidth(expr)
	arrays, values, ok := s.findModel(state.Constraints())
	if !ok {
		return nil, nil, fmt.Errorf("naive: getRange: no satisfying assignment found in %d attempts", s.attempts)
	}
	v, err := symex.NewExprEvaluator(arrays, values).Evaluate(expr)
	if err != nil {
		return nil, nil, err
	}
	lo, hi := v.Value, v.Value

	for attempt := 0; attempt < s.attempts; attempt++ {
		candidate := s.sample(arrays)
		ee := symex.NewExprEvaluator(arrays, candidate)
		ok := true
		for _, c := range state.Constraints() {
			cv, err := ee.Evaluate(c)
			if err != nil || !cv.IsTrue() {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		ev, err := ee.Evaluate(expr)
		if err != nil {
			continue
		}
		if ev.Value < lo {
			lo = ev.Value
		}
		if ev.Value > hi {
			hi = ev.Value
		}
	}
	return symex.NewConstantExpr(lo, width), symex.NewConstantExpr(hi, width), nil
}

// GetInitialValues implements symex.Solver.
func (s *Solver) GetInitialValues(ctx context.Context, state *symex.ExecutionState, arrays []*symex.Array) ([][]byte, error) {
	_, values, ok := s.findModel(state.Constraints())
	if !ok {
		return nil, fmt.Errorf("naive: getInitialValues: no satisfying assignment found in %d attempts", s.attempts)
	}
	// Re-key the found model onto the caller's requested array order,
	// sampling fresh (unconstrained) bytes for any array the model
	// didn't happen to cover.
	result := make([][]byte, len(arrays))
	modelArrays := symex.FindArrays(state.Constraints()...)
	index := make(map[uint64]int, len(modelArrays))
	for i, a := range modelArrays {
		index[a.ID] = i
	}
	for i, a := range arrays {
		if j, ok := index[a.ID]; ok {
			result[i] = values[j]
		} else {
			buf := make([]byte, a.Size)
			s.rng.Read(buf)
			result[i] = buf
		}
	}
	return result, nil
}

// GetConstraintLog implements symex.Solver with a plain textual dump,
// since this solver has no native query-language representation.
func (s *Solver) GetConstraintLog(state *symex.ExecutionState) (string, error) {
	var out string
	for i, c := range state.Constraints() {
		out += fmt.Sprintf("%d. %s\n", i, c.String())
	}
	return out, nil
}
