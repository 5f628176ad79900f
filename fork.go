package symex

import (
	"context"
	"log"
)

// ForkResult is the outcome of a two-way Fork: usually at most one of
// True/False is nil. Both are nil only when Config.OnlyReplaySeeds is set
// and no seed of the state agrees with either branch; Fork has then
// terminated the state with EngineConditionSeedsExhausted.
type ForkResult struct {
	True, False *ExecutionState
}

// Fork evaluates cond against state's path constraints and returns up to
// two continuations: one with cond assumed true, one with cond assumed
// false. State identity is stable across a fork: the branch state keeps
// going as the very same *ExecutionState object passed in; only its
// sibling is freshly allocated, matching fork()'s StatePair(&current, 0)
// contract.
//
// When the solver cannot decide (both branches are feasible) but a
// resource cap applies — the global fork budget, the per-path depth
// budit, the memory-limit flag, the per-state forkDisabled flag, or the
// static collapse percentage — Fork collapses to a single branch chosen
// uniformly at random and adds the corresponding constraint to state in
// place, without ever allocating a clone.
func (e *Executor) Fork(ctx context.Context, state *ExecutionState, cond Expr) (ForkResult, error) {
	result, err := e.Solver.Evaluate(ctx, state, cond)
	if err != nil {
		return ForkResult{}, err
	}

	switch result {
	case ResultTrue:
		state.AddConstraint(cond)
		return ForkResult{True: state}, nil
	case ResultFalse:
		state.AddConstraint(NewNotExpr(cond))
		return ForkResult{False: state}, nil
	}

	// result == ResultUnknown: both branches are feasible.
	trueSeeds, falseSeeds := state.seeds.Partition(cond)

	if e.Config.OnlyReplaySeeds && len(state.seeds) > 0 {
		switch {
		case len(trueSeeds) == 0 && len(falseSeeds) == 0:
			state.Terminate(NewEngineCondition(EngineConditionSeedsExhausted, "", "no loaded seed agrees with either branch of this fork"))
			return ForkResult{}, nil
		case len(falseSeeds) == 0:
			state.seeds = trueSeeds
			state.AddConstraint(cond)
			return ForkResult{True: state}, nil
		case len(trueSeeds) == 0:
			state.seeds = falseSeeds
			state.AddConstraint(NewNotExpr(cond))
			return ForkResult{False: state}, nil
		}
		// Both sides still have at least one seed backing them: fall
		// through to a real fork, below, so each seed keeps steering its
		// own branch.
	}

	if reason, capped := e.forkIsCapped(state); capped {
		return e.collapseFork(state, cond, reason), nil
	}

	// Real fork: state continues as one branch, a new clone becomes the
	// other. By convention the original continues as the true branch.
	child := state.Clone()
	state.depth++
	child.depth = state.depth
	state.AddConstraint(cond)
	child.AddConstraint(NewNotExpr(cond))

	state.seeds, child.seeds = trueSeeds, falseSeeds

	e.forkCount++
	if e.tree != nil {
		e.tree.Attach(state, child)
	}
	child.id = e.nextStateID()

	log.Printf("[fork] state #%d -> true=#%d false=#%d depth=%d", state.id, state.id, child.id, child.depth)

	return ForkResult{True: state, False: child}, nil
}

// forkIsCapped decides whether a genuinely-undecided fork should be
// collapsed to a single branch instead of cloning, returning the
// EngineCondition that justifies the collapse.
func (e *Executor) forkIsCapped(state *ExecutionState) (EngineCondition, bool) {
	if state.forkDisabled {
		return EngineConditionMaxForks, true
	}
	if e.Config.MaxForks > 0 && e.forkCount >= e.Config.MaxForks {
		return EngineConditionMaxForks, true
	}
	if e.Config.MaxDepth > 0 && state.depth >= e.Config.MaxDepth {
		return EngineConditionMaxDepth, true
	}
	if e.Config.MaxMemory > 0 && e.memoryUsage() >= e.Config.MaxMemory {
		return EngineConditionMaxMemory, true
	}
	if e.Config.ForkCollapsePercent > 0 && e.rng.Intn(100) < e.Config.ForkCollapsePercent {
		return EngineConditionMaxForks, true
	}
	return "", false
}

// collapseFork picks one branch uniformly at random, adds the
// corresponding constraint to state in place, and returns it as the only
// live continuation.
func (e *Executor) collapseFork(state *ExecutionState, cond Expr, reason EngineCondition) ForkResult {
	log.Printf("[fork] state #%d collapsed (%s), no clone", state.id, reason)
	if e.rng.Intn(2) == 0 {
		state.AddConstraint(cond)
		return ForkResult{True: state}
	}
	state.AddConstraint(NewNotExpr(cond))
	return ForkResult{False: state}
}

// Branch is the multi-way analogue of Fork, for Switch and IndirectBr:
// conds has one boolean expression per possible successor, expected to
// be mutually exclusive and (aside from rounding from a collapsed fork)
// exhaustive. Branch forks serially, threading a residual state through
// each condition in turn; the returned slice has one entry per
// condition, nil wherever that arm turned out infeasible or was dropped
// by a resource-cap collapse.
func (e *Executor) Branch(ctx context.Context, state *ExecutionState, conds []Expr) ([]*ExecutionState, error) {
	results := make([]*ExecutionState, len(conds))
	residual := state

	for i, cond := range conds {
		if residual == nil {
			break
		}
		if i == len(conds)-1 {
			// Last arm: whatever constraint remains to make the set
			// exhaustive, no need to query the solver again.
			results[i] = residual
			break
		}

		fr, err := e.Fork(ctx, residual, cond)
		if err != nil {
			return nil, err
		}
		results[i] = fr.True
		residual = fr.False
	}

	return results, nil
}
