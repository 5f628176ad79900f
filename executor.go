package symex

import (
	"context"
	"fmt"
	"log"
	"math/rand"
)

// Executor drives the scheduler loop: at each step it picks a runnable
// state from its Searcher, executes exactly one prepared instruction
// against it, and either advances that state, forks it into two, spawns
// further states (a multi-way Switch/IndirectBr, or a memory operation
// resolving to several aliasing objects), or terminates it. Only solver
// calls (routed through Solver) can block; everything else is a single
// synchronous step, matching the single-threaded cooperative model.
type Executor struct {
	Table    *Table
	Solver   Solver
	Searcher Searcher
	External External
	TestCase TestCaseHandler

	Config *Config

	rng *rand.Rand

	tree      *StateTree
	forkCount int

	nextStateIDCounter  int
	nextObjectIDCounter uint64

	memUsage uint64

	dedup map[dedupeKey]struct{}
}

// NewExecutor returns a new Executor bound to table, solving queries with
// solver and scheduling with searcher. Config may be nil, in which case
// NewConfig's defaults are used.
func NewExecutor(table *Table, solver Solver, searcher Searcher, config *Config) *Executor {
	if config == nil {
		config = NewConfig()
	}
	return &Executor{
		Table:    table,
		Solver:   solver,
		Searcher: searcher,
		Config:   config,
		rng:      rand.New(rand.NewSource(1)),
		dedup:    make(map[dedupeKey]struct{}),
	}
}

// PointerWidth returns the configured pointer width, in bits.
func (e *Executor) PointerWidth() uint { return e.Config.PointerWidth }

// IsLittleEndian returns the configured byte order.
func (e *Executor) IsLittleEndian() bool { return e.Config.IsLittleEndian }

// NotifyMemoryUsage lets the embedding process report its current memory
// footprint so Fork can apply the MaxMemory resource cap; this module
// never measures its own memory use, leaving that to the caller.
func (e *Executor) NotifyMemoryUsage(n uint64) { e.memUsage = n }

func (e *Executor) memoryUsage() uint64 { return e.memUsage }

func (e *Executor) nextStateID() int {
	e.nextStateIDCounter++
	return e.nextStateIDCounter
}

// nextObjectID returns a fresh (object id, segment) pair. This module
// assigns segments 1:1 with object ids, both drawn from one monotonic
// counter shared across every live state, since segments must never
// collide even though each state's AddressSpace is otherwise
// independent.
func (e *Executor) nextObjectID() (id uint64, segment uint64) {
	e.nextObjectIDCounter++
	return e.nextObjectIDCounter, e.nextObjectIDCounter
}

// NewInitialState returns a fresh running state for the named function
// (Table.Entry if name is empty) and registers it with the executor's
// state tree.
func (e *Executor) NewInitialState(name string) (*ExecutionState, error) {
	if name == "" {
		name = e.Table.Entry
	}
	fn, ok := e.Table.Functions[name]
	if !ok {
		return nil, fmt.Errorf("symex: entry function not found: %s", name)
	}
	s := NewExecutionState(e, fn)
	s.id = e.nextStateID()
	e.tree = NewStateTree(s)
	return s, nil
}

// Run drives states to completion until the Searcher reports no runnable
// state remains, ctx is canceled, or Halt() has been called.
func (e *Executor) Run(ctx context.Context, initial *ExecutionState) error {
	e.Searcher.Add(initial)

	for {
		if Halted() {
			log.Printf("[exec] halt requested, stopping scheduler")
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		state, err := e.Searcher.Next()
		if err != nil {
			if err == ErrNoStateAvailable {
				return nil
			}
			return err
		}

		spawned, err := e.Step(ctx, state)
		if err != nil {
			return err
		}
		for _, s := range spawned {
			e.Searcher.Add(s)
		}

		if state.Terminated() {
			e.Searcher.Remove(state)
			if e.tree != nil {
				e.tree.Remove(state)
			}
			e.emitTestCase(state)
		}
	}
}

// emitTestCase recovers a concrete model for state's constraints and
// reports it to e.TestCase, if one is configured; a state that never
// touched any symbolic array is reported with an empty assignment.
func (e *Executor) emitTestCase(state *ExecutionState) {
	if e.TestCase == nil {
		return
	}
	var arrays []*Array
	for _, c := range state.constraints {
		arrays = append(arrays, FindArrays(c)...)
	}

	assignments := make(map[string][]byte)
	if len(arrays) > 0 {
		values, err := e.Solver.GetInitialValues(context.Background(), state, arrays)
		if err != nil {
			log.Printf("[exec] state #%d: failed to recover test case: %v", state.id, err)
		} else {
			for i, a := range arrays {
				assignments[fmt.Sprintf("arr%d", a.ID)] = values[i]
			}
		}
	}

	e.TestCase.HandleTestCase(&TestCase{
		StateID:     state.id,
		Assignments: assignments,
		Termination: state.termination,
	})
}

// Step executes exactly one instruction against state, returning any
// newly spawned sibling states (from a fork or a multi-candidate memory
// resolution) that the caller should schedule alongside it.
func (e *Executor) Step(ctx context.Context, state *ExecutionState) ([]*ExecutionState, error) {
	if state.Terminated() {
		return nil, nil
	}

	inst := state.CurrentInst()
	if inst == nil {
		state.Terminate(NewEngineCondition(EngineConditionMaxInstructions, "", "instruction pointer ran off the end of its block"))
		return nil, nil
	}

	if e.Config.MaxInstructions > 0 && state.instructionCount >= e.Config.MaxInstructions {
		state.Terminate(NewEngineCondition(EngineConditionMaxInstructions, inst.SourceLoc, "max instructions exceeded"))
		return nil, nil
	}
	state.instructionCount++

	switch inst.Op {
	case OpBinOp:
		return nil, e.executeBinOp(state, inst)
	case OpNot:
		return nil, e.executeNot(state, inst)
	case OpCast:
		return nil, e.executeCast(state, inst)
	case OpSelect:
		return nil, e.executeSelect(state, inst)
	case OpAlloca:
		return nil, e.executeAlloca(state, inst)
	case OpLoad:
		return e.executeLoad(ctx, state, inst)
	case OpStore:
		return e.executeStore(ctx, state, inst)
	case OpGetElementPtr:
		return nil, e.executeGetElementPtr(state, inst)
	case OpBr:
		state.Frame().Jump(inst.Targets[0])
		return nil, nil
	case OpCondBr:
		return e.executeCondBr(ctx, state, inst)
	case OpSwitch:
		return e.executeSwitch(ctx, state, inst)
	case OpIndirectBr:
		return e.executeIndirectBr(ctx, state, inst)
	case OpPhi:
		return nil, e.executePhi(state, inst)
	case OpCall:
		return nil, e.executeCall(ctx, state, inst)
	case OpRet:
		return nil, e.executeRet(state, inst)
	case OpUnreachable:
		state.Terminate(NewProgramError(ProgramErrorUnhandled, inst.SourceLoc, "reached an unreachable instruction"))
		return nil, nil
	default:
		panic(fmt.Sprintf("symex: unhandled opcode: %d", inst.Op))
	}
}

func (e *Executor) executeBinOp(state *ExecutionState, inst *Inst) error {
	lhs := state.Eval(inst.Operands[0])
	rhs := state.Eval(inst.Operands[1])
	state.SetReg(inst.Result, lhs.BinaryOp(inst.BinOp, rhs))
	state.Frame().NextInst()
	return nil
}

func (e *Executor) executeNot(state *ExecutionState, inst *Inst) error {
	v := state.Eval(inst.Operands[0])
	state.SetReg(inst.Result, NewKValueFromExpr(NewNotExpr(v.Offset)))
	state.Frame().NextInst()
	return nil
}

func (e *Executor) executeCast(state *ExecutionState, inst *Inst) error {
	v := state.Eval(inst.Operands[0])
	offset := NewCastExpr(v.Offset, inst.Width, inst.Signed)
	// A pointer truncated/extended at pointer width (e.g. a bitcast) is
	// still the same pointer; any other width change means the value
	// has gone through integer arithmetic LLVM wouldn't call a pointer
	// cast, so the segment is dropped.
	segment := v.Segment
	if inst.Width != e.PointerWidth() {
		segment = NewConstantExpr(0, Width64)
	}
	state.SetReg(inst.Result, KValue{Segment: segment, Offset: offset})
	state.Frame().NextInst()
	return nil
}

func (e *Executor) executeSelect(state *ExecutionState, inst *Inst) error {
	cond := state.Eval(inst.Operands[0])
	t := state.Eval(inst.Operands[1])
	f := state.Eval(inst.Operands[2])
	if c, ok := cond.Offset.(*ConstantExpr); ok {
		if c.IsTrue() {
			state.SetReg(inst.Result, t)
		} else {
			state.SetReg(inst.Result, f)
		}
		state.Frame().NextInst()
		return nil
	}
	// A symbolic select is not forked (only CondBr/Switch/IndirectBr
	// fork); instead it is lowered to the standard bit-trick encoding of
	// an ITE as arithmetic, since Expr has no native ternary node. The
	// result's segment degrades to the true arm's, matching the common
	// case where both arms of a pointer select agree.
	state.SetReg(inst.Result, KValue{Segment: t.Segment, Offset: selectExpr(cond.Offset, t.Offset, f.Offset)})
	state.Frame().NextInst()
	return nil
}

func selectExpr(cond, t, f Expr) Expr {
	width := ExprWidth(t)
	mask := NewCastExpr(cond, width, true) // sign-extend the 1-bit cond to a full mask
	return NewBinaryExpr(OR, NewBinaryExpr(AND, mask, t), NewBinaryExpr(AND, NewNotExpr(mask), f))
}

func (e *Executor) executeAlloca(state *ExecutionState, inst *Inst) error {
	size := state.Eval(inst.Operands[0]).Offset
	mo, _ := state.Alloc(size, memoryFlags{IsLocal: true, AllocSite: inst.SourceLoc})
	state.SetReg(inst.Result, NewKValue(NewConstantExpr(mo.Segment, Width64), NewConstantExpr(0, e.PointerWidth())))
	state.Frame().NextInst()
	return nil
}

func (e *Executor) executeGetElementPtr(state *ExecutionState, inst *Inst) error {
	base := state.Eval(inst.Operands[0])
	offset := base.Offset
	for _, off := range inst.Offsets {
		offset = NewBinaryExpr(ADD, offset, state.Eval(off).Offset)
	}
	state.SetReg(inst.Result, KValue{Segment: base.Segment, Offset: offset})
	state.Frame().NextInst()
	return nil
}

func (e *Executor) executeCondBr(ctx context.Context, state *ExecutionState, inst *Inst) ([]*ExecutionState, error) {
	cond := state.Eval(inst.Operands[0]).Offset
	fr, err := e.Fork(ctx, state, cond)
	if err != nil {
		return nil, err
	}
	var spawned []*ExecutionState
	if fr.True != nil {
		fr.True.Frame().Jump(inst.Targets[0])
	}
	if fr.False != nil {
		fr.False.Frame().Jump(inst.Targets[1])
		if fr.False != state {
			spawned = append(spawned, fr.False)
		}
	}
	return spawned, nil
}

func (e *Executor) executeSwitch(ctx context.Context, state *ExecutionState, inst *Inst) ([]*ExecutionState, error) {
	conds := switchConditions(state, inst)
	results, err := e.Branch(ctx, state, conds)
	if err != nil {
		return nil, err
	}

	var spawned []*ExecutionState
	for i, s := range results {
		if s == nil {
			continue
		}
		s.Frame().Jump(inst.Targets[i])
		if s != state {
			spawned = append(spawned, s)
		}
	}
	return spawned, nil
}

// switchConditions builds one boolean expression per target, covering
// both switch-lowering policies Config.SwitchLowering selects: per-case
// emits one condition per case value (several conditions may share a
// target), per-successor first ORs together every case sharing a target
// so Branch forks once per distinct successor instead of once per case
// value.
func switchConditions(state *ExecutionState, inst *Inst) []Expr {
	value := state.Eval(inst.Operands[0]).Offset

	if state.executor.Config.SwitchLowering == SwitchLoweringPerCase {
		conds := make([]Expr, len(inst.Targets))
		for i, c := range inst.Cases {
			conds[i+1] = NewBinaryExpr(EQ, value, state.Eval(c).Offset)
		}
		return conds
	}

	merged := make(map[BlockID]Expr)
	var order []BlockID
	for i, c := range inst.Cases {
		target := inst.Targets[i+1]
		cond := NewBinaryExpr(EQ, value, state.Eval(c).Offset)
		if existing, ok := merged[target]; ok {
			merged[target] = NewBinaryExpr(OR, existing, cond)
		} else {
			merged[target] = cond
			order = append(order, target)
		}
	}
	conds := make([]Expr, 0, len(order)+1)
	for _, t := range order {
		conds = append(conds, merged[t])
	}
	return conds
}

func (e *Executor) executeIndirectBr(ctx context.Context, state *ExecutionState, inst *Inst) ([]*ExecutionState, error) {
	addr := state.Eval(inst.Operands[0]).Offset
	conds := make([]Expr, len(inst.Targets))
	for i := range inst.Targets {
		target := NewConstantExpr(uint64(inst.Targets[i]), ExprWidth(addr))
		conds[i] = NewBinaryExpr(EQ, addr, target)
	}
	results, err := e.Branch(ctx, state, conds)
	if err != nil {
		return nil, err
	}
	var spawned []*ExecutionState
	for i, s := range results {
		if s == nil {
			continue
		}
		s.Frame().Jump(inst.Targets[i])
		if s != state {
			spawned = append(spawned, s)
		}
	}
	return spawned, nil
}

func (e *Executor) executePhi(state *ExecutionState, inst *Inst) error {
	f := state.Frame()
	for i, pred := range inst.Preds {
		if f.prev != nil && pred == f.prev.ID {
			state.SetReg(inst.Result, state.Eval(inst.Operands[i]))
			break
		}
	}
	f.NextInst()
	return nil
}

func (e *Executor) executeCall(ctx context.Context, state *ExecutionState, inst *Inst) error {
	args := make([]KValue, len(inst.Args))
	for i, a := range inst.Args {
		args[i] = state.Eval(a)
	}

	if inst.IsExternal {
		result, err := e.callExternal(ctx, state, inst, args)
		if err != nil {
			return err
		}
		if result != nil && !state.Terminated() {
			state.SetReg(inst.Result, *result)
		}
		if !state.Terminated() {
			state.Frame().NextInst()
		}
		return nil
	}

	fn, ok := e.Table.Functions[inst.CalleeName]
	if !ok {
		state.Terminate(NewProgramError(ProgramErrorExternal, inst.SourceLoc, "undefined function: %s", inst.CalleeName))
		return nil
	}

	if e.Config.MaxStackFrames > 0 && len(state.stack) >= e.Config.MaxStackFrames {
		state.Terminate(NewEngineCondition(EngineConditionMaxStackFrames, inst.SourceLoc, "max stack frames exceeded"))
		return nil
	}

	state.Frame().resultReg = inst.Result
	state.Push(fn)
	for i := 0; i < fn.NumParams && i < len(args); i++ {
		state.Frame().registers[i] = args[i]
	}
	return nil
}

func (e *Executor) callExternal(ctx context.Context, state *ExecutionState, inst *Inst, args []KValue) (*KValue, error) {
	if e.External == nil {
		state.Terminate(NewProgramError(ProgramErrorExternal, inst.SourceLoc, "no external dispatcher configured for %s", inst.CalleeName))
		return nil, nil
	}
	return e.External.Call(ctx, state, inst.CalleeName, args)
}

func (e *Executor) executeRet(state *ExecutionState, inst *Inst) error {
	var value *KValue
	if len(inst.Operands) > 0 {
		v := state.Eval(inst.Operands[0])
		value = &v
	}

	caller := state.CallerFrame()
	state.Pop()

	if caller != nil {
		if caller.resultReg >= 0 && value != nil {
			caller.registers[caller.resultReg] = *value
		}
		caller.resultReg = -1
		caller.NextInst()
	}
	return nil
}

// executeMemoryOperation implements the Load/Store primitive: a fast
// path that tries to resolve pointer to exactly one object and check its
// bounds without forking, falling back to a slow path that enumerates
// every aliasing object and forks on each candidate's bounds check in
// turn. Whatever state is left after the last candidate's bounds check
// terminates with an out-of-bound pointer error.
//
// The first (fast-path, or first slow-path) candidate is applied
// directly to state in place; every additional candidate is applied to a
// freshly forked-off sibling, returned via spawned so the caller can
// schedule it. result is the value a Load should bind into state's
// result register (nil for Store, or when state itself terminated).
func (e *Executor) executeMemoryOperation(ctx context.Context, state *ExecutionState, inst *Inst, pointer KValue, widthBits uint, storeValue *KValue) (spawned []*ExecutionState, result *KValue, err error) {
	sc := &solverContext{solver: e.Solver, ctx: ctx, state: state}
	widthBytes := uint64(widthBits) / 8

	rr, ok, err := state.addressSpace.ResolveOne(sc, pointer)
	if err != nil {
		return nil, nil, err
	}
	if ok {
		boundsOK, err := e.Solver.MustBeTrue(ctx, state, rr.Object.BoundsCheckPointer(pointer, widthBytes))
		if err != nil {
			return nil, nil, err
		}
		if boundsOK {
			v, terminated := e.applyMemoryOp(state, rr, pointer, widthBits, storeValue)
			if terminated {
				return nil, nil, nil
			}
			return nil, v, nil
		}
	}

	// Slow path: enumerate every aliasing object and fork on each
	// candidate's bounds check.
	rl, incomplete, err := state.addressSpace.Resolve(sc, pointer, e.Config.MaxResolutions)
	if err != nil {
		return nil, nil, err
	}
	if len(rl) == 0 {
		state.Terminate(NewProgramError(ProgramErrorPtr, inst.SourceLoc, "memory error: out of bound pointer"))
		return nil, nil, nil
	}
	if incomplete {
		log.Printf("[memop] resolution capped at %d candidates (pointer=%s)", e.Config.MaxResolutions, pointer)
	}

	residual := state
	for _, pair := range rl {
		if residual == nil {
			break
		}

		cond := pair.Object.BoundsCheckPointer(pointer, widthBytes)
		fr, err := e.Fork(ctx, residual, cond)
		if err != nil {
			return nil, nil, err
		}
		branch := fr.True
		residual = fr.False
		if branch != nil && branch != state {
			spawned = append(spawned, branch)
		}
		if branch == nil {
			continue
		}

		v, terminated := e.applyMemoryOp(branch, ResolveResult{Object: pair.Object, State: pair.State}, pointer, widthBits, storeValue)
		if terminated {
			continue
		}
		if branch == state {
			result = v
		}
	}
	if residual != nil {
		residual.Terminate(NewProgramError(ProgramErrorPtr, inst.SourceLoc, "memory error: out of bound pointer"))
		if residual != state {
			spawned = append(spawned, residual)
		}
	}

	return spawned, result, nil
}

// applyMemoryOp performs the actual read or write on rr once bounds are
// known to hold, terminating branch on a read-only violation.
func (e *Executor) applyMemoryOp(branch *ExecutionState, rr ResolveResult, pointer KValue, widthBits uint, storeValue *KValue) (result *KValue, terminated bool) {
	if storeValue != nil {
		if rr.State.IsReadOnly() {
			branch.Terminate(NewProgramError(ProgramErrorReadOnly, "", "write to read-only object #%d", rr.Object.ID))
			return nil, true
		}
		writeable := branch.addressSpace.GetWriteable(rr.Object, rr.State)
		writeable.Write(pointer.Offset, *storeValue, branch.executor.IsLittleEndian())
		return nil, false
	}

	v := rr.State.Read(pointer.Offset, widthBits, branch.executor.IsLittleEndian())
	return &v, false
}

func (e *Executor) executeLoad(ctx context.Context, state *ExecutionState, inst *Inst) ([]*ExecutionState, error) {
	pointer := state.Eval(inst.Operands[0])
	spawned, result, err := e.executeMemoryOperation(ctx, state, inst, pointer, inst.Width, nil)
	if err != nil {
		return nil, err
	}
	if !state.Terminated() {
		if result != nil {
			state.SetReg(inst.Result, *result)
		}
		state.Frame().NextInst()
	}
	for _, s := range spawned {
		if !s.Terminated() {
			s.Frame().NextInst()
		}
	}
	return spawned, nil
}

func (e *Executor) executeStore(ctx context.Context, state *ExecutionState, inst *Inst) ([]*ExecutionState, error) {
	pointer := state.Eval(inst.Operands[0])
	value := state.Eval(inst.Operands[1])
	spawned, _, err := e.executeMemoryOperation(ctx, state, inst, pointer, value.Width(), &value)
	if err != nil {
		return nil, err
	}
	if !state.Terminated() {
		state.Frame().NextInst()
	}
	for _, s := range spawned {
		if !s.Terminated() {
			s.Frame().NextInst()
		}
	}
	return spawned, nil
}
