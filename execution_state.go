package symex

import (
	"bytes"
	"fmt"
)

// ExecutionStatus is the current status of an ExecutionState.
type ExecutionStatus string

const (
	ExecutionStatusRunning    = ExecutionStatus("running")
	ExecutionStatusFinished   = ExecutionStatus("finished")
	ExecutionStatusTerminated = ExecutionStatus("terminated") // program error or engine condition
)

// ExecutionState represents one path under exploration: its call stack,
// its segmented address space, the path constraints collected to reach
// it, and the bookkeeping (seeds, coverage, fork lineage) the scheduler
// and fork engine need.
type ExecutionState struct {
	id int

	executor *Executor

	treeNode *StateTreeNode

	stack []*StackFrame

	status      ExecutionStatus
	termination *TerminationError

	addressSpace *AddressSpace

	constraints []Expr

	seeds SeedSet

	// forkDisabled, once set, makes every subsequent Fork collapse to a
	// single branch chosen by Fork's own rule instead of cloning,
	// independent of any global resource cap.
	forkDisabled bool

	depth             int // number of ancestor forks on this path
	weight            float64
	instructionCount int

	covered map[string]map[int]struct{} // file -> set of covered instruction indices, for basic statistics

	// nondet binds names (e.g. "argv", "errno") to the symbolic value
	// produced for them the first time they were requested, so that
	// repeated lookups of the same nondeterministic input return the
	// same expression rather than minting a fresh array every time.
	nondet map[string]Expr
}

// NewExecutionState returns a new, running state for fn, with a single
// stack frame pushed.
func NewExecutionState(executor *Executor, fn *Function) *ExecutionState {
	s := &ExecutionState{
		executor:     executor,
		status:       ExecutionStatusRunning,
		addressSpace: NewAddressSpace(),
		covered:      make(map[string]map[int]struct{}),
		nondet:       make(map[string]Expr),
		weight:       1,
	}
	s.Push(fn)
	return s
}

// ID returns an autoincrementing ID assigned by the executor.
func (s *ExecutionState) ID() int { return s.id }

// Executor returns the executor this state runs within.
func (s *ExecutionState) Executor() *Executor { return s.executor }

// Constraints returns the path constraints collected so far.
func (s *ExecutionState) Constraints() []Expr { return s.constraints }

// AddressSpace returns the state's memory.
func (s *ExecutionState) AddressSpace() *AddressSpace { return s.addressSpace }

// Depth returns the number of ancestor forks on this path.
func (s *ExecutionState) Depth() int { return s.depth }

// Status returns the current status of the state.
func (s *ExecutionState) Status() ExecutionStatus { return s.status }

// Termination returns the program error or engine condition that stopped
// the state, or nil if it is still running or finished cleanly.
func (s *ExecutionState) Termination() *TerminationError { return s.termination }

// Terminated returns true if the state has stopped running, for any
// reason (clean completion, program error, or engine condition).
func (s *ExecutionState) Terminated() bool { return s.status != ExecutionStatusRunning }

// Terminate marks the state as stopped due to err.
func (s *ExecutionState) Terminate(err *TerminationError) {
	s.status = ExecutionStatusTerminated
	s.termination = err
}

// Frame returns the current (innermost) stack frame, or nil if the call
// stack is empty.
func (s *ExecutionState) Frame() *StackFrame {
	if len(s.stack) == 0 {
		return nil
	}
	return s.stack[len(s.stack)-1]
}

// CallerFrame returns the caller of the current stack frame, or nil.
func (s *ExecutionState) CallerFrame() *StackFrame {
	if len(s.stack) <= 1 {
		return nil
	}
	return s.stack[len(s.stack)-2]
}

// CurrentInst returns the instruction the current frame is positioned at,
// or nil if the frame has run off the end of its block or there is no
// frame at all.
func (s *ExecutionState) CurrentInst() *Inst {
	if f := s.Frame(); f != nil {
		return f.Inst()
	}
	return nil
}

// Eval returns the KValue currently bound to operand, resolving constants
// directly and register references against the current frame.
func (s *ExecutionState) Eval(op Operand) KValue {
	if op.IsConst {
		return op.Const
	}
	f := s.Frame()
	assert(f != nil, "eval: no current frame")
	return f.registers[op.Reg]
}

// SetReg binds reg in the current frame to value.
func (s *ExecutionState) SetReg(reg int, value KValue) {
	s.Frame().registers[reg] = value
}

// Push adds a new frame for fn to the top of the call stack, materializing
// fn.Locals eagerly rather than lazily on first access.
func (s *ExecutionState) Push(fn *Function) {
	f := newStackFrame(s.Frame(), fn)

	for i, size := range fn.Locals {
		mo, _ := s.Alloc(size, memoryFlags{IsLocal: true})
		f.registers[fn.LocalRegisters[i]] = NewKValue(NewConstantExpr(mo.Segment, Width64), NewConstantExpr(0, s.executor.PointerWidth()))
		f.locals = append(f.locals, mo)
	}

	s.stack = append(s.stack, f)
}

// Pop removes the current frame, deallocating its local stack objects,
// and marks the state finished if no frames remain.
func (s *ExecutionState) Pop() {
	f := s.Frame()
	for _, mo := range f.locals {
		s.addressSpace.UnbindObject(mo)
	}
	s.stack = s.stack[:len(s.stack)-1]

	if len(s.stack) == 0 {
		s.status = ExecutionStatusFinished
	}
}

// Clone returns a deep-enough copy of the state: the call stack and
// constraint list are copied (so a write through the clone never affects
// the original), while the address space is cloned in O(1) via its own
// copy-on-write scheme.
func (s *ExecutionState) Clone() *ExecutionState {
	stack := make([]*StackFrame, len(s.stack))
	for i := range s.stack {
		stack[i] = s.stack[i].clone()
	}
	// Re-link caller pointers in the cloned stack.
	for i := 1; i < len(stack); i++ {
		stack[i].caller = stack[i-1]
	}

	constraints := make([]Expr, len(s.constraints))
	copy(constraints, s.constraints)

	nondet := make(map[string]Expr, len(s.nondet))
	for k, v := range s.nondet {
		nondet[k] = v
	}

	return &ExecutionState{
		executor:         s.executor,
		status:           s.status,
		termination:      s.termination,
		addressSpace:     s.addressSpace.Clone(),
		stack:            stack,
		constraints:      constraints,
		seeds:            append(SeedSet(nil), s.seeds...),
		forkDisabled:     s.forkDisabled,
		depth:            s.depth,
		weight:           s.weight,
		instructionCount: s.instructionCount,
		covered:          make(map[string]map[int]struct{}),
		nondet:           nondet,
	}
}

// LoadSeeds replaces the state's seed pool, e.g. right after
// NewInitialState when steering a fresh run from a previously recorded
// corpus of concrete inputs.
func (s *ExecutionState) LoadSeeds(seeds SeedSet) {
	s.seeds = seeds
}

// Seeds returns the state's currently assigned seed pool.
func (s *ExecutionState) Seeds() SeedSet {
	return s.seeds
}

// AddConstraint adds expr to the path constraint, splitting a top-level
// AND into its two conjuncts so later solver queries see a flatter
// constraint set. Panics if expr is a constant false, since a state
// should never be asked to assume an infeasible constraint (the fork
// engine is responsible for checking feasibility first).
func (s *ExecutionState) AddConstraint(expr Expr) {
	if c, ok := expr.(*ConstantExpr); ok {
		assert(c.IsTrue(), "execution state: added a constant-false constraint")
		return
	}
	if b, ok := expr.(*BinaryExpr); ok && b.Op == AND {
		s.AddConstraint(b.LHS)
		s.AddConstraint(b.RHS)
		return
	}
	s.constraints = append(s.constraints, expr)
}

// memoryFlags bundles the MemoryObject allocation-site flags Alloc
// accepts as a variadic-ish single struct argument.
type memoryFlags struct {
	IsLocal         bool
	IsGlobal        bool
	IsFixed         bool
	IsUserSpecified bool
	IsReadOnly      bool
	AllocSite       string
}

// Alloc creates a new MemoryObject of the given size and binds a
// zero-initialized ObjectState for it into this state's address space.
func (s *ExecutionState) Alloc(size Expr, flags memoryFlags) (*MemoryObject, *ObjectState) {
	id, segment := s.executor.nextObjectID()
	mo := &MemoryObject{
		ID:              id,
		Segment:         segment,
		Size:            size,
		AllocSite:       flags.AllocSite,
		IsLocal:         flags.IsLocal,
		IsGlobal:        flags.IsGlobal,
		IsFixed:         flags.IsFixed,
		IsUserSpecified: flags.IsUserSpecified,
		IsReadOnly:      flags.IsReadOnly,
	}
	os := NewObjectState(mo, s.addressSpace.cowKey)
	os.InitializeToZero()
	s.addressSpace.BindObject(mo, os)
	return mo, os
}

// Dump returns a human-readable rendering of the state, for debugging.
func (s *ExecutionState) Dump() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "EXECUTION STATE #%d\n", s.id)
	fmt.Fprintf(&buf, "status=%s\n", s.status)
	if s.termination != nil {
		fmt.Fprintf(&buf, "termination=%s\n", s.termination.Error())
	}
	fmt.Fprintln(&buf, "")
	for i := len(s.stack) - 1; i >= 0; i-- {
		fmt.Fprintf(&buf, "== FRAME #%d (%s)\n", i, s.stack[i].fn.Name)
	}
	fmt.Fprintln(&buf, "")
	fmt.Fprintln(&buf, "== CONSTRAINTS")
	for i, expr := range s.constraints {
		fmt.Fprintf(&buf, "%d. %s\n", i, expr.String())
	}
	return buf.String()
}

// StackFrame represents one call's local state: its registers, its
// position in the instruction stream, and the memory objects it owns.
type StackFrame struct {
	fn     *Function
	caller *StackFrame

	registers []KValue
	locals    []*MemoryObject

	block *BasicBlock
	prev  *BasicBlock
	pc    int

	// resultReg is the register in this frame that a pending call's
	// return value should be bound to once the callee returns;
	// -1 when no call is pending (i.e. this frame is not currently
	// waiting on a callee it just pushed).
	resultReg int
}

// newStackFrame returns a new frame for fn, positioned at its entry
// block.
func newStackFrame(caller *StackFrame, fn *Function) *StackFrame {
	return &StackFrame{
		fn:        fn,
		caller:    caller,
		registers: make([]KValue, fn.NumRegisters),
		block:     fn.Blocks[0],
		pc:        0,
		resultReg: -1,
	}
}

// Inst returns the instruction the frame is currently positioned at, or
// nil if execution has fallen off the end of the block.
func (f *StackFrame) Inst() *Inst {
	if f.block == nil || f.pc < 0 || f.pc >= len(f.block.Insts) {
		return nil
	}
	return f.block.Insts[f.pc]
}

// NextInst advances the frame's program counter by one instruction.
func (f *StackFrame) NextInst() {
	f.pc++
}

// Jump transfers control to block id within the same function.
func (f *StackFrame) Jump(id BlockID) {
	f.prev, f.block, f.pc = f.block, f.fn.Block(id), 0
}

// clone returns a copy of the frame with its own register file and local
// object list (locals are *MemoryObject pointers, shared with the
// original until either state writes through its own address space's
// copy-on-write gate).
func (f *StackFrame) clone() *StackFrame {
	other := *f
	other.registers = make([]KValue, len(f.registers))
	copy(other.registers, f.registers)
	other.locals = make([]*MemoryObject, len(f.locals))
	copy(other.locals, f.locals)
	return &other
}
