package symex

import "math/rand"

// Searcher selects which runnable state the scheduler advances next.
// Implementations decide the exploration order (depth-first, random,
// weighted) but never decide termination; that remains Executor's job.
type Searcher interface {
	// Add registers a newly created state as runnable.
	Add(state *ExecutionState)

	// Remove drops a state, e.g. once it has terminated.
	Remove(state *ExecutionState)

	// Next returns the next state to step, or ErrNoStateAvailable if
	// none remain.
	Next() (*ExecutionState, error)

	// Size returns the number of states currently tracked.
	Size() int
}

// DFSSearcher always returns the most recently added state, exploring
// one path to completion before backtracking to its sibling - the
// simplest strategy and the one this module defaults new executors to.
type DFSSearcher struct {
	stack []*ExecutionState
}

// NewDFSSearcher returns a new, empty depth-first searcher.
func NewDFSSearcher() *DFSSearcher {
	return &DFSSearcher{}
}

func (s *DFSSearcher) Add(state *ExecutionState) {
	s.stack = append(s.stack, state)
}

func (s *DFSSearcher) Remove(state *ExecutionState) {
	for i, st := range s.stack {
		if st == state {
			s.stack = append(s.stack[:i], s.stack[i+1:]...)
			return
		}
	}
}

func (s *DFSSearcher) Next() (*ExecutionState, error) {
	if len(s.stack) == 0 {
		return nil, ErrNoStateAvailable
	}
	return s.stack[len(s.stack)-1], nil
}

func (s *DFSSearcher) Size() int { return len(s.stack) }

// BFSSearcher always returns the earliest-added state still runnable,
// exploring every path at the current depth before going deeper.
type BFSSearcher struct {
	queue []*ExecutionState
}

// NewBFSSearcher returns a new, empty breadth-first searcher.
func NewBFSSearcher() *BFSSearcher {
	return &BFSSearcher{}
}

func (s *BFSSearcher) Add(state *ExecutionState) {
	s.queue = append(s.queue, state)
}

func (s *BFSSearcher) Remove(state *ExecutionState) {
	for i, st := range s.queue {
		if st == state {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}

func (s *BFSSearcher) Next() (*ExecutionState, error) {
	if len(s.queue) == 0 {
		return nil, ErrNoStateAvailable
	}
	return s.queue[0], nil
}

func (s *BFSSearcher) Size() int { return len(s.queue) }

// RandomSearcher picks a runnable state uniformly at random each time,
// the Go analogue of RandomSearcher's std::vector + drand48 pick.
type RandomSearcher struct {
	states []*ExecutionState
	rng    *rand.Rand
}

// NewRandomSearcher returns a new, empty random searcher seeded from
// seed.
func NewRandomSearcher(seed int64) *RandomSearcher {
	return &RandomSearcher{rng: rand.New(rand.NewSource(seed))}
}

func (s *RandomSearcher) Add(state *ExecutionState) {
	s.states = append(s.states, state)
}

func (s *RandomSearcher) Remove(state *ExecutionState) {
	for i, st := range s.states {
		if st == state {
			s.states = append(s.states[:i], s.states[i+1:]...)
			return
		}
	}
}

func (s *RandomSearcher) Next() (*ExecutionState, error) {
	if len(s.states) == 0 {
		return nil, ErrNoStateAvailable
	}
	return s.states[s.rng.Intn(len(s.states))], nil
}

func (s *RandomSearcher) Size() int { return len(s.states) }

// RandomPathSearcher walks the executor's fork tree from the root,
// choosing left or right with equal probability at each internal node,
// the Go analogue of RandomPathSearcher's weighted tree descent (every
// node here carries equal weight, since this module does not yet model
// per-state instruction-count weighting).
type RandomPathSearcher struct {
	tree *StateTree
	rng  *rand.Rand
}

// NewRandomPathSearcher returns a searcher that descends tree.
func NewRandomPathSearcher(tree *StateTree, seed int64) *RandomPathSearcher {
	return &RandomPathSearcher{tree: tree, rng: rand.New(rand.NewSource(seed))}
}

func (s *RandomPathSearcher) Add(state *ExecutionState)    {}
func (s *RandomPathSearcher) Remove(state *ExecutionState) {}

func (s *RandomPathSearcher) Next() (*ExecutionState, error) {
	if s.tree == nil || s.tree.Root == nil {
		return nil, ErrNoStateAvailable
	}
	n := s.tree.Root
	for n.State == nil {
		if n.Left == nil {
			n = n.Right
			continue
		}
		if n.Right == nil {
			n = n.Left
			continue
		}
		if s.rng.Intn(2) == 0 {
			n = n.Left
		} else {
			n = n.Right
		}
	}
	return n.State, nil
}

func (s *RandomPathSearcher) Size() int {
	if s.tree == nil || s.tree.Root == nil {
		return 0
	}
	return 1
}

// MultiSearcher round-robins across several underlying searchers,
// matching KLEE's -use-batching-search composition of strategies rather
// than picking exactly one.
type MultiSearcher struct {
	searchers []Searcher
	next      int
}

// NewMultiSearcher returns a searcher that round-robins across
// searchers, in order.
func NewMultiSearcher(searchers ...Searcher) *MultiSearcher {
	return &MultiSearcher{searchers: searchers}
}

func (s *MultiSearcher) Add(state *ExecutionState) {
	for _, sub := range s.searchers {
		sub.Add(state)
	}
}

func (s *MultiSearcher) Remove(state *ExecutionState) {
	for _, sub := range s.searchers {
		sub.Remove(state)
	}
}

func (s *MultiSearcher) Next() (*ExecutionState, error) {
	for i := 0; i < len(s.searchers); i++ {
		idx := (s.next + i) % len(s.searchers)
		st, err := s.searchers[idx].Next()
		if err == nil {
			s.next = (idx + 1) % len(s.searchers)
			return st, nil
		}
	}
	return nil, ErrNoStateAvailable
}

func (s *MultiSearcher) Size() int {
	if len(s.searchers) == 0 {
		return 0
	}
	return s.searchers[0].Size()
}
