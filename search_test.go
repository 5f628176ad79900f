package symex_test

import (
	"testing"

	"github.com/segexec/symex"
)

func newBareStates(t *testing.T, n int) []*symex.ExecutionState {
	t.Helper()
	table := retConstTable(0, symex.Width32)
	e := symex.NewExecutor(table, nil, symex.NewDFSSearcher(), nil)
	states := make([]*symex.ExecutionState, n)
	for i := range states {
		st, err := e.NewInitialState("")
		if err != nil {
			t.Fatal(err)
		}
		states[i] = st
	}
	return states
}

func TestDFSSearcher_LastInFirstOut(t *testing.T) {
	states := newBareStates(t, 3)
	s := symex.NewDFSSearcher()
	for _, st := range states {
		s.Add(st)
	}
	if s.Size() != 3 {
		t.Fatalf("expected size 3, got %d", s.Size())
	}
	next, err := s.Next()
	if err != nil {
		t.Fatal(err)
	}
	if next != states[2] {
		t.Fatalf("expected DFS to return the most recently added state")
	}
}

func TestDFSSearcher_Remove(t *testing.T) {
	states := newBareStates(t, 2)
	s := symex.NewDFSSearcher()
	s.Add(states[0])
	s.Add(states[1])
	s.Remove(states[1])
	next, err := s.Next()
	if err != nil {
		t.Fatal(err)
	}
	if next != states[0] {
		t.Fatalf("expected the remaining state after removal")
	}
	if s.Size() != 1 {
		t.Fatalf("expected size 1 after removal, got %d", s.Size())
	}
}

func TestBFSSearcher_FirstInFirstOut(t *testing.T) {
	states := newBareStates(t, 3)
	s := symex.NewBFSSearcher()
	for _, st := range states {
		s.Add(st)
	}
	next, err := s.Next()
	if err != nil {
		t.Fatal(err)
	}
	if next != states[0] {
		t.Fatalf("expected BFS to return the earliest added state")
	}
}

func TestSearcher_EmptyReturnsErrNoStateAvailable(t *testing.T) {
	searchers := []symex.Searcher{
		symex.NewDFSSearcher(),
		symex.NewBFSSearcher(),
		symex.NewRandomSearcher(1),
	}
	for _, s := range searchers {
		if _, err := s.Next(); err != symex.ErrNoStateAvailable {
			t.Fatalf("expected ErrNoStateAvailable from an empty searcher, got %v", err)
		}
	}
}

func TestRandomSearcher_AlwaysReturnsAMember(t *testing.T) {
	states := newBareStates(t, 5)
	s := symex.NewRandomSearcher(42)
	for _, st := range states {
		s.Add(st)
	}
	member := func(st *symex.ExecutionState) bool {
		for _, candidate := range states {
			if candidate == st {
				return true
			}
		}
		return false
	}
	for i := 0; i < 20; i++ {
		next, err := s.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !member(next) {
			t.Fatalf("random searcher returned a state outside its set")
		}
	}
}

func TestRandomPathSearcher_DescendsToALiveLeaf(t *testing.T) {
	states := newBareStates(t, 1)
	tree := symex.NewStateTree(states[0])
	s := symex.NewRandomPathSearcher(tree, 7)

	if s.Size() != 1 {
		t.Fatalf("expected size 1 for a single-leaf tree, got %d", s.Size())
	}
	next, err := s.Next()
	if err != nil {
		t.Fatal(err)
	}
	if next != states[0] {
		t.Fatalf("expected the only leaf to be returned")
	}
}

func TestRandomPathSearcher_EmptyTree(t *testing.T) {
	s := symex.NewRandomPathSearcher(nil, 7)
	if s.Size() != 0 {
		t.Fatalf("expected size 0 for a nil tree")
	}
	if _, err := s.Next(); err != symex.ErrNoStateAvailable {
		t.Fatalf("expected ErrNoStateAvailable for a nil tree, got %v", err)
	}
}

func TestMultiSearcher_RoundRobinsAcrossSubsearchers(t *testing.T) {
	states := newBareStates(t, 2)
	a, b := symex.NewDFSSearcher(), symex.NewDFSSearcher()
	a.Add(states[0])
	b.Add(states[1])

	m := symex.NewMultiSearcher(a, b)
	if m.Size() != 1 {
		t.Fatalf("expected Size to report the first subsearcher's size")
	}

	first, err := m.Next()
	if err != nil {
		t.Fatal(err)
	}
	if first != states[0] {
		t.Fatalf("expected the first round to come from the first subsearcher")
	}
}

func TestMultiSearcher_AddRemoveFansOutToEverySubsearcher(t *testing.T) {
	states := newBareStates(t, 1)
	a, b := symex.NewDFSSearcher(), symex.NewDFSSearcher()
	m := symex.NewMultiSearcher(a, b)

	m.Add(states[0])
	if a.Size() != 1 || b.Size() != 1 {
		t.Fatalf("expected Add to fan out to every subsearcher")
	}

	m.Remove(states[0])
	if a.Size() != 0 || b.Size() != 0 {
		t.Fatalf("expected Remove to fan out to every subsearcher")
	}
}
