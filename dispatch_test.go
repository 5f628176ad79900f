package symex_test

import (
	"context"
	"testing"

	"github.com/segexec/symex"
)

func TestExternalTable_DispatchesToRegisteredHandler(t *testing.T) {
	table := symex.NewExternalTable()
	var called string
	table.RegisterFunc("strlen", func(ctx context.Context, state *symex.ExecutionState, name string, args []symex.KValue) (*symex.KValue, error) {
		called = name
		v := symex.NewKValueFromExpr(symex.NewConstantExpr(3, symex.Width32))
		return &v, nil
	})

	states := newBareStates(t, 1)
	result, err := table.Call(context.Background(), states[0], "strlen", nil)
	if err != nil {
		t.Fatal(err)
	}
	if called != "strlen" {
		t.Fatalf("expected the registered handler to be invoked")
	}
	if result == nil {
		t.Fatalf("expected a non-nil result")
	}
}

func TestExternalTable_MissTerminatesState(t *testing.T) {
	table := symex.NewExternalTable()
	states := newBareStates(t, 1)

	result, err := table.Call(context.Background(), states[0], "unknown_fn", nil)
	if err != nil {
		t.Fatal(err)
	}
	if result != nil {
		t.Fatalf("expected a nil result on a dispatch miss")
	}
	if !states[0].Terminated() {
		t.Fatalf("expected a dispatch miss to terminate the state")
	}
	if states[0].Termination() == nil || states[0].Termination().ProgramError != symex.ProgramErrorExternal {
		t.Fatalf("expected a ProgramErrorExternal termination, got %v", states[0].Termination())
	}
}
