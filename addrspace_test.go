package symex_test

import (
	"testing"

	"github.com/segexec/symex"
)

func TestAddressSpace_BindFindUnbind(t *testing.T) {
	as := symex.NewAddressSpace()
	mo := symex.NewMemoryObject(1, 100, symex.NewConstantExpr(8, symex.Width64))
	os := symex.NewObjectState(mo, 0)

	as.BindObject(mo, os)
	if as.FindObject(mo) != os {
		t.Fatalf("expected FindObject to return the bound state")
	}
	if as.FindObjectBySegment(100) != mo {
		t.Fatalf("expected FindObjectBySegment to find the object by its segment")
	}

	as.UnbindObject(mo)
	if as.FindObject(mo) != nil {
		t.Fatalf("expected FindObject to return nil after unbind")
	}
	if as.FindObjectBySegment(100) != nil {
		t.Fatalf("expected FindObjectBySegment to return nil after unbind")
	}
}

func TestAddressSpace_Clone_IsolatesWrites(t *testing.T) {
	as := symex.NewAddressSpace()
	mo := symex.NewMemoryObject(1, 100, symex.NewConstantExpr(8, symex.Width64))
	os := symex.NewObjectState(mo, 0)
	os.InitializeToZero()
	as.BindObject(mo, os)

	clone := as.Clone()

	writeable := clone.GetWriteable(mo, clone.FindObject(mo))
	writeable.Write(symex.NewConstantExpr(0, symex.Width64), symex.NewKValueFromExpr(symex.NewConstantExpr(99, symex.Width32)), true)

	original := as.FindObject(mo).Read(symex.NewConstantExpr(0, symex.Width64), symex.Width32, true)
	c, ok := original.Offset.(*symex.ConstantExpr)
	if !ok || c.Value != 0 {
		t.Fatalf("expected the original address space to be unaffected by a write through its clone, got %v", original.Offset)
	}

	mutated := clone.FindObject(mo).Read(symex.NewConstantExpr(0, symex.Width64), symex.Width32, true)
	c, ok = mutated.Offset.(*symex.ConstantExpr)
	if !ok || c.Value != 99 {
		t.Fatalf("expected the clone to see its own write, got %v", mutated.Offset)
	}
}

func TestAddressSpace_GetWriteable_SameGenerationReturnsSameObject(t *testing.T) {
	as := symex.NewAddressSpace()
	mo := symex.NewMemoryObject(1, 100, symex.NewConstantExpr(8, symex.Width64))
	os := symex.NewObjectState(mo, 0)
	as.BindObject(mo, os)

	w1 := as.GetWriteable(mo, as.FindObject(mo))
	w2 := as.GetWriteable(mo, as.FindObject(mo))
	if w1 != w2 {
		t.Fatalf("expected GetWriteable to return the same object within one generation")
	}
}
