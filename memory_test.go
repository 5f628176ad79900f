package symex_test

import (
	"testing"

	"github.com/segexec/symex"
)

func TestMemoryObject_ConcreteSize(t *testing.T) {
	mo := symex.NewMemoryObject(1, 1, symex.NewConstantExpr(16, symex.Width64))
	if mo.ConcreteSize() != 16 {
		t.Fatalf("expected concrete size 16, got %d", mo.ConcreteSize())
	}
}

func TestMemoryObject_BoundsCheckOffset(t *testing.T) {
	mo := symex.NewMemoryObject(1, 1, symex.NewConstantExpr(8, symex.Width64))

	inBounds := mo.BoundsCheckOffset(symex.NewConstantExpr(4, symex.Width64), 4)
	c, ok := inBounds.(*symex.ConstantExpr)
	if !ok || !c.IsTrue() {
		t.Fatalf("expected offset 4, width 4 within an 8-byte object to be in bounds, got %v", inBounds)
	}

	outOfBounds := mo.BoundsCheckOffset(symex.NewConstantExpr(6, symex.Width64), 4)
	c, ok = outOfBounds.(*symex.ConstantExpr)
	if !ok || c.IsTrue() {
		t.Fatalf("expected offset 6, width 4 within an 8-byte object to be out of bounds, got %v", outOfBounds)
	}
}

func TestMemoryObject_BoundsCheckPointer_SegmentMismatch(t *testing.T) {
	mo := symex.NewMemoryObject(1, 5, symex.NewConstantExpr(8, symex.Width64))

	wrongSegment := symex.NewKValue(symex.NewConstantExpr(6, symex.Width64), symex.NewConstantExpr(0, symex.Width64))
	check := mo.BoundsCheckPointer(wrongSegment, 4)
	c, ok := check.(*symex.ConstantExpr)
	if !ok || c.IsTrue() {
		t.Fatalf("expected a pointer into the wrong segment to fail the bounds check, got %v", check)
	}

	rightSegment := symex.NewKValue(symex.NewConstantExpr(5, symex.Width64), symex.NewConstantExpr(0, symex.Width64))
	check = mo.BoundsCheckPointer(rightSegment, 4)
	c, ok = check.(*symex.ConstantExpr)
	if !ok || !c.IsTrue() {
		t.Fatalf("expected a pointer into the right segment, in bounds, to pass, got %v", check)
	}
}

func TestObjectState_WriteThenReadRoundTrips(t *testing.T) {
	mo := symex.NewMemoryObject(1, 1, symex.NewConstantExpr(8, symex.Width64))
	os := symex.NewObjectState(mo, 0)
	os.InitializeToZero()

	value := symex.NewKValueFromExpr(symex.NewConstantExpr(0xdeadbeef, symex.Width32))
	os.Write(symex.NewConstantExpr(0, symex.Width64), value, true)

	got := os.Read(symex.NewConstantExpr(0, symex.Width64), symex.Width32, true)
	c, ok := got.Offset.(*symex.ConstantExpr)
	if !ok || c.Value != 0xdeadbeef {
		t.Fatalf("expected to read back the written value, got %v", got.Offset)
	}
}

func TestObjectState_PointerWidthWriteRecoversSegment(t *testing.T) {
	mo := symex.NewMemoryObject(1, 1, symex.NewConstantExpr(8, symex.Width64))
	os := symex.NewObjectState(mo, 0)
	os.InitializeToZero()

	ptr := symex.NewKValue(symex.NewConstantExpr(9, symex.Width64), symex.NewConstantExpr(16, symex.Width64))
	os.Write(symex.NewConstantExpr(0, symex.Width64), ptr, true)

	got := os.Read(symex.NewConstantExpr(0, symex.Width64), symex.Width64, true)
	seg, ok := got.Segment.(*symex.ConstantExpr)
	if !ok || seg.Value != 9 {
		t.Fatalf("expected the stored pointer's segment to be recovered on read, got %v", got.Segment)
	}
}

func TestObjectState_NonPointerWriteClearsSegmentPlane(t *testing.T) {
	mo := symex.NewMemoryObject(1, 1, symex.NewConstantExpr(8, symex.Width64))
	os := symex.NewObjectState(mo, 0)
	os.InitializeToZero()

	ptr := symex.NewKValue(symex.NewConstantExpr(9, symex.Width64), symex.NewConstantExpr(16, symex.Width64))
	os.Write(symex.NewConstantExpr(0, symex.Width64), ptr, true)

	plain := symex.NewKValueFromExpr(symex.NewConstantExpr(123, symex.Width64))
	os.Write(symex.NewConstantExpr(0, symex.Width64), plain, true)

	got := os.Read(symex.NewConstantExpr(0, symex.Width64), symex.Width64, true)
	seg, ok := got.Segment.(*symex.ConstantExpr)
	if !ok || seg.Value != 0 {
		t.Fatalf("expected overwriting a pointer with plain data to clear its segment, got %v", got.Segment)
	}
}

func TestObjectState_FlushAndLoadConcreteStore(t *testing.T) {
	mo := symex.NewMemoryObject(1, 1, symex.NewConstantExpr(4, symex.Width64))
	os := symex.NewObjectState(mo, 0)
	os.InitializeToZero()

	os.LoadFromConcreteStore([]byte{1, 2, 3, 4})

	dst := make([]byte, 4)
	os.FlushToConcreteStore(dst)
	if dst[0] != 1 || dst[1] != 2 || dst[2] != 3 || dst[3] != 4 {
		t.Fatalf("expected flushed bytes to match loaded bytes, got %v", dst)
	}
}
