package symex_test

import (
	"testing"

	"github.com/segexec/symex"
)

func constKV(v uint64, width uint) symex.KValue {
	return symex.NewKValueFromExpr(symex.NewConstantExpr(v, width))
}

func pointerKV(segment, offset uint64) symex.KValue {
	return symex.NewKValue(symex.NewConstantExpr(segment, symex.Width64), symex.NewConstantExpr(offset, symex.Width64))
}

func TestKValue_IsPointer(t *testing.T) {
	if constKV(5, symex.Width32).IsPointer() {
		t.Fatalf("expected a zero-segment value to not be a pointer")
	}
	if !pointerKV(1, 0).IsPointer() {
		t.Fatalf("expected a non-zero-segment value to be a pointer")
	}
}

func TestKValue_Add_PointerPlusIntegerPreservesSegment(t *testing.T) {
	p := pointerKV(7, 4)
	i := constKV(8, symex.Width64)

	sum := p.Add(i)
	if !sum.IsPointer() {
		t.Fatalf("expected pointer+integer to remain a pointer")
	}
	if symex.CompareExpr(sum.Segment, p.Segment) != 0 {
		t.Fatalf("expected the pointer's segment to be preserved")
	}
}

func TestKValue_Sub_SameSegmentPointersYieldNonPointerDistance(t *testing.T) {
	p1 := pointerKV(3, 20)
	p2 := pointerKV(3, 12)

	diff := p1.Sub(p2)
	if diff.IsPointer() {
		t.Fatalf("expected pointer-pointer of the same segment to be a plain distance")
	}
}

func TestKValue_Sub_PointerMinusIntegerPreservesSegment(t *testing.T) {
	p1 := pointerKV(3, 20)
	p2 := constKV(12, symex.Width64)

	diff := p1.Sub(p2)
	if !diff.IsPointer() {
		t.Fatalf("expected pointer-integer to remain a pointer")
	}
}

func TestKValue_Eq_DistinctLiveSegmentsShortCircuitToFalse(t *testing.T) {
	p1 := pointerKV(1, 0)
	p2 := pointerKV(2, 0)

	eq := p1.Eq(p2)
	c, ok := eq.(*symex.ConstantExpr)
	if !ok || c.IsTrue() {
		t.Fatalf("expected pointers into distinct segments to compare constant-false, got %v", eq)
	}
}

func TestKValue_Eq_SameSegmentFallsThroughToOffsetComparison(t *testing.T) {
	p1 := pointerKV(1, 4)
	p2 := pointerKV(1, 4)

	eq := p1.Eq(p2)
	c, ok := eq.(*symex.ConstantExpr)
	if !ok || !c.IsTrue() {
		t.Fatalf("expected equal offsets into the same segment to compare true, got %v", eq)
	}
}

func TestKValue_BinaryOp_NonPointerOpStripsSegment(t *testing.T) {
	p := pointerKV(5, 10)
	i := constKV(2, symex.Width64)

	result := p.BinaryOp(symex.MUL, i)
	if result.IsPointer() {
		t.Fatalf("expected a non-pointer-preserving op to strip the segment")
	}
}

func TestKValue_And_PreservesLeftSegment(t *testing.T) {
	p := pointerKV(6, 0xff)
	mask := constKV(0xf0, symex.Width64)

	result := p.And(mask)
	if !result.IsPointer() {
		t.Fatalf("expected And to preserve the left operand's segment")
	}
}
