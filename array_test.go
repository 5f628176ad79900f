package symex_test

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/go-cmp/cmp"

	"github.com/segexec/symex"
)

func TestArray_StoreSelect_RoundTrips(t *testing.T) {
	a := symex.NewArray(1, 8)
	a = a.Store(symex.NewConstantExpr(0, symex.Width64), symex.NewConstantExpr(0xAABBCCDD, symex.Width32), true)

	got, ok := a.Select(symex.NewConstantExpr(0, symex.Width64), symex.Width32, true).(*symex.ConstantExpr)
	if !ok {
		t.Fatalf("expected constant expr, got %s", spew.Sdump(a))
	}
	if got.Value != 0xAABBCCDD {
		t.Fatalf("expected 0xAABBCCDD, got %#x", got.Value)
	}
}

func TestArray_Select_EndiannessFlipsByteOrder(t *testing.T) {
	little := symex.NewArray(1, 4)
	little = little.Store(symex.NewConstantExpr(0, symex.Width64), symex.NewConstantExpr(0xAABBCCDD, symex.Width32), true)
	big := symex.NewArray(1, 4)
	big = big.Store(symex.NewConstantExpr(0, symex.Width64), symex.NewConstantExpr(0xAABBCCDD, symex.Width32), false)

	littleByte0 := little.Select(symex.NewConstantExpr(0, symex.Width64), symex.Width8, true).(*symex.ConstantExpr)
	bigByte0 := big.Select(symex.NewConstantExpr(0, symex.Width64), symex.Width8, false).(*symex.ConstantExpr)

	if littleByte0.Value != 0xDD {
		t.Fatalf("expected little-endian byte 0 to be the LSB 0xDD, got %#x", littleByte0.Value)
	}
	if bigByte0.Value != 0xAA {
		t.Fatalf("expected big-endian byte 0 to be the MSB 0xAA, got %#x", bigByte0.Value)
	}
}

func TestArray_SelectKValue_NonPointerWriteCarriesZeroSegment(t *testing.T) {
	a := symex.NewArray(1, 8)
	a = a.StoreKValue(symex.NewConstantExpr(0, symex.Width64), symex.NewKValueFromExpr(symex.NewConstantExpr(42, symex.Width64)), true)

	kv := a.SelectKValue(symex.NewConstantExpr(0, symex.Width64), symex.Width64, true)
	if kv.IsPointer() {
		t.Fatalf("expected a plain integer write to never read back as a pointer, got %s", kv)
	}
}

func TestArray_StoreKValue_PointerWidthWriteRecoversSegmentOnRead(t *testing.T) {
	a := symex.NewArray(1, 8)
	ptr := symex.NewKValue(symex.NewConstantExpr(7, symex.Width64), symex.NewConstantExpr(128, symex.Width64))
	a = a.StoreKValue(symex.NewConstantExpr(0, symex.Width64), ptr, true)

	kv := a.SelectKValue(symex.NewConstantExpr(0, symex.Width64), symex.Width64, true)
	if diff := cmp.Diff(kv.Offset, ptr.Offset); diff != "" {
		t.Fatalf("offset mismatch (-got +want):\n%s", diff)
	}
	seg, ok := kv.Segment.(*symex.ConstantExpr)
	if !ok || seg.Value != 7 {
		t.Fatalf("expected segment 7 recovered from the stored pointer, got %s", spew.Sdump(kv.Segment))
	}
	if !a.HasPointerProvenance() {
		t.Fatalf("expected the array to report pointer provenance once a segment is stored")
	}
}

func TestArray_StoreKValue_NarrowerWriteClearsTouchedSegmentBytes(t *testing.T) {
	a := symex.NewArray(1, 8)
	ptr := symex.NewKValue(symex.NewConstantExpr(7, symex.Width64), symex.NewConstantExpr(128, symex.Width64))
	a = a.StoreKValue(symex.NewConstantExpr(0, symex.Width64), ptr, true)

	// A byte-sized write over the first byte of the stored pointer destroys
	// whatever pointer-ness lived in the bytes it actually touches.
	a = a.StoreKValue(symex.NewConstantExpr(0, symex.Width64), symex.NewKValueFromExpr(symex.NewConstantExpr(0xFF, symex.Width8)), true)

	kv := a.SelectKValue(symex.NewConstantExpr(0, symex.Width64), symex.Width64, true)
	if kv.IsPointer() {
		t.Fatalf("expected the partial overwrite to clear the pointer's segment, got %s", kv)
	}
}

func TestArray_SelectKValue_NarrowReadNeverConsultsSegmentPlane(t *testing.T) {
	a := symex.NewArray(1, 8)
	ptr := symex.NewKValue(symex.NewConstantExpr(7, symex.Width64), symex.NewConstantExpr(128, symex.Width64))
	a = a.StoreKValue(symex.NewConstantExpr(0, symex.Width64), ptr, true)

	kv := a.SelectKValue(symex.NewConstantExpr(0, symex.Width64), symex.Width32, true)
	if kv.IsPointer() {
		t.Fatalf("expected a 32-bit slice of a pointer to read as a plain integer, got %s", kv)
	}
}

func TestArray_Clone_SegmentPlanesAreIndependent(t *testing.T) {
	a := symex.NewArray(1, 8)
	ptr := symex.NewKValue(symex.NewConstantExpr(7, symex.Width64), symex.NewConstantExpr(0, symex.Width64))
	a = a.StoreKValue(symex.NewConstantExpr(0, symex.Width64), ptr, true)

	clone := a.Clone()
	clone = clone.StoreKValue(symex.NewConstantExpr(0, symex.Width64), symex.NewKValueFromExpr(symex.NewConstantExpr(9, symex.Width64)), true)

	original := a.SelectKValue(symex.NewConstantExpr(0, symex.Width64), symex.Width64, true)
	if !original.IsPointer() {
		t.Fatalf("expected writing through the clone to leave the original's segment plane untouched")
	}
}

func TestArray_Equal_DifferentSizesAreNeverEqual(t *testing.T) {
	a := symex.NewArray(1, 4)
	b := symex.NewArray(2, 8)
	if !symex.IsConstantFalse(a.Equal(b)) {
		t.Fatalf("expected arrays of different sizes to compare unequal")
	}
}

func TestArray_Equal_ConcreteMismatchShortCircuits(t *testing.T) {
	a := symex.NewArray(1, 1)
	a = a.Store(symex.NewConstantExpr(0, symex.Width64), symex.NewConstantExpr(1, symex.Width8), true)
	b := symex.NewArray(2, 1)
	b = b.Store(symex.NewConstantExpr(0, symex.Width64), symex.NewConstantExpr(2, symex.Width8), true)

	if !symex.IsConstantFalse(a.Equal(b)) {
		t.Fatalf("expected arrays with differing concrete bytes to compare unequal")
	}
	if !symex.IsConstantTrue(a.NotEqual(b)) {
		t.Fatalf("expected NotEqual to mirror Equal's short circuit")
	}
}

func TestCompareArray_OrdersByIDThenSize(t *testing.T) {
	small := symex.NewArray(1, 4)
	large := symex.NewArray(1, 8)
	if symex.CompareArray(small, large) >= 0 {
		t.Fatalf("expected the smaller array to sort first")
	}

	lower := symex.NewArray(1, 4)
	higher := symex.NewArray(2, 4)
	if symex.CompareArray(lower, higher) >= 0 {
		t.Fatalf("expected the lower id to sort first")
	}
}
