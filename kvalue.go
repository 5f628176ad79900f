package symex

import "fmt"

// KValue is a pointer-aware value: a pair of expressions (Segment, Offset).
// A non-pointer value always carries Segment zero. Arithmetic on KValues
// tracks which operand (if any) contributed a live pointer segment so that
// pointer provenance survives index computation, GEP-style offsetting, and
// masking, the way LLVM's inttoptr/ptrtoint boundary is crossed only
// explicitly while ordinary arithmetic on an already-segmented value stays
// segmented.
type KValue struct {
	Segment Expr // zero (a *ConstantExpr with Value==0) for non-pointer values
	Offset  Expr
}

// NewKValue returns a KValue with the given segment and offset.
func NewKValue(segment, offset Expr) KValue {
	return KValue{Segment: segment, Offset: offset}
}

// NewKValueFromExpr returns a non-pointer KValue wrapping expr.
func NewKValueFromExpr(expr Expr) KValue {
	return KValue{Segment: NewConstantExpr(0, Width64), Offset: expr}
}

// String returns the string representation of the value.
func (v KValue) String() string {
	return fmt.Sprintf("(kvalue %s %s)", v.Segment, v.Offset)
}

// IsPointer returns true if v carries a non-zero segment, i.e. it is known
// (syntactically, not just semantically) to originate from a pointer.
func (v KValue) IsPointer() bool {
	return !IsConstantZero(v.Segment)
}

// Width returns the bit width of the offset component.
func (v KValue) Width() uint {
	return ExprWidth(v.Offset)
}

// IsConstantZero returns true if expr is the constant zero.
func IsConstantZero(expr Expr) bool {
	c, ok := expr.(*ConstantExpr)
	return ok && c.Value == 0
}

// mergeSegments returns the segment carried by a KValue-ish operand when only
// one of lhs/rhs may be a pointer, panicking if both are non-zero distinct
// pointers (an arithmetic combination of two live pointers is never valid
// LLVM IR).
func mergeSegments(lhs, rhs Expr) Expr {
	lp, rp := !IsConstantZero(lhs), !IsConstantZero(rhs)
	if lp && rp {
		assert(CompareExpr(lhs, rhs) == 0, "kvalue: arithmetic between two distinct pointer segments")
		return lhs
	} else if lp {
		return lhs
	}
	return rhs
}

// Add returns the KValue sum of v and other. Pointer + integer preserves
// the pointer's segment (GEP-style index arithmetic); pointer + pointer is
// never valid and is rejected by mergeSegments.
func (v KValue) Add(other KValue) KValue {
	return KValue{
		Segment: mergeSegments(v.Segment, other.Segment),
		Offset:  NewBinaryExpr(ADD, v.Offset, other.Offset),
	}
}

// Sub returns the KValue difference of v and other. Pointer - pointer of
// the same segment yields a non-pointer distance, matching LLVM's
// ptrtoint-free pointer subtraction.
func (v KValue) Sub(other KValue) KValue {
	offset := NewBinaryExpr(SUB, v.Offset, other.Offset)
	if v.IsPointer() && other.IsPointer() {
		if CompareExpr(v.Segment, other.Segment) == 0 {
			return NewKValueFromExpr(offset)
		}
	}
	return KValue{Segment: mergeSegments(v.Segment, other.Segment), Offset: offset}
}

// And returns the KValue bitwise AND of v and other. A masked pointer
// (e.g. clearing low tag bits) is still treated as carrying the left
// operand's segment; this is a conservative "pointer-through-mask" rule,
// not a soundness guarantee about the masked address remaining in bounds.
func (v KValue) And(other KValue) KValue {
	return KValue{
		Segment: v.Segment,
		Offset:  NewBinaryExpr(AND, v.Offset, other.Offset),
	}
}

// Eq returns a boolean expression comparing v and other. Pointers into
// distinct live segments can never alias, so the comparison short-circuits
// to constant false without consulting the solver; same-segment or
// non-pointer operands fall through to ordinary offset comparison.
func (v KValue) Eq(other KValue) Expr {
	if v.IsPointer() && other.IsPointer() && CompareExpr(v.Segment, other.Segment) != 0 {
		return NewBoolConstantExpr(false)
	}
	return NewBinaryExpr(EQ, v.Offset, other.Offset)
}

// BinaryOp applies a general binary operator, routing to the
// segment-preserving rules for Add/Sub/And/Eq and otherwise stripping
// segments (an arithmetic op other than these never has a pointer result
// in LLVM IR; the inputs are expected to already be non-pointer by then).
func (v KValue) BinaryOp(op BinaryOp, other KValue) KValue {
	switch op {
	case ADD:
		return v.Add(other)
	case SUB:
		return v.Sub(other)
	case AND:
		return v.And(other)
	case EQ:
		return NewKValueFromExpr(v.Eq(other))
	default:
		return NewKValueFromExpr(NewBinaryExpr(op, v.Offset, other.Offset))
	}
}
