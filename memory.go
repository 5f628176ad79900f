package symex

import "fmt"

// MemoryObject describes a single allocation: its identity, its segment
// in the address space, its size, and the allocation-site flags needed to
// decide how it may be read, written, or freed.
type MemoryObject struct {
	ID      uint64
	Segment uint64
	Size    Expr // width, in bytes; usually a *ConstantExpr but may be symbolic (VLA)

	AllocSite string // textual description of the allocating instruction, for diagnostics

	IsLocal         bool // stack allocation, freed automatically on frame pop
	IsGlobal        bool // module-level allocation
	IsFixed         bool // allocated at a caller-specified concrete address
	IsUserSpecified bool // object created directly by a test/seed, not by the program
	IsReadOnly      bool // writes are rejected (e.g. string literals, .rodata)

	refCount int
}

// NewMemoryObject returns a new object with the given id/segment/size.
func NewMemoryObject(id, segment uint64, size Expr) *MemoryObject {
	return &MemoryObject{ID: id, Segment: segment, Size: size}
}

// String returns the string representation of the object.
func (mo *MemoryObject) String() string {
	return fmt.Sprintf("(object #%d seg=%d size=%s)", mo.ID, mo.Segment, mo.Size)
}

// ConcreteSize returns the object's size as a concrete byte count.
// Panics if Size is symbolic; callers on the fast paths only call this
// after confirming concreteness.
func (mo *MemoryObject) ConcreteSize() uint64 {
	c, ok := mo.Size.(*ConstantExpr)
	assert(ok, "object #%d: size is symbolic", mo.ID)
	return c.Value
}

// BoundsCheckOffset returns a boolean expression that is true iff offset
// (a byte offset into the object, possibly with a trailing access width
// in bytes) is entirely within [0, Size).
func (mo *MemoryObject) BoundsCheckOffset(offset Expr, widthBytes uint64) Expr {
	size := mo.Size
	width := ExprWidth(offset)
	if ExprWidth(size) != width {
		size = newZExtExpr(size, width)
	}
	upper := NewBinaryExpr(ADD, offset, NewConstantExpr(widthBytes, width))
	return NewBinaryExpr(AND,
		NewBinaryExpr(ULE, offset, upper), // guards against offset+width overflow
		NewBinaryExpr(ULE, upper, size))
}

// BoundsCheckPointer returns a boolean expression that is true iff
// pointer's offset, for a read/write of widthBytes bytes, stays within
// this object, and the pointer's segment actually names this object.
func (mo *MemoryObject) BoundsCheckPointer(pointer KValue, widthBytes uint64) Expr {
	segMatch := NewBinaryExpr(EQ, pointer.Segment, NewConstantExpr(mo.Segment, ExprWidth(pointer.Segment)))
	return NewBinaryExpr(AND, segMatch, mo.BoundsCheckOffset(pointer.Offset, widthBytes))
}

// ObjectState holds the data bound to a MemoryObject: a single KValue-aware
// Array carrying both the offset plane (ordinary byte contents) and,
// lazily, the segment plane that lets a load of a previously stored
// pointer recover its segment instead of degrading to a plain integer. See
// Array.SelectKValue/StoreKValue for how the two planes interact.
type ObjectState struct {
	object *MemoryObject

	bytes *Array

	readOnly bool

	// copyOnWriteOwner pins this state to the AddressSpace generation
	// that is allowed to mutate it in place. See AddressSpace.cowKey.
	copyOnWriteOwner uint64
}

// NewObjectState returns a new ObjectState for mo with no bytes written
// yet, so every byte reads as symbolic until InitializeToZero,
// InitializeToRandom or a write fills it.
func NewObjectState(mo *MemoryObject, owner uint64) *ObjectState {
	os := &ObjectState{
		object:           mo,
		bytes:            NewArray(mo.ID, uint(mo.ConcreteSize())),
		readOnly:         mo.IsReadOnly,
		copyOnWriteOwner: owner,
	}
	return os
}

// Object returns the memory object this state is bound to.
func (os *ObjectState) Object() *MemoryObject { return os.object }

// IsReadOnly returns true if writes to this object are rejected.
func (os *ObjectState) IsReadOnly() bool { return os.readOnly }

// SetReadOnly marks the object as read-only (or writable again).
func (os *ObjectState) SetReadOnly(v bool) { os.readOnly = v }

// InitializeToZero fills every byte with the constant zero. Panics if any
// writes have already been made, matching the array's own zero() guard.
func (os *ObjectState) InitializeToZero() {
	os.bytes.zero()
}

// InitializeToRandom fills every byte with a concrete byte returned by
// randByte; used for uninitialized stack/heap memory under
// -seed-mode-style testing where byte-exact determinism is desired
// without adding the bytes as symbolic inputs.
func (os *ObjectState) InitializeToRandom(randByte func() byte) {
	for i := uint64(0); i < uint64(os.bytes.Size); i++ {
		os.bytes.storeByte(NewConstantExpr64(i), NewConstantExpr(uint64(randByte()), Width8))
	}
}

// clone returns a deep-enough copy of os for a new copy-on-write owner.
// The backing array is shared structurally (Array is itself a COW/
// update-list structure, and Array.Clone duplicates both of its planes)
// but the ObjectState shell and owner tag are distinct, matching
// getWriteable's "clone, then mutate the clone in place" contract.
func (os *ObjectState) clone(owner uint64) *ObjectState {
	return &ObjectState{
		object:           os.object,
		bytes:            os.bytes.Clone(),
		readOnly:         os.readOnly,
		copyOnWriteOwner: owner,
	}
}

// Read returns the KValue read from byte offset for width bits.
func (os *ObjectState) Read(offset Expr, width uint, isLittleEndian bool) KValue {
	return os.bytes.SelectKValue(offset, width, isLittleEndian)
}

// Write stores value at byte offset, updating both of the array's planes
// through StoreKValue.
func (os *ObjectState) Write(offset Expr, value KValue, isLittleEndian bool) {
	os.bytes = os.bytes.StoreKValue(offset, value, isLittleEndian)
}

// FlushToConcreteStore writes os's concrete bytes into dst, starting at
// dst[0]. Used by CopyOutConcretes to marshal state into the host's
// mirrored memory for an external call. Panics if any byte in range is
// symbolic; callers must only invoke this after confirming concreteness.
func (os *ObjectState) FlushToConcreteStore(dst []byte) {
	for i := range dst {
		b := os.bytes.selectByte(NewConstantExpr64(uint64(i)))
		c, ok := b.(*ConstantExpr)
		assert(ok, "object #%d: byte %d is symbolic, cannot flush to concrete store", os.object.ID, i)
		dst[i] = byte(c.Value)
	}
}

// LoadFromConcreteStore overwrites os's bytes with src, used by
// CopyInConcretes after an external call may have mutated
// memory outside this module's control.
func (os *ObjectState) LoadFromConcreteStore(src []byte) {
	for i, b := range src {
		os.bytes.storeByte(NewConstantExpr64(uint64(i)), NewConstantExpr(uint64(b), 8))
	}
}
