package symex

import (
	"log"

	"github.com/benbjohnson/immutable"
)

// ObjectPair bundles a MemoryObject with its current ObjectState.
type ObjectPair struct {
	Object *MemoryObject
	State  *ObjectState
}

// ResolutionList is a set of candidate objects a symbolic pointer may
// resolve to.
type ResolutionList []ObjectPair

// uint64Comparer orders uint64 keys. Implements immutable.Comparer.
type uint64Comparer struct{}

func (c *uint64Comparer) Compare(a, b interface{}) int {
	x, y := a.(uint64), b.(uint64)
	if x < y {
		return -1
	} else if x > y {
		return 1
	}
	return 0
}

// AddressSpace is the persistent, copy-on-write mapping from memory
// objects to their current state that forms one ExecutionState's view of
// memory. Forking a state clones the AddressSpace in O(1) (the two
// persistent maps are shared structurally); subsequent writes to either
// copy clone only the node path they touch.
//
// \invariant forall os bound in objects, os.copyOnWriteOwner <= cowKey
type AddressSpace struct {
	cowKey uint64

	objects    *immutable.SortedMap // MemoryObject.ID(uint64) -> *ObjectState
	segmentMap *immutable.SortedMap // segment(uint64) -> *MemoryObject

	// concreteAddressMap mirrors every concretely-backed object's host
	// memory address for marshalling into/out of external calls. It is
	// not persistent: KLEE keeps the equivalent map as plain std::map
	// too, since external-call marshalling always happens against the
	// single currently-running state, never against a forked copy.
	concreteAddressMap map[uint64]uint64
}

// NewAddressSpace returns a new, empty address space.
func NewAddressSpace() *AddressSpace {
	return &AddressSpace{
		cowKey:             1,
		objects:            immutable.NewSortedMap(&uint64Comparer{}),
		segmentMap:         immutable.NewSortedMap(&uint64Comparer{}),
		concreteAddressMap: make(map[uint64]uint64),
	}
}

// Clone returns an O(1) copy of the address space with a fresh cowKey, so
// that objects touched by either the original or the clone after this
// point are copied rather than mutated in place.
func (as *AddressSpace) Clone() *AddressSpace {
	as.cowKey++
	return &AddressSpace{
		cowKey:             as.cowKey,
		objects:            as.objects,
		segmentMap:         as.segmentMap,
		concreteAddressMap: copyUint64Map(as.concreteAddressMap),
	}
}

func copyUint64Map(m map[uint64]uint64) map[uint64]uint64 {
	other := make(map[uint64]uint64, len(m))
	for k, v := range m {
		other[k] = v
	}
	return other
}

// BindObject adds a binding to the address space.
func (as *AddressSpace) BindObject(mo *MemoryObject, os *ObjectState) {
	os.copyOnWriteOwner = as.cowKey
	as.objects = as.objects.Set(mo.ID, os)
	as.segmentMap = as.segmentMap.Set(mo.Segment, mo)
	log.Printf("[addrspace] bind object #%d segment=%d size=%s", mo.ID, mo.Segment, mo.Size)
}

// UnbindObject removes a binding from the address space.
func (as *AddressSpace) UnbindObject(mo *MemoryObject) {
	as.objects = as.objects.Delete(mo.ID)
	as.segmentMap = as.segmentMap.Delete(mo.Segment)
	delete(as.concreteAddressMap, mo.Segment)
}

// FindObject looks up the current binding for mo, or nil if unbound.
func (as *AddressSpace) FindObject(mo *MemoryObject) *ObjectState {
	v, ok := as.objects.Get(mo.ID)
	if !ok {
		return nil
	}
	return v.(*ObjectState)
}

// FindObjectBySegment looks up the MemoryObject currently bound to a
// concrete segment id, or nil if no object owns that segment.
func (as *AddressSpace) FindObjectBySegment(segment uint64) *MemoryObject {
	v, ok := as.segmentMap.Get(segment)
	if !ok {
		return nil
	}
	return v.(*MemoryObject)
}

// GetWriteable returns an ObjectState suitable for in-place mutation,
// cloning os first if the address space does not already own it at the
// current cowKey generation. This is the sole gate through which any
// in-place mutation of object bytes is allowed to happen.
func (as *AddressSpace) GetWriteable(mo *MemoryObject, os *ObjectState) *ObjectState {
	if os.copyOnWriteOwner == as.cowKey {
		return os
	}
	writeable := os.clone(as.cowKey)
	as.objects = as.objects.Set(mo.ID, writeable)
	return writeable
}

// ResolveResult is the outcome of resolving a pointer to exactly one
// object, used by ResolveOne.
type ResolveResult struct {
	Object *MemoryObject
	State  *ObjectState
}

// ResolveOne attempts a cheap, frequently-exact resolution of pointer to
// a single object: first by reading the pointer's segment directly (the
// fast, common case when the segment is already concrete or has been
// concretized by a prior fork), then — if the segment itself is symbolic —
// by asking the solver for one satisfying sample segment and checking
// that every other live object's segment is provably excluded.
//
// Returns (result, true, nil) on success, (zero, false, nil) when no
// object can contain the pointer, and (zero, false, err) if the solver
// could not decide in time.
func (as *AddressSpace) ResolveOne(ctx *solverContext, pointer KValue) (ResolveResult, bool, error) {
	// Fast path: segment is already a concrete constant.
	if c, ok := pointer.Segment.(*ConstantExpr); ok {
		mo := as.FindObjectBySegment(c.Value)
		if mo == nil {
			return ResolveResult{}, false, nil
		}
		return ResolveResult{Object: mo, State: as.FindObject(mo)}, true, nil
	}

	// Slow path: ask the solver for one satisfying segment value, look up
	// the object bound to that segment, then check that the path
	// constraints force the pointer's segment to that value.
	value, err := ctx.solver.GetValue(ctx.ctx, ctx.state, pointer.Segment)
	if err != nil {
		return ResolveResult{}, false, err
	}
	segment := value.Value

	mo := as.FindObjectBySegment(segment)
	if mo == nil {
		return ResolveResult{}, false, nil
	}

	// Confirm the solver's sample is the *only* satisfying segment by
	// checking that the path constraints force pointer.Segment == segment.
	mustMatch, err := ctx.solver.MustBeTrue(ctx.ctx, ctx.state, NewBinaryExpr(EQ, pointer.Segment, NewConstantExpr(segment, ExprWidth(pointer.Segment))))
	if err != nil {
		return ResolveResult{}, false, err
	}
	if !mustMatch {
		return ResolveResult{}, false, nil // genuinely ambiguous, caller should use Resolve
	}
	return ResolveResult{Object: mo, State: as.FindObject(mo)}, true, nil
}

// Resolve enumerates every live object a symbolic pointer may alias,
// stopping early once maxResolutions candidates have been collected (if
// maxResolutions is non-zero). The returned bool is true iff the
// enumeration is known to be incomplete (the cap was hit), mirroring
// AddressSpace::resolve's contract.
func (as *AddressSpace) Resolve(ctx *solverContext, pointer KValue, maxResolutions int) (ResolutionList, bool, error) {
	var rl ResolutionList

	itr := as.segmentMap.Iterator()
	for !itr.Done() {
		_, v := itr.Next()
		mo := v.(*MemoryObject)

		mayMatch, err := ctx.solver.MayBeTrue(ctx.ctx, ctx.state, mo.BoundsCheckPointer(pointer, 1))
		if err != nil {
			return rl, true, err
		}
		if !mayMatch {
			continue
		}

		rl = append(rl, ObjectPair{Object: mo, State: as.FindObject(mo)})
		if maxResolutions > 0 && len(rl) >= maxResolutions {
			return rl, true, nil
		}
	}
	return rl, false, nil
}

// CopyOutConcretes writes every resolved object's concrete bytes into its
// mirrored host memory location, for marshalling into an external call.
// Read-only objects are skipped unless ignoreReadOnly is set.
func (as *AddressSpace) CopyOutConcretes(resolved map[uint64]ConcreteBuffer, ignoreReadOnly bool) {
	itr := as.segmentMap.Iterator()
	for !itr.Done() {
		_, v := itr.Next()
		mo := v.(*MemoryObject)
		buf, ok := resolved[mo.Segment]
		if !ok {
			continue
		}
		os := as.FindObject(mo)
		if os.IsReadOnly() && !ignoreReadOnly {
			continue
		}
		os.FlushToConcreteStore(buf.Bytes)
	}
}

// ConcreteBuffer is a segment's mirrored host-memory backing buffer used
// by CopyOutConcretes/CopyInConcretes.
type ConcreteBuffer struct {
	Bytes []byte
}

// CopyInConcretes copies each resolved buffer's bytes back into the
// matching object's offset plane, but only for objects whose *offset*
// plane concrete cache actually differs from the buffer, leaving the
// segment plane out of the comparison. Returns false if a read-only
// object would have been modified.
func (as *AddressSpace) CopyInConcretes(resolved map[uint64]ConcreteBuffer) bool {
	itr := as.segmentMap.Iterator()
	for !itr.Done() {
		_, v := itr.Next()
		mo := v.(*MemoryObject)
		buf, ok := resolved[mo.Segment]
		if !ok {
			continue
		}
		os := as.FindObject(mo)
		if !os.bytes.IsSymbolic() && concreteBytesEqual(os, buf.Bytes) {
			continue // unchanged, no copy needed
		}
		if os.IsReadOnly() {
			return false
		}
		writeable := as.GetWriteable(mo, os)
		writeable.LoadFromConcreteStore(buf.Bytes)
	}
	return true
}

func concreteBytesEqual(os *ObjectState, buf []byte) bool {
	for i, b := range buf {
		c, ok := os.bytes.selectByte(NewConstantExpr64(uint64(i))).(*ConstantExpr)
		if !ok || byte(c.Value) != b {
			return false
		}
	}
	return true
}
