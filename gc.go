package tiny

// initialGCThreshold is the object count at which the very first
// collection on a Thread is triggered (spec.md §4.7).
const initialGCThreshold = 8

// maybeCollect runs a GC cycle whenever the live object count has
// reached the Thread's current threshold, per spec.md §4.7: "Triggered
// at the end of ExecuteCycle whenever numObjects >= maxNumObjects.
// ... After collection, maxNumObjects = 2 x numObjects." The new
// threshold is never set below initialGCThreshold.
func (t *Thread) maybeCollect() {
	if t.numObjects < t.maxObjects {
		return
	}
	t.collect()
	t.maxObjects = 2 * t.numObjects
	if t.maxObjects < initialGCThreshold {
		t.maxObjects = initialGCThreshold
	}
}

// collect runs one stop-the-world mark-and-sweep pass over t's heap.
// Safe to call between instructions only (ExecuteCycle is the sole
// suspension point, spec.md §4.7 "Safety").
func (t *Thread) collect() {
	t.mark()
	t.sweep()
}

// mark walks every GC root -- the return register, every value on the
// stack within [0, sp), and every global -- marking reachable heap
// objects. Scalars are marked non-recursively; a NATIVE value's
// descriptor ProtectFromGC callback is responsible for recursively
// protecting whatever its payload transitively references.
func (t *Thread) mark() {
	t.markValue(t.retval)
	for i := 0; i < t.sp; i++ {
		t.markValue(t.stack[i])
	}
	for _, g := range t.globals {
		t.markValue(g)
	}
}

// markValue marks the heap object (if any) backing v, recursing into
// the native descriptor's protect callback for NATIVE values. Exposed
// indirectly to foreign callees as ProtectFromGC (spec.md's
// "Tiny_ProtectFromGC" for manual root-marking inside foreign callees).
func (t *Thread) markValue(v Value) {
	switch v.kind {
	case kindString:
		v.obj.marked = true
	case kindNative:
		if v.obj.marked {
			return
		}
		v.obj.marked = true
		if v.obj.native.typ != nil && v.obj.native.typ.ProtectFromGC != nil {
			v.obj.native.typ.ProtectFromGC(v)
		}
	}
}

// ProtectFromGC lets a foreign callee manually root-mark a value that
// isn't yet reachable from the stack or globals (for instance, an
// object a native's protect callback discovers by walking its own
// payload). Only String and Native values participate; every other
// kind is a no-op.
func (t *Thread) ProtectFromGC(v Value) {
	t.markValue(v)
}

// sweep walks the intrusive heap list in list order, deleting every
// unmarked object (invoking Finalize for natives, dropping the string
// buffer for owned strings) and clearing the mark bit on survivors
// (P4: every unreachable object is freed, with Finalize called exactly
// once).
func (t *Thread) sweep() {
	var (
		head = &t.heapHead
	)
	for obj := *head; obj != nil; {
		next := obj.next
		if !obj.marked {
			if obj.native.typ != nil && obj.native.typ.Finalize != nil {
				obj.native.typ.Finalize(Value{kind: kindNative, obj: obj})
			}
			*head = next
			t.numObjects--
		} else {
			obj.marked = false
			head = &obj.next
		}
		obj = next
	}
}
