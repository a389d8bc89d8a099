package tiny

import "bufio"

// DefaultStackSize and DefaultIndirSize are the compile-time tunables
// of spec.md §6: the value-stack and indirection-stack default
// capacities, overridable per-State via Config. The indirection stack
// holds whole (nargs, callerFP, returnPC) triples, so its default
// capacity is DefaultIndirSize/3 = 85 triples (255 of its 256 slots).
const (
	DefaultStackSize = 128
	DefaultIndirSize = 256
)

// Thread is one execution context over a shared State (spec.md §3
// "Thread"). Each Thread owns its heap and globals exclusively; values
// are never shared across Threads (spec.md §5).
type Thread struct {
	state *State

	// GC heap
	heapHead   *heapObj
	numObjects int
	maxObjects int

	globals []Value // lazily allocated on first Start/CallFunction

	pc, fp, sp int
	retval     Value

	stack []Value

	// indir is the indirection stack: flat triples of (nargs,
	// callerFP, returnPC), spec.md §3/§4.6. indirTop counts the
	// int32 slots in use, always a multiple of 3.
	indir    []int32
	indirTop int

	stdin *bufio.Reader

	UserData any
}

// NewThread creates a Thread bound to state, ready to Start.
func NewThread(state *State) *Thread {
	return &Thread{
		state:      state,
		maxObjects: initialGCThreshold,
		stack:      make([]Value, state.config.stackSize),
		indir:      make([]int32, state.config.indirSize),
	}
}

// IsDone reports whether the Thread has run to completion (pc < 0).
func (t *Thread) IsDone() bool { return t.pc < 0 }

func (t *Thread) ensureGlobals() {
	if t.globals == nil {
		t.globals = make([]Value, t.state.symtab.numGlobals)
		for i := range t.globals {
			t.globals[i] = NewNull()
		}
	}
}

// GetGlobal returns the current value of the global variable at idx.
func (t *Thread) GetGlobal(idx int) Value {
	t.ensureGlobals()
	return t.globals[idx]
}

// SetGlobal assigns the global variable at idx.
func (t *Thread) SetGlobal(idx int, v Value) {
	t.ensureGlobals()
	t.globals[idx] = v
}

func (t *Thread) push(v Value) error {
	if t.sp >= len(t.stack) {
		return errStackOverflow
	}
	t.stack[t.sp] = v
	t.sp++
	return nil
}

func (t *Thread) pop() (Value, error) {
	if t.sp <= 0 {
		return Value{}, errStackUnderflow
	}
	t.sp--
	return t.stack[t.sp], nil
}

func (t *Thread) top() (Value, error) {
	if t.sp <= 0 {
		return Value{}, errStackUnderflow
	}
	return t.stack[t.sp-1], nil
}

// pushIndirFrame records the (nargs, callerFP, returnPC) triple for a
// CALL/CALLF before jumping to the callee (spec.md §4.6).
func (t *Thread) pushIndirFrame(nargs, callerFP, returnPC int) error {
	if t.indirTop+3 > len(t.indir) {
		return errIndirOverflow
	}
	t.indir[t.indirTop] = int32(nargs)
	t.indir[t.indirTop+1] = int32(callerFP)
	t.indir[t.indirTop+2] = int32(returnPC)
	t.indirTop += 3
	return nil
}

// popIndirFrame restores the most recent call frame's bookkeeping,
// used by RETURN/RETURN_VALUE.
func (t *Thread) popIndirFrame() (nargs, callerFP, returnPC int, err error) {
	if t.indirTop < 3 {
		return 0, 0, 0, errIndirUnderflow
	}
	t.indirTop -= 3
	return int(t.indir[t.indirTop]), int(t.indir[t.indirTop+1]), int(t.indir[t.indirTop+2]), nil
}

// heapLink allocates a new heapObj owned by t, linking it at the head
// of t's intrusive GC list and bumping its live-object count.
func (t *Thread) heapLink(o *heapObj) {
	o.next = t.heapHead
	t.heapHead = o
	t.numObjects++
}

// NewString allocates an owned, GC-managed copy of s bound to t
// (spec.md §3 "owned string"). Distinct from NewConstString, which
// never touches the heap.
func (t *Thread) NewString(s string) Value {
	o := &heapObj{str: s}
	t.heapLink(o)
	return Value{kind: kindString, obj: o}
}

// NewNative allocates a GC-managed native object bound to t, wrapping
// address with the optional descriptor typ (spec.md §3 "native object").
func (t *Thread) NewNative(address any, typ *NativeType) Value {
	o := &heapObj{native: nativeObj{address: address, typ: typ}}
	t.heapLink(o)
	return Value{kind: kindNative, obj: o}
}
