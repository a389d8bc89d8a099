package tiny

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGCKeepsReachableDropsUnreachable exercises P4's reachability half:
// a NATIVE value rooted on the stack survives a collection; one that
// isn't is swept.
func TestGCKeepsReachableDropsUnreachable(t *testing.T) {
	state := NewState(nil)
	th := NewThread(state)
	require.NoError(t, th.Start())

	finalized := map[string]bool{}
	typ := &NativeType{
		Name:     "probe",
		Finalize: func(v Value) { finalized[v.NativeAddress().(string)] = true },
	}

	keep := th.NewNative("keep", typ)
	th.NewNative("drop", typ)
	require.NoError(t, th.push(keep))

	th.collect()

	assert.False(t, finalized["keep"])
	assert.True(t, finalized["drop"])
	assert.Equal(t, 1, th.numObjects)
}

// TestGCFinalizesExactlyOnce exercises P4's other half: an unreachable
// object is finalized exactly once, not once per collection cycle.
func TestGCFinalizesExactlyOnce(t *testing.T) {
	state := NewState(nil)
	th := NewThread(state)
	require.NoError(t, th.Start())

	count := 0
	typ := &NativeType{Finalize: func(Value) { count++ }}
	th.NewNative("x", typ)

	th.collect()
	th.collect()

	assert.Equal(t, 1, count)
}

// TestGCProtectFromGCRecursivelyProtectsPayload confirms a native's
// ProtectFromGC callback can keep an otherwise-unrooted object alive,
// the mechanism a host uses to root an object graph a NATIVE wraps.
func TestGCProtectFromGCRecursivelyProtectsPayload(t *testing.T) {
	state := NewState(nil)
	th := NewThread(state)
	require.NoError(t, th.Start())

	innerFinalized := false
	innerTyp := &NativeType{Finalize: func(Value) { innerFinalized = true }}
	inner := th.NewNative("inner", innerTyp)

	outerTyp := &NativeType{
		ProtectFromGC: func(Value) { th.ProtectFromGC(inner) },
	}
	outer := th.NewNative("outer", outerTyp)
	require.NoError(t, th.push(outer))

	th.collect()

	assert.False(t, innerFinalized)
}

// TestGCGlobalsAreRoots confirms a NATIVE reachable only through a
// global slot, not the value stack, still survives collection.
func TestGCGlobalsAreRoots(t *testing.T) {
	state := NewState(nil)
	th := NewThread(state)
	require.NoError(t, th.Start())
	th.globals = make([]Value, 1)

	finalized := false
	typ := &NativeType{Finalize: func(Value) { finalized = true }}
	obj := th.NewNative("rooted", typ)
	th.SetGlobal(0, obj)

	th.collect()

	assert.False(t, finalized)
}

// TestGCThresholdGrowsAfterCollect exercises the growth-based threshold
// from spec.md §4.7: after a collection, the new threshold is 2x the
// surviving object count, clamped to initialGCThreshold.
func TestGCThresholdGrowsAfterCollect(t *testing.T) {
	state := NewState(nil)
	th := NewThread(state)
	require.NoError(t, th.Start())

	typ := &NativeType{}
	for i := 0; i < initialGCThreshold; i++ {
		th.NewNative(i, typ)
	}
	require.Equal(t, initialGCThreshold, th.numObjects)

	th.maybeCollect()

	assert.Equal(t, 0, th.numObjects)
	assert.Equal(t, initialGCThreshold, th.maxObjects)
}

func TestGCMaybeCollectSkipsBelowThreshold(t *testing.T) {
	state := NewState(nil)
	th := NewThread(state)
	require.NoError(t, th.Start())

	typ := &NativeType{}
	th.NewNative("a", typ)
	th.maybeCollect()

	assert.Equal(t, 1, th.numObjects, "below threshold, no collection should have run")
}
