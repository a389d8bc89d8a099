package tiny

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCallToUndefinedFunctionIsError exercises P2: a CALL/CALLF whose
// table index has no corresponding entry must fail cleanly rather than
// index out of range.
func TestCallToUndefinedFunctionIsError(t *testing.T) {
	asm := newAsmBuilder()
	asm.EmitCall(OpCall, 0, 5)
	asm.Emit(OpHalt)
	asm.Resolve()

	state := NewState(nil)
	state.code = asm.Bytes()

	th := NewThread(state)
	require.NoError(t, th.Start())
	err := th.Run()
	require.Error(t, err)
}

func TestCallFToUndefinedForeignFunctionIsError(t *testing.T) {
	asm := newAsmBuilder()
	asm.EmitCall(OpCallF, 0, 5)
	asm.Emit(OpHalt)
	asm.Resolve()

	state := NewState(nil)
	state.code = asm.Bytes()

	th := NewThread(state)
	require.NoError(t, th.Start())
	err := th.Run()
	require.Error(t, err)
}

// TestReturnValueStackDelta exercises P3: RETURN_VALUE must leave the
// stack exactly where it was before the call's arguments were pushed,
// plus the one retval slot GET_RETVAL adds back on the caller's side.
func TestReturnValueStackDelta(t *testing.T) {
	state := NewState(nil)
	idx5, err := state.literals.RegisterNumber(5)
	require.NoError(t, err)
	idx3, err := state.literals.RegisterNumber(3)
	require.NoError(t, err)

	top := newAsmBuilder()
	top.EmitOperand(OpPushNumber, int32(idx5))
	top.EmitOperand(OpPushNumber, int32(idx3))
	top.EmitCall(OpCall, 2, 0)
	top.Emit(OpGetRetval)
	top.Emit(OpHalt)
	top.Resolve()
	topCode := top.Bytes()

	fn := newAsmBuilder()
	fn.EmitOperand(OpGetLocal, -2)
	fn.EmitOperand(OpGetLocal, -1)
	fn.Emit(OpAdd)
	fn.Emit(OpReturnValue)
	fn.Resolve()

	state.code = append(topCode, fn.Bytes()...)
	state.functionPCs = []int{len(topCode)}

	th := NewThread(state)
	require.NoError(t, th.Start())
	require.NoError(t, th.Run())

	assert.Equal(t, 1, th.sp, "exactly one value (the retval) should remain on the stack")
	assert.Equal(t, 8.0, th.stack[0].Number())
}

// TestReturnStackDeltaWithLocals confirms RETURN (no value) unwinds past
// any locals the callee pushed above its frame pointer, not just its
// arguments.
func TestReturnStackDeltaWithLocals(t *testing.T) {
	state := NewState(nil)
	idx1, err := state.literals.RegisterNumber(1)
	require.NoError(t, err)

	top := newAsmBuilder()
	top.EmitCall(OpCall, 0, 0)
	top.Emit(OpHalt)
	top.Resolve()
	topCode := top.Bytes()

	fn := newAsmBuilder()
	fn.EmitOperand(OpPushNumber, int32(idx1)) // a local-ish push left above fp
	fn.Emit(OpReturn)
	fn.Resolve()

	state.code = append(topCode, fn.Bytes()...)
	state.functionPCs = []int{len(topCode)}

	th := NewThread(state)
	require.NoError(t, th.Start())
	require.NoError(t, th.Run())

	assert.Equal(t, 0, th.sp)
}

// TestCallFunctionRoundTripsWithScriptCall exercises P6: invoking a
// function through the host embedding API (CallFunction) must observe
// the same semantics and return value as calling it from script.
func TestCallFunctionRoundTripsWithScriptCall(t *testing.T) {
	state := NewState(nil)
	ok, diags := state.CompileString("<test>", `
		func double(n) {
			return n * 2;
		}
		fromScript := double(21);
	`)
	require.True(t, ok, "%v", diags)

	th := NewThread(state)
	require.NoError(t, th.Start())
	require.NoError(t, th.Run())

	fromScript := th.GetGlobal(state.GlobalIndex("fromScript"))
	assert.Equal(t, 42.0, fromScript.Number())

	fnIdx := state.FunctionIndex("double")
	require.GreaterOrEqual(t, fnIdx, 0)
	fromHost, err := th.CallFunction(fnIdx, NewNumber(21))
	require.NoError(t, err)
	assert.Equal(t, fromScript.Number(), fromHost.Number())
}

// TestCallFunctionPreservesInFlightState confirms CallFunction is
// re-entrant: calling into a script function mid-execution (from a
// foreign callback) doesn't disturb the caller's own stack frame.
func TestCallFunctionPreservesInFlightState(t *testing.T) {
	state := NewState(nil)
	var nested float64
	err := state.BindFunction("hostCallsBack", func(thr *Thread, args []Value) Value {
		fnIdx := thr.state.FunctionIndex("helper")
		v, err := thr.CallFunction(fnIdx, NewNumber(10))
		require.NoError(t, err)
		nested = v.Number()
		return NewNumber(args[0].Number() + 1)
	})
	require.NoError(t, err)

	ok, diags := state.CompileString("<test>", `
		func helper(n) {
			return n * 100;
		}
		result := hostCallsBack(5);
	`)
	require.True(t, ok, "%v", diags)

	th := NewThread(state)
	require.NoError(t, th.Start())
	require.NoError(t, th.Run())

	assert.Equal(t, 1000.0, nested)
	assert.Equal(t, 6.0, th.GetGlobal(state.GlobalIndex("result")).Number())
}

// TestScopeEndedLocalsKeepStackSlot exercises P7: a local declared
// inside a block that has since closed must still resolve to a valid,
// undisturbed stack slot for any code compiled after the block.
func TestScopeEndedLocalsKeepStackSlot(t *testing.T) {
	state, thread := compileAndRun(t, `
		func f() {
			if true {
				x := 1;
			}
			y := 2;
			return y;
		}
		result := f();
	`)
	idx := state.GlobalIndex("result")
	assert.Equal(t, 2.0, thread.GetGlobal(idx).Number())
}

func TestStackUnderflowIsResourceError(t *testing.T) {
	asm := newAsmBuilder()
	asm.Emit(OpPop)
	asm.Emit(OpHalt)
	asm.Resolve()

	state := NewState(nil)
	state.code = asm.Bytes()

	th := NewThread(state)
	require.NoError(t, th.Start())
	err := th.Run()
	require.Error(t, err)
	assert.True(t, IsResourceError(err))
}

func TestStackOverflowIsResourceError(t *testing.T) {
	asm := newAsmBuilder()
	lCond := asm.NewLabel()
	asm.PlaceLabel(lCond)
	asm.Emit(OpPushNull)
	asm.EmitJump(OpGoto, lCond)
	asm.Resolve()

	state := NewState(nil)
	state.code = asm.Bytes()

	th := NewThread(state)
	require.NoError(t, th.Start())
	err := th.Run()
	require.Error(t, err)
	assert.True(t, IsResourceError(err))
}
