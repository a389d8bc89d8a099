package tiny

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// compileAndRun compiles source against a fresh State, runs it to
// completion on a fresh Thread, and returns both for assertions.
func compileAndRun(t *testing.T, source string) (*State, *Thread) {
	t.Helper()
	state := NewState(nil)
	ok, diags := state.CompileString("<test>", source)
	if !ok {
		t.Fatalf("compile failed: %v", diags)
	}
	thread := NewThread(state)
	require.NoError(t, thread.Start())
	require.NoError(t, thread.Run())
	return state, thread
}

func TestArithmeticAndGlobals(t *testing.T) {
	state, thread := compileAndRun(t, `
		x := 10;
		y := 20;
		z := x + y * 2;
	`)
	idx := state.GlobalIndex("z")
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, 50.0, thread.GetGlobal(idx).Number())
}

func TestConditionalBranching(t *testing.T) {
	state, thread := compileAndRun(t, `
		x := 5;
		result := 0;
		if x > 3 {
			result = 1;
		} else {
			result = 2;
		}
	`)
	idx := state.GlobalIndex("result")
	assert.Equal(t, 1.0, thread.GetGlobal(idx).Number())
}

func TestLoopAccumulator(t *testing.T) {
	state, thread := compileAndRun(t, `
		sum := 0;
		for i := 0; i < 5; i += 1 {
			sum += i;
		}
	`)
	idx := state.GlobalIndex("sum")
	assert.Equal(t, 10.0, thread.GetGlobal(idx).Number())
}

func TestWhileLoop(t *testing.T) {
	state, thread := compileAndRun(t, `
		n := 3;
		fact := 1;
		while n > 0 {
			fact *= n;
			n -= 1;
		}
	`)
	idx := state.GlobalIndex("fact")
	assert.Equal(t, 6.0, thread.GetGlobal(idx).Number())
}

func TestStringEquality(t *testing.T) {
	state, thread := compileAndRun(t, `
		a := "hello";
		b := "hello";
		same := a == b;
	`)
	idx := state.GlobalIndex("same")
	assert.True(t, thread.GetGlobal(idx).Bool())
}

func TestStringInequality(t *testing.T) {
	state, thread := compileAndRun(t, `
		a := "hello";
		b := "world";
		same := a == b;
	`)
	idx := state.GlobalIndex("same")
	assert.False(t, thread.GetGlobal(idx).Bool())
}

func TestForeignFunctionCall(t *testing.T) {
	state := NewState(nil)
	var seen []float64
	err := state.BindFunction("record", func(t *Thread, args []Value) Value {
		seen = append(seen, args[0].Number())
		return NewNumber(args[0].Number() * 2)
	})
	require.NoError(t, err)

	ok, diags := state.CompileString("<test>", `
		result := record(21);
	`)
	require.True(t, ok, "%v", diags)

	thread := NewThread(state)
	require.NoError(t, thread.Start())
	require.NoError(t, thread.Run())

	assert.Equal(t, []float64{21}, seen)
	idx := state.GlobalIndex("result")
	assert.Equal(t, 42.0, thread.GetGlobal(idx).Number())
}

func TestFunctionCallAndRecursion(t *testing.T) {
	state, thread := compileAndRun(t, `
		func fib(n) {
			if n < 2 {
				return n;
			}
			return fib(n - 1) + fib(n - 2);
		}
		result := fib(10);
	`)
	idx := state.GlobalIndex("result")
	assert.Equal(t, 55.0, thread.GetGlobal(idx).Number())
}

func TestForwardFunctionReference(t *testing.T) {
	state, thread := compileAndRun(t, `
		result := answer();
		func answer() {
			return 42;
		}
	`)
	idx := state.GlobalIndex("result")
	assert.Equal(t, 42.0, thread.GetGlobal(idx).Number())
}

func TestConstBinding(t *testing.T) {
	state, thread := compileAndRun(t, `
		PI :: 3;
		area := PI * 2;
	`)
	idx := state.GlobalIndex("area")
	assert.Equal(t, 6.0, thread.GetGlobal(idx).Number())
}

func TestUninitializedGlobalFailsCompilation(t *testing.T) {
	state := NewState(nil)
	// DeclareGlobal is only reachable through `:=`, which always
	// initializes immediately; exercise the failure path directly
	// through the symbol table instead, the way this invariant would
	// actually be violated by a future syntax extension.
	_, err := state.symtab.DeclareGlobal("orphan", "<test>", 1)
	require.NoError(t, err)

	ok, diags := state.CompileString("<test>", `x := 1;`)
	require.False(t, ok)
	found := false
	for _, d := range diags {
		if d.Code == "uninitialized" {
			found = true
		}
	}
	assert.True(t, found, "%v", diags)
}

func TestRedeclarationIsFatal(t *testing.T) {
	state := NewState(nil)
	ok, diags := state.CompileString("<test>", `
		x := 1;
		x := 2;
	`)
	assert.False(t, ok)
	assert.NotEmpty(t, diags)
}

func TestAssignToConstIsFatal(t *testing.T) {
	state := NewState(nil)
	ok, _ := state.CompileString("<test>", `
		PI :: 3;
		PI = 4;
	`)
	assert.False(t, ok)
}

func TestUndeclaredReferenceIsFatal(t *testing.T) {
	state := NewState(nil)
	ok, _ := state.CompileString("<test>", `
		x := y + 1;
	`)
	assert.False(t, ok)
}

func TestModOrAndTruncateTowardZero(t *testing.T) {
	state, thread := compileAndRun(t, `
		m := 7 % 3;
		o := 5 | 2;
		a := 6 & 3;
		n := -7.5 % 2;
	`)
	assert.Equal(t, 1.0, thread.GetGlobal(state.GlobalIndex("m")).Number())
	assert.Equal(t, 7.0, thread.GetGlobal(state.GlobalIndex("o")).Number())
	assert.Equal(t, 2.0, thread.GetGlobal(state.GlobalIndex("a")).Number())
	// -7.5 truncates to -7, and -7 % 2 is -1 (floor-mod would give 1)
	assert.Equal(t, -1.0, thread.GetGlobal(state.GlobalIndex("n")).Number())
}

func TestLogicalOperatorOnNonBoolIsRuntimeTypeError(t *testing.T) {
	state := NewState(nil)
	ok, diags := state.CompileString("<test>", `
		x := 1 and 2;
	`)
	require.True(t, ok, "%v", diags)
	thread := NewThread(state)
	require.NoError(t, thread.Start())
	err := thread.Run()
	require.Error(t, err)
	var typeErr runtimeTypeError
	assert.ErrorAs(t, err, &typeErr)
}
