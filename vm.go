package tiny

import (
	"bufio"
	"fmt"
	"os"
)

// Runtime errors (spec.md §7 kinds 4 and 5). Stack over/underflow and
// indirection-stack over/underflow are Resource Errors; they return an
// error from ExecuteCycle/CallFunction instead of terminating the host
// process, per spec.md §9's "strengthened reimplementation" direction.
var (
	errStackOverflow  = resourceError{msg: "value stack overflow"}
	errStackUnderflow = resourceError{msg: "value stack underflow"}
	errIndirOverflow  = resourceError{msg: "indirection stack overflow"}
	errIndirUnderflow = resourceError{msg: "indirection stack underflow"}
)

// runtimeTypeError marks spec.md §7 kind 5: a logical operator applied
// to a non-bool, or an arithmetic operator applied to a non-number.
// spec.md §9 resolves this Open Question in favor of a hardened,
// fatal diagnostic rather than undefined behavior.
type runtimeTypeError struct{ msg string }

func (e runtimeTypeError) Error() string { return e.msg }

func errWantBool(v Value) error {
	return runtimeTypeError{msg: fmt.Sprintf("expected bool, got %s", v.TypeName())}
}

func errWantNumber(v Value) error {
	return runtimeTypeError{msg: fmt.Sprintf("expected number, got %s", v.TypeName())}
}

// Start begins execution of a Thread at its State's top-level entry
// point (PC 0). Mirrors spec.md §6's StartThread.
func (t *Thread) Start() error {
	t.ensureGlobals()
	t.pc, t.fp, t.sp, t.indirTop = 0, 0, 0, 0
	t.retval = NewNull()
	return nil
}

// Run drives ExecuteCycle to completion, stopping on the first error
// or once the Thread is done.
func (t *Thread) Run() error {
	for {
		more, err := t.ExecuteCycle()
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}

// ExecuteCycle performs exactly one instruction and reports whether
// the Thread can still make progress (spec.md §4.6). It returns
// (false, nil) once pc < 0.
func (t *Thread) ExecuteCycle() (bool, error) {
	if t.pc < 0 {
		return false, nil
	}
	code := t.state.code
	op := Opcode(code[t.pc])

	switch op {
	case OpHalt:
		t.pc = -1
		return false, nil

	case OpPushNull:
		if err := t.push(NewNull()); err != nil {
			return false, err
		}
		t.pc++

	case OpPushTrue:
		if err := t.push(NewBool(true)); err != nil {
			return false, err
		}
		t.pc++

	case OpPushFalse:
		if err := t.push(NewBool(false)); err != nil {
			return false, err
		}
		t.pc++

	case OpPushNumber:
		idx := int(decodeI32(code, t.pc+1))
		if err := t.push(NewNumber(t.state.literals.Number(idx))); err != nil {
			return false, err
		}
		t.pc += op.SizeInBytes()

	case OpPushString:
		idx := int(decodeI32(code, t.pc+1))
		if err := t.push(NewConstString(t.state.literals.String(idx))); err != nil {
			return false, err
		}
		t.pc += op.SizeInBytes()

	case OpPop:
		if _, err := t.pop(); err != nil {
			return false, err
		}
		t.pc++

	case OpGetRetval:
		if err := t.push(t.retval); err != nil {
			return false, err
		}
		t.pc++

	case OpAdd, OpSub, OpMul, OpDiv:
		if err := t.execArith(op); err != nil {
			return false, err
		}
		t.pc++

	case OpMod, OpOr, OpAnd:
		if err := t.execIntArith(op); err != nil {
			return false, err
		}
		t.pc++

	case OpLt, OpLte, OpGt, OpGte:
		if err := t.execCompare(op); err != nil {
			return false, err
		}
		t.pc++

	case OpEqu:
		b, err := t.pop()
		if err != nil {
			return false, err
		}
		a, err := t.pop()
		if err != nil {
			return false, err
		}
		if err := t.push(NewBool(a.Equal(b))); err != nil {
			return false, err
		}
		t.pc++

	case OpLogNot:
		v, err := t.pop()
		if err != nil {
			return false, err
		}
		if !v.IsBool() {
			return false, errWantBool(v)
		}
		if err := t.push(NewBool(!v.Bool())); err != nil {
			return false, err
		}
		t.pc++

	case OpLogAnd, OpLogOr:
		if err := t.execLogic(op); err != nil {
			return false, err
		}
		t.pc++

	case OpGet:
		idx := int(decodeI32(code, t.pc+1))
		if err := t.push(t.GetGlobal(idx)); err != nil {
			return false, err
		}
		t.pc += op.SizeInBytes()

	case OpSet:
		idx := int(decodeI32(code, t.pc+1))
		v, err := t.top()
		if err != nil {
			return false, err
		}
		t.SetGlobal(idx, v)
		t.pc += op.SizeInBytes()

	case OpGetLocal:
		off := int(decodeI32(code, t.pc+1))
		if err := t.push(t.stack[t.fp+off]); err != nil {
			return false, err
		}
		t.pc += op.SizeInBytes()

	case OpSetLocal:
		off := int(decodeI32(code, t.pc+1))
		v, err := t.top()
		if err != nil {
			return false, err
		}
		t.stack[t.fp+off] = v
		t.pc += op.SizeInBytes()

	case OpGoto:
		t.pc = int(decodeI32(code, t.pc+1))

	case OpGotoZ:
		v, err := t.pop()
		if err != nil {
			return false, err
		}
		if !v.IsBool() {
			return false, errWantBool(v)
		}
		if v.Bool() {
			t.pc += op.SizeInBytes()
		} else {
			t.pc = int(decodeI32(code, t.pc+1))
		}

	case OpCall:
		nargs := int(decodeI32(code, t.pc+1))
		fnIdx := int(decodeI32(code, t.pc+5))
		if fnIdx < 0 || fnIdx >= len(t.state.functionPCs) {
			return false, &semanticError{msg: fmt.Sprintf("call to undefined function #%d", fnIdx)}
		}
		returnPC := t.pc + op.SizeInBytes()
		if err := t.pushIndirFrame(nargs, t.fp, returnPC); err != nil {
			return false, err
		}
		t.fp = t.sp
		t.pc = t.state.functionPCs[fnIdx]

	case OpCallF:
		nargs := int(decodeI32(code, t.pc+1))
		ffnIdx := int(decodeI32(code, t.pc+5))
		if ffnIdx < 0 || ffnIdx >= len(t.state.foreignFuncs) {
			return false, &semanticError{msg: fmt.Sprintf("call to undefined foreign function #%d", ffnIdx)}
		}
		argBase := t.sp - nargs
		if argBase < 0 {
			return false, errStackUnderflow
		}
		args := t.stack[argBase:t.sp]
		t.retval = t.state.foreignFuncs[ffnIdx](t, args)
		t.sp = argBase
		t.pc += op.SizeInBytes()

	case OpReturn, OpReturnValue:
		if op == OpReturnValue {
			v, err := t.pop()
			if err != nil {
				return false, err
			}
			t.retval = v
		} else {
			t.retval = NewNull()
		}
		nargs, callerFP, returnPC, err := t.popIndirFrame()
		if err != nil {
			return false, err
		}
		t.sp = t.fp
		t.fp = callerFP
		t.pc = returnPC
		t.sp -= nargs

	case OpRead:
		line, _ := t.stdinReader().ReadString('\n')
		if err := t.push(t.NewString(trimNewline(line))); err != nil {
			return false, err
		}
		t.pc++

	case OpPrint:
		v, err := t.top()
		if err != nil {
			return false, err
		}
		fmt.Fprintln(t.stdout(), v.GoString())
		t.pc++

	default:
		return false, &semanticError{msg: fmt.Sprintf("invalid opcode 0x%02x at pc=%d", op, t.pc)}
	}

	t.maybeCollect()
	return t.pc >= 0, nil
}

func (t *Thread) execArith(op Opcode) error {
	b, err := t.pop()
	if err != nil {
		return err
	}
	a, err := t.pop()
	if err != nil {
		return err
	}
	if !a.IsNumber() {
		return errWantNumber(a)
	}
	if !b.IsNumber() {
		return errWantNumber(b)
	}
	var r float64
	switch op {
	case OpAdd:
		r = a.Number() + b.Number()
	case OpSub:
		r = a.Number() - b.Number()
	case OpMul:
		r = a.Number() * b.Number()
	case OpDiv:
		r = a.Number() / b.Number()
	}
	return t.push(NewNumber(r))
}

// execIntArith implements MOD/OR/AND: spec.md §9 leaves the treatment
// of the float64->int32 truncation unpinned for negative or
// out-of-range operands; tiny picks C-style truncation toward zero
// (int32(x)), the same rule Go's own float-to-int conversion uses, and
// documents it (DESIGN.md) rather than floor-mod.
func (t *Thread) execIntArith(op Opcode) error {
	b, err := t.pop()
	if err != nil {
		return err
	}
	a, err := t.pop()
	if err != nil {
		return err
	}
	if !a.IsNumber() {
		return errWantNumber(a)
	}
	if !b.IsNumber() {
		return errWantNumber(b)
	}
	ai, bi := int32(a.Number()), int32(b.Number())
	var r int32
	switch op {
	case OpMod:
		if bi == 0 {
			return runtimeTypeError{msg: "modulo by zero"}
		}
		r = ai % bi
	case OpOr:
		r = ai | bi
	case OpAnd:
		r = ai & bi
	}
	return t.push(NewNumber(float64(r)))
}

func (t *Thread) execCompare(op Opcode) error {
	b, err := t.pop()
	if err != nil {
		return err
	}
	a, err := t.pop()
	if err != nil {
		return err
	}
	if !a.IsNumber() {
		return errWantNumber(a)
	}
	if !b.IsNumber() {
		return errWantNumber(b)
	}
	var r bool
	switch op {
	case OpLt:
		r = a.Number() < b.Number()
	case OpLte:
		r = a.Number() <= b.Number()
	case OpGt:
		r = a.Number() > b.Number()
	case OpGte:
		r = a.Number() >= b.Number()
	}
	return t.push(NewBool(r))
}

func (t *Thread) execLogic(op Opcode) error {
	b, err := t.pop()
	if err != nil {
		return err
	}
	a, err := t.pop()
	if err != nil {
		return err
	}
	if !a.IsBool() {
		return errWantBool(a)
	}
	if !b.IsBool() {
		return errWantBool(b)
	}
	var r bool
	switch op {
	case OpLogAnd:
		r = a.Bool() && b.Bool()
	case OpLogOr:
		r = a.Bool() || b.Bool()
	}
	return t.push(NewBool(r))
}

// CallFunction is the re-entrant embedding-API call path (spec.md
// §4.6/§6): it saves the Thread's (pc, fp, sp, indirTop), pushes args,
// jumps into the function, drives ExecuteCycle until the indirection
// stack returns to the saved depth, then restores the saved state.
// Foreign callees may call this to re-enter the VM (spec.md §4.6).
func (t *Thread) CallFunction(fnIdx int, args ...Value) (Value, error) {
	t.ensureGlobals()
	if fnIdx < 0 || fnIdx >= len(t.state.functionPCs) {
		return Value{}, &semanticError{msg: fmt.Sprintf("call to undefined function #%d", fnIdx)}
	}

	savedPC, savedFP, savedSP, savedIndirTop := t.pc, t.fp, t.sp, t.indirTop

	for _, a := range args {
		if err := t.push(a); err != nil {
			t.pc, t.fp, t.sp, t.indirTop = savedPC, savedFP, savedSP, savedIndirTop
			return Value{}, err
		}
	}
	if err := t.pushIndirFrame(len(args), t.fp, -1); err != nil {
		t.pc, t.fp, t.sp, t.indirTop = savedPC, savedFP, savedSP, savedIndirTop
		return Value{}, err
	}
	t.fp = t.sp
	t.pc = t.state.functionPCs[fnIdx]

	for t.indirTop > savedIndirTop {
		more, err := t.ExecuteCycle()
		if err != nil {
			t.pc, t.fp, t.sp, t.indirTop = savedPC, savedFP, savedSP, savedIndirTop
			return Value{}, err
		}
		if !more {
			break
		}
	}

	result := t.retval
	t.pc, t.fp, t.sp, t.indirTop = savedPC, savedFP, savedSP, savedIndirTop
	return result, nil
}

func (t *Thread) stdout() *os.File { return os.Stdout }

func (t *Thread) stdinReader() *bufio.Reader {
	if t.stdin == nil {
		t.stdin = bufio.NewReader(os.Stdin)
	}
	return t.stdin
}

func trimNewline(s string) string {
	n := len(s)
	for n > 0 && (s[n-1] == '\n' || s[n-1] == '\r') {
		n--
	}
	return s[:n]
}
