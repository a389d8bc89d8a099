package tiny

import "encoding/binary"

// Opcode is a single fetch-decode-execute unit (spec.md §4.5). Every
// opcode is one byte; operands, when present, are inline 32-bit
// little-endian two's-complement integers (spec.md §4.4).
//
// NOTE: changing the order of these constants changes nothing at
// runtime (the encoder below is the only place the numeric value
// matters) but it does change the output of any previously-compiled
// Program, so it is kept append-only by convention.
type Opcode byte

const (
	OpHalt Opcode = iota
	OpPushNull
	OpPushTrue
	OpPushFalse
	OpPushNumber
	OpPushString
	OpPop
	OpGetRetval
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpOr
	OpAnd
	OpLt
	OpLte
	OpGt
	OpGte
	OpEqu
	OpLogNot
	OpLogAnd
	OpLogOr
	OpGet
	OpSet
	OpGetLocal
	OpSetLocal
	OpGoto
	OpGotoZ
	OpCall
	OpCallF
	OpReturn
	OpReturnValue
	OpRead
	OpPrint
)

var opcodeNames = [...]string{
	OpHalt:        "halt",
	OpPushNull:    "push_null",
	OpPushTrue:    "push_true",
	OpPushFalse:   "push_false",
	OpPushNumber:  "push_number",
	OpPushString:  "push_string",
	OpPop:         "pop",
	OpGetRetval:   "get_retval",
	OpAdd:         "add",
	OpSub:         "sub",
	OpMul:         "mul",
	OpDiv:         "div",
	OpMod:         "mod",
	OpOr:          "or",
	OpAnd:         "and",
	OpLt:          "lt",
	OpLte:         "lte",
	OpGt:          "gt",
	OpGte:         "gte",
	OpEqu:         "equ",
	OpLogNot:      "log_not",
	OpLogAnd:      "log_and",
	OpLogOr:       "log_or",
	OpGet:         "get",
	OpSet:         "set",
	OpGetLocal:    "getlocal",
	OpSetLocal:    "setlocal",
	OpGoto:        "goto",
	OpGotoZ:       "gotoz",
	OpCall:        "call",
	OpCallF:       "callf",
	OpReturn:      "return",
	OpReturnValue: "return_value",
	OpRead:        "read",
	OpPrint:       "print",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) && opcodeNames[op] != "" {
		return opcodeNames[op]
	}
	return "unknown"
}

// operandWidth is how many 32-bit operands follow each opcode in the
// encoded stream. CALL/CALLF take two.
func (op Opcode) operandWidth() int {
	switch op {
	case OpPushNumber, OpPushString, OpGet, OpSet, OpGetLocal, OpSetLocal, OpGoto, OpGotoZ:
		return 1
	case OpCall, OpCallF:
		return 2
	default:
		return 0
	}
}

// SizeInBytes returns the encoded length of an instance of op: one
// opcode byte plus 4 bytes per inline operand (spec.md §4.4).
func (op Opcode) SizeInBytes() int {
	return 1 + 4*op.operandWidth()
}

// label is a forward-reference placeholder used by the compiler
// before the final byte offset of its target is known. The compiler
// emits symbolic jump targets against a pending-label table during the
// AST walk; a final Resolve pass rewrites each placeholder with
// the label's resolved byte offset. This keeps jump-target patching in
// a dedicated fixup table rather than poking the byte buffer in place,
// which is exactly the "table of unresolved labels... resolve them in
// a second pass" option spec.md §9's Design Notes offers.
type label struct{ id int }

// asmBuilder accumulates bytecode for one function/top-level body
// during compilation, deferring jump targets to labels resolved once
// the whole body has been walked.
type asmBuilder struct {
	code      []byte
	nextLabel int
	labelAddr map[int]int // label id -> resolved byte offset, once known
	fixups    []asmFixup  // pending GOTO/GOTOZ operand fixups awaiting a label
}

type asmFixup struct {
	pos   int // byte offset of the 4-byte operand to patch
	label int // label id whose resolved address goes there
}

func newAsmBuilder() *asmBuilder {
	return &asmBuilder{labelAddr: map[int]int{}}
}

// NewLabel allocates a fresh, as-yet-unresolved label.
func (b *asmBuilder) NewLabel() label {
	b.nextLabel++
	return label{id: b.nextLabel}
}

// PlaceLabel binds lb to the current end of the instruction stream
// (the position the next emitted instruction will occupy).
func (b *asmBuilder) PlaceLabel(lb label) {
	b.labelAddr[lb.id] = len(b.code)
}

// Pos returns the current end of the instruction stream; compiler.go
// records it as a function's entry PC in functionPCs.
func (b *asmBuilder) Pos() int { return len(b.code) }

// Emit writes op with no operands.
func (b *asmBuilder) Emit(op Opcode) {
	b.code = append(b.code, byte(op))
}

// EmitOperand writes op followed by a literal 32-bit operand.
func (b *asmBuilder) EmitOperand(op Opcode, operand int32) {
	b.code = append(b.code, byte(op))
	b.code = encodeI32(b.code, operand)
}

// EmitJump writes op followed by a placeholder operand that is
// resolved to lb's final address once Resolve runs.
func (b *asmBuilder) EmitJump(op Opcode, lb label) {
	b.code = append(b.code, byte(op))
	b.fixups = append(b.fixups, asmFixup{pos: len(b.code), label: lb.id})
	b.code = encodeI32(b.code, 0)
}

// EmitCall writes a CALL/CALLF with its two literal operands: the
// argument count and the callee's index. Unlike GOTO/GOTOZ targets,
// CALL/CALLF targets are function/foreign-function TABLE INDICES
// (spec.md §4.5, resolved by the VM through state.functionPCs /
// state.foreignFuncs), known immediately from the symbol table at the
// call site -- so, unlike jumps, no label/fixup is needed here even
// though the callee's own bytecode may not be emitted yet.
func (b *asmBuilder) EmitCall(op Opcode, nargs, calleeIndex int) {
	b.code = append(b.code, byte(op))
	b.code = encodeI32(b.code, int32(nargs))
	b.code = encodeI32(b.code, int32(calleeIndex))
}

// Resolve rewrites every pending fixup with its label's final address.
// It must run after every label referenced by a fixup has been placed.
func (b *asmBuilder) Resolve() {
	for _, fx := range b.fixups {
		addr, ok := b.labelAddr[fx.label]
		if !ok {
			panic("tiny: unresolved label in asmBuilder.Resolve")
		}
		binary.LittleEndian.PutUint32(b.code[fx.pos:], uint32(int32(addr)))
	}
	b.fixups = b.fixups[:0]
}

// Bytes returns the finished, fully-resolved bytecode.
func (b *asmBuilder) Bytes() []byte { return b.code }

func encodeI32(code []byte, v int32) []byte {
	return binary.LittleEndian.AppendUint32(code, uint32(v))
}

func decodeI32(code []byte, pos int) int32 {
	return int32(binary.LittleEndian.Uint32(code[pos:]))
}

// InstructionBoundary decodes the opcode at pc and returns the pc of
// the next instruction, satisfying P1 for any pc produced by the
// compiler.
func InstructionBoundary(code []byte, pc int) int {
	op := Opcode(code[pc])
	return pc + op.SizeInBytes()
}

// rebaseJumps adds base to every GOTO/GOTOZ operand in code, in place.
// GOTO/GOTOZ operands are absolute byte offsets within the asmBuilder
// that produced them, so a unit compiled on its own (always starting
// at offset 0) must have them shifted by base before its bytecode is
// appended after an earlier unit's (State.link, spec.md §6). CALL/CALLF
// operands are function-table indices, not byte offsets, so they are
// left untouched here; State.link rebases functionPCs separately.
func rebaseJumps(code []byte, base int) {
	pc := 0
	for pc < len(code) {
		op := Opcode(code[pc])
		if op == OpGoto || op == OpGotoZ {
			target := decodeI32(code, pc+1) + int32(base)
			binary.LittleEndian.PutUint32(code[pc+1:], uint32(target))
		}
		pc = InstructionBoundary(code, pc)
	}
}
