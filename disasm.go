package tiny

import (
	"fmt"
	"strings"

	"github.com/tiny-lang/tiny/internal/ascii"
)

// Disassemble renders the State's compiled program as one line per
// instruction: byte offset, opcode mnemonic, and any operands, themed
// through internal/ascii.DefaultTheme. Intended for debugging embedders
// and the `-dump` CLI flag, never for persistence: there is no parser
// for this format, only a printer (spec.md's "no persisted bytecode
// format, in-memory only").
func (s *State) Disassemble() string {
	var b strings.Builder
	pc := 0
	for pc < len(s.code) {
		op := Opcode(s.code[pc])
		fmt.Fprintf(&b, "%s%6d%s  %s%-14s%s",
			ascii.DefaultTheme.Muted, pc, ascii.Reset,
			ascii.DefaultTheme.Operator, op.String(), ascii.Reset)

		switch op.operandWidth() {
		case 1:
			operand := decodeI32(s.code, pc+1)
			fmt.Fprintf(&b, " %s%d%s", ascii.DefaultTheme.Operand, operand, ascii.Reset)
			b.WriteString(s.disasmOperandHint(op, int(operand)))
		case 2:
			nargs := decodeI32(s.code, pc+1)
			callee := decodeI32(s.code, pc+5)
			fmt.Fprintf(&b, " %s%d, %d%s", ascii.DefaultTheme.Operand, nargs, callee, ascii.Reset)
			b.WriteString(s.disasmCalleeHint(op, int(callee)))
		}
		b.WriteByte('\n')
		pc = InstructionBoundary(s.code, pc)
	}
	return b.String()
}

// disasmOperandHint annotates PUSH_NUMBER/PUSH_STRING operands with
// their literal value, and GET/SET with the global's name when one can
// be recovered, purely to make -dump output readable. GETLOCAL/SETLOCAL
// operands are printed without a name.
func (s *State) disasmOperandHint(op Opcode, operand int) string {
	switch op {
	case OpPushNumber:
		return fmt.Sprintf(" %s; %g%s", ascii.DefaultTheme.Comment, s.literals.Number(operand), ascii.Reset)
	case OpPushString:
		return fmt.Sprintf(" %s; %q%s", ascii.DefaultTheme.Comment, s.literals.String(operand), ascii.Reset)
	case OpGet, OpSet:
		if name := s.globalNameAt(operand); name != "" {
			return fmt.Sprintf(" %s; %s%s", ascii.DefaultTheme.Comment, name, ascii.Reset)
		}
	}
	return ""
}

func (s *State) disasmCalleeHint(op Opcode, callee int) string {
	switch op {
	case OpCall:
		if name := s.functionNameAt(callee); name != "" {
			return fmt.Sprintf(" %s; %s%s", ascii.DefaultTheme.Comment, name, ascii.Reset)
		}
	case OpCallF:
		if name := s.foreignFunctionNameAt(callee); name != "" {
			return fmt.Sprintf(" %s; %s%s", ascii.DefaultTheme.Comment, name, ascii.Reset)
		}
	}
	return ""
}

func (s *State) globalNameAt(idx int) string {
	for _, sym := range s.symtab.globals {
		if sym.kind == symGlobal && sym.index == idx {
			return sym.name
		}
	}
	return ""
}

func (s *State) functionNameAt(idx int) string {
	for _, sym := range s.symtab.globals {
		if sym.kind == symFunction && sym.index == idx {
			return sym.name
		}
	}
	return ""
}

func (s *State) foreignFunctionNameAt(idx int) string {
	for _, sym := range s.symtab.globals {
		if sym.kind == symForeignFunction && sym.foreignIndex == idx {
			return sym.name
		}
	}
	return ""
}
