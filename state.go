package tiny

import "os"

// ForeignFunc is the signature every host-provided callback must
// satisfy to be bound into a State via BindFunction (spec.md §6). args
// is a slice over the Thread's own value stack; it must not be
// retained past the call.
type ForeignFunc func(t *Thread, args []Value) Value

// State holds everything produced by compiling one or more source
// units: the finished bytecode, literal pools, symbol table and the
// foreign-function table built up by BindFunction. Many Threads may
// run concurrently against one State, provided it is no longer being
// compiled (spec.md §5 "Concurrency Model").
type State struct {
	config resolvedConfig

	symtab   *symbolTable
	literals *literalPool

	code         []byte
	functionPCs  []int // functionPCs[i] = byte offset of function i's entry point
	foreignFuncs []ForeignFunc
}

// NewState creates a State ready to accept BindFunction/BindConst*
// calls and then CompileString/CompileFile. cfg may be nil, in which
// case NewConfig()'s defaults apply.
func NewState(cfg *Config) *State {
	rc := resolveConfig(cfg)
	return &State{
		config:   rc,
		symtab:   newSymbolTable(rc.maxCallArguments),
		literals: newLiteralPool(rc.maxNumbers, rc.maxStrings),
	}
}

// BindFunction registers a host callback under name, callable from
// script as a normal function call (spec.md §6). Returns an error if
// name is already bound to anything.
func (s *State) BindFunction(name string, fn ForeignFunc) error {
	_, err := s.symtab.DeclareForeignFunction(name, fn)
	if err != nil {
		return err
	}
	s.foreignFuncs = append(s.foreignFuncs, fn)
	return nil
}

// BindConstNumber registers a global, read-only numeric constant
// visible to script under name (spec.md §6).
func (s *State) BindConstNumber(name string, n float64) error {
	idx, err := s.literals.RegisterNumber(n)
	if err != nil {
		return err
	}
	_, err = s.symtab.DeclareConst(name, "<host>", 0, idx, false)
	return err
}

// BindConstString registers a global, read-only string constant
// visible to script under name (spec.md §6).
func (s *State) BindConstString(name string, str string) error {
	idx, err := s.literals.RegisterString(str)
	if err != nil {
		return err
	}
	_, err = s.symtab.DeclareConst(name, "<host>", 0, idx, true)
	return err
}

// CompileString compiles source, labeling any diagnostics with label
// (typically a filename or "<string>"), and appends the resulting
// bytecode to the State's program (spec.md §6). ok is false whenever
// any diagnostic is SeverityError; the State's code is left unchanged
// in that case.
func (s *State) CompileString(label, source string) (bool, []Diagnostic) {
	c := newCompiler(s, label, source)
	prog, ok := c.Compile()
	if !ok {
		return false, c.diags.Items()
	}
	newLen := len(prog.code)
	if len(s.code) > 0 {
		newLen += len(s.code) - OpHalt.SizeInBytes()
	}
	if max := s.config.maxProgramLength; max > 0 && newLen > max {
		c.diags.Errorfl("limit", 0, "program is %d bytes, more than the %d allowed", newLen, max)
		return false, c.diags.Items()
	}
	s.link(prog)
	return true, c.diags.Items()
}

// CompileFile reads path and compiles it via CompileString, using
// path itself as the diagnostic label.
func (s *State) CompileFile(path string) (bool, []Diagnostic) {
	src, err := os.ReadFile(path)
	if err != nil {
		return false, []Diagnostic{{Severity: SeverityError, Message: err.Error()}}
	}
	return s.CompileString(path, string(src))
}

// link appends a compiled unit's bytecode to the State's program,
// rebasing its function entry points and internal jump targets by the
// prior code length so that multiple CompileString calls against one
// State accumulate rather than overwrite (spec.md §6 allows
// binding/compiling incrementally before the first Thread is started).
//
// Every compiledUnit ends with its own trailing HALT (compiler.go's
// Compile always emits one) and was assembled against a fresh,
// 0-based asmBuilder. Appending it as-is would leave the prior unit's
// trailing HALT in the middle of the program, stopping execution
// there instead of falling through into this unit, and would run this
// unit's own GOTO/GOTOZ targets -- which are byte offsets relative to
// its own start -- against the combined program's addressing instead.
// So the prior HALT is dropped before appending, and this unit's jump
// operands are rebased by where it now lands.
func (s *State) link(prog *compiledUnit) {
	if len(s.code) > 0 {
		s.code = s.code[:len(s.code)-OpHalt.SizeInBytes()]
	}
	base := len(s.code)

	code := append([]byte(nil), prog.code...)
	rebaseJumps(code, base)

	for _, pc := range prog.functionPCs {
		s.functionPCs = append(s.functionPCs, pc+base)
	}
	s.code = append(s.code, code...)
}

// GlobalIndex returns the global-slot index bound to name, or -1 if
// name is not declared as a GLOBAL. CONSTs have no global slot, so a
// CONST name also yields -1.
func (s *State) GlobalIndex(name string) int {
	sym, ok := s.symtab.lookupGlobal(name)
	if !ok || sym.kind != symGlobal {
		return -1
	}
	return sym.index
}

// FunctionIndex returns the function-table index bound to name, or -1
// if name is not declared as a FUNCTION.
func (s *State) FunctionIndex(name string) int {
	sym, ok := s.symtab.ReferenceFunction(name)
	if !ok || sym.kind != symFunction {
		return -1
	}
	return sym.index
}
