package tiny

// symbolKind tags the variant held by a symbol table entry (spec.md §3
// "Symbol").
type symbolKind int

const (
	symGlobal symbolKind = iota
	symLocal
	symConst
	symFunction
	symForeignFunction
)

// symbol is the tagged record described by spec.md §3. Every symbol
// carries its defining file/line for diagnostics.
type symbol struct {
	kind symbolKind
	name string
	file string
	line int

	// GLOBAL / LOCAL
	index       int // stack offset for LOCAL (negative for arguments)
	scope       int
	scopeEnded  bool
	initialized bool

	// CONST
	literalIndex int
	isString     bool

	// FUNCTION
	numArgs   int
	numLocals int
	entryPC   int // not set; entry points are kept in State.functionPCs

	// FOREIGN_FUNCTION
	foreignIndex int
	callee       ForeignFunc
}

// symbolTable is the per-compilation registry of globals, constants,
// locals, arguments, user functions and foreign functions, with scope
// tracking (spec.md §3, §4.3).
//
// Locals and arguments of the function currently being compiled live in
// currentLocals; everything else (globals, consts, functions, foreign
// functions) lives in globals. This mirrors spec.md's resolution order:
// ReferenceVariable looks at the current function's locals/arguments
// first, then falls back to globals.
type symbolTable struct {
	globals       []*symbol
	globalIndex   map[string]int // name -> index into globals, current scope only concern for functions
	currentLocals []*symbol
	scopeDepth    int

	numGlobals       int
	numFunctions     int
	numForeignFuncs  int
	maxCallArguments int
}

func newSymbolTable(maxCallArguments int) *symbolTable {
	return &symbolTable{
		globalIndex:      map[string]int{},
		maxCallArguments: maxCallArguments,
	}
}

func (t *symbolTable) OpenScope() {
	t.scopeDepth++
}

// CloseScope does not delete locals declared in the scope being
// closed; it marks them ScopeEnded so name lookup skips them while
// already-emitted bytecode can keep referencing their stack slot
// (spec.md §4.2, P7).
func (t *symbolTable) CloseScope() {
	for _, s := range t.currentLocals {
		if s.kind == symLocal && s.scope == t.scopeDepth {
			s.scopeEnded = true
		}
	}
	t.scopeDepth--
}

// lookupGlobal returns the most-recently-declared global/const/
// function/foreign-function symbol with the given name that is
// currently visible (not true scoping -- globals have no scope --
// just most recent wins, matching a flat top-level namespace).
func (t *symbolTable) lookupGlobal(name string) (*symbol, bool) {
	if idx, ok := t.globalIndex[name]; ok {
		return t.globals[idx], true
	}
	return nil, false
}

// lookupLocal searches the active function's locals (skipping
// scope-ended ones) then its arguments, matching spec.md §4.3's
// ReferenceVariable order. Returns nil, false outside a function.
func (t *symbolTable) lookupLocal(name string) (*symbol, bool) {
	// Walk backwards so shadowing within nested scopes resolves to
	// the most recently declared, still-visible symbol.
	for i := len(t.currentLocals) - 1; i >= 0; i-- {
		s := t.currentLocals[i]
		if s.name != name {
			continue
		}
		if s.kind == symLocal && s.scopeEnded {
			continue
		}
		return s, true
	}
	return nil, false
}

// ReferenceVariable implements spec.md §4.3: current function's
// non-scope-ended locals, then its arguments (always visible), then
// globals and constants. First match wins.
func (t *symbolTable) ReferenceVariable(name string) (*symbol, bool) {
	if s, ok := t.lookupLocal(name); ok {
		return s, true
	}
	return t.lookupGlobal(name)
}

// ReferenceFunction implements spec.md §4.3: scans globals for
// FUNCTION or FOREIGN_FUNCTION entries.
func (t *symbolTable) ReferenceFunction(name string) (*symbol, bool) {
	s, ok := t.lookupGlobal(name)
	if !ok || (s.kind != symFunction && s.kind != symForeignFunction) {
		return nil, false
	}
	return s, true
}

// DeclareGlobal registers a new GLOBAL symbol. Returns an error if
// name is already declared at the top level (spec.md §4.2: "redeclaration
// in the same scope is fatal").
func (t *symbolTable) DeclareGlobal(name, file string, line int) (*symbol, error) {
	if _, ok := t.globalIndex[name]; ok {
		return nil, errRedeclared(file, line, name)
	}
	s := &symbol{kind: symGlobal, name: name, file: file, line: line, index: t.numGlobals}
	t.numGlobals++
	t.globalIndex[name] = len(t.globals)
	t.globals = append(t.globals, s)
	return s, nil
}

// DeclareLocal registers a new LOCAL inside the function currently
// being compiled, at frame-relative index. Redeclaration in the exact
// same (non-ended) scope is fatal.
func (t *symbolTable) DeclareLocal(name, file string, line, index int) (*symbol, error) {
	if s, ok := t.lookupLocal(name); ok && s.scope == t.scopeDepth {
		return nil, errRedeclared(file, line, name)
	}
	s := &symbol{kind: symLocal, name: name, file: file, line: line, index: index, scope: t.scopeDepth}
	t.currentLocals = append(t.currentLocals, s)
	return s, nil
}

// DeclareArgument registers a function parameter as a LOCAL at index
// -numArgs+k (spec.md §4.2). Arguments are implicitly initialized.
func (t *symbolTable) DeclareArgument(name, file string, line, index int) *symbol {
	s := &symbol{kind: symLocal, name: name, file: file, line: line, index: index, initialized: true}
	t.currentLocals = append(t.currentLocals, s)
	return s
}

// DeclareConst registers a CONST bound to a literal-pool index.
// Redeclaring a name already bound as a global is fatal, matching
// DeclareGlobal's rule (consts always live in the global namespace,
// even when declared lexically inside a function -- spec.md §4.2).
func (t *symbolTable) DeclareConst(name, file string, line, literalIndex int, isString bool) (*symbol, error) {
	if _, ok := t.globalIndex[name]; ok {
		return nil, errRedeclared(file, line, name)
	}
	s := &symbol{
		kind: symConst, name: name, file: file, line: line,
		literalIndex: literalIndex, isString: isString, initialized: true,
	}
	t.globalIndex[name] = len(t.globals)
	t.globals = append(t.globals, s)
	return s, nil
}

// DeclareFunction registers a FUNCTION symbol at global scope.
func (t *symbolTable) DeclareFunction(name, file string, line, numArgs int) (*symbol, error) {
	if _, ok := t.globalIndex[name]; ok {
		return nil, errRedeclared(file, line, name)
	}
	s := &symbol{
		kind: symFunction, name: name, file: file, line: line,
		index: t.numFunctions, numArgs: numArgs, initialized: true,
	}
	t.numFunctions++
	t.globalIndex[name] = len(t.globals)
	t.globals = append(t.globals, s)
	return s, nil
}

// DeclareForeignFunction registers a FOREIGN_FUNCTION symbol bound to
// a host callback. Duplicate names are fatal (spec.md §6 "BindFunction").
func (t *symbolTable) DeclareForeignFunction(name string, callee ForeignFunc) (*symbol, error) {
	if _, ok := t.globalIndex[name]; ok {
		return nil, errAlreadyBound(name)
	}
	s := &symbol{
		kind: symForeignFunction, name: name,
		foreignIndex: t.numForeignFuncs, callee: callee, initialized: true,
	}
	t.numForeignFuncs++
	t.globalIndex[name] = len(t.globals)
	t.globals = append(t.globals, s)
	return s, nil
}

func errRedeclared(file string, line int, name string) error {
	return &semanticError{file: file, line: line, msg: "`" + name + "` already declared in this scope"}
}

func errAlreadyBound(name string) error {
	return &semanticError{msg: "`" + name + "` already bound"}
}

// semanticError marks spec.md §7 Semantic Errors (kind 3): redeclaration,
// undeclared reference, assignment to const/function, non-literal const
// RHS, use of an uninitialized global/local.
type semanticError struct {
	file string
	line int
	msg  string
}

func (e *semanticError) Error() string { return e.msg }
