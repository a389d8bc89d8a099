package tiny

import (
	"github.com/tiny-lang/tiny/internal/parser"
)

// compiledUnit is one CompileString/CompileFile call's output, before
// State.link rebases its function entry points against the program
// already accumulated on the State.
type compiledUnit struct {
	code        []byte
	functionPCs []int
}

// compiler walks one parsed statement tree and emits bytecode into an
// asmBuilder, mutating shared state as it visits each node, following
// spec.md §4.2's procedural-language lowering rules.
type compiler struct {
	state *State
	diags *Diagnostics
	asm   *asmBuilder
	sym   *symbolTable

	// functionBase is how many functions were already declared on the
	// shared symbol table before this compile began (from an earlier
	// CompileString/CompileFile call against the same State).
	// functionPCs is indexed by (symtab function index - functionBase),
	// so State.link only appends the entry points this unit actually
	// adds.
	functionBase int
	functionPCs  []int

	inFunction   bool
	numArgs      int
	numLocalSlot int // next free frame-relative local index inside the current function
}

func newCompiler(state *State, label, source string) *compiler {
	return &compiler{
		state:        state,
		diags:        NewDiagnostics(label, []byte(source)),
		asm:          newAsmBuilder(),
		sym:          state.symtab,
		functionBase: state.symtab.numFunctions,
	}
}

// Compile parses and compiles the compiler's source unit. ok is false
// whenever any diagnostic reached SeverityError.
func (c *compiler) Compile() (*compiledUnit, bool) {
	p, err := parser.New(c.srcString())
	if err != nil {
		c.reportParseErr(err)
		return nil, false
	}
	prog, err := p.Parse()
	if err != nil {
		c.reportParseErr(err)
		return nil, false
	}

	c.predeclareFunctions(prog.Stmts)
	for _, s := range prog.Stmts {
		c.compileTopLevel(s)
		if c.diags.HasErrors() {
			break
		}
	}
	if !c.diags.HasErrors() {
		c.checkInitialized()
	}
	if c.diags.HasErrors() {
		return nil, false
	}

	c.asm.Emit(OpHalt)
	c.asm.Resolve()
	return &compiledUnit{code: c.asm.Bytes(), functionPCs: c.functionPCs}, true
}

func (c *compiler) srcString() string { return string(c.diags.source) }

func (c *compiler) reportParseErr(err error) {
	if pe, ok := err.(*parser.ParseError); ok {
		c.diags.Errorfl("syntax", pe.Line, "%s", pe.Msg)
		return
	}
	c.diags.Errorfl("syntax", 0, "%s", err.Error())
}

// predeclareFunctions registers every top-level `func` symbol before
// any body is compiled, so `a(); func a(){}` resolves (spec.md §4.3:
// "Function forward-references are deferred to compile time").
func (c *compiler) predeclareFunctions(stmts []parser.Node) {
	for _, s := range stmts {
		def, ok := s.(*parser.ProcDefinition)
		if !ok {
			continue
		}
		if _, err := c.sym.DeclareFunction(def.Name, c.diags.file, def.Span.StartLine, len(def.Params)); err != nil {
			c.diags.Errorfl("redeclared", def.Span.StartLine, "%s", err.Error())
		}
	}
	// leave room in functionPCs for every function predeclared in this
	// unit; compileProcDefinition fills in the right slot by
	// (symtab index - functionBase).
	c.functionPCs = make([]int, c.sym.numFunctions-c.functionBase)
}

func (c *compiler) compileTopLevel(s parser.Node) {
	if def, ok := s.(*parser.ProcDefinition); ok {
		c.compileProcDefinition(def)
		return
	}
	c.compileStatement(s)
}

// compileStatement compiles s for effect only: a bare Call is already
// stack-neutral; everything else is compiled in expression position
// and its pushed value is discarded with POP (spec.md §4.4).
func (c *compiler) compileStatement(n parser.Node) {
	if call, ok := n.(*parser.Call); ok {
		c.compileCall(call, false)
		return
	}
	switch stmt := n.(type) {
	case *parser.If:
		c.compileIf(stmt)
		return
	case *parser.While:
		c.compileWhile(stmt)
		return
	case *parser.For:
		c.compileFor(stmt)
		return
	case *parser.Return:
		c.compileReturn(stmt)
		return
	case *parser.Block:
		c.compileBlockScoped(stmt)
		return
	case *parser.ProcDefinition:
		c.diags.Errorfl("semantic", stmt.Span.StartLine, "nested function definitions are not supported")
		return
	}
	c.compileExpr(n)
	c.asm.Emit(OpPop)
}

func (c *compiler) compileBlockScoped(b *parser.Block) {
	c.sym.OpenScope()
	for _, s := range b.Stmts {
		c.compileStatement(s)
		if c.diags.HasErrors() {
			break
		}
	}
	c.sym.CloseScope()
}

// compileExpr compiles n for its pushed value.
func (c *compiler) compileExpr(n parser.Node) {
	switch e := n.(type) {
	case *parser.Null:
		c.asm.Emit(OpPushNull)
	case *parser.Bool:
		if e.Value {
			c.asm.Emit(OpPushTrue)
		} else {
			c.asm.Emit(OpPushFalse)
		}
	case *parser.Number:
		c.emitNumber(e.Value, e.Span.StartLine)
	case *parser.String:
		c.emitString(e.Value, e.Span.StartLine)
	case *parser.Identifier:
		c.compileIdentifier(e)
	case *parser.Paren:
		c.compileExpr(e.Inner)
	case *parser.Unary:
		c.compileUnary(e)
	case *parser.Call:
		c.compileCall(e, true)
	case *parser.Binary:
		c.compileBinary(e)
	default:
		c.diags.Errorfl("semantic", 0, "expression of type %T used where a value is required", n)
	}
}

func (c *compiler) emitNumber(n float64, line int) {
	idx, err := c.state.literals.RegisterNumber(n)
	if err != nil {
		c.diags.Errorfl("limit", line, "%s", err.Error())
		return
	}
	c.asm.EmitOperand(OpPushNumber, int32(idx))
}

func (c *compiler) emitString(s string, line int) {
	idx, err := c.state.literals.RegisterString(s)
	if err != nil {
		c.diags.Errorfl("limit", line, "%s", err.Error())
		return
	}
	c.asm.EmitOperand(OpPushString, int32(idx))
}

func (c *compiler) compileIdentifier(id *parser.Identifier) {
	sym, ok := c.sym.ReferenceVariable(id.Name)
	if !ok {
		c.diags.Errorfl("semantic", id.Span.StartLine, "`%s` is not declared", id.Name)
		return
	}
	switch sym.kind {
	case symLocal:
		if !sym.initialized {
			c.diags.Errorfl("semantic", id.Span.StartLine, "`%s` used before it is initialized", id.Name)
		}
		c.asm.EmitOperand(OpGetLocal, int32(sym.index))
	case symGlobal:
		if !sym.initialized {
			c.diags.Errorfl("semantic", id.Span.StartLine, "`%s` used before it is initialized", id.Name)
		}
		c.asm.EmitOperand(OpGet, int32(sym.index))
	case symConst:
		if sym.isString {
			c.asm.EmitOperand(OpPushString, int32(sym.literalIndex))
		} else {
			c.asm.EmitOperand(OpPushNumber, int32(sym.literalIndex))
		}
	default:
		c.diags.Errorfl("semantic", id.Span.StartLine, "`%s` cannot be used as a value", id.Name)
	}
}

func (c *compiler) compileUnary(u *parser.Unary) {
	switch u.Op {
	case parser.UnaryNeg:
		c.emitNumber(-1, u.Span.StartLine)
		c.compileExpr(u.Expr)
		c.asm.Emit(OpMul)
	case parser.UnaryNot:
		c.compileExpr(u.Expr)
		c.asm.Emit(OpLogNot)
	}
}

var binaryOpcodes = map[parser.BinaryOp]Opcode{
	parser.OpLt: OpLt, parser.OpLte: OpLte, parser.OpGt: OpGt, parser.OpGte: OpGte,
	parser.OpEq: OpEqu,
	parser.OpAdd: OpAdd, parser.OpSub: OpSub, parser.OpMul: OpMul, parser.OpDiv: OpDiv,
	parser.OpMod: OpMod, parser.OpBitAnd: OpAnd, parser.OpBitOr: OpOr,
	parser.OpAnd: OpLogAnd, parser.OpOr: OpLogOr,
}

// compoundOps maps `+= -= *= /= %= &= |=` to the plain opcode they
// load/op/store around (spec.md §4.4: "compound assignment is
// load/op/store").
var compoundOps = map[parser.BinaryOp]Opcode{
	parser.OpAddEq: OpAdd, parser.OpSubEq: OpSub, parser.OpMulEq: OpMul, parser.OpDivEq: OpDiv,
	parser.OpModEq: OpMod, parser.OpAndEq: OpAnd, parser.OpOrEq: OpOr,
}

func (c *compiler) compileBinary(b *parser.Binary) {
	switch b.Op {
	case parser.OpAssign:
		c.compileDeclareAssign(b, false)
		return
	case parser.OpBind:
		c.compileConstBind(b)
		return
	case parser.OpSet:
		c.compileStore(b.Left, b.Right, b.Span.StartLine)
		return
	}
	if op, ok := compoundOps[b.Op]; ok {
		c.compileCompoundAssign(b, op)
		return
	}

	if op, ok := binaryOpcodes[b.Op]; ok {
		c.compileExpr(b.Left)
		c.compileExpr(b.Right)
		c.asm.Emit(op)
		return
	}
	if b.Op == parser.OpNotEq {
		c.compileExpr(b.Left)
		c.compileExpr(b.Right)
		c.asm.Emit(OpEqu)
		c.asm.Emit(OpLogNot)
		return
	}
	c.diags.Errorfl("semantic", b.Span.StartLine, "unsupported operator")
}

// compileDeclareAssign lowers `name := expr`: LOCAL if inside a
// function, else GLOBAL (spec.md §4.2). fromConst is not read.
func (c *compiler) compileDeclareAssign(b *parser.Binary, fromConst bool) {
	ident, ok := b.Left.(*parser.Identifier)
	if !ok {
		c.diags.Errorfl("semantic", b.Span.StartLine, "`:=` target must be an identifier")
		return
	}
	c.compileExpr(b.Right)
	var sym *symbol
	var err error
	if c.inFunction {
		idx := c.numLocalSlot
		c.numLocalSlot++
		sym, err = c.sym.DeclareLocal(ident.Name, c.diags.file, ident.Span.StartLine, idx)
	} else {
		sym, err = c.sym.DeclareGlobal(ident.Name, c.diags.file, ident.Span.StartLine)
	}
	if err != nil {
		c.diags.Errorfl("redeclared", ident.Span.StartLine, "%s", err.Error())
		return
	}
	sym.initialized = true
	c.storeTo(sym, ident.Span.StartLine)
}

// compileConstBind lowers `name :: literal`: the RHS must already be a
// literal (Number/String); declared as a global-scope CONST regardless
// of lexical position (spec.md §4.2), with a non-fatal warning when
// declared inside a function. Like `:=`, it leaves the bound value on
// the stack, so a statement-level `::` is balanced by its POP.
func (c *compiler) compileConstBind(b *parser.Binary) {
	ident, ok := b.Left.(*parser.Identifier)
	if !ok {
		c.diags.Errorfl("semantic", b.Span.StartLine, "`::` target must be an identifier")
		return
	}
	var idx int
	var err error
	var isString bool
	switch rhs := b.Right.(type) {
	case *parser.Number:
		idx, err = c.state.literals.RegisterNumber(rhs.Value)
	case *parser.String:
		idx, err = c.state.literals.RegisterString(rhs.Value)
		isString = true
	default:
		c.diags.Errorfl("semantic", b.Span.StartLine, "`::` requires a literal right-hand side")
		return
	}
	if err != nil {
		c.diags.Errorfl("limit", b.Span.StartLine, "%s", err.Error())
		return
	}
	if c.inFunction {
		c.diags.Warnf("const-in-func", 0, "`%s` declared with `::` inside a function is still global-scoped", ident.Name)
	}
	if _, err := c.sym.DeclareConst(ident.Name, c.diags.file, ident.Span.StartLine, idx, isString); err != nil {
		c.diags.Errorfl("redeclared", ident.Span.StartLine, "%s", err.Error())
		return
	}
	if isString {
		c.asm.EmitOperand(OpPushString, int32(idx))
	} else {
		c.asm.EmitOperand(OpPushNumber, int32(idx))
	}
}

// compileStore lowers plain `=` assignment to an already-declared
// GLOBAL or LOCAL. Assigning to a CONST or FUNCTION symbol is fatal.
func (c *compiler) compileStore(target, rhs parser.Node, line int) {
	ident, ok := target.(*parser.Identifier)
	if !ok {
		c.diags.Errorfl("semantic", line, "assignment target must be an identifier")
		return
	}
	sym, ok := c.sym.ReferenceVariable(ident.Name)
	if !ok {
		c.diags.Errorfl("semantic", line, "`%s` is not declared", ident.Name)
		return
	}
	if sym.kind != symGlobal && sym.kind != symLocal {
		c.diags.Errorfl("semantic", line, "cannot assign to `%s`", ident.Name)
		return
	}
	c.compileExpr(rhs)
	sym.initialized = true
	c.storeTo(sym, line)
}

func (c *compiler) storeTo(sym *symbol, line int) {
	switch sym.kind {
	case symLocal:
		c.asm.EmitOperand(OpSetLocal, int32(sym.index))
	case symGlobal:
		c.asm.EmitOperand(OpSet, int32(sym.index))
	default:
		c.diags.Errorfl("semantic", line, "cannot assign to `%s`", sym.name)
	}
}

// compileCompoundAssign lowers `name op= expr` as load, op, store
// (spec.md §4.4).
func (c *compiler) compileCompoundAssign(b *parser.Binary, op Opcode) {
	ident, ok := b.Left.(*parser.Identifier)
	if !ok {
		c.diags.Errorfl("semantic", b.Span.StartLine, "compound-assignment target must be an identifier")
		return
	}
	sym, ok := c.sym.ReferenceVariable(ident.Name)
	if !ok {
		c.diags.Errorfl("semantic", b.Span.StartLine, "`%s` is not declared", ident.Name)
		return
	}
	if sym.kind != symGlobal && sym.kind != symLocal {
		c.diags.Errorfl("semantic", b.Span.StartLine, "cannot assign to `%s`", ident.Name)
		return
	}
	c.compileIdentifier(ident)
	c.compileExpr(b.Right)
	c.asm.Emit(op)
	c.storeTo(sym, b.Span.StartLine)
}

// compileCall lowers a function/foreign-function call (spec.md §4.4).
// asExpr selects whether GET_RETVAL is appended to push the result.
func (c *compiler) compileCall(call *parser.Call, asExpr bool) {
	if max := c.sym.maxCallArguments; max > 0 && len(call.Args) > max {
		c.diags.Errorfl("limit", call.Span.StartLine, "call to `%s` passes %d arguments, more than the %d allowed", call.Callee, len(call.Args), max)
		return
	}
	for _, a := range call.Args {
		c.compileExpr(a)
	}
	sym, ok := c.sym.ReferenceFunction(call.Callee)
	if !ok {
		c.diags.Errorfl("semantic", call.Span.StartLine, "`%s` is not a declared function", call.Callee)
		return
	}
	if len(call.Args) != sym.numArgs && sym.kind == symFunction {
		c.diags.Errorfl("semantic", call.Span.StartLine, "`%s` takes %d argument(s), got %d", call.Callee, sym.numArgs, len(call.Args))
		return
	}
	switch sym.kind {
	case symFunction:
		c.asm.EmitCall(OpCall, len(call.Args), sym.index)
	case symForeignFunction:
		c.asm.EmitCall(OpCallF, len(call.Args), sym.foreignIndex)
	}
	if asExpr {
		c.asm.Emit(OpGetRetval)
	}
}

func (c *compiler) compileIf(n *parser.If) {
	lElse := c.asm.NewLabel()
	lEnd := c.asm.NewLabel()
	c.compileExpr(n.Cond)
	c.asm.EmitJump(OpGotoZ, lElse)
	c.compileBlockScoped(n.Then.(*parser.Block))
	if n.Else != nil {
		c.asm.EmitJump(OpGoto, lEnd)
	}
	c.asm.PlaceLabel(lElse)
	if n.Else != nil {
		switch e := n.Else.(type) {
		case *parser.Block:
			c.compileBlockScoped(e)
		case *parser.If:
			c.compileIf(e)
		}
		c.asm.PlaceLabel(lEnd)
	}
}

func (c *compiler) compileWhile(n *parser.While) {
	lCond := c.asm.NewLabel()
	lEnd := c.asm.NewLabel()
	c.asm.PlaceLabel(lCond)
	c.compileExpr(n.Cond)
	c.asm.EmitJump(OpGotoZ, lEnd)
	c.compileBlockScoped(n.Body.(*parser.Block))
	c.asm.EmitJump(OpGoto, lCond)
	c.asm.PlaceLabel(lEnd)
}

func (c *compiler) compileFor(n *parser.For) {
	c.sym.OpenScope()
	c.compileStatement(n.Init)
	lCond := c.asm.NewLabel()
	lEnd := c.asm.NewLabel()
	c.asm.PlaceLabel(lCond)
	c.compileExpr(n.Cond)
	c.asm.EmitJump(OpGotoZ, lEnd)
	c.compileBlockScoped(n.Body.(*parser.Block))
	c.compileStatement(n.Step)
	c.asm.EmitJump(OpGoto, lCond)
	c.asm.PlaceLabel(lEnd)
	c.sym.CloseScope()
}

func (c *compiler) compileReturn(n *parser.Return) {
	if n.Value == nil {
		c.asm.Emit(OpReturn)
		return
	}
	c.compileExpr(n.Value)
	c.asm.Emit(OpReturnValue)
}

// compileProcDefinition lowers `func name(params) body` (spec.md
// §4.4): GOTO Lskip; entry: PUSH_NUMBER 0 per local; body; RETURN;
// Lskip:. Parameters emit no code; they are the caller's pushed
// arguments below the frame pointer.
func (c *compiler) compileProcDefinition(def *parser.ProcDefinition) {
	sym, ok := c.sym.ReferenceFunction(def.Name)
	if !ok {
		c.diags.Errorfl("semantic", def.Span.StartLine, "internal: function `%s` was not predeclared", def.Name)
		return
	}

	lSkip := c.asm.NewLabel()
	c.asm.EmitJump(OpGoto, lSkip)

	entryPC := c.asm.Pos()
	c.functionPCs[sym.index-c.functionBase] = entryPC

	// Reserve the whole local-variable frame up front (spec.md §4.4:
	// "entry: PUSH_NUMBER 0 x locals"): every `:=` inside the body,
	// including ones nested in if/while/for blocks, claims a
	// permanent frame slot that outlives its lexical scope (P7), so
	// the count must be known before any of the body's own
	// PUSH/POP traffic runs above it -- otherwise a local's slot and
	// the transient operand stack would collide.
	numLocals := countLocalDecls(def.Body)
	for i := 0; i < numLocals; i++ {
		c.emitNumber(0, def.Span.StartLine)
	}

	prevInFunction, prevNumArgs, prevLocalSlot := c.inFunction, c.numArgs, c.numLocalSlot
	c.inFunction, c.numArgs, c.numLocalSlot = true, len(def.Params), 0

	c.sym.OpenScope()
	args := make([]*symbol, 0, len(def.Params))
	for i, name := range def.Params {
		args = append(args, c.sym.DeclareArgument(name, c.diags.file, def.Span.StartLine, i-len(def.Params)))
	}
	for _, s := range def.Body.Stmts {
		c.compileStatement(s)
		if c.diags.HasErrors() {
			break
		}
	}
	c.sym.CloseScope()
	// arguments are visible only inside their own function's body
	for _, a := range args {
		a.scopeEnded = true
	}
	c.asm.Emit(OpReturn)

	c.inFunction, c.numArgs, c.numLocalSlot = prevInFunction, prevNumArgs, prevLocalSlot
	c.asm.PlaceLabel(lSkip)
}

// countLocalDecls counts every `:=` declaration reachable inside n,
// the static upper bound on how many LOCAL slots compileProcDefinition
// must reserve before compiling the body.
func countLocalDecls(n parser.Node) int {
	switch e := n.(type) {
	case nil:
		return 0
	case *parser.Block:
		total := 0
		for _, s := range e.Stmts {
			total += countLocalDecls(s)
		}
		return total
	case *parser.Binary:
		total := countLocalDecls(e.Left) + countLocalDecls(e.Right)
		if e.Op == parser.OpAssign {
			total++
		}
		return total
	case *parser.Unary:
		return countLocalDecls(e.Expr)
	case *parser.Paren:
		return countLocalDecls(e.Inner)
	case *parser.Call:
		total := 0
		for _, a := range e.Args {
			total += countLocalDecls(a)
		}
		return total
	case *parser.If:
		return countLocalDecls(e.Cond) + countLocalDecls(e.Then) + countLocalDecls(e.Else)
	case *parser.While:
		return countLocalDecls(e.Cond) + countLocalDecls(e.Body)
	case *parser.For:
		return countLocalDecls(e.Init) + countLocalDecls(e.Cond) + countLocalDecls(e.Step) + countLocalDecls(e.Body)
	case *parser.Return:
		return countLocalDecls(e.Value)
	default:
		return 0
	}
}

// checkInitialized implements spec.md §4.4's post-compile sweep (I5):
// every declared GLOBAL must have been assigned at least once.
func (c *compiler) checkInitialized() {
	for _, s := range c.sym.globals {
		if s.kind == symGlobal && !s.initialized {
			c.diags.Errorfl("uninitialized", s.line, "`%s` is never assigned", s.name)
		}
	}
}
