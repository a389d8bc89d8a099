package parser

import (
	"fmt"

	"github.com/tiny-lang/tiny/internal/lexer"
)

// ParseError reports a syntax error at a specific source position. A
// single concrete type is enough here since tiny's recursive-descent
// parser has no backtracking predicates to distinguish.
type ParseError struct {
	Line, Column int
	Msg          string
}

func (e *ParseError) Error() string { return e.Msg }

// precedence levels, spec.md §4.2: assignment family lowest (1), then
// and/or (2), comparisons (3), +/- (4), */ /% /&/| (5); unary binds
// tighter than any binary operator.
const (
	precNone = iota
	precAssign
	precLogic
	precCompare
	precAdd
	precMul
)

var binOpTable = map[lexer.TokenKind]struct {
	op    BinaryOp
	prec  int
	right bool
}{
	lexer.Assign:    {OpAssign, precAssign, true},
	lexer.ConstBind: {OpBind, precAssign, true},
	lexer.Set:       {OpSet, precAssign, true},
	lexer.PlusEq:    {OpAddEq, precAssign, true},
	lexer.MinusEq:   {OpSubEq, precAssign, true},
	lexer.StarEq:    {OpMulEq, precAssign, true},
	lexer.SlashEq:   {OpDivEq, precAssign, true},
	lexer.PercentEq: {OpModEq, precAssign, true},
	lexer.AmpEq:     {OpAndEq, precAssign, true},
	lexer.PipeEq:    {OpOrEq, precAssign, true},

	lexer.Eq:    {OpEq, precCompare, false},
	lexer.NotEq: {OpNotEq, precCompare, false},
	lexer.Less:     {OpLt, precCompare, false},
	lexer.LessEq:   {OpLte, precCompare, false},
	lexer.Greater:  {OpGt, precCompare, false},
	lexer.GreaterEq: {OpGte, precCompare, false},

	lexer.Plus:  {OpAdd, precAdd, false},
	lexer.Minus: {OpSub, precAdd, false},

	lexer.Star:    {OpMul, precMul, false},
	lexer.Slash:   {OpDiv, precMul, false},
	lexer.Percent: {OpMod, precMul, false},
	lexer.Amp:     {OpBitAnd, precMul, false},
	lexer.Pipe:    {OpBitOr, precMul, false},
}

// `and`/`or` are Keyword tokens, not operator punctuation, so they are
// matched by text rather than TokenKind in nextBinOp.
func keywordBinOp(tok lexer.Token) (BinaryOp, int, bool, bool) {
	if tok.Kind != lexer.Keyword {
		return 0, 0, false, false
	}
	switch tok.Text {
	case "and":
		return OpAnd, precLogic, false, true
	case "or":
		return OpOr, precLogic, false, true
	default:
		return 0, 0, false, false
	}
}

// Parser is a recursive-descent parser with Pratt precedence climbing
// for expressions, over spec.md §4.2's procedural grammar.
type Parser struct {
	lex     *lexer.Lexer
	tok     lexer.Token
	peeked  *lexer.Token
	lastErr error
}

// New creates a Parser over source, primed with the first token.
func New(source string) (*Parser, error) {
	p := &Parser{lex: lexer.New(source)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Parser) advance() error {
	if p.peeked != nil {
		p.tok = *p.peeked
		p.peeked = nil
		return nil
	}
	tok, err := p.lex.Next()
	if err != nil {
		return p.wrapLexErr(err)
	}
	p.tok = tok
	return nil
}

func (p *Parser) peek() (lexer.Token, error) {
	if p.peeked != nil {
		return *p.peeked, nil
	}
	tok, err := p.lex.Next()
	if err != nil {
		return tok, p.wrapLexErr(err)
	}
	p.peeked = &tok
	return tok, nil
}

func (p *Parser) wrapLexErr(err error) error {
	if le, ok := err.(*lexer.LexError); ok {
		return &ParseError{Line: le.Line, Column: le.Column, Msg: le.Msg}
	}
	return err
}

func (p *Parser) errorf(format string, args ...any) error {
	return &ParseError{Line: p.tok.Line, Column: p.tok.Column, Msg: fmt.Sprintf(format, args...)}
}

func (p *Parser) span(startLine, startCol, startCur int) Span {
	return Span{
		StartLine: startLine, StartColumn: startCol, StartCursor: startCur,
		EndLine: p.tok.Line, EndColumn: p.tok.Column, EndCursor: p.tok.Cursor,
	}
}

func (p *Parser) expect(k lexer.TokenKind) (lexer.Token, error) {
	if p.tok.Kind != k {
		return p.tok, p.errorf("expected %s, got %s", k, p.tok.Kind)
	}
	tok := p.tok
	return tok, p.advance()
}

func (p *Parser) at(k lexer.TokenKind) bool { return p.tok.Kind == k }

func (p *Parser) atKeyword(kw string) bool {
	return p.tok.Kind == lexer.Keyword && p.tok.Text == kw
}

// Parse parses the whole source unit as a sequence of top-level
// statements, returning them wrapped in a synthetic Block.
func (p *Parser) Parse() (*Block, error) {
	start := p.tok
	var stmts []Node
	for !p.at(lexer.EOF) {
		s, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	return &Block{Span: p.span(start.Line, start.Column, start.Cursor), Stmts: stmts}, nil
}

func (p *Parser) parseStatement() (Node, error) {
	switch {
	case p.atKeyword("func"):
		return p.parseProcDefinition()
	case p.atKeyword("if"):
		return p.parseIf()
	case p.atKeyword("while"):
		return p.parseWhile()
	case p.atKeyword("for"):
		return p.parseFor()
	case p.atKeyword("return"):
		return p.parseReturn()
	case p.at(lexer.LBrace):
		return p.parseBlock()
	default:
		return p.parseExprStatement()
	}
}

func (p *Parser) parseExprStatement() (Node, error) {
	expr, err := p.parseStatementExpr()
	if err != nil {
		return nil, err
	}
	if p.at(lexer.Semicolon) {
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	return expr, nil
}

func (p *Parser) parseBlock() (*Block, error) {
	start := p.tok
	if _, err := p.expect(lexer.LBrace); err != nil {
		return nil, err
	}
	var stmts []Node
	for !p.at(lexer.RBrace) {
		if p.at(lexer.EOF) {
			return nil, p.errorf("unterminated block, expected `}`")
		}
		s, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	if _, err := p.expect(lexer.RBrace); err != nil {
		return nil, err
	}
	return &Block{Span: p.span(start.Line, start.Column, start.Cursor), Stmts: stmts}, nil
}

func (p *Parser) parseProcDefinition() (*ProcDefinition, error) {
	start := p.tok
	if err := p.advance(); err != nil { // `func`
		return nil, err
	}
	name, err := p.expect(lexer.Ident)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.LParen); err != nil {
		return nil, err
	}
	var params []string
	for !p.at(lexer.RParen) {
		param, err := p.expect(lexer.Ident)
		if err != nil {
			return nil, err
		}
		params = append(params, param.Text)
		if p.at(lexer.Comma) {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if _, err := p.expect(lexer.RParen); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ProcDefinition{
		Span: p.span(start.Line, start.Column, start.Cursor), Name: name.Text, Params: params, Body: body,
	}, nil
}

func (p *Parser) parseIf() (*If, error) {
	start := p.tok
	if err := p.advance(); err != nil { // `if`
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	then, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	var elseNode Node
	if p.atKeyword("else") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.atKeyword("if") {
			elseIf, err := p.parseIf()
			if err != nil {
				return nil, err
			}
			elseNode = elseIf
		} else {
			elseBlock, err := p.parseBlock()
			if err != nil {
				return nil, err
			}
			elseNode = elseBlock
		}
	}
	return &If{Span: p.span(start.Line, start.Column, start.Cursor), Cond: cond, Then: then, Else: elseNode}, nil
}

func (p *Parser) parseWhile() (*While, error) {
	start := p.tok
	if err := p.advance(); err != nil { // `while`
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &While{Span: p.span(start.Line, start.Column, start.Cursor), Cond: cond, Body: body}, nil
}

func (p *Parser) parseFor() (*For, error) {
	start := p.tok
	if err := p.advance(); err != nil { // `for`
		return nil, err
	}
	init, err := p.parseStatementExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.Semicolon); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.Semicolon); err != nil {
		return nil, err
	}
	step, err := p.parseStatementExpr()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &For{
		Span: p.span(start.Line, start.Column, start.Cursor), Init: init, Cond: cond, Step: step, Body: body,
	}, nil
}

func (p *Parser) parseReturn() (*Return, error) {
	start := p.tok
	if err := p.advance(); err != nil { // `return`
		return nil, err
	}
	if p.at(lexer.Semicolon) || p.at(lexer.RBrace) {
		if p.at(lexer.Semicolon) {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
		return &Return{Span: p.span(start.Line, start.Column, start.Cursor)}, nil
	}
	val, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.at(lexer.Semicolon) {
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	return &Return{Span: p.span(start.Line, start.Column, start.Cursor), Value: val}, nil
}

// parseExpr parses a value-required expression: assignment operators
// (`:=`, `::`, `=`, and the compound `op=` family) are not valid here
// (spec.md §4.2 "using assignment as an expression is a fatal error"),
// only inside parseStatementExpr.
func (p *Parser) parseExpr() (Node, error) {
	return p.parseBinary(precLogic)
}

// parseStatementExpr parses a top-level statement expression, where an
// assignment operator is allowed to appear at the outermost level
// (`name := expr`, `name op= expr`, a bare call for effect, ...).
func (p *Parser) parseStatementExpr() (Node, error) {
	return p.parseBinary(precAssign)
}

// parseBinary implements Pratt precedence climbing: minPrec is the
// lowest-precedence operator this call is allowed to consume.
// Right-associative operators (the prec==precAssign family) parse their
// right operand at their own prec; every other operator parses it at
// prec+1.
func (p *Parser) parseBinary(minPrec int) (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op, prec, right, ok := p.currentBinOp()
		if !ok || prec < minPrec {
			return left, nil
		}
		opTok := p.tok
		if err := p.advance(); err != nil {
			return nil, err
		}
		nextMin := prec + 1
		if right {
			nextMin = prec
		}
		rhs, err := p.parseBinary(nextMin)
		if err != nil {
			return nil, err
		}
		left = &Binary{
			Span: Span{StartLine: left.Range().StartLine, StartColumn: left.Range().StartColumn, StartCursor: left.Range().StartCursor,
				EndLine: rhs.Range().EndLine, EndColumn: rhs.Range().EndColumn, EndCursor: rhs.Range().EndCursor},
			Op: op, Left: left, Right: rhs,
		}
		_ = opTok
	}
}

func (p *Parser) currentBinOp() (BinaryOp, int, bool, bool) {
	if e, ok := binOpTable[p.tok.Kind]; ok {
		return e.op, e.prec, e.right, true
	}
	return keywordBinOp(p.tok)
}

func (p *Parser) parseUnary() (Node, error) {
	start := p.tok
	if p.at(lexer.Minus) {
		if err := p.advance(); err != nil {
			return nil, err
		}
		expr, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Span: p.span(start.Line, start.Column, start.Cursor), Op: UnaryNeg, Expr: expr}, nil
	}
	if p.atKeyword("not") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		expr, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Span: p.span(start.Line, start.Column, start.Cursor), Op: UnaryNot, Expr: expr}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (Node, error) {
	start := p.tok
	switch {
	case p.at(lexer.Number):
		n := &Number{Span: p.span(start.Line, start.Column, start.Cursor), Value: start.Number}
		return n, p.advance()
	case p.at(lexer.String):
		n := &String{Span: p.span(start.Line, start.Column, start.Cursor), Value: start.Text}
		return n, p.advance()
	case p.atKeyword("null"):
		n := &Null{Span: p.span(start.Line, start.Column, start.Cursor)}
		return n, p.advance()
	case p.atKeyword("true"):
		n := &Bool{Span: p.span(start.Line, start.Column, start.Cursor), Value: true}
		return n, p.advance()
	case p.atKeyword("false"):
		n := &Bool{Span: p.span(start.Line, start.Column, start.Cursor), Value: false}
		return n, p.advance()
	case p.at(lexer.LParen):
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.RParen); err != nil {
			return nil, err
		}
		return &Paren{Span: p.span(start.Line, start.Column, start.Cursor), Inner: inner}, nil
	case p.at(lexer.Ident):
		return p.parseIdentOrCall(start)
	default:
		return nil, p.errorf("unexpected token %s", p.tok.Kind)
	}
}

func (p *Parser) parseIdentOrCall(start lexer.Token) (Node, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	if !p.at(lexer.LParen) {
		return &Identifier{Span: p.span(start.Line, start.Column, start.Cursor), Name: start.Text}, nil
	}
	if err := p.advance(); err != nil { // `(`
		return nil, err
	}
	var args []Node
	for !p.at(lexer.RParen) {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.at(lexer.Comma) {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if _, err := p.expect(lexer.RParen); err != nil {
		return nil, err
	}
	return &Call{Span: p.span(start.Line, start.Column, start.Cursor), Callee: start.Text, Args: args}, nil
}
