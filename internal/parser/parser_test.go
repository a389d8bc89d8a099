package parser_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiny-lang/tiny/internal/parser"
)

func parseOne(t *testing.T, source string) parser.Node {
	t.Helper()
	p, err := parser.New(source)
	require.NoError(t, err)
	block, err := p.Parse()
	require.NoError(t, err)
	require.Len(t, block.Stmts, 1)
	return block.Stmts[0]
}

func TestParserAssignmentIsRightAssociative(t *testing.T) {
	// x := y := 1  should parse as  x := (y := 1)
	n := parseOne(t, "x := y := 1;")
	bin, ok := n.(*parser.Binary)
	require.True(t, ok)
	assert.Equal(t, parser.OpAssign, bin.Op)
	inner, ok := bin.Right.(*parser.Binary)
	require.True(t, ok)
	assert.Equal(t, parser.OpAssign, inner.Op)
}

func TestParserPrecedence(t *testing.T) {
	// 1 + 2 * 3 should parse as 1 + (2 * 3)
	n := parseOne(t, "1 + 2 * 3;")
	bin, ok := n.(*parser.Binary)
	require.True(t, ok)
	assert.Equal(t, parser.OpAdd, bin.Op)
	rhs, ok := bin.Right.(*parser.Binary)
	require.True(t, ok)
	assert.Equal(t, parser.OpMul, rhs.Op)
}

func TestParserComparisonBindsLooserThanArithmetic(t *testing.T) {
	n := parseOne(t, "1 + 1 < 3;")
	bin, ok := n.(*parser.Binary)
	require.True(t, ok)
	assert.Equal(t, parser.OpLt, bin.Op)
	_, ok = bin.Left.(*parser.Binary)
	require.True(t, ok)
}

func TestParserLogicBindsLooserThanComparison(t *testing.T) {
	n := parseOne(t, "a < b and c < d;")
	bin, ok := n.(*parser.Binary)
	require.True(t, ok)
	assert.Equal(t, parser.OpAnd, bin.Op)
}

func TestParserUnaryBindsTighterThanBinary(t *testing.T) {
	n := parseOne(t, "-1 + 2;")
	bin, ok := n.(*parser.Binary)
	require.True(t, ok)
	assert.Equal(t, parser.OpAdd, bin.Op)
	_, ok = bin.Left.(*parser.Unary)
	require.True(t, ok)
}

func TestParserCallWithArgs(t *testing.T) {
	n := parseOne(t, "foo(1, 2, bar());")
	call, ok := n.(*parser.Call)
	require.True(t, ok)
	assert.Equal(t, "foo", call.Callee)
	require.Len(t, call.Args, 3)
	_, ok = call.Args[2].(*parser.Call)
	assert.True(t, ok)
}

func TestParserProcDefinition(t *testing.T) {
	n := parseOne(t, "func add(a, b) { return a + b; }")
	def, ok := n.(*parser.ProcDefinition)
	require.True(t, ok)
	assert.Equal(t, "add", def.Name)
	assert.Equal(t, []string{"a", "b"}, def.Params)
	require.Len(t, def.Body.Stmts, 1)
	ret, ok := def.Body.Stmts[0].(*parser.Return)
	require.True(t, ok)
	assert.NotNil(t, ret.Value)
}

func TestParserIfElse(t *testing.T) {
	n := parseOne(t, "if a < b { c := 1; } else { c := 2; }")
	ifNode, ok := n.(*parser.If)
	require.True(t, ok)
	assert.NotNil(t, ifNode.Then)
	assert.NotNil(t, ifNode.Else)
}

func TestParserElseIfChain(t *testing.T) {
	n := parseOne(t, "if a { x := 1; } else if b { x := 2; } else { x := 3; }")
	ifNode, ok := n.(*parser.If)
	require.True(t, ok)
	elseIf, ok := ifNode.Else.(*parser.If)
	require.True(t, ok)
	assert.NotNil(t, elseIf.Else)
}

func TestParserWhile(t *testing.T) {
	n := parseOne(t, "while i < 10 { i += 1; }")
	w, ok := n.(*parser.While)
	require.True(t, ok)
	assert.NotNil(t, w.Cond)
}

func TestParserFor(t *testing.T) {
	n := parseOne(t, "for i := 0; i < 10; i += 1 { sum += i; }")
	f, ok := n.(*parser.For)
	require.True(t, ok)
	assert.NotNil(t, f.Init)
	assert.NotNil(t, f.Cond)
	assert.NotNil(t, f.Step)
}

func TestParserSyntaxError(t *testing.T) {
	p, err := parser.New("1 + ;")
	require.NoError(t, err)
	_, err = p.Parse()
	require.Error(t, err)
	var perr *parser.ParseError
	require.ErrorAs(t, err, &perr)
}
