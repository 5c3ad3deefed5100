package syntax

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundTripsSource(t *testing.T) {
	srcs := []string{
		"PROGRAM P VAR c:INT:=0; inc:BOOL; END_VAR IF inc THEN c:=c+1; END_IF; END_PROGRAM",
		"FUNCTION F : INT VAR_INPUT a,b:INT; END_VAR F := a + b * 2; END_FUNCTION",
		"FUNCTION_BLOCK FB VAR_INPUT x:BOOL; END_VAR VAR y:TON; END_VAR y(IN:=x, PT:=T#100ms); END_FUNCTION_BLOCK",
		"TYPE Pt : STRUCT x:INT; y:INT; END_STRUCT END_TYPE",
		"PROGRAM P FOR i:=1 TO 10 BY 2 DO ; END_FOR END_PROGRAM",
		"PROGRAM P CASE x OF 1,2: y:=1; ELSE y:=0; END_CASE END_PROGRAM",
	}
	for _, src := range srcs {
		root, _ := Parse(src)
		assert.Equal(t, src, root.Text(), "lossless round trip for: %s", src)
	}
}

func TestParseNeverPanicsOnGarbage(t *testing.T) {
	assert.NotPanics(t, func() {
		root, diags := Parse("PROGRAM IF THEN VAR VAR_INPUT @@@ )))")
		assert.NotEmpty(t, diags)
		_ = root.Text()
	})
}

func TestParseRecoversMissingSemicolon(t *testing.T) {
	// Missing ';' after the assignment; parser should still produce a
	// full tree and report exactly one diagnostic at the gap.
	src := "PROGRAM P VAR c:INT; END_VAR c:=1 END_PROGRAM"
	root, diags := Parse(src)
	require.Len(t, diags, 1)
	assert.Equal(t, NodeFile, root.Kind())
}

func TestExpressionPrecedence(t *testing.T) {
	root, diags := Parse("PROGRAM P VAR x:INT; END_VAR x := 1 + 2 * 3; END_PROGRAM")
	assert.Empty(t, diags)
	assert.Equal(t, "PROGRAM P VAR x:INT; END_VAR x := 1 + 2 * 3; END_PROGRAM", root.Text())

	stmts := root.Children()[0].Children()[1]
	rhs := stmts.Children()[0].Children()[1]
	require.Equal(t, NodeExprBinary, rhs.Kind())
	assert.Equal(t, "+", rhs.Tokens()[0].Token.Text)
	assert.Equal(t, NodeExprBinary, rhs.Children()[1].Kind(), "2 * 3 must be the right operand of +")
}

func TestCallWithFormalArgs(t *testing.T) {
	src := "PROGRAM P VAR t:TON; END_VAR t(IN:=TRUE, PT:=T#100ms, Q=>q); END_PROGRAM"
	root, diags := Parse(src)
	assert.Empty(t, diags)
	assert.Equal(t, src, root.Text())
}
