package symbols

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stlang/internal/syntax"
)

func build(t *testing.T, src string) *Table {
	t.Helper()
	root, diags := syntax.Parse(src)
	require.Empty(t, diags, "test fixture must parse cleanly")
	return Build("test.st", root)
}

func TestDeclaresProgramAndVariables(t *testing.T) {
	tbl := build(t, "PROGRAM P VAR c:INT:=0; inc:BOOL; END_VAR END_PROGRAM")
	_, ok := tbl.Global.Symbols["P"]
	require.True(t, ok)

	pouScope := tbl.Global.Children[0]
	_, ok = pouScope.Symbols["c"]
	assert.True(t, ok)
	_, ok = pouScope.Symbols["inc"]
	assert.True(t, ok)
}

func TestDuplicateDeclaration(t *testing.T) {
	tbl := build(t, "PROGRAM P VAR c:INT; c:BOOL; END_VAR END_PROGRAM")
	require.Len(t, tbl.Diags, 1)
	assert.Equal(t, CodeDuplicateDeclaration, tbl.Diags[0].Code)
}

func TestInvalidQualifierCombination(t *testing.T) {
	tbl := build(t, "PROGRAM P VAR CONSTANT RETAIN c:INT:=1; END_VAR END_PROGRAM")
	require.Len(t, tbl.Diags, 1)
	assert.Equal(t, CodeInvalidQualifierCombo, tbl.Diags[0].Code)
}

func TestEdgeQualifierMisplaced(t *testing.T) {
	tbl := build(t, "PROGRAM P VAR x R_EDGE : BOOL; END_VAR END_PROGRAM")
	require.Len(t, tbl.Diags, 1)
	assert.Equal(t, CodeEdgeQualifierMisplaced, tbl.Diags[0].Code)
}

func TestEdgeQualifierAllowedInVarInput(t *testing.T) {
	tbl := build(t, "FUNCTION_BLOCK FB VAR_INPUT x R_EDGE : BOOL; END_VAR END_FUNCTION_BLOCK")
	assert.Empty(t, tbl.Diags)
}

func TestResolveWalksOutward(t *testing.T) {
	tbl := build(t, "PROGRAM P VAR x:INT; END_VAR END_PROGRAM")
	pouScope := tbl.Global.Children[0]
	sym, ok := Resolve(pouScope, "x")
	require.True(t, ok)
	assert.Equal(t, "x", sym.Name)

	_, ok = Resolve(pouScope, "P")
	assert.True(t, ok, "POU scope can resolve its own declaration via the global parent")
}
