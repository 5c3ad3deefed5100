package analyze

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stlang/internal/symbols"
	"stlang/internal/syntax"
	"stlang/internal/types"
)

func run(t *testing.T, src string) *Result {
	t.Helper()
	root, diags := syntax.Parse(src)
	require.Empty(t, diags, "test fixture must parse cleanly")
	tbl := symbols.Build("test.st", root)
	return Analyze("test.st", root, tbl)
}

func hasCode(r *Result, code string) bool {
	for _, d := range r.Diags {
		if d.Code == code {
			return true
		}
	}
	return false
}

func TestAssignToInputRejected(t *testing.T) {
	r := run(t, "FUNCTION_BLOCK FB VAR_INPUT x:INT; END_VAR x:=1; END_FUNCTION_BLOCK")
	assert.True(t, hasCode(r, CodeAssignToInput))
}

func TestAssignToConstantRejected(t *testing.T) {
	r := run(t, "PROGRAM P VAR CONSTANT c:INT:=1; END_VAR c:=2; END_PROGRAM")
	assert.True(t, hasCode(r, CodeAssignToConstant))
}

func TestPlainAssignOK(t *testing.T) {
	r := run(t, "PROGRAM P VAR x:INT; END_VAR x:=2; END_PROGRAM")
	assert.False(t, hasCode(r, CodeAssignToInput))
	assert.False(t, hasCode(r, CodeAssignToConstant))
}

func TestExitOutsideLoopRejected(t *testing.T) {
	r := run(t, "PROGRAM P EXIT; END_PROGRAM")
	assert.True(t, hasCode(r, CodeExitOutsideLoop))
}

func TestExitInsideLoopOK(t *testing.T) {
	r := run(t, "PROGRAM P WHILE TRUE DO EXIT; END_WHILE END_PROGRAM")
	assert.False(t, hasCode(r, CodeExitOutsideLoop))
}

func TestCaseWithoutElseWarns(t *testing.T) {
	r := run(t, "PROGRAM P VAR x:INT; END_VAR CASE x OF 1: x:=1; END_CASE END_PROGRAM")
	assert.True(t, hasCode(r, CodeCaseNotExhaustive))
}

func TestCaseWithElseOK(t *testing.T) {
	r := run(t, "PROGRAM P VAR x:INT; END_VAR CASE x OF 1: x:=1; ELSE x:=0; END_CASE END_PROGRAM")
	assert.False(t, hasCode(r, CodeCaseNotExhaustive))
}

func TestForControlVariableWriteRejected(t *testing.T) {
	r := run(t, "PROGRAM P VAR i:INT; END_VAR FOR i:=1 TO 10 DO i:=5; END_FOR END_PROGRAM")
	assert.True(t, hasCode(r, CodeForControlWrite))
}

func TestMixedArgOrderRejected(t *testing.T) {
	r := run(t, "PROGRAM P VAR t:TON; END_VAR t(PT:=T#100ms, TRUE); END_PROGRAM")
	assert.True(t, hasCode(r, CodeMixedArgOrder))
}

func TestPositionalBeforeFormalOK(t *testing.T) {
	r := run(t, "PROGRAM P VAR t:TON; END_VAR t(TRUE, PT:=T#100ms); END_PROGRAM")
	assert.False(t, hasCode(r, CodeMixedArgOrder))
}

func TestReturnTypeCompatibleOK(t *testing.T) {
	ok, _ := checkReturnType(types.DInt, types.Int)
	assert.True(t, ok)
}

func TestReturnTypeIncompatibleRejected(t *testing.T) {
	ok, msg := checkReturnType(types.Int, types.Real)
	assert.False(t, ok)
	assert.NotEmpty(t, msg)
}
