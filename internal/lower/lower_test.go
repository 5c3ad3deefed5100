package lower

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stlang/internal/symbols"
	"stlang/internal/syntax"
)

func lowerSrc(t *testing.T, src string) *Unit {
	t.Helper()
	root, diags := syntax.Parse(src)
	require.Empty(t, diags, "test fixture must parse cleanly")
	tbl := symbols.Build("test.st", root)
	unit, lowerDiags := Lower("test.st", root, tbl, src)
	require.Empty(t, lowerDiags)
	return unit
}

func onlyPOU(t *testing.T, u *Unit) POU {
	t.Helper()
	require.Len(t, u.POUs, 1)
	return u.POUs[0]
}

func TestLowerAssignAnchorsAtTarget(t *testing.T) {
	u := lowerSrc(t, "PROGRAM P\nVAR x:INT; END_VAR\nx:=1;\nEND_PROGRAM")
	p := onlyPOU(t, u)
	require.Len(t, p.Body, 1)
	assign, ok := p.Body[0].(*Assign)
	require.True(t, ok)
	assert.Equal(t, 3, assign.At.Line)
	ref, ok := assign.Target.(*NameRef)
	require.True(t, ok)
	assert.Equal(t, "x", ref.Name)
	assert.NotZero(t, ref.Symbol.Offset)
}

func TestLowerBinaryResolvesWiderNumeric(t *testing.T) {
	u := lowerSrc(t, "PROGRAM P\nVAR a:INT; b:DINT; c:DINT; END_VAR\nc:=a+b;\nEND_PROGRAM")
	p := onlyPOU(t, u)
	assign := p.Body[0].(*Assign)
	bin, ok := assign.Value.(*Binary)
	require.True(t, ok)
	assert.Equal(t, OpAdd, bin.Op)
	require.NotNil(t, bin.Type)
}

func TestLowerIfElsifElse(t *testing.T) {
	src := "PROGRAM P\nVAR x:INT; END_VAR\n" +
		"IF x=1 THEN x:=1; ELSIF x=2 THEN x:=2; ELSE x:=3; END_IF\n" +
		"END_PROGRAM"
	u := lowerSrc(t, src)
	p := onlyPOU(t, u)
	ifs, ok := p.Body[0].(*If)
	require.True(t, ok)
	assert.Len(t, ifs.Elifs, 1)
	assert.Len(t, ifs.Else, 1)
}

func TestLowerCaseWithElse(t *testing.T) {
	src := "PROGRAM P\nVAR x:INT; END_VAR\n" +
		"CASE x OF 1: x:=1; 2,3: x:=2; ELSE x:=0; END_CASE\n" +
		"END_PROGRAM"
	u := lowerSrc(t, src)
	p := onlyPOU(t, u)
	c, ok := p.Body[0].(*Case)
	require.True(t, ok)
	require.Len(t, c.Branches, 2)
	assert.Len(t, c.Branches[1].Labels, 2)
	assert.Len(t, c.Else, 1)
}

func TestLowerForCapturesControlVariable(t *testing.T) {
	src := "PROGRAM P\nVAR i:INT; END_VAR\n" +
		"FOR i:=1 TO 10 BY 2 DO x:=i; END_FOR\n" +
		"END_PROGRAM"
	u := lowerSrc(t, src)
	p := onlyPOU(t, u)
	f, ok := p.Body[0].(*For)
	require.True(t, ok)
	assert.Equal(t, "i", f.ControlName)
	require.NotNil(t, f.Step)
}

func TestLowerRefBecomesRefNode(t *testing.T) {
	u := lowerSrc(t, "PROGRAM P\nVAR x:INT; p:REF_TO INT; END_VAR\np:=REF(x);\nEND_PROGRAM")
	p := onlyPOU(t, u)
	assign := p.Body[0].(*Assign)
	ref, ok := assign.Value.(*Ref)
	require.True(t, ok)
	_, xIsName := ref.X.(*NameRef)
	assert.True(t, xIsName)
}

func TestLowerCallWithFormalArgs(t *testing.T) {
	u := lowerSrc(t, "PROGRAM P\nVAR t:TON; END_VAR\nt(IN:=TRUE, PT:=T#100ms);\nEND_PROGRAM")
	p := onlyPOU(t, u)
	stmt, ok := p.Body[0].(*ExprStmt)
	require.True(t, ok)
	require.Len(t, stmt.Call.Args, 2)
	assert.Equal(t, "IN", stmt.Call.Args[0].Name)
	assert.Equal(t, "PT", stmt.Call.Args[1].Name)
}

func TestLowerWhileAndRepeat(t *testing.T) {
	u := lowerSrc(t, "PROGRAM P\nVAR x:INT; END_VAR\n"+
		"WHILE x<10 DO x:=x+1; END_WHILE\n"+
		"REPEAT x:=x-1; UNTIL x<=0; END_REPEAT\n"+
		"END_PROGRAM")
	p := onlyPOU(t, u)
	require.Len(t, p.Body, 2)
	w, ok := p.Body[0].(*While)
	require.True(t, ok)
	require.NotNil(t, w.Cond)
	r, ok := p.Body[1].(*Repeat)
	require.True(t, ok)
	require.NotNil(t, r.Cond)
}

func TestLowerFunctionResultType(t *testing.T) {
	u := lowerSrc(t, "FUNCTION F : INT\nVAR_INPUT x:INT; END_VAR\nF:=x;\nEND_FUNCTION")
	p := onlyPOU(t, u)
	require.NotNil(t, p.Result)
}
