package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stlang/internal/lower"
	"stlang/internal/symbols"
	"stlang/internal/syntax"
)

func lowerSrc(t *testing.T, src string) *lower.Unit {
	t.Helper()
	root, diags := syntax.Parse(src)
	require.Empty(t, diags, "test fixture must parse cleanly")
	tbl := symbols.Build("test.st", root)
	unit, lowerDiags := lower.Lower("test.st", root, tbl, src)
	require.Empty(t, lowerDiags)
	return unit
}

func findPOU(t *testing.T, u *lower.Unit, name string) *lower.POU {
	t.Helper()
	for i := range u.POUs {
		if u.POUs[i].Name == name {
			return &u.POUs[i]
		}
	}
	t.Fatalf("POU %q not found", name)
	return nil
}

func runProgram(t *testing.T, src string) (*Frame, *Fault) {
	t.Helper()
	u := lowerSrc(t, src)
	pou := findPOU(t, u, "P")
	reg := NewRegistry()
	reg.AddUnit(u)
	frame := NewFrame()
	for _, p := range pou.Params {
		frame.set(p.Symbol, Zero(p.Type))
	}
	it := New(reg, NewFrame(), DefaultPolicy())
	_, flt := it.Run(pou, frame)
	return frame, flt
}

func varValue(t *testing.T, u *lower.Unit, frame *Frame, pouName, varName string) *Value {
	t.Helper()
	pou := findPOU(t, u, pouName)
	for _, s := range pou.Body {
		if a, ok := s.(*lower.Assign); ok {
			if ref, ok := a.Target.(*lower.NameRef); ok && ref.Name == varName {
				v, ok := frame.get(ref.Symbol)
				require.True(t, ok)
				return v
			}
		}
	}
	t.Fatalf("no assignment to %q found", varName)
	return nil
}

func TestEvalAssignAndArithmetic(t *testing.T) {
	src := "PROGRAM P\nVAR x:INT; y:INT; END_VAR\nx:=2+3*4;\ny:=x;\nEND_PROGRAM"
	frame, flt := runProgram(t, src)
	require.Nil(t, flt)
	u := lowerSrc(t, src)
	x := varValue(t, u, frame, "P", "x")
	assert.Equal(t, int64(14), x.Int)
	y := varValue(t, u, frame, "P", "y")
	assert.Equal(t, int64(14), y.Int)
}

func TestEvalDivByZeroFaults(t *testing.T) {
	src := "PROGRAM P\nVAR x:INT; d:INT; END_VAR\nd:=0;\nx:=10/d;\nEND_PROGRAM"
	_, flt := runProgram(t, src)
	require.NotNil(t, flt)
	assert.Equal(t, FaultDivByZero, flt.Kind)
}

func TestEvalIfElsif(t *testing.T) {
	src := "PROGRAM P\nVAR x:INT; r:INT; END_VAR\n" +
		"x:=2;\n" +
		"IF x=1 THEN r:=1; ELSIF x=2 THEN r:=2; ELSE r:=3; END_IF\n" +
		"END_PROGRAM"
	frame, flt := runProgram(t, src)
	require.Nil(t, flt)
	u := lowerSrc(t, src)
	r := varValue(t, u, frame, "P", "r")
	assert.Equal(t, int64(2), r.Int)
}

func TestEvalForAccumulates(t *testing.T) {
	src := "PROGRAM P\nVAR i:INT; sum:INT; END_VAR\n" +
		"sum:=0;\n" +
		"FOR i:=1 TO 5 DO sum:=sum+i; END_FOR\n" +
		"END_PROGRAM"
	frame, flt := runProgram(t, src)
	require.Nil(t, flt)
	u := lowerSrc(t, src)
	sum := varValue(t, u, frame, "P", "sum")
	assert.Equal(t, int64(15), sum.Int)
}

func TestEvalForStepZeroFaults(t *testing.T) {
	src := "PROGRAM P\nVAR i:INT; step:INT; END_VAR\n" +
		"step:=0;\n" +
		"FOR i:=1 TO 5 BY step DO i:=i; END_FOR\n" +
		"END_PROGRAM"
	_, flt := runProgram(t, src)
	require.NotNil(t, flt)
	assert.Equal(t, FaultForStepZero, flt.Kind)
}

func TestEvalWhileLoop(t *testing.T) {
	src := "PROGRAM P\nVAR x:INT; END_VAR\n" +
		"x:=0;\n" +
		"WHILE x<5 DO x:=x+1; END_WHILE\n" +
		"END_PROGRAM"
	frame, flt := runProgram(t, src)
	require.Nil(t, flt)
	u := lowerSrc(t, src)
	x := varValue(t, u, frame, "P", "x")
	assert.Equal(t, int64(5), x.Int)
}

func TestEvalShortCircuitAnd(t *testing.T) {
	src := "PROGRAM P\nVAR a:BOOL; b:BOOL; r:BOOL; END_VAR\n" +
		"a:=FALSE;\n" +
		"r:=a AND b;\n" +
		"END_PROGRAM"
	frame, flt := runProgram(t, src)
	require.Nil(t, flt)
	u := lowerSrc(t, src)
	r := varValue(t, u, frame, "P", "r")
	assert.False(t, r.Bool)
}

func TestEvalSubrangeViolationFaults(t *testing.T) {
	src := "PROGRAM P\nVAR x:INT(0..10); y:INT; END_VAR\n" +
		"y:=20;\n" +
		"x:=y;\n" +
		"END_PROGRAM"
	_, flt := runProgram(t, src)
	require.NotNil(t, flt)
	assert.Equal(t, FaultSubrangeViolation, flt.Kind)
}

func TestEvalIntegerOverflowSaturates(t *testing.T) {
	src := "PROGRAM P\nVAR x:SINT; y:INT; END_VAR\n" +
		"y:=200;\n" +
		"x:=y;\n" +
		"END_PROGRAM"
	u := lowerSrc(t, src)
	pou := findPOU(t, u, "P")
	reg := NewRegistry()
	reg.AddUnit(u)
	frame := NewFrame()
	policy := DefaultPolicy()
	policy[FaultIntegerOverflow] = ActionSaturate
	it := New(reg, NewFrame(), policy)
	_, flt := it.Run(pou, frame)
	require.Nil(t, flt)
	x := varValue(t, u, frame, "P", "x")
	assert.Equal(t, int64(127), x.Int)
}

func TestEvalRefTracksLaterWrites(t *testing.T) {
	src := "PROGRAM P\nVAR x:INT; p:REF_TO INT; y:INT; END_VAR\n" +
		"x:=1;\n" +
		"p:=REF(x);\n" +
		"x:=2;\n" +
		"y:=p^;\n" +
		"END_PROGRAM"
	frame, flt := runProgram(t, src)
	require.Nil(t, flt)
	u := lowerSrc(t, src)
	y := varValue(t, u, frame, "P", "y")
	assert.Equal(t, int64(2), y.Int)
}
