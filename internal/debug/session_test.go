package debug

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stlang/internal/eval"
	"stlang/internal/lower"
	"stlang/internal/symbols"
	"stlang/internal/syntax"
)

func lowerTestPOU(t *testing.T, src, name string) (*lower.POU, *eval.Registry) {
	t.Helper()
	root, diags := syntax.Parse(src)
	require.Empty(t, diags)
	tbl := symbols.Build("test.st", root)
	unit, lowerDiags := lower.Lower("test.st", root, tbl, src)
	require.Empty(t, lowerDiags)
	reg := eval.NewRegistry()
	reg.AddUnit(unit)
	for i := range unit.POUs {
		if unit.POUs[i].Name == name {
			return &unit.POUs[i], reg
		}
	}
	t.Fatalf("POU %q not found", name)
	return nil, nil
}

const countSrc = `
PROGRAM P
VAR
	i : INT;
	total : INT;
END_VAR
	i := 0;
	WHILE i < 3 DO
		total := total + i;
		i := i + 1;
	END_WHILE;
END_PROGRAM`

func TestBreakpointStopsAndContinueRuns(t *testing.T) {
	pou, reg := lowerTestPOU(t, countSrc, "P")
	it := eval.New(reg, eval.NewFrame(), eval.DefaultPolicy())
	sess := New(nil)
	sess.RegisterFile("P", "test.st")
	sess.Attach(it)
	sess.SetBreakpoints("test.st", []int{7}) // "i := 0;", executed exactly once

	done := make(chan *eval.Fault, 1)
	frame := eval.NewFrame()
	go func() {
		_, flt := it.Run(pou, frame)
		done <- flt
	}()

	waitPaused(t, sess)
	assert.Equal(t, ReasonBreakpoint, sess.StopReason())
	trace := sess.StackTrace()
	require.Len(t, trace, 1)
	assert.Equal(t, "P", trace[0].POU)
	assert.Equal(t, 7, trace[0].Line)

	require.NoError(t, sess.Continue())
	select {
	case flt := <-done:
		require.Nil(t, flt)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for program to finish after Continue")
	}
}

func TestReloadClearsBreakpoints(t *testing.T) {
	sess := New(nil)
	bps := sess.SetBreakpoints("test.st", []int{5, 6})
	require.Len(t, bps, 2)
	assert.Equal(t, 1, bps[0].Generation)

	sess.Reload("test.st")
	assert.Empty(t, sess.breakpoints["test.st"])

	bps = sess.SetBreakpoints("test.st", []int{5})
	assert.Equal(t, 2, bps[0].Generation, "generation must bump across a reload")
}

func TestStepOverSkipsNestedDepth(t *testing.T) {
	pou, reg := lowerTestPOU(t, countSrc, "P")
	it := eval.New(reg, eval.NewFrame(), eval.DefaultPolicy())
	sess := New(nil)
	sess.RegisterFile("P", "test.st")
	sess.Attach(it)
	sess.SetBreakpoints("test.st", []int{7}) // "i := 0;", the first statement

	done := make(chan *eval.Fault, 1)
	frame := eval.NewFrame()
	go func() {
		_, flt := it.Run(pou, frame)
		done <- flt
	}()
	waitPaused(t, sess)
	require.Equal(t, ReasonBreakpoint, sess.StopReason())

	require.NoError(t, sess.StepOver())
	waitPaused(t, sess)
	assert.Equal(t, ReasonStep, sess.StopReason())
	trace := sess.StackTrace()
	require.Len(t, trace, 1)
	assert.Equal(t, 8, trace[0].Line, "step-over from line 7 must land on the WHILE statement at the same depth")

	require.NoError(t, sess.Continue())
	<-done
}

func waitPaused(t *testing.T, sess *Session) {
	t.Helper()
	deadline := time.After(time.Second)
	for sess.State() != StatePaused {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for pause")
		default:
			time.Sleep(time.Millisecond)
		}
	}
}
