package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stlang/internal/eval"
	"stlang/internal/lower"
	"stlang/internal/runtime"
	"stlang/internal/symbols"
	"stlang/internal/syntax"
)

func lowerPOU(t *testing.T, src, name string) (*lower.POU, *eval.Registry) {
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

func newTestResource(t *testing.T, src, pouName string) (*Resource, *lower.POU) {
	t.Helper()
	pou, reg := lowerPOU(t, src, pouName)
	res := runtime.NewResource("R", reg, [3]int{1, 1, 1}, eval.DefaultPolicy(), nil, nil, nil)
	return NewResource(res, nil, nil, nil), pou
}

func TestRunCyclePriorityOrder(t *testing.T) {
	res, pou := newTestResource(t, `
PROGRAM P
VAR
	order : INT;
	counter : INT;
END_VAR
	counter := counter + 1;
	order := counter;
END_PROGRAM`, "P")

	frame := eval.NewFrame()
	low := &Task{Name: "low", Priority: 10, DeclOrder: 1, Programs: []ProgramRef{{Name: "P", POU: pou, Frame: frame}}}
	high := &Task{Name: "high", Priority: 1, DeclOrder: 0, Programs: []ProgramRef{{Name: "P", POU: pou, Frame: frame}}}
	res.Tasks = []*Task{low, high}
	// Re-sort as NewResource would, since we set Tasks after construction.
	res = NewResource(res.Resource, res.Tasks, nil, nil)

	require.NoError(t, res.RunCycle())
	assert.Equal(t, res.Tasks[0].Name, "high", "higher priority (lower number) must be ordered first")
}

func TestTaskEventReadyOnRisingEdge(t *testing.T) {
	img := runtime.NewProcessImage(1, 0, 0)
	addr := runtime.Address{Area: runtime.AreaInput, Size: runtime.SizeBit, Byte: 0, Bit: 0}
	task := &Task{HasSingle: true, Single: addr}

	ready, err := task.ready(time.Time{}, img)
	require.NoError(t, err)
	assert.False(t, ready, "must not be ready while SINGLE is low")

	require.NoError(t, img.WriteBool(addr, true))
	ready, err = task.ready(time.Time{}, img)
	require.NoError(t, err)
	assert.True(t, ready, "rising edge of SINGLE must trigger the task")

	ready, err = task.ready(time.Time{}, img)
	require.NoError(t, err)
	assert.False(t, ready, "holding SINGLE high must not re-trigger without a new edge")
}

func TestTaskPeriodicReadyRequiresSingleLow(t *testing.T) {
	img := runtime.NewProcessImage(1, 0, 0)
	addr := runtime.Address{Area: runtime.AreaInput, Size: runtime.SizeBit, Byte: 0, Bit: 0}
	task := &Task{HasSingle: true, Single: addr, Interval: 10 * time.Millisecond}

	t0 := time.Unix(0, 0)
	ready, err := task.ready(t0, img)
	require.NoError(t, err)
	assert.True(t, ready, "first periodic check with SINGLE low must fire immediately")
	task.lastRun = t0
	task.ranOnce = true

	ready, err = task.ready(t0.Add(time.Millisecond), img)
	require.NoError(t, err)
	assert.False(t, ready, "must not fire again before the interval elapses")

	ready, err = task.ready(t0.Add(11*time.Millisecond), img)
	require.NoError(t, err)
	assert.True(t, ready, "must fire again once the interval elapses")
}

func TestWatchdogTripsToSafeStateAndFault(t *testing.T) {
	res, pou := newTestResource(t, `
PROGRAM P
VAR
	x : INT;
END_VAR
	x := x + 1;
END_PROGRAM`, "P")
	frame := eval.NewFrame()
	res.Tasks = []*Task{{Name: "t", Programs: []ProgramRef{{Name: "P", POU: pou, Frame: frame}}}}
	res.CycleBudget = time.Nanosecond
	addr := runtime.Address{Area: runtime.AreaOutput, Size: runtime.SizeBit, Byte: 0, Bit: 0}
	require.NoError(t, res.Image.WriteBool(addr, true))
	res.Safe = SafeState{addr: false}

	require.NoError(t, res.RunCycle())
	assert.Equal(t, StateFault, res.State)
	require.NotNil(t, res.Fault)
	assert.Equal(t, eval.FaultWatchdogTimeout, res.Fault.Kind)

	v, err := res.Image.ReadBool(addr)
	require.NoError(t, err)
	assert.False(t, v, "watchdog must drive configured outputs to their safe state")
}

func TestFaultedResourceSkipsFurtherCycles(t *testing.T) {
	res, pou := newTestResource(t, `
PROGRAM P
VAR
	a : INT;
	b : INT;
END_VAR
	a := a / b;
END_PROGRAM`, "P")
	frame := eval.NewFrame()
	res.Tasks = []*Task{{Name: "t", Programs: []ProgramRef{{Name: "P", POU: pou, Frame: frame}}}}

	require.NoError(t, res.RunCycle())
	assert.Equal(t, StateFault, res.State)
	assert.Equal(t, eval.FaultDivByZero, res.Fault.Kind)

	require.NoError(t, res.RunCycle(), "RunCycle on a faulted resource must be a no-op, not re-panic")
}
