package runtime

import (
	"strings"
	"time"

	"stlang/internal/eval"
	"stlang/internal/types"
)

// fieldOf returns self.Fields[name], allocating a zero Value of t if
// absent — standard FB instances are normally fully populated by
// eval.Zero via the registered layout, but this guards direct
// construction in tests.
func fieldOf(self *eval.Value, name string, t *types.Type) *eval.Value {
	if self.Fields == nil {
		self.Fields = map[string]*eval.Value{}
	}
	v, ok := self.Fields[name]
	if !ok {
		v = eval.Zero(t)
		self.Fields[name] = v
	}
	return v
}

func boolIn(self *eval.Value, args map[string]*eval.Value, name string) bool {
	f := fieldOf(self, name, types.Bool)
	if a, ok := args[name]; ok {
		f.Bool = a.Bool
	}
	return f.Bool
}

func intIn(self *eval.Value, args map[string]*eval.Value, name string, t *types.Type) int64 {
	f := fieldOf(self, name, t)
	if a, ok := args[name]; ok {
		f.Int = a.Int
	}
	return f.Int
}

func setBool(self *eval.Value, name string, v bool) {
	fieldOf(self, name, types.Bool).Bool = v
}

func setInt(self *eval.Value, name string, t *types.Type, v int64) {
	fieldOf(self, name, t).Int = v
}

// timerLayout is the IEC Table 43 member layout shared by TP/TON/TOF:
// IN, PT:TIME -> Q, ET:TIME.
func timerLayout() []types.Field {
	return []types.Field{
		{Name: "IN", Type: types.Bool},
		{Name: "PT", Type: types.Time},
		{Name: "Q", Type: types.Bool},
		{Name: "ET", Type: types.Time},
		{Name: "__start", Type: types.LInt},
		{Name: "__running", Type: types.Bool},
	}
}

func startField(self *eval.Value) *eval.Value   { return fieldOf(self, "__start", types.LInt) }
func runningField(self *eval.Value) *eval.Value { return fieldOf(self, "__running", types.Bool) }

func tonStep(self *eval.Value, args map[string]*eval.Value, now time.Time) *eval.Fault {
	in := boolIn(self, args, "IN")
	pt := intIn(self, args, "PT", types.Time)
	start, running := startField(self), runningField(self)

	if in && !running.Bool {
		start.Int = now.UnixNano()
		running.Bool = true
	}
	if !in {
		running.Bool = false
		setInt(self, "ET", types.Time, 0)
		setBool(self, "Q", false)
		return nil
	}
	elapsed := now.UnixNano() - start.Int
	if elapsed > pt {
		elapsed = pt
	}
	if elapsed < 0 {
		elapsed = 0
	}
	setInt(self, "ET", types.Time, elapsed)
	setBool(self, "Q", elapsed >= pt)
	return nil
}

func tofStep(self *eval.Value, args map[string]*eval.Value, now time.Time) *eval.Fault {
	in := boolIn(self, args, "IN")
	pt := intIn(self, args, "PT", types.Time)
	start, running := startField(self), runningField(self)

	if !in && running.Bool {
		start.Int = now.UnixNano()
	}
	running.Bool = in

	if in {
		setInt(self, "ET", types.Time, 0)
		setBool(self, "Q", true)
		return nil
	}
	elapsed := now.UnixNano() - start.Int
	if elapsed > pt {
		elapsed = pt
	}
	if elapsed < 0 {
		elapsed = 0
	}
	setInt(self, "ET", types.Time, elapsed)
	setBool(self, "Q", elapsed < pt)
	return nil
}

func tpStep(self *eval.Value, args map[string]*eval.Value, now time.Time) *eval.Fault {
	in := boolIn(self, args, "IN")
	pt := intIn(self, args, "PT", types.Time)
	start, running := startField(self), runningField(self)
	prevIn := fieldOf(self, "__prevIn", types.Bool)

	if in && !prevIn.Bool && !running.Bool {
		start.Int = now.UnixNano()
		running.Bool = true
	}
	prevIn.Bool = in

	if !running.Bool {
		setInt(self, "ET", types.Time, 0)
		setBool(self, "Q", false)
		return nil
	}
	elapsed := now.UnixNano() - start.Int
	if elapsed >= pt {
		running.Bool = false
		setInt(self, "ET", types.Time, pt)
		setBool(self, "Q", false)
		return nil
	}
	setInt(self, "ET", types.Time, elapsed)
	setBool(self, "Q", true)
	return nil
}

// counterLayout is shared by CTU/CTD/CTUD variants; pvType varies by
// the INT/DINT/LINT/UDINT/ULINT suffix (spec.md §4.10).
func counterLayout(pvType *types.Type) []types.Field {
	return []types.Field{
		{Name: "CU", Type: types.Bool},
		{Name: "CD", Type: types.Bool},
		{Name: "R", Type: types.Bool},
		{Name: "LD", Type: types.Bool},
		{Name: "PV", Type: pvType},
		{Name: "Q", Type: types.Bool},
		{Name: "QU", Type: types.Bool},
		{Name: "QD", Type: types.Bool},
		{Name: "CV", Type: pvType},
		{Name: "__prevCU", Type: types.Bool},
		{Name: "__prevCD", Type: types.Bool},
	}
}

func ctuStepFor(pvType *types.Type) eval.FBStep {
	return func(self *eval.Value, args map[string]*eval.Value, now time.Time) *eval.Fault {
		cu := boolIn(self, args, "CU")
		r := boolIn(self, args, "R")
		pv := intIn(self, args, "PV", pvType)
		prevCU := fieldOf(self, "__prevCU", types.Bool)
		cv := fieldOf(self, "CV", pvType)

		if r {
			cv.Int = 0
		} else if cu && !prevCU.Bool {
			cv.Int++
		}
		prevCU.Bool = cu
		setBool(self, "Q", cv.Int >= pv)
		return nil
	}
}

func ctdStepFor(pvType *types.Type) eval.FBStep {
	return func(self *eval.Value, args map[string]*eval.Value, now time.Time) *eval.Fault {
		cd := boolIn(self, args, "CD")
		ld := boolIn(self, args, "LD")
		pv := intIn(self, args, "PV", pvType)
		prevCD := fieldOf(self, "__prevCD", types.Bool)
		cv := fieldOf(self, "CV", pvType)

		if ld {
			cv.Int = pv
		} else if cd && !prevCD.Bool {
			cv.Int--
		}
		prevCD.Bool = cd
		setBool(self, "Q", cv.Int <= 0)
		return nil
	}
}

func ctudStepFor(pvType *types.Type) eval.FBStep {
	return func(self *eval.Value, args map[string]*eval.Value, now time.Time) *eval.Fault {
		cu := boolIn(self, args, "CU")
		cd := boolIn(self, args, "CD")
		r := boolIn(self, args, "R")
		ld := boolIn(self, args, "LD")
		pv := intIn(self, args, "PV", pvType)
		prevCU := fieldOf(self, "__prevCU", types.Bool)
		prevCD := fieldOf(self, "__prevCD", types.Bool)
		cv := fieldOf(self, "CV", pvType)

		switch {
		case r:
			cv.Int = 0
		case ld:
			cv.Int = pv
		default:
			if cu && !prevCU.Bool {
				cv.Int++
			}
			if cd && !prevCD.Bool {
				cv.Int--
			}
		}
		prevCU.Bool = cu
		prevCD.Bool = cd
		setBool(self, "QU", cv.Int >= pv)
		setBool(self, "QD", cv.Int <= 0)
		return nil
	}
}

func edgeLayout() []types.Field {
	return []types.Field{
		{Name: "CLK", Type: types.Bool},
		{Name: "Q", Type: types.Bool},
		{Name: "__prevClk", Type: types.Bool},
	}
}

func rtrigStep(self *eval.Value, args map[string]*eval.Value, now time.Time) *eval.Fault {
	clk := boolIn(self, args, "CLK")
	prev := fieldOf(self, "__prevClk", types.Bool)
	setBool(self, "Q", clk && !prev.Bool)
	prev.Bool = clk
	return nil
}

func ftrigStep(self *eval.Value, args map[string]*eval.Value, now time.Time) *eval.Fault {
	clk := boolIn(self, args, "CLK")
	prev := fieldOf(self, "__prevClk", types.Bool)
	setBool(self, "Q", !clk && prev.Bool)
	prev.Bool = clk
	return nil
}

func bistableLayout(setName, resetName string) []types.Field {
	return []types.Field{
		{Name: setName, Type: types.Bool},
		{Name: resetName, Type: types.Bool},
		{Name: "Q1", Type: types.Bool},
	}
}

// srStep implements the set-dominant SR bistable (S1, R -> Q1).
func srStep(self *eval.Value, args map[string]*eval.Value, now time.Time) *eval.Fault {
	s1 := boolIn(self, args, "S1")
	r := boolIn(self, args, "R")
	q1 := fieldOf(self, "Q1", types.Bool)
	if s1 {
		q1.Bool = true
	} else if r {
		q1.Bool = false
	}
	return nil
}

// rsStep implements the reset-dominant RS bistable (S, R1 -> Q1).
func rsStep(self *eval.Value, args map[string]*eval.Value, now time.Time) *eval.Fault {
	s := boolIn(self, args, "S")
	r1 := boolIn(self, args, "R1")
	q1 := fieldOf(self, "Q1", types.Bool)
	if r1 {
		q1.Bool = false
	} else if s {
		q1.Bool = true
	}
	return nil
}

// RegisterStandardFBs installs the IEC Table 43-46 standard function
// blocks into reg, and registers their member layouts with eval so
// Zero() default-initializes instances declared from these types
// (spec.md §4.10).
func RegisterStandardFBs(reg *eval.Registry) {
	eval.RegisterFBLayout("TP", timerLayout())
	eval.RegisterFBLayout("TON", timerLayout())
	eval.RegisterFBLayout("TOF", timerLayout())
	eval.RegisterFBLayout("TP_TIME", timerLayout())
	eval.RegisterFBLayout("TON_TIME", timerLayout())
	eval.RegisterFBLayout("TOF_TIME", timerLayout())
	reg.AddFBType("TP", tpStep)
	reg.AddFBType("TON", tonStep)
	reg.AddFBType("TOF", tofStep)
	reg.AddFBType("TP_TIME", tpStep)
	reg.AddFBType("TON_TIME", tonStep)
	reg.AddFBType("TOF_TIME", tofStep)

	counterVariants := map[string]*types.Type{
		"":      types.Int, // CTU/CTD/CTUD default to INT, per IEC
		"_INT":  types.Int,
		"_DINT": types.DInt,
		"_LINT": types.LInt,
		"_UDINT": types.UDInt,
		"_ULINT": types.ULInt,
	}
	for suffix, pv := range counterVariants {
		eval.RegisterFBLayout("CTU"+suffix, counterLayout(pv))
		eval.RegisterFBLayout("CTD"+suffix, counterLayout(pv))
		eval.RegisterFBLayout("CTUD"+suffix, counterLayout(pv))
		reg.AddFBType("CTU"+suffix, ctuStepFor(pv))
		reg.AddFBType("CTD"+suffix, ctdStepFor(pv))
		reg.AddFBType("CTUD"+suffix, ctudStepFor(pv))
	}

	eval.RegisterFBLayout("R_TRIG", edgeLayout())
	eval.RegisterFBLayout("F_TRIG", edgeLayout())
	reg.AddFBType("R_TRIG", rtrigStep)
	reg.AddFBType("F_TRIG", ftrigStep)

	eval.RegisterFBLayout("SR", bistableLayout("S1", "R"))
	eval.RegisterFBLayout("RS", bistableLayout("S", "R1"))
	reg.AddFBType("SR", srStep)
	reg.AddFBType("RS", rsStep)
}

// StandardFBName reports whether name (case-insensitive) is one of the
// standard FB types RegisterStandardFBs installs, for the diagnostics
// pass and IDE completion to recognize it as a stdlib identifier.
func StandardFBName(name string) bool {
	switch strings.ToUpper(name) {
	case "TP", "TON", "TOF", "TP_TIME", "TON_TIME", "TOF_TIME",
		"CTU", "CTD", "CTUD",
		"CTU_INT", "CTU_DINT", "CTU_LINT", "CTU_UDINT", "CTU_ULINT",
		"CTD_INT", "CTD_DINT", "CTD_LINT", "CTD_UDINT", "CTD_ULINT",
		"CTUD_INT", "CTUD_DINT", "CTUD_LINT", "CTUD_UDINT", "CTUD_ULINT",
		"R_TRIG", "F_TRIG", "SR", "RS":
		return true
	}
	return false
}
