// Package eval tree-walks the lowered HIR, implementing IEC 61131-3
// execution semantics (spec.md §4.9): assignment coercion, structured
// control flow, call binding, short-circuit booleans, and the fault
// set with its configured policy.
package eval

import (
	"fmt"
	"math"
	"strings"
	"time"

	"stlang/internal/lower"
	"stlang/internal/symbols"
	"stlang/internal/types"
)

type signal int

const (
	sigNone signal = iota
	sigExit
	sigContinue
	sigReturn
)

// Interpreter executes lowered POU bodies against a Registry of
// callees and a shared Globals frame.
type Interpreter struct {
	Reg     *Registry
	Globals *Frame
	Policy  Policy

	// Clock supplies the wall-clock reading standard FBs (TON/TOF/TP
	// timers) stamp their elapsed-time computation against (spec.md
	// §5 "monotone wall-clock time via the Clock abstraction"). A nil
	// Clock defaults to time.Now, so tests can stub it out.
	Clock func() time.Time

	// StmtHook, when set, is called before every statement executes,
	// with the frame it will execute against and the current call
	// depth (incremented across nested POU calls by Run). internal/debug
	// uses this to implement breakpoints and stepping: a hook that
	// blocks until resumed pauses execution exactly at a statement
	// boundary (spec.md §4.12 "safe points are statement boundaries").
	StmtHook func(at lower.Anchor, frame *Frame, depth int)

	callDepth int
	stack     []StackEntry
}

// StackEntry is one active POU invocation's current position, for
// internal/debug's stack-trace requests.
type StackEntry struct {
	POU string
	At  lower.Anchor
}

// CallStack returns the active call stack, outermost frame first. The
// topmost entry's At reflects the statement about to execute. The
// returned slice is a copy and is not updated by later execution.
func (it *Interpreter) CallStack() []StackEntry {
	out := make([]StackEntry, len(it.stack))
	copy(out, it.stack)
	return out
}

// New constructs an Interpreter. A nil policy uses DefaultPolicy; a
// nil globals frame allocates an empty one.
func New(reg *Registry, globals *Frame, policy Policy) *Interpreter {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if globals == nil {
		globals = NewFrame()
	}
	return &Interpreter{Reg: reg, Globals: globals, Policy: policy}
}

func (it *Interpreter) now() time.Time {
	if it.Clock != nil {
		return it.Clock()
	}
	return time.Now()
}

// Run executes pou's body against frame (its VAR_INPUT/OUTPUT/TEMP
// storage, pre-bound by the caller) and returns the FUNCTION/METHOD
// result, or nil for PROGRAM/FUNCTION_BLOCK bodies.
func (it *Interpreter) Run(pou *lower.POU, frame *Frame) (*Value, *Fault) {
	it.callDepth++
	it.stack = append(it.stack, StackEntry{POU: pou.Name})
	defer func() {
		it.callDepth--
		it.stack = it.stack[:len(it.stack)-1]
	}()
	if pou.Result != nil {
		frame.ResultName = pou.Name
		if frame.Result == nil {
			frame.Result = Zero(pou.Result)
		}
	}
	_, flt := it.execStmts(pou.Body, frame)
	if flt != nil {
		return nil, flt
	}
	if pou.Result != nil {
		return frame.Result, nil
	}
	return nil, nil
}

func (it *Interpreter) execStmts(stmts []lower.Stmt, frame *Frame) (signal, *Fault) {
	for _, s := range stmts {
		sig, flt := it.execStmt(s, frame)
		if flt != nil || sig != sigNone {
			return sig, flt
		}
	}
	return sigNone, nil
}

func (it *Interpreter) execStmt(s lower.Stmt, frame *Frame) (signal, *Fault) {
	if len(it.stack) > 0 {
		it.stack[len(it.stack)-1].At = s.Pos()
	}
	if it.StmtHook != nil {
		it.StmtHook(s.Pos(), frame, it.callDepth)
	}
	switch n := s.(type) {
	case *lower.Empty:
		return sigNone, nil
	case *lower.Assign:
		return sigNone, it.execAssign(n, frame)
	case *lower.ExprStmt:
		_, flt := it.evalCall(n.Call, n.At, frame)
		return sigNone, flt
	case *lower.If:
		return it.execIf(n, frame)
	case *lower.Case:
		return it.execCase(n, frame)
	case *lower.For:
		return it.execFor(n, frame)
	case *lower.While:
		return it.execWhile(n, frame)
	case *lower.Repeat:
		return it.execRepeat(n, frame)
	case *lower.Exit:
		return sigExit, nil
	case *lower.Continue:
		return sigContinue, nil
	case *lower.Return:
		if n.Value != nil && frame.ResultName != "" {
			v, flt := it.evalExpr(n.Value, frame)
			if flt != nil {
				return sigNone, flt
			}
			coerced, flt := it.coerce(v, frame.Result.Type, n.At)
			if flt != nil {
				return sigNone, flt
			}
			frame.Result = coerced
		}
		return sigReturn, nil
	}
	return sigNone, nil
}

func (it *Interpreter) execAssign(n *lower.Assign, frame *Frame) *Fault {
	v, flt := it.evalExpr(n.Value, frame)
	if flt != nil {
		return flt
	}
	slot, flt := it.lvalue(n.Target, frame, n.At)
	if flt != nil {
		return flt
	}
	coerced, flt := it.coerce(v, slot.Type, n.At)
	if flt != nil {
		return flt
	}
	storeInto(slot, coerced)
	return nil
}

// lvalue resolves target to the *Value slot assignment mutates in
// place, so REF(x) pointers taken earlier keep observing updates
// (spec.md §4.9).
func (it *Interpreter) lvalue(target lower.Expr, frame *Frame, at lower.Anchor) (*Value, *Fault) {
	switch e := target.(type) {
	case *lower.NameRef:
		if frame.ResultName != "" && strings.EqualFold(e.Name, frame.ResultName) {
			return frame.Result, nil
		}
		return it.varSlot(e, frame), nil
	case *lower.Index:
		base, flt := it.lvalue(e.X, frame, at)
		if flt != nil {
			return nil, flt
		}
		return it.indexSlot(base, e, frame, at)
	case *lower.Field:
		base, flt := it.lvalue(e.X, frame, at)
		if flt != nil {
			return nil, flt
		}
		if base.Fields == nil {
			base.Fields = make(map[string]*Value)
		}
		slot, ok := base.Fields[e.Name]
		if !ok {
			slot = Zero(e.Type)
			base.Fields[e.Name] = slot
		}
		return slot, nil
	case *lower.Deref:
		ptr, flt := it.evalExpr(e.X, frame)
		if flt != nil {
			return nil, flt
		}
		if ptr.Ref == nil {
			return nil, newFault(FaultNullDereference, at, "dereference of NULL")
		}
		return ptr.Ref, nil
	}
	return nil, newFault(FaultNullDereference, at, "invalid assignment target")
}

func (it *Interpreter) varSlot(ref *lower.NameRef, frame *Frame) *Value {
	id := ref.Symbol
	if v, ok := frame.get(id); ok {
		return v
	}
	if v, ok := it.Globals.get(id); ok {
		return v
	}
	v := Zero(ref.Type)
	frame.set(id, v)
	return v
}

func (it *Interpreter) indexSlot(base *Value, e *lower.Index, frame *Frame, at lower.Anchor) (*Value, *Fault) {
	flat := 0
	stride := 1
	dims := arrayDims(e.X.ExprType())
	for i := len(e.Index) - 1; i >= 0; i-- {
		iv, flt := it.evalExpr(e.Index[i], frame)
		if flt != nil {
			return nil, flt
		}
		lo, hi := int64(0), int64(len(base.Elems))-1
		if i < len(dims) {
			lo, hi = dims[i].Lower, dims[i].Upper
		}
		if iv.Int < lo || iv.Int > hi {
			return nil, newFault(FaultIndexOutOfBounds, at, "index %d outside [%d..%d]", iv.Int, lo, hi)
		}
		flat += int(iv.Int-lo) * stride
		stride *= int(hi - lo + 1)
	}
	if flat < 0 || flat >= len(base.Elems) {
		return nil, newFault(FaultIndexOutOfBounds, at, "index %d outside array bounds", flat)
	}
	return base.Elems[flat], nil
}

func arrayDims(t *types.Type) []types.ArrayDim {
	if t == nil || t.Cat != types.CatArray {
		return nil
	}
	return t.Dims
}

func storeInto(slot, v *Value) {
	slot.Bool = v.Bool
	slot.Int = v.Int
	slot.Real = v.Real
	slot.Str = v.Str
	slot.Ref = v.Ref
	if v.Fields != nil {
		slot.Fields = v.Fields
	}
	if v.Elems != nil {
		slot.Elems = v.Elems
	}
}

func (it *Interpreter) execIf(n *lower.If, frame *Frame) (signal, *Fault) {
	cond, flt := it.evalExpr(n.Cond, frame)
	if flt != nil {
		return sigNone, flt
	}
	if cond.Bool {
		return it.execStmts(n.Then, frame)
	}
	for _, ei := range n.Elifs {
		c, flt := it.evalExpr(ei.Cond, frame)
		if flt != nil {
			return sigNone, flt
		}
		if c.Bool {
			return it.execStmts(ei.Body, frame)
		}
	}
	return it.execStmts(n.Else, frame)
}

func (it *Interpreter) execCase(n *lower.Case, frame *Frame) (signal, *Fault) {
	sel, flt := it.evalExpr(n.Selector, frame)
	if flt != nil {
		return sigNone, flt
	}
	for _, br := range n.Branches {
		for _, lbl := range br.Labels {
			lv, flt := it.evalExpr(lbl, frame)
			if flt != nil {
				return sigNone, flt
			}
			if lv.Int == sel.Int && lv.Bool == sel.Bool {
				return it.execStmts(br.Body, frame)
			}
		}
	}
	return it.execStmts(n.Else, frame)
}

func (it *Interpreter) execWhile(n *lower.While, frame *Frame) (signal, *Fault) {
	for {
		cond, flt := it.evalExpr(n.Cond, frame)
		if flt != nil {
			return sigNone, flt
		}
		if !cond.Bool {
			return sigNone, nil
		}
		sig, flt := it.execStmts(n.Body, frame)
		if flt != nil {
			return sigNone, flt
		}
		switch sig {
		case sigExit:
			return sigNone, nil
		case sigReturn:
			return sigReturn, nil
		}
	}
}

func (it *Interpreter) execRepeat(n *lower.Repeat, frame *Frame) (signal, *Fault) {
	for {
		sig, flt := it.execStmts(n.Body, frame)
		if flt != nil {
			return sigNone, flt
		}
		switch sig {
		case sigExit:
			return sigNone, nil
		case sigReturn:
			return sigReturn, nil
		}
		cond, flt := it.evalExpr(n.Cond, frame)
		if flt != nil {
			return sigNone, flt
		}
		if cond.Bool {
			return sigNone, nil
		}
	}
}

func (it *Interpreter) execFor(n *lower.For, frame *Frame) (signal, *Fault) {
	start, flt := it.evalExpr(n.Start, frame)
	if flt != nil {
		return sigNone, flt
	}
	end, flt := it.evalExpr(n.End, frame)
	if flt != nil {
		return sigNone, flt
	}
	step := int64(1)
	if n.Step != nil {
		sv, flt := it.evalExpr(n.Step, frame)
		if flt != nil {
			return sigNone, flt
		}
		step = sv.Int
	}
	if step == 0 {
		return sigNone, newFault(FaultForStepZero, n.At, "FOR step evaluated to zero")
	}
	ctrl := it.varSlot(&lower.NameRef{Name: n.ControlName, Symbol: n.ControlVar, Type: start.Type}, frame)
	ctrl.Int = start.Int
	for (step > 0 && ctrl.Int <= end.Int) || (step < 0 && ctrl.Int >= end.Int) {
		sig, flt := it.execStmts(n.Body, frame)
		if flt != nil {
			return sigNone, flt
		}
		switch sig {
		case sigExit:
			return sigNone, nil
		case sigReturn:
			return sigReturn, nil
		}
		ctrl.Int += step
	}
	return sigNone, nil
}

func (it *Interpreter) evalExpr(e lower.Expr, frame *Frame) (*Value, *Fault) {
	switch n := e.(type) {
	case *lower.NameRef:
		return it.varSlot(n, frame), nil
	case *lower.Literal:
		return literalValue(n), nil
	case *lower.Unary:
		return it.evalUnary(n, frame)
	case *lower.Binary:
		return it.evalBinary(n, frame)
	case *lower.Call:
		return it.evalCall(n, lower.Anchor{}, frame)
	case *lower.Index:
		slot, flt := it.lvalue(n, frame, lower.Anchor{})
		if flt != nil {
			return nil, flt
		}
		return slot, nil
	case *lower.Field:
		slot, flt := it.lvalue(n, frame, lower.Anchor{})
		if flt != nil {
			return nil, flt
		}
		return slot, nil
	case *lower.Deref:
		ptr, flt := it.evalExpr(n.X, frame)
		if flt != nil {
			return nil, flt
		}
		if ptr.Ref == nil {
			return nil, newFault(FaultNullDereference, lower.Anchor{}, "dereference of NULL")
		}
		return ptr.Ref, nil
	case *lower.Ref:
		slot, flt := it.lvalue(n.X, frame, lower.Anchor{})
		if flt != nil {
			return nil, flt
		}
		return &Value{Type: n.Type, Ref: slot}, nil
	}
	return nil, newFault(FaultNullDereference, lower.Anchor{}, "unsupported expression")
}

func literalValue(n *lower.Literal) *Value {
	v := &Value{Type: n.Type}
	switch {
	case n.Type != nil && n.Type.Cat == types.CatString:
		v.Str = unquoteStringLiteral(n.Raw)
	case n.Type != nil && types.IsReal(n.Type):
		var f float64
		fmt.Sscanf(stripUnderscores(n.Raw), "%g", &f)
		v.Real = f
	case n.Type != nil && n.Type.Cat == types.CatElementary && n.Type.Elem == types.ElemBool:
		v.Bool = strings.EqualFold(n.Raw, "TRUE") || strings.EqualFold(n.Raw, "1")
	default:
		var i int64
		fmt.Sscanf(stripUnderscores(stripTypePrefix(n.Raw)), "%d", &i)
		v.Int = i
	}
	return v
}

func stripUnderscores(s string) string {
	return strings.ReplaceAll(s, "_", "")
}

// stripTypePrefix drops an IEC typed-literal prefix ("INT#42" -> "42")
// so the numeric scan below sees a bare number.
func stripTypePrefix(s string) string {
	if i := strings.LastIndex(s, "#"); i >= 0 {
		return s[i+1:]
	}
	return s
}

func unquoteStringLiteral(raw string) string {
	s := raw
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') {
		s = s[1 : len(s)-1]
	}
	return s
}

func (it *Interpreter) evalUnary(n *lower.Unary, frame *Frame) (*Value, *Fault) {
	x, flt := it.evalExpr(n.X, frame)
	if flt != nil {
		return nil, flt
	}
	switch n.Op {
	case lower.OpNot:
		if x.Type != nil && x.Type.Elem == types.ElemBool {
			return &Value{Type: n.Type, Bool: !x.Bool}, nil
		}
		return &Value{Type: n.Type, Int: ^x.Int}, nil
	case lower.OpNeg:
		if types.IsReal(n.Type) {
			return &Value{Type: n.Type, Real: -x.asFloat()}, nil
		}
		return it.coerce(&Value{Type: n.Type, Int: -x.Int}, n.Type, lower.Anchor{})
	case lower.OpPos:
		return x, nil
	}
	return x, nil
}

func (it *Interpreter) evalBinary(n *lower.Binary, frame *Frame) (*Value, *Fault) {
	// AND/OR over BOOL short-circuit; XOR, and all three over
	// bit-strings, always evaluate both operands (spec.md §4.9).
	if n.Op == lower.OpAnd && n.L.ExprType() != nil && n.L.ExprType().Elem == types.ElemBool {
		l, flt := it.evalExpr(n.L, frame)
		if flt != nil {
			return nil, flt
		}
		if !l.Bool {
			return boolVal(false), nil
		}
		r, flt := it.evalExpr(n.R, frame)
		if flt != nil {
			return nil, flt
		}
		return boolVal(r.Bool), nil
	}
	if n.Op == lower.OpOr && n.L.ExprType() != nil && n.L.ExprType().Elem == types.ElemBool {
		l, flt := it.evalExpr(n.L, frame)
		if flt != nil {
			return nil, flt
		}
		if l.Bool {
			return boolVal(true), nil
		}
		r, flt := it.evalExpr(n.R, frame)
		if flt != nil {
			return nil, flt
		}
		return boolVal(r.Bool), nil
	}

	l, flt := it.evalExpr(n.L, frame)
	if flt != nil {
		return nil, flt
	}
	r, flt := it.evalExpr(n.R, frame)
	if flt != nil {
		return nil, flt
	}

	real := types.IsReal(n.L.ExprType()) || types.IsReal(n.R.ExprType())

	switch n.Op {
	case lower.OpEq:
		return boolVal(valuesEqual(l, r, real)), nil
	case lower.OpNe:
		return boolVal(!valuesEqual(l, r, real)), nil
	case lower.OpLt:
		return boolVal(compareValues(l, r, real) < 0), nil
	case lower.OpLe:
		return boolVal(compareValues(l, r, real) <= 0), nil
	case lower.OpGt:
		return boolVal(compareValues(l, r, real) > 0), nil
	case lower.OpGe:
		return boolVal(compareValues(l, r, real) >= 0), nil
	case lower.OpAnd:
		if l.Type != nil && l.Type.Elem == types.ElemBool {
			return boolVal(l.Bool && r.Bool), nil
		}
		return it.coerce(&Value{Type: n.Type, Int: l.Int & r.Int}, n.Type, lower.Anchor{})
	case lower.OpOr:
		if l.Type != nil && l.Type.Elem == types.ElemBool {
			return boolVal(l.Bool || r.Bool), nil
		}
		return it.coerce(&Value{Type: n.Type, Int: l.Int | r.Int}, n.Type, lower.Anchor{})
	case lower.OpXor:
		if l.Type != nil && l.Type.Elem == types.ElemBool {
			return boolVal(l.Bool != r.Bool), nil
		}
		return it.coerce(&Value{Type: n.Type, Int: l.Int ^ r.Int}, n.Type, lower.Anchor{})
	case lower.OpAdd:
		if real {
			return &Value{Type: n.Type, Real: l.asFloat() + r.asFloat()}, nil
		}
		return it.coerce(&Value{Type: n.Type, Int: l.Int + r.Int}, n.Type, lower.Anchor{})
	case lower.OpSub:
		if real {
			return &Value{Type: n.Type, Real: l.asFloat() - r.asFloat()}, nil
		}
		return it.coerce(&Value{Type: n.Type, Int: l.Int - r.Int}, n.Type, lower.Anchor{})
	case lower.OpMul:
		if real {
			return &Value{Type: n.Type, Real: l.asFloat() * r.asFloat()}, nil
		}
		return it.coerce(&Value{Type: n.Type, Int: l.Int * r.Int}, n.Type, lower.Anchor{})
	case lower.OpDiv:
		if real {
			if r.asFloat() == 0 {
				return nil, newFault(FaultDivByZero, lower.Anchor{}, "division by zero")
			}
			return &Value{Type: n.Type, Real: l.asFloat() / r.asFloat()}, nil
		}
		if r.Int == 0 {
			return nil, newFault(FaultDivByZero, lower.Anchor{}, "division by zero")
		}
		return it.coerce(&Value{Type: n.Type, Int: l.Int / r.Int}, n.Type, lower.Anchor{})
	case lower.OpMod:
		if r.Int == 0 {
			return nil, newFault(FaultDivByZero, lower.Anchor{}, "modulo by zero")
		}
		return it.coerce(&Value{Type: n.Type, Int: l.Int % r.Int}, n.Type, lower.Anchor{})
	case lower.OpPow:
		if real {
			return &Value{Type: n.Type, Real: math.Pow(l.asFloat(), r.asFloat())}, nil
		}
		return it.coerce(&Value{Type: n.Type, Int: int64(math.Pow(float64(l.Int), float64(r.Int)))}, n.Type, lower.Anchor{})
	}
	return nil, newFault(FaultNullDereference, lower.Anchor{}, "unsupported operator")
}

func valuesEqual(l, r *Value, real bool) bool {
	if real {
		return l.asFloat() == r.asFloat()
	}
	if l.Type != nil && l.Type.Elem == types.ElemBool {
		return l.Bool == r.Bool
	}
	if l.Type != nil && l.Type.Cat == types.CatString {
		return l.Str == r.Str
	}
	return l.Int == r.Int
}

func compareValues(l, r *Value, real bool) int {
	if real {
		switch {
		case l.asFloat() < r.asFloat():
			return -1
		case l.asFloat() > r.asFloat():
			return 1
		default:
			return 0
		}
	}
	if l.Type != nil && l.Type.Cat == types.CatString {
		return strings.Compare(l.Str, r.Str)
	}
	switch {
	case l.Int < r.Int:
		return -1
	case l.Int > r.Int:
		return 1
	default:
		return 0
	}
}

// evalCall binds arguments to the callee's parameters and runs its
// body (user POUs) or its registered implementation (natives). at is
// the calling statement's anchor, used for EN/ENO and fault reporting
// when the expression itself carries no anchor.
func (it *Interpreter) evalCall(c *lower.Call, at lower.Anchor, frame *Frame) (*Value, *Fault) {
	name, ok := c.Callee.(*lower.NameRef)
	if !ok {
		return nil, newFault(FaultNullDereference, at, "call target is not a name")
	}

	enabled := true
	var enoSlot *Value
	var positional []lower.Arg
	for _, a := range c.Args {
		switch {
		case strings.EqualFold(a.Name, "EN"):
			v, flt := it.evalExpr(a.Value, frame)
			if flt != nil {
				return nil, flt
			}
			enabled = v.Bool
		case strings.EqualFold(a.Name, "ENO") && a.Out:
			slot, flt := it.lvalue(a.Value, frame, at)
			if flt != nil {
				return nil, flt
			}
			enoSlot = slot
		default:
			positional = append(positional, a)
		}
	}
	if enoSlot != nil {
		enoSlot.Bool = enabled
	}
	if !enabled {
		return nil, nil
	}

	if fn, ok := it.Reg.lookupNative(name.Name); ok {
		args := make([]*Value, 0, len(positional))
		for _, a := range positional {
			v, flt := it.evalExpr(a.Value, frame)
			if flt != nil {
				return nil, flt
			}
			args = append(args, v)
		}
		res, flt := fn(args)
		if flt != nil && enoSlot != nil {
			enoSlot.Bool = false
		}
		return res, flt
	}

	pou, ok := it.Reg.lookupPOU(name.Name)
	if !ok {
		if res, flt, handled := it.callFBInstance(name, positional, enoSlot, at, frame); handled {
			return res, flt
		}
		return nil, newFault(FaultNullDereference, at, "unresolved callee %q", name.Name)
	}

	callFrame := NewFrame()
	outBindings := map[int]*Value{}
	for i, a := range positional {
		if a.Out {
			continue
		}
		var param lower.Param
		idx := i
		if a.Name != "" {
			found := false
			for pi, p := range pou.Params {
				if strings.EqualFold(p.Name, a.Name) {
					param, idx, found = p, pi, true
					break
				}
			}
			if !found {
				return nil, newFault(FaultNullDereference, at, "unknown parameter %q", a.Name)
			}
		} else {
			if idx >= len(pou.Params) {
				return nil, newFault(FaultNullDereference, at, "too many arguments")
			}
			param = pou.Params[idx]
		}
		v, flt := it.evalExpr(a.Value, frame)
		if flt != nil {
			return nil, flt
		}
		coerced, flt := it.coerce(v, param.Type, at)
		if flt != nil {
			return nil, flt
		}
		callFrame.set(param.Symbol, coerced.Clone())
		if param.Qualifier == symbols.QualInOut {
			outBindings[idx] = v
		}
	}
	for _, a := range positional {
		if !a.Out {
			continue
		}
		for pi, p := range pou.Params {
			if strings.EqualFold(p.Name, a.Name) {
				slot, flt := it.lvalue(a.Value, frame, at)
				if flt != nil {
					return nil, flt
				}
				outBindings[pi] = slot
				break
			}
		}
	}
	for _, p := range pou.Params {
		if _, ok := callFrame.get(p.Symbol); !ok {
			callFrame.set(p.Symbol, Zero(p.Type))
		}
	}

	res, flt := it.Run(pou, callFrame)
	if flt != nil {
		if enoSlot != nil {
			enoSlot.Bool = false
		}
		return nil, flt
	}

	for idx, target := range outBindings {
		if idx >= len(pou.Params) {
			continue
		}
		p := pou.Params[idx]
		if p.Qualifier != symbols.QualOutput && p.Qualifier != symbols.QualInOut {
			continue
		}
		v, _ := callFrame.get(p.Symbol)
		if v != nil {
			storeInto(target, v)
		}
	}
	return res, nil
}

// callFBInstance resolves name as a locally-declared function-block
// instance (e.g. `t : TON;` invoked as `t(IN:=TRUE, PT:=T#100ms)`) and
// steps its registered standard-FB implementation. handled is false
// when name does not refer to a function-block instance at all, so the
// caller can fall through to its own "unresolved callee" fault.
func (it *Interpreter) callFBInstance(name *lower.NameRef, positional []lower.Arg, enoSlot *Value, at lower.Anchor, frame *Frame) (res *Value, flt *Fault, handled bool) {
	if name.Type == nil || name.Type.Cat != types.CatFunctionBlock {
		return nil, nil, false
	}
	step, ok := it.Reg.lookupFBType(name.Type.POUName)
	if !ok {
		return nil, newFault(FaultNullDereference, at, "unregistered function block type %q", name.Type.POUName), true
	}
	self := it.varSlot(name, frame)

	layout, _ := lookupFBLayout(name.Type.POUName)
	args := make(map[string]*Value, len(positional))
	for i, a := range positional {
		v, evFlt := it.evalExpr(a.Value, frame)
		if evFlt != nil {
			return nil, evFlt, true
		}
		argName := a.Name
		if argName == "" && i < len(layout) {
			argName = layout[i].Name
		}
		if argName != "" {
			args[strings.ToUpper(argName)] = v
		}
	}

	flt = step(self, args, it.now())
	if flt != nil {
		if enoSlot != nil {
			enoSlot.Bool = false
		}
		return nil, flt, true
	}
	return nil, nil, true
}

// coerce converts v to target's type per ST assignment rules
// (spec.md §4.4), applying this Interpreter's fault policy for
// integer overflow and an unconditional fault for subrange violations.
func (it *Interpreter) coerce(v *Value, target *types.Type, at lower.Anchor) (*Value, *Fault) {
	if target == nil || v == nil {
		return v, nil
	}
	switch target.Cat {
	case types.CatSubrange:
		iv := v.Int
		if types.IsReal(v.Type) {
			iv = int64(v.Real)
		}
		if iv < target.Lower || iv > target.Upper {
			return nil, newFault(FaultSubrangeViolation, at, "value %d outside subrange [%d..%d]", iv, target.Lower, target.Upper)
		}
		return &Value{Type: target, Int: iv}, nil
	case types.CatElementary:
		if types.IsReal(target) {
			return &Value{Type: target, Real: v.asFloat()}, nil
		}
		if target.Elem == types.ElemBool {
			return &Value{Type: target, Bool: v.Bool}, nil
		}
		if types.IsInteger(target) || types.IsBit(target) {
			return it.coerceInt(v, target, at)
		}
		return v, nil
	case types.CatString:
		return &Value{Type: target, Str: v.Str}, nil
	default:
		return v, nil
	}
}

// coerceInt applies this Interpreter's overflow policy when an integer
// value does not fit target's width (spec.md §4.9, §7).
func (it *Interpreter) coerceInt(v *Value, target *types.Type, at lower.Anchor) (*Value, *Fault) {
	src := v.Int
	if types.IsReal(v.Type) {
		src = int64(v.Real)
	}
	min, max := bounds(target)
	if src >= min && src <= max {
		return &Value{Type: target, Int: src}, nil
	}
	switch it.Policy.actionFor(FaultIntegerOverflow) {
	case ActionSaturate:
		if src < min {
			return &Value{Type: target, Int: min}, nil
		}
		return &Value{Type: target, Int: max}, nil
	case ActionWrap:
		w := types.Width(target)
		if w <= 0 || w >= 64 {
			return &Value{Type: target, Int: src}, nil
		}
		mask := int64(1)<<uint(w) - 1
		wrapped := src & mask
		if !types.IsUnsigned(target) && wrapped > max {
			wrapped -= 1 << uint(w)
		}
		return &Value{Type: target, Int: wrapped}, nil
	default:
		return nil, newFault(FaultIntegerOverflow, at, "value %d overflows %s", src, target)
	}
}
