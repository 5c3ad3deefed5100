package eval

import (
	"strings"
	"sync"

	"stlang/internal/types"
)

// Value is a runtime ST value tagged by its static type. Only the
// field matching Type.Cat is meaningful; Int backs every integer and
// bit-string elementary type (BYTE/WORD/DWORD/LWORD) as well as
// TIME/LTIME (nanoseconds) and the DATE/TOD/DT family (an epoch-scaled
// integer) — a pragmatic 64-bit representation that does not model
// ULINT values above math.MaxInt64.
type Value struct {
	Type *types.Type

	Bool bool
	Int  int64
	Real float64
	Str  string

	Ref *Value // CatRefTo pointee; nil means NULL

	Fields map[string]*Value // CatStruct, keyed by field name
	Elems  []*Value          // CatArray, row-major
}

// Zero constructs t's IEC default-initialized value.
func Zero(t *types.Type) *Value {
	v := &Value{Type: t}
	if t == nil {
		return v
	}
	switch t.Cat {
	case types.CatStruct:
		v.Fields = make(map[string]*Value, len(t.Fields))
		for _, f := range t.Fields {
			v.Fields[f.Name] = Zero(f.Type)
		}
	case types.CatArray:
		v.Elems = make([]*Value, arrayLen(t))
		for i := range v.Elems {
			v.Elems[i] = Zero(t.ElemType)
		}
	case types.CatEnum:
		if len(t.EnumValues) > 0 {
			v.Str = t.EnumValues[0]
		}
	case types.CatFunctionBlock:
		if fields, ok := lookupFBLayout(t.POUName); ok {
			v.Fields = make(map[string]*Value, len(fields))
			for _, f := range fields {
				v.Fields[f.Name] = Zero(f.Type)
			}
		}
	}
	return v
}

var (
	fbLayoutsMu sync.RWMutex
	fbLayouts   = map[string][]types.Field{}
)

// RegisterFBLayout records the VAR/VAR_INPUT/VAR_OUTPUT member layout
// of a function-block type under name (case-insensitive), so Zero
// default-initializes every declared instance's member fields even
// when the only thing on hand is the variable's static *types.Type
// (spec.md §4.9, §4.10 standard FBs). internal/runtime calls this once
// per standard FB it registers.
func RegisterFBLayout(name string, fields []types.Field) {
	fbLayoutsMu.Lock()
	defer fbLayoutsMu.Unlock()
	fbLayouts[strings.ToUpper(name)] = fields
}

func lookupFBLayout(name string) ([]types.Field, bool) {
	fbLayoutsMu.RLock()
	defer fbLayoutsMu.RUnlock()
	fields, ok := fbLayouts[strings.ToUpper(name)]
	return fields, ok
}

func arrayLen(t *types.Type) int {
	n := 1
	for _, d := range t.Dims {
		if d.Open {
			continue
		}
		n *= int(d.Upper-d.Lower+1)
	}
	return n
}

// Clone deep-copies v, used when binding VAR_INPUT/VAR_IN_OUT by value
// and when storing a struct/array into a variable (spec.md §4.9).
func (v *Value) Clone() *Value {
	if v == nil {
		return nil
	}
	c := *v
	if v.Fields != nil {
		c.Fields = make(map[string]*Value, len(v.Fields))
		for k, f := range v.Fields {
			c.Fields[k] = f.Clone()
		}
	}
	if v.Elems != nil {
		c.Elems = make([]*Value, len(v.Elems))
		for i, e := range v.Elems {
			c.Elems[i] = e.Clone()
		}
	}
	return &c
}

func boolVal(b bool) *Value              { return &Value{Type: types.Bool, Bool: b} }
func intVal(t *types.Type, i int64) *Value { return &Value{Type: t, Int: i} }
func realVal(t *types.Type, f float64) *Value { return &Value{Type: t, Real: f} }
func strVal(t *types.Type, s string) *Value { return &Value{Type: t, Str: s} }

// asFloat widens an integer or real Value to float64 for mixed ANY_NUM
// arithmetic (spec.md §4.4: ANY_INT assigns implicitly to ANY_REAL).
func (v *Value) asFloat() float64 {
	if v.Type != nil && types.IsReal(v.Type) {
		return v.Real
	}
	return float64(v.Int)
}

// bounds returns the inclusive [min,max] range representable by t's
// width, used for subrange/overflow checks.
func bounds(t *types.Type) (min, max int64) {
	w := types.Width(t)
	if w == 0 {
		w = 64
	}
	if types.IsUnsigned(t) {
		if w >= 64 {
			return 0, 1<<63 - 1 // int64 ceiling; see Value doc comment
		}
		return 0, 1<<uint(w) - 1
	}
	if w >= 64 {
		return -(1 << 63), 1<<63 - 1
	}
	return -(1 << uint(w-1)), 1<<uint(w-1) - 1
}
