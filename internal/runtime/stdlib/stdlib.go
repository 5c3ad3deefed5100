// Package stdlib implements the IEC 61131-3 standard function library
// (Tables 22-36): typed conversions, numeric and bitwise operators,
// selection, comparison, string handling, and time arithmetic, all
// registered as eval.Native callables (spec.md §4.10).
package stdlib

import (
	"math"
	"strconv"
	"strings"
	"sync"

	"stlang/internal/eval"
	"stlang/internal/types"
)

// RegisterAll installs every stdlib function into reg. Callers that
// also need the standard function blocks call
// internal/runtime.RegisterStandardFBs separately.
func RegisterAll(reg *eval.Registry) {
	registerConversions(reg)
	registerNumeric(reg)
	registerArithmeticBitwise(reg)
	registerShiftRotate(reg)
	registerSelection(reg)
	registerComparison(reg)
	registerString(reg)
	registerTime(reg)
}

var (
	namesOnce sync.Once
	namesReg  *eval.Registry
)

// IsStandardName reports whether name is a registered stdlib function,
// for internal/ide's hover to fall back to a generic stdlib note when
// no user declaration exists for an identifier. Uses a private,
// lazily-built registry rather than requiring every caller to carry
// one around just to ask this question.
func IsStandardName(name string) bool {
	namesOnce.Do(func() {
		namesReg = eval.NewRegistry()
		RegisterAll(namesReg)
	})
	return namesReg.HasNative(name)
}

func argFault(name string) *eval.Fault {
	return &eval.Fault{Kind: eval.FaultNullDereference, Message: "wrong argument count to " + name}
}

func asInt(v *eval.Value) int64 {
	if v.Type != nil {
		switch {
		case types.IsReal(v.Type):
			return int64(v.Real)
		case v.Type.Cat == types.CatElementary && v.Type.Elem == types.ElemBool:
			if v.Bool {
				return 1
			}
			return 0
		}
	}
	return v.Int
}

func asReal(v *eval.Value) float64 {
	if v.Type != nil {
		if types.IsReal(v.Type) {
			return v.Real
		}
		if v.Type.Cat == types.CatElementary && v.Type.Elem == types.ElemBool {
			if v.Bool {
				return 1
			}
			return 0
		}
	}
	return float64(v.Int)
}

func asBool(v *eval.Value) bool {
	if v.Type != nil {
		if v.Type.Cat == types.CatElementary && v.Type.Elem == types.ElemBool {
			return v.Bool
		}
		if types.IsReal(v.Type) {
			return v.Real != 0
		}
	}
	return v.Int != 0
}

func asString(v *eval.Value) string {
	if v.Type != nil && v.Type.Cat == types.CatString {
		return v.Str
	}
	return formatValue(v)
}

func formatValue(v *eval.Value) string {
	switch {
	case v.Type != nil && v.Type.Cat == types.CatString:
		return v.Str
	case v.Type != nil && types.IsReal(v.Type):
		return strconv.FormatFloat(v.Real, 'g', -1, 64)
	case v.Type != nil && v.Type.Cat == types.CatElementary && v.Type.Elem == types.ElemBool:
		if v.Bool {
			return "TRUE"
		}
		return "FALSE"
	default:
		return strconv.FormatInt(v.Int, 10)
	}
}

// compareVal orders two values of the same ANY_ELEMENTARY family,
// mirroring internal/eval's own comparison rules locally since those
// helpers are unexported there.
func compareVal(l, r *eval.Value) int {
	real := (l.Type != nil && types.IsReal(l.Type)) || (r.Type != nil && types.IsReal(r.Type))
	if real {
		lf, rf := asReal(l), asReal(r)
		switch {
		case lf < rf:
			return -1
		case lf > rf:
			return 1
		default:
			return 0
		}
	}
	if l.Type != nil && l.Type.Cat == types.CatString {
		return strings.Compare(l.Str, r.Str)
	}
	li, ri := asInt(l), asInt(r)
	switch {
	case li < ri:
		return -1
	case li > ri:
		return 1
	default:
		return 0
	}
}

// --- Table 22/23/24: typed conversions, including BCD -------------

type elemKind struct {
	name string
	typ  *types.Type
}

var elemKinds = []elemKind{
	{"BOOL", types.Bool},
	{"SINT", types.SInt}, {"INT", types.Int}, {"DINT", types.DInt}, {"LINT", types.LInt},
	{"USINT", types.USInt}, {"UINT", types.UInt}, {"UDINT", types.UDInt}, {"ULINT", types.ULInt},
	{"REAL", types.Real}, {"LREAL", types.LReal},
	{"BYTE", types.Byte}, {"WORD", types.Word}, {"DWORD", types.DWord}, {"LWORD", types.LWord},
}

func convertElementary(v *eval.Value, target *types.Type) *eval.Value {
	switch {
	case target.Cat == types.CatElementary && target.Elem == types.ElemBool:
		return &eval.Value{Type: target, Bool: asBool(v)}
	case types.IsReal(target):
		return &eval.Value{Type: target, Real: asReal(v)}
	default:
		return &eval.Value{Type: target, Int: asInt(v)}
	}
}

func registerConversions(reg *eval.Registry) {
	for _, from := range elemKinds {
		for _, to := range elemKinds {
			if from.name == to.name {
				continue
			}
			from, to := from, to
			name := from.name + "_TO_" + to.name
			reg.AddNative(name, func(args []*eval.Value) (*eval.Value, *eval.Fault) {
				if len(args) != 1 {
					return nil, argFault(name)
				}
				return convertElementary(args[0], to.typ), nil
			})
		}
		kind := from
		toStr := kind.name + "_TO_STRING"
		reg.AddNative(toStr, func(args []*eval.Value) (*eval.Value, *eval.Fault) {
			if len(args) != 1 {
				return nil, argFault(toStr)
			}
			return &eval.Value{Type: &types.Type{Cat: types.CatString}, Str: formatValue(args[0])}, nil
		})
		fromStr := "STRING_TO_" + kind.name
		reg.AddNative(fromStr, func(args []*eval.Value) (*eval.Value, *eval.Fault) {
			if len(args) != 1 {
				return nil, argFault(fromStr)
			}
			return parseString(args[0].Str, kind.typ), nil
		})
	}

	reg.AddNative("TRUNC", func(args []*eval.Value) (*eval.Value, *eval.Fault) {
		if len(args) != 1 {
			return nil, argFault("TRUNC")
		}
		return &eval.Value{Type: types.DInt, Int: int64(asReal(args[0]))}, nil
	})

	bcdWidths := []elemKind{{"USINT", types.USInt}, {"UINT", types.UInt}, {"UDINT", types.UDInt}, {"ULINT", types.ULInt}}
	for _, k := range bcdWidths {
		k := k
		toBCD := k.name + "_TO_BCD"
		reg.AddNative(toBCD, func(args []*eval.Value) (*eval.Value, *eval.Fault) {
			if len(args) != 1 {
				return nil, argFault(toBCD)
			}
			return &eval.Value{Type: k.typ, Int: int64(packBCD(uint64(asInt(args[0]))))}, nil
		})
		fromBCD := "BCD_TO_" + k.name
		reg.AddNative(fromBCD, func(args []*eval.Value) (*eval.Value, *eval.Fault) {
			if len(args) != 1 {
				return nil, argFault(fromBCD)
			}
			return &eval.Value{Type: k.typ, Int: int64(unpackBCD(uint64(asInt(args[0]))))}, nil
		})
	}
}

func parseString(s string, target *types.Type) *eval.Value {
	s = strings.TrimSpace(s)
	switch {
	case target.Cat == types.CatElementary && target.Elem == types.ElemBool:
		return &eval.Value{Type: target, Bool: strings.EqualFold(s, "TRUE") || s == "1"}
	case types.IsReal(target):
		f, _ := strconv.ParseFloat(s, 64)
		return &eval.Value{Type: target, Real: f}
	default:
		i, _ := strconv.ParseInt(s, 10, 64)
		return &eval.Value{Type: target, Int: i}
	}
}

func packBCD(v uint64) uint64 {
	var out uint64
	var shift uint
	if v == 0 {
		return 0
	}
	for v > 0 {
		digit := v % 10
		out |= digit << shift
		shift += 4
		v /= 10
	}
	return out
}

func unpackBCD(v uint64) uint64 {
	var out uint64
	var mul uint64 = 1
	for v > 0 {
		digit := v & 0xF
		out += digit * mul
		mul *= 10
		v >>= 4
	}
	return out
}

// --- Table 25: numeric functions -----------------------------------

func realResultType(v *eval.Value) *types.Type {
	if v.Type != nil && v.Type.Cat == types.CatElementary && v.Type.Elem == types.ElemLReal {
		return types.LReal
	}
	return types.Real
}

func registerNumeric(reg *eval.Registry) {
	reg.AddNative("ABS", func(args []*eval.Value) (*eval.Value, *eval.Fault) {
		if len(args) != 1 {
			return nil, argFault("ABS")
		}
		v := args[0]
		if v.Type != nil && types.IsReal(v.Type) {
			return &eval.Value{Type: v.Type, Real: math.Abs(v.Real)}, nil
		}
		i := v.Int
		if i < 0 {
			i = -i
		}
		return &eval.Value{Type: v.Type, Int: i}, nil
	})

	unary := map[string]func(float64) float64{
		"SQRT": math.Sqrt, "LN": math.Log, "LOG": math.Log10, "EXP": math.Exp,
		"SIN": math.Sin, "COS": math.Cos, "TAN": math.Tan,
		"ASIN": math.Asin, "ACOS": math.Acos, "ATAN": math.Atan,
	}
	for name, fn := range unary {
		name, fn := name, fn
		reg.AddNative(name, func(args []*eval.Value) (*eval.Value, *eval.Fault) {
			if len(args) != 1 {
				return nil, argFault(name)
			}
			return &eval.Value{Type: realResultType(args[0]), Real: fn(asReal(args[0]))}, nil
		})
	}

	reg.AddNative("ATAN2", func(args []*eval.Value) (*eval.Value, *eval.Fault) {
		if len(args) != 2 {
			return nil, argFault("ATAN2")
		}
		return &eval.Value{Type: realResultType(args[0]), Real: math.Atan2(asReal(args[0]), asReal(args[1]))}, nil
	})
	reg.AddNative("EXPT", func(args []*eval.Value) (*eval.Value, *eval.Fault) {
		if len(args) != 2 {
			return nil, argFault("EXPT")
		}
		return &eval.Value{Type: realResultType(args[0]), Real: math.Pow(asReal(args[0]), asReal(args[1]))}, nil
	})
}

// --- Table 26/27: extensible arithmetic and bitwise functions ------

func registerArithmeticBitwise(reg *eval.Registry) {
	extensible := map[string]struct {
		foldInt  func(a, b int64) int64
		foldReal func(a, b float64) float64
	}{
		"ADD": {func(a, b int64) int64 { return a + b }, func(a, b float64) float64 { return a + b }},
		"MUL": {func(a, b int64) int64 { return a * b }, func(a, b float64) float64 { return a * b }},
		"AND": {func(a, b int64) int64 { return a & b }, nil},
		"OR":  {func(a, b int64) int64 { return a | b }, nil},
		"XOR": {func(a, b int64) int64 { return a ^ b }, nil},
	}
	for name, ops := range extensible {
		name, ops := name, ops
		reg.AddNative(name, func(args []*eval.Value) (*eval.Value, *eval.Fault) {
			if len(args) < 2 {
				return nil, argFault(name)
			}
			if ops.foldReal != nil && types.IsReal(args[0].Type) {
				acc := asReal(args[0])
				for _, a := range args[1:] {
					acc = ops.foldReal(acc, asReal(a))
				}
				return &eval.Value{Type: args[0].Type, Real: acc}, nil
			}
			acc := asInt(args[0])
			for _, a := range args[1:] {
				acc = ops.foldInt(acc, asInt(a))
			}
			return &eval.Value{Type: args[0].Type, Int: acc}, nil
		})
	}

	reg.AddNative("SUB", func(args []*eval.Value) (*eval.Value, *eval.Fault) {
		if len(args) != 2 {
			return nil, argFault("SUB")
		}
		if types.IsReal(args[0].Type) {
			return &eval.Value{Type: args[0].Type, Real: asReal(args[0]) - asReal(args[1])}, nil
		}
		return &eval.Value{Type: args[0].Type, Int: asInt(args[0]) - asInt(args[1])}, nil
	})
	reg.AddNative("DIV", func(args []*eval.Value) (*eval.Value, *eval.Fault) {
		if len(args) != 2 {
			return nil, argFault("DIV")
		}
		if types.IsReal(args[0].Type) {
			if asReal(args[1]) == 0 {
				return nil, &eval.Fault{Kind: eval.FaultDivByZero, Message: "division by zero"}
			}
			return &eval.Value{Type: args[0].Type, Real: asReal(args[0]) / asReal(args[1])}, nil
		}
		if asInt(args[1]) == 0 {
			return nil, &eval.Fault{Kind: eval.FaultDivByZero, Message: "division by zero"}
		}
		return &eval.Value{Type: args[0].Type, Int: asInt(args[0]) / asInt(args[1])}, nil
	})
	reg.AddNative("MOD", func(args []*eval.Value) (*eval.Value, *eval.Fault) {
		if len(args) != 2 {
			return nil, argFault("MOD")
		}
		if asInt(args[1]) == 0 {
			return nil, &eval.Fault{Kind: eval.FaultDivByZero, Message: "modulo by zero"}
		}
		return &eval.Value{Type: args[0].Type, Int: asInt(args[0]) % asInt(args[1])}, nil
	})
	reg.AddNative("NOT", func(args []*eval.Value) (*eval.Value, *eval.Fault) {
		if len(args) != 1 {
			return nil, argFault("NOT")
		}
		v := args[0]
		if v.Type != nil && v.Type.Elem == types.ElemBool {
			return &eval.Value{Type: v.Type, Bool: !v.Bool}, nil
		}
		return &eval.Value{Type: v.Type, Int: ^v.Int}, nil
	})
}

// --- Table 28: bit-shift functions ----------------------------------

func registerShiftRotate(reg *eval.Registry) {
	reg.AddNative("SHL", func(args []*eval.Value) (*eval.Value, *eval.Fault) {
		if len(args) != 2 {
			return nil, argFault("SHL")
		}
		return &eval.Value{Type: args[0].Type, Int: args[0].Int << uint(asInt(args[1]))}, nil
	})
	reg.AddNative("SHR", func(args []*eval.Value) (*eval.Value, *eval.Fault) {
		if len(args) != 2 {
			return nil, argFault("SHR")
		}
		w := uint(types.Width(args[0].Type))
		if w == 0 {
			w = 64
		}
		mask := uint64(1)<<w - 1
		if w == 64 {
			mask = ^uint64(0)
		}
		return &eval.Value{Type: args[0].Type, Int: int64((uint64(args[0].Int) & mask) >> uint(asInt(args[1])))}, nil
	})
	reg.AddNative("ROL", func(args []*eval.Value) (*eval.Value, *eval.Fault) {
		if len(args) != 2 {
			return nil, argFault("ROL")
		}
		return &eval.Value{Type: args[0].Type, Int: int64(rotate(uint64(args[0].Int), types.Width(args[0].Type), int(asInt(args[1])), true))}, nil
	})
	reg.AddNative("ROR", func(args []*eval.Value) (*eval.Value, *eval.Fault) {
		if len(args) != 2 {
			return nil, argFault("ROR")
		}
		return &eval.Value{Type: args[0].Type, Int: int64(rotate(uint64(args[0].Int), types.Width(args[0].Type), int(asInt(args[1])), false))}, nil
	})
}

func rotate(v uint64, width, n int, left bool) uint64 {
	if width <= 0 || width > 64 {
		width = 64
	}
	n = n % width
	if n < 0 {
		n += width
	}
	var mask uint64 = ^uint64(0)
	if width < 64 {
		mask = 1<<uint(width) - 1
	}
	v &= mask
	if left {
		return ((v << uint(n)) | (v >> uint(width-n))) & mask
	}
	return ((v >> uint(n)) | (v << uint(width-n))) & mask
}

// --- Table 29: selection functions ----------------------------------

func registerSelection(reg *eval.Registry) {
	reg.AddNative("SEL", func(args []*eval.Value) (*eval.Value, *eval.Fault) {
		if len(args) != 3 {
			return nil, argFault("SEL")
		}
		if asBool(args[0]) {
			return args[2], nil
		}
		return args[1], nil
	})
	reg.AddNative("MAX", func(args []*eval.Value) (*eval.Value, *eval.Fault) {
		if len(args) < 1 {
			return nil, argFault("MAX")
		}
		best := args[0]
		for _, a := range args[1:] {
			if compareVal(a, best) > 0 {
				best = a
			}
		}
		return best, nil
	})
	reg.AddNative("MIN", func(args []*eval.Value) (*eval.Value, *eval.Fault) {
		if len(args) < 1 {
			return nil, argFault("MIN")
		}
		best := args[0]
		for _, a := range args[1:] {
			if compareVal(a, best) < 0 {
				best = a
			}
		}
		return best, nil
	})
	reg.AddNative("LIMIT", func(args []*eval.Value) (*eval.Value, *eval.Fault) {
		if len(args) != 3 {
			return nil, argFault("LIMIT")
		}
		mn, in, mx := args[0], args[1], args[2]
		if compareVal(in, mn) < 0 {
			return mn, nil
		}
		if compareVal(in, mx) > 0 {
			return mx, nil
		}
		return in, nil
	})
	reg.AddNative("MUX", func(args []*eval.Value) (*eval.Value, *eval.Fault) {
		if len(args) < 2 {
			return nil, argFault("MUX")
		}
		k := int(asInt(args[0]))
		choices := args[1:]
		if k < 0 || k >= len(choices) {
			return nil, &eval.Fault{Kind: eval.FaultIndexOutOfBounds, Message: "MUX selector out of range"}
		}
		return choices[k], nil
	})
}

// --- Table 30: extensible comparison functions -----------------------

func registerComparison(reg *eval.Registry) {
	chains := map[string]func(int) bool{
		"GT": func(c int) bool { return c > 0 },
		"GE": func(c int) bool { return c >= 0 },
		"EQ": func(c int) bool { return c == 0 },
		"LE": func(c int) bool { return c <= 0 },
		"LT": func(c int) bool { return c < 0 },
		"NE": func(c int) bool { return c != 0 },
	}
	for name, ok := range chains {
		name, ok := name, ok
		reg.AddNative(name, func(args []*eval.Value) (*eval.Value, *eval.Fault) {
			if len(args) < 2 {
				return nil, argFault(name)
			}
			if name == "NE" {
				for i := 0; i < len(args); i++ {
					for j := i + 1; j < len(args); j++ {
						if compareVal(args[i], args[j]) == 0 {
							return &eval.Value{Type: types.Bool, Bool: false}, nil
						}
					}
				}
				return &eval.Value{Type: types.Bool, Bool: true}, nil
			}
			for i := 0; i+1 < len(args); i++ {
				if !ok(compareVal(args[i], args[i+1])) {
					return &eval.Value{Type: types.Bool, Bool: false}, nil
				}
			}
			return &eval.Value{Type: types.Bool, Bool: true}, nil
		})
	}
}

// --- Table 31-33: string functions (1-based positions) ---------------

func strType() *types.Type { return &types.Type{Cat: types.CatString} }

func registerString(reg *eval.Registry) {
	reg.AddNative("LEN", func(args []*eval.Value) (*eval.Value, *eval.Fault) {
		if len(args) != 1 {
			return nil, argFault("LEN")
		}
		return &eval.Value{Type: types.Int, Int: int64(len(asString(args[0])))}, nil
	})
	reg.AddNative("LEFT", func(args []*eval.Value) (*eval.Value, *eval.Fault) {
		if len(args) != 2 {
			return nil, argFault("LEFT")
		}
		s := asString(args[0])
		n := clampLen(int(asInt(args[1])), len(s))
		return &eval.Value{Type: strType(), Str: s[:n]}, nil
	})
	reg.AddNative("RIGHT", func(args []*eval.Value) (*eval.Value, *eval.Fault) {
		if len(args) != 2 {
			return nil, argFault("RIGHT")
		}
		s := asString(args[0])
		n := clampLen(int(asInt(args[1])), len(s))
		return &eval.Value{Type: strType(), Str: s[len(s)-n:]}, nil
	})
	reg.AddNative("MID", func(args []*eval.Value) (*eval.Value, *eval.Fault) {
		if len(args) != 3 {
			return nil, argFault("MID")
		}
		s := asString(args[0])
		n := int(asInt(args[1]))
		pos := int(asInt(args[2])) - 1
		if pos < 0 || pos > len(s) {
			return &eval.Value{Type: strType(), Str: ""}, nil
		}
		end := pos + n
		if end > len(s) {
			end = len(s)
		}
		return &eval.Value{Type: strType(), Str: s[pos:end]}, nil
	})
	reg.AddNative("CONCAT", func(args []*eval.Value) (*eval.Value, *eval.Fault) {
		if len(args) < 2 {
			return nil, argFault("CONCAT")
		}
		var b strings.Builder
		for _, a := range args {
			b.WriteString(asString(a))
		}
		return &eval.Value{Type: strType(), Str: b.String()}, nil
	})
	reg.AddNative("INSERT", func(args []*eval.Value) (*eval.Value, *eval.Fault) {
		if len(args) != 3 {
			return nil, argFault("INSERT")
		}
		s1, s2 := asString(args[0]), asString(args[1])
		pos := clampLen(int(asInt(args[2])), len(s1))
		return &eval.Value{Type: strType(), Str: s1[:pos] + s2 + s1[pos:]}, nil
	})
	reg.AddNative("DELETE", func(args []*eval.Value) (*eval.Value, *eval.Fault) {
		if len(args) != 3 {
			return nil, argFault("DELETE")
		}
		s := asString(args[0])
		n := int(asInt(args[1]))
		pos := int(asInt(args[2])) - 1
		if pos < 0 || pos >= len(s) || n <= 0 {
			return &eval.Value{Type: strType(), Str: s}, nil
		}
		end := pos + n
		if end > len(s) {
			end = len(s)
		}
		return &eval.Value{Type: strType(), Str: s[:pos] + s[end:]}, nil
	})
	reg.AddNative("REPLACE", func(args []*eval.Value) (*eval.Value, *eval.Fault) {
		if len(args) != 4 {
			return nil, argFault("REPLACE")
		}
		s1, s2 := asString(args[0]), asString(args[1])
		n := int(asInt(args[2]))
		pos := int(asInt(args[3])) - 1
		if pos < 0 || pos > len(s1) {
			return &eval.Value{Type: strType(), Str: s1}, nil
		}
		end := pos + n
		if end > len(s1) {
			end = len(s1)
		}
		return &eval.Value{Type: strType(), Str: s1[:pos] + s2 + s1[end:]}, nil
	})
	reg.AddNative("FIND", func(args []*eval.Value) (*eval.Value, *eval.Fault) {
		if len(args) != 2 {
			return nil, argFault("FIND")
		}
		idx := strings.Index(asString(args[0]), asString(args[1]))
		return &eval.Value{Type: types.Int, Int: int64(idx + 1)}, nil
	})
}

func clampLen(n, max int) int {
	if n < 0 {
		return 0
	}
	if n > max {
		return max
	}
	return n
}

// --- Table 34-36: time/date arithmetic --------------------------------

const nsPerDay = int64(24 * 3600 * 1e9)

func registerTime(reg *eval.Registry) {
	reg.AddNative("ADD_TIME", func(args []*eval.Value) (*eval.Value, *eval.Fault) {
		if len(args) != 2 {
			return nil, argFault("ADD_TIME")
		}
		return &eval.Value{Type: args[0].Type, Int: args[0].Int + args[1].Int}, nil
	})
	reg.AddNative("SUB_TIME", func(args []*eval.Value) (*eval.Value, *eval.Fault) {
		if len(args) != 2 {
			return nil, argFault("SUB_TIME")
		}
		return &eval.Value{Type: args[0].Type, Int: args[0].Int - args[1].Int}, nil
	})
	reg.AddNative("MULTIME", func(args []*eval.Value) (*eval.Value, *eval.Fault) {
		if len(args) != 2 {
			return nil, argFault("MULTIME")
		}
		return &eval.Value{Type: args[0].Type, Int: int64(float64(args[0].Int) * asReal(args[1]))}, nil
	})
	reg.AddNative("DIVTIME", func(args []*eval.Value) (*eval.Value, *eval.Fault) {
		if len(args) != 2 {
			return nil, argFault("DIVTIME")
		}
		d := asReal(args[1])
		if d == 0 {
			return nil, &eval.Fault{Kind: eval.FaultDivByZero, Message: "division by zero"}
		}
		return &eval.Value{Type: args[0].Type, Int: int64(float64(args[0].Int) / d)}, nil
	})
	reg.AddNative("CONCAT_DATE_TOD", func(args []*eval.Value) (*eval.Value, *eval.Fault) {
		if len(args) != 2 {
			return nil, argFault("CONCAT_DATE_TOD")
		}
		return &eval.Value{Type: &types.Type{Cat: types.CatElementary, Elem: types.ElemDT}, Int: args[0].Int*nsPerDay + args[1].Int}, nil
	})
	reg.AddNative("DT_TO_TOD", func(args []*eval.Value) (*eval.Value, *eval.Fault) {
		if len(args) != 1 {
			return nil, argFault("DT_TO_TOD")
		}
		mod := args[0].Int % nsPerDay
		if mod < 0 {
			mod += nsPerDay
		}
		return &eval.Value{Type: &types.Type{Cat: types.CatElementary, Elem: types.ElemTOD}, Int: mod}, nil
	})
	reg.AddNative("DT_TO_DATE", func(args []*eval.Value) (*eval.Value, *eval.Fault) {
		if len(args) != 1 {
			return nil, argFault("DT_TO_DATE")
		}
		return &eval.Value{Type: &types.Type{Cat: types.CatElementary, Elem: types.ElemDate}, Int: args[0].Int / nsPerDay}, nil
	})
}
