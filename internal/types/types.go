// Package types implements the IEC 61131-3 type lattice and
// assignment/promotion rules (spec.md §3, §4.4).
package types

import "fmt"

// Category is the tagged shape of a Type value.
type Category int

const (
	CatElementary Category = iota
	CatGeneric            // ANY_* categories used in stdlib signatures
	CatSubrange
	CatArray
	CatStruct
	CatEnum
	CatRefTo
	CatString
	CatFunctionBlock
	CatClass
	CatInterface
	CatUnknown // unresolved / error recovery placeholder
)

// Elementary enumerates the IEC elementary type names.
type Elementary int

const (
	ElemBool Elementary = iota
	ElemSInt
	ElemInt
	ElemDInt
	ElemLInt
	ElemUSInt
	ElemUInt
	ElemUDInt
	ElemULInt
	ElemReal
	ElemLReal
	ElemByte
	ElemWord
	ElemDWord
	ElemLWord
	ElemTime
	ElemLTime
	ElemDate
	ElemLDate
	ElemTOD
	ElemLTOD
	ElemDT
	ElemLDT
	ElemChar
	ElemWChar
)

var elementaryNames = map[Elementary]string{
	ElemBool: "BOOL", ElemSInt: "SINT", ElemInt: "INT", ElemDInt: "DINT", ElemLInt: "LINT",
	ElemUSInt: "USINT", ElemUInt: "UINT", ElemUDInt: "UDINT", ElemULInt: "ULINT",
	ElemReal: "REAL", ElemLReal: "LREAL",
	ElemByte: "BYTE", ElemWord: "WORD", ElemDWord: "DWORD", ElemLWord: "LWORD",
	ElemTime: "TIME", ElemLTime: "LTIME", ElemDate: "DATE", ElemLDate: "LDATE",
	ElemTOD: "TOD", ElemLTOD: "LTOD", ElemDT: "DT", ElemLDT: "LDT",
	ElemChar: "CHAR", ElemWChar: "WCHAR",
}

func (e Elementary) String() string { return elementaryNames[e] }

// Generic enumerates the ANY_* generic categories used only in stdlib
// parameter signatures (never as a variable's declared type).
type Generic int

const (
	GenAny Generic = iota
	GenAnyNum
	GenAnyInt
	GenAnyReal
	GenAnyBit
	GenAnyString
	GenAnyDate
	GenAnyElementary
)

// Type is a tagged value over the IEC lattice (spec.md §3).
type Type struct {
	Cat Category

	Elem Elementary // CatElementary
	Gen  Generic    // CatGeneric

	// CatSubrange
	Base       *Type
	Lower, Upper int64
	BoundsKnown  bool

	// CatArray
	ElemType *Type // element type (named ElemType to avoid colliding with Elementary field)
	Dims  []ArrayDim

	// CatStruct
	Name   string
	Fields []Field

	// CatEnum
	EnumValues []string

	// CatRefTo
	Referent *Type

	// CatString
	StringWide bool
	MaxLen     int // 0 means unbounded/default

	// CatFunctionBlock / CatClass / CatInterface
	POUName string
}

// ArrayDim is one dimension's bounds; Open marks ARRAY[*] (only legal
// in FUNCTION/METHOD parameters per spec.md §3).
type ArrayDim struct {
	Lower, Upper int64
	Open         bool
}

// Field is one ordered struct field (insertion order preserved, spec.md §3).
type Field struct {
	Name string
	Type *Type
}

// ElementaryType constructs an elementary Type.
func ElementaryType(e Elementary) *Type { return &Type{Cat: CatElementary, Elem: e} }

// GenericType constructs a generic-category Type (stdlib signatures only).
func GenericType(g Generic) *Type { return &Type{Cat: CatGeneric, Gen: g} }

// Unknown is the error-recovery placeholder type.
var Unknown = &Type{Cat: CatUnknown}

// Bool/Int/Real etc. are shorthand constructors for common elementary types.
var (
	Bool  = ElementaryType(ElemBool)
	SInt  = ElementaryType(ElemSInt)
	Int   = ElementaryType(ElemInt)
	DInt  = ElementaryType(ElemDInt)
	LInt  = ElementaryType(ElemLInt)
	USInt = ElementaryType(ElemUSInt)
	UInt  = ElementaryType(ElemUInt)
	UDInt = ElementaryType(ElemUDInt)
	ULInt = ElementaryType(ElemULInt)
	Real  = ElementaryType(ElemReal)
	LReal = ElementaryType(ElemLReal)
	Time  = ElementaryType(ElemTime)
	LTime = ElementaryType(ElemLTime)
	Byte  = ElementaryType(ElemByte)
	Word  = ElementaryType(ElemWord)
	DWord = ElementaryType(ElemDWord)
	LWord = ElementaryType(ElemLWord)
)

func (t *Type) String() string {
	switch t.Cat {
	case CatElementary:
		return t.Elem.String()
	case CatGeneric:
		names := map[Generic]string{
			GenAny: "ANY", GenAnyNum: "ANY_NUM", GenAnyInt: "ANY_INT", GenAnyReal: "ANY_REAL",
			GenAnyBit: "ANY_BIT", GenAnyString: "ANY_STRING", GenAnyDate: "ANY_DATE",
			GenAnyElementary: "ANY_ELEMENTARY",
		}
		return names[t.Gen]
	case CatSubrange:
		return fmt.Sprintf("%s(%d..%d)", t.Base, t.Lower, t.Upper)
	case CatArray:
		return "ARRAY OF " + t.ElemType.String()
	case CatStruct:
		return t.Name
	case CatEnum:
		return t.Name
	case CatRefTo:
		return "REF_TO " + t.Referent.String()
	case CatString:
		if t.StringWide {
			return "WSTRING"
		}
		return "STRING"
	case CatFunctionBlock, CatClass, CatInterface:
		return t.POUName
	default:
		return "<unknown>"
	}
}

// IsInteger reports whether t is one of the signed/unsigned integer
// elementary types.
func IsInteger(t *Type) bool {
	if t.Cat == CatSubrange {
		return IsInteger(t.Base)
	}
	if t.Cat != CatElementary {
		return false
	}
	switch t.Elem {
	case ElemSInt, ElemInt, ElemDInt, ElemLInt, ElemUSInt, ElemUInt, ElemUDInt, ElemULInt:
		return true
	}
	return false
}

// IsUnsigned reports whether an integer type is unsigned.
func IsUnsigned(t *Type) bool {
	if t.Cat == CatSubrange {
		return IsUnsigned(t.Base)
	}
	switch t.Elem {
	case ElemUSInt, ElemUInt, ElemUDInt, ElemULInt:
		return true
	}
	return false
}

// IsReal reports whether t is REAL/LREAL.
func IsReal(t *Type) bool {
	return t.Cat == CatElementary && (t.Elem == ElemReal || t.Elem == ElemLReal)
}

// IsNumeric reports ANY_NUM membership: integer or real.
func IsNumeric(t *Type) bool { return IsInteger(t) || IsReal(t) }

// IsBit reports ANY_BIT membership: BOOL/BYTE/WORD/DWORD/LWORD.
func IsBit(t *Type) bool {
	if t.Cat != CatElementary {
		return false
	}
	switch t.Elem {
	case ElemBool, ElemByte, ElemWord, ElemDWord, ElemLWord:
		return true
	}
	return false
}

// IsDateTime reports ANY_DATE membership.
func IsDateTime(t *Type) bool {
	if t.Cat != CatElementary {
		return false
	}
	switch t.Elem {
	case ElemTime, ElemLTime, ElemDate, ElemLDate, ElemTOD, ElemLTOD, ElemDT, ElemLDT:
		return true
	}
	return false
}

// width returns the bit width of an integer/real/bit elementary type,
// used for widening decisions.
func width(e Elementary) int {
	switch e {
	case ElemSInt, ElemUSInt, ElemByte, ElemChar:
		return 8
	case ElemInt, ElemUInt, ElemWord, ElemWChar:
		return 16
	case ElemDInt, ElemUDInt, ElemDWord, ElemReal:
		return 32
	case ElemLInt, ElemULInt, ElemLWord, ElemLReal:
		return 64
	}
	return 0
}

// Width returns the bit width of t's elementary type (0 for non-scalar
// categories), exposed for callers outside this package that need
// numeric bounds (e.g. internal/eval's overflow/wrap/saturate policy).
func Width(t *Type) int {
	if t == nil || t.Cat != CatElementary {
		return 0
	}
	return width(t.Elem)
}

// Identical reports exact type identity (required for STRUCT/ARRAY
// assignment per spec.md §4.4).
func Identical(a, b *Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Cat != b.Cat {
		return false
	}
	switch a.Cat {
	case CatElementary:
		return a.Elem == b.Elem
	case CatStruct, CatEnum:
		return a.Name == b.Name
	case CatFunctionBlock, CatClass, CatInterface:
		return a.POUName == b.POUName
	case CatArray:
		if len(a.Dims) != len(b.Dims) {
			return false
		}
		for i := range a.Dims {
			if a.Dims[i] != b.Dims[i] {
				return false
			}
		}
		return Identical(a.ElemType, b.ElemType)
	case CatRefTo:
		return Identical(a.Referent, b.Referent)
	case CatSubrange:
		return a.Lower == b.Lower && a.Upper == b.Upper && Identical(a.Base, b.Base)
	case CatString:
		return a.StringWide == b.StringWide && a.MaxLen == b.MaxLen
	}
	return false
}

// AssignClass categorizes the result of an assignment-compatibility check.
type AssignClass int

const (
	AssignOK AssignClass = iota
	AssignWarn          // allowed under some profiles, narrowing
	AssignError
)

// AssignCompatible implements spec.md §4.4's assignment rules.
func AssignCompatible(target, value *Type) (AssignClass, string) {
	if target.Cat == CatUnknown || value.Cat == CatUnknown {
		return AssignOK, ""
	}
	if Identical(target, value) {
		return AssignOK, ""
	}

	switch {
	case target.Cat == CatStruct || target.Cat == CatArray:
		return AssignError, "STRUCT/ARRAY assignment requires exact type identity"

	case IsInteger(target) && IsInteger(value):
		if IsUnsigned(target) != IsUnsigned(value) {
			return AssignError, "cannot mix signed and unsigned integers without an explicit conversion"
		}
		if width(value.Elem) <= width(target.Elem) {
			return AssignOK, ""
		}
		return AssignError, "narrowing integer assignment requires an explicit conversion"

	case IsInteger(value) && IsReal(target):
		return AssignOK, "" // ANY_INT -> ANY_REAL is implicit

	case IsReal(value) && IsInteger(target):
		return AssignError, "REAL -> INT requires an explicit conversion"

	case IsReal(target) && IsReal(value):
		if width(value.Elem) <= width(target.Elem) {
			return AssignOK, ""
		}
		return AssignWarn, "narrowing LREAL -> REAL loses precision"

	case target.Cat == CatRefTo && value.Cat == CatRefTo:
		if Identical(target.Referent, value.Referent) {
			return AssignOK, ""
		}
		return AssignError, "incompatible REF_TO pointee types"
	}

	return AssignError, fmt.Sprintf("cannot assign %s to %s", value, target)
}

// WiderNumeric returns the wider of two numeric types within the same
// signedness class, for mixed-type expression promotion (spec.md §4.4).
// ok is false when the two types mix signed and unsigned without an
// explicit conversion.
func WiderNumeric(a, b *Type) (result *Type, ok bool) {
	if IsReal(a) || IsReal(b) {
		if width(pick(a, b, IsReal)) >= 64 || width(a.Elem) >= 64 || width(b.Elem) >= 64 {
			return LReal, true
		}
		return Real, true
	}
	if IsInteger(a) && IsInteger(b) {
		if IsUnsigned(a) != IsUnsigned(b) {
			return nil, false
		}
		if width(a.Elem) >= width(b.Elem) {
			return a, true
		}
		return b, true
	}
	return nil, false
}

func pick(a, b *Type, pred func(*Type) bool) Elementary {
	if pred(a) {
		return a.Elem
	}
	return b.Elem
}
