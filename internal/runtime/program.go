package runtime

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"stlang/internal/eval"
	"stlang/internal/logging"
	"stlang/internal/lower"
	"stlang/internal/retain"
	"stlang/internal/symbols"
	"stlang/internal/types"
)

// Resource is one IEC resource's runtime state: its callee registry,
// global variable storage, process image, and fault policy (spec.md
// §4.10, §5 "each resource owns one scheduler thread").
type Resource struct {
	Name    string
	Reg     *eval.Registry
	Globals *eval.Frame
	Image   *ProcessImage
	Interp  *eval.Interpreter
	Retain  *retain.Store

	log *zap.Logger

	// retainSymbols maps the retain-store key used for a global RETAIN
	// symbol to its live *eval.Value, so writes can be staged to the
	// store after each cycle without re-walking the symbol table.
	retainSymbols map[string]*eval.Value
}

// NewResource builds a Resource from a lowered unit's registry,
// process-image sizing, and fault policy. store may be nil to run
// without retain persistence (e.g. analysis-only simulation).
func NewResource(name string, reg *eval.Registry, imageSizes [3]int, policy eval.Policy, clock func() time.Time, store *retain.Store, logs *logging.Factory) *Resource {
	var log *zap.Logger
	if logs != nil {
		log = logs.Get(logging.Runtime)
	} else {
		log = zap.NewNop()
	}
	globals := eval.NewFrame()
	interp := eval.New(reg, globals, policy)
	interp.Clock = clock
	return &Resource{
		Name:          name,
		Reg:           reg,
		Globals:       globals,
		Image:         NewProcessImage(imageSizes[0], imageSizes[1], imageSizes[2]),
		Interp:        interp,
		Retain:        store,
		log:           log,
		retainSymbols: make(map[string]*eval.Value),
	}
}

// InitGlobals walks table's global scope, declaring every VAR_GLOBAL
// symbol in r.Globals. On a cold start every variable gets its type's
// IEC default; on a warm start, RETAIN-qualified globals are loaded
// from r.Retain instead, and NON_RETAIN globals still default-init
// (spec.md §4.10 retain policy).
func (r *Resource) InitGlobals(table *symbols.Table, warmStart bool) error {
	var loaded map[string]retain.Scalar
	if warmStart && r.Retain != nil {
		var err error
		loaded, err = r.Retain.LoadAll()
		if err != nil {
			return fmt.Errorf("runtime: load retain store: %w", err)
		}
	}

	for _, sym := range globalSymbols(table) {
		t := globalType(sym)
		v := eval.Zero(t)
		key := retainKey(r.Name, sym)
		if sym.Modifiers.Retain {
			if loaded != nil {
				if saved, ok := loaded[key]; ok {
					applyScalar(v, saved)
				}
			}
			r.retainSymbols[key] = v
		}
		r.Globals.Set(sym.ID, v)
	}
	return nil
}

// StageRetainWrites copies the current value of every RETAIN global
// into r.Retain's pending set. The scheduler calls this once per cycle
// after running every task, before MaybeFlush (spec.md §4.10).
func (r *Resource) StageRetainWrites() {
	if r.Retain == nil {
		return
	}
	for key, v := range r.retainSymbols {
		r.Retain.Set(key, toScalar(v))
	}
}

func retainKey(resource string, sym *symbols.Symbol) string {
	return fmt.Sprintf("%s/%s#%d", resource, sym.Name, sym.ID.Offset)
}

func toScalar(v *eval.Value) retain.Scalar {
	switch {
	case v.Type != nil && v.Type.Cat == types.CatString:
		return retain.Scalar{Kind: "string", Str: v.Str}
	case v.Type != nil && types.IsReal(v.Type):
		return retain.Scalar{Kind: "real", Real: v.Real}
	case v.Type != nil && v.Type.Elem == types.ElemBool && v.Type.Cat == types.CatElementary:
		return retain.Scalar{Kind: "bool", Bool: v.Bool}
	default:
		return retain.Scalar{Kind: "int", Int: v.Int}
	}
}

func applyScalar(v *eval.Value, s retain.Scalar) {
	switch s.Kind {
	case "bool":
		v.Bool = s.Bool
	case "int":
		v.Int = s.Int
	case "real":
		v.Real = s.Real
	case "string":
		v.Str = s.Str
	}
}

// globalSymbols returns every VAR_GLOBAL declaration in table. Symbols
// of one scope come in map iteration order, which is not stable, so
// callers needing cycle-to-cycle stability should key off symbol
// identity, not slice order.
func globalSymbols(table *symbols.Table) []*symbols.Symbol {
	var out []*symbols.Symbol
	var walk func(s *symbols.Scope)
	walk = func(s *symbols.Scope) {
		for _, sym := range s.Symbols {
			if sym.Qualifier == symbols.QualGlobal {
				out = append(out, sym)
			}
		}
		for _, c := range s.Children {
			walk(c)
		}
	}
	walk(table.Global)
	return out
}

func globalType(sym *symbols.Symbol) *types.Type {
	if StandardFBName(sym.TypeName) {
		return &types.Type{Cat: types.CatFunctionBlock, POUName: sym.TypeName}
	}
	return lower.TypeFromName(sym.TypeName)
}
