package eval

import (
	"strings"
	"time"

	"stlang/internal/lower"
)

// Native is a stdlib/built-in implementation callable from ST
// (spec.md §4.10). Args arrive as evaluated, in call order, without
// coercion to any parameter type.
type Native func(args []*Value) (*Value, *Fault)

// FBStep advances a standard function-block instance by one
// evaluation (spec.md §4.10 Tables 43-46). self is the instance's
// persistent Value (its Fields hold IN/PT/Q/ET/... members); args are
// this call's bound input parameters, keyed by IEC parameter name
// (e.g. "IN", "PT", "CU", "R"); now is the Clock reading for this
// cycle. FBStep mutates self.Fields in place.
type FBStep func(self *Value, args map[string]*Value, now time.Time) *Fault

// Registry resolves a call's callee name to either a user-defined POU
// body (lowered to HIR) or a native stdlib function.
type Registry struct {
	pous   map[string]*lower.POU
	native map[string]Native
	fbs    map[string]FBStep
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{pous: make(map[string]*lower.POU), native: make(map[string]Native), fbs: make(map[string]FBStep)}
}

// AddFBType registers name's step function. internal/runtime calls
// RegisterFBLayout separately so Zero() can default-initialize
// instances without needing a Registry in hand.
func (r *Registry) AddFBType(name string, step FBStep) {
	r.fbs[strings.ToUpper(name)] = step
}

func (r *Registry) lookupFBType(name string) (FBStep, bool) {
	step, ok := r.fbs[strings.ToUpper(name)]
	return step, ok
}

// AddUnit registers every POU in u.
func (r *Registry) AddUnit(u *lower.Unit) {
	for i := range u.POUs {
		r.AddPOU(&u.POUs[i])
	}
}

// AddPOU registers one user-defined POU by name (case-insensitive, per
// IEC identifier rules).
func (r *Registry) AddPOU(p *lower.POU) {
	r.pous[strings.ToUpper(p.Name)] = p
}

// AddNative registers a stdlib function under name.
func (r *Registry) AddNative(name string, fn Native) {
	r.native[strings.ToUpper(name)] = fn
}

func (r *Registry) lookupPOU(name string) (*lower.POU, bool) {
	p, ok := r.pous[strings.ToUpper(name)]
	return p, ok
}

func (r *Registry) lookupNative(name string) (Native, bool) {
	fn, ok := r.native[strings.ToUpper(name)]
	return fn, ok
}

// HasNative reports whether name is registered as a native function,
// for callers (internal/ide's hover) that need to know without calling
// it.
func (r *Registry) HasNative(name string) bool {
	_, ok := r.lookupNative(name)
	return ok
}
