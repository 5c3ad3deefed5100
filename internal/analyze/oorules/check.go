package oorules

import "context"

// MethodInfo describes one declared method for fact extraction.
type MethodInfo struct {
	Name     string
	Access   string // "public", "protected", "private", "internal"
	Abstract bool
	Override bool
}

// POUInfo describes one CLASS or INTERFACE for fact extraction.
type POUInfo struct {
	Name        string
	IsInterface bool
	Abstract    bool
	Final       bool
	Extends     string
	Implements  []string
	Methods     []MethodInfo
}

// Result is the full set of OO-rule violations found across a workspace.
type Result struct {
	ExtendsFinal          []ExtendsFinalViolation
	OverrideWithoutBase   []OverrideViolation
	OverrideAccessMismatch []OverrideAccessViolation
	AbstractMethodOutsideAbstractClass []MethodViolation
	MissingInterfaceMethod []InterfaceViolation
}

type ExtendsFinalViolation struct{ Sub, Base string }
type OverrideViolation struct{ Class, Method string }
type OverrideAccessViolation struct{ Class, Method, Access, BaseAccess string }
type MethodViolation struct{ Class, Method string }
type InterfaceViolation struct{ Class, Interface, Method string }

// Check builds facts from pous and evaluates the OO-rules schema,
// returning every violation (spec.md §4.5).
func Check(ctx context.Context, pous []POUInfo) (*Result, error) {
	eng, err := NewEngine(DefaultConfig())
	if err != nil {
		return nil, err
	}

	var facts []Fact
	for _, p := range pous {
		if p.IsInterface {
			facts = append(facts, Fact{"interface", []interface{}{p.Name}})
			for _, m := range p.Methods {
				facts = append(facts, Fact{"interface_method", []interface{}{p.Name, m.Name}})
			}
			continue
		}
		facts = append(facts, Fact{"class", []interface{}{p.Name}})
		if p.Abstract {
			facts = append(facts, Fact{"abstract_class", []interface{}{p.Name}})
		}
		if p.Final {
			facts = append(facts, Fact{"final_class", []interface{}{p.Name}})
		}
		if p.Extends != "" {
			facts = append(facts, Fact{"extends", []interface{}{p.Name, p.Extends}})
		}
		for _, iface := range p.Implements {
			facts = append(facts, Fact{"implements", []interface{}{p.Name, iface}})
		}
		for _, m := range p.Methods {
			facts = append(facts, Fact{"method", []interface{}{p.Name, m.Name, m.Access, m.Abstract, m.Override}})
		}
	}

	if err := eng.AddFacts(facts); err != nil {
		return nil, err
	}

	res := &Result{}

	extendsFinal, err := eng.Query(ctx, "extends_final(Sub, Base)")
	if err != nil {
		return nil, err
	}
	for _, v := range extendsFinal {
		res.ExtendsFinal = append(res.ExtendsFinal, ExtendsFinalViolation{Sub: v["Sub"], Base: v["Base"]})
	}

	overrides, err := eng.Query(ctx, "override_without_base(Class, Name)")
	if err != nil {
		return nil, err
	}
	for _, v := range overrides {
		res.OverrideWithoutBase = append(res.OverrideWithoutBase, OverrideViolation{Class: v["Class"], Method: v["Name"]})
	}

	accessMismatch, err := eng.Query(ctx, "override_access_mismatch(Class, Name, Access, BaseAccess)")
	if err != nil {
		return nil, err
	}
	for _, v := range accessMismatch {
		res.OverrideAccessMismatch = append(res.OverrideAccessMismatch, OverrideAccessViolation{
			Class: v["Class"], Method: v["Name"], Access: v["Access"], BaseAccess: v["BaseAccess"],
		})
	}

	abstractOutside, err := eng.Query(ctx, "abstract_method_concrete_class(Class, Name)")
	if err != nil {
		return nil, err
	}
	for _, v := range abstractOutside {
		res.AbstractMethodOutsideAbstractClass = append(res.AbstractMethodOutsideAbstractClass, MethodViolation{Class: v["Class"], Method: v["Name"]})
	}

	missing, err := eng.Query(ctx, "missing_interface_method(Class, Iface, Name)")
	if err != nil {
		return nil, err
	}
	for _, v := range missing {
		res.MissingInterfaceMethod = append(res.MissingInterfaceMethod, InterfaceViolation{Class: v["Class"], Interface: v["Iface"], Method: v["Name"]})
	}

	return res, nil
}
