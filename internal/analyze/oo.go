package analyze

import (
	"context"

	"stlang/internal/analyze/oorules"
	"stlang/internal/lexer"
	"stlang/internal/syntax"
)

// AnalyzeOO extracts CLASS/INTERFACE facts from every file's root node
// and evaluates the OO rules of spec.md §4.5 across the whole set,
// since override/implements/extends checks are workspace-wide, not
// per-file. Diagnostics are reported against the class/interface
// declaration node that owns each offending name when it is found in
// roots; a POU named in a violation but not present in roots (e.g. a
// stale cross-file reference) is skipped rather than invented a
// location for.
func AnalyzeOO(ctx context.Context, roots map[syntax.NodeKind][]*syntax.Node) ([]Diagnostic, error) {
	var pous []oorules.POUInfo
	nameNodes := make(map[string]*syntax.Node)
	methodNodes := make(map[[2]string]*syntax.Node)

	for _, n := range roots[syntax.NodePOUClass] {
		info, nameNode, methods := extractClass(n)
		pous = append(pous, info)
		nameNodes[info.Name] = nameNode
		for key, mn := range methods {
			methodNodes[key] = mn
		}
	}
	for _, n := range roots[syntax.NodePOUInterface] {
		info, nameNode, _ := extractInterface(n)
		pous = append(pous, info)
		nameNodes[info.Name] = nameNode
	}

	result, err := oorules.Check(ctx, pous)
	if err != nil {
		return nil, err
	}

	var diags []Diagnostic
	for _, v := range result.ExtendsFinal {
		if n := nameNodes[v.Sub]; n != nil {
			diags = append(diags, diag(n, CodeExtendsFinal, "cannot extend FINAL class '"+v.Base+"'", "IEC 61131-3 §6.9.2"))
		}
	}
	for _, v := range result.OverrideWithoutBase {
		if n := methodNodes[[2]string{v.Class, v.Method}]; n != nil {
			diags = append(diags, diag(n, CodeOverrideWithoutBase, "OVERRIDE method '"+v.Method+"' has no matching base declaration", "IEC 61131-3 §6.9.4"))
		}
	}
	for _, v := range result.OverrideAccessMismatch {
		if n := methodNodes[[2]string{v.Class, v.Method}]; n != nil {
			diags = append(diags, diag(n, CodeOverrideAccessMismatch, "OVERRIDE method '"+v.Method+"' changes access from "+v.BaseAccess+" to "+v.Access, "IEC 61131-3 §6.9.4"))
		}
	}
	for _, v := range result.AbstractMethodOutsideAbstractClass {
		if n := methodNodes[[2]string{v.Class, v.Method}]; n != nil {
			diags = append(diags, diag(n, CodeAbstractMethodOutsideAbstractClass, "ABSTRACT method '"+v.Method+"' requires an ABSTRACT class", "IEC 61131-3 §6.9.3"))
		}
	}
	for _, v := range result.MissingInterfaceMethod {
		if n := nameNodes[v.Class]; n != nil {
			diags = append(diags, diag(n, CodeMissingInterfaceMethod, "class '"+v.Class+"' does not implement '"+v.Interface+"."+v.Method+"'", "IEC 61131-3 §6.9.5",
				QuickFix{Kind: "stub-interface-member", Title: "Stub missing interface member '" + v.Method + "'"}))
		}
	}
	return diags, nil
}

func diag(n *syntax.Node, code, msg, iecRef string, fixes ...QuickFix) Diagnostic {
	return Diagnostic{Offset: n.Offset, Length: n.EndOffset() - n.Offset, Severity: SeverityError, Code: code, Message: msg, IECRef: iecRef, Fixes: fixes}
}

// nameListMode tracks which qualified-name list header tokens
// following CLASS's name belong to.
type nameListMode int

const (
	modeNone nameListMode = iota
	modeExtends
	modeImplements
)

func extractClass(n *syntax.Node) (oorules.POUInfo, *syntax.Node, map[[2]string]*syntax.Node) {
	info := oorules.POUInfo{}
	methodNodes := make(map[[2]string]*syntax.Node)
	mode := modeNone
	var current []string
	flush := func() {
		if len(current) == 0 {
			return
		}
		name := current[0]
		for _, p := range current[1:] {
			name += "." + p
		}
		switch mode {
		case modeExtends:
			info.Extends = name
		case modeImplements:
			info.Implements = append(info.Implements, name)
		}
		current = nil
	}
	for _, t := range n.Tokens() {
		switch t.Token.Kind {
		case lexer.KwAbstract:
			info.Abstract = true
		case lexer.KwFinal:
			info.Final = true
		case lexer.KwExtends:
			flush()
			mode = modeExtends
		case lexer.KwImplements:
			flush()
			mode = modeImplements
		case lexer.Comma:
			flush()
		case lexer.Ident:
			if info.Name == "" && mode == modeNone {
				info.Name = t.Token.Text
				continue
			}
			if mode != modeNone {
				current = append(current, t.Token.Text)
			}
		}
	}
	flush()
	for _, c := range n.Children() {
		if c.Kind() == syntax.NodeMethod {
			m, mn := extractMethod(c)
			info.Methods = append(info.Methods, m)
			methodNodes[[2]string{info.Name, m.Name}] = mn
		}
	}
	return info, n, methodNodes
}

func extractInterface(n *syntax.Node) (oorules.POUInfo, *syntax.Node, map[[2]string]*syntax.Node) {
	info := oorules.POUInfo{IsInterface: true}
	for _, t := range n.Tokens() {
		if t.Token.Kind == lexer.Ident && info.Name == "" {
			info.Name = t.Token.Text
		}
	}
	for _, c := range n.Children() {
		if c.Kind() == syntax.NodeMethod {
			toks := c.Tokens()
			for _, t := range toks {
				if t.Token.Kind == lexer.Ident {
					info.Methods = append(info.Methods, oorules.MethodInfo{Name: t.Token.Text})
					break
				}
			}
		}
	}
	return info, n, nil
}

func extractMethod(n *syntax.Node) (oorules.MethodInfo, *syntax.Node) {
	m := oorules.MethodInfo{Access: "public"}
	for _, t := range n.Tokens() {
		switch t.Token.Kind {
		case lexer.KwPublic:
			m.Access = "public"
		case lexer.KwProtected:
			m.Access = "protected"
		case lexer.KwPrivate:
			m.Access = "private"
		case lexer.KwInternal:
			m.Access = "internal"
		case lexer.KwAbstract:
			m.Abstract = true
		case lexer.KwOverride:
			m.Override = true
		case lexer.Ident:
			if m.Name == "" {
				m.Name = t.Token.Text
			}
		}
	}
	return m, n
}
