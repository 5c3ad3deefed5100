package ide

import (
	"context"

	"stlang/internal/lexer"
	"stlang/internal/symbols"
	"stlang/internal/syntax"
)

// CallHierarchyItem names one node in a call hierarchy (spec.md §4.7's
// closing bullet).
type CallHierarchyItem struct {
	Name string
	Loc  Location
}

// PrepareCallHierarchy resolves the symbol under offset to its
// CallHierarchyItem, or nil if it isn't a callable POU.
func PrepareCallHierarchy(ctx context.Context, ws Workspace, ix *Index, file symbols.FileID, offset int) (*CallHierarchyItem, error) {
	root, err := ws.Parse(ctx, file)
	if err != nil {
		return nil, err
	}
	tbl, err := ws.Symbols(ctx, file)
	if err != nil {
		return nil, err
	}
	sym, _, ok := symbolAt(root, tbl, ix, offset)
	if !ok || !isCallableKind(sym.Kind) {
		return nil, nil
	}
	loc, err := symbolLocation(ws, sym)
	if err != nil {
		return nil, err
	}
	return &CallHierarchyItem{Name: sym.Name, Loc: *loc}, nil
}

func isCallableKind(k symbols.Kind) bool {
	switch k {
	case symbols.KindFunction, symbols.KindFunctionBlock, symbols.KindProgram, symbols.KindMethod:
		return true
	}
	return false
}

// IncomingCalls finds every call site across the workspace that
// invokes item, grouped by the enclosing POU/method making the call.
func IncomingCalls(ctx context.Context, ws Workspace, ix *Index, item CallHierarchyItem) ([]CallHierarchyItem, error) {
	seen := map[symbols.ID]bool{}
	var out []CallHierarchyItem
	for _, f := range ix.Files() {
		root, err := ws.Parse(ctx, f)
		if err != nil {
			continue
		}
		tbl, ok := ix.Table(f)
		if !ok {
			continue
		}
		for _, call := range callNodes(root) {
			callee := firstIdent(call)
			if callee != item.Name {
				continue
			}
			caller := enclosingScope(tbl, call)
			if caller == nil || caller == tbl.Global {
				continue
			}
			pouName := caller.Name
			for pouScope := caller; pouScope != nil; pouScope = pouScope.Parent {
				if pouScope.Kind == symbols.ScopePOU || pouScope.Kind == symbols.ScopeMethod {
					pouName = pouScope.Name
				}
			}
			if sym, ok := resolveInScope(tbl, pouName); ok {
				if seen[sym.ID] {
					continue
				}
				seen[sym.ID] = true
				if loc, err := symbolLocation(ws, sym); err == nil && loc != nil {
					out = append(out, CallHierarchyItem{Name: sym.Name, Loc: *loc})
				}
			}
		}
	}
	return out, nil
}

// OutgoingCalls finds every distinct callee invoked from within item's
// own body.
func OutgoingCalls(ctx context.Context, ws Workspace, ix *Index, item CallHierarchyItem) ([]CallHierarchyItem, error) {
	root, err := ws.Parse(ctx, item.Loc.File)
	if err != nil {
		return nil, err
	}
	tbl, err := ws.Symbols(ctx, item.Loc.File)
	if err != nil {
		return nil, err
	}
	pou := findPOUNode(root, item.Name)
	if pou == nil {
		return nil, nil
	}
	seen := map[symbols.ID]bool{}
	var out []CallHierarchyItem
	for _, call := range callNodes(pou) {
		name := firstIdent(call)
		sym, _, ok := symbolAt(root, tbl, ix, call.Offset)
		if !ok || sym.Name != name || !isCallableKind(sym.Kind) {
			continue
		}
		if seen[sym.ID] {
			continue
		}
		seen[sym.ID] = true
		if loc, err := symbolLocation(ws, sym); err == nil && loc != nil {
			out = append(out, CallHierarchyItem{Name: sym.Name, Loc: *loc})
		}
	}
	return out, nil
}

func callNodes(n *syntax.Node) []*syntax.Node {
	var out []*syntax.Node
	var walk func(n *syntax.Node)
	walk = func(n *syntax.Node) {
		if n.Kind() == syntax.NodeExprCall {
			out = append(out, n)
		}
		for _, c := range n.Children() {
			walk(c)
		}
	}
	walk(n)
	return out
}

func findPOUNode(root *syntax.Node, name string) *syntax.Node {
	for _, c := range root.Children() {
		if isPOUKind(c.Kind()) && firstIdent(c) == name {
			return c
		}
	}
	return nil
}

func resolveInScope(tbl *symbols.Table, name string) (*symbols.Symbol, bool) {
	if sym, ok := tbl.Global.Symbols[name]; ok {
		return sym, true
	}
	for _, top := range tbl.Global.Children {
		if top.Kind == symbols.ScopeNamespace {
			if sym, ok := top.Symbols[name]; ok {
				return sym, true
			}
		}
	}
	return nil, false
}

// TypeHierarchyItem names one node in a class/interface hierarchy.
type TypeHierarchyItem struct {
	Name string
	Loc  Location
}

// Supertypes returns the EXTENDS/IMPLEMENTS targets named in item's own
// header. EXTENDS/IMPLEMENTS introduce a flat run of qualified-name
// tokens directly in the POU node (parseClass/parseInterface), so the
// names following either keyword, up to the next keyword or VAR block,
// are the supertype list.
func Supertypes(ctx context.Context, ws Workspace, ix *Index, item TypeHierarchyItem) ([]TypeHierarchyItem, error) {
	root, err := ws.Parse(ctx, item.Loc.File)
	if err != nil {
		return nil, err
	}
	pou := findPOUNode(root, item.Name)
	if pou == nil {
		return nil, nil
	}
	var out []TypeHierarchyItem
	inClause := false
	for _, t := range pou.Tokens() {
		switch t.Token.Kind {
		case lexer.KwExtends, lexer.KwImplements:
			inClause = true
			continue
		case lexer.Ident, lexer.Dot, lexer.Comma:
			if !inClause {
				continue
			}
			if t.Token.Kind != lexer.Ident {
				continue
			}
			for _, decl := range ix.globalDecls(t.Token.Text) {
				if loc, err := symbolLocation(ws, decl); err == nil && loc != nil {
					out = append(out, TypeHierarchyItem{Name: decl.Name, Loc: *loc})
				}
			}
		default:
			inClause = false
		}
	}
	return out, nil
}

// Subtypes finds every POU across the workspace whose header names
// item, the same shallow reference check Implementation uses.
func Subtypes(ctx context.Context, ws Workspace, ix *Index, item TypeHierarchyItem) ([]TypeHierarchyItem, error) {
	var out []TypeHierarchyItem
	for _, f := range ix.Files() {
		root, err := ws.Parse(ctx, f)
		if err != nil {
			continue
		}
		ftbl, ok := ix.Table(f)
		if !ok {
			continue
		}
		for _, c := range root.Children() {
			if !isPOUKind(c.Kind()) || !headerReferences(c, item.Name) {
				continue
			}
			name := firstIdent(c)
			if name == item.Name {
				continue
			}
			if sym, ok := ftbl.Global.Symbols[name]; ok {
				if loc, err := symbolLocation(ws, sym); err == nil && loc != nil {
					out = append(out, TypeHierarchyItem{Name: sym.Name, Loc: *loc})
				}
			}
		}
	}
	return out, nil
}
