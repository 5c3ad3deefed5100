package ide

import (
	"context"

	"stlang/internal/symbols"
	"stlang/internal/syntax"
)

// Definition resolves the symbol under offset to its declaration site,
// workspace-wide (spec.md §4.7). Declaration is an alias of
// Definition in this language: ST has no separate
// forward-declaration or interface-stub concept, so "go to
// declaration" and "go to definition" always land on the same
// DeclOffset, and "go to type definition" resolves the variable's
// TypeName as a second Definition lookup.
func Definition(ctx context.Context, ws Workspace, ix *Index, file symbols.FileID, offset int) (*Location, error) {
	root, err := ws.Parse(ctx, file)
	if err != nil {
		return nil, err
	}
	tbl, err := ws.Symbols(ctx, file)
	if err != nil {
		return nil, err
	}
	sym, _, ok := symbolAt(root, tbl, ix, offset)
	if !ok {
		return nil, nil
	}
	return symbolLocation(ws, sym)
}

// TypeDefinition resolves the declared type of the symbol under offset
// to its own declaration (e.g. a VAR of a FUNCTION_BLOCK type jumps to
// that FB's declaration, not the variable's).
func TypeDefinition(ctx context.Context, ws Workspace, ix *Index, file symbols.FileID, offset int) (*Location, error) {
	root, err := ws.Parse(ctx, file)
	if err != nil {
		return nil, err
	}
	tbl, err := ws.Symbols(ctx, file)
	if err != nil {
		return nil, err
	}
	sym, _, ok := symbolAt(root, tbl, ix, offset)
	if !ok || sym.TypeName == "" {
		return nil, nil
	}
	decls := ix.globalDecls(sym.TypeName)
	if len(decls) == 0 {
		return nil, nil
	}
	return symbolLocation(ws, decls[0])
}

// Implementation finds every concrete POU that implements an interface
// method or extends a class at the symbol under offset, walking the
// workspace index for EXTENDS/IMPLEMENTS clauses that name it. Full
// inheritance-graph traversal lives in internal/analyze/oo.go; this
// walk is intentionally the same shallow "does this POU's header
// mention the target name" check internal/analyze/oo.go itself uses to
// find a base before validating it, since that's the only workspace-
// wide name resolution this language needs here.
func Implementation(ctx context.Context, ws Workspace, ix *Index, file symbols.FileID, offset int) ([]Location, error) {
	root, err := ws.Parse(ctx, file)
	if err != nil {
		return nil, err
	}
	tbl, err := ws.Symbols(ctx, file)
	if err != nil {
		return nil, err
	}
	sym, _, ok := symbolAt(root, tbl, ix, offset)
	if !ok {
		return nil, nil
	}
	var out []Location
	for _, f := range ix.Files() {
		ftbl, ok := ix.Table(f)
		if !ok {
			continue
		}
		froot, err := ws.Parse(ctx, f)
		if err != nil {
			continue
		}
		for _, c := range froot.Children() {
			if !isPOUKind(c.Kind()) {
				continue
			}
			if !headerReferences(c, sym.Name) {
				continue
			}
			name := firstIdent(c)
			if pouSym, ok := ftbl.Global.Symbols[name]; ok {
				if loc, err := symbolLocation(ws, pouSym); err == nil && loc != nil {
					out = append(out, *loc)
				}
			}
		}
	}
	return out, nil
}

func isPOUKind(k syntax.NodeKind) bool {
	switch k {
	case syntax.NodePOUProgram, syntax.NodePOUFunction, syntax.NodePOUFunctionBlock,
		syntax.NodePOUClass, syntax.NodePOUInterface:
		return true
	}
	return false
}

func headerReferences(pou *syntax.Node, name string) bool {
	for _, t := range pou.Tokens() {
		if t.Token.Text == name {
			return true
		}
	}
	return false
}

func symbolLocation(ws Workspace, sym *symbols.Symbol) (*Location, error) {
	src, err := ws.Read(sym.ID.File)
	if err != nil {
		return nil, err
	}
	return &Location{
		File:  sym.ID.File,
		Range: rangeOf(src, sym.DeclOffset, sym.DeclEnd),
	}, nil
}
