package ide

import (
	"context"
	"path"
	"strings"

	"stlang/internal/lexer"
	"stlang/internal/symbols"
	"stlang/internal/syntax"
)

// References finds every occurrence of the symbol under offset across
// the workspace, resolved by symbol identity rather than text match
// (spec.md §4.7 "References are symbol-aware, never textual"): each
// candidate identifier token is itself resolved through symbolAt and
// compared by (File, Offset) against the target's declaration. A
// caller streaming partial results to an LSP client should call this
// once per indexed file and flush incrementally instead of waiting for
// the full slice; this implementation returns the complete set since
// internal/lsp owns the streaming transport.
func References(ctx context.Context, ws Workspace, ix *Index, file symbols.FileID, offset int, includeDecl bool) ([]Location, error) {
	root, err := ws.Parse(ctx, file)
	if err != nil {
		return nil, err
	}
	tbl, err := ws.Symbols(ctx, file)
	if err != nil {
		return nil, err
	}
	target, name, ok := symbolAt(root, tbl, ix, offset)
	if !ok {
		return nil, nil
	}

	var out []Location
	for _, f := range ix.Files() {
		froot, err := ws.Parse(ctx, f)
		if err != nil {
			continue
		}
		ftbl, ok := ix.Table(f)
		if !ok {
			continue
		}
		src, err := ws.Read(f)
		if err != nil {
			continue
		}
		for _, tok := range identOccurrences(froot, name) {
			if !includeDecl && tok.Offset == target.ID.Offset && f == target.ID.File {
				continue
			}
			sym, _, ok := symbolAt(froot, ftbl, ix, tok.Offset)
			if !ok || sym.ID != target.ID {
				continue
			}
			out = append(out, Location{
				File:  f,
				Range: rangeOf(src, tok.Offset, tok.Offset+tok.Token.Len()),
			})
		}
	}
	return out, nil
}

// identOccurrences walks root's full token stream collecting every
// Ident leaf with the given text, recursing through every child.
func identOccurrences(n *syntax.Node, name string) []syntax.TokenAt {
	var out []syntax.TokenAt
	var walk func(n *syntax.Node)
	walk = func(n *syntax.Node) {
		for _, t := range n.Tokens() {
			if t.Token.Kind == lexer.Ident && t.Token.Text == name {
				out = append(out, t)
			}
		}
		for _, c := range n.Children() {
			walk(c)
		}
	}
	walk(n)
	return out
}

// Rename produces a workspace edit renaming the symbol under offset to
// newName everywhere References finds it, and — when the renamed
// symbol is the file's sole top-level POU or namespace and its name
// matches the file stem — also renames the file itself (spec.md
// §4.7/§6 "file stems matching the sole top-level POU/namespace
// participate in file rename").
func Rename(ctx context.Context, ws Workspace, ix *Index, file symbols.FileID, offset int, newName string) (*WorkspaceEdit, error) {
	root, err := ws.Parse(ctx, file)
	if err != nil {
		return nil, err
	}
	tbl, err := ws.Symbols(ctx, file)
	if err != nil {
		return nil, err
	}
	target, _, ok := symbolAt(root, tbl, ix, offset)
	if !ok {
		return nil, nil
	}
	refs, err := References(ctx, ws, ix, file, offset, true)
	if err != nil {
		return nil, err
	}
	edit := &WorkspaceEdit{}
	for _, r := range refs {
		src, err := ws.Read(r.File)
		if err != nil {
			continue
		}
		start := offsetAt(src, r.Range.Start)
		end := offsetAt(src, r.Range.End)
		edit.edit(r.File, start, end, newName)
	}

	if isFileRenameEligible(tbl, target) {
		stem := strings.TrimSuffix(path.Base(string(target.ID.File)), path.Ext(string(target.ID.File)))
		if stem == target.Name {
			dir := path.Dir(string(target.ID.File))
			newFile := symbols.FileID(path.Join(dir, newName+path.Ext(string(target.ID.File))))
			if edit.Renames == nil {
				edit.Renames = make(map[symbols.FileID]symbols.FileID)
			}
			edit.Renames[target.ID.File] = newFile
		}
	}
	return edit, nil
}

// isFileRenameEligible reports whether target is the sole top-level
// POU or namespace declared at its file's global scope.
func isFileRenameEligible(tbl *symbols.Table, target *symbols.Symbol) bool {
	if target.Kind != symbols.KindProgram && target.Kind != symbols.KindFunction &&
		target.Kind != symbols.KindFunctionBlock && target.Kind != symbols.KindClass &&
		target.Kind != symbols.KindInterface && target.Kind != symbols.KindNamespace {
		return false
	}
	count := 0
	for _, sym := range tbl.Global.Symbols {
		switch sym.Kind {
		case symbols.KindProgram, symbols.KindFunction, symbols.KindFunctionBlock,
			symbols.KindClass, symbols.KindInterface:
			count++
		}
	}
	for _, child := range tbl.Global.Children {
		if child.Kind == symbols.ScopeNamespace {
			count++ // a namespace has a scope here but no symbol; POU scopes were counted above
		}
	}
	return count <= 1
}

// offsetAt converts a 1-based Position back to a byte offset by
// scanning src once, the inverse of syntax.PositionOf.
func offsetAt(src string, pos Position) int {
	line, col := 1, 1
	for i := 0; i < len(src); i++ {
		if line == pos.Line && col == pos.Column {
			return i
		}
		if src[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return len(src)
}
