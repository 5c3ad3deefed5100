// Package ide implements the editor-facing features of spec.md §4.7 as
// queries over internal/query's analysis results: every feature here
// resolves a cursor position against a file's CST and symbol table,
// never against raw text.
package ide

import (
	"context"
	"sync"

	"stlang/internal/lexer"
	"stlang/internal/lower"
	"stlang/internal/query"
	"stlang/internal/symbols"
	"stlang/internal/syntax"
)

// Position is a 1-based line/column, matching lexer.Position.
type Position struct {
	Line   int
	Column int
}

// Range is a half-open span within one file.
type Range struct {
	Start, End Position
}

// Location names a span in a specific file.
type Location struct {
	File  symbols.FileID
	Range Range
}

// TextEdit replaces [Start, End) of a file's current text with NewText.
type TextEdit struct {
	Start, End int
	NewText    string
}

// WorkspaceEdit groups edits across possibly many files, plus file
// renames/creates for refactorings that move source (rename-on-POU-
// rename, moveNamespace).
type WorkspaceEdit struct {
	Changes map[symbols.FileID][]TextEdit
	Renames map[symbols.FileID]symbols.FileID // old path -> new path
	Creates map[symbols.FileID]string         // new path -> full content
}

func (w *WorkspaceEdit) edit(file symbols.FileID, start, end int, text string) {
	if w.Changes == nil {
		w.Changes = make(map[symbols.FileID][]TextEdit)
	}
	w.Changes[file] = append(w.Changes[file], TextEdit{Start: start, End: end, NewText: text})
}

func posAt(src string, offset int) Position {
	p := syntax.PositionOf(src, offset)
	return Position{Line: p.Line, Column: p.Column}
}

func rangeOf(src string, start, end int) Range {
	return Range{Start: posAt(src, start), End: posAt(src, end)}
}

// OffsetAt converts a 1-based Position back to a byte offset within
// src, the inverse of posAt/syntax.PositionOf — exported for
// internal/lsp, which must convert wire (0-based line/character)
// positions the same way Rename already does internally.
func OffsetAt(src string, pos Position) int {
	return offsetAt(src, pos)
}

// PositionAt converts a byte offset within src to a 1-based Position —
// exported for internal/lsp, which needs it to place inlay hints and
// the end of a whole-file formatting edit on the wire.
func PositionAt(src string, offset int) Position {
	return posAt(src, offset)
}

// Index aggregates symbol tables across every file the client has
// opened or the workspace scan has visited, so Definition/References/
// Rename can resolve the workspace-wide names spec.md §4.7 requires
// (POUs, namespaces, VAR_GLOBAL) even though symbols.Table itself is
// built one file at a time.
type Index struct {
	mu    sync.RWMutex
	files map[symbols.FileID]*symbols.Table
}

// NewIndex returns an empty workspace symbol index.
func NewIndex() *Index {
	return &Index{files: make(map[symbols.FileID]*symbols.Table)}
}

// Update replaces file's entry, e.g. after a reparse invalidates it.
func (ix *Index) Update(file symbols.FileID, tbl *symbols.Table) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.files[file] = tbl
}

// Remove drops file, e.g. when it's deleted from the workspace.
func (ix *Index) Remove(file symbols.FileID) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.files, file)
}

// Files returns every indexed file, for callers that need to scan all
// of them (ScanWorkspace, references, rename).
func (ix *Index) Files() []symbols.FileID {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]symbols.FileID, 0, len(ix.files))
	for f := range ix.files {
		out = append(out, f)
	}
	return out
}

// Table returns file's last-indexed symbol table, if any.
func (ix *Index) Table(file symbols.FileID) (*symbols.Table, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	t, ok := ix.files[file]
	return t, ok
}

// globalDecls returns every top-level (global-scope or namespace-scope)
// declaration named name, across all indexed files — the candidate set
// for a workspace-wide name that isn't resolvable purely from one
// file's local scope chain.
func (ix *Index) globalDecls(name string) []*symbols.Symbol {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var out []*symbols.Symbol
	for _, tbl := range ix.files {
		var walk func(s *symbols.Scope)
		walk = func(s *symbols.Scope) {
			if sym, ok := s.Symbols[name]; ok {
				out = append(out, sym)
			}
			for _, c := range s.Children {
				if c.Kind == symbols.ScopeNamespace {
					walk(c)
				}
			}
		}
		walk(tbl.Global)
	}
	return out
}

// symbolAt resolves the identifier under offset in file to its
// declaring symbol: first by walking the innermost enclosing scope
// chain (locals, POU members, USING-imported namespaces), then by
// falling back to a workspace-wide lookup by name (POUs, namespaced
// globals) when the local chain doesn't know it.
func symbolAt(root *syntax.Node, tbl *symbols.Table, ix *Index, offset int) (*symbols.Symbol, string, bool) {
	node := syntax.FindToken(root, offset)
	name, ok := identTextAt(node, offset)
	if !ok {
		return nil, "", false
	}
	scope := enclosingScope(tbl, node)
	if scope != nil {
		if sym, ok := symbols.Resolve(scope, name); ok {
			return sym, name, true
		}
		for _, using := range collectUsing(scope) {
			for _, sym := range ix.globalDecls(name) {
				if sym.Scope != nil && sym.Scope.Kind == symbols.ScopeNamespace && sym.Scope.Name == using {
					return sym, name, true
				}
			}
		}
	}
	if sym, ok := tbl.Global.Symbols[name]; ok {
		return sym, name, true
	}
	if decls := ix.globalDecls(name); len(decls) > 0 {
		return decls[0], name, true
	}
	return nil, name, false
}

// identTextAt returns the identifier token text at node if node (or
// its immediate red-tree wrapper) is a single-token identifier span
// containing offset.
func identTextAt(node *syntax.Node, offset int) (string, bool) {
	for _, t := range node.Tokens() {
		if t.Offset <= offset && offset <= t.Offset+t.Token.Len() && t.Token.Kind == lexer.Ident {
			return t.Token.Text, true
		}
	}
	return "", false
}

// enclosingScope finds the nearest scope in tbl covering node: POU
// scopes are looked up by name since symbols.Table doesn't index
// scopes by source span directly (mirrors internal/analyze's own
// lookupFromNode walk).
func enclosingScope(tbl *symbols.Table, node *syntax.Node) *symbols.Scope {
	var pouName, methodName string
	for n := node; n != nil; n = n.Parent {
		switch n.Kind() {
		case syntax.NodeMethod:
			if methodName == "" {
				methodName = firstIdent(n)
			}
		case syntax.NodePOUProgram, syntax.NodePOUFunction, syntax.NodePOUFunctionBlock,
			syntax.NodePOUClass, syntax.NodePOUInterface:
			pouName = firstIdent(n)
		}
	}
	if pouName == "" {
		return tbl.Global
	}
	for _, scope := range tbl.Global.Children {
		if scope.Kind == symbols.ScopePOU && scope.Name == pouName {
			if methodName != "" {
				for _, m := range scope.Children {
					if m.Kind == symbols.ScopeMethod && m.Name == methodName {
						return m
					}
				}
			}
			return scope
		}
	}
	// Search one level into namespaces too.
	for _, top := range tbl.Global.Children {
		if top.Kind != symbols.ScopeNamespace {
			continue
		}
		for _, scope := range top.Children {
			if scope.Kind == symbols.ScopePOU && scope.Name == pouName {
				return scope
			}
		}
	}
	return tbl.Global
}

func firstIdent(n *syntax.Node) string {
	for _, t := range n.Tokens() {
		if t.Token.Kind == lexer.Ident {
			return t.Token.Text
		}
	}
	return ""
}

func collectUsing(scope *symbols.Scope) []string {
	var out []string
	for s := scope; s != nil; s = s.Parent {
		out = append(out, s.Using...)
	}
	return out
}

// Workspace is the subset of internal/query's pipeline the IDE layer
// needs: parsed CSTs and symbol tables, kept current by the caller
// (internal/lsp) re-running Parse/Symbols on every didChange and
// feeding the result into Index.Update.
type Workspace interface {
	query.Source
	Parse(ctx context.Context, file symbols.FileID) (*syntax.Node, error)
	Symbols(ctx context.Context, file symbols.FileID) (*symbols.Table, error)
}

// QueryWorkspace adapts a *query.Workspace (the real memoized pipeline)
// plus its Source to the narrower Workspace interface this package
// depends on.
type QueryWorkspace struct {
	query.Source
	W *query.Workspace
}

func (q QueryWorkspace) Parse(ctx context.Context, file symbols.FileID) (*syntax.Node, error) {
	r, err := q.W.Parse(ctx, file)
	if err != nil {
		return nil, err
	}
	return r.Root, nil
}

func (q QueryWorkspace) Symbols(ctx context.Context, file symbols.FileID) (*symbols.Table, error) {
	r, err := q.W.Symbols(ctx, file)
	if err != nil {
		return nil, err
	}
	return r.Table, nil
}

// unitOf runs the full lower.Lower pass over file and returns the
// unit, discarding lowering diagnostics, for IDE features that need
// resolved types rather than the raw TypeName string. It does no
// caching; each call lowers the file again.
func unitOf(file symbols.FileID, root *syntax.Node, tbl *symbols.Table, src string) *lower.Unit {
	unit, _ := lower.Lower(file, root, tbl, src)
	return unit
}
