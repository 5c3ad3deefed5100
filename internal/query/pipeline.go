package query

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"stlang/internal/analyze"
	"stlang/internal/symbols"
	"stlang/internal/syntax"
)

// ParseResult is the memoized outcome of parsing one file.
type ParseResult struct {
	Root  *syntax.Node
	Diags []syntax.Diagnostic
}

// SymbolsResult is the memoized outcome of building one file's symbol
// table.
type SymbolsResult struct {
	Table *symbols.Table
}

// Report is a pull-diagnostics response (SPEC_FULL.md §6): ID is a
// content hash of (source text, diagnostic set) so a client supplying
// a matching prior ID gets Unchanged=true and can skip re-rendering.
type Report struct {
	ID        string
	Unchanged bool
	Items     []analyze.Diagnostic
}

// Source resolves a file's current text; internal/ide and internal/lsp
// implement this over the open-document set plus disk fallback.
type Source interface {
	Read(file symbols.FileID) (string, error)
}

// Workspace is the query(project, file) entrypoints of spec.md §4.6,
// built on Engine.
type Workspace struct {
	eng *Engine
	src Source
}

// NewWorkspace wraps eng with the file-pipeline queries.
func NewWorkspace(eng *Engine, src Source) *Workspace {
	return &Workspace{eng: eng, src: src}
}

func parseKey(f symbols.FileID) Key   { return Key("parse:" + f) }
func symbolsKey(f symbols.FileID) Key { return Key("symbols:" + f) }
func analyzeKey(f symbols.FileID) Key { return Key("analyze:" + f) }

// Parse returns file's memoized CST, reparsing only if invalidated.
func (w *Workspace) Parse(ctx context.Context, file symbols.FileID) (*ParseResult, error) {
	v, err := w.eng.Query(ctx, parseKey(file), nil, func(context.Context) (interface{}, error) {
		src, err := w.src.Read(file)
		if err != nil {
			return nil, err
		}
		root, diags := syntax.Parse(src)
		return &ParseResult{Root: root, Diags: diags}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*ParseResult), nil
}

// Symbols returns file's memoized symbol table, depending on Parse.
func (w *Workspace) Symbols(ctx context.Context, file symbols.FileID) (*SymbolsResult, error) {
	v, err := w.eng.Query(ctx, symbolsKey(file), []Key{parseKey(file)}, func(ctx context.Context) (interface{}, error) {
		p, err := w.Parse(ctx, file)
		if err != nil {
			return nil, err
		}
		return &SymbolsResult{Table: symbols.Build(file, p.Root)}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*SymbolsResult), nil
}

// Analyze returns file's memoized per-file diagnostics, depending on
// Symbols. Workspace-wide OO rules are a separate, explicit call
// (AnalyzeOO) since they span every file's roots at once.
func (w *Workspace) Analyze(ctx context.Context, file symbols.FileID) (*analyze.Result, error) {
	v, err := w.eng.Query(ctx, analyzeKey(file), []Key{symbolsKey(file)}, func(ctx context.Context) (interface{}, error) {
		p, err := w.Parse(ctx, file)
		if err != nil {
			return nil, err
		}
		s, err := w.Symbols(ctx, file)
		if err != nil {
			return nil, err
		}
		return analyze.Analyze(file, p.Root, s.Table), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*analyze.Result), nil
}

// Diagnostics implements the pull-diagnostics query: Report.ID is
// stable when file's text and resulting diagnostics are unchanged, so
// a client can short-circuit rendering (SPEC_FULL.md §6).
func (w *Workspace) Diagnostics(ctx context.Context, file symbols.FileID, priorID string) (*Report, error) {
	src, err := w.src.Read(file)
	if err != nil {
		return nil, err
	}
	result, err := w.Analyze(ctx, file)
	if err != nil {
		return nil, err
	}
	id := reportID(src, result.Diags)
	if priorID != "" && priorID == id {
		return &Report{ID: id, Unchanged: true}, nil
	}
	return &Report{ID: id, Items: result.Diags}, nil
}

func reportID(source string, diags []analyze.Diagnostic) string {
	h := sha256.New()
	h.Write([]byte(source))
	for _, d := range diags {
		fmt.Fprintf(h, "|%d:%d:%s:%s", d.Offset, d.Length, d.Code, d.Message)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Invalidate drops file's cached parse/symbols/analyze results and
// cascades to anything depending on them (e.g. a workspace-wide
// hierarchy query), per spec.md §4.6. internal/lsp calls it when a
// document is opened, changed or closed; internal/config.Watcher is not
// connected to it.
func (w *Workspace) Invalidate(file symbols.FileID) {
	w.eng.Invalidate(parseKey(file))
}

// ScanWorkspace runs Analyze over every file in files concurrently,
// bounded by limit in-flight file scans, honoring ctx cancellation at
// file boundaries (spec.md §4.6 "long scans yield between files",
// §5's errgroup-bounded workspace-wide query workers).
func ScanWorkspace(ctx context.Context, w *Workspace, files []symbols.FileID, limit int) (map[symbols.FileID]*analyze.Result, error) {
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	var mu sync.Mutex
	results := make(map[symbols.FileID]*analyze.Result, len(files))
	for _, f := range files {
		f := f
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := w.Analyze(ctx, f)
			if err != nil {
				return err
			}
			mu.Lock()
			results[f] = r
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
