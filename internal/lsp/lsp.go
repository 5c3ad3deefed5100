// Package lsp exposes internal/ide's features over a Language Server
// Protocol stdio transport (spec.md §4.7, §6). It owns the only
// mutable state internal/ide needs from the outside: the open-document
// set (as an internal/query.Source) and the workspace-wide
// internal/ide.Index, both kept current as documents open, change, and
// close.
package lsp

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"stlang/internal/ide"
	"stlang/internal/logging"
	"stlang/internal/query"
	"stlang/internal/symbols"
)

// DocumentStore is the open-document set, implementing query.Source
// over in-memory buffers with a disk-read fallback for files the
// client hasn't opened (e.g. a workspace-wide reference scan touching
// a file with no open editor).
type DocumentStore struct {
	mu    sync.RWMutex
	open  map[symbols.FileID]string
	disk  func(symbols.FileID) (string, error)
}

// NewDocumentStore returns an empty store; diskRead is consulted for
// files not currently open (nil disables the fallback, reporting
// ErrNotOpen instead).
func NewDocumentStore(diskRead func(symbols.FileID) (string, error)) *DocumentStore {
	return &DocumentStore{open: make(map[symbols.FileID]string), disk: diskRead}
}

// ErrNotOpen is returned by Read for a file that is neither open nor
// resolvable through the disk fallback.
type ErrNotOpen symbols.FileID

func (e ErrNotOpen) Error() string { return fmt.Sprintf("lsp: %s is not open", symbols.FileID(e)) }

// Read implements query.Source.
func (d *DocumentStore) Read(file symbols.FileID) (string, error) {
	d.mu.RLock()
	text, ok := d.open[file]
	d.mu.RUnlock()
	if ok {
		return text, nil
	}
	if d.disk != nil {
		return d.disk(file)
	}
	return "", ErrNotOpen(file)
}

// Set records file's current full text (didOpen/didChange with full
// sync, the only sync mode this server advertises).
func (d *DocumentStore) Set(file symbols.FileID, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open[file] = text
}

// Delete drops file from the open set (didClose).
func (d *DocumentStore) Delete(file symbols.FileID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.open, file)
}

// Files lists every currently open file.
func (d *DocumentStore) Files() []symbols.FileID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]symbols.FileID, 0, len(d.open))
	for f := range d.open {
		out = append(out, f)
	}
	return out
}

// Server wires a DocumentStore and an ide.Index to internal/query's
// memoized pipeline and answers LSP requests against them.
type Server struct {
	docs  *DocumentStore
	eng   *query.Engine
	qw    *query.Workspace
	ws    ide.QueryWorkspace
	index *ide.Index
	log   *zap.Logger

	profile string // stdlib completion profile; "" behaves like "default"
}

// NewServer builds a Server with its own query.Engine (memory-bounded
// to maxCacheEntries; non-positive disables eviction, matching
// Engine.NewEngine).
func NewServer(maxCacheEntries int, logs *logging.Factory, diskRead func(symbols.FileID) (string, error)) *Server {
	docs := NewDocumentStore(diskRead)
	eng := query.NewEngine(maxCacheEntries, logs)
	qw := query.NewWorkspace(eng, docs)
	var log *zap.Logger
	if logs != nil {
		log = logs.Get(logging.IDE)
	} else {
		log = zap.NewNop()
	}
	return &Server{
		docs:  docs,
		eng:   eng,
		qw:    qw,
		ws:    ide.QueryWorkspace{Source: docs, W: qw},
		index: ide.NewIndex(),
		log:   log,
	}
}

// openOrChange re-parses file from its new text, invalidates the
// memoized pipeline for it, and refreshes the workspace index so
// cross-file features (references, rename, implementation) see the
// update immediately.
func (s *Server) openOrChange(file symbols.FileID, text string) {
	s.docs.Set(file, text)
	s.qw.Invalidate(file)
	tbl, err := s.ws.Symbols(context.Background(), file)
	if err != nil {
		s.log.Warn("lsp: symbols after change failed", zap.String("file", string(file)), zap.Error(err))
		return
	}
	s.index.Update(file, tbl)
}

func (s *Server) close(file symbols.FileID) {
	s.docs.Delete(file)
	s.qw.Invalidate(file)
	s.index.Remove(file)
}
