// Package query implements the demand-driven memoization layer that
// every IDE feature and diagnostics pull request is built from
// (spec.md §4.6): parse/symbols/analyze results are computed once per
// input generation, cached, and invalidated only along recorded
// dependency edges when a source changes.
package query

import (
	"container/list"
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"stlang/internal/logging"
)

// Key identifies one memoized query result, e.g. "parse:main.st" or
// "diagnostics:proj:main.st".
type Key string

type entry struct {
	value   interface{}
	err     error
	element *list.Element // position in Engine.lru
}

// Engine is the single-threaded-cooperative memoization cache of
// spec.md §4.6. Concurrent Query calls for the *same* key are deduped
// via singleflight (never run the same query concurrently); calls for
// different keys may run concurrently up to the caller's own
// concurrency (e.g. internal/query's workspace scan helpers).
type Engine struct {
	mu    sync.Mutex
	cache map[Key]*entry
	deps  map[Key]map[Key]struct{} // key -> keys it depends on
	rdeps map[Key]map[Key]struct{} // key -> keys that depend on it

	lru        *list.List // front = most recently used
	maxEntries int

	group singleflight.Group
	log   *zap.Logger
}

// NewEngine returns an Engine evicting toward maxEntries cached
// results (spec.md §4.6 "LRU toward a configured memory budget"). A
// non-positive maxEntries disables eviction.
func NewEngine(maxEntries int, logs *logging.Factory) *Engine {
	var log *zap.Logger
	if logs != nil {
		log = logs.Get(logging.Query)
	} else {
		log = zap.NewNop()
	}
	return &Engine{
		cache:      make(map[Key]*entry),
		deps:       make(map[Key]map[Key]struct{}),
		rdeps:      make(map[Key]map[Key]struct{}),
		lru:        list.New(),
		maxEntries: maxEntries,
		log:        log,
	}
}

// Query returns the memoized result for key, computing it via compute
// on a miss. deps lists the keys this query's result depends on
// (typically one prior Query call's key, e.g. "symbols:f" depends on
// "parse:f"); a later Invalidate of any dep cascades to key.
func (e *Engine) Query(ctx context.Context, key Key, deps []Key, compute func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	e.mu.Lock()
	if ent, ok := e.cache[key]; ok {
		e.lru.MoveToFront(ent.element)
		e.mu.Unlock()
		return ent.value, ent.err
	}
	e.mu.Unlock()

	v, err, _ := e.group.Do(string(key), func() (interface{}, error) {
		return compute(ctx)
	})

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.cache[key]; !ok {
		el := e.lru.PushFront(key)
		e.cache[key] = &entry{value: v, err: err, element: el}
		e.recordDepsLocked(key, deps)
		e.evictLocked()
	}
	return v, err
}

func (e *Engine) recordDepsLocked(key Key, deps []Key) {
	if len(deps) == 0 {
		return
	}
	set := e.deps[key]
	if set == nil {
		set = make(map[Key]struct{}, len(deps))
		e.deps[key] = set
	}
	for _, d := range deps {
		set[d] = struct{}{}
		r := e.rdeps[d]
		if r == nil {
			r = make(map[Key]struct{})
			e.rdeps[d] = r
		}
		r[key] = struct{}{}
	}
}

func (e *Engine) evictLocked() {
	if e.maxEntries <= 0 {
		return
	}
	for e.lru.Len() > e.maxEntries {
		back := e.lru.Back()
		if back == nil {
			return
		}
		key := back.Value.(Key)
		e.log.Debug("evicting query result", zap.String("key", string(key)))
		e.removeLocked(key)
	}
}

func (e *Engine) removeLocked(key Key) {
	ent, ok := e.cache[key]
	if !ok {
		return
	}
	e.lru.Remove(ent.element)
	delete(e.cache, key)
	for d := range e.deps[key] {
		delete(e.rdeps[d], key)
	}
	delete(e.deps, key)
}

// Invalidate drops key's cached result and cascades to every query
// that transitively depends on it (spec.md §4.6 "a source change
// invalidates only transitively dependent queries").
func (e *Engine) Invalidate(key Key) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.invalidateLocked(key)
}

func (e *Engine) invalidateLocked(key Key) {
	if _, ok := e.cache[key]; !ok {
		if _, hasRdeps := e.rdeps[key]; !hasRdeps {
			return
		}
	}
	dependents := make([]Key, 0, len(e.rdeps[key]))
	for k := range e.rdeps[key] {
		dependents = append(dependents, k)
	}
	e.removeLocked(key)
	for _, d := range dependents {
		e.invalidateLocked(d)
	}
}

// Len reports the number of cached entries, exposed for tests.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.cache)
}
