// Package oorules evaluates the OO/interface rules of spec.md §4.5
// (single inheritance, no FINAL extension, OVERRIDE requires a
// matching base method with the same access, ABSTRACT methods require
// an ABSTRACT class, interface implementation completeness) as a small
// embedded Datalog program, adapting the teacher's own Mangle engine
// wrapper (internal/mangle/engine.go in the reference project) down to
// what a one-shot workspace-wide rule pass needs: no persistence, no
// incremental fact removal by file, no streaming query API.
package oorules

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	_ "github.com/google/mangle/builtin"
	mengine "github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	_ "github.com/google/mangle/packages"
	"github.com/google/mangle/parse"
	"github.com/google/mangle/unionfind"
)

// Config configures the engine's query timeout.
type Config struct {
	QueryTimeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{QueryTimeout: 5 * time.Second}
}

// Fact is one Datalog fact to load into the engine.
type Fact struct {
	Predicate string
	Args      []interface{}
}

// Engine wraps a Mangle fact store plus the OO-rules schema.
type Engine struct {
	config Config

	mu             sync.Mutex
	store          factstore.FactStoreWithRemove
	programInfo    *analysis.ProgramInfo
	predicateIndex map[string]ast.PredicateSym
	queryContext   *mengine.QueryContext
	schema         []parse.SourceUnit
}

// NewEngine builds an engine with the OO-rules schema already loaded.
func NewEngine(cfg Config) (*Engine, error) {
	e := &Engine{
		config:         cfg,
		store:          factstore.NewSimpleInMemoryStore(),
		predicateIndex: make(map[string]ast.PredicateSym),
	}
	if err := e.loadSchemaString(schemaSource); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) loadSchemaString(schema string) error {
	unit, err := parse.Unit(bytes.NewReader([]byte(schema)))
	if err != nil {
		return fmt.Errorf("parse oo-rules schema: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.schema = append(e.schema, unit)
	return e.rebuildProgramLocked()
}

func (e *Engine) rebuildProgramLocked() error {
	var clauses []ast.Clause
	var decls []ast.Decl
	for _, frag := range e.schema {
		clauses = append(clauses, frag.Clauses...)
		decls = append(decls, frag.Decls...)
	}
	info, err := analysis.AnalyzeOneUnit(parse.SourceUnit{Clauses: clauses, Decls: decls}, nil)
	if err != nil {
		return fmt.Errorf("analyze oo-rules schema: %w", err)
	}
	e.programInfo = info
	e.predicateIndex = make(map[string]ast.PredicateSym, len(info.Decls))
	predToDecl := make(map[ast.PredicateSym]*ast.Decl, len(info.Decls))
	for sym, decl := range info.Decls {
		e.predicateIndex[sym.Symbol] = sym
		predToDecl[sym] = decl
	}
	predToRules := make(map[ast.PredicateSym][]ast.Clause)
	for _, c := range info.Rules {
		predToRules[c.Head.Predicate] = append(predToRules[c.Head.Predicate], c)
	}
	e.queryContext = &mengine.QueryContext{PredToRules: predToRules, PredToDecl: predToDecl, Store: e.store}
	return nil
}

// AddFacts inserts facts and recomputes derived predicates.
func (e *Engine) AddFacts(facts []Fact) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, f := range facts {
		atom, err := e.factToAtomLocked(f)
		if err != nil {
			return err
		}
		e.store.Add(atom)
	}
	_, err := mengine.EvalProgramWithStats(e.programInfo, e.store)
	return err
}

func (e *Engine) factToAtomLocked(f Fact) (ast.Atom, error) {
	sym, ok := e.predicateIndex[f.Predicate]
	if !ok {
		return ast.Atom{}, fmt.Errorf("predicate %s is not declared in the oo-rules schema", f.Predicate)
	}
	if len(f.Args) != sym.Arity {
		return ast.Atom{}, fmt.Errorf("predicate %s expects %d args, got %d", f.Predicate, sym.Arity, len(f.Args))
	}
	args := make([]ast.BaseTerm, len(f.Args))
	for i, raw := range f.Args {
		term, err := toTerm(raw)
		if err != nil {
			return ast.Atom{}, fmt.Errorf("predicate %s arg %d: %w", f.Predicate, i, err)
		}
		args[i] = term
	}
	return ast.Atom{Predicate: sym, Args: args}, nil
}

func toTerm(v interface{}) (ast.BaseTerm, error) {
	switch t := v.(type) {
	case string:
		return ast.String(t), nil
	case bool:
		if t {
			return ast.TrueConstant, nil
		}
		return ast.FalseConstant, nil
	case int:
		return ast.Number(int64(t)), nil
	default:
		return nil, fmt.Errorf("unsupported fact argument type %T", v)
	}
}

// Violation is one row bound for a violation-shaped query result.
type Violation map[string]string

// Query evaluates a 0-arity or variable-bound query like
// "violates_override(Class, Method)" and returns the bound rows.
func (e *Engine) Query(ctx context.Context, query string) ([]Violation, error) {
	e.mu.Lock()
	qc := e.queryContext
	e.mu.Unlock()
	if qc == nil {
		return nil, fmt.Errorf("schema not loaded")
	}

	atom, err := parse.Atom(query)
	if err != nil {
		return nil, fmt.Errorf("parse query %q: %w", query, err)
	}
	decl, ok := qc.PredToDecl[atom.Predicate]
	if !ok || len(decl.Modes()) == 0 {
		return nil, fmt.Errorf("predicate %s has no queryable mode", atom.Predicate.Symbol)
	}

	var vars []struct {
		name string
		idx  int
	}
	for i, arg := range atom.Args {
		if v, ok := arg.(ast.Variable); ok {
			vars = append(vars, struct {
				name string
				idx  int
			}{v.Symbol, i})
		}
	}

	if _, has := ctx.Deadline(); !has {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.QueryTimeout)
		defer cancel()
	}

	var results []Violation
	err = qc.EvalQuery(atom, decl.Modes()[0], unionfind.New(), func(fact ast.Atom) error {
		row := make(Violation, len(vars))
		for _, v := range vars {
			if c, ok := fact.Args[v.idx].(ast.Constant); ok && c.Type == ast.StringType {
				row[v.name] = c.Symbol
				continue
			}
			row[v.name] = fmt.Sprintf("%v", fact.Args[v.idx])
		}
		results = append(results, row)
		return nil
	})
	return results, err
}
