// Package retain persists RETAIN-qualified variable values across
// warm restarts (spec.md §4.10), backed by modernc.org/sqlite — a
// pure-Go SQLite driver, picked over the cgo mattn/go-sqlite3 build so
// a headless runtime target needs no C toolchain (SPEC_FULL.md §5).
package retain

import (
	"database/sql"
	"encoding/gob"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
	"go.uber.org/zap"

	"stlang/internal/config"
	"stlang/internal/logging"
)

// Scalar is the on-disk shape of one retained variable's value. Only
// the field matching Kind is meaningful, mirroring eval.Value's own
// tagged-union layout so the runtime layer can translate directly
// without importing internal/eval here (keeping retain a leaf
// dependency of runtime, not the reverse).
type Scalar struct {
	Kind string // "bool", "int", "real", "string"
	Bool bool
	Int  int64
	Real float64
	Str  string
}

// Store is a rate-limited, sqlite-backed retain store (spec.md §4.10,
// SPEC_FULL.md §6 checkpoint cadence).
type Store struct {
	db  *sql.DB
	log *zap.Logger

	flushInterval time.Duration
	flushOnChange bool

	mu        sync.Mutex
	pending   map[string]Scalar
	lastFlush time.Time
}

// Open creates (if needed) and opens the sqlite database at cfg.Path.
// The flush interval defaults to 100ms when cfg.FlushInterval is empty
// or does not parse; flushOnChange is cfg.FlushOnChange as given (false
// when unset).
func Open(cfg config.RetainConfig, logs *logging.Factory) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("retain: config has no path")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("retain: create retain dir: %w", err)
	}
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("retain: open %s: %w", cfg.Path, err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS retain_values (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at DATETIME NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("retain: migrate schema: %w", err)
	}

	interval := 100 * time.Millisecond
	if cfg.FlushInterval != "" {
		if d, err := time.ParseDuration(cfg.FlushInterval); err == nil {
			interval = d
		}
	}

	var log *zap.Logger
	if logs != nil {
		log = logs.Get(logging.Retain)
	} else {
		log = zap.NewNop()
	}

	return &Store{
		db:            db,
		log:           log,
		flushInterval: interval,
		flushOnChange: cfg.FlushOnChange,
		pending:       make(map[string]Scalar),
	}, nil
}

// Close flushes pending writes and closes the underlying database.
func (s *Store) Close() error {
	if err := s.Flush(); err != nil {
		s.log.Warn("flush on close failed", zap.Error(err))
	}
	return s.db.Close()
}

// LoadAll reads every retained value, for warm-restart initialization
// of RETAIN variables (spec.md §4.10: "on warm start, RETAIN values
// are loaded from the retain store and NON_RETAIN are initialized").
func (s *Store) LoadAll() (map[string]Scalar, error) {
	rows, err := s.db.Query(`SELECT key, value FROM retain_values`)
	if err != nil {
		return nil, fmt.Errorf("retain: load: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Scalar)
	for rows.Next() {
		var key string
		var blob []byte
		if err := rows.Scan(&key, &blob); err != nil {
			return nil, fmt.Errorf("retain: scan: %w", err)
		}
		var v Scalar
		if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&v); err != nil {
			return nil, fmt.Errorf("retain: decode %s: %w", key, err)
		}
		out[key] = v
	}
	return out, rows.Err()
}

// Set stages key's new value for the next Flush, replacing any value
// already staged for key. Every staged key is written at the next Flush
// whether or not its value differs from the one last written;
// flushOnChange does not change what is written.
func (s *Store) Set(key string, v Scalar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flushOnChange {
		if prev, ok := s.pending[key]; ok && prev == v {
			return
		}
	}
	s.pending[key] = v
}

// MaybeFlush flushes pending writes if flushInterval has elapsed since
// the last flush, measured against now (the runtime's Clock). Callers
// invoke this once per cycle; it is a no-op when nothing is pending or
// the interval has not elapsed.
func (s *Store) MaybeFlush(now time.Time) error {
	s.mu.Lock()
	due := len(s.pending) > 0 && now.Sub(s.lastFlush) >= s.flushInterval
	s.mu.Unlock()
	if !due {
		return nil
	}
	return s.Flush()
}

// Flush writes every staged value to disk in one transaction
// (unconditionally, ignoring the interval — used on Close and by
// MaybeFlush once due).
func (s *Store) Flush() error {
	s.mu.Lock()
	pending := s.pending
	s.pending = make(map[string]Scalar, len(pending))
	s.lastFlush = time.Now()
	s.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("retain: begin flush: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO retain_values(key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("retain: prepare flush: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for key, v := range pending {
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(v); err != nil {
			tx.Rollback()
			return fmt.Errorf("retain: encode %s: %w", key, err)
		}
		if _, err := stmt.Exec(key, buf.Bytes(), now); err != nil {
			tx.Rollback()
			return fmt.Errorf("retain: write %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("retain: commit flush: %w", err)
	}
	s.log.Debug("retain flush", zap.Int("count", len(pending)))
	return nil
}
