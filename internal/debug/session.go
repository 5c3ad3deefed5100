// Package debug attaches a breakpoint/stepping debugger to a running
// eval.Interpreter via its statement-boundary hook (spec.md §4.12):
// generation-tagged breakpoints, step-in/over/out, and stack traces
// built from the interpreter's live call stack.
package debug

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stlang/internal/eval"
	"stlang/internal/logging"
	"stlang/internal/lower"
)

// StopReason explains why a session is paused.
type StopReason int

const (
	ReasonNone StopReason = iota
	ReasonEntry
	ReasonBreakpoint
	ReasonStep
	ReasonPause
)

func (r StopReason) String() string {
	switch r {
	case ReasonEntry:
		return "entry"
	case ReasonBreakpoint:
		return "breakpoint"
	case ReasonStep:
		return "step"
	case ReasonPause:
		return "pause"
	default:
		return "none"
	}
}

// State is a session's run state (spec.md §4.12: running, paused, or
// momentarily reloaded when the debugged source changes underneath
// it).
type State int

const (
	StateRunning State = iota
	StatePaused
	StateReloaded
)

type stepMode int

const (
	stepNone stepMode = iota
	stepInto
	stepOver
	stepOut
)

// Breakpoint is one statement-boundary breakpoint. Generation ties it
// to the source version it was set against: Session.Reload bumps a
// file's generation and drops its breakpoints, so a client must
// re-submit them against the reloaded source rather than have stale
// line numbers silently keep firing.
type Breakpoint struct {
	File       string
	Line       int
	Generation int
	Enabled    bool
}

// StackFrame is one call stack entry, file-resolved from the
// interpreter's POU-only eval.StackEntry via RegisterFile.
type StackFrame struct {
	POU    string
	File   string
	Line   int
	Column int
}

type resumeCmd struct {
	mode stepMode
}

// Session is one attached debug session (spec.md §4.12, GLOSSARY).
type Session struct {
	ID uuid.UUID

	log *zap.Logger

	mu          sync.Mutex
	state       State
	reason      StopReason
	generation  map[string]int
	breakpoints map[string]map[int]*Breakpoint
	pouFile     map[string]string
	stack       []StackFrame

	pauseRequested bool
	stepMode       stepMode
	stepDepth      int
	resumeCh       chan resumeCmd
}

// New returns a detached session with no breakpoints, attached to no
// interpreter yet.
func New(logs *logging.Factory) *Session {
	var log *zap.Logger
	if logs != nil {
		log = logs.Get(logging.Debug)
	} else {
		log = zap.NewNop()
	}
	return &Session{
		ID:          uuid.New(),
		log:         log,
		generation:  make(map[string]int),
		breakpoints: make(map[string]map[int]*Breakpoint),
		pouFile:     make(map[string]string),
	}
}

// RegisterFile records which source file a POU was lowered from, so
// stack frames and breakpoint matching can resolve a bare POU name
// from eval.StackEntry back to a file path.
func (s *Session) RegisterFile(pouName, file string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pouFile[pouName] = file
}

// Attach wires the session into it's statement hook. Only one session
// may be attached to an interpreter at a time; attaching replaces any
// previous hook.
func (s *Session) Attach(it *eval.Interpreter) {
	it.StmtHook = func(at lower.Anchor, frame *eval.Frame, depth int) {
		s.onStatement(it, at, depth)
	}
}

// SetBreakpoints replaces the full breakpoint set for file and bumps
// its generation. Returns the verified, generation-tagged set.
func (s *Session) SetBreakpoints(file string, lines []int) []Breakpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation[file]++
	gen := s.generation[file]
	set := make(map[int]*Breakpoint, len(lines))
	out := make([]Breakpoint, 0, len(lines))
	for _, line := range lines {
		bp := &Breakpoint{File: file, Line: line, Generation: gen, Enabled: true}
		set[line] = bp
		out = append(out, *bp)
	}
	s.breakpoints[file] = set
	return out
}

// Reload invalidates file's breakpoints and transitions the session
// through StateReloaded, forcing the client to re-submit breakpoints
// against the new source before they take effect again.
func (s *Session) Reload(file string) {
	s.mu.Lock()
	delete(s.breakpoints, file)
	s.generation[file]++
	prev := s.state
	s.state = StateReloaded
	s.mu.Unlock()

	s.log.Info("source reloaded", zap.String("file", file))

	s.mu.Lock()
	if s.state == StateReloaded {
		s.state = prev
	}
	s.mu.Unlock()
}

// Pause requests a stop at the next statement boundary.
func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pauseRequested = true
}

// Continue resumes a paused session with no further stepping.
func (s *Session) Continue() error { return s.resume(stepMode(stepNone)) }

// StepInto resumes and stops at the very next statement boundary,
// regardless of call depth.
func (s *Session) StepInto() error { return s.resume(stepInto) }

// StepOver resumes and stops at the next statement at the same call
// depth (skipping over any calls the current statement makes).
func (s *Session) StepOver() error { return s.resume(stepOver) }

// StepOut resumes and stops once execution returns above the current
// call depth.
func (s *Session) StepOut() error { return s.resume(stepOut) }

func (s *Session) resume(mode stepMode) error {
	s.mu.Lock()
	if s.state != StatePaused || s.resumeCh == nil {
		s.mu.Unlock()
		return fmt.Errorf("debug: session %s is not paused", s.ID)
	}
	ch := s.resumeCh
	s.resumeCh = nil
	s.mu.Unlock()
	ch <- resumeCmd{mode: mode}

	// onStatement transitions out of StatePaused immediately after
	// receiving cmd, before doing any further interpreter work; waiting
	// for that here means a caller never observes the pause it just
	// resumed as still current.
	for {
		s.mu.Lock()
		left := s.state != StatePaused
		s.mu.Unlock()
		if left {
			return nil
		}
		runtime.Gosched()
	}
}

// State reports the session's current run state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StopReason reports why the session is currently paused (meaningless
// while running).
func (s *Session) StopReason() StopReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// StackTrace returns the call stack captured at the last pause.
func (s *Session) StackTrace() []StackFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StackFrame, len(s.stack))
	copy(out, s.stack)
	return out
}

func (s *Session) onStatement(it *eval.Interpreter, at lower.Anchor, depth int) {
	entries := it.CallStack()
	if len(entries) == 0 {
		return
	}
	top := entries[len(entries)-1]

	s.mu.Lock()
	file := s.pouFile[top.POU]
	reason, stop := s.shouldStopLocked(file, at.Line, depth)
	if !stop {
		s.mu.Unlock()
		return
	}

	s.state = StatePaused
	s.reason = reason
	s.stack = make([]StackFrame, len(entries))
	for i, e := range entries {
		s.stack[i] = StackFrame{POU: e.POU, File: s.pouFile[e.POU], Line: e.At.Line, Column: e.At.Column}
	}
	ch := make(chan resumeCmd)
	s.resumeCh = ch
	s.mu.Unlock()

	s.log.Debug("stopped", zap.String("reason", reason.String()), zap.String("file", file), zap.Int("line", at.Line))
	cmd := <-ch

	s.mu.Lock()
	s.state = StateRunning
	s.stepMode = cmd.mode
	s.stepDepth = depth
	s.mu.Unlock()
}

// shouldStopLocked decides whether execution should pause before the
// statement at (file, line, depth). Callers must hold s.mu.
func (s *Session) shouldStopLocked(file string, line, depth int) (StopReason, bool) {
	if s.pauseRequested {
		s.pauseRequested = false
		return ReasonPause, true
	}
	if set, ok := s.breakpoints[file]; ok {
		if bp, ok := set[line]; ok && bp.Enabled {
			return ReasonBreakpoint, true
		}
	}
	switch s.stepMode {
	case stepInto:
		s.stepMode = stepNone
		return ReasonStep, true
	case stepOver:
		if depth <= s.stepDepth {
			s.stepMode = stepNone
			return ReasonStep, true
		}
	case stepOut:
		if depth < s.stepDepth {
			s.stepMode = stepNone
			return ReasonStep, true
		}
	}
	return ReasonNone, false
}
