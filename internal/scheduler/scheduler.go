// Package scheduler drives each resource's deterministic cycle loop:
// read inputs, select and order ready tasks, execute them
// non-preemptively, write outputs, and enforce the watchdog (spec.md
// §4.11, §5).
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stlang/internal/eval"
	"stlang/internal/logging"
	"stlang/internal/lower"
	"stlang/internal/runtime"
)

// ProgramRef is one POU activation a task or the background set runs
// each cycle: a lowered body plus the persistent frame it executes
// against (an instance's own storage, or the resource's globals for a
// bare PROGRAM).
type ProgramRef struct {
	Name  string
	POU   *lower.POU
	Frame *eval.Frame
}

// Task is one scheduling entity: an interval/event trigger, a
// priority, and the programs/FB instances it groups (spec.md §4.11,
// GLOSSARY).
type Task struct {
	Name      string
	Priority  int // ascending = runs first
	DeclOrder int
	Programs  []ProgramRef

	HasSingle bool
	Single    runtime.Address
	Interval  time.Duration

	prevSingle   bool
	lastRun      time.Time
	ranOnce      bool
	OverrunCount int
}

// LastRun returns the time Task most recently ran (the zero Time if it
// has never run), for the control protocol's `status` response and
// the terminal dashboard's task table.
func (t *Task) LastRun() time.Time { return t.lastRun }

func (t *Task) ready(now time.Time, img *runtime.ProcessImage) (bool, error) {
	if !t.HasSingle {
		if t.Interval == 0 {
			return true, nil // always-ready background-style task with no trigger config
		}
		return !t.ranOnce || now.Sub(t.lastRun) >= t.Interval, nil
	}
	cur, err := img.ReadBool(t.Single)
	if err != nil {
		return false, err
	}
	eventReady := cur && !t.prevSingle
	t.prevSingle = cur
	if eventReady {
		return true, nil
	}
	if t.Interval > 0 && !cur && (!t.ranOnce || now.Sub(t.lastRun) >= t.Interval) {
		return true, nil
	}
	return false, nil
}

// SafeState is the per-resource watchdog safe-state output set: %Q
// addresses written before halting on a watchdog timeout
// (SPEC_FULL.md §6).
type SafeState map[runtime.Address]bool

// IODriver latches the process image at cycle boundaries (spec.md §5
// "I/O drivers may run on their own threads but exchange data with the
// process image only at cycle boundaries").
type IODriver interface {
	ReadInputs(img *runtime.ProcessImage) error
	WriteOutputs(img *runtime.ProcessImage) error
}

// State is a resource's run state.
type State int

const (
	StateRunning State = iota
	StateFault
)

// SharedGlobals is the single configuration-level mutual-exclusion
// region protecting cross-resource shared globals (spec.md §5): each
// cycle snapshots shared values in under Lock, runs, then writes back
// under Lock before releasing.
type SharedGlobals struct {
	mu     sync.Mutex
	values map[string]*eval.Value
}

// NewSharedGlobals returns an empty shared-global region.
func NewSharedGlobals() *SharedGlobals {
	return &SharedGlobals{values: make(map[string]*eval.Value)}
}

// WithLock runs fn while holding the shared-globals lock, giving fn
// the live value map to snapshot-in and write-back against.
func (s *SharedGlobals) WithLock(fn func(values map[string]*eval.Value)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.values)
}

// Resource schedules one IEC resource's cycle loop atop its runtime
// state (spec.md §4.11, §5: "each resource owns one scheduler
// thread").
type Resource struct {
	*runtime.Resource

	Tasks      []*Task
	Background []ProgramRef
	Driver     IODriver
	Shared     *SharedGlobals

	CycleBudget time.Duration // watchdog bound; zero disables it
	Safe        SafeState

	Clock func() time.Time

	State State
	Fault *eval.Fault

	log *zap.Logger
}

// NewResource wraps res with scheduling configuration. It sorts tasks
// in place by ascending priority, then declaration order.
func NewResource(res *runtime.Resource, tasks []*Task, background []ProgramRef, logs *logging.Factory) *Resource {
	var log *zap.Logger
	if logs != nil {
		log = logs.Get(logging.Scheduler)
	} else {
		log = zap.NewNop()
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Priority != tasks[j].Priority {
			return tasks[i].Priority < tasks[j].Priority
		}
		return tasks[i].DeclOrder < tasks[j].DeclOrder
	})
	return &Resource{Resource: res, Tasks: tasks, Background: background, log: log}
}

func (r *Resource) now() time.Time {
	if r.Clock != nil {
		return r.Clock()
	}
	return time.Now()
}

// RunCycle executes exactly one cycle: read inputs, select+order ready
// tasks, run them non-preemptively, write outputs, flush retain, and
// check the watchdog (spec.md §4.11). It is a no-op once the resource
// has faulted.
func (r *Resource) RunCycle() error {
	if r.State == StateFault {
		return nil
	}
	cycleStart := time.Now()
	now := r.now()

	if r.Driver != nil {
		if err := r.Driver.ReadInputs(r.Image); err != nil {
			return fmt.Errorf("scheduler: read inputs: %w", err)
		}
	}

	ready, err := r.selectReady(now)
	if err != nil {
		return err
	}

	for _, t := range ready {
		for _, p := range t.Programs {
			if _, flt := r.Interp.Run(p.POU, p.Frame); flt != nil {
				r.fault(flt)
				return nil
			}
		}
		t.lastRun = now
		t.ranOnce = true
	}
	for _, p := range r.Background {
		if _, flt := r.Interp.Run(p.POU, p.Frame); flt != nil {
			r.fault(flt)
			return nil
		}
	}

	if r.Driver != nil {
		if err := r.Driver.WriteOutputs(r.Image); err != nil {
			return fmt.Errorf("scheduler: write outputs: %w", err)
		}
	}

	r.StageRetainWrites()
	if r.Retain != nil {
		if err := r.Retain.MaybeFlush(now); err != nil {
			r.log.Warn("retain flush failed", zap.Error(err))
		}
	}

	if r.CycleBudget > 0 {
		if elapsed := time.Since(cycleStart); elapsed > r.CycleBudget {
			r.watchdogTrip(elapsed)
		}
	}
	return nil
}

// selectReady implements spec.md §4.11 steps 2-3: a task is
// event-ready on SINGLE's rising edge, periodic-ready when SINGLE is
// currently false and its interval has elapsed; tasks are ordered by
// ascending priority then declaration order (Tasks is pre-sorted by
// NewResource, so filtering preserves that order).
func (r *Resource) selectReady(now time.Time) ([]*Task, error) {
	var ready []*Task
	for _, t := range r.Tasks {
		ok, err := t.ready(now, r.Image)
		if err != nil {
			return nil, err
		}
		if ok {
			ready = append(ready, t)
		} else if t.HasSingle {
			// Missed activations are dropped, not queued (spec.md §4.11.4).
			r.countOverrunIfDue(t, now)
		}
	}
	return ready, nil
}

func (r *Resource) countOverrunIfDue(t *Task, now time.Time) {
	if t.Interval > 0 && t.ranOnce && now.Sub(t.lastRun) >= 2*t.Interval {
		t.OverrunCount++
	}
}

func (r *Resource) fault(flt *eval.Fault) {
	r.State = StateFault
	r.Fault = flt
	r.log.Error("resource faulted", zap.String("kind", flt.Kind.String()), zap.String("message", flt.Message))
	r.applySafeState()
}

func (r *Resource) watchdogTrip(elapsed time.Duration) {
	r.log.Error("watchdog timeout", zap.Duration("elapsed", elapsed), zap.Duration("budget", r.CycleBudget))
	r.applySafeState()
	r.State = StateFault
	r.Fault = &eval.Fault{Kind: eval.FaultWatchdogTimeout, Message: fmt.Sprintf("cycle time %s exceeded budget %s", elapsed, r.CycleBudget)}
}

func (r *Resource) applySafeState() {
	for addr, v := range r.Safe {
		if err := r.Image.WriteBool(addr, v); err != nil {
			r.log.Warn("safe-state write failed", zap.String("address", addr.String()), zap.Error(err))
		}
	}
}

// Program is a set of resources run as one errgroup-supervised unit:
// each resource's cycle loop is its own goroutine, cancelled together
// when any fails or ctx is done (spec.md §5 "each resource owns one
// scheduler thread").
type Program struct {
	Resources []*Resource
}

// Run drives every resource's cycle loop at its configured tick
// interval until ctx is cancelled or a resource's loop returns an
// error. A nil/zero tick runs exactly one cycle per resource and
// returns (used by tests and `stplc run --once`).
func (p *Program) Run(ctx context.Context, tick time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, res := range p.Resources {
		res := res
		g.Go(func() error {
			if tick <= 0 {
				return res.RunCycle()
			}
			ticker := time.NewTicker(tick)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
					if err := res.RunCycle(); err != nil {
						return err
					}
					if res.State == StateFault {
						return fmt.Errorf("scheduler: resource %q faulted: %s", res.Name, res.Fault.Error())
					}
				}
			}
		})
	}
	return g.Wait()
}
