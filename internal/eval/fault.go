package eval

import (
	"fmt"

	"stlang/internal/lower"
)

// FaultKind enumerates the runtime fault set (spec.md §4.9).
type FaultKind int

const (
	FaultDivByZero FaultKind = iota
	FaultIntegerOverflow
	FaultSubrangeViolation
	FaultIndexOutOfBounds
	FaultNullDereference
	FaultDateTimeOverflow
	FaultForStepZero
	FaultTaskOverrun
	FaultWatchdogTimeout
)

var faultNames = map[FaultKind]string{
	FaultDivByZero:         "DivByZero",
	FaultIntegerOverflow:   "IntegerOverflow",
	FaultSubrangeViolation: "SubrangeViolation",
	FaultIndexOutOfBounds:  "IndexOutOfBounds",
	FaultNullDereference:   "NullReferenceDereference",
	FaultDateTimeOverflow:  "DateTimeOverflow",
	FaultForStepZero:       "ForStepZero",
	FaultTaskOverrun:       "TaskOverrun",
	FaultWatchdogTimeout:   "WatchdogTimeout",
}

func (k FaultKind) String() string { return faultNames[k] }

// Action is the configured response to a fault kind (spec.md §4.9, §7).
type Action int

const (
	ActionError Action = iota // halt the resource, report the fault
	ActionSaturate
	ActionWrap
	ActionSafeHalt
)

// Policy maps each fault kind to its configured Action. Kinds absent
// from the map fall back to ActionError.
type Policy map[FaultKind]Action

// DefaultPolicy matches IEC's conservative defaults: arithmetic faults
// halt, watchdog overruns go to a safe halt.
func DefaultPolicy() Policy {
	return Policy{
		FaultDivByZero:         ActionError,
		FaultIntegerOverflow:   ActionError,
		FaultSubrangeViolation: ActionError,
		FaultIndexOutOfBounds:  ActionError,
		FaultNullDereference:   ActionError,
		FaultDateTimeOverflow:  ActionError,
		FaultForStepZero:       ActionError,
		FaultTaskOverrun:       ActionError,
		FaultWatchdogTimeout:   ActionSafeHalt,
	}
}

func (p Policy) actionFor(k FaultKind) Action {
	if p == nil {
		return ActionError
	}
	if a, ok := p[k]; ok {
		return a
	}
	return ActionError
}

// Fault reports a runtime fault at the statement that raised it. A
// Fault returned from Run means the owning resource must transition
// to FAULT and stop its cycle loop (spec.md §4.9).
type Fault struct {
	Kind    FaultKind
	Message string
	At      lower.Anchor
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s at %d:%d: %s", f.Kind, f.At.Line, f.At.Column, f.Message)
}

func newFault(kind FaultKind, at lower.Anchor, format string, args ...interface{}) *Fault {
	return &Fault{Kind: kind, Message: fmt.Sprintf(format, args...), At: at}
}
