package service

import (
	"github.com/tazhate/taskcal/internal/domain"
)

// Phase is the state of one mutation.
type Phase int

const (
	// PhasePending means the local change (if any) is applied and the
	// request is in flight.
	PhasePending Phase = iota
	PhaseCommitted
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseCommitted:
		return "committed"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Op names a mutation kind.
type Op string

const (
	OpCreate         Op = "create"
	OpMove           Op = "move"
	OpEdit           Op = "edit"
	OpDelete         Op = "delete"
	OpBulkCreate     Op = "bulk_create"
	OpToggleCalendar Op = "toggle_calendar"
)

// Outcome is what a mutation reports to observers. Task is the tentative
// record while pending and the reconciled record once committed.
type Outcome struct {
	Phase  Phase
	Task   domain.Task
	TempID domain.TaskID
	Err    error
}

// Result unpacks a terminal outcome.
func (o Outcome) Result() (domain.Task, error) {
	return o.Task, o.Err
}

// Observer is called for every phase change. It runs synchronously on
// the goroutine performing the mutation.
type Observer func(op Op, out Outcome)

// Scope says how much of a recurring task a delete removes.
type Scope int

const (
	ScopeUnset Scope = iota
	ScopeOccurrence
	ScopeSeries
)

func (s Scope) String() string {
	switch s {
	case ScopeOccurrence:
		return "occurrence"
	case ScopeSeries:
		return "series"
	default:
		return "unset"
	}
}

// ParseScope accepts "occurrence", "series" or "".
func ParseScope(s string) (Scope, bool) {
	switch s {
	case "":
		return ScopeUnset, true
	case "occurrence", "one":
		return ScopeOccurrence, true
	case "series", "all":
		return ScopeSeries, true
	}
	return ScopeUnset, false
}
