package job

import (
	"strings"
	"time"

	"github.com/vk/matrixci/internal/config"
)

// Pair is a single axis-value assignment.
type Pair struct {
	Axis  string
	Value string
}

// Combination is an ordered axis-value assignment produced by matrix
// expansion. Order follows axis declaration order.
type Combination []Pair

// Value returns the value assigned to the named axis.
func (c Combination) Value(axis string) (string, bool) {
	for _, p := range c {
		if p.Axis == axis {
			return p.Value, true
		}
	}
	return "", false
}

// Matches reports whether every axis named by the selector carries the
// selected value in this combination.
func (c Combination) Matches(sel config.Selector) bool {
	if len(sel) == 0 {
		return false
	}
	for axis, want := range sel {
		got, ok := c.Value(axis)
		if !ok || got != want {
			return false
		}
	}
	return true
}

// String renders the combination as "axis=value" pairs joined by commas,
// in axis order.
func (c Combination) String() string {
	parts := make([]string, len(c))
	for i, p := range c {
		parts[i] = p.Axis + "=" + p.Value
	}
	return strings.Join(parts, ",")
}

// Descriptor is the immutable record of one unit of execution. It is
// created by the matrix expander and never mutated afterwards; the stage
// scheduler owns it exclusively for the duration of a run.
type Descriptor struct {
	ID           string
	Stage        string
	Combination  Combination
	Hooks        config.Hooks
	Env          map[string]string
	AllowFailure bool
	Cache        *config.Cache
	Timeout      time.Duration
}

// Status classifies the terminal state of a job.
type Status int

const (
	// StatusSucceeded means every executed phase exited zero.
	StatusSucceeded Status = iota
	// StatusFailed means a phase exited non-zero.
	StatusFailed
	// StatusErrored means a subprocess could not be spawned at all.
	StatusErrored
	// StatusTimedOut means the job exceeded its wall-clock limit.
	StatusTimedOut
	// StatusCanceled means the job was canceled before or during execution.
	StatusCanceled
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusErrored:
		return "errored"
	case StatusTimedOut:
		return "timed_out"
	case StatusCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// MarshalText makes Status render as its name in JSON reports.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Failure reports whether the status counts as a failure for stage-outcome
// purposes. A timeout is a failure; a cancellation is not.
func (s Status) Failure() bool {
	return s == StatusFailed || s == StatusErrored || s == StatusTimedOut
}

// Result is the immutable outcome of one job.
type Result struct {
	JobID     string        `json:"id"`
	Status    Status        `json:"status"`
	ExitCode  int           `json:"exit_code"`
	Output    string        `json:"output,omitempty"`
	Duration  time.Duration `json:"duration"`
	Tolerated bool          `json:"tolerated,omitempty"`
}
