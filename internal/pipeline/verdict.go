package pipeline

import (
	"encoding/json"
	"io"

	"github.com/vk/matrixci/internal/scheduler"
)

// Status is the aggregate outcome of a whole pipeline run.
type Status int

const (
	// StatusSucceeded means every stage resolved successfully, tolerated
	// failures included.
	StatusSucceeded Status = iota
	// StatusFailed means a non-tolerated stage failed; later stages were
	// not started.
	StatusFailed
	// StatusCanceled means the run was canceled externally before a
	// verdict could be reached.
	StatusCanceled
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// MarshalText makes Status render as its name in the report.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ExitCode maps the verdict onto the process exit code: zero only for
// success, and cancellation distinguishable from failure.
func (s Status) ExitCode() int {
	switch s {
	case StatusSucceeded:
		return 0
	case StatusCanceled:
		return 3
	default:
		return 1
	}
}

// Verdict is the final aggregate over all stages, in declaration order.
type Verdict struct {
	RunID  string                  `json:"run_id"`
	Status Status                  `json:"status"`
	Stages []scheduler.StageResult `json:"stages"`
}

// WriteReport serializes the verdict as an indented JSON record.
func (v *Verdict) WriteReport(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
