package scheduler

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/vk/matrixci/internal/ctxlog"
	"github.com/vk/matrixci/internal/job"
	"github.com/vk/matrixci/internal/matrix"
	"golang.org/x/sync/semaphore"
)

// Runner executes one job and reports its result. The executor package
// provides the real implementation; tests substitute their own.
type Runner interface {
	Run(ctx context.Context, desc job.Descriptor) job.Result
}

// StageStatus classifies the outcome of a whole stage.
type StageStatus int

const (
	// StageSucceeded means every non-tolerated job succeeded.
	StageSucceeded StageStatus = iota
	// StageFailed means at least one non-tolerated job failed.
	StageFailed
	// StageCanceled means the stage was canceled before resolving.
	StageCanceled
)

// String implements fmt.Stringer.
func (s StageStatus) String() string {
	switch s {
	case StageSucceeded:
		return "succeeded"
	case StageFailed:
		return "failed"
	case StageCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// MarshalText makes StageStatus render as its name in JSON reports.
func (s StageStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StageResult aggregates a stage's job results. Results are ordered as the
// stage plan's descriptors, independent of completion order.
type StageResult struct {
	Name      string       `json:"name"`
	Status    StageStatus  `json:"status"`
	Tolerated bool         `json:"tolerated,omitempty"`
	Jobs      []job.Result `json:"jobs"`
}

// Scheduler dispatches stage jobs to a Runner with bounded concurrency.
type Scheduler struct {
	runner Runner
	limit  int64
}

// New returns a Scheduler running at most workers jobs at once.
func New(runner Runner, workers int) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	return &Scheduler{runner: runner, limit: int64(workers)}
}

// RunStage executes every job of the stage concurrently and decides the
// stage outcome. With fast-finish enabled, the moment the last mandatory
// job resolves the remaining tolerated jobs are canceled; they report
// StatusCanceled, never a failure.
func (s *Scheduler) RunStage(ctx context.Context, stage matrix.StagePlan) StageResult {
	logger := ctxlog.FromContext(ctx).With("stage", stage.Name)
	logger.Info("🚀 Stage starting", "jobs", len(stage.Jobs))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var mandatory atomic.Int64
	for _, d := range stage.Jobs {
		if !d.AllowFailure {
			mandatory.Add(1)
		}
	}

	results := make([]job.Result, len(stage.Jobs))
	sem := semaphore.NewWeighted(s.limit)
	var wg sync.WaitGroup

	for i, desc := range stage.Jobs {
		wg.Add(1)
		go func(i int, desc job.Descriptor) {
			defer wg.Done()

			if err := sem.Acquire(runCtx, 1); err != nil {
				results[i] = job.Result{JobID: desc.ID, Status: job.StatusCanceled}
			} else {
				res := s.runner.Run(runCtx, desc)
				sem.Release(1)
				if res.Status.Failure() && desc.AllowFailure {
					res.Tolerated = true
				}
				results[i] = res
			}

			if !desc.AllowFailure && mandatory.Add(-1) == 0 && stage.FastFinish {
				// Every mandatory job has resolved; the stage outcome is
				// decidable and the tolerated stragglers can be cut loose.
				logger.Debug("Fast-finish: canceling remaining tolerated jobs.")
				cancel()
			}
		}(i, desc)
	}

	wg.Wait()

	result := StageResult{Name: stage.Name, Jobs: results, Status: decide(ctx, results)}
	logger.Info("🏁 Stage finished", "status", result.Status.String())
	return result
}

// decide folds the job results into the stage status. Canceled jobs never
// count as failures; an externally canceled stage reports StageCanceled.
func decide(ctx context.Context, results []job.Result) StageStatus {
	if ctx.Err() != nil {
		return StageCanceled
	}
	for _, r := range results {
		if r.Status.Failure() && !r.Tolerated {
			return StageFailed
		}
	}
	return StageSucceeded
}
