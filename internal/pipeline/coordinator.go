package pipeline

import (
	"context"

	"github.com/google/uuid"
	"github.com/vk/matrixci/internal/ctxlog"
	"github.com/vk/matrixci/internal/executor"
	"github.com/vk/matrixci/internal/job"
	"github.com/vk/matrixci/internal/matrix"
	"github.com/vk/matrixci/internal/scheduler"
)

// StageRunner is the scheduler boundary the coordinator drives. The
// scheduler package provides the real implementation; tests substitute
// their own.
type StageRunner interface {
	RunStage(ctx context.Context, stage matrix.StagePlan) scheduler.StageResult
}

// Coordinator iterates stages in declared order and folds their results
// into one verdict. A non-tolerated stage failure stops the pipeline;
// stages never started report all their jobs canceled.
type Coordinator struct {
	sched   StageRunner
	spawner executor.Spawner
	workdir string
	env     []string
}

// New returns a Coordinator. The spawner and environment are used only for
// the pipeline-level after_success hook.
func New(sched StageRunner, spawner executor.Spawner, workdir string, env []string) *Coordinator {
	return &Coordinator{sched: sched, spawner: spawner, workdir: workdir, env: env}
}

// Run executes the plan and returns the verdict. It blocks until every
// dispatched stage resolves; stages after a failure are reported without
// being dispatched.
func (c *Coordinator) Run(ctx context.Context, plan *matrix.Plan, afterSuccess []string) Verdict {
	logger := ctxlog.FromContext(ctx)
	verdict := Verdict{RunID: uuid.NewString(), Status: StatusSucceeded}
	logger.Info("Pipeline starting.", "run_id", verdict.RunID, "stages", len(plan.Stages), "jobs", plan.JobCount())

	aborted := false
	for _, stage := range plan.Stages {
		if aborted || ctx.Err() != nil {
			verdict.Stages = append(verdict.Stages, canceledStage(stage))
			continue
		}

		res := c.sched.RunStage(ctx, stage)
		c.reportJobs(ctx, res)

		switch res.Status {
		case scheduler.StageFailed:
			if stage.AllowFailure {
				res.Tolerated = true
				logger.Warn("Stage failed but is allowed to fail, continuing.", "stage", stage.Name)
			} else {
				verdict.Status = StatusFailed
				aborted = true
			}
		case scheduler.StageCanceled:
			verdict.Status = StatusCanceled
			aborted = true
		}
		verdict.Stages = append(verdict.Stages, res)
	}

	if verdict.Status == StatusSucceeded {
		c.runAfterSuccess(ctx, afterSuccess)
	}

	logger.Info("Pipeline finished.", "run_id", verdict.RunID, "status", verdict.Status.String())
	return verdict
}

// canceledStage reports a never-dispatched stage: every descriptor marked
// canceled, zero executed jobs.
func canceledStage(stage matrix.StagePlan) scheduler.StageResult {
	results := make([]job.Result, len(stage.Jobs))
	for i, d := range stage.Jobs {
		results[i] = job.Result{JobID: d.ID, Status: job.StatusCanceled}
	}
	return scheduler.StageResult{Name: stage.Name, Status: scheduler.StageCanceled, Jobs: results}
}

// reportJobs surfaces per-job outcomes: failed mandatory jobs print their
// captured output and exit code, tolerated failures are marked distinctly.
func (c *Coordinator) reportJobs(ctx context.Context, res scheduler.StageResult) {
	logger := ctxlog.FromContext(ctx).With("stage", res.Name)
	for _, r := range res.Jobs {
		switch {
		case r.Status.Failure() && r.Tolerated:
			logger.Warn("Allowed failure.", "job", r.JobID, "status", r.Status.String(), "exit_code", r.ExitCode)
		case r.Status.Failure():
			logger.Error("Job failed.", "job", r.JobID, "status", r.Status.String(), "exit_code", r.ExitCode, "output", r.Output)
		}
	}
}

// runAfterSuccess executes the pipeline-level hook once. Hook failures are
// reported but cannot retroactively change a success verdict.
func (c *Coordinator) runAfterSuccess(ctx context.Context, commands []string) {
	logger := ctxlog.FromContext(ctx)
	for _, command := range commands {
		logger.Debug("Running pipeline after_success command.", "command", command)
		exit, output, err := c.spawner.Spawn(ctx, command, c.env, c.workdir)
		if err != nil {
			logger.Warn("after_success command could not be spawned.", "command", command, "error", err)
			return
		}
		if exit != 0 {
			logger.Warn("after_success command failed.", "command", command, "exit_code", exit, "output", output)
			return
		}
	}
}
