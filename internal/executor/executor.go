package executor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/vk/matrixci/internal/cache"
	"github.com/vk/matrixci/internal/ctxlog"
	"github.com/vk/matrixci/internal/job"
)

// Executor runs one job at a time against a working directory. It is safe
// for concurrent use: all per-run state lives on the stack, and the cache
// manager serializes its own writers.
type Executor struct {
	spawner Spawner
	cache   *cache.Manager
	workdir string
	baseEnv []string
}

// New returns an Executor dispatching to the given spawner. cacheMgr may
// be nil, which disables caching entirely. baseEnv is the ambient process
// environment jobs inherit (typically os.Environ()).
func New(spawner Spawner, cacheMgr *cache.Manager, workdir string, baseEnv []string) *Executor {
	return &Executor{
		spawner: spawner,
		cache:   cacheMgr,
		workdir: workdir,
		baseEnv: baseEnv,
	}
}

// Run executes the job's phases in order and returns its Result. Job-level
// failures never surface as errors; they are encoded in the result status.
func (e *Executor) Run(ctx context.Context, desc job.Descriptor) job.Result {
	logger := ctxlog.FromContext(ctx).With("job", desc.ID)
	start := time.Now()

	if desc.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, desc.Timeout)
		defer cancel()
	}

	if ctx.Err() != nil {
		// Canceled before dispatch: no phase runs, nothing is recorded
		// beyond the cancellation itself.
		return job.Result{JobID: desc.ID, Status: job.StatusCanceled, Duration: time.Since(start)}
	}

	logger.Info("▶️ Starting job")
	env := e.jobEnv(desc)
	e.restoreCache(ctx, desc)

	var out strings.Builder
	res := job.Result{JobID: desc.ID}

	exit, err := e.runPhase(ctx, "before_script", desc.Hooks.BeforeScript, env, &out)
	if err != nil || exit != 0 {
		// A before_script failure skips the script phase entirely and
		// becomes the job status.
		res.Status, res.ExitCode = classify(ctx, exit, err)
	} else {
		exit, err = e.runPhase(ctx, "script", desc.Hooks.Script, env, &out)
		switch {
		case err != nil || exit != 0:
			res.Status, res.ExitCode = classify(ctx, exit, err)
			if res.Status == job.StatusFailed {
				// Best effort; the script's exit code stays the job status.
				if _, aErr := e.runPhase(ctx, "after_failure", desc.Hooks.AfterFailure, env, &out); aErr != nil {
					logger.Debug("after_failure phase errored.", "error", aErr)
				}
			}
		default:
			exit, err = e.runPhase(ctx, "after_success", desc.Hooks.AfterSuccess, env, &out)
			res.Status, res.ExitCode = classify(ctx, exit, err)
		}
	}

	if res.Status == job.StatusSucceeded {
		e.writeBackCache(ctx, desc)
	}

	res.Output = out.String()
	res.Duration = time.Since(start)

	switch res.Status {
	case job.StatusSucceeded:
		logger.Info("✅ Job succeeded", "duration", res.Duration)
	case job.StatusCanceled:
		logger.Info("🚫 Job canceled", "duration", res.Duration)
	default:
		logger.Warn("Job did not succeed.", "status", res.Status.String(), "exit_code", res.ExitCode, "duration", res.Duration)
	}
	return res
}

// runPhase executes the phase's commands in order, stopping at the first
// non-zero exit or spawn error. An absent phase is a no-op.
func (e *Executor) runPhase(ctx context.Context, phase string, commands []string, env []string, out *strings.Builder) (int, error) {
	logger := ctxlog.FromContext(ctx)
	for _, command := range commands {
		if ctx.Err() != nil {
			return -1, ctx.Err()
		}
		logger.Debug("Running command.", "phase", phase, "command", command)
		fmt.Fprintf(out, "$ %s\n", command)
		exit, output, err := e.spawner.Spawn(ctx, command, env, e.workdir)
		out.WriteString(output)
		if err != nil {
			return exit, fmt.Errorf("spawning %q: %w", command, err)
		}
		if exit != 0 {
			return exit, nil
		}
	}
	return 0, nil
}

// classify maps a phase outcome onto a job status, distinguishing a
// wall-clock timeout and an external cancellation from an ordinary
// non-zero exit.
func classify(ctx context.Context, exit int, err error) (job.Status, int) {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return job.StatusTimedOut, exit
	case context.Canceled:
		return job.StatusCanceled, exit
	}
	if err != nil {
		return job.StatusErrored, exit
	}
	if exit != 0 {
		return job.StatusFailed, exit
	}
	return job.StatusSucceeded, 0
}

// restoreCache materializes a prior cache entry before the script phase.
// A miss or a restore failure only means a slower build.
func (e *Executor) restoreCache(ctx context.Context, desc job.Descriptor) {
	if e.cache == nil || desc.Cache == nil {
		return
	}
	handle, ok := e.cache.Fetch(ctx, e.workdir, desc.Combination.String(), *desc.Cache)
	if !ok {
		return
	}
	if err := handle.Restore(e.workdir); err != nil {
		ctxlog.FromContext(ctx).Warn("Cache restore failed, continuing without cache.", "key", handle.Key, "error", err)
	}
}

// writeBackCache persists the cached directories after a fully successful
// job. Never called on any failure path.
func (e *Executor) writeBackCache(ctx context.Context, desc job.Descriptor) {
	if e.cache == nil || desc.Cache == nil {
		return
	}
	if ctx.Err() != nil {
		// Cancellation between the last phase and here skips write-back.
		return
	}
	// Store logs its own failures; a cache error never fails the job.
	_ = e.cache.Store(ctx, e.workdir, desc.Combination.String(), *desc.Cache)
}

// jobEnv merges the ambient environment with the job's overrides, keys
// sorted for deterministic subprocess environments.
func (e *Executor) jobEnv(desc job.Descriptor) []string {
	env := make([]string, len(e.baseEnv), len(e.baseEnv)+len(desc.Env))
	copy(env, e.baseEnv)

	keys := make([]string, 0, len(desc.Env))
	for k := range desc.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+desc.Env[k])
	}
	return env
}
