package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/matrixci/internal/job"
	"github.com/vk/matrixci/internal/matrix"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeRunner scripts per-job outcomes and mimics the executor's
// cancellation behavior.
type fakeRunner struct {
	mu       sync.Mutex
	started  []string
	fail     map[string]bool
	blocking map[string]bool

	running    atomic.Int64
	maxRunning atomic.Int64
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{fail: map[string]bool{}, blocking: map[string]bool{}}
}

func (r *fakeRunner) Run(ctx context.Context, desc job.Descriptor) job.Result {
	r.mu.Lock()
	r.started = append(r.started, desc.ID)
	r.mu.Unlock()

	n := r.running.Add(1)
	defer r.running.Add(-1)
	for {
		max := r.maxRunning.Load()
		if n <= max || r.maxRunning.CompareAndSwap(max, n) {
			break
		}
	}

	if r.blocking[desc.ID] {
		<-ctx.Done()
		return job.Result{JobID: desc.ID, Status: job.StatusCanceled}
	}
	if ctx.Err() != nil {
		return job.Result{JobID: desc.ID, Status: job.StatusCanceled}
	}
	if r.fail[desc.ID] {
		return job.Result{JobID: desc.ID, Status: job.StatusFailed, ExitCode: 1}
	}
	return job.Result{JobID: desc.ID, Status: job.StatusSucceeded}
}

// buildStage builds a stage plan of simple descriptors; tolerated names
// are tagged AllowFailure.
func buildStage(name string, jobIDs []string, tolerated ...string) matrix.StagePlan {
	isTolerated := make(map[string]bool, len(tolerated))
	for _, id := range tolerated {
		isTolerated[id] = true
	}
	sp := matrix.StagePlan{Name: name}
	for _, id := range jobIDs {
		sp.Jobs = append(sp.Jobs, job.Descriptor{
			ID:           id,
			Stage:        name,
			AllowFailure: isTolerated[id],
		})
	}
	return sp
}

func TestRunStage_AllSucceed(t *testing.T) {
	runner := newFakeRunner()
	s := New(runner, 4)

	stage := buildStage("build", []string{"a", "b", "c"})
	res := s.RunStage(context.Background(), stage)

	assert.Equal(t, StageSucceeded, res.Status)
	require.Len(t, res.Jobs, 3)
	// Results keep descriptor order regardless of completion order.
	assert.Equal(t, "a", res.Jobs[0].JobID)
	assert.Equal(t, "b", res.Jobs[1].JobID)
	assert.Equal(t, "c", res.Jobs[2].JobID)
}

func TestRunStage_ToleratedFailuresDoNotFlipOutcome(t *testing.T) {
	// The reference scenario: 6 jobs, both nightly jobs fail, all four
	// stable/beta jobs succeed.
	ids := []string{
		"bt/os=linux,channel=stable", "bt/os=linux,channel=beta", "bt/os=linux,channel=nightly",
		"bt/os=osx,channel=stable", "bt/os=osx,channel=beta", "bt/os=osx,channel=nightly",
	}
	runner := newFakeRunner()
	runner.fail["bt/os=linux,channel=nightly"] = true
	runner.fail["bt/os=osx,channel=nightly"] = true
	s := New(runner, 6)

	stage := buildStage("bt", ids, "bt/os=linux,channel=nightly", "bt/os=osx,channel=nightly")
	res := s.RunStage(context.Background(), stage)

	assert.Equal(t, StageSucceeded, res.Status)
	tolerated := 0
	for _, r := range res.Jobs {
		if r.Tolerated {
			tolerated++
			assert.Equal(t, job.StatusFailed, r.Status, "tolerated failures stay recorded as failures")
		}
	}
	assert.Equal(t, 2, tolerated)
}

func TestRunStage_MandatoryFailureFailsStage(t *testing.T) {
	runner := newFakeRunner()
	runner.fail["b"] = true
	s := New(runner, 4)

	res := s.RunStage(context.Background(), buildStage("build", []string{"a", "b", "c"}))

	assert.Equal(t, StageFailed, res.Status)
	assert.False(t, res.Jobs[1].Tolerated)
}

func TestRunStage_FastFinishCancelsToleratedStragglers(t *testing.T) {
	runner := newFakeRunner()
	runner.blocking["nightly"] = true
	s := New(runner, 4)

	stage := buildStage("build", []string{"stable", "beta", "nightly"}, "nightly")
	stage.FastFinish = true

	done := make(chan StageResult, 1)
	go func() { done <- s.RunStage(context.Background(), stage) }()

	select {
	case res := <-done:
		assert.Equal(t, StageSucceeded, res.Status)
		assert.Equal(t, job.StatusCanceled, res.Jobs[2].Status,
			"the unfinished tolerated job is canceled, not failed")
	case <-time.After(5 * time.Second):
		t.Fatal("fast-finish stage did not resolve while a tolerated job was still running")
	}
}

func TestRunStage_WithoutFastFinishToleratedFailureIsAwaited(t *testing.T) {
	runner := newFakeRunner()
	runner.fail["nightly"] = true
	s := New(runner, 4)

	res := s.RunStage(context.Background(), buildStage("build", []string{"stable", "nightly"}, "nightly"))

	assert.Equal(t, StageSucceeded, res.Status)
	assert.Equal(t, job.StatusFailed, res.Jobs[1].Status)
	assert.True(t, res.Jobs[1].Tolerated)
}

func TestRunStage_ExternalCancellation(t *testing.T) {
	runner := newFakeRunner()
	runner.blocking["a"] = true
	s := New(runner, 4)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	res := s.RunStage(ctx, buildStage("build", []string{"a", "b"}))
	assert.Equal(t, StageCanceled, res.Status)
}

func TestRunStage_ConcurrencyBound(t *testing.T) {
	runner := newFakeRunner()
	s := New(runner, 2)

	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	res := s.RunStage(context.Background(), buildStage("build", ids))

	assert.Equal(t, StageSucceeded, res.Status)
	assert.LessOrEqual(t, runner.maxRunning.Load(), int64(2))
}
