package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/matrixci/internal/job"
	"github.com/vk/matrixci/internal/matrix"
	"github.com/vk/matrixci/internal/scheduler"
)

// fakeStageRunner resolves stages with scripted outcomes and records which
// stages were actually dispatched.
type fakeStageRunner struct {
	mu         sync.Mutex
	dispatched []string
	outcomes   map[string]scheduler.StageStatus
}

func newFakeStageRunner() *fakeStageRunner {
	return &fakeStageRunner{outcomes: map[string]scheduler.StageStatus{}}
}

func (f *fakeStageRunner) RunStage(ctx context.Context, stage matrix.StagePlan) scheduler.StageResult {
	f.mu.Lock()
	f.dispatched = append(f.dispatched, stage.Name)
	f.mu.Unlock()

	status := f.outcomes[stage.Name]
	jobStatus := job.StatusSucceeded
	if status == scheduler.StageFailed {
		jobStatus = job.StatusFailed
	}
	results := make([]job.Result, len(stage.Jobs))
	for i, d := range stage.Jobs {
		results[i] = job.Result{JobID: d.ID, Status: jobStatus}
	}
	return scheduler.StageResult{Name: stage.Name, Status: status, Jobs: results}
}

// fakeSpawner records pipeline-level hook commands.
type fakeSpawner struct {
	mu       sync.Mutex
	commands []string
	exit     int
}

func (s *fakeSpawner) Spawn(ctx context.Context, command string, env []string, workdir string) (int, string, error) {
	s.mu.Lock()
	s.commands = append(s.commands, command)
	s.mu.Unlock()
	return s.exit, "", nil
}

func testPlan() *matrix.Plan {
	return &matrix.Plan{Stages: []matrix.StagePlan{
		{Name: "pre-build checks", Jobs: []job.Descriptor{{ID: "pre-build checks"}}},
		{Name: "build and test", Jobs: []job.Descriptor{
			{ID: "bt/os=linux,channel=stable"},
			{ID: "bt/os=osx,channel=stable"},
		}},
		{Name: "lints", Jobs: []job.Descriptor{{ID: "lints/channel=stable"}}},
	}}
}

func TestRun_AllStagesSucceed(t *testing.T) {
	runner := newFakeStageRunner()
	spawner := &fakeSpawner{}
	c := New(runner, spawner, ".", nil)

	verdict := c.Run(context.Background(), testPlan(), []string{"publish coverage"})

	assert.Equal(t, StatusSucceeded, verdict.Status)
	assert.Equal(t, 0, verdict.Status.ExitCode())
	assert.NotEmpty(t, verdict.RunID)
	assert.Equal(t, []string{"pre-build checks", "build and test", "lints"}, runner.dispatched)
	assert.Equal(t, []string{"publish coverage"}, spawner.commands,
		"after_success hook runs exactly once on success")
}

func TestRun_FailureShortCircuitsLaterStages(t *testing.T) {
	runner := newFakeStageRunner()
	runner.outcomes["pre-build checks"] = scheduler.StageFailed
	spawner := &fakeSpawner{}
	c := New(runner, spawner, ".", nil)

	verdict := c.Run(context.Background(), testPlan(), []string{"publish coverage"})

	assert.Equal(t, StatusFailed, verdict.Status)
	assert.Equal(t, 1, verdict.Status.ExitCode())
	assert.Equal(t, []string{"pre-build checks"}, runner.dispatched,
		"later stages must not be dispatched")
	assert.Empty(t, spawner.commands, "after_success hook must not run on failure")

	require.Len(t, verdict.Stages, 3)
	for _, stageRes := range verdict.Stages[1:] {
		assert.Equal(t, scheduler.StageCanceled, stageRes.Status)
		for _, r := range stageRes.Jobs {
			assert.Equal(t, job.StatusCanceled, r.Status)
		}
	}
}

func TestRun_LateStageFailureFailsPipeline(t *testing.T) {
	// A single-job lint stage with no tolerance fails the pipeline no
	// matter how the earlier matrix went.
	runner := newFakeStageRunner()
	runner.outcomes["lints"] = scheduler.StageFailed
	c := New(runner, &fakeSpawner{}, ".", nil)

	verdict := c.Run(context.Background(), testPlan(), nil)

	assert.Equal(t, StatusFailed, verdict.Status)
	assert.Equal(t, []string{"pre-build checks", "build and test", "lints"}, runner.dispatched)
}

func TestRun_ToleratedStageFailureContinues(t *testing.T) {
	runner := newFakeStageRunner()
	runner.outcomes["pre-build checks"] = scheduler.StageFailed
	spawner := &fakeSpawner{}
	c := New(runner, spawner, ".", nil)

	plan := testPlan()
	plan.Stages[0].AllowFailure = true
	verdict := c.Run(context.Background(), plan, []string{"publish coverage"})

	assert.Equal(t, StatusSucceeded, verdict.Status)
	assert.True(t, verdict.Stages[0].Tolerated, "stage failure recorded as tolerated")
	assert.Equal(t, []string{"pre-build checks", "build and test", "lints"}, runner.dispatched)
	assert.Equal(t, []string{"publish coverage"}, spawner.commands,
		"tolerated elements still count as success")
}

func TestRun_CanceledStageCancelsPipeline(t *testing.T) {
	runner := newFakeStageRunner()
	runner.outcomes["build and test"] = scheduler.StageCanceled
	c := New(runner, &fakeSpawner{}, ".", nil)

	verdict := c.Run(context.Background(), testPlan(), nil)

	assert.Equal(t, StatusCanceled, verdict.Status)
	assert.Equal(t, 3, verdict.Status.ExitCode())
	assert.Equal(t, []string{"pre-build checks", "build and test"}, runner.dispatched)
}

func TestRun_HookFailureDoesNotFlipVerdict(t *testing.T) {
	runner := newFakeStageRunner()
	spawner := &fakeSpawner{exit: 1}
	c := New(runner, spawner, ".", nil)

	verdict := c.Run(context.Background(), testPlan(), []string{"publish coverage"})
	assert.Equal(t, StatusSucceeded, verdict.Status)
}

func TestVerdict_WriteReport(t *testing.T) {
	runner := newFakeStageRunner()
	c := New(runner, &fakeSpawner{}, ".", nil)
	verdict := c.Run(context.Background(), testPlan(), nil)

	var buf bytes.Buffer
	require.NoError(t, verdict.WriteReport(&buf))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "succeeded", decoded["status"])
	assert.Equal(t, verdict.RunID, decoded["run_id"])
	stages, ok := decoded["stages"].([]any)
	require.True(t, ok)
	assert.Len(t, stages, 3)
}
