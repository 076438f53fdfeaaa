package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/vk/matrixci/internal/cache"
	"github.com/vk/matrixci/internal/ctxlog"
	"github.com/vk/matrixci/internal/executor"
	"github.com/vk/matrixci/internal/matrix"
	"github.com/vk/matrixci/internal/pipeline"
	"github.com/vk/matrixci/internal/scheduler"
)

// Run executes the loaded pipeline and returns the process exit code. A
// declaration error aborts before any job starts; job and stage failures
// are encoded in the verdict, not returned as errors.
func (a *App) Run(ctx context.Context) (int, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	for _, stage := range a.model.Stages {
		if stage.Timeout == 0 {
			stage.Timeout = a.appConfig.JobTimeout
		}
	}

	plan, err := matrix.Build(a.model)
	if err != nil {
		return 0, fmt.Errorf("failed to expand matrix: %w", err)
	}
	a.logger.Debug("Matrix expanded.", "stages", len(plan.Stages), "jobs", plan.JobCount())

	if a.appConfig.DryRun {
		enc := json.NewEncoder(a.outW)
		enc.SetIndent("", "  ")
		if err := enc.Encode(plan); err != nil {
			return 0, fmt.Errorf("failed to print plan: %w", err)
		}
		return 0, nil
	}

	var cacheMgr *cache.Manager
	switch {
	case a.appConfig.CacheBucket != "":
		client, err := minio.New(a.appConfig.CacheEndpoint, &minio.Options{
			Creds:  credentials.NewEnvMinio(),
			Secure: true,
		})
		if err != nil {
			return 0, fmt.Errorf("failed to set up cache object store: %w", err)
		}
		cacheMgr = cache.New(cache.NewMinioStore(client, a.appConfig.CacheBucket))
		a.logger.Debug("Cache manager ready.", "endpoint", a.appConfig.CacheEndpoint, "bucket", a.appConfig.CacheBucket)
	case a.appConfig.CacheDir != "":
		if err := os.MkdirAll(a.appConfig.CacheDir, 0o755); err != nil {
			return 0, fmt.Errorf("failed to create cache directory: %w", err)
		}
		cacheMgr = cache.New(cache.NewFSStore(osfs.New(a.appConfig.CacheDir)))
		a.logger.Debug("Cache manager ready.", "dir", a.appConfig.CacheDir)
	}

	spawner := &executor.ShellSpawner{}
	exec := executor.New(spawner, cacheMgr, a.appConfig.Workdir, os.Environ())
	sched := scheduler.New(exec, a.appConfig.Workers)
	coord := pipeline.New(sched, spawner, a.appConfig.Workdir, os.Environ())

	verdict := coord.Run(ctx, plan, a.model.AfterSuccess)
	if err := verdict.WriteReport(a.outW); err != nil {
		return verdict.Status.ExitCode(), fmt.Errorf("failed to write report: %w", err)
	}

	a.logger.Debug("App.Run method finished.")
	return verdict.Status.ExitCode(), nil
}
