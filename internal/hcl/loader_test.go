package hcl

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/matrixci/internal/config"
)

const declarationHCL = `
axis "os" {
  values = ["linux", "osx"]
}

axis "channel" {
  values = ["stable", "beta", "nightly"]
}

matrix {
  fast_finish = true

  allow_failure {
    channel = "nightly"
  }

  exclude {
    os      = "osx"
    channel = "beta"
  }

  include {
    os      = "linux"
    channel = "1.31.0"
  }
}

env {
  BACKTRACE = "1"
  VERBOSE   = true
}

cache {
  directories = ["target"]
  lock_files  = ["deps.lock"]
}

stage "pre-build checks" {
  script = ["scripts/prebuild.sh"]
}

stage "build and test" {
  matrix        = true
  before_script = ["build --verbose"]
  script        = ["test --all"]
  after_failure = ["dump-environment"]
  timeout       = "45m"
}

stage "lints" {
  script = ["lint --all"]

  pin {
    channel = "stable"
  }
}

after_success = ["publish-coverage"]
`

func writeDeclaration(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FullDeclaration(t *testing.T) {
	path := writeDeclaration(t, "pipeline.hcl", declarationHCL)

	model, err := NewLoader().Load(context.Background(), path)
	require.NoError(t, err)

	require.Len(t, model.Matrix.Axes, 2)
	assert.Equal(t, "os", model.Matrix.Axes[0].Name)
	assert.Equal(t, []string{"stable", "beta", "nightly"}, model.Matrix.Axes[1].Values)
	assert.True(t, model.Matrix.FastFinish)
	assert.Equal(t, []config.Selector{{"channel": "nightly"}}, model.Matrix.AllowFailures)
	assert.Equal(t, []config.Selector{{"os": "osx", "channel": "beta"}}, model.Matrix.Exclude)
	assert.Equal(t, []config.Selector{{"os": "linux", "channel": "1.31.0"}}, model.Matrix.Include)

	assert.Equal(t, "1", model.Env["BACKTRACE"])
	assert.Equal(t, "true", model.Env["VERBOSE"], "non-string expressions convert to string")

	assert.Equal(t, []string{"target"}, model.Cache.Directories)
	assert.Equal(t, []string{"deps.lock"}, model.Cache.LockFiles)
	assert.Equal(t, []string{"publish-coverage"}, model.AfterSuccess)

	require.Len(t, model.Stages, 3)
	assert.False(t, model.Stages[0].RunMatrix)
	assert.True(t, model.Stages[1].RunMatrix)
	assert.Equal(t, []string{"build --verbose"}, model.Stages[1].Hooks.BeforeScript)
	assert.Equal(t, 45*time.Minute, model.Stages[1].Timeout)
	assert.Equal(t, config.Selector{"channel": "stable"}, model.Stages[2].Pin)

	assert.NoError(t, model.Validate())
}

func TestLoad_DirectoryMergesFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "axes.hcl"), []byte(`
axis "os" {
  values = ["linux"]
}
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stages.hcl"), []byte(`
stage "build" {
  script = ["make"]
}
`), 0o644))

	model, err := NewLoader().Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Len(t, model.Matrix.Axes, 1)
	assert.Len(t, model.Stages, 1)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing path", func(t *testing.T) {
		_, err := NewLoader().Load(context.Background(), filepath.Join(t.TempDir(), "nope.hcl"))
		requireConfigError(t, err)
	})

	t.Run("invalid syntax", func(t *testing.T) {
		path := writeDeclaration(t, "broken.hcl", `axis "os" {`)
		_, err := NewLoader().Load(context.Background(), path)
		requireConfigError(t, err)
	})

	t.Run("duplicate matrix block across files", func(t *testing.T) {
		dir := t.TempDir()
		for _, name := range []string{"a.hcl", "b.hcl"} {
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(`
matrix {
  fast_finish = true
}
`), 0o644))
		}
		_, err := NewLoader().Load(context.Background(), dir)
		requireConfigError(t, err)
	})

	t.Run("invalid stage timeout", func(t *testing.T) {
		path := writeDeclaration(t, "pipeline.hcl", `
axis "os" {
  values = ["linux"]
}

stage "build" {
  script  = ["make"]
  timeout = "soon"
}
`)
		_, err := NewLoader().Load(context.Background(), path)
		requireConfigError(t, err)
	})
}

func requireConfigError(t *testing.T, err error) {
	t.Helper()
	var cfgErr *config.Error
	require.ErrorAs(t, err, &cfgErr)
}
