package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/vk/matrixci/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated app.Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	flagSet := flag.NewFlagSet("matrixci", flag.ContinueOnError)
	flagSet.SetOutput(output)

	// Custom usage/help text function
	flagSet.Usage = func() {
		fmt.Fprint(output, `
matrixci - A declarative CI matrix orchestration engine.

Usage:
  matrixci [options] [PIPELINE_PATH]

Arguments:
  PIPELINE_PATH
    Path to a pipeline declaration: a .hcl or .yml/.yaml file, or a
    directory containing .hcl files.

Options:
`)
		flagSet.PrintDefaults()
	}

	pipelineFlag := flagSet.String("pipeline", "", "Path to the pipeline declaration.")
	pFlag := flagSet.String("p", "", "Path to the pipeline declaration (shorthand).")
	workdirFlag := flagSet.String("workdir", ".", "Working directory jobs execute in.")
	cacheDirFlag := flagSet.String("cache-dir", "", "Directory for the local build cache. Empty disables caching.")
	cacheEndpointFlag := flagSet.String("cache-endpoint", "", "S3-compatible endpoint for a shared remote cache.")
	cacheBucketFlag := flagSet.String("cache-bucket", "", "Bucket for the shared remote cache. Takes precedence over -cache-dir.")
	workersFlag := flagSet.Int("workers", 4, "Maximum number of jobs running concurrently within a stage.")
	jobTimeoutFlag := flagSet.Duration("job-timeout", 0, "Default wall-clock limit per job. 0 is unlimited.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	dryRunFlag := flagSet.Bool("dry-run", false, "Expand the matrix and print the job plan without executing.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	path := ""
	if *pipelineFlag != "" {
		path = *pipelineFlag
	} else if *pFlag != "" {
		path = *pFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}

	if path == "" {
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	if *jobTimeoutFlag < 0 {
		return nil, false, &ExitError{Code: 2, Message: "invalid job-timeout: must not be negative"}
	}

	config, err := app.NewConfig(app.Config{
		PipelinePath:  path,
		Workdir:       *workdirFlag,
		CacheDir:      *cacheDirFlag,
		CacheEndpoint: *cacheEndpointFlag,
		CacheBucket:   *cacheBucketFlag,
		Workers:       *workersFlag,
		JobTimeout:    *jobTimeoutFlag,
		LogFormat:     logFormat,
		LogLevel:      logLevel,
		DryRun:        *dryRunFlag,
	})

	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	return config, false, nil
}
