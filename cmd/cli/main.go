package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/vk/matrixci/internal/app"
	"github.com/vk/matrixci/internal/cli"
	"github.com/vk/matrixci/internal/config"
	"github.com/vk/matrixci/internal/hcl"
	"github.com/vk/matrixci/internal/yaml"
)

// main is the entrypoint for the matrixci application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	code, err := run(os.Stdout, os.Args[1:])
	if err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(code)
}

// run encapsulates the main application logic for easier testing and error
// handling. The returned code is the process exit code: zero only for a
// successful pipeline verdict.
func run(outW io.Writer, args []string) (int, error) {
	appConfig, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return 0, err
	}
	if shouldExit {
		return 0, nil
	}

	matrixciApp, err := app.NewApp(outW, appConfig, loaderFor(appConfig.PipelinePath))
	if err != nil {
		return 0, err
	}

	return matrixciApp.Run(context.Background())
}

// loaderFor picks the declaration loader from the path's extension; a
// directory defaults to the HCL loader.
func loaderFor(path string) config.Loader {
	if strings.HasSuffix(path, ".yml") || strings.HasSuffix(path, ".yaml") {
		return yaml.NewLoader()
	}
	return hcl.NewLoader()
}
