package hcl

import (
	"context"
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/matrixci/internal/config"
	"github.com/vk/matrixci/internal/ctxlog"
	"github.com/vk/matrixci/internal/fsutil"
	"github.com/vk/matrixci/internal/schema"
)

// Loader loads pipeline declarations from .hcl files.
type Loader struct{}

// NewLoader returns an HCL declaration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load implements config.Loader. Each path may be a single .hcl file or a
// directory searched recursively; all files merge into one declaration.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)

	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, config.Errorf("reading declaration path %q: %v", path, err)
		}
		if info.IsDir() {
			found, err := fsutil.FindFilesByExtensions(path, ".hcl")
			if err != nil {
				return nil, config.Errorf("searching %q for declaration files: %v", path, err)
			}
			files = append(files, found...)
		} else {
			files = append(files, path)
		}
	}
	if len(files) == 0 {
		return nil, config.Errorf("no declaration files found under %v", paths)
	}
	logger.Debug("Declaration files discovered.", "count", len(files))

	parser := hclparse.NewParser()
	merged := &schema.Pipeline{}
	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, config.Errorf("parsing %s: %s", file, diags.Error())
		}
		var p schema.Pipeline
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &p); diags.HasErrors() {
			return nil, config.Errorf("decoding %s: %s", file, diags.Error())
		}
		if err := merge(merged, &p, file); err != nil {
			return nil, err
		}
	}

	model, err := l.translate(merged)
	if err != nil {
		return nil, err
	}
	logger.Debug("Declaration loaded.", "axes", len(model.Matrix.Axes), "stages", len(model.Stages))
	return model, nil
}

// merge folds one file's blocks into the accumulated declaration. List
// blocks append in file order; singleton blocks may appear in only one
// file.
func merge(dst, src *schema.Pipeline, file string) error {
	dst.Axes = append(dst.Axes, src.Axes...)
	dst.Stages = append(dst.Stages, src.Stages...)
	dst.AfterSuccess = append(dst.AfterSuccess, src.AfterSuccess...)

	if src.Matrix != nil {
		if dst.Matrix != nil {
			return config.Errorf("%s: duplicate matrix block (already declared in another file)", file)
		}
		dst.Matrix = src.Matrix
	}
	if src.Env != nil {
		if dst.Env != nil {
			return config.Errorf("%s: duplicate env block (already declared in another file)", file)
		}
		dst.Env = src.Env
	}
	if src.Cache != nil {
		if dst.Cache != nil {
			return config.Errorf("%s: duplicate cache block (already declared in another file)", file)
		}
		dst.Cache = src.Cache
	}
	return nil
}
