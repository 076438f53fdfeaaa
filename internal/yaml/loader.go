package yaml

import (
	"context"
	"os"
	"time"

	"github.com/vk/matrixci/internal/config"
	"github.com/vk/matrixci/internal/ctxlog"
	yamlv3 "gopkg.in/yaml.v3"
)

// Loader loads a pipeline declaration from a single YAML file.
type Loader struct{}

// NewLoader returns a YAML declaration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// document mirrors the declaration file structure. Axes are a list, not a
// map, because axis declaration order drives expansion order.
type document struct {
	Axes []struct {
		Name   string   `yaml:"name"`
		Values []string `yaml:"values"`
	} `yaml:"axes"`
	Matrix struct {
		FastFinish    bool                `yaml:"fast_finish"`
		Include       []map[string]string `yaml:"include"`
		Exclude       []map[string]string `yaml:"exclude"`
		AllowFailures []map[string]string `yaml:"allow_failures"`
	} `yaml:"matrix"`
	Stages []struct {
		Name          string              `yaml:"name"`
		Matrix        bool                `yaml:"matrix"`
		Pin           map[string]string   `yaml:"pin"`
		BeforeScript  []string            `yaml:"before_script"`
		Script        []string            `yaml:"script"`
		AfterSuccess  []string            `yaml:"after_success"`
		AfterFailure  []string            `yaml:"after_failure"`
		CanFail       bool                `yaml:"can_fail"`
		AllowFailures []map[string]string `yaml:"allow_failures"`
		FastFinish    bool                `yaml:"fast_finish"`
		Timeout       string              `yaml:"timeout"`
	} `yaml:"stages"`
	Env   map[string]string `yaml:"env"`
	Cache struct {
		Directories []string `yaml:"directories"`
		LockFiles   []string `yaml:"lock_files"`
	} `yaml:"cache"`
	AfterSuccess []string `yaml:"after_success"`
}

// Load implements config.Loader. Exactly one YAML file is expected; the
// format has no multi-file merge story.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	if len(paths) != 1 {
		return nil, config.Errorf("yaml loader expects exactly one file, got %d paths", len(paths))
	}

	data, err := os.ReadFile(paths[0])
	if err != nil {
		return nil, config.Errorf("reading %s: %v", paths[0], err)
	}

	var doc document
	if err := yamlv3.Unmarshal(data, &doc); err != nil {
		return nil, config.Errorf("parsing %s: %v", paths[0], err)
	}

	model, err := translate(&doc)
	if err != nil {
		return nil, err
	}
	logger.Debug("Declaration loaded.", "axes", len(model.Matrix.Axes), "stages", len(model.Stages))
	return model, nil
}

func translate(doc *document) (*config.Model, error) {
	model := &config.Model{
		Matrix: config.Matrix{
			FastFinish:    doc.Matrix.FastFinish,
			Include:       selectors(doc.Matrix.Include),
			Exclude:       selectors(doc.Matrix.Exclude),
			AllowFailures: selectors(doc.Matrix.AllowFailures),
		},
		Env: doc.Env,
		Cache: config.Cache{
			Directories: doc.Cache.Directories,
			LockFiles:   doc.Cache.LockFiles,
		},
		AfterSuccess: doc.AfterSuccess,
	}
	if model.Env == nil {
		model.Env = map[string]string{}
	}

	for _, a := range doc.Axes {
		model.Matrix.Axes = append(model.Matrix.Axes, config.Axis{Name: a.Name, Values: a.Values})
	}

	for _, s := range doc.Stages {
		stage := &config.Stage{
			Name:      s.Name,
			RunMatrix: s.Matrix,
			Pin:       config.Selector(s.Pin),
			Hooks: config.Hooks{
				BeforeScript: s.BeforeScript,
				Script:       s.Script,
				AfterSuccess: s.AfterSuccess,
				AfterFailure: s.AfterFailure,
			},
			AllowFailure:  s.CanFail,
			AllowFailures: selectors(s.AllowFailures),
			FastFinish:    s.FastFinish,
		}
		if s.Timeout != "" {
			d, err := time.ParseDuration(s.Timeout)
			if err != nil {
				return nil, config.Errorf("stage %q: invalid timeout %q", s.Name, s.Timeout)
			}
			stage.Timeout = d
		}
		model.Stages = append(model.Stages, stage)
	}

	return model, nil
}

func selectors(in []map[string]string) []config.Selector {
	out := make([]config.Selector, 0, len(in))
	for _, m := range in {
		out = append(out, config.Selector(m))
	}
	return out
}
