package matrix

import (
	"strings"

	"github.com/vk/matrixci/internal/config"
	"github.com/vk/matrixci/internal/job"
)

// StagePlan groups the concrete descriptors of one stage together with the
// scheduling policy the stage scheduler evaluates.
type StagePlan struct {
	Name         string
	AllowFailure bool
	FastFinish   bool
	Jobs         []job.Descriptor
}

// Plan is the fully expanded pipeline: every stage's descriptors in
// declaration order. It is the handoff structure between expansion and
// scheduling.
type Plan struct {
	Stages []StagePlan
}

// JobCount returns the total number of descriptors across all stages.
func (p *Plan) JobCount() int {
	n := 0
	for _, s := range p.Stages {
		n += len(s.Jobs)
	}
	return n
}

// Build validates the declaration, expands the matrix once, and groups one
// descriptor per stage-combination pair. A matrix stage runs the whole
// expanded matrix; any other stage runs a single job pinned to the axis
// values its declaration names.
func Build(model *config.Model) (*Plan, error) {
	if err := model.Validate(); err != nil {
		return nil, err
	}

	combos, err := Expand(model.Matrix)
	if err != nil {
		return nil, err
	}

	plan := &Plan{Stages: make([]StagePlan, 0, len(model.Stages))}
	for _, stage := range model.Stages {
		sp := StagePlan{
			Name:         stage.Name,
			AllowFailure: stage.AllowFailure,
			FastFinish:   stage.FastFinish || (stage.RunMatrix && model.Matrix.FastFinish),
		}

		if stage.RunMatrix {
			sp.Jobs = make([]job.Descriptor, 0, len(combos))
			for _, c := range combos {
				sp.Jobs = append(sp.Jobs, descriptor(model, stage, c))
			}
		} else {
			sp.Jobs = []job.Descriptor{descriptor(model, stage, pinned(model.Matrix.Axes, stage.Pin))}
		}

		plan.Stages = append(plan.Stages, sp)
	}

	return plan, nil
}

// pinned builds the degenerate combination of a single-job stage from its
// pin selector, in axis-declaration order.
func pinned(axes []config.Axis, pin config.Selector) job.Combination {
	var c job.Combination
	for _, a := range axes {
		if v, ok := pin[a.Name]; ok {
			c = append(c, job.Pair{Axis: a.Name, Value: v})
		}
	}
	return c
}

func descriptor(model *config.Model, stage *config.Stage, c job.Combination) job.Descriptor {
	id := stage.Name
	if len(c) > 0 {
		id += "/" + c.String()
	}

	tolerated := matchesAny(c, stage.AllowFailures)
	if stage.RunMatrix {
		tolerated = tolerated || matchesAny(c, model.Matrix.AllowFailures)
	}

	d := job.Descriptor{
		ID:           id,
		Stage:        stage.Name,
		Combination:  c,
		Hooks:        stage.Hooks,
		Env:          jobEnv(model.Env, c),
		AllowFailure: tolerated,
		Timeout:      stage.Timeout,
	}
	if len(model.Cache.Directories) > 0 {
		d.Cache = &model.Cache
	}
	return d
}

// jobEnv merges the global environment with the per-job axis variables
// (MATRIX_<AXIS>=<value>).
func jobEnv(global map[string]string, c job.Combination) map[string]string {
	env := make(map[string]string, len(global)+len(c))
	for k, v := range global {
		env[k] = v
	}
	for _, p := range c {
		env["MATRIX_"+envKey(p.Axis)] = p.Value
	}
	return env
}

// envKey upper-cases an axis name and replaces anything outside [A-Z0-9]
// with an underscore.
func envKey(name string) string {
	up := strings.ToUpper(name)
	var b strings.Builder
	b.Grow(len(up))
	for _, r := range up {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}
