package hcl

import (
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/matrixci/internal/config"
	"github.com/vk/matrixci/internal/schema"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// translate converts the HCL-specific pipeline schema into the agnostic
// config model.
func (l *Loader) translate(p *schema.Pipeline) (*config.Model, error) {
	model := &config.Model{
		Env:          map[string]string{},
		AfterSuccess: p.AfterSuccess,
	}

	for _, a := range p.Axes {
		model.Matrix.Axes = append(model.Matrix.Axes, config.Axis{Name: a.Name, Values: a.Values})
	}

	if p.Matrix != nil {
		model.Matrix.FastFinish = p.Matrix.FastFinish
		var err error
		if model.Matrix.Include, err = translateRules(p.Matrix.Include); err != nil {
			return nil, err
		}
		if model.Matrix.Exclude, err = translateRules(p.Matrix.Exclude); err != nil {
			return nil, err
		}
		if model.Matrix.AllowFailures, err = translateRules(p.Matrix.AllowFailures); err != nil {
			return nil, err
		}
	}

	for _, s := range p.Stages {
		stage, err := translateStage(s)
		if err != nil {
			return nil, err
		}
		model.Stages = append(model.Stages, stage)
	}

	if p.Env != nil {
		env, err := bodyToStrings(p.Env.Body)
		if err != nil {
			return nil, err
		}
		model.Env = env
	}

	if p.Cache != nil {
		model.Cache = config.Cache{
			Directories: p.Cache.Directories,
			LockFiles:   p.Cache.LockFiles,
		}
	}

	return model, nil
}

func translateStage(s *schema.Stage) (*config.Stage, error) {
	stage := &config.Stage{
		Name:      s.Name,
		RunMatrix: s.Matrix,
		Hooks: config.Hooks{
			BeforeScript: s.BeforeScript,
			Script:       s.Script,
			AfterSuccess: s.AfterSuccess,
			AfterFailure: s.AfterFailure,
		},
		AllowFailure: s.CanFail,
		FastFinish:   s.FastFinish,
	}

	var err error
	if stage.AllowFailures, err = translateRules(s.AllowFailures); err != nil {
		return nil, err
	}
	if s.Pin != nil {
		if stage.Pin, err = ruleToSelector(s.Pin); err != nil {
			return nil, err
		}
	}
	if s.Timeout != "" {
		stage.Timeout, err = time.ParseDuration(s.Timeout)
		if err != nil {
			return nil, config.Errorf("stage %q: invalid timeout %q", s.Name, s.Timeout)
		}
	}
	return stage, nil
}

func translateRules(rules []*schema.Rule) ([]config.Selector, error) {
	out := make([]config.Selector, 0, len(rules))
	for _, r := range rules {
		sel, err := ruleToSelector(r)
		if err != nil {
			return nil, err
		}
		out = append(out, sel)
	}
	return out, nil
}

// ruleToSelector evaluates a selector block's attributes into axis-value
// assignments.
func ruleToSelector(r *schema.Rule) (config.Selector, error) {
	values, err := bodyToStrings(r.Body)
	if err != nil {
		return nil, err
	}
	return config.Selector(values), nil
}

// bodyToStrings evaluates every attribute of a body and converts the
// results to strings. Declarations are static: expressions may not
// reference variables.
func bodyToStrings(body hcl.Body) (map[string]string, error) {
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return nil, config.Errorf("reading attributes: %s", diags.Error())
	}

	out := make(map[string]string, len(attrs))
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, config.Errorf("evaluating %q: %s", name, diags.Error())
		}
		strVal, err := convert.Convert(val, cty.String)
		if err != nil {
			return nil, config.Errorf("attribute %q is not convertible to a string: %v", name, err)
		}
		if strVal.IsNull() {
			return nil, config.Errorf("attribute %q is null", name)
		}
		out[name] = strVal.AsString()
	}
	return out, nil
}
