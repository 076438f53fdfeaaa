// Package schema defines the HCL block structures of a pipeline
// declaration file. The hcl loader decodes into these and translates them
// to the format-agnostic config model.
package schema

import "github.com/hashicorp/hcl/v2"

// Axis represents an `axis "<name>"` block: one matrix dimension.
type Axis struct {
	Name   string   `hcl:"name,label"`
	Values []string `hcl:"values"`
}

// Rule is a selector block (include, exclude, allow_failure, pin): its
// attributes are axis-value assignments.
type Rule struct {
	Body hcl.Body `hcl:",remain"`
}

// Matrix represents the `matrix` block with the expansion rules.
type Matrix struct {
	FastFinish    bool    `hcl:"fast_finish,optional"`
	Include       []*Rule `hcl:"include,block"`
	Exclude       []*Rule `hcl:"exclude,block"`
	AllowFailures []*Rule `hcl:"allow_failure,block"`
}

// Stage represents a `stage "<name>"` block. A stage with `matrix = true`
// runs one job per expanded combination; otherwise it runs a single job,
// optionally pinned to fixed axis values.
type Stage struct {
	Name          string   `hcl:"name,label"`
	Matrix        bool     `hcl:"matrix,optional"`
	Pin           *Rule    `hcl:"pin,block"`
	BeforeScript  []string `hcl:"before_script,optional"`
	Script        []string `hcl:"script,optional"`
	AfterSuccess  []string `hcl:"after_success,optional"`
	AfterFailure  []string `hcl:"after_failure,optional"`
	CanFail       bool     `hcl:"can_fail,optional"`
	AllowFailures []*Rule  `hcl:"allow_failure,block"`
	FastFinish    bool     `hcl:"fast_finish,optional"`
	Timeout       string   `hcl:"timeout,optional"`
}

// Env represents the `env` block; its attributes are arbitrary expressions
// evaluated at load time.
type Env struct {
	Body hcl.Body `hcl:",remain"`
}

// Cache represents the `cache` block.
type Cache struct {
	Directories []string `hcl:"directories"`
	LockFiles   []string `hcl:"lock_files,optional"`
}

// Pipeline represents the top-level structure of a declaration file.
type Pipeline struct {
	Axes         []*Axis  `hcl:"axis,block"`
	Matrix       *Matrix  `hcl:"matrix,block"`
	Stages       []*Stage `hcl:"stage,block"`
	Env          *Env     `hcl:"env,block"`
	Cache        *Cache   `hcl:"cache,block"`
	AfterSuccess []string `hcl:"after_success,optional"`
	Body         hcl.Body `hcl:",remain"`
}
