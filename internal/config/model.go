package config

import "time"

// Model is the unified, format-agnostic representation of an entire
// pipeline declaration: the build matrix, the ordered stages, global
// environment, cache directives, and the pipeline-level success hook.
type Model struct {
	Matrix       Matrix
	Stages       []*Stage
	Env          map[string]string
	Cache        Cache
	AfterSuccess []string
}

// Axis is a named dimension of the build matrix with an ordered, discrete
// value set.
type Axis struct {
	Name   string
	Values []string
}

// Selector maps axis names to required values. A selector matches a
// combination when every named axis carries the named value; axes absent
// from the selector are unconstrained.
type Selector map[string]string

// Matrix declares the cross-product dimensions plus the explicit
// include/exclude rules and the failure-tolerance selectors applied to the
// expanded combinations.
type Matrix struct {
	Axes          []Axis
	Include       []Selector
	Exclude       []Selector
	AllowFailures []Selector
	FastFinish    bool
}

// Hooks holds the ordered command lists for each phase of a job.
type Hooks struct {
	BeforeScript []string
	Script       []string
	AfterSuccess []string
	AfterFailure []string
}

// Stage is one ordered phase of the pipeline. A matrix stage runs one job
// per expanded combination; a non-matrix stage runs a single job, optionally
// pinned to fixed axis values via Pin.
type Stage struct {
	Name          string
	RunMatrix     bool
	Pin           Selector
	Hooks         Hooks
	AllowFailures []Selector
	AllowFailure  bool
	FastFinish    bool
	Timeout       time.Duration
}

// Cache names the directories persisted between jobs and the lock files
// whose contents feed the cache key fingerprint.
type Cache struct {
	Directories []string
	LockFiles   []string
}
