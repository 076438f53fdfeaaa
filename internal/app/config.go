package app

import (
	"fmt"
	"time"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	PipelinePath  string
	Workdir       string
	CacheDir      string
	CacheEndpoint string
	CacheBucket   string
	Workers       int
	JobTimeout    time.Duration
	LogFormat     string
	LogLevel      string
	DryRun        bool
}

// NewConfig validates a Config and applies defaults.
func NewConfig(c Config) (*Config, error) {
	if c.PipelinePath == "" {
		return nil, fmt.Errorf("pipeline path must not be empty")
	}
	if c.Workdir == "" {
		c.Workdir = "."
	}
	if c.Workers < 1 {
		c.Workers = 4
	}
	if c.JobTimeout < 0 {
		return nil, fmt.Errorf("job timeout must not be negative")
	}
	if c.CacheBucket != "" && c.CacheEndpoint == "" {
		return nil, fmt.Errorf("cache bucket requires a cache endpoint")
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return &c, nil
}
