// Package config defines the format-agnostic model of a pipeline
// declaration and the Loader interface implemented by format-specific
// loaders (HCL, YAML). The engine packages consume only this model and
// never import a loader.
package config
