// Package yaml implements the config.Loader interface for YAML pipeline
// declaration files, mirroring the HCL format.
package yaml
