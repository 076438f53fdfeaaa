// Package hcl implements the config.Loader interface for HCL pipeline
// declaration files.
package hcl
