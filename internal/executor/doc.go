// Package executor runs a single job's command sequence as ordered,
// scoped subprocesses: before_script, script, then after_success or
// after_failure. The Spawner interface is the engine's only boundary to
// the operating system.
package executor
