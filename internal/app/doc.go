// Package app is the composition root: it owns the application
// configuration and logger, loads the pipeline declaration, and wires the
// matrix expander, cache manager, executor, scheduler, and coordinator
// into one run.
package app
