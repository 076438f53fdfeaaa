// Package job defines the immutable unit-of-execution types shared by the
// matrix expander, the executor, and the stage scheduler: the Descriptor
// created at expansion time and the Result produced by execution.
package job
