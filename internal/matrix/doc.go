// Package matrix expands a declared build matrix into the deterministic,
// ordered set of axis-value combinations and groups the resulting job
// descriptors by stage. Expansion is the last point where a declaration
// error can surface; everything downstream works on concrete descriptors.
package matrix
