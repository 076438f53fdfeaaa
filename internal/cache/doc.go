// Package cache implements the keyed build cache shared by concurrent
// jobs. Keys are content digests derived from a job's axis values and a
// fingerprint of the declared lock files, so the cache invalidates itself
// when the toolchain or dependency set changes. Cache absence is always a
// valid, slower path: fetch and store failures degrade to a miss and are
// never fatal.
package cache
