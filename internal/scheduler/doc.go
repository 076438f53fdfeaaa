// Package scheduler runs all jobs of one stage concurrently under a
// bounded worker limit and decides the stage outcome from the
// allow-failure policy. It is the only concurrency-coordinating component
// of the engine.
package scheduler
