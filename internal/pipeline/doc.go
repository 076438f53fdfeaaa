// Package pipeline drives a full run: stages in declared order, failure
// short-circuit, tolerated stage failures, the pipeline-level
// after_success hook, and the final verdict report.
package pipeline
