// Package progress turns a transfer's raw progress channel into
// throttled, idempotent status message edits. Redundant updates are
// silently dropped rather than treated as errors.
package progress
