// Package metrics defines the Prometheus metrics exposed by the bot:
// job outcomes and durations, merge path selection, session counts, and
// transfer volume.
package metrics
