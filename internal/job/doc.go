// Package job defines the lifecycle of a single transformation run:
// kind, status transitions, owned input/output files, and the cleanup
// discipline that releases them.
package job
