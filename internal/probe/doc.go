// Package probe extracts video stream metadata from local files using a
// single ffprobe JSON invocation.
//
// Frame rates are kept as exact rationals so stream compatibility checks
// (e.g. for lossless concatenation) never compare floats.
package probe
