// Package engine executes video transformations using FFmpeg.
//
// It supports:
//   - Text watermark overlay with configurable opacity, anchor, and size
//   - Trimming a time range with re-encoding
//   - Merging two videos, losslessly when the streams are compatible
//   - Replacing a video's audio track
//
// Merging owns the fast-path/fallback decision: compatible inputs are
// concatenated via stream copy, incompatible ones are re-encoded to a
// fixed canonical target first. Every operation removes its partial
// output when the tool fails, so no failure leaves files behind.
//
// Transcoding is performed using FFmpeg and requires it to be installed
// and available in the system PATH (or configured via FFMPEG_PATH).
package engine
