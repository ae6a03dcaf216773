package engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"clipbot/internal/logging"
	"clipbot/internal/probe"

	"github.com/google/uuid"
)

// Canonical target used by the merge fallback path. Two incompatible
// inputs are both re-encoded to this shape before concatenation. Not
// user-configurable.
const (
	canonWidth      = 1280
	canonHeight     = 720
	canonFrameRate  = 30
	canonVideoCodec = "libx264"
	canonAudioCodec = "aac"
	canonPreset     = "fast"
	canonCRF        = "23"
)

// TranscodeError reports a failed ffmpeg invocation, carrying the tail
// of the tool's stderr for diagnostics.
type TranscodeError struct {
	Op     string
	Stderr string
	Err    error
}

func (e *TranscodeError) Error() string {
	return fmt.Sprintf("%s: ffmpeg failed: %v", e.Op, e.Err)
}

func (e *TranscodeError) Unwrap() error { return e.Err }

// StreamProber probes a local file's first video stream. Satisfied by
// *probe.Prober.
type StreamProber interface {
	Probe(ctx context.Context, path string) (*probe.StreamInfo, error)
}

// runFunc executes an external command and returns its captured stderr.
// Injectable for tests.
type runFunc func(ctx context.Context, name string, args []string) (stderr string, err error)

// Engine executes transcode operations by shelling out to ffmpeg.
// Every operation blocks until the tool exits; callers are expected to
// schedule operations off any single-threaded dispatch path.
type Engine struct {
	ffmpegPath string
	workDir    string
	prober     StreamProber
	run        runFunc
}

// New creates an Engine writing outputs and intermediates under workDir.
func New(ffmpegPath, workDir string, prober StreamProber) *Engine {
	return &Engine{
		ffmpegPath: ffmpegPath,
		workDir:    workDir,
		prober:     prober,
		run:        runCommand,
	}
}

func runCommand(ctx context.Context, name string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.String(), err
}

// execute runs one ffmpeg invocation. On any failure the (possibly
// partial) output file is removed before the error is returned, so no
// operation ever leaves a half-written output behind. A job-scoped
// output directory is removed along with it.
func (e *Engine) execute(ctx context.Context, op string, args []string, outputPath string) error {
	logging.Debug("%s: %s %s", op, e.ffmpegPath, strings.Join(args, " "))

	stderr, err := e.run(ctx, e.ffmpegPath, args)
	if err != nil {
		if rmErr := os.Remove(outputPath); rmErr != nil && !os.IsNotExist(rmErr) {
			logging.Warn("Failed to remove partial output %s: %v", outputPath, rmErr)
		}
		if dir := filepath.Dir(outputPath); dir != filepath.Clean(e.workDir) {
			_ = os.Remove(dir)
		}
		return &TranscodeError{Op: op, Stderr: stderrTail(stderr), Err: err}
	}
	return nil
}

// makeOutputDir reserves a fresh directory for one output. Operations
// whose output keeps a user-supplied name write into it so two
// concurrent jobs with the same name never share a path.
func (e *Engine) makeOutputDir() (string, error) {
	dir := filepath.Join(e.workDir, "out_"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	return dir, nil
}

// Trim re-encodes the sub-range [startSec, endSec) of the input.
// The caller must have validated 0 <= startSec < endSec already.
func (e *Engine) Trim(ctx context.Context, inputPath string, startSec, endSec float64) (string, error) {
	if startSec < 0 || startSec >= endSec {
		return "", fmt.Errorf("trim: invalid range %s-%s", formatSeconds(startSec), formatSeconds(endSec))
	}

	out := filepath.Join(e.workDir, "trim_"+uuid.NewString()+".mp4")
	args := append(baseArgs(),
		"-i", inputPath,
		"-ss", formatSeconds(startSec),
		"-to", formatSeconds(endSec),
		"-c:v", canonVideoCodec,
		"-preset", canonPreset,
		"-crf", canonCRF,
		"-c:a", canonAudioCodec,
		out,
	)

	if err := e.execute(ctx, "trim", args, out); err != nil {
		return "", err
	}
	return out, nil
}

// ReplaceAudio copies the input video stream unchanged, maps the first
// audio stream of audioPath over it, and truncates to the shorter of
// the two inputs. The output is named <baseName>.mp4 inside a
// job-scoped directory.
func (e *Engine) ReplaceAudio(ctx context.Context, videoPath, audioPath, baseName string) (string, error) {
	base := strings.TrimSpace(baseName)
	if base == "" {
		return "", fmt.Errorf("replace audio: empty output name")
	}

	dir, err := e.makeOutputDir()
	if err != nil {
		return "", err
	}
	out := filepath.Join(dir, sanitizeName(base)+".mp4")
	args := append(baseArgs(),
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", canonAudioCodec,
		"-shortest",
		out,
	)

	if err := e.execute(ctx, "replace audio", args, out); err != nil {
		return "", err
	}
	return out, nil
}

// baseArgs returns the shared ffmpeg preamble.
func baseArgs() []string {
	return []string{"-hide_banner", "-nostdin", "-y", "-loglevel", "error"}
}

// formatSeconds renders a seconds value without trailing zeros.
func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', -1, 64)
}

// sanitizeName strips path components and separators from a user or
// message supplied file name.
func sanitizeName(name string) string {
	name = filepath.Base(name)
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':':
			return '_'
		}
		return r
	}, name)
}

// stderrTail keeps the last lines of ffmpeg stderr for diagnostics.
func stderrTail(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	if len(lines) > 20 {
		lines = lines[len(lines)-20:]
	}
	return strings.Join(lines, "\n")
}
