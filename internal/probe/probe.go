package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Error reports a failed probe of a local media file. A file that fails
// to probe will not become valid later, so callers must not retry.
type Error struct {
	Path   string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("probe %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("probe %s: %s", e.Path, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Rational is an exact frame rate, kept as a fraction so two streams can
// be compared without floating-point drift (e.g. 30000/1001 vs 29.97).
type Rational struct {
	Num int
	Den int
}

// String returns the ffmpeg-style "num/den" form.
func (r Rational) String() string {
	return strconv.Itoa(r.Num) + "/" + strconv.Itoa(r.Den)
}

// Float returns the approximate frames per second, 0 when undefined.
func (r Rational) Float() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// StreamInfo describes the first video stream of a probed file.
type StreamInfo struct {
	Codec     string
	Width     int
	Height    int
	FrameRate Rational
	Duration  float64 // Container duration in seconds.
}

// Prober runs ffprobe against local files.
type Prober struct {
	ffprobePath string
}

// New creates a Prober invoking the given ffprobe binary.
func New(ffprobePath string) *Prober {
	return &Prober{ffprobePath: ffprobePath}
}

// Probe runs a single ffprobe JSON call against path and extracts the
// first video stream's properties plus the container duration.
func (p *Prober) Probe(ctx context.Context, path string) (*StreamInfo, error) {
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format", "-show_streams",
		path,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		reason := "ffprobe failed"
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			reason += ": " + msg
		}
		return nil, &Error{Path: path, Reason: reason, Err: err}
	}

	return ParseJSON(path, out)
}

// ParseJSON converts raw ffprobe JSON output into a StreamInfo.
// Exported for testing without a real ffprobe binary.
func ParseJSON(path string, data []byte) (*StreamInfo, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &Error{Path: path, Reason: "parse ffprobe JSON", Err: err}
	}

	for i := range raw.Streams {
		s := &raw.Streams[i]
		if s.CodecType != "video" {
			continue
		}
		return &StreamInfo{
			Codec:     s.CodecName,
			Width:     s.Width,
			Height:    s.Height,
			FrameRate: parseRational(s.AvgFrameRate),
			Duration:  parseFloat(raw.Format.Duration),
		}, nil
	}

	return nil, &Error{Path: path, Reason: "no video stream"}
}

// --- ffprobe JSON wire types ---

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
}

type ffprobeStream struct {
	CodecName    string `json:"codec_name"`
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	AvgFrameRate string `json:"avg_frame_rate"`
}

// --- Numeric parsing helpers (ffprobe returns numbers as strings) ---

// parseRational parses ffprobe's "num/den" frame rate form. A bare
// integer is treated as den=1; anything unparsable yields 0/0.
func parseRational(s string) Rational {
	s = strings.TrimSpace(s)
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		n, err := strconv.Atoi(num)
		if err != nil {
			return Rational{}
		}
		return Rational{Num: n, Den: 1}
	}
	n, err1 := strconv.Atoi(num)
	d, err2 := strconv.Atoi(den)
	if err1 != nil || err2 != nil {
		return Rational{}
	}
	return Rational{Num: n, Den: d}
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}
