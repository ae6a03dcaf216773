package job

import (
	"fmt"
	"os"
	"time"

	"clipbot/internal/asset"
	"clipbot/internal/logging"

	"github.com/google/uuid"
)

// Kind identifies the transformation a job performs.
type Kind int

const (
	// Watermark overlays a text watermark on a video.
	Watermark Kind = iota
	// Trim cuts a time range out of a video.
	Trim
	// Merge concatenates two videos.
	Merge
	// AudioReplace swaps a video's audio track.
	AudioReplace
)

// String returns the kind's metric/log label.
func (k Kind) String() string {
	switch k {
	case Watermark:
		return "watermark"
	case Trim:
		return "trim"
	case Merge:
		return "merge"
	case AudioReplace:
		return "audio_replace"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Status is the lifecycle state of a job.
type Status int

const (
	// Pending means the job is created but not yet dispatched.
	Pending Status = iota
	// Running means the job has been handed to the transcode engine.
	Running
	// Succeeded means the job produced an output file.
	Succeeded
	// Failed means the job hit an error; no output survives.
	Failed
)

// String returns the status's metric/log label.
func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Job is one execution of a transformation against specific inputs.
type Job struct {
	ID         uuid.UUID
	Kind       Kind
	UserID     int64
	Status     Status
	Inputs     []*asset.MediaAsset
	OutputPath string // Set only once the job succeeds.
	OutputDir  string // Job-scoped directory holding the output, if any.
	CreatedAt  time.Time
}

// New creates a pending job owning the given inputs.
func New(kind Kind, userID int64, inputs ...*asset.MediaAsset) *Job {
	return &Job{
		ID:        uuid.New(),
		Kind:      kind,
		UserID:    userID,
		Status:    Pending,
		Inputs:    inputs,
		CreatedAt: time.Now(),
	}
}

// Cleanup releases every file the job owns: all downloaded inputs and,
// when present, the output and its job-scoped directory. It runs on
// every exit path and is safe to call more than once.
func (j *Job) Cleanup() {
	for _, a := range j.Inputs {
		a.Remove()
	}
	if j.OutputPath != "" {
		if err := os.Remove(j.OutputPath); err != nil && !os.IsNotExist(err) {
			logging.Warn("Failed to remove job output %s: %v", j.OutputPath, err)
		}
	}
	if j.OutputDir != "" {
		if err := os.Remove(j.OutputDir); err != nil && !os.IsNotExist(err) {
			logging.Warn("Failed to remove job output dir %s: %v", j.OutputDir, err)
		}
	}
}
