package session

import (
	"fmt"

	"clipbot/internal/asset"
	"clipbot/internal/transport"
)

// PendingAction is the step a user's multi-message flow is waiting on.
type PendingAction int

const (
	// None means no flow is in progress.
	None PendingAction = iota
	// AwaitingWatermarkText means the next text message becomes the watermark text.
	AwaitingWatermarkText
	// AwaitingTrimRange means the next text message is a "<start> <end>" range.
	AwaitingTrimRange
	// AwaitingSecondMergeInput means the next media upload is the second merge input.
	AwaitingSecondMergeInput
	// AwaitingAudioFile means the next audio/document upload is the replacement track.
	AwaitingAudioFile
	// AwaitingOutputName means the next text message names the audio-replace output.
	AwaitingOutputName
)

// String returns the pending action's log label.
func (p PendingAction) String() string {
	switch p {
	case None:
		return "none"
	case AwaitingWatermarkText:
		return "awaiting_watermark_text"
	case AwaitingTrimRange:
		return "awaiting_trim_range"
	case AwaitingSecondMergeInput:
		return "awaiting_second_merge_input"
	case AwaitingAudioFile:
		return "awaiting_audio_file"
	case AwaitingOutputName:
		return "awaiting_output_name"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// WatermarkSettings is session-scoped watermark configuration. It
// survives across watermark jobs until the user replaces it.
type WatermarkSettings struct {
	Text    string  // Empty until set via the add-watermark flow.
	Opacity float64 // 1.0 opaque down to 0.0 invisible.
	Anchor  string
	Width   int // Pixels; doubles as the drawtext font size.
}

// DefaultWatermarkSettings mirrors the defaults of a fresh session:
// full opacity, top-right corner, 100px.
func DefaultWatermarkSettings() WatermarkSettings {
	return WatermarkSettings{
		Opacity: 1.0,
		Anchor:  "top-right",
		Width:   100,
	}
}

// Session is the per-user record of the flow currently in progress and
// the inputs collected so far. At most one pending action exists per
// user at any time.
type Session struct {
	UserID    int64
	Pending   PendingAction
	Watermark WatermarkSettings

	// Inputs collected for the in-flight flow.
	PendingMedia *transport.MediaRef // Video awaiting trim range or audio replacement.
	FirstVideo   *asset.MediaAsset   // Downloaded first merge input.
	AudioRef     *transport.MediaRef // Replacement audio awaiting an output name.
}

// ResetFlow clears the in-flight flow state while keeping the
// session-scoped watermark settings.
func (s *Session) ResetFlow() {
	s.Pending = None
	s.PendingMedia = nil
	s.FirstVideo = nil
	s.AudioRef = nil
}
