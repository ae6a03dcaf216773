package transport

import (
	"context"
	"fmt"
)

// EventKind classifies an inbound chat event.
type EventKind int

const (
	// EventCommand is a slash command with optional arguments.
	EventCommand EventKind = iota
	// EventText is a free-text message.
	EventText
	// EventMedia is an uploaded video, audio, or document.
	EventMedia
	// EventButton is an inline button press carrying an opaque payload.
	EventButton
)

// String returns the event kind's metric/log label.
func (k EventKind) String() string {
	switch k {
	case EventCommand:
		return "command"
	case EventText:
		return "text"
	case EventMedia:
		return "media"
	case EventButton:
		return "button"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// MediaKind distinguishes uploaded media types.
type MediaKind int

const (
	// MediaVideo is a video upload.
	MediaVideo MediaKind = iota
	// MediaAudio is an audio upload.
	MediaAudio
	// MediaDocument is a generic file upload.
	MediaDocument
)

// MediaRef identifies an uploaded file at the transport without
// materializing it locally.
type MediaRef struct {
	FileID   string
	FileName string
	Kind     MediaKind
}

// Event is one inbound chat event, already scoped to a user.
type Event struct {
	UserID    int64
	ChatID    int64
	Kind      EventKind
	Command   string    // EventCommand: command name without the slash.
	Args      string    // EventCommand: trailing arguments.
	Text      string    // EventText: message body.
	Payload   string    // EventButton: opaque callback payload.
	Media     *MediaRef // EventMedia: the uploaded file.
	ReplyTo   *MediaRef // Media of the message this one replies to, if any.
	MessageID int64
}

// Button is one inline keyboard button.
type Button struct {
	Label   string
	Payload string
}

// Progress reports transfer advancement on a unidirectional channel.
type Progress struct {
	Transferred int64
	Total       int64 // 0 when unknown.
}

// TransferError reports a failed download or upload.
type TransferError struct {
	Direction string // "download" or "upload"
	Ref       string
	Err       error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Direction, e.Ref, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// Messenger sends outbound messages to a chat.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendButtons(ctx context.Context, chatID int64, text string, rows [][]Button) error
	// EditStatus rewrites a previously sent status message. Editing to
	// unchanged content is a no-op, not an error.
	EditStatus(ctx context.Context, chatID, messageID int64, text string) error
	SendStatus(ctx context.Context, chatID int64, text string) (messageID int64, err error)
	// SendVideo uploads a local file as a video message. Progress
	// updates are written to progress (when non-nil) and the channel
	// is closed when the upload ends, whatever the outcome.
	SendVideo(ctx context.Context, chatID int64, path, fileName, caption string, progress chan<- Progress) error
}

// Downloader materializes an uploaded file locally. Progress updates
// are written to progress (when non-nil) and the channel is closed when
// the transfer ends, whatever the outcome.
type Downloader interface {
	Download(ctx context.Context, ref *MediaRef, destDir string, progress chan<- Progress) (string, error)
}
