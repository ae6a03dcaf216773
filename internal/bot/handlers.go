package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"clipbot/internal/engine"
	"clipbot/internal/job"
	"clipbot/internal/logging"
	"clipbot/internal/session"
	"clipbot/internal/transport"
)

// User-facing texts. These are the contract with the chat surface, so
// they live in one place.
const (
	msgWelcome = "Welcome! I can watermark, trim, and merge videos, and replace a video's audio track. " +
		"Use /add_watermark to set a watermark, or send me a video to get started."
	msgUnknownCommand = "Unknown command. Use /start to see what I can do."

	msgAskWatermarkText = "Please send the text you want to use as a watermark."
	msgWatermarkSaved   = "Watermark added successfully!"
	msgNoWatermarkText  = "Please set a watermark text first using /add_watermark."
	msgReplyToVideo     = "Please reply to a video or document file to add the watermark."
	msgAdjustWatermark  = "Adjust watermark settings:"

	msgChooseAction     = "What would you like to do with this video?"
	msgAskTrimRange     = "Please send the trim range as \"<start> <end>\" in seconds."
	msgBadTrimRange     = "Please send the range as \"<start> <end>\" in seconds, for example \"5 20\"."
	msgAskSecondVideo   = "Got it. Now send the second video to merge."
	msgSendVideoToMerge = "Please send a video to merge."

	msgReplyForAudio   = "Please reply to a video to replace its audio track."
	msgAskAudioFile    = "Please send the audio file to use as the new track."
	msgSendAudioFile   = "Please send an audio file."
	msgAskOutputName   = "Please send a name for the output file."
	msgEmptyOutputName = "Please send a non-empty name for the output file."

	msgFinishStep   = "Please complete the current step first."
	msgNotExpecting = "I wasn't expecting that. Use /start to see what I can do."
	msgSendVideoTip = "Please send a video first."
	msgBusy         = "I'm still working on your earlier messages. Please try again in a moment."
)

// Captions attached to delivered outputs.
const (
	captionWatermark    = "Here's your watermarked video!"
	captionTrim         = "Here's your trimmed video!"
	captionMerge        = "Here's your merged video!"
	captionAudioReplace = "Here's your video with the new audio!"
)

func (b *Bot) handleCommand(ctx context.Context, ev transport.Event) error {
	switch ev.Command {
	case "start":
		return b.messenger.SendText(ctx, ev.ChatID, msgWelcome)

	case "add_watermark":
		if s := b.store.Get(ev.UserID); s.Pending != session.None {
			return &StateError{Message: msgFinishStep}
		}
		b.store.Update(ev.UserID, func(s *session.Session) {
			s.Pending = session.AwaitingWatermarkText
		})
		return b.messenger.SendText(ctx, ev.ChatID, msgAskWatermarkText)

	case "edit_watermark":
		rows := [][]transport.Button{
			{{Label: "Transparency", Payload: "set_transparency"}},
			{{Label: "Position", Payload: "set_position"}},
			{{Label: "Width", Payload: "set_width"}},
		}
		return b.messenger.SendButtons(ctx, ev.ChatID, msgAdjustWatermark, rows)

	case "watermark":
		return b.startWatermarkJob(ctx, ev)

	case "merge_video_audio":
		if s := b.store.Get(ev.UserID); s.Pending != session.None {
			return &StateError{Message: msgFinishStep}
		}
		if !isVideoRef(ev.ReplyTo) {
			return &ValidationError{Message: msgReplyForAudio}
		}
		ref := ev.ReplyTo
		b.store.Update(ev.UserID, func(s *session.Session) {
			s.PendingMedia = ref
			s.Pending = session.AwaitingAudioFile
		})
		return b.messenger.SendText(ctx, ev.ChatID, msgAskAudioFile)

	default:
		return b.messenger.SendText(ctx, ev.ChatID, msgUnknownCommand)
	}
}

// startWatermarkJob validates the watermark preconditions and runs the
// job. Order matters: the text check comes before anything touches the
// network or a tool.
func (b *Bot) startWatermarkJob(ctx context.Context, ev transport.Event) error {
	s := b.store.Get(ev.UserID)
	if s.Pending != session.None {
		return &StateError{Message: msgFinishStep}
	}
	if strings.TrimSpace(s.Watermark.Text) == "" {
		return &StateError{Message: msgNoWatermarkText}
	}
	if !isVideoRef(ev.ReplyTo) {
		return &ValidationError{Message: msgReplyToVideo}
	}

	ref := ev.ReplyTo
	params := engine.WatermarkParams{
		Text:     s.Watermark.Text,
		Opacity:  s.Watermark.Opacity,
		Anchor:   s.Watermark.Anchor,
		FontSize: s.Watermark.Width,
	}

	j := job.New(job.Watermark, ev.UserID)
	return b.runJob(ctx, ev.ChatID, j, captionWatermark, func(ctx context.Context) (string, error) {
		in, err := b.download(ctx, ev.ChatID, ref)
		if err != nil {
			return "", err
		}
		j.Inputs = append(j.Inputs, in)
		return b.engine.Watermark(ctx, in.LocalPath, ref.FileName, params)
	})
}

func (b *Bot) handleText(ctx context.Context, ev transport.Event) error {
	s := b.store.Get(ev.UserID)

	switch s.Pending {
	case session.AwaitingWatermarkText:
		b.store.Update(ev.UserID, func(s *session.Session) {
			s.Watermark.Text = ev.Text
			s.Pending = session.None
		})
		return b.messenger.SendText(ctx, ev.ChatID, msgWatermarkSaved)

	case session.AwaitingTrimRange:
		start, end, err := parseTrimRange(ev.Text)
		if err != nil {
			// State unchanged so the user can just resend the range.
			return err
		}
		ref := s.PendingMedia
		if ref == nil {
			return &StateError{Message: msgSendVideoTip}
		}
		b.store.Update(ev.UserID, func(s *session.Session) { s.ResetFlow() })

		j := job.New(job.Trim, ev.UserID)
		return b.runJob(ctx, ev.ChatID, j, captionTrim, func(ctx context.Context) (string, error) {
			in, err := b.download(ctx, ev.ChatID, ref)
			if err != nil {
				return "", err
			}
			j.Inputs = append(j.Inputs, in)
			return b.engine.Trim(ctx, in.LocalPath, start, end)
		})

	case session.AwaitingOutputName:
		name := strings.TrimSpace(ev.Text)
		if name == "" {
			return &ValidationError{Message: msgEmptyOutputName}
		}
		videoRef, audioRef := s.PendingMedia, s.AudioRef
		if videoRef == nil || audioRef == nil {
			return &StateError{Message: msgNotExpecting}
		}
		b.store.Update(ev.UserID, func(s *session.Session) { s.ResetFlow() })

		j := job.New(job.AudioReplace, ev.UserID)
		return b.runJob(ctx, ev.ChatID, j, captionAudioReplace, func(ctx context.Context) (string, error) {
			video, err := b.download(ctx, ev.ChatID, videoRef)
			if err != nil {
				return "", err
			}
			j.Inputs = append(j.Inputs, video)

			audio, err := b.download(ctx, ev.ChatID, audioRef)
			if err != nil {
				return "", err
			}
			j.Inputs = append(j.Inputs, audio)

			return b.engine.ReplaceAudio(ctx, video.LocalPath, audio.LocalPath, name)
		})

	default:
		return &StateError{Message: msgNotExpecting}
	}
}

func (b *Bot) handleMedia(ctx context.Context, ev transport.Event) error {
	s := b.store.Get(ev.UserID)

	switch s.Pending {
	case session.None:
		if !isVideoRef(ev.Media) {
			return &StateError{Message: msgNotExpecting}
		}
		media := ev.Media
		b.store.Update(ev.UserID, func(s *session.Session) { s.PendingMedia = media })
		rows := [][]transport.Button{{
			{Label: "Trim", Payload: "choose_trim"},
			{Label: "Merge", Payload: "choose_merge"},
		}}
		return b.messenger.SendButtons(ctx, ev.ChatID, msgChooseAction, rows)

	case session.AwaitingSecondMergeInput:
		if !isVideoRef(ev.Media) {
			return &ValidationError{Message: msgSendVideoToMerge}
		}
		first := s.FirstVideo
		if first == nil {
			return &StateError{Message: msgSendVideoTip}
		}
		second := ev.Media
		b.store.Update(ev.UserID, func(s *session.Session) { s.ResetFlow() })

		j := job.New(job.Merge, ev.UserID, first)
		return b.runJob(ctx, ev.ChatID, j, captionMerge, func(ctx context.Context) (string, error) {
			in, err := b.download(ctx, ev.ChatID, second)
			if err != nil {
				return "", err
			}
			j.Inputs = append(j.Inputs, in)
			return b.engine.Merge(ctx, first, in)
		})

	case session.AwaitingAudioFile:
		if !isAudioRef(ev.Media) {
			return &ValidationError{Message: msgSendAudioFile}
		}
		media := ev.Media
		b.store.Update(ev.UserID, func(s *session.Session) {
			s.AudioRef = media
			s.Pending = session.AwaitingOutputName
		})
		return b.messenger.SendText(ctx, ev.ChatID, msgAskOutputName)

	default:
		return &StateError{Message: msgFinishStep}
	}
}

func (b *Bot) handleButton(ctx context.Context, ev transport.Event) error {
	switch {
	case ev.Payload == "set_transparency":
		rows := [][]transport.Button{
			{{Label: "100%", Payload: "opacity_1.0"}},
			{{Label: "75%", Payload: "opacity_0.75"}},
			{{Label: "50%", Payload: "opacity_0.5"}},
			{{Label: "25%", Payload: "opacity_0.25"}},
		}
		return b.messenger.SendButtons(ctx, ev.ChatID, "Choose watermark transparency:", rows)

	case ev.Payload == "set_position":
		rows := [][]transport.Button{
			{{Label: "Top Right", Payload: "position_top-right"}},
			{{Label: "Top Left", Payload: "position_top-left"}},
			{{Label: "Bottom Right", Payload: "position_bottom-right"}},
			{{Label: "Bottom Left", Payload: "position_bottom-left"}},
		}
		return b.messenger.SendButtons(ctx, ev.ChatID, "Choose watermark position:", rows)

	case ev.Payload == "set_width":
		rows := [][]transport.Button{
			{{Label: "100px", Payload: "width_100"}},
			{{Label: "200px", Payload: "width_200"}},
			{{Label: "300px", Payload: "width_300"}},
		}
		return b.messenger.SendButtons(ctx, ev.ChatID, "Choose watermark width:", rows)

	case strings.HasPrefix(ev.Payload, "opacity_"):
		v, err := strconv.ParseFloat(strings.TrimPrefix(ev.Payload, "opacity_"), 64)
		if err != nil || v < 0 || v > 1 {
			logging.Debug("Ignoring bad opacity payload %q", ev.Payload)
			return nil
		}
		b.store.Update(ev.UserID, func(s *session.Session) { s.Watermark.Opacity = v })
		return b.messenger.SendText(ctx, ev.ChatID, fmt.Sprintf("Transparency set to %d%%", int(v*100)))

	case strings.HasPrefix(ev.Payload, "position_"):
		anchor := strings.TrimPrefix(ev.Payload, "position_")
		b.store.Update(ev.UserID, func(s *session.Session) { s.Watermark.Anchor = anchor })
		return b.messenger.SendText(ctx, ev.ChatID, "Position set to "+titleCase(anchor))

	case strings.HasPrefix(ev.Payload, "width_"):
		n, err := strconv.Atoi(strings.TrimPrefix(ev.Payload, "width_"))
		if err != nil || n <= 0 {
			logging.Debug("Ignoring bad width payload %q", ev.Payload)
			return nil
		}
		b.store.Update(ev.UserID, func(s *session.Session) { s.Watermark.Width = n })
		return b.messenger.SendText(ctx, ev.ChatID, fmt.Sprintf("Watermark width set to %dpx", n))

	case ev.Payload == "choose_trim":
		s := b.store.Get(ev.UserID)
		if s.Pending != session.None {
			return &StateError{Message: msgFinishStep}
		}
		if s.PendingMedia == nil {
			return &StateError{Message: msgSendVideoTip}
		}
		b.store.Update(ev.UserID, func(s *session.Session) {
			s.Pending = session.AwaitingTrimRange
		})
		return b.messenger.SendText(ctx, ev.ChatID, msgAskTrimRange)

	case ev.Payload == "choose_merge":
		s := b.store.Get(ev.UserID)
		if s.Pending != session.None {
			return &StateError{Message: msgFinishStep}
		}
		if s.PendingMedia == nil {
			return &StateError{Message: msgSendVideoTip}
		}
		first, err := b.download(ctx, ev.ChatID, s.PendingMedia)
		if err != nil {
			return err
		}
		b.store.Update(ev.UserID, func(s *session.Session) {
			s.FirstVideo = first
			s.PendingMedia = nil
			s.Pending = session.AwaitingSecondMergeInput
		})
		return b.messenger.SendText(ctx, ev.ChatID, msgAskSecondVideo)

	default:
		logging.Debug("Ignoring unknown button payload %q", ev.Payload)
		return nil
	}
}

// parseTrimRange parses "<start> <end>" in seconds and enforces
// 0 <= start < end before anything is downloaded or invoked.
func parseTrimRange(text string) (start, end float64, err error) {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return 0, 0, &ValidationError{Message: msgBadTrimRange}
	}
	start, err1 := strconv.ParseFloat(fields[0], 64)
	end, err2 := strconv.ParseFloat(fields[1], 64)
	if err1 != nil || err2 != nil {
		return 0, 0, &ValidationError{Message: msgBadTrimRange}
	}
	if start < 0 || start >= end {
		return 0, 0, &ValidationError{Message: msgBadTrimRange}
	}
	return start, end, nil
}

// isVideoRef reports whether the reference can serve as a video input.
// Documents are accepted since video uploads often arrive as files.
func isVideoRef(ref *transport.MediaRef) bool {
	return ref != nil && (ref.Kind == transport.MediaVideo || ref.Kind == transport.MediaDocument)
}

// isAudioRef reports whether the reference can serve as an audio input.
func isAudioRef(ref *transport.MediaRef) bool {
	return ref != nil && (ref.Kind == transport.MediaAudio || ref.Kind == transport.MediaDocument)
}

// titleCase renders an anchor id ("bottom-left") as display text
// ("Bottom Left").
func titleCase(s string) string {
	words := strings.Fields(strings.ReplaceAll(s, "-", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
