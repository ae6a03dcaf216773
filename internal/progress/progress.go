package progress

import (
	"context"
	"fmt"
	"time"

	"clipbot/internal/logging"
	"clipbot/internal/transport"
)

// Editor rewrites a previously sent status message. Satisfied by
// transport.Messenger implementations; editing to unchanged content
// must be a no-op.
type Editor interface {
	EditStatus(ctx context.Context, chatID, messageID int64, text string) error
}

// Reporter drains a transfer's progress channel and surfaces throttled,
// idempotent status edits. One reporter serves one transfer.
type Reporter struct {
	editor    Editor
	chatID    int64
	messageID int64
	label     string
	interval  time.Duration

	lastText string
	lastEdit time.Time
	now      func() time.Time
}

// NewReporter creates a reporter editing the given status message.
// label prefixes every rendered update ("Downloading", "Uploading").
func NewReporter(editor Editor, chatID, messageID int64, label string, interval time.Duration) *Reporter {
	return &Reporter{
		editor:    editor,
		chatID:    chatID,
		messageID: messageID,
		label:     label,
		interval:  interval,
		now:       time.Now,
	}
}

// Consume drains updates until the channel closes or ctx is canceled.
// Updates arriving faster than the configured interval are dropped, as
// are updates whose rendered text matches the previous edit.
func (r *Reporter) Consume(ctx context.Context, updates <-chan transport.Progress) {
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-updates:
			if !ok {
				return
			}
			r.report(ctx, p)
		}
	}
}

func (r *Reporter) report(ctx context.Context, p transport.Progress) {
	now := r.now()
	if !r.lastEdit.IsZero() && now.Sub(r.lastEdit) < r.interval {
		return
	}

	text := render(r.label, p)
	if text == r.lastText {
		return
	}

	if err := r.editor.EditStatus(ctx, r.chatID, r.messageID, text); err != nil {
		// Progress is best effort; the transfer itself decides success.
		logging.Debug("Progress edit failed: %v", err)
		return
	}
	r.lastText = text
	r.lastEdit = now
}

// render formats one progress line. With a known total it shows a
// percentage, otherwise the transferred byte count.
func render(label string, p transport.Progress) string {
	if p.Total > 0 {
		pct := p.Transferred * 100 / p.Total
		if pct > 100 {
			pct = 100
		}
		return fmt.Sprintf("%s... %d%%", label, pct)
	}
	return fmt.Sprintf("%s... %s", label, formatBytes(p.Transferred))
}

// formatBytes renders a byte count in a human unit.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
