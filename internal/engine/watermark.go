package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// WatermarkParams is the snapshot of the session's watermark settings a
// single job runs with.
type WatermarkParams struct {
	Text     string
	Opacity  float64 // 0.0 (invisible) to 1.0 (opaque).
	Anchor   string  // One of the four anchor presets.
	FontSize int     // Pixels; taken directly from the configured width.
}

// Anchor presets. Unrecognized values fall back to AnchorTopRight.
const (
	AnchorTopLeft     = "top-left"
	AnchorTopRight    = "top-right"
	AnchorBottomLeft  = "bottom-left"
	AnchorBottomRight = "bottom-right"
)

const anchorMargin = 10

// anchorExpr maps an anchor preset to drawtext x/y expressions. W/H are
// the frame dimensions, tw/th the rendered text box.
func anchorExpr(anchor string) (x, y string) {
	switch anchor {
	case AnchorTopLeft:
		return "10", "10"
	case AnchorBottomLeft:
		return "10", "H-th-10"
	case AnchorBottomRight:
		return "W-tw-10", "H-th-10"
	case AnchorTopRight:
		return "W-tw-10", "10"
	default:
		// Stale button payloads degrade to the default corner.
		return "W-tw-10", "10"
	}
}

// watermarkFilter builds the drawtext filter expression for the params.
func watermarkFilter(p WatermarkParams) string {
	x, y := anchorExpr(p.Anchor)
	return fmt.Sprintf("drawtext=text='%s':fontcolor=white@%s:fontsize=%d:x=%s:y=%s",
		escapeDrawtext(p.Text),
		strconv.FormatFloat(p.Opacity, 'g', -1, 64),
		p.FontSize,
		x, y,
	)
}

// escapeDrawtext escapes characters that are special inside a quoted
// drawtext value (filter-graph metacharacters and the quote itself).
func escapeDrawtext(text string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		`:`, `\:`,
		`%`, `\%`,
	)
	return r.Replace(text)
}

// Watermark overlays the configured text on the input video. origName
// is the display name of the source file; the output keeps it with a
// "watermarked_" prefix, matching what the user will receive.
func (e *Engine) Watermark(ctx context.Context, inputPath, origName string, p WatermarkParams) (string, error) {
	name := strings.TrimSpace(origName)
	if name == "" {
		name = filepath.Base(inputPath)
	}

	dir, err := e.makeOutputDir()
	if err != nil {
		return "", err
	}
	out := filepath.Join(dir, "watermarked_"+sanitizeName(name))
	args := append(baseArgs(),
		"-i", inputPath,
		"-vf", watermarkFilter(p),
		"-c:a", "copy",
		out,
	)

	if err := e.execute(ctx, "watermark", args, out); err != nil {
		return "", err
	}
	return out, nil
}
