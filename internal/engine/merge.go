package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"clipbot/internal/asset"
	"clipbot/internal/logging"
	"clipbot/internal/metrics"
	"clipbot/internal/probe"

	"github.com/google/uuid"
)

// CanConcat reports whether two video streams can be concatenated via
// stream copy. The fast path requires codec, width, height, and exact
// frame-rate rational to all match; any single mismatch forces the
// re-encoding fallback.
func CanConcat(a, b *probe.StreamInfo) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Codec == b.Codec &&
		a.Width == b.Width &&
		a.Height == b.Height &&
		a.FrameRate == b.FrameRate
}

// Merge concatenates two videos into one output. Compatible inputs are
// concatenated losslessly via the concat demuxer with stream copy;
// otherwise both inputs are first re-encoded to the canonical target
// and the canonical files concatenated with re-encoding. Canonical
// intermediates are always deleted, whatever the concat outcome.
func (e *Engine) Merge(ctx context.Context, first, second *asset.MediaAsset) (string, error) {
	if err := e.ensureProbed(ctx, first); err != nil {
		return "", err
	}
	if err := e.ensureProbed(ctx, second); err != nil {
		return "", err
	}

	out := filepath.Join(e.workDir, "merge_"+uuid.NewString()+".mp4")

	if CanConcat(first.Info, second.Info) {
		logging.Debug("Merge fast path: %s + %s", first.LocalPath, second.LocalPath)
		metrics.MergeStrategyTotal.WithLabelValues("copy").Inc()
		if err := e.concat(ctx, first.LocalPath, second.LocalPath, out, true); err != nil {
			return "", err
		}
		return out, nil
	}

	logging.Debug("Merge fallback path: %s + %s", first.LocalPath, second.LocalPath)
	metrics.MergeStrategyTotal.WithLabelValues("reencode").Inc()

	canonFirst, err := e.canonicalize(ctx, first.LocalPath)
	if err != nil {
		return "", err
	}
	defer removeIntermediate(canonFirst)

	canonSecond, err := e.canonicalize(ctx, second.LocalPath)
	if err != nil {
		return "", err
	}
	defer removeIntermediate(canonSecond)

	if err := e.concat(ctx, canonFirst, canonSecond, out, false); err != nil {
		return "", err
	}
	return out, nil
}

// ensureProbed lazily fills the asset's stream descriptor.
func (e *Engine) ensureProbed(ctx context.Context, a *asset.MediaAsset) error {
	if a.Info != nil {
		return nil
	}
	info, err := e.prober.Probe(ctx, a.LocalPath)
	if err != nil {
		return err
	}
	a.Info = info
	return nil
}

// canonicalize re-encodes one input to the fixed canonical target so it
// can be concatenated with any other canonicalized input.
func (e *Engine) canonicalize(ctx context.Context, inputPath string) (string, error) {
	out := filepath.Join(e.workDir, "canon_"+uuid.NewString()+".mp4")
	args := append(baseArgs(),
		"-i", inputPath,
		"-vf", fmt.Sprintf("scale=%d:%d", canonWidth, canonHeight),
		"-r", strconv.Itoa(canonFrameRate),
		"-c:v", canonVideoCodec,
		"-preset", canonPreset,
		"-crf", canonCRF,
		"-c:a", canonAudioCodec,
		out,
	)

	if err := e.execute(ctx, "canonicalize", args, out); err != nil {
		return "", err
	}
	return out, nil
}

// concat joins two inputs through a concat demuxer manifest. With copy
// set the streams are copied verbatim; otherwise the joined output is
// re-encoded with the canonical codec pair.
func (e *Engine) concat(ctx context.Context, firstPath, secondPath, out string, copyStreams bool) error {
	manifest, err := e.writeConcatManifest(firstPath, secondPath)
	if err != nil {
		return err
	}
	defer removeIntermediate(manifest)

	args := append(baseArgs(),
		"-f", "concat",
		"-safe", "0",
		"-i", manifest,
	)
	if copyStreams {
		args = append(args, "-c", "copy")
	} else {
		args = append(args,
			"-c:v", canonVideoCodec,
			"-preset", canonPreset,
			"-crf", canonCRF,
			"-c:a", canonAudioCodec,
		)
	}
	args = append(args, out)

	return e.execute(ctx, "concat", args, out)
}

// writeConcatManifest writes the concat demuxer input list: one
// absolute path per line, single-quoted.
func (e *Engine) writeConcatManifest(paths ...string) (string, error) {
	var b strings.Builder
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", p, err)
		}
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(abs, `'`, `'\''`))
	}

	manifest := filepath.Join(e.workDir, "concat_"+uuid.NewString()+".txt")
	if err := os.WriteFile(manifest, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write concat manifest: %w", err)
	}
	return manifest, nil
}

func removeIntermediate(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logging.Warn("Failed to remove intermediate %s: %v", path, err)
	}
}
