package asset

import (
	"os"

	"clipbot/internal/logging"
	"clipbot/internal/probe"
)

// MediaAsset is a locally materialized media file plus its probed
// descriptor. Info stays nil until the file is probed.
//
// An asset is exclusively owned by the job (or pending flow) that
// requested its download; the owner must call Remove when done,
// regardless of outcome.
type MediaAsset struct {
	LocalPath string
	SourceRef string // Originating file identity at the transport (file id).
	FileName  string // Display name from the originating message, may be empty.
	Info      *probe.StreamInfo
}

// New creates an asset for a downloaded file.
func New(localPath, sourceRef, fileName string) *MediaAsset {
	return &MediaAsset{LocalPath: localPath, SourceRef: sourceRef, FileName: fileName}
}

// Remove deletes the local file. Missing files are not an error so the
// call is safe on every exit path.
func (a *MediaAsset) Remove() {
	if a == nil || a.LocalPath == "" {
		return
	}
	if err := os.Remove(a.LocalPath); err != nil && !os.IsNotExist(err) {
		logging.Warn("Failed to remove asset %s: %v", a.LocalPath, err)
	}
}
