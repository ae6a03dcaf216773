package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"clipbot/internal/metrics"
	"clipbot/internal/transport"

	"github.com/google/uuid"
)

const progressStep = 256 * 1024

// Download materializes an uploaded file under destDir, streaming
// progress updates while the transfer runs. The progress channel is
// closed when the transfer ends, whatever the outcome.
func (c *Client) Download(ctx context.Context, ref *transport.MediaRef, destDir string, progress chan<- transport.Progress) (string, error) {
	if progress != nil {
		defer close(progress)
	}

	remotePath, err := c.resolveFilePath(ctx, ref.FileID)
	if err != nil {
		metrics.TransfersTotal.WithLabelValues("download", "failed").Inc()
		return "", &transport.TransferError{Direction: "download", Ref: ref.FileID, Err: err}
	}

	ext := filepath.Ext(remotePath)
	if ext == "" {
		ext = filepath.Ext(ref.FileName)
	}
	destPath := filepath.Join(destDir, "dl_"+uuid.NewString()+ext)

	if err := c.fetchFile(ctx, remotePath, destPath, progress); err != nil {
		metrics.TransfersTotal.WithLabelValues("download", "failed").Inc()
		// A partial download must not survive the failure.
		_ = os.Remove(destPath)
		return "", &transport.TransferError{Direction: "download", Ref: ref.FileID, Err: err}
	}

	metrics.TransfersTotal.WithLabelValues("download", "succeeded").Inc()
	return destPath, nil
}

// resolveFilePath asks the API for the server-side path of a file id.
func (c *Client) resolveFilePath(ctx context.Context, fileID string) (string, error) {
	params := url.Values{}
	params.Set("file_id", fileID)

	result, err := c.call(ctx, "getFile", params)
	if err != nil {
		return "", err
	}

	var f struct {
		FilePath string `json:"file_path"`
		FileSize int64  `json:"file_size"`
	}
	if err := json.Unmarshal(result, &f); err != nil {
		return "", fmt.Errorf("getFile: decode result: %w", err)
	}
	if f.FilePath == "" {
		return "", fmt.Errorf("getFile: empty file_path")
	}
	return f.FilePath, nil
}

// fetchFile streams the remote file to destPath.
func (c *Client) fetchFile(ctx context.Context, remotePath, destPath string, progress chan<- transport.Progress) error {
	endpoint := fmt.Sprintf("%s/file/bot%s/%s", c.baseURL, c.token, remotePath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download: unexpected status %s", resp.Status)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return err
	}

	src := io.Reader(resp.Body)
	if progress != nil {
		src = &progressReader{r: resp.Body, total: resp.ContentLength, progress: progress}
	}

	written, copyErr := io.Copy(out, src)
	closeErr := out.Close()
	if copyErr != nil {
		return copyErr
	}
	if closeErr != nil {
		return closeErr
	}

	metrics.TransferBytes.WithLabelValues("download").Add(float64(written))
	return nil
}

// progressReader reports transferred byte counts on a channel at fixed
// byte intervals. Sends never block: a slow consumer just misses
// intermediate updates.
type progressReader struct {
	r           io.Reader
	total       int64
	transferred int64
	lastSent    int64
	progress    chan<- transport.Progress
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	pr.transferred += int64(n)

	if pr.transferred-pr.lastSent >= progressStep || (err == io.EOF && pr.transferred != pr.lastSent) {
		select {
		case pr.progress <- transport.Progress{Transferred: pr.transferred, Total: pr.total}:
			pr.lastSent = pr.transferred
		default:
		}
	}
	return n, err
}
