package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"codeops/internal/config"
	"codeops/internal/domain"
	"codeops/internal/util"
)

// HTTPDownloader streams server archives to disk. Archives can be large
// (100MB+), so the body is never buffered in memory.
type HTTPDownloader struct {
	logger *zap.Logger
	client *util.HTTPClient
}

// NewDownloader creates a downloader with the configured transfer timeout.
func NewDownloader(cfg *config.Config, logger *zap.Logger) *HTTPDownloader {
	return &HTTPDownloader{
		logger: logger,
		client: util.NewHTTPClient(time.Duration(cfg.Resolver.Timeout)*time.Second, logger),
	}
}

// Fetch downloads url into dest via a temporary file in the same directory,
// committed with an atomic rename. If dest already holds a fully-downloaded
// archive, the fetch short-circuits. On any failure the temporary file is
// removed; no partial artifact is left addressable by later steps.
func (d *HTTPDownloader) Fetch(ctx context.Context, url, dest string) error {
	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		d.logger.Debug("Archive already downloaded", zap.String("path", dest))
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return &domain.DownloadError{Kind: domain.DownloadIOWrite, URL: url, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &domain.DownloadError{Kind: domain.DownloadNetwork, URL: url, Err: err}
	}

	d.logger.Info("Downloading server archive", zap.String("url", url))

	resp, err := d.client.Do(req)
	if err != nil {
		return &domain.DownloadError{Kind: domain.DownloadNetwork, URL: url, Err: err}
	}
	defer d.client.CloseResponseBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &domain.DownloadError{Kind: domain.DownloadHTTPStatus, URL: url, Status: resp.StatusCode}
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".fetch-*")
	if err != nil {
		return &domain.DownloadError{Kind: domain.DownloadIOWrite, URL: url, Err: err}
	}
	tmpPath := tmp.Name()

	written, copyErr := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil {
		_ = os.Remove(tmpPath)
		return &domain.DownloadError{Kind: classifyCopyErr(copyErr), URL: url, Err: copyErr}
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return &domain.DownloadError{Kind: domain.DownloadIOWrite, URL: url, Err: closeErr}
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return &domain.DownloadError{Kind: domain.DownloadIOWrite, URL: url, Err: err}
	}

	d.logger.Info("Download complete",
		zap.String("path", dest),
		zap.String("size", humanize.Bytes(uint64(written)))) //nolint:gosec // io.Copy never returns negative
	return nil
}

// classifyCopyErr separates local write failures from read-side network
// failures so callers can decide on retries.
func classifyCopyErr(err error) domain.DownloadErrorKind {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return domain.DownloadIOWrite
	}
	return domain.DownloadNetwork
}
