package output

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/maxxfly/trailerfin/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const (
	// backdropsDir is where Jellyfin and Kodi pick up theme videos
	backdropsDir = "backdrops"

	// downloadFilename is the fixed name for downloaded trailers
	downloadFilename = "trailer.mp4"

	downloadTimeout = 60 * time.Second

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// Sink writes resolved trailers into media folders, either as a stream
// reference file or as a downloaded video.
type Sink struct {
	fs            afero.Fs
	videoFilename string
	httpClient    *http.Client
	logger        *logrus.Logger
}

// NewSink creates a new output sink. videoFilename is the stream reference
// name inside each backdrops folder.
func NewSink(fs afero.Fs, videoFilename string, logger *logrus.Logger) *Sink {
	return &Sink{
		fs:            fs,
		videoFilename: videoFilename,
		httpClient:    &http.Client{Timeout: downloadTimeout},
		logger:        logger,
	}
}

// ReferencePath returns the stream reference location for a media folder
func (s *Sink) ReferencePath(itemPath string) string {
	return filepath.Join(itemPath, backdropsDir, s.videoFilename)
}

// WriteReference writes the stream reference file for a media folder and
// returns its path.
func (s *Sink) WriteReference(itemPath, videoURL string) (string, error) {
	dir := filepath.Join(itemPath, backdropsDir)
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}

	refPath := filepath.Join(dir, s.videoFilename)
	if err := afero.WriteFile(s.fs, refPath, []byte(videoURL), 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", refPath, err)
	}

	s.logger.WithField("path", refPath).Info("Updated stream reference")
	return refPath, nil
}

// ReadReference returns the URL stored in a media folder's stream reference,
// or "" when the file does not exist.
func (s *Sink) ReadReference(itemPath string) (string, error) {
	refPath := s.ReferencePath(itemPath)
	exists, err := afero.Exists(s.fs, refPath)
	if err != nil || !exists {
		return "", err
	}

	content, err := afero.ReadFile(s.fs, refPath)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", refPath, err)
	}
	return strings.TrimSpace(string(content)), nil
}

// DownloadPath returns the downloaded trailer location for a media folder
func (s *Sink) DownloadPath(itemPath string) string {
	return filepath.Join(itemPath, downloadFilename)
}

// HasDownload reports whether a media folder already holds a downloaded
// trailer
func (s *Sink) HasDownload(itemPath string) bool {
	exists, _ := afero.Exists(s.fs, s.DownloadPath(itemPath))
	return exists
}

// Download fetches the video behind a direct URL into the media folder.
// The file is written through a temp name so a crash never leaves a partial
// trailer.mp4 that would be mistaken for a finished download.
func (s *Sink) Download(ctx context.Context, itemPath, videoURL string) error {
	target := s.DownloadPath(itemPath)
	tmpPath := target + ".tmp"

	s.logger.WithField("path", target).Info("Downloading trailer")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, videoURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return models.Transient("trailer download", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return models.Transient("trailer download", fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("trailer download failed with status %d", resp.StatusCode)
	}

	file, err := s.fs.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmpPath, err)
	}

	written, err := io.Copy(file, resp.Body)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		s.fs.Remove(tmpPath)
		return models.Transient("trailer download", err)
	}

	if err := s.fs.Rename(tmpPath, target); err != nil {
		s.fs.Remove(tmpPath)
		return fmt.Errorf("failed to finalize %s: %w", target, err)
	}

	s.logger.WithFields(logrus.Fields{
		"path":    target,
		"size_mb": fmt.Sprintf("%.2f", float64(written)/(1024*1024)),
	}).Info("Downloaded trailer")

	return nil
}
