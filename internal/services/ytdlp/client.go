package ytdlp

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/maxxfly/trailerfin/internal/models"
	"github.com/sirupsen/logrus"
)

var commandContext = exec.CommandContext

const defaultBinary = "yt-dlp"

// formatSpec prefers a single-file MP4 capped at 1080p so the resolved
// reference plays without merging separate audio and video streams
const formatSpec = "best[ext=mp4][height<=1080]/best[ext=mp4]/best"

// Client resolves watch-page URLs (YouTube and friends) into direct stream
// URLs by shelling out to yt-dlp.
type Client struct {
	binary string
	logger *logrus.Logger
}

// NewClient creates a new yt-dlp client. An empty binary selects the default
// name resolved through PATH.
func NewClient(binary string, logger *logrus.Logger) *Client {
	if binary == "" {
		binary = defaultBinary
	}
	return &Client{
		binary: binary,
		logger: logger,
	}
}

// Available reports whether the configured binary can be found
func (c *Client) Available() bool {
	_, err := exec.LookPath(c.binary)
	return err == nil
}

// ResolveDirectURL returns the direct stream URL behind a watch page.
// A video yt-dlp cannot extract reports models.ErrUnavailable; cancellation
// and timeouts are transient.
func (c *Client) ResolveDirectURL(ctx context.Context, watchURL string) (string, error) {
	if watchURL == "" {
		return "", fmt.Errorf("watch URL is required")
	}

	c.logger.WithField("url", watchURL).Debug("Resolving stream URL with yt-dlp")

	args := []string{"--no-warnings", "--quiet", "--get-url", "--format", formatSpec, watchURL}
	output, err := commandContext(ctx, c.binary, args...).Output()
	if err != nil {
		if ctx.Err() != nil {
			return "", models.Transient("yt-dlp", ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			detail := strings.TrimSpace(string(exitErr.Stderr))
			if detail == "" {
				detail = exitErr.Error()
			}
			c.logger.WithFields(logrus.Fields{
				"url":   watchURL,
				"error": detail,
			}).Warn("yt-dlp could not resolve video")
			return "", fmt.Errorf("%w: %s", models.ErrUnavailable, detail)
		}
		return "", fmt.Errorf("failed to run %s: %w", c.binary, err)
	}

	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "http") {
			return line, nil
		}
	}

	return "", fmt.Errorf("%w: no stream URL in yt-dlp output", models.ErrUnavailable)
}
