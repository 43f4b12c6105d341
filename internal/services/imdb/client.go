package imdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/maxxfly/trailerfin/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"
)

const (
	defaultBaseURL = "https://www.imdb.com"
	requestTimeout = 20 * time.Second

	// IMDb serves a degraded page to unknown agents
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// errNotFound is returned for 404s; the title has no gallery at all
var errNotFound = errors.New("imdb: not found")

// Client scrapes trailer information from IMDb, the primary catalog.
// Results are English only; language preference is the TMDB client's job.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a new IMDb client
func NewClient(logger *logrus.Logger) *Client {
	return &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
	}
}

// fetchPage retrieves an IMDb page with browser-like headers and returns the
// parsed document. Transport errors, rate limits and server errors are
// transient; a 404 means the title or video does not exist.
func (c *Client) fetchPage(ctx context.Context, pageURL string) (*html.Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", defaultBaseURL+"/")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, models.Transient("imdb request", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, models.Transient("imdb request", fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("imdb request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	return doc, nil
}
