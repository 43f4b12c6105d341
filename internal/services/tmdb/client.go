package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/maxxfly/trailerfin/internal/config"
	"github.com/maxxfly/trailerfin/internal/models"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/language"
)

const (
	defaultBaseURL = "https://api.themoviedb.org/3"
	requestTimeout = 10 * time.Second

	findCacheTTL   = 24 * time.Hour
	videosCacheTTL = 1 * time.Hour
)

// ErrInvalidAPIKey means TMDB rejected the configured key. The caller should
// disable language-catalog lookups instead of failing the run.
var ErrInvalidAPIKey = errors.New("invalid TMDB API key")

// errNotFound is returned for 404s; callers treat it as an empty result
var errNotFound = errors.New("tmdb: not found")

// Client handles communication with the TMDB API, the language catalog.
// IMDb-to-TMDB id mappings are stable and video lists change slowly, so both
// are cached for the lifetime of the process.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	cache      *cache.Cache
	logger     *logrus.Logger
}

// NewClient creates a new TMDB client
func NewClient(cfg *config.Config, logger *logrus.Logger) (*Client, error) {
	if cfg.TMDBAPIKey == "" {
		return nil, fmt.Errorf("TMDB API key is required")
	}

	return &Client{
		apiKey:     cfg.TMDBAPIKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
		cache:      cache.New(findCacheTTL, 30*time.Minute),
		logger:     logger,
	}, nil
}

// ValidateKey checks the configured API key against the configuration
// endpoint. ErrInvalidAPIKey means the key is wrong; transient errors mean
// TMDB could not be reached and the key might still be fine.
func (c *Client) ValidateKey(ctx context.Context) error {
	return c.doRequest(ctx, "/configuration", nil, nil)
}

// doRequest performs a GET against the TMDB API and decodes into result.
// Outcomes are classified: 401 is an invalid key, 404 is not-found, 429 and
// server errors are transient, transport errors are transient.
func (c *Client) doRequest(ctx context.Context, path string, params url.Values, result interface{}) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", c.apiKey)

	fullURL := c.baseURL + path + "?" + params.Encode()
	c.logger.WithField("path", path).Debug("Making TMDB API request")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.Transient("tmdb request", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrInvalidAPIKey
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return models.Transient("tmdb request", fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("TMDB API request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// normalizeLanguage reduces a language tag to the ISO 639-1 base the TMDB
// API expects ("fr-FR" becomes "fr"). Unparseable tags fall back to the
// default language.
func normalizeLanguage(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return models.DefaultLanguage
	}
	base, _ := tag.Base()
	return base.String()
}
