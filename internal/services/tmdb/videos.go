package tmdb

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"

	"github.com/maxxfly/trailerfin/internal/models"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// findResponse represents the /find endpoint response
type findResponse struct {
	MovieResults []findResult `json:"movie_results"`
	TVResults    []findResult `json:"tv_results"`
}

type findResult struct {
	ID int `json:"id"`
}

// videosResponse represents the /videos endpoint response
type videosResponse struct {
	ID      int          `json:"id"`
	Results []videoEntry `json:"results"`
}

type videoEntry struct {
	Name        string `json:"name"`
	Key         string `json:"key"`
	Site        string `json:"site"`
	Type        string `json:"type"`
	Official    bool   `json:"official"`
	ISO6391     string `json:"iso_639_1"`
	PublishedAt string `json:"published_at"`
}

// mapping holds the TMDB identity of an IMDb id
type mapping struct {
	ID        int
	MediaType models.MediaType
}

// TrailerResult is one language-catalog lookup: the candidates found and the
// language they were actually fetched in, which may be the default when the
// requested language had nothing.
type TrailerResult struct {
	Candidates []models.Candidate
	Language   string
	MediaType  models.MediaType
}

// seasonNameRegex marks candidates whose title ties them to one season
var seasonNameRegex = regexp.MustCompile(`(?i)\bseason\s*\d+`)

// Lookup resolves an IMDb id to its TMDB id and media type
func (c *Client) Lookup(ctx context.Context, imdbID string) (mapping, error) {
	cacheKey := "find:" + imdbID
	if cached, ok := c.cache.Get(cacheKey); ok {
		return cached.(mapping), nil
	}

	params := url.Values{}
	params.Set("external_source", "imdb_id")

	var resp findResponse
	if err := c.doRequest(ctx, "/find/"+imdbID, params, &resp); err != nil {
		if errors.Is(err, errNotFound) {
			return mapping{}, fmt.Errorf("no TMDB entry for %s", imdbID)
		}
		return mapping{}, err
	}

	var m mapping
	switch {
	case len(resp.MovieResults) > 0:
		m = mapping{ID: resp.MovieResults[0].ID, MediaType: models.MediaTypeMovie}
	case len(resp.TVResults) > 0:
		m = mapping{ID: resp.TVResults[0].ID, MediaType: models.MediaTypeTV}
	default:
		return mapping{}, fmt.Errorf("no TMDB entry for %s", imdbID)
	}

	c.cache.Set(cacheKey, m, cache.DefaultExpiration)

	c.logger.WithFields(logrus.Fields{
		"imdb_id":    imdbID,
		"tmdb_id":    m.ID,
		"media_type": m.MediaType,
	}).Debug("Mapped IMDb id to TMDB")

	return m, nil
}

// FindTrailerCandidates fetches the YouTube-hosted videos TMDB knows for an
// item, preferring the requested language. When that language has no videos
// at all, the default language is fetched instead and the result says so.
// An item TMDB cannot map at all yields an empty result, not an error.
func (c *Client) FindTrailerCandidates(ctx context.Context, imdbID, requestedLanguage string) (TrailerResult, error) {
	lang := normalizeLanguage(requestedLanguage)

	m, err := c.Lookup(ctx, imdbID)
	if err != nil {
		if models.IsTransient(err) || errors.Is(err, ErrInvalidAPIKey) {
			return TrailerResult{}, err
		}
		// Unknown to TMDB: the catalog simply has nothing for this item
		c.logger.WithField("imdb_id", imdbID).Debug("No TMDB mapping, catalog empty for item")
		return TrailerResult{Language: lang}, nil
	}

	entries, err := c.fetchVideos(ctx, m, lang)
	if err != nil {
		return TrailerResult{}, err
	}

	usedLanguage := lang
	if len(entries) == 0 && lang != models.DefaultLanguage {
		c.logger.WithFields(logrus.Fields{
			"imdb_id":  imdbID,
			"language": lang,
		}).Info("No trailers in requested language, trying default")

		entries, err = c.fetchVideos(ctx, m, models.DefaultLanguage)
		if err != nil {
			return TrailerResult{}, err
		}
		usedLanguage = models.DefaultLanguage
	}

	result := TrailerResult{
		Language:  usedLanguage,
		MediaType: m.MediaType,
	}
	for _, entry := range entries {
		if entry.Site != "YouTube" || entry.Key == "" {
			continue
		}
		result.Candidates = append(result.Candidates, models.Candidate{
			Kind:     candidateKind(entry.Type),
			Scope:    candidateScope(entry.Name),
			Handle:   "https://www.youtube.com/watch?v=" + entry.Key,
			Name:     entry.Name,
			Official: entry.Official,
		})
	}

	return result, nil
}

// fetchVideos retrieves the video list for one TMDB entity in one language
func (c *Client) fetchVideos(ctx context.Context, m mapping, lang string) ([]videoEntry, error) {
	cacheKey := fmt.Sprintf("videos:%s:%d:%s", m.MediaType, m.ID, lang)
	if cached, ok := c.cache.Get(cacheKey); ok {
		return cached.([]videoEntry), nil
	}

	params := url.Values{}
	params.Set("language", lang)

	path := fmt.Sprintf("/%s/%d/videos", m.MediaType, m.ID)

	var resp videosResponse
	if err := c.doRequest(ctx, path, params, &resp); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, nil
		}
		return nil, err
	}

	c.cache.Set(cacheKey, resp.Results, videosCacheTTL)
	return resp.Results, nil
}

func candidateKind(videoType string) models.CandidateKind {
	switch videoType {
	case "Trailer":
		return models.KindTrailer
	case "Clip":
		return models.KindClip
	default:
		return models.KindOther
	}
}

func candidateScope(name string) models.CandidateScope {
	if seasonNameRegex.MatchString(name) {
		return models.ScopeSeason
	}
	return models.ScopeSeries
}
