package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maxxfly/trailerfin/internal/models"
	"github.com/maxxfly/trailerfin/internal/services/tmdb"
	"github.com/maxxfly/trailerfin/internal/utils"
	"github.com/sirupsen/logrus"
)

// errNoCandidates makes an attempt fall through to the next one
var errNoCandidates = errors.New("no candidates")

// LanguageCatalog finds trailer candidates in a requested language.
type LanguageCatalog interface {
	FindTrailerCandidates(ctx context.Context, imdbID, language string) (tmdb.TrailerResult, error)
}

// PrimaryCatalog finds English trailer candidates and resolves their video
// pages into direct stream URLs.
type PrimaryCatalog interface {
	FindTrailerCandidates(ctx context.Context, imdbID string) ([]models.Candidate, error)
	ResolvePlayback(ctx context.Context, videoPageURL string) (string, error)
}

// HandleResolver turns a watch-page handle into a direct stream URL.
type HandleResolver interface {
	ResolveDirectURL(ctx context.Context, watchURL string) (string, error)
}

// Resolution is the outcome of a successful trailer resolution.
type Resolution struct {
	Source    models.Source
	URL       string
	Language  string
	ExpiresAt *time.Time
}

// Resolver produces a valid trailer reference for one item, preferring the
// requested language and falling back deterministically to the English
// primary catalog.
type Resolver struct {
	language  LanguageCatalog
	primary   PrimaryCatalog
	handles   HandleResolver
	requested string
	startTime int
	logger    *logrus.Logger
}

// NewResolver creates a new resolver. language may be nil when no language
// catalog is configured; requested is the preferred trailer language and
// startTime the playback offset in seconds for stream references.
func NewResolver(language LanguageCatalog, primary PrimaryCatalog, handles HandleResolver, requested string, startTime int, logger *logrus.Logger) *Resolver {
	return &Resolver{
		language:  language,
		primary:   primary,
		handles:   handles,
		requested: requested,
		startTime: startTime,
		logger:    logger,
	}
}

type attempt struct {
	name string
	run  func(ctx context.Context) (Resolution, error)
}

// Resolve runs the ranked resolution attempts for an item. Outcomes:
// a Resolution on success, models.ErrNoTrailer when every catalog is out of
// candidates, a transient error when a catalog could not be reached, and
// models.ErrUnavailable when a candidate exists but its stream cannot be
// obtained.
//
// Transient failures stop the chain instead of falling through: a flaky
// language catalog must surface as a retry, not silently downgrade the
// language of the result.
func (r *Resolver) Resolve(ctx context.Context, item models.MediaItem, mode models.OutputMode) (Resolution, error) {
	series := item.Series

	var attempts []attempt
	if r.language != nil && r.requested != models.DefaultLanguage {
		attempts = append(attempts, attempt{
			name: "language catalog",
			run: func(ctx context.Context) (Resolution, error) {
				return r.resolveLanguage(ctx, item.Key, &series)
			},
		})
	}
	attempts = append(attempts, attempt{
		name: "primary catalog",
		run: func(ctx context.Context) (Resolution, error) {
			return r.resolvePrimary(ctx, item.Key, series)
		},
	})

	var lastUnavailable error
	for _, att := range attempts {
		res, err := att.run(ctx)
		if err == nil {
			if err := r.finalize(&res, mode); err != nil {
				return Resolution{}, err
			}
			r.logger.WithFields(logrus.Fields{
				"imdb_id":  item.Key,
				"source":   res.Source,
				"language": res.Language,
			}).Info("Resolved trailer")
			return res, nil
		}

		switch {
		case errors.Is(err, errNoCandidates):
			r.logger.WithFields(logrus.Fields{
				"imdb_id": item.Key,
				"attempt": att.name,
			}).Debug("No candidates, trying next source")
		case errors.Is(err, models.ErrUnavailable):
			lastUnavailable = err
			r.logger.WithFields(logrus.Fields{
				"imdb_id": item.Key,
				"attempt": att.name,
				"error":   err.Error(),
			}).Warn("Candidate unavailable, trying next source")
		case errors.Is(err, tmdb.ErrInvalidAPIKey):
			r.logger.WithField("imdb_id", item.Key).Warn("Language catalog key rejected, falling back to primary catalog")
		default:
			return Resolution{}, err
		}
	}

	// A candidate that exists but cannot stream right now is not the same
	// as a title with no trailer; never turn it into an ignore entry.
	if lastUnavailable != nil {
		return Resolution{}, lastUnavailable
	}
	return Resolution{}, fmt.Errorf("%w for %s", models.ErrNoTrailer, item.Key)
}

// resolveLanguage looks up candidates in the requested language and resolves
// the best one through the handle resolver. The series flag is upgraded in
// place when the catalog identifies the item as episodic, so the primary
// attempt applies the same season exclusion.
func (r *Resolver) resolveLanguage(ctx context.Context, key string, series *bool) (Resolution, error) {
	result, err := r.language.FindTrailerCandidates(ctx, key, r.requested)
	if err != nil {
		return Resolution{}, err
	}
	if result.MediaType == models.MediaTypeTV {
		*series = true
	}

	pick, ok := pickCandidate(result.Candidates, *series)
	if !ok {
		return Resolution{}, errNoCandidates
	}

	direct, err := r.handles.ResolveDirectURL(ctx, pick.Handle)
	if err != nil {
		return Resolution{}, err
	}

	return Resolution{
		Source:   models.SourceTMDB,
		URL:      direct,
		Language: result.Language,
	}, nil
}

// resolvePrimary falls back to the English-only catalog. The stored language
// is always the default so a caller can tell a fallback occurred.
func (r *Resolver) resolvePrimary(ctx context.Context, key string, series bool) (Resolution, error) {
	candidates, err := r.primary.FindTrailerCandidates(ctx, key)
	if err != nil {
		return Resolution{}, err
	}

	pick, ok := pickCandidate(candidates, series)
	if !ok {
		return Resolution{}, errNoCandidates
	}

	direct, err := r.primary.ResolvePlayback(ctx, pick.Handle)
	if err != nil {
		return Resolution{}, err
	}

	return Resolution{
		Source:   models.SourceIMDb,
		URL:      direct,
		Language: models.DefaultLanguage,
	}, nil
}

// finalize stamps the expiry from the reference's own lifetime parameters
// and, in link mode, appends the playback start offset.
func (r *Resolver) finalize(res *Resolution, mode models.OutputMode) error {
	if res.URL == "" {
		return fmt.Errorf("resolved an empty reference")
	}
	res.ExpiresAt = utils.ExtractExpiry(res.URL)
	if mode == models.ModeLink {
		res.URL = fmt.Sprintf("%s#t=%d", res.URL, r.startTime)
	}
	return nil
}

// pickCandidate ranks candidates: first Trailer, else first Clip, else first
// of anything else. Among trailers an official one beats the rest. Series
// items never take a season-scoped candidate.
func pickCandidate(candidates []models.Candidate, series bool) (models.Candidate, bool) {
	eligible := candidates
	if series {
		eligible = make([]models.Candidate, 0, len(candidates))
		for _, c := range candidates {
			if c.Scope != models.ScopeSeason {
				eligible = append(eligible, c)
			}
		}
	}

	for _, kind := range []models.CandidateKind{models.KindTrailer, models.KindClip} {
		first := -1
		for i, c := range eligible {
			if c.Kind != kind {
				continue
			}
			if kind == models.KindTrailer && c.Official {
				return c, true
			}
			if first < 0 {
				first = i
			}
		}
		if first >= 0 {
			return eligible[first], true
		}
	}
	if len(eligible) > 0 {
		return eligible[0], true
	}
	return models.Candidate{}, false
}
