package refresher

import (
	"strings"

	"github.com/maxxfly/trailerfin/internal/models"
	"github.com/maxxfly/trailerfin/internal/utils"
	"github.com/sirupsen/logrus"
)

// Seed rebuilds expiration records from stream references already on disk,
// so a fresh monitor does not re-resolve a library that was populated by an
// earlier run. Items that already hold a record or an ignore entry are left
// alone. Returns the number of records seeded.
func (r *Refresher) Seed(items []models.MediaItem) int {
	if r.mode == models.ModeDownload {
		return 0
	}

	seeded := 0
	for _, item := range items {
		if item.Key == "" {
			continue
		}
		if _, ok := r.expirations.Get(item.Key); ok {
			continue
		}
		if r.ignores.Contains(item.Key) {
			continue
		}

		url, err := r.sink.ReadReference(item.Path)
		if err != nil || url == "" {
			continue
		}

		record := models.TrailerRecord{
			Key:        item.Key,
			Source:     sourceFromURL(url),
			URL:        url,
			Path:       item.Path,
			ResolvedAt: r.now(),
			ExpiresAt:  utils.ExtractExpiry(url),
		}
		if record.ExpiresAt != nil && record.ExpiresAt.Before(record.ResolvedAt) {
			// Already expired; leave it unrecorded so the next pass
			// re-resolves
			continue
		}

		if err := r.expirations.Put(record); err != nil {
			r.logger.WithFields(logrus.Fields{
				"imdb_id": item.Key,
				"error":   err.Error(),
			}).Warn("Failed to seed trailer record")
			continue
		}

		r.logger.WithFields(logrus.Fields{
			"imdb_id": item.Key,
			"path":    item.Path,
		}).Info("Seeded record from existing stream reference")
		seeded++
	}

	return seeded
}

// sourceFromURL guesses which catalog produced a stream URL found on disk
func sourceFromURL(url string) models.Source {
	if strings.Contains(url, "youtube.com") || strings.Contains(url, "googlevideo.com") {
		return models.SourceTMDB
	}
	return models.SourceIMDb
}
