package refresher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/maxxfly/trailerfin/internal/models"
	"github.com/maxxfly/trailerfin/internal/resolver"
	"github.com/maxxfly/trailerfin/internal/state"
	"github.com/maxxfly/trailerfin/internal/utils"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/singleflight"
)

const (
	defaultWorkers     = 4
	defaultItemTimeout = 2 * time.Minute
	defaultRetryWait   = 500 * time.Millisecond

	// maxRetries bounds transient-failure retries per item and pass
	maxRetries = 2

	ignoreReason = "No trailer available"
)

// ItemResolver produces a trailer reference for one item.
type ItemResolver interface {
	Resolve(ctx context.Context, item models.MediaItem, mode models.OutputMode) (resolver.Resolution, error)
}

// OutputSink materializes resolved references into media folders.
type OutputSink interface {
	WriteReference(itemPath, videoURL string) (string, error)
	ReadReference(itemPath string) (string, error)
	Download(ctx context.Context, itemPath, videoURL string) error
	HasDownload(itemPath string) bool
}

// Config wires a Refresher.
type Config struct {
	Resolver    ItemResolver
	Expirations *state.ExpirationStore
	Ignores     *state.IgnoreStore
	Sink        OutputSink
	Database    *models.Database // optional library index, may be nil
	Mode        models.OutputMode
	Force       bool
	Workers     int
	ItemTimeout time.Duration
	RetryWait   time.Duration
	Logger      *logrus.Logger
}

// Refresher runs refresh passes: it decides per item whether resolution is
// needed, resolves through the catalogs on a bounded worker pool, and owns
// all mutation of the expiration and ignore stores.
type Refresher struct {
	resolver    ItemResolver
	expirations *state.ExpirationStore
	ignores     *state.IgnoreStore
	sink        OutputSink
	db          *models.Database
	mode        models.OutputMode
	force       bool
	workers     int
	itemTimeout time.Duration
	retryWait   time.Duration
	logger      *logrus.Logger

	group singleflight.Group
	now   func() time.Time
}

// New creates a new Refresher
func New(cfg Config) (*Refresher, error) {
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if cfg.Expirations == nil {
		return nil, fmt.Errorf("expiration store is required")
	}
	if cfg.Ignores == nil {
		return nil, fmt.Errorf("ignore store is required")
	}
	if cfg.Sink == nil {
		return nil, fmt.Errorf("output sink is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if cfg.Mode == "" {
		cfg.Mode = models.ModeLink
	}
	if cfg.Workers < 1 {
		cfg.Workers = defaultWorkers
	}
	if cfg.ItemTimeout <= 0 {
		cfg.ItemTimeout = defaultItemTimeout
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = defaultRetryWait
	}

	return &Refresher{
		resolver:    cfg.Resolver,
		expirations: cfg.Expirations,
		ignores:     cfg.Ignores,
		sink:        cfg.Sink,
		db:          cfg.Database,
		mode:        cfg.Mode,
		force:       cfg.Force,
		workers:     cfg.Workers,
		itemTimeout: cfg.ItemTimeout,
		retryWait:   cfg.RetryWait,
		logger:      cfg.Logger,
		now:         time.Now,
	}, nil
}

// PassSummary reports what one refresh pass did.
type PassSummary struct {
	Total     int
	Refreshed int
	UpToDate  int
	Ignored   int
	Failed    int
	Skipped   int
	Duration  time.Duration
}

type outcome struct {
	state     models.ItemState
	refreshed bool
}

// RunPass evaluates every item and refreshes the ones that need it.
// Items are independent; one item's failure never aborts the pass.
func (r *Refresher) RunPass(ctx context.Context, items []models.MediaItem) PassSummary {
	return r.runPool(ctx, items, 0)
}

// RefreshExpiring refreshes items whose records expire within the given
// window. Ignored items are excluded; durable records are never refreshed.
func (r *Refresher) RefreshExpiring(ctx context.Context, within time.Duration) PassSummary {
	if r.mode == models.ModeDownload {
		// Downloaded files do not expire
		return PassSummary{}
	}

	now := r.now()
	var items []models.MediaItem
	for key, record := range r.expirations.All() {
		if record.ExpiresAt == nil {
			continue
		}
		if record.ExpiresAt.Sub(now) >= within {
			continue
		}
		if r.ignores.Contains(key) {
			continue
		}
		items = append(items, models.MediaItem{Key: key, Path: record.Path})
	}

	if len(items) == 0 {
		return PassSummary{}
	}

	r.logger.WithField("count", len(items)).Info("Found links expiring soon")
	return r.runPool(ctx, items, within)
}

// runPool dispatches items onto the worker pool. horizon widens the expiry
// check so soon-to-expire records count as due.
func (r *Refresher) runPool(ctx context.Context, items []models.MediaItem, horizon time.Duration) PassSummary {
	start := r.now()
	summary := PassSummary{Total: len(items)}
	var mu sync.Mutex

	p := pool.New().WithMaxGoroutines(r.workers)
	for _, item := range items {
		item := item
		p.Go(func() {
			out := r.processItem(ctx, item, horizon)

			mu.Lock()
			defer mu.Unlock()
			switch out.state {
			case models.StateUpToDate:
				if out.refreshed {
					summary.Refreshed++
				} else {
					summary.UpToDate++
				}
			case models.StateIgnored:
				summary.Ignored++
			case models.StateSkipped:
				summary.Skipped++
			default:
				summary.Failed++
			}
		})
	}
	p.Wait()
	summary.Duration = r.now().Sub(start)

	r.logger.WithFields(logrus.Fields{
		"total":      summary.Total,
		"refreshed":  summary.Refreshed,
		"up_to_date": summary.UpToDate,
		"ignored":    summary.Ignored,
		"failed":     summary.Failed,
		"skipped":    summary.Skipped,
		"duration":   summary.Duration.Round(time.Millisecond).String(),
	}).Info("Refresh pass complete")

	return summary
}

// processItem runs the per-item state machine. All resolution work for a key
// flows through a single in-flight owner; a concurrent request for the same
// key reuses the owner's result instead of issuing a duplicate resolution.
func (r *Refresher) processItem(ctx context.Context, item models.MediaItem, horizon time.Duration) outcome {
	if item.Key == "" {
		r.logger.WithField("path", item.Path).Debug("No identifier extracted, skipping")
		return outcome{state: models.StateSkipped}
	}

	if ctx.Err() != nil {
		return outcome{state: models.StateFailed}
	}

	if !r.force {
		if r.ignores.Contains(item.Key) {
			r.logger.WithFields(logrus.Fields{
				"imdb_id": item.Key,
				"path":    item.Path,
			}).Debug("Skipping ignored title")
			r.index(item, models.StateIgnored, "")
			return outcome{state: models.StateIgnored}
		}

		if r.upToDate(item, horizon) {
			r.index(item, models.StateUpToDate, "")
			return outcome{state: models.StateUpToDate}
		}
	}

	v, _, _ := r.group.Do(item.Key, func() (interface{}, error) {
		return r.resolveAndCommit(ctx, item), nil
	})
	return v.(outcome)
}

// upToDate reports whether the item's current output is still valid. In
// download mode the presence of the finished file decides; in link mode the
// record's expiry does.
func (r *Refresher) upToDate(item models.MediaItem, horizon time.Duration) bool {
	if r.mode == models.ModeDownload {
		if r.sink.HasDownload(item.Path) {
			r.logger.WithField("imdb_id", item.Key).Debug("Trailer already downloaded")
			return true
		}
		return false
	}

	record, ok := r.expirations.Get(item.Key)
	if !ok {
		return false
	}
	if record.Expired(r.now().Add(horizon)) {
		return false
	}

	if record.ExpiresAt != nil {
		r.logger.WithFields(logrus.Fields{
			"imdb_id":    item.Key,
			"expires_in": utils.FormatDuration(time.Until(*record.ExpiresAt)),
		}).Debug("Trailer link still valid")
	}
	return true
}

// resolveAndCommit resolves one item with bounded retries and commits the
// outcome to the stores. Store writes are ordered so that a crash between
// them leaves the key with neither a record nor an ignore entry, never both.
func (r *Refresher) resolveAndCommit(ctx context.Context, item models.MediaItem) outcome {
	itemCtx, cancel := context.WithTimeout(ctx, r.itemTimeout)
	defer cancel()

	r.logger.WithFields(logrus.Fields{
		"imdb_id": item.Key,
		"path":    item.Path,
	}).Info("Refreshing trailer")

	var res resolver.Resolution
	operation := func() error {
		var err error
		res, err = r.resolver.Resolve(itemCtx, item, r.mode)
		if err != nil && !models.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.retryWait
	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, maxRetries), itemCtx))

	switch {
	case err == nil:
		return r.commitSuccess(itemCtx, item, res)
	case errors.Is(err, models.ErrNoTrailer):
		return r.commitIgnore(item)
	default:
		r.logger.WithFields(logrus.Fields{
			"imdb_id": item.Key,
			"error":   err.Error(),
		}).Error("Failed to refresh trailer")
		r.index(item, models.StateFailed, err.Error())
		return outcome{state: models.StateFailed}
	}
}

// commitSuccess materializes the output, then clears any ignore entry, then
// writes the record
func (r *Refresher) commitSuccess(ctx context.Context, item models.MediaItem, res resolver.Resolution) outcome {
	if r.mode == models.ModeDownload {
		if err := r.sink.Download(ctx, item.Path, res.URL); err != nil {
			r.logger.WithFields(logrus.Fields{
				"imdb_id": item.Key,
				"error":   err.Error(),
			}).Error("Failed to download trailer")
			r.index(item, models.StateFailed, err.Error())
			return outcome{state: models.StateFailed}
		}
	} else {
		if _, err := r.sink.WriteReference(item.Path, res.URL); err != nil {
			r.logger.WithFields(logrus.Fields{
				"imdb_id": item.Key,
				"error":   err.Error(),
			}).Error("Failed to write stream reference")
			r.index(item, models.StateFailed, err.Error())
			return outcome{state: models.StateFailed}
		}
	}

	if err := r.ignores.Remove(item.Key); err != nil {
		r.logger.WithFields(logrus.Fields{
			"imdb_id": item.Key,
			"error":   err.Error(),
		}).Error("Failed to clear ignore entry")
		r.index(item, models.StateFailed, err.Error())
		return outcome{state: models.StateFailed}
	}

	record := models.TrailerRecord{
		Key:        item.Key,
		Source:     res.Source,
		URL:        res.URL,
		Language:   res.Language,
		Path:       item.Path,
		ResolvedAt: r.now(),
		ExpiresAt:  res.ExpiresAt,
	}
	if err := r.expirations.Put(record); err != nil {
		r.logger.WithFields(logrus.Fields{
			"imdb_id": item.Key,
			"error":   err.Error(),
		}).Error("Failed to store trailer record")
		r.index(item, models.StateFailed, err.Error())
		return outcome{state: models.StateFailed}
	}

	r.index(item, models.StateUpToDate, "")
	return outcome{state: models.StateUpToDate, refreshed: true}
}

// commitIgnore clears any record, then writes the ignore entry
func (r *Refresher) commitIgnore(item models.MediaItem) outcome {
	if err := r.expirations.Delete(item.Key); err != nil {
		r.logger.WithFields(logrus.Fields{
			"imdb_id": item.Key,
			"error":   err.Error(),
		}).Error("Failed to clear trailer record")
		r.index(item, models.StateFailed, err.Error())
		return outcome{state: models.StateFailed}
	}

	entry := models.IgnoreEntry{
		Key:         item.Key,
		Path:        item.Path,
		Reason:      ignoreReason,
		LastChecked: r.now(),
	}
	if err := r.ignores.Add(entry); err != nil {
		r.logger.WithFields(logrus.Fields{
			"imdb_id": item.Key,
			"error":   err.Error(),
		}).Error("Failed to store ignore entry")
		r.index(item, models.StateFailed, err.Error())
		return outcome{state: models.StateFailed}
	}

	r.logger.WithFields(logrus.Fields{
		"imdb_id": item.Key,
		"path":    item.Path,
	}).Info("Added title to ignore list")

	r.index(item, models.StateIgnored, "")
	return outcome{state: models.StateIgnored}
}

// index mirrors the pass outcome into the library index, when one is wired
func (r *Refresher) index(item models.MediaItem, state models.ItemState, lastError string) {
	if r.db == nil {
		return
	}

	item.State = state
	item.LastError = lastError
	if err := r.db.SaveItem(&item); err != nil {
		r.logger.WithFields(logrus.Fields{
			"imdb_id": item.Key,
			"error":   err.Error(),
		}).Warn("Failed to update library index")
	}
}
