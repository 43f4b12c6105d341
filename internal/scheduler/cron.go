package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/maxxfly/trailerfin/internal/library"
	"github.com/maxxfly/trailerfin/internal/models"
	"github.com/maxxfly/trailerfin/internal/refresher"
	"github.com/maxxfly/trailerfin/internal/state"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	// monitorInterval is how often the monitor looks for new media and
	// expiring links
	monitorInterval = 5 * time.Minute

	// monitorErrorWait shortens the wait after a failed cycle so a transient
	// problem (an unmounted scan root, say) recovers quickly
	monitorErrorWait = time.Minute

	// expiryWindow is how far ahead the monitor refreshes expiring links
	expiryWindow = time.Hour
)

// Scheduler drives refresh passes: one-shot, on a cron schedule, or as a
// continuous monitor loop.
type Scheduler struct {
	cron         *cron.Cron
	scanner      *library.Scanner
	refresher    *refresher.Refresher
	expirations  *state.ExpirationStore
	opts         library.Options
	scheduleDays int
	logger       *logrus.Logger
}

// NewScheduler creates a new scheduler
func NewScheduler(
	scanner *library.Scanner,
	ref *refresher.Refresher,
	expirations *state.ExpirationStore,
	opts library.Options,
	scheduleDays int,
	logger *logrus.Logger,
) *Scheduler {
	if scheduleDays < 1 {
		scheduleDays = 1
	}
	return &Scheduler{
		cron:         cron.New(),
		scanner:      scanner,
		refresher:    ref,
		expirations:  expirations,
		opts:         opts,
		scheduleDays: scheduleDays,
		logger:       logger,
	}
}

// RunOnce scans the library and runs a single refresh pass
func (s *Scheduler) RunOnce(ctx context.Context) error {
	items, err := s.scanner.Scan(s.opts)
	if err != nil {
		return fmt.Errorf("failed to scan library: %w", err)
	}

	s.logger.WithField("count", len(items)).Info("Library scan complete")
	s.refresher.RunPass(ctx, items)
	return nil
}

// Start schedules periodic refresh passes and runs the first one immediately
func (s *Scheduler) Start(ctx context.Context) error {
	spec := fmt.Sprintf("@every %dh", s.scheduleDays*24)
	_, err := s.cron.AddFunc(spec, func() {
		s.runScheduledPass(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to add refresh job: %w", err)
	}

	s.cron.Start()
	s.logger.WithField("days", s.scheduleDays).Info("Scheduler started")

	// First pass runs right away; cron handles the rest
	go s.runScheduledPass(ctx)

	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	s.cron.Stop()
}

// runScheduledPass executes one scheduled pass
func (s *Scheduler) runScheduledPass(ctx context.Context) {
	s.logger.Info("Running scheduled refresh pass")

	if err := s.RunOnce(ctx); err != nil {
		s.logger.WithError(err).Error("Scheduled refresh pass failed")
	}
}

// Monitor bootstraps the expiration store from the library, then loops:
// newly appeared media folders are processed and links expiring within the
// next hour are refreshed, until the context is cancelled.
func (s *Scheduler) Monitor(ctx context.Context) error {
	s.logger.Info("Starting continuous monitor for expiring links")

	known, err := s.bootstrap(ctx)
	if err != nil {
		return err
	}

	for {
		wait := monitorInterval
		if err := s.monitorTick(ctx, known); err != nil {
			s.logger.WithError(err).Error("Monitor cycle failed")
			wait = monitorErrorWait
		}

		select {
		case <-ctx.Done():
			s.logger.Info("Continuous monitor stopped")
			return nil
		case <-time.After(wait):
		}
	}
}

// bootstrap seeds the expiration store from existing stream references and
// returns the media folders present at startup. When the library yields no
// records at all, a full pass runs instead.
func (s *Scheduler) bootstrap(ctx context.Context) (map[string]struct{}, error) {
	items, err := s.scanner.Scan(s.opts)
	if err != nil {
		return nil, fmt.Errorf("failed to scan library: %w", err)
	}

	seeded := s.refresher.Seed(items)
	if seeded == 0 && s.expirations.Len() == 0 {
		s.logger.Info("No existing stream references found, performing full pass")
		s.refresher.RunPass(ctx, items)
	}

	known := make(map[string]struct{})
	for _, item := range s.mediaFolders() {
		known[item.Path] = struct{}{}
	}
	s.logger.WithField("count", len(known)).Info("Initial scan found media folders")

	return known, nil
}

// monitorTick runs one monitor cycle: process folders that appeared since
// the last cycle, then refresh soon-to-expire links
func (s *Scheduler) monitorTick(ctx context.Context, known map[string]struct{}) error {
	opts := s.opts
	opts.RequireVideo = true
	opts.Limit = 0

	items, err := s.scanner.Scan(opts)
	if err != nil {
		return err
	}

	var fresh []models.MediaItem
	for _, item := range items {
		if _, ok := known[item.Path]; ok {
			continue
		}
		fresh = append(fresh, item)
	}

	if len(fresh) > 0 {
		s.logger.WithField("count", len(fresh)).Info("Found new media folders")
		s.refresher.RunPass(ctx, fresh)
		for _, item := range fresh {
			known[item.Path] = struct{}{}
		}
	}

	s.refresher.RefreshExpiring(ctx, expiryWindow)
	return nil
}

// mediaFolders lists the folders that currently hold completed media
func (s *Scheduler) mediaFolders() []models.MediaItem {
	opts := s.opts
	opts.RequireVideo = true
	opts.Limit = 0

	items, err := s.scanner.Scan(opts)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to scan for media folders")
		return nil
	}
	return items
}
