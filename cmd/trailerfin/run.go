package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/maxxfly/trailerfin/internal/api"
	"github.com/maxxfly/trailerfin/internal/config"
	"github.com/maxxfly/trailerfin/internal/library"
	"github.com/maxxfly/trailerfin/internal/models"
	"github.com/maxxfly/trailerfin/internal/output"
	"github.com/maxxfly/trailerfin/internal/refresher"
	"github.com/maxxfly/trailerfin/internal/resolver"
	"github.com/maxxfly/trailerfin/internal/scheduler"
	"github.com/maxxfly/trailerfin/internal/services/imdb"
	"github.com/maxxfly/trailerfin/internal/services/tmdb"
	"github.com/maxxfly/trailerfin/internal/services/ytdlp"
	"github.com/maxxfly/trailerfin/internal/state"
	"github.com/maxxfly/trailerfin/internal/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

func run(ctx context.Context, opts runOptions) error {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.workers > 0 {
		cfg.Workers = opts.workers
	}
	if opts.language != "" {
		cfg.Language = opts.language
	}

	roots, err := cfg.ScanRoots(opts.dirs)
	if err != nil {
		return err
	}

	// 2. Setup logger
	logger := utils.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("Starting TrailerFin")
	logger.WithField("data_dir", filepath.Dir(cfg.ExpirationFile)).Info("Configuration loaded")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Load persisted state
	fs := afero.NewOsFs()
	expirations, err := state.NewExpirationStore(fs, cfg.ExpirationFile)
	if err != nil {
		return fmt.Errorf("failed to load expiration store: %w", err)
	}
	ignores, err := state.NewIgnoreStore(fs, cfg.IgnoreFile)
	if err != nil {
		return fmt.Errorf("failed to load ignore store: %w", err)
	}

	// 4. Initialize library index
	db, err := models.NewDatabase(cfg.DatabaseFile)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()
	logger.Info("Database initialized")

	// 5. Initialize catalogs. The language catalog is optional: no key, an
	// invalid key, or a missing yt-dlp binary all degrade to IMDb only.
	var languageCatalog resolver.LanguageCatalog
	if cfg.TMDBAPIKey != "" {
		tmdbClient, err := tmdb.NewClient(cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize TMDB client: %w", err)
		}
		if err := tmdbClient.ValidateKey(ctx); errors.Is(err, tmdb.ErrInvalidAPIKey) {
			logger.Warn("TMDB API key is invalid, using IMDb only")
		} else {
			if err != nil {
				logger.WithError(err).Warn("Could not validate TMDB API key, continuing")
			}
			languageCatalog = tmdbClient
			logger.Info("TMDB client initialized")
		}
	} else {
		logger.Info("No TMDB API key configured, using IMDb only")
	}

	imdbClient := imdb.NewClient(logger)
	ytdlpClient := ytdlp.NewClient(cfg.YtdlpPath, logger)
	if languageCatalog != nil && !ytdlpClient.Available() {
		logger.Warn("yt-dlp binary not found, language catalog disabled")
		languageCatalog = nil
	}

	// 6. Build the resolution pipeline
	res := resolver.NewResolver(languageCatalog, imdbClient, ytdlpClient, cfg.Language, cfg.VideoStartTime, logger)

	mode := models.ModeLink
	if opts.download {
		mode = models.ModeDownload
	}
	sink := output.NewSink(fs, cfg.VideoFilename, logger)

	ref, err := refresher.New(refresher.Config{
		Resolver:    res,
		Expirations: expirations,
		Ignores:     ignores,
		Sink:        sink,
		Database:    db,
		Mode:        mode,
		Force:       opts.force,
		Workers:     cfg.Workers,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("failed to build refresher: %w", err)
	}

	// 7. Build the scanner and scheduler
	scanner := library.NewScanner(fs, logger)
	scanOpts := library.Options{
		Roots:  roots,
		UseNFO: opts.useNFO,
		Limit:  opts.limit,
	}
	sched := scheduler.NewScheduler(scanner, ref, expirations, scanOpts, cfg.ScheduleDays, logger)

	// 8. Run the selected mode
	switch {
	case opts.monitor:
		return runDaemon(ctx, cfg, db, expirations, ignores, logger, sched.Monitor)
	case opts.schedule:
		return runDaemon(ctx, cfg, db, expirations, ignores, logger, func(ctx context.Context) error {
			if err := sched.Start(ctx); err != nil {
				return err
			}
			defer sched.Stop()
			<-ctx.Done()
			return nil
		})
	default:
		return sched.RunOnce(ctx)
	}
}

// runDaemon runs a long-lived mode alongside the HTTP status server. Either
// one failing, or a shutdown signal, stops both.
func runDaemon(
	ctx context.Context,
	cfg *config.Config,
	db *models.Database,
	expirations *state.ExpirationStore,
	ignores *state.IgnoreStore,
	logger *logrus.Logger,
	loop func(context.Context) error,
) error {
	server := api.NewServer(cfg, db, expirations, ignores, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx)
	})
	g.Go(func() error {
		return loop(gctx)
	})

	logger.Info("TrailerFin is running")
	err := g.Wait()
	logger.Info("TrailerFin stopped")
	return err
}
