package library

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/maxxfly/trailerfin/internal/models"
	"github.com/maxxfly/trailerfin/internal/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

var (
	// folderMarkerRegex matches the Jellyfin/Kodi naming convention
	// "Title (Year) {imdb-tt1234567}"
	folderMarkerRegex = regexp.MustCompile(`\{imdb-(tt\d+)\}`)

	// seasonFolderRegex recognizes season folders so series resolution can
	// be lifted to the show root
	seasonFolderRegex = regexp.MustCompile(`^(?:season|saison|s)\s*\d+`)
)

var errLimitReached = errors.New("item limit reached")

// Scanner discovers media items beneath one or more library roots.
type Scanner struct {
	fs     afero.Fs
	logger *logrus.Logger
}

// NewScanner creates a new library scanner
func NewScanner(fs afero.Fs, logger *logrus.Logger) *Scanner {
	return &Scanner{
		fs:     fs,
		logger: logger,
	}
}

// Options control a library scan.
type Options struct {
	// Roots are the directories to walk
	Roots []string

	// UseNFO switches identification from folder-name markers to .nfo files
	UseNFO bool

	// Limit caps the number of discovered items; zero means no cap
	Limit int

	// RequireVideo keeps only folders holding exactly one video file.
	// Used by the monitor to recognize completed media folders.
	RequireVideo bool
}

// Scan walks the roots and returns discovered items in walk order. Folders
// holding more than one video file are skipped; the trailer for episodic
// content belongs to the show root, not to an episode folder. When the same
// IMDb ID appears under several folders the first one wins.
func (s *Scanner) Scan(opts Options) ([]models.MediaItem, error) {
	if len(opts.Roots) == 0 {
		return nil, fmt.Errorf("no scan roots provided")
	}
	for _, root := range opts.Roots {
		exists, err := afero.DirExists(s.fs, root)
		if err != nil {
			return nil, fmt.Errorf("failed to check scan root %s: %w", root, err)
		}
		if !exists {
			return nil, fmt.Errorf("scan root does not exist: %s", root)
		}
	}

	var (
		items           []models.MediaItem
		seenKeys        = make(map[string]struct{})
		processedSeries = make(map[string]struct{})
	)

	for _, root := range opts.Roots {
		s.logger.WithField("path", root).Info("Scanning directory")

		err := afero.Walk(s.fs, root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				s.logger.WithFields(logrus.Fields{
					"path":  path,
					"error": err.Error(),
				}).Warn("Skipping unreadable path")
				return nil
			}
			if !info.IsDir() {
				return nil
			}

			item, ok := s.identify(path, opts.UseNFO, processedSeries)
			if !ok {
				return nil
			}

			if _, seen := seenKeys[item.Key]; seen {
				s.logger.WithFields(logrus.Fields{
					"imdb_id": item.Key,
					"path":    item.Path,
				}).Debug("Skipping duplicate of already discovered item")
				return nil
			}

			count, countErr := s.countVideos(item.Path)
			if countErr != nil {
				s.logger.WithFields(logrus.Fields{
					"path":  item.Path,
					"error": countErr.Error(),
				}).Warn("Could not count video files, skipping folder")
				return nil
			}
			if count > 1 {
				// Episode folders; the show root carries the trailer
				s.logger.WithFields(logrus.Fields{
					"path":   item.Path,
					"videos": count,
				}).Debug("Skipping folder with multiple video files")
				return nil
			}
			if opts.RequireVideo && count != 1 {
				return nil
			}

			seenKeys[item.Key] = struct{}{}
			items = append(items, item)

			if opts.Limit > 0 && len(items) >= opts.Limit {
				s.logger.WithField("limit", opts.Limit).Info("Reached item limit, stopping collection")
				return errLimitReached
			}
			return nil
		})
		if err != nil {
			if errors.Is(err, errLimitReached) {
				break
			}
			return nil, fmt.Errorf("failed to walk %s: %w", root, err)
		}
	}

	return items, nil
}

// identify determines whether a folder is a media item and which IMDb ID it
// carries. In NFO mode a season folder is lifted to its show root, once per
// series.
func (s *Scanner) identify(path string, useNFO bool, processedSeries map[string]struct{}) (models.MediaItem, bool) {
	if useNFO {
		folderName := strings.ToLower(filepath.Base(path))
		if seasonFolderRegex.MatchString(folderName) {
			parent := filepath.Dir(path)
			if _, done := processedSeries[parent]; done {
				return models.MediaItem{}, false
			}

			id, _, ok := FindIMDbID(s.fs, parent)
			if !ok {
				return models.MediaItem{}, false
			}
			processedSeries[parent] = struct{}{}
			return models.MediaItem{Key: id, Path: parent, Series: true}, true
		}

		id, series, ok := FindIMDbID(s.fs, path)
		if !ok {
			return models.MediaItem{}, false
		}
		return models.MediaItem{Key: id, Path: path, Series: series}, true
	}

	// The marker must name this folder itself, not an ancestor
	base := filepath.Base(strings.TrimRight(path, string(os.PathSeparator)))
	m := folderMarkerRegex.FindStringSubmatch(base)
	if m == nil || !strings.HasSuffix(base, "{imdb-"+m[1]+"}") {
		return models.MediaItem{}, false
	}
	return models.MediaItem{Key: m[1], Path: path}, true
}

// countVideos counts video files directly inside dir
func (s *Scanner) countVideos(dir string) (int, error) {
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, entry := range entries {
		if !entry.IsDir() && utils.IsVideoFile(entry.Name()) {
			count++
		}
	}
	return count, nil
}
