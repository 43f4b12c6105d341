package scheduler

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/maxxfly/trailerfin/internal/library"
	"github.com/maxxfly/trailerfin/internal/models"
	"github.com/maxxfly/trailerfin/internal/output"
	"github.com/maxxfly/trailerfin/internal/refresher"
	"github.com/maxxfly/trailerfin/internal/resolver"
	"github.com/maxxfly/trailerfin/internal/state"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

type fakeResolver struct {
	mu    sync.Mutex
	calls int
	keys  []string
}

func (f *fakeResolver) Resolve(ctx context.Context, item models.MediaItem, mode models.OutputMode) (resolver.Resolution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.keys = append(f.keys, item.Key)
	return resolver.Resolution{
		Source:   models.SourceIMDb,
		URL:      "https://cdn.example.com/" + item.Key + ".mp4",
		Language: models.DefaultLanguage,
	}, nil
}

func (f *fakeResolver) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type harness struct {
	fs          afero.Fs
	scheduler   *Scheduler
	resolver    *fakeResolver
	expirations *state.ExpirationStore
	sink        *output.Sink
}

func newHarness(t *testing.T, roots []string) *harness {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	fs := afero.NewMemMapFs()
	for _, root := range roots {
		if err := fs.MkdirAll(root, 0755); err != nil {
			t.Fatalf("Failed to create scan root: %v", err)
		}
	}

	expirations, err := state.NewExpirationStore(fs, "/data/trailer_expirations.json")
	if err != nil {
		t.Fatalf("Failed to create expiration store: %v", err)
	}
	ignores, err := state.NewIgnoreStore(fs, "/data/ignored_titles.json")
	if err != nil {
		t.Fatalf("Failed to create ignore store: %v", err)
	}
	sink := output.NewSink(fs, "video1.strm", logger)

	fake := &fakeResolver{}
	ref, err := refresher.New(refresher.Config{
		Resolver:    fake,
		Expirations: expirations,
		Ignores:     ignores,
		Sink:        sink,
		Mode:        models.ModeLink,
		Workers:     2,
		RetryWait:   time.Millisecond,
		Logger:      logger,
	})
	if err != nil {
		t.Fatalf("Failed to create refresher: %v", err)
	}

	scanner := library.NewScanner(fs, logger)
	sched := NewScheduler(scanner, ref, expirations, library.Options{Roots: roots}, 1, logger)

	return &harness{
		fs:          fs,
		scheduler:   sched,
		resolver:    fake,
		expirations: expirations,
		sink:        sink,
	}
}

func addMovie(t *testing.T, fs afero.Fs, path string) {
	t.Helper()
	if err := fs.MkdirAll(path, 0755); err != nil {
		t.Fatalf("Failed to create media folder: %v", err)
	}
	if err := afero.WriteFile(fs, filepath.Join(path, "movie.mkv"), []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to create video file: %v", err)
	}
}

func TestRunOnce(t *testing.T) {
	h := newHarness(t, []string{"/media"})
	addMovie(t, h.fs, "/media/Heat (1995) {imdb-tt0113277}")
	addMovie(t, h.fs, "/media/Ronin (1998) {imdb-tt0122690}")

	if err := h.scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if h.resolver.callCount() != 2 {
		t.Errorf("Expected 2 resolutions, got %d", h.resolver.callCount())
	}
	if h.expirations.Len() != 2 {
		t.Errorf("Expected 2 records, got %d", h.expirations.Len())
	}

	url, err := h.sink.ReadReference("/media/Heat (1995) {imdb-tt0113277}")
	if err != nil || url == "" {
		t.Errorf("Stream reference not written, got %q (%v)", url, err)
	}
}

func TestRunOnceMissingRoot(t *testing.T) {
	h := newHarness(t, []string{"/media"})
	h.scheduler.opts.Roots = []string{"/gone"}

	if err := h.scheduler.RunOnce(context.Background()); err == nil {
		t.Fatal("Expected error for missing scan root")
	}
}

func TestBootstrapSeedsExistingReferences(t *testing.T) {
	h := newHarness(t, []string{"/media"})
	path := "/media/Heat (1995) {imdb-tt0113277}"
	addMovie(t, h.fs, path)

	expires := time.Now().Add(4 * time.Hour).Unix()
	url := fmt.Sprintf("https://cdn.example.com/heat.mp4?Expires=%d", expires)
	if _, err := h.sink.WriteReference(path, url); err != nil {
		t.Fatalf("Failed to write reference: %v", err)
	}

	known, err := h.scheduler.bootstrap(context.Background())
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	if h.resolver.callCount() != 0 {
		t.Errorf("Seeding must not resolve, got %d calls", h.resolver.callCount())
	}
	record, ok := h.expirations.Get("tt0113277")
	if !ok {
		t.Fatal("Expected a seeded record")
	}
	if record.ExpiresAt == nil || record.ExpiresAt.Unix() != expires {
		t.Errorf("Seeded expiry mismatch: %v", record.ExpiresAt)
	}
	if _, ok := known[path]; !ok {
		t.Errorf("Media folder not tracked: %v", known)
	}
}

func TestBootstrapRunsFullPassWhenNoReferences(t *testing.T) {
	h := newHarness(t, []string{"/media"})
	addMovie(t, h.fs, "/media/Heat (1995) {imdb-tt0113277}")

	if _, err := h.scheduler.bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	if h.resolver.callCount() != 1 {
		t.Errorf("Expected full pass to resolve 1 item, got %d calls", h.resolver.callCount())
	}
	if _, ok := h.expirations.Get("tt0113277"); !ok {
		t.Error("Full pass did not record the item")
	}
}

func TestMonitorTickProcessesNewFolders(t *testing.T) {
	h := newHarness(t, []string{"/media"})
	addMovie(t, h.fs, "/media/Heat (1995) {imdb-tt0113277}")

	known, err := h.scheduler.bootstrap(context.Background())
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	before := h.resolver.callCount()

	// A folder appears between cycles
	addMovie(t, h.fs, "/media/Ronin (1998) {imdb-tt0122690}")

	if err := h.scheduler.monitorTick(context.Background(), known); err != nil {
		t.Fatalf("Monitor tick failed: %v", err)
	}

	if h.resolver.callCount() != before+1 {
		t.Fatalf("Expected 1 new resolution, got %d", h.resolver.callCount()-before)
	}
	if h.resolver.keys[len(h.resolver.keys)-1] != "tt0122690" {
		t.Errorf("Wrong item resolved: %v", h.resolver.keys)
	}

	// The folder is known now; the next cycle leaves it alone
	if err := h.scheduler.monitorTick(context.Background(), known); err != nil {
		t.Fatalf("Monitor tick failed: %v", err)
	}
	if h.resolver.callCount() != before+1 {
		t.Errorf("Known folder resolved again, got %d calls", h.resolver.callCount()-before)
	}
}

func TestMonitorTickRefreshesExpiringLinks(t *testing.T) {
	h := newHarness(t, []string{"/media"})
	path := "/media/Heat (1995) {imdb-tt0113277}"
	addMovie(t, h.fs, path)

	soon := time.Now().Add(30 * time.Minute)
	if err := h.expirations.Put(models.TrailerRecord{
		Key:        "tt0113277",
		Source:     models.SourceIMDb,
		URL:        "https://cdn.example.com/stale.mp4",
		Path:       path,
		ResolvedAt: time.Now().Add(-5 * time.Hour),
		ExpiresAt:  &soon,
	}); err != nil {
		t.Fatalf("Failed to seed record: %v", err)
	}

	known := map[string]struct{}{path: {}}
	if err := h.scheduler.monitorTick(context.Background(), known); err != nil {
		t.Fatalf("Monitor tick failed: %v", err)
	}

	if h.resolver.callCount() != 1 {
		t.Fatalf("Expected the expiring link to refresh, got %d calls", h.resolver.callCount())
	}
	record, _ := h.expirations.Get("tt0113277")
	if record.URL != "https://cdn.example.com/tt0113277.mp4" {
		t.Errorf("Record not refreshed: %s", record.URL)
	}
}
