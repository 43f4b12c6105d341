package refresher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/maxxfly/trailerfin/internal/models"
	"github.com/maxxfly/trailerfin/internal/output"
	"github.com/maxxfly/trailerfin/internal/resolver"
	"github.com/maxxfly/trailerfin/internal/state"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

type fakeResolver struct {
	mu    sync.Mutex
	calls int
	keys  []string
	delay time.Duration
	fn    func(item models.MediaItem) (resolver.Resolution, error)
}

func (f *fakeResolver) Resolve(ctx context.Context, item models.MediaItem, mode models.OutputMode) (resolver.Resolution, error) {
	f.mu.Lock()
	f.calls++
	f.keys = append(f.keys, item.Key)
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.fn(item)
}

func (f *fakeResolver) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type harness struct {
	fs          afero.Fs
	expirations *state.ExpirationStore
	ignores     *state.IgnoreStore
	sink        *output.Sink
	refresher   *Refresher
	resolver    *fakeResolver
}

func newHarness(t *testing.T, fake *fakeResolver, mode models.OutputMode, force bool) *harness {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	fs := afero.NewMemMapFs()
	expirations, err := state.NewExpirationStore(fs, "/data/expiration_times.json")
	if err != nil {
		t.Fatalf("Failed to create expiration store: %v", err)
	}
	ignores, err := state.NewIgnoreStore(fs, "/data/ignored_titles.json")
	if err != nil {
		t.Fatalf("Failed to create ignore store: %v", err)
	}
	sink := output.NewSink(fs, "video1.strm", logger)

	r, err := New(Config{
		Resolver:    fake,
		Expirations: expirations,
		Ignores:     ignores,
		Sink:        sink,
		Mode:        mode,
		Force:       force,
		Workers:     4,
		RetryWait:   time.Millisecond,
		Logger:      logger,
	})
	if err != nil {
		t.Fatalf("Failed to create refresher: %v", err)
	}

	return &harness{
		fs:          fs,
		expirations: expirations,
		ignores:     ignores,
		sink:        sink,
		refresher:   r,
		resolver:    fake,
	}
}

func successResolver(url string, expiresAt *time.Time) *fakeResolver {
	return &fakeResolver{fn: func(item models.MediaItem) (resolver.Resolution, error) {
		return resolver.Resolution{
			Source:    models.SourceIMDb,
			URL:       url,
			Language:  models.DefaultLanguage,
			ExpiresAt: expiresAt,
		}, nil
	}}
}

func TestPassResolvesNewItem(t *testing.T) {
	expires := time.Now().Add(6 * time.Hour)
	h := newHarness(t, successResolver("https://cdn.example.com/t.mp4#t=10", &expires), models.ModeLink, false)

	item := models.MediaItem{Key: "tt1234567", Path: "/media/Movie {imdb-tt1234567}"}
	summary := h.refresher.RunPass(context.Background(), []models.MediaItem{item})

	if summary.Refreshed != 1 {
		t.Fatalf("Expected 1 refreshed, got %+v", summary)
	}

	// Exactly one of record or ignore entry, never both, never neither
	record, ok := h.expirations.Get("tt1234567")
	if !ok {
		t.Fatal("Expected a trailer record")
	}
	if h.ignores.Contains("tt1234567") {
		t.Error("Resolved item must not be ignored")
	}

	if record.Language != models.DefaultLanguage {
		t.Errorf("Expected language %s, got %s", models.DefaultLanguage, record.Language)
	}
	if record.ExpiresAt == nil || !record.ExpiresAt.Equal(expires) {
		t.Errorf("Expected expiry %v, got %v", expires, record.ExpiresAt)
	}
	if record.ExpiresAt.Before(record.ResolvedAt) {
		t.Error("Record expiry must not precede its resolution time")
	}

	// Output materialized
	url, err := h.sink.ReadReference(item.Path)
	if err != nil || url != "https://cdn.example.com/t.mp4#t=10" {
		t.Errorf("Stream reference not written, got %q (%v)", url, err)
	}
}

func TestPassIgnoresWhenNoTrailer(t *testing.T) {
	fake := &fakeResolver{fn: func(item models.MediaItem) (resolver.Resolution, error) {
		return resolver.Resolution{}, fmt.Errorf("%w for %s", models.ErrNoTrailer, item.Key)
	}}
	h := newHarness(t, fake, models.ModeLink, false)

	item := models.MediaItem{Key: "tt0000000", Path: "/media/Obscure {imdb-tt0000000}"}
	summary := h.refresher.RunPass(context.Background(), []models.MediaItem{item})

	if summary.Ignored != 1 {
		t.Fatalf("Expected 1 ignored, got %+v", summary)
	}

	entry, ok := h.ignores.Get("tt0000000")
	if !ok {
		t.Fatal("Expected an ignore entry")
	}
	if entry.Reason != "No trailer available" {
		t.Errorf("Unexpected ignore reason: %s", entry.Reason)
	}
	if _, ok := h.expirations.Get("tt0000000"); ok {
		t.Error("Ignored item must not hold a record")
	}

	// The next pass must skip the item without consulting any catalog
	before := h.resolver.callCount()
	summary = h.refresher.RunPass(context.Background(), []models.MediaItem{item})
	if h.resolver.callCount() != before {
		t.Error("Ignored item triggered a resolution on the next pass")
	}
	if summary.Ignored != 1 {
		t.Errorf("Expected ignored state on next pass, got %+v", summary)
	}
}

func TestPassLeavesUpToDateRecordsUntouched(t *testing.T) {
	h := newHarness(t, successResolver("https://cdn.example.com/t.mp4", nil), models.ModeLink, false)

	expires := time.Now().Add(3 * time.Hour)
	existing := models.TrailerRecord{
		Key:        "tt0111161",
		Source:     models.SourceIMDb,
		URL:        "https://cdn.example.com/old.mp4",
		Language:   models.DefaultLanguage,
		Path:       "/media/Old {imdb-tt0111161}",
		ResolvedAt: time.Now().Add(-time.Hour),
		ExpiresAt:  &expires,
	}
	if err := h.expirations.Put(existing); err != nil {
		t.Fatalf("Failed to seed record: %v", err)
	}
	before := h.expirations.All()

	item := models.MediaItem{Key: "tt0111161", Path: existing.Path}
	summary := h.refresher.RunPass(context.Background(), []models.MediaItem{item})

	if summary.UpToDate != 1 {
		t.Fatalf("Expected 1 up to date, got %+v", summary)
	}
	if h.resolver.callCount() != 0 {
		t.Error("Up-to-date item must not be resolved")
	}
	if !reflect.DeepEqual(before, h.expirations.All()) {
		t.Error("Pass modified an up-to-date record")
	}
}

func TestExpiryBoundaryCountsAsExpired(t *testing.T) {
	// A record expiring exactly now needs resolution, not skipping
	now := time.Now()
	h := newHarness(t, successResolver("https://cdn.example.com/new.mp4", nil), models.ModeLink, false)
	h.refresher.now = func() time.Time { return now }

	boundary := now
	record := models.TrailerRecord{
		Key:        "tt0468569",
		Source:     models.SourceIMDb,
		URL:        "https://cdn.example.com/old.mp4",
		Path:       "/media/TDK {imdb-tt0468569}",
		ResolvedAt: now.Add(-6 * time.Hour),
		ExpiresAt:  &boundary,
	}
	if err := h.expirations.Put(record); err != nil {
		t.Fatalf("Failed to seed record: %v", err)
	}

	summary := h.refresher.RunPass(context.Background(), []models.MediaItem{{Key: "tt0468569", Path: record.Path}})

	if h.resolver.callCount() != 1 {
		t.Errorf("Boundary expiry must trigger resolution, got %d calls", h.resolver.callCount())
	}
	if summary.Refreshed != 1 {
		t.Errorf("Expected 1 refreshed, got %+v", summary)
	}
}

func TestForceBypassesIgnore(t *testing.T) {
	h := newHarness(t, successResolver("https://cdn.example.com/found.mp4", nil), models.ModeLink, true)

	if err := h.ignores.Add(models.IgnoreEntry{
		Key:         "tt0137523",
		Path:        "/media/FC {imdb-tt0137523}",
		Reason:      "No trailer available",
		LastChecked: time.Now().Add(-24 * time.Hour),
	}); err != nil {
		t.Fatalf("Failed to seed ignore entry: %v", err)
	}

	summary := h.refresher.RunPass(context.Background(), []models.MediaItem{{Key: "tt0137523", Path: "/media/FC {imdb-tt0137523}"}})

	if summary.Refreshed != 1 {
		t.Fatalf("Force must retry ignored items, got %+v", summary)
	}
	if h.ignores.Contains("tt0137523") {
		t.Error("Successful forced resolution must clear the ignore entry")
	}
	if _, ok := h.expirations.Get("tt0137523"); !ok {
		t.Error("Expected a record after forced resolution")
	}
}

func TestTransientFailureLeavesStateUntouched(t *testing.T) {
	fake := &fakeResolver{fn: func(item models.MediaItem) (resolver.Resolution, error) {
		return resolver.Resolution{}, models.Transient("tmdb request", errors.New("connection reset"))
	}}
	h := newHarness(t, fake, models.ModeLink, false)

	item := models.MediaItem{Key: "tt0110912", Path: "/media/PF {imdb-tt0110912}"}
	summary := h.refresher.RunPass(context.Background(), []models.MediaItem{item})

	if summary.Failed != 1 {
		t.Fatalf("Expected 1 failed, got %+v", summary)
	}

	// Bounded retries: initial attempt plus maxRetries
	if h.resolver.callCount() != maxRetries+1 {
		t.Errorf("Expected %d attempts, got %d", maxRetries+1, h.resolver.callCount())
	}

	// Exhausted transient failures never mutate the stores
	if _, ok := h.expirations.Get("tt0110912"); ok {
		t.Error("Transient failure must not write a record")
	}
	if h.ignores.Contains("tt0110912") {
		t.Error("Transient failure must not write an ignore entry")
	}
}

func TestUnavailableStreamDoesNotIgnore(t *testing.T) {
	fake := &fakeResolver{fn: func(item models.MediaItem) (resolver.Resolution, error) {
		return resolver.Resolution{}, fmt.Errorf("%w: restricted", models.ErrUnavailable)
	}}
	h := newHarness(t, fake, models.ModeLink, false)

	summary := h.refresher.RunPass(context.Background(), []models.MediaItem{{Key: "tt0133093", Path: "/media/M {imdb-tt0133093}"}})

	if summary.Failed != 1 {
		t.Fatalf("Expected 1 failed, got %+v", summary)
	}
	// Unavailable is not transient, one attempt is enough
	if h.resolver.callCount() != 1 {
		t.Errorf("Expected 1 attempt, got %d", h.resolver.callCount())
	}
	if h.ignores.Contains("tt0133093") {
		t.Error("Unavailable stream must not create an ignore entry")
	}
}

func TestConcurrentSameKeySingleResolution(t *testing.T) {
	fake := successResolver("https://cdn.example.com/t.mp4", nil)
	fake.delay = 50 * time.Millisecond
	h := newHarness(t, fake, models.ModeLink, false)

	item := models.MediaItem{Key: "tt0076759", Path: "/media/SW {imdb-tt0076759}"}
	items := []models.MediaItem{item, item, item, item}

	summary := h.refresher.RunPass(context.Background(), items)

	if h.resolver.callCount() != 1 {
		t.Errorf("Concurrent requests for one key must resolve once, got %d calls", h.resolver.callCount())
	}
	if _, ok := h.expirations.Get("tt0076759"); !ok {
		t.Error("Expected a record")
	}
	if summary.Failed != 0 {
		t.Errorf("No item may fail, got %+v", summary)
	}
}

func TestSkippedWithoutIdentifier(t *testing.T) {
	h := newHarness(t, successResolver("https://cdn.example.com/t.mp4", nil), models.ModeLink, false)

	summary := h.refresher.RunPass(context.Background(), []models.MediaItem{{Key: "", Path: "/media/Unidentified"}})

	if summary.Skipped != 1 {
		t.Fatalf("Expected 1 skipped, got %+v", summary)
	}
	if h.resolver.callCount() != 0 {
		t.Error("Unidentified item must not be resolved")
	}
}

func TestRefreshExpiring(t *testing.T) {
	h := newHarness(t, successResolver("https://cdn.example.com/fresh.mp4", nil), models.ModeLink, false)

	soon := time.Now().Add(30 * time.Minute)
	later := time.Now().Add(5 * time.Hour)
	put := func(key string, expires time.Time) {
		t.Helper()
		err := h.expirations.Put(models.TrailerRecord{
			Key:        key,
			Source:     models.SourceIMDb,
			URL:        "https://cdn.example.com/old.mp4",
			Path:       "/media/" + key,
			ResolvedAt: time.Now().Add(-time.Hour),
			ExpiresAt:  &expires,
		})
		if err != nil {
			t.Fatalf("Failed to seed record: %v", err)
		}
	}
	put("tt0000001", soon)
	put("tt0000002", later)

	summary := h.refresher.RefreshExpiring(context.Background(), time.Hour)

	if summary.Total != 1 {
		t.Fatalf("Expected 1 expiring item, got %+v", summary)
	}
	if h.resolver.callCount() != 1 || h.resolver.keys[0] != "tt0000001" {
		t.Errorf("Expected only the soon-expiring record to refresh, resolved %v", h.resolver.keys)
	}

	// The refreshed record replaces the old one
	record, _ := h.expirations.Get("tt0000001")
	if record.URL != "https://cdn.example.com/fresh.mp4" {
		t.Errorf("Record not refreshed: %s", record.URL)
	}
	record, _ = h.expirations.Get("tt0000002")
	if record.URL != "https://cdn.example.com/old.mp4" {
		t.Errorf("Record refreshed too early: %s", record.URL)
	}
}

func TestDownloadModeSkipsFinishedDownloads(t *testing.T) {
	h := newHarness(t, successResolver("https://cdn.example.com/t.mp4", nil), models.ModeDownload, false)

	if err := afero.WriteFile(h.fs, "/media/Movie/trailer.mp4", []byte("done"), 0644); err != nil {
		t.Fatalf("Failed to create trailer file: %v", err)
	}

	summary := h.refresher.RunPass(context.Background(), []models.MediaItem{{Key: "tt0000003", Path: "/media/Movie"}})

	if summary.UpToDate != 1 {
		t.Fatalf("Expected 1 up to date, got %+v", summary)
	}
	if h.resolver.callCount() != 0 {
		t.Error("Finished download must not be resolved again")
	}

	// Expiry windows mean nothing for downloaded files
	if s := h.refresher.RefreshExpiring(context.Background(), time.Hour); s.Total != 0 {
		t.Errorf("Download mode must not refresh expiring links, got %+v", s)
	}
}

func TestDownloadModeFetchesTrailer(t *testing.T) {
	payload := "video payload"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	}))
	defer server.Close()

	h := newHarness(t, successResolver(server.URL, nil), models.ModeDownload, false)
	h.fs.MkdirAll("/media/Movie", 0755)

	summary := h.refresher.RunPass(context.Background(), []models.MediaItem{{Key: "tt0000004", Path: "/media/Movie"}})

	if summary.Refreshed != 1 {
		t.Fatalf("Expected 1 refreshed, got %+v", summary)
	}
	content, err := afero.ReadFile(h.fs, "/media/Movie/trailer.mp4")
	if err != nil || string(content) != payload {
		t.Errorf("Trailer not downloaded, got %q (%v)", content, err)
	}
	if _, ok := h.expirations.Get("tt0000004"); !ok {
		t.Error("Download should still write a record")
	}
}

func TestSeedFromExistingReferences(t *testing.T) {
	h := newHarness(t, successResolver("", nil), models.ModeLink, false)

	expires := time.Now().Add(2 * time.Hour).Unix()
	writeRef := func(path, url string) {
		t.Helper()
		if _, err := h.sink.WriteReference(path, url); err != nil {
			t.Fatalf("Failed to write reference: %v", err)
		}
	}
	writeRef("/media/A", fmt.Sprintf("https://cdn.example.com/a.mp4?Expires=%d#t=10", expires))
	writeRef("/media/C", "https://cdn.example.com/c.mp4")
	writeRef("/media/D", "https://cdn.example.com/d.mp4")

	// C already holds a record, D is ignored; both must be left alone
	if err := h.expirations.Put(models.TrailerRecord{
		Key:        "tt0000103",
		Source:     models.SourceTMDB,
		URL:        "https://www.youtube.com/watch?v=kept",
		Path:       "/media/C",
		ResolvedAt: time.Now(),
	}); err != nil {
		t.Fatalf("Failed to seed record: %v", err)
	}
	if err := h.ignores.Add(models.IgnoreEntry{Key: "tt0000104", Path: "/media/D"}); err != nil {
		t.Fatalf("Failed to seed ignore entry: %v", err)
	}

	items := []models.MediaItem{
		{Key: "tt0000101", Path: "/media/A"},
		{Key: "tt0000102", Path: "/media/B"}, // no reference on disk
		{Key: "tt0000103", Path: "/media/C"},
		{Key: "tt0000104", Path: "/media/D"},
	}

	if seeded := h.refresher.Seed(items); seeded != 1 {
		t.Fatalf("Expected 1 seeded record, got %d", seeded)
	}

	record, ok := h.expirations.Get("tt0000101")
	if !ok {
		t.Fatal("Expected seeded record for tt0000101")
	}
	if record.ExpiresAt == nil || record.ExpiresAt.Unix() != expires {
		t.Errorf("Seeded expiry mismatch: %v", record.ExpiresAt)
	}

	record, _ = h.expirations.Get("tt0000103")
	if record.URL != "https://www.youtube.com/watch?v=kept" {
		t.Errorf("Existing record overwritten by seed: %s", record.URL)
	}
	if _, ok := h.expirations.Get("tt0000104"); ok {
		t.Error("Seeding must never give an ignored item a record")
	}
}
