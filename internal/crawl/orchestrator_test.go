package crawl_test

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bramasta/komikarsip/internal/archive"
	"github.com/bramasta/komikarsip/internal/codec"
	"github.com/bramasta/komikarsip/internal/crawl"
	"github.com/bramasta/komikarsip/internal/fetch"
)

type fakeFetcher struct {
	pages       map[int][]fetch.Listing
	details     map[string]*fetch.Detail
	images      map[string][]string
	detailCalls []string
	imageCalls  []string
	warmUps     int
}

func (f *fakeFetcher) WarmUp(context.Context) bool {
	f.warmUps++
	return true
}

func (f *fakeFetcher) TotalPages(context.Context) int {
	return len(f.pages)
}

func (f *fakeFetcher) ListPage(_ context.Context, page int) []fetch.Listing {
	return f.pages[page]
}

func (f *fakeFetcher) Detail(_ context.Context, url string) (*fetch.Detail, error) {
	f.detailCalls = append(f.detailCalls, url)
	d, ok := f.details[url]
	if !ok {
		return nil, errors.New("unavailable")
	}
	return d, nil
}

func (f *fakeFetcher) ChapterImages(_ context.Context, url string) []string {
	f.imageCalls = append(f.imageCalls, url)
	return f.images[url]
}

func (f *fakeFetcher) TitleURL(slug string) string {
	return "https://site.test/komik/" + slug + "/"
}

func newOrchestrator(t *testing.T, fetcher *fakeFetcher) (*crawl.Orchestrator, *archive.Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := archive.New(dir, codec.New([]string{"site.test"}))
	require.NoError(t, err)
	return crawl.New(store, fetcher, zap.NewNop()), store, dir
}

func soloFetcher() *fakeFetcher {
	detailURL := "https://site.test/komik/solo/"
	return &fakeFetcher{
		pages: map[int][]fetch.Listing{
			1: {{
				Slug:   "solo",
				Title:  "Solo",
				URL:    detailURL,
				Type:   "Manhwa",
				Rating: 8.7,
			}},
		},
		details: map[string]*fetch.Detail{
			detailURL: {
				Title:  "Solo",
				Status: "Ongoing",
				Author: "A. Author",
				Genres: []string{"Action"},
				Chapters: []fetch.ChapterRef{
					{Chapter: "2", Title: "Ch 2", URL: "https://site.test/solo-chapter-2/", Date: "Feb 2"},
					{Chapter: "1", Title: "Ch 1", URL: "https://site.test/solo-chapter-1/", Date: "Jan 1"},
				},
			},
		},
		images: map[string][]string{
			"https://site.test/solo-chapter-1/": {"https://site.test/img/1-1.jpg"},
			"https://site.test/solo-chapter-2/": {"https://site.test/img/2-1.jpg", "https://site.test/img/2-2.jpg"},
		},
	}
}

// archiveContents maps relative file paths to raw bytes.
func archiveContents(t *testing.T, dir string) map[string][]byte {
	t.Helper()
	files := make(map[string][]byte)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files[rel] = raw
		return nil
	})
	require.NoError(t, err)
	return files
}

func TestCrawlTitleIsIdempotent(t *testing.T) {
	t.Parallel()

	fetcher := soloFetcher()
	orch, _, dir := newOrchestrator(t, fetcher)
	opts := crawl.Options{Chapters: true, Images: true}

	require.NoError(t, orch.CrawlTitle(context.Background(), "solo", opts))
	first := archiveContents(t, dir)
	require.NotEmpty(t, first)

	require.NoError(t, orch.CrawlTitle(context.Background(), "solo", opts))
	second := archiveContents(t, dir)

	assert.Equal(t, first, second, "second run must not rewrite any file")
	// Reuse means the detail page was fetched exactly once.
	assert.Len(t, fetcher.detailCalls, 1)
	assert.Len(t, fetcher.imageCalls, 2)
}

func TestCrawlTitleForceRefetches(t *testing.T) {
	t.Parallel()

	fetcher := soloFetcher()
	orch, _, _ := newOrchestrator(t, fetcher)
	opts := crawl.Options{Chapters: true, Images: true}

	require.NoError(t, orch.CrawlTitle(context.Background(), "solo", opts))
	opts.Force = true
	require.NoError(t, orch.CrawlTitle(context.Background(), "solo", opts))

	assert.Len(t, fetcher.detailCalls, 2)
	assert.Len(t, fetcher.imageCalls, 4)
}

func TestCrawlTitleFetchesImagesWhenSnapshotLacksThem(t *testing.T) {
	t.Parallel()

	fetcher := soloFetcher()
	orch, store, _ := newOrchestrator(t, fetcher)

	// First pass persists chapters without image lists.
	require.NoError(t, orch.CrawlTitle(context.Background(), "solo", crawl.Options{Chapters: true}))
	assert.Empty(t, fetcher.imageCalls)

	ch, err := store.LoadChapter("solo", "1")
	require.NoError(t, err)
	assert.Empty(t, ch.Images)

	// Second pass with images requested treats the imageless snapshots as
	// absent and re-fetches them.
	require.NoError(t, orch.CrawlTitle(context.Background(), "solo", crawl.Options{Chapters: true, Images: true}))
	assert.Len(t, fetcher.imageCalls, 2)

	ch, err = store.LoadChapter("solo", "1")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://site.test/img/1-1.jpg"}, ch.Images)
	assert.Equal(t, 1, ch.TotalImages)
}

func TestCrawlTitleBySlugUsesCanonicalURL(t *testing.T) {
	t.Parallel()

	fetcher := soloFetcher()
	orch, store, _ := newOrchestrator(t, fetcher)

	require.NoError(t, orch.CrawlTitle(context.Background(), "solo", crawl.Options{}))
	assert.Equal(t, []string{"https://site.test/komik/solo/"}, fetcher.detailCalls)

	meta, err := store.LoadTitle("solo")
	require.NoError(t, err)
	assert.Equal(t, "Solo", meta.Title)
	assert.Equal(t, 2, meta.TotalChapters)
}

func TestCrawlTitleUnavailableDetail(t *testing.T) {
	t.Parallel()

	fetcher := soloFetcher()
	fetcher.details = nil
	orch, _, _ := newOrchestrator(t, fetcher)

	err := orch.CrawlTitle(context.Background(), "ghost", crawl.Options{})
	assert.Error(t, err)
}

func TestCrawlCatalogRebuildsIndex(t *testing.T) {
	t.Parallel()

	pageOne := "https://site.test/komik/one/"
	pageTwo := "https://site.test/komik/two/"
	fetcher := &fakeFetcher{
		pages: map[int][]fetch.Listing{
			1: {{Slug: "one", Title: "One", URL: pageOne, Type: "Manga", Rating: 7}},
			2: {{Slug: "two", Title: "Two", URL: pageTwo, Type: "Manhua", Rating: 6}},
		},
		details: map[string]*fetch.Detail{
			pageOne: {Title: "One", Status: "Ongoing"},
			pageTwo: {Title: "Two", Status: "Completed"},
		},
	}
	orch, store, _ := newOrchestrator(t, fetcher)

	require.NoError(t, orch.CrawlCatalog(context.Background(), crawl.Options{}))
	assert.Equal(t, 1, fetcher.warmUps)

	idx := store.LoadIndex()
	require.Equal(t, 2, idx.TotalComics)
	require.Len(t, idx.Comics, 2)
	assert.Equal(t, "one", idx.Comics[0].Slug)
	assert.Equal(t, "Ongoing", idx.Comics[0].Status)
	assert.Equal(t, "two", idx.Comics[1].Slug)
	assert.False(t, idx.LastUpdated.IsZero())

	// A second run reuses every title yet still rebuilds a full index.
	require.NoError(t, orch.CrawlCatalog(context.Background(), crawl.Options{}))
	assert.Len(t, fetcher.detailCalls, 2, "titles were reused, not re-fetched")

	idx = store.LoadIndex()
	assert.Equal(t, 2, idx.TotalComics)
	assert.Len(t, idx.Comics, 2)
}

func TestCrawlCatalogKeepsListingOnDetailFailure(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{
		pages: map[int][]fetch.Listing{
			1: {{Slug: "broken", Title: "Broken", URL: "https://site.test/komik/broken/", Rating: 5}},
		},
	}
	orch, store, _ := newOrchestrator(t, fetcher)

	require.NoError(t, orch.CrawlCatalog(context.Background(), crawl.Options{}))

	// One bad title neither aborts the crawl nor falls out of the index.
	meta, err := store.LoadTitle("broken")
	require.NoError(t, err)
	assert.Equal(t, "Broken", meta.Title)

	idx := store.LoadIndex()
	assert.Equal(t, 1, idx.TotalComics)
}
