package archive_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bramasta/komikarsip/internal/archive"
	"github.com/bramasta/komikarsip/internal/codec"
)

func newStore(t *testing.T) (*archive.Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := archive.New(dir, codec.New([]string{"example-site"}))
	require.NoError(t, err)
	return store, dir
}

func TestNewRequiresDataDir(t *testing.T) {
	t.Parallel()

	_, err := archive.New("  ", codec.New(nil))
	assert.Error(t, err)
}

func TestNewCreatesComicsDir(t *testing.T) {
	t.Parallel()

	_, dir := newStore(t)
	info, err := os.Stat(filepath.Join(dir, "comics"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLoadIndexDefaultWhenMissing(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t)
	idx := store.LoadIndex()
	require.NotNil(t, idx)
	assert.Zero(t, idx.TotalComics)
	assert.Empty(t, idx.Comics)
}

func TestSaveAndLoadIndex(t *testing.T) {
	t.Parallel()

	store, dir := newStore(t)
	idx := &archive.Index{
		LastUpdated: time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC),
		TotalComics: 1,
		Comics: []archive.ComicSummary{
			{Slug: "solo", Title: "Solo", Type: "Manhwa", Status: "Ongoing", Rating: 8.7, TotalChapters: 12},
		},
	}
	require.NoError(t, store.SaveIndex(idx))

	got := store.LoadIndex()
	assert.Equal(t, idx.TotalComics, got.TotalComics)
	assert.Equal(t, idx.Comics, got.Comics)

	// No stray temp files after the rename publish.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".tmp-"), "leftover temp file %s", e.Name())
	}
}

func TestSaveTitleEncodesSensitiveURLsOnDisk(t *testing.T) {
	t.Parallel()

	store, dir := newStore(t)
	meta := &archive.Metadata{
		Slug:     "solo",
		Title:    "Solo",
		URL:      "https://example-site.ch/komik/solo/",
		CoverURL: "https://cdn.other.net/solo.jpg",
		Chapters: []archive.ChapterRef{
			{Chapter: "1", Title: "Ch 1", URL: "https://example-site.ch/solo-chapter-1/", Date: "Jan 1"},
		},
		TotalChapters: 1,
	}
	require.NoError(t, store.SaveTitle("solo", meta))

	raw, err := os.ReadFile(filepath.Join(dir, "comics", "solo", "metadata.json"))
	require.NoError(t, err)
	content := string(raw)
	assert.NotContains(t, content, "example-site", "sensitive host must not appear verbatim")
	assert.Contains(t, content, "b64:")
	assert.Contains(t, content, "cdn.other.net", "non-sensitive hosts stay readable")

	// The chapters subdirectory is created alongside the metadata.
	info, err := os.Stat(filepath.Join(dir, "comics", "solo", "chapters"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	got, err := store.LoadTitle("solo")
	require.NoError(t, err)
	assert.Equal(t, meta.URL, got.URL)
	assert.Equal(t, meta.Chapters[0].URL, got.Chapters[0].URL)
	assert.Equal(t, meta.CoverURL, got.CoverURL)
}

func TestLoadTitleNotFound(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t)
	_, err := store.LoadTitle("missing")
	assert.ErrorIs(t, err, archive.ErrNotFound)
}

func TestSaveAndLoadChapter(t *testing.T) {
	t.Parallel()

	store, dir := newStore(t)
	ch := &archive.Chapter{
		Chapter:     "10.5",
		Title:       "Ch 10.5",
		URL:         "https://example-site.ch/solo-chapter-10-5/",
		Date:        "Feb 2",
		ScrapedAt:   time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC),
		Images:      []string{"https://example-site.ch/img/1.jpg", "https://cdn.other.net/2.jpg"},
		TotalImages: 2,
	}
	require.NoError(t, store.SaveChapter("solo", "10.5", ch))

	name := "chapter-" + archive.NormalizeChapterID("10.5") + ".json"
	raw, err := os.ReadFile(filepath.Join(dir, "comics", "solo", "chapters", name))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "example-site")

	got, err := store.LoadChapter("solo", "10.5")
	require.NoError(t, err)
	assert.Equal(t, ch.Images, got.Images)
	assert.Equal(t, ch.URL, got.URL)
	assert.Equal(t, 2, got.TotalImages)
}

func TestLoadChapterMissingDirectoryIsNotFound(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t)
	// Neither the title directory nor the file exist; callers must not be
	// able to tell the difference.
	_, err := store.LoadChapter("ghost", "1")
	assert.ErrorIs(t, err, archive.ErrNotFound)

	require.NoError(t, store.SaveTitle("ghost", &archive.Metadata{Slug: "ghost"}))
	_, err = store.LoadChapter("ghost", "1")
	assert.ErrorIs(t, err, archive.ErrNotFound)
}

func TestNormalizeChapterIDAvoidsCollisions(t *testing.T) {
	t.Parallel()

	ids := []string{"1.5", "1-5", "10.5", "105", "extra 1", "extra-1", "extra.1"}
	seen := make(map[string]string)
	for _, id := range ids {
		norm := archive.NormalizeChapterID(id)
		if prev, dup := seen[norm]; dup {
			t.Fatalf("ids %q and %q normalize to the same token %q", prev, id, norm)
		}
		seen[norm] = id
		assert.NotContains(t, norm, ".")
		assert.NotContains(t, norm, " ")
	}
}

func TestListTitles(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t)
	slugs, err := store.ListTitles()
	require.NoError(t, err)
	assert.Empty(t, slugs)

	require.NoError(t, store.SaveTitle("alpha", &archive.Metadata{Slug: "alpha"}))
	require.NoError(t, store.SaveTitle("beta", &archive.Metadata{Slug: "beta"}))

	slugs, err = store.ListTitles()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alpha", "beta"}, slugs)
}

func TestChapterOverwriteIsWholesale(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t)
	first := &archive.Chapter{
		Chapter:      "1",
		Images:       []string{"a", "b"},
		TotalImages:  2,
		UpdatedVia:   "integrity_checker",
		UpdateReason: "MORE IMAGES (Local: 1 -> Live: 2)",
	}
	require.NoError(t, store.SaveChapter("solo", "1", first))

	second := &archive.Chapter{Chapter: "1", Images: []string{"c"}, TotalImages: 1}
	require.NoError(t, store.SaveChapter("solo", "1", second))

	got, err := store.LoadChapter("solo", "1")
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, got.Images)
	assert.Equal(t, 1, got.TotalImages)
	// Fields from the first write must not leak through the overwrite.
	assert.Empty(t, got.UpdatedVia)
	assert.Empty(t, got.UpdateReason)
}
