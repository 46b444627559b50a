// Package crawl drives catalog and single-title crawls against the archive.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bramasta/komikarsip/internal/archive"
	"github.com/bramasta/komikarsip/internal/fetch"
)

// Store is the slice of the archive the orchestrator needs.
type Store interface {
	SaveIndex(idx *archive.Index) error
	LoadTitle(slug string) (*archive.Metadata, error)
	SaveTitle(slug string, meta *archive.Metadata) error
	LoadChapter(slug, chapterID string) (*archive.Chapter, error)
	SaveChapter(slug, chapterID string, ch *archive.Chapter) error
}

// Fetcher is the live-site facade the orchestrator consumes.
type Fetcher interface {
	WarmUp(ctx context.Context) bool
	TotalPages(ctx context.Context) int
	ListPage(ctx context.Context, page int) []fetch.Listing
	Detail(ctx context.Context, url string) (*fetch.Detail, error)
	ChapterImages(ctx context.Context, url string) []string
	TitleURL(slug string) string
}

// Options select what a crawl covers.
type Options struct {
	StartPage int
	EndPage   int // 0 discovers the page count from the site
	Chapters  bool
	Images    bool
	Force     bool
}

// Orchestrator walks the catalog (or one title), persists metadata and
// chapters, and rebuilds the index. It only ever checks for local presence;
// comparing archived content against the live site is the integrity
// engine's job.
type Orchestrator struct {
	store   Store
	fetcher Fetcher
	now     func() time.Time
	logger  *zap.Logger
}

// New builds an Orchestrator.
func New(store Store, fetcher Fetcher, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		store:   store,
		fetcher: fetcher,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger,
	}
}

// CrawlCatalog crawls every listing page in the configured range and
// finishes by rebuilding the index wholesale from the titles it saw.
func (o *Orchestrator) CrawlCatalog(ctx context.Context, opts Options) error {
	start := opts.StartPage
	if start < 1 {
		start = 1
	}
	end := opts.EndPage
	if end == 0 {
		end = o.fetcher.TotalPages(ctx)
		o.logger.Info("Discovered catalog size", zap.Int("pages", end))
	}

	if !o.fetcher.WarmUp(ctx) {
		o.logger.Warn("Warm-up never succeeded; continuing anyway")
	}

	var summaries []archive.ComicSummary
	for page := start; page <= end; page++ {
		o.logger.Info("Scraping page", zap.Int("page", page), zap.Int("of", end))
		listings := o.fetcher.ListPage(ctx, page)
		o.logger.Info("Found listings", zap.Int("count", len(listings)), zap.Int("page", page))

		for _, listing := range listings {
			meta := o.titleMetadata(ctx, listing, opts.Force)
			if opts.Chapters {
				o.acquireChapters(ctx, listing.Slug, meta, opts)
			}
			summaries = append(summaries, archive.ComicSummary{
				Slug:          listing.Slug,
				Title:         meta.Title,
				Type:          meta.Type,
				Status:        meta.Status,
				Rating:        meta.Rating,
				TotalChapters: meta.TotalChapters,
			})
		}
	}

	idx := &archive.Index{
		LastUpdated: o.now(),
		TotalComics: len(summaries),
		Comics:      summaries,
	}
	if err := o.store.SaveIndex(idx); err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}
	o.logger.Info("Catalog crawl complete", zap.Int("total_comics", len(summaries)))
	return nil
}

// CrawlTitle crawls one title by slug or full URL. The index is not
// touched.
func (o *Orchestrator) CrawlTitle(ctx context.Context, slugOrURL string, opts Options) error {
	url := slugOrURL
	if !strings.HasPrefix(url, "http") {
		url = o.fetcher.TitleURL(slugOrURL)
	}
	slug := fetch.SlugFromURL(url)

	if !o.fetcher.WarmUp(ctx) {
		o.logger.Warn("Warm-up never succeeded; continuing anyway")
	}

	var meta *archive.Metadata
	if !opts.Force {
		existing, err := o.store.LoadTitle(slug)
		switch {
		case err == nil:
			o.logger.Info("Using existing metadata", zap.String("slug", slug))
			meta = existing
		case !errors.Is(err, archive.ErrNotFound):
			o.logger.Warn("Failed to load metadata; re-fetching", zap.String("slug", slug), zap.Error(err))
		}
	}
	if meta == nil {
		o.logger.Info("Scraping title", zap.String("url", url))
		detail, err := o.fetcher.Detail(ctx, url)
		if err != nil {
			return fmt.Errorf("scrape title %q: %w", slug, err)
		}
		meta = buildMetadata(fetch.Listing{Slug: slug, URL: url}, detail, o.now())
		if err := o.store.SaveTitle(slug, meta); err != nil {
			return fmt.Errorf("save title %q: %w", slug, err)
		}
	}

	if opts.Chapters || opts.Images {
		o.acquireChapters(ctx, slug, meta, opts)
	}
	return nil
}

// titleMetadata reuses the persisted metadata document unless forced or
// absent; otherwise it fetches the detail page and persists a fresh one.
// A failed detail fetch still persists the listing-level fields so the
// title is represented in the archive.
func (o *Orchestrator) titleMetadata(ctx context.Context, listing fetch.Listing, force bool) *archive.Metadata {
	if !force {
		meta, err := o.store.LoadTitle(listing.Slug)
		if err == nil {
			o.logger.Info("Using existing metadata", zap.String("slug", listing.Slug))
			return meta
		}
		if !errors.Is(err, archive.ErrNotFound) {
			o.logger.Warn("Failed to load metadata; re-fetching",
				zap.String("slug", listing.Slug),
				zap.Error(err),
			)
		}
	}

	o.logger.Info("Processing title", zap.String("slug", listing.Slug), zap.String("title", listing.Title))
	detail, err := o.fetcher.Detail(ctx, listing.URL)
	if err != nil {
		o.logger.Warn("Detail fetch failed; keeping listing fields only",
			zap.String("slug", listing.Slug),
			zap.Error(err),
		)
	}
	meta := buildMetadata(listing, detail, o.now())
	if err := o.store.SaveTitle(listing.Slug, meta); err != nil {
		o.logger.Error("Failed to save title metadata",
			zap.String("slug", listing.Slug),
			zap.Error(err),
		)
	}
	return meta
}

// acquireChapters fetches chapters that are missing locally (or forced, or
// lacking images when images were requested). Presence is the only test; it
// never compares content.
func (o *Orchestrator) acquireChapters(ctx context.Context, slug string, meta *archive.Metadata, opts Options) {
	for _, ref := range meta.Chapters {
		existing, err := o.store.LoadChapter(slug, ref.Chapter)
		missing := err != nil
		if err != nil && !errors.Is(err, archive.ErrNotFound) {
			o.logger.Warn("Failed to load chapter snapshot; re-fetching",
				zap.String("slug", slug),
				zap.String("chapter", ref.Chapter),
				zap.Error(err),
			)
		}

		needed := opts.Force || missing || (opts.Images && len(existing.Images) == 0)
		if !needed {
			o.logger.Debug("Skipping chapter (already exists)",
				zap.String("slug", slug),
				zap.String("chapter", ref.Chapter),
			)
			continue
		}

		ch := &archive.Chapter{
			Chapter:   ref.Chapter,
			Title:     ref.Title,
			URL:       ref.URL,
			Date:      ref.Date,
			ScrapedAt: o.now(),
		}
		if opts.Images {
			o.logger.Info("Scraping chapter images",
				zap.String("slug", slug),
				zap.String("chapter", ref.Chapter),
			)
			images := o.fetcher.ChapterImages(ctx, ref.URL)
			ch.Images = images
			ch.TotalImages = len(images)
		}
		if err := o.store.SaveChapter(slug, ref.Chapter, ch); err != nil {
			o.logger.Error("Failed to save chapter",
				zap.String("slug", slug),
				zap.String("chapter", ref.Chapter),
				zap.Error(err),
			)
		}
	}
}

// buildMetadata merges listing-level fields with a detail page. detail may
// be nil when the fetch failed.
func buildMetadata(listing fetch.Listing, detail *fetch.Detail, scrapedAt time.Time) *archive.Metadata {
	meta := &archive.Metadata{
		Slug:      listing.Slug,
		Title:     listing.Title,
		URL:       listing.URL,
		CoverURL:  listing.CoverURL,
		Type:      listing.Type,
		IsColored: listing.IsColored,
		Rating:    listing.Rating,
		ScrapedAt: scrapedAt,
	}
	if detail == nil {
		return meta
	}

	if detail.Title != "" {
		meta.Title = detail.Title
	}
	if detail.CoverURL != "" {
		meta.CoverURL = detail.CoverURL
	}
	if detail.Type != "" {
		meta.Type = detail.Type
	}
	if detail.Rating > 0 {
		meta.Rating = detail.Rating
	}
	meta.AlternativeTitles = detail.AlternativeTitles
	meta.Status = detail.Status
	meta.Author = detail.Author
	meta.Illustrator = detail.Illustrator
	meta.Demographic = detail.Demographic
	meta.Themes = detail.Themes
	meta.Genres = detail.Genres
	meta.Synopsis = detail.Synopsis

	meta.Chapters = make([]archive.ChapterRef, len(detail.Chapters))
	for i, ch := range detail.Chapters {
		meta.Chapters[i] = archive.ChapterRef{
			Chapter: ch.Chapter,
			Title:   ch.Title,
			URL:     ch.URL,
			Date:    ch.Date,
		}
	}
	meta.TotalChapters = len(meta.Chapters)
	return meta
}
