package integrity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bramasta/komikarsip/internal/archive"
)

// provenance tags snapshots rewritten by an integrity pass.
const provenance = "integrity_checker"

// Store is the slice of the archive the engine needs.
type Store interface {
	LoadTitle(slug string) (*archive.Metadata, error)
	LoadChapter(slug, chapterID string) (*archive.Chapter, error)
	SaveChapter(slug, chapterID string, ch *archive.Chapter) error
	ListTitles() ([]string, error)
}

// ImageFetcher yields the live image list for a chapter URL. A failed fetch
// yields an empty list.
type ImageFetcher interface {
	ChapterImages(ctx context.Context, url string) []string
}

// Engine re-visits already-archived chapters and replaces the ones whose
// live counterpart grew or rotated its image URLs. It never acquires new
// chapters; that is the orchestrator's job.
type Engine struct {
	store   Store
	fetcher ImageFetcher
	now     func() time.Time
	logger  *zap.Logger
}

// NewEngine builds an Engine.
func NewEngine(store Store, fetcher ImageFetcher, logger *zap.Logger) *Engine {
	return &Engine{
		store:   store,
		fetcher: fetcher,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger,
	}
}

// Report summarizes one integrity pass over a title.
type Report struct {
	Checked int
	Updated int
	Skipped int
}

// CheckTitle checks every archived chapter of a title against the live
// site. Chapters with no local snapshot are skipped, never created. A
// single bad chapter never aborts the pass.
func (e *Engine) CheckTitle(ctx context.Context, slug string) (Report, error) {
	meta, err := e.store.LoadTitle(slug)
	if err != nil {
		return Report{}, fmt.Errorf("load metadata for %q: %w", slug, err)
	}

	var rep Report
	for _, ref := range meta.Chapters {
		local, err := e.store.LoadChapter(slug, ref.Chapter)
		if errors.Is(err, archive.ErrNotFound) {
			e.logger.Debug("Chapter missing locally; skipping",
				zap.String("slug", slug),
				zap.String("chapter", ref.Chapter),
			)
			rep.Skipped++
			continue
		}
		if err != nil {
			e.logger.Warn("Failed to load chapter snapshot",
				zap.String("slug", slug),
				zap.String("chapter", ref.Chapter),
				zap.Error(err),
			)
			rep.Skipped++
			continue
		}

		rep.Checked++
		live := e.fetcher.ChapterImages(ctx, ref.URL)
		result := Evaluate(local, live)

		switch result.Verdict {
		case VerdictGrowth, VerdictDrift:
			e.logger.Info("Update found",
				zap.String("slug", slug),
				zap.String("chapter", ref.Chapter),
				zap.String("reason", result.Reason),
			)
			updated := &archive.Chapter{
				Chapter:      ref.Chapter,
				Title:        ref.Title,
				URL:          ref.URL,
				Date:         ref.Date,
				ScrapedAt:    e.now(),
				Images:       live,
				TotalImages:  len(live),
				UpdatedVia:   provenance,
				UpdateReason: result.Reason,
			}
			if err := e.store.SaveChapter(slug, ref.Chapter, updated); err != nil {
				e.logger.Error("Failed to save updated chapter",
					zap.String("slug", slug),
					zap.String("chapter", ref.Chapter),
					zap.Error(err),
				)
				continue
			}
			rep.Updated++

		case VerdictRegression:
			e.logger.Warn("Live chapter has fewer images than local; refusing update",
				zap.String("slug", slug),
				zap.String("chapter", ref.Chapter),
				zap.String("detail", result.Reason),
			)
		}
	}

	e.logger.Info("Integrity check complete",
		zap.String("slug", slug),
		zap.Int("checked", rep.Checked),
		zap.Int("updated", rep.Updated),
	)
	return rep, nil
}

// CheckAll runs CheckTitle for every title in the archive, continuing past
// per-title failures.
func (e *Engine) CheckAll(ctx context.Context) error {
	slugs, err := e.store.ListTitles()
	if err != nil {
		return fmt.Errorf("list archived titles: %w", err)
	}
	e.logger.Info("Checking archived titles", zap.Int("count", len(slugs)))

	for _, slug := range slugs {
		if _, err := e.CheckTitle(ctx, slug); err != nil {
			e.logger.Warn("Integrity check failed for title",
				zap.String("slug", slug),
				zap.Error(err),
			)
		}
	}
	return nil
}
