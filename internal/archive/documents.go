// Package archive persists the crawler's JSON document archive: one index,
// one metadata document per title, one snapshot per chapter.
package archive

import "time"

// Index summarizes every known title. It is rebuilt wholesale at the end of
// a catalog crawl, never patched.
type Index struct {
	LastUpdated time.Time      `json:"last_updated,omitzero"`
	TotalComics int            `json:"total_comics"`
	Comics      []ComicSummary `json:"comics"`
}

// ComicSummary is one row of the index.
type ComicSummary struct {
	Slug          string  `json:"slug"`
	Title         string  `json:"title"`
	Type          string  `json:"type"`
	Status        string  `json:"status"`
	Rating        float64 `json:"rating"`
	TotalChapters int     `json:"total_chapters"`
}

// Metadata is the per-title document. Descriptive fields are optional; the
// upstream page decides which ones exist.
type Metadata struct {
	Slug              string       `json:"slug,omitempty"`
	Title             string       `json:"title,omitempty"`
	URL               string       `json:"url,omitempty"`
	CoverURL          string       `json:"cover_url,omitempty"`
	Type              string       `json:"type,omitempty"`
	IsColored         bool         `json:"is_colored,omitempty"`
	Rating            float64      `json:"rating,omitempty"`
	AlternativeTitles string       `json:"alternative_titles,omitempty"`
	Status            string       `json:"status,omitempty"`
	Author            string       `json:"author,omitempty"`
	Illustrator       string       `json:"illustrator,omitempty"`
	Demographic       string       `json:"demographic,omitempty"`
	Themes            []string     `json:"themes,omitempty"`
	Genres            []string     `json:"genres,omitempty"`
	Synopsis          string       `json:"synopsis,omitempty"`
	ScrapedAt         time.Time    `json:"scraped_at,omitzero"`
	Chapters          []ChapterRef `json:"chapters"`
	TotalChapters     int          `json:"total_chapters"`
}

// ChapterRef points at one chapter from a title's metadata. Chapter is an
// opaque identifier; "10.5" is a valid value and must never be parsed as a
// number.
type ChapterRef struct {
	Chapter string `json:"chapter"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Date    string `json:"date"`
}

// Chapter is the per-chapter snapshot document.
type Chapter struct {
	Chapter      string    `json:"chapter"`
	Title        string    `json:"title"`
	URL          string    `json:"url"`
	Date         string    `json:"date"`
	ScrapedAt    time.Time `json:"scraped_at,omitzero"`
	Images       []string  `json:"images,omitempty"`
	TotalImages  int       `json:"total_images,omitempty"`
	UpdatedVia   string    `json:"updated_via,omitempty"`
	UpdateReason string    `json:"update_reason,omitempty"`
}

// ImageCount returns the snapshot's image count, recomputed from the image
// list when present. total_images alone is trusted only when the list is
// absent, since it can be stale.
func (c *Chapter) ImageCount() int {
	if len(c.Images) > 0 {
		return len(c.Images)
	}
	return c.TotalImages
}
