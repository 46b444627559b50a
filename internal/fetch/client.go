// Package fetch implements the scraping client for the upstream comic site
// using Colly, one request in flight at a time.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

const googleReferer = "https://www.google.com/"

// Profile is one browser impersonation preset. Warm-up walks the presets in
// order until the site answers with a 200.
type Profile struct {
	Name      string
	UserAgent string
}

var profiles = []Profile{
	{
		Name:      "chrome120",
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	},
	{
		Name:      "safari15",
		UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.6 Safari/605.1.15",
	},
}

// Config controls client behavior.
type Config struct {
	// BaseURL is the site root, used for warm-up and slug-based title URLs.
	BaseURL string
	// ListURL is the catalog listing endpoint.
	ListURL string
	// Delay is slept before every request.
	Delay time.Duration
	// Timeout bounds a single request.
	Timeout time.Duration
}

// Listing is one entry on a catalog list page.
type Listing struct {
	Slug      string
	Title     string
	URL       string
	CoverURL  string
	Type      string
	IsColored bool
	Rating    float64
}

// ChapterRef is one chapter row on a title detail page.
type ChapterRef struct {
	Chapter string
	Title   string
	URL     string
	Date    string
}

// Detail is a parsed title detail page.
type Detail struct {
	Title             string
	AlternativeTitles string
	Status            string
	Author            string
	Illustrator       string
	Demographic       string
	Type              string
	Themes            []string
	Genres            []string
	CoverURL          string
	Rating            float64
	Synopsis          string
	Chapters          []ChapterRef
}

// Client fetches and parses pages from the upstream site. It is not safe
// for concurrent use; the crawl pipeline is strictly sequential.
type Client struct {
	cfg     Config
	logger  *zap.Logger
	base    *colly.Collector
	profile Profile
	referer string
}

// New builds a Client with the first impersonation profile active.
func New(cfg Config, logger *zap.Logger) *Client {
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.AllowURLRevisit = true
	c.WithTransport(newHTTPTransport())

	return &Client{
		cfg:     cfg,
		logger:  logger,
		base:    c,
		profile: profiles[0],
		referer: googleReferer,
	}
}

// WarmUp performs a preliminary request to the site root to establish
// session state, falling back through the impersonation profiles. Returns
// false when every profile fails; callers treat that as non-fatal.
func (c *Client) WarmUp(ctx context.Context) bool {
	for attempt, p := range profiles {
		c.profile = p
		c.referer = googleReferer
		c.logger.Info("Performing warm-up request",
			zap.Int("attempt", attempt+1),
			zap.String("profile", p.Name),
		)

		status, body, err := c.fetchRaw(ctx, c.cfg.BaseURL)
		if err == nil && status == http.StatusOK {
			c.logger.Info("Warm-up successful", zap.String("profile", p.Name))
			c.referer = c.cfg.BaseURL
			return true
		}
		if bytes.Contains(body, []byte("Just a moment")) {
			c.logger.Warn("Cloudflare interstitial detected during warm-up")
		}
		c.logger.Warn("Warm-up attempt failed",
			zap.Int("attempt", attempt+1),
			zap.Int("status", status),
			zap.Error(err),
		)
		time.Sleep(2 * c.cfg.Delay)
	}
	return false
}

// TotalPages discovers the catalog's page count from the listing
// pagination. Any failure yields 1.
func (c *Client) TotalPages(ctx context.Context) int {
	doc, err := c.get(ctx, c.cfg.ListURL)
	if err != nil {
		return 1
	}
	max := 0
	doc.Find(".pagination a.page-numbers").Each(func(_ int, s *goquery.Selection) {
		if n, err := strconv.Atoi(strings.TrimSpace(s.Text())); err == nil && n > max {
			max = n
		}
	})
	if max == 0 {
		return 1
	}
	return max
}

// ListPage fetches one catalog page and extracts its title listings. A
// failed fetch yields an empty slice.
func (c *Client) ListPage(ctx context.Context, page int) []Listing {
	url := c.cfg.ListURL
	if page > 1 {
		url = strings.TrimRight(c.cfg.ListURL, "/") + fmt.Sprintf("/page/%d/", page)
	}
	doc, err := c.get(ctx, url)
	if err != nil {
		return nil
	}

	var listings []Listing
	doc.Find(".animepost").Each(func(_ int, post *goquery.Selection) {
		link := post.Find("a[href]").First()
		if link.Length() == 0 {
			return
		}
		comicURL := link.AttrOr("href", "")
		if comicURL == "" {
			return
		}

		comicType := ""
		for _, cls := range strings.Fields(post.Find(".typeflag").First().AttrOr("class", "")) {
			if cls == "Manga" || cls == "Manhwa" || cls == "Manhua" {
				comicType = cls
				break
			}
		}

		listings = append(listings, Listing{
			Slug:      SlugFromURL(comicURL),
			Title:     strings.ReplaceAll(link.AttrOr("title", ""), "Komik ", ""),
			URL:       comicURL,
			CoverURL:  post.Find("img").First().AttrOr("src", ""),
			Type:      comicType,
			IsColored: post.Find(".warnalabel").Length() > 0,
			Rating:    parseRating(post.Find(".rating i").First().Text()),
		})
	})
	return listings
}

// Detail fetches and parses a title detail page. An unreachable or blocked
// page yields an error; a reachable page with missing fields yields a
// partially filled Detail.
func (c *Client) Detail(ctx context.Context, url string) (*Detail, error) {
	doc, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}

	d := &Detail{
		Title:    strings.ReplaceAll(strings.TrimSpace(doc.Find(".entry-title").First().Text()), "Komik ", ""),
		CoverURL: doc.Find(".thumb img").First().AttrOr("src", ""),
		Rating:   parseRating(doc.Find(".ratingmanga i[itemprop='ratingValue']").First().Text()),
		Synopsis: strings.TrimSpace(doc.Find(".entry-content-single p").First().Text()),
	}

	doc.Find(".spe span").Each(func(_ int, span *goquery.Selection) {
		text := strings.TrimSpace(span.Text())
		switch {
		case strings.Contains(text, "Judul Alternatif:"):
			d.AlternativeTitles = strings.TrimSpace(strings.ReplaceAll(text, "Judul Alternatif:", ""))
		case strings.Contains(text, "Status:"):
			d.Status = strings.TrimSpace(strings.ReplaceAll(text, "Status:", ""))
		case strings.Contains(text, "Pengarang:"):
			d.Author = strings.TrimSpace(strings.ReplaceAll(text, "Pengarang:", ""))
		case strings.Contains(text, "Ilustrator:"):
			d.Illustrator = strings.TrimSpace(strings.ReplaceAll(text, "Ilustrator:", ""))
		case strings.Contains(text, "Grafis:"):
			d.Demographic = strings.TrimSpace(span.Find("a").First().Text())
		case strings.Contains(text, "Tema:"):
			span.Find("a").Each(func(_ int, a *goquery.Selection) {
				d.Themes = append(d.Themes, strings.TrimSpace(a.Text()))
			})
		case strings.Contains(text, "Jenis Komik:"):
			d.Type = strings.TrimSpace(span.Find("a").First().Text())
		}
	})

	doc.Find(".genre-info a").Each(func(_ int, a *goquery.Selection) {
		d.Genres = append(d.Genres, strings.TrimSpace(a.Text()))
	})

	doc.Find(".eps_lst ul li").Each(func(_ int, li *goquery.Selection) {
		link := li.Find(".lchx a").First()
		if link.Length() == 0 {
			return
		}
		d.Chapters = append(d.Chapters, ChapterRef{
			Chapter: strings.TrimSpace(link.Find("chapter").First().Text()),
			Title:   link.AttrOr("title", ""),
			URL:     link.AttrOr("href", ""),
			Date:    strings.TrimSpace(li.Find(".dt a").First().Text()),
		})
	})

	return d, nil
}

// ChapterImages fetches a chapter page and returns its ordered, deduplicated
// image URLs. Any failure yields an empty slice, which downstream logic is
// designed to treat safely.
func (c *Client) ChapterImages(ctx context.Context, url string) []string {
	doc, err := c.get(ctx, url)
	if err != nil {
		return nil
	}

	var images []string
	seen := make(map[string]bool)
	doc.Find("#chimg-auh img").Each(func(_ int, img *goquery.Selection) {
		src := img.AttrOr("src", "")
		if src != "" && !seen[src] {
			seen[src] = true
			images = append(images, src)
		}
	})
	return images
}

// TitleURL maps a slug to its canonical detail page URL.
func (c *Client) TitleURL(slug string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/komik/" + slug + "/"
}

// SlugFromURL extracts the trailing path segment of a canonical listing URL.
func SlugFromURL(u string) string {
	u = strings.TrimRight(u, "/")
	if i := strings.LastIndex(u, "/"); i >= 0 {
		return u[i+1:]
	}
	return u
}

// get fetches a URL and parses the body into a goquery document.
func (c *Client) get(ctx context.Context, url string) (*goquery.Document, error) {
	status, body, err := c.fetchRaw(ctx, url)
	if err != nil {
		if status == http.StatusForbidden {
			c.logger.Warn("Access denied; the site may be blocking this address",
				zap.String("url", url),
				zap.String("snippet", snippet(body)),
			)
		} else {
			c.logger.Warn("Fetch failed", zap.String("url", url), zap.Error(err))
		}
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}
	return doc, nil
}

// fetchRaw performs a single paced GET through a cloned collector and
// captures status and body even on non-2xx responses.
func (c *Client) fetchRaw(ctx context.Context, url string) (int, []byte, error) {
	time.Sleep(c.cfg.Delay)

	var (
		status   int
		body     []byte
		fetchErr error
	)
	collector := c.base.Clone()
	collector.UserAgent = c.profile.UserAgent
	timeout := c.cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept-Language", "id-ID,id;q=0.9,en-US;q=0.8,en;q=0.7")
		r.Headers.Set("Referer", c.referer)
	})
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		fetchErr = err
		if r != nil {
			status = r.StatusCode
			body = append([]byte(nil), r.Body...)
		}
	})

	if err := c.runCollector(ctx, collector, url); err != nil {
		return status, body, err
	}
	if fetchErr != nil {
		return status, body, fmt.Errorf("fetch %s: %w", url, fetchErr)
	}
	return status, body, nil
}

func (c *Client) runCollector(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("visit %s: %w", url, err)
		}
		return nil
	}
}

func parseRating(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

func snippet(body []byte) string {
	s := string(body)
	if len(s) > 500 {
		s = s[:500]
	}
	return strings.ReplaceAll(s, "\n", " ")
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
