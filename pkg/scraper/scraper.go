// Package scraper imports web pages into the knowledge base by crawling a
// site from a start URL.
package scraper

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/xhad/xiaowei/internal/models"
	"golang.org/x/time/rate"
)

type ScraperConfig struct {
	MaxDepth          int
	MaxPages          int
	RateLimit         float64 // requests per second
	IgnorePatterns    []string
	AllowedExtensions []string // path extensions; pages without one are always allowed
	Timeout           time.Duration
	UserAgent         string
	OnProgress        func(url string)
}

type Scraper struct {
	config  ScraperConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewWithConfig(config ScraperConfig) *Scraper {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxDepth < 0 {
		config.MaxDepth = 0
	}
	if config.MaxPages <= 0 {
		config.MaxPages = 50
	}
	if config.RateLimit <= 0 {
		config.RateLimit = 2 // 2 requests per second by default
	}
	if len(config.AllowedExtensions) == 0 {
		config.AllowedExtensions = []string{".html", ".htm"}
	}
	if config.UserAgent == "" {
		config.UserAgent = "xiaowei-scraper/1.0"
	}

	return &Scraper{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

// OnProgress replaces the callback invoked for every page visited. It must not
// be called while a Scrape is running.
func (s *Scraper) OnProgress(fn func(url string)) {
	s.config.OnProgress = fn
}

// crawl is the state of a single Scrape call.
type crawl struct {
	host      string
	visited   map[string]bool
	documents []models.Document
}

// Scrape fetches startURL and follows same-host links up to MaxDepth hops,
// returning one document per page with readable content. Failures on linked
// pages are logged and skipped; a failure on startURL is returned.
func (s *Scraper) Scrape(ctx context.Context, startURL string) ([]models.Document, error) {
	parsed, err := url.Parse(startURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("%w: invalid URL %q", models.ErrInvalidInput, startURL)
	}

	c := &crawl{
		host:    parsed.Host,
		visited: make(map[string]bool),
	}
	if err := s.visit(ctx, c, normalize(parsed), 0); err != nil {
		return nil, err
	}
	return c.documents, nil
}

func (s *Scraper) shouldProcessURL(c *crawl, u *url.URL) bool {
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if u.Host != c.host {
		return false
	}

	if ext := strings.ToLower(path.Ext(u.Path)); ext != "" {
		allowed := false
		for _, allowedExt := range s.config.AllowedExtensions {
			if ext == allowedExt {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	for _, pattern := range s.config.IgnorePatterns {
		if strings.Contains(u.String(), pattern) {
			return false
		}
	}
	return true
}

func (s *Scraper) visit(ctx context.Context, c *crawl, u *url.URL, depth int) error {
	key := u.String()
	if depth > s.config.MaxDepth || c.visited[key] || len(c.documents) >= s.config.MaxPages {
		return nil
	}
	if !s.shouldProcessURL(c, u) {
		return nil
	}
	c.visited[key] = true

	if s.config.OnProgress != nil {
		s.config.OnProgress(key)
	}

	doc, resp, err := s.fetch(ctx, key)
	if err != nil {
		return err
	}

	if content := extractMainContent(doc); content != "" {
		name := strings.TrimSpace(doc.Find("title").First().Text())
		if name == "" {
			name = key
		}
		c.documents = append(c.documents, models.Document{
			Name:     name,
			URL:      key,
			Content:  content,
			FileType: "text/html",
			Metadata: map[string]interface{}{
				"depth":        depth,
				"scrapedAt":    time.Now().UTC().Format(time.RFC3339),
				"contentType":  resp.Header.Get("Content-Type"),
				"lastModified": resp.Header.Get("Last-Modified"),
			},
		})
	}

	if depth == s.config.MaxDepth {
		return nil
	}

	for _, link := range links(doc, u) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.visit(ctx, c, link, depth+1); err != nil {
			log.Printf("[Scraper] Error scraping %s: %v", link, err)
		}
	}
	return nil
}

func (s *Scraper) fetch(ctx context.Context, pageURL string) (*goquery.Document, *http.Response, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("User-Agent", s.config.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, pageURL)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	return doc, resp, nil
}

func links(doc *goquery.Document, base *url.URL) []*url.URL {
	var out []*url.URL
	doc.Find("a[href]").Each(func(_ int, selection *goquery.Selection) {
		href, _ := selection.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		out = append(out, normalize(base.ResolveReference(ref)))
	})
	return out
}

// normalize drops the fragment so anchors on one page are visited once.
func normalize(u *url.URL) *url.URL {
	clean := *u
	clean.Fragment = ""
	return &clean
}

func extractMainContent(doc *goquery.Document) string {
	doc.Find("script, style, nav, footer, noscript").Remove()

	selectors := []string{
		"main",
		"article",
		".content",
		"#content",
		"body",
	}

	for _, selector := range selectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			if text := strings.Join(strings.Fields(selected.Text()), " "); text != "" {
				return text
			}
		}
	}
	return ""
}
