package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/xiaowei/internal/models"
)

func TestShouldProcessURL(t *testing.T) {
	s := NewWithConfig(ScraperConfig{
		IgnorePatterns: []string{"/ignore/", "private"},
	})
	c := &crawl{host: "example.com"}

	tests := []struct {
		url      string
		expected bool
	}{
		{"https://example.com/docs/", true},
		{"https://example.com/docs", true},
		{"https://example.com/page.html", true},
		{"https://example.com/ignore/page.html", false},
		{"https://example.com/private.htm", false},
		{"https://other-domain.com/page.html", false},
		{"https://example.com/file.pdf", false},
		{"mailto:someone@example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			u, err := url.Parse(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, s.shouldProcessURL(c, u))
		})
	}
}

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`
			<html>
				<head><title>Test Page</title></head>
				<body>
					<nav>Menu</nav>
					<main>
						<h1>Test Content</h1>
						<p>This is a test paragraph.</p>
						<a href="/page2.html">Link</a>
						<a href="/page2.html#section">Same page</a>
						<a href="/missing.html">Broken</a>
						<a href="https://elsewhere.example/">External</a>
					</main>
				</body>
			</html>
		`))
	})
	mux.HandleFunc("/page2.html", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><article>天气很好。<a href="/page3.html">deeper</a></article></body></html>`))
	})
	mux.HandleFunc("/page3.html", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>Too deep.</body></html>`))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestScrapeWithMockServer(t *testing.T) {
	server := newSite(t)

	var visited []string
	s := NewWithConfig(ScraperConfig{
		MaxDepth:   1,
		RateLimit:  100,
		OnProgress: func(u string) { visited = append(visited, u) },
	})

	docs, err := s.Scrape(context.Background(), server.URL+"/")
	require.NoError(t, err)
	require.Len(t, docs, 2)

	doc := docs[0]
	assert.Equal(t, server.URL+"/", doc.URL)
	assert.Equal(t, "Test Page", doc.Name)
	assert.Equal(t, "text/html", doc.FileType)
	assert.Equal(t, "Test Content This is a test paragraph. Link Same page Broken External", doc.Content)
	assert.NotContains(t, doc.Content, "Menu")
	assert.Equal(t, 0, doc.Metadata["depth"])

	assert.Equal(t, server.URL+"/page2.html", docs[1].Name, "untitled pages are named by URL")
	assert.Equal(t, "天气很好。deeper", docs[1].Content)

	assert.Equal(t, []string{server.URL + "/", server.URL + "/page2.html", server.URL + "/missing.html"}, visited)
}

func TestScrapeMaxPages(t *testing.T) {
	server := newSite(t)
	s := NewWithConfig(ScraperConfig{MaxDepth: 5, MaxPages: 1, RateLimit: 100})
	pages := 0
	s.OnProgress(func(string) { pages++ })

	docs, err := s.Scrape(context.Background(), server.URL+"/")
	require.NoError(t, err)
	assert.Len(t, docs, 1)
	assert.Equal(t, 1, pages)
}

func TestScrapeErrors(t *testing.T) {
	server := newSite(t)
	s := NewWithConfig(ScraperConfig{RateLimit: 100})

	_, err := s.Scrape(context.Background(), "not a url")
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = s.Scrape(context.Background(), server.URL+"/missing.html")
	assert.Error(t, err)
}
