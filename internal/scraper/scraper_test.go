package scraper

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/doc-extract/internal/document"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"3 bd | 2 ba", "3 bd   2 ba"},
		{"$450,000.00", " 450,000.00"},
		{"Straße **bold**", "Straße   bold  "},
		{"line\nbreak", "line break"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Sanitize(tt.in))
	}
}

func newFirecrawlServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/scrape", r.URL.Path)
		assert.Equal(t, "Bearer fc-key", r.Header.Get("Authorization"))

		var req firecrawlRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "https://homes.example.com/list", req.URL)
		assert.Equal(t, []string{"markdown"}, req.Formats)

		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFirecrawlScraper(t *testing.T) {
	t.Run("markdown", func(t *testing.T) {
		srv := newFirecrawlServer(t, http.StatusOK, `{"success":true,"data":{"markdown":"# Listings\n1 Main St"}}`)
		s := NewFirecrawlScraper("fc-key", WithFirecrawlBaseURL(srv.URL))

		text, err := s.Scrape(context.Background(), "https://homes.example.com/list")
		require.NoError(t, err)
		assert.Equal(t, "# Listings\n1 Main St", text)
	})

	t.Run("no markdown", func(t *testing.T) {
		srv := newFirecrawlServer(t, http.StatusOK, `{"success":true,"data":{"html":"<p>x</p>"}}`)
		_, err := NewFirecrawlScraper("fc-key", WithFirecrawlBaseURL(srv.URL)).
			Scrape(context.Background(), "https://homes.example.com/list")
		assert.ErrorIs(t, err, ErrNoMarkdown)
	})

	t.Run("empty markdown", func(t *testing.T) {
		srv := newFirecrawlServer(t, http.StatusOK, `{"success":true,"data":{"markdown":"  "}}`)
		_, err := NewFirecrawlScraper("fc-key", WithFirecrawlBaseURL(srv.URL)).
			Scrape(context.Background(), "https://homes.example.com/list")
		assert.ErrorIs(t, err, ErrEmptyContent)
	})

	t.Run("api error", func(t *testing.T) {
		srv := newFirecrawlServer(t, http.StatusPaymentRequired, `{"success":false,"error":"insufficient credits"}`)
		_, err := NewFirecrawlScraper("fc-key", WithFirecrawlBaseURL(srv.URL)).
			Scrape(context.Background(), "https://homes.example.com/list")
		assert.ErrorContains(t, err, "insufficient credits")
	})

	t.Run("invalid url", func(t *testing.T) {
		_, err := NewFirecrawlScraper("fc-key").Scrape(context.Background(), "ftp://x")
		assert.ErrorIs(t, err, ErrInvalidURL)
	})
}

const articleHTML = `<!doctype html><html><head><title>Homes for sale</title></head>
<body><nav>Menu Home About</nav>
<article><h1>Homes for sale</h1>
<p>1 Main St is a three bedroom house listed at 500,000 dollars with two bathrooms and a large garden in a quiet street.</p>
<p>2 Oak Ave is a one bedroom condo listed at 250,000 dollars, close to the station and the central park of the town.</p>
</article><footer>Copyright</footer></body></html>`

func TestReadabilityScraper(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	s := NewReadabilityScraper(srv.Client())

	text, err := s.Scrape(context.Background(), srv.URL+"/list")
	require.NoError(t, err)
	assert.Contains(t, text, "1 Main St is a three bedroom house")
	assert.Contains(t, text, "2 Oak Ave")
	assert.True(t, strings.HasPrefix(text, "Homes for sale"))

	_, err = s.Scrape(context.Background(), srv.URL+"/missing")
	assert.ErrorContains(t, err, "status 404")
}

type stubScraper string

func (s stubScraper) Scrape(ctx context.Context, url string) (string, error) {
	return string(s), nil
}

func TestScrapeDocument(t *testing.T) {
	doc, err := ScrapeDocument(context.Background(), stubScraper("page text"), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", doc.Name)
	assert.Equal(t, document.PlainText, doc.ContentType())
}
