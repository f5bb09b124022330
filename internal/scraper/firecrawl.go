package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultFirecrawlURL is the hosted Firecrawl API
const DefaultFirecrawlURL = "https://api.firecrawl.dev"

// FirecrawlScraper renders a page to markdown through the Firecrawl scrape API
type FirecrawlScraper struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// FirecrawlOption configures a FirecrawlScraper
type FirecrawlOption func(*FirecrawlScraper)

// WithFirecrawlBaseURL points the scraper at another API host
func WithFirecrawlBaseURL(u string) FirecrawlOption {
	return func(s *FirecrawlScraper) {
		s.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(c *http.Client) FirecrawlOption {
	return func(s *FirecrawlScraper) {
		s.client = c
	}
}

// NewFirecrawlScraper creates a Firecrawl scraper
func NewFirecrawlScraper(apiKey string, opts ...FirecrawlOption) *FirecrawlScraper {
	s := &FirecrawlScraper{
		apiKey:  apiKey,
		baseURL: DefaultFirecrawlURL,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type firecrawlRequest struct {
	URL     string   `json:"url"`
	Formats []string `json:"formats"`
}

type firecrawlResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    struct {
		Markdown *string `json:"markdown"`
	} `json:"data"`
}

// Scrape returns the page markdown
func (s *FirecrawlScraper) Scrape(ctx context.Context, pageURL string) (string, error) {
	if err := checkURL(pageURL); err != nil {
		return "", err
	}

	body, err := json.Marshal(firecrawlRequest{URL: pageURL, Formats: []string{"markdown"}})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/scrape", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("firecrawl request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return "", fmt.Errorf("firecrawl read: %w", err)
	}

	var out firecrawlResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("firecrawl decode (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || (!out.Success && out.Error != "") {
		return "", fmt.Errorf("firecrawl status %d: %s", resp.StatusCode, out.Error)
	}
	if out.Data.Markdown == nil {
		return "", ErrNoMarkdown
	}
	if strings.TrimSpace(*out.Data.Markdown) == "" {
		return "", ErrEmptyContent
	}
	return *out.Data.Markdown, nil
}
