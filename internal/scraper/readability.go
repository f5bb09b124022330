package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
)

// ReadabilityScraper fetches the page itself and keeps the main article text
type ReadabilityScraper struct {
	client    *http.Client
	userAgent string
}

// NewReadabilityScraper creates a scraper; a nil client gets a 30s timeout
func NewReadabilityScraper(client *http.Client) *ReadabilityScraper {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &ReadabilityScraper{
		client:    client,
		userAgent: "Mozilla/5.0 (compatible; doc-extract/1.0)",
	}
}

// Scrape returns the readable text of the page
func (s *ReadabilityScraper) Scrape(ctx context.Context, pageURL string) (string, error) {
	if err := checkURL(pageURL); err != nil {
		return "", err
	}
	u, _ := url.Parse(pageURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
	}

	article, err := readability.FromReader(io.LimitReader(resp.Body, 16<<20), u)
	if err != nil {
		return "", fmt.Errorf("readability: %w", err)
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return "", ErrEmptyContent
	}
	if title := strings.TrimSpace(article.Title); title != "" {
		text = title + "\n\n" + text
	}
	return text, nil
}

func checkURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return nil
}
