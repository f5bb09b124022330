package scraper

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/fyerfyer/doc-extract/internal/document"
)

var (
	// ErrNoMarkdown means the scrape response carried no markdown field
	ErrNoMarkdown = errors.New("markdown key not found in the scrape result")
	// ErrEmptyContent means the page produced no text
	ErrEmptyContent = errors.New("scraped page has no content")
	// ErrInvalidURL rejects non http(s) targets
	ErrInvalidURL = errors.New("invalid url")
)

// Scraper fetches a web page as text
type Scraper interface {
	Scrape(ctx context.Context, url string) (string, error)
}

// Sanitize keeps letters, digits, spaces, commas and dots; any other rune
// becomes a space
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == ',' || r == '.' {
			return r
		}
		return ' '
	}, s)
}

// ScrapeDocument scrapes url into a plain text document named after it
func ScrapeDocument(ctx context.Context, s Scraper, url string) (document.Document, error) {
	text, err := s.Scrape(ctx, url)
	if err != nil {
		return document.Document{}, err
	}
	return document.NewTextDocument(url, text), nil
}
