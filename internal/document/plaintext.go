package document

import (
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// ErrInvalidEncoding is returned for text that is not valid UTF-8
var ErrInvalidEncoding = errors.New("text is not valid UTF-8")

// PlainTextParser returns text files as they are
type PlainTextParser struct{}

// NewPlainTextParser creates a plain text parser
func NewPlainTextParser() Parser {
	return &PlainTextParser{}
}

// Parse reads a text file
func (p *PlainTextParser) Parse(filePath string) (string, error) {
	return parseFile(p, filePath)
}

// ParseReader reads text from r
func (p *PlainTextParser) ParseReader(r io.Reader, filename string) (string, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read text file: %w", err)
	}
	if !utf8.Valid(content) {
		return "", fmt.Errorf("%s: %w", filename, ErrInvalidEncoding)
	}
	return string(content), nil
}
