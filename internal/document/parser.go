package document

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedType is returned when no parser is registered for a document.
var ErrUnsupportedType = errors.New("unsupported document type")

// Parser turns one source format into plain text
type Parser interface {
	// Parse reads and parses a file on disk
	Parse(filePath string) (string, error)

	// ParseReader parses content from r; filename is only used in error messages
	ParseReader(r io.Reader, filename string) (string, error)
}

// ContentType identifies a document format
type ContentType string

const (
	// PDF document
	PDF ContentType = "pdf"
	// Markdown document
	Markdown ContentType = "markdown"
	// PlainText document
	PlainText ContentType = "plaintext"
	// DOCX Word document
	DOCX ContentType = "docx"
	// HTML page
	HTML ContentType = "html"
	// Unknown type
	Unknown ContentType = "unknown"
)

// ParserFactory returns the parser for filePath based on its extension
func ParserFactory(filePath string) (Parser, error) {
	return ParserForType(DetectContentType(filePath))
}

// ParserForType returns the parser for a content type
func ParserForType(contentType ContentType) (Parser, error) {
	switch contentType {
	case PDF:
		return NewPDFParser(), nil
	case Markdown:
		return NewMarkdownParser(), nil
	case PlainText:
		return NewPlainTextParser(), nil
	case DOCX:
		return NewDOCXParser(), nil
	case HTML:
		return NewHTMLParser(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
}

// DetectContentType maps a file extension to a content type
func DetectContentType(filePath string) ContentType {
	ext := strings.ToLower(filepath.Ext(filePath))

	switch ext {
	case ".pdf":
		return PDF
	case ".md", ".markdown":
		return Markdown
	case ".txt", ".text":
		return PlainText
	case ".docx":
		return DOCX
	case ".html", ".htm":
		return HTML
	default:
		return Unknown
	}
}

// parseFile opens filePath and hands it to p.ParseReader
func parseFile(p Parser, filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", filePath, err)
	}
	defer file.Close()

	return p.ParseReader(file, filepath.Base(filePath))
}
