package document

import (
	"fmt"
	"io"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// MarkdownParser renders markdown and keeps the visible text
type MarkdownParser struct{}

// NewMarkdownParser creates a markdown parser
func NewMarkdownParser() Parser {
	return &MarkdownParser{}
}

// Parse reads a markdown file
func (p *MarkdownParser) Parse(filePath string) (string, error) {
	return parseFile(p, filePath)
}

// ParseReader renders markdown from r to HTML, then strips the markup
func (p *MarkdownParser) ParseReader(r io.Reader, filename string) (string, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read markdown content: %w", err)
	}

	mdParser := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	doc := mdParser.Parse(content)

	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	rendered := markdown.Render(doc, renderer)

	text, err := htmlBytesText(rendered)
	if err != nil {
		return "", fmt.Errorf("failed to read rendered markdown %s: %w", filename, err)
	}
	return text, nil
}
