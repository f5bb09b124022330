package document

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// HTMLParser extracts visible text from HTML pages
type HTMLParser struct{}

// NewHTMLParser creates an HTML parser
func NewHTMLParser() Parser {
	return &HTMLParser{}
}

// Parse reads an HTML file
func (p *HTMLParser) Parse(filePath string) (string, error) {
	return parseFile(p, filePath)
}

// ParseReader parses HTML from r
func (p *HTMLParser) ParseReader(r io.Reader, filename string) (string, error) {
	root, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("failed to parse html %s: %w", filename, err)
	}
	return htmlText(root), nil
}

// blockElements end a line of text
var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "pre": true, "blockquote": true,
}

// htmlText walks the node tree and collects text, one line per block element
func htmlText(root *html.Node) string {
	var sb strings.Builder

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "head":
				return
			}
		}
		if n.Type == html.TextNode {
			if text := strings.Join(strings.Fields(n.Data), " "); text != "" {
				if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
					sb.WriteByte(' ')
				}
				sb.WriteString(text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] {
			if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
				sb.WriteByte('\n')
			}
		}
	}
	walk(root)

	return strings.TrimSpace(sb.String())
}

// htmlBytesText parses an HTML fragment rendered by another parser
func htmlBytesText(content []byte) (string, error) {
	root, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return "", err
	}
	return htmlText(root), nil
}
