package document

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFParser extracts page text from PDF files.
// Files are validated with pdfcpu first so a corrupt file fails as a whole
// instead of yielding a partial page set.
type PDFParser struct{}

// NewPDFParser creates a PDF parser
func NewPDFParser() Parser {
	return &PDFParser{}
}

// Parse reads a PDF file
func (p *PDFParser) Parse(filePath string) (string, error) {
	return parseFile(p, filePath)
}

// ParseReader reads a PDF from r and concatenates its pages in order
func (p *PDFParser) ParseReader(r io.Reader, filename string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read pdf %s: %w", filename, err)
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.Validate(bytes.NewReader(data), conf); err != nil {
		return "", fmt.Errorf("invalid pdf %s: %w", filename, err)
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf %s: %w", filename, err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("failed to read page %d of %s: %w", i, filename, err)
		}
		sb.WriteString(text)
	}

	return sb.String(), nil
}
