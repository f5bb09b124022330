package document

import (
	"fmt"
)

// Document is one raw source handed to the extractor.
// Text stays nil until extraction has run for it.
type Document struct {
	Name string            // file name or source URL
	Type ContentType       // optional override; detected from Name when empty
	Data []byte            // raw bytes
	Text *string           // extracted text
	Meta map[string]string // free-form metadata
}

// NewDocument wraps raw bytes
func NewDocument(name string, data []byte) Document {
	return Document{Name: name, Data: data}
}

// NewTextDocument wraps text that needs no parsing, such as a scraped page
func NewTextDocument(name, text string) Document {
	return Document{Name: name, Type: PlainText, Data: []byte(text)}
}

// ContentType returns the explicit type or the one implied by Name
func (d Document) ContentType() ContentType {
	if d.Type != "" {
		return d.Type
	}
	return DetectContentType(d.Name)
}

// Extracted reports whether text extraction has run
func (d Document) Extracted() bool {
	return d.Text != nil
}

// EmptyInputError is returned when extraction is asked to run on zero documents
type EmptyInputError struct{}

func (e *EmptyInputError) Error() string {
	return "no documents supplied"
}

// DocumentParseError identifies the document that could not be parsed
type DocumentParseError struct {
	Index int    // 0-based position in the input sequence
	Name  string // document name
	Err   error
}

func (e *DocumentParseError) Error() string {
	return fmt.Sprintf("failed to parse document %d (%s): %v", e.Index, e.Name, e.Err)
}

func (e *DocumentParseError) Unwrap() error {
	return e.Err
}
