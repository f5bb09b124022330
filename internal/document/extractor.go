package document

import (
	"bytes"
	"context"
	"errors"
	"strings"

	"golang.org/x/sync/errgroup"
)

// ParserResolver picks a parser for a content type
type ParserResolver func(ContentType) (Parser, error)

// Extractor turns an ordered document sequence into one text blob
type Extractor struct {
	resolve     ParserResolver
	parallelism int
}

// ExtractorOption configures an Extractor
type ExtractorOption func(*Extractor)

// WithParallelism parses up to n documents at once; values below 2 keep it sequential
func WithParallelism(n int) ExtractorOption {
	return func(e *Extractor) {
		e.parallelism = n
	}
}

// WithParserResolver replaces the extension based parser lookup
func WithParserResolver(resolve ParserResolver) ExtractorOption {
	return func(e *Extractor) {
		if resolve != nil {
			e.resolve = resolve
		}
	}
}

// NewExtractor creates an extractor
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		resolve:     ParserForType,
		parallelism: 1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract parses every document and concatenates the texts in input order
// with no separator. Any failure aborts the whole call.
func (e *Extractor) Extract(ctx context.Context, docs []Document) (string, error) {
	extracted, err := e.ExtractAll(ctx, docs)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, doc := range extracted {
		sb.WriteString(*doc.Text)
	}
	return sb.String(), nil
}

// ExtractAll returns copies of docs with Text filled in
func (e *Extractor) ExtractAll(ctx context.Context, docs []Document) ([]Document, error) {
	if len(docs) == 0 {
		return nil, &EmptyInputError{}
	}

	texts := make([]string, len(docs))
	var err error
	if e.parallelism > 1 && len(docs) > 1 {
		err = e.extractParallel(ctx, docs, texts)
	} else {
		err = e.extractSequential(ctx, docs, texts)
	}
	if err != nil {
		return nil, err
	}

	out := make([]Document, len(docs))
	for i := range docs {
		out[i] = docs[i]
		text := texts[i]
		out[i].Text = &text
	}
	return out, nil
}

func (e *Extractor) extractSequential(ctx context.Context, docs []Document, texts []string) error {
	for i := range docs {
		text, err := e.parseOne(ctx, i, docs[i])
		if err != nil {
			return err
		}
		texts[i] = text
	}
	return nil
}

// extractParallel writes each result into its own slot. When several documents
// fail, the lowest failing index is reported.
func (e *Extractor) extractParallel(ctx context.Context, docs []Document, texts []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)

	failures := make([]error, len(docs))
	for i := range docs {
		g.Go(func() error {
			text, err := e.parseOne(gctx, i, docs[i])
			if err != nil {
				failures[i] = err
				return err
			}
			texts[i] = text
			return nil
		})
	}

	if err := g.Wait(); err == nil {
		return nil
	}

	// documents skipped after the group was cancelled are not the cause
	canceled := ctx.Err() != nil
	for _, err := range failures {
		if err == nil {
			continue
		}
		if canceled || !errors.Is(err, context.Canceled) {
			return err
		}
	}
	return ctx.Err()
}

func (e *Extractor) parseOne(ctx context.Context, index int, doc Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &DocumentParseError{Index: index, Name: doc.Name, Err: err}
	}
	if doc.Text != nil {
		return *doc.Text, nil
	}

	parser, err := e.resolve(doc.ContentType())
	if err != nil {
		return "", &DocumentParseError{Index: index, Name: doc.Name, Err: err}
	}
	text, err := parser.ParseReader(bytes.NewReader(doc.Data), doc.Name)
	if err != nil {
		return "", &DocumentParseError{Index: index, Name: doc.Name, Err: err}
	}
	return text, nil
}
