package sqlqa

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/doc-extract/internal/llm"
)

// QueryTemplate asks the model for a query answering {question}
const QueryTemplate = `Based on the schema below, write a sql query that could answer the user's question.
{schema}

Question: {question}
SQL Query:`

// AnswerTemplate asks the model to explain a query result in plain language
const AnswerTemplate = `Write a Response in natural language, based on the schema below, the sql query and the result of the query.

{schema}

Question: {question}
SQL Query: {query}
SQL Response: {response}`

// StopSequence ends the query completion before the model invents a result
const StopSequence = "\nSQL Result:"

// ErrEmptyQuestion is returned for blank questions
var ErrEmptyQuestion = errors.New("question is empty")

// Answer is the outcome of one question
type Answer struct {
	Question string     `json:"question"`
	Query    string     `json:"query"`
	Columns  []string   `json:"columns"`
	Result   [][]string `json:"result"`
	Response string     `json:"response"`
}

// Service answers natural language questions about a SQL database
type Service struct {
	db         *sql.DB
	dialect    Dialect
	client     llm.Client
	sampleRows int
	maxRows    int
	logger     *logrus.Logger
}

// NewService creates a service over an open database
func NewService(db *sql.DB, cfg Config, client llm.Client, logger *logrus.Logger) *Service {
	if cfg.SampleRows < 0 {
		cfg.SampleRows = 0
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 100
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		db:         db,
		dialect:    cfg.Dialect,
		client:     client,
		sampleRows: cfg.SampleRows,
		maxRows:    cfg.MaxRows,
		logger:     logger,
	}
}

// Schema returns the current database schema
func (s *Service) Schema(ctx context.Context) (*Schema, error) {
	return LoadSchema(ctx, s.db, s.dialect, s.sampleRows)
}

// Ask writes a query for question, runs it read-only and explains the result
func (s *Service) Ask(ctx context.Context, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	schema, err := s.Schema(ctx)
	if err != nil {
		return nil, err
	}
	schemaText := schema.String()

	prompt := strings.NewReplacer("{schema}", schemaText, "{question}", question).Replace(QueryTemplate)
	resp, err := s.client.Generate(ctx, prompt,
		llm.WithGenerateStop(StopSequence),
		llm.WithGenerateTemperature(0),
	)
	if err != nil {
		return nil, fmt.Errorf("generate query: %w", err)
	}

	query := CleanQuery(resp.Text)
	if err := GuardQuery(query); err != nil {
		s.logger.WithField("query", query).Warn("Rejected generated query")
		return nil, err
	}

	cols, rows, err := runReadOnly(ctx, s.db, query, s.maxRows)
	if err != nil {
		return nil, fmt.Errorf("run query: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"query": query,
		"rows":  len(rows),
	}).Info("Generated query executed")

	prompt = strings.NewReplacer(
		"{schema}", schemaText,
		"{question}", question,
		"{query}", query,
		"{response}", formatResult(cols, rows),
	).Replace(AnswerTemplate)
	resp, err = s.client.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	return &Answer{
		Question: question,
		Query:    query,
		Columns:  cols,
		Result:   rows,
		Response: strings.TrimSpace(resp.Text),
	}, nil
}
