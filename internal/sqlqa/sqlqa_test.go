package sqlqa

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/doc-extract/internal/llm"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(context.Background(), Config{Dialect: SQLite, DSN: ":memory:"})
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	for _, stmt := range []string{
		`CREATE TABLE products (id INTEGER PRIMARY KEY, name TEXT NOT NULL, price REAL, stock INTEGER)`,
		`INSERT INTO products (name, price, stock) VALUES ('keyboard', 49.5, 10), ('mouse', 19.0, 0), ('monitor', 199.0, 3)`,
		`CREATE TABLE orders (id INTEGER PRIMARY KEY, product_id INTEGER, qty INTEGER)`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	return db
}

func TestLoadSchema_SQLite(t *testing.T) {
	db := newTestDB(t)
	schema, err := LoadSchema(context.Background(), db, SQLite, 2)
	require.NoError(t, err)

	require.Len(t, schema.Tables, 2)
	assert.Equal(t, "orders", schema.Tables[0].Name)
	products := schema.Tables[1]
	assert.Equal(t, "products", products.Name)
	assert.Equal(t, Column{Name: "name", Type: "TEXT", Nullable: false}, products.Columns[1])
	assert.True(t, products.Columns[2].Nullable)
	assert.Len(t, products.Sample, 2)

	text := schema.String()
	assert.Contains(t, text, "CREATE TABLE products (\n\tid INTEGER NOT NULL,\n\tname TEXT NOT NULL,")
	assert.Contains(t, text, "2 rows from products table:")
	assert.Contains(t, text, "keyboard\t49.5\t10")
}

func TestGuardQuery(t *testing.T) {
	allowed := []string{
		"SELECT * FROM products",
		"select name from products where name = 'DROP TABLE x'",
		"WITH cheap AS (SELECT * FROM products WHERE price < 50) SELECT count(*) FROM cheap",
		"SHOW TABLES",
		"EXPLAIN SELECT 1",
		"SELECT updated_at, created_by FROM t -- delete later",
	}
	for _, q := range allowed {
		assert.NoError(t, GuardQuery(q), q)
	}

	rejected := []string{
		"",
		"DELETE FROM products",
		"SELECT 1; DROP TABLE products",
		"UPDATE products SET price = 0",
		"WITH d AS (DELETE FROM products RETURNING *) SELECT * FROM d",
		"SELECT * FROM products INTO OUTFILE '/tmp/x'",
		"PRAGMA writable_schema = 1",
	}
	for _, q := range rejected {
		assert.ErrorIs(t, GuardQuery(q), ErrUnsafeQuery, q)
	}
}

func TestCleanQuery(t *testing.T) {
	tests := map[string]string{
		"SELECT 1;":                               "SELECT 1",
		"```sql\nSELECT name FROM products;\n```": "SELECT name FROM products",
		"SQL Query: SELECT 1":                     "SELECT 1",
		"  select 2  \n":                          "select 2",
	}
	for in, want := range tests {
		assert.Equal(t, want, CleanQuery(in))
	}
}

func TestService_Ask(t *testing.T) {
	db := newTestDB(t)
	client := llm.NewMockClient(t)

	client.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.HasPrefix(p, "Based on the schema below") &&
			strings.Contains(p, "CREATE TABLE products") &&
			strings.HasSuffix(p, "Question: Which products are out of stock?\nSQL Query:")
	})).Return(&llm.Response{Text: "```sql\nSELECT name FROM products WHERE stock = 0;\n```"}, nil).Once()

	client.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.HasPrefix(p, "Write a Response in natural language") &&
			strings.Contains(p, "SQL Query: SELECT name FROM products WHERE stock = 0") &&
			strings.Contains(p, "SQL Response: (name)\n(mouse)")
	})).Return(&llm.Response{Text: " The mouse is out of stock. "}, nil).Once()

	logger, _ := test.NewNullLogger()
	svc := NewService(db, Config{Dialect: SQLite, SampleRows: 3}, client, logger)

	answer, err := svc.Ask(context.Background(), "Which products are out of stock?")
	require.NoError(t, err)
	assert.Equal(t, "SELECT name FROM products WHERE stock = 0", answer.Query)
	assert.Equal(t, []string{"name"}, answer.Columns)
	assert.Equal(t, [][]string{{"mouse"}}, answer.Result)
	assert.Equal(t, "The mouse is out of stock.", answer.Response)
}

func TestService_AskRejectsWrites(t *testing.T) {
	db := newTestDB(t)
	client := llm.NewMockClient(t)
	client.On("Generate", mock.Anything, mock.Anything).
		Return(&llm.Response{Text: "DELETE FROM products"}, nil).Once()

	logger, _ := test.NewNullLogger()
	svc := NewService(db, Config{Dialect: SQLite}, client, logger)

	_, err := svc.Ask(context.Background(), "remove everything")
	assert.ErrorIs(t, err, ErrUnsafeQuery)

	var n int
	require.NoError(t, db.QueryRow("SELECT count(*) FROM products").Scan(&n))
	assert.Equal(t, 3, n)

	_, err = svc.Ask(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyQuestion)
}

func TestOpen_UnknownDialect(t *testing.T) {
	_, err := Open(context.Background(), Config{Dialect: "oracle"})
	assert.Error(t, err)
}
