package sqlqa

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect is the SQL flavour of the target database
type Dialect string

const (
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// Config is the sql section of the app config
type Config struct {
	Dialect    Dialect `mapstructure:"dialect" validate:"omitempty,oneof=mysql postgres sqlite"`
	DSN        string  `mapstructure:"dsn"`
	SampleRows int     `mapstructure:"sample_rows"` // rows per table shown to the model
	MaxRows    int     `mapstructure:"max_rows"`    // rows of a query result kept
}

func driverName(d Dialect) (string, error) {
	switch d {
	case MySQL:
		return "mysql", nil
	case Postgres:
		return "pgx", nil
	case SQLite:
		return "sqlite3", nil
	default:
		return "", fmt.Errorf("unsupported sql dialect: %q", d)
	}
}

// Open connects to cfg.DSN with the driver for cfg.Dialect and pings it
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	driver, err := driverName(cfg.Dialect)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Dialect, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Dialect, err)
	}
	return db, nil
}

// Column describes one table column
type Column struct {
	Name     string
	Type     string
	Nullable bool
}

// Table describes one table with a few sample rows
type Table struct {
	Name    string
	Columns []Column
	Sample  [][]string
}

// Schema is the set of user tables of a database
type Schema struct {
	Dialect Dialect
	Tables  []Table
}

// String renders CREATE TABLE statements followed by sample rows, the form
// the query prompt expects
func (s *Schema) String() string {
	var sb strings.Builder
	for i, t := range s.Tables {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "CREATE TABLE %s (\n", t.Name)
		for j, c := range t.Columns {
			sb.WriteString("\t")
			sb.WriteString(c.Name)
			sb.WriteString(" ")
			sb.WriteString(c.Type)
			if !c.Nullable {
				sb.WriteString(" NOT NULL")
			}
			if j < len(t.Columns)-1 {
				sb.WriteString(",")
			}
			sb.WriteString("\n")
		}
		sb.WriteString(")")

		if len(t.Sample) > 0 {
			fmt.Fprintf(&sb, "\n\n/*\n%d rows from %s table:\n", len(t.Sample), t.Name)
			names := make([]string, len(t.Columns))
			for j, c := range t.Columns {
				names[j] = c.Name
			}
			sb.WriteString(strings.Join(names, "\t"))
			sb.WriteString("\n")
			for _, row := range t.Sample {
				sb.WriteString(strings.Join(row, "\t"))
				sb.WriteString("\n")
			}
			sb.WriteString("*/")
		}
	}
	return sb.String()
}

// LoadSchema introspects the user tables of db
func LoadSchema(ctx context.Context, db *sql.DB, dialect Dialect, sampleRows int) (*Schema, error) {
	var (
		tables []Table
		err    error
	)
	switch dialect {
	case SQLite:
		tables, err = sqliteTables(ctx, db)
	case MySQL:
		tables, err = informationSchemaTables(ctx, db,
			`SELECT table_name, column_name, column_type, is_nullable
			 FROM information_schema.columns
			 WHERE table_schema = DATABASE()
			 ORDER BY table_name, ordinal_position`)
	case Postgres:
		tables, err = informationSchemaTables(ctx, db,
			`SELECT table_name, column_name, data_type, is_nullable
			 FROM information_schema.columns
			 WHERE table_schema = current_schema()
			 ORDER BY table_name, ordinal_position`)
	default:
		return nil, fmt.Errorf("unsupported sql dialect: %q", dialect)
	}
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if sampleRows > 0 {
		for i := range tables {
			q := fmt.Sprintf("SELECT * FROM %s LIMIT %d", quoteIdent(dialect, tables[i].Name), sampleRows)
			_, rows, err := queryRows(ctx, db, q, sampleRows)
			if err != nil {
				return nil, fmt.Errorf("sample %s: %w", tables[i].Name, err)
			}
			tables[i].Sample = rows
		}
	}
	return &Schema{Dialect: dialect, Tables: tables}, nil
}

func sqliteTables(ctx context.Context, db *sql.DB) ([]Table, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, err
		}
		names = append(names, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tables := make([]Table, 0, len(names))
	for _, name := range names {
		cols, err := sqliteColumns(ctx, db, name)
		if err != nil {
			return nil, err
		}
		tables = append(tables, Table{Name: name, Columns: cols})
	}
	return tables, nil
}

func sqliteColumns(ctx context.Context, db *sql.DB, table string) ([]Column, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(SQLite, table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, typ        string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, Column{Name: name, Type: typ, Nullable: notNull == 0 && pk == 0})
	}
	return cols, rows.Err()
}

func informationSchemaTables(ctx context.Context, db *sql.DB, query string) ([]Table, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []Table
	for rows.Next() {
		var table, column, typ, nullable string
		if err := rows.Scan(&table, &column, &typ, &nullable); err != nil {
			return nil, err
		}
		if len(tables) == 0 || tables[len(tables)-1].Name != table {
			tables = append(tables, Table{Name: table})
		}
		last := &tables[len(tables)-1]
		last.Columns = append(last.Columns, Column{Name: column, Type: typ, Nullable: strings.EqualFold(nullable, "YES")})
	}
	return tables, rows.Err()
}

func quoteIdent(dialect Dialect, name string) string {
	if dialect == MySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
