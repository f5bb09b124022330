package sqlqa

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ErrUnsafeQuery rejects anything but a single read-only statement
var ErrUnsafeQuery = errors.New("only a single read-only query is allowed")

var (
	readOnlyStart = map[string]bool{
		"SELECT": true, "WITH": true, "SHOW": true, "DESCRIBE": true, "DESC": true, "EXPLAIN": true,
	}
	writeKeyword = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|DROP|ALTER|CREATE|TRUNCATE|MERGE|GRANT|REVOKE|ATTACH|DETACH|INTO\s+(OUTFILE|DUMPFILE))\b`)
	sqlPrefix    = regexp.MustCompile(`(?i)^\s*(sql\s*query|sql)\s*:\s*`)
)

// CleanQuery strips code fences, a leading "SQL Query:" label and a
// trailing semicolon from model output
func CleanQuery(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if nl := strings.IndexByte(text, '\n'); nl >= 0 {
			text = text[nl+1:]
		}
		if end := strings.Index(text, "```"); end >= 0 {
			text = text[:end]
		}
	}
	text = sqlPrefix.ReplaceAllString(strings.TrimSpace(text), "")
	text = strings.TrimSpace(text)
	return strings.TrimSpace(strings.TrimRight(text, "; \n\t"))
}

// GuardQuery accepts one SELECT, WITH, SHOW, DESCRIBE or EXPLAIN statement
// that contains no write keyword outside string literals
func GuardQuery(query string) error {
	code := stripLiterals(query)
	if strings.TrimSpace(code) == "" {
		return fmt.Errorf("%w: empty query", ErrUnsafeQuery)
	}
	if strings.Contains(code, ";") {
		return fmt.Errorf("%w: multiple statements", ErrUnsafeQuery)
	}

	first := strings.ToUpper(strings.Fields(code)[0])
	if !readOnlyStart[first] {
		return fmt.Errorf("%w: statement starts with %s", ErrUnsafeQuery, first)
	}
	if m := writeKeyword.FindString(code); m != "" {
		return fmt.Errorf("%w: contains %s", ErrUnsafeQuery, strings.ToUpper(m))
	}
	return nil
}

// stripLiterals blanks quoted strings and comments so keywords inside them
// do not count
func stripLiterals(q string) string {
	var sb strings.Builder
	runes := []rune(q)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\'' || r == '"' || r == '`':
			quote := r
			sb.WriteRune(' ')
			for i++; i < len(runes); i++ {
				if runes[i] == quote {
					if i+1 < len(runes) && runes[i+1] == quote {
						i++
						continue
					}
					break
				}
			}
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			sb.WriteRune(' ')
		case r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			i += 2
			for i+1 < len(runes) && !(runes[i] == '*' && runes[i+1] == '/') {
				i++
			}
			i++
			sb.WriteRune(' ')
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// runReadOnly executes query inside a read-only transaction that is always
// rolled back
func runReadOnly(ctx context.Context, db *sql.DB, query string, maxRows int) ([]string, [][]string, error) {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()
	return queryRows(ctx, tx, query, maxRows)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// queryRows runs query and renders up to maxRows rows as strings
func queryRows(ctx context.Context, q queryer, query string, maxRows int) ([]string, [][]string, error) {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	out := [][]string{}
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if maxRows > 0 && len(out) >= maxRows {
			break
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		row := make([]string, len(cols))
		for i, v := range values {
			row[i] = formatValue(v)
		}
		out = append(out, row)
	}
	return cols, out, rows.Err()
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprint(val)
	}
}

// formatResult renders a query result as tuples, one per line
func formatResult(cols []string, rows [][]string) string {
	if len(rows) == 0 {
		return "[]"
	}
	var sb strings.Builder
	sb.WriteString("(" + strings.Join(cols, ", ") + ")\n")
	for _, row := range rows {
		sb.WriteString("(" + strings.Join(row, ", ") + ")\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
