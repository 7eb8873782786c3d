package db

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// UpsertSQL builds an INSERT ... ON CONFLICT (...) DO UPDATE statement
// with positional parameters for every column. updateCols nil means all
// non-conflict columns are updated from EXCLUDED.
func UpsertSQL(table string, columns, conflictKeys, updateCols []string) string {
	if updateCols == nil {
		conflictSet := make(map[string]bool, len(conflictKeys))
		for _, k := range conflictKeys {
			conflictSet[k] = true
		}
		for _, c := range columns {
			if !conflictSet[c] {
				updateCols = append(updateCols, c)
			}
		}
	}

	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	setClauses := make([]string, 0, len(updateCols))
	for _, col := range updateCols {
		q := pgx.Identifier{col}.Sanitize()
		setClauses = append(setClauses, fmt.Sprintf("%s = EXCLUDED.%s", q, q))
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		sanitizeTable(table),
		quoteAndJoin(columns),
		strings.Join(placeholders, ", "),
		quoteAndJoin(conflictKeys),
		strings.Join(setClauses, ", "),
	)
}

// sanitizeTable handles schema-qualified table names like "outreach.companies".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
