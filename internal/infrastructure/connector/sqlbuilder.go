package connector

import (
	"regexp"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/partsync/backend/internal/domain/datasync"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$#@]*$`)

// buildSelect renders q as a parameterised SELECT using the given bind type.
// Every identifier is double quoted, so names keep their configured case and
// reserved words such as DESC are safe. Filter keys are emitted in sorted
// order so the text is stable.
func buildSelect(source string, bindType int, q Query) (string, []any, error) {
	fail := func(msg string) (string, []any, error) {
		return "", nil, datasync.NewConfigurationError("connector "+source, msg, nil)
	}

	if len(q.Columns) == 0 {
		return fail("query needs at least one column")
	}
	for _, c := range q.Columns {
		if !identifier.MatchString(c) {
			return fail("invalid column name " + quote(c))
		}
	}
	if q.Limit > 0 && q.OrderBy == "" {
		return fail("paged query on " + q.Table + " needs an order column")
	}
	if q.OrderBy != "" && !identifier.MatchString(q.OrderBy) {
		return fail("invalid order column " + quote(q.OrderBy))
	}
	if q.Limit < 0 || q.Offset < 0 {
		return fail("limit and offset cannot be negative")
	}
	table, ok := quoteTable(q.Table)
	if !ok {
		return fail("invalid table name " + quote(q.Table))
	}

	var b strings.Builder
	args := make([]any, 0, len(q.Filter)+2)

	b.WriteString("SELECT ")
	for i, c := range q.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pq.QuoteIdentifier(c))
	}
	b.WriteString(" FROM ")
	b.WriteString(table)

	if len(q.Filter) > 0 {
		keys := make([]string, 0, len(q.Filter))
		for k := range q.Filter {
			if !identifier.MatchString(k) {
				return fail("invalid filter column " + quote(k))
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)

		conds := make([]string, 0, len(keys))
		for _, k := range keys {
			if q.Filter[k] == nil {
				conds = append(conds, pq.QuoteIdentifier(k)+" IS NULL")
				continue
			}
			conds = append(conds, pq.QuoteIdentifier(k)+" = ?")
			args = append(args, q.Filter[k])
		}
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}

	if q.OrderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(pq.QuoteIdentifier(q.OrderBy))
	}
	if q.Limit > 0 {
		b.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, q.Limit, q.Offset)
	}

	return sqlx.Rebind(bindType, b.String()), args, nil
}

// quoteTable quotes each part of schema.table
func quoteTable(table string) (string, bool) {
	parts := strings.Split(strings.TrimSpace(table), ".")
	for i, p := range parts {
		if !identifier.MatchString(p) {
			return "", false
		}
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, "."), true
}
