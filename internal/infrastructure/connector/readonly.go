package connector

import (
	"regexp"
	"strings"

	"github.com/partsync/backend/internal/domain/datasync"
)

var writeKeyword = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|MERGE|UPSERT|REPLACE|DROP|CREATE|ALTER|TRUNCATE|RENAME|GRANT|REVOKE|CALL|EXEC|EXECUTE|COPY|LOCK|VACUUM|ANALYZE|COMMENT|REINDEX|CLUSTER|SET|RESET|DO|INTO)\b`)

// guardReadOnly rejects anything that is not a single SELECT statement.
// Generated statements are checked again here before they reach the pool.
// Quoted identifiers are names, so a column called COMMENT or SET passes.
func guardReadOnly(source, stmt string) error {
	s := strings.TrimSpace(stmt)
	fail := func(msg string) error {
		return datasync.NewConfigurationError("connector "+source, "read-only guard: "+msg, nil)
	}

	s, ok := maskQuotedIdentifiers(s)
	if !ok {
		return fail("unterminated quoted identifier")
	}
	upper := strings.ToUpper(s)
	if !strings.HasPrefix(upper, "SELECT ") {
		return fail("statement must start with SELECT")
	}
	if strings.Contains(s, ";") {
		return fail("stacked statements are not allowed")
	}
	if strings.Contains(s, "--") || strings.Contains(s, "/*") {
		return fail("comments are not allowed")
	}
	if m := writeKeyword.FindString(s); m != "" {
		return fail("keyword " + strings.ToUpper(m) + " is not allowed")
	}
	return nil
}

// maskQuotedIdentifiers replaces every "..." identifier with a neutral
// token. A doubled quote inside an identifier is an escaped quote.
func maskQuotedIdentifiers(stmt string) (string, bool) {
	if !strings.Contains(stmt, `"`) {
		return stmt, true
	}
	var b strings.Builder
	b.Grow(len(stmt))
	for i := 0; i < len(stmt); i++ {
		if stmt[i] != '"' {
			b.WriteByte(stmt[i])
			continue
		}
		j := i + 1
		for {
			if j >= len(stmt) {
				return "", false
			}
			if stmt[j] == '"' {
				if j+1 < len(stmt) && stmt[j+1] == '"' {
					j += 2
					continue
				}
				break
			}
			j++
		}
		b.WriteString("ident")
		i = j
	}
	return b.String(), true
}
