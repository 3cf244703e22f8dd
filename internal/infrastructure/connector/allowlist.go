package connector

import (
	"regexp"
	"sort"
	"strings"

	"github.com/partsync/backend/internal/domain/datasync"
)

var qualifiedTable = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$#@]*\.[A-Za-z_][A-Za-z0-9_$#@]*$`)

// Allowlist is the set of schema.table targets a connector may read.
// Matching is case-insensitive.
type Allowlist struct {
	source  string
	entries map[string]string
}

// NewAllowlist validates entries of the form schema.table.
func NewAllowlist(source string, entries []string) (*Allowlist, error) {
	a := &Allowlist{source: source, entries: make(map[string]string, len(entries))}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if !qualifiedTable.MatchString(e) {
			return nil, datasync.NewConfigurationError("connector "+source, "allowlist entry "+quote(e)+" is not schema.table", nil)
		}
		a.entries[strings.ToUpper(e)] = e
	}
	return a, nil
}

// Allowed reports whether table is on the list.
func (a *Allowlist) Allowed(table string) bool {
	_, ok := a.entries[strings.ToUpper(strings.TrimSpace(table))]
	return ok
}

// Check fails with a ConfigurationError when table is not allowlisted.
func (a *Allowlist) Check(table string) error {
	if !qualifiedTable.MatchString(strings.TrimSpace(table)) {
		return datasync.NewConfigurationError("connector "+a.source, "table "+quote(table)+" is not schema.table", nil)
	}
	if !a.Allowed(table) {
		return datasync.NewConfigurationError("connector "+a.source, "table "+quote(table)+" is not allowlisted", nil)
	}
	return nil
}

// Tables returns the configured entries in sorted order.
func (a *Allowlist) Tables() []string {
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

func quote(s string) string {
	return `"` + s + `"`
}
