// Package migrations embeds the catalog schema migrations so the server and
// the migrate CLI apply the same files without a path on disk.
package migrations

import "embed"

// FS holds the NNNNNN_name.up.sql / .down.sql pairs
//
//go:embed *.sql
var FS embed.FS
