// Package migrations embeds the duet schema migrations.
//
// Statements use unqualified table names; the runner sets search_path to the
// target schema before applying them.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
