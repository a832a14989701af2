// Package migrations embeds the content-schema SQL applied by the
// bootstrap tool to local development databases.
package migrations

import "embed"

// FS embeds all .sql migration files in this directory.
//
//go:embed *.sql
var FS embed.FS
