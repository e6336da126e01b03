// Package migrations embeds the SQL schema applied by the server at start-up
// and by integration tests.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
