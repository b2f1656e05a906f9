// Package migrations embeds the history archive schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
