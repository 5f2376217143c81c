// Package migrations embeds the custody service schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
