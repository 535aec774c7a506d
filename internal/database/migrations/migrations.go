// Package migrations embeds the SQL schema shared by every supported driver.
package migrations

import "embed"

// FS holds the *.up.sql files in lexical order of application.
//
//go:embed *.up.sql
var FS embed.FS
