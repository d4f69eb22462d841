// Package migrations embeds the SQL schema of the progress store, one directory per dialect
package migrations

import "embed"

// MySQL holds the migrations applied to the production MySQL database
//
//go:embed mysql/*.sql
var MySQL embed.FS

// SQLite holds the migrations applied to the embedded SQLite database
//
//go:embed sqlite/*.sql
var SQLite embed.FS
