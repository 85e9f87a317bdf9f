// Package db embeds the database schema applied at startup and by seed-db.
package db

import _ "embed"

// Schema creates the catalog, promotion, order and API key tables. Every
// statement is idempotent so it can run on each boot.
//
//go:embed migrations/001_schema.sql
var Schema string
