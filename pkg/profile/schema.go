package profile

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Schema holds the two documents of the store: a profile per subdomain and a
// user record pointing at the single subdomain a user owns. All statements are
// idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS profiles (
    subdomain      TEXT PRIMARY KEY,
    owner          TEXT NOT NULL UNIQUE,
    handle         TEXT NOT NULL,
    bio            TEXT NOT NULL DEFAULT '',
    links          TEXT NOT NULL DEFAULT '[]',
    avatar_path    TEXT NOT NULL DEFAULT '',
    favicon_path   TEXT NOT NULL DEFAULT '',
    og_image_path  TEXT NOT NULL DEFAULT '',
    og_title       TEXT NOT NULL DEFAULT '',
    og_description TEXT NOT NULL DEFAULT '',
    custom_css     TEXT NOT NULL DEFAULT '',
    custom_html    TEXT NOT NULL DEFAULT '',
    created_at     INTEGER NOT NULL,
    updated_at     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
    uid        TEXT PRIMARY KEY,
    subdomain  TEXT NOT NULL UNIQUE,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
`

// Open opens the sqlite database at path, applies pragmas and creates the
// schema. The pool is limited to one connection: sqlite serialises writers
// anyway and ":memory:" databases are per connection.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("profile: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("profile: %s: %w", p, err)
		}
	}

	if err := Init(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Init creates the tables if they don't exist.
func Init(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("profile: init schema: %w", err)
	}
	return nil
}
