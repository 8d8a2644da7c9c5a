package sqlite

import (
	"database/sql"
	"strings"
)

const migrationsSQL = `
CREATE TABLE IF NOT EXISTS authorities (
	uid TEXT PRIMARY KEY,
	namespace TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	description TEXT,
	label TEXT,
	url TEXT,
	create_date TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS scopes (
	uid TEXT PRIMARY KEY,
	authority_uid TEXT NOT NULL REFERENCES authorities(uid),
	namespace TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	description TEXT,
	label TEXT,
	url TEXT,
	create_date TEXT NOT NULL,
	position INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS collections (
	uid TEXT PRIMARY KEY,
	scope_uid TEXT NOT NULL REFERENCES scopes(uid),
	namespace TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	description TEXT,
	term_regex TEXT,
	create_date TEXT NOT NULL,
	position INTEGER NOT NULL,
	UNIQUE(scope_uid, name)
);

CREATE TABLE IF NOT EXISTS terms (
	uid TEXT PRIMARY KEY,
	collection_uid TEXT NOT NULL REFERENCES collections(uid),
	namespace TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	label TEXT,
	data TEXT,
	create_date TEXT NOT NULL,
	position INTEGER NOT NULL,
	UNIQUE(collection_uid, name)
);

CREATE INDEX IF NOT EXISTS idx_terms_name ON terms(name);
`

// InitDB runs the schema migrations on the given connection.
func InitDB(db *sql.DB) error {
	for _, s := range strings.Split(migrationsSQL, ";") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}
