package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	fthealth "github.com/Financial-Times/go-fthealth/v1_1"
	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"

	"github.com/ncasuk/amf-cv-transformer/cv"
)

// DBExecutor is satisfied by both *sql.DB and *sql.Tx.
type DBExecutor interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// Store indexes archived authorities in a SQLite database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database at path and migrates it.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases shared across calls.
	conn.SetMaxOpenConns(1)
	if err := InitDB(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	return &Store{db: conn, path: path}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Write replaces every row of the authority with the given tree in one transaction.
func (s *Store) Write(a *cv.Authority) error {
	st, err := s.Stage(a)
	if err != nil {
		return err
	}
	return st.Commit()
}

// Stage writes the tree inside an open transaction. Readers see the previous
// rows until Commit.
func (s *Store) Stage(a *cv.Authority) (cv.Staged, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	if err := writeAuthority(tx, a); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("index authority %s: %w", a.Namespace, err)
	}
	return &stagedTx{tx: tx, path: s.path, terms: a.TermCount()}, nil
}

type stagedTx struct {
	tx    *sql.Tx
	path  string
	terms int
}

func (s *stagedTx) Commit() error {
	if err := s.tx.Commit(); err != nil {
		return fmt.Errorf("commit archive index: %w", err)
	}
	log.WithField("db", s.path).WithField("terms", s.terms).Info("Indexed CV archive in SQLite")
	return nil
}

func (s *stagedTx) Discard() error {
	return s.tx.Rollback()
}

func writeAuthority(db DBExecutor, a *cv.Authority) error {
	if err := deleteAuthority(db, a.Namespace); err != nil {
		return err
	}
	if _, err := db.Exec(`INSERT INTO authorities (uid, namespace, name, description, label, url, create_date) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.UID.String(), a.Namespace, a.Name, a.Description, nullable(a.Label), nullable(a.URL), formatDate(a.CreateDate)); err != nil {
		return fmt.Errorf("insert authority: %w", err)
	}
	for i, sc := range a.Scopes {
		if _, err := db.Exec(`INSERT INTO scopes (uid, authority_uid, namespace, name, description, label, url, create_date, position) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sc.UID.String(), a.UID.String(), sc.Namespace, sc.Name, sc.Description, nullable(sc.Label), nullable(sc.URL), formatDate(sc.CreateDate), i); err != nil {
			return fmt.Errorf("insert scope %s: %w", sc.Namespace, err)
		}
		for j, c := range sc.Collections {
			if _, err := db.Exec(`INSERT INTO collections (uid, scope_uid, namespace, name, description, term_regex, create_date, position) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				c.UID.String(), sc.UID.String(), c.Namespace, c.Name, c.Description, nullable(c.TermRegex), formatDate(c.CreateDate), j); err != nil {
				return fmt.Errorf("insert collection %s: %w", c.Namespace, err)
			}
			for k, t := range c.Terms {
				var data interface{}
				if len(t.Data) > 0 {
					data = string(t.Data)
				}
				if _, err := db.Exec(`INSERT INTO terms (uid, collection_uid, namespace, name, label, data, create_date, position) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
					t.UID.String(), c.UID.String(), t.Namespace, t.Name, nullable(t.Label), data, formatDate(t.CreateDate), k); err != nil {
					return fmt.Errorf("insert term %s: %w", t.Namespace, err)
				}
			}
		}
	}
	return nil
}

func deleteAuthority(db DBExecutor, namespace string) error {
	stmts := []string{
		`DELETE FROM terms WHERE collection_uid IN (
			SELECT c.uid FROM collections c JOIN scopes s ON s.uid = c.scope_uid JOIN authorities a ON a.uid = s.authority_uid WHERE a.namespace = ?)`,
		`DELETE FROM collections WHERE scope_uid IN (
			SELECT s.uid FROM scopes s JOIN authorities a ON a.uid = s.authority_uid WHERE a.namespace = ?)`,
		`DELETE FROM scopes WHERE authority_uid IN (SELECT uid FROM authorities WHERE namespace = ?)`,
		`DELETE FROM authorities WHERE namespace = ?`,
	}
	for _, q := range stmts {
		if _, err := db.Exec(q, namespace); err != nil {
			return fmt.Errorf("delete previous authority: %w", err)
		}
	}
	return nil
}

// TermRow is a term as stored in the index.
type TermRow struct {
	Namespace string
	Name      string
	Label     string
	Data      string
}

// GetTerms returns the terms of a collection, in archive order.
func GetTerms(db DBExecutor, collectionNamespace string) ([]TermRow, error) {
	rows, err := db.Query(`SELECT t.namespace, t.name, t.label, t.data FROM terms t JOIN collections c ON c.uid = t.collection_uid WHERE c.namespace = ? ORDER BY t.position`, collectionNamespace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TermRow
	for rows.Next() {
		var r TermRow
		var label, data sql.NullString
		if err := rows.Scan(&r.Namespace, &r.Name, &label, &data); err != nil {
			return nil, err
		}
		if label.Valid {
			r.Label = label.String
		}
		if data.Valid {
			r.Data = data.String
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetCollections returns the collection names of a scope, in archive order.
func GetCollections(db DBExecutor, scopeNamespace string) ([]string, error) {
	rows, err := db.Query(`SELECT c.name FROM collections c JOIN scopes s ON s.uid = c.scope_uid WHERE s.namespace = ? ORDER BY c.position`, scopeNamespace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (s *Store) Terms(collectionNamespace string) ([]TermRow, error) {
	return GetTerms(s.db, collectionNamespace)
}

func (s *Store) Collections(scopeNamespace string) ([]string, error) {
	return GetCollections(s.db, scopeNamespace)
}

func (s *Store) Healthcheck() fthealth.Check {
	return fthealth.Check{
		BusinessImpact:   "Vocabularies will not be indexed",
		Name:             "Check CV index database is reachable",
		PanicGuide:       "Check CV_ARCHIVE_DB points to a writable SQLite file",
		Severity:         2,
		TechnicalSummary: fmt.Sprintf("Cannot reach SQLite database %s", s.path),
		Checker: func() (string, error) {
			if err := s.db.Ping(); err != nil {
				return "Cannot reach CV index database", err
			}
			return "", nil
		},
	}
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func formatDate(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
