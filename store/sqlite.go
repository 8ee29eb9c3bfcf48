package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SqliteBackend keeps the document in a SQLite database. Save replaces every
// row inside one transaction, so a failed flush leaves the previous document.
//
// Tables:
//
//	collections(name)                      PRIMARY KEY (name)
//	records(collection, position, id, data) PRIMARY KEY (collection, position)
//	meta(key, value)                       PRIMARY KEY (key)
type SqliteBackend struct {
	mu sync.Mutex
	db *sql.DB
}

func NewSqliteBackend(dbPath string) (*SqliteBackend, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS collections (
			name TEXT PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS records (
			collection TEXT NOT NULL,
			position INTEGER NOT NULL,
			id INTEGER NOT NULL,
			data TEXT NOT NULL,
			PRIMARY KEY (collection, position)
		)`,
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, err
		}
	}
	return &SqliteBackend{db: db}, nil
}

func (s *SqliteBackend) Close() error {
	return s.db.Close()
}

func (s *SqliteBackend) Load() (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var marker string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = 'initialized'").Scan(&marker)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: sqlite database has never been written", ErrNoDocument)
	}
	if err != nil {
		return nil, err
	}

	doc := Document{}
	names, err := s.db.Query("SELECT name FROM collections")
	if err != nil {
		return nil, err
	}
	defer names.Close()
	for names.Next() {
		var name string
		if err := names.Scan(&name); err != nil {
			return nil, err
		}
		doc[name] = []*Record{}
	}
	if err := names.Err(); err != nil {
		return nil, err
	}

	rows, err := s.db.Query("SELECT collection, data FROM records ORDER BY collection, position")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name, raw string
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, err
		}
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("malformed record in %s: %w", name, err)
		}
		doc[name] = append(doc[name], &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := checkDocument(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *SqliteBackend) Save(doc Document) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.Exec("DELETE FROM records"); err != nil {
		return err
	}
	if _, err = tx.Exec("DELETE FROM collections"); err != nil {
		return err
	}
	for name, records := range doc {
		if _, err = tx.Exec("INSERT INTO collections (name) VALUES (?)", name); err != nil {
			return err
		}
		for i, rec := range records {
			var b []byte
			if b, err = json.Marshal(rec); err != nil {
				return err
			}
			if _, err = tx.Exec(
				"INSERT INTO records (collection, position, id, data) VALUES (?, ?, ?, ?)",
				name, i, rec.ID, string(b),
			); err != nil {
				return err
			}
		}
	}
	if _, err = tx.Exec(
		`INSERT INTO meta (key, value) VALUES ('initialized', '1')
		 ON CONFLICT(key) DO NOTHING`,
	); err != nil {
		return err
	}
	return tx.Commit()
}
