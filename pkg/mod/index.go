package mod

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/goopsie/bmlmod/pkg/modifier"

	_ "modernc.org/sqlite"
)

// IndexFile is the SQLite database describing a built mod.
const IndexFile = "index.db"

const schema = `
CREATE TABLE IF NOT EXISTS Configuration (key TEXT, value TEXT);
CREATE TABLE IF NOT EXISTS Modifiers (name TEXT, elements TEXT);
CREATE TABLE IF NOT EXISTS Files (name TEXT, path TEXT, hash TEXT);
`

// ModifierEntry is one row of the Modifiers table.
type ModifierEntry struct {
	Name     string            `json:"name"`
	Elements modifier.Elements `json:"elements"`
}

// FileEntry is one row of the Files table.
type FileEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Hash string `json:"hash"`
}

// Index is an open mod index database.
type Index struct {
	db *sql.DB
}

// OpenIndex opens or creates the database at path.
func OpenIndex(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open index %s: %w", path, err)
	}
	return &Index{db: db}, nil
}

// Close releases the database.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// Init creates missing tables. created reports whether the Configuration
// table did not exist before.
func (ix *Index) Init() (created bool, err error) {
	var name string
	err = ix.db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'Configuration'`).Scan(&name)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		created = true
	case err != nil:
		return false, fmt.Errorf("inspect index: %w", err)
	}
	if _, err := ix.db.Exec(schema); err != nil {
		return false, fmt.Errorf("create tables: %w", err)
	}
	return created, nil
}

// Built reports whether the index carries all tables.
func (ix *Index) Built() (bool, error) {
	var n int
	err := ix.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table'
		AND name IN ('Configuration', 'Modifiers', 'Files')`).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("inspect index: %w", err)
	}
	return n == 3, nil
}

// Configuration reads the configuration rows.
func (ix *Index) Configuration() (Config, error) {
	rows, err := ix.db.Query(`SELECT key, value FROM Configuration`)
	if err != nil {
		return Config{}, fmt.Errorf("read configuration: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key string
		var value sql.NullString
		if err := rows.Scan(&key, &value); err != nil {
			return Config{}, fmt.Errorf("read configuration: %w", err)
		}
		values[key] = value.String
	}
	if err := rows.Err(); err != nil {
		return Config{}, fmt.Errorf("read configuration: %w", err)
	}
	return configFromRows(values)
}

// SetConfiguration upserts every configuration key of cfg.
func (ix *Index) SetConfiguration(cfg Config) error {
	values, err := cfg.rows()
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tx, err := ix.db.Begin()
	if err != nil {
		return fmt.Errorf("write configuration: %w", err)
	}
	defer tx.Rollback()
	for _, key := range keys {
		if err := upsert(tx, `UPDATE Configuration SET value = ? WHERE key = ?`,
			`INSERT INTO Configuration (value, key) VALUES (?, ?)`, values[key], key); err != nil {
			return fmt.Errorf("write configuration %s: %w", key, err)
		}
	}
	return tx.Commit()
}

// Modifiers reads the modifier rows ordered by container name.
func (ix *Index) Modifiers() ([]ModifierEntry, error) {
	rows, err := ix.db.Query(`SELECT name, elements FROM Modifiers ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("read modifiers: %w", err)
	}
	defer rows.Close()

	var entries []ModifierEntry
	for rows.Next() {
		var e ModifierEntry
		var elements string
		if err := rows.Scan(&e.Name, &elements); err != nil {
			return nil, fmt.Errorf("read modifiers: %w", err)
		}
		if err := json.Unmarshal([]byte(elements), &e.Elements); err != nil {
			return nil, fmt.Errorf("decode elements of %s: %w", e.Name, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PutModifier inserts or updates the row of one container.
func (ix *Index) PutModifier(e ModifierEntry) error {
	elements, err := json.Marshal(e.Elements)
	if err != nil {
		return fmt.Errorf("encode elements of %s: %w", e.Name, err)
	}
	tx, err := ix.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := upsert(tx, `UPDATE Modifiers SET elements = ? WHERE name = ?`,
		`INSERT INTO Modifiers (elements, name) VALUES (?, ?)`, string(elements), e.Name); err != nil {
		return fmt.Errorf("write modifier %s: %w", e.Name, err)
	}
	return tx.Commit()
}

// DeleteModifier removes the row of one container.
func (ix *Index) DeleteModifier(name string) error {
	if _, err := ix.db.Exec(`DELETE FROM Modifiers WHERE name = ?`, name); err != nil {
		return fmt.Errorf("delete modifier %s: %w", name, err)
	}
	return nil
}

// Files reads the file rows ordered by name.
func (ix *Index) Files() ([]FileEntry, error) {
	rows, err := ix.db.Query(`SELECT name, path, hash FROM Files ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("read files: %w", err)
	}
	defer rows.Close()

	var entries []FileEntry
	for rows.Next() {
		var e FileEntry
		if err := rows.Scan(&e.Name, &e.Path, &e.Hash); err != nil {
			return nil, fmt.Errorf("read files: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PutFile inserts or updates the row of one file.
func (ix *Index) PutFile(e FileEntry) error {
	tx, err := ix.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	res, err := tx.Exec(`UPDATE Files SET path = ?, hash = ? WHERE name = ?`, e.Path, e.Hash, e.Name)
	if err != nil {
		return fmt.Errorf("write file %s: %w", e.Name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := tx.Exec(`INSERT INTO Files (name, path, hash) VALUES (?, ?, ?)`, e.Name, e.Path, e.Hash); err != nil {
			return fmt.Errorf("write file %s: %w", e.Name, err)
		}
	}
	return tx.Commit()
}

// DeleteFile removes the row of one file.
func (ix *Index) DeleteFile(name string) error {
	if _, err := ix.db.Exec(`DELETE FROM Files WHERE name = ?`, name); err != nil {
		return fmt.Errorf("delete file %s: %w", name, err)
	}
	return nil
}

// upsert runs update and falls back to insert when no row matched. Both
// statements take (value, key).
func upsert(tx *sql.Tx, update, insert string, value any, key string) error {
	res, err := tx.Exec(update, value, key)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	_, err = tx.Exec(insert, value, key)
	return err
}
