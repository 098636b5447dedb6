// Package sqlite implements the progression storage on SQLite.
package sqlite

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"

	_ "github.com/mattn/go-sqlite3"

	"github.com/radquest/radquest/internal/storage/migrations"
)

// busyTimeoutMS is how long a writer waits for a lock held by another process
const busyTimeoutMS = 5000

// DB is a SQLite database with the radquest schema
type DB struct {
	*sql.DB
}

// Open opens the database file in WAL mode with foreign keys on. The pool
// holds one connection so writes are serialized inside the process; the busy
// timeout covers other processes sharing the file.
func Open(path string) (*DB, error) {
	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_foreign_keys", "ON")
	q.Set("_busy_timeout", fmt.Sprint(busyTimeoutMS))

	db, err := sql.Open("sqlite3", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	return &DB{DB: db}, nil
}

// Migrate runs the pending embedded migrations, each in its own transaction
func (db *DB) Migrate() error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	current, err := db.Version()
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	pending, err := migrations.Pending(migrations.SQLite, current)
	if err != nil {
		return err
	}

	for _, m := range pending {
		if err := db.apply(m); err != nil {
			return err
		}
		slog.Info("applied migration", "backend", "sqlite", "name", m.Name)
	}
	return nil
}

func (db *DB) apply(m migrations.Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migration %s: %w", m.Name, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.SQL); err != nil {
		return fmt.Errorf("migration %s: %w", m.Name, err)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
		return fmt.Errorf("migration %s: record version: %w", m.Name, err)
	}
	return tx.Commit()
}

// Version returns the newest applied migration, 0 for an empty database
func (db *DB) Version() (int, error) {
	var v int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v)
	return v, err
}
