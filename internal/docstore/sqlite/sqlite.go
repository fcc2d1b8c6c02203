package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/vovakirdan/roomgate/internal/docstore"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// goose keeps its configuration in package globals.
var gooseMu sync.Mutex

// Store implements docstore.Store on top of SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New opens the SQLite database at dbPath and applies pending migrations.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, now: time.Now}, nil
}

func runMigrations(db *sql.DB) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(log.New(io.Discard, "", 0))

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get reads a document.
func (s *Store) Get(ctx context.Context, ref docstore.Ref) (*docstore.Snapshot, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	query := `
		SELECT data, updated_at
		FROM documents
		WHERE collection = ? AND id = ?
	`
	var data string
	var updatedAt time.Time
	err := s.db.QueryRowContext(ctx, query, ref.Collection, ref.ID).Scan(&data, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return docstore.Missing(ref), nil
		}
		return nil, fmt.Errorf("query document %s: %w", ref.Path(), err)
	}

	return docstore.NewSnapshot(ref, []byte(data), updatedAt), nil
}

// Set writes a document, merging into the existing one when asked to.
func (s *Store) Set(ctx context.Context, ref docstore.Ref, v any, opts ...docstore.SetOption) error {
	if err := ref.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	var existing []byte
	var current string
	err = tx.QueryRowContext(ctx, `SELECT data FROM documents WHERE collection = ? AND id = ?`,
		ref.Collection, ref.ID).Scan(&current)
	switch {
	case err == nil:
		existing = []byte(current)
	case errors.Is(err, sql.ErrNoRows):
	default:
		return fmt.Errorf("query document %s: %w", ref.Path(), err)
	}

	data, err := docstore.Encode(existing, v, opts...)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO documents (collection, id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at
	`
	now := s.now().UTC()
	if _, err := tx.ExecContext(ctx, query, ref.Collection, ref.ID, string(data), now, now); err != nil {
		return fmt.Errorf("upsert document %s: %w", ref.Path(), err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

var _ docstore.Store = (*Store)(nil)
