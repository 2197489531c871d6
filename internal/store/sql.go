package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"tapntrack/internal/model"
)

const (
	dialectPostgres = "pgx"
	dialectSQLite   = "sqlite3"
)

// SQL keeps every collection in one documents table. Postgres stores the
// body as JSONB, SQLite as JSON text.
type SQL struct {
	db      *sql.DB
	dialect string
}

// NewPostgres connects to Postgres using pgx and creates the schema.
func NewPostgres(ctx context.Context, connString string) (*SQL, error) {
	db, err := sql.Open(dialectPostgres, connString)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return newSQL(ctx, db, dialectPostgres)
}

// NewSQLite opens (or creates) a SQLite database file.
func NewSQLite(ctx context.Context, path string) (*SQL, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open(dialectSQLite, path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return newSQL(ctx, db, dialectSQLite)
}

func newSQL(ctx context.Context, db *sql.DB, dialect string) (*SQL, error) {
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	s := &SQL{db: db, dialect: dialect}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQL) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		seq        BIGSERIAL,
		collection TEXT NOT NULL,
		id         TEXT NOT NULL,
		body       JSONB NOT NULL,
		PRIMARY KEY (collection, id)
	);
	CREATE INDEX IF NOT EXISTS idx_documents_seq ON documents (collection, seq);`
	if s.dialect == dialectSQLite {
		schema = `
	CREATE TABLE IF NOT EXISTS documents (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		collection TEXT NOT NULL,
		id         TEXT NOT NULL,
		body       TEXT NOT NULL,
		UNIQUE (collection, id)
	);`
	}
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the underlying connection.
func (s *SQL) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// rebind turns ? placeholders into $n for Postgres.
func (s *SQL) rebind(q string) string {
	if s.dialect != dialectPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQL) bodyParam() string {
	if s.dialect == dialectPostgres {
		return "CAST(? AS jsonb)"
	}
	return "?"
}

func decodeBody(raw []byte) (model.Document, error) {
	var doc model.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if doc == nil {
		doc = model.Document{}
	}
	return doc, nil
}

func (s *SQL) Get(ctx context.Context, collection, id string) (model.Document, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT body FROM documents WHERE collection = ? AND id = ?`), collection, id,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeBody(raw)
}

func (s *SQL) GetAll(ctx context.Context, collection string) ([]model.Document, error) {
	return s.query(ctx, `SELECT body FROM documents WHERE collection = ? ORDER BY seq`, collection)
}

func (s *SQL) QueryByField(ctx context.Context, collection, field string, value any) ([]model.Document, error) {
	if s.dialect == dialectPostgres {
		match, err := json.Marshal(map[string]any{field: value})
		if err != nil {
			return nil, fmt.Errorf("encode match: %w", err)
		}
		return s.query(ctx,
			`SELECT body FROM documents WHERE collection = ? AND body @> CAST(? AS jsonb) ORDER BY seq`,
			collection, string(match))
	}
	return s.query(ctx,
		`SELECT body FROM documents WHERE collection = ? AND json_extract(body, ?) IS ? ORDER BY seq`,
		collection, "$."+field, value)
}

func (s *SQL) query(ctx context.Context, q string, args ...any) ([]model.Document, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Document{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		doc, err := decodeBody(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (s *SQL) Set(ctx context.Context, collection, id string, doc model.Document) error {
	raw, err := json.Marshal(merge(nil, doc))
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	q := `INSERT INTO documents (collection, id, body) VALUES (?, ?, ` + s.bodyParam() + `)
		ON CONFLICT (collection, id) DO UPDATE SET body = excluded.body`
	_, err = s.db.ExecContext(ctx, s.rebind(q), collection, id, string(raw))
	return err
}

func (s *SQL) UpdateFields(ctx context.Context, collection, id string, fields model.Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	sel := `SELECT body FROM documents WHERE collection = ? AND id = ?`
	if s.dialect == dialectPostgres {
		sel += ` FOR UPDATE`
	}
	var raw []byte
	err = tx.QueryRowContext(ctx, s.rebind(sel), collection, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	doc, err := decodeBody(raw)
	if err != nil {
		return err
	}
	updated, err := json.Marshal(merge(doc, fields))
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	upd := `UPDATE documents SET body = ` + s.bodyParam() + ` WHERE collection = ? AND id = ?`
	if _, err := tx.ExecContext(ctx, s.rebind(upd), string(updated), collection, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQL) Remove(ctx context.Context, collection, id string) error {
	_, err := s.db.ExecContext(ctx,
		s.rebind(`DELETE FROM documents WHERE collection = ? AND id = ?`), collection, id)
	return err
}

// Take deletes with RETURNING, so the row goes to exactly one caller.
func (s *SQL) Take(ctx context.Context, collection, id string) (model.Document, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		s.rebind(`DELETE FROM documents WHERE collection = ? AND id = ? RETURNING body`), collection, id,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeBody(raw)
}
