package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const sqliteSlotsSchemaV1 = `
CREATE TABLE IF NOT EXISTS slots (
    name TEXT PRIMARY KEY,
    payload_json TEXT NOT NULL,
    updated_at_ms INTEGER NOT NULL DEFAULT 0
);
`

// SQLiteSlot stores the document as one row of the slots table. Several
// slots can share a database file.
type SQLiteSlot struct {
	name string

	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

func NewSQLiteSlot(dsn string, name string) (*SQLiteSlot, error) {
	if dsn == "" {
		return nil, errors.New("sqlite slot: empty dsn")
	}
	if name == "" {
		name = DefaultSlotName
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite slot: open")
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteSlot{name: name, db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// SQLiteDSNForFile builds the dsn used for on-disk slot databases. The path
// is percent-encoded, so '?', '#' and '%' in directory names stay part of the
// file name.
func SQLiteDSNForFile(path string) (string, error) {
	if path == "" {
		return "", errors.New("sqlite slot: empty path")
	}
	escaped := (&url.URL{Path: path}).EscapedPath()
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", escaped), nil
}

func (s *SQLiteSlot) Name() string {
	return s.name
}

func (s *SQLiteSlot) migrate() error {
	if _, err := s.db.Exec(sqliteSlotsSchemaV1); err != nil {
		return errors.Wrap(err, "sqlite slot: migrate")
	}
	return nil
}

func (s *SQLiteSlot) Load(ctx context.Context) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, errors.New("sqlite slot closed")
	}

	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload_json FROM slots WHERE name = ?`, s.name).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "sqlite slot: loading %q", s.name)
	}
	return []byte(payload), true, nil
}

func (s *SQLiteSlot) Save(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("sqlite slot closed")
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO slots (name, payload_json, updated_at_ms)
VALUES (?, ?, ?)
ON CONFLICT(name) DO UPDATE SET payload_json = excluded.payload_json, updated_at_ms = excluded.updated_at_ms`,
		s.name,
		string(data),
		time.Now().UnixMilli(),
	)
	if err != nil {
		return errors.Wrapf(err, "sqlite slot: saving %q", s.name)
	}
	return nil
}

func (s *SQLiteSlot) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

var _ Slot = (*SQLiteSlot)(nil)
