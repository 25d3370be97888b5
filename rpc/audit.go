package rpc

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// AuditEntry represents one recorded API mutation.
type AuditEntry struct {
	ID             string
	Method         string
	Path           string
	RequestBody    []byte
	ResponseStatus int
	OccurredAt     time.Time
}

// AuditStore persists an append-only log of mutating API calls.
type AuditStore interface {
	Insert(ctx context.Context, entry AuditEntry) error
	Recent(ctx context.Context, limit int) ([]AuditEntry, error)
	Close() error
}

// SQLiteAuditStore keeps the audit log in a local SQLite database.
type SQLiteAuditStore struct {
	db *sql.DB
}

func NewSQLiteAuditStore(path string) (*SQLiteAuditStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &SQLiteAuditStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteAuditStore) init() error {
	const schema = `CREATE TABLE IF NOT EXISTS audit_log (
        id TEXT PRIMARY KEY,
        occurred_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
        method TEXT NOT NULL,
        path TEXT NOT NULL,
        request_body BLOB,
        response_status INTEGER
    );`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteAuditStore) Close() error {
	return s.db.Close()
}

// Insert appends an entry to the audit log. A fresh UUID is assigned when the
// entry does not carry one.
func (s *SQLiteAuditStore) Insert(ctx context.Context, entry AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}
	const stmt = `INSERT INTO audit_log(id, method, path, request_body, response_status, occurred_at) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, stmt, entry.ID, entry.Method, entry.Path, entry.RequestBody, entry.ResponseStatus, entry.OccurredAt)
	return err
}

// Recent returns the newest entries, most recent first.
func (s *SQLiteAuditStore) Recent(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `SELECT id, method, path, request_body, response_status, occurred_at FROM audit_log ORDER BY occurred_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []AuditEntry
	for rows.Next() {
		var entry AuditEntry
		if err := rows.Scan(&entry.ID, &entry.Method, &entry.Path, &entry.RequestBody, &entry.ResponseStatus, &entry.OccurredAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

var errNoAuditStore = errors.New("rpc: audit store not configured")

// noopAuditStore satisfies AuditStore when auditing is disabled.
type noopAuditStore struct{}

func (noopAuditStore) Insert(context.Context, AuditEntry) error { return nil }
func (noopAuditStore) Recent(context.Context, int) ([]AuditEntry, error) {
	return nil, errNoAuditStore
}
func (noopAuditStore) Close() error { return nil }
