package gateway

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// AuditStore persists a request/response audit trail for every escrow action
// submitted through the gateway, independent of the ledger's own history.
type AuditStore struct {
	db *sql.DB
}

// AuditEntry represents one audit log row.
type AuditEntry struct {
	Actor          string
	Method         string
	Path           string
	RequestBody    []byte
	ResponseBody   []byte
	ResponseStatus int
	Timestamp      time.Time
}

// NewAuditStore opens (or creates) the audit database at path.
func NewAuditStore(path string) (*AuditStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &AuditStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *AuditStore) init() error {
	const schema = `CREATE TABLE IF NOT EXISTS audit_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        occurred_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
        actor TEXT,
        method TEXT NOT NULL,
        path TEXT NOT NULL,
        request_body BLOB,
        response_status INTEGER,
        response_body BLOB
    );`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the underlying database handle.
func (s *AuditStore) Close() error {
	return s.db.Close()
}

// Insert records one audit entry.
func (s *AuditStore) Insert(ctx context.Context, entry AuditEntry) error {
	const stmt = `INSERT INTO audit_log(actor, method, path, request_body, response_status, response_body, occurred_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, stmt, entry.Actor, entry.Method, entry.Path, entry.RequestBody, entry.ResponseStatus, entry.ResponseBody, entry.Timestamp)
	return err
}

// Recent returns up to limit audit entries, newest first.
func (s *AuditStore) Recent(ctx context.Context, limit int) ([]AuditEntry, error) {
	const query = `SELECT actor, method, path, request_body, response_status, response_body, occurred_at FROM audit_log ORDER BY id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []AuditEntry
	for rows.Next() {
		var entry AuditEntry
		if err := rows.Scan(&entry.Actor, &entry.Method, &entry.Path, &entry.RequestBody, &entry.ResponseStatus, &entry.ResponseBody, &entry.Timestamp); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
