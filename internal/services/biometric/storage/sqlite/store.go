package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/biomgate/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/biomgate/internal/services/biometric/storage"
	"github.com/louisbranch/biomgate/internal/services/biometric/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for the session audit trail.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens an audit SQLite store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := store.runMigrations(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) runMigrations() error {
	return sqlitemigrate.ApplyMigrations(s.sqlDB, migrations.FS, "")
}

// AppendAuditEvent records one session lifecycle event.
func (s *Store) AppendAuditEvent(ctx context.Context, evt storage.AuditEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	evt.SessionID = strings.TrimSpace(evt.SessionID)
	evt.Kind = strings.TrimSpace(evt.Kind)
	if evt.SessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if evt.Kind == "" {
		return fmt.Errorf("event kind is required")
	}
	if evt.At.IsZero() {
		return fmt.Errorf("event time is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO audit_events (session_id, kind, state, package, user_id, modality, at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`,
		evt.SessionID,
		evt.Kind,
		evt.State,
		evt.Package,
		evt.UserID,
		evt.Modality,
		toMillis(evt.At),
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// ListAuditEvents returns the events for a session in append order.
func (s *Store) ListAuditEvents(ctx context.Context, sessionID string) ([]storage.AuditEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT session_id, kind, state, package, user_id, modality, at
FROM audit_events
WHERE session_id = ?
ORDER BY seq ASC
`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []storage.AuditEvent
	for rows.Next() {
		var evt storage.AuditEvent
		var at int64
		if err := rows.Scan(
			&evt.SessionID,
			&evt.Kind,
			&evt.State,
			&evt.Package,
			&evt.UserID,
			&evt.Modality,
			&at,
		); err != nil {
			return nil, fmt.Errorf("scan audit event row: %w", err)
		}
		evt.At = fromMillis(at)
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit event rows: %w", err)
	}
	return events, nil
}
