package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"ytmusicdl/internal/config"
)

// Store persists events in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const eventColumns = "id, kind, session_id, job_id, worker_id, video_id, title, detail, created_at"

// Open connects to the ledger database configured in cfg.Ledger.Path and
// creates the schema on first use.
func Open(cfg *config.Config) (*Store, error) {
	return OpenPath(cfg.Ledger.Path)
}

// OpenPath opens the ledger at an explicit path.
func OpenPath(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, errors.New("ledger path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append writes one event. A zero CreatedAt is replaced with the current time.
func (s *Store) Append(ctx context.Context, ev Event) error {
	if ev.Kind == "" {
		return errors.New("event kind is empty")
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO events (kind, session_id, job_id, worker_id, video_id, title, detail, created_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			string(ev.Kind),
			nullableString(ev.SessionID),
			nullableString(ev.JobID),
			nullableString(ev.WorkerID),
			nullableString(ev.VideoID),
			nullableString(ev.Title),
			nullableString(ev.Detail),
			ev.CreatedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		return nil
	})
}

// Filter narrows Recent. Zero values match everything.
type Filter struct {
	SessionID string
	Kinds     []Kind
	Limit     int
}

// Recent returns the newest events first.
func (s *Store) Recent(ctx context.Context, filter Filter) ([]Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events`
	var (
		clauses []string
		args    []any
	)
	if filter.SessionID != "" {
		clauses = append(clauses, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if len(filter.Kinds) > 0 {
		clauses = append(clauses, "kind IN ("+makePlaceholders(len(filter.Kinds))+")")
		for _, kind := range filter.Kinds {
			args = append(args, string(kind))
		}
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Stats counts events by kind.
func (s *Store) Stats(ctx context.Context) (map[Kind]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, COUNT(1) FROM events GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("ledger stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Kind]int)
	for rows.Next() {
		var kind Kind
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, err
		}
		stats[kind] = count
	}
	return stats, rows.Err()
}

// Prune deletes events created before cutoff and reports how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE created_at < ?`, cutoff.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("prune events: %w", err)
		}
		removed, err = res.RowsAffected()
		return err
	})
	return removed, err
}

func scanEvent(scanner interface{ Scan(dest ...any) error }) (Event, error) {
	var (
		ev         Event
		kind       string
		sessionID  sql.NullString
		jobID      sql.NullString
		workerID   sql.NullString
		videoID    sql.NullString
		title      sql.NullString
		detail     sql.NullString
		createdRaw string
	)
	if err := scanner.Scan(&ev.ID, &kind, &sessionID, &jobID, &workerID, &videoID, &title, &detail, &createdRaw); err != nil {
		return Event{}, err
	}
	ev.Kind = Kind(kind)
	ev.SessionID = sessionID.String
	ev.JobID = jobID.String
	ev.WorkerID = workerID.String
	ev.VideoID = videoID.String
	ev.Title = title.String
	ev.Detail = detail.String
	if created, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		ev.CreatedAt = created
	}
	return ev, nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}
