package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/sparkie/pkg/memory"
)

var _ memory.SessionStore = (*Store)(nil)

// Store is a [memory.SessionStore] backed by a session_entries table with a
// GIN full-text search index. All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a connection pool to the PostgreSQL database at dsn,
// verifies connectivity and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Ping verifies the database is reachable. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

const selectColumns = "SELECT role, text, end_cause, timestamp, duration_ns\nFROM   session_entries\n"

// WriteEntry implements [memory.SessionStore].
func (s *Store) WriteEntry(ctx context.Context, sessionID string, entry memory.TranscriptEntry) error {
	if sessionID == "" {
		return fmt.Errorf("session store: write entry: empty session ID")
	}
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	const q = `
		INSERT INTO session_entries
		    (session_id, role, text, end_cause, timestamp, duration_ns)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.pool.Exec(ctx, q,
		sessionID,
		entry.Role,
		entry.Text,
		entry.EndCause,
		ts,
		entry.Duration.Nanoseconds(),
	)
	if err != nil {
		return fmt.Errorf("session store: write entry: %w", err)
	}
	return nil
}

// Entries implements [memory.SessionStore].
func (s *Store) Entries(ctx context.Context, sessionID string) ([]memory.TranscriptEntry, error) {
	rows, err := s.pool.Query(ctx, selectColumns+"WHERE  session_id = $1\nORDER  BY timestamp, id", sessionID)
	if err != nil {
		return nil, fmt.Errorf("session store: entries: %w", err)
	}
	return collectEntries(rows)
}

// GetRecent implements [memory.SessionStore]. Entries are ordered
// chronologically (oldest first).
func (s *Store) GetRecent(ctx context.Context, sessionID string, duration time.Duration) ([]memory.TranscriptEntry, error) {
	const q = selectColumns + `WHERE  session_id = $1
  AND  timestamp  >= now() - ($2::bigint * interval '1 microsecond')
ORDER  BY timestamp, id`

	rows, err := s.pool.Query(ctx, q, sessionID, duration.Microseconds())
	if err != nil {
		return nil, fmt.Errorf("session store: get recent: %w", err)
	}
	return collectEntries(rows)
}

// Search implements [memory.SessionStore]. The query is passed to
// plainto_tsquery so no special operator syntax is required.
func (s *Store) Search(ctx context.Context, query string, opts memory.SearchOpts) ([]memory.TranscriptEntry, error) {
	q, args := buildSearch(query, opts)
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("session store: search: %w", err)
	}
	return collectEntries(rows)
}

// buildSearch assembles the search statement and its positional arguments.
func buildSearch(query string, opts memory.SearchOpts) (string, []any) {
	args := []any{query} // $1 = FTS query string
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{
		"to_tsvector('english', text) @@ plainto_tsquery('english', $1)",
	}
	if opts.SessionID != "" {
		conditions = append(conditions, "session_id = "+next(opts.SessionID))
	}
	if !opts.After.IsZero() {
		conditions = append(conditions, "timestamp > "+next(opts.After))
	}
	if !opts.Before.IsZero() {
		conditions = append(conditions, "timestamp < "+next(opts.Before))
	}
	if opts.Role != "" {
		conditions = append(conditions, "role = "+next(opts.Role))
	}

	q := selectColumns +
		"WHERE  " + strings.Join(conditions, "\n  AND  ") + "\n" +
		"ORDER  BY timestamp, id"

	if opts.Limit > 0 {
		q += "\nLIMIT " + next(opts.Limit)
	}
	return q, args
}

// EntryCount implements [memory.SessionStore].
func (s *Store) EntryCount(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, "SELECT count(*) FROM session_entries WHERE session_id = $1", sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("session store: entry count: %w", err)
	}
	return n, nil
}

// collectEntries scans pgx rows into a slice of TranscriptEntry values.
func collectEntries(rows pgx.Rows) ([]memory.TranscriptEntry, error) {
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.TranscriptEntry, error) {
		var (
			e          memory.TranscriptEntry
			durationNS int64
		)
		if err := row.Scan(&e.Role, &e.Text, &e.EndCause, &e.Timestamp, &durationNS); err != nil {
			return memory.TranscriptEntry{}, err
		}
		e.Duration = time.Duration(durationNS)
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("session store: scan rows: %w", err)
	}
	if entries == nil {
		entries = []memory.TranscriptEntry{}
	}
	return entries, nil
}
