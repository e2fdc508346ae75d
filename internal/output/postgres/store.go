// Package postgres persists finalized transcripts to a PostgreSQL table
// with a GIN full-text search index, so past dictation sessions can be
// queried long after the audio is gone.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.Save(ctx, entry)
//	entries, _ := store.Recent(ctx, sessionID, time.Hour)
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harkd/hark/internal/output"
)

// Compile-time interface check.
var _ output.Sink = (*Store)(nil)

const ddlTranscripts = `
CREATE TABLE IF NOT EXISTS transcripts (
    id          BIGSERIAL    PRIMARY KEY,
    session_id  TEXT         NOT NULL,
    text        TEXT         NOT NULL,
    spoken_at   TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_transcripts_session_id
    ON transcripts (session_id);

CREATE INDEX IF NOT EXISTS idx_transcripts_spoken_at
    ON transcripts (spoken_at);

CREATE INDEX IF NOT EXISTS idx_transcripts_fts
    ON transcripts USING GIN (to_tsvector('english', text));
`

// SearchOpts narrows a transcript search. Zero values mean "no filter".
type SearchOpts struct {
	SessionID string
	After     time.Time
	Before    time.Time
	Limit     int
}

// DB is the database interface used by [Store]. Both *pgxpool.Pool and
// *pgx.Conn satisfy this interface.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is a PostgreSQL-backed transcript history, safe for concurrent use.
// Store also implements [output.Sink], so it can be registered directly with
// the dispatcher.
type Store struct {
	db   DB
	pool *pgxpool.Pool // nil when constructed with NewStoreWithDB
}

// NewStore establishes a connection pool to the database at dsn and runs
// [Migrate] to ensure the transcripts table exists.
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

	return &Store{db: pool, pool: pool}, nil
}

// NewStoreWithDB creates a Store over an existing connection or pool. The
// caller owns the connection's lifecycle and is responsible for running
// [Migrate] before issuing queries.
func NewStoreWithDB(db DB) *Store {
	return &Store{db: db}
}

// Migrate creates or ensures the transcripts table and its indexes exist.
// It is idempotent and safe to call on every application start.
func Migrate(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, ddlTranscripts); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}

// Name implements [output.Sink].
func (s *Store) Name() string { return "postgres" }

// Write implements [output.Sink]. Only finalized, non-empty entries are
// persisted; partial text never reaches the table.
func (s *Store) Write(ctx context.Context, e output.Entry) error {
	if !e.Final || e.Text == "" {
		return nil
	}
	return s.Save(ctx, e)
}

// Save appends a transcript entry to the history table.
func (s *Store) Save(ctx context.Context, e output.Entry) error {
	const q = `
		INSERT INTO transcripts (session_id, text, spoken_at)
		VALUES ($1, $2, $3)`

	if _, err := s.db.Exec(ctx, q, e.SessionID, e.Text, e.At); err != nil {
		return fmt.Errorf("postgres store: save transcript: %w", err)
	}
	return nil
}

// Recent returns all entries for sessionID spoken within the last duration,
// ordered chronologically (oldest first).
func (s *Store) Recent(ctx context.Context, sessionID string, duration time.Duration) ([]output.Entry, error) {
	const q = `
		SELECT session_id, text, spoken_at
		FROM   transcripts
		WHERE  session_id = $1
		  AND  spoken_at >= now() - ($2::bigint * interval '1 microsecond')
		ORDER  BY spoken_at`

	rows, err := s.db.Query(ctx, q, sessionID, duration.Microseconds())
	if err != nil {
		return nil, fmt.Errorf("postgres store: recent: %w", err)
	}
	return collectEntries(rows)
}

// Search performs a PostgreSQL full-text search over stored transcripts and
// applies optional filters from opts. The query is passed to plainto_tsquery
// so no special operator syntax is required.
func (s *Store) Search(ctx context.Context, query string, opts SearchOpts) ([]output.Entry, error) {
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
		conditions = append(conditions, "spoken_at > "+next(opts.After))
	}
	if !opts.Before.IsZero() {
		conditions = append(conditions, "spoken_at < "+next(opts.Before))
	}

	q := "SELECT session_id, text, spoken_at\n" +
		"FROM   transcripts\n" +
		"WHERE  " + strings.Join(conditions, "\n  AND  ") + "\n" +
		"ORDER  BY spoken_at"

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		q += fmt.Sprintf("\nLIMIT $%d", len(args))
	}

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres store: search: %w", err)
	}
	return collectEntries(rows)
}

// Ping reports whether the database is reachable, for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres store: ping: %w", err)
	}
	return nil
}

// Close releases all connections held by the underlying pool, if the Store
// owns one.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// collectEntries scans pgx rows into a slice of Entry values. Entries read
// back from the table are always final.
func collectEntries(rows pgx.Rows) ([]output.Entry, error) {
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (output.Entry, error) {
		var e output.Entry
		if err := row.Scan(&e.SessionID, &e.Text, &e.At); err != nil {
			return output.Entry{}, err
		}
		e.Final = true
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan rows: %w", err)
	}
	if entries == nil {
		entries = []output.Entry{}
	}
	return entries, nil
}
