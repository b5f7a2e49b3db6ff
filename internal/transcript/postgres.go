package transcript

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Compile-time interface check.
var _ Store = (*PGStore)(nil)

const ddlTranscripts = `
CREATE TABLE IF NOT EXISTS transcripts (
    id          BIGSERIAL    PRIMARY KEY,
    session_id  TEXT         NOT NULL,
    seq         BIGINT       NOT NULL,
    start_ns    BIGINT       NOT NULL,
    end_ns      BIGINT       NOT NULL,
    reason      TEXT         NOT NULL DEFAULT '',
    text        TEXT         NOT NULL,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_transcripts_session_seq
    ON transcripts (session_id, seq);

CREATE INDEX IF NOT EXISTS idx_transcripts_created_at
    ON transcripts (created_at);

CREATE INDEX IF NOT EXISTS idx_transcripts_fts
    ON transcripts USING GIN (to_tsvector('english', text));
`

// PGStore is the PostgreSQL-backed transcript store. It holds a single
// [pgxpool.Pool]; all methods are safe for concurrent use.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore establishes a connection pool to the database at dsn and runs
// [Migrate] to ensure the transcripts table exists.
func NewPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("transcript store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("transcript store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("transcript store: migrate: %w", err)
	}
	return &PGStore{pool: pool}, nil
}

// Ping verifies database connectivity. Used as a readiness check.
func (s *PGStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate creates the transcripts table and its indexes if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlTranscripts); err != nil {
		return fmt.Errorf("apply transcripts DDL: %w", err)
	}
	return nil
}

// Append implements [Store].
func (s *PGStore) Append(ctx context.Context, e Entry) error {
	const q = `
		INSERT INTO transcripts
		    (session_id, seq, start_ns, end_ns, reason, text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.pool.Exec(ctx, q,
		e.SessionID,
		int64(e.Seq),
		e.Start.Nanoseconds(),
		e.End.Nanoseconds(),
		e.Reason,
		e.Text,
		created,
	)
	if err != nil {
		return fmt.Errorf("transcript store: append: %w", err)
	}
	return nil
}

// List implements [Store].
func (s *PGStore) List(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	q := `
		SELECT session_id, seq, start_ns, end_ns, reason, text, created_at
		FROM   transcripts
		WHERE  session_id = $1
		ORDER  BY seq`
	args := []any{sessionID}
	if limit > 0 {
		args = append(args, limit)
		q += fmt.Sprintf("\nLIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("transcript store: list: %w", err)
	}
	return collectEntries(rows)
}

// Search implements [Store]. The query is passed to plainto_tsquery so no
// special operator syntax is required.
func (s *PGStore) Search(ctx context.Context, query string, limit int) ([]Entry, error) {
	conditions := []string{
		"to_tsvector('english', text) @@ plainto_tsquery('english', $1)",
	}
	args := []any{query}

	q := "SELECT session_id, seq, start_ns, end_ns, reason, text, created_at\n" +
		"FROM   transcripts\n" +
		"WHERE  " + strings.Join(conditions, "\n  AND  ") + "\n" +
		"ORDER  BY created_at DESC"
	if limit > 0 {
		args = append(args, limit)
		q += fmt.Sprintf("\nLIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("transcript store: search: %w", err)
	}
	return collectEntries(rows)
}

// Close implements [Store].
func (s *PGStore) Close() {
	s.pool.Close()
}

// collectEntries scans pgx rows into a slice of Entry values.
func collectEntries(rows pgx.Rows) ([]Entry, error) {
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var (
			e       Entry
			seq     int64
			startNS int64
			endNS   int64
		)
		if err := row.Scan(
			&e.SessionID,
			&seq,
			&startNS,
			&endNS,
			&e.Reason,
			&e.Text,
			&e.CreatedAt,
		); err != nil {
			return Entry{}, err
		}
		e.Seq = uint64(seq)
		e.Start = time.Duration(startNS)
		e.End = time.Duration(endNS)
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("transcript store: scan: %w", err)
	}
	return entries, nil
}
