// Package transcript persists finalized transcripts so streaming sessions
// and batch runs leave a queryable record.
//
// Two implementations exist: [MemStore] for tests and single-process use,
// and the PostgreSQL-backed [PGStore] for deployments that need durability
// and full-text search over past utterances.
package transcript

import (
	"context"
	"time"
)

// Entry is one persisted transcript: a recognized utterance or a batch
// result, located within its session by sequence number and audio span.
type Entry struct {
	// SessionID groups entries from one streaming session or batch run.
	SessionID string

	// Seq is the entry's position in the session's output order.
	Seq uint64

	// Start and End locate the audio span within the stream.
	Start time.Duration
	End   time.Duration

	// Reason is why the segment was finalized.
	Reason string

	// Text is the recognized transcript.
	Text string

	// CreatedAt is when the entry was recorded. The zero value is replaced
	// with the current time on append.
	CreatedAt time.Time
}

// Store persists transcript entries. Implementations are safe for concurrent
// use.
type Store interface {
	// Append records one entry.
	Append(ctx context.Context, e Entry) error

	// List returns up to limit entries for sessionID in session order
	// (oldest first). limit <= 0 means no limit.
	List(ctx context.Context, sessionID string, limit int) ([]Entry, error)

	// Search returns entries whose text matches the query, newest first,
	// capped at limit. limit <= 0 means no limit.
	Search(ctx context.Context, query string, limit int) ([]Entry, error)

	// Close releases the store's resources.
	Close()
}
