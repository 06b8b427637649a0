// Package transcriptlog persists surfaced transcriptions to PostgreSQL.
//
// Persistence is optional: the engine runs without it when no DSN is
// configured, and a write failure never disturbs the live pipeline — entries
// are logged and dropped.
//
// Usage:
//
//	store, err := transcriptlog.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.Save(ctx, transcriptlog.Entry{Text: "hello world", Mode: "vad"})
package transcriptlog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlTranscripts = `
CREATE TABLE IF NOT EXISTS transcripts (
    id          BIGSERIAL    PRIMARY KEY,
    text        TEXT         NOT NULL,
    mode        TEXT         NOT NULL DEFAULT '',
    latency_ms  BIGINT       NOT NULL DEFAULT 0,
    audio_ms    BIGINT       NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_transcripts_created_at
    ON transcripts (created_at);

CREATE INDEX IF NOT EXISTS idx_transcripts_fts
    ON transcripts USING GIN (to_tsvector('english', text));
`

// Entry is one surfaced transcription.
type Entry struct {
	// Text is the trimmed transcript.
	Text string

	// Mode names the segmentation strategy that produced the utterance
	// ("vad" or "window").
	Mode string

	// Latency is the transcription engine latency.
	Latency time.Duration

	// AudioDuration is the length of the transcribed utterance.
	AudioDuration time.Duration

	// CreatedAt is when the transcript was surfaced. Zero means now.
	CreatedAt time.Time
}

// Store is the PostgreSQL-backed transcript log. It holds a single
// [pgxpool.Pool]; all methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore establishes a connection pool to the database at dsn and runs
// [Migrate] to ensure the transcripts table exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("transcript log: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("transcript log: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("transcript log: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("transcript log: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Migrate ensures the transcripts table and its indexes exist. It is
// idempotent (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT EXISTS).
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlTranscripts); err != nil {
		return fmt.Errorf("transcript log: apply schema: %w", err)
	}
	return nil
}

// Save appends entry to the transcripts table.
func (s *Store) Save(ctx context.Context, entry Entry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	const q = `
		INSERT INTO transcripts (text, mode, latency_ms, audio_ms, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, q,
		entry.Text,
		entry.Mode,
		entry.Latency.Milliseconds(),
		entry.AudioDuration.Milliseconds(),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("transcript log: save: %w", err)
	}
	return nil
}

// Recent returns all transcripts created no earlier than time.Now()-duration,
// ordered chronologically (oldest first).
func (s *Store) Recent(ctx context.Context, duration time.Duration) ([]Entry, error) {
	const q = `
		SELECT text, mode, latency_ms, audio_ms, created_at
		FROM   transcripts
		WHERE  created_at >= now() - ($1::bigint * interval '1 microsecond')
		ORDER  BY created_at`

	rows, err := s.pool.Query(ctx, q, duration.Microseconds())
	if err != nil {
		return nil, fmt.Errorf("transcript log: recent: %w", err)
	}
	return collectEntries(rows)
}

// Search performs a full-text search over the transcript text. The query is
// passed to plainto_tsquery so no special operator syntax is required. A
// limit of 0 means no limit.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]Entry, error) {
	q := `
		SELECT text, mode, latency_ms, audio_ms, created_at
		FROM   transcripts
		WHERE  to_tsvector('english', text) @@ plainto_tsquery('english', $1)
		ORDER  BY created_at`
	args := []any{query}

	if limit > 0 {
		args = append(args, limit)
		q += fmt.Sprintf("\nLIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("transcript log: search: %w", err)
	}
	return collectEntries(rows)
}

// Ping probes the underlying connection pool. Used by the readiness check.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// collectEntries scans pgx rows into a slice of Entry values.
func collectEntries(rows pgx.Rows) ([]Entry, error) {
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var (
			e         Entry
			latencyMS int64
			audioMS   int64
		)
		if err := row.Scan(&e.Text, &e.Mode, &latencyMS, &audioMS, &e.CreatedAt); err != nil {
			return Entry{}, err
		}
		e.Latency = time.Duration(latencyMS) * time.Millisecond
		e.AudioDuration = time.Duration(audioMS) * time.Millisecond
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("transcript log: scan rows: %w", err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}
