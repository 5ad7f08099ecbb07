package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Record is the persisted form of an Entry
type Record struct {
	Key         string
	ContentHash string
	OptionsKey  string
	Result      []byte
	Embedding   []float32
	TokenCost   int64
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Backing is the second cache level. Get returns nil, nil for a missing key.
type Backing interface {
	Get(ctx context.Context, key string) (*Record, error)
	Put(ctx context.Context, record Record) error
	Close() error
}

// SQLiteBacking persists cache entries in a SQLite database
type SQLiteBacking struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the cache database at path
func OpenSQLite(ctx context.Context, path string) (*SQLiteBacking, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	_, err = db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS cache_entries (
        cache_key    TEXT PRIMARY KEY,
        content_hash TEXT NOT NULL,
        options_key  TEXT NOT NULL,
        result       BLOB NOT NULL,
        embedding    TEXT,
        token_cost   INTEGER NOT NULL DEFAULT 0,
        created_at   TEXT NOT NULL,
        expires_at   TEXT NOT NULL
    )`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create cache table: %w", err)
	}
	return &SQLiteBacking{db: db}, nil
}

func (b *SQLiteBacking) Get(ctx context.Context, key string) (*Record, error) {
	row := b.db.QueryRowContext(ctx,
		`SELECT cache_key, content_hash, options_key, result, embedding, token_cost, created_at, expires_at
         FROM cache_entries WHERE cache_key = ?`, key)

	var (
		record    Record
		embedding sql.NullString
		created   string
		expires   string
	)
	err := row.Scan(&record.Key, &record.ContentHash, &record.OptionsKey, &record.Result,
		&embedding, &record.TokenCost, &created, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select cache entry: %w", err)
	}

	if record.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if record.ExpiresAt, err = time.Parse(time.RFC3339Nano, expires); err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}
	if embedding.Valid && embedding.String != "" {
		if err := json.Unmarshal([]byte(embedding.String), &record.Embedding); err != nil {
			return nil, fmt.Errorf("decode embedding: %w", err)
		}
	}
	return &record, nil
}

func (b *SQLiteBacking) Put(ctx context.Context, record Record) error {
	var embedding sql.NullString
	if len(record.Embedding) > 0 {
		encoded, err := json.Marshal(record.Embedding)
		if err != nil {
			return fmt.Errorf("encode embedding: %w", err)
		}
		embedding = sql.NullString{String: string(encoded), Valid: true}
	}

	_, err := b.db.ExecContext(ctx,
		`INSERT INTO cache_entries (cache_key, content_hash, options_key, result, embedding, token_cost, created_at, expires_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(cache_key) DO UPDATE SET
            content_hash = excluded.content_hash,
            options_key  = excluded.options_key,
            result       = excluded.result,
            embedding    = excluded.embedding,
            token_cost   = excluded.token_cost,
            created_at   = excluded.created_at,
            expires_at   = excluded.expires_at`,
		record.Key, record.ContentHash, record.OptionsKey, record.Result, embedding, record.TokenCost,
		record.CreatedAt.UTC().Format(time.RFC3339Nano), record.ExpiresAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}

// PurgeExpired deletes rows whose TTL has passed
func (b *SQLiteBacking) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := b.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE expires_at <= ?`, now.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("purge cache entries: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the underlying database connection.
func (b *SQLiteBacking) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}
