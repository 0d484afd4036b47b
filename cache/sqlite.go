package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/glebarez/go-sqlite"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/always-cache/cachexec/pkg/message"
	"github.com/always-cache/cachexec/pkg/metrics"
	serializer "github.com/always-cache/cachexec/pkg/response-serializer"
)

// SQLiteStore persists serialized entries in an SQLite database.
type SQLiteStore struct {
	db         *sql.DB
	writeMutex *sync.Mutex
	reads      singleflight.Group
	opts       Options
}

// NewSQLiteStore opens a store with the given filename as the db.
// If file name is empty, a new in-memory db is opened.
func NewSQLiteStore(filename string, opts Options) (*SQLiteStore, error) {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS cache (
			key TEXT NOT NULL,
			variant TEXT NOT NULL,
			expires INTEGER,
			requested_at INTEGER,
			received_at INTEGER,
			bytes BLOB,
			PRIMARY KEY (key, variant)
		)`,
		"CREATE INDEX IF NOT EXISTS expires_idx ON cache (expires)",
		"CREATE INDEX IF NOT EXISTS received_at_idx ON cache (received_at)",
		"PRAGMA journal_mode=WAL",
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init sqlite db: %w", err)
		}
	}
	return &SQLiteStore{
		db:         db,
		writeMutex: &sync.Mutex{},
		opts:       opts,
	}, nil
}

// Match coalesces concurrent reads of the same key.
func (s *SQLiteStore) Match(ctx context.Context, key string) ([]*message.Entry, error) {
	return coalesce(ctx, &s.reads, key, func(ctx context.Context) ([]*message.Entry, error) {
		return s.match(ctx, key)
	})
}

func (s *SQLiteStore) match(ctx context.Context, key string) ([]*message.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT bytes FROM cache
		WHERE key = ? AND (expires = 0 OR expires > ?)
		ORDER BY variant`, key, s.opts.now().UnixNano())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []*message.Entry
	for rows.Next() {
		var b []byte
		if err := rows.Scan(&b); err != nil {
			return nil, err
		}
		e, err := serializer.BytesToEntry(b)
		if err != nil {
			return nil, fmt.Errorf("decode entry %q: %w", key, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Update runs fn inside a write transaction. Writes are serialized.
func (s *SQLiteStore) Update(ctx context.Context, key, variant string, fn UpdateFunc) (*message.Entry, error) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var current *message.Entry
	var b []byte
	err = tx.QueryRowContext(ctx, `SELECT bytes FROM cache
		WHERE key = ? AND variant = ? AND (expires = 0 OR expires > ?)`,
		key, variant, s.opts.now().UnixNano()).Scan(&b)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, err
	default:
		if current, err = serializer.BytesToEntry(b); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Replacing undecodable entry")
			current = nil
		}
	}

	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	if next == current {
		return current, nil
	}
	if next == nil {
		_, err = tx.ExecContext(ctx, "DELETE FROM cache WHERE key = ? AND variant = ?", key, variant)
	} else {
		var expires int64
		if exp := s.opts.expires(next); !exp.IsZero() {
			expires = exp.UnixNano()
		}
		_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO cache
			(key, variant, expires, requested_at, received_at, bytes) VALUES (?, ?, ?, ?, ?, ?)`,
			key, variant, expires, next.RequestTime.UnixNano(), next.ResponseTime.UnixNano(),
			serializer.EntryToBytes(next))
	}
	if err != nil {
		return nil, err
	}
	if err := s.trim(ctx, tx); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return next, nil
}

// trim deletes expired rows and the least recently received rows above
// MaxEntries.
func (s *SQLiteStore) trim(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM cache WHERE expires > 0 AND expires <= ?",
		s.opts.now().UnixNano()); err != nil {
		return err
	}
	if s.opts.MaxEntries <= 0 {
		return nil
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM cache WHERE rowid IN (
		SELECT rowid FROM cache ORDER BY received_at ASC
		LIMIT max(0, (SELECT COUNT(*) FROM cache) - ?))`, s.opts.MaxEntries)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n > 0 {
		metrics.Evictions.WithLabelValues("sqlite").Add(float64(n))
	}
	return nil
}

func (s *SQLiteStore) Invalidate(ctx context.Context, key string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.ExecContext(ctx, "DELETE FROM cache WHERE key = ?", key)
	return err
}

func (s *SQLiteStore) Keys(ctx context.Context, prefix string, cb func(string)) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT key FROM cache WHERE substr(key, 1, length(?)) = ? ORDER BY key",
		prefix, prefix)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return err
		}
		cb(key)
	}
	return rows.Err()
}

func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cache").Scan(&n)
	return n, err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
var _ Store = (*MemStore)(nil)
