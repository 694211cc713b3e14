package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"cerebro-ai/cerebro/pkg/memory/session"
)

// ArchiveConfig configures the SQLite session archive.
type ArchiveConfig struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns caps open connections. Default: 10.
	MaxOpenConns int

	// MaxIdleConns caps idle connections. Default: 5.
	MaxIdleConns int

	// DisableWAL turns off write-ahead logging. WAL is on by default
	// for concurrent reader/writer access.
	DisableWAL bool

	// BusyTimeout is how long a locked database is waited on.
	// Default: 5s.
	BusyTimeout time.Duration

	// Retention is how long archived sessions are kept. Default: 720h.
	Retention time.Duration
}

// ApplyDefaults fills zero-valued fields with defaults.
func (c *ArchiveConfig) ApplyDefaults() {
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 10
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 5
	}
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = 5 * time.Second
	}
	if c.Retention <= 0 {
		c.Retention = 720 * time.Hour
	}
}

const archiveSchema = `
CREATE TABLE IF NOT EXISTS session_archive (
    key TEXT PRIMARY KEY,
    base_tenant TEXT NOT NULL,
    session_id TEXT NOT NULL,

    recent TEXT NOT NULL,
    hourly_summaries TEXT NOT NULL,
    session_summary TEXT,

    message_count INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL,
    last_accessed TIMESTAMP NOT NULL,
    archived_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_session_archive_tenant
    ON session_archive(base_tenant);
CREATE INDEX IF NOT EXISTS idx_session_archive_archived_at
    ON session_archive(archived_at);
`

// Archive stores ended-session snapshots in SQLite.
type Archive struct {
	db     *sql.DB
	config ArchiveConfig
	logger *slog.Logger
}

// NewArchive opens (or creates) the archive database with WAL mode and
// the schema applied.
func NewArchive(config ArchiveConfig) (*Archive, error) {
	config.ApplyDefaults()

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, fmt.Errorf("open archive %q: %w", config.Path, err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	a := &Archive{
		db:     db,
		config: config,
		logger: slog.Default().With("component", "memory.persist.archive"),
	}
	if err := a.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	a.logger.Info("session archive opened",
		"path", config.Path,
		"retention", config.Retention,
	)
	return a, nil
}

func (a *Archive) initialize() error {
	if !a.config.DisableWAL {
		if _, err := a.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return fmt.Errorf("enable WAL: %w", err)
		}
	}
	if _, err := a.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", a.config.BusyTimeout.Milliseconds())); err != nil {
		return fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := a.db.Exec(archiveSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Store writes one snapshot, replacing any previous archive of the same
// session key.
func (a *Archive) Store(ctx context.Context, snapshot session.Snapshot) error {
	recent, err := json.Marshal(snapshot.Recent)
	if err != nil {
		return fmt.Errorf("encode recent tier: %w", err)
	}
	hourly, err := json.Marshal(snapshot.Hourly)
	if err != nil {
		return fmt.Errorf("encode hourly tier: %w", err)
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO session_archive
		(key, base_tenant, session_id, recent, hourly_summaries, session_summary,
		 message_count, created_at, last_accessed, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snapshot.Key(),
		snapshot.Base,
		snapshot.Session,
		string(recent),
		string(hourly),
		snapshot.SessionSummary,
		len(snapshot.Recent),
		snapshot.CreatedAt.UTC(),
		snapshot.LastAccessed.UTC(),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("store snapshot %q: %w", snapshot.Key(), err)
	}
	return nil
}

// Load reads one archived snapshot by key. Returns sql.ErrNoRows
// semantics as (nil, nil).
func (a *Archive) Load(ctx context.Context, key string) (*session.Snapshot, error) {
	row := a.db.QueryRowContext(ctx, `
		SELECT base_tenant, session_id, recent, hourly_summaries, session_summary,
		       created_at, last_accessed
		FROM session_archive WHERE key = ?`, key)

	var snap session.Snapshot
	var recent, hourly string
	err := row.Scan(&snap.Base, &snap.Session, &recent, &hourly, &snap.SessionSummary,
		&snap.CreatedAt, &snap.LastAccessed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %q: %w", key, err)
	}
	if err := json.Unmarshal([]byte(recent), &snap.Recent); err != nil {
		return nil, fmt.Errorf("decode recent tier: %w", err)
	}
	if err := json.Unmarshal([]byte(hourly), &snap.Hourly); err != nil {
		return nil, fmt.Errorf("decode hourly tier: %w", err)
	}
	return &snap, nil
}

// Prune deletes archived sessions older than the retention window and
// returns the number removed.
func (a *Archive) Prune(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-a.config.Retention)
	res, err := a.db.ExecContext(ctx,
		"DELETE FROM session_archive WHERE archived_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune archive: %w", err)
	}
	removed, _ := res.RowsAffected()
	if removed > 0 {
		a.logger.Info("archive pruned", "removed", removed, "cutoff", cutoff)
	}
	return removed, nil
}

// Count returns the number of archived sessions.
func (a *Archive) Count(ctx context.Context) (int, error) {
	var n int
	if err := a.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM session_archive").Scan(&n); err != nil {
		return 0, fmt.Errorf("count archive: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (a *Archive) Close() error {
	return a.db.Close()
}
