package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// LocalConfig selects a sync server stored in a local directory. This is
// the transport for syncing replicas on one machine, or over a shared
// filesystem.
type LocalConfig struct {
	// ServerDir is created if missing.
	ServerDir string
}

// NewServer implements Config.
func (c LocalConfig) NewServer(_ context.Context, logger *log.Logger) (Server, error) {
	if c.ServerDir == "" {
		return nil, fmt.Errorf("server directory is required")
	}
	return OpenLocal(c.ServerDir, logger)
}

// Local is a SQLite-backed sync server in a local directory.
type Local struct {
	conn   *sql.DB
	logger *log.Logger
}

// OpenLocal opens (creating if needed) the server database in dir.
func OpenLocal(dir string, logger *log.Logger) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create server directory: %w", err)
	}
	path := filepath.Join(dir, "taskchampion-sync.sqlite3")
	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open server database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping server database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS versions (
			version TEXT PRIMARY KEY,
			parent TEXT NOT NULL UNIQUE,
			segment BLOB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			version TEXT NOT NULL,
			data BLOB NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := conn.Exec(stmt); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to create server schema: %w", err)
		}
	}

	return &Local{conn: conn, logger: ensureLogger(logger)}, nil
}

func (s *Local) latest(ctx context.Context, tx *sql.Tx) (uuid.UUID, error) {
	var value string
	err := tx.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'latest'`).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to read latest version: %w", err)
	}
	v, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("corrupt latest version %q: %w", value, err)
	}
	return v, nil
}

// AddVersion implements Server.
func (s *Local) AddVersion(ctx context.Context, parent uuid.UUID, segment []byte) (uuid.UUID, SnapshotUrgency, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, UrgencyNone, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	latest, err := s.latest(ctx, tx)
	if err != nil {
		return uuid.Nil, UrgencyNone, err
	}
	if parent != latest {
		return uuid.Nil, UrgencyNone, ErrVersionConflict
	}

	child := uuid.New()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO versions (version, parent, segment) VALUES (?, ?, ?)`,
		child.String(), parent.String(), segment,
	); err != nil {
		return uuid.Nil, UrgencyNone, fmt.Errorf("failed to store version: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES ('latest', ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		child.String(),
	); err != nil {
		return uuid.Nil, UrgencyNone, fmt.Errorf("failed to update latest version: %w", err)
	}

	var depth int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM versions`).Scan(&depth); err != nil {
		return uuid.Nil, UrgencyNone, fmt.Errorf("failed to count versions: %w", err)
	}
	var snapCount int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots`).Scan(&snapCount); err != nil {
		return uuid.Nil, UrgencyNone, fmt.Errorf("failed to count snapshots: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, UrgencyNone, fmt.Errorf("failed to commit version: %w", err)
	}
	s.logger.Printf("Stored version %s (parent %s)", child, parent)

	urgency := UrgencyNone
	if snapCount == 0 {
		urgency = urgencyForDepth(depth)
	}
	return child, urgency, nil
}

// GetChildVersion implements Server.
func (s *Local) GetChildVersion(ctx context.Context, parent uuid.UUID) (uuid.UUID, []byte, bool, error) {
	var versionStr string
	var segment []byte
	err := s.conn.QueryRowContext(ctx,
		`SELECT version, segment FROM versions WHERE parent = ?`, parent.String(),
	).Scan(&versionStr, &segment)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, nil, false, nil
	}
	if err != nil {
		return uuid.Nil, nil, false, fmt.Errorf("failed to read child version: %w", err)
	}
	version, err := uuid.Parse(versionStr)
	if err != nil {
		return uuid.Nil, nil, false, fmt.Errorf("corrupt version %q: %w", versionStr, err)
	}
	return version, segment, true, nil
}

// AddSnapshot implements Server.
func (s *Local) AddSnapshot(ctx context.Context, version uuid.UUID, data []byte) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO snapshots (id, version, data) VALUES (1, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET version = excluded.version, data = excluded.data`,
		version.String(), data,
	)
	if err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}
	s.logger.Printf("Stored snapshot at version %s (%d bytes)", version, len(data))
	return nil
}

// GetSnapshot implements Server.
func (s *Local) GetSnapshot(ctx context.Context) (uuid.UUID, []byte, bool, error) {
	var versionStr string
	var data []byte
	err := s.conn.QueryRowContext(ctx, `SELECT version, data FROM snapshots WHERE id = 1`).Scan(&versionStr, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, nil, false, nil
	}
	if err != nil {
		return uuid.Nil, nil, false, fmt.Errorf("failed to read snapshot: %w", err)
	}
	version, err := uuid.Parse(versionStr)
	if err != nil {
		return uuid.Nil, nil, false, fmt.Errorf("corrupt snapshot version %q: %w", versionStr, err)
	}
	return version, data, true, nil
}

// Close implements Server.
func (s *Local) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
