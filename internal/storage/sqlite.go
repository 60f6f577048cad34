package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/timcase/taskchampion-go/internal/op"
	"github.com/timcase/taskchampion-go/internal/tcerror"
)

// dbFilename is the database file inside the task directory.
const dbFilename = "taskchampion.sqlite3"

// SQLite is the on-disk backend. The database is opened in WAL mode for
// concurrent readers; writes are serialized by SQLite itself.
type SQLite struct {
	conn *sql.DB
	path string
	mode AccessMode
}

// OpenSQLite opens (and, when permitted, creates) the database under
// cfg.TaskDBDir.
func OpenSQLite(cfg Config) (*SQLite, error) {
	path := filepath.Join(cfg.TaskDBDir, dbFilename)

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, tcerror.StorageWrap(err, "failed to stat database file %s", path)
		}
		if !cfg.CreateIfMissing || cfg.AccessMode == ReadOnly {
			return nil, tcerror.Configf("task database does not exist at %s", path)
		}
		if err := os.MkdirAll(cfg.TaskDBDir, 0o755); err != nil {
			return nil, tcerror.StorageWrap(err, "failed to create database directory")
		}
	}

	connStr := fmt.Sprintf("file:%s", path)
	if cfg.AccessMode == ReadOnly {
		connStr += "?mode=ro"
	}
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, tcerror.StorageWrap(err, "failed to open database")
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, tcerror.StorageWrap(err, "failed to ping database")
	}

	// A single writer at a time; modest pool for readers.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &SQLite{conn: conn, path: path, mode: cfg.AccessMode}

	if cfg.AccessMode != ReadOnly {
		// WAL for concurrent reads during writes.
		if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = s.Close()
			return nil, tcerror.StorageWrap(err, "failed to enable WAL mode")
		}
		if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
			_ = s.Close()
			return nil, tcerror.StorageWrap(err, "failed to set busy timeout")
		}
		if err := s.initSchema(); err != nil {
			_ = s.Close()
			return nil, err
		}
	}

	return s, nil
}

// initSchema creates the tables if they do not exist. Idempotent.
func (s *SQLite) initSchema() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			uuid TEXT PRIMARY KEY,
			data TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS operations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			data TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS working_set (
			id INTEGER PRIMARY KEY,
			uuid TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sync_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := s.conn.Exec(stmt); err != nil {
			return tcerror.StorageWrap(err, "failed to create schema")
		}
	}
	return nil
}

// Begin implements Storage.
func (s *SQLite) Begin(readOnly bool) (Txn, error) {
	if !readOnly && s.mode == ReadOnly {
		return nil, tcerror.Storagef("attempt to write to read-only task database")
	}
	tx, err := s.conn.Begin()
	if err != nil {
		return nil, tcerror.StorageWrap(err, "failed to begin transaction")
	}
	return &sqliteTxn{tx: tx}, nil
}

// Close implements Storage. A WAL checkpoint is attempted first so the main
// database file is current.
func (s *SQLite) Close() error {
	if s.conn == nil {
		return nil
	}
	if s.mode != ReadOnly {
		if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
		}
	}
	err := s.conn.Close()
	s.conn = nil
	if err != nil {
		return tcerror.StorageWrap(err, "failed to close database")
	}
	return nil
}

type sqliteTxn struct {
	tx   *sql.Tx
	done bool
}

func (t *sqliteTxn) GetTask(id uuid.UUID) (map[string]string, bool, error) {
	var data string
	err := t.tx.QueryRow(`SELECT data FROM tasks WHERE uuid = ?`, id.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, tcerror.StorageWrap(err, "failed to read task %s", id)
	}
	task, err := decodeTaskMap(data)
	if err != nil {
		return nil, false, err
	}
	return task, true, nil
}

func (t *sqliteTxn) CreateTask(id uuid.UUID) (bool, error) {
	res, err := t.tx.Exec(
		`INSERT INTO tasks (uuid, data) VALUES (?, ?) ON CONFLICT (uuid) DO NOTHING`,
		id.String(), "{}",
	)
	if err != nil {
		return false, tcerror.StorageWrap(err, "failed to create task %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, tcerror.StorageWrap(err, "failed to create task %s", id)
	}
	return n > 0, nil
}

func (t *sqliteTxn) SetTask(id uuid.UUID, task map[string]string) error {
	data, err := encodeTaskMap(task)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(
		`INSERT INTO tasks (uuid, data) VALUES (?, ?)
		 ON CONFLICT (uuid) DO UPDATE SET data = excluded.data`,
		id.String(), data,
	)
	if err != nil {
		return tcerror.StorageWrap(err, "failed to write task %s", id)
	}
	return nil
}

func (t *sqliteTxn) DeleteTask(id uuid.UUID) (bool, error) {
	res, err := t.tx.Exec(`DELETE FROM tasks WHERE uuid = ?`, id.String())
	if err != nil {
		return false, tcerror.StorageWrap(err, "failed to delete task %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, tcerror.StorageWrap(err, "failed to delete task %s", id)
	}
	return n > 0, nil
}

func (t *sqliteTxn) AllTasks() (map[uuid.UUID]map[string]string, error) {
	rows, err := t.tx.Query(`SELECT uuid, data FROM tasks`)
	if err != nil {
		return nil, tcerror.StorageWrap(err, "failed to list tasks")
	}
	defer rows.Close()

	tasks := make(map[uuid.UUID]map[string]string)
	for rows.Next() {
		var idStr, data string
		if err := rows.Scan(&idStr, &data); err != nil {
			return nil, tcerror.StorageWrap(err, "failed to scan task row")
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, tcerror.StorageWrap(err, "corrupt task uuid %q", idStr)
		}
		task, err := decodeTaskMap(data)
		if err != nil {
			return nil, err
		}
		tasks[id] = task
	}
	if err := rows.Err(); err != nil {
		return nil, tcerror.StorageWrap(err, "failed to iterate tasks")
	}
	return tasks, nil
}

func (t *sqliteTxn) AllTaskUUIDs() ([]uuid.UUID, error) {
	rows, err := t.tx.Query(`SELECT uuid FROM tasks`)
	if err != nil {
		return nil, tcerror.StorageWrap(err, "failed to list task uuids")
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return nil, tcerror.StorageWrap(err, "failed to scan uuid row")
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, tcerror.StorageWrap(err, "corrupt task uuid %q", idStr)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, tcerror.StorageWrap(err, "failed to iterate task uuids")
	}
	return ids, nil
}

func (t *sqliteTxn) BaseVersion() (uuid.UUID, error) {
	var value string
	err := t.tx.QueryRow(`SELECT value FROM sync_meta WHERE key = 'base_version'`).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, tcerror.StorageWrap(err, "failed to read base version")
	}
	v, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, tcerror.StorageWrap(err, "corrupt base version %q", value)
	}
	return v, nil
}

func (t *sqliteTxn) SetBaseVersion(v uuid.UUID) error {
	_, err := t.tx.Exec(
		`INSERT INTO sync_meta (key, value) VALUES ('base_version', ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		v.String(),
	)
	if err != nil {
		return tcerror.StorageWrap(err, "failed to write base version")
	}
	return nil
}

func (t *sqliteTxn) Operations() ([]op.Operation, error) {
	rows, err := t.tx.Query(`SELECT data FROM operations ORDER BY id`)
	if err != nil {
		return nil, tcerror.StorageWrap(err, "failed to list operations")
	}
	defer rows.Close()

	var ops []op.Operation
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, tcerror.StorageWrap(err, "failed to scan operation row")
		}
		var o op.Operation
		if err := json.Unmarshal([]byte(data), &o); err != nil {
			return nil, tcerror.StorageWrap(err, "corrupt operation record")
		}
		ops = append(ops, o)
	}
	if err := rows.Err(); err != nil {
		return nil, tcerror.StorageWrap(err, "failed to iterate operations")
	}
	return ops, nil
}

func (t *sqliteTxn) AddOperation(o op.Operation) error {
	data, err := json.Marshal(o)
	if err != nil {
		return tcerror.StorageWrap(err, "failed to encode operation")
	}
	if _, err := t.tx.Exec(`INSERT INTO operations (data) VALUES (?)`, string(data)); err != nil {
		return tcerror.StorageWrap(err, "failed to append operation")
	}
	return nil
}

func (t *sqliteTxn) RemoveOperations(n int) error {
	_, err := t.tx.Exec(
		`DELETE FROM operations WHERE id IN
		 (SELECT id FROM operations ORDER BY id LIMIT ?)`, n,
	)
	if err != nil {
		return tcerror.StorageWrap(err, "failed to remove operations")
	}
	return nil
}

func (t *sqliteTxn) WorkingSet() ([]uuid.UUID, error) {
	rows, err := t.tx.Query(`SELECT id, uuid FROM working_set ORDER BY id`)
	if err != nil {
		return nil, tcerror.StorageWrap(err, "failed to read working set")
	}
	defer rows.Close()

	// Index 0 is reserved in the user-facing numbering.
	ws := []uuid.UUID{uuid.Nil}
	for rows.Next() {
		var index int
		var idStr string
		if err := rows.Scan(&index, &idStr); err != nil {
			return nil, tcerror.StorageWrap(err, "failed to scan working set row")
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, tcerror.StorageWrap(err, "corrupt working set uuid %q", idStr)
		}
		for len(ws) <= index {
			ws = append(ws, uuid.Nil)
		}
		ws[index] = id
	}
	if err := rows.Err(); err != nil {
		return nil, tcerror.StorageWrap(err, "failed to iterate working set")
	}
	return ws, nil
}

func (t *sqliteTxn) SetWorkingSetItem(index int, id uuid.UUID) error {
	if id == uuid.Nil {
		if _, err := t.tx.Exec(`DELETE FROM working_set WHERE id = ?`, index); err != nil {
			return tcerror.StorageWrap(err, "failed to clear working set entry %d", index)
		}
		return nil
	}
	_, err := t.tx.Exec(
		`INSERT INTO working_set (id, uuid) VALUES (?, ?)
		 ON CONFLICT (id) DO UPDATE SET uuid = excluded.uuid`,
		index, id.String(),
	)
	if err != nil {
		return tcerror.StorageWrap(err, "failed to write working set entry %d", index)
	}
	return nil
}

func (t *sqliteTxn) ClearWorkingSet() error {
	if _, err := t.tx.Exec(`DELETE FROM working_set`); err != nil {
		return tcerror.StorageWrap(err, "failed to clear working set")
	}
	return nil
}

func (t *sqliteTxn) Commit() error {
	if t.done {
		return tcerror.Storagef("transaction already finished")
	}
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return tcerror.StorageWrap(err, "failed to commit transaction")
	}
	return nil
}

func (t *sqliteTxn) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil {
		return tcerror.StorageWrap(err, "failed to roll back transaction")
	}
	return nil
}

func encodeTaskMap(task map[string]string) (string, error) {
	if task == nil {
		task = map[string]string{}
	}
	data, err := json.Marshal(task)
	if err != nil {
		return "", tcerror.StorageWrap(err, "failed to encode task data")
	}
	return string(data), nil
}

func decodeTaskMap(data string) (map[string]string, error) {
	var task map[string]string
	if err := json.Unmarshal([]byte(data), &task); err != nil {
		return nil, tcerror.StorageWrap(err, "corrupt task data")
	}
	if task == nil {
		task = map[string]string{}
	}
	return task, nil
}
