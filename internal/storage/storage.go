// Package storage provides the pluggable backing store for the task
// database: an on-disk SQLite backend and an in-memory backend.
//
// All access goes through transactions. A transaction sees a consistent
// snapshot and buffers its writes; nothing is durable until Commit. This is
// what gives the operation log its all-or-nothing commit semantics.
package storage

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/timcase/taskchampion-go/internal/op"
)

// AccessMode controls whether an on-disk store accepts writes.
type AccessMode int

const (
	// ReadWrite allows both read and write transactions.
	ReadWrite AccessMode = iota
	// ReadOnly rejects write transactions and never creates files.
	ReadOnly
)

func (m AccessMode) String() string {
	if m == ReadOnly {
		return "read_only"
	}
	return "read_write"
}

// Config selects and parameterizes a backend.
//
// Exactly one of the variants applies: OnDisk when TaskDBDir is non-empty,
// InMemory otherwise.
type Config struct {
	// TaskDBDir is the directory holding the on-disk database. Empty
	// selects the in-memory backend.
	TaskDBDir string

	// CreateIfMissing controls whether a missing on-disk database is
	// created or reported as a ConfigError.
	CreateIfMissing bool

	// AccessMode applies to the on-disk backend only.
	AccessMode AccessMode
}

// Storage is a transactional store for task data, the local operation
// history, the working set, and sync metadata.
type Storage interface {
	// Begin starts a transaction. Write transactions on a read-only
	// store fail with a StorageError.
	Begin(readOnly bool) (Txn, error)

	// Close releases the underlying resources.
	Close() error
}

// Txn is a single storage transaction. Writes are invisible to other
// transactions until Commit. Rollback discards them; calling Rollback after
// Commit is a no-op, so `defer txn.Rollback()` is the usual pattern.
type Txn interface {
	// GetTask returns the property map of a task, or ok=false.
	GetTask(id uuid.UUID) (map[string]string, bool, error)

	// CreateTask inserts an empty task. Returns ok=false without error
	// if the task already exists.
	CreateTask(id uuid.UUID) (bool, error)

	// SetTask replaces the property map of a task, creating it if needed.
	SetTask(id uuid.UUID, task map[string]string) error

	// DeleteTask removes a task. Returns ok=false if it did not exist.
	DeleteTask(id uuid.UUID) (bool, error)

	// AllTasks returns every task keyed by UUID.
	AllTasks() (map[uuid.UUID]map[string]string, error)

	// AllTaskUUIDs returns the UUID of every stored task.
	AllTaskUUIDs() ([]uuid.UUID, error)

	// BaseVersion returns the sync base version (uuid.Nil before the
	// first sync).
	BaseVersion() (uuid.UUID, error)

	// SetBaseVersion records the sync base version.
	SetBaseVersion(v uuid.UUID) error

	// Operations returns the local operation history in commit order.
	Operations() ([]op.Operation, error)

	// AddOperation appends one operation to the local history.
	AddOperation(o op.Operation) error

	// RemoveOperations drops the oldest n operations from the history,
	// after they have been handed to a sync server.
	RemoveOperations(n int) error

	// WorkingSet returns the index->uuid mapping. Index 0 is unused and
	// always uuid.Nil.
	WorkingSet() ([]uuid.UUID, error)

	// SetWorkingSetItem sets or clears (uuid.Nil) one working-set entry.
	SetWorkingSetItem(index int, id uuid.UUID) error

	// ClearWorkingSet removes every working-set entry.
	ClearWorkingSet() error

	// Commit makes the transaction's writes durable.
	Commit() error

	// Rollback discards the transaction's writes.
	Rollback() error
}

// New opens the backend selected by cfg.
func New(cfg Config) (Storage, error) {
	if cfg.TaskDBDir == "" {
		return NewMemory(), nil
	}
	s, err := OpenSQLite(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open on-disk storage: %w", err)
	}
	return s, nil
}
