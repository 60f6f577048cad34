// Package taskdb is the task database engine: it owns the backing store
// and is the only code that mutates it. All writes arrive as batches of
// operations and are applied inside a single storage transaction, so a
// batch is durable either in full or not at all.
package taskdb

import (
	"log"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/timcase/taskchampion-go/internal/op"
	"github.com/timcase/taskchampion-go/internal/storage"
	"github.com/timcase/taskchampion-go/internal/tcerror"
)

// Tasks with status "deleted" whose modification time is older than this
// are purged by ExpireTasks.
const expirationAge = 180 * 24 * time.Hour

// TaskDB applies operation batches to storage and answers queries over the
// stored task set.
type TaskDB struct {
	store  storage.Storage
	logger *log.Logger
}

// New wraps an opened store. If logger is nil, a default logger writing to
// stderr is used.
func New(store storage.Storage, logger *log.Logger) *TaskDB {
	if logger == nil {
		logger = log.New(os.Stderr, "[taskdb] ", log.LstdFlags)
	}
	return &TaskDB{store: store, logger: logger}
}

// SetLogger replaces the engine's logger. A nil logger restores the
// default.
func (db *TaskDB) SetLogger(logger *log.Logger) {
	if logger == nil {
		logger = log.New(os.Stderr, "[taskdb] ", log.LstdFlags)
	}
	db.logger = logger
}

// Logger returns the engine's logger.
func (db *TaskDB) Logger() *log.Logger {
	return db.logger
}

// Close releases the backing store.
func (db *TaskDB) Close() error {
	return db.store.Close()
}

// Apply commits a batch of operations as one atomic unit. Operations are
// applied in slice order; if any fails, nothing in the batch is durably
// applied. Every applied operation is also appended to the local operation
// history for undo and sync.
func (db *TaskDB) Apply(ops []op.Operation) error {
	txn, err := db.store.Begin(false)
	if err != nil {
		return err
	}
	defer txn.Rollback() //nolint:errcheck

	touched := make(map[uuid.UUID]bool)
	for _, o := range ops {
		if err := applyOne(txn, o); err != nil {
			return err
		}
		if err := txn.AddOperation(o); err != nil {
			return err
		}
		if o.Kind != op.KindUndoPoint {
			touched[o.UUID] = true
		}
	}

	if err := updateWorkingSet(txn, touched); err != nil {
		return err
	}
	return txn.Commit()
}

func applyOne(txn storage.Txn, o op.Operation) error {
	switch o.Kind {
	case op.KindCreate:
		// Creating an existing task is a no-op; the record is still
		// kept in the history so replicas converge.
		_, err := txn.CreateTask(o.UUID)
		return err
	case op.KindDelete:
		if _, err := txn.DeleteTask(o.UUID); err != nil {
			return err
		}
		return removeFromWorkingSet(txn, o.UUID)
	case op.KindUpdate:
		task, ok, err := txn.GetTask(o.UUID)
		if err != nil {
			return err
		}
		if !ok {
			return tcerror.Storagef("task %s does not exist", o.UUID)
		}
		if o.Value == nil {
			delete(task, o.Property)
		} else {
			task[o.Property] = *o.Value
		}
		return txn.SetTask(o.UUID, task)
	case op.KindUndoPoint:
		return nil
	}
	return tcerror.Storagef("unknown operation kind %d", o.Kind)
}

// updateWorkingSet gives every pending task touched by the batch a
// working-set index if it does not have one yet. Indices of tasks that
// left pending status are not reclaimed here; RebuildWorkingSet does that.
func updateWorkingSet(txn storage.Txn, touched map[uuid.UUID]bool) error {
	if len(touched) == 0 {
		return nil
	}
	ws, err := txn.WorkingSet()
	if err != nil {
		return err
	}
	member := make(map[uuid.UUID]bool, len(ws))
	for _, id := range ws {
		if id != uuid.Nil {
			member[id] = true
		}
	}
	next := len(ws)

	ids := make([]uuid.UUID, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	for _, id := range ids {
		if member[id] {
			continue
		}
		task, ok, err := txn.GetTask(id)
		if err != nil {
			return err
		}
		if !ok || task["status"] != "pending" {
			continue
		}
		if err := txn.SetWorkingSetItem(next, id); err != nil {
			return err
		}
		member[id] = true
		next++
	}
	return nil
}

func removeFromWorkingSet(txn storage.Txn, id uuid.UUID) error {
	ws, err := txn.WorkingSet()
	if err != nil {
		return err
	}
	for i, wid := range ws {
		if wid == id {
			if err := txn.SetWorkingSetItem(i, uuid.Nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// GetTask returns the property map of one task.
func (db *TaskDB) GetTask(id uuid.UUID) (map[string]string, bool, error) {
	txn, err := db.store.Begin(true)
	if err != nil {
		return nil, false, err
	}
	defer txn.Rollback() //nolint:errcheck
	return txn.GetTask(id)
}

// AllTasks returns every task keyed by UUID.
func (db *TaskDB) AllTasks() (map[uuid.UUID]map[string]string, error) {
	txn, err := db.store.Begin(true)
	if err != nil {
		return nil, err
	}
	defer txn.Rollback() //nolint:errcheck
	return txn.AllTasks()
}

// AllTaskUUIDs returns the UUID of every stored task.
func (db *TaskDB) AllTaskUUIDs() ([]uuid.UUID, error) {
	txn, err := db.store.Begin(true)
	if err != nil {
		return nil, err
	}
	defer txn.Rollback() //nolint:errcheck
	return txn.AllTaskUUIDs()
}

// WorkingSet returns the current index->uuid mapping. Index 0 is always
// uuid.Nil.
func (db *TaskDB) WorkingSet() ([]uuid.UUID, error) {
	txn, err := db.store.Begin(true)
	if err != nil {
		return nil, err
	}
	defer txn.Rollback() //nolint:errcheck
	return txn.WorkingSet()
}

// RebuildWorkingSet recomputes the working set from task status. Entries
// for tasks that are no longer pending are dropped; pending tasks missing
// an index get one. With renumber, surviving entries are compacted into a
// dense 1..n range in their existing order.
func (db *TaskDB) RebuildWorkingSet(renumber bool) error {
	txn, err := db.store.Begin(false)
	if err != nil {
		return err
	}
	defer txn.Rollback() //nolint:errcheck

	tasks, err := txn.AllTasks()
	if err != nil {
		return err
	}
	pending := make(map[uuid.UUID]bool)
	for id, task := range tasks {
		if task["status"] == "pending" {
			pending[id] = true
		}
	}

	ws, err := txn.WorkingSet()
	if err != nil {
		return err
	}

	// Keep surviving entries in working-set order, then append pending
	// tasks that had no index, in stable uuid order.
	var ordered []uuid.UUID
	seen := make(map[uuid.UUID]bool)
	for _, id := range ws {
		if id != uuid.Nil && pending[id] && !seen[id] {
			ordered = append(ordered, id)
			seen[id] = true
		}
	}
	var missing []uuid.UUID
	for id := range pending {
		if !seen[id] {
			missing = append(missing, id)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i].String() < missing[j].String() })

	if err := txn.ClearWorkingSet(); err != nil {
		return err
	}
	if renumber {
		index := 1
		for _, id := range append(ordered, missing...) {
			if err := txn.SetWorkingSetItem(index, id); err != nil {
				return err
			}
			index++
		}
	} else {
		// Preserve existing indices; fill gaps only for the missing.
		used := make(map[int]bool)
		for i, id := range ws {
			if id != uuid.Nil && pending[id] {
				if err := txn.SetWorkingSetItem(i, id); err != nil {
					return err
				}
				used[i] = true
			}
		}
		next := 1
		for _, id := range missing {
			for used[next] {
				next++
			}
			if err := txn.SetWorkingSetItem(next, id); err != nil {
				return err
			}
			used[next] = true
		}
	}
	return txn.Commit()
}

// ExpireTasks purges deleted tasks whose modification time is older than
// 180 days. The deletions are recorded as operations so they propagate to
// other replicas on sync. All-or-nothing per call.
func (db *TaskDB) ExpireTasks() error {
	tasks, err := db.AllTasks()
	if err != nil {
		return err
	}
	cutoff := time.Now().Add(-expirationAge)

	var ids []uuid.UUID
	for id, task := range tasks {
		if task["status"] != "deleted" {
			continue
		}
		modified, ok := task["modified"]
		if !ok {
			continue
		}
		ts, err := op.ParseEpoch(modified)
		if err != nil || !ts.Before(cutoff) {
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	ops := make([]op.Operation, 0, len(ids))
	for _, id := range ids {
		ops = append(ops, op.Delete(id, tasks[id]))
	}
	db.logger.Printf("Expiring %d deleted tasks", len(ids))
	return db.Apply(ops)
}

// NumLocalOperations counts operations not yet synced to a server, not
// including undo points.
func (db *TaskDB) NumLocalOperations() (int, error) {
	ops, err := db.localOperations()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, o := range ops {
		if o.Kind != op.KindUndoPoint {
			n++
		}
	}
	return n, nil
}

// NumUndoPoints counts undo boundaries in the local operation history.
func (db *TaskDB) NumUndoPoints() (int, error) {
	ops, err := db.localOperations()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, o := range ops {
		if o.Kind == op.KindUndoPoint {
			n++
		}
	}
	return n, nil
}

func (db *TaskDB) localOperations() ([]op.Operation, error) {
	txn, err := db.store.Begin(true)
	if err != nil {
		return nil, err
	}
	defer txn.Rollback() //nolint:errcheck
	return txn.Operations()
}
