package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/timcase/taskchampion-go/internal/op"
	"github.com/timcase/taskchampion-go/internal/tcerror"
)

// backends runs a subtest against both storage implementations.
func backends(t *testing.T, fn func(t *testing.T, store Storage)) {
	t.Helper()
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemory())
	})
	t.Run("sqlite", func(t *testing.T) {
		store, err := New(Config{TaskDBDir: t.TempDir(), CreateIfMissing: true})
		if err != nil {
			t.Fatalf("failed to open sqlite store: %v", err)
		}
		defer store.Close()
		fn(t, store)
	})
}

func TestTaskLifecycle(t *testing.T) {
	backends(t, func(t *testing.T, store Storage) {
		id := uuid.New()

		txn, err := store.Begin(false)
		if err != nil {
			t.Fatalf("Begin failed: %v", err)
		}
		created, err := txn.CreateTask(id)
		if err != nil || !created {
			t.Fatalf("CreateTask = (%v, %v), want (true, nil)", created, err)
		}
		created, err = txn.CreateTask(id)
		if err != nil || created {
			t.Fatalf("second CreateTask = (%v, %v), want (false, nil)", created, err)
		}
		if err := txn.SetTask(id, map[string]string{"status": "pending"}); err != nil {
			t.Fatalf("SetTask failed: %v", err)
		}
		if err := txn.Commit(); err != nil {
			t.Fatalf("Commit failed: %v", err)
		}

		txn, err = store.Begin(true)
		if err != nil {
			t.Fatalf("Begin failed: %v", err)
		}
		defer txn.Rollback()
		task, ok, err := txn.GetTask(id)
		if err != nil || !ok {
			t.Fatalf("GetTask = (_, %v, %v), want found", ok, err)
		}
		if task["status"] != "pending" {
			t.Errorf("task status = %q, want pending", task["status"])
		}
		ids, err := txn.AllTaskUUIDs()
		if err != nil || len(ids) != 1 {
			t.Errorf("AllTaskUUIDs = (%v, %v), want one uuid", ids, err)
		}
	})
}

func TestRollbackDiscardsWrites(t *testing.T) {
	backends(t, func(t *testing.T, store Storage) {
		id := uuid.New()

		txn, err := store.Begin(false)
		if err != nil {
			t.Fatalf("Begin failed: %v", err)
		}
		if _, err := txn.CreateTask(id); err != nil {
			t.Fatalf("CreateTask failed: %v", err)
		}
		if err := txn.AddOperation(op.Create(id)); err != nil {
			t.Fatalf("AddOperation failed: %v", err)
		}
		if err := txn.Rollback(); err != nil {
			t.Fatalf("Rollback failed: %v", err)
		}

		txn, err = store.Begin(true)
		if err != nil {
			t.Fatalf("Begin failed: %v", err)
		}
		defer txn.Rollback()
		if _, ok, _ := txn.GetTask(id); ok {
			t.Error("rolled-back task is visible")
		}
		ops, err := txn.Operations()
		if err != nil || len(ops) != 0 {
			t.Errorf("rolled-back operation is visible: (%v, %v)", ops, err)
		}
	})
}

func TestOperationsOrder(t *testing.T) {
	backends(t, func(t *testing.T, store Storage) {
		id := uuid.New()
		ts := time.Now().UTC()

		txn, err := store.Begin(false)
		if err != nil {
			t.Fatalf("Begin failed: %v", err)
		}
		pushed := []op.Operation{
			op.Create(id),
			op.Update(id, "description", ts, nil, strp("a")),
			op.UndoPoint(),
			op.Update(id, "description", ts, strp("a"), strp("b")),
		}
		for _, o := range pushed {
			if err := txn.AddOperation(o); err != nil {
				t.Fatalf("AddOperation failed: %v", err)
			}
		}
		if err := txn.Commit(); err != nil {
			t.Fatalf("Commit failed: %v", err)
		}

		txn, err = store.Begin(false)
		if err != nil {
			t.Fatalf("Begin failed: %v", err)
		}
		ops, err := txn.Operations()
		if err != nil {
			t.Fatalf("Operations failed: %v", err)
		}
		if len(ops) != len(pushed) {
			t.Fatalf("got %d operations, want %d", len(ops), len(pushed))
		}
		for i := range pushed {
			if !ops[i].Equal(pushed[i]) {
				t.Errorf("operation %d out of order or changed", i)
			}
		}

		// Drain the two oldest, as a sync would.
		if err := txn.RemoveOperations(2); err != nil {
			t.Fatalf("RemoveOperations failed: %v", err)
		}
		if err := txn.Commit(); err != nil {
			t.Fatalf("Commit failed: %v", err)
		}

		txn, err = store.Begin(true)
		if err != nil {
			t.Fatalf("Begin failed: %v", err)
		}
		defer txn.Rollback()
		ops, err = txn.Operations()
		if err != nil || len(ops) != 2 {
			t.Fatalf("after RemoveOperations: got %d operations, want 2", len(ops))
		}
		if !ops[0].Equal(pushed[2]) {
			t.Error("RemoveOperations dropped the wrong end")
		}
	})
}

func TestWorkingSet(t *testing.T) {
	backends(t, func(t *testing.T, store Storage) {
		a, b := uuid.New(), uuid.New()

		txn, err := store.Begin(false)
		if err != nil {
			t.Fatalf("Begin failed: %v", err)
		}
		if err := txn.SetWorkingSetItem(1, a); err != nil {
			t.Fatalf("SetWorkingSetItem failed: %v", err)
		}
		if err := txn.SetWorkingSetItem(2, b); err != nil {
			t.Fatalf("SetWorkingSetItem failed: %v", err)
		}
		if err := txn.Commit(); err != nil {
			t.Fatalf("Commit failed: %v", err)
		}

		txn, err = store.Begin(true)
		if err != nil {
			t.Fatalf("Begin failed: %v", err)
		}
		defer txn.Rollback()
		ws, err := txn.WorkingSet()
		if err != nil {
			t.Fatalf("WorkingSet failed: %v", err)
		}
		if ws[0] != uuid.Nil {
			t.Error("working set index 0 is not reserved")
		}
		if len(ws) != 3 || ws[1] != a || ws[2] != b {
			t.Errorf("working set = %v, want [nil %s %s]", ws, a, b)
		}
	})
}

func TestBaseVersion(t *testing.T) {
	backends(t, func(t *testing.T, store Storage) {
		txn, err := store.Begin(false)
		if err != nil {
			t.Fatalf("Begin failed: %v", err)
		}
		v, err := txn.BaseVersion()
		if err != nil || v != uuid.Nil {
			t.Errorf("initial BaseVersion = (%v, %v), want uuid.Nil", v, err)
		}
		next := uuid.New()
		if err := txn.SetBaseVersion(next); err != nil {
			t.Fatalf("SetBaseVersion failed: %v", err)
		}
		if err := txn.Commit(); err != nil {
			t.Fatalf("Commit failed: %v", err)
		}

		txn, err = store.Begin(true)
		if err != nil {
			t.Fatalf("Begin failed: %v", err)
		}
		defer txn.Rollback()
		v, err = txn.BaseVersion()
		if err != nil || v != next {
			t.Errorf("BaseVersion = (%v, %v), want %v", v, err, next)
		}
	})
}

func TestOpenSQLite_MissingWithoutCreate(t *testing.T) {
	_, err := OpenSQLite(Config{TaskDBDir: t.TempDir(), CreateIfMissing: false})
	if err == nil {
		t.Fatal("expected error for missing database, got nil")
	}
	var cerr *tcerror.ConfigError
	if !errors.As(err, &cerr) {
		t.Errorf("expected ConfigError, got %T: %v", err, err)
	}
}

func TestOpenSQLite_ReadOnly(t *testing.T) {
	dir := t.TempDir()

	// Create and populate a database, then reopen it read-only.
	store, err := OpenSQLite(Config{TaskDBDir: dir, CreateIfMissing: true})
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	id := uuid.New()
	txn, err := store.Begin(false)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if _, err := txn.CreateTask(id); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	ro, err := OpenSQLite(Config{TaskDBDir: dir, AccessMode: ReadOnly})
	if err != nil {
		t.Fatalf("failed to reopen read-only: %v", err)
	}
	defer ro.Close()

	if _, err := ro.Begin(false); err == nil {
		t.Error("write transaction on read-only store succeeded")
	}
	txn, err = ro.Begin(true)
	if err != nil {
		t.Fatalf("read transaction failed: %v", err)
	}
	defer txn.Rollback()
	if _, ok, err := txn.GetTask(id); err != nil || !ok {
		t.Errorf("GetTask on read-only store = (_, %v, %v), want found", ok, err)
	}
}

func TestNew_EmptyDirSelectsMemory(t *testing.T) {
	store, err := New(Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer store.Close()
	if _, ok := store.(*Memory); !ok {
		t.Errorf("New with empty dir returned %T, want *Memory", store)
	}
}

func strp(s string) *string { return &s }
