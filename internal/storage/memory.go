package storage

import (
	"sort"

	"github.com/google/uuid"

	"github.com/timcase/taskchampion-go/internal/op"
	"github.com/timcase/taskchampion-go/internal/tcerror"
)

// Memory is the in-memory backend. A transaction deep-copies the current
// state and swaps it back in on Commit, so rollback really does discard
// every buffered write.
type Memory struct {
	state memState
}

type memState struct {
	tasks       map[uuid.UUID]map[string]string
	operations  []op.Operation
	workingSet  []uuid.UUID
	baseVersion uuid.UUID
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{state: memState{
		tasks:      map[uuid.UUID]map[string]string{},
		workingSet: []uuid.UUID{uuid.Nil},
	}}
}

// Begin implements Storage.
func (m *Memory) Begin(readOnly bool) (Txn, error) {
	return &memTxn{store: m, state: m.state.clone(), readOnly: readOnly}, nil
}

// Close implements Storage.
func (m *Memory) Close() error { return nil }

func (s memState) clone() memState {
	c := memState{
		tasks:       make(map[uuid.UUID]map[string]string, len(s.tasks)),
		operations:  append([]op.Operation(nil), s.operations...),
		workingSet:  append([]uuid.UUID(nil), s.workingSet...),
		baseVersion: s.baseVersion,
	}
	for id, task := range s.tasks {
		tc := make(map[string]string, len(task))
		for k, v := range task {
			tc[k] = v
		}
		c.tasks[id] = tc
	}
	return c
}

type memTxn struct {
	store    *Memory
	state    memState
	readOnly bool
	done     bool
}

func (t *memTxn) GetTask(id uuid.UUID) (map[string]string, bool, error) {
	task, ok := t.state.tasks[id]
	if !ok {
		return nil, false, nil
	}
	out := make(map[string]string, len(task))
	for k, v := range task {
		out[k] = v
	}
	return out, true, nil
}

func (t *memTxn) CreateTask(id uuid.UUID) (bool, error) {
	if _, ok := t.state.tasks[id]; ok {
		return false, nil
	}
	t.state.tasks[id] = map[string]string{}
	return true, nil
}

func (t *memTxn) SetTask(id uuid.UUID, task map[string]string) error {
	stored := make(map[string]string, len(task))
	for k, v := range task {
		stored[k] = v
	}
	t.state.tasks[id] = stored
	return nil
}

func (t *memTxn) DeleteTask(id uuid.UUID) (bool, error) {
	if _, ok := t.state.tasks[id]; !ok {
		return false, nil
	}
	delete(t.state.tasks, id)
	return true, nil
}

func (t *memTxn) AllTasks() (map[uuid.UUID]map[string]string, error) {
	out := make(map[uuid.UUID]map[string]string, len(t.state.tasks))
	for id, task := range t.state.tasks {
		tc := make(map[string]string, len(task))
		for k, v := range task {
			tc[k] = v
		}
		out[id] = tc
	}
	return out, nil
}

func (t *memTxn) AllTaskUUIDs() ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(t.state.tasks))
	for id := range t.state.tasks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

func (t *memTxn) BaseVersion() (uuid.UUID, error) {
	return t.state.baseVersion, nil
}

func (t *memTxn) SetBaseVersion(v uuid.UUID) error {
	t.state.baseVersion = v
	return nil
}

func (t *memTxn) Operations() ([]op.Operation, error) {
	return append([]op.Operation(nil), t.state.operations...), nil
}

func (t *memTxn) AddOperation(o op.Operation) error {
	t.state.operations = append(t.state.operations, o)
	return nil
}

func (t *memTxn) RemoveOperations(n int) error {
	if n > len(t.state.operations) {
		n = len(t.state.operations)
	}
	t.state.operations = append([]op.Operation(nil), t.state.operations[n:]...)
	return nil
}

func (t *memTxn) WorkingSet() ([]uuid.UUID, error) {
	return append([]uuid.UUID(nil), t.state.workingSet...), nil
}

func (t *memTxn) SetWorkingSetItem(index int, id uuid.UUID) error {
	for len(t.state.workingSet) <= index {
		t.state.workingSet = append(t.state.workingSet, uuid.Nil)
	}
	t.state.workingSet[index] = id
	return nil
}

func (t *memTxn) ClearWorkingSet() error {
	t.state.workingSet = []uuid.UUID{uuid.Nil}
	return nil
}

func (t *memTxn) Commit() error {
	if t.done {
		return tcerror.Storagef("transaction already finished")
	}
	t.done = true
	if t.readOnly {
		return nil
	}
	t.store.state = t.state
	return nil
}

func (t *memTxn) Rollback() error {
	t.done = true
	return nil
}
