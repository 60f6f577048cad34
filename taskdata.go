package taskchampion

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/timcase/taskchampion-go/internal/tcerror"
	"github.com/timcase/taskchampion-go/internal/threadbound"
)

// TaskData is a low-level handle on one task: a bare property map with no
// interpretation of property names. Task is the interpreted view over the
// same data.
//
// Like Task, the handle is goroutine-confined and stages its mutations in a
// caller-owned Operations buffer.
type TaskData struct {
	bound *threadbound.Bound[*taskDataInner]
}

type taskDataInner struct {
	id      uuid.UUID
	taskmap map[string]string
	clock   Clock
}

func newTaskData(id uuid.UUID, taskmap map[string]string, clock Clock) *TaskData {
	if taskmap == nil {
		taskmap = map[string]string{}
	}
	if clock == nil {
		clock = &SequenceClock{}
	}
	return &TaskData{bound: threadbound.New(&taskDataInner{id: id, taskmap: taskmap, clock: clock})}
}

// CreateTaskData records the creation of a new, empty task and returns a
// handle on it. The task exists in storage once the buffer is committed.
func CreateTaskData(id uuid.UUID, ops *Operations) (*TaskData, error) {
	if err := ops.Push(CreateOperation(id)); err != nil {
		return nil, err
	}
	return newTaskData(id, nil, nil), nil
}

// UUID returns the task's identifier.
func (td *TaskData) UUID() (uuid.UUID, error) {
	inner, err := td.bound.Get()
	if err != nil {
		return uuid.Nil, err
	}
	return inner.id, nil
}

// Get returns a property's value, ok=false if unset.
func (td *TaskData) Get(property string) (string, bool, error) {
	inner, err := td.bound.Get()
	if err != nil {
		return "", false, err
	}
	v, ok := inner.taskmap[property]
	return v, ok, nil
}

// Has reports whether a property is set.
func (td *TaskData) Has(property string) (bool, error) {
	_, ok, err := td.Get(property)
	return ok, err
}

// Properties returns the names of every set property, sorted.
func (td *TaskData) Properties() ([]string, error) {
	inner, err := td.bound.Get()
	if err != nil {
		return nil, err
	}
	props := make([]string, 0, len(inner.taskmap))
	for prop := range inner.taskmap {
		props = append(props, prop)
	}
	sort.Strings(props)
	return props, nil
}

// ToMap returns a copy of the task's property map.
func (td *TaskData) ToMap() (map[string]string, error) {
	inner, err := td.bound.Get()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(inner.taskmap))
	for k, v := range inner.taskmap {
		out[k] = v
	}
	return out, nil
}

// Update sets (or, with nil, removes) one property. The property name must
// be non-empty.
func (td *TaskData) Update(property string, value *string, ops *Operations) error {
	inner, err := td.bound.Get()
	if err != nil {
		return err
	}
	if strings.TrimSpace(property) == "" {
		return tcerror.Validationf("property name must not be empty")
	}
	var old *string
	if v, ok := inner.taskmap[property]; ok {
		old = &v
	}
	if err := ops.Push(UpdateOperation(inner.id, property, inner.clock.Now(), old, value)); err != nil {
		return err
	}
	if value == nil {
		delete(inner.taskmap, property)
	} else {
		inner.taskmap[property] = *value
	}
	return nil
}

// Delete records the deletion of the task, carrying its current state so
// the deletion can be undone. The handle's snapshot is emptied.
func (td *TaskData) Delete(ops *Operations) error {
	inner, err := td.bound.Get()
	if err != nil {
		return err
	}
	if err := ops.Push(DeleteOperation(inner.id, inner.taskmap)); err != nil {
		return err
	}
	inner.taskmap = map[string]string{}
	return nil
}
