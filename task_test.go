package taskchampion_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/timcase/taskchampion-go"
)

// newTestTask creates a pending task with a description on an in-memory
// replica, returning the replica and a fresh operation buffer.
func newTestTask(t *testing.T) (*tc.Replica, *tc.Task, *tc.Operations) {
	t.Helper()
	rep := tc.NewInMemory()
	t.Cleanup(func() { rep.Close() })
	ops := tc.NewOperations()
	task, err := rep.CreateTask(uuid.New(), ops)
	require.NoError(t, err)
	require.NoError(t, task.SetDescription("buy milk", ops))
	require.NoError(t, task.SetStatus(tc.StatusPending, ops))
	return rep, task, ops
}

func mustTag(t *testing.T, name string) tc.Tag {
	t.Helper()
	tag, err := tc.NewTag(name)
	require.NoError(t, err)
	return tag
}

func TestTask_SetDescription(t *testing.T) {
	_, task, ops := newTestTask(t)

	require.NoError(t, task.SetDescription("walk the dog", ops))
	desc, err := task.Description()
	require.NoError(t, err)
	assert.Equal(t, "walk the dog", desc)
}

func TestTask_SetDescriptionEmptyRejected(t *testing.T) {
	_, task, ops := newTestTask(t)
	before, err := ops.Len()
	require.NoError(t, err)

	err = task.SetDescription("  ", ops)
	var verr *tc.ValidationError
	require.ErrorAs(t, err, &verr)

	// The rejection leaves both the buffer and the snapshot untouched.
	after, err := ops.Len()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	desc, err := task.Description()
	require.NoError(t, err)
	assert.Equal(t, "buy milk", desc)
}

func TestTask_StatusEndTime(t *testing.T) {
	_, task, ops := newTestTask(t)

	require.NoError(t, task.Done(ops))
	status, err := task.Status()
	require.NoError(t, err)
	assert.Equal(t, tc.StatusCompleted, status)
	_, ok, err := task.GetValue("end")
	require.NoError(t, err)
	assert.True(t, ok, "completing a task records its end time")

	// Reopening clears the end time.
	require.NoError(t, task.SetStatus(tc.StatusPending, ops))
	_, ok, err = task.GetValue("end")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTask_Tags(t *testing.T) {
	_, task, ops := newTestTask(t)
	home := mustTag(t, "home")

	has, err := task.HasTag(home)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, task.AddTag(home, ops))
	has, err = task.HasTag(home)
	require.NoError(t, err)
	assert.True(t, has)

	// PENDING and TAGGED are computed, not stored.
	for _, name := range []string{"PENDING", "TAGGED"} {
		has, err = task.HasTag(mustTag(t, name))
		require.NoError(t, err)
		assert.True(t, has, "expected synthetic tag %s", name)
	}

	tags, err := task.Tags()
	require.NoError(t, err)
	var names []string
	for _, tag := range tags {
		names = append(names, tag.Name())
	}
	assert.Contains(t, names, "home")
	assert.Contains(t, names, "PENDING")

	require.NoError(t, task.RemoveTag(home, ops))
	has, err = task.HasTag(home)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestTask_SyntheticTagCannotBeAdded(t *testing.T) {
	_, task, ops := newTestTask(t)

	err := task.AddTag(mustTag(t, "ACTIVE"), ops)
	var verr *tc.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestTask_Annotations(t *testing.T) {
	_, task, ops := newTestTask(t)
	entry := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, task.AddAnnotation(tc.Annotation{Entry: entry, Description: "first"}, ops))
	// Same entry second: the new annotation is shifted, not lost.
	require.NoError(t, task.AddAnnotation(tc.Annotation{Entry: entry, Description: "second"}, ops))

	anns, err := task.Annotations()
	require.NoError(t, err)
	require.Len(t, anns, 2)
	assert.Equal(t, "first", anns[0].Description)
	assert.Equal(t, "second", anns[1].Description)
	assert.True(t, anns[1].Entry.After(anns[0].Entry))

	require.NoError(t, task.RemoveAnnotation(anns[0].Entry, ops))
	anns, err = task.Annotations()
	require.NoError(t, err)
	require.Len(t, anns, 1)
	assert.Equal(t, "second", anns[0].Description)
}

func TestTask_UDAs(t *testing.T) {
	_, task, ops := newTestTask(t)

	require.NoError(t, task.SetUDA("jira", "issue", "PROJ-123", ops))
	value, ok, err := task.GetUDA("jira", "issue")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "PROJ-123", value)

	udas, err := task.UDAs()
	require.NoError(t, err)
	require.Len(t, udas, 1)
	assert.Equal(t, "jira", udas[0].Namespace)
	assert.Equal(t, "issue", udas[0].Key)

	err = task.SetUDA("bad.ns", "key", "v", ops)
	var verr *tc.ValidationError
	require.ErrorAs(t, err, &verr)

	require.NoError(t, task.RemoveUDA("jira", "issue", ops))
	_, ok, err = task.GetUDA("jira", "issue")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTask_Dependencies(t *testing.T) {
	_, task, ops := newTestTask(t)
	dep := uuid.New()

	require.NoError(t, task.AddDependency(dep, ops))
	deps, err := task.Dependencies()
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{dep}, deps)

	id, err := task.UUID()
	require.NoError(t, err)
	err = task.AddDependency(id, ops)
	var verr *tc.ValidationError
	require.ErrorAs(t, err, &verr, "a task cannot depend on itself")

	require.NoError(t, task.RemoveDependency(dep, ops))
	deps, err = task.Dependencies()
	require.NoError(t, err)
	assert.Empty(t, deps)
}

func TestTask_StartStop(t *testing.T) {
	_, task, ops := newTestTask(t)

	active, err := task.IsActive()
	require.NoError(t, err)
	assert.False(t, active)

	require.NoError(t, task.Start(ops))
	active, err = task.IsActive()
	require.NoError(t, err)
	assert.True(t, active)

	// Starting again is a no-op and records nothing.
	before, err := ops.Len()
	require.NoError(t, err)
	require.NoError(t, task.Start(ops))
	after, err := ops.Len()
	require.NoError(t, err)
	assert.Equal(t, before, after)

	require.NoError(t, task.Stop(ops))
	active, err = task.IsActive()
	require.NoError(t, err)
	assert.False(t, active)
}

func TestTask_Waiting(t *testing.T) {
	_, task, ops := newTestTask(t)

	waiting, err := task.IsWaiting()
	require.NoError(t, err)
	assert.False(t, waiting)

	future := time.Now().Add(48 * time.Hour)
	require.NoError(t, task.SetWait(&future, ops))
	waiting, err = task.IsWaiting()
	require.NoError(t, err)
	assert.True(t, waiting)

	past := time.Now().Add(-time.Hour)
	require.NoError(t, task.SetWait(&past, ops))
	waiting, err = task.IsWaiting()
	require.NoError(t, err)
	assert.False(t, waiting)
}

func TestTask_TimestampRoundTrip(t *testing.T) {
	_, task, ops := newTestTask(t)
	due := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, task.SetDue(&due, ops))
	got, ok, err := task.Due()
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equal(due))

	require.NoError(t, task.SetDue(nil, ops))
	_, ok, err = task.Due()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTask_ConfinedToCreatingGoroutine(t *testing.T) {
	_, task, ops := newTestTask(t)

	errc := make(chan error, 1)
	go func() {
		errc <- task.SetDescription("from another goroutine", ops)
	}()
	err := <-errc
	var terr *tc.ThreadError
	require.ErrorAs(t, err, &terr)

	desc, err := task.Description()
	require.NoError(t, err)
	assert.Equal(t, "buy milk", desc)
}
