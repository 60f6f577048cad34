package taskchampion_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/timcase/taskchampion-go"
)

func TestOperations_PushAndLen(t *testing.T) {
	ops := tc.NewOperations()

	empty, err := ops.IsEmpty()
	require.NoError(t, err)
	assert.True(t, empty)

	require.NoError(t, ops.Push(tc.CreateOperation(uuid.New())))
	require.NoError(t, ops.Push(tc.UndoPointOperation()))

	n, err := ops.Len()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	empty, err = ops.IsEmpty()
	require.NoError(t, err)
	assert.False(t, empty)
}

func TestOperations_NegativeIndexing(t *testing.T) {
	ops := tc.NewOperations()
	first := tc.CreateOperation(uuid.New())
	second := tc.UndoPointOperation()
	third := tc.CreateOperation(uuid.New())
	for _, o := range []tc.Operation{first, second, third} {
		require.NoError(t, ops.Push(o))
	}

	got, ok, err := ops.Get(-1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equal(third))

	got, ok, err = ops.Get(-3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equal(first))

	// One past either end is absent, not an error.
	_, ok, err = ops.Get(3)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = ops.Get(-4)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOperations_Clear(t *testing.T) {
	ops := tc.NewOperations()
	require.NoError(t, ops.Push(tc.CreateOperation(uuid.New())))
	require.NoError(t, ops.Clear())

	n, err := ops.Len()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestOperations_EachAndToSlice(t *testing.T) {
	ops := tc.NewOperations()
	ids := []uuid.UUID{uuid.New(), uuid.New()}
	for _, id := range ids {
		require.NoError(t, ops.Push(tc.CreateOperation(id)))
	}

	var seen []uuid.UUID
	require.NoError(t, ops.Each(func(o tc.Operation) error {
		id, err := o.UUID()
		if err != nil {
			return err
		}
		seen = append(seen, id)
		return nil
	}))
	assert.Equal(t, ids, seen)

	slice, err := ops.ToSlice()
	require.NoError(t, err)
	require.Len(t, slice, 2)
	for i, o := range slice {
		id, err := o.UUID()
		require.NoError(t, err)
		assert.Equal(t, ids[i], id)
	}
}

func TestOperations_ConfinedToCreatingGoroutine(t *testing.T) {
	ops := tc.NewOperations()
	require.NoError(t, ops.Push(tc.CreateOperation(uuid.New())))

	errc := make(chan error, 1)
	go func() {
		errc <- ops.Push(tc.CreateOperation(uuid.New()))
	}()
	err := <-errc
	var terr *tc.ThreadError
	require.ErrorAs(t, err, &terr)

	// A failed foreign access does not disturb the owner.
	n, err := ops.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
