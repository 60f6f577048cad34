package taskchampion_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/timcase/taskchampion-go"
)

func strp(s string) *string { return &s }

func TestOperation_Kinds(t *testing.T) {
	id := uuid.New()
	create := tc.CreateOperation(id)
	del := tc.DeleteOperation(id, map[string]string{"description": "gone"})
	update := tc.UpdateOperation(id, "status", time.Now(), nil, strp("pending"))
	undo := tc.UndoPointOperation()

	assert.True(t, create.IsCreate())
	assert.True(t, del.IsDelete())
	assert.True(t, update.IsUpdate())
	assert.True(t, undo.IsUndoPoint())

	assert.False(t, create.IsDelete())
	assert.False(t, undo.IsCreate())
}

func TestOperation_UpdateAccessors(t *testing.T) {
	id := uuid.New()
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	update := tc.UpdateOperation(id, "priority", ts, strp("L"), strp("H"))

	got, err := update.UUID()
	require.NoError(t, err)
	assert.Equal(t, id, got)

	prop, err := update.Property()
	require.NoError(t, err)
	assert.Equal(t, "priority", prop)

	when, err := update.Timestamp()
	require.NoError(t, err)
	assert.True(t, when.Equal(ts))

	oldValue, err := update.OldValue()
	require.NoError(t, err)
	require.NotNil(t, oldValue)
	assert.Equal(t, "L", *oldValue)

	value, err := update.Value()
	require.NoError(t, err)
	require.NotNil(t, value)
	assert.Equal(t, "H", *value)
}

func TestOperation_WrongVariantAccessors(t *testing.T) {
	create := tc.CreateOperation(uuid.New())

	_, err := create.Property()
	var verr *tc.ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = create.OldTask()
	require.ErrorAs(t, err, &verr)

	_, err = tc.UndoPointOperation().UUID()
	require.ErrorAs(t, err, &verr)
}

func TestOperation_OldTaskIsCopied(t *testing.T) {
	snapshot := map[string]string{"description": "before"}
	del := tc.DeleteOperation(uuid.New(), snapshot)
	snapshot["description"] = "mutated after construction"

	got, err := del.OldTask()
	require.NoError(t, err)
	assert.Equal(t, "before", got["description"])

	// The accessor hands out a copy too.
	got["description"] = "mutated via accessor"
	again, err := del.OldTask()
	require.NoError(t, err)
	assert.Equal(t, "before", again["description"])
}

func TestOperation_Equal(t *testing.T) {
	id := uuid.New()
	ts := time.Now()
	a := tc.UpdateOperation(id, "status", ts, nil, strp("pending"))
	b := tc.UpdateOperation(id, "status", ts, nil, strp("pending"))
	c := tc.UpdateOperation(id, "status", ts, nil, strp("completed"))

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(tc.CreateOperation(id)))
}
