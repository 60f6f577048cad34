package taskchampion

import (
	"time"

	"github.com/google/uuid"

	"github.com/timcase/taskchampion-go/internal/op"
	"github.com/timcase/taskchampion-go/internal/tcerror"
)

// Operation is one atomic recorded change to a task: a creation, a deletion
// carrying the task's prior state, a single-property update with before and
// after values, or an undo boundary.
//
// An operation is a tagged variant. The predicates (IsCreate and friends)
// are total; the accessors specific to one variant fail with a
// *ValidationError when called on another. Only UndoPoint has no UUID.
type Operation struct {
	rec op.Operation
}

// CreateOperation records the creation of an empty task.
func CreateOperation(id uuid.UUID) Operation {
	return Operation{rec: op.Create(id)}
}

// DeleteOperation records the deletion of a task. oldTask is the task's
// property map at the moment of deletion; it is what undo restores.
func DeleteOperation(id uuid.UUID, oldTask map[string]string) Operation {
	snapshot := make(map[string]string, len(oldTask))
	for k, v := range oldTask {
		snapshot[k] = v
	}
	return Operation{rec: op.Delete(id, snapshot)}
}

// UpdateOperation records one property changing from oldValue to value at
// the given time. A nil value removes the property; a nil oldValue means
// the property was previously absent.
func UpdateOperation(id uuid.UUID, property string, timestamp time.Time, oldValue, value *string) Operation {
	return Operation{rec: op.Update(id, property, timestamp, oldValue, value)}
}

// UndoPointOperation marks an undo boundary. It carries no payload.
func UndoPointOperation() Operation {
	return Operation{rec: op.UndoPoint()}
}

// IsCreate reports whether the operation is a Create.
func (o Operation) IsCreate() bool { return o.rec.Kind == op.KindCreate }

// IsDelete reports whether the operation is a Delete.
func (o Operation) IsDelete() bool { return o.rec.Kind == op.KindDelete }

// IsUpdate reports whether the operation is an Update.
func (o Operation) IsUpdate() bool { return o.rec.Kind == op.KindUpdate }

// IsUndoPoint reports whether the operation is an undo boundary.
func (o Operation) IsUndoPoint() bool { return o.rec.Kind == op.KindUndoPoint }

// UUID returns the operation's task UUID. It fails on UndoPoint, the one
// variant with no task.
func (o Operation) UUID() (uuid.UUID, error) {
	if o.rec.Kind == op.KindUndoPoint {
		return uuid.Nil, tcerror.Validationf("undo point operations do not have a uuid")
	}
	return o.rec.UUID, nil
}

// OldTask returns the deleted task's prior property map. It fails on any
// variant but Delete.
func (o Operation) OldTask() (map[string]string, error) {
	if o.rec.Kind != op.KindDelete {
		return nil, tcerror.Validationf("only delete operations have an old task, not %s", o.rec.Kind)
	}
	snapshot := make(map[string]string, len(o.rec.OldTask))
	for k, v := range o.rec.OldTask {
		snapshot[k] = v
	}
	return snapshot, nil
}

// Property returns the updated property name. It fails on any variant but
// Update.
func (o Operation) Property() (string, error) {
	if o.rec.Kind != op.KindUpdate {
		return "", tcerror.Validationf("only update operations have a property, not %s", o.rec.Kind)
	}
	return o.rec.Property, nil
}

// Timestamp returns the update's timestamp. It fails on any variant but
// Update.
func (o Operation) Timestamp() (time.Time, error) {
	if o.rec.Kind != op.KindUpdate {
		return time.Time{}, tcerror.Validationf("only update operations have a timestamp, not %s", o.rec.Kind)
	}
	return o.rec.Timestamp, nil
}

// OldValue returns the property's prior value, or nil if it was absent. It
// fails on any variant but Update.
func (o Operation) OldValue() (*string, error) {
	if o.rec.Kind != op.KindUpdate {
		return nil, tcerror.Validationf("only update operations have an old value, not %s", o.rec.Kind)
	}
	return o.rec.OldValue, nil
}

// Value returns the property's new value, or nil if the property was
// removed. It fails on any variant but Update.
func (o Operation) Value() (*string, error) {
	if o.rec.Kind != op.KindUpdate {
		return nil, tcerror.Validationf("only update operations have a value, not %s", o.rec.Kind)
	}
	return o.rec.Value, nil
}

// Equal reports whether two operations have the same variant and field
// values. Key order inside a Delete's old task does not affect equality.
func (o Operation) Equal(other Operation) bool {
	return o.rec.Equal(other.rec)
}

func (o Operation) String() string {
	return o.rec.Kind.String()
}
