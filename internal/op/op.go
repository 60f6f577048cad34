// Package op defines the engine-level operation record: one atomic recorded
// change to a task. Operations are the unit of persistence, history, and
// synchronization; they are self-describing and replayable independent of
// the handle that produced them.
package op

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Kind discriminates the operation variants.
type Kind int

const (
	// KindCreate records the creation of an empty task.
	KindCreate Kind = iota
	// KindDelete records the deletion of a task, carrying its prior state.
	KindDelete
	// KindUpdate records a single-property change with before/after values.
	KindUpdate
	// KindUndoPoint marks an undo boundary. It carries no payload.
	KindUndoPoint
)

func (k Kind) String() string {
	switch k {
	case KindCreate:
		return "create"
	case KindDelete:
		return "delete"
	case KindUpdate:
		return "update"
	case KindUndoPoint:
		return "undo_point"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Operation is a tagged variant. Only the fields belonging to Kind are
// meaningful; the rest are zero.
type Operation struct {
	Kind      Kind
	UUID      uuid.UUID
	OldTask   map[string]string // Delete
	Property  string            // Update
	Timestamp time.Time         // Update
	OldValue  *string           // Update
	Value     *string           // Update
}

// Create builds a Create operation.
func Create(id uuid.UUID) Operation {
	return Operation{Kind: KindCreate, UUID: id}
}

// Delete builds a Delete operation carrying the task's prior state.
func Delete(id uuid.UUID, oldTask map[string]string) Operation {
	return Operation{Kind: KindDelete, UUID: id, OldTask: oldTask}
}

// Update builds a single-property Update operation.
func Update(id uuid.UUID, property string, ts time.Time, oldValue, value *string) Operation {
	return Operation{Kind: KindUpdate, UUID: id, Property: property, Timestamp: ts, OldValue: oldValue, Value: value}
}

// UndoPoint builds an undo boundary marker.
func UndoPoint() Operation {
	return Operation{Kind: KindUndoPoint}
}

// Equal reports whether two operations have the same variant and the same
// field values. Map ordering inside Delete does not affect equality.
func (o Operation) Equal(other Operation) bool {
	if o.Kind != other.Kind || o.UUID != other.UUID {
		return false
	}
	switch o.Kind {
	case KindDelete:
		if len(o.OldTask) != len(other.OldTask) {
			return false
		}
		for k, v := range o.OldTask {
			if ov, ok := other.OldTask[k]; !ok || ov != v {
				return false
			}
		}
	case KindUpdate:
		if o.Property != other.Property || !o.Timestamp.Equal(other.Timestamp) {
			return false
		}
		if !strPtrEqual(o.OldValue, other.OldValue) || !strPtrEqual(o.Value, other.Value) {
			return false
		}
	}
	return true
}

func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// wireOperation is the JSON representation used for the local operation
// history and for sync history segments.
type wireOperation struct {
	Type      string            `json:"type"`
	UUID      string            `json:"uuid,omitempty"`
	OldTask   map[string]string `json:"old_task,omitempty"`
	Property  string            `json:"property,omitempty"`
	Timestamp string            `json:"timestamp,omitempty"`
	OldValue  *string           `json:"old_value,omitempty"`
	Value     *string           `json:"value,omitempty"`
}

// MarshalJSON encodes the operation in the wire format.
func (o Operation) MarshalJSON() ([]byte, error) {
	w := wireOperation{Type: o.Kind.String()}
	if o.Kind != KindUndoPoint {
		w.UUID = o.UUID.String()
	}
	switch o.Kind {
	case KindDelete:
		w.OldTask = o.OldTask
	case KindUpdate:
		w.Property = o.Property
		w.Timestamp = o.Timestamp.UTC().Format(time.RFC3339Nano)
		w.OldValue = o.OldValue
		w.Value = o.Value
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes an operation from the wire format.
func (o *Operation) UnmarshalJSON(data []byte) error {
	var w wireOperation
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Type {
	case "create":
		id, err := uuid.Parse(w.UUID)
		if err != nil {
			return fmt.Errorf("failed to parse create uuid: %w", err)
		}
		*o = Create(id)
	case "delete":
		id, err := uuid.Parse(w.UUID)
		if err != nil {
			return fmt.Errorf("failed to parse delete uuid: %w", err)
		}
		old := w.OldTask
		if old == nil {
			old = map[string]string{}
		}
		*o = Delete(id, old)
	case "update":
		id, err := uuid.Parse(w.UUID)
		if err != nil {
			return fmt.Errorf("failed to parse update uuid: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, w.Timestamp)
		if err != nil {
			return fmt.Errorf("failed to parse update timestamp: %w", err)
		}
		*o = Update(id, w.Property, ts, w.OldValue, w.Value)
	case "undo_point":
		*o = UndoPoint()
	default:
		return fmt.Errorf("unknown operation type %q", w.Type)
	}
	return nil
}

// EncodeList encodes a slice of operations as a JSON array. This is the
// payload format of a sync history segment.
func EncodeList(ops []Operation) ([]byte, error) {
	data, err := json.Marshal(ops)
	if err != nil {
		return nil, fmt.Errorf("failed to encode operations: %w", err)
	}
	return data, nil
}

// DecodeList decodes a JSON array of operations.
func DecodeList(data []byte) ([]Operation, error) {
	var ops []Operation
	if err := json.Unmarshal(data, &ops); err != nil {
		return nil, fmt.Errorf("failed to decode operations: %w", err)
	}
	return ops, nil
}

// Task properties store timestamps as integer epoch seconds, the format
// shared with other replicas. These helpers keep the encoding in one place.

// EpochString encodes t as epoch seconds.
func EpochString(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}

// ParseEpoch decodes an epoch-seconds property value.
func ParseEpoch(s string) (time.Time, error) {
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return time.Unix(secs, 0).UTC(), nil
}
