package taskchampion

import (
	"github.com/timcase/taskchampion-go/internal/op"
	"github.com/timcase/taskchampion-go/internal/threadbound"
)

// Operations is a caller-owned, ordered buffer of pending operations.
// Mutating a Task or TaskData appends to a buffer; Replica.CommitOperations
// applies the whole buffer to storage as one atomic unit.
//
// Committing does not clear the buffer. A caller reusing one buffer for a
// second, disjoint batch must call Clear first, or the first batch is
// applied again.
//
// The buffer is confined to its creating goroutine.
type Operations struct {
	bound *threadbound.Bound[*opsBuffer]
}

type opsBuffer struct {
	items []Operation
}

// NewOperations returns an empty buffer confined to the calling goroutine.
func NewOperations() *Operations {
	return &Operations{bound: threadbound.New(&opsBuffer{})}
}

// Push appends an operation at the end of the buffer.
func (ops *Operations) Push(o Operation) error {
	buf, err := ops.bound.Get()
	if err != nil {
		return err
	}
	buf.items = append(buf.items, o)
	return nil
}

// Len returns the number of buffered operations.
func (ops *Operations) Len() (int, error) {
	buf, err := ops.bound.Get()
	if err != nil {
		return 0, err
	}
	return len(buf.items), nil
}

// IsEmpty reports whether the buffer holds no operations.
func (ops *Operations) IsEmpty() (bool, error) {
	n, err := ops.Len()
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// Get returns the operation at index i. Negative indices count from the
// end, so Get(-1) is the most recently pushed operation. An out-of-range
// index returns ok=false rather than an error.
func (ops *Operations) Get(i int) (Operation, bool, error) {
	buf, err := ops.bound.Get()
	if err != nil {
		return Operation{}, false, err
	}
	if i < 0 {
		i += len(buf.items)
	}
	if i < 0 || i >= len(buf.items) {
		return Operation{}, false, nil
	}
	return buf.items[i], true, nil
}

// Clear discards every buffered operation. The discarded mutations are
// unrecoverable; only already-committed batches survive.
func (ops *Operations) Clear() error {
	buf, err := ops.bound.Get()
	if err != nil {
		return err
	}
	buf.items = buf.items[:0]
	return nil
}

// Each calls fn for every operation in push order. A non-nil error from fn
// stops the iteration and is returned.
func (ops *Operations) Each(fn func(Operation) error) error {
	buf, err := ops.bound.Get()
	if err != nil {
		return err
	}
	for _, o := range buf.items {
		if err := fn(o); err != nil {
			return err
		}
	}
	return nil
}

// ToSlice returns a copy of the buffered operations in push order.
func (ops *Operations) ToSlice() ([]Operation, error) {
	buf, err := ops.bound.Get()
	if err != nil {
		return nil, err
	}
	out := make([]Operation, len(buf.items))
	copy(out, buf.items)
	return out, nil
}

// engineOps converts the buffer for the storage engine.
func (ops *Operations) engineOps() ([]op.Operation, error) {
	buf, err := ops.bound.Get()
	if err != nil {
		return nil, err
	}
	out := make([]op.Operation, len(buf.items))
	for i, o := range buf.items {
		out[i] = o.rec
	}
	return out, nil
}
