package taskchampion

import (
	"github.com/google/uuid"

	"github.com/timcase/taskchampion-go/internal/threadbound"
)

// WorkingSet is a point-in-time mapping between small dense indices and
// pending task UUIDs, used for stable user-facing task numbers. Index 0 is
// reserved and never assigned.
//
// The snapshot is immutable and goroutine-confined; refreshing it requires
// a new call to Replica.WorkingSet.
type WorkingSet struct {
	bound *threadbound.Bound[*workingSetInner]
}

type workingSetInner struct {
	byIndex []uuid.UUID
	byUUID  map[uuid.UUID]int
}

func newWorkingSet(byIndex []uuid.UUID) *WorkingSet {
	byUUID := make(map[uuid.UUID]int)
	for i, id := range byIndex {
		if id != uuid.Nil {
			byUUID[id] = i
		}
	}
	return &WorkingSet{bound: threadbound.New(&workingSetInner{byIndex: byIndex, byUUID: byUUID})}
}

// Len returns the number of tasks in the working set.
func (ws *WorkingSet) Len() (int, error) {
	inner, err := ws.bound.Get()
	if err != nil {
		return 0, err
	}
	return len(inner.byUUID), nil
}

// LargestIndex returns the largest assigned index; valid indices are
// 1..LargestIndex, possibly with gaps.
func (ws *WorkingSet) LargestIndex() (int, error) {
	inner, err := ws.bound.Get()
	if err != nil {
		return 0, err
	}
	largest := 0
	for i, id := range inner.byIndex {
		if id != uuid.Nil {
			largest = i
		}
	}
	return largest, nil
}

// ByIndex returns the task at the given index, ok=false for an unassigned
// or out-of-range index.
func (ws *WorkingSet) ByIndex(index int) (uuid.UUID, bool, error) {
	inner, err := ws.bound.Get()
	if err != nil {
		return uuid.Nil, false, err
	}
	if index <= 0 || index >= len(inner.byIndex) || inner.byIndex[index] == uuid.Nil {
		return uuid.Nil, false, nil
	}
	return inner.byIndex[index], true, nil
}

// ByUUID returns the index of the given task, ok=false if the task is not
// in the working set. ByUUID and ByIndex are inverses over the indexed
// tasks.
func (ws *WorkingSet) ByUUID(id uuid.UUID) (int, bool, error) {
	inner, err := ws.bound.Get()
	if err != nil {
		return 0, false, err
	}
	index, ok := inner.byUUID[id]
	return index, ok, nil
}
