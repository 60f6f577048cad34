package taskchampion

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/timcase/taskchampion-go/internal/threadbound"
)

// DependencyMap is a point-in-time view of the blocking relationships
// between pending tasks. Only edges where both ends are pending appear; a
// completed task blocks nothing.
//
// The snapshot is immutable and goroutine-confined; refreshing it requires
// a new call to Replica.DependencyMap.
type DependencyMap struct {
	bound *threadbound.Bound[*depMapInner]
}

type depMapInner struct {
	dependencies map[uuid.UUID][]uuid.UUID
	dependents   map[uuid.UUID][]uuid.UUID
}

func newDependencyMap(tasks map[uuid.UUID]map[string]string) *DependencyMap {
	pending := make(map[uuid.UUID]bool)
	for id, task := range tasks {
		if task["status"] == string(StatusPending) {
			pending[id] = true
		}
	}

	inner := &depMapInner{
		dependencies: make(map[uuid.UUID][]uuid.UUID),
		dependents:   make(map[uuid.UUID][]uuid.UUID),
	}
	for id, task := range tasks {
		if !pending[id] {
			continue
		}
		for prop := range task {
			raw, ok := strings.CutPrefix(prop, depPrefix)
			if !ok {
				continue
			}
			dep, err := uuid.Parse(raw)
			if err != nil || !pending[dep] {
				continue
			}
			inner.dependencies[id] = append(inner.dependencies[id], dep)
			inner.dependents[dep] = append(inner.dependents[dep], id)
		}
	}
	for _, m := range []map[uuid.UUID][]uuid.UUID{inner.dependencies, inner.dependents} {
		for _, ids := range m {
			sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
		}
	}
	return &DependencyMap{bound: threadbound.New(inner)}
}

// Dependencies returns the pending tasks that block the given task, sorted.
// An unknown task has no dependencies.
func (dm *DependencyMap) Dependencies(id uuid.UUID) ([]uuid.UUID, error) {
	inner, err := dm.bound.Get()
	if err != nil {
		return nil, err
	}
	return append([]uuid.UUID(nil), inner.dependencies[id]...), nil
}

// Dependents returns the pending tasks the given task blocks, sorted.
func (dm *DependencyMap) Dependents(id uuid.UUID) ([]uuid.UUID, error) {
	inner, err := dm.bound.Get()
	if err != nil {
		return nil, err
	}
	return append([]uuid.UUID(nil), inner.dependents[id]...), nil
}

// HasDependency reports whether task id depends on dep.
func (dm *DependencyMap) HasDependency(id, dep uuid.UUID) (bool, error) {
	inner, err := dm.bound.Get()
	if err != nil {
		return false, err
	}
	for _, d := range inner.dependencies[id] {
		if d == dep {
			return true, nil
		}
	}
	return false, nil
}
