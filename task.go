package taskchampion

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/timcase/taskchampion-go/internal/op"
	"github.com/timcase/taskchampion-go/internal/tcerror"
	"github.com/timcase/taskchampion-go/internal/threadbound"
)

// Property-name prefixes under which structured values are stored on the
// task's property map.
const (
	tagPrefix        = "tag_"
	annotationPrefix = "annotation_"
	depPrefix        = "dep_"
)

// Task is a mutable handle on one task.
//
// The handle holds an in-memory snapshot of the task's properties. Every
// mutator validates its input first, failing with a *ValidationError before
// touching anything, then updates the snapshot and appends the operations
// representing the change to the supplied buffer. Reads on the same handle
// see the mutation immediately; storage and other handles see it only once
// the buffer is committed.
//
// The handle is confined to the goroutine that obtained it.
type Task struct {
	bound *threadbound.Bound[*taskInner]
}

type taskInner struct {
	id      uuid.UUID
	taskmap map[string]string
	clock   Clock
}

func newTask(id uuid.UUID, taskmap map[string]string, clock Clock) *Task {
	if taskmap == nil {
		taskmap = map[string]string{}
	}
	if clock == nil {
		clock = &SequenceClock{}
	}
	return &Task{bound: threadbound.New(&taskInner{id: id, taskmap: taskmap, clock: clock})}
}

// UUID returns the task's identifier.
func (t *Task) UUID() (uuid.UUID, error) {
	inner, err := t.bound.Get()
	if err != nil {
		return uuid.Nil, err
	}
	return inner.id, nil
}

// setValue records one property changing to value (nil removes it) and
// applies the change to the snapshot. The record is pushed before the
// snapshot is touched, so a confinement failure on the buffer leaves the
// handle unmodified.
func (inner *taskInner) setValue(property string, value *string, ops *Operations) error {
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

// SetDescription sets the task's description. The description must be
// non-empty.
func (t *Task) SetDescription(description string, ops *Operations) error {
	inner, err := t.bound.Get()
	if err != nil {
		return err
	}
	if strings.TrimSpace(description) == "" {
		return tcerror.Validationf("description must not be empty")
	}
	return inner.setValue("description", &description, ops)
}

// SetStatus sets the task's lifecycle state. Completing or deleting a task
// records its end time; reopening it clears the end time.
func (t *Task) SetStatus(status Status, ops *Operations) error {
	inner, err := t.bound.Get()
	if err != nil {
		return err
	}
	value := string(status)
	if err := inner.setValue("status", &value, ops); err != nil {
		return err
	}
	switch status {
	case StatusCompleted, StatusDeleted:
		if _, ok := inner.taskmap["end"]; !ok {
			end := op.EpochString(inner.clock.Now())
			return inner.setValue("end", &end, ops)
		}
	default:
		if _, ok := inner.taskmap["end"]; ok {
			return inner.setValue("end", nil, ops)
		}
	}
	return nil
}

// SetPriority sets the task's priority. The priority must be non-empty;
// remove the property with SetValue to clear it.
func (t *Task) SetPriority(priority string, ops *Operations) error {
	inner, err := t.bound.Get()
	if err != nil {
		return err
	}
	if strings.TrimSpace(priority) == "" {
		return tcerror.Validationf("priority must not be empty")
	}
	return inner.setValue("priority", &priority, ops)
}

// SetDue sets or clears (nil) the task's due time.
func (t *Task) SetDue(due *time.Time, ops *Operations) error {
	return t.setTimestamp("due", due, ops)
}

// SetWait sets or clears (nil) the time until which the task is waiting.
func (t *Task) SetWait(wait *time.Time, ops *Operations) error {
	return t.setTimestamp("wait", wait, ops)
}

// SetEntry sets or clears (nil) the task's creation time.
func (t *Task) SetEntry(entry *time.Time, ops *Operations) error {
	return t.setTimestamp("entry", entry, ops)
}

// SetModified sets the task's modification time.
func (t *Task) SetModified(modified time.Time, ops *Operations) error {
	return t.setTimestamp("modified", &modified, ops)
}

func (t *Task) setTimestamp(property string, ts *time.Time, ops *Operations) error {
	inner, err := t.bound.Get()
	if err != nil {
		return err
	}
	if ts == nil {
		return inner.setValue(property, nil, ops)
	}
	value := op.EpochString(*ts)
	return inner.setValue(property, &value, ops)
}

// SetValue sets (or, with nil, removes) an arbitrary named property. The
// property name must be non-empty.
func (t *Task) SetValue(property string, value *string, ops *Operations) error {
	inner, err := t.bound.Get()
	if err != nil {
		return err
	}
	if strings.TrimSpace(property) == "" {
		return tcerror.Validationf("property name must not be empty")
	}
	return inner.setValue(property, value, ops)
}

// SetUDA sets the user-defined attribute (namespace, key).
func (t *Task) SetUDA(namespace, key, value string, ops *Operations) error {
	inner, err := t.bound.Get()
	if err != nil {
		return err
	}
	prop, err := udaProperty(namespace, key)
	if err != nil {
		return err
	}
	return inner.setValue(prop, &value, ops)
}

// RemoveUDA removes the user-defined attribute (namespace, key). Removing
// an absent attribute is a no-op.
func (t *Task) RemoveUDA(namespace, key string, ops *Operations) error {
	inner, err := t.bound.Get()
	if err != nil {
		return err
	}
	prop, err := udaProperty(namespace, key)
	if err != nil {
		return err
	}
	if _, ok := inner.taskmap[prop]; !ok {
		return nil
	}
	return inner.setValue(prop, nil, ops)
}

func udaProperty(namespace, key string) (string, error) {
	if strings.TrimSpace(namespace) == "" {
		return "", tcerror.Validationf("UDA namespace must not be empty")
	}
	if strings.Contains(namespace, ".") {
		return "", tcerror.Validationf("invalid UDA namespace %q: namespaces may not contain '.'", namespace)
	}
	if strings.TrimSpace(key) == "" {
		return "", tcerror.Validationf("UDA key must not be empty")
	}
	return namespace + "." + key, nil
}

// AddTag adds a user tag. Synthetic tags are computed from task state and
// cannot be added.
func (t *Task) AddTag(tag Tag, ops *Operations) error {
	inner, err := t.bound.Get()
	if err != nil {
		return err
	}
	if tag.IsSynthetic() {
		return tcerror.Validationf("cannot add synthetic tag %s", tag)
	}
	empty := ""
	return inner.setValue(tagPrefix+tag.Name(), &empty, ops)
}

// RemoveTag removes a user tag. Removing an absent tag is a no-op.
func (t *Task) RemoveTag(tag Tag, ops *Operations) error {
	inner, err := t.bound.Get()
	if err != nil {
		return err
	}
	if tag.IsSynthetic() {
		return tcerror.Validationf("cannot remove synthetic tag %s", tag)
	}
	prop := tagPrefix + tag.Name()
	if _, ok := inner.taskmap[prop]; !ok {
		return nil
	}
	return inner.setValue(prop, nil, ops)
}

// AddAnnotation adds a timestamped note. A zero entry time is filled from
// the replica's clock; an entry time colliding with an existing annotation
// is advanced until the key is free, since annotations are identified by
// their entry second.
func (t *Task) AddAnnotation(ann Annotation, ops *Operations) error {
	inner, err := t.bound.Get()
	if err != nil {
		return err
	}
	if strings.TrimSpace(ann.Description) == "" {
		return tcerror.Validationf("annotation description must not be empty")
	}
	entry := ann.Entry
	if entry.IsZero() {
		entry = inner.clock.Now()
	}
	for {
		if _, ok := inner.taskmap[annotationPrefix+op.EpochString(entry)]; !ok {
			break
		}
		entry = entry.Add(time.Second)
	}
	return inner.setValue(annotationPrefix+op.EpochString(entry), &ann.Description, ops)
}

// RemoveAnnotation removes the annotation with the given entry time.
// Removing an absent annotation is a no-op.
func (t *Task) RemoveAnnotation(entry time.Time, ops *Operations) error {
	inner, err := t.bound.Get()
	if err != nil {
		return err
	}
	prop := annotationPrefix + op.EpochString(entry)
	if _, ok := inner.taskmap[prop]; !ok {
		return nil
	}
	return inner.setValue(prop, nil, ops)
}

// AddDependency records that this task is blocked by dep.
func (t *Task) AddDependency(dep uuid.UUID, ops *Operations) error {
	inner, err := t.bound.Get()
	if err != nil {
		return err
	}
	if dep == inner.id {
		return tcerror.Validationf("task %s cannot depend on itself", inner.id)
	}
	empty := ""
	return inner.setValue(depPrefix+dep.String(), &empty, ops)
}

// RemoveDependency removes a dependency. Removing an absent dependency is a
// no-op.
func (t *Task) RemoveDependency(dep uuid.UUID, ops *Operations) error {
	inner, err := t.bound.Get()
	if err != nil {
		return err
	}
	prop := depPrefix + dep.String()
	if _, ok := inner.taskmap[prop]; !ok {
		return nil
	}
	return inner.setValue(prop, nil, ops)
}

// Start marks the task active. Starting an active task is a no-op.
func (t *Task) Start(ops *Operations) error {
	inner, err := t.bound.Get()
	if err != nil {
		return err
	}
	if _, ok := inner.taskmap["start"]; ok {
		return nil
	}
	start := op.EpochString(inner.clock.Now())
	return inner.setValue("start", &start, ops)
}

// Stop clears the task's active state. Stopping an inactive task is a
// no-op.
func (t *Task) Stop(ops *Operations) error {
	inner, err := t.bound.Get()
	if err != nil {
		return err
	}
	if _, ok := inner.taskmap["start"]; !ok {
		return nil
	}
	return inner.setValue("start", nil, ops)
}

// Done marks the task completed.
func (t *Task) Done(ops *Operations) error {
	return t.SetStatus(StatusCompleted, ops)
}

// Delete marks the task deleted. The task remains in the database until it
// is expired.
func (t *Task) Delete(ops *Operations) error {
	return t.SetStatus(StatusDeleted, ops)
}

// Description returns the task's description, empty if unset.
func (t *Task) Description() (string, error) {
	inner, err := t.bound.Get()
	if err != nil {
		return "", err
	}
	return inner.taskmap["description"], nil
}

// Status returns the task's lifecycle state. A task with no status property
// is pending.
func (t *Task) Status() (Status, error) {
	inner, err := t.bound.Get()
	if err != nil {
		return "", err
	}
	return inner.status(), nil
}

func (inner *taskInner) status() Status {
	s, ok := inner.taskmap["status"]
	if !ok {
		return StatusPending
	}
	return ParseStatus(s)
}

// Priority returns the task's priority, empty if unset.
func (t *Task) Priority() (string, error) {
	inner, err := t.bound.Get()
	if err != nil {
		return "", err
	}
	return inner.taskmap["priority"], nil
}

// Entry returns the task's creation time, ok=false if unset.
func (t *Task) Entry() (time.Time, bool, error) {
	return t.timestamp("entry")
}

// Due returns the task's due time, ok=false if unset.
func (t *Task) Due() (time.Time, bool, error) {
	return t.timestamp("due")
}

// Wait returns the time until which the task is waiting, ok=false if unset.
func (t *Task) Wait() (time.Time, bool, error) {
	return t.timestamp("wait")
}

// Modified returns the task's modification time, ok=false if unset.
func (t *Task) Modified() (time.Time, bool, error) {
	return t.timestamp("modified")
}

func (t *Task) timestamp(property string) (time.Time, bool, error) {
	inner, err := t.bound.Get()
	if err != nil {
		return time.Time{}, false, err
	}
	raw, ok := inner.taskmap[property]
	if !ok {
		return time.Time{}, false, nil
	}
	ts, err := op.ParseEpoch(raw)
	if err != nil {
		return time.Time{}, false, nil
	}
	return ts, true, nil
}

// GetValue returns an arbitrary named property, ok=false if unset.
func (t *Task) GetValue(property string) (string, bool, error) {
	inner, err := t.bound.Get()
	if err != nil {
		return "", false, err
	}
	v, ok := inner.taskmap[property]
	return v, ok, nil
}

// GetUDA returns the user-defined attribute (namespace, key), ok=false if
// unset.
func (t *Task) GetUDA(namespace, key string) (string, bool, error) {
	inner, err := t.bound.Get()
	if err != nil {
		return "", false, err
	}
	prop, err := udaProperty(namespace, key)
	if err != nil {
		return "", false, err
	}
	v, ok := inner.taskmap[prop]
	return v, ok, nil
}

// UDA is one user-defined attribute.
type UDA struct {
	Namespace string
	Key       string
	Value     string
}

// UDAs returns every user-defined attribute, sorted by namespace then key.
func (t *Task) UDAs() ([]UDA, error) {
	inner, err := t.bound.Get()
	if err != nil {
		return nil, err
	}
	var udas []UDA
	for prop, value := range inner.taskmap {
		ns, key, ok := strings.Cut(prop, ".")
		if !ok || ns == "" || key == "" {
			continue
		}
		udas = append(udas, UDA{Namespace: ns, Key: key, Value: value})
	}
	sort.Slice(udas, func(i, j int) bool {
		if udas[i].Namespace != udas[j].Namespace {
			return udas[i].Namespace < udas[j].Namespace
		}
		return udas[i].Key < udas[j].Key
	})
	return udas, nil
}

// IsPending reports whether the task is open.
func (t *Task) IsPending() (bool, error) {
	s, err := t.Status()
	return s == StatusPending, err
}

// IsCompleted reports whether the task is finished.
func (t *Task) IsCompleted() (bool, error) {
	s, err := t.Status()
	return s == StatusCompleted, err
}

// IsDeleted reports whether the task is deleted but not yet expired.
func (t *Task) IsDeleted() (bool, error) {
	s, err := t.Status()
	return s == StatusDeleted, err
}

// IsActive reports whether the task has been started and not stopped.
func (t *Task) IsActive() (bool, error) {
	inner, err := t.bound.Get()
	if err != nil {
		return false, err
	}
	return inner.isActive(), nil
}

func (inner *taskInner) isActive() bool {
	_, ok := inner.taskmap["start"]
	return ok
}

// IsWaiting reports whether the task's wait time is in the future.
func (t *Task) IsWaiting() (bool, error) {
	inner, err := t.bound.Get()
	if err != nil {
		return false, err
	}
	return inner.isWaiting(), nil
}

func (inner *taskInner) isWaiting() bool {
	raw, ok := inner.taskmap["wait"]
	if !ok {
		return false
	}
	ts, err := op.ParseEpoch(raw)
	if err != nil {
		return false
	}
	return ts.After(time.Now())
}

// IsBlocked reports whether any pending task blocks this one, per the given
// dependency snapshot.
func (t *Task) IsBlocked(dm *DependencyMap) (bool, error) {
	inner, err := t.bound.Get()
	if err != nil {
		return false, err
	}
	deps, err := dm.Dependencies(inner.id)
	if err != nil {
		return false, err
	}
	return len(deps) > 0, nil
}

// IsBlocking reports whether this task blocks any pending task, per the
// given dependency snapshot.
func (t *Task) IsBlocking(dm *DependencyMap) (bool, error) {
	inner, err := t.bound.Get()
	if err != nil {
		return false, err
	}
	dependents, err := dm.Dependents(inner.id)
	if err != nil {
		return false, err
	}
	return len(dependents) > 0, nil
}

// HasTag reports whether the task carries the tag. Synthetic tags are
// evaluated against task state; BLOCKED and BLOCKING need a dependency
// snapshot and always report false here.
func (t *Task) HasTag(tag Tag) (bool, error) {
	inner, err := t.bound.Get()
	if err != nil {
		return false, err
	}
	if tag.IsUser() {
		_, ok := inner.taskmap[tagPrefix+tag.Name()]
		return ok, nil
	}
	for _, synth := range inner.syntheticTags() {
		if synth == tag.Name() {
			return true, nil
		}
	}
	return false, nil
}

// Tags returns the task's user tags plus the synthetic tags computable from
// the handle's snapshot, sorted by name.
func (t *Task) Tags() ([]Tag, error) {
	inner, err := t.bound.Get()
	if err != nil {
		return nil, err
	}
	var tags []Tag
	for prop := range inner.taskmap {
		if name, ok := strings.CutPrefix(prop, tagPrefix); ok && name != "" {
			tags = append(tags, Tag{name: name})
		}
	}
	for _, name := range inner.syntheticTags() {
		tags = append(tags, syntheticTag(name))
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].name < tags[j].name })
	return tags, nil
}

func (inner *taskInner) syntheticTags() []string {
	var names []string
	switch inner.status() {
	case StatusPending:
		names = append(names, "PENDING")
	case StatusCompleted:
		names = append(names, "COMPLETED")
	case StatusDeleted:
		names = append(names, "DELETED")
	}
	if inner.isActive() {
		names = append(names, "ACTIVE")
	}
	if inner.isWaiting() {
		names = append(names, "WAITING")
	}
	hasUserTag, hasAnnotation := false, false
	for prop := range inner.taskmap {
		if strings.HasPrefix(prop, tagPrefix) {
			hasUserTag = true
		}
		if strings.HasPrefix(prop, annotationPrefix) {
			hasAnnotation = true
		}
	}
	if hasUserTag {
		names = append(names, "TAGGED")
	}
	if hasAnnotation {
		names = append(names, "ANNOTATED")
	}
	return names
}

// Annotations returns the task's annotations sorted by entry time.
func (t *Task) Annotations() ([]Annotation, error) {
	inner, err := t.bound.Get()
	if err != nil {
		return nil, err
	}
	var anns []Annotation
	for prop, value := range inner.taskmap {
		raw, ok := strings.CutPrefix(prop, annotationPrefix)
		if !ok {
			continue
		}
		ts, err := op.ParseEpoch(raw)
		if err != nil {
			continue
		}
		anns = append(anns, Annotation{Entry: ts, Description: value})
	}
	sort.Slice(anns, func(i, j int) bool { return anns[i].Entry.Before(anns[j].Entry) })
	return anns, nil
}

// Dependencies returns the UUIDs of the tasks this task depends on, sorted.
func (t *Task) Dependencies() ([]uuid.UUID, error) {
	inner, err := t.bound.Get()
	if err != nil {
		return nil, err
	}
	var deps []uuid.UUID
	for prop := range inner.taskmap {
		raw, ok := strings.CutPrefix(prop, depPrefix)
		if !ok {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		deps = append(deps, id)
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i].String() < deps[j].String() })
	return deps, nil
}
