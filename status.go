package taskchampion

// Status is a task's lifecycle state, stored in the "status" property.
//
// Unrecognized status strings round-trip unchanged: ParseStatus preserves
// the raw value and IsKnown reports false, so a replica never destroys a
// status written by a newer peer.
type Status string

const (
	// StatusPending is an open task; pending tasks appear in the working set.
	StatusPending Status = "pending"
	// StatusCompleted is a task finished successfully.
	StatusCompleted Status = "completed"
	// StatusDeleted is a task removed without being completed. Deleted
	// tasks are purged by Replica.ExpireTasks after 180 days.
	StatusDeleted Status = "deleted"
	// StatusRecurring is a recurrence template, never worked on directly.
	StatusRecurring Status = "recurring"
)

// ParseStatus interprets a raw status property value.
func ParseStatus(s string) Status {
	return Status(s)
}

// IsKnown reports whether the status is one of the recognized states.
func (s Status) IsKnown() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusDeleted, StatusRecurring:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}
