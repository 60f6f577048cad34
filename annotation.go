package taskchampion

import "time"

// Annotation is a timestamped note on a task. The entry time doubles as the
// annotation's identity on the task, at second resolution.
type Annotation struct {
	// Entry is when the annotation was made.
	Entry time.Time

	// Description is the annotation text.
	Description string
}
