package taskchampion

import "time"

// A Clock supplies timestamps for mutations. It is injected into the
// replica so tests can control time.
type Clock interface {
	Now() time.Time
}

// SequenceClock is a Clock that never returns the same second twice. Task
// annotations are keyed by their entry time at second resolution, so two
// annotations added within one second need distinct timestamps; the clock
// advances artificially to provide them.
//
// A SequenceClock is confined to its replica's goroutine along with
// everything else and is therefore unsynchronized.
type SequenceClock struct {
	last int64
}

// Now returns the current time, advanced past the previously returned
// second if necessary.
func (c *SequenceClock) Now() time.Time {
	now := time.Now().Unix()
	if now <= c.last {
		now = c.last + 1
	}
	c.last = now
	return time.Unix(now, 0).UTC()
}
