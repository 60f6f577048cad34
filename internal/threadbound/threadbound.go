// Package threadbound confines a value to the goroutine that created it.
//
// Some handles in this module embed assumptions (storage transactions,
// cached snapshots) that are unsound to touch from two goroutines even
// under a lock. Rather than serialize access, a Bound tags the value with
// the identity of the creating goroutine and rejects every access from any
// other goroutine with a ThreadError. The Bound itself is safe to hand to
// another goroutine; it is only unsafe to use there.
//
// Same-goroutine access is unsynchronized and re-entrant: concurrency is
// prevented entirely, not arbitrated.
package threadbound

import (
	"github.com/petermattis/goid"

	"github.com/timcase/taskchampion-go/internal/tcerror"
)

// Bound owns a value of type T and the ID of the goroutine that created it.
type Bound[T any] struct {
	inner T
	gid   int64
	taken bool
}

// New wraps inner, capturing the current goroutine's identity.
func New[T any](inner T) *Bound[T] {
	return &Bound[T]{inner: inner, gid: goid.Get()}
}

// Check returns a ThreadError if the calling goroutine is not the one that
// created the Bound. It has no side effects.
func (b *Bound[T]) Check() error {
	if goid.Get() != b.gid {
		return tcerror.Threadf("object cannot be accessed from a different goroutine")
	}
	return nil
}

// Get returns the wrapped value after the confinement check.
func (b *Bound[T]) Get() (T, error) {
	var zero T
	if err := b.Check(); err != nil {
		return zero, err
	}
	if b.taken {
		return zero, tcerror.Threadf("object has already been consumed")
	}
	return b.inner, nil
}

// IntoInner consumes the Bound and returns the wrapped value. Subsequent
// accesses fail.
func (b *Bound[T]) IntoInner() (T, error) {
	var zero T
	if err := b.Check(); err != nil {
		return zero, err
	}
	if b.taken {
		return zero, tcerror.Threadf("object has already been consumed")
	}
	b.taken = true
	inner := b.inner
	b.inner = zero
	return inner, nil
}
