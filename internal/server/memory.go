package server

import (
	"context"
	"log"

	"github.com/google/uuid"
)

// InMemoryConfig selects the in-process server. Useful for tests and for
// exercising the sync algorithm without any I/O.
type InMemoryConfig struct{}

// NewServer implements Config.
func (InMemoryConfig) NewServer(_ context.Context, _ *log.Logger) (Server, error) {
	return NewInMemory(), nil
}

type memVersion struct {
	id      uuid.UUID
	segment []byte
}

// InMemory is a sync server held entirely in process memory. Multiple
// replicas in one test can share a single instance.
type InMemory struct {
	children              map[uuid.UUID]memVersion // parent -> child
	latest                uuid.UUID
	snapshotVersion       uuid.UUID
	snapshot              []byte
	versionsSinceSnapshot int
}

// NewInMemory returns an empty in-memory sync server.
func NewInMemory() *InMemory {
	return &InMemory{children: make(map[uuid.UUID]memVersion)}
}

// AddVersion implements Server.
func (s *InMemory) AddVersion(_ context.Context, parent uuid.UUID, segment []byte) (uuid.UUID, SnapshotUrgency, error) {
	if parent != s.latest {
		return uuid.Nil, UrgencyNone, ErrVersionConflict
	}
	child := uuid.New()
	s.children[parent] = memVersion{id: child, segment: append([]byte(nil), segment...)}
	s.latest = child
	s.versionsSinceSnapshot++
	return child, urgencyForDepth(s.versionsSinceSnapshot), nil
}

// GetChildVersion implements Server.
func (s *InMemory) GetChildVersion(_ context.Context, parent uuid.UUID) (uuid.UUID, []byte, bool, error) {
	v, ok := s.children[parent]
	if !ok {
		return uuid.Nil, nil, false, nil
	}
	return v.id, append([]byte(nil), v.segment...), true, nil
}

// AddSnapshot implements Server.
func (s *InMemory) AddSnapshot(_ context.Context, version uuid.UUID, data []byte) error {
	s.snapshotVersion = version
	s.snapshot = append([]byte(nil), data...)
	s.versionsSinceSnapshot = 0
	return nil
}

// GetSnapshot implements Server.
func (s *InMemory) GetSnapshot(_ context.Context) (uuid.UUID, []byte, bool, error) {
	if s.snapshot == nil {
		return uuid.Nil, nil, false, nil
	}
	return s.snapshotVersion, append([]byte(nil), s.snapshot...), true, nil
}

// Close implements Server.
func (s *InMemory) Close() error { return nil }

// NumVersions reports how many versions the server holds. Test helper.
func (s *InMemory) NumVersions() int { return len(s.children) }
