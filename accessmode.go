package taskchampion

import "github.com/timcase/taskchampion-go/internal/storage"

// AccessMode controls whether an on-disk replica accepts writes.
type AccessMode int

const (
	// ReadWrite allows the full replica surface.
	ReadWrite AccessMode = iota
	// ReadOnly permits queries only; mutating calls fail with a
	// StorageError and a missing database is never created.
	ReadOnly
)

func (m AccessMode) String() string {
	if m == ReadOnly {
		return "read_only"
	}
	return "read_write"
}

func (m AccessMode) storageMode() storage.AccessMode {
	if m == ReadOnly {
		return storage.ReadOnly
	}
	return storage.ReadWrite
}
