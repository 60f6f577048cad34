// Package server implements the sync-server transports the replica
// exchanges operations with.
//
// A server stores an append-only chain of versions. Each version is a
// sealed history segment (an encoded batch of operations) linked to its
// parent. A client walks the chain forward from its base version with
// GetChildVersion, then publishes its own pending operations with
// AddVersion; the server accepts the new version only if the supplied
// parent is still the head of the chain, otherwise the client must fetch
// and retry.
//
// Five transports implement the interface: an in-memory server for tests,
// a SQLite-backed server in a local directory, an HTTP client for a remote
// sync server, and object-store clients for GCP and AWS buckets.
package server

import (
	"context"
	"errors"
	"log"
	"os"

	"github.com/google/uuid"
)

// ErrVersionConflict is returned by AddVersion when the supplied parent is
// no longer the head of the version chain. Callers should fetch the new
// child versions and retry.
var ErrVersionConflict = errors.New("version conflict: parent is not the latest version")

// SnapshotUrgency is the server's hint that the client should publish a
// fresh snapshot of its full state. It is a performance hint, never a
// correctness requirement.
type SnapshotUrgency int

const (
	// UrgencyNone means no snapshot is needed.
	UrgencyNone SnapshotUrgency = iota
	// UrgencyLow means a snapshot would help new clients catch up.
	UrgencyLow
	// UrgencyHigh means the version chain has grown long enough that the
	// server may garbage-collect old versions soon.
	UrgencyHigh
)

// Server is one sync transport. All calls are blocking and synchronous.
type Server interface {
	// AddVersion publishes a sealed history segment as the child of
	// parent. Returns ErrVersionConflict when parent is no longer the
	// head of the chain.
	AddVersion(ctx context.Context, parent uuid.UUID, segment []byte) (uuid.UUID, SnapshotUrgency, error)

	// GetChildVersion returns the version whose parent is the given
	// version, or ok=false at the head of the chain.
	GetChildVersion(ctx context.Context, parent uuid.UUID) (child uuid.UUID, segment []byte, ok bool, err error)

	// AddSnapshot publishes a sealed snapshot of the client's full state
	// as of the given version.
	AddSnapshot(ctx context.Context, version uuid.UUID, data []byte) error

	// GetSnapshot returns the most recent snapshot, or ok=false.
	GetSnapshot(ctx context.Context) (version uuid.UUID, data []byte, ok bool, err error)

	// Close releases transport resources.
	Close() error
}

// Config selects and parameterizes a transport. Exactly one variant is
// used per sync call.
type Config interface {
	// NewServer builds the transport. A nil logger defaults to stderr.
	NewServer(ctx context.Context, logger *log.Logger) (Server, error)
}

func ensureLogger(logger *log.Logger) *log.Logger {
	if logger == nil {
		return log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return logger
}

// Version-count thresholds at which the local transports start urging
// snapshots.
const (
	snapshotUrgencyLow  = 10
	snapshotUrgencyHigh = 100
)

func urgencyForDepth(versionsSinceSnapshot int) SnapshotUrgency {
	switch {
	case versionsSinceSnapshot >= snapshotUrgencyHigh:
		return UrgencyHigh
	case versionsSinceSnapshot >= snapshotUrgencyLow:
		return UrgencyLow
	}
	return UrgencyNone
}
