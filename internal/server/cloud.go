package server

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"github.com/google/uuid"
)

// Object keys used by the bucket-backed transports. One object per version,
// keyed by parent, makes version creation atomic on stores that support
// create-only puts.
const (
	objLatest       = "latest"
	objSnapshot     = "snapshot"
	objVersionCount = "meta/versions-since-snapshot"
	objVersionPfx   = "v/"
)

// bucketStore is the minimal object-store surface the cloud transports
// need. Implemented for GCP and AWS buckets.
type bucketStore interface {
	get(ctx context.Context, name string) ([]byte, bool, error)
	put(ctx context.Context, name string, data []byte) error
	// putIfAbsent creates the object only if it does not exist yet,
	// returning false when it already did.
	putIfAbsent(ctx context.Context, name string, data []byte) (bool, error)
	close() error
}

// cloudServer implements the version-chain protocol over a bucketStore.
// The chain head lives in the "latest" object; each version is an object
// keyed by its parent, so two clients racing to extend the same parent
// collide on the create-only put and one of them sees a version conflict.
type cloudServer struct {
	store  bucketStore
	sealer *Sealer
	logger *log.Logger
}

func newCloudServer(store bucketStore, secret string, logger *log.Logger) (*cloudServer, error) {
	sealer, err := NewSealer(secret, uuid.Nil)
	if err != nil {
		return nil, err
	}
	return &cloudServer{store: store, sealer: sealer, logger: ensureLogger(logger)}, nil
}

// versionObject encodes a version id and its sealed segment as
// 36 bytes of uuid text followed by the payload.
func versionObject(version uuid.UUID, sealed []byte) []byte {
	out := make([]byte, 0, 36+len(sealed))
	out = append(out, version.String()...)
	return append(out, sealed...)
}

func splitVersionObject(data []byte) (uuid.UUID, []byte, error) {
	if len(data) < 36 {
		return uuid.Nil, nil, fmt.Errorf("version object too short (%d bytes)", len(data))
	}
	version, err := uuid.Parse(string(data[:36]))
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("corrupt version object: %w", err)
	}
	return version, data[36:], nil
}

// AddVersion implements Server.
func (s *cloudServer) AddVersion(ctx context.Context, parent uuid.UUID, segment []byte) (uuid.UUID, SnapshotUrgency, error) {
	latestData, ok, err := s.store.get(ctx, objLatest)
	if err != nil {
		return uuid.Nil, UrgencyNone, err
	}
	latest := uuid.Nil
	if ok {
		latest, err = uuid.Parse(string(latestData))
		if err != nil {
			return uuid.Nil, UrgencyNone, fmt.Errorf("corrupt latest pointer: %w", err)
		}
	}
	if parent != latest {
		return uuid.Nil, UrgencyNone, ErrVersionConflict
	}

	sealed, err := s.sealer.Seal(segment)
	if err != nil {
		return uuid.Nil, UrgencyNone, err
	}
	child := uuid.New()
	created, err := s.store.putIfAbsent(ctx, objVersionPfx+parent.String(), versionObject(child, sealed))
	if err != nil {
		return uuid.Nil, UrgencyNone, err
	}
	if !created {
		// Another client extended this parent first.
		return uuid.Nil, UrgencyNone, ErrVersionConflict
	}
	if err := s.store.put(ctx, objLatest, []byte(child.String())); err != nil {
		return uuid.Nil, UrgencyNone, err
	}
	s.logger.Printf("Stored version %s (parent %s)", child, parent)

	// Best-effort counter; it only feeds the snapshot hint.
	count := 1
	if data, ok, err := s.store.get(ctx, objVersionCount); err == nil && ok {
		if prev, perr := strconv.Atoi(string(data)); perr == nil {
			count = prev + 1
		}
	}
	if err := s.store.put(ctx, objVersionCount, []byte(strconv.Itoa(count))); err != nil {
		s.logger.Printf("Warning: failed to update version counter: %v", err)
	}
	return child, urgencyForDepth(count), nil
}

// GetChildVersion implements Server.
func (s *cloudServer) GetChildVersion(ctx context.Context, parent uuid.UUID) (uuid.UUID, []byte, bool, error) {
	data, ok, err := s.store.get(ctx, objVersionPfx+parent.String())
	if err != nil || !ok {
		return uuid.Nil, nil, false, err
	}
	version, sealed, err := splitVersionObject(data)
	if err != nil {
		return uuid.Nil, nil, false, err
	}
	segment, err := s.sealer.Open(sealed)
	if err != nil {
		return uuid.Nil, nil, false, err
	}
	return version, segment, true, nil
}

// AddSnapshot implements Server.
func (s *cloudServer) AddSnapshot(ctx context.Context, version uuid.UUID, data []byte) error {
	sealed, err := s.sealer.Seal(data)
	if err != nil {
		return err
	}
	if err := s.store.put(ctx, objSnapshot, versionObject(version, sealed)); err != nil {
		return err
	}
	if err := s.store.put(ctx, objVersionCount, []byte("0")); err != nil {
		s.logger.Printf("Warning: failed to reset version counter: %v", err)
	}
	s.logger.Printf("Uploaded snapshot at version %s", version)
	return nil
}

// GetSnapshot implements Server.
func (s *cloudServer) GetSnapshot(ctx context.Context) (uuid.UUID, []byte, bool, error) {
	data, ok, err := s.store.get(ctx, objSnapshot)
	if err != nil || !ok {
		return uuid.Nil, nil, false, err
	}
	version, sealed, err := splitVersionObject(data)
	if err != nil {
		return uuid.Nil, nil, false, err
	}
	plain, err := s.sealer.Open(sealed)
	if err != nil {
		return uuid.Nil, nil, false, err
	}
	return version, plain, true, nil
}

// Close implements Server.
func (s *cloudServer) Close() error { return s.store.close() }
