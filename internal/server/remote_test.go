package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

// fakeSyncHandler implements just enough of the sync server's HTTP
// surface to exercise the Remote transport. Payloads are stored sealed,
// exactly as received.
type fakeSyncHandler struct {
	children        map[uuid.UUID]memVersion // parent -> child, sealed segment
	latest          uuid.UUID
	snapshotVersion uuid.UUID
	snapshot        []byte
	urgencyHeader   string
	lastClientID    string
}

func newFakeSyncHandler() *fakeSyncHandler {
	return &fakeSyncHandler{children: make(map[uuid.UUID]memVersion)}
}

func (h *fakeSyncHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.lastClientID = r.Header.Get("X-Client-Id")
	switch {
	case strings.HasPrefix(r.URL.Path, "/v1/client/add-version/"):
		parent, err := uuid.Parse(strings.TrimPrefix(r.URL.Path, "/v1/client/add-version/"))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if parent != h.latest {
			w.WriteHeader(http.StatusConflict)
			return
		}
		sealed, _ := io.ReadAll(r.Body)
		child := uuid.New()
		h.children[parent] = memVersion{id: child, segment: sealed}
		h.latest = child
		w.Header().Set("X-Version-Id", child.String())
		if h.urgencyHeader != "" {
			w.Header().Set("X-Snapshot-Request", h.urgencyHeader)
		}
		w.WriteHeader(http.StatusOK)
	case strings.HasPrefix(r.URL.Path, "/v1/client/get-child-version/"):
		parent, err := uuid.Parse(strings.TrimPrefix(r.URL.Path, "/v1/client/get-child-version/"))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		v, ok := h.children[parent]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("X-Version-Id", v.id.String())
		w.WriteHeader(http.StatusOK)
		w.Write(v.segment)
	case strings.HasPrefix(r.URL.Path, "/v1/client/add-snapshot/"):
		version, err := uuid.Parse(strings.TrimPrefix(r.URL.Path, "/v1/client/add-snapshot/"))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		h.snapshotVersion = version
		h.snapshot, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	case r.URL.Path == "/v1/client/snapshot":
		if h.snapshot == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("X-Version-Id", h.snapshotVersion.String())
		w.WriteHeader(http.StatusOK)
		w.Write(h.snapshot)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newRemote(t *testing.T, handler *fakeSyncHandler) (*Remote, uuid.UUID) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	clientID := uuid.New()
	srv, err := RemoteConfig{
		URL:              ts.URL,
		ClientID:         clientID,
		EncryptionSecret: "secret",
	}.NewServer(context.Background(), nil)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	return srv.(*Remote), clientID
}

func TestRemote_VersionRoundTrip(t *testing.T) {
	handler := newFakeSyncHandler()
	srv, clientID := newRemote(t, handler)
	ctx := context.Background()

	segment := []byte("history segment")
	v1, _, err := srv.AddVersion(ctx, uuid.Nil, segment)
	if err != nil {
		t.Fatalf("AddVersion failed: %v", err)
	}
	if handler.lastClientID != clientID.String() {
		t.Errorf("X-Client-Id = %q, want %q", handler.lastClientID, clientID)
	}
	// The server only ever sees ciphertext.
	if bytes.Contains(handler.children[uuid.Nil].segment, segment) {
		t.Error("segment was uploaded in plaintext")
	}

	child, got, ok, err := srv.GetChildVersion(ctx, uuid.Nil)
	if err != nil || !ok {
		t.Fatalf("GetChildVersion = (ok=%v, %v)", ok, err)
	}
	if child != v1 {
		t.Errorf("child = %v, want %v", child, v1)
	}
	if !bytes.Equal(got, segment) {
		t.Errorf("segment round trip: %q != %q", got, segment)
	}
}

func TestRemote_Conflict(t *testing.T) {
	handler := newFakeSyncHandler()
	srv, _ := newRemote(t, handler)
	ctx := context.Background()

	if _, _, err := srv.AddVersion(ctx, uuid.Nil, []byte("one")); err != nil {
		t.Fatalf("AddVersion failed: %v", err)
	}
	_, _, err := srv.AddVersion(ctx, uuid.Nil, []byte("stale"))
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("stale AddVersion = %v, want ErrVersionConflict", err)
	}
}

func TestRemote_MissingChildAndSnapshot(t *testing.T) {
	srv, _ := newRemote(t, newFakeSyncHandler())
	ctx := context.Background()

	if _, _, ok, err := srv.GetChildVersion(ctx, uuid.New()); err != nil || ok {
		t.Errorf("GetChildVersion for unknown parent = (ok=%v, %v)", ok, err)
	}
	if _, _, ok, err := srv.GetSnapshot(ctx); err != nil || ok {
		t.Errorf("GetSnapshot with no snapshot = (ok=%v, %v)", ok, err)
	}
}

func TestRemote_SnapshotRoundTrip(t *testing.T) {
	handler := newFakeSyncHandler()
	srv, _ := newRemote(t, handler)
	ctx := context.Background()

	v1, _, err := srv.AddVersion(ctx, uuid.Nil, []byte("one"))
	if err != nil {
		t.Fatalf("AddVersion failed: %v", err)
	}
	data := []byte(`{"snapshot":true}`)
	if err := srv.AddSnapshot(ctx, v1, data); err != nil {
		t.Fatalf("AddSnapshot failed: %v", err)
	}
	if bytes.Contains(handler.snapshot, data) {
		t.Error("snapshot was uploaded in plaintext")
	}

	version, got, ok, err := srv.GetSnapshot(ctx)
	if err != nil || !ok {
		t.Fatalf("GetSnapshot = (ok=%v, %v)", ok, err)
	}
	if version != v1 {
		t.Errorf("snapshot version = %v, want %v", version, v1)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("snapshot round trip: %q != %q", got, data)
	}
}

func TestRemote_UrgencyHeader(t *testing.T) {
	handler := newFakeSyncHandler()
	handler.urgencyHeader = "urgency=high"
	srv, _ := newRemote(t, handler)

	_, urgency, err := srv.AddVersion(context.Background(), uuid.Nil, []byte("one"))
	if err != nil {
		t.Fatalf("AddVersion failed: %v", err)
	}
	if urgency != UrgencyHigh {
		t.Errorf("urgency = %v, want high", urgency)
	}
}
