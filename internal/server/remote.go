package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// segmentContentType is the media type of a sealed history segment on the
// wire.
const segmentContentType = "application/vnd.taskchampion.history-segment"

// RemoteConfig selects an HTTP sync server. Segments and snapshots are
// sealed with the encryption secret before upload; the server only ever
// sees ciphertext.
type RemoteConfig struct {
	// URL is the server base URL, without a trailing slash.
	URL string

	// ClientID identifies this task database to the server. All replicas
	// of one task database share a client ID.
	ClientID uuid.UUID

	// EncryptionSecret seals every payload end to end.
	EncryptionSecret string
}

// NewServer implements Config.
func (c RemoteConfig) NewServer(_ context.Context, logger *log.Logger) (Server, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("server url is required")
	}
	if c.ClientID == uuid.Nil {
		return nil, fmt.Errorf("client id is required")
	}
	sealer, err := NewSealer(c.EncryptionSecret, c.ClientID)
	if err != nil {
		return nil, err
	}
	return &Remote{
		base:     strings.TrimSuffix(c.URL, "/"),
		clientID: c.ClientID,
		sealer:   sealer,
		client:   &http.Client{Timeout: 60 * time.Second},
		logger:   ensureLogger(logger),
	}, nil
}

// Remote talks to a taskchampion sync server over HTTP.
type Remote struct {
	base     string
	clientID uuid.UUID
	sealer   *Sealer
	client   *http.Client
	logger   *log.Logger
}

func (s *Remote) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.base+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("X-Client-Id", s.clientID.String())
	if body != nil {
		req.Header.Set("Content-Type", segmentContentType)
	}
	return req, nil
}

func parseUrgency(header string) SnapshotUrgency {
	switch {
	case strings.Contains(header, "urgency=high"):
		return UrgencyHigh
	case strings.Contains(header, "urgency=low"):
		return UrgencyLow
	}
	return UrgencyNone
}

// AddVersion implements Server.
func (s *Remote) AddVersion(ctx context.Context, parent uuid.UUID, segment []byte) (uuid.UUID, SnapshotUrgency, error) {
	sealed, err := s.sealer.Seal(segment)
	if err != nil {
		return uuid.Nil, UrgencyNone, err
	}
	req, err := s.newRequest(ctx, http.MethodPost, "/v1/client/add-version/"+parent.String(), sealed)
	if err != nil {
		return uuid.Nil, UrgencyNone, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return uuid.Nil, UrgencyNone, fmt.Errorf("failed to reach sync server: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		version, err := uuid.Parse(resp.Header.Get("X-Version-Id"))
		if err != nil {
			return uuid.Nil, UrgencyNone, fmt.Errorf("server returned invalid version id: %w", err)
		}
		return version, parseUrgency(resp.Header.Get("X-Snapshot-Request")), nil
	case http.StatusConflict:
		return uuid.Nil, UrgencyNone, ErrVersionConflict
	default:
		return uuid.Nil, UrgencyNone, fmt.Errorf("sync server returned status %d for add-version", resp.StatusCode)
	}
}

// GetChildVersion implements Server.
func (s *Remote) GetChildVersion(ctx context.Context, parent uuid.UUID) (uuid.UUID, []byte, bool, error) {
	req, err := s.newRequest(ctx, http.MethodGet, "/v1/client/get-child-version/"+parent.String(), nil)
	if err != nil {
		return uuid.Nil, nil, false, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return uuid.Nil, nil, false, fmt.Errorf("failed to reach sync server: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		version, err := uuid.Parse(resp.Header.Get("X-Version-Id"))
		if err != nil {
			return uuid.Nil, nil, false, fmt.Errorf("server returned invalid version id: %w", err)
		}
		sealed, err := io.ReadAll(resp.Body)
		if err != nil {
			return uuid.Nil, nil, false, fmt.Errorf("failed to read history segment: %w", err)
		}
		segment, err := s.sealer.Open(sealed)
		if err != nil {
			return uuid.Nil, nil, false, err
		}
		return version, segment, true, nil
	case http.StatusNotFound, http.StatusGone:
		return uuid.Nil, nil, false, nil
	default:
		return uuid.Nil, nil, false, fmt.Errorf("sync server returned status %d for get-child-version", resp.StatusCode)
	}
}

// AddSnapshot implements Server.
func (s *Remote) AddSnapshot(ctx context.Context, version uuid.UUID, data []byte) error {
	sealed, err := s.sealer.Seal(data)
	if err != nil {
		return err
	}
	req, err := s.newRequest(ctx, http.MethodPost, "/v1/client/add-snapshot/"+version.String(), sealed)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach sync server: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sync server returned status %d for add-snapshot", resp.StatusCode)
	}
	s.logger.Printf("Uploaded snapshot at version %s", version)
	return nil
}

// GetSnapshot implements Server.
func (s *Remote) GetSnapshot(ctx context.Context) (uuid.UUID, []byte, bool, error) {
	req, err := s.newRequest(ctx, http.MethodGet, "/v1/client/snapshot", nil)
	if err != nil {
		return uuid.Nil, nil, false, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return uuid.Nil, nil, false, fmt.Errorf("failed to reach sync server: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		version, err := uuid.Parse(resp.Header.Get("X-Version-Id"))
		if err != nil {
			return uuid.Nil, nil, false, fmt.Errorf("server returned invalid version id: %w", err)
		}
		sealed, err := io.ReadAll(resp.Body)
		if err != nil {
			return uuid.Nil, nil, false, fmt.Errorf("failed to read snapshot: %w", err)
		}
		data, err := s.sealer.Open(sealed)
		if err != nil {
			return uuid.Nil, nil, false, err
		}
		return version, data, true, nil
	case http.StatusNotFound:
		return uuid.Nil, nil, false, nil
	default:
		return uuid.Nil, nil, false, fmt.Errorf("sync server returned status %d for snapshot", resp.StatusCode)
	}
}

// Close implements Server.
func (s *Remote) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
